package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/deckstorm/tcg-arena/models"
	"github.com/deckstorm/tcg-arena/repositories"
	"github.com/deckstorm/tcg-arena/storage"
)

type CreateTournamentInput struct {
	Name                 string                `json:"name"`
	Description          *string               `json:"description,omitempty"`
	Location             *string               `json:"location,omitempty"`
	Type                 models.TournamentType `json:"type"`
	MinPlayers           int                   `json:"min_players"`
	MaxPlayers           *int                  `json:"max_players,omitempty"`
	StartDate            time.Time             `json:"start_date"`
	RegistrationDeadline *time.Time            `json:"registration_deadline,omitempty"`
	RequiresApproval     bool                  `json:"requires_approval"`
	CheckInRequired      bool                  `json:"check_in_required"`
	Rules                *string               `json:"rules,omitempty"`
}

type UpdateTournamentInput struct {
	Name                 *string    `json:"name,omitempty"`
	Description          *string    `json:"description,omitempty"`
	Location             *string    `json:"location,omitempty"`
	MinPlayers           *int       `json:"min_players,omitempty"`
	MaxPlayers           *int       `json:"max_players,omitempty"`
	StartDate            *time.Time `json:"start_date,omitempty"`
	RegistrationDeadline *time.Time `json:"registration_deadline,omitempty"`
	RequiresApproval     *bool      `json:"requires_approval,omitempty"`
	CheckInRequired      *bool      `json:"check_in_required,omitempty"`
	Rules                *string    `json:"rules,omitempty"`
}

type TournamentService interface {
	Create(ctx context.Context, input CreateTournamentInput) (*models.Tournament, error)
	GetByID(ctx context.Context, tournamentID int) (*models.Tournament, error)
	List(ctx context.Context, status *models.TournamentStatus, limit, offset int) ([]*models.Tournament, error)
	Update(ctx context.Context, tournamentID int, input UpdateTournamentInput) (*models.Tournament, error)
	// Delete removes a tournament that never ran. Anything past draft keeps
	// its history and can only be cancelled.
	Delete(ctx context.Context, tournamentID int) error
	UploadLogo(ctx context.Context, tournamentID int, contentType string, file io.Reader) (*models.Tournament, error)
}

type tournamentService struct {
	txManager      repositories.TxManager
	tournamentRepo repositories.TournamentRepository
	uploader       storage.FileUploader
	clock          Clock
	logger         *slog.Logger
}

func NewTournamentService(
	txManager repositories.TxManager,
	tournamentRepo repositories.TournamentRepository,
	uploader storage.FileUploader,
	clock Clock,
	logger *slog.Logger,
) TournamentService {
	return &tournamentService{
		txManager:      txManager,
		tournamentRepo: tournamentRepo,
		uploader:       uploader,
		clock:          clock,
		logger:         logger,
	}
}

func validTournamentType(t models.TournamentType) bool {
	switch t {
	case models.TypeSingleElimination, models.TypeDoubleElimination,
		models.TypeSwissSystem, models.TypeRoundRobin:
		return true
	}
	return false
}

func (s *tournamentService) Create(ctx context.Context, input CreateTournamentInput) (*models.Tournament, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidationFailed)
	}
	if !validTournamentType(input.Type) {
		return nil, fmt.Errorf("%w: unknown tournament type %q", ErrValidationFailed, input.Type)
	}
	if input.MinPlayers < 2 {
		return nil, fmt.Errorf("%w: min players must be at least 2", ErrPlayerLimitsInvalid)
	}
	if input.MaxPlayers != nil && *input.MaxPlayers < input.MinPlayers {
		return nil, fmt.Errorf("%w: max players %d below min players %d", ErrPlayerLimitsInvalid, *input.MaxPlayers, input.MinPlayers)
	}
	if input.StartDate.IsZero() {
		return nil, fmt.Errorf("%w: start date is required", ErrValidationFailed)
	}
	if input.RegistrationDeadline != nil && input.RegistrationDeadline.After(input.StartDate) {
		return nil, fmt.Errorf("%w: registration deadline is after the start date", ErrValidationFailed)
	}

	tournament := &models.Tournament{
		Name:                 strings.TrimSpace(input.Name),
		Description:          input.Description,
		Location:             input.Location,
		Type:                 input.Type,
		Status:               models.StatusDraft,
		MinPlayers:           input.MinPlayers,
		MaxPlayers:           input.MaxPlayers,
		StartDate:            input.StartDate,
		RegistrationDeadline: input.RegistrationDeadline,
		RequiresApproval:     input.RequiresApproval,
		CheckInRequired:      input.CheckInRequired,
		Rules:                input.Rules,
	}

	if err := s.tournamentRepo.Create(ctx, nil, tournament); err != nil {
		if errors.Is(err, repositories.ErrTournamentNameConflict) {
			return nil, ErrTournamentNameConflict
		}
		return nil, fmt.Errorf("create tournament: %w", err)
	}

	s.logger.Info("tournament created", "tournament_id", tournament.ID, "name", tournament.Name, "type", tournament.Type)
	s.populateLogoURL(tournament)
	return tournament, nil
}

func (s *tournamentService) GetByID(ctx context.Context, tournamentID int) (*models.Tournament, error) {
	tournament, err := s.getTournament(ctx, nil, tournamentID)
	if err != nil {
		return nil, err
	}
	s.populateLogoURL(tournament)
	return tournament, nil
}

func (s *tournamentService) List(ctx context.Context, status *models.TournamentStatus, limit, offset int) ([]*models.Tournament, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	tournaments, err := s.tournamentRepo.List(ctx, nil, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list tournaments: %w", err)
	}
	for _, t := range tournaments {
		s.populateLogoURL(t)
	}
	return tournaments, nil
}

func (s *tournamentService) Update(ctx context.Context, tournamentID int, input UpdateTournamentInput) (*models.Tournament, error) {
	var tournament *models.Tournament
	err := s.txManager.WithinTx(ctx, func(tx repositories.SQLExecutor) error {
		var errTx error
		tournament, errTx = s.getTournament(ctx, tx, tournamentID)
		if errTx != nil {
			return errTx
		}
		if tournament.Status.IsTerminal() {
			return fmt.Errorf("%w: tournament is %s", ErrInvalidStatusTransition, tournament.Status)
		}

		if input.Name != nil {
			if strings.TrimSpace(*input.Name) == "" {
				return fmt.Errorf("%w: name cannot be empty", ErrValidationFailed)
			}
			tournament.Name = strings.TrimSpace(*input.Name)
		}
		if input.Description != nil {
			tournament.Description = input.Description
		}
		if input.Location != nil {
			tournament.Location = input.Location
		}
		if input.MinPlayers != nil {
			tournament.MinPlayers = *input.MinPlayers
		}
		if input.MaxPlayers != nil {
			tournament.MaxPlayers = input.MaxPlayers
		}
		if input.StartDate != nil {
			tournament.StartDate = *input.StartDate
		}
		if input.RegistrationDeadline != nil {
			tournament.RegistrationDeadline = input.RegistrationDeadline
		}
		if input.RequiresApproval != nil {
			tournament.RequiresApproval = *input.RequiresApproval
		}
		if input.CheckInRequired != nil {
			tournament.CheckInRequired = *input.CheckInRequired
		}
		if input.Rules != nil {
			tournament.Rules = input.Rules
		}

		if tournament.MinPlayers < 2 {
			return fmt.Errorf("%w: min players must be at least 2", ErrPlayerLimitsInvalid)
		}
		if tournament.MaxPlayers != nil && *tournament.MaxPlayers < tournament.MinPlayers {
			return fmt.Errorf("%w: max players %d below min players %d", ErrPlayerLimitsInvalid, *tournament.MaxPlayers, tournament.MinPlayers)
		}

		errTx = s.tournamentRepo.Update(ctx, tx, tournament)
		if errors.Is(errTx, repositories.ErrTournamentNameConflict) {
			return ErrTournamentNameConflict
		}
		return errTx
	})
	if err != nil {
		return nil, err
	}

	s.populateLogoURL(tournament)
	return tournament, nil
}

func (s *tournamentService) Delete(ctx context.Context, tournamentID int) error {
	return s.txManager.WithinTx(ctx, func(tx repositories.SQLExecutor) error {
		tournament, err := s.getTournament(ctx, tx, tournamentID)
		if err != nil {
			return err
		}
		if tournament.Status != models.StatusDraft {
			return fmt.Errorf("%w: only draft tournaments can be deleted, this one is %s", ErrInvalidStatusTransition, tournament.Status)
		}
		return s.tournamentRepo.Delete(ctx, tx, tournamentID)
	})
}

func (s *tournamentService) UploadLogo(ctx context.Context, tournamentID int, contentType string, file io.Reader) (*models.Tournament, error) {
	if s.uploader == nil {
		return nil, errors.New("file storage is not configured")
	}

	tournament, err := s.getTournament(ctx, nil, tournamentID)
	if err != nil {
		return nil, err
	}

	ext, err := extensionForContentType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	oldKey := tournament.LogoKey
	key := fmt.Sprintf("tournaments/%d/logo_%d%s", tournamentID, s.clock().UnixNano(), ext)
	if _, err := s.uploader.Upload(ctx, key, contentType, file); err != nil {
		return nil, fmt.Errorf("upload tournament logo: %w", err)
	}

	tournament.LogoKey = &key
	if err := s.tournamentRepo.Update(ctx, nil, tournament); err != nil {
		return nil, err
	}

	if oldKey != nil && *oldKey != "" {
		if errDel := s.uploader.Delete(ctx, *oldKey); errDel != nil {
			s.logger.Warn("failed to delete previous logo", "tournament_id", tournamentID, "key", *oldKey, "error", errDel)
		}
	}

	s.populateLogoURL(tournament)
	return tournament, nil
}

func (s *tournamentService) populateLogoURL(t *models.Tournament) {
	if t == nil || t.LogoKey == nil || *t.LogoKey == "" || s.uploader == nil {
		return
	}
	if url := s.uploader.GetPublicURL(*t.LogoKey); url != "" {
		t.LogoURL = &url
	}
}

func (s *tournamentService) getTournament(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Tournament, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, exec, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return tournament, nil
}

func extensionForContentType(contentType string) (string, error) {
	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg", nil
	case "image/png":
		return ".png", nil
	case "image/gif":
		return ".gif", nil
	case "image/webp":
		return ".webp", nil
	default:
		return "", fmt.Errorf("unsupported image content type %q", contentType)
	}
}
