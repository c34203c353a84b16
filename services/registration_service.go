package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/deckstorm/tcg-arena/models"
	"github.com/deckstorm/tcg-arena/repositories"
	"github.com/google/uuid"
)

type RegistrationService interface {
	// Register signs a player up. Approval-gated tournaments produce a
	// pending registration, otherwise immediate confirmation; a full
	// tournament waitlists instead.
	Register(ctx context.Context, tournamentID, playerID int) (*models.Registration, error)
	// Confirm approves a pending registration against its confirmation code.
	Confirm(ctx context.Context, tournamentID, playerID int, code string) (*models.Registration, error)
	CheckIn(ctx context.Context, tournamentID, playerID int) (*models.Registration, error)
	// Cancel withdraws a registration and promotes the oldest waitlisted
	// player into the freed slot.
	Cancel(ctx context.Context, tournamentID, playerID int) (*models.Registration, error)
	ListByTournament(ctx context.Context, tournamentID int, status *models.RegistrationStatus) ([]*models.Registration, error)
}

type registrationService struct {
	txManager        repositories.TxManager
	tournamentRepo   repositories.TournamentRepository
	registrationRepo repositories.RegistrationRepository
	playerRepo       repositories.PlayerRepository
	clock            Clock
	logger           *slog.Logger
}

func NewRegistrationService(
	txManager repositories.TxManager,
	tournamentRepo repositories.TournamentRepository,
	registrationRepo repositories.RegistrationRepository,
	playerRepo repositories.PlayerRepository,
	clock Clock,
	logger *slog.Logger,
) RegistrationService {
	return &registrationService{
		txManager:        txManager,
		tournamentRepo:   tournamentRepo,
		registrationRepo: registrationRepo,
		playerRepo:       playerRepo,
		clock:            clock,
		logger:           logger,
	}
}

func (s *registrationService) Register(ctx context.Context, tournamentID, playerID int) (*models.Registration, error) {
	var registration *models.Registration
	err := s.txManager.WithinTx(ctx, func(tx repositories.SQLExecutor) error {
		tournament, err := s.getTournament(ctx, tx, tournamentID)
		if err != nil {
			return err
		}
		if tournament.Status != models.StatusRegistrationOpen {
			return fmt.Errorf("%w: status is %s", ErrRegistrationNotOpen, tournament.Status)
		}
		if tournament.RegistrationDeadline != nil && !tournament.RegistrationDeadline.After(s.clock()) {
			return ErrDeadlinePassed
		}
		if _, err := s.playerRepo.GetByID(ctx, tx, playerID); err != nil {
			if errors.Is(err, repositories.ErrPlayerNotFound) {
				return ErrPlayerNotFound
			}
			return err
		}

		status := models.RegistrationConfirmed
		if tournament.RequiresApproval {
			status = models.RegistrationPending
		}
		if tournament.MaxPlayers != nil {
			occupied, errCount := s.countOccupied(ctx, tx, tournamentID)
			if errCount != nil {
				return errCount
			}
			if occupied >= *tournament.MaxPlayers {
				status = models.RegistrationWaitlisted
			}
		}

		code := uuid.NewString()
		registration = &models.Registration{
			TournamentID:     tournamentID,
			PlayerID:         playerID,
			Status:           status,
			ConfirmationCode: &code,
		}
		if errCreate := s.registrationRepo.Create(ctx, tx, registration); errCreate != nil {
			if errors.Is(errCreate, repositories.ErrRegistrationConflict) {
				return ErrRegistrationConflict
			}
			return errCreate
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("player registered",
		"tournament_id", tournamentID,
		"player_id", playerID,
		"status", registration.Status)
	return registration, nil
}

// countOccupied считает занятые слоты: подтверждённые и ожидающие заявки.
func (s *registrationService) countOccupied(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) (int, error) {
	total := 0
	for _, status := range []models.RegistrationStatus{models.RegistrationConfirmed, models.RegistrationPending} {
		st := status
		count, err := s.registrationRepo.CountByTournament(ctx, exec, tournamentID, &st)
		if err != nil {
			return 0, fmt.Errorf("count %s registrations: %w", status, err)
		}
		total += count
	}
	return total, nil
}

func (s *registrationService) Confirm(ctx context.Context, tournamentID, playerID int, code string) (*models.Registration, error) {
	var registration *models.Registration
	err := s.txManager.WithinTx(ctx, func(tx repositories.SQLExecutor) error {
		reg, err := s.getRegistration(ctx, tx, tournamentID, playerID)
		if err != nil {
			return err
		}
		if reg.Status != models.RegistrationPending {
			return fmt.Errorf("%w: registration is %s, not pending", ErrValidationFailed, reg.Status)
		}
		if reg.ConfirmationCode == nil || *reg.ConfirmationCode != code {
			return fmt.Errorf("%w: confirmation code mismatch", ErrValidationFailed)
		}

		reg.Status = models.RegistrationConfirmed
		if errUpd := s.registrationRepo.Update(ctx, tx, reg); errUpd != nil {
			return errUpd
		}
		registration = reg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return registration, nil
}

func (s *registrationService) CheckIn(ctx context.Context, tournamentID, playerID int) (*models.Registration, error) {
	var registration *models.Registration
	err := s.txManager.WithinTx(ctx, func(tx repositories.SQLExecutor) error {
		tournament, err := s.getTournament(ctx, tx, tournamentID)
		if err != nil {
			return err
		}
		if tournament.Status != models.StatusRegistrationOpen && tournament.Status != models.StatusRegistrationClosed {
			return fmt.Errorf("%w: check-in is only possible before the tournament starts", ErrInvalidStatusTransition)
		}

		reg, err := s.getRegistration(ctx, tx, tournamentID, playerID)
		if err != nil {
			return err
		}
		if reg.Status != models.RegistrationConfirmed {
			return fmt.Errorf("%w: only confirmed players can check in, registration is %s", ErrValidationFailed, reg.Status)
		}
		if reg.CheckedIn {
			return ErrAlreadyCheckedIn
		}

		now := s.clock()
		reg.CheckedIn = true
		reg.CheckedInAt = &now
		if errUpd := s.registrationRepo.Update(ctx, tx, reg); errUpd != nil {
			return errUpd
		}
		registration = reg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return registration, nil
}

func (s *registrationService) Cancel(ctx context.Context, tournamentID, playerID int) (*models.Registration, error) {
	var registration *models.Registration
	err := s.txManager.WithinTx(ctx, func(tx repositories.SQLExecutor) error {
		tournament, err := s.getTournament(ctx, tx, tournamentID)
		if err != nil {
			return err
		}
		if tournament.Status == models.StatusInProgress || tournament.Status.IsTerminal() {
			return fmt.Errorf("%w: registrations are frozen once the tournament runs", ErrInvalidStatusTransition)
		}

		reg, err := s.getRegistration(ctx, tx, tournamentID, playerID)
		if err != nil {
			return err
		}
		if reg.Status == models.RegistrationCancelled {
			return fmt.Errorf("%w: registration is already cancelled", ErrValidationFailed)
		}

		freedSlot := reg.Status == models.RegistrationConfirmed || reg.Status == models.RegistrationPending
		reg.Status = models.RegistrationCancelled
		if errUpd := s.registrationRepo.Update(ctx, tx, reg); errUpd != nil {
			return errUpd
		}
		registration = reg

		if freedSlot {
			return s.promoteWaitlisted(ctx, tx, tournament)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("registration cancelled", "tournament_id", tournamentID, "player_id", playerID)
	return registration, nil
}

func (s *registrationService) promoteWaitlisted(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament) error {
	waitlisted := models.RegistrationWaitlisted
	queue, err := s.registrationRepo.ListByTournament(ctx, exec, tournament.ID, &waitlisted)
	if err != nil {
		return fmt.Errorf("list waitlist: %w", err)
	}
	if len(queue) == 0 {
		return nil
	}

	next := queue[0]
	if tournament.RequiresApproval {
		next.Status = models.RegistrationPending
	} else {
		next.Status = models.RegistrationConfirmed
	}
	if err := s.registrationRepo.Update(ctx, exec, next); err != nil {
		return fmt.Errorf("promote waitlisted player %d: %w", next.PlayerID, err)
	}
	s.logger.Info("waitlisted player promoted",
		"tournament_id", tournament.ID,
		"player_id", next.PlayerID,
		"status", next.Status)
	return nil
}

func (s *registrationService) ListByTournament(ctx context.Context, tournamentID int, status *models.RegistrationStatus) ([]*models.Registration, error) {
	if _, err := s.getTournament(ctx, nil, tournamentID); err != nil {
		return nil, err
	}
	return s.registrationRepo.ListByTournament(ctx, nil, tournamentID, status)
}

func (s *registrationService) getTournament(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Tournament, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, exec, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return tournament, nil
}

func (s *registrationService) getRegistration(ctx context.Context, exec repositories.SQLExecutor, tournamentID, playerID int) (*models.Registration, error) {
	reg, err := s.registrationRepo.GetByTournamentAndPlayer(ctx, exec, tournamentID, playerID)
	if err != nil {
		if errors.Is(err, repositories.ErrRegistrationNotFound) {
			return nil, ErrRegistrationNotFound
		}
		return nil, err
	}
	return reg, nil
}
