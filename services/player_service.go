package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/deckstorm/tcg-arena/models"
	"github.com/deckstorm/tcg-arena/repositories"
	"github.com/deckstorm/tcg-arena/storage"
)

type PlayerService interface {
	GetByID(ctx context.Context, playerID int) (*models.Player, error)
	GetByUserID(ctx context.Context, userID int) (*models.Player, error)
	UpdateDisplayName(ctx context.Context, playerID int, displayName string) (*models.Player, error)
	UploadAvatar(ctx context.Context, playerID int, contentType string, file io.Reader) (*models.Player, error)
}

type playerService struct {
	playerRepo repositories.PlayerRepository
	uploader   storage.FileUploader
	clock      Clock
	logger     *slog.Logger
}

func NewPlayerService(
	playerRepo repositories.PlayerRepository,
	uploader storage.FileUploader,
	clock Clock,
	logger *slog.Logger,
) PlayerService {
	return &playerService{
		playerRepo: playerRepo,
		uploader:   uploader,
		clock:      clock,
		logger:     logger,
	}
}

func (s *playerService) GetByID(ctx context.Context, playerID int) (*models.Player, error) {
	player, err := s.playerRepo.GetByID(ctx, nil, playerID)
	if err != nil {
		if errors.Is(err, repositories.ErrPlayerNotFound) {
			return nil, ErrPlayerNotFound
		}
		return nil, err
	}
	s.populateAvatarURL(player)
	return player, nil
}

func (s *playerService) GetByUserID(ctx context.Context, userID int) (*models.Player, error) {
	player, err := s.playerRepo.GetByUserID(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrPlayerNotFound) {
			return nil, ErrPlayerNotFound
		}
		return nil, err
	}
	s.populateAvatarURL(player)
	return player, nil
}

func (s *playerService) UpdateDisplayName(ctx context.Context, playerID int, displayName string) (*models.Player, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, fmt.Errorf("%w: display name cannot be empty", ErrValidationFailed)
	}

	player, err := s.GetByID(ctx, playerID)
	if err != nil {
		return nil, err
	}
	player.DisplayName = displayName
	if err := s.playerRepo.Update(ctx, nil, player); err != nil {
		return nil, err
	}
	return player, nil
}

func (s *playerService) UploadAvatar(ctx context.Context, playerID int, contentType string, file io.Reader) (*models.Player, error) {
	if s.uploader == nil {
		return nil, errors.New("file storage is not configured")
	}

	player, err := s.GetByID(ctx, playerID)
	if err != nil {
		return nil, err
	}

	ext, err := extensionForContentType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	oldKey := player.AvatarKey
	key := fmt.Sprintf("players/%d/avatar_%d%s", playerID, s.clock().UnixNano(), ext)
	if _, err := s.uploader.Upload(ctx, key, contentType, file); err != nil {
		return nil, fmt.Errorf("upload avatar: %w", err)
	}

	player.AvatarKey = &key
	if err := s.playerRepo.Update(ctx, nil, player); err != nil {
		return nil, err
	}

	if oldKey != nil && *oldKey != "" {
		if errDel := s.uploader.Delete(ctx, *oldKey); errDel != nil {
			s.logger.Warn("failed to delete previous avatar", "player_id", playerID, "key", *oldKey, "error", errDel)
		}
	}

	s.populateAvatarURL(player)
	return player, nil
}

func (s *playerService) populateAvatarURL(p *models.Player) {
	if p == nil || p.AvatarKey == nil || *p.AvatarKey == "" || s.uploader == nil {
		return
	}
	if url := s.uploader.GetPublicURL(*p.AvatarKey); url != "" {
		p.AvatarURL = &url
	}
}
