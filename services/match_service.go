package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/deckstorm/tcg-arena/brackets"
	"github.com/deckstorm/tcg-arena/models"
	"github.com/deckstorm/tcg-arena/repositories"
)

// RoundAdvancer is the single authoritative path for moving a tournament to
// its next round. The match lifecycle calls it after every score report so
// completed elimination rounds propagate without a second code path.
type RoundAdvancer interface {
	AutoAdvance(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament) error
}

type CreateMatchInput struct {
	TournamentID  int               `json:"tournament_id"`
	PlayerAID     *int              `json:"player_a_id,omitempty"`
	PlayerBID     *int              `json:"player_b_id,omitempty"`
	Round         int               `json:"round"`
	Phase         models.MatchPhase `json:"phase"`
	ScheduledDate time.Time         `json:"scheduled_date"`
	Notes         *string           `json:"notes,omitempty"`
}

type ReportScoreInput struct {
	MatchID      int     `json:"-"`
	PlayerAScore int     `json:"player_a_score"`
	PlayerBScore int     `json:"player_b_score"`
	IsForfeit    bool    `json:"is_forfeit"`
	Notes        *string `json:"notes,omitempty"`
}

type MatchService interface {
	Create(ctx context.Context, input CreateMatchInput) (*models.Match, error)
	GetByID(ctx context.Context, matchID int) (*models.Match, error)
	ListByTournament(ctx context.Context, tournamentID int, filter repositories.MatchFilter) ([]*models.Match, error)
	Start(ctx context.Context, matchID int, notes *string) (*models.Match, error)
	ReportScore(ctx context.Context, input ReportScoreInput) (*models.Match, error)
	Reset(ctx context.Context, matchID int, reason *string) (*models.Match, error)
	Remove(ctx context.Context, matchID int) error
	// SetRoundAdvancer breaks the construction cycle with the orchestration
	// service; wired once at startup.
	SetRoundAdvancer(advancer RoundAdvancer)
}

type matchService struct {
	txManager        repositories.TxManager
	tournamentRepo   repositories.TournamentRepository
	matchRepo        repositories.MatchRepository
	registrationRepo repositories.RegistrationRepository
	playerRepo       repositories.PlayerRepository
	statisticRepo    repositories.StatisticRepository
	rankingService   RankingService
	advancer         RoundAdvancer
	notifier         ProgressNotifier
	locker           *TournamentLocker
	clock            Clock
	logger           *slog.Logger
}

func NewMatchService(
	txManager repositories.TxManager,
	tournamentRepo repositories.TournamentRepository,
	matchRepo repositories.MatchRepository,
	registrationRepo repositories.RegistrationRepository,
	playerRepo repositories.PlayerRepository,
	statisticRepo repositories.StatisticRepository,
	rankingService RankingService,
	notifier ProgressNotifier,
	locker *TournamentLocker,
	clock Clock,
	logger *slog.Logger,
) MatchService {
	return &matchService{
		txManager:        txManager,
		tournamentRepo:   tournamentRepo,
		matchRepo:        matchRepo,
		registrationRepo: registrationRepo,
		playerRepo:       playerRepo,
		statisticRepo:    statisticRepo,
		rankingService:   rankingService,
		notifier:         notifier,
		locker:           locker,
		clock:            clock,
		logger:           logger,
	}
}

func (s *matchService) SetRoundAdvancer(advancer RoundAdvancer) {
	s.advancer = advancer
}

func (s *matchService) Create(ctx context.Context, input CreateMatchInput) (*models.Match, error) {
	if input.Round < 1 || input.Phase == "" || input.ScheduledDate.IsZero() {
		return nil, fmt.Errorf("%w: round, phase and scheduled date are required", ErrInvalidMatchData)
	}

	var match *models.Match
	err := s.txManager.WithinTx(ctx, func(tx repositories.SQLExecutor) error {
		tournament, err := s.tournamentRepo.GetByID(ctx, tx, input.TournamentID)
		if err != nil {
			if errors.Is(err, repositories.ErrTournamentNotFound) {
				return ErrTournamentNotFound
			}
			return err
		}
		if tournament.Status != models.StatusInProgress {
			return fmt.Errorf("%w: status is %s", ErrTournamentNotInProgress, tournament.Status)
		}

		for _, playerID := range []*int{input.PlayerAID, input.PlayerBID} {
			if playerID == nil {
				continue
			}
			if err := s.requireConfirmedRegistrant(ctx, tx, tournament.ID, *playerID); err != nil {
				return err
			}
		}

		match = &models.Match{
			TournamentID:  input.TournamentID,
			PlayerAID:     input.PlayerAID,
			PlayerBID:     input.PlayerBID,
			Round:         input.Round,
			Phase:         input.Phase,
			Status:        models.MatchScheduled,
			ScheduledDate: input.ScheduledDate,
			Notes:         input.Notes,
		}
		return s.matchRepo.Create(ctx, tx, match)
	})
	if err != nil {
		return nil, err
	}
	return match, nil
}

func (s *matchService) requireConfirmedRegistrant(ctx context.Context, exec repositories.SQLExecutor, tournamentID, playerID int) error {
	if _, err := s.playerRepo.GetByID(ctx, exec, playerID); err != nil {
		if errors.Is(err, repositories.ErrPlayerNotFound) {
			return fmt.Errorf("%w: id %d", ErrPlayerNotFound, playerID)
		}
		return err
	}
	reg, err := s.registrationRepo.GetByTournamentAndPlayer(ctx, exec, tournamentID, playerID)
	if err != nil {
		if errors.Is(err, repositories.ErrRegistrationNotFound) {
			return fmt.Errorf("%w: player %d", ErrPlayerNotRegistered, playerID)
		}
		return err
	}
	if reg.Status != models.RegistrationConfirmed {
		return fmt.Errorf("%w: player %d registration is %s", ErrPlayerNotRegistered, playerID, reg.Status)
	}
	return nil
}

func (s *matchService) GetByID(ctx context.Context, matchID int) (*models.Match, error) {
	return s.getMatch(ctx, nil, matchID)
}

func (s *matchService) ListByTournament(ctx context.Context, tournamentID int, filter repositories.MatchFilter) ([]*models.Match, error) {
	matches, err := s.matchRepo.ListByTournament(ctx, nil, tournamentID, filter)
	if err != nil {
		return nil, fmt.Errorf("list matches for tournament %d: %w", tournamentID, err)
	}
	return matches, nil
}

func (s *matchService) Start(ctx context.Context, matchID int, notes *string) (*models.Match, error) {
	var match *models.Match
	err := s.txManager.WithinTx(ctx, func(tx repositories.SQLExecutor) error {
		var errTx error
		match, errTx = s.getMatch(ctx, tx, matchID)
		if errTx != nil {
			return errTx
		}
		if match.Status != models.MatchScheduled {
			return fmt.Errorf("%w: cannot start a %s match", ErrInvalidMatchTransition, match.Status)
		}
		if match.PlayerAID == nil || match.PlayerBID == nil {
			return fmt.Errorf("%w: both players must be assigned before start", ErrInvalidMatchTransition)
		}

		now := s.clock()
		match.Status = models.MatchInProgress
		match.StartedAt = &now
		if notes != nil {
			match.Notes = notes
		}
		return s.matchRepo.Update(ctx, tx, match)
	})
	if err != nil {
		return nil, err
	}

	s.notify(match.TournamentID, match)
	return match, nil
}

// ReportScore settles a match and applies every consequence in one
// transaction: the result itself, the incremental ranking bump, the per
// player statistics rows, and the round completion check for elimination
// formats.
func (s *matchService) ReportScore(ctx context.Context, input ReportScoreInput) (*models.Match, error) {
	if input.PlayerAScore < 0 || input.PlayerBScore < 0 {
		return nil, fmt.Errorf("%w: scores cannot be negative", ErrInvalidMatchData)
	}

	// The tournament lock must cover the whole transaction so the round
	// completion check cannot race a concurrent report in the same round.
	peek, err := s.getMatch(ctx, nil, input.MatchID)
	if err != nil {
		return nil, err
	}
	unlock := s.locker.Lock(peek.TournamentID)
	defer unlock()

	var match *models.Match
	err = s.txManager.WithinTx(ctx, func(tx repositories.SQLExecutor) error {
		var errTx error
		match, errTx = s.getMatch(ctx, tx, input.MatchID)
		if errTx != nil {
			return errTx
		}
		if match.Status != models.MatchInProgress {
			return fmt.Errorf("%w: cannot report a score on a %s match", ErrInvalidMatchTransition, match.Status)
		}

		now := s.clock()
		match.PlayerAScore = input.PlayerAScore
		match.PlayerBScore = input.PlayerBScore
		match.FinishedAt = &now
		if input.Notes != nil {
			match.Notes = input.Notes
		}
		if input.IsForfeit {
			match.Status = models.MatchForfeit
		} else {
			match.Status = models.MatchFinished
		}

		// The winner follows the submitted scores for forfeits too: the
		// forfeiting side is expected to carry the lower score. Equal
		// scores mean a draw and no winner.
		match.WinnerID = nil
		switch {
		case input.PlayerAScore > input.PlayerBScore:
			match.WinnerID = match.PlayerAID
		case input.PlayerBScore > input.PlayerAScore:
			match.WinnerID = match.PlayerBID
		}

		if err := s.matchRepo.Update(ctx, tx, match); err != nil {
			return err
		}
		if err := s.rankingService.ApplyMatchResult(ctx, tx, match); err != nil {
			return fmt.Errorf("apply match result to rankings: %w", err)
		}
		if err := s.writeStatistics(ctx, tx, match); err != nil {
			return err
		}

		tournament, err := s.tournamentRepo.GetByID(ctx, tx, match.TournamentID)
		if err != nil {
			return err
		}
		if s.advancer != nil && isElimination(tournament.Type) {
			if err := s.advancer.AutoAdvance(ctx, tx, tournament); err != nil {
				return fmt.Errorf("auto advance after match %d: %w", match.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(match.TournamentID, match)
	return match, nil
}

func (s *matchService) writeStatistics(ctx context.Context, exec repositories.SQLExecutor, match *models.Match) error {
	sides := []struct {
		playerID *int
		own, opp int
		isA      bool
	}{
		{match.PlayerAID, match.PlayerAScore, match.PlayerBScore, true},
		{match.PlayerBID, match.PlayerBScore, match.PlayerAScore, false},
	}
	for _, side := range sides {
		if side.playerID == nil {
			continue
		}
		stat := &models.Statistic{
			MatchID:        match.ID,
			PlayerID:       *side.playerID,
			Points:         side.own,
			OpponentPoints: side.opp,
			IsWinner:       match.WinnerID != nil && *match.WinnerID == *side.playerID,
			IsPlayerA:      side.isA,
		}
		if err := s.statisticRepo.Create(ctx, exec, stat); err != nil {
			return fmt.Errorf("write statistics for player %d: %w", *side.playerID, err)
		}
	}
	return nil
}

// Reset returns a settled match to scheduled, wiping its result, its
// statistics rows, and the ranking effects the result had.
func (s *matchService) Reset(ctx context.Context, matchID int, reason *string) (*models.Match, error) {
	peek, err := s.getMatch(ctx, nil, matchID)
	if err != nil {
		return nil, err
	}
	unlock := s.locker.Lock(peek.TournamentID)
	defer unlock()

	var match *models.Match
	err = s.txManager.WithinTx(ctx, func(tx repositories.SQLExecutor) error {
		var errTx error
		match, errTx = s.getMatch(ctx, tx, matchID)
		if errTx != nil {
			return errTx
		}
		if !match.Status.IsComplete() {
			return fmt.Errorf("%w: only finished or forfeited matches can be reset", ErrInvalidMatchTransition)
		}

		match.Status = models.MatchScheduled
		match.PlayerAScore = 0
		match.PlayerBScore = 0
		match.WinnerID = nil
		match.StartedAt = nil
		match.FinishedAt = nil
		if reason != nil {
			match.Notes = reason
		}

		if err := s.matchRepo.Update(ctx, tx, match); err != nil {
			return err
		}
		if err := s.statisticRepo.DeleteByMatch(ctx, tx, match.ID); err != nil {
			return fmt.Errorf("delete statistics for match %d: %w", match.ID, err)
		}
		// replaying the remaining results unwinds the incremental bump
		return s.rankingService.RecomputeTournamentRankings(ctx, tx, match.TournamentID)
	})
	if err != nil {
		return nil, err
	}

	s.notify(match.TournamentID, match)
	return match, nil
}

func (s *matchService) Remove(ctx context.Context, matchID int) error {
	return s.txManager.WithinTx(ctx, func(tx repositories.SQLExecutor) error {
		match, err := s.getMatch(ctx, tx, matchID)
		if err != nil {
			return err
		}
		if match.Status != models.MatchScheduled {
			return fmt.Errorf("%w: only scheduled matches can be removed", ErrInvalidMatchTransition)
		}
		return s.matchRepo.Delete(ctx, tx, matchID)
	})
}

func (s *matchService) getMatch(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Match, error) {
	match, err := s.matchRepo.GetByID(ctx, exec, id)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrMatchNotFound, id)
		}
		return nil, err
	}
	return match, nil
}

func (s *matchService) notify(tournamentID int, match *models.Match) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyTournament(tournamentID, brackets.EventMatchUpdated, match)
}

func isElimination(t models.TournamentType) bool {
	return t == models.TypeSingleElimination || t == models.TypeDoubleElimination
}
