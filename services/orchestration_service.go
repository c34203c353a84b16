package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/deckstorm/tcg-arena/brackets"
	"github.com/deckstorm/tcg-arena/models"
	"github.com/deckstorm/tcg-arena/repositories"
	"golang.org/x/sync/errgroup"
)

type StartTournamentOptions struct {
	// CheckInRequired, when set, overrides the tournament's stored flag
	// before eligibility is evaluated.
	CheckInRequired *bool                  `json:"check_in_required,omitempty"`
	SeedingMethod   brackets.SeedingMethod `json:"seeding_method,omitempty"`
}

type AdvanceResult struct {
	NewRound          int  `json:"new_round"`
	MatchesCreated    int  `json:"matches_created"`
	PlayersAdvanced   int  `json:"players_advanced"`
	PlayersEliminated int  `json:"players_eliminated"`
	Finished          bool `json:"finished"`
}

type TournamentProgress struct {
	TournamentID       int                     `json:"tournament_id"`
	Status             models.TournamentStatus `json:"status"`
	CurrentRound       int                     `json:"current_round"`
	TotalRounds        int                     `json:"total_rounds"`
	CompletedMatches   int                     `json:"completed_matches"`
	TotalMatches       int                     `json:"total_matches"`
	ActivePlayers      int                     `json:"active_players"`
	EliminatedPlayers  int                     `json:"eliminated_players"`
	ProgressPercentage float64                 `json:"progress_percentage"`
}

// OrchestrationService drives whole tournaments: starting, advancing rounds,
// finishing and cancelling, each as a single transaction serialized per
// tournament. It is also the RoundAdvancer the match lifecycle calls, so
// next round creation has exactly one code path.
type OrchestrationService interface {
	RoundAdvancer
	StartTournament(ctx context.Context, tournamentID int, opts StartTournamentOptions) (*models.Tournament, error)
	AdvanceToNextRound(ctx context.Context, tournamentID int) (*AdvanceResult, error)
	FinishTournament(ctx context.Context, tournamentID int) (*models.Tournament, error)
	CancelTournament(ctx context.Context, tournamentID int, reason *string) (*models.Tournament, error)
	GetTournamentProgress(ctx context.Context, tournamentID int) (*TournamentProgress, error)
}

type orchestrationService struct {
	txManager        repositories.TxManager
	tournamentRepo   repositories.TournamentRepository
	matchRepo        repositories.MatchRepository
	registrationRepo repositories.RegistrationRepository
	bracketService   BracketService
	rankingService   RankingService
	stateService     TournamentStateService
	notifier         ProgressNotifier
	locker           *TournamentLocker
	clock            Clock
	logger           *slog.Logger
}

func NewOrchestrationService(
	txManager repositories.TxManager,
	tournamentRepo repositories.TournamentRepository,
	matchRepo repositories.MatchRepository,
	registrationRepo repositories.RegistrationRepository,
	bracketService BracketService,
	rankingService RankingService,
	stateService TournamentStateService,
	notifier ProgressNotifier,
	locker *TournamentLocker,
	clock Clock,
	logger *slog.Logger,
) OrchestrationService {
	return &orchestrationService{
		txManager:        txManager,
		tournamentRepo:   tournamentRepo,
		matchRepo:        matchRepo,
		registrationRepo: registrationRepo,
		bracketService:   bracketService,
		rankingService:   rankingService,
		stateService:     stateService,
		notifier:         notifier,
		locker:           locker,
		clock:            clock,
		logger:           logger,
	}
}

func (s *orchestrationService) StartTournament(ctx context.Context, tournamentID int, opts StartTournamentOptions) (*models.Tournament, error) {
	unlock := s.locker.Lock(tournamentID)
	defer unlock()

	method := opts.SeedingMethod
	if method == "" {
		method = brackets.SeedingRandom
	}

	var tournament *models.Tournament
	err := s.txManager.WithinTx(ctx, func(tx repositories.SQLExecutor) error {
		var errTx error
		tournament, errTx = s.getTournament(ctx, tx, tournamentID)
		if errTx != nil {
			return errTx
		}
		if opts.CheckInRequired != nil {
			tournament.CheckInRequired = *opts.CheckInRequired
		}

		if tournament.MaxPlayers != nil {
			confirmed := models.RegistrationConfirmed
			count, errCount := s.registrationRepo.CountByTournament(ctx, tx, tournamentID, &confirmed)
			if errCount != nil {
				return fmt.Errorf("count confirmed registrations: %w", errCount)
			}
			if count > *tournament.MaxPlayers {
				return fmt.Errorf("%w: %d confirmed, limit %d", ErrTournamentFull, count, *tournament.MaxPlayers)
			}
		}

		if _, errGen := s.bracketService.GenerateBracket(ctx, tx, tournament, method); errGen != nil {
			return errGen
		}
		if errState := s.stateService.TransitionTx(ctx, tx, tournament, models.StatusInProgress, nil); errState != nil {
			return errState
		}
		// every confirmed player gets a ranking row before the first result
		return s.rankingService.RecomputeTournamentRankings(ctx, tx, tournamentID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("tournament started",
		"tournament_id", tournamentID,
		"format", tournament.Type,
		"total_rounds", tournament.TotalRounds)
	s.notifyState(tournament)
	return tournament, nil
}

// AutoAdvance is the best effort progression hook running inside a score
// report's transaction. The caller already holds the tournament lock. It
// quietly does nothing while the round is incomplete or the next round
// already exists.
func (s *orchestrationService) AutoAdvance(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament) error {
	if tournament.Status != models.StatusInProgress {
		return nil
	}
	result, err := s.advance(ctx, exec, tournament, false)
	if err != nil {
		return err
	}
	if result != nil {
		s.logger.Info("round auto advanced",
			"tournament_id", tournament.ID,
			"new_round", result.NewRound,
			"matches_created", result.MatchesCreated,
			"finished", result.Finished)
		s.notifyAdvance(tournament, result)
	}
	return nil
}

func (s *orchestrationService) AdvanceToNextRound(ctx context.Context, tournamentID int) (*AdvanceResult, error) {
	unlock := s.locker.Lock(tournamentID)
	defer unlock()

	var (
		tournament *models.Tournament
		result     *AdvanceResult
	)
	err := s.txManager.WithinTx(ctx, func(tx repositories.SQLExecutor) error {
		var errTx error
		tournament, errTx = s.getTournament(ctx, tx, tournamentID)
		if errTx != nil {
			return errTx
		}
		if tournament.Status != models.StatusInProgress {
			return fmt.Errorf("%w: status is %s", ErrTournamentNotInProgress, tournament.Status)
		}
		result, errTx = s.advance(ctx, tx, tournament, true)
		return errTx
	})
	if err != nil {
		return nil, err
	}

	s.notifyAdvance(tournament, result)
	return result, nil
}

// advance is the one authoritative round transition. strict toggles whether
// an incomplete round or an already populated next round is an error (the
// explicit orchestration call) or a no-op (the automatic hook).
func (s *orchestrationService) advance(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, strict bool) (*AdvanceResult, error) {
	unfinished, err := s.matchRepo.CountUnfinishedInRound(ctx, exec, tournament.ID, tournament.CurrentRound)
	if err != nil {
		return nil, fmt.Errorf("count unfinished matches: %w", err)
	}
	if unfinished > 0 {
		if strict {
			return nil, fmt.Errorf("%w: %d matches unfinished in round %d", ErrRoundNotComplete, unfinished, tournament.CurrentRound)
		}
		return nil, nil
	}

	// round robin keeps its full schedule from generation, the guard only
	// applies to formats that create next round matches on advance
	if tournament.Type != models.TypeRoundRobin {
		nextRound := tournament.CurrentRound + 1
		existing, err := s.matchRepo.ListByTournament(ctx, exec, tournament.ID, repositories.MatchFilter{Round: &nextRound})
		if err != nil {
			return nil, fmt.Errorf("check next round matches: %w", err)
		}
		if len(existing) > 0 {
			if strict {
				return nil, fmt.Errorf("%w: round %d", ErrNextRoundExists, nextRound)
			}
			return nil, nil
		}
	}

	if err := s.rankingService.RecomputeTournamentRankings(ctx, exec, tournament.ID); err != nil {
		return nil, fmt.Errorf("recompute rankings before advance: %w", err)
	}

	switch {
	case isElimination(tournament.Type):
		return s.advanceElimination(ctx, exec, tournament)
	case tournament.Type == models.TypeSwissSystem:
		return s.advanceSwiss(ctx, exec, tournament)
	default:
		return s.advanceRoundRobin(ctx, exec, tournament)
	}
}

func (s *orchestrationService) advanceElimination(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament) (*AdvanceResult, error) {
	round := tournament.CurrentRound
	matches, err := s.matchRepo.ListByTournament(ctx, exec, tournament.ID, repositories.MatchFilter{Round: &round})
	if err != nil {
		return nil, fmt.Errorf("list round %d matches: %w", round, err)
	}

	var winners, losers []int
	involved := make(map[int]bool)
	for _, m := range matches {
		for _, pid := range []*int{m.PlayerAID, m.PlayerBID} {
			if pid != nil {
				involved[*pid] = true
			}
		}
		if !m.Status.IsComplete() || m.WinnerID == nil {
			continue
		}
		winners = append(winners, *m.WinnerID)
		if loserID := m.OpponentOf(*m.WinnerID); loserID != nil {
			losers = append(losers, *loserID)
		}
	}

	for _, playerID := range losers {
		if err := s.markEliminated(ctx, exec, tournament.ID, playerID, round); err != nil {
			return nil, err
		}
	}

	// the next round's pool is this round's winners plus any player a
	// previous odd sized round left waiting without an opponent
	confirmed := models.RegistrationConfirmed
	registrations, err := s.registrationRepo.ListByTournament(ctx, exec, tournament.ID, &confirmed)
	if err != nil {
		return nil, fmt.Errorf("list registrations for advance: %w", err)
	}
	pool := append([]int(nil), winners...)
	active := 0
	for _, reg := range registrations {
		if !reg.IsActive() {
			continue
		}
		active++
		if !involved[reg.PlayerID] {
			pool = append(pool, reg.PlayerID)
		}
	}

	result := &AdvanceResult{
		NewRound:          round,
		PlayersAdvanced:   len(winners),
		PlayersEliminated: len(losers),
	}

	if len(pool) < 2 {
		if active > 1 {
			// un-eliminated players remain, so the bracket is not decided;
			// leave them waiting rather than ending the tournament
			return result, nil
		}
		if err := s.stateService.TransitionTx(ctx, exec, tournament, models.StatusFinished, nil); err != nil {
			return nil, err
		}
		result.Finished = true
		return result, nil
	}

	phase := brackets.PhaseForRound(round+1, tournament.TotalRounds)
	scheduled := s.clock()
	for i := 0; i+1 < len(pool); i += 2 {
		a, b := pool[i], pool[i+1]
		match := &models.Match{
			TournamentID:  tournament.ID,
			PlayerAID:     &a,
			PlayerBID:     &b,
			Round:         round + 1,
			Phase:         phase,
			Status:        models.MatchScheduled,
			ScheduledDate: scheduled,
		}
		if err := s.matchRepo.Create(ctx, exec, match); err != nil {
			return nil, fmt.Errorf("create round %d match: %w", round+1, err)
		}
		result.MatchesCreated++
	}
	// an odd winner waits unpaired for the next propagation

	tournament.CurrentRound = round + 1
	result.NewRound = tournament.CurrentRound
	if err := s.tournamentRepo.Update(ctx, exec, tournament); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *orchestrationService) advanceSwiss(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament) (*AdvanceResult, error) {
	result := &AdvanceResult{NewRound: tournament.CurrentRound}

	if tournament.CurrentRound >= tournament.TotalRounds {
		if err := s.finishInTx(ctx, exec, tournament); err != nil {
			return nil, err
		}
		result.Finished = true
		return result, nil
	}

	nextRound := tournament.CurrentRound + 1
	swissRound, err := s.bracketService.GenerateSwissPairings(ctx, exec, tournament, nextRound)
	if err != nil {
		return nil, err
	}

	scheduled := s.clock()
	for _, p := range swissRound.Pairings {
		match := &models.Match{
			TournamentID:  tournament.ID,
			PlayerAID:     intPtr(p.PlayerAID),
			PlayerBID:     p.PlayerBID,
			Round:         nextRound,
			Phase:         models.PhaseQualification,
			Status:        models.MatchScheduled,
			ScheduledDate: scheduled,
		}
		if p.PlayerBID == nil {
			// bye settles immediately
			now := s.clock()
			match.Status = models.MatchFinished
			match.WinnerID = intPtr(p.PlayerAID)
			match.FinishedAt = &now
		}
		if err := s.matchRepo.Create(ctx, exec, match); err != nil {
			return nil, fmt.Errorf("create swiss round %d match: %w", nextRound, err)
		}
		result.MatchesCreated++
		result.PlayersAdvanced++
		if p.PlayerBID != nil {
			result.PlayersAdvanced++
		}
	}

	tournament.CurrentRound = nextRound
	result.NewRound = nextRound
	if err := s.tournamentRepo.Update(ctx, exec, tournament); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *orchestrationService) advanceRoundRobin(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament) (*AdvanceResult, error) {
	result := &AdvanceResult{NewRound: tournament.CurrentRound}

	if tournament.CurrentRound >= tournament.TotalRounds {
		if err := s.finishInTx(ctx, exec, tournament); err != nil {
			return nil, err
		}
		result.Finished = true
		return result, nil
	}

	// the full schedule exists since generation, only the round pointer moves
	tournament.CurrentRound++
	result.NewRound = tournament.CurrentRound
	if err := s.tournamentRepo.Update(ctx, exec, tournament); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *orchestrationService) FinishTournament(ctx context.Context, tournamentID int) (*models.Tournament, error) {
	unlock := s.locker.Lock(tournamentID)
	defer unlock()

	var tournament *models.Tournament
	err := s.txManager.WithinTx(ctx, func(tx repositories.SQLExecutor) error {
		var errTx error
		tournament, errTx = s.getTournament(ctx, tx, tournamentID)
		if errTx != nil {
			return errTx
		}
		if errTx = s.rankingService.RecomputeTournamentRankings(ctx, tx, tournamentID); errTx != nil {
			return fmt.Errorf("recompute rankings before finish: %w", errTx)
		}
		return s.finishInTx(ctx, tx, tournament)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("tournament finished", "tournament_id", tournamentID)
	s.notifyState(tournament)
	return tournament, nil
}

// finishInTx marks every still active registration eliminated at the current
// round and commits the terminal transition.
func (s *orchestrationService) finishInTx(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament) error {
	confirmed := models.RegistrationConfirmed
	registrations, err := s.registrationRepo.ListByTournament(ctx, exec, tournament.ID, &confirmed)
	if err != nil {
		return fmt.Errorf("list registrations for finish: %w", err)
	}
	for _, reg := range registrations {
		if !reg.IsActive() {
			continue
		}
		if err := s.markEliminated(ctx, exec, tournament.ID, reg.PlayerID, tournament.CurrentRound); err != nil {
			return err
		}
	}
	return s.stateService.TransitionTx(ctx, exec, tournament, models.StatusFinished, nil)
}

func (s *orchestrationService) markEliminated(ctx context.Context, exec repositories.SQLExecutor, tournamentID, playerID, round int) error {
	reg, err := s.registrationRepo.GetByTournamentAndPlayer(ctx, exec, tournamentID, playerID)
	if err != nil {
		if errors.Is(err, repositories.ErrRegistrationNotFound) {
			return nil
		}
		return err
	}
	if reg.EliminatedAt != nil {
		return nil
	}

	now := s.clock()
	reg.Status = models.RegistrationEliminated
	reg.EliminatedAt = &now
	reg.EliminatedRound = &round
	if err := s.registrationRepo.Update(ctx, exec, reg); err != nil {
		return fmt.Errorf("mark player %d eliminated: %w", playerID, err)
	}
	return nil
}

func (s *orchestrationService) CancelTournament(ctx context.Context, tournamentID int, reason *string) (*models.Tournament, error) {
	unlock := s.locker.Lock(tournamentID)
	defer unlock()

	var tournament *models.Tournament
	err := s.txManager.WithinTx(ctx, func(tx repositories.SQLExecutor) error {
		var errTx error
		tournament, errTx = s.getTournament(ctx, tx, tournamentID)
		if errTx != nil {
			return errTx
		}
		cancelled, errCancel := s.matchRepo.CancelScheduledByTournament(ctx, tx, tournamentID)
		if errCancel != nil {
			return fmt.Errorf("cancel scheduled matches: %w", errCancel)
		}
		if cancelled > 0 {
			s.logger.Info("scheduled matches cancelled", "tournament_id", tournamentID, "count", cancelled)
		}
		return s.stateService.TransitionTx(ctx, tx, tournament, models.StatusCancelled, reason)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("tournament cancelled", "tournament_id", tournamentID, "reason", derefString(reason))
	s.notifyState(tournament)
	return tournament, nil
}

func (s *orchestrationService) GetTournamentProgress(ctx context.Context, tournamentID int) (*TournamentProgress, error) {
	var (
		tournament    *models.Tournament
		matches       []*models.Match
		registrations []*models.Registration
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := s.getTournament(gCtx, nil, tournamentID)
		if err != nil {
			return err
		}
		tournament = t
		return nil
	})
	g.Go(func() error {
		m, err := s.matchRepo.ListByTournament(gCtx, nil, tournamentID, repositories.MatchFilter{})
		if err != nil {
			return fmt.Errorf("list matches for progress: %w", err)
		}
		matches = m
		return nil
	})
	g.Go(func() error {
		confirmed := models.RegistrationConfirmed
		r, err := s.registrationRepo.ListByTournament(gCtx, nil, tournamentID, &confirmed)
		if err != nil {
			return fmt.Errorf("list registrations for progress: %w", err)
		}
		registrations = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	progress := &TournamentProgress{
		TournamentID: tournamentID,
		Status:       tournament.Status,
		CurrentRound: tournament.CurrentRound,
		TotalRounds:  tournament.TotalRounds,
		TotalMatches: len(matches),
	}
	for _, m := range matches {
		if m.Status.IsComplete() {
			progress.CompletedMatches++
		}
	}
	for _, reg := range registrations {
		if reg.IsActive() {
			progress.ActivePlayers++
		}
	}

	eliminated := models.RegistrationEliminated
	eliminatedCount, err := s.registrationRepo.CountByTournament(ctx, nil, tournamentID, &eliminated)
	if err != nil {
		return nil, fmt.Errorf("count eliminated registrations: %w", err)
	}
	progress.EliminatedPlayers = eliminatedCount

	if tournament.TotalRounds > 0 {
		progress.ProgressPercentage = float64(tournament.CurrentRound) / float64(tournament.TotalRounds) * 100
	}
	return progress, nil
}

func (s *orchestrationService) getTournament(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Tournament, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, exec, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return tournament, nil
}

func (s *orchestrationService) notifyState(tournament *models.Tournament) {
	if s.notifier == nil || tournament == nil {
		return
	}
	s.notifier.NotifyTournament(tournament.ID, brackets.EventTournamentState, tournament)
}

func (s *orchestrationService) notifyAdvance(tournament *models.Tournament, result *AdvanceResult) {
	if s.notifier == nil || tournament == nil || result == nil {
		return
	}
	s.notifier.NotifyTournament(tournament.ID, brackets.EventRoundAdvanced, result)
}
