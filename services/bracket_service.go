package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/deckstorm/tcg-arena/brackets"
	"github.com/deckstorm/tcg-arena/models"
	"github.com/deckstorm/tcg-arena/repositories"
	"golang.org/x/sync/errgroup"
)

type BracketService interface {
	// GenerateBracket seeds the eligible roster, runs the format's
	// generator, and persists the produced matches under the caller's
	// transaction. TotalRounds and CurrentRound are set on the tournament
	// struct; persisting the tournament row stays with the caller.
	GenerateBracket(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, method brackets.SeedingMethod) (*brackets.Plan, error)
	// GetBracket builds the round indexed read projection.
	GetBracket(ctx context.Context, tournamentID int) (*brackets.BracketStructure, error)
	// GenerateSwissPairings computes (does not persist) the pairings for a
	// swiss round from current standings and match history.
	GenerateSwissPairings(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, round int) (*brackets.SwissRound, error)
}

type bracketService struct {
	tournamentRepo   repositories.TournamentRepository
	registrationRepo repositories.RegistrationRepository
	matchRepo        repositories.MatchRepository
	rankingRepo      repositories.RankingRepository
	seeder           *brackets.Seeder
	clock            Clock
	logger           *slog.Logger
}

func NewBracketService(
	tournamentRepo repositories.TournamentRepository,
	registrationRepo repositories.RegistrationRepository,
	matchRepo repositories.MatchRepository,
	rankingRepo repositories.RankingRepository,
	seeder *brackets.Seeder,
	clock Clock,
	logger *slog.Logger,
) BracketService {
	return &bracketService{
		tournamentRepo:   tournamentRepo,
		registrationRepo: registrationRepo,
		matchRepo:        matchRepo,
		rankingRepo:      rankingRepo,
		seeder:           seeder,
		clock:            clock,
		logger:           logger,
	}
}

func (s *bracketService) GenerateBracket(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, method brackets.SeedingMethod) (*brackets.Plan, error) {
	playerIDs, err := s.eligiblePlayerIDs(ctx, exec, tournament)
	if err != nil {
		return nil, err
	}
	minPlayers := tournament.MinPlayersOrDefault()
	if len(playerIDs) < minPlayers {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrInsufficientPlayers, minPlayers, len(playerIDs))
	}

	seeded, err := s.seedPlayers(ctx, exec, playerIDs, method)
	if err != nil {
		return nil, err
	}

	generator, err := brackets.GeneratorFor(tournament.Type)
	if err != nil {
		if errors.Is(err, brackets.ErrFormatUnsupported) {
			return nil, fmt.Errorf("%w: %s", ErrFormatUnsupported, tournament.Type)
		}
		return nil, err
	}

	ordered := make([]int, len(seeded))
	for i, sp := range seeded {
		ordered[i] = sp.PlayerID
	}

	now := s.clock()
	plan, err := generator.Generate(ctx, brackets.GenerateParams{
		Tournament:      tournament,
		SeededPlayerIDs: ordered,
		ScheduledDate:   tournament.StartDate,
		Now:             now,
	})
	if err != nil {
		return nil, fmt.Errorf("generate %s bracket for tournament %d: %w", generator.Name(), tournament.ID, err)
	}

	for _, match := range plan.Matches {
		if err := s.matchRepo.Create(ctx, exec, match); err != nil {
			return nil, fmt.Errorf("persist generated match: %w", err)
		}
	}

	tournament.TotalRounds = plan.TotalRounds
	tournament.CurrentRound = 1

	s.logger.Info("bracket generated",
		"tournament_id", tournament.ID,
		"format", tournament.Type,
		"players", len(playerIDs),
		"total_rounds", plan.TotalRounds,
		"matches", len(plan.Matches))
	return plan, nil
}

func (s *bracketService) seedPlayers(ctx context.Context, exec repositories.SQLExecutor, playerIDs []int, method brackets.SeedingMethod) ([]brackets.SeededPlayer, error) {
	switch method {
	case brackets.SeedingRandom, brackets.SeedingRanking, brackets.SeedingElo, brackets.SeedingManual:
	default:
		return nil, fmt.Errorf("%w: %q", ErrSeedingMethodUnknown, method)
	}

	var scores map[int]float64
	if method == brackets.SeedingRanking || method == brackets.SeedingElo {
		stats, err := s.rankingRepo.AggregateByPlayers(ctx, exec, playerIDs)
		if err != nil {
			return nil, fmt.Errorf("load historical rankings for seeding: %w", err)
		}
		scores = make(map[int]float64, len(stats))
		for pid, st := range stats {
			scores[pid] = brackets.SeedScore(st.AvgPoints, st.AvgWinRate, st.TournamentCount)
		}
	}

	seeded := s.seeder.Seed(playerIDs, method, scores)
	if err := brackets.ValidateSeeding(seeded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	return seeded, nil
}

func (s *bracketService) GetBracket(ctx context.Context, tournamentID int) (*brackets.BracketStructure, error) {
	var (
		tournament *models.Tournament
		matches    []*models.Match
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := s.tournamentRepo.GetByID(gCtx, nil, tournamentID)
		if err != nil {
			if errors.Is(err, repositories.ErrTournamentNotFound) {
				return ErrTournamentNotFound
			}
			return err
		}
		tournament = t
		return nil
	})
	g.Go(func() error {
		m, err := s.matchRepo.ListByTournament(gCtx, nil, tournamentID, repositories.MatchFilter{})
		if err != nil {
			return fmt.Errorf("list matches for bracket: %w", err)
		}
		matches = m
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return brackets.BuildStructure(tournament, matches), nil
}

func (s *bracketService) GenerateSwissPairings(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, round int) (*brackets.SwissRound, error) {
	if tournament.Type != models.TypeSwissSystem {
		return nil, fmt.Errorf("%w: swiss pairings for a %s tournament", ErrFormatUnsupported, tournament.Type)
	}

	playerIDs, err := s.eligiblePlayerIDs(ctx, exec, tournament)
	if err != nil {
		return nil, err
	}
	if len(playerIDs) < 2 {
		return nil, fmt.Errorf("%w: need 2, have %d", ErrInsufficientPlayers, len(playerIDs))
	}

	var ordered []int
	if round <= 1 {
		seeded, errSeed := s.seedPlayers(ctx, exec, playerIDs, brackets.SeedingRanking)
		if errSeed != nil {
			return nil, errSeed
		}
		ordered = make([]int, len(seeded))
		for i, sp := range seeded {
			ordered[i] = sp.PlayerID
		}
	} else {
		ordered, err = s.orderByStandings(ctx, exec, tournament.ID, playerIDs)
		if err != nil {
			return nil, err
		}
	}

	hasPlayed, err := s.playedLookup(ctx, exec, tournament.ID)
	if err != nil {
		return nil, err
	}

	return &brackets.SwissRound{
		Round:    round,
		Pairings: brackets.PairSwissRound(ordered, hasPlayed),
	}, nil
}

func (s *bracketService) orderByStandings(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, playerIDs []int) ([]int, error) {
	rankings, err := s.rankingRepo.ListByTournament(ctx, exec, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("list rankings for pairing: %w", err)
	}

	byPlayer := make(map[int]*models.Ranking, len(rankings))
	for _, r := range rankings {
		byPlayer[r.PlayerID] = r
	}

	ordered := make([]int, len(playerIDs))
	copy(ordered, playerIDs)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := byPlayer[ordered[i]], byPlayer[ordered[j]]
		if a == nil || b == nil {
			return b == nil && a != nil
		}
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		return a.WinRate > b.WinRate
	})
	return ordered, nil
}

func (s *bracketService) playedLookup(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) (func(a, b int) bool, error) {
	matches, err := s.matchRepo.ListByTournament(ctx, exec, tournamentID, repositories.MatchFilter{})
	if err != nil {
		return nil, fmt.Errorf("list matches for pairing history: %w", err)
	}

	played := make(map[[2]int]bool, len(matches))
	for _, m := range matches {
		if m.PlayerAID == nil || m.PlayerBID == nil || m.Status == models.MatchCancelled {
			continue
		}
		played[pairKey(*m.PlayerAID, *m.PlayerBID)] = true
	}
	return func(a, b int) bool {
		return played[pairKey(a, b)]
	}, nil
}

func pairKey(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}

// eligiblePlayerIDs возвращает подтверждённых, не выбывших игроков; при
// обязательном чек-ине учитываются только отметившиеся.
func (s *bracketService) eligiblePlayerIDs(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament) ([]int, error) {
	confirmed := models.RegistrationConfirmed
	registrations, err := s.registrationRepo.ListByTournament(ctx, exec, tournament.ID, &confirmed)
	if err != nil {
		return nil, fmt.Errorf("list registrations for tournament %d: %w", tournament.ID, err)
	}

	ids := make([]int, 0, len(registrations))
	for _, reg := range registrations {
		if !reg.IsActive() {
			continue
		}
		if tournament.CheckInRequired && !reg.CheckedIn {
			continue
		}
		ids = append(ids, reg.PlayerID)
	}
	return ids, nil
}
