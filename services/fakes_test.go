package services

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/deckstorm/tcg-arena/brackets"
	"github.com/deckstorm/tcg-arena/models"
	"github.com/deckstorm/tcg-arena/repositories"
)

// In-memory repository fakes. They copy on read and on write so a service
// mutation only sticks after an explicit Update, mirroring the database.

type fakeTxManager struct{}

func (m *fakeTxManager) WithinTx(ctx context.Context, fn func(tx repositories.SQLExecutor) error) error {
	return fn(nil)
}

type fakeTournamentRepo struct {
	mu     sync.Mutex
	nextID int
	rows   map[int]models.Tournament
}

func newFakeTournamentRepo() *fakeTournamentRepo {
	return &fakeTournamentRepo{nextID: 1, rows: make(map[int]models.Tournament)}
}

func (r *fakeTournamentRepo) Create(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.ID = r.nextID
	r.nextID++
	r.rows[t.ID] = *t
	return nil
}

func (r *fakeTournamentRepo) GetByID(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	out := row
	return &out, nil
}

func (r *fakeTournamentRepo) Update(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[t.ID]; !ok {
		return repositories.ErrTournamentNotFound
	}
	r.rows[t.ID] = *t
	return nil
}

func (r *fakeTournamentRepo) List(ctx context.Context, exec repositories.SQLExecutor, status *models.TournamentStatus, limit, offset int) ([]*models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Tournament, 0, len(r.rows))
	for _, row := range r.rows {
		if status != nil && row.Status != *status {
			continue
		}
		t := row
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeTournamentRepo) Delete(ctx context.Context, exec repositories.SQLExecutor, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return repositories.ErrTournamentNotFound
	}
	delete(r.rows, id)
	return nil
}

type fakeMatchRepo struct {
	mu     sync.Mutex
	nextID int
	rows   map[int]models.Match
}

func newFakeMatchRepo() *fakeMatchRepo {
	return &fakeMatchRepo{nextID: 1, rows: make(map[int]models.Match)}
}

func (r *fakeMatchRepo) Create(ctx context.Context, exec repositories.SQLExecutor, m *models.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.ID = r.nextID
	r.nextID++
	r.rows[m.ID] = *m
	return nil
}

func (r *fakeMatchRepo) GetByID(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	out := row
	return &out, nil
}

func (r *fakeMatchRepo) Update(ctx context.Context, exec repositories.SQLExecutor, m *models.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[m.ID]; !ok {
		return repositories.ErrMatchNotFound
	}
	r.rows[m.ID] = *m
	return nil
}

func (r *fakeMatchRepo) Delete(ctx context.Context, exec repositories.SQLExecutor, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return repositories.ErrMatchNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *fakeMatchRepo) ListByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, filter repositories.MatchFilter) ([]*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Match, 0)
	for _, row := range r.rows {
		if row.TournamentID != tournamentID {
			continue
		}
		if filter.Round != nil && row.Round != *filter.Round {
			continue
		}
		if filter.Status != nil && row.Status != *filter.Status {
			continue
		}
		if filter.PlayerID != nil && !row.Involves(*filter.PlayerID) {
			continue
		}
		m := row
		out = append(out, &m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeMatchRepo) CountUnfinishedInRound(ctx context.Context, exec repositories.SQLExecutor, tournamentID, round int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, row := range r.rows {
		if row.TournamentID != tournamentID || row.Round != round {
			continue
		}
		if row.Status.IsComplete() || row.Status == models.MatchCancelled {
			continue
		}
		count++
	}
	return count, nil
}

func (r *fakeMatchRepo) CancelScheduledByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var cancelled int64
	for id, row := range r.rows {
		if row.TournamentID == tournamentID && row.Status == models.MatchScheduled {
			row.Status = models.MatchCancelled
			r.rows[id] = row
			cancelled++
		}
	}
	return cancelled, nil
}

type fakeRegistrationRepo struct {
	mu     sync.Mutex
	nextID int
	rows   map[int]models.Registration
}

func newFakeRegistrationRepo() *fakeRegistrationRepo {
	return &fakeRegistrationRepo{nextID: 1, rows: make(map[int]models.Registration)}
}

func (r *fakeRegistrationRepo) Create(ctx context.Context, exec repositories.SQLExecutor, reg *models.Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.TournamentID == reg.TournamentID && row.PlayerID == reg.PlayerID {
			return repositories.ErrRegistrationConflict
		}
	}
	reg.ID = r.nextID
	r.nextID++
	r.rows[reg.ID] = *reg
	return nil
}

func (r *fakeRegistrationRepo) GetByID(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, repositories.ErrRegistrationNotFound
	}
	out := row
	return &out, nil
}

func (r *fakeRegistrationRepo) GetByTournamentAndPlayer(ctx context.Context, exec repositories.SQLExecutor, tournamentID, playerID int) (*models.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.TournamentID == tournamentID && row.PlayerID == playerID {
			out := row
			return &out, nil
		}
	}
	return nil, repositories.ErrRegistrationNotFound
}

func (r *fakeRegistrationRepo) ListByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, status *models.RegistrationStatus) ([]*models.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Registration, 0)
	for _, row := range r.rows {
		if row.TournamentID != tournamentID {
			continue
		}
		if status != nil && row.Status != *status {
			continue
		}
		reg := row
		out = append(out, &reg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeRegistrationRepo) CountByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, status *models.RegistrationStatus) (int, error) {
	regs, _ := r.ListByTournament(ctx, exec, tournamentID, status)
	return len(regs), nil
}

func (r *fakeRegistrationRepo) Update(ctx context.Context, exec repositories.SQLExecutor, reg *models.Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[reg.ID]; !ok {
		return repositories.ErrRegistrationNotFound
	}
	r.rows[reg.ID] = *reg
	return nil
}

func (r *fakeRegistrationRepo) Delete(ctx context.Context, exec repositories.SQLExecutor, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return repositories.ErrRegistrationNotFound
	}
	delete(r.rows, id)
	return nil
}

type fakeRankingRepo struct {
	mu     sync.Mutex
	nextID int
	rows   map[int]models.Ranking
	stats  map[int]repositories.PlayerSeedStats
}

func newFakeRankingRepo() *fakeRankingRepo {
	return &fakeRankingRepo{
		nextID: 1,
		rows:   make(map[int]models.Ranking),
		stats:  make(map[int]repositories.PlayerSeedStats),
	}
}

func (r *fakeRankingRepo) Create(ctx context.Context, exec repositories.SQLExecutor, ranking *models.Ranking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ranking.ID = r.nextID
	r.nextID++
	r.rows[ranking.ID] = *ranking
	return nil
}

func (r *fakeRankingRepo) GetByTournamentAndPlayer(ctx context.Context, exec repositories.SQLExecutor, tournamentID, playerID int) (*models.Ranking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.TournamentID == tournamentID && row.PlayerID == playerID {
			out := row
			return &out, nil
		}
	}
	return nil, repositories.ErrRankingNotFound
}

func (r *fakeRankingRepo) Update(ctx context.Context, exec repositories.SQLExecutor, ranking *models.Ranking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[ranking.ID]; !ok {
		return repositories.ErrRankingNotFound
	}
	r.rows[ranking.ID] = *ranking
	return nil
}

func (r *fakeRankingRepo) ListByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) ([]*models.Ranking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Ranking, 0)
	for _, row := range r.rows {
		if row.TournamentID != tournamentID {
			continue
		}
		rk := row
		out = append(out, &rk)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank < out[j].Rank
		}
		return out[i].Points > out[j].Points
	})
	return out, nil
}

func (r *fakeRankingRepo) DeleteByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, row := range r.rows {
		if row.TournamentID == tournamentID {
			delete(r.rows, id)
		}
	}
	return nil
}

func (r *fakeRankingRepo) AggregateByPlayers(ctx context.Context, exec repositories.SQLExecutor, playerIDs []int) (map[int]repositories.PlayerSeedStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int]repositories.PlayerSeedStats)
	for _, pid := range playerIDs {
		if st, ok := r.stats[pid]; ok {
			out[pid] = st
		}
	}
	return out, nil
}

type fakePlayerRepo struct {
	mu   sync.Mutex
	rows map[int]models.Player
}

func newFakePlayerRepo() *fakePlayerRepo {
	return &fakePlayerRepo{rows: make(map[int]models.Player)}
}

func (r *fakePlayerRepo) Create(ctx context.Context, exec repositories.SQLExecutor, p *models.Player) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == 0 {
		p.ID = len(r.rows) + 1
	}
	r.rows[p.ID] = *p
	return nil
}

func (r *fakePlayerRepo) GetByID(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, repositories.ErrPlayerNotFound
	}
	out := row
	return &out, nil
}

func (r *fakePlayerRepo) GetByUserID(ctx context.Context, exec repositories.SQLExecutor, userID int) (*models.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.UserID == userID {
			out := row
			return &out, nil
		}
	}
	return nil, repositories.ErrPlayerNotFound
}

func (r *fakePlayerRepo) Update(ctx context.Context, exec repositories.SQLExecutor, p *models.Player) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[p.ID]; !ok {
		return repositories.ErrPlayerNotFound
	}
	r.rows[p.ID] = *p
	return nil
}

func (r *fakePlayerRepo) ListByIDs(ctx context.Context, exec repositories.SQLExecutor, ids []int) ([]*models.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Player, 0, len(ids))
	for _, id := range ids {
		if row, ok := r.rows[id]; ok {
			p := row
			out = append(out, &p)
		}
	}
	return out, nil
}

type fakeStatisticRepo struct {
	mu     sync.Mutex
	nextID int
	rows   map[int]models.Statistic
}

func newFakeStatisticRepo() *fakeStatisticRepo {
	return &fakeStatisticRepo{nextID: 1, rows: make(map[int]models.Statistic)}
}

func (r *fakeStatisticRepo) Create(ctx context.Context, exec repositories.SQLExecutor, stat *models.Statistic) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stat.ID = r.nextID
	r.nextID++
	r.rows[stat.ID] = *stat
	return nil
}

func (r *fakeStatisticRepo) ListByMatch(ctx context.Context, exec repositories.SQLExecutor, matchID int) ([]*models.Statistic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Statistic, 0)
	for _, row := range r.rows {
		if row.MatchID != matchID {
			continue
		}
		s := row
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeStatisticRepo) ListByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) ([]*models.Statistic, error) {
	// the fake does not track the match -> tournament join
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Statistic, 0, len(r.rows))
	for _, row := range r.rows {
		s := row
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeStatisticRepo) DeleteByMatch(ctx context.Context, exec repositories.SQLExecutor, matchID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, row := range r.rows {
		if row.MatchID == matchID {
			delete(r.rows, id)
		}
	}
	return nil
}

type recordedEvent struct {
	TournamentID int
	EventType    string
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *fakeNotifier) NotifyTournament(tournamentID int, eventType string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{TournamentID: tournamentID, EventType: eventType})
}

func (n *fakeNotifier) eventTypes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, ev := range n.events {
		out[i] = ev.EventType
	}
	return out
}

// testEnv wires the real services over the in-memory fakes, with a frozen
// clock and a deterministic seeder.
type testEnv struct {
	now time.Time

	tournaments   *fakeTournamentRepo
	matches       *fakeMatchRepo
	registrations *fakeRegistrationRepo
	rankings      *fakeRankingRepo
	players       *fakePlayerRepo
	statistics    *fakeStatisticRepo
	notifier      *fakeNotifier

	rankingService       RankingService
	stateService         TournamentStateService
	bracketService       BracketService
	matchService         MatchService
	orchestrationService OrchestrationService
	registrationService  RegistrationService
}

func newTestEnv() *testEnv {
	env := &testEnv{
		now:           time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		tournaments:   newFakeTournamentRepo(),
		matches:       newFakeMatchRepo(),
		registrations: newFakeRegistrationRepo(),
		rankings:      newFakeRankingRepo(),
		players:       newFakePlayerRepo(),
		statistics:    newFakeStatisticRepo(),
		notifier:      &fakeNotifier{},
	}

	clock := Clock(func() time.Time { return env.now })
	txManager := &fakeTxManager{}
	locker := NewTournamentLocker()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	seeder := brackets.NewSeeder(rand.New(rand.NewSource(1)))

	env.rankingService = NewRankingService(env.tournaments, env.matches, env.registrations, env.rankings)
	env.stateService = NewTournamentStateService(txManager, env.tournaments, env.matches, env.registrations, clock)
	env.bracketService = NewBracketService(env.tournaments, env.registrations, env.matches, env.rankings, seeder, clock, logger)
	env.matchService = NewMatchService(txManager, env.tournaments, env.matches, env.registrations, env.players, env.statistics, env.rankingService, env.notifier, locker, clock, logger)
	env.orchestrationService = NewOrchestrationService(txManager, env.tournaments, env.matches, env.registrations, env.bracketService, env.rankingService, env.stateService, env.notifier, locker, clock, logger)
	env.registrationService = NewRegistrationService(txManager, env.tournaments, env.registrations, env.players, clock, logger)
	env.matchService.SetRoundAdvancer(env.orchestrationService)

	return env
}

// seedTournament stores a tournament plus confirmed, checked-in players 1..n
// and returns the tournament.
func (env *testEnv) seedTournament(t models.Tournament, playerCount int) *models.Tournament {
	ctx := context.Background()
	if t.Name == "" {
		t.Name = "Test Cup"
	}
	if t.StartDate.IsZero() {
		t.StartDate = env.now.Add(24 * time.Hour)
	}
	if err := env.tournaments.Create(ctx, nil, &t); err != nil {
		panic(err)
	}
	for i := 1; i <= playerCount; i++ {
		player := models.Player{ID: i, UserID: i, DisplayName: "player", CreatedAt: env.now}
		if err := env.players.Create(ctx, nil, &player); err != nil {
			panic(err)
		}
		checkedIn := env.now
		reg := models.Registration{
			TournamentID: t.ID,
			PlayerID:     i,
			Status:       models.RegistrationConfirmed,
			CheckedIn:    true,
			CheckedInAt:  &checkedIn,
			RegisteredAt: env.now,
		}
		if err := env.registrations.Create(ctx, nil, &reg); err != nil {
			panic(err)
		}
	}
	return &t
}
