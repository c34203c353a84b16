package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckstorm/tcg-arena/models"
)

func (env *testEnv) addFinishedMatch(tournamentID, round int, playerA, playerB, winner *int, scoreA, scoreB int) *models.Match {
	finished := env.now
	match := models.Match{
		TournamentID: tournamentID,
		PlayerAID:    playerA,
		PlayerBID:    playerB,
		WinnerID:     winner,
		Round:        round,
		Phase:        models.PhaseQualification,
		Status:       models.MatchFinished,
		PlayerAScore: scoreA,
		PlayerBScore: scoreB,
		FinishedAt:   &finished,
	}
	if err := env.matches.Create(context.Background(), nil, &match); err != nil {
		panic(err)
	}
	return &match
}

func TestApplyMatchResultBumpsWinnerAndLoser(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	tournament := env.seedTournament(models.Tournament{
		Type:   models.TypeSwissSystem,
		Status: models.StatusInProgress,
	}, 2)
	match := env.addFinishedMatch(tournament.ID, 1, intPtr(1), intPtr(2), intPtr(1), 2, 0)

	ctx := context.Background()
	require.NoError(t, env.rankingService.ApplyMatchResult(ctx, nil, match))

	winner, err := env.rankings.GetByTournamentAndPlayer(ctx, nil, tournament.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, winner.Points)
	assert.Equal(t, 1, winner.Wins)
	assert.Equal(t, 0, winner.Losses)
	assert.InDelta(t, 100.0, winner.WinRate, 1e-9)

	loser, err := env.rankings.GetByTournamentAndPlayer(ctx, nil, tournament.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, loser.Points)
	assert.Equal(t, 1, loser.Losses)
	assert.InDelta(t, 0.0, loser.WinRate, 1e-9)
}

func TestApplyMatchResultDrawIsNoOp(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	tournament := env.seedTournament(models.Tournament{
		Type:   models.TypeSwissSystem,
		Status: models.StatusInProgress,
	}, 2)
	match := env.addFinishedMatch(tournament.ID, 1, intPtr(1), intPtr(2), nil, 1, 1)

	ctx := context.Background()
	require.NoError(t, env.rankingService.ApplyMatchResult(ctx, nil, match))

	rows, err := env.rankings.ListByTournament(ctx, nil, tournament.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestApplyMatchResultByeCreditsWinnerOnly(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	tournament := env.seedTournament(models.Tournament{
		Type:   models.TypeSingleElimination,
		Status: models.StatusInProgress,
	}, 1)
	match := env.addFinishedMatch(tournament.ID, 1, intPtr(1), nil, intPtr(1), 0, 0)

	ctx := context.Background()
	require.NoError(t, env.rankingService.ApplyMatchResult(ctx, nil, match))

	rows, err := env.rankings.ListByTournament(ctx, nil, tournament.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].PlayerID)
	assert.Equal(t, 1, rows[0].Wins)
}

func TestRecomputeTournamentRankingsSwissPoints(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	tournament := env.seedTournament(models.Tournament{
		Type:   models.TypeSwissSystem,
		Status: models.StatusInProgress,
	}, 5)

	// round 1: player 1 beats 2, players 3 and 4 draw, player 5 never plays
	env.addFinishedMatch(tournament.ID, 1, intPtr(1), intPtr(2), intPtr(1), 2, 1)
	env.addFinishedMatch(tournament.ID, 1, intPtr(3), intPtr(4), nil, 1, 1)

	ctx := context.Background()
	require.NoError(t, env.rankingService.RecomputeTournamentRankings(ctx, nil, tournament.ID))

	rows, err := env.rankings.ListByTournament(ctx, nil, tournament.ID)
	require.NoError(t, err)
	require.Len(t, rows, 5)

	byPlayer := make(map[int]*models.Ranking, len(rows))
	for _, row := range rows {
		byPlayer[row.PlayerID] = row
	}

	assert.Equal(t, 1, byPlayer[1].Rank)
	assert.Equal(t, 3, byPlayer[1].Points)
	assert.Equal(t, 2, byPlayer[3].Rank)
	assert.Equal(t, 1, byPlayer[3].Points)
	assert.Equal(t, 1, byPlayer[3].Draws)
	assert.Equal(t, 3, byPlayer[4].Rank)
	assert.Equal(t, 1, byPlayer[4].Points)
	// the loser and the idle player carry zero points, ordered by id
	assert.Equal(t, 4, byPlayer[2].Rank)
	assert.Equal(t, 5, byPlayer[5].Rank)
	assert.Equal(t, 0, byPlayer[5].GamesPlayed())
}

func TestRecomputeTournamentRankingsIsIdempotent(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	tournament := env.seedTournament(models.Tournament{
		Type:   models.TypeSwissSystem,
		Status: models.StatusInProgress,
	}, 4)
	env.addFinishedMatch(tournament.ID, 1, intPtr(1), intPtr(2), intPtr(1), 2, 0)
	env.addFinishedMatch(tournament.ID, 1, intPtr(3), intPtr(4), intPtr(4), 0, 2)

	ctx := context.Background()
	require.NoError(t, env.rankingService.RecomputeTournamentRankings(ctx, nil, tournament.ID))
	first, err := env.rankings.ListByTournament(ctx, nil, tournament.ID)
	require.NoError(t, err)

	require.NoError(t, env.rankingService.RecomputeTournamentRankings(ctx, nil, tournament.ID))
	second, err := env.rankings.ListByTournament(ctx, nil, tournament.ID)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, *first[i], *second[i])
	}
}

func TestRecomputeUsesKnockoutPointsTable(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	tournament := env.seedTournament(models.Tournament{
		Type:   models.TypeSingleElimination,
		Status: models.StatusInProgress,
	}, 2)
	env.addFinishedMatch(tournament.ID, 1, intPtr(1), intPtr(2), intPtr(1), 2, 1)

	ctx := context.Background()
	require.NoError(t, env.rankingService.RecomputeTournamentRankings(ctx, nil, tournament.ID))

	winner, err := env.rankings.GetByTournamentAndPlayer(ctx, nil, tournament.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, winner.Points)
	assert.Equal(t, 1, winner.Rank)
}

func TestCalculateTieBreakers(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	tournament := env.seedTournament(models.Tournament{
		Type:   models.TypeSwissSystem,
		Status: models.StatusInProgress,
	}, 4)

	env.addFinishedMatch(tournament.ID, 1, intPtr(1), intPtr(2), intPtr(1), 2, 1)
	env.addFinishedMatch(tournament.ID, 1, intPtr(3), intPtr(4), intPtr(3), 2, 0)
	env.addFinishedMatch(tournament.ID, 2, intPtr(1), intPtr(3), intPtr(1), 2, 1)

	result, err := env.rankingService.CalculateTieBreakers(context.Background(), tournament.ID, []int{1, 4})
	require.NoError(t, err)

	// player 1 faced player 2 (0 of 1 wins) and player 3 (1 of 2 wins)
	p1 := result[1]
	assert.InDelta(t, 0.25, p1.OpponentWinRate, 1e-9)
	// 4 own game points out of 6 contested across both matches
	assert.InDelta(t, 4.0/6.0, p1.GameWinRate, 1e-9)

	// player 4 faced only player 3, who won 1 of 2
	p4 := result[4]
	assert.InDelta(t, 0.5, p4.OpponentWinRate, 1e-9)
	assert.InDelta(t, 0.0, p4.GameWinRate, 1e-9)
}

func TestRecomputeUnknownTournament(t *testing.T) {
	t.Parallel()
	env := newTestEnv()

	err := env.rankingService.RecomputeTournamentRankings(context.Background(), nil, 42)
	assert.ErrorIs(t, err, ErrTournamentNotFound)
}
