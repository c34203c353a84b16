package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckstorm/tcg-arena/brackets"
	"github.com/deckstorm/tcg-arena/models"
	"github.com/deckstorm/tcg-arena/repositories"
)

// playMatch starts a scheduled match and reports the given result.
func (env *testEnv) playMatch(t *testing.T, matchID, scoreA, scoreB int) *models.Match {
	t.Helper()
	ctx := context.Background()
	_, err := env.matchService.Start(ctx, matchID, nil)
	require.NoError(t, err)
	settled, err := env.matchService.ReportScore(ctx, ReportScoreInput{
		MatchID:      matchID,
		PlayerAScore: scoreA,
		PlayerBScore: scoreB,
	})
	require.NoError(t, err)
	return settled
}

func (env *testEnv) roundMatches(t *testing.T, tournamentID, round int) []*models.Match {
	t.Helper()
	matches, err := env.matches.ListByTournament(context.Background(), nil, tournamentID, repositories.MatchFilter{Round: &round})
	require.NoError(t, err)
	return matches
}

func TestStartTournamentSingleElimination(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	tournament := env.seedTournament(models.Tournament{
		Type:       models.TypeSingleElimination,
		Status:     models.StatusRegistrationClosed,
		MinPlayers: 2,
	}, 8)

	ctx := context.Background()
	started, err := env.orchestrationService.StartTournament(ctx, tournament.ID, StartTournamentOptions{
		SeedingMethod: brackets.SeedingManual,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, started.Status)
	assert.Equal(t, 1, started.CurrentRound)
	assert.Equal(t, 3, started.TotalRounds)

	firstRound := env.roundMatches(t, tournament.ID, 1)
	require.Len(t, firstRound, 4)
	// seeds one and eight meet at the top of the bracket
	assert.Equal(t, 1, *firstRound[0].PlayerAID)
	assert.Equal(t, 8, *firstRound[0].PlayerBID)

	rows, err := env.rankings.ListByTournament(ctx, nil, tournament.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 8)

	assert.Contains(t, env.notifier.eventTypes(), brackets.EventTournamentState)
}

func TestStartTournamentRejectsOverCapacity(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	maxPlayers := 4
	tournament := env.seedTournament(models.Tournament{
		Type:       models.TypeSingleElimination,
		Status:     models.StatusRegistrationClosed,
		MinPlayers: 2,
		MaxPlayers: &maxPlayers,
	}, 5)

	_, err := env.orchestrationService.StartTournament(context.Background(), tournament.ID, StartTournamentOptions{
		SeedingMethod: brackets.SeedingManual,
	})
	assert.ErrorIs(t, err, ErrTournamentFull)
}

func TestStartTournamentRejectsDoubleElimination(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	tournament := env.seedTournament(models.Tournament{
		Type:       models.TypeDoubleElimination,
		Status:     models.StatusRegistrationClosed,
		MinPlayers: 2,
	}, 4)

	_, err := env.orchestrationService.StartTournament(context.Background(), tournament.ID, StartTournamentOptions{
		SeedingMethod: brackets.SeedingManual,
	})
	assert.ErrorIs(t, err, ErrFormatUnsupported)
}

func TestStartTournamentRejectsUnknownSeedingMethod(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	tournament := env.seedTournament(models.Tournament{
		Type:       models.TypeSingleElimination,
		Status:     models.StatusRegistrationClosed,
		MinPlayers: 2,
	}, 4)

	_, err := env.orchestrationService.StartTournament(context.Background(), tournament.ID, StartTournamentOptions{
		SeedingMethod: brackets.SeedingMethod("bracket-order"),
	})
	assert.ErrorIs(t, err, ErrSeedingMethodUnknown)
}

func TestSingleEliminationPlaysThroughToFinish(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	tournament := env.seedTournament(models.Tournament{
		Type:       models.TypeSingleElimination,
		Status:     models.StatusRegistrationClosed,
		MinPlayers: 2,
	}, 8)

	ctx := context.Background()
	_, err := env.orchestrationService.StartTournament(ctx, tournament.ID, StartTournamentOptions{
		SeedingMethod: brackets.SeedingManual,
	})
	require.NoError(t, err)

	// quarter finals: every player A advances
	for _, m := range env.roundMatches(t, tournament.ID, 1) {
		env.playMatch(t, m.ID, 2, 0)
	}

	stored, err := env.tournaments.GetByID(ctx, nil, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.CurrentRound)

	semis := env.roundMatches(t, tournament.ID, 2)
	require.Len(t, semis, 2)
	assert.Equal(t, models.PhaseSemiFinal, semis[0].Phase)
	for _, m := range semis {
		env.playMatch(t, m.ID, 2, 1)
	}

	final := env.roundMatches(t, tournament.ID, 3)
	require.Len(t, final, 1)
	assert.Equal(t, models.PhaseFinal, final[0].Phase)
	champion := *final[0].PlayerAID
	env.playMatch(t, final[0].ID, 2, 0)

	stored, err = env.tournaments.GetByID(ctx, nil, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, stored.Status)
	assert.True(t, stored.IsFinished)

	// quarter final losers carry their elimination round
	loser, err := env.registrations.GetByTournamentAndPlayer(ctx, nil, tournament.ID, 8)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationEliminated, loser.Status)
	require.NotNil(t, loser.EliminatedRound)
	assert.Equal(t, 1, *loser.EliminatedRound)

	// the champion is the one registration left standing
	winnerReg, err := env.registrations.GetByTournamentAndPlayer(ctx, nil, tournament.ID, champion)
	require.NoError(t, err)
	assert.True(t, winnerReg.IsActive())

	top, err := env.rankings.GetByTournamentAndPlayer(ctx, nil, tournament.ID, champion)
	require.NoError(t, err)
	assert.Equal(t, 1, top.Rank)
	assert.Equal(t, 3, top.Wins)

	assert.Contains(t, env.notifier.eventTypes(), brackets.EventRoundAdvanced)
}

func TestSingleEliminationCarriesUnpairedWinnerForward(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	tournament := env.seedTournament(models.Tournament{
		Type:       models.TypeSingleElimination,
		Status:     models.StatusRegistrationClosed,
		MinPlayers: 2,
	}, 6)

	ctx := context.Background()
	started, err := env.orchestrationService.StartTournament(ctx, tournament.ID, StartTournamentOptions{
		SeedingMethod: brackets.SeedingManual,
	})
	require.NoError(t, err)
	require.Equal(t, 3, started.TotalRounds)
	require.Len(t, env.roundMatches(t, tournament.ID, 1), 3)

	// three round one winners: two meet in round two, one waits unpaired
	for _, m := range env.roundMatches(t, tournament.ID, 1) {
		env.playMatch(t, m.ID, 2, 0)
	}
	secondRound := env.roundMatches(t, tournament.ID, 2)
	require.Len(t, secondRound, 1)
	semiWinner := env.playMatch(t, secondRound[0].ID, 2, 0)

	// two players are still undefeated, the tournament must not end here
	stored, err := env.tournaments.GetByID(ctx, nil, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, stored.Status)
	assert.Equal(t, 3, stored.CurrentRound)

	// the waiting winner meets the round two winner in the final
	final := env.roundMatches(t, tournament.ID, 3)
	require.Len(t, final, 1)
	assert.Equal(t, models.PhaseFinal, final[0].Phase)
	finalists := map[int]bool{*final[0].PlayerAID: true, *final[0].PlayerBID: true}
	assert.True(t, finalists[*semiWinner.WinnerID])

	env.playMatch(t, final[0].ID, 2, 0)

	stored, err = env.tournaments.GetByID(ctx, nil, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, stored.Status)

	activeLeft := 0
	regs, err := env.registrations.ListByTournament(ctx, nil, tournament.ID, nil)
	require.NoError(t, err)
	for _, reg := range regs {
		if reg.IsActive() {
			activeLeft++
		}
	}
	assert.Equal(t, 1, activeLeft)
}

func TestAdvanceToNextRoundRequiresCompleteRound(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	tournament := env.seedTournament(models.Tournament{
		Type:       models.TypeSingleElimination,
		Status:     models.StatusRegistrationClosed,
		MinPlayers: 2,
	}, 4)

	ctx := context.Background()
	_, err := env.orchestrationService.StartTournament(ctx, tournament.ID, StartTournamentOptions{
		SeedingMethod: brackets.SeedingManual,
	})
	require.NoError(t, err)

	_, err = env.orchestrationService.AdvanceToNextRound(ctx, tournament.ID)
	assert.ErrorIs(t, err, ErrRoundNotComplete)
}

func TestAdvanceToNextRoundRejectsExistingNextRound(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	tournament := env.seedTournament(models.Tournament{
		Type:       models.TypeSwissSystem,
		Status:     models.StatusRegistrationClosed,
		MinPlayers: 2,
	}, 4)

	ctx := context.Background()
	_, err := env.orchestrationService.StartTournament(ctx, tournament.ID, StartTournamentOptions{
		SeedingMethod: brackets.SeedingManual,
	})
	require.NoError(t, err)

	for _, m := range env.roundMatches(t, tournament.ID, 1) {
		env.playMatch(t, m.ID, 2, 0)
	}
	// a stray next round blocks the explicit advance
	env.addScheduledMatch(tournament.ID, 2, intPtr(1), intPtr(3))

	_, err = env.orchestrationService.AdvanceToNextRound(ctx, tournament.ID)
	assert.ErrorIs(t, err, ErrNextRoundExists)
}

func TestAdvanceToNextRoundRequiresInProgress(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	tournament := env.seedTournament(models.Tournament{
		Type:   models.TypeSwissSystem,
		Status: models.StatusRegistrationOpen,
	}, 0)

	_, err := env.orchestrationService.AdvanceToNextRound(context.Background(), tournament.ID)
	assert.ErrorIs(t, err, ErrTournamentNotInProgress)
}

func TestRoundRobinAdvanceMovesPointerOnly(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	tournament := env.seedTournament(models.Tournament{
		Type:       models.TypeRoundRobin,
		Status:     models.StatusRegistrationClosed,
		MinPlayers: 2,
	}, 4)

	ctx := context.Background()
	started, err := env.orchestrationService.StartTournament(ctx, tournament.ID, StartTournamentOptions{
		SeedingMethod: brackets.SeedingManual,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, started.TotalRounds)

	all, err := env.matches.ListByTournament(ctx, nil, tournament.ID, repositories.MatchFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 6)

	for _, m := range env.roundMatches(t, tournament.ID, 1) {
		env.playMatch(t, m.ID, 2, 0)
	}

	result, err := env.orchestrationService.AdvanceToNextRound(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.NewRound)
	assert.Zero(t, result.MatchesCreated)
	assert.False(t, result.Finished)
}

func TestSwissAdvanceCreatesSecondRoundWithoutRematches(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	tournament := env.seedTournament(models.Tournament{
		Type:       models.TypeSwissSystem,
		Status:     models.StatusRegistrationClosed,
		MinPlayers: 2,
	}, 5)

	ctx := context.Background()
	_, err := env.orchestrationService.StartTournament(ctx, tournament.ID, StartTournamentOptions{
		SeedingMethod: brackets.SeedingManual,
	})
	require.NoError(t, err)

	firstRound := env.roundMatches(t, tournament.ID, 1)
	require.Len(t, firstRound, 3)
	for _, m := range firstRound {
		if m.Status == models.MatchFinished {
			continue // bye
		}
		env.playMatch(t, m.ID, 2, 0)
	}

	result, err := env.orchestrationService.AdvanceToNextRound(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.NewRound)
	assert.Equal(t, 3, result.MatchesCreated)

	secondRound := env.roundMatches(t, tournament.ID, 2)
	require.Len(t, secondRound, 3)

	played := make(map[[2]int]bool)
	for _, m := range firstRound {
		if m.PlayerAID != nil && m.PlayerBID != nil {
			played[pairKey(*m.PlayerAID, *m.PlayerBID)] = true
		}
	}
	byes := 0
	for _, m := range secondRound {
		if m.PlayerBID == nil {
			byes++
			require.NotNil(t, m.WinnerID)
			continue
		}
		assert.False(t, played[pairKey(*m.PlayerAID, *m.PlayerBID)],
			"players %d and %d already met", *m.PlayerAID, *m.PlayerBID)
	}
	assert.Equal(t, 1, byes)
}

func TestSwissFinishesAfterLastRound(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	tournament := env.seedTournament(models.Tournament{
		Type:       models.TypeSwissSystem,
		Status:     models.StatusRegistrationClosed,
		MinPlayers: 2,
	}, 4)

	ctx := context.Background()
	started, err := env.orchestrationService.StartTournament(ctx, tournament.ID, StartTournamentOptions{
		SeedingMethod: brackets.SeedingManual,
	})
	require.NoError(t, err)
	require.Equal(t, 2, started.TotalRounds)

	for round := 1; round <= started.TotalRounds; round++ {
		for _, m := range env.roundMatches(t, tournament.ID, round) {
			if m.Status == models.MatchFinished {
				continue
			}
			env.playMatch(t, m.ID, 2, 0)
		}
		result, errAdvance := env.orchestrationService.AdvanceToNextRound(ctx, tournament.ID)
		require.NoError(t, errAdvance)
		if round == started.TotalRounds {
			assert.True(t, result.Finished)
		}
	}

	stored, err := env.tournaments.GetByID(ctx, nil, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, stored.Status)
}

func TestFinishTournamentEliminatesRemainingPlayers(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	tournament := env.seedTournament(models.Tournament{
		Type:         models.TypeRoundRobin,
		Status:       models.StatusInProgress,
		MinPlayers:   2,
		CurrentRound: 3,
		TotalRounds:  3,
	}, 4)

	ctx := context.Background()
	finished, err := env.orchestrationService.FinishTournament(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, finished.Status)

	eliminated := models.RegistrationEliminated
	count, err := env.registrations.CountByTournament(ctx, nil, tournament.ID, &eliminated)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestCancelTournamentCancelsScheduledMatches(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	tournament := env.seedTournament(models.Tournament{
		Type:   models.TypeRoundRobin,
		Status: models.StatusInProgress,
	}, 4)
	env.addScheduledMatch(tournament.ID, 1, intPtr(1), intPtr(2))
	env.addScheduledMatch(tournament.ID, 1, intPtr(3), intPtr(4))

	ctx := context.Background()
	reason := "power outage at the venue"
	cancelled, err := env.orchestrationService.CancelTournament(ctx, tournament.ID, &reason)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.AdditionalInfo)
	assert.Contains(t, *cancelled.AdditionalInfo, "power outage at the venue")

	remaining, err := env.matches.ListByTournament(ctx, nil, tournament.ID, repositories.MatchFilter{})
	require.NoError(t, err)
	for _, m := range remaining {
		assert.Equal(t, models.MatchCancelled, m.Status)
	}
}

func TestGetTournamentProgress(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	tournament := env.seedTournament(models.Tournament{
		Type:       models.TypeSingleElimination,
		Status:     models.StatusRegistrationClosed,
		MinPlayers: 2,
	}, 4)

	ctx := context.Background()
	_, err := env.orchestrationService.StartTournament(ctx, tournament.ID, StartTournamentOptions{
		SeedingMethod: brackets.SeedingManual,
	})
	require.NoError(t, err)

	semis := env.roundMatches(t, tournament.ID, 1)
	require.Len(t, semis, 2)
	env.playMatch(t, semis[0].ID, 2, 0)

	progress, err := env.orchestrationService.GetTournamentProgress(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, progress.Status)
	assert.Equal(t, 1, progress.CurrentRound)
	assert.Equal(t, 2, progress.TotalRounds)
	assert.Equal(t, 2, progress.TotalMatches)
	assert.Equal(t, 1, progress.CompletedMatches)
	// losers are only eliminated once the round advances
	assert.Equal(t, 4, progress.ActivePlayers)
	assert.Zero(t, progress.EliminatedPlayers)
	assert.InDelta(t, 50.0, progress.ProgressPercentage, 1e-9)
}

func TestAutoAdvanceIgnoresNonInProgressTournament(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	tournament := env.seedTournament(models.Tournament{
		Type:   models.TypeSingleElimination,
		Status: models.StatusCancelled,
	}, 0)

	err := env.orchestrationService.AutoAdvance(context.Background(), nil, tournament)
	assert.NoError(t, err)
}
