package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckstorm/tcg-arena/models"
)

func TestTransitionRejectsUnknownEdge(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	tournament := env.seedTournament(models.Tournament{
		Type:   models.TypeSingleElimination,
		Status: models.StatusDraft,
	}, 0)

	_, err := env.stateService.Transition(context.Background(), tournament.ID, models.StatusInProgress, nil)
	require.ErrorIs(t, err, ErrInvalidStatusTransition)

	stored, err := env.tournaments.GetByID(context.Background(), nil, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, stored.Status)
}

func TestTransitionOpenRegistrationPreconditions(t *testing.T) {
	t.Parallel()
	env := newTestEnv()

	pastDeadline := env.now.Add(-time.Hour)
	tournament := env.seedTournament(models.Tournament{
		Type:                 models.TypeRoundRobin,
		Status:               models.StatusDraft,
		MinPlayers:           4,
		RegistrationDeadline: &pastDeadline,
	}, 0)

	v, err := env.stateService.ValidateTransition(context.Background(), tournament.ID, models.StatusRegistrationOpen)
	require.NoError(t, err)
	assert.False(t, v.CanTransition)
	assert.Contains(t, v.Errors, "registration deadline is in the past")

	_, err = env.stateService.Transition(context.Background(), tournament.ID, models.StatusRegistrationOpen, nil)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	futureDeadline := env.now.Add(48 * time.Hour)
	stored, err := env.tournaments.GetByID(context.Background(), nil, tournament.ID)
	require.NoError(t, err)
	stored.RegistrationDeadline = &futureDeadline
	require.NoError(t, env.tournaments.Update(context.Background(), nil, stored))

	updated, err := env.stateService.Transition(context.Background(), tournament.ID, models.StatusRegistrationOpen, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRegistrationOpen, updated.Status)
}

func TestTransitionStartRequiresEnoughEligiblePlayers(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	tournament := env.seedTournament(models.Tournament{
		Type:       models.TypeSingleElimination,
		Status:     models.StatusRegistrationClosed,
		MinPlayers: 4,
	}, 3)

	_, err := env.stateService.Transition(context.Background(), tournament.ID, models.StatusInProgress, nil)
	require.ErrorIs(t, err, ErrInvalidStatusTransition)
	assert.ErrorContains(t, err, "need at least 4 eligible players, have 3")
}

func TestTransitionStartCheckInGate(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	tournament := env.seedTournament(models.Tournament{
		Type:            models.TypeSwissSystem,
		Status:          models.StatusRegistrationClosed,
		MinPlayers:      2,
		CheckInRequired: true,
	}, 4)

	ctx := context.Background()
	reg, err := env.registrations.GetByTournamentAndPlayer(ctx, nil, tournament.ID, 4)
	require.NoError(t, err)
	reg.CheckedIn = false
	reg.CheckedInAt = nil
	require.NoError(t, env.registrations.Update(ctx, nil, reg))

	v, err := env.stateService.ValidateTransition(ctx, tournament.ID, models.StatusInProgress)
	require.NoError(t, err)
	assert.False(t, v.CanTransition)
	assert.Contains(t, v.Errors, "1 confirmed players have not checked in")
}

func TestTransitionInProgressSetsFirstRound(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	tournament := env.seedTournament(models.Tournament{
		Type:       models.TypeRoundRobin,
		Status:     models.StatusRegistrationClosed,
		MinPlayers: 2,
	}, 4)

	updated, err := env.stateService.Transition(context.Background(), tournament.ID, models.StatusInProgress, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, updated.Status)
	assert.Equal(t, 1, updated.CurrentRound)
}

func TestTransitionFinishBlockedByScheduledMatches(t *testing.T) {
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
	match := models.Match{
		TournamentID: tournament.ID,
		PlayerAID:    intPtr(1),
		PlayerBID:    intPtr(2),
		Round:        3,
		Phase:        models.PhaseQualification,
		Status:       models.MatchScheduled,
	}
	require.NoError(t, env.matches.Create(ctx, nil, &match))

	_, err := env.stateService.Transition(ctx, tournament.ID, models.StatusFinished, nil)
	require.ErrorIs(t, err, ErrInvalidStatusTransition)
	assert.ErrorContains(t, err, "1 matches are still scheduled")
}

func TestTransitionFinishSetsFlag(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	tournament := env.seedTournament(models.Tournament{
		Type:         models.TypeRoundRobin,
		Status:       models.StatusInProgress,
		MinPlayers:   2,
		CurrentRound: 3,
		TotalRounds:  3,
	}, 4)

	updated, err := env.stateService.Transition(context.Background(), tournament.ID, models.StatusFinished, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, updated.Status)
	assert.True(t, updated.IsFinished)
}

func TestTransitionCancelFromAnyNonTerminal(t *testing.T) {
	t.Parallel()
	env := newTestEnv()

	statuses := []models.TournamentStatus{
		models.StatusDraft,
		models.StatusRegistrationOpen,
		models.StatusRegistrationClosed,
		models.StatusInProgress,
	}
	for _, status := range statuses {
		tournament := env.seedTournament(models.Tournament{
			Type:   models.TypeSingleElimination,
			Status: status,
		}, 0)

		reason := "venue flooded"
		updated, err := env.stateService.Transition(context.Background(), tournament.ID, models.StatusCancelled, &reason)
		require.NoError(t, err, "cancel from %s", status)
		assert.Equal(t, models.StatusCancelled, updated.Status)
		require.NotNil(t, updated.AdditionalInfo)
		assert.Equal(t, "cancelled: venue flooded", *updated.AdditionalInfo)
	}
}

func TestTransitionCancelRejectedFromFinished(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	tournament := env.seedTournament(models.Tournament{
		Type:   models.TypeSingleElimination,
		Status: models.StatusFinished,
	}, 0)

	_, err := env.stateService.Transition(context.Background(), tournament.ID, models.StatusCancelled, nil)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestTransitionCancelAppendsToExistingInfo(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	info := "bring your own sleeves"
	tournament := env.seedTournament(models.Tournament{
		Type:           models.TypeRoundRobin,
		Status:         models.StatusRegistrationOpen,
		AdditionalInfo: &info,
	}, 0)

	reason := "not enough judges"
	updated, err := env.stateService.Transition(context.Background(), tournament.ID, models.StatusCancelled, &reason)
	require.NoError(t, err)
	require.NotNil(t, updated.AdditionalInfo)
	assert.Equal(t, "bring your own sleeves\ncancelled: not enough judges", *updated.AdditionalInfo)
}

func TestAvailableTransitions(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	tournament := env.seedTournament(models.Tournament{
		Type:   models.TypeSwissSystem,
		Status: models.StatusRegistrationClosed,
	}, 0)

	targets, err := env.stateService.AvailableTransitions(context.Background(), tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.TournamentStatus{
		models.StatusRegistrationOpen,
		models.StatusInProgress,
		models.StatusCancelled,
	}, targets)

	finished := env.seedTournament(models.Tournament{
		Type:   models.TypeSwissSystem,
		Status: models.StatusFinished,
	}, 0)
	targets, err = env.stateService.AvailableTransitions(context.Background(), finished.ID)
	require.NoError(t, err)
	assert.Empty(t, targets)
}

func TestStateHistory(t *testing.T) {
	t.Parallel()
	env := newTestEnv()

	inProgress := env.seedTournament(models.Tournament{
		Type:   models.TypeRoundRobin,
		Status: models.StatusInProgress,
	}, 0)
	history, err := env.stateService.StateHistory(context.Background(), inProgress.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.TournamentStatus{
		models.StatusDraft,
		models.StatusRegistrationOpen,
		models.StatusRegistrationClosed,
		models.StatusInProgress,
	}, history)

	cancelled := env.seedTournament(models.Tournament{
		Type:   models.TypeRoundRobin,
		Status: models.StatusCancelled,
	}, 0)
	history, err = env.stateService.StateHistory(context.Background(), cancelled.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.TournamentStatus{models.StatusCancelled}, history)
}

func TestStateServiceTournamentNotFound(t *testing.T) {
	t.Parallel()
	env := newTestEnv()

	_, err := env.stateService.ValidateTransition(context.Background(), 99, models.StatusCancelled)
	assert.ErrorIs(t, err, ErrTournamentNotFound)
}
