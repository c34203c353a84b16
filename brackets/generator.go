package brackets

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/deckstorm/tcg-arena/models"
)

var (
	ErrFormatUnsupported = errors.New("tournament format not supported")
	ErrNotEnoughPlayers  = errors.New("not enough players to generate a bracket")
)

// GenerateParams carries everything a generator needs. SeededPlayerIDs is the
// roster in seed order, seed 1 first.
type GenerateParams struct {
	Tournament      *models.Tournament
	SeededPlayerIDs []int
	ScheduledDate   time.Time
	Now             time.Time
}

// Plan is a generated schedule not yet persisted. For elimination and swiss
// formats Matches holds round 1 only; round robin precomputes every round.
// Bye matches come out already finished with a winner set.
type Plan struct {
	TotalRounds int
	Matches     []*models.Match
}

type Generator interface {
	Generate(ctx context.Context, params GenerateParams) (*Plan, error)
	Name() string
}

// GeneratorFor dispatches by format. Double elimination is rejected outright:
// the loser bracket is not modeled, and mislabeling a single elimination
// bracket as double would be worse than an error.
func GeneratorFor(format models.TournamentType) (Generator, error) {
	switch format {
	case models.TypeSingleElimination:
		return NewSingleEliminationGenerator(), nil
	case models.TypeRoundRobin:
		return NewRoundRobinGenerator(), nil
	case models.TypeSwissSystem:
		return NewSwissGenerator(), nil
	default:
		return nil, ErrFormatUnsupported
	}
}

// EliminationRounds is ceil(log2(n)) for n >= 2.
func EliminationRounds(n int) int {
	if n < 2 {
		return 0
	}
	return int(math.Ceil(math.Log2(float64(n))))
}

// PhaseForRound labels elimination rounds counted from the end of the
// bracket. Everything earlier than the quarter finals is qualification.
func PhaseForRound(round, totalRounds int) models.MatchPhase {
	switch totalRounds - round {
	case 0:
		return models.PhaseFinal
	case 1:
		return models.PhaseSemiFinal
	case 2:
		return models.PhaseQuarterFinal
	default:
		return models.PhaseQualification
	}
}

func newScheduledMatch(t *models.Tournament, round int, phase models.MatchPhase, date time.Time, playerA, playerB *int) *models.Match {
	return &models.Match{
		TournamentID:  t.ID,
		PlayerAID:     playerA,
		PlayerBID:     playerB,
		Round:         round,
		Phase:         phase,
		Status:        models.MatchScheduled,
		ScheduledDate: date,
	}
}

// newByeMatch records an unopposed advancement as an already finished match
// so round completion and ranking replay treat byes uniformly.
func newByeMatch(t *models.Tournament, round int, phase models.MatchPhase, date, now time.Time, playerA int) *models.Match {
	finishedAt := now
	winner := playerA
	return &models.Match{
		TournamentID:  t.ID,
		PlayerAID:     &playerA,
		WinnerID:      &winner,
		Round:         round,
		Phase:         phase,
		Status:        models.MatchFinished,
		ScheduledDate: date,
		FinishedAt:    &finishedAt,
	}
}
