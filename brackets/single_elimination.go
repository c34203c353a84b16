package brackets

import (
	"context"

	"github.com/deckstorm/tcg-arena/models"
)

type SingleEliminationGenerator struct{}

func NewSingleEliminationGenerator() Generator {
	return &SingleEliminationGenerator{}
}

func (g *SingleEliminationGenerator) Name() string {
	return "SingleElimination"
}

// Generate produces round 1 of a knockout bracket. Players arrive in seed
// order and are placed in balanced slot order before pairing, then adjacent
// slots form matches. With an odd slot count the trailing player takes a bye
// recorded as a finished match. Later rounds are created as earlier rounds
// complete, not here.
func (g *SingleEliminationGenerator) Generate(ctx context.Context, params GenerateParams) (*Plan, error) {
	n := len(params.SeededPlayerIDs)
	if n < 2 {
		return nil, ErrNotEnoughPlayers
	}

	seeded := make([]SeededPlayer, n)
	for i, id := range params.SeededPlayerIDs {
		seeded[i] = SeededPlayer{PlayerID: id, Seed: i + 1}
	}
	slots := BalancedOrder(seeded)

	totalRounds := EliminationRounds(n)
	phase := PhaseForRound(1, totalRounds)
	t := params.Tournament

	matches := make([]*models.Match, 0, (n+1)/2)
	for i := 0; i+1 < len(slots); i += 2 {
		a, b := slots[i].PlayerID, slots[i+1].PlayerID
		matches = append(matches, newScheduledMatch(t, 1, phase, params.ScheduledDate, &a, &b))
	}
	if len(slots)%2 == 1 {
		last := slots[len(slots)-1].PlayerID
		matches = append(matches, newByeMatch(t, 1, phase, params.ScheduledDate, params.Now, last))
	}

	return &Plan{TotalRounds: totalRounds, Matches: matches}, nil
}
