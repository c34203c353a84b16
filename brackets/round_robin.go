package brackets

import (
	"context"

	"github.com/deckstorm/tcg-arena/models"
)

type RoundRobinGenerator struct{}

func NewRoundRobinGenerator() Generator {
	return &RoundRobinGenerator{}
}

func (g *RoundRobinGenerator) Name() string {
	return "RoundRobin"
}

// Generate precomputes the full schedule with the circle method: the first
// entry stays fixed while the rest rotate one position per round, and slot i
// plays slot N-1-i. An odd roster gets a ghost slot; whoever draws the ghost
// sits the round out, with no match row created. Every pair meets exactly
// once over N-1 rounds.
func (g *RoundRobinGenerator) Generate(ctx context.Context, params GenerateParams) (*Plan, error) {
	n := len(params.SeededPlayerIDs)
	if n < 2 {
		return nil, ErrNotEnoughPlayers
	}

	// nil marks the ghost slot
	ring := make([]*int, 0, n+1)
	for _, id := range params.SeededPlayerIDs {
		pid := id
		ring = append(ring, &pid)
	}
	if len(ring)%2 == 1 {
		ring = append(ring, nil)
	}

	size := len(ring)
	totalRounds := size - 1
	t := params.Tournament

	matches := make([]*models.Match, 0, n*(n-1)/2)
	for round := 1; round <= totalRounds; round++ {
		for i := 0; i < size/2; i++ {
			a, b := ring[i], ring[size-1-i]
			if a == nil || b == nil {
				continue
			}
			matches = append(matches, newScheduledMatch(t, round, models.PhaseQualification, params.ScheduledDate, a, b))
		}

		// rotate everything but the first slot
		last := ring[size-1]
		copy(ring[2:], ring[1:size-1])
		ring[1] = last
	}

	return &Plan{TotalRounds: totalRounds, Matches: matches}, nil
}
