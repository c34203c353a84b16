package brackets

import (
	"context"

	"github.com/deckstorm/tcg-arena/models"
)

// SwissPairing is one table of a swiss round. PlayerBID is nil for the bye.
type SwissPairing struct {
	PlayerAID   int  `json:"player_a_id"`
	PlayerBID   *int `json:"player_b_id,omitempty"`
	TableNumber int  `json:"table_number"`
}

// SwissRound groups the pairings produced for a single round.
type SwissRound struct {
	Round    int            `json:"round"`
	Pairings []SwissPairing `json:"pairings"`
}

type SwissGenerator struct{}

func NewSwissGenerator() Generator {
	return &SwissGenerator{}
}

func (g *SwissGenerator) Name() string {
	return "Swiss"
}

// Generate fixes the round count and schedules round 1 from seed order.
// Nobody has played yet, so pairing by standings degenerates to pairing
// adjacent seeds. Later rounds are paired against live standings and match
// history, which is the caller's job round by round.
func (g *SwissGenerator) Generate(ctx context.Context, params GenerateParams) (*Plan, error) {
	n := len(params.SeededPlayerIDs)
	if n < 2 {
		return nil, ErrNotEnoughPlayers
	}

	pairings := PairSwissRound(params.SeededPlayerIDs, nil)

	t := params.Tournament
	matches := make([]*models.Match, 0, len(pairings))
	for _, p := range pairings {
		if p.PlayerBID == nil {
			matches = append(matches, newByeMatch(t, 1, models.PhaseQualification, params.ScheduledDate, params.Now, p.PlayerAID))
			continue
		}
		a := p.PlayerAID
		matches = append(matches, newScheduledMatch(t, 1, models.PhaseQualification, params.ScheduledDate, &a, p.PlayerBID))
	}

	return &Plan{TotalRounds: EliminationRounds(n), Matches: matches}, nil
}

// PairSwissRound pairs an ordered field, strongest first. The top remaining
// player takes the earliest opponent they have not met; when every remaining
// opponent is a rematch the nearest one is accepted anyway, since leaving
// players unpaired is worse than a repeat. A single leftover player gets the
// bye. hasPlayed may be nil when no history exists yet.
func PairSwissRound(orderedPlayerIDs []int, hasPlayed func(a, b int) bool) []SwissPairing {
	remaining := make([]int, len(orderedPlayerIDs))
	copy(remaining, orderedPlayerIDs)

	pairings := make([]SwissPairing, 0, (len(remaining)+1)/2)
	table := 1

	for len(remaining) >= 2 {
		top := remaining[0]
		opponentIdx := 1
		if hasPlayed != nil {
			found := false
			for i := 1; i < len(remaining); i++ {
				if !hasPlayed(top, remaining[i]) {
					opponentIdx = i
					found = true
					break
				}
			}
			if !found {
				opponentIdx = 1 // forced rematch
			}
		}

		opp := remaining[opponentIdx]
		pairings = append(pairings, SwissPairing{PlayerAID: top, PlayerBID: &opp, TableNumber: table})
		table++

		remaining = append(remaining[:opponentIdx], remaining[opponentIdx+1:]...)
		remaining = remaining[1:]
	}

	if len(remaining) == 1 {
		pairings = append(pairings, SwissPairing{PlayerAID: remaining[0], TableNumber: table})
	}

	return pairings
}
