package brackets

import (
	"sort"

	"github.com/deckstorm/tcg-arena/models"
)

// BracketNode is one slot of the bracket read projection. NextMatchID and
// NextSlot are populated for elimination formats only.
type BracketNode struct {
	MatchID     int                `json:"match_id"`
	PlayerAID   *int               `json:"player_a_id,omitempty"`
	PlayerBID   *int               `json:"player_b_id,omitempty"`
	WinnerID    *int               `json:"winner_id,omitempty"`
	Status      models.MatchStatus `json:"status"`
	Phase       models.MatchPhase  `json:"phase"`
	TableNumber int                `json:"table_number"`
	NextMatchID *int               `json:"next_match_id,omitempty"`
	NextSlot    *string            `json:"next_slot,omitempty"`
}

type BracketRound struct {
	Index   int           `json:"index"`
	Matches []BracketNode `json:"matches"`
}

// BracketStructure is built from match rows on demand; it is never stored.
type BracketStructure struct {
	Type        models.TournamentType `json:"type"`
	TotalRounds int                   `json:"total_rounds"`
	Rounds      []BracketRound        `json:"rounds"`
}

// BuildStructure projects persisted matches into a round indexed bracket.
// For elimination formats each node is linked to the round+1 match it feeds,
// slot A when its position in the round is even, slot B when odd. Linkage is
// best effort: rounds not yet created leave NextMatchID nil.
func BuildStructure(t *models.Tournament, matches []*models.Match) *BracketStructure {
	byRound := make(map[int][]*models.Match)
	for _, m := range matches {
		byRound[m.Round] = append(byRound[m.Round], m)
	}

	roundIndexes := make([]int, 0, len(byRound))
	for r := range byRound {
		roundIndexes = append(roundIndexes, r)
	}
	sort.Ints(roundIndexes)

	elimination := t.Type == models.TypeSingleElimination || t.Type == models.TypeDoubleElimination

	structure := &BracketStructure{
		Type:        t.Type,
		TotalRounds: t.TotalRounds,
		Rounds:      make([]BracketRound, 0, len(roundIndexes)),
	}

	for _, r := range roundIndexes {
		roundMatches := byRound[r]
		sort.Slice(roundMatches, func(i, j int) bool { return roundMatches[i].ID < roundMatches[j].ID })

		nodes := make([]BracketNode, 0, len(roundMatches))
		for pos, m := range roundMatches {
			node := BracketNode{
				MatchID:     m.ID,
				PlayerAID:   m.PlayerAID,
				PlayerBID:   m.PlayerBID,
				WinnerID:    m.WinnerID,
				Status:      m.Status,
				Phase:       m.Phase,
				TableNumber: pos + 1,
			}
			if elimination {
				if next, ok := byRound[r+1]; ok && pos/2 < len(next) {
					sort.Slice(next, func(i, j int) bool { return next[i].ID < next[j].ID })
					id := next[pos/2].ID
					slot := "A"
					if pos%2 == 1 {
						slot = "B"
					}
					node.NextMatchID = &id
					node.NextSlot = &slot
				}
			}
			nodes = append(nodes, node)
		}
		structure.Rounds = append(structure.Rounds, BracketRound{Index: r, Matches: nodes})
	}

	return structure
}
