package brackets

import (
	"fmt"
	"math/rand"
	"sort"
)

// SeedingMethod selects how a roster is ordered before bracket placement.
type SeedingMethod string

const (
	SeedingRandom  SeedingMethod = "random"
	SeedingRanking SeedingMethod = "ranking"
	// SeedingElo is an alias for SeedingRanking until a real Elo model
	// exists. Kept as a distinct name so callers do not come to depend on
	// the alias by accident.
	SeedingElo    SeedingMethod = "elo"
	SeedingManual SeedingMethod = "manual"
)

// SeededPlayer is a roster entry with its assigned position, seed 1 being the
// strongest slot.
type SeededPlayer struct {
	PlayerID int
	Seed     int
	Score    float64
}

// Seeder orders rosters. The random source is injected so tests can fix it.
type Seeder struct {
	rng *rand.Rand
}

func NewSeeder(rng *rand.Rand) *Seeder {
	return &Seeder{rng: rng}
}

// SeedScore собирает исторические показатели игрока в одно число.
// Бонус за опыт ограничен пятью очками, иначе ветераны со слабой
// статистикой обгоняли бы сильных новичков.
func SeedScore(avgPoints, avgWinRate float64, tournamentCount int) float64 {
	bonus := float64(tournamentCount) * 0.5
	if bonus > 5 {
		bonus = 5
	}
	return 0.7*avgPoints + 0.3*avgWinRate + bonus
}

// Seed orders playerIDs by method and assigns sequential seeds starting at 1.
// scores is consulted only for ranking based methods; players missing from it
// score zero. Ties keep the input order.
func (s *Seeder) Seed(playerIDs []int, method SeedingMethod, scores map[int]float64) []SeededPlayer {
	ordered := make([]SeededPlayer, len(playerIDs))
	for i, id := range playerIDs {
		ordered[i] = SeededPlayer{PlayerID: id, Score: scores[id]}
	}

	switch method {
	case SeedingRandom:
		// Fisher-Yates
		for i := len(ordered) - 1; i > 0; i-- {
			j := s.rng.Intn(i + 1)
			ordered[i], ordered[j] = ordered[j], ordered[i]
		}
	case SeedingRanking, SeedingElo:
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].Score > ordered[j].Score
		})
	case SeedingManual:
		// identity order
	default:
		// unknown methods fall back to manual order
	}

	for i := range ordered {
		ordered[i].Seed = i + 1
	}
	return ordered
}

// ValidateSeeding checks that the seeds form exactly the multiset {1..N}.
func ValidateSeeding(seeded []SeededPlayer) error {
	seen := make(map[int]bool, len(seeded))
	for _, sp := range seeded {
		if sp.Seed < 1 || sp.Seed > len(seeded) {
			return fmt.Errorf("seed %d out of range 1..%d", sp.Seed, len(seeded))
		}
		if seen[sp.Seed] {
			return fmt.Errorf("duplicate seed %d", sp.Seed)
		}
		seen[sp.Seed] = true
	}
	return nil
}

// BalancedOrder reorders a seeded roster into bracket slot order so the top
// seeds land in opposite halves and cannot meet before the final. The
// bisection runs over the next power of two; absent seeds collapse out
// without materializing bye players.
func BalancedOrder(seeded []SeededPlayer) []SeededPlayer {
	n := len(seeded)
	if n < 2 {
		out := make([]SeededPlayer, n)
		copy(out, seeded)
		return out
	}

	size := 1
	for size < n {
		size *= 2
	}

	positions := []int{1}
	for len(positions) < size {
		next := make([]int, 0, len(positions)*2)
		for _, p := range positions {
			next = append(next, p, len(positions)*2+1-p)
		}
		positions = next
	}

	bySeed := make(map[int]SeededPlayer, n)
	for _, sp := range seeded {
		bySeed[sp.Seed] = sp
	}

	out := make([]SeededPlayer, 0, n)
	for _, seed := range positions {
		if sp, ok := bySeed[seed]; ok {
			out = append(out, sp)
		}
	}
	return out
}
