package brackets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckstorm/tcg-arena/models"
)

func TestSwissGenerateFirstRound(t *testing.T) {
	t.Parallel()

	g := NewSwissGenerator()
	plan, err := g.Generate(context.Background(), testParams(models.TypeSwissSystem, []int{1, 2, 3, 4, 5, 6}))
	require.NoError(t, err)

	assert.Equal(t, 3, plan.TotalRounds)
	require.Len(t, plan.Matches, 3)

	// adjacent seeds meet in round 1
	assert.Equal(t, 1, *plan.Matches[0].PlayerAID)
	assert.Equal(t, 2, *plan.Matches[0].PlayerBID)
	assert.Equal(t, 3, *plan.Matches[1].PlayerAID)
	assert.Equal(t, 4, *plan.Matches[1].PlayerBID)
}

func TestSwissGenerateOddRosterGetsSingleBye(t *testing.T) {
	t.Parallel()

	g := NewSwissGenerator()
	plan, err := g.Generate(context.Background(), testParams(models.TypeSwissSystem, []int{1, 2, 3, 4, 5}))
	require.NoError(t, err)

	require.Len(t, plan.Matches, 3)

	byes := 0
	for _, m := range plan.Matches {
		if m.PlayerBID == nil {
			byes++
			assert.Equal(t, models.MatchFinished, m.Status)
			require.NotNil(t, m.WinnerID)
			assert.Equal(t, 5, *m.WinnerID)
		}
	}
	assert.Equal(t, 1, byes)
}

func TestPairSwissRoundAvoidsRematches(t *testing.T) {
	t.Parallel()

	played := map[[2]int]bool{
		{1, 2}: true,
		{3, 4}: true,
	}
	hasPlayed := func(a, b int) bool {
		if a > b {
			a, b = b, a
		}
		return played[[2]int{a, b}]
	}

	pairings := PairSwissRound([]int{1, 2, 3, 4}, hasPlayed)
	require.Len(t, pairings, 2)

	for _, p := range pairings {
		require.NotNil(t, p.PlayerBID)
		assert.False(t, hasPlayed(p.PlayerAID, *p.PlayerBID),
			"pairing %d vs %d repeats a played match", p.PlayerAID, *p.PlayerBID)
	}
}

func TestPairSwissRoundForcedRematch(t *testing.T) {
	t.Parallel()

	// everyone has already played everyone
	hasPlayed := func(a, b int) bool { return true }

	pairings := PairSwissRound([]int{1, 2, 3, 4}, hasPlayed)
	require.Len(t, pairings, 2)

	require.NotNil(t, pairings[0].PlayerBID)
	assert.Equal(t, 1, pairings[0].PlayerAID)
	assert.Equal(t, 2, *pairings[0].PlayerBID)
}

func TestPairSwissRoundOddFieldSingleBye(t *testing.T) {
	t.Parallel()

	pairings := PairSwissRound([]int{1, 2, 3, 4, 5}, nil)
	require.Len(t, pairings, 3)

	var byes []SwissPairing
	paired := make(map[int]int)
	for _, p := range pairings {
		paired[p.PlayerAID]++
		if p.PlayerBID == nil {
			byes = append(byes, p)
		} else {
			paired[*p.PlayerBID]++
		}
	}

	require.Len(t, byes, 1)
	assert.Equal(t, 5, byes[0].PlayerAID)
	for id := 1; id <= 5; id++ {
		assert.Equal(t, 1, paired[id], "player %d should appear exactly once", id)
	}
}

func TestPairSwissRoundTableNumbersSequential(t *testing.T) {
	t.Parallel()

	pairings := PairSwissRound([]int{1, 2, 3, 4, 5, 6}, nil)
	require.Len(t, pairings, 3)
	for i, p := range pairings {
		assert.Equal(t, i+1, p.TableNumber)
	}
}
