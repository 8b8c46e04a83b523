package draw_test

import (
	"fmt"
	"testing"

	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/draw"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("entrant-%03d", i)
	}
	return out
}

func TestSelect_SizeDistinctMembership(t *testing.T) {
	tests := []struct {
		name       string
		candidates int
		n          int
		expected   int
	}{
		{"Fewer requested than pool", 10, 3, 3},
		{"Exactly the pool", 5, 5, 5},
		{"More requested than pool", 4, 9, 4},
		{"Empty pool", 0, 3, 0},
		{"Zero requested", 7, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := ids(tt.candidates)
			members := map[string]bool{}
			for _, id := range pool {
				members[id] = true
			}

			for seed := int64(0); seed < 25; seed++ {
				got, err := draw.Select(pool, tt.n, seed)
				require.NoError(t, err)
				require.Len(t, got, tt.expected)

				seen := map[string]bool{}
				for _, id := range got {
					assert.True(t, members[id], "selected id %q not in pool", id)
					assert.False(t, seen[id], "duplicate id %q", id)
					seen[id] = true
				}
			}
		})
	}
}

func TestSelect_Deterministic(t *testing.T) {
	pool := ids(50)

	a, err := draw.Select(pool, 7, 42)
	require.NoError(t, err)
	b, err := draw.Select(pool, 7, 42)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	// Same set in a different order replays identically.
	reversed := make([]string, len(pool))
	for i, id := range pool {
		reversed[len(pool)-1-i] = id
	}
	c, err := draw.Select(reversed, 7, 42)
	require.NoError(t, err)
	assert.Equal(t, a, c)
}

func TestSelect_DifferentSeedsDiffer(t *testing.T) {
	pool := ids(100)
	distinct := map[string]bool{}
	for seed := int64(1); seed <= 10; seed++ {
		got, err := draw.Select(pool, 5, seed)
		require.NoError(t, err)
		distinct[fmt.Sprint(got)] = true
	}
	assert.Greater(t, len(distinct), 1)
}

func TestSelect_DoesNotMutateInput(t *testing.T) {
	pool := []string{"c", "a", "b", "a"}
	snapshot := append([]string(nil), pool...)

	_, err := draw.Select(pool, 2, 7)
	require.NoError(t, err)
	assert.Equal(t, snapshot, pool)
}

func TestSelect_NegativeCount(t *testing.T) {
	_, err := draw.Select(ids(3), -1, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestSelect_DuplicatesCountOnce(t *testing.T) {
	got, err := draw.Select([]string{"a", "a", "b", "", "b"}, 5, 3)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, got)
}

func TestSelect_RoughlyUniform(t *testing.T) {
	pool := ids(4)
	hits := map[string]int{}
	const rounds = 4000
	for seed := int64(0); seed < rounds; seed++ {
		got, err := draw.Select(pool, 1, seed)
		require.NoError(t, err)
		hits[got[0]]++
	}
	for _, id := range pool {
		assert.InDelta(t, rounds/4, hits[id], rounds/10, "id %s", id)
	}
}

func TestVerify(t *testing.T) {
	pool := draw.Normalize(ids(20))
	selected, err := draw.Select(pool, 3, 99)
	require.NoError(t, err)

	rec := domain.DrawRecord{Seed: 99, Requested: 3, Candidates: pool, Selected: selected}
	ok, err := draw.Verify(rec)
	require.NoError(t, err)
	assert.True(t, ok)

	rec.Seed = 100
	ok, err = draw.Verify(rec)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewSeed(t *testing.T) {
	a, err := draw.NewSeed()
	require.NoError(t, err)
	b, err := draw.NewSeed()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
