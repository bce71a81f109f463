package sampling

import (
	"errors"
	"fmt"
	"testing"

	"vlmeval/pkg/core"

	"github.com/stretchr/testify/require"
)

func TestIndicesDeterministic(t *testing.T) {
	first, err := Indices(1000, 50, 42)
	require.NoError(t, err)
	second, err := Indices(1000, 50, 42)
	require.NoError(t, err)
	require.Equal(t, first, second)

	other, err := Indices(1000, 50, 43)
	require.NoError(t, err)
	require.NotEqual(t, first, other)
}

func TestIndicesDistinct(t *testing.T) {
	idx, err := Indices(100, 100, 7)
	require.NoError(t, err)
	seen := map[int]bool{}
	for _, i := range idx {
		require.False(t, seen[i])
		require.GreaterOrEqual(t, i, 0)
		require.Less(t, i, 100)
		seen[i] = true
	}
}

func TestIndicesCountExceedsPool(t *testing.T) {
	_, err := Indices(10, 11, 42)
	require.Error(t, err)
	require.True(t, errors.Is(err, core.ErrConfiguration))
}

func TestIndicesNegativeCount(t *testing.T) {
	_, err := Indices(10, -1, 42)
	require.True(t, errors.Is(err, core.ErrConfiguration))
}

func TestSplitDisjoint(t *testing.T) {
	evalIdx, queryIdx, err := Split(500, 100, 200, 42)
	require.NoError(t, err)
	require.Len(t, evalIdx, 100)
	require.Len(t, queryIdx, 200)

	inEval := map[int]bool{}
	for _, i := range evalIdx {
		inEval[i] = true
	}
	for _, i := range queryIdx {
		require.False(t, inEval[i])
	}
}

func TestSplitBounds(t *testing.T) {
	_, _, err := Split(10, 6, 5, 1)
	require.True(t, errors.Is(err, core.ErrConfiguration))
}

func TestEffectiveShots(t *testing.T) {
	require.Equal(t, 2, EffectiveShots(0))
	require.Equal(t, 4, EffectiveShots(4))
}

func poolOf(n int) []core.Sample {
	pool := make([]core.Sample, n)
	for i := range pool {
		pool[i] = core.Sample{ID: fmt.Sprintf("s%d", i)}
	}
	return pool
}

func TestDemosShape(t *testing.T) {
	sel := NewSelector(1)
	sets, err := sel.Demos(poolOf(20), 4, 3)
	require.NoError(t, err)
	require.Len(t, sets, 3)
	for _, demos := range sets {
		require.Len(t, demos, 4)
		seen := map[string]bool{}
		for _, d := range demos {
			require.False(t, seen[d.ID], "demonstrations drawn with replacement")
			seen[d.ID] = true
		}
	}
}

func TestDemosZeroShotSamplesTwo(t *testing.T) {
	sel := NewSelector(1)
	sets, err := sel.Demos(poolOf(10), 0, 2)
	require.NoError(t, err)
	for _, demos := range sets {
		require.Len(t, demos, 2)
	}
}

func TestDemosPoolTooSmall(t *testing.T) {
	sel := NewSelector(1)
	_, err := sel.Demos(poolOf(3), 8, 1)
	require.True(t, errors.Is(err, core.ErrConfiguration))
}

func TestDemosNegativeShots(t *testing.T) {
	sel := NewSelector(1)
	_, err := sel.Demos(poolOf(10), -1, 1)
	require.Error(t, err)
	require.True(t, errors.Is(err, core.ErrConfiguration))
}

func TestSplitNegativeCounts(t *testing.T) {
	_, _, err := Split(10, -1, 4, 1)
	require.True(t, errors.Is(err, core.ErrConfiguration))
	_, _, err = Split(10, 4, -1, 1)
	require.True(t, errors.Is(err, core.ErrConfiguration))
}
