package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelocationMap_RouteAndProbability(t *testing.T) {
	// GIVEN a two-asset map with one route and one probability
	m, err := NewRelocationMap([]int{2, 2})
	require.NoError(t, err)
	require.NoError(t, m.AddRoute(0, 1, []int{0, 1}, []float64{0.05, 0.95}))
	require.NoError(t, m.SetProbability(0.7, 0, 1, []int{0}))

	// THEN the route and probability are visible
	assert.True(t, m.CanRelocate(0, 1))
	assert.False(t, m.CanRelocate(1, 0))
	assert.Equal(t, []int{0, 1}, m.Route(0, 1).Dists)
	assert.Equal(t, 0.7, m.Probability(0, 1, NewBlockedSet(0)))
	// AND unset blocked sets default to 0
	assert.Equal(t, 0.0, m.Probability(0, 1, NewBlockedSet(0, 1)))
	assert.Equal(t, 0.0, m.Probability(1, 0, NewBlockedSet(1)))
	assert.Equal(t, []BlockedSet{NewBlockedSet(0)}, m.BlockedSets(0, 1))

	// WHEN the route is cleared
	m.ClearRoute(0, 1)

	// THEN relocation is no longer possible
	assert.False(t, m.CanRelocate(0, 1))
}

func TestRelocationMap_InvalidInput_ReturnsError(t *testing.T) {
	m, err := NewRelocationMap([]int{2, 1})
	require.NoError(t, err)

	tests := []struct {
		name string
		err  error
	}{
		{"self route", m.AddRoute(0, 0, []int{0}, []float64{1})},
		{"asset out of range", m.AddRoute(0, 2, []int{0}, []float64{1})},
		{"distribution out of range", m.AddRoute(0, 1, []int{1}, []float64{1})},
		{"length mismatch", m.AddRoute(1, 0, []int{0, 1}, []float64{1})},
		{"duplicate distribution", m.AddRoute(1, 0, []int{0, 0}, []float64{0.5, 0.5})},
		{"probabilities do not sum to one", m.AddRoute(1, 0, []int{0, 1}, []float64{0.5, 0.4})},
		{"probability above one", m.SetProbability(1.5, 0, 1, []int{0})},
		{"blocked asset out of range", m.SetProbability(0.5, 0, 1, []int{0, 3})},
		{"blocked set without source", m.SetProbability(0.5, 0, 1, []int{1})},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.err, ErrInvalidRelocation)
		})
	}

	_, err = NewRelocationMap(nil)
	assert.ErrorIs(t, err, ErrInvalidRelocation)
	_, err = NewRelocationMap([]int{1, 0})
	assert.ErrorIs(t, err, ErrInvalidRelocation)
}

func TestBlockedSet_String(t *testing.T) {
	assert.Equal(t, "{0,2}", NewBlockedSet(2, 0).String())
	assert.Equal(t, "{}", BlockedSet(0).String())
	assert.True(t, NewBlockedSet(3).Contains(3))
	assert.False(t, NewBlockedSet(3).Contains(2))
}

func TestRelocationMap_Validate_MismatchedAssets(t *testing.T) {
	// GIVEN a map expecting two distributions at asset 0
	m, err := NewRelocationMap([]int{2})
	require.NoError(t, err)
	pt := mustPhaseType(t, []float64{1}, [][]float64{{-1}})
	a, err := NewAsset(1, []*PhaseType{pt}, 1)
	require.NoError(t, err)

	// THEN a state space over a single-distribution asset is rejected
	_, err = NewStateSpace([]*Asset{a}, m)
	assert.ErrorIs(t, err, ErrStateSpaceMismatch)
}
