package sim

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tranreloc/tranreloc/sim/internal/testutil"
)

func TestNewPhaseType_ValidInput_DerivesExitRates(t *testing.T) {
	// GIVEN a two-phase distribution
	pt, err := NewPhaseType([]float64{0.75, 0.25}, [][]float64{{-2, 1}, {3, -5}})

	// THEN exit rates are the negated row sums
	require.NoError(t, err)
	assert.Equal(t, 2, pt.Phases())
	assert.InDelta(t, 1.0, pt.ExitRate(0), 1e-12)
	assert.InDelta(t, 2.0, pt.ExitRate(1), 1e-12)
	assert.Equal(t, 1.0, pt.Rate(0, 1))
	assert.Equal(t, 0.25, pt.Initial(1))
}

func TestNewPhaseType_InvalidInput_ReturnsError(t *testing.T) {
	tests := []struct {
		name    string
		initial []float64
		gen     [][]float64
	}{
		{"empty", nil, nil},
		{"row count mismatch", []float64{1}, [][]float64{{-1}, {0}}},
		{"not square", []float64{0.5, 0.5}, [][]float64{{-1, 1}, {1}}},
		{"initial does not sum to one", []float64{0.5, 0.4}, [][]float64{{-1, 0}, {0, -1}}},
		{"negative initial", []float64{1.5, -0.5}, [][]float64{{-1, 0}, {0, -1}}},
		{"negative off-diagonal", []float64{1, 0}, [][]float64{{-1, -1}, {0, -1}}},
		{"positive row sum", []float64{1, 0}, [][]float64{{-1, 2}, {0, -1}}},
		{"NaN entry", []float64{1}, [][]float64{{math.NaN()}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewPhaseType(tc.initial, tc.gen)
			assert.True(t, errors.Is(err, ErrInvalidPhaseType), "got %v", err)
		})
	}
}

func TestPhaseType_Mean_Exponential(t *testing.T) {
	// GIVEN an exponential distribution with rate 4
	pt, err := NewExponential(4)
	require.NoError(t, err)

	// WHEN the mean is computed
	m, err := pt.Mean()

	// THEN it is 1/rate
	require.NoError(t, err)
	testutil.AssertFloat64Equal(t, "mean", 0.25, m, 1e-12)
}

func TestPhaseType_Mean_Erlang(t *testing.T) {
	// GIVEN an Erlang-2 distribution with phase rate 3
	pt := mustPhaseType(t, []float64{1, 0}, [][]float64{{-3, 3}, {0, -3}})

	// WHEN the mean is computed
	m, err := pt.Mean()

	// THEN it is 2/3
	require.NoError(t, err)
	testutil.AssertFloat64Equal(t, "mean", 2.0/3.0, m, 1e-12)
}

func TestPhaseType_Mean_NoExit_ReturnsError(t *testing.T) {
	// GIVEN a phase that never absorbs
	pt := mustPhaseType(t, []float64{1}, [][]float64{{0}})

	// WHEN the mean is computed
	_, err := pt.Mean()

	// THEN the singular sub-generator is reported
	assert.ErrorIs(t, err, ErrInvalidPhaseType)
}
