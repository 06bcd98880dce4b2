package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tranreloc/tranreloc/sim/internal/testutil"
)

func solvedReference(t *testing.T) *StateDistribution {
	t.Helper()
	s, d := seededReference(t)
	solver, err := NewStateDistSolver(NewTransitionRateMatrix(s), 1e-6)
	require.NoError(t, err)
	_, err = solver.Uniformization(d, 1)
	require.NoError(t, err)
	return d
}

func resizedReference(t *testing.T, capacity []int) *StateSpace {
	t.Helper()
	f := testutil.Reference()
	f.Capacity = capacity
	return spaceFromFixture(t, f)
}

func TestMigrate_SameStructure_IsIdentity(t *testing.T) {
	for _, method := range []MigrationMethod{MigrationFast, MigrationAccurate} {
		t.Run(method.String(), func(t *testing.T) {
			// GIVEN a solved distribution
			d := solvedReference(t)
			before := append([]float64(nil), d.Probabilities()...)

			// WHEN migrated onto an identically built space
			got, err := d.NewStateSpace(resizedReference(t, []int{3, 2}), MigrationPolicy{Method: method, Threshold: 1e8})

			// THEN the vector is unchanged
			require.NoError(t, err)
			assert.Equal(t, method, got)
			assert.InDeltaSlice(t, before, d.Probabilities(), 1e-12)
			assert.Equal(t, Migrated, d.Phase())
		})
	}
}

func TestMigrate_ChangedCapacity_ConservesProbability(t *testing.T) {
	for _, method := range []MigrationMethod{MigrationFast, MigrationAccurate} {
		t.Run(method.String(), func(t *testing.T) {
			// GIVEN a solved distribution on capacities {3,2}
			d := solvedReference(t)
			oldMarg := d.MarginalStateDists()

			// WHEN migrated to capacities {1,8}
			ns := resizedReference(t, []int{1, 8})
			_, err := d.NewStateSpace(ns, MigrationPolicy{Method: method, Threshold: 1e8})

			// THEN the result is a probability vector on the new space
			require.NoError(t, err)
			require.Len(t, d.Probabilities(), ns.Size())
			testutil.AssertSumsToOne(t, "migrated", d.Probabilities(), 1e-9)
			testutil.AssertNonNegative(t, "migrated", d.Probabilities(), 0)

			// AND the shrunk asset holds the folded mass at its top level
			marg := d.MarginalStateDists()
			assert.InDelta(t, oldMarg[0][0], marg[0][0], 1e-9)
			assert.InDelta(t, oldMarg[0][1]+oldMarg[0][2]+oldMarg[0][3], marg[0][1], 1e-9)
			// AND the grown asset keeps its marginal
			for level := 0; level <= 2; level++ {
				assert.InDelta(t, oldMarg[1][level], marg[1][level], 1e-9)
			}
			for level := 3; level <= 8; level++ {
				assert.InDelta(t, 0, marg[1][level], 1e-12)
			}
		})
	}
}

func TestMigrateAccurate_RemovesOccupantsUniformly(t *testing.T) {
	// GIVEN one asset with a 2-phase distribution and capacity 2, with
	// all mass on one occupant in each phase
	f := testutil.Fixture{
		Capacity:      []int{2},
		ArrivalRates:  []float64{1},
		Distributions: [][]testutil.PhaseData{{{Initial: []float64{0.5, 0.5}, Generator: [][]float64{{-1, 0}, {0, -1}}}}},
		Occupied:      []int{0},
	}
	s := spaceFromFixture(t, f)
	d := NewStateDistribution(s)
	p := make([]float64, s.Size())
	c := s.Start()
	for k := 0; k < s.Size(); k++ {
		ph := s.Asset(0).Phases(c.Asset(0), 0)
		if ph[0] == 1 && ph[1] == 1 {
			p[c.Index()] = 1
		}
		s.Next(c)
	}
	require.NoError(t, d.SetStateDistribution(p))

	// WHEN migrated to capacity 1
	f.Capacity = []int{1}
	ns := spaceFromFixture(t, f)
	require.NoError(t, d.MigrateAccurate(ns))

	// THEN each remaining phase is equally likely
	c = ns.Start()
	for k := 0; k < ns.Size(); k++ {
		got := d.Probabilities()[c.Index()]
		if c.Asset(0).Used() == 1 {
			assert.InDelta(t, 0.5, got, 1e-12)
		} else {
			assert.InDelta(t, 0, got, 1e-12)
		}
		ns.Next(c)
	}
}

func TestMigrate_Uninitialized_ReturnsError(t *testing.T) {
	d := NewStateDistribution(spaceFromFixture(t, testutil.Reference()))
	_, err := d.NewStateSpace(resizedReference(t, []int{1, 1}), MigrationPolicy{Threshold: 1e8})
	assert.ErrorIs(t, err, ErrUninitialized)
}

func TestMigrate_AssetCountMismatch_ReturnsError(t *testing.T) {
	d := solvedReference(t)
	assert.ErrorIs(t, d.MigrateFast(spaceFromFixture(t, testutil.LossSystem(1, 1, 1))), ErrStateSpaceMismatch)
}

func TestBoundedMultinomialProb(t *testing.T) {
	tests := []struct {
		name     string
		x, bound []int
		want     float64
	}{
		{"nothing removed", []int{0, 0}, []int{2, 1}, 1},
		{"single choice", []int{1, 0}, []int{2, 0}, 1},
		{"one of two slots", []int{0, 1}, []int{1, 1}, 0.5},
		{"split removal", []int{1, 1}, []int{2, 1}, 2.0 / 3.0},
		{"concentrated removal", []int{2, 0}, []int{2, 1}, 1.0 / 3.0},
		{"three slots", []int{1, 1, 0}, []int{1, 1, 1}, 1.0 / 3.0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			testutil.AssertFloat64Equal(t, "prob", tc.want, boundedMultinomialProb(tc.x, tc.bound), 1e-9)
		})
	}
}
