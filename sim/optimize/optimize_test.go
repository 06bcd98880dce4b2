package optimize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tranreloc/tranreloc/sim"
	"github.com/tranreloc/tranreloc/sim/internal/testutil"
)

// systemFrom builds a System with one segment per fixture. Relocation rules and
// the starting occupancy come from the first fixture.
func systemFrom(t *testing.T, fixtures ...testutil.Fixture) *sim.System {
	t.Helper()
	first := fixtures[0]
	rm, err := sim.NewRelocationMap(first.DistCounts())
	require.NoError(t, err)
	for _, r := range first.Routes {
		require.NoError(t, rm.AddRoute(r.From, r.To, r.Dists, r.Probs))
	}
	for _, r := range first.Rules {
		require.NoError(t, rm.SetProbability(r.Prob, r.From, r.To, r.Blocked))
	}
	sys := &sim.System{Relocation: rm, Occupied: append([]int(nil), first.Occupied...)}
	for _, f := range fixtures {
		seg := sim.Segment{
			Capacity:      append([]int(nil), f.Capacity...),
			ArrivalRates:  append([]float64(nil), f.ArrivalRates...),
			Distributions: make([][]*sim.PhaseType, len(f.Distributions)),
		}
		for i, dists := range f.Distributions {
			for _, pd := range dists {
				pt, err := sim.NewPhaseType(pd.Initial, pd.Generator)
				require.NoError(t, err)
				seg.Distributions[i] = append(seg.Distributions[i], pt)
			}
		}
		sys.Segments = append(sys.Segments, seg)
	}
	return sys
}

// twoLossAssets returns two exponential loss assets, optionally with asset 0
// overflowing to asset 1 when full.
func twoLossAssets(relocate bool) testutil.Fixture {
	exp := []testutil.PhaseData{{Initial: []float64{1}, Generator: [][]float64{{-1}}}}
	f := testutil.Fixture{
		Capacity:      []int{1, 1},
		ArrivalRates:  []float64{2, 0.5},
		Distributions: [][]testutil.PhaseData{exp, exp},
		Occupied:      []int{0, 0},
	}
	if relocate {
		f.Routes = []testutil.RouteData{{From: 0, To: 1, Dists: []int{0}, Probs: []float64{1}}}
		f.Rules = []testutil.RuleData{{Prob: 1, From: 0, To: 1, Blocked: []int{0}}}
	}
	return f
}

func newOptimizer(t *testing.T, sys *sim.System, cfg Config) *Optimizer {
	t.Helper()
	eval, err := sim.NewEvaluator(sys, sim.DefaultSolverConfig())
	require.NoError(t, err)
	o, err := New(eval, cfg)
	require.NoError(t, err)
	return o
}

func blocking(t *testing.T, eval *sim.Evaluator, capacity []int, asset int) float64 {
	t.Helper()
	d, err := eval.EvaluateSegment(eval.System().Occupied, 0, capacity)
	require.NoError(t, err)
	m := d.MarginalStateDists()[asset]
	return m[len(m)-1]
}

func TestOptimize_SingleAsset_SmallestCapacityMeetingLevel(t *testing.T) {
	tests := []struct {
		name    string
		arrival float64
		want    int
	}{
		{"light load fits one unit", 0.01, 1},
		{"moderate load", 0.5, 3},
		{"heavy load", 2, 5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// GIVEN an empty exponential loss system over one unit of time
			o := newOptimizer(t, systemFrom(t, testutil.LossSystem(1, tc.arrival, 1)), Config{ServiceLevel: 0.99, Workers: 2})

			// WHEN optimized
			res, err := o.Optimize(context.Background())

			// THEN the smallest capacity with blocking at most 1% is chosen
			require.NoError(t, err)
			require.Len(t, res, 1)
			assert.Equal(t, []int{tc.want}, res[0].Capacity)
			m := res[0].Marginals[0]
			assert.LessOrEqual(t, m[len(m)-1], 0.01)
			if tc.want > 1 {
				assert.Greater(t, blocking(t, o.eval, []int{tc.want - 1}, 0), 0.01)
			}
		})
	}
}

func TestOptimize_SingleAsset_LaterSegmentStartsFromPreviousOptimum(t *testing.T) {
	// GIVEN a light segment followed by a heavy one
	sys := systemFrom(t, testutil.LossSystem(1, 0.5, 1), testutil.LossSystem(1, 2, 1))
	o := newOptimizer(t, sys, Config{ServiceLevel: 0.99})

	// WHEN optimized
	res, err := o.Optimize(context.Background())

	// THEN the second segment needs more capacity than it would from empty
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, []int{3}, res[0].Capacity)
	assert.Equal(t, []int{6}, res[1].Capacity)
	assert.Equal(t, 1, res[1].Segment)
}

func TestOptimize_IndependentAssets_MatchSingleAssetOptima(t *testing.T) {
	o := newOptimizer(t, systemFrom(t, twoLossAssets(false)), Config{ServiceLevel: 0.99, Workers: 4})

	res, err := o.Optimize(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []int{5, 3}, res[0].Capacity)
}

func TestOptimize_Overflow_DestinationSizedForRelocatedDemand(t *testing.T) {
	// GIVEN asset 0 overflowing into asset 1
	o := newOptimizer(t, systemFrom(t, twoLossAssets(true)), Config{ServiceLevel: 0.99, Workers: 4})

	// WHEN optimized
	res, err := o.Optimize(context.Background())
	require.NoError(t, err)
	capacity := res[0].Capacity

	// THEN asset 0 keeps its stand-alone optimum, since nothing flows into it
	assert.Equal(t, 5, capacity[0])

	// AND asset 1 is the smallest feasible capacity alongside it
	assert.GreaterOrEqual(t, capacity[1], 3)
	for i, m := range res[0].Marginals {
		assert.LessOrEqual(t, m[len(m)-1], 0.01, "asset %d", i)
	}
	assert.Greater(t, blocking(t, o.eval, []int{capacity[0], capacity[1] - 1}, 1), 0.01)
}

func TestOptimize_MaxCapacityExceeded_ReturnsError(t *testing.T) {
	o := newOptimizer(t, systemFrom(t, testutil.LossSystem(1, 2, 1)), Config{ServiceLevel: 0.99, MaxCapacity: 3})

	_, err := o.Optimize(context.Background())

	assert.ErrorIs(t, err, ErrCapacityNotFound)
}

func TestOptimize_CancelledContext_ReturnsError(t *testing.T) {
	o := newOptimizer(t, systemFrom(t, twoLossAssets(true)), Config{ServiceLevel: 0.99})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Optimize(ctx)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_Validation(t *testing.T) {
	eval, err := sim.NewEvaluator(systemFrom(t, testutil.LossSystem(1, 1, 1)), sim.DefaultSolverConfig())
	require.NoError(t, err)

	for _, level := range []float64{0, 1, -0.5} {
		_, err := New(eval, Config{ServiceLevel: level})
		assert.ErrorIs(t, err, sim.ErrInvalidConfig, "level %v", level)
	}
	_, err = New(nil, DefaultConfig())
	assert.ErrorIs(t, err, sim.ErrInvalidConfig)

	o, err := New(eval, Config{ServiceLevel: 0.9})
	require.NoError(t, err)
	assert.Positive(t, o.Config().Workers)
	assert.Equal(t, DefaultMaxCapacity, o.Config().MaxCapacity)
}

func TestNextInBox_OdometerOrder(t *testing.T) {
	lower, upper := []int{1, 2}, []int{2, 3}
	var got [][]int
	for c := append([]int(nil), lower...); c != nil; c = nextInBox(c, lower, upper) {
		got = append(got, append([]int(nil), c...))
	}
	assert.Equal(t, [][]int{{1, 2}, {1, 3}, {2, 2}, {2, 3}}, got)
}
