package sim

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tranreloc/tranreloc/sim/internal/testutil"
)

// systemFromFixture builds a single-segment System from raw fixture data.
func systemFromFixture(t *testing.T, f testutil.Fixture) *System {
	t.Helper()
	rm, err := NewRelocationMap(f.DistCounts())
	require.NoError(t, err)
	for _, r := range f.Routes {
		require.NoError(t, rm.AddRoute(r.From, r.To, r.Dists, r.Probs))
	}
	for _, r := range f.Rules {
		require.NoError(t, rm.SetProbability(r.Prob, r.From, r.To, r.Blocked))
	}
	seg := Segment{
		Capacity:      append([]int(nil), f.Capacity...),
		ArrivalRates:  append([]float64(nil), f.ArrivalRates...),
		Distributions: make([][]*PhaseType, len(f.Distributions)),
	}
	for i, dists := range f.Distributions {
		for _, pd := range dists {
			pt, err := NewPhaseType(pd.Initial, pd.Generator)
			require.NoError(t, err)
			seg.Distributions[i] = append(seg.Distributions[i], pt)
		}
	}
	return &System{
		Segments:   []Segment{seg},
		Relocation: rm,
		Occupied:   append([]int(nil), f.Occupied...),
	}
}

// spaceFromFixture builds the state space of the fixture's only segment.
func spaceFromFixture(t *testing.T, f testutil.Fixture) *StateSpace {
	t.Helper()
	sys := systemFromFixture(t, f)
	e, err := NewEvaluator(sys, DefaultSolverConfig())
	require.NoError(t, err)
	s, err := e.BuildStateSpace(0, nil)
	require.NoError(t, err)
	return s
}

// stateKey identifies a global state by its per-asset phase vectors.
func stateKey(s *StateSpace, c *Cursor) string {
	key := make([]byte, 0, 32)
	for i := 0; i < s.Assets(); i++ {
		a := s.Asset(i)
		for d := 0; d < a.Distributions(); d++ {
			for _, n := range a.Phases(c.Asset(i), d) {
				key = append(key, byte('0'+n))
			}
			key = append(key, '|')
		}
		key = append(key, '#')
	}
	return string(key)
}

// indexByKey enumerates s once and maps each state key to its index.
func indexByKey(s *StateSpace) map[string]int {
	out := make(map[string]int, s.Size())
	c := s.Start()
	for i := 0; i < s.Size(); i++ {
		out[stateKey(s, c)] = c.Index()
		s.Next(c)
	}
	return out
}

func mustPhaseType(t *testing.T, initial []float64, gen [][]float64) *PhaseType {
	t.Helper()
	pt, err := NewPhaseType(initial, gen)
	require.NoError(t, err)
	return pt
}
