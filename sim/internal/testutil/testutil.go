// Package testutil provides shared test infrastructure for the engine packages.
// It holds assertion helpers and the reference two-asset fixture as plain data,
// so it can be imported from sim/ and its sub-packages without cycles.
package testutil

import (
	"math"
	"testing"
)

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}

// AssertSumsToOne checks that a probability vector has unit mass within absTol.
func AssertSumsToOne(t *testing.T, name string, p []float64, absTol float64) {
	t.Helper()
	sum := 0.0
	for _, v := range p {
		sum += v
	}
	if math.Abs(sum-1) > absTol {
		t.Errorf("%s: sums to %v, want 1 (tolerance %v)", name, sum, absTol)
	}
}

// AssertNonNegative checks that no entry is below -absTol.
func AssertNonNegative(t *testing.T, name string, p []float64, absTol float64) {
	t.Helper()
	for i, v := range p {
		if v < -absTol {
			t.Errorf("%s[%d] = %v, want >= 0", name, i, v)
		}
	}
}

// PhaseData is a phase-type distribution as raw numbers.
type PhaseData struct {
	Initial   []float64
	Generator [][]float64
}

// RouteData is a relocation route as raw numbers.
type RouteData struct {
	From, To int
	Dists    []int
	Probs    []float64
}

// RuleData is a relocation probability for one blocked set.
type RuleData struct {
	Prob     float64
	From, To int
	Blocked  []int
}

// Fixture is a single-segment system as raw numbers.
type Fixture struct {
	Capacity      []int
	ArrivalRates  []float64
	Distributions [][]PhaseData
	Routes        []RouteData
	Rules         []RuleData
	Occupied      []int
}

// DistCounts returns the number of distributions per asset.
func (f Fixture) DistCounts() []int {
	out := make([]int, len(f.Distributions))
	for i, d := range f.Distributions {
		out[i] = len(d)
	}
	return out
}

// Reference returns the two-asset system with primary and alternative
// distributions and mutual relocation used throughout the tests.
func Reference() Fixture {
	return Fixture{
		Capacity:     []int{3, 2},
		ArrivalRates: []float64{3.2, 2.1},
		Distributions: [][]PhaseData{
			{
				{Initial: []float64{0.75, 0.25}, Generator: [][]float64{{-2, 1}, {3, -5}}},
				{Initial: []float64{0.10, 0.90}, Generator: [][]float64{{-3, 2}, {0.5, -8}}},
			},
			{
				{Initial: []float64{0.10, 0.90}, Generator: [][]float64{{-10, 1.5}, {8, -9}}},
				{Initial: []float64{0.20, 0.80}, Generator: [][]float64{{-3, 2}, {8, -8.1}}},
			},
		},
		Routes: []RouteData{
			{From: 0, To: 1, Dists: []int{0, 1}, Probs: []float64{0.05, 0.95}},
			{From: 1, To: 0, Dists: []int{1}, Probs: []float64{1.0}},
		},
		Rules: []RuleData{
			{Prob: 1.0, From: 0, To: 1, Blocked: []int{0}},
			{Prob: 1.0, From: 1, To: 0, Blocked: []int{1}},
		},
		Occupied: []int{0, 0},
	}
}

// LossSystem returns a single asset with one exponential rental time.
func LossSystem(capacity int, arrivalRate, serviceRate float64) Fixture {
	return Fixture{
		Capacity:      []int{capacity},
		ArrivalRates:  []float64{arrivalRate},
		Distributions: [][]PhaseData{{{Initial: []float64{1}, Generator: [][]float64{{-serviceRate}}}}},
		Occupied:      []int{0},
	}
}
