// Package results aggregates per-segment occupancy distributions into
// summary measures and writes them as CSV.
package results

import (
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/tranreloc/tranreloc/sim"
)

// ErrAssetMismatch is returned when a segment result describes a different
// number of assets than the ones already aggregated.
var ErrAssetMismatch = errors.New("results: asset count mismatch")

// Percentiles are the occupancy percentiles reported per asset.
var Percentiles = []float64{0.01, 0.025, 0.25, 0.5, 0.75, 0.975, 0.99}

// Measures summarises one segment.
type Measures struct {
	Segment     int
	Mean        []float64   // expected occupancy per asset
	Blocking    []float64   // probability that the asset is full
	Capacity    []int       // per asset
	Percentiles [][]int     // per asset, one level per entry of Percentiles
	Marginals   [][]float64 // per asset occupancy distribution
	Runtime     time.Duration
}

// Aggregated collects the measures of consecutive segments.
type Aggregated struct {
	assets int
	rows   []Measures
}

// Add summarises r and appends it.
func (a *Aggregated) Add(r sim.SegmentResult) error {
	if len(r.Marginals) != len(r.Capacity) {
		return fmt.Errorf("%w: segment %d has %d marginals for %d capacities",
			ErrAssetMismatch, r.Segment, len(r.Marginals), len(r.Capacity))
	}
	if len(a.rows) > 0 && len(r.Marginals) != a.assets {
		return fmt.Errorf("%w: segment %d has %d assets, want %d", ErrAssetMismatch, r.Segment, len(r.Marginals), a.assets)
	}
	a.assets = len(r.Marginals)

	m := Measures{
		Segment:     r.Segment,
		Mean:        make([]float64, a.assets),
		Blocking:    make([]float64, a.assets),
		Capacity:    append([]int(nil), r.Capacity...),
		Percentiles: make([][]int, a.assets),
		Marginals:   make([][]float64, a.assets),
		Runtime:     r.Runtime,
	}
	for i, dist := range r.Marginals {
		m.Mean[i] = Mean(dist)
		m.Blocking[i] = BlockingProbability(dist)
		m.Percentiles[i] = make([]int, len(Percentiles))
		for j, p := range Percentiles {
			m.Percentiles[i][j] = Percentile(dist, p)
		}
		m.Marginals[i] = append([]float64(nil), dist...)
	}
	a.rows = append(a.rows, m)
	return nil
}

// AddAll adds every result in order.
func (a *Aggregated) AddAll(rs []sim.SegmentResult) error {
	for _, r := range rs {
		if err := a.Add(r); err != nil {
			return err
		}
	}
	return nil
}

// Assets returns the number of assets per row, zero before the first Add.
func (a *Aggregated) Assets() int { return a.assets }

// Rows returns the aggregated measures in insertion order.
func (a *Aggregated) Rows() []Measures { return a.rows }

// Mean returns Σ i·dist[i].
func Mean(dist []float64) float64 {
	levels := make([]float64, len(dist))
	for i := range levels {
		levels[i] = float64(i)
	}
	return floats.Dot(levels, dist)
}

// BlockingProbability returns the mass of the top occupancy level.
func BlockingProbability(dist []float64) float64 {
	if len(dist) == 0 {
		return 0
	}
	return dist[len(dist)-1]
}

// Percentile returns the smallest level whose cumulative mass reaches p.
// When rounding leaves the total below p the top level is returned.
func Percentile(dist []float64, p float64) int {
	if len(dist) == 0 {
		return 0
	}
	cum := floats.CumSum(make([]float64, len(dist)), dist)
	for i, c := range cum {
		if c >= p {
			return i
		}
	}
	return len(dist) - 1
}
