// Package optimize searches, segment by segment, for the least total capacity
// whose blocking probabilities meet a service level.
//
// A single asset is grown from its smallest admissible capacity until it meets
// the level. With several assets the search first bounds each asset:
//   - upper bound: grow the asset with every other asset at its minimum
//   - lower bound: grow the asset with every other asset at its upper bound
//
// and then enumerates the bound box. Bound searches and box enumeration fan out
// over a bounded worker pool; each task builds its own state space.
package optimize

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tranreloc/tranreloc/sim"
)

// ErrCapacityNotFound is returned (wrapped) when no capacity up to
// Config.MaxCapacity meets the service level.
var ErrCapacityNotFound = errors.New("optimize: no capacity meets the service level")

// Config controls the capacity search.
type Config struct {
	ServiceLevel float64 // in (0,1); an asset is feasible when its blocking probability is at most 1-ServiceLevel
	Workers      int     // concurrent evaluations; <= 0 means runtime.NumCPU()
	MaxCapacity  int     // per-asset search limit; <= 0 means DefaultMaxCapacity
}

// DefaultMaxCapacity is the per-asset search limit used when Config.MaxCapacity is unset.
const DefaultMaxCapacity = 1000

// DefaultConfig returns the default search settings.
func DefaultConfig() Config {
	return Config{ServiceLevel: 0.99, Workers: runtime.NumCPU(), MaxCapacity: DefaultMaxCapacity}
}

// Optimizer runs the capacity search over an evaluator's system.
type Optimizer struct {
	eval *sim.Evaluator
	cfg  Config
}

// New validates cfg and fills its defaults.
func New(eval *sim.Evaluator, cfg Config) (*Optimizer, error) {
	if eval == nil {
		return nil, fmt.Errorf("%w: nil evaluator", sim.ErrInvalidConfig)
	}
	if !(cfg.ServiceLevel > 0 && cfg.ServiceLevel < 1) {
		return nil, fmt.Errorf("%w: service level %v outside (0,1)", sim.ErrInvalidConfig, cfg.ServiceLevel)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.MaxCapacity <= 0 {
		cfg.MaxCapacity = DefaultMaxCapacity
	}
	return &Optimizer{eval: eval, cfg: cfg}, nil
}

// Config returns the effective configuration.
func (o *Optimizer) Config() Config { return o.cfg }

// Optimize returns, per segment, the optimal capacity and the marginal
// distributions it yields. Each segment starts from the distribution of the
// previous segment at its optimal capacity.
func (o *Optimizer) Optimize(ctx context.Context) ([]sim.SegmentResult, error) {
	sys := o.eval.System()
	results := make([]sim.SegmentResult, 0, len(sys.Segments))
	var prev *sim.StateDistribution
	for t := range sys.Segments {
		start := time.Now()
		var (
			capacity []int
			d        *sim.StateDistribution
			err      error
		)
		if sys.Assets() == 1 {
			capacity, d, err = o.single(ctx, t, prev)
		} else {
			capacity, d, err = o.multiple(ctx, t, prev)
		}
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", t, err)
		}
		elapsed := time.Since(start)
		logrus.Infof("segment %d: optimal capacity %v found in %v", t, capacity, elapsed)
		results = append(results, sim.SegmentResult{
			Segment:   t,
			Capacity:  capacity,
			Marginals: d.MarginalStateDists(),
			Runtime:   elapsed,
		})
		prev = d
	}
	return results, nil
}

func (o *Optimizer) single(ctx context.Context, seg int, prev *sim.StateDistribution) ([]int, *sim.StateDistribution, error) {
	capacity := o.minimum(prev)
	c, d, err := o.searchUp(ctx, seg, prev, capacity, 0)
	if err != nil {
		return nil, nil, err
	}
	return []int{c}, d, nil
}

func (o *Optimizer) multiple(ctx context.Context, seg int, prev *sim.StateDistribution) ([]int, *sim.StateDistribution, error) {
	lower, upper, err := o.bounds(ctx, seg, prev)
	if err != nil {
		return nil, nil, err
	}
	logrus.Debugf("segment %d: capacity bounds lower=%v upper=%v", seg, lower, upper)

	best, err := o.enumerate(ctx, seg, prev, lower, upper)
	if err != nil {
		return nil, nil, err
	}
	d, err := o.evaluate(seg, prev, best)
	if err != nil {
		return nil, nil, err
	}
	return best, d, nil
}

// minimum returns the smallest capacity tried per asset. Segment 0 must hold
// its starting occupancy.
func (o *Optimizer) minimum(prev *sim.StateDistribution) []int {
	occ := o.eval.System().Occupied
	out := make([]int, len(occ))
	for i := range out {
		out[i] = 1
		if prev == nil && occ[i] > 1 {
			out[i] = occ[i]
		}
	}
	return out
}

// bounds derives the per-asset capacity bounds.
func (o *Optimizer) bounds(ctx context.Context, seg int, prev *sim.StateDistribution) ([]int, []int, error) {
	minimum := o.minimum(prev)
	n := len(minimum)
	upper := make([]int, n)
	lower := make([]int, n)

	if err := o.each(ctx, n, func(ctx context.Context, i int) (err error) {
		upper[i], _, err = o.searchUp(ctx, seg, prev, append([]int(nil), minimum...), i)
		return err
	}); err != nil {
		return nil, nil, fmt.Errorf("upper bounds: %w", err)
	}

	if err := o.each(ctx, n, func(ctx context.Context, i int) (err error) {
		capacity := append([]int(nil), upper...)
		capacity[i] = minimum[i]
		lower[i], _, err = o.searchUp(ctx, seg, prev, capacity, i)
		return err
	}); err != nil {
		return nil, nil, fmt.Errorf("lower bounds: %w", err)
	}

	for i := range upper {
		if lower[i] > upper[i] {
			upper[i] = lower[i]
		}
	}
	return lower, upper, nil
}

// enumerate evaluates every configuration in the box [lower, upper] and
// returns the feasible one of least total capacity. Ties go to the first
// configuration in odometer order (last asset fastest); upper is returned when
// nothing beats it.
func (o *Optimizer) enumerate(ctx context.Context, seg int, prev *sim.StateDistribution, lower, upper []int) ([]int, error) {
	var configs [][]int
	for c := append([]int(nil), lower...); c != nil; c = nextInBox(c, lower, upper) {
		configs = append(configs, append([]int(nil), c...))
	}
	feasible := make([]bool, len(configs))
	if err := o.each(ctx, len(configs), func(ctx context.Context, k int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		d, err := o.evaluate(seg, prev, configs[k])
		if err != nil {
			return err
		}
		feasible[k] = o.feasible(d, nil)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("enumeration: %w", err)
	}

	best := append([]int(nil), upper...)
	bestTotal := total(best)
	for k, c := range configs {
		if feasible[k] && total(c) < bestTotal {
			best, bestTotal = c, total(c)
		}
	}
	logrus.Debugf("segment %d: %d configurations evaluated, best %v", seg, len(configs), best)
	return best, nil
}

// searchUp grows capacity[asset] from its current value until that asset meets
// the service level. capacity is modified.
func (o *Optimizer) searchUp(ctx context.Context, seg int, prev *sim.StateDistribution, capacity []int, asset int) (int, *sim.StateDistribution, error) {
	for c := capacity[asset]; c <= o.cfg.MaxCapacity; c++ {
		if err := ctx.Err(); err != nil {
			return 0, nil, err
		}
		capacity[asset] = c
		d, err := o.evaluate(seg, prev, capacity)
		if err != nil {
			return 0, nil, err
		}
		if o.feasible(d, []int{asset}) {
			return c, d, nil
		}
	}
	return 0, nil, fmt.Errorf("%w: asset %d exceeds %d", ErrCapacityNotFound, asset, o.cfg.MaxCapacity)
}

func (o *Optimizer) evaluate(seg int, prev *sim.StateDistribution, capacity []int) (*sim.StateDistribution, error) {
	if prev == nil {
		return o.eval.EvaluateSegment(o.eval.System().Occupied, seg, capacity)
	}
	return o.eval.EvaluateSegmentFrom(prev, seg, capacity)
}

// feasible reports whether the listed assets (all when nil) meet the service level.
func (o *Optimizer) feasible(d *sim.StateDistribution, assets []int) bool {
	limit := 1 - o.cfg.ServiceLevel
	marginals := d.MarginalStateDists()
	if assets == nil {
		for i := range marginals {
			assets = append(assets, i)
		}
	}
	for _, i := range assets {
		if m := marginals[i]; m[len(m)-1] > limit {
			return false
		}
	}
	return true
}

// each runs fn for 0..n-1 on at most Workers goroutines and returns the first error.
func (o *Optimizer) each(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)
	var mu sync.Mutex
	done := 0
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := fn(ctx, i); err != nil {
				return err
			}
			mu.Lock()
			done++
			logrus.Debugf("optimize: %d/%d tasks done", done, n)
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// nextInBox advances c to the next configuration in the box, or returns nil
// after the last one.
func nextInBox(c, lower, upper []int) []int {
	for i := len(c) - 1; i >= 0; i-- {
		if c[i] < upper[i] {
			c[i]++
			return c
		}
		c[i] = lower[i]
	}
	return nil
}

func total(c []int) int {
	sum := 0
	for _, v := range c {
		sum += v
	}
	return sum
}
