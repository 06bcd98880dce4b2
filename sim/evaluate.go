package sim

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Segment holds the parameters of one time segment.
type Segment struct {
	Capacity      []int          // per asset
	ArrivalRates  []float64      // per asset
	Distributions [][]*PhaseType // per asset, per rental-time distribution; index 0 is primary
}

// System is a complete evaluation input: a sequence of segments over the same
// assets, the relocation rules and the occupancy at the start of segment 0.
type System struct {
	Segments   []Segment
	Relocation *RelocationMap
	Occupied   []int
}

// Assets returns the number of assets.
func (s *System) Assets() int { return len(s.Occupied) }

// Validate checks that all segments describe the same assets.
func (s *System) Validate() error {
	if len(s.Segments) == 0 {
		return fmt.Errorf("%w: no segments", ErrInvalidConfig)
	}
	if s.Relocation == nil {
		return fmt.Errorf("%w: nil relocation map", ErrInvalidRelocation)
	}
	n := s.Relocation.Assets()
	if len(s.Occupied) != n {
		return fmt.Errorf("%w: %d occupancies for %d assets", ErrInvalidOccupancy, len(s.Occupied), n)
	}
	for t, seg := range s.Segments {
		if len(seg.Capacity) != n || len(seg.ArrivalRates) != n || len(seg.Distributions) != n {
			return fmt.Errorf("%w: segment %d does not describe %d assets", ErrInvalidConfig, t, n)
		}
		for i, dists := range seg.Distributions {
			if len(dists) != s.Relocation.distCounts[i] {
				return fmt.Errorf("%w: segment %d asset %d has %d distributions, want %d",
					ErrInvalidConfig, t, i, len(dists), s.Relocation.distCounts[i])
			}
		}
	}
	return nil
}

// Observer receives notifications about evaluation work.
type Observer interface {
	GeneratorBuilt(states, entries int, maxRate float64)
	Solved(stats SolveStats)
	Migrated(method MigrationMethod)
	SegmentDone(segment int, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) GeneratorBuilt(int, int, float64) {}
func (nopObserver) Solved(SolveStats) {}
func (nopObserver) Migrated(MigrationMethod) {}
func (nopObserver) SegmentDone(int, time.Duration) {}

// SegmentResult is the outcome of one evaluated segment.
type SegmentResult struct {
	Segment   int
	Capacity  []int
	Marginals [][]float64 // per asset, probability of each occupancy level
	Runtime   time.Duration
}

// Evaluator computes transient distributions segment by segment.
type Evaluator struct {
	system   *System
	cfg      SolverConfig
	observer Observer
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithObserver attaches an observer to the evaluator.
func WithObserver(o Observer) EvaluatorOption {
	return func(e *Evaluator) {
		if o != nil {
			e.observer = o
		}
	}
}

// NewEvaluator validates sys and cfg.
func NewEvaluator(sys *System, cfg SolverConfig, opts ...EvaluatorOption) (*Evaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := sys.Validate(); err != nil {
		return nil, err
	}
	e := &Evaluator{system: sys, cfg: cfg, observer: nopObserver{}}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// System returns the evaluated system.
func (e *Evaluator) System() *System { return e.system }

// Config returns the solver configuration.
func (e *Evaluator) Config() SolverConfig { return e.cfg }

// BuildStateSpace builds the state space of segment seg. A nil capacity uses
// the segment's own capacities.
func (e *Evaluator) BuildStateSpace(seg int, capacity []int) (*StateSpace, error) {
	if seg < 0 || seg >= len(e.system.Segments) {
		return nil, fmt.Errorf("%w: segment %d out of range", ErrInvalidConfig, seg)
	}
	s := e.system.Segments[seg]
	if capacity == nil {
		capacity = s.Capacity
	}
	if len(capacity) != e.system.Assets() {
		return nil, fmt.Errorf("%w: %d capacities for %d assets", ErrInvalidConfig, len(capacity), e.system.Assets())
	}
	assets := make([]*Asset, len(capacity))
	for i := range assets {
		a, err := NewAsset(capacity[i], s.Distributions[i], s.ArrivalRates[i])
		if err != nil {
			return nil, fmt.Errorf("segment %d asset %d: %w", seg, i, err)
		}
		assets[i] = a
	}
	return NewStateSpace(assets, e.system.Relocation)
}

// EvaluateSegment seeds segment seg with occ and solves it.
func (e *Evaluator) EvaluateSegment(occ []int, seg int, capacity []int) (*StateDistribution, error) {
	space, err := e.BuildStateSpace(seg, capacity)
	if err != nil {
		return nil, err
	}
	d := NewStateDistribution(space)
	if err := d.SetOccupiedCapacity(occ); err != nil {
		return nil, err
	}
	return d, e.solve(d)
}

// EvaluateSegmentFrom migrates a copy of prev onto segment seg and solves it.
// prev is not modified.
func (e *Evaluator) EvaluateSegmentFrom(prev *StateDistribution, seg int, capacity []int) (*StateDistribution, error) {
	space, err := e.BuildStateSpace(seg, capacity)
	if err != nil {
		return nil, err
	}
	d := prev.Clone()
	method, err := d.NewStateSpace(space, e.cfg.Migration)
	if err != nil {
		return nil, err
	}
	e.observer.Migrated(method)
	return d, e.solve(d)
}

func (e *Evaluator) solve(d *StateDistribution) error {
	q := NewTransitionRateMatrix(d.space)
	e.observer.GeneratorBuilt(q.Size(), q.NonZeros(), q.MaxRate())
	solver, err := NewStateDistSolver(q, e.cfg.Tolerance)
	if err != nil {
		return err
	}
	stats, err := solver.Uniformization(d, e.cfg.SegmentLength)
	if err != nil {
		return err
	}
	e.observer.Solved(stats)
	return nil
}

// EvaluateSequence evaluates every segment in order, each starting from the
// distribution at the end of the previous one.
func (e *Evaluator) EvaluateSequence() ([]SegmentResult, error) {
	results := make([]SegmentResult, 0, len(e.system.Segments))
	var prev *StateDistribution
	for t := range e.system.Segments {
		start := time.Now()
		var (
			d   *StateDistribution
			err error
		)
		if prev == nil {
			d, err = e.EvaluateSegment(e.system.Occupied, t, nil)
		} else {
			d, err = e.EvaluateSegmentFrom(prev, t, nil)
		}
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", t, err)
		}
		elapsed := time.Since(start)
		e.observer.SegmentDone(t, elapsed)
		logrus.Infof("segment %d: %d states solved in %v", t, d.space.Size(), elapsed)
		results = append(results, SegmentResult{
			Segment:   t,
			Capacity:  d.space.Capacities(),
			Marginals: d.MarginalStateDists(),
			Runtime:   elapsed,
		})
		prev = d
	}
	return results, nil
}
