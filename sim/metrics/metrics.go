// Package metrics exposes engine activity as Prometheus metrics. A Collector
// is attached to an evaluator as its sim.Observer.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tranreloc/tranreloc/sim"
)

// Collector records generator builds, uniformization work, migrations and
// segment timings. It is safe for concurrent use.
type Collector struct {
	gatherer prometheus.Gatherer

	GeneratorBuilds   prometheus.Counter
	StateSpaceStates  prometheus.Gauge
	GeneratorEntries  prometheus.Gauge
	MaxExitRate       prometheus.Gauge
	SolverSteps       prometheus.Counter
	SolverIterations  prometheus.Counter
	Migrations        *prometheus.CounterVec
	SegmentDuration   prometheus.Histogram
	SegmentsEvaluated prometheus.Counter
}

var _ sim.Observer = (*Collector)(nil)

// NewCollector registers the engine metrics against reg, or the default
// registerer when reg is nil. Metrics already registered under the same name
// are reused.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	c := &Collector{gatherer: gatherer}

	var err error
	if c.GeneratorBuilds, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tranreloc_generator_builds_total",
		Help: "Number of transition rate matrices built.",
	})); err != nil {
		return nil, err
	}
	if c.StateSpaceStates, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tranreloc_state_space_states",
		Help: "Number of states of the most recently built state space.",
	})); err != nil {
		return nil, err
	}
	if c.GeneratorEntries, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tranreloc_generator_entries",
		Help: "Stored entries of the most recently built transition rate matrix, diagonal included.",
	})); err != nil {
		return nil, err
	}
	if c.MaxExitRate, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tranreloc_generator_max_exit_rate",
		Help: "Largest total exit rate of the most recently built transition rate matrix.",
	})); err != nil {
		return nil, err
	}
	if c.SolverSteps, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tranreloc_uniformization_steps_total",
		Help: "Time steps taken by the uniformization solver.",
	})); err != nil {
		return nil, err
	}
	if c.SolverIterations, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tranreloc_uniformization_iterations_total",
		Help: "Vector-matrix products computed by the uniformization solver.",
	})); err != nil {
		return nil, err
	}
	if c.Migrations, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tranreloc_migrations_total",
		Help: "State distribution migrations between segments, by method.",
	}, []string{"method"})); err != nil {
		return nil, err
	}
	if c.SegmentDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tranreloc_segment_duration_seconds",
		Help:    "Wall time of one segment evaluation.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})); err != nil {
		return nil, err
	}
	if c.SegmentsEvaluated, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tranreloc_segments_evaluated_total",
		Help: "Segments evaluated to completion.",
	})); err != nil {
		return nil, err
	}
	return c, nil
}

// register registers col, returning the existing collector when one of the
// same type is already registered.
func register[T prometheus.Collector](reg prometheus.Registerer, col T) (T, error) {
	if err := reg.Register(col); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("metrics: collector already registered with incompatible type: %w", err)
		}
		var zero T
		return zero, err
	}
	return col, nil
}

// Gatherer returns the gatherer associated with the collector's registerer.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// GeneratorBuilt implements sim.Observer.
func (c *Collector) GeneratorBuilt(states, entries int, maxRate float64) {
	if c == nil {
		return
	}
	c.GeneratorBuilds.Inc()
	c.StateSpaceStates.Set(float64(states))
	c.GeneratorEntries.Set(float64(entries))
	c.MaxExitRate.Set(maxRate)
}

// Solved implements sim.Observer.
func (c *Collector) Solved(stats sim.SolveStats) {
	if c == nil {
		return
	}
	c.SolverSteps.Add(float64(stats.Steps))
	c.SolverIterations.Add(float64(stats.Iterations))
}

// Migrated implements sim.Observer.
func (c *Collector) Migrated(method sim.MigrationMethod) {
	if c == nil {
		return
	}
	c.Migrations.WithLabelValues(method.String()).Inc()
}

// SegmentDone implements sim.Observer.
func (c *Collector) SegmentDone(_ int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.SegmentsEvaluated.Inc()
	c.SegmentDuration.Observe(elapsed.Seconds())
}

// WriteTextfile writes everything g gathers to path in the text exposition
// format, creating parent directories as needed.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}
