package sim

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

// underflowHorizon is the largest γt solved in one uniformization step; e^{-70}
// is still well inside float64 range.
const underflowHorizon = 70.0

// SolveStats reports the work done by one Uniformization call.
type SolveStats struct {
	Steps      int // sub-intervals the horizon was split into
	Iterations int // Poisson terms summed over all steps
}

// StateDistSolver computes transient distributions by uniformization.
type StateDistSolver struct {
	q         *TransitionRateMatrix
	tolerance float64
}

// NewStateDistSolver returns a solver over q truncating each Poisson series at
// mass 1 - tolerance.
func NewStateDistSolver(q *TransitionRateMatrix, tolerance float64) (*StateDistSolver, error) {
	if !(tolerance > 0 && tolerance < 1) {
		return nil, fmt.Errorf("%w: tolerance %v not in (0,1)", ErrInvalidConfig, tolerance)
	}
	return &StateDistSolver{q: q, tolerance: tolerance}, nil
}

// TruncationOrder returns the smallest K such that the Poisson(gt) terms
// 0..K carry at least 1 - eps of the mass.
func TruncationOrder(gt, eps float64) int {
	target := (1 - eps) * math.Exp(gt)
	term, sigma := 1.0, 1.0
	k := 0
	for sigma < target {
		term *= gt / float64(k+1)
		sigma += term
		k++
	}
	return k
}

// Uniformization advances d by time t. A zero t leaves d unchanged, as does a
// chain without transitions. Each sub-step is renormalized.
func (s *StateDistSolver) Uniformization(d *StateDistribution, t float64) (SolveStats, error) {
	var stats SolveStats
	if d.space != s.q.space {
		return stats, fmt.Errorf("%w: distribution and generator use different state spaces", ErrStateSpaceMismatch)
	}
	if d.phase == Uninitialized {
		return stats, ErrUninitialized
	}
	if !finite(t) || t < 0 {
		return stats, fmt.Errorf("%w: negative or non-finite time %v", ErrInvalidConfig, t)
	}
	if t == 0 {
		return stats, nil
	}
	if s.q.maxRate == 0 {
		d.phase = Solved
		return stats, nil
	}

	s.q.Transpose()
	s.q.ToEmbeddedChain()

	gamma := s.q.maxRate
	step := underflowHorizon / gamma
	steps, last := 1, t
	if t > step {
		steps = int(math.Ceil(t / step))
		last = t - step*float64(steps-1)
	}
	for k := 0; k < steps; k++ {
		dt := step
		if k == steps-1 {
			dt = last
		}
		stats.Iterations += s.step(d.probs, gamma*dt)
		if err := d.Normalize(); err != nil {
			return stats, err
		}
	}
	stats.Steps = steps
	d.phase = Solved
	logrus.Debugf("uniformization: t=%v γ=%.6g steps=%d terms=%d", t, gamma, stats.Steps, stats.Iterations)
	return stats, nil
}

// step replaces pi with pi·e^{(P-I)gt} truncated after TruncationOrder terms.
func (s *StateDistSolver) step(pi []float64, gt float64) int {
	order := TruncationOrder(gt, s.tolerance)
	n := len(pi)
	acc := append([]float64(nil), pi...)
	y := append([]float64(nil), pi...)
	next := make([]float64, n)
	for k := 1; k <= order; k++ {
		scale := gt / float64(k)
		for i := 0; i < n; i++ {
			cols, vals := s.q.Row(i)
			sum := 0.0
			for j, c := range cols {
				sum += vals[j] * y[c]
			}
			next[i] = sum * scale
		}
		y, next = next, y
		floats.Add(acc, y)
	}
	floats.ScaleTo(pi, math.Exp(-gt), acc)
	return order
}
