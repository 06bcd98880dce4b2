package sim

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// probTolerance bounds the accepted deviation of an initial vector's sum from 1
// and of a sub-generator row sum above 0.
const probTolerance = 1e-9

// PhaseType is a continuous phase-type distribution: an initial phase
// distribution α over k transient phases and a k×k sub-generator T.
// The exit rate of phase i is -Σ_j T[i][j]. Values are immutable after construction.
type PhaseType struct {
	initial []float64
	gen     *mat.Dense
	exit    []float64
}

// NewPhaseType validates and builds a phase-type distribution.
func NewPhaseType(initial []float64, generator [][]float64) (*PhaseType, error) {
	k := len(initial)
	if k == 0 {
		return nil, fmt.Errorf("%w: no phases", ErrInvalidPhaseType)
	}
	if len(generator) != k {
		return nil, fmt.Errorf("%w: generator has %d rows, initial vector has %d entries",
			ErrInvalidPhaseType, len(generator), k)
	}

	sum := 0.0
	for i, a := range initial {
		if !finite(a) || a < 0 {
			return nil, fmt.Errorf("%w: initial probability %d is %v", ErrInvalidPhaseType, i, a)
		}
		sum += a
	}
	if math.Abs(sum-1) > probTolerance {
		return nil, fmt.Errorf("%w: initial vector sums to %v", ErrInvalidPhaseType, sum)
	}

	gen := mat.NewDense(k, k, nil)
	exit := make([]float64, k)
	for i, row := range generator {
		if len(row) != k {
			return nil, fmt.Errorf("%w: generator row %d has %d entries, want %d",
				ErrInvalidPhaseType, i, len(row), k)
		}
		rowSum := 0.0
		for j, v := range row {
			if !finite(v) {
				return nil, fmt.Errorf("%w: generator entry (%d,%d) is %v", ErrInvalidPhaseType, i, j, v)
			}
			if i != j && v < 0 {
				return nil, fmt.Errorf("%w: negative off-diagonal rate %v at (%d,%d)", ErrInvalidPhaseType, v, i, j)
			}
			rowSum += v
		}
		if rowSum > probTolerance {
			return nil, fmt.Errorf("%w: generator row %d sums to %v > 0", ErrInvalidPhaseType, i, rowSum)
		}
		gen.SetRow(i, row)
		exit[i] = math.Max(0, -rowSum)
	}

	init := make([]float64, k)
	copy(init, initial)
	return &PhaseType{initial: init, gen: gen, exit: exit}, nil
}

// NewExponential returns the single-phase distribution with the given rate.
func NewExponential(rate float64) (*PhaseType, error) {
	return NewPhaseType([]float64{1}, [][]float64{{-rate}})
}

// Phases returns the number of transient phases.
func (p *PhaseType) Phases() int { return len(p.initial) }

// Initial returns the probability of entering in phase i.
func (p *PhaseType) Initial(i int) float64 { return p.initial[i] }

// Rate returns the sub-generator entry T[from][to].
func (p *PhaseType) Rate(from, to int) float64 { return p.gen.At(from, to) }

// ExitRate returns the absorption rate out of phase i.
func (p *PhaseType) ExitRate(i int) float64 { return p.exit[i] }

// Mean returns the expected time to absorption, α(-T)⁻¹1.
func (p *PhaseType) Mean() (float64, error) {
	k := p.Phases()
	negT := mat.NewDense(k, k, nil)
	negT.Scale(-1, p.gen)
	ones := make([]float64, k)
	for i := range ones {
		ones[i] = 1
	}
	var x mat.VecDense
	if err := x.SolveVec(negT, mat.NewVecDense(k, ones)); err != nil {
		// An ill-conditioned solve still yields a usable result.
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return 0, fmt.Errorf("%w: sub-generator is singular: %v", ErrInvalidPhaseType, err)
		}
	}
	return mat.Dot(mat.NewVecDense(k, append([]float64(nil), p.initial...)), &x), nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
