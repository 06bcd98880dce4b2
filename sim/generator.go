package sim

import (
	"math"

	"github.com/sirupsen/logrus"
)

// TransitionRateMatrix is the sparse CTMC generator Q of a StateSpace in
// compressed-row form. After Transpose the rows hold columns of Q; after
// ToEmbeddedChain the entries hold the uniformized chain P = I + Q/γ.
type TransitionRateMatrix struct {
	space *StateSpace

	rowPtr []int
	cols   []int
	vals   []float64

	maxRate    float64
	transposed bool
	embedded   bool
}

// NewTransitionRateMatrix generates the generator of s in one pass over its states.
func NewTransitionRateMatrix(s *StateSpace) *TransitionRateMatrix {
	q := &TransitionRateMatrix{
		space:  s,
		rowPtr: make([]int, s.Size()+1),
	}
	b := rowBuilder{}
	c := s.Start()
	for i := 0; i < s.Size(); i++ {
		b.reset(s.TotalJumps(c) + 1)
		q.buildRow(c, &b)

		diag := 0.0
		for _, v := range b.vals {
			diag -= v
		}
		b.cols = append(b.cols, i)
		b.vals = append(b.vals, diag)
		q.maxRate = math.Max(q.maxRate, -diag)

		q.cols = append(q.cols, b.cols...)
		q.vals = append(q.vals, b.vals...)
		q.rowPtr[i+1] = len(q.cols)
		s.Next(c)
	}
	logrus.Debugf("generator: %d states, %d entries, max rate %.6g", s.Size(), len(q.cols), q.maxRate)
	return q
}

// rowBuilder accumulates the off-diagonal entries of one row.
type rowBuilder struct {
	cols     []int
	vals     []float64
	attempts int
}

func (b *rowBuilder) reset(capacity int) {
	b.cols = make([]int, 0, capacity)
	b.vals = make([]float64, 0, capacity)
	b.attempts = 0
}

func (b *rowBuilder) add(col int, rate float64) {
	b.attempts++
	b.cols = append(b.cols, col)
	b.vals = append(b.vals, rate)
}

// merge adds rate to an existing entry for col or appends a new one.
func (b *rowBuilder) merge(col int, rate float64) {
	b.attempts++
	for i, c := range b.cols {
		if c == col {
			b.vals[i] += rate
			return
		}
	}
	b.cols = append(b.cols, col)
	b.vals = append(b.vals, rate)
}

// buildRow writes the off-diagonal entries out of the state at c. Per asset:
// rental completions and phase moves of every occupied phase, then direct
// arrivals when the asset has room, or relocations to other assets when it is full.
func (q *TransitionRateMatrix) buildRow(c *Cursor, b *rowBuilder) {
	s := q.space
	rm := s.relocation
	blocked := s.Blocked(c)
	for i, a := range s.assets {
		st := &c.assets[i]
		if st.used > 0 {
			for d, pt := range a.dists {
				if st.occupancy[d] == 0 {
					continue
				}
				phases := a.Phases(st, d)
				for ph, n := range phases {
					if n == 0 {
						continue
					}
					count := float64(n)
					b.add(s.NewStateCapChange(c, i, d, ph, Down), count*pt.ExitRate(ph))
					for to := 0; to < pt.Phases(); to++ {
						if to == ph {
							continue
						}
						b.add(s.NewStatePhaseChange(c, i, d, ph, to), count*pt.Rate(ph, to))
					}
				}
			}
		}

		if st.used < a.capacity {
			for ph := 0; ph < a.dists[0].Phases(); ph++ {
				b.merge(s.NewStateCapChange(c, i, 0, ph, Up), a.ArrivalRateToPhase(ph))
			}
			continue
		}

		for j, dest := range s.assets {
			if j == i || c.assets[j].used >= dest.capacity || !rm.CanRelocate(i, j) {
				continue
			}
			route := rm.Route(i, j)
			rate := a.arrivalRate * rm.Probability(i, j, blocked)
			for k, d := range route.Dists {
				pt := dest.dists[d]
				for ph := 0; ph < pt.Phases(); ph++ {
					b.merge(s.NewStateCapChange(c, j, d, ph, Up), rate*route.Probs[k]*pt.Initial(ph))
				}
			}
		}
	}
}

// Size returns the matrix dimension.
func (q *TransitionRateMatrix) Size() int { return q.space.Size() }

// Space returns the state space the matrix was generated from.
func (q *TransitionRateMatrix) Space() *StateSpace { return q.space }

// NonZeros returns the number of stored entries.
func (q *TransitionRateMatrix) NonZeros() int { return len(q.cols) }

// MaxRate returns γ, the largest total outflow rate of any state.
func (q *TransitionRateMatrix) MaxRate() float64 { return q.maxRate }

// Transposed reports whether rows currently hold columns of Q.
func (q *TransitionRateMatrix) Transposed() bool { return q.transposed }

// Embedded reports whether entries hold the uniformized chain.
func (q *TransitionRateMatrix) Embedded() bool { return q.embedded }

// Row returns the column indices and values of row i. The slices are shared.
func (q *TransitionRateMatrix) Row(i int) ([]int, []float64) {
	lo, hi := q.rowPtr[i], q.rowPtr[i+1]
	return q.cols[lo:hi], q.vals[lo:hi]
}

// Transpose converts the matrix to column-major storage. Repeated calls are no-ops.
func (q *TransitionRateMatrix) Transpose() {
	if q.transposed {
		return
	}
	n := q.Size()
	ptr := make([]int, n+1)
	for _, c := range q.cols {
		ptr[c+1]++
	}
	for i := 0; i < n; i++ {
		ptr[i+1] += ptr[i]
	}
	cols := make([]int, len(q.cols))
	vals := make([]float64, len(q.vals))
	next := append([]int(nil), ptr[:n]...)
	for r := 0; r < n; r++ {
		for k := q.rowPtr[r]; k < q.rowPtr[r+1]; k++ {
			c := q.cols[k]
			cols[next[c]] = r
			vals[next[c]] = q.vals[k]
			next[c]++
		}
	}
	q.rowPtr, q.cols, q.vals = ptr, cols, vals
	q.transposed = true
}

// ToEmbeddedChain rewrites the entries as P = I + Q/γ. Repeated calls are no-ops,
// as is a matrix with γ = 0.
func (q *TransitionRateMatrix) ToEmbeddedChain() {
	if q.embedded || q.maxRate == 0 {
		return
	}
	for r := 0; r < q.Size(); r++ {
		for k := q.rowPtr[r]; k < q.rowPtr[r+1]; k++ {
			q.vals[k] /= q.maxRate
			if q.cols[k] == r {
				q.vals[k]++
			}
		}
	}
	q.embedded = true
}
