package sim

import (
	"fmt"

	"gonum.org/v1/gonum/stat/combin"
)

// LocalStateSpace enumerates the ways c indistinguishable occupants can sit in
// k phases: every vector v of k non-negative integers with Σv = c.
//
// The order is fixed. State 0 is [c,0,...,0]; positions 1..k-1 then count like an
// odometer (rightmost fastest) bounded by Σ ≤ c, with position 0 taking the slack.
// Index ranks any vector in closed form, so no search over the enumeration is needed.
type LocalStateSpace struct {
	occupants int
	phases    int
	states    [][]int
}

// NewLocalStateSpace enumerates all compositions of c over k phases.
// It panics if c < 0 or k < 1.
func NewLocalStateSpace(c, k int) *LocalStateSpace {
	if c < 0 || k < 1 {
		panic(fmt.Sprintf("NewLocalStateSpace: invalid arguments c=%d k=%d", c, k))
	}
	n := compositions(c, k)
	states := make([][]int, n)
	cur := make([]int, k)
	cur[0] = c
	for i := 0; i < n; i++ {
		states[i] = append([]int(nil), cur...)
		advanceComposition(cur, c)
	}
	return &LocalStateSpace{occupants: c, phases: k, states: states}
}

// advanceComposition steps v to its successor, wrapping to [c,0,...,0].
func advanceComposition(v []int, c int) {
	tail := c - v[0]
	for j := len(v) - 1; j >= 1; j-- {
		if tail < c {
			v[j]++
			v[0]--
			return
		}
		// Position j is exhausted; clear it and carry.
		tail -= v[j]
		v[0] += v[j]
		v[j] = 0
	}
}

// compositions returns C(c+k-1, k-1).
func compositions(c, k int) int {
	return combin.Binomial(c+k-1, k-1)
}

// boundedCount is the number of length-p vectors with sum at most b, C(b+p, p).
func boundedCount(p, b int) int {
	return combin.Binomial(b+p, p)
}

// Size returns the number of distinct phase vectors.
func (l *LocalStateSpace) Size() int { return len(l.states) }

// Occupants returns c.
func (l *LocalStateSpace) Occupants() int { return l.occupants }

// Phases returns k.
func (l *LocalStateSpace) Phases() int { return l.phases }

// State returns the phase vector at idx. The slice is shared and must not be modified.
func (l *LocalStateSpace) State(idx int) []int { return l.states[idx] }

// Next returns the index following idx, wrapping to 0 after the last vector.
func (l *LocalStateSpace) Next(idx int) int {
	idx++
	if idx == len(l.states) {
		return 0
	}
	return idx
}

// Index returns the position of v in the enumeration. v must have k entries summing to c.
func (l *LocalStateSpace) Index(v []int) int {
	rank := 0
	budget := l.occupants
	for j := 1; j < l.phases; j++ {
		rest := l.phases - 1 - j
		for x := 0; x < v[j]; x++ {
			rank += boundedCount(rest, budget-x)
		}
		budget -= v[j]
	}
	return rank
}
