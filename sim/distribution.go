package sim

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// Lifecycle tracks what has been done to a StateDistribution.
type Lifecycle int

const (
	Uninitialized Lifecycle = iota
	Seeded
	Solved
	Migrated
)

func (l Lifecycle) String() string {
	switch l {
	case Uninitialized:
		return "uninitialized"
	case Seeded:
		return "seeded"
	case Solved:
		return "solved"
	case Migrated:
		return "migrated"
	}
	return fmt.Sprintf("Lifecycle(%d)", int(l))
}

// StateDistribution is a probability vector over the states of a StateSpace.
type StateDistribution struct {
	space *StateSpace
	probs []float64
	phase Lifecycle
}

// NewStateDistribution returns an all-zero, uninitialized vector over s.
func NewStateDistribution(s *StateSpace) *StateDistribution {
	return &StateDistribution{space: s, probs: make([]float64, s.Size())}
}

// Space returns the state space the vector is defined on.
func (d *StateDistribution) Space() *StateSpace { return d.space }

// Phase returns the lifecycle stage.
func (d *StateDistribution) Phase() Lifecycle { return d.phase }

// Probabilities returns the probability vector. The slice is shared.
func (d *StateDistribution) Probabilities() []float64 { return d.probs }

// Sum returns the total mass.
func (d *StateDistribution) Sum() float64 { return floats.Sum(d.probs) }

// Clone returns an independent copy of d on the same state space.
func (d *StateDistribution) Clone() *StateDistribution {
	return &StateDistribution{
		space: d.space,
		probs: append([]float64(nil), d.probs...),
		phase: d.phase,
	}
}

// SetStateDistribution replaces the vector with p, which must have one finite,
// non-negative entry per state.
func (d *StateDistribution) SetStateDistribution(p []float64) error {
	if len(p) != len(d.probs) {
		return fmt.Errorf("%w: got %d probabilities for %d states", ErrStateSpaceMismatch, len(p), len(d.probs))
	}
	for i, v := range p {
		if !finite(v) || v < 0 {
			return fmt.Errorf("%w: probability of state %d is %v", ErrDegenerateDistribution, i, v)
		}
	}
	copy(d.probs, p)
	d.phase = Seeded
	return nil
}

// Normalize scales the vector to unit mass.
func (d *StateDistribution) Normalize() error {
	sum := d.Sum()
	if !finite(sum) || sum <= 0 {
		return fmt.Errorf("%w: total mass %v", ErrDegenerateDistribution, sum)
	}
	floats.Scale(1/sum, d.probs)
	return nil
}

// SetOccupiedCapacity seeds the vector with occ[i] occupants at asset i, all
// following the primary distribution and all entering the same phase. Each
// such state gets the product over occupied assets of the entry probability of
// the phase holding the occupants.
func (d *StateDistribution) SetOccupiedCapacity(occ []int) error {
	s := d.space
	if len(occ) != s.Assets() {
		return fmt.Errorf("%w: got %d occupancies for %d assets", ErrInvalidOccupancy, len(occ), s.Assets())
	}
	for i, n := range occ {
		if n < 0 || n > s.assets[i].capacity {
			return fmt.Errorf("%w: asset %d occupancy %d outside [0,%d]",
				ErrInvalidOccupancy, i, n, s.assets[i].capacity)
		}
	}

	for i := range d.probs {
		d.probs[i] = 0
	}
	c := s.Start()
	for k := 0; k < s.Size(); k++ {
		if p, ok := seedProbability(s, c, occ); ok {
			d.probs[c.index] = p
		}
		s.Next(c)
	}
	if sum := d.Sum(); sum <= 0 {
		return fmt.Errorf("%w: no state matches occupancy %v", ErrDegenerateDistribution, occ)
	}
	d.phase = Seeded
	return nil
}

// seedProbability reports whether c is a seed state for occ and its weight.
func seedProbability(s *StateSpace, c *Cursor, occ []int) (float64, bool) {
	p := 1.0
	for i, a := range s.assets {
		st := &c.assets[i]
		if st.occupancy[0] != occ[i] || st.used != occ[i] {
			return 0, false
		}
		if occ[i] == 0 {
			continue
		}
		phases := a.Phases(st, 0)
		hit := -1
		for ph, n := range phases {
			if n == occ[i] {
				hit = ph
			} else if n != 0 {
				return 0, false
			}
		}
		p *= a.dists[0].Initial(hit)
	}
	return p, true
}

// SetToAllAvailable seeds the vector with every asset empty.
func (d *StateDistribution) SetToAllAvailable() error {
	return d.SetOccupiedCapacity(make([]int, d.space.Assets()))
}

// SetToRandomProbabilities fills the vector with uniform random weights drawn
// from seed and normalizes it.
func (d *StateDistribution) SetToRandomProbabilities(seed int64) error {
	rng := rand.New(rand.NewSource(seed))
	for i := range d.probs {
		d.probs[i] = rng.Float64()
	}
	if err := d.Normalize(); err != nil {
		return err
	}
	d.phase = Seeded
	return nil
}

// MarginalStateDists returns, for every asset, the probability of each
// occupancy level 0..capacity.
func (d *StateDistribution) MarginalStateDists() [][]float64 {
	s := d.space
	marg := make([][]float64, s.Assets())
	for i, a := range s.assets {
		marg[i] = make([]float64, a.capacity+1)
	}
	c := s.Start()
	for k := 0; k < s.Size(); k++ {
		p := d.probs[c.index]
		if p != 0 {
			for i := range s.assets {
				marg[i][c.assets[i].used] += p
			}
		}
		s.Next(c)
	}
	return marg
}
