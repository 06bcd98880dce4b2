package sim

import (
	"fmt"
)

// StateSpace is the product of the local state spaces of all assets. Global
// state indices are mixed-radix over the asset-local indices with the last
// asset varying fastest.
type StateSpace struct {
	assets     []*Asset
	relocation *RelocationMap
	reps       []int
	size       int
}

// Cursor identifies one global state. Cursors are independent values, so any
// number of traversals may run over the same StateSpace.
type Cursor struct {
	index  int
	assets []AssetState
}

// Index returns the global state index.
func (c *Cursor) Index() int { return c.index }

// Asset returns the local state of asset i.
func (c *Cursor) Asset(i int) *AssetState { return &c.assets[i] }

// Clone returns an independent copy of c.
func (c *Cursor) Clone() *Cursor {
	out := &Cursor{index: c.index, assets: make([]AssetState, len(c.assets))}
	for i := range c.assets {
		out.assets[i] = c.assets[i].clone()
	}
	return out
}

// NewStateSpace combines assets under a relocation map describing the same assets.
func NewStateSpace(assets []*Asset, relocation *RelocationMap) (*StateSpace, error) {
	if len(assets) == 0 {
		return nil, fmt.Errorf("%w: no assets", ErrInvalidAsset)
	}
	if relocation == nil {
		return nil, fmt.Errorf("%w: nil relocation map", ErrInvalidRelocation)
	}
	if err := relocation.Validate(assets); err != nil {
		return nil, err
	}
	s := &StateSpace{
		assets:     append([]*Asset(nil), assets...),
		relocation: relocation,
		reps:       make([]int, len(assets)),
		size:       1,
	}
	for i := len(assets) - 1; i >= 0; i-- {
		s.reps[i] = s.size
		s.size *= assets[i].Size()
		if s.size > maxStates {
			return nil, fmt.Errorf("%w: more than %d states", ErrStateSpaceTooLarge, maxStates)
		}
	}
	return s, nil
}

// Size returns the number of global states.
func (s *StateSpace) Size() int { return s.size }

// Assets returns the number of assets.
func (s *StateSpace) Assets() int { return len(s.assets) }

// Asset returns asset i.
func (s *StateSpace) Asset(i int) *Asset { return s.assets[i] }

// Relocation returns the relocation map.
func (s *StateSpace) Relocation() *RelocationMap { return s.relocation }

// Capacities returns the capacity of every asset.
func (s *StateSpace) Capacities() []int {
	caps := make([]int, len(s.assets))
	for i, a := range s.assets {
		caps[i] = a.Capacity()
	}
	return caps
}

// SameStructure reports whether other enumerates states identically: same
// capacities and same phase counts for every distribution.
func (s *StateSpace) SameStructure(other *StateSpace) bool {
	if len(s.assets) != len(other.assets) || s.size != other.size {
		return false
	}
	for i, a := range s.assets {
		b := other.assets[i]
		if a.Capacity() != b.Capacity() || a.Distributions() != b.Distributions() {
			return false
		}
		for d := 0; d < a.Distributions(); d++ {
			if a.Distribution(d).Phases() != b.Distribution(d).Phases() {
				return false
			}
		}
	}
	return true
}

// Start returns a cursor on state 0, where every asset is empty.
func (s *StateSpace) Start() *Cursor {
	c := &Cursor{assets: make([]AssetState, len(s.assets))}
	for i, a := range s.assets {
		c.assets[i] = a.Reset()
	}
	return c
}

// Next moves c to the following state, wrapping to state 0.
func (s *StateSpace) Next(c *Cursor) {
	c.index++
	if c.index == s.size {
		c.index = 0
	}
	for i := len(s.assets) - 1; i >= 0; i-- {
		s.assets[i].Advance(&c.assets[i])
		if c.assets[i].index != 0 {
			return
		}
	}
}

// NewStateCapChange returns the index of the state reached from c when one
// occupant of distribution dist of asset a enters (Up) or leaves (Down) phase ph.
func (s *StateSpace) NewStateCapChange(c *Cursor, a, dist, ph int, dir Direction) int {
	return c.index + s.reps[a]*s.assets[a].CapacityChange(&c.assets[a], dist, ph, dir)
}

// NewStatePhaseChange returns the index of the state reached from c when one
// occupant of distribution dist of asset a moves from phase from to phase to.
func (s *StateSpace) NewStatePhaseChange(c *Cursor, a, dist, from, to int) int {
	return c.index + s.reps[a]*s.assets[a].LocalPhaseChange(&c.assets[a], dist, from, to)
}

// Blocked returns the set of assets at capacity in c.
func (s *StateSpace) Blocked(c *Cursor) BlockedSet {
	var b BlockedSet
	for i, a := range s.assets {
		if c.assets[i].used == a.capacity {
			b |= NewBlockedSet(i)
		}
	}
	return b
}

// TotalJumps returns the number of candidate off-diagonal entries of the
// generator row of c before identical targets are merged.
func (s *StateSpace) TotalJumps(c *Cursor) int {
	jumps := 0
	for i, a := range s.assets {
		st := &c.assets[i]
		if st.used < a.capacity {
			jumps += a.dists[0].Phases()
			for j, b := range s.assets {
				if j == i || c.assets[j].used < b.capacity || !s.relocation.CanRelocate(j, i) {
					continue
				}
				for _, d := range s.relocation.Route(j, i).Dists {
					jumps += a.dists[d].Phases()
				}
			}
		}
		if st.used > 0 {
			for d := range a.dists {
				k := a.dists[d].Phases()
				for _, n := range a.Phases(st, d) {
					if n > 0 {
						jumps += k
					}
				}
			}
		}
	}
	return jumps
}

// Index computes the global index of c from its asset-local states.
func (s *StateSpace) Index(c *Cursor) int {
	idx := 0
	for i, a := range s.assets {
		idx += a.Index(&c.assets[i]) * s.reps[i]
	}
	return idx
}
