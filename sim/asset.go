package sim

import (
	"fmt"
	"math"
)

// maxStates bounds any state space built by this package.
const maxStates = math.MaxInt32

// Direction is the sign of a capacity change.
type Direction int

const (
	Down Direction = -1
	Up   Direction = 1
)

// Asset is one pool of K identical capacity units. Distribution 0 is the primary
// rental-time distribution used by direct arrivals; the others are entered only
// through relocation from another asset.
//
// An Asset holds static configuration only. Iteration over its local states uses
// AssetState values owned by the caller.
type Asset struct {
	capacity    int
	dists       []*PhaseType
	arrivalRate float64

	// splits enumerates (slack, d0..dm) with slack + Σd = K; the slack entry
	// is K - Kuse, so the order over (d0..dm) is the capacity-split order.
	splits *LocalStateSpace
	// local[d][c] enumerates how c occupants of distribution d sit in its phases.
	local [][]*LocalStateSpace
	// offset[s] is the local index of the first state with split s.
	offset []int
	// stride[s][d] is the mixed-radix weight of distribution d inside split s.
	stride    [][]int
	levelSize []int
	size      int
}

// AssetState identifies one local state of an Asset: the capacity split and,
// for every distribution, the composition index of its occupants.
type AssetState struct {
	split     int
	used      int
	occupancy []int
	local     []int
	index     int
}

// Used returns the occupied capacity (Kuse).
func (s *AssetState) Used() int { return s.used }

// Occupancy returns the number of occupants following distribution d.
func (s *AssetState) Occupancy(d int) int { return s.occupancy[d] }

// Index returns the asset-local state index.
func (s *AssetState) Index() int { return s.index }

func (s AssetState) clone() AssetState {
	s.occupancy = append([]int(nil), s.occupancy...)
	s.local = append([]int(nil), s.local...)
	return s
}

// NewAsset validates its arguments and precomputes the local enumeration.
func NewAsset(capacity int, dists []*PhaseType, arrivalRate float64) (*Asset, error) {
	if capacity < 0 {
		return nil, fmt.Errorf("%w: negative capacity %d", ErrInvalidAsset, capacity)
	}
	if len(dists) == 0 {
		return nil, fmt.Errorf("%w: no rental-time distributions", ErrInvalidAsset)
	}
	for d, pt := range dists {
		if pt == nil {
			return nil, fmt.Errorf("%w: distribution %d is nil", ErrInvalidAsset, d)
		}
	}
	if !finite(arrivalRate) || arrivalRate < 0 {
		return nil, fmt.Errorf("%w: arrival rate %v", ErrInvalidAsset, arrivalRate)
	}

	a := &Asset{
		capacity:    capacity,
		dists:       append([]*PhaseType(nil), dists...),
		arrivalRate: arrivalRate,
		splits:      NewLocalStateSpace(capacity, len(dists)+1),
		local:       make([][]*LocalStateSpace, len(dists)),
		levelSize:   make([]int, capacity+1),
	}
	for d, pt := range dists {
		a.local[d] = make([]*LocalStateSpace, capacity+1)
		for c := 0; c <= capacity; c++ {
			a.local[d][c] = NewLocalStateSpace(c, pt.Phases())
		}
	}

	nsplit := a.splits.Size()
	a.offset = make([]int, nsplit)
	a.stride = make([][]int, nsplit)
	for s := 0; s < nsplit; s++ {
		occ := a.splits.State(s)[1:]
		stride := make([]int, len(dists))
		block := 1
		for d := len(dists) - 1; d >= 0; d-- {
			stride[d] = block
			block *= a.local[d][occ[d]].Size()
			if block > maxStates {
				return nil, fmt.Errorf("%w: asset with capacity %d", ErrStateSpaceTooLarge, capacity)
			}
		}
		a.offset[s] = a.size
		a.stride[s] = stride
		a.size += block
		if a.size > maxStates {
			return nil, fmt.Errorf("%w: asset with capacity %d", ErrStateSpaceTooLarge, capacity)
		}
		a.levelSize[capacity-a.splits.State(s)[0]] += block
	}
	return a, nil
}

// Capacity returns K.
func (a *Asset) Capacity() int { return a.capacity }

// Distributions returns the number of rental-time distributions.
func (a *Asset) Distributions() int { return len(a.dists) }

// Distribution returns distribution d.
func (a *Asset) Distribution(d int) *PhaseType { return a.dists[d] }

// ArrivalRate returns λ.
func (a *Asset) ArrivalRate() float64 { return a.arrivalRate }

// ArrivalRateToPhase returns the rate of direct arrivals that start in phase ph
// of the primary distribution.
func (a *Asset) ArrivalRateToPhase(ph int) float64 {
	return a.arrivalRate * a.dists[0].Initial(ph)
}

// Size returns the number of local states.
func (a *Asset) Size() int { return a.size }

// SizeOnLevel returns the number of local states with exactly level occupants.
func (a *Asset) SizeOnLevel(level int) int {
	if level < 0 || level > a.capacity {
		return 0
	}
	return a.levelSize[level]
}

// Reset returns local state 0: the asset is empty.
func (a *Asset) Reset() AssetState {
	st := AssetState{
		occupancy: make([]int, len(a.dists)),
		local:     make([]int, len(a.dists)),
	}
	a.loadSplit(&st)
	return st
}

func (a *Asset) loadSplit(st *AssetState) {
	v := a.splits.State(st.split)
	copy(st.occupancy, v[1:])
	st.used = a.capacity - v[0]
}

// Advance moves st to the next local state, wrapping to state 0. The last
// distribution varies fastest; a full wrap of all distributions moves to the
// next capacity split.
func (a *Asset) Advance(st *AssetState) {
	st.index++
	if st.index == a.size {
		st.index = 0
	}
	for d := len(st.local) - 1; d >= 0; d-- {
		st.local[d] = a.local[d][st.occupancy[d]].Next(st.local[d])
		if st.local[d] != 0 {
			return
		}
	}
	st.split = a.splits.Next(st.split)
	a.loadSplit(st)
}

// Phases returns the phase vector of distribution d in st. The slice is shared
// and must not be modified.
func (a *Asset) Phases(st *AssetState, d int) []int {
	return a.local[d][st.occupancy[d]].State(st.local[d])
}

// Index returns the local index of st computed from its split and compositions.
func (a *Asset) Index(st *AssetState) int {
	idx := a.offset[st.split]
	for d, l := range st.local {
		idx += l * a.stride[st.split][d]
	}
	return idx
}

// CapacityChange returns the local-index delta of adding (Up) or removing (Down)
// one occupant of distribution d in phase ph. It panics if the asset is full on
// Up or the phase is empty on Down.
func (a *Asset) CapacityChange(st *AssetState, d, ph int, dir Direction) int {
	delta := int(dir)
	phases := a.Phases(st, d)
	switch dir {
	case Up:
		if st.used >= a.capacity {
			panic(fmt.Sprintf("CapacityChange: asset is full (%d/%d)", st.used, a.capacity))
		}
	case Down:
		if phases[ph] == 0 {
			panic(fmt.Sprintf("CapacityChange: phase %d of distribution %d is empty", ph, d))
		}
	default:
		panic(fmt.Sprintf("CapacityChange: invalid direction %d", dir))
	}

	splitVec := make([]int, len(a.dists)+1)
	splitVec[0] = a.capacity - st.used - delta
	copy(splitVec[1:], st.occupancy)
	splitVec[d+1] += delta
	split := a.splits.Index(splitVec)

	vec := append([]int(nil), phases...)
	vec[ph] += delta
	target := a.offset[split]
	for e, l := range st.local {
		if e == d {
			l = a.local[d][splitVec[d+1]].Index(vec)
		}
		target += l * a.stride[split][e]
	}
	return target - st.index
}

// LocalPhaseChange returns the local-index delta of one occupant of distribution
// d moving from phase from to phase to. It panics if phase from is empty.
func (a *Asset) LocalPhaseChange(st *AssetState, d, from, to int) int {
	phases := a.Phases(st, d)
	if phases[from] == 0 {
		panic(fmt.Sprintf("LocalPhaseChange: phase %d of distribution %d is empty", from, d))
	}
	vec := append([]int(nil), phases...)
	vec[from]--
	vec[to]++
	l := a.local[d][st.occupancy[d]].Index(vec)
	return (l - st.local[d]) * a.stride[st.split][d]
}
