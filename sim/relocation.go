package sim

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// maxAssets is the largest asset count a BlockedSet can describe.
const maxAssets = 64

// BlockedSet is the set of assets that are at capacity; bit i is asset i.
type BlockedSet uint64

// NewBlockedSet returns the set containing the given assets.
func NewBlockedSet(assets ...int) BlockedSet {
	var b BlockedSet
	for _, a := range assets {
		b |= 1 << uint(a)
	}
	return b
}

// Contains reports whether asset i is in the set.
func (b BlockedSet) Contains(i int) bool { return b&(1<<uint(i)) != 0 }

// String formats the set as {a,b,...}.
func (b BlockedSet) String() string {
	var parts []string
	for i := 0; i < maxAssets; i++ {
		if b.Contains(i) {
			parts = append(parts, fmt.Sprint(i))
		}
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// Route lists the distributions of a destination asset that relocated customers
// may follow, with the probability of each.
type Route struct {
	Dists []int
	Probs []float64
}

// RelocFunction maps a blocked set to the probability that a customer turned
// away from the source asset relocates to the destination. Unset sets give 0.
type RelocFunction struct {
	probs map[BlockedSet]float64
}

// Probability returns the relocation probability under blocked.
func (f *RelocFunction) Probability(blocked BlockedSet) float64 {
	if f == nil {
		return 0
	}
	return f.probs[blocked]
}

// RelocationMap holds, for every ordered pair of assets, the destination route
// and the relocation probability function.
type RelocationMap struct {
	distCounts []int
	routes     [][]*Route
	funcs      [][]*RelocFunction
}

// NewRelocationMap returns an empty map over len(distCounts) assets, where
// distCounts[i] is the number of rental-time distributions of asset i.
func NewRelocationMap(distCounts []int) (*RelocationMap, error) {
	n := len(distCounts)
	if n == 0 || n > maxAssets {
		return nil, fmt.Errorf("%w: %d assets (want 1..%d)", ErrInvalidRelocation, n, maxAssets)
	}
	for i, c := range distCounts {
		if c < 1 {
			return nil, fmt.Errorf("%w: asset %d has %d distributions", ErrInvalidRelocation, i, c)
		}
	}
	m := &RelocationMap{
		distCounts: append([]int(nil), distCounts...),
		routes:     make([][]*Route, n),
		funcs:      make([][]*RelocFunction, n),
	}
	for i := range m.routes {
		m.routes[i] = make([]*Route, n)
		m.funcs[i] = make([]*RelocFunction, n)
	}
	return m, nil
}

// Assets returns the number of assets covered by the map.
func (m *RelocationMap) Assets() int { return len(m.distCounts) }

func (m *RelocationMap) checkPair(from, to int) error {
	n := len(m.distCounts)
	if from < 0 || from >= n || to < 0 || to >= n {
		return fmt.Errorf("%w: asset pair (%d,%d) out of range for %d assets", ErrInvalidRelocation, from, to, n)
	}
	if from == to {
		return fmt.Errorf("%w: asset %d cannot relocate to itself", ErrInvalidRelocation, from)
	}
	return nil
}

// AddRoute sets the distributions of asset to that customers relocated from
// asset from may follow. probs must be non-negative and sum to 1.
func (m *RelocationMap) AddRoute(from, to int, dists []int, probs []float64) error {
	if err := m.checkPair(from, to); err != nil {
		return err
	}
	if len(dists) == 0 || len(dists) != len(probs) {
		return fmt.Errorf("%w: route %d->%d has %d distributions and %d probabilities",
			ErrInvalidRelocation, from, to, len(dists), len(probs))
	}
	seen := make(map[int]bool, len(dists))
	sum := 0.0
	for i, d := range dists {
		if d < 0 || d >= m.distCounts[to] {
			return fmt.Errorf("%w: route %d->%d references distribution %d, asset %d has %d",
				ErrInvalidRelocation, from, to, d, to, m.distCounts[to])
		}
		if seen[d] {
			return fmt.Errorf("%w: route %d->%d lists distribution %d twice", ErrInvalidRelocation, from, to, d)
		}
		seen[d] = true
		if !finite(probs[i]) || probs[i] < 0 {
			return fmt.Errorf("%w: route %d->%d probability %v", ErrInvalidRelocation, from, to, probs[i])
		}
		sum += probs[i]
	}
	if math.Abs(sum-1) > probTolerance {
		return fmt.Errorf("%w: route %d->%d probabilities sum to %v", ErrInvalidRelocation, from, to, sum)
	}
	m.routes[from][to] = &Route{
		Dists: append([]int(nil), dists...),
		Probs: append([]float64(nil), probs...),
	}
	return nil
}

// ClearRoute removes the route from -> to.
func (m *RelocationMap) ClearRoute(from, to int) {
	if m.checkPair(from, to) == nil {
		m.routes[from][to] = nil
	}
}

// SetProbability sets the probability p that a customer blocked at asset from
// relocates to asset to while exactly the assets in blocked are full.
// blocked must contain from.
func (m *RelocationMap) SetProbability(p float64, from, to int, blocked []int) error {
	if err := m.checkPair(from, to); err != nil {
		return err
	}
	if !finite(p) || p < 0 || p > 1 {
		return fmt.Errorf("%w: relocation probability %v", ErrInvalidRelocation, p)
	}
	var set BlockedSet
	for _, b := range blocked {
		if b < 0 || b >= len(m.distCounts) {
			return fmt.Errorf("%w: blocked asset %d out of range", ErrInvalidRelocation, b)
		}
		set |= NewBlockedSet(b)
	}
	if !set.Contains(from) {
		return fmt.Errorf("%w: blocked set %v does not contain source asset %d", ErrInvalidRelocation, set, from)
	}
	f := m.funcs[from][to]
	if f == nil {
		f = &RelocFunction{probs: make(map[BlockedSet]float64)}
		m.funcs[from][to] = f
	}
	f.probs[set] = p
	return nil
}

// Probability returns the probability of relocating from -> to under blocked.
func (m *RelocationMap) Probability(from, to int, blocked BlockedSet) float64 {
	return m.funcs[from][to].Probability(blocked)
}

// Route returns the route from -> to, or nil.
func (m *RelocationMap) Route(from, to int) *Route { return m.routes[from][to] }

// CanRelocate reports whether a route from -> to exists.
func (m *RelocationMap) CanRelocate(from, to int) bool {
	return from != to && m.routes[from][to] != nil
}

// BlockedSets returns the blocked sets with a probability set for from -> to, in ascending order.
func (m *RelocationMap) BlockedSets(from, to int) []BlockedSet {
	f := m.funcs[from][to]
	if f == nil {
		return nil
	}
	sets := make([]BlockedSet, 0, len(f.probs))
	for s := range f.probs {
		sets = append(sets, s)
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i] < sets[j] })
	return sets
}

// Validate checks that the map describes the given assets.
func (m *RelocationMap) Validate(assets []*Asset) error {
	if len(assets) != len(m.distCounts) {
		return fmt.Errorf("%w: map covers %d assets, state space has %d",
			ErrStateSpaceMismatch, len(m.distCounts), len(assets))
	}
	for i, a := range assets {
		if a.Distributions() != m.distCounts[i] {
			return fmt.Errorf("%w: asset %d has %d distributions, map expects %d",
				ErrStateSpaceMismatch, i, a.Distributions(), m.distCounts[i])
		}
	}
	return nil
}
