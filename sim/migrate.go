package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat/combin"
)

// NewStateSpace moves d onto newSpace, choosing the method by policy. It
// returns the method that was applied.
func (d *StateDistribution) NewStateSpace(newSpace *StateSpace, policy MigrationPolicy) (MigrationMethod, error) {
	method := policy.choose(d.space.Size(), newSpace.Size())
	var err error
	if method == MigrationFast {
		err = d.MigrateFast(newSpace)
	} else {
		err = d.MigrateAccurate(newSpace)
	}
	if err != nil {
		return method, err
	}
	logrus.Debugf("migrated %d -> %d states using %s method", len(d.probs), newSpace.Size(), method)
	return method, nil
}

func (d *StateDistribution) checkMigration(newSpace *StateSpace) error {
	if d.phase == Uninitialized {
		return ErrUninitialized
	}
	if newSpace.Assets() != d.space.Assets() {
		return fmt.Errorf("%w: %d assets cannot migrate to %d", ErrStateSpaceMismatch, d.space.Assets(), newSpace.Assets())
	}
	return nil
}

// MigrateFast maps d onto newSpace through the per-asset marginals: mass above
// a new capacity is folded into the new top level, each level is spread
// uniformly over its states, and assets are treated as independent. When the
// structure is unchanged the vector is kept as is.
func (d *StateDistribution) MigrateFast(newSpace *StateSpace) error {
	if err := d.checkMigration(newSpace); err != nil {
		return err
	}
	if d.space.SameStructure(newSpace) {
		d.space = newSpace
		d.phase = Migrated
		return nil
	}

	marg := d.MarginalStateDists()
	for i, m := range marg {
		top := newSpace.assets[i].capacity
		folded := make([]float64, top+1)
		for level, p := range m {
			if level > top {
				level = top
			}
			folded[level] += p
		}
		marg[i] = folded
	}

	probs := make([]float64, newSpace.Size())
	c := newSpace.Start()
	for k := 0; k < newSpace.Size(); k++ {
		p := 1.0
		for i, a := range newSpace.assets {
			used := c.assets[i].used
			p *= marg[i][used] / float64(a.SizeOnLevel(used))
		}
		probs[c.index] = p
		newSpace.Next(c)
	}
	d.space, d.probs, d.phase = newSpace, probs, Migrated
	return d.Normalize()
}

// MigrateAccurate maps d onto newSpace state by state. Mass of an old state
// carries over to the identical new state. An old state above a new capacity
// is reduced to new states at that capacity, removing occupants uniformly at
// random over (distribution, phase) slots.
func (d *StateDistribution) MigrateAccurate(newSpace *StateSpace) error {
	if err := d.checkMigration(newSpace); err != nil {
		return err
	}
	for i, a := range d.space.assets {
		b := newSpace.assets[i]
		if a.Distributions() != b.Distributions() {
			return fmt.Errorf("%w: asset %d has %d distributions, new space has %d",
				ErrStateSpaceMismatch, i, a.Distributions(), b.Distributions())
		}
		for k := range a.dists {
			if a.dists[k].Phases() != b.dists[k].Phases() {
				return fmt.Errorf("%w: asset %d distribution %d phase count changed", ErrStateSpaceMismatch, i, k)
			}
		}
	}

	old := d.space
	probs := make([]float64, newSpace.Size())
	oc := old.Start()
	for k := 0; k < old.Size(); k++ {
		if p := d.probs[oc.index]; p > 0 {
			nc := newSpace.Start()
			for j := 0; j < newSpace.Size(); j++ {
				if w := transferWeight(old, oc, newSpace, nc); w > 0 {
					probs[nc.index] += p * w
				}
				newSpace.Next(nc)
			}
		}
		old.Next(oc)
	}
	d.space, d.probs, d.phase = newSpace, probs, Migrated
	return d.Normalize()
}

// transferWeight returns the probability that the old state at oc becomes the
// new state at nc.
func transferWeight(old *StateSpace, oc *Cursor, ns *StateSpace, nc *Cursor) float64 {
	identical := true
	for i := range old.assets {
		ost, nst := &oc.assets[i], &nc.assets[i]
		if ost.used != nst.used {
			identical = false
			break
		}
		for k := range ost.occupancy {
			if !equalInts(old.assets[i].Phases(ost, k), ns.assets[i].Phases(nst, k)) {
				identical = false
				break
			}
		}
	}
	if identical {
		return 1
	}

	w := 1.0
	for i, a := range ns.assets {
		ost, nst := &oc.assets[i], &nc.assets[i]
		if ost.used < nst.used {
			return 0
		}
		if ost.used > nst.used && nst.used != a.capacity {
			return 0
		}
		var removed, bound []int
		for k := range ost.occupancy {
			op := old.assets[i].Phases(ost, k)
			np := a.Phases(nst, k)
			for ph := range op {
				if op[ph] < np[ph] {
					return 0
				}
				removed = append(removed, op[ph]-np[ph])
				bound = append(bound, op[ph])
			}
		}
		w *= boundedMultinomialProb(removed, bound)
	}
	return w
}

// boundedMultinomialProb returns multinomial(x) divided by the sum of
// multinomial(y) over all y with 0 ≤ y ≤ bound and Σy = Σx.
func boundedMultinomialProb(x, bound []int) float64 {
	n := 0
	for _, v := range x {
		n += v
	}
	if n == 0 {
		return 1
	}
	return multinomial(x) / boundedMultinomialMass(bound, n)
}

// multinomial returns (Σx)! / Πx_i!.
func multinomial(x []int) float64 {
	m, total := 1.0, 0
	for _, v := range x {
		total += v
		m *= combin.GeneralizedBinomial(float64(total), float64(v))
	}
	return m
}

// boundedMultinomialMass sums multinomial(y) over all y ≤ bound with Σy = n.
// f[m] holds the sum over the first i slots with total m; adding slot i picks
// y of the m positions for it.
func boundedMultinomialMass(bound []int, n int) float64 {
	f := make([]float64, n+1)
	f[0] = 1
	for _, b := range bound {
		g := make([]float64, n+1)
		for m := 0; m <= n; m++ {
			for y := 0; y <= b && y <= m; y++ {
				if f[m-y] != 0 {
					g[m] += combin.GeneralizedBinomial(float64(m), float64(y)) * f[m-y]
				}
			}
		}
		f = g
	}
	return f[n]
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
