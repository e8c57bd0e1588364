package depot

import (
	"slices"

	"github.com/TheBitDrifter/mask"
)

// Access is the set of component types a query or system reads and writes, together with the
// archetype filter that limits where it applies. The filter lets two accesses that can never touch
// the same table coexist even when their component sets overlap.
type Access struct {
	readMask  mask.Mask
	writeMask mask.Mask
	readIDs   []ComponentID
	writeIDs  []ComponentID

	withIDs    []ComponentID
	withoutIDs []ComponentID
	without    mask.Mask

	exclusive bool
}

// ExclusiveAccess is the access of something that may touch the whole world.
func ExclusiveAccess() Access {
	return Access{exclusive: true}
}

func (a *Access) addRead(id ComponentID) {
	if hasBit(a.readMask, id) {
		return
	}
	a.readMask.Mark(uint32(id))
	a.readIDs = append(a.readIDs, id)
}

func (a *Access) addWrite(id ComponentID) {
	a.addRead(id)
	if hasBit(a.writeMask, id) {
		return
	}
	a.writeMask.Mark(uint32(id))
	a.writeIDs = append(a.writeIDs, id)
}

func (a *Access) addWith(id ComponentID) {
	if !slices.Contains(a.withIDs, id) {
		a.withIDs = append(a.withIDs, id)
	}
}

func (a *Access) addWithout(id ComponentID) {
	if hasBit(a.without, id) {
		return
	}
	a.without.Mark(uint32(id))
	a.withoutIDs = append(a.withoutIDs, id)
}

func (a *Access) reads(id ComponentID) bool {
	return a.exclusive || hasBit(a.readMask, id)
}

func (a *Access) writes(id ComponentID) bool {
	return a.exclusive || hasBit(a.writeMask, id)
}

// Reads returns the component ids read, including the written ones.
func (a *Access) Reads() []ComponentID {
	return slices.Clone(a.readIDs)
}

// Writes returns the component ids written.
func (a *Access) Writes() []ComponentID {
	return slices.Clone(a.writeIDs)
}

// IsExclusive reports whether the access covers the whole world.
func (a *Access) IsExclusive() bool {
	return a.exclusive
}

// IsEmpty reports whether nothing is accessed.
func (a *Access) IsEmpty() bool {
	return !a.exclusive && len(a.readIDs) == 0
}

// Extend adds other's component access. Archetype filters are not merged.
func (a *Access) Extend(other *Access) {
	a.exclusive = a.exclusive || other.exclusive
	for _, id := range other.readIDs {
		a.addRead(id)
	}
	for _, id := range other.writeIDs {
		a.addWrite(id)
	}
}

// disjoint reports whether the archetype filters exclude each other.
func (a *Access) disjoint(other *Access) bool {
	for _, id := range a.withIDs {
		if hasBit(other.without, id) {
			return true
		}
	}
	for _, id := range other.withIDs {
		if hasBit(a.without, id) {
			return true
		}
	}
	return false
}

// Conflicts returns the component ids that a and other alias mutably, and whether they conflict
// at all. An exclusive access conflicts with any non-empty one without naming ids.
func (a *Access) Conflicts(other *Access) ([]ComponentID, bool) {
	if a.exclusive || other.exclusive {
		if a.IsEmpty() || other.IsEmpty() {
			return nil, false
		}
		return nil, true
	}
	var ids []ComponentID
	for _, id := range a.writeIDs {
		if hasBit(other.readMask, id) {
			ids = append(ids, id)
		}
	}
	for _, id := range other.writeIDs {
		if hasBit(a.readMask, id) && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, len(ids) > 0
}

// IsCompatible reports whether a and other may be used at the same time.
func (a *Access) IsCompatible(other *Access) bool {
	_, conflict := a.Conflicts(other)
	return !conflict
}

// AccessSet is the access of a system: the union of its queries plus each query's filtered access.
type AccessSet struct {
	combined Access
	filtered []Access
}

// Add records one query's access.
func (s *AccessSet) Add(a Access) {
	s.combined.Extend(&a)
	s.filtered = append(s.filtered, a)
}

// Combined returns the union of every recorded access.
func (s *AccessSet) Combined() *Access {
	return &s.combined
}

// Conflicts is Access.Conflicts refined by filters: query pairs whose archetype filters exclude
// each other do not conflict.
func (s *AccessSet) Conflicts(other *AccessSet) ([]ComponentID, bool) {
	coarse, conflict := s.combined.Conflicts(&other.combined)
	if !conflict {
		return nil, false
	}
	if s.combined.exclusive || other.combined.exclusive {
		return coarse, true
	}
	var ids []ComponentID
	for i := range s.filtered {
		for j := range other.filtered {
			a, b := &s.filtered[i], &other.filtered[j]
			if a.disjoint(b) {
				continue
			}
			found, _ := a.Conflicts(b)
			for _, id := range found {
				if !slices.Contains(ids, id) {
					ids = append(ids, id)
				}
			}
		}
	}
	slices.Sort(ids)
	return ids, len(ids) > 0
}

// IsCompatible reports whether systems with these access sets may run at the same time.
func (s *AccessSet) IsCompatible(other *AccessSet) bool {
	_, conflict := s.Conflicts(other)
	return !conflict
}
