package depot

import (
	"slices"

	"github.com/TheBitDrifter/mask"
)

// emptyTable holds entities without components.
const emptyTable TableID = 0

// archetypes owns every table of a world. Tables are never removed, so a TableID stays valid and
// the slice only grows; queries rely on that to match new tables incrementally.
type archetypes struct {
	registry         *Registry
	asSlice          []*Table
	idsGroupedByMask map[mask.Mask]TableID
}

func newArchetypes(registry *Registry) *archetypes {
	a := &archetypes{
		registry:         registry,
		idsGroupedByMask: make(map[mask.Mask]TableID),
	}
	a.getOrCreate(nil)
	return a
}

func (a *archetypes) get(id TableID) *Table {
	return a.asSlice[id]
}

func (a *archetypes) len() int {
	return len(a.asSlice)
}

// getOrCreate returns the table for the component ids, which need not be sorted.
func (a *archetypes) getOrCreate(ids []ComponentID) *Table {
	m := maskOf(ids...)
	if id, found := a.idsGroupedByMask[m]; found {
		return a.asSlice[id]
	}
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	tbl := newTable(TableID(len(a.asSlice)), sorted, a.registry, Config.tableCapacity)
	a.asSlice = append(a.asSlice, tbl)
	a.idsGroupedByMask[m] = tbl.id
	return tbl
}

// withComponent follows, or creates, the edge from src that adds id.
func (a *archetypes) withComponent(src *Table, id ComponentID) *Table {
	if src.Has(id) {
		return src
	}
	if dst, ok := src.addEdges.Get(id); ok {
		return a.asSlice[dst]
	}
	dst := a.getOrCreate(append(slices.Clone(src.ids), id))
	src.addEdges.Put(id, dst.id)
	dst.removeEdges.Put(id, src.id)
	return dst
}

// withoutComponent follows, or creates, the edge from src that removes id.
func (a *archetypes) withoutComponent(src *Table, id ComponentID) *Table {
	if !src.Has(id) {
		return src
	}
	if dst, ok := src.removeEdges.Get(id); ok {
		return a.asSlice[dst]
	}
	ids := slices.DeleteFunc(slices.Clone(src.ids), func(c ComponentID) bool { return c == id })
	dst := a.getOrCreate(ids)
	src.removeEdges.Put(id, dst.id)
	dst.addEdges.Put(id, src.id)
	return dst
}

func (a *archetypes) rebaseTicks(now Tick) {
	for _, tbl := range a.asSlice {
		tbl.rebaseTicks(now)
	}
}
