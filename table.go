package depot

import (
	"fmt"
	"slices"

	"github.com/TheBitDrifter/depot/entity"
	"github.com/TheBitDrifter/mask"
	"github.com/kamstrup/intmap"
)

// TableID identifies a table within its world.
type TableID uint32

// RemoveMode says what happens to component values that leave a table.
type RemoveMode int

const (
	// Drop discards the values.
	Drop RemoveMode = iota
	// Forget hands the values back to the caller.
	Forget
)

// resolvedValue is a Value whose component id is known.
type resolvedValue struct {
	id        ComponentID
	component Component
	value     any
}

// Table stores every entity of one archetype: one column per component type, all the same length
// as the entity list.
type Table struct {
	id         TableID
	mask       mask.Mask
	ids        []ComponentID
	components []Component
	columns    []column
	index      *intmap.Map[ComponentID, int]
	entities   []entity.Entity

	addEdges    *intmap.Map[ComponentID, TableID]
	removeEdges *intmap.Map[ComponentID, TableID]
}

// newTable builds an empty table for the sorted ids.
func newTable(id TableID, ids []ComponentID, registry *Registry, capacity int) *Table {
	t := &Table{
		id:          id,
		mask:        maskOf(ids...),
		ids:         ids,
		components:  make([]Component, len(ids)),
		columns:     make([]column, len(ids)),
		index:       intmap.New[ComponentID, int](len(ids)),
		entities:    make([]entity.Entity, 0, capacity),
		addEdges:    intmap.New[ComponentID, TableID](4),
		removeEdges: intmap.New[ComponentID, TableID](4),
	}
	for i, cid := range ids {
		info, ok := registry.Info(cid)
		if !ok {
			panic(fmt.Sprintf("depot: table built with unregistered component id %d", cid))
		}
		t.components[i] = info.component
		t.columns[i] = info.component.newColumn(capacity)
		t.index.Put(cid, i)
	}
	return t
}

// ID returns the table id.
func (t *Table) ID() TableID {
	return t.id
}

// Mask returns the component mask of the table.
func (t *Table) Mask() mask.Mask {
	return t.mask
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.entities)
}

// Entities returns the entity of each row. The slice must not be modified.
func (t *Table) Entities() []entity.Entity {
	return t.entities
}

// ComponentIDs returns the sorted component ids stored in the table.
func (t *Table) ComponentIDs() []ComponentID {
	return slices.Clone(t.ids)
}

// Has reports whether the table stores the component id.
func (t *Table) Has(id ComponentID) bool {
	return t.index.Has(id)
}

// Ticks returns the change ticks of one cell.
func (t *Table) Ticks(id ComponentID, row int) (ComponentTicks, bool) {
	col, ok := t.column(id)
	if !ok {
		return ComponentTicks{}, false
	}
	return col.ticks(row), true
}

func (t *Table) column(id ComponentID) (column, bool) {
	i, ok := t.index.Get(id)
	if !ok {
		return nil, false
	}
	return t.columns[i], true
}

func (t *Table) capacity() int {
	return cap(t.entities)
}

// reserve grows the table so additional rows fit. Entities grow first, then every column is
// resized to the same capacity. A table whose columns disagree afterwards cannot continue.
func (t *Table) reserve(additional int) {
	need := len(t.entities) + additional
	if need <= t.capacity() {
		return
	}
	if need < len(t.entities) {
		panic("depot: table capacity overflow")
	}
	newCap := max(need, 2*t.capacity(), Config.tableCapacity)

	entities := make([]entity.Entity, len(t.entities), newCap)
	copy(entities, t.entities)
	t.entities = entities

	for i, col := range t.columns {
		col.reserve(newCap)
		if col.capacity() < newCap || col.len() != len(t.entities) {
			panic(fmt.Sprintf("depot: fatal resize of table %d: column %s has len %d cap %d, want len %d cap %d",
				t.id, t.components[i].componentKey(), col.len(), col.capacity(), len(t.entities), newCap))
		}
	}
}

// insertRow appends e with one value per column. Every column must receive a value.
func (t *Table) insertRow(e entity.Entity, values []resolvedValue, tick Tick) int {
	t.requireValues(values, nil)
	t.reserve(1)
	for i, cid := range t.ids {
		v, _ := findValue(values, cid)
		t.columns[i].push(v, tick)
	}
	t.entities = append(t.entities, e)
	return len(t.entities) - 1
}

// requireValues panics when a column outside skip has no incoming value: the row would become
// observable half written.
func (t *Table) requireValues(values []resolvedValue, skip *Table) {
	for _, cid := range t.ids {
		if skip != nil && skip.Has(cid) {
			continue
		}
		if _, ok := findValue(values, cid); !ok {
			panic(fmt.Sprintf("depot: table %d row would be missing component id %d", t.id, cid))
		}
	}
}

func findValue(values []resolvedValue, id ComponentID) (any, bool) {
	for _, v := range values {
		if v.id == id {
			return v.value, true
		}
	}
	return nil, false
}

// SwapRemove removes row by moving the last row into its place. It returns the entity that was
// moved, if any, so its location can be patched. With Forget the removed values are returned.
func (t *Table) SwapRemove(row int, mode RemoveMode) (displaced entity.Entity, moved bool, taken []Value) {
	last := len(t.entities) - 1
	if row < 0 || row > last {
		panic(fmt.Sprintf("depot: row %d out of range for table %d with %d rows", row, t.id, len(t.entities)))
	}
	for i, col := range t.columns {
		if mode == Forget {
			taken = append(taken, Value{component: t.components[i], value: col.swapRemoveTake(row)})
			continue
		}
		col.swapRemove(row)
	}
	return t.removeEntityAt(row), row != last, taken
}

// removeEntityAt swap-removes the entity list entry and returns whichever entity now sits at row.
func (t *Table) removeEntityAt(row int) entity.Entity {
	last := len(t.entities) - 1
	displaced := t.entities[last]
	t.entities[row] = displaced
	t.entities = t.entities[:last]
	return displaced
}

// moveResult describes a row that moved between tables.
type moveResult struct {
	newRow    int
	displaced entity.Entity
	moved     bool
	taken     []Value
}

// moveRow relocates row into dst. Shared columns are transplanted with their ticks; columns only
// in t are dropped or forgotten; columns only in dst are written from incoming.
func (t *Table) moveRow(row int, dst *Table, mode RemoveMode, incoming []resolvedValue, tick Tick) moveResult {
	dst.requireValues(incoming, t)
	dst.reserve(1)

	var res moveResult
	e := t.entities[row]
	for i, cid := range t.ids {
		src := t.columns[i]
		if dc, ok := dst.column(cid); ok {
			dc.pushFrom(src, row)
			src.swapRemove(row)
			continue
		}
		if mode == Forget {
			res.taken = append(res.taken, Value{component: t.components[i], value: src.swapRemoveTake(row)})
			continue
		}
		src.swapRemove(row)
	}
	for i, cid := range dst.ids {
		if t.Has(cid) {
			continue
		}
		v, _ := findValue(incoming, cid)
		dst.columns[i].push(v, tick)
	}
	dst.entities = append(dst.entities, e)

	last := len(t.entities) - 1
	res.displaced = t.removeEntityAt(row)
	res.moved = row != last
	res.newRow = len(dst.entities) - 1
	return res
}

func (t *Table) rebaseTicks(now Tick) {
	for _, col := range t.columns {
		col.rebaseTicks(now)
	}
}

// checkInvariants reports the first column whose length disagrees with the entity list.
func (t *Table) checkInvariants() error {
	for i, col := range t.columns {
		if col.len() != len(t.entities) {
			return fmt.Errorf("table %d column %s has %d rows, entities %d",
				t.id, t.components[i].componentKey(), col.len(), len(t.entities))
		}
	}
	return nil
}
