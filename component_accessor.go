package depot

import (
	"fmt"

	"github.com/TheBitDrifter/depot/entity"
	"github.com/rotisserie/eris"
)

// column resolves c in tbl for a view, panicking when the view's shape did not declare the access.
func (c AccessibleComponent[T]) column(v *View, tbl *Table, write bool) (*typedColumn[T], bool) {
	id, ok := v.query.world.registry.Lookup(c)
	if !ok || !v.query.shape.canRead(id) {
		panic(fmt.Sprintf("depot: %s is not declared by the query shape", c.Name()))
	}
	if write && !v.query.shape.canWrite(id) {
		panic(fmt.Sprintf("depot: %s is declared read-only by the query shape", c.Name()))
	}
	col, ok := tbl.column(id)
	if !ok {
		return nil, false
	}
	return col.(*typedColumn[T]), true
}

func (c AccessibleComponent[T]) missing() string {
	return fmt.Sprintf("depot: %s is optional and absent on this row", c.Name())
}

// Get returns a copy of the value at f.
func (c AccessibleComponent[T]) Get(f Fetcher) T {
	v, ok := c.TryGet(f)
	if !ok {
		panic(c.missing())
	}
	return v
}

// TryGet returns the value at f, if the row holds it.
func (c AccessibleComponent[T]) TryGet(f Fetcher) (T, bool) {
	v, tbl, row := f.fetch()
	col, ok := c.column(v, tbl, false)
	if !ok {
		var zero T
		return zero, false
	}
	return col.values[row], true
}

// Mut returns a pointer to the value at f and marks it changed. The pointer is valid until the
// next structural change of the world.
func (c AccessibleComponent[T]) Mut(f Fetcher) *T {
	p, ok := c.TryMut(f)
	if !ok {
		panic(c.missing())
	}
	return p
}

// TryMut is Mut for optional components.
func (c AccessibleComponent[T]) TryMut(f Fetcher) (*T, bool) {
	v, tbl, row := f.fetch()
	col, ok := c.column(v, tbl, true)
	if !ok {
		return nil, false
	}
	col.changed[row] = v.ticks.thisRun
	return &col.values[row], true
}

// Ticks returns the change ticks of the value at f.
func (c AccessibleComponent[T]) Ticks(f Fetcher) ComponentTicks {
	v, tbl, row := f.fetch()
	col, ok := c.column(v, tbl, false)
	if !ok {
		panic(c.missing())
	}
	return col.ticks(row)
}

// Slice returns the values of the chunk. The slice must not be modified.
func (c AccessibleComponent[T]) Slice(ch Chunk) []T {
	s, ok := c.TrySlice(ch)
	if !ok {
		panic(fmt.Sprintf("depot: chunk of table %d does not hold %s", ch.table.id, c.Name()))
	}
	return s
}

// TrySlice returns the values of the chunk, if its table holds them.
func (c AccessibleComponent[T]) TrySlice(ch Chunk) ([]T, bool) {
	col, ok := c.column(ch.view, ch.table, false)
	if !ok {
		return nil, false
	}
	return col.values[ch.start:ch.end], true
}

// MutSlice returns the values of the chunk for writing and marks every row changed.
func (c AccessibleComponent[T]) MutSlice(ch Chunk) []T {
	col, ok := c.column(ch.view, ch.table, true)
	if !ok {
		panic(fmt.Sprintf("depot: chunk of table %d does not hold %s", ch.table.id, c.Name()))
	}
	tick := ch.view.ticks.thisRun
	for i := ch.start; i < ch.end; i++ {
		col.changed[i] = tick
	}
	return col.values[ch.start:ch.end]
}

// worldColumn resolves c on e outside of any query.
func (c AccessibleComponent[T]) worldColumn(w *World, e entity.Entity) (*typedColumn[T], int, ComponentID, error) {
	loc, ok := w.locate(e)
	if !ok {
		return nil, 0, 0, EntityNotFoundError{Entity: e}
	}
	id, ok := w.registry.Lookup(c)
	if !ok {
		return nil, 0, 0, ComponentNotFoundError{Component: c}
	}
	col, ok := w.archetypes.get(loc.table).column(id)
	if !ok {
		return nil, 0, 0, ComponentNotFoundError{Component: c}
	}
	return col.(*typedColumn[T]), loc.row, id, nil
}

// Of returns a copy of e's value.
func (c AccessibleComponent[T]) Of(w *World, e entity.Entity) (T, bool) {
	col, row, id, err := c.worldColumn(w, e)
	if err != nil {
		var zero T
		return zero, false
	}
	w.borrows.acquireShared(id, c.Name())
	defer w.borrows.releaseShared(id)
	return col.values[row], true
}

// Set overwrites e's value and marks it changed.
func (c AccessibleComponent[T]) Set(w *World, e entity.Entity, value T) error {
	return c.Update(w, e, func(v *T) { *v = value })
}

// Update calls fn with e's value borrowed exclusively and marks it changed.
func (c AccessibleComponent[T]) Update(w *World, e entity.Entity, fn func(*T)) error {
	col, row, id, err := c.worldColumn(w, e)
	if err != nil {
		return eris.Wrapf(err, "update %s", c.Name())
	}
	w.borrows.acquireExclusive(id, c.Name())
	defer w.borrows.releaseExclusive(id)
	fn(&col.values[row])
	col.changed[row] = w.ChangeTick()
	return nil
}
