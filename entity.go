package depot

import (
	"github.com/TheBitDrifter/depot/entity"
	"github.com/rotisserie/eris"
)

// Insert adds values to e, moving it to the table of its new component set. It fails without
// changes if e already has one of the components.
func (w *World) Insert(e entity.Entity, values ...Value) error {
	if w.Locked() {
		return LockedStorageError{}
	}
	loc, ok := w.locate(e)
	if !ok {
		return eris.Wrap(EntityNotFoundError{Entity: e}, "insert")
	}
	origin := w.archetypes.get(loc.table)
	resolved := w.resolve(values)
	for _, v := range resolved {
		if origin.Has(v.id) {
			return eris.Wrapf(ComponentExistsError{Component: v.component}, "insert into %v", e)
		}
	}
	w.insertResolved(e, loc, resolved)
	return nil
}

// insertResolved writes values the entity lacks and overwrites the ones it has.
func (w *World) insertResolved(e entity.Entity, loc location, resolved []resolvedValue) {
	origin := w.archetypes.get(loc.table)
	tick := w.ChangeTick()
	dest := origin
	var incoming []resolvedValue
	for _, v := range resolved {
		if origin.Has(v.id) {
			col, _ := origin.column(v.id)
			col.set(loc.row, v.value, tick)
			continue
		}
		dest = w.archetypes.withComponent(dest, v.id)
		incoming = append(incoming, v)
	}
	if dest == origin {
		return
	}
	w.move(e, loc, origin, dest, Drop, incoming, tick)
}

func (w *World) move(e entity.Entity, loc location, origin, dest *Table, mode RemoveMode, incoming []resolvedValue, tick Tick) []Value {
	res := origin.moveRow(loc.row, dest, mode, incoming, tick)
	w.patch(res.displaced, res.moved, loc.row)
	w.setLocation(e, dest.id, res.newRow)
	return res.taken
}

// Remove drops components from e. It fails without changes if e lacks one of them.
func (w *World) Remove(e entity.Entity, components ...Component) error {
	_, err := w.removeComponents(e, Drop, components, "remove")
	return err
}

// Take removes components from e and returns their values.
func (w *World) Take(e entity.Entity, components ...Component) ([]Value, error) {
	return w.removeComponents(e, Forget, components, "take")
}

func (w *World) removeComponents(e entity.Entity, mode RemoveMode, components []Component, op string) ([]Value, error) {
	if w.Locked() {
		return nil, LockedStorageError{}
	}
	loc, ok := w.locate(e)
	if !ok {
		return nil, eris.Wrap(EntityNotFoundError{Entity: e}, op)
	}
	origin := w.archetypes.get(loc.table)
	for _, c := range components {
		id, registered := w.registry.Lookup(c)
		if !registered || !origin.Has(id) {
			return nil, eris.Wrapf(ComponentNotFoundError{Component: c}, "%s from %v", op, e)
		}
	}
	return w.removeResolved(e, loc, mode, components), nil
}

// removeResolved removes the components e has and ignores the rest.
func (w *World) removeResolved(e entity.Entity, loc location, mode RemoveMode, components []Component) []Value {
	origin := w.archetypes.get(loc.table)
	dest := origin
	for _, c := range components {
		if id, ok := w.registry.Lookup(c); ok {
			dest = w.archetypes.withoutComponent(dest, id)
		}
	}
	if dest == origin {
		return nil
	}
	return w.move(e, loc, origin, dest, mode, nil, w.ChangeTick())
}

// Has reports whether e is alive and holds c.
func (w *World) Has(e entity.Entity, c Component) bool {
	loc, ok := w.locate(e)
	if !ok {
		return false
	}
	id, ok := w.registry.Lookup(c)
	return ok && w.archetypes.get(loc.table).Has(id)
}

// Components returns the component types of e.
func (w *World) Components(e entity.Entity) ([]Component, bool) {
	loc, ok := w.locate(e)
	if !ok {
		return nil, false
	}
	tbl := w.archetypes.get(loc.table)
	return append([]Component(nil), tbl.components...), true
}
