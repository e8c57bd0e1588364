package depot

import (
	"sync"
)

// Query is a shape and its filters compiled against one world. It caches the tables it matches
// and picks up tables created later the next time it is viewed.
type Query struct {
	world   *World
	shape   compiledShape
	filters []QueryNode
	rows    bool
	access  Access

	mu      sync.Mutex
	matched []*Table
	checked int
}

// NewQuery compiles shape and filters against w.
func NewQuery(w *World, shape Shape, filters ...QueryNode) *Query {
	q := &Query{
		world:   w,
		shape:   shape.compile(w.registry),
		filters: filters,
	}
	q.access = q.shape.access
	for _, f := range filters {
		registerComponents(f, w.registry)
		for _, c := range readsOf(f) {
			id, _ := w.registry.Lookup(c)
			q.access.addRead(id)
		}
		if isRowLevel(f) {
			q.rows = true
		}
	}
	q.refresh()
	return q
}

// Access returns what iterating the query touches.
func (q *Query) Access() Access {
	return q.access
}

// World returns the world the query was compiled against.
func (q *Query) World() *World {
	return q.world
}

// Matches reports whether tbl passes the archetype-level tests.
func (q *Query) Matches(tbl *Table) bool {
	if !q.shape.matches(tbl) {
		return false
	}
	for _, f := range q.filters {
		if !f.Evaluate(tbl, q.world.registry) {
			return false
		}
	}
	return true
}

// refresh tests tables created since the previous refresh. Tables are append-only.
func (q *Query) refresh() []*Table {
	q.mu.Lock()
	defer q.mu.Unlock()
	tables := q.world.archetypes.asSlice
	for ; q.checked < len(tables); q.checked++ {
		if tbl := tables[q.checked]; q.Matches(tbl) {
			q.matched = append(q.matched, tbl)
		}
	}
	return q.matched
}

// rowMatches applies the row-level filters.
func (q *Query) rowMatches(tbl *Table, row int, ticks tickWindow) bool {
	if !q.rows {
		return true
	}
	for _, f := range q.filters {
		if isRowLevel(f) && !f.(rowNode).matchRow(tbl, row, q.world.registry, ticks) {
			return false
		}
	}
	return true
}

// View returns a manual view. Manual views lock the world and borrow-check the query's
// components for as long as an iteration runs. Change filters see changes since the last
// ClearTrackers.
func (q *Query) View() *View {
	return &View{
		query:   q,
		ticks:   tickWindow{lastRun: q.world.LastChangeTick(), thisRun: q.world.ChangeTick()},
		checked: true,
	}
}

// view returns an unchecked view for a scheduled system; the schedule has proven its access.
func (q *Query) view(ticks tickWindow) *View {
	return &View{query: q, ticks: ticks}
}
