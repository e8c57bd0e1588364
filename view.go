package depot

import (
	"context"
	"iter"

	"github.com/TheBitDrifter/depot/entity"
	"golang.org/x/sync/errgroup"
)

// View iterates a query with one pair of change ticks.
type View struct {
	query   *Query
	ticks   tickWindow
	checked bool
}

// LastRun is the tick change filters compare against.
func (v *View) LastRun() Tick {
	return v.ticks.lastRun
}

// ThisRun is the tick writes through the view are stamped with.
func (v *View) ThisRun() Tick {
	return v.ticks.thisRun
}

func (v *View) begin() {
	if !v.checked {
		return
	}
	w := v.query.world
	w.Lock()
	defer func() {
		if r := recover(); r != nil {
			w.Unlock()
			panic(r)
		}
	}()
	w.borrows.acquire(&v.query.shape.access, w.registry)
}

func (v *View) end() {
	if !v.checked {
		return
	}
	w := v.query.world
	w.borrows.release(&v.query.shape.access)
	w.Unlock()
}

// Row is one matched entity. It is valid until the view's iteration step ends.
type Row struct {
	view  *View
	table *Table
	index int
}

// Entity returns the entity of the row.
func (r Row) Entity() entity.Entity {
	return r.table.entities[r.index]
}

// Table returns the table the row lives in.
func (r Row) Table() *Table {
	return r.table
}

func (r Row) fetch() (*View, *Table, int) {
	return r.view, r.table, r.index
}

// Rows iterates every matching row.
func (v *View) Rows() iter.Seq[Row] {
	return func(yield func(Row) bool) {
		v.begin()
		defer v.end()
		for _, tbl := range v.query.refresh() {
			for i := 0; i < tbl.Len(); i++ {
				if !v.query.rowMatches(tbl, i, v.ticks) {
					continue
				}
				if !yield(Row{view: v, table: tbl, index: i}) {
					return
				}
			}
		}
	}
}

// Count returns the number of matching rows. It reads no component data, so it takes no borrows.
func (v *View) Count() int {
	total := 0
	for _, tbl := range v.query.refresh() {
		if !v.query.rows {
			total += tbl.Len()
			continue
		}
		for i := 0; i < tbl.Len(); i++ {
			if v.query.rowMatches(tbl, i, v.ticks) {
				total++
			}
		}
	}
	return total
}

// Single returns the only matching row. It fails with ErrNoEntities or ErrMultipleEntities.
// The row must only be used while the world is not structurally changed.
func (v *View) Single() (Row, error) {
	var (
		found Row
		n     int
	)
	for r := range v.Rows() {
		n++
		if n > 1 {
			return Row{}, ErrMultipleEntities
		}
		found = r
	}
	if n == 0 {
		return Row{}, ErrNoEntities
	}
	return found, nil
}

// Many iterates the rows of entities in the given order, skipping entities that are dead or do
// not match.
func (v *View) Many(entities []entity.Entity) iter.Seq[Row] {
	return func(yield func(Row) bool) {
		v.begin()
		defer v.end()
		v.query.refresh()
		w := v.query.world
		for _, e := range entities {
			loc, ok := w.locate(e)
			if !ok {
				continue
			}
			tbl := w.archetypes.get(loc.table)
			if !v.query.Matches(tbl) || !v.query.rowMatches(tbl, loc.row, v.ticks) {
				continue
			}
			if !yield(Row{view: v, table: tbl, index: loc.row}) {
				return
			}
		}
	}
}

// Combinations iterates every set of k distinct matching rows, each set once, in row order.
// There are C(n, k) sets for n matches; cost grows combinatorially with k.
func (v *View) Combinations(k int) iter.Seq[[]Row] {
	return func(yield func([]Row) bool) {
		if k <= 0 {
			return
		}
		v.begin()
		defer v.end()

		var rows []Row
		for _, tbl := range v.query.refresh() {
			for i := 0; i < tbl.Len(); i++ {
				if v.query.rowMatches(tbl, i, v.ticks) {
					rows = append(rows, Row{view: v, table: tbl, index: i})
				}
			}
		}
		if k > len(rows) {
			return
		}
		idx := make([]int, k)
		for i := range idx {
			idx[i] = i
		}
		for {
			set := make([]Row, k)
			for i, j := range idx {
				set[i] = rows[j]
			}
			if !yield(set) {
				return
			}
			// Advance the rightmost index that still has room.
			i := k - 1
			for i >= 0 && idx[i] == len(rows)-k+i {
				i--
			}
			if i < 0 {
				return
			}
			idx[i]++
			for j := i + 1; j < k; j++ {
				idx[j] = idx[j-1] + 1
			}
		}
	}
}

// Chunk is a contiguous row range of one table.
type Chunk struct {
	view  *View
	table *Table
	start int
	end   int
}

// Entities returns the entities of the chunk. The slice must not be modified.
func (c Chunk) Entities() []entity.Entity {
	return c.table.entities[c.start:c.end]
}

// Len returns the number of rows in the chunk.
func (c Chunk) Len() int {
	return c.end - c.start
}

// Table returns the table the chunk belongs to.
func (c Chunk) Table() *Table {
	return c.table
}

// Has reports whether the rows of the chunk hold comp. It needs no declared access.
func (c Chunk) Has(comp Component) bool {
	id, ok := c.view.query.world.registry.Lookup(comp)
	return ok && c.table.Has(id)
}

// Rows iterates the rows of the chunk that pass the row-level filters.
func (c Chunk) Rows() iter.Seq[Row] {
	return func(yield func(Row) bool) {
		for i := c.start; i < c.end; i++ {
			if !c.view.query.rowMatches(c.table, i, c.view.ticks) {
				continue
			}
			if !yield(Row{view: c.view, table: c.table, index: i}) {
				return
			}
		}
	}
}

// Chunks iterates every non-empty matched table as one chunk. Row-level filters are left to
// Chunk.Rows.
func (v *View) Chunks() iter.Seq[Chunk] {
	return v.Batches(0)
}

// Batches iterates matched tables split into chunks of at most size rows. A size of zero or less
// yields whole tables.
func (v *View) Batches(size int) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		v.begin()
		defer v.end()
		for _, c := range v.batches(size) {
			if !yield(c) {
				return
			}
		}
	}
}

func (v *View) batches(size int) []Chunk {
	var out []Chunk
	for _, tbl := range v.query.refresh() {
		n := tbl.Len()
		step := size
		if step <= 0 {
			step = n
		}
		for start := 0; start < n; start += step {
			out = append(out, Chunk{view: v, table: tbl, start: start, end: min(start+step, n)})
		}
	}
	return out
}

// ParEach runs fn on non-overlapping batches from up to workers goroutines. The first error
// cancels the batches not yet started and is returned. workers of zero or less means no limit.
func (v *View) ParEach(ctx context.Context, workers, batch int, fn func(Chunk) error) error {
	if batch <= 0 {
		batch = Config.tableCapacity
	}
	v.begin()
	defer v.end()

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for _, c := range v.batches(batch) {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(c)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
