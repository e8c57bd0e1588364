package depot

import (
	"iter"

	"github.com/TheBitDrifter/depot/entity"
)

var _ Fetcher = &Cursor{}

// Cursor steps through the rows of a view one at a time. The view's world stays locked from
// the first Next until Next returns false or Reset is called.
type Cursor struct {
	view *View

	// Current iteration state
	currentTable *Table
	tableIndex   int
	entityIndex  int
	remaining    int

	// Initialization state
	initialized   bool
	matchedTables []*Table
}

// Cursor returns a cursor over the view.
func (v *View) Cursor() *Cursor {
	return &Cursor{view: v}
}

func (c *Cursor) Next() bool {
	for {
		if !c.step() {
			return false
		}
		if c.view.query.rowMatches(c.currentTable, c.entityIndex-1, c.view.ticks) {
			return true
		}
	}
}

func (c *Cursor) step() bool {
	if c.initialized && c.entityIndex < c.remaining {
		c.entityIndex++
		return true
	}
	return c.advance()
}

func (c *Cursor) advance() bool {
	if !c.initialized {
		c.initialize()
	}
	for c.tableIndex < len(c.matchedTables) {
		c.currentTable = c.matchedTables[c.tableIndex]
		c.remaining = c.currentTable.Len()

		if c.entityIndex < c.remaining {
			c.entityIndex++
			return true
		}
		c.tableIndex++
		c.entityIndex = 0
	}
	c.Reset()
	return false
}

// Entities iterates the remaining rows as (row, table) pairs.
func (c *Cursor) Entities() iter.Seq2[int, *Table] {
	return func(yield func(int, *Table) bool) {
		for c.Next() {
			if !yield(c.entityIndex-1, c.currentTable) {
				c.Reset()
				return
			}
		}
	}
}

func (c *Cursor) initialize() {
	if c.initialized {
		return
	}
	c.view.begin()
	c.matchedTables = c.view.query.refresh()
	c.tableIndex = 0
	c.entityIndex = 0
	if len(c.matchedTables) > 0 {
		c.currentTable = c.matchedTables[0]
		c.remaining = c.currentTable.Len()
	}
	c.initialized = true
}

// Reset stops the iteration and releases the world.
func (c *Cursor) Reset() {
	if c.initialized {
		c.view.end()
	}
	c.tableIndex = 0
	c.entityIndex = 0
	c.remaining = 0
	c.currentTable = nil
	c.matchedTables = nil
	c.initialized = false
}

// Entity returns the entity at the cursor.
func (c *Cursor) Entity() entity.Entity {
	return c.currentTable.entities[c.entityIndex-1]
}

// Row returns the row at the cursor.
func (c *Cursor) Row() Row {
	return Row{view: c.view, table: c.currentTable, index: c.entityIndex - 1}
}

func (c *Cursor) fetch() (*View, *Table, int) {
	if c.currentTable == nil || c.entityIndex == 0 {
		panic("depot: cursor is not positioned on a row")
	}
	return c.view, c.currentTable, c.entityIndex - 1
}

// RemainingInTable returns the rows left in the current table, before row-level filters.
func (c *Cursor) RemainingInTable() int {
	return c.remaining - c.entityIndex
}

// TotalMatched returns the number of rows that pass the view's filters.
func (c *Cursor) TotalMatched() int {
	return c.view.Count()
}
