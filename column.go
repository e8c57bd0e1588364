package depot

// column is one component type's values for a table, plus parallel added/changed ticks.
type column interface {
	len() int
	capacity() int
	reserve(capacity int)
	push(value any, tick Tick)
	pushFrom(src column, row int)
	set(row int, value any, tick Tick)
	get(row int) any
	ticks(row int) ComponentTicks
	swapRemove(row int)
	swapRemoveTake(row int) any
	rebaseTicks(now Tick)
}

type typedColumn[T any] struct {
	values  []T
	added   []Tick
	changed []Tick
}

var _ column = &typedColumn[struct{}]{}

func newTypedColumn[T any](capacity int) *typedColumn[T] {
	return &typedColumn[T]{
		values:  make([]T, 0, capacity),
		added:   make([]Tick, 0, capacity),
		changed: make([]Tick, 0, capacity),
	}
}

func (c *typedColumn[T]) len() int {
	return len(c.values)
}

func (c *typedColumn[T]) capacity() int {
	return min(cap(c.values), cap(c.added), cap(c.changed))
}

// reserve resizes to exactly capacity when the column is smaller.
func (c *typedColumn[T]) reserve(capacity int) {
	if c.capacity() >= capacity {
		return
	}
	values := make([]T, len(c.values), capacity)
	copy(values, c.values)
	added := make([]Tick, len(c.added), capacity)
	copy(added, c.added)
	changed := make([]Tick, len(c.changed), capacity)
	copy(changed, c.changed)
	c.values, c.added, c.changed = values, added, changed
}

func (c *typedColumn[T]) push(value any, tick Tick) {
	var v T
	if value != nil {
		v = value.(T)
	}
	c.values = append(c.values, v)
	c.added = append(c.added, tick)
	c.changed = append(c.changed, tick)
}

// pushFrom appends row of src, value and ticks untouched.
func (c *typedColumn[T]) pushFrom(src column, row int) {
	s := src.(*typedColumn[T])
	c.values = append(c.values, s.values[row])
	c.added = append(c.added, s.added[row])
	c.changed = append(c.changed, s.changed[row])
}

func (c *typedColumn[T]) set(row int, value any, tick Tick) {
	var v T
	if value != nil {
		v = value.(T)
	}
	c.values[row] = v
	c.changed[row] = tick
}

func (c *typedColumn[T]) get(row int) any {
	return c.values[row]
}

func (c *typedColumn[T]) ticks(row int) ComponentTicks {
	return ComponentTicks{Added: c.added[row], Changed: c.changed[row]}
}

func (c *typedColumn[T]) swapRemove(row int) {
	last := len(c.values) - 1
	if row != last {
		c.values[row] = c.values[last]
		c.added[row] = c.added[last]
		c.changed[row] = c.changed[last]
	}
	var zero T
	c.values[last] = zero
	c.values = c.values[:last]
	c.added = c.added[:last]
	c.changed = c.changed[:last]
}

func (c *typedColumn[T]) swapRemoveTake(row int) any {
	v := c.values[row]
	c.swapRemove(row)
	return v
}

func (c *typedColumn[T]) rebaseTicks(now Tick) {
	for i := range c.added {
		c.added[i].rebase(now)
		c.changed[i].rebase(now)
	}
}
