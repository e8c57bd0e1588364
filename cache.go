package depot

import "github.com/rotisserie/eris"

var _ Cache[any] = &SimpleCache[any]{}

// ErrCacheFull is returned when registering into a cache at maximum capacity.
var ErrCacheFull = eris.New("cache at maximum capacity")

func (c *SimpleCache[T]) GetIndex(key string) (int, bool) {
	index, ok := c.itemIndices[key]
	return index, ok
}

func (c *SimpleCache[T]) GetItem(index int) *T {
	item := &c.items[index]
	return item
}

func (c *SimpleCache[T]) GetItem32(index uint32) *T {
	item := &c.items[index]
	return item
}

// Register stores item under key. Registering a known key returns its existing index.
func (c *SimpleCache[T]) Register(key string, item T) (int, error) {
	if idx, ok := c.itemIndices[key]; ok {
		return idx, nil
	}
	if c.maxCapacity > 0 && len(c.itemIndices) >= c.maxCapacity {
		return -1, eris.Wrapf(ErrCacheFull, "registering %q (capacity %d)", key, c.maxCapacity)
	}

	idx := len(c.items)
	c.itemIndices[key] = idx
	c.items = append(c.items, item)

	return idx, nil
}

// Len returns the number of registered items.
func (c *SimpleCache[T]) Len() int {
	return len(c.items)
}

// Items returns the registered items in registration order.
func (c *SimpleCache[T]) Items() []T {
	return c.items
}

func (c *SimpleCache[T]) Clear() {
	c.items = c.items[:0]
	clear(c.itemIndices)
}
