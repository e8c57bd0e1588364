package depot

import (
	"fmt"
	"sync/atomic"
)

// borrowTracker is the runtime aliasing check for manual access. Each counter is the number of
// shared borrows of a component type, or -1 while it is borrowed exclusively.
type borrowTracker struct {
	counters [MaxComponentTypes]atomic.Int32
}

func newBorrowTracker() *borrowTracker {
	return &borrowTracker{}
}

func (b *borrowTracker) acquireShared(id ComponentID, name string) {
	c := &b.counters[id]
	for {
		n := c.Load()
		if n < 0 {
			panic(fmt.Sprintf("depot: %s is borrowed mutably and cannot be read", name))
		}
		if c.CompareAndSwap(n, n+1) {
			return
		}
	}
}

func (b *borrowTracker) releaseShared(id ComponentID) {
	b.counters[id].Add(-1)
}

func (b *borrowTracker) acquireExclusive(id ComponentID, name string) {
	if !b.counters[id].CompareAndSwap(0, -1) {
		panic(fmt.Sprintf("depot: %s is already borrowed and cannot be written", name))
	}
}

func (b *borrowTracker) releaseExclusive(id ComponentID) {
	b.counters[id].Store(0)
}

// acquire borrows every component of a; on a conflict the borrows taken so far are returned
// before panicking.
func (b *borrowTracker) acquire(a *Access, registry *Registry) {
	var done []func()
	defer func() {
		if r := recover(); r != nil {
			for _, release := range done {
				release()
			}
			panic(r)
		}
	}()
	for _, id := range a.writeIDs {
		b.acquireExclusive(id, registry.Name(id))
		done = append(done, func() { b.releaseExclusive(id) })
	}
	for _, id := range a.readIDs {
		if a.writes(id) {
			continue
		}
		b.acquireShared(id, registry.Name(id))
		done = append(done, func() { b.releaseShared(id) })
	}
}

func (b *borrowTracker) release(a *Access) {
	for _, id := range a.writeIDs {
		b.releaseExclusive(id)
	}
	for _, id := range a.readIDs {
		if a.writes(id) {
			continue
		}
		b.releaseShared(id)
	}
}
