package entity

import (
	"fmt"
	"math"
	"sync/atomic"
)

// QuickFreeBatch is the number of frees buffered locally before they reach the shared free list.
const QuickFreeBatch = 64

// DefaultSpinLimit is how many times a remote allocation retries a disabled free list before
// yielding the goroutine.
const DefaultSpinLimit = 64

// shared is the allocation state reachable from both the Allocator and its remote handles.
type shared struct {
	free      *freeList
	fresh     atomic.Uint64
	maxFresh  uint64
	spinLimit uint32
	closed    atomic.Bool
}

// exhausted aborts: handing out another index would break uniqueness.
func exhausted(limit uint64) {
	panic(fmt.Sprintf("entity: index space exhausted after %d indices", limit))
}

func (s *shared) allocFresh() Entity {
	index := s.fresh.Add(1) - 1
	if index >= s.maxFresh {
		exhausted(s.maxFresh)
	}
	return Entity{index: uint32(index)}
}

func (s *shared) allocFreshMany(dst []Entity, count uint32) []Entity {
	if count == 0 {
		return dst
	}
	end := s.fresh.Add(uint64(count))
	if end > s.maxFresh {
		exhausted(s.maxFresh)
	}
	for index := end - uint64(count); index < end; index++ {
		dst = append(dst, Entity{index: uint32(index)})
	}
	return dst
}

// Option configures an Allocator.
type Option func(*shared)

// WithMaxIndices caps the number of distinct indices the allocator may ever issue.
func WithMaxIndices(n uint32) Option {
	return func(s *shared) {
		s.maxFresh = uint64(n)
	}
}

// WithSpinLimit sets how often a remote allocation spins on a busy free list before yielding.
func WithSpinLimit(n uint32) Option {
	return func(s *shared) {
		if n == 0 {
			n = 1
		}
		s.spinLimit = n
	}
}

// Allocator issues entities and takes them back.
//
// Alloc, AllocMany, Free, FreeMany and Flush require exclusive use of the Allocator: the caller
// must not run them concurrently with each other. RemoteAllocator.Alloc has no such requirement.
type Allocator struct {
	shared   *shared
	quick    [QuickFreeBatch]Entity
	quickLen int
}

// NewAllocator creates an empty allocator.
func NewAllocator(opts ...Option) *Allocator {
	s := &shared{
		free:      newFreeList(),
		maxFresh:  math.MaxUint32,
		spinLimit: DefaultSpinLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return &Allocator{shared: s}
}

// Alloc returns an entity, reusing a freed index when one exists.
func (a *Allocator) Alloc() Entity {
	if a.quickLen > 0 {
		a.quickLen--
		return a.quick[a.quickLen]
	}
	if e, ok := a.shared.free.alloc(); ok {
		return e
	}
	return a.shared.allocFresh()
}

// AllocMany returns count entities, reused indices first.
func (a *Allocator) AllocMany(count int) []Entity {
	if count <= 0 {
		return nil
	}
	out := make([]Entity, 0, count)
	for a.quickLen > 0 && len(out) < count {
		a.quickLen--
		out = append(out, a.quick[a.quickLen])
	}
	need := uint32(count - len(out))
	if need > 0 {
		out = a.shared.free.allocMany(out, need)
	}
	need = uint32(count - len(out))
	return a.shared.allocFreshMany(out, need)
}

// Free releases an entity. Its index is handed out again with the next generation.
func (a *Allocator) Free(e Entity) {
	if a.quickLen == len(a.quick) {
		a.Flush()
	}
	a.quick[a.quickLen] = e.next()
	a.quickLen++
}

// FreeMany releases several entities and publishes them to remote allocators.
func (a *Allocator) FreeMany(entities []Entity) {
	for _, e := range entities {
		a.Free(e)
	}
	a.Flush()
}

// Flush publishes locally buffered frees to the shared free list.
func (a *Allocator) Flush() {
	if a.quickLen == 0 {
		return
	}
	a.shared.free.free(a.quick[:a.quickLen])
	a.quickLen = 0
}

// IndexCount is the number of distinct indices issued so far.
func (a *Allocator) IndexCount() uint32 {
	return uint32(min(a.shared.fresh.Load(), a.shared.maxFresh))
}

// FreeCount is the number of indices waiting for reuse. It is only accurate when no free runs.
func (a *Allocator) FreeCount() int {
	return int(a.shared.free.length()) + a.quickLen
}

// Remote returns a handle that may allocate concurrently with this allocator.
func (a *Allocator) Remote() RemoteAllocator {
	return RemoteAllocator{shared: a.shared}
}

// Close marks the allocator as gone. Remote handles report it through IsClosed.
func (a *Allocator) Close() {
	a.shared.closed.Store(true)
}

func (a *Allocator) String() string {
	return fmt.Sprintf("Allocator{indices: %d, free: %d}", a.IndexCount(), a.FreeCount())
}

// RemoteAllocator allocates entities without exclusive access to the owning Allocator.
// Copies share state. Entities returned after the owner is closed must not be trusted.
type RemoteAllocator struct {
	shared *shared
}

// Alloc returns an entity, reusing a published freed index when it is safe to do so.
func (r RemoteAllocator) Alloc() Entity {
	if e, ok := r.shared.free.remoteAlloc(r.shared.spinLimit); ok {
		return e
	}
	return r.shared.allocFresh()
}

// IsClosed reports whether the owning Allocator was closed.
func (r RemoteAllocator) IsClosed() bool {
	return r.shared.closed.Load()
}

// IsConnectedTo reports whether r allocates from a.
func (r RemoteAllocator) IsConnectedTo(a *Allocator) bool {
	return a != nil && r.shared == a.shared
}
