package entity

import (
	"math"
	"math/bits"
	"runtime"
	"sync/atomic"
)

const (
	segmentCount   = 24
	segmentSkipped = 32 - segmentCount
)

// segment is one fixed-capacity run of free-list slots. Once published it never moves.
type segment struct {
	slots []atomic.Uint64
}

// freeBuffer is the backing store of the free list: segments laid end to end.
// The first two segments hold 512 slots each and every later segment doubles.
type freeBuffer struct {
	segments [segmentCount]atomic.Pointer[segment]
}

func segmentCapacity(seg uint32) uint32 {
	if seg == 0 {
		seg = 1
	}
	return 1 << (seg + segmentSkipped)
}

// locate maps a free-list position to its segment, the offset inside it and the segment capacity.
func locate(position uint32) (seg, offset, capacity uint32) {
	leading := uint32(bits.LeadingZeros32(position))
	if leading < segmentCount-1 {
		seg = segmentCount - 1 - leading
	}
	capacity = segmentCapacity(seg)
	offset = position &^ capacity
	return seg, offset, capacity
}

// get reads a slot previously written by set.
func (b *freeBuffer) get(position uint32) Entity {
	seg, offset, _ := locate(position)
	return FromBits(b.segments[seg].Load().slots[offset].Load())
}

// set writes a slot, materializing its segment on first use. Only one goroutine may call set.
func (b *freeBuffer) set(position uint32, e Entity) {
	seg, offset, capacity := locate(position)
	s := b.segments[seg].Load()
	if s == nil {
		s = &segment{slots: make([]atomic.Uint64, capacity)}
		b.segments[seg].Store(s)
	}
	s.slots[offset].Store(e.Bits())
}

// freeState packs the free-list length, the disable flag and a generation in one word.
//
// Bits 0..32 hold the length offset by 1<<32 so a decrement past zero reads as zero instead of
// wrapping. Bit 33 is set while a free is appending. Bits 34..63 are a generation that moves on
// every pop so two states of equal length still compare unequal. The generation wraps freely.
type freeState uint64

const (
	stateLenZero    freeState = 1 << 32
	stateLenMask    freeState = 1<<32 | math.MaxUint32
	stateDisabled   freeState = 1 << 33
	stateGeneration freeState = 1 << 34
)

func (s freeState) length() uint32 {
	l := s & stateLenMask
	if l <= stateLenZero {
		return 0
	}
	return uint32(l - stateLenZero)
}

func (s freeState) disabled() bool {
	return s&stateDisabled != 0
}

func (s freeState) withLength(n uint32) freeState {
	return s&^stateLenMask | freeState(n) | stateLenZero
}

func encodePop(n uint32) freeState {
	return freeState(n) | stateGeneration
}

func (s freeState) pop(n uint32) freeState {
	return s - encodePop(n)
}

// freeList is a stack of entities pending reuse.
type freeList struct {
	buffer freeBuffer
	state  atomic.Uint64
}

func newFreeList() *freeList {
	l := &freeList{}
	l.state.Store(uint64(stateLenZero))
	return l
}

func (l *freeList) load() freeState {
	return freeState(l.state.Load())
}

func (l *freeList) length() uint32 {
	return l.load().length()
}

// free appends entities. It must not run concurrently with free, alloc or allocMany.
func (l *freeList) free(entities []Entity) {
	if len(entities) == 0 {
		return
	}
	state := freeState(l.state.Or(uint64(stateDisabled)))
	n := state.length()
	for _, e := range entities {
		l.buffer.set(n, e)
		n++
	}
	// Length changed, so the generation does not need to.
	l.state.Store(uint64(state.withLength(n)))
}

// popState subtracts n from the length and returns the state before the pop.
func (l *freeList) popState(n uint32) freeState {
	delta := uint64(encodePop(n))
	after := l.state.Add(-delta)
	return freeState(after + delta)
}

// alloc pops one entity. It must not run concurrently with free.
func (l *freeList) alloc() (Entity, bool) {
	n := l.popState(1).length()
	if n == 0 {
		return Entity{}, false
	}
	return l.buffer.get(n - 1), true
}

// allocMany pops up to count entities into dst. It must not run concurrently with free.
func (l *freeList) allocMany(dst []Entity, count uint32) []Entity {
	n := l.popState(count).length()
	start := n - min(n, count)
	for i := start; i < n; i++ {
		dst = append(dst, l.buffer.get(i))
	}
	return dst
}

// remoteAlloc pops one entity and is safe to call from any goroutine at any time.
func (l *freeList) remoteAlloc(spinLimit uint32) (Entity, bool) {
	attempts := uint32(1)
	state := l.load()
	for {
		if state.disabled() {
			// A free is mid-append; let it finish.
			attempts++
			if attempts%spinLimit == 0 {
				runtime.Gosched()
			}
			state = l.load()
			continue
		}

		n := state.length()
		if n == 0 {
			return Entity{}, false
		}
		e := l.buffer.get(n - 1)

		if l.state.CompareAndSwap(uint64(state), uint64(state.pop(1))) {
			return e, true
		}
		state = l.load()
	}
}
