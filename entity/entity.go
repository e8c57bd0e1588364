// Package entity issues and recycles entity identities.
//
// An Allocator hands out indices from two spaces: a fresh counter that only ever grows, and a
// free list of indices released by Free. The free list lives in pointer-stable segments so a
// RemoteAllocator can pop from it concurrently with the owner's Alloc and Free calls.
package entity

import (
	"fmt"
)

// Entity is a stable handle to one logical object.
// The generation distinguishes successive owners of the same index.
type Entity struct {
	index      uint32
	generation uint32
}

// New builds an entity from its parts. Mostly useful in tests.
func New(index, generation uint32) Entity {
	return Entity{index: index, generation: generation}
}

// FromBits unpacks an entity produced by Bits.
func FromBits(bits uint64) Entity {
	return Entity{
		index:      uint32(bits),
		generation: uint32(bits >> 32),
	}
}

// Index returns the slot index of the entity.
func (e Entity) Index() uint32 {
	return e.index
}

// Generation returns the reuse token of the entity.
func (e Entity) Generation() uint32 {
	return e.generation
}

// Bits packs the entity into a single integer, generation in the high half.
func (e Entity) Bits() uint64 {
	return uint64(e.generation)<<32 | uint64(e.index)
}

// next returns the entity that will own this index after a free.
func (e Entity) next() Entity {
	return Entity{index: e.index, generation: e.generation + 1}
}

func (e Entity) String() string {
	return fmt.Sprintf("%dv%d", e.index, e.generation)
}
