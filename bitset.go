package depot

import "math/bits"

// bitSet is a fixed-size set of small integers. mask.Mask is sized for component ids;
// schedule node sets grow with the number of systems, so they use this instead.
type bitSet []uint64

func newBitSet(n int) bitSet {
	return make(bitSet, (n+63)/64)
}

func (b bitSet) set(i int) {
	b[i/64] |= 1 << (uint(i) % 64)
}

func (b bitSet) has(i int) bool {
	return b[i/64]&(1<<(uint(i)%64)) != 0
}

func (b bitSet) union(other bitSet) {
	for i := range b {
		b[i] |= other[i]
	}
}

func (b bitSet) intersects(other bitSet) bool {
	for i := range b {
		if b[i]&other[i] != 0 {
			return true
		}
	}
	return false
}

func (b bitSet) clear() {
	clear(b)
}

func (b bitSet) count() int {
	n := 0
	for _, w := range b {
		n += bits.OnesCount64(w)
	}
	return n
}

// ones calls fn for every member in increasing order.
func (b bitSet) ones(fn func(int)) {
	for wi, w := range b {
		for w != 0 {
			tz := bits.TrailingZeros64(w)
			fn(wi*64 + tz)
			w &= w - 1
		}
	}
}
