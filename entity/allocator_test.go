package entity

import (
	"math/rand"
	"sync"
	"testing"
)

// TestSegmentLocation checks the segment arithmetic used by the free list
func TestSegmentLocation(t *testing.T) {
	tests := []struct {
		position         uint32
		seg, off, capcty uint32
	}{
		{0, 0, 0, 512},
		{511, 0, 511, 512},
		{512, 1, 0, 512},
		{1023, 1, 511, 512},
		{1024, 2, 0, 1024},
		{2047, 2, 1023, 1024},
		{2048, 3, 0, 2048},
		{1 << 31, 23, 0, 1 << 31},
		{1<<32 - 1, 23, 1<<31 - 1, 1 << 31},
	}
	for _, tt := range tests {
		seg, off, capacity := locate(tt.position)
		if seg != tt.seg || off != tt.off || capacity != tt.capcty {
			t.Errorf("locate(%d) = (%d, %d, %d), want (%d, %d, %d)",
				tt.position, seg, off, capacity, tt.seg, tt.off, tt.capcty)
		}
	}

	var total uint64
	for i := uint32(0); i < segmentCount; i++ {
		total += uint64(segmentCapacity(i))
	}
	if total != 1<<32 {
		t.Errorf("segments hold %d slots, want %d", total, uint64(1)<<32)
	}
}

// TestFreeStateEncoding checks the packed length, disable flag and generation
func TestFreeStateEncoding(t *testing.T) {
	s := stateLenZero
	if s.length() != 0 {
		t.Fatalf("zero state length = %d", s.length())
	}

	s = s.withLength(10)
	if s.length() != 10 {
		t.Fatalf("length = %d, want 10", s.length())
	}

	popped := s.pop(3)
	if popped.length() != 7 {
		t.Errorf("length after pop = %d, want 7", popped.length())
	}
	if popped.withLength(10) == s {
		t.Errorf("state after pop and re-push must differ from the original")
	}

	// Popping past zero must read as empty, never as a huge length.
	under := stateLenZero.pop(5)
	if under.length() != 0 {
		t.Errorf("underflowed length = %d, want 0", under.length())
	}
	if under.disabled() {
		t.Errorf("underflow must not touch the disable flag")
	}

	if !(s | stateDisabled).disabled() {
		t.Errorf("disable flag not reported")
	}
}

// TestFreeThenAllocReturnsSameIndices checks that N frees are followed by exactly those N indices
func TestFreeThenAllocReturnsSameIndices(t *testing.T) {
	tests := []struct {
		name string
		n    int
		many bool
	}{
		{"Within local batch", 10, false},
		{"Beyond local batch", 1000, false},
		{"AllocMany", 1000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAllocator()
			entities := a.AllocMany(tt.n)
			freed := make(map[uint32]uint32, tt.n)
			for _, e := range entities {
				freed[e.Index()] = e.Generation()
				a.Free(e)
			}

			var got []Entity
			if tt.many {
				got = a.AllocMany(tt.n)
			} else {
				for i := 0; i < tt.n; i++ {
					got = append(got, a.Alloc())
				}
			}

			seen := make(map[uint32]bool, tt.n)
			for _, e := range got {
				gen, ok := freed[e.Index()]
				if !ok {
					t.Fatalf("allocated index %d that was never freed", e.Index())
				}
				if seen[e.Index()] {
					t.Fatalf("index %d handed out twice", e.Index())
				}
				seen[e.Index()] = true
				if e.Generation() != gen+1 {
					t.Errorf("entity %v generation = %d, want %d", e, e.Generation(), gen+1)
				}
			}
			if int(a.IndexCount()) != tt.n {
				t.Errorf("IndexCount() = %d, want %d", a.IndexCount(), tt.n)
			}
		})
	}
}

// TestAllocatorExhaustion checks that running out of indices aborts
func TestAllocatorExhaustion(t *testing.T) {
	const limit = 16
	a := NewAllocator(WithMaxIndices(limit))
	for i := 0; i < limit; i++ {
		if e := a.Alloc(); e.Index() != uint32(i) {
			t.Fatalf("allocation %d returned index %d", i, e.Index())
		}
	}

	defer func() {
		if recover() == nil {
			t.Errorf("allocation past the limit did not panic")
		}
	}()
	a.Alloc()
}

// TestAllocManyExhaustion checks the batch path against the limit
func TestAllocManyExhaustion(t *testing.T) {
	a := NewAllocator(WithMaxIndices(8))
	if got := len(a.AllocMany(8)); got != 8 {
		t.Fatalf("AllocMany(8) returned %d entities", got)
	}
	defer func() {
		if recover() == nil {
			t.Errorf("AllocMany past the limit did not panic")
		}
	}()
	a.AllocMany(1)
}

// TestRemoteAllocConcurrent checks at-most-once delivery with many remote callers racing frees
func TestRemoteAllocConcurrent(t *testing.T) {
	const (
		workers   = 8
		perWorker = 2000
		rounds    = 10
	)
	a := NewAllocator()
	remote := a.Remote()

	var mu sync.Mutex
	live := make(map[uint32]bool)

	claim := func(e Entity) {
		mu.Lock()
		defer mu.Unlock()
		if live[e.Index()] {
			t.Errorf("index %d held twice", e.Index())
		}
		live[e.Index()] = true
	}

	for round := 0; round < rounds; round++ {
		var wg sync.WaitGroup
		results := make([][]Entity, workers)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < perWorker; i++ {
					e := remote.Alloc()
					claim(e)
					results[w] = append(results[w], e)
				}
			}(w)
		}

		// The owner keeps freeing while remote callers allocate.
		owned := a.AllocMany(perWorker)
		for _, e := range owned {
			claim(e)
		}
		for _, e := range owned {
			mu.Lock()
			delete(live, e.Index())
			mu.Unlock()
			a.Free(e)
		}
		a.Flush()
		wg.Wait()

		// Release half of what the remote callers got for the next round.
		for _, rs := range results {
			for _, e := range rs[:len(rs)/2] {
				mu.Lock()
				delete(live, e.Index())
				mu.Unlock()
				a.Free(e)
			}
		}
		a.Flush()
	}

	if uint32(len(live)) > a.IndexCount() {
		t.Errorf("%d live entities but only %d indices issued", len(live), a.IndexCount())
	}
}

// TestRemoteAllocatorClosed checks the closed status of remote handles
func TestRemoteAllocatorClosed(t *testing.T) {
	a := NewAllocator()
	remote := a.Remote()
	clone := remote

	if remote.IsClosed() {
		t.Fatalf("remote reports closed before Close")
	}
	if !clone.IsConnectedTo(a) {
		t.Errorf("clone not connected to its allocator")
	}
	if clone.IsConnectedTo(NewAllocator()) {
		t.Errorf("clone connected to a foreign allocator")
	}

	a.Close()
	if !remote.IsClosed() || !clone.IsClosed() {
		t.Errorf("remote handles do not report closed")
	}
}

// TestRemoteSeesPublishedFrees checks that flushed frees are reusable remotely
func TestRemoteSeesPublishedFrees(t *testing.T) {
	a := NewAllocator(WithSpinLimit(4))
	entities := a.AllocMany(100)
	a.FreeMany(entities)

	remote := a.Remote()
	seen := make(map[uint32]bool)
	for i := 0; i < 100; i++ {
		e := remote.Alloc()
		if e.Index() >= 100 {
			t.Fatalf("remote allocation %d took a fresh index %d with free indices pending", i, e.Index())
		}
		if seen[e.Index()] {
			t.Fatalf("index %d returned twice", e.Index())
		}
		seen[e.Index()] = true
	}
	if e := remote.Alloc(); e.Index() != 100 {
		t.Errorf("expected fresh index 100 after draining, got %d", e.Index())
	}
}

// TestAllocFreeChurn runs a random allocate/free workload and checks live uniqueness
func TestAllocFreeChurn(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	a := NewAllocator()
	live := make(map[uint32]Entity)
	var order []Entity

	for step := 0; step < 20000; step++ {
		if len(order) > 0 && r.Intn(3) == 0 {
			i := r.Intn(len(order))
			e := order[i]
			order[i] = order[len(order)-1]
			order = order[:len(order)-1]
			delete(live, e.Index())
			a.Free(e)
			continue
		}
		e := a.Alloc()
		if prev, ok := live[e.Index()]; ok {
			t.Fatalf("index %d already live as %v", e.Index(), prev)
		}
		live[e.Index()] = e
		order = append(order, e)
	}
	for idx := range live {
		if idx >= a.IndexCount() {
			t.Errorf("live index %d outside issued range %d", idx, a.IndexCount())
		}
	}
}
