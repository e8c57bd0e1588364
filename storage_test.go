package depot

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/TheBitDrifter/depot/entity"
)

// TestArchetypeCreation tests the creation and reuse of tables
func TestArchetypeCreation(t *testing.T) {
	posComp := FactoryNewComponent[Position]()
	velComp := FactoryNewComponent[Velocity]()
	healthComp := FactoryNewComponent[Health]()

	tests := []struct {
		name             string
		firstComponents  []Component
		secondComponents []Component
		expectSameTable  bool
	}{
		{
			name:             "Identical components",
			firstComponents:  []Component{posComp, velComp},
			secondComponents: []Component{posComp, velComp},
			expectSameTable:  true,
		},
		{
			name:             "Different order",
			firstComponents:  []Component{posComp, velComp},
			secondComponents: []Component{velComp, posComp},
			expectSameTable:  true,
		},
		{
			name:             "Different components",
			firstComponents:  []Component{posComp},
			secondComponents: []Component{velComp},
			expectSameTable:  false,
		},
		{
			name:             "Subset components",
			firstComponents:  []Component{posComp, velComp},
			secondComponents: []Component{posComp},
			expectSameTable:  false,
		},
		{
			name:             "Superset components",
			firstComponents:  []Component{posComp},
			secondComponents: []Component{posComp, velComp, healthComp},
			expectSameTable:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			world := newTestWorld()

			first, _ := world.NewEntities(1, tt.firstComponents...)
			second, _ := world.NewEntities(1, tt.secondComponents...)
			firstTable, _, _ := world.Location(first[0])
			secondTable, _, _ := world.Location(second[0])

			if (firstTable == secondTable) != tt.expectSameTable {
				t.Errorf("tables %d and %d, expectSameTable %v", firstTable, secondTable, tt.expectSameTable)
			}
		})
	}
}

// TestTableEdges tests that add and remove edges are cached both ways
func TestTableEdges(t *testing.T) {
	world := newTestWorld()
	posComp := FactoryNewComponent[Position]()
	velComp := FactoryNewComponent[Velocity]()

	e, _ := world.Spawn(posComp.With(Position{}))
	from, _, _ := world.Location(e)
	world.Insert(e, velComp.With(Velocity{}))
	to, _, _ := world.Location(e)

	src, _ := world.Table(from)
	velID, _ := world.Registry().Lookup(velComp)
	if dst, ok := src.addEdges.Get(velID); !ok || dst != to {
		t.Errorf("add edge = %d, %v; want %d", dst, ok, to)
	}
	dstTable, _ := world.Table(to)
	if back, ok := dstTable.removeEdges.Get(velID); !ok || back != from {
		t.Errorf("remove edge = %d, %v; want %d", back, ok, from)
	}

	tables := len(world.Tables())
	world.Remove(e, velComp)
	world.Insert(e, velComp.With(Velocity{}))
	if len(world.Tables()) != tables {
		t.Errorf("following cached edges created %d new tables", len(world.Tables())-tables)
	}
}

// TestSwapRemoveRelocation tests that the moved row's entity points at its new row
func TestSwapRemoveRelocation(t *testing.T) {
	world := newTestWorld()
	posComp := FactoryNewComponent[Position]()

	var entities []entity.Entity
	for i := 0; i < 4; i++ {
		e, _ := world.Spawn(posComp.With(Position{X: float64(i)}))
		entities = append(entities, e)
	}

	world.Despawn(entities[1])

	last := entities[3]
	_, row, ok := world.Location(last)
	if !ok || row != 1 {
		t.Fatalf("last entity at row %d, %v; want 1", row, ok)
	}
	pos, _ := posComp.Of(world, last)
	if pos.X != 3 {
		t.Errorf("relocated value = %v, want 3", pos.X)
	}

	// Removing the last row moves nothing
	tblID, _, _ := world.Location(entities[0])
	tbl, _ := world.Table(tblID)
	_, moved, _ := tbl.SwapRemove(tbl.Len()-1, Drop)
	if moved {
		t.Error("removing the last row reported a move")
	}
}

// TestDeferredOperations tests that queued changes apply on the last unlock in order
func TestDeferredOperations(t *testing.T) {
	world := newTestWorld()
	posComp := FactoryNewComponent[Position]()
	velComp := FactoryNewComponent[Velocity]()
	healthComp := FactoryNewComponent[Health]()

	existing, _ := world.NewEntities(3, posComp)

	world.Lock()
	world.Lock()

	spawned, err := world.EnqueueSpawn(posComp.With(Position{X: 5}))
	if err != nil {
		t.Fatalf("EnqueueSpawn() error = %v", err)
	}
	batch, _ := world.EnqueueNewEntities(2, healthComp)
	world.EnqueueInsert(existing[0], velComp.With(Velocity{X: 1}))
	world.EnqueueInsert(existing[1], velComp.With(Velocity{X: 2}))
	world.EnqueueDespawn(existing[1])
	world.EnqueueRemove(existing[2], posComp)
	world.EnqueueInsert(spawned, healthComp.With(Health{Max: 3}))

	if world.Contains(spawned) {
		t.Error("deferred spawn is visible while locked")
	}
	if world.Len() != 3 {
		t.Errorf("Len() while locked = %d, want 3", world.Len())
	}

	world.Unlock()
	if !world.Locked() {
		t.Fatal("world unlocked after an inner Unlock")
	}
	if world.Contains(spawned) {
		t.Error("deferred spawn applied before the last Unlock")
	}
	world.Unlock()

	if !world.Contains(spawned) {
		t.Fatal("deferred spawn missing after Unlock")
	}
	if pos, _ := posComp.Of(world, spawned); pos.X != 5 {
		t.Errorf("spawned Position.X = %v, want 5", pos.X)
	}
	if h, ok := healthComp.Of(world, spawned); !ok || h.Max != 3 {
		t.Errorf("insert on a deferred spawn = %v, %v; want Max 3", h, ok)
	}
	for _, e := range batch {
		if !world.Has(e, healthComp) {
			t.Errorf("batch entity %v lacks Health", e)
		}
	}
	if !world.Has(existing[0], velComp) {
		t.Error("deferred insert not applied")
	}
	if world.Contains(existing[1]) {
		t.Error("deferred despawn not applied")
	}
	if world.Has(existing[2], posComp) {
		t.Error("deferred remove not applied")
	}
	if world.Len() != 5 {
		t.Errorf("Len() = %d, want 5", world.Len())
	}
}

// TestDeferredInsertOverwrites tests that an applied insert replaces present components
func TestDeferredInsertOverwrites(t *testing.T) {
	world := newTestWorld()
	posComp := FactoryNewComponent[Position]()

	e, _ := world.Spawn(posComp.With(Position{X: 1}))
	world.Lock()
	world.EnqueueInsert(e, posComp.With(Position{X: 2}))
	world.EnqueueRemove(e, FactoryNewComponent[Velocity]())
	world.Unlock()

	if pos, _ := posComp.Of(world, e); pos.X != 2 {
		t.Errorf("Position.X = %v, want 2", pos.X)
	}
}

// TestConcurrentEnqueueSpawn tests reserving ids from several goroutines while locked
func TestConcurrentEnqueueSpawn(t *testing.T) {
	world := newTestWorld()
	posComp := FactoryNewComponent[Position]()

	// Free some ids so remote allocation draws from the free list too
	initial, _ := world.NewEntities(100, posComp)
	world.Despawn(initial[:50]...)

	world.Lock()
	const goroutines, perGoroutine = 8, 100
	results := make([][]entity.Entity, goroutines)
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				e, err := world.EnqueueSpawn(posComp.With(Position{X: float64(g)}))
				if err != nil {
					t.Errorf("EnqueueSpawn() error = %v", err)
					return
				}
				results[g] = append(results[g], e)
			}
		}()
	}
	wg.Wait()
	world.Unlock()

	seen := make(map[uint32]bool)
	for _, list := range results {
		for _, e := range list {
			if seen[e.Index()] {
				t.Fatalf("index %d reserved twice", e.Index())
			}
			seen[e.Index()] = true
			if !world.Contains(e) {
				t.Fatalf("reserved entity %v not spawned", e)
			}
		}
	}
	for _, e := range initial[50:] {
		if seen[e.Index()] {
			t.Fatalf("reserved index %d belongs to a live entity", e.Index())
		}
	}
	if world.Len() != 50+goroutines*perGoroutine {
		t.Errorf("Len() = %d, want %d", world.Len(), 50+goroutines*perGoroutine)
	}
}

// TestRegistryConcurrentQueries tests building queries from several goroutines
func TestRegistryConcurrentQueries(t *testing.T) {
	world := newTestWorld()
	comps := []Component{
		FactoryNewComponent[Position](),
		FactoryNewComponent[Velocity](),
		FactoryNewComponent[Health](),
		FactoryNewComponent[Frozen](),
	}

	const goroutines = 8
	ids := make([][]ComponentID, goroutines)
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range comps {
				c := comps[(i+g)%len(comps)]
				NewQuery(world, MustShape(Read(c)))
			}
			for _, c := range comps {
				id, _ := world.Registry().Lookup(c)
				ids[g] = append(ids[g], id)
			}
		}()
	}
	wg.Wait()

	if world.Registry().Len() != len(comps) {
		t.Fatalf("Len() = %d, want %d", world.Registry().Len(), len(comps))
	}
	for g := 1; g < goroutines; g++ {
		for i := range comps {
			if ids[g][i] != ids[0][i] {
				t.Errorf("goroutine %d saw id %d for %s, want %d", g, ids[g][i], world.Registry().Name(ids[0][i]), ids[0][i])
			}
		}
	}
}

// TestConcurrentManualViews tests that deferred operations never apply under another iteration
func TestConcurrentManualViews(t *testing.T) {
	world := newTestWorld()
	posComp := FactoryNewComponent[Position]()
	world.NewEntities(10, posComp)
	query := NewQuery(world, MustShape(Read(posComp)))

	const goroutines, iterations = 4, 200
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				size, rows := -1, 0
				for range query.View().Rows() {
					if size < 0 {
						size = world.Len()
						world.EnqueueSpawn(posComp.With(Position{}))
					}
					if world.Len() != size {
						t.Errorf("world changed from %d to %d entities during iteration", size, world.Len())
						return
					}
					rows++
				}
				if rows == 0 {
					t.Error("iteration saw no rows")
					return
				}
			}
		}()
	}
	wg.Wait()

	if want := 10 + goroutines*iterations; world.Len() != want {
		t.Errorf("Len() = %d, want %d", world.Len(), want)
	}
	if world.Locked() {
		t.Error("world still locked")
	}
}

// TestUnlockPanicsWhenUnlocked tests lock accounting
func TestUnlockPanicsWhenUnlocked(t *testing.T) {
	world := newTestWorld()
	defer func() {
		if recover() == nil {
			t.Error("Unlock of an unlocked world should panic")
		}
	}()
	world.Unlock()
}

// TestChangeTickRebase tests that ticks older than MaxChangeAge are clamped
func TestChangeTickRebase(t *testing.T) {
	world := newTestWorld()
	posComp := FactoryNewComponent[Position]()
	e, _ := world.Spawn(posComp.With(Position{}))

	if _, rebased := world.CheckChangeTicks(); rebased {
		t.Fatal("fresh world rebased")
	}

	world.changeTick.Store(uint32(MaxChangeAge) + 100)
	now, rebased := world.CheckChangeTicks()
	if !rebased {
		t.Fatal("CheckChangeTicks() did not rebase past the threshold")
	}

	id, _ := world.Registry().Lookup(posComp)
	tblID, row, _ := world.Location(e)
	tbl, _ := world.Table(tblID)
	ticks, _ := tbl.Ticks(id, row)
	if ticks.Added != now-MaxChangeAge {
		t.Errorf("added tick = %d, want %d", ticks.Added, now-MaxChangeAge)
	}
	if !ticks.IsAdded(now-MaxChangeAge-1, now) {
		t.Error("a clamped tick should still read as newer than an older lastRun")
	}

	if _, rebased := world.CheckChangeTicks(); rebased {
		t.Error("second check without progress rebased again")
	}
}

// TestTickComparison tests wrapping tick comparisons
func TestTickComparison(t *testing.T) {
	tests := []struct {
		name    string
		tick    Tick
		lastRun Tick
		thisRun Tick
		want    bool
	}{
		{"Newer", 5, 3, 10, true},
		{"Same as lastRun", 3, 3, 10, false},
		{"Older", 2, 3, 10, false},
		{"Across wrap", 2, ^Tick(0) - 1, 5, true},
		{"Older across wrap", ^Tick(0) - 3, ^Tick(0) - 1, 5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tick.IsNewerThan(tt.lastRun, tt.thisRun); got != tt.want {
				t.Errorf("IsNewerThan() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestLoadSettings tests YAML configuration
func TestLoadSettings(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Settings
		wantErr bool
	}{
		{
			name:  "Empty keeps defaults",
			input: "",
			want: Settings{
				AmbiguityDetection: Ignore,
				HierarchyDetection: Warn,
				Executor:           MultiThreaded,
				TableCapacity:      8,
			},
		},
		{
			name:  "Full",
			input: "ambiguity_detection: error\nhierarchy_detection: ignore\nredundancy_detection: warn\nexecutor: simple\nworkers: 4\ntable_capacity: 64\n",
			want: Settings{
				AmbiguityDetection:  Error,
				HierarchyDetection:  Ignore,
				RedundancyDetection: Warn,
				Executor:            Simple,
				Workers:             4,
				TableCapacity:       64,
			},
		},
		{name: "Unknown key", input: "workerz: 4\n", wantErr: true},
		{name: "Unknown level", input: "ambiguity_detection: loud\n", wantErr: true},
		{name: "Unknown executor", input: "executor: fast\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadSettings(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadSettings() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("LoadSettings() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// TestConfigLoadFile tests applying settings from disk
func TestConfigLoadFile(t *testing.T) {
	saved := Config
	defer func() { Config = saved }()

	path := filepath.Join(t.TempDir(), "depot.yaml")
	if err := os.WriteFile(path, []byte("executor: single_threaded\ntable_capacity: 32\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Config.LoadFile(path); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if Config.executor != SingleThreaded || Config.tableCapacity != 32 {
		t.Errorf("Config = %+v, want single_threaded and capacity 32", Config)
	}
	if Factory.NewSchedule(newTestWorld()).executor != SingleThreaded {
		t.Error("new schedules should pick up the configured executor")
	}

	if err := Config.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFile() of a missing file should fail")
	}
}
