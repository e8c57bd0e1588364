package depot

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/TheBitDrifter/depot/entity"
	"github.com/TheBitDrifter/table"
)

// Test component types
type Position struct {
	X, Y float64
}

type Velocity struct {
	X, Y float64
}

type Health struct {
	Current, Max int
}

type Frozen struct{}

func newTestWorld() *World {
	return Factory.NewWorld(table.Factory.NewSchema())
}

// TestEntityCreation tests spawning entities in batches
func TestEntityCreation(t *testing.T) {
	posComp := FactoryNewComponent[Position]()
	velComp := FactoryNewComponent[Velocity]()
	healthComp := FactoryNewComponent[Health]()

	tests := []struct {
		name           string
		componentTypes []Component
		entityCount    int
	}{
		{"Empty entity", []Component{}, 1},
		{"Single component", []Component{posComp}, 10},
		{"Multiple components", []Component{posComp, velComp}, 5},
		{"Large batch", []Component{posComp, velComp, healthComp}, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			world := newTestWorld()

			entities, err := world.NewEntities(tt.entityCount, tt.componentTypes...)
			if err != nil {
				t.Fatalf("NewEntities() error = %v", err)
			}
			if len(entities) != tt.entityCount {
				t.Errorf("Created %d entities, want %d", len(entities), tt.entityCount)
			}
			if world.Len() != tt.entityCount {
				t.Errorf("World holds %d entities, want %d", world.Len(), tt.entityCount)
			}

			for i, e := range entities {
				if !world.Contains(e) {
					t.Fatalf("Entity %d is not alive", i)
				}
			}
			components, _ := world.Components(entities[0])
			if len(components) != len(tt.componentTypes) {
				t.Errorf("Entity has %d components, want %d", len(components), len(tt.componentTypes))
			}
		})
	}
}

// TestSpawnValues tests that spawned values are stored and readable
func TestSpawnValues(t *testing.T) {
	world := newTestWorld()
	posComp := FactoryNewComponent[Position]()
	healthComp := FactoryNewComponent[Health]()

	e, err := world.Spawn(posComp.With(Position{X: 1, Y: 2}), healthComp.With(Health{Current: 5, Max: 10}))
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}

	pos, ok := posComp.Of(world, e)
	if !ok || pos != (Position{X: 1, Y: 2}) {
		t.Errorf("Position = %v, %v; want {1 2}, true", pos, ok)
	}
	health, ok := healthComp.Of(world, e)
	if !ok || health.Max != 10 {
		t.Errorf("Health = %v, %v; want Max 10", health, ok)
	}

	// A later value of the same type replaces the earlier one
	e2, _ := world.Spawn(posComp.With(Position{X: 1}), posComp.With(Position{X: 7}))
	pos, _ = posComp.Of(world, e2)
	if pos.X != 7 {
		t.Errorf("Duplicate value: Position.X = %v, want 7", pos.X)
	}
}

// TestComponentAddRemove tests moving entities between tables
func TestComponentAddRemove(t *testing.T) {
	posComp := FactoryNewComponent[Position]()
	velComp := FactoryNewComponent[Velocity]()
	healthComp := FactoryNewComponent[Health]()

	tests := []struct {
		name          string
		initial       []Component
		insert        []Value
		remove        []Component
		expectedFinal []Component
		wantInsertErr bool
		wantRemoveErr bool
	}{
		{
			name:          "Insert one",
			initial:       []Component{posComp},
			insert:        []Value{velComp.With(Velocity{X: 1})},
			expectedFinal: []Component{posComp, velComp},
		},
		{
			name:          "Insert then remove",
			initial:       []Component{posComp},
			insert:        []Value{velComp.With(Velocity{}), healthComp.With(Health{})},
			remove:        []Component{posComp},
			expectedFinal: []Component{velComp, healthComp},
		},
		{
			name:          "Insert existing",
			initial:       []Component{posComp},
			insert:        []Value{posComp.With(Position{})},
			wantInsertErr: true,
			expectedFinal: []Component{posComp},
		},
		{
			name:          "Remove missing",
			initial:       []Component{posComp},
			remove:        []Component{velComp},
			wantRemoveErr: true,
			expectedFinal: []Component{posComp},
		},
		{
			name:          "Remove all",
			initial:       []Component{posComp, velComp},
			remove:        []Component{posComp, velComp},
			expectedFinal: []Component{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			world := newTestWorld()
			entities, err := world.NewEntities(1, tt.initial...)
			if err != nil {
				t.Fatalf("NewEntities() error = %v", err)
			}
			e := entities[0]

			if len(tt.insert) > 0 {
				err := world.Insert(e, tt.insert...)
				if (err != nil) != tt.wantInsertErr {
					t.Errorf("Insert() error = %v, wantErr %v", err, tt.wantInsertErr)
				}
			}
			if len(tt.remove) > 0 {
				err := world.Remove(e, tt.remove...)
				if (err != nil) != tt.wantRemoveErr {
					t.Errorf("Remove() error = %v, wantErr %v", err, tt.wantRemoveErr)
				}
			}

			for _, c := range tt.expectedFinal {
				if !world.Has(e, c) {
					t.Errorf("Entity is missing %s", c.(interface{ Name() string }).Name())
				}
			}
			components, _ := world.Components(e)
			if len(components) != len(tt.expectedFinal) {
				t.Errorf("Entity has %d components, want %d", len(components), len(tt.expectedFinal))
			}
		})
	}
}

// TestInsertPreservesValues tests that a move keeps the values and ticks of kept components
func TestInsertPreservesValues(t *testing.T) {
	world := newTestWorld()
	posComp := FactoryNewComponent[Position]()
	velComp := FactoryNewComponent[Velocity]()
	healthComp := FactoryNewComponent[Health]()

	e, _ := world.Spawn(posComp.With(Position{X: 3, Y: 4}), velComp.With(Velocity{X: 1, Y: 2}))
	posID, _ := world.Registry().Lookup(posComp)
	velID, _ := world.Registry().Lookup(velComp)
	tblID, row, _ := world.Location(e)
	tbl, _ := world.Table(tblID)
	posBefore, _ := tbl.Ticks(posID, row)
	velBefore, _ := tbl.Ticks(velID, row)

	world.IncrementChangeTick()
	if err := world.Insert(e, healthComp.With(Health{Current: 5})); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	if pos, _ := posComp.Of(world, e); pos != (Position{X: 3, Y: 4}) {
		t.Errorf("Position after move = %v, want {3 4}", pos)
	}
	if vel, _ := velComp.Of(world, e); vel != (Velocity{X: 1, Y: 2}) {
		t.Errorf("Velocity after move = %v, want {1 2}", vel)
	}
	newID, row, _ := world.Location(e)
	if newID == tblID {
		t.Fatal("entity did not change table")
	}
	tbl, _ = world.Table(newID)
	if after, _ := tbl.Ticks(posID, row); after != posBefore {
		t.Errorf("Position ticks after move = %+v, want %+v", after, posBefore)
	}
	if after, _ := tbl.Ticks(velID, row); after != velBefore {
		t.Errorf("Velocity ticks after move = %+v, want %+v", after, velBefore)
	}
	healthID, _ := world.Registry().Lookup(healthComp)
	healthTicks, _ := tbl.Ticks(healthID, row)
	if healthTicks.Added != world.ChangeTick() {
		t.Errorf("Inserted component added at %d, want %d", healthTicks.Added, world.ChangeTick())
	}
}

// TestInsertExistingComponent tests that the error names the component already present
func TestInsertExistingComponent(t *testing.T) {
	world := newTestWorld()
	posComp := FactoryNewComponent[Position]()
	velComp := FactoryNewComponent[Velocity]()

	e, _ := world.Spawn(velComp.With(Velocity{X: 1}))
	err := world.Insert(e,
		posComp.With(Position{X: 1}),
		posComp.With(Position{X: 2}),
		velComp.With(Velocity{X: 5}),
	)
	if err == nil {
		t.Fatal("Insert() of a present component succeeded")
	}
	if !strings.Contains(err.Error(), "Velocity") || strings.Contains(err.Error(), "Position") {
		t.Errorf("Insert() error = %q, want it to name Velocity", err)
	}
	if world.Has(e, posComp) {
		t.Error("failed Insert() changed the entity")
	}
	if vel, _ := velComp.Of(world, e); vel.X != 1 {
		t.Errorf("Velocity = %v, want unchanged", vel)
	}
}

// TestTake tests that taken values are handed back
func TestTake(t *testing.T) {
	world := newTestWorld()
	posComp := FactoryNewComponent[Position]()
	healthComp := FactoryNewComponent[Health]()

	e, _ := world.Spawn(posComp.With(Position{X: 1}), healthComp.With(Health{Current: 9}))
	taken, err := world.Take(e, healthComp)
	if err != nil {
		t.Fatalf("Take() error = %v", err)
	}
	if len(taken) != 1 {
		t.Fatalf("Take() returned %d values, want 1", len(taken))
	}
	if got := taken[0].value.(Health); got.Current != 9 {
		t.Errorf("Taken health = %v, want Current 9", got)
	}
	if world.Has(e, healthComp) {
		t.Error("Entity still has the taken component")
	}
	if _, err := world.Take(e, healthComp); err == nil {
		t.Error("Take() of a missing component should fail")
	}
}

// TestDespawn tests entity destruction and generation reuse
func TestDespawn(t *testing.T) {
	world := newTestWorld()
	posComp := FactoryNewComponent[Position]()

	entities, _ := world.NewEntities(3, posComp)
	if err := world.Despawn(entities[0]); err != nil {
		t.Fatalf("Despawn() error = %v", err)
	}
	if world.Contains(entities[0]) {
		t.Error("Despawned entity is still alive")
	}
	if world.Len() != 2 {
		t.Errorf("Len() = %d, want 2", world.Len())
	}

	// The survivors keep their rows after the swap remove
	for _, e := range entities[1:] {
		tblID, row, ok := world.Location(e)
		if !ok {
			t.Fatalf("Survivor %v lost", e)
		}
		tbl, _ := world.Table(tblID)
		if tbl.Entities()[row] != e {
			t.Errorf("Row %d holds %v, want %v", row, tbl.Entities()[row], e)
		}
	}

	if err := world.Despawn(entities[0]); err == nil {
		t.Error("Despawn() of a dead entity should fail")
	}
	if err := world.Despawn(entities[1], entities[0]); err == nil {
		t.Error("Despawn() with a dead entity should fail")
	}
	if !world.Contains(entities[1]) {
		t.Error("A failed Despawn() must not remove anything")
	}

	world.Allocator().Flush()
	reused, _ := world.Spawn(posComp.With(Position{}))
	if reused.Index() == entities[0].Index() && reused.Generation() == entities[0].Generation() {
		t.Error("Reused index kept its generation")
	}
	if world.Contains(entity.New(reused.Index(), reused.Generation()+1)) {
		t.Error("A future generation must not be alive")
	}
}

// TestEntityChurn tests many spawns and frees over several tables
func TestEntityChurn(t *testing.T) {
	world := newTestWorld()
	posComp := FactoryNewComponent[Position]()
	velComp := FactoryNewComponent[Velocity]()
	healthComp := FactoryNewComponent[Health]()

	layouts := [][]Component{{posComp}, {posComp, velComp}, {posComp, velComp, healthComp}}
	var live []entity.Entity
	for i := 0; i < 10000; i++ {
		e, _ := world.NewEntities(1, layouts[i%len(layouts)]...)
		live = append(live, e...)
	}

	rng := rand.New(rand.NewSource(1))
	rng.Shuffle(len(live), func(i, j int) { live[i], live[j] = live[j], live[i] })
	if err := world.Despawn(live[:5000]...); err != nil {
		t.Fatalf("Despawn() error = %v", err)
	}
	live = live[5000:]

	for i := 0; i < 5000; i++ {
		e, _ := world.NewEntities(1, layouts[i%len(layouts)]...)
		live = append(live, e...)
	}

	if world.Len() != 10000 {
		t.Fatalf("Len() = %d, want 10000", world.Len())
	}
	seen := make(map[uint32]bool, len(live))
	indexCount := int(world.Allocator().IndexCount())
	for _, e := range live {
		if seen[e.Index()] {
			t.Fatalf("Index %d is held twice", e.Index())
		}
		seen[e.Index()] = true
		if int(e.Index()) >= indexCount {
			t.Fatalf("Index %d beyond IndexCount %d", e.Index(), indexCount)
		}
		if !world.Contains(e) {
			t.Fatalf("Entity %v lost", e)
		}
	}
	for _, tbl := range world.Tables() {
		if err := tbl.checkInvariants(); err != nil {
			t.Errorf("table %d: %v", tbl.ID(), err)
		}
	}
}

// TestLockedStorage tests that structural changes fail while locked
func TestLockedStorage(t *testing.T) {
	world := newTestWorld()
	posComp := FactoryNewComponent[Position]()
	e, _ := world.Spawn(posComp.With(Position{}))

	world.Lock()
	defer world.Unlock()

	if _, err := world.Spawn(); err != (LockedStorageError{}) {
		t.Errorf("Spawn() error = %v, want LockedStorageError", err)
	}
	if _, err := world.NewEntities(1, posComp); err != (LockedStorageError{}) {
		t.Errorf("NewEntities() error = %v, want LockedStorageError", err)
	}
	if err := world.Despawn(e); err != (LockedStorageError{}) {
		t.Errorf("Despawn() error = %v, want LockedStorageError", err)
	}
	if err := world.Remove(e, posComp); err != (LockedStorageError{}) {
		t.Errorf("Remove() error = %v, want LockedStorageError", err)
	}
	if err := world.Insert(e, FactoryNewComponent[Frozen]().With(Frozen{})); err != (LockedStorageError{}) {
		t.Errorf("Insert() error = %v, want LockedStorageError", err)
	}
}
