package depot

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/TheBitDrifter/depot/entity"
	"github.com/TheBitDrifter/table"
	"github.com/rotisserie/eris"
)

var _ Storage = &World{}

type location struct {
	generation uint32
	table      TableID
	row        int
	live       bool
}

// World is the storage of entities and their components.
//
// A World is not safe for concurrent structural changes. While it is locked, by iteration or
// by a running schedule, structural changes fail with LockedStorageError and the Enqueue
// variants defer them until the last Unlock; deferred spawns may be issued from any goroutine.
type World struct {
	registry   *Registry
	allocator  *entity.Allocator
	remote     entity.RemoteAllocator
	locations  []location
	archetypes *archetypes
	live       int

	changeTick     atomic.Uint32
	lastChangeTick Tick
	lastCheckTick  Tick

	// lockMu serializes lock transitions so the last Unlock applies the queue before anyone
	// locks again.
	lockMu  sync.Mutex
	locks   atomic.Int32
	opQueue *opQueue
	borrows *borrowTracker
}

func newWorld(schema table.Schema, opts ...entity.Option) *World {
	registry := newRegistry(schema)
	allocator := entity.NewAllocator(opts...)
	w := &World{
		registry:   registry,
		allocator:  allocator,
		remote:     allocator.Remote(),
		archetypes: newArchetypes(registry),
		opQueue:    newOpQueue(),
		borrows:    newBorrowTracker(),
	}
	w.changeTick.Store(1)
	return w
}

// Registry returns the component registry of the world.
func (w *World) Registry() *Registry {
	return w.registry
}

// Allocator returns the entity allocator. It must only be used while the world is not in use.
func (w *World) Allocator() *entity.Allocator {
	return w.allocator
}

// Len returns the number of live entities.
func (w *World) Len() int {
	return w.live
}

// Tables returns every table, including empty ones, in creation order.
func (w *World) Tables() []*Table {
	return w.archetypes.asSlice
}

// Table returns the table with the given id.
func (w *World) Table(id TableID) (*Table, bool) {
	if int(id) >= w.archetypes.len() {
		return nil, false
	}
	return w.archetypes.get(id), true
}

// Contains reports whether e is alive.
func (w *World) Contains(e entity.Entity) bool {
	_, ok := w.locate(e)
	return ok
}

// Location returns the table and row of e.
func (w *World) Location(e entity.Entity) (TableID, int, bool) {
	loc, ok := w.locate(e)
	if !ok {
		return 0, 0, false
	}
	return loc.table, loc.row, true
}

func (w *World) locate(e entity.Entity) (location, bool) {
	i := int(e.Index())
	if i >= len(w.locations) {
		return location{}, false
	}
	loc := w.locations[i]
	if !loc.live || loc.generation != e.Generation() {
		return location{}, false
	}
	return loc, true
}

func (w *World) setLocation(e entity.Entity, tbl TableID, row int) {
	i := int(e.Index())
	if i >= len(w.locations) {
		newLen := max(i+1, 2*len(w.locations))
		locations := make([]location, newLen)
		copy(locations, w.locations)
		w.locations = locations
	}
	w.locations[i] = location{generation: e.Generation(), table: tbl, row: row, live: true}
}

// patch repoints the entity that a swap removal moved into row.
func (w *World) patch(displaced entity.Entity, moved bool, row int) {
	if moved {
		w.locations[displaced.Index()].row = row
	}
}

// Spawn creates an entity holding the given values.
func (w *World) Spawn(values ...Value) (entity.Entity, error) {
	if w.Locked() {
		return entity.Entity{}, LockedStorageError{}
	}
	return w.spawnAs(w.allocator.Alloc(), values), nil
}

func (w *World) spawnAs(e entity.Entity, values []Value) entity.Entity {
	resolved := w.resolve(values)
	ids := make([]ComponentID, len(resolved))
	for i, v := range resolved {
		ids[i] = v.id
	}
	tbl := w.archetypes.getOrCreate(ids)
	row := tbl.insertRow(e, resolved, w.ChangeTick())
	w.setLocation(e, tbl.id, row)
	w.live++
	return e
}

// NewEntities creates n entities holding the zero value of each component.
func (w *World) NewEntities(n int, components ...Component) ([]entity.Entity, error) {
	if w.Locked() {
		return nil, LockedStorageError{}
	}
	if n <= 0 {
		return nil, nil
	}
	entities := w.allocator.AllocMany(n)
	w.spawnBatch(entities, components)
	return entities, nil
}

func (w *World) spawnBatch(entities []entity.Entity, components []Component) {
	resolved := w.resolve(zeroValues(components))
	ids := make([]ComponentID, len(resolved))
	for i, v := range resolved {
		ids[i] = v.id
	}
	tbl := w.archetypes.getOrCreate(ids)
	tbl.reserve(len(entities))
	tick := w.ChangeTick()
	for _, e := range entities {
		row := tbl.insertRow(e, resolved, tick)
		w.setLocation(e, tbl.id, row)
	}
	w.live += len(entities)
}

// resolve registers the components of values. A later value for the same type replaces an
// earlier one.
func (w *World) resolve(values []Value) []resolvedValue {
	resolved := make([]resolvedValue, 0, len(values))
	for _, v := range values {
		id := w.registry.Register(v.component)
		replaced := false
		for i := range resolved {
			if resolved[i].id == id {
				resolved[i].value = v.value
				replaced = true
			}
		}
		if !replaced {
			resolved = append(resolved, resolvedValue{id: id, component: v.component, value: v.value})
		}
	}
	return resolved
}

// Despawn removes entities and frees their ids. Nothing is removed if any entity is dead.
func (w *World) Despawn(entities ...entity.Entity) error {
	if w.Locked() {
		return LockedStorageError{}
	}
	seen := make(map[entity.Entity]struct{}, len(entities))
	for _, e := range entities {
		if !w.Contains(e) {
			return eris.Wrap(EntityNotFoundError{Entity: e}, "despawn")
		}
		seen[e] = struct{}{}
	}
	for e := range seen {
		w.despawn(e)
	}
	return nil
}

func (w *World) despawn(e entity.Entity) {
	loc := w.locations[e.Index()]
	tbl := w.archetypes.get(loc.table)
	displaced, moved, _ := tbl.SwapRemove(loc.row, Drop)
	w.patch(displaced, moved, loc.row)
	w.locations[e.Index()] = location{}
	w.live--
	w.allocator.Free(e)
}

// ChangeTick returns the current world change tick.
func (w *World) ChangeTick() Tick {
	return Tick(w.changeTick.Load())
}

// IncrementChangeTick advances the world change tick and returns the tick before the increment.
func (w *World) IncrementChangeTick() Tick {
	return Tick(w.changeTick.Add(1) - 1)
}

// LastChangeTick is the tick manual change filters compare against.
func (w *World) LastChangeTick() Tick {
	return w.lastChangeTick
}

// ClearTrackers makes every change recorded so far invisible to manual change filters.
func (w *World) ClearTrackers() {
	w.lastChangeTick = w.IncrementChangeTick()
}

// CheckChangeTicks rebases stored ticks once the world tick has moved CheckTickThreshold past the
// previous check. It returns the tick rebased against, and whether a rebase happened, so owners of
// other ticks can rebase theirs too.
func (w *World) CheckChangeTicks() (Tick, bool) {
	now := w.ChangeTick()
	if now.relativeTo(w.lastCheckTick) < CheckTickThreshold {
		return now, false
	}
	w.archetypes.rebaseTicks(now)
	w.lastChangeTick.rebase(now)
	w.lastCheckTick = now
	return now, true
}

// Locked reports whether structural changes are currently deferred.
func (w *World) Locked() bool {
	return w.locks.Load() > 0
}

// Lock defers structural changes until the matching Unlock. Locks nest.
func (w *World) Lock() {
	w.lockMu.Lock()
	defer w.lockMu.Unlock()
	if w.locks.Add(1) == 1 {
		// Frees buffered so far become visible to remote allocation while locked.
		w.allocator.Flush()
	}
}

// Unlock releases one Lock. The last Unlock applies the deferred operations.
func (w *World) Unlock() {
	w.lockMu.Lock()
	defer w.lockMu.Unlock()
	n := w.locks.Add(-1)
	if n < 0 {
		panic("depot: Unlock of an unlocked world")
	}
	if n > 0 {
		return
	}
	if err := w.processOperationQueue(); err != nil {
		panic(err)
	}
}

func (w *World) String() string {
	return fmt.Sprintf("World{entities: %d, tables: %d, tick: %d}", w.live, w.archetypes.len(), w.ChangeTick())
}
