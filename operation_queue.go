package depot

import (
	"slices"
	"sync"

	"github.com/TheBitDrifter/depot/entity"
	"github.com/rotisserie/eris"
)

type operation struct {
	typ      operationType
	values   []Value
	comps    []Component
	entities []entity.Entity
}

type operationType int

const (
	opCreate operationType = iota
	opDestroy
	opAddComponent
	opRemoveComponent
	opNoop = -1
)

// opQueue collects structural changes made while the world is locked. Creates are applied first,
// then component changes in submission order, then destroys.
type opQueue struct {
	mu             sync.Mutex
	createOps      []operation
	componentOps   []operation
	destroyOps     []operation
	pendingDestroy map[entity.Entity]struct{}
}

func newOpQueue() *opQueue {
	return &opQueue{
		pendingDestroy: make(map[entity.Entity]struct{}),
	}
}

func (q *opQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.createOps) + len(q.componentOps) + len(q.destroyOps)
}

func (q *opQueue) enqueueCreate(entities []entity.Entity, values []Value, comps []Component) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.createOps = append(q.createOps, operation{
		typ:      opCreate,
		entities: entities,
		values:   values,
		comps:    comps,
	})
}

func (q *opQueue) enqueueDestroy(entities []entity.Entity) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var newEntities []entity.Entity
	for _, e := range entities {
		if _, exists := q.pendingDestroy[e]; exists {
			continue
		}
		newEntities = append(newEntities, e)
		q.pendingDestroy[e] = struct{}{}

		// Component changes on an entity about to be destroyed are pointless.
		for i := range q.componentOps {
			if q.componentOps[i].entities[0] == e {
				q.componentOps[i].typ = opNoop
			}
		}
	}
	if len(newEntities) > 0 {
		q.destroyOps = append(q.destroyOps, operation{typ: opDestroy, entities: newEntities})
	}
}

func (q *opQueue) enqueueComponentOp(typ operationType, e entity.Entity, values []Value, comps []Component) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, isDestroyed := q.pendingDestroy[e]; isDestroyed {
		return
	}
	q.componentOps = append(q.componentOps, operation{
		typ:      typ,
		entities: []entity.Entity{e},
		values:   values,
		comps:    comps,
	})
}

// drain empties the queue and returns what it held.
func (q *opQueue) drain() (creates, components, destroys []operation) {
	q.mu.Lock()
	defer q.mu.Unlock()
	creates, components, destroys = q.createOps, q.componentOps, q.destroyOps
	q.createOps, q.componentOps, q.destroyOps = nil, nil, nil
	clear(q.pendingDestroy)
	return creates, components, destroys
}

func (w *World) processOperationQueue() error {
	if w.opQueue.len() == 0 {
		return nil
	}
	creates, components, destroys := w.opQueue.drain()

	// Process creates first
	for _, op := range creates {
		if op.values != nil {
			w.spawnAs(op.entities[0], op.values)
			continue
		}
		w.spawnBatch(op.entities, op.comps)
	}

	// Component changes skip entities that died in the meantime.
	for _, op := range components {
		e := op.entities[0]
		loc, ok := w.locate(e)
		if !ok {
			continue
		}
		switch op.typ {
		case opAddComponent:
			w.insertResolved(e, loc, w.resolve(op.values))
		case opRemoveComponent:
			w.removeResolved(e, loc, Drop, op.comps)
		}
	}

	// Process destroys last
	for _, op := range destroys {
		for _, e := range op.entities {
			if w.Contains(e) {
				w.despawn(e)
			}
		}
	}

	if w.opQueue.len() > 0 {
		return eris.New("operations were queued while applying deferred operations")
	}
	return nil
}

// EnqueueSpawn creates an entity now if the world is unlocked, or reserves its id and spawns it
// when the world unlocks. It may be called from several goroutines while the world is locked.
func (w *World) EnqueueSpawn(values ...Value) (entity.Entity, error) {
	if !w.Locked() {
		return w.Spawn(values...)
	}
	e := w.remote.Alloc()
	if values == nil {
		values = []Value{}
	}
	w.opQueue.enqueueCreate([]entity.Entity{e}, slices.Clone(values), nil)
	return e, nil
}

// EnqueueNewEntities is the deferred form of NewEntities.
func (w *World) EnqueueNewEntities(n int, components ...Component) ([]entity.Entity, error) {
	if !w.Locked() {
		entities, err := w.NewEntities(n, components...)
		if err != nil {
			return nil, eris.Wrap(err, "failed to create entities directly")
		}
		return entities, nil
	}
	if n <= 0 {
		return nil, nil
	}
	entities := make([]entity.Entity, n)
	for i := range entities {
		entities[i] = w.remote.Alloc()
	}
	w.opQueue.enqueueCreate(entities, nil, slices.Clone(components))
	return slices.Clone(entities), nil
}

// EnqueueDespawn is the deferred form of Despawn. Dead entities are ignored when applied.
func (w *World) EnqueueDespawn(entities ...entity.Entity) error {
	if !w.Locked() {
		return w.Despawn(entities...)
	}
	w.opQueue.enqueueDestroy(slices.Clone(entities))
	return nil
}

// EnqueueInsert is the deferred form of Insert. When applied, components e already has are
// overwritten.
func (w *World) EnqueueInsert(e entity.Entity, values ...Value) error {
	if !w.Locked() {
		return w.Insert(e, values...)
	}
	w.opQueue.enqueueComponentOp(opAddComponent, e, slices.Clone(values), nil)
	return nil
}

// EnqueueRemove is the deferred form of Remove. Missing components are ignored when applied.
func (w *World) EnqueueRemove(e entity.Entity, components ...Component) error {
	if !w.Locked() {
		return w.Remove(e, components...)
	}
	w.opQueue.enqueueComponentOp(opRemoveComponent, e, nil, slices.Clone(components))
	return nil
}
