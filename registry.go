package depot

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/TheBitDrifter/mask"
	"github.com/TheBitDrifter/table"
)

// MaxComponentTypes bounds the ids a registry hands out so every id fits a mask.Mask bit.
const MaxComponentTypes = 64

// ComponentID is the small integer id of a component type within one registry.
type ComponentID uint32

// ComponentInfo is the layout metadata recorded for a registered component type.
type ComponentInfo struct {
	ID    ComponentID
	Name  string
	Size  uintptr
	Align uintptr

	component Component
}

// ZeroSized reports whether values of the type occupy no memory (tags).
func (i ComponentInfo) ZeroSized() bool {
	return i.Size == 0
}

// Registry assigns stable ids to component types. Ids come from the table schema so they agree
// with every other schema consumer of the same world. It is safe for concurrent use, so queries
// may be built from inside running systems.
type Registry struct {
	mu     sync.RWMutex
	schema table.Schema
	ids    map[reflect.Type]ComponentID
	infos  []ComponentInfo
}

func newRegistry(schema table.Schema) *Registry {
	return &Registry{
		schema: schema,
		ids:    make(map[reflect.Type]ComponentID),
	}
}

// Register returns the id of c, assigning one on first sight.
func (r *Registry) Register(c Component) ComponentID {
	key := c.componentKey()
	r.mu.RLock()
	id, ok := r.ids[key]
	r.mu.RUnlock()
	if ok {
		return id
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.ids[key]; ok {
		return id
	}
	r.schema.Register(c)
	index := r.schema.RowIndexFor(c)
	if index >= MaxComponentTypes {
		panic(fmt.Sprintf("depot: component %s got id %d, registry holds at most %d types", key, index, MaxComponentTypes))
	}
	id = ComponentID(index)
	r.ids[key] = id
	for len(r.infos) <= int(id) {
		r.infos = append(r.infos, ComponentInfo{})
	}
	r.infos[id] = ComponentInfo{
		ID:        id,
		Name:      key.String(),
		Size:      key.Size(),
		Align:     uintptr(key.Align()),
		component: c,
	}
	return id
}

// Lookup returns the id of c without registering it.
func (r *Registry) Lookup(c Component) (ComponentID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.ids[c.componentKey()]
	return id, ok
}

// Info returns the metadata of a registered id.
func (r *Registry) Info(id ComponentID) (ComponentInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.isRegistered(id) {
		return ComponentInfo{}, false
	}
	return r.infos[id], true
}

// Name returns the type name for id, or a placeholder for unknown ids.
func (r *Registry) Name(id ComponentID) string {
	if info, ok := r.Info(id); ok {
		return info.Name
	}
	return fmt.Sprintf("component#%d", id)
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ids)
}

func (r *Registry) isRegistered(id ComponentID) bool {
	return int(id) < len(r.infos) && r.infos[id].component != nil
}

// maskOf builds the mask of the given ids.
func maskOf(ids ...ComponentID) mask.Mask {
	var m mask.Mask
	for _, id := range ids {
		m.Mark(uint32(id))
	}
	return m
}

// hasBit reports whether id is set in m.
func hasBit(m mask.Mask, id ComponentID) bool {
	return m.ContainsAll(maskOf(id))
}
