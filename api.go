package depot

import (
	"context"

	"github.com/TheBitDrifter/depot/entity"
)

type Storage interface {
	Spawn(values ...Value) (entity.Entity, error)
	NewEntities(n int, components ...Component) ([]entity.Entity, error)
	EnqueueSpawn(values ...Value) (entity.Entity, error)
	EnqueueNewEntities(n int, components ...Component) ([]entity.Entity, error)
	Despawn(entities ...entity.Entity) error
	EnqueueDespawn(entities ...entity.Entity) error
	Insert(e entity.Entity, values ...Value) error
	EnqueueInsert(e entity.Entity, values ...Value) error
	Remove(e entity.Entity, components ...Component) error
	EnqueueRemove(e entity.Entity, components ...Component) error
	Take(e entity.Entity, components ...Component) ([]Value, error)
	Contains(e entity.Entity) bool
	Registry() *Registry
	Locked() bool
	Lock()
	Unlock()
}

type QueryNode interface {
	Evaluate(tbl *Table, registry *Registry) bool
}

type Filter interface {
	QueryNode
	And(items ...interface{}) QueryNode
	Or(items ...interface{}) QueryNode
	Not(items ...interface{}) QueryNode
}

// Fetcher is anything positioned on one row of a view: a Row or a Cursor.
type Fetcher interface {
	fetch() (*View, *Table, int)
}

// System is a unit of work the scheduler runs.
type System interface {
	Name() string
	Access() *AccessSet
	Run(ctx context.Context, run *Run) error
	// Matches reports whether label names the system. Set membership is tracked by the schedule.
	Matches(label string) bool
}

type Cache[T any] interface {
	GetIndex(string) (int, bool)
	GetItem(int) *T
	GetItem32(uint32) *T
	Register(string, T) (int, error)
	Len() int
}

type SimpleCache[T any] struct {
	items       []T
	itemIndices map[string]int
	maxCapacity int
}
