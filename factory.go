package depot

import (
	"reflect"

	"github.com/TheBitDrifter/depot/entity"
	"github.com/TheBitDrifter/table"
)

type factory struct{}

var Factory factory

func (f factory) NewWorld(schema table.Schema, opts ...entity.Option) *World {
	return newWorld(schema, opts...)
}

func (f factory) NewFilter() Filter {
	return newFilter()
}

func (f factory) NewSchedule(w *World) *Schedule {
	return newSchedule(w)
}

func FactoryNewComponent[T any]() AccessibleComponent[T] {
	return AccessibleComponent[T]{
		ElementType: table.FactoryNewElementType[T](),
		key:         reflect.TypeFor[T](),
	}
}

func FactoryNewCache[T any](cap int) Cache[T] {
	return &SimpleCache[T]{
		itemIndices: make(map[string]int),
		maxCapacity: cap,
	}
}
