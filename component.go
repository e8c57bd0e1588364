package depot

import (
	"reflect"

	"github.com/TheBitDrifter/table"
)

// Component represents a data attribute/state that can be attached to entities.
// Components are created with FactoryNewComponent and are shared across worlds.
type Component interface {
	table.ElementType
	componentKey() reflect.Type
	newColumn(capacity int) column
}

// AccessibleComponent is the typed handle for components of type T.
// Besides identifying the type in shapes and filters it reads and writes values through
// rows, cursors and chunks produced by queries.
type AccessibleComponent[T any] struct {
	table.ElementType
	key reflect.Type
}

func (c AccessibleComponent[T]) componentKey() reflect.Type {
	return c.key
}

func (c AccessibleComponent[T]) newColumn(capacity int) column {
	return newTypedColumn[T](capacity)
}

// Name returns the Go type name of the component.
func (c AccessibleComponent[T]) Name() string {
	return c.key.String()
}

// With pairs a value with its component type for spawning or inserting.
func (c AccessibleComponent[T]) With(value T) Value {
	return Value{component: c, value: value}
}

// Value is a component value waiting to be written into a table.
type Value struct {
	component Component
	value     any
}

// Component returns the type of the value.
func (v Value) Component() Component {
	return v.component
}

// zeroValues pairs each component with its zero value.
func zeroValues(components []Component) []Value {
	values := make([]Value, len(components))
	for i, c := range components {
		values[i] = Value{component: c}
	}
	return values
}
