package depot

import (
	"fmt"

	"github.com/TheBitDrifter/depot/entity"
	"github.com/rotisserie/eris"
)

var (
	// ErrNoEntities is returned by Single when nothing matches.
	ErrNoEntities = eris.New("no entities match the query")
	// ErrMultipleEntities is returned by Single when more than one entity matches.
	ErrMultipleEntities = eris.New("more than one entity matches the query")
)

type LockedStorageError struct{}

func (e LockedStorageError) Error() string {
	return "storage is currently locked"
}

type EntityNotFoundError struct {
	Entity entity.Entity
}

func (e EntityNotFoundError) Error() string {
	return fmt.Sprintf("entity %v does not exist", e.Entity)
}

type ComponentExistsError struct {
	Component Component
}

func (e ComponentExistsError) Error() string {
	return fmt.Sprintf("component already exists on entity: %s", e.Component.componentKey())
}

type ComponentNotFoundError struct {
	Component Component
}

func (e ComponentNotFoundError) Error() string {
	return fmt.Sprintf("component does not exist on entity: %s", e.Component.componentKey())
}

// ShapeConflictError reports two terms of a shape that alias the same component type.
type ShapeConflictError struct {
	Component Component
	First     AccessKind
	Second    AccessKind
}

func (e ShapeConflictError) Error() string {
	return fmt.Sprintf("shape declares %s as both %s and %s", e.Component.componentKey(), e.First, e.Second)
}
