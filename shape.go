package depot

import "fmt"

// AccessKind is how a shape term uses its component.
type AccessKind int

const (
	AccessRead AccessKind = iota
	AccessWrite
	AccessOptionalRead
	AccessOptionalWrite
	AccessTag
	AccessAbsent
)

func (k AccessKind) String() string {
	switch k {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessOptionalRead:
		return "optional read"
	case AccessOptionalWrite:
		return "optional write"
	case AccessTag:
		return "tag"
	case AccessAbsent:
		return "absent"
	}
	return fmt.Sprintf("AccessKind(%d)", int(k))
}

func (k AccessKind) required() bool {
	return k == AccessRead || k == AccessWrite || k == AccessTag
}

func (k AccessKind) mutable() bool {
	return k == AccessWrite || k == AccessOptionalWrite
}

func (k AccessKind) data() bool {
	return k != AccessTag && k != AccessAbsent
}

// Term is one component of a shape.
type Term struct {
	component Component
	kind      AccessKind
}

// Component returns the component type of the term.
func (t Term) Component() Component { return t.component }

// Kind returns how the term uses its component.
func (t Term) Kind() AccessKind { return t.kind }

// Read requires c and reads it.
func Read(c Component) Term { return Term{c, AccessRead} }

// Write requires c and writes it.
func Write(c Component) Term { return Term{c, AccessWrite} }

// OptionalRead reads c where present.
func OptionalRead(c Component) Term { return Term{c, AccessOptionalRead} }

// OptionalWrite writes c where present.
func OptionalWrite(c Component) Term { return Term{c, AccessOptionalWrite} }

// Tag requires c without touching its data.
func Tag(c Component) Term { return Term{c, AccessTag} }

// Absent requires c to be missing.
func Absent(c Component) Term { return Term{c, AccessAbsent} }

// Shape is the static declaration of what a query touches. Shapes are validated once, when built.
type Shape struct {
	terms []Term
}

// NewShape validates terms. Two terms on the same component conflict when either writes it, or
// when one requires it absent.
func NewShape(terms ...Term) (Shape, error) {
	for i := range terms {
		for j := i + 1; j < len(terms); j++ {
			a, b := terms[i], terms[j]
			if a.component.componentKey() != b.component.componentKey() {
				continue
			}
			if a.kind.mutable() || b.kind.mutable() || a.kind == AccessAbsent || b.kind == AccessAbsent {
				return Shape{}, ShapeConflictError{Component: a.component, First: a.kind, Second: b.kind}
			}
		}
	}
	return Shape{terms: append([]Term(nil), terms...)}, nil
}

// MustShape is NewShape that panics on conflict.
func MustShape(terms ...Term) Shape {
	s, err := NewShape(terms...)
	if err != nil {
		panic(err)
	}
	return s
}

// Terms returns the terms of the shape.
func (s Shape) Terms() []Term {
	return append([]Term(nil), s.terms...)
}

// compiledShape is a shape bound to one registry.
type compiledShape struct {
	required []ComponentID
	absent   []ComponentID
	access   Access
}

func (s Shape) compile(registry *Registry) compiledShape {
	var cs compiledShape
	for _, t := range s.terms {
		id := registry.Register(t.component)
		switch {
		case t.kind == AccessAbsent:
			cs.absent = append(cs.absent, id)
			cs.access.addWithout(id)
			continue
		case t.kind.required():
			cs.required = append(cs.required, id)
			cs.access.addWith(id)
		}
		switch {
		case t.kind.mutable():
			cs.access.addWrite(id)
		case t.kind.data():
			cs.access.addRead(id)
		}
	}
	return cs
}

// matches is the archetype-level shape test.
func (cs *compiledShape) matches(tbl *Table) bool {
	for _, id := range cs.required {
		if !tbl.Has(id) {
			return false
		}
	}
	for _, id := range cs.absent {
		if tbl.Has(id) {
			return false
		}
	}
	return true
}

// canRead reports whether data of id may be read. Tags and absent terms grant nothing.
func (cs *compiledShape) canRead(id ComponentID) bool {
	return cs.access.reads(id)
}

func (cs *compiledShape) canWrite(id ComponentID) bool {
	return cs.access.writes(id)
}
