package depot

import (
	"context"
	"fmt"
	"slices"
)

// SystemFunc is the body of a scheduled system.
type SystemFunc func(ctx context.Context, run *Run) error

// ExclusiveFunc is the body of a system that needs the whole world. The world is unlocked while
// it runs, so structural changes apply immediately.
type ExclusiveFunc func(ctx context.Context, w *World) error

var (
	_ System = &funcSystem{}
	_ System = &exclusiveSystem{}
)

type funcSystem struct {
	name    string
	fn      SystemFunc
	queries []*Query
	access  AccessSet
}

// NewSystem builds a system that iterates queries. Its access is the union of theirs.
func NewSystem(name string, fn SystemFunc, queries ...*Query) System {
	s := &funcSystem{name: name, fn: fn, queries: queries}
	for _, q := range queries {
		s.access.Add(q.Access())
	}
	return s
}

func (s *funcSystem) Name() string {
	return s.name
}

func (s *funcSystem) Access() *AccessSet {
	return &s.access
}

func (s *funcSystem) Run(ctx context.Context, run *Run) error {
	run.queries = s.queries
	return s.fn(ctx, run)
}

func (s *funcSystem) Matches(label string) bool {
	return label == s.name
}

// conflicts returns the first pair of its own queries that alias mutably.
func (s *funcSystem) conflicts() (int, int, []ComponentID, bool) {
	for i := range s.queries {
		for j := i + 1; j < len(s.queries); j++ {
			a, b := s.queries[i].Access(), s.queries[j].Access()
			if a.disjoint(&b) {
				continue
			}
			if ids, conflict := a.Conflicts(&b); conflict {
				return i, j, ids, true
			}
		}
	}
	return 0, 0, nil, false
}

type exclusiveSystem struct {
	name   string
	fn     ExclusiveFunc
	access AccessSet
}

// NewExclusiveSystem builds a system that runs alone with structural access to the world.
func NewExclusiveSystem(name string, fn ExclusiveFunc) System {
	s := &exclusiveSystem{name: name, fn: fn}
	s.access.Add(ExclusiveAccess())
	return s
}

func (s *exclusiveSystem) Name() string {
	return s.name
}

func (s *exclusiveSystem) Access() *AccessSet {
	return &s.access
}

func (s *exclusiveSystem) Run(ctx context.Context, run *Run) error {
	return s.fn(ctx, run.world)
}

func (s *exclusiveSystem) Matches(label string) bool {
	return label == s.name
}

func isExclusive(s System) bool {
	return s.Access().Combined().IsExclusive()
}

// Run is what a system sees of one execution.
type Run struct {
	world   *World
	ticks   tickWindow
	queries []*Query
}

// World returns the world. Structural changes must go through the Enqueue methods unless the
// system is exclusive.
func (r *Run) World() *World {
	return r.world
}

// LastRun is the tick the system last ran at.
func (r *Run) LastRun() Tick {
	return r.ticks.lastRun
}

// ThisRun is the tick of this execution.
func (r *Run) ThisRun() Tick {
	return r.ticks.thisRun
}

// View returns the view of one of the system's queries. The schedule already proved the
// access safe, so the view is not borrow-checked.
func (r *Run) View(q *Query) *View {
	if !slices.Contains(r.queries, q) {
		panic(fmt.Sprintf("depot: query %p was not declared by the running system", q))
	}
	return q.view(r.ticks)
}
