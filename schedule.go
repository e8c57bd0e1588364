package depot

import (
	"context"
	"slices"

	"github.com/rotisserie/eris"
)

type nodeKind int

const (
	systemNode nodeKind = iota
	setNode
)

// node is a system or a set in the schedule graphs.
type node struct {
	kind       nodeKind
	name       string
	system     System
	systemType bool
	base       bool
	conditions []Condition

	ambiguousWithAll bool
	lastRun          Tick
}

// Schedule orders systems and runs them against its world.
//
// Systems and sets share one label namespace: every system also belongs to the set named after
// it, so ordering against a system's name orders against every system of that name.
type Schedule struct {
	world *World

	nodes      []*node
	labels     Cache[int]
	hierarchy  *graph
	dependency *graph
	ambiguous  [][2]int

	settings BuildSettings
	executor ExecutorKind
	workers  int

	dirty       bool
	plan        *plan
	ambiguities []Ambiguity
}

func newSchedule(w *World) *Schedule {
	return &Schedule{
		world:      w,
		labels:     FactoryNewCache[int](0),
		hierarchy:  newGraph(0),
		dependency: newGraph(0),
		settings:   Config.settings,
		executor:   Config.executor,
		workers:    Config.workers,
	}
}

// World returns the world the schedule runs against.
func (s *Schedule) World() *World {
	return s.world
}

// SetBuildSettings replaces the build settings and forces a rebuild.
func (s *Schedule) SetBuildSettings(settings BuildSettings) {
	s.settings = settings
	s.dirty = true
}

// SetExecutor selects the executor for subsequent runs.
func (s *Schedule) SetExecutor(kind ExecutorKind) {
	s.executor = kind
}

// SetWorkers bounds the goroutines of the multi-threaded executor. Zero means GOMAXPROCS.
func (s *Schedule) SetWorkers(n int) {
	s.workers = max(n, 0)
}

func (s *Schedule) addNode(n *node) int {
	s.nodes = append(s.nodes, n)
	id := len(s.nodes) - 1
	s.hierarchy.grow(id + 1)
	s.dependency.grow(id + 1)
	return id
}

// set returns the node of the set label, creating it on first reference.
func (s *Schedule) set(label string) int {
	if id, ok := s.labels.GetIndex(label); ok {
		return *s.labels.GetItem(id)
	}
	id := s.addNode(&node{kind: setNode, name: label})
	if _, err := s.labels.Register(label, id); err != nil {
		panic(err)
	}
	return id
}

func selfReference(name string, info *graphInfo) error {
	if slices.Contains(info.sets, name) {
		return &BuildError{Kind: ErrHierarchyLoop, Nodes: []string{name}}
	}
	if slices.Contains(info.before, name) || slices.Contains(info.after, name) {
		return &BuildError{Kind: ErrDependencyLoop, Nodes: []string{name}}
	}
	return nil
}

// AddSystems registers systems. A system ordered against, or placed in, its own label is
// rejected before anything is registered.
func (s *Schedule) AddSystems(configs ...*SystemConfig) error {
	for _, c := range configs {
		if err := selfReference(c.system.Name(), &c.info); err != nil {
			return err
		}
		if fs, ok := c.system.(*funcSystem); ok {
			for _, q := range fs.queries {
				if q.world != s.world {
					return eris.Errorf("system %s uses a query of another world", fs.name)
				}
			}
		}
	}
	for _, c := range configs {
		id := s.addNode(&node{
			kind:             systemNode,
			name:             c.system.Name(),
			system:           c.system,
			conditions:       c.info.conditions,
			ambiguousWithAll: c.info.ambiguousWithAll,
		})
		typeSet := s.set(c.system.Name())
		s.nodes[typeSet].systemType = true
		s.hierarchy.addEdge(typeSet, id)
		s.addEdges(id, &c.info)
	}
	s.dirty = true
	return nil
}

// ConfigureSets declares sets and their edges. Configuring a set again adds to it.
func (s *Schedule) ConfigureSets(configs ...*SetConfig) error {
	for _, c := range configs {
		if err := selfReference(c.label, &c.info); err != nil {
			return err
		}
	}
	for _, c := range configs {
		id := s.set(c.label)
		n := s.nodes[id]
		n.base = n.base || c.base
		n.conditions = append(n.conditions, c.info.conditions...)
		s.addEdges(id, &c.info)
	}
	s.dirty = true
	return nil
}

func (s *Schedule) addEdges(id int, info *graphInfo) {
	for _, label := range info.sets {
		s.hierarchy.addEdge(s.set(label), id)
	}
	for _, label := range info.before {
		s.dependency.addEdge(id, s.set(label))
	}
	for _, label := range info.after {
		s.dependency.addEdge(s.set(label), id)
	}
	for _, label := range info.ambiguousWith {
		s.ambiguous = append(s.ambiguous, [2]int{id, s.set(label)})
	}
}

// Systems returns the systems under label, directly or through nested sets.
func (s *Schedule) Systems(label string) ([]System, error) {
	idx, ok := s.labels.GetIndex(label)
	if !ok {
		return nil, eris.Wrapf(ErrUnknownLabel, "label %q", label)
	}
	root := *s.labels.GetItem(idx)
	var out []System
	seen := make(map[int]bool)
	stack := []int{root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		if s.nodes[id].kind == systemNode {
			out = append(out, s.nodes[id].system)
		}
		stack = append(stack, s.hierarchy.out[id]...)
	}
	return out, nil
}

// Initialize builds the execution plan if systems or sets changed since the last build.
func (s *Schedule) Initialize() error {
	if !s.dirty && s.plan != nil {
		return nil
	}
	p, ambiguities, err := s.build()
	if err != nil {
		return err
	}
	s.plan, s.ambiguities, s.dirty = p, ambiguities, false
	Config.logger.Debug("schedule built", "systems", len(p.systems), "ambiguities", len(ambiguities))
	return nil
}

// Order returns the system names in the order a sequential executor runs them.
func (s *Schedule) Order() ([]string, error) {
	if err := s.Initialize(); err != nil {
		return nil, err
	}
	names := make([]string, len(s.plan.order))
	for i, sys := range s.plan.order {
		names[i] = s.nodes[s.plan.systems[sys]].name
	}
	return names, nil
}

// Ambiguities returns the conflicting, unordered system pairs found by the last build.
func (s *Schedule) Ambiguities() []Ambiguity {
	return slices.Clone(s.ambiguities)
}

// Run executes every system once, rebuilding the plan first if needed. The world is locked for
// the run; deferred operations are applied according to the executor.
func (s *Schedule) Run(ctx context.Context) error {
	if err := s.Initialize(); err != nil {
		return err
	}
	s.world.Lock()
	err := newExecutor(s.executor, s.workers).run(ctx, s)
	s.world.Unlock()
	if now, rebased := s.world.CheckChangeTicks(); rebased {
		for _, n := range s.nodes {
			if n.kind == systemNode {
				n.lastRun.rebase(now)
			}
		}
	}
	return err
}

// runSystem executes the system node id with a fresh change tick.
func (s *Schedule) runSystem(ctx context.Context, id int) error {
	n := s.nodes[id]
	thisRun := s.world.IncrementChangeTick()
	run := &Run{world: s.world, ticks: tickWindow{lastRun: n.lastRun, thisRun: thisRun}}
	err := n.system.Run(ctx, run)
	n.lastRun = thisRun
	if err != nil {
		return eris.Wrapf(err, "system %s", n.name)
	}
	return nil
}

func evaluate(conditions []Condition, w *World) bool {
	for _, cond := range conditions {
		if !cond(w) {
			return false
		}
	}
	return true
}
