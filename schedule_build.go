package depot

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
)

var (
	ErrHierarchyLoop             = eris.New("set contains itself")
	ErrHierarchyCycle            = eris.New("set hierarchy contains cycles")
	ErrHierarchyRedundancy       = eris.New("set hierarchy contains redundant memberships")
	ErrDependencyLoop            = eris.New("node depends on itself")
	ErrDependencyCycle           = eris.New("dependencies contain cycles")
	ErrDependencyRedundancy      = eris.New("dependencies contain redundant edges")
	ErrCrossDependency           = eris.New("nodes have both a hierarchical and a dependent relationship")
	ErrSetsHaveOrderButIntersect = eris.New("ordered sets share systems")
	ErrMultipleBaseSets          = eris.New("system belongs to more than one base set")
	ErrSystemTypeSetAmbiguity    = eris.New("ordering refers to a system name with several instances")
	ErrUnknownLabel              = eris.New("unknown label")
	ErrAmbiguity                 = eris.New("systems with conflicting access have indeterminate order")
	ErrSystemAccessConflict      = eris.New("system queries alias the same component mutably")
)

// BuildError is a failed schedule build. Kind is one of the Err sentinels above.
type BuildError struct {
	Kind        error
	Nodes       []string
	Groups      [][]string
	Ambiguities []Ambiguity
}

func (e *BuildError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if len(e.Nodes) > 0 {
		fmt.Fprintf(&b, ": %s", strings.Join(e.Nodes, ", "))
	}
	for _, g := range e.Groups {
		fmt.Fprintf(&b, "; [%s]", strings.Join(g, " -> "))
	}
	for _, a := range e.Ambiguities {
		fmt.Fprintf(&b, "; %s", a)
	}
	return b.String()
}

func (e *BuildError) Unwrap() error {
	return e.Kind
}

// Ambiguity is a pair of unordered systems whose access conflicts.
type Ambiguity struct {
	First      string
	Second     string
	Components []string
}

func (a Ambiguity) String() string {
	if len(a.Components) == 0 {
		return fmt.Sprintf("%s and %s conflict on the whole world", a.First, a.Second)
	}
	return fmt.Sprintf("%s and %s conflict on %s", a.First, a.Second, strings.Join(a.Components, ", "))
}

// plan is the flattened, reduced dependency graph over systems.
type plan struct {
	// systems maps a dense system index to its node id.
	systems    []int
	order      []int
	depCount   []int
	dependents [][]int
	exclusive  []bool

	conditionSets               []int
	systemsInSetsWithConditions []bitSet
	setsWithConditionsOfSystems []bitSet
}

func (s *Schedule) names(ids []int) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = s.nodes[id].name
	}
	return out
}

func (s *Schedule) cycleError(kind error, cycles [][]int) error {
	groups := make([][]string, len(cycles))
	for i, c := range cycles {
		groups[i] = s.names(c)
	}
	return &BuildError{Kind: kind, Groups: groups}
}

// report handles a finding per level. It returns an error only at Error level.
func (s *Schedule) report(level LogLevel, kind error, pairs [][2]int) error {
	if level == Ignore || len(pairs) == 0 {
		return nil
	}
	groups := make([][]string, len(pairs))
	for i, p := range pairs {
		groups[i] = s.names(p[:])
	}
	if level == Error {
		return &BuildError{Kind: kind, Groups: groups}
	}
	for _, g := range groups {
		Config.logger.Warn(kind.Error(), "from", g[0], "to", g[1])
	}
	return nil
}

func (s *Schedule) build() (*plan, []Ambiguity, error) {
	n := len(s.nodes)

	// Systems are checked first: a system whose own queries alias cannot run anywhere.
	var systems []int
	dense := make([]int, n)
	for id, nd := range s.nodes {
		dense[id] = -1
		if nd.kind != systemNode {
			continue
		}
		dense[id] = len(systems)
		systems = append(systems, id)
		if fs, ok := nd.system.(*funcSystem); ok {
			if i, j, ids, conflict := fs.conflicts(); conflict {
				return nil, nil, &BuildError{
					Kind:   ErrSystemAccessConflict,
					Nodes:  []string{nd.name},
					Groups: [][]string{{fmt.Sprintf("query %d", i), fmt.Sprintf("query %d", j)}, s.componentNames(ids)},
				}
			}
		}
	}

	hierOrder, cycles := s.hierarchy.topoSort()
	if cycles != nil {
		return nil, nil, s.cycleError(ErrHierarchyCycle, cycles)
	}
	hier := s.hierarchy.analyze(hierOrder)
	if err := s.report(s.settings.HierarchyDetection, ErrHierarchyRedundancy, hier.redundant); err != nil {
		return nil, nil, err
	}

	depOrder, cycles := s.dependency.topoSort()
	if cycles != nil {
		return nil, nil, s.cycleError(ErrDependencyCycle, cycles)
	}
	dep := s.dependency.analyze(depOrder)
	if err := s.report(s.settings.RedundancyDetection, ErrDependencyRedundancy, dep.redundant); err != nil {
		return nil, nil, err
	}

	for a := 0; a < n; a++ {
		var cross error
		dep.reachable[a].ones(func(b int) {
			if cross == nil && hier.connected(a, b) {
				cross = &BuildError{Kind: ErrCrossDependency, Nodes: s.names([]int{a, b})}
			}
		})
		if cross != nil {
			return nil, nil, cross
		}
	}

	// setSystems[id] holds the dense indices of the systems under node id; a system is under itself.
	setSystems := make([]bitSet, n)
	for id := range s.nodes {
		members := newBitSet(len(systems))
		if dense[id] >= 0 {
			members.set(dense[id])
		}
		hier.reachable[id].ones(func(child int) {
			if dense[child] >= 0 {
				members.set(dense[child])
			}
		})
		setSystems[id] = members
	}

	for _, e := range s.dependency.allEdges() {
		a, b := e[0], e[1]
		if s.nodes[a].kind == setNode && s.nodes[b].kind == setNode && setSystems[a].intersects(setSystems[b]) {
			return nil, nil, &BuildError{Kind: ErrSetsHaveOrderButIntersect, Nodes: s.names([]int{a, b})}
		}
	}

	for _, sys := range systems {
		var bases []int
		for id, nd := range s.nodes {
			if nd.base && setSystems[id].has(dense[sys]) {
				bases = append(bases, id)
			}
		}
		if len(bases) > 1 {
			return nil, nil, &BuildError{Kind: ErrMultipleBaseSets, Nodes: s.names(append([]int{sys}, bases...))}
		}
	}

	for id, nd := range s.nodes {
		if !nd.systemType || setSystems[id].count() < 2 {
			continue
		}
		referenced := len(s.dependency.in[id]) > 0 || len(s.dependency.out[id]) > 0
		for _, pair := range s.ambiguous {
			referenced = referenced || pair[0] == id || pair[1] == id
		}
		if referenced {
			return nil, nil, &BuildError{Kind: ErrSystemTypeSetAmbiguity, Nodes: []string{nd.name}}
		}
	}

	// Lower set edges to system edges.
	flat := newGraph(len(systems))
	for _, e := range s.dependency.allEdges() {
		setSystems[e[0]].ones(func(a int) {
			setSystems[e[1]].ones(func(b int) {
				flat.addEdge(a, b)
			})
		})
	}
	flatOrder, cycles := flat.topoSort()
	if cycles != nil {
		for i, c := range cycles {
			for j, sys := range c {
				cycles[i][j] = systems[sys]
			}
		}
		return nil, nil, s.cycleError(ErrDependencyCycle, cycles)
	}
	flatAnalysis := flat.analyze(flatOrder)
	flat.reduce(flatAnalysis)

	exempt := make([]bitSet, len(systems))
	for i := range exempt {
		exempt[i] = newBitSet(len(systems))
	}
	for _, pair := range s.ambiguous {
		setSystems[pair[0]].ones(func(a int) {
			setSystems[pair[1]].ones(func(b int) {
				exempt[a].set(b)
				exempt[b].set(a)
			})
		})
	}

	ambiguities := s.conflicts(systems, flatAnalysis, exempt)
	if len(ambiguities) > 0 {
		switch s.settings.AmbiguityDetection {
		case Error:
			return nil, nil, &BuildError{Kind: ErrAmbiguity, Ambiguities: ambiguities}
		case Warn:
			for _, a := range ambiguities {
				Config.logger.Warn("schedule ambiguity", "first", a.First, "second", a.Second, "components", a.Components)
			}
		}
	}

	p := &plan{
		systems:    systems,
		order:      flatOrder,
		depCount:   make([]int, len(systems)),
		dependents: make([][]int, len(systems)),
		exclusive:  make([]bool, len(systems)),
	}
	for i, id := range systems {
		p.depCount[i] = len(flat.in[i])
		p.dependents[i] = slices.Clone(flat.out[i])
		p.exclusive[i] = isExclusive(s.nodes[id].system)
	}

	// Condition sets in hierarchy order so outer sets are evaluated before inner ones.
	for _, id := range hierOrder {
		if s.nodes[id].kind == setNode && len(s.nodes[id].conditions) > 0 {
			p.conditionSets = append(p.conditionSets, id)
		}
	}
	p.setsWithConditionsOfSystems = make([]bitSet, len(systems))
	for i := range systems {
		p.setsWithConditionsOfSystems[i] = newBitSet(len(p.conditionSets))
	}
	for k, id := range p.conditionSets {
		p.systemsInSetsWithConditions = append(p.systemsInSetsWithConditions, setSystems[id])
		setSystems[id].ones(func(sys int) {
			p.setsWithConditionsOfSystems[sys].set(k)
		})
	}
	return p, ambiguities, nil
}

// conflicts finds unordered, non-exempt system pairs with conflicting access.
func (s *Schedule) conflicts(systems []int, flat analysis, exempt []bitSet) []Ambiguity {
	var out []Ambiguity
	for i := range systems {
		for j := i + 1; j < len(systems); j++ {
			if flat.connected(i, j) || exempt[i].has(j) {
				continue
			}
			a, b := s.nodes[systems[i]], s.nodes[systems[j]]
			if a.ambiguousWithAll || b.ambiguousWithAll {
				continue
			}
			// An exclusive system touches the whole world, queries or not.
			if a.system.Access().Combined().IsExclusive() || b.system.Access().Combined().IsExclusive() {
				out = append(out, Ambiguity{First: a.name, Second: b.name, Components: []string{}})
				continue
			}
			ids, conflict := a.system.Access().Conflicts(b.system.Access())
			if !conflict {
				continue
			}
			out = append(out, Ambiguity{First: a.name, Second: b.name, Components: s.componentNames(ids)})
		}
	}
	return out
}

func (s *Schedule) componentNames(ids []ComponentID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = s.world.registry.Name(id)
	}
	return out
}
