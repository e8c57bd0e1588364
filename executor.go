package depot

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// executor runs one pass over a built plan. The world is locked when run is called.
type executor interface {
	run(ctx context.Context, s *Schedule) error
}

func newExecutor(kind ExecutorKind, workers int) executor {
	switch kind {
	case SingleThreaded:
		return sequentialExecutor{applyEach: false}
	case Simple:
		return sequentialExecutor{applyEach: true}
	default:
		if workers <= 0 {
			workers = runtime.GOMAXPROCS(0)
		}
		return &multiThreadedExecutor{workers: workers}
	}
}

// gate evaluates run conditions for system sys, memoizing set conditions for the pass.
type gate struct {
	plan      *plan
	evaluated bitSet
	skipped   bitSet
}

func newGate(p *plan) *gate {
	return &gate{
		plan:      p,
		evaluated: newBitSet(len(p.conditionSets)),
		skipped:   newBitSet(len(p.systems)),
	}
}

// shouldRun reports whether sys passes its sets' conditions and its own.
func (g *gate) shouldRun(s *Schedule, sys int) bool {
	g.plan.setsWithConditionsOfSystems[sys].ones(func(k int) {
		if g.evaluated.has(k) {
			return
		}
		g.evaluated.set(k)
		set := s.nodes[g.plan.conditionSets[k]]
		if !evaluate(set.conditions, s.world) {
			g.skipped.union(g.plan.systemsInSetsWithConditions[k])
		}
	})
	if g.skipped.has(sys) {
		return false
	}
	return evaluate(s.nodes[g.plan.systems[sys]].conditions, s.world)
}

func runExclusive(ctx context.Context, s *Schedule, id int) error {
	s.world.Unlock()
	defer s.world.Lock()
	return s.runSystem(ctx, id)
}

// sequentialExecutor runs systems in topological order.
type sequentialExecutor struct {
	applyEach bool
}

func (e sequentialExecutor) run(ctx context.Context, s *Schedule) error {
	p := s.plan
	g := newGate(p)
	for _, sys := range p.order {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !g.shouldRun(s, sys) {
			continue
		}
		id := p.systems[sys]
		var err error
		if p.exclusive[sys] {
			err = runExclusive(ctx, s, id)
		} else {
			err = s.runSystem(ctx, id)
		}
		if err != nil {
			return err
		}
		if e.applyEach {
			s.world.Unlock()
			s.world.Lock()
		}
	}
	return nil
}

// multiThreadedExecutor starts every system whose predecessors finished and whose access is
// compatible with the systems running. Pairs accepted as ambiguous still never overlap.
type multiThreadedExecutor struct {
	workers int
}

type executionState struct {
	s         *Schedule
	plan      *plan
	remaining []int
	ready     []int
	running   []int
	done      chan int
	gate      *gate
}

func (e *multiThreadedExecutor) run(ctx context.Context, s *Schedule) error {
	p := s.plan
	if len(p.systems) == 0 {
		return nil
	}
	st := &executionState{
		s:         s,
		plan:      p,
		remaining: make([]int, len(p.systems)),
		done:      make(chan int, len(p.systems)),
		gate:      newGate(p),
	}
	copy(st.remaining, p.depCount)
	for _, sys := range p.order {
		if st.remaining[sys] == 0 {
			st.ready = append(st.ready, sys)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	var firstErr error
	finished := 0
	for finished < len(p.systems) {
		if firstErr == nil && gctx.Err() == nil {
			n, err := st.spawn(gctx, g)
			finished += n
			if err != nil {
				firstErr = err
			}
		}
		if len(st.running) == 0 {
			if firstErr != nil || gctx.Err() != nil || len(st.ready) == 0 {
				break
			}
			// A worker slot frees just after its done signal.
			runtime.Gosched()
			continue
		}
		sys := <-st.done
		st.running = removeValue(st.running, sys)
		st.complete(sys)
		finished++
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// spawn starts every ready system that may start now. Skipped systems complete at once; an
// exclusive system runs inline once nothing else runs. It returns the systems it completed.
func (st *executionState) spawn(ctx context.Context, g *errgroup.Group) (int, error) {
	completed := 0
	for i := 0; i < len(st.ready); {
		sys := st.ready[i]
		if !st.canStart(sys) {
			i++
			continue
		}
		if !st.gate.shouldRun(st.s, sys) {
			st.ready = removeAt(st.ready, i)
			st.complete(sys)
			completed++
			i = 0
			continue
		}
		id := st.plan.systems[sys]
		if st.plan.exclusive[sys] {
			st.ready = removeAt(st.ready, i)
			err := runExclusive(ctx, st.s, id)
			st.complete(sys)
			completed++
			if err != nil {
				return completed, err
			}
			i = 0
			continue
		}
		started := g.TryGo(func() error {
			defer func() { st.done <- sys }()
			return st.s.runSystem(ctx, id)
		})
		if !started {
			return completed, nil
		}
		st.ready = removeAt(st.ready, i)
		st.running = append(st.running, sys)
	}
	return completed, nil
}

// canStart reports whether sys may run beside every running system.
func (st *executionState) canStart(sys int) bool {
	if st.plan.exclusive[sys] {
		return len(st.running) == 0
	}
	access := st.s.nodes[st.plan.systems[sys]].system.Access()
	for _, other := range st.running {
		if !access.IsCompatible(st.s.nodes[st.plan.systems[other]].system.Access()) {
			return false
		}
	}
	return true
}

// complete releases the dependents of sys.
func (st *executionState) complete(sys int) {
	for _, dep := range st.plan.dependents[sys] {
		st.remaining[dep]--
		if st.remaining[dep] == 0 {
			st.ready = append(st.ready, dep)
		}
	}
}

func removeAt(s []int, i int) []int {
	return append(s[:i], s[i+1:]...)
}

func removeValue(s []int, v int) []int {
	for i, x := range s {
		if x == v {
			return removeAt(s, i)
		}
	}
	return s
}
