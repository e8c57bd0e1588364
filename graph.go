package depot

import "slices"

// graph is a directed graph over dense node indices with ordered, de-duplicated edges.
type graph struct {
	out   [][]int
	in    [][]int
	edges map[[2]int]struct{}
}

func newGraph(n int) *graph {
	return &graph{
		out:   make([][]int, n),
		in:    make([][]int, n),
		edges: make(map[[2]int]struct{}),
	}
}

func (g *graph) len() int {
	return len(g.out)
}

func (g *graph) grow(n int) {
	for len(g.out) < n {
		g.out = append(g.out, nil)
		g.in = append(g.in, nil)
	}
}

func (g *graph) addEdge(a, b int) bool {
	key := [2]int{a, b}
	if _, ok := g.edges[key]; ok {
		return false
	}
	g.grow(max(a, b) + 1)
	g.edges[key] = struct{}{}
	g.out[a] = append(g.out[a], b)
	g.in[b] = append(g.in[b], a)
	return true
}

func (g *graph) hasEdge(a, b int) bool {
	_, ok := g.edges[[2]int{a, b}]
	return ok
}

func (g *graph) removeEdge(a, b int) {
	key := [2]int{a, b}
	if _, ok := g.edges[key]; !ok {
		return
	}
	delete(g.edges, key)
	g.out[a] = slices.DeleteFunc(g.out[a], func(n int) bool { return n == b })
	g.in[b] = slices.DeleteFunc(g.in[b], func(n int) bool { return n == a })
}

// allEdges returns every edge in insertion order per source node.
func (g *graph) allEdges() [][2]int {
	var out [][2]int
	for a, succ := range g.out {
		for _, b := range succ {
			out = append(out, [2]int{a, b})
		}
	}
	return out
}

// scc returns the strongly connected components in reverse topological order (Tarjan).
func (g *graph) scc() [][]int {
	n := g.len()
	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = -1
	}
	var (
		stack      []int
		components [][]int
		next       int
	)

	type frame struct {
		node, edge int
	}
	for root := 0; root < n; root++ {
		if index[root] >= 0 {
			continue
		}
		call := []frame{{node: root}}
		index[root], low[root] = next, next
		next++
		stack = append(stack, root)
		onStack[root] = true

		for len(call) > 0 {
			f := &call[len(call)-1]
			if f.edge < len(g.out[f.node]) {
				succ := g.out[f.node][f.edge]
				f.edge++
				if index[succ] < 0 {
					index[succ], low[succ] = next, next
					next++
					stack = append(stack, succ)
					onStack[succ] = true
					call = append(call, frame{node: succ})
				} else if onStack[succ] {
					low[f.node] = min(low[f.node], index[succ])
				}
				continue
			}
			node := f.node
			call = call[:len(call)-1]
			if len(call) > 0 {
				parent := call[len(call)-1].node
				low[parent] = min(low[parent], low[node])
			}
			if low[node] == index[node] {
				var comp []int
				for {
					top := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[top] = false
					comp = append(comp, top)
					if top == node {
						break
					}
				}
				slices.Sort(comp)
				components = append(components, comp)
			}
		}
	}
	return components
}

// topoSort returns a topological order, or the cycles that prevent one. Among nodes with no
// order between them, lower indices come first.
func (g *graph) topoSort() (order []int, cycles [][]int) {
	for _, comp := range g.scc() {
		if len(comp) > 1 || g.hasEdge(comp[0], comp[0]) {
			cycles = append(cycles, comp)
		}
	}
	if len(cycles) > 0 {
		return nil, cycles
	}

	n := g.len()
	indegree := make([]int, n)
	var ready []int
	for node := 0; node < n; node++ {
		indegree[node] = len(g.in[node])
		if indegree[node] == 0 {
			ready = append(ready, node)
		}
	}
	order = make([]int, 0, n)
	for len(ready) > 0 {
		node := ready[0]
		ready = ready[1:]
		order = append(order, node)
		for _, succ := range g.out[node] {
			indegree[succ]--
			if indegree[succ] == 0 {
				i, _ := slices.BinarySearch(ready, succ)
				ready = slices.Insert(ready, i, succ)
			}
		}
	}
	return order, nil
}

// analysis is the reachability of an acyclic graph.
type analysis struct {
	order     []int
	position  []int
	reachable []bitSet
	// redundant edges are implied by other paths.
	redundant [][2]int
}

// analyze computes reachability and the transitively implied edges of an acyclic graph.
func (g *graph) analyze(order []int) analysis {
	n := g.len()
	a := analysis{
		order:     order,
		position:  make([]int, n),
		reachable: make([]bitSet, n),
	}
	for i, node := range order {
		a.position[node] = i
	}
	for i := len(order) - 1; i >= 0; i-- {
		node := order[i]
		reach := newBitSet(n)
		succ := slices.Clone(g.out[node])
		slices.SortFunc(succ, func(x, y int) int { return a.position[x] - a.position[y] })
		for _, s := range succ {
			if reach.has(s) {
				a.redundant = append(a.redundant, [2]int{node, s})
				continue
			}
			reach.set(s)
			reach.union(a.reachable[s])
		}
		a.reachable[node] = reach
	}
	return a
}

// connected reports whether a path joins x and y in either direction.
func (a *analysis) connected(x, y int) bool {
	return a.reachable[x].has(y) || a.reachable[y].has(x)
}

// reduce removes the redundant edges found by analyze.
func (g *graph) reduce(a analysis) {
	for _, e := range a.redundant {
		g.removeEdge(e[0], e[1])
	}
}
