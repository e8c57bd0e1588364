package depot

import (
	"github.com/TheBitDrifter/mask"
)

type Operation int

const (
	OpAnd Operation = iota
	OpOr
	OpNot
	OpChanged
	OpAdded
)

var (
	_ Filter    = &filter{}
	_ QueryNode = &compositeNode{}
	_ QueryNode = &leafNode{}
	_ QueryNode = &tickNode{}
)

// compositeNode combines its own components (by op) with child nodes.
type compositeNode struct {
	op         Operation
	children   []QueryNode
	components []Component
}

type leafNode struct {
	components []Component
}

// tickNode passes rows whose component changed (or was added) since the viewing system last ran.
type tickNode struct {
	op        Operation
	component Component
}

type filter struct {
	root QueryNode
}

func newFilter() Filter {
	return &filter{}
}

func newCompositeNode(op Operation, components []Component) *compositeNode {
	return &compositeNode{
		op:         op,
		children:   make([]QueryNode, 0),
		components: components,
	}
}

func newLeafNode(components []Component) *leafNode {
	return &leafNode{components: components}
}

// Has is a node requiring all components, without accessing their data.
func Has(components ...Component) QueryNode {
	return newLeafNode(components)
}

// Changed passes rows whose c value changed since the last run. It implies c is present.
func Changed(c Component) QueryNode {
	return &tickNode{op: OpChanged, component: c}
}

// Added passes rows whose c value was added since the last run. It implies c is present.
func Added(c Component) QueryNode {
	return &tickNode{op: OpAdded, component: c}
}

// AnyOf passes when at least one node passes. Row-level nodes are checked per row.
func AnyOf(nodes ...QueryNode) QueryNode {
	n := newCompositeNode(OpOr, nil)
	n.children = nodes
	return n
}

// AllOf passes when every node passes.
func AllOf(nodes ...QueryNode) QueryNode {
	n := newCompositeNode(OpAnd, nil)
	n.children = nodes
	return n
}

// maskFor builds the mask of components. ok is false if one of them was never registered, so
// no table can hold it.
func maskFor(registry *Registry, components []Component) (m mask.Mask, ok bool) {
	ok = true
	for _, c := range components {
		id, found := registry.Lookup(c)
		if !found {
			ok = false
			continue
		}
		m.Mark(uint32(id))
	}
	return m, ok
}

func (n *compositeNode) Evaluate(tbl *Table, registry *Registry) bool {
	// Build mask at evaluation time
	nodeMask, allKnown := maskFor(registry, n.components)
	archeMask := tbl.Mask()
	hasComponents := len(n.components) > 0

	switch n.op {
	case OpAnd:
		if hasComponents && (!allKnown || !archeMask.ContainsAll(nodeMask)) {
			return false
		}
		for _, child := range n.children {
			if !child.Evaluate(tbl, registry) {
				return false
			}
		}
		return true

	case OpOr:
		if hasComponents && archeMask.ContainsAny(nodeMask) {
			return true
		}
		for _, child := range n.children {
			if child.Evaluate(tbl, registry) {
				return true
			}
		}
		return false

	case OpNot:
		if hasComponents && archeMask.ContainsAny(nodeMask) {
			return false
		}
		for _, child := range n.children {
			// Row-level children may still fail on some rows, so they are settled per row.
			if isRowLevel(child) {
				continue
			}
			if child.Evaluate(tbl, registry) {
				return false
			}
		}
		return true
	}
	return false
}

func (n *compositeNode) rowLevel() bool {
	for _, child := range n.children {
		if isRowLevel(child) {
			return true
		}
	}
	return false
}

func (n *compositeNode) matchRow(tbl *Table, row int, registry *Registry, ticks tickWindow) bool {
	switch n.op {
	case OpAnd:
		for _, child := range n.children {
			if isRowLevel(child) && !child.(rowNode).matchRow(tbl, row, registry, ticks) {
				return false
			}
		}
		return true
	case OpOr:
		nodeMask, _ := maskFor(registry, n.components)
		if len(n.components) > 0 && tbl.Mask().ContainsAny(nodeMask) {
			return true
		}
		for _, child := range n.children {
			if passes(child, tbl, row, registry, ticks) {
				return true
			}
		}
		return false
	case OpNot:
		for _, child := range n.children {
			if passes(child, tbl, row, registry, ticks) {
				return false
			}
		}
		return true
	}
	return false
}

func (n *leafNode) Evaluate(tbl *Table, registry *Registry) bool {
	nodeMask, allKnown := maskFor(registry, n.components)
	return allKnown && tbl.Mask().ContainsAll(nodeMask)
}

func (n *tickNode) Evaluate(tbl *Table, registry *Registry) bool {
	id, ok := registry.Lookup(n.component)
	return ok && tbl.Has(id)
}

func (n *tickNode) rowLevel() bool {
	return true
}

func (n *tickNode) matchRow(tbl *Table, row int, registry *Registry, ticks tickWindow) bool {
	id, ok := registry.Lookup(n.component)
	if !ok {
		return false
	}
	t, ok := tbl.Ticks(id, row)
	if !ok {
		return false
	}
	if n.op == OpAdded {
		return t.IsAdded(ticks.lastRun, ticks.thisRun)
	}
	return t.IsChanged(ticks.lastRun, ticks.thisRun)
}

// rowNode is a QueryNode that also filters individual rows.
type rowNode interface {
	QueryNode
	rowLevel() bool
	matchRow(tbl *Table, row int, registry *Registry, ticks tickWindow) bool
}

// tickWindow is the pair of ticks change filters compare against.
type tickWindow struct {
	lastRun Tick
	thisRun Tick
}

func isRowLevel(n QueryNode) bool {
	r, ok := n.(rowNode)
	return ok && r.rowLevel()
}

// passes evaluates n completely for one row.
func passes(n QueryNode, tbl *Table, row int, registry *Registry, ticks tickWindow) bool {
	if !n.Evaluate(tbl, registry) {
		return false
	}
	if isRowLevel(n) {
		return n.(rowNode).matchRow(tbl, row, registry, ticks)
	}
	return true
}

// registerComponents makes every component named by n known to registry so ids stay stable for
// the lifetime of a query.
func registerComponents(n QueryNode, registry *Registry) {
	switch node := n.(type) {
	case *compositeNode:
		for _, c := range node.components {
			registry.Register(c)
		}
		for _, child := range node.children {
			registerComponents(child, registry)
		}
	case *leafNode:
		for _, c := range node.components {
			registry.Register(c)
		}
	case *tickNode:
		registry.Register(node.component)
	case *filter:
		if node.root != nil {
			registerComponents(node.root, registry)
		}
	}
}

// readsOf returns the components whose ticks a node reads.
func readsOf(n QueryNode) []Component {
	switch node := n.(type) {
	case *compositeNode:
		var out []Component
		for _, child := range node.children {
			out = append(out, readsOf(child)...)
		}
		return out
	case *tickNode:
		return []Component{node.component}
	case *filter:
		if node.root != nil {
			return readsOf(node.root)
		}
	}
	return nil
}

func (q *filter) And(items ...interface{}) QueryNode {
	components, children := q.processItems(items...)
	node := newCompositeNode(OpAnd, components)
	node.children = children
	if q.root == nil {
		q.root = node
	}
	return node
}

func (q *filter) Or(items ...interface{}) QueryNode {
	components, children := q.processItems(items...)
	node := newCompositeNode(OpOr, components)
	node.children = children
	if q.root == nil {
		q.root = node
	}
	return node
}

func (q *filter) Not(items ...interface{}) QueryNode {
	components, children := q.processItems(items...)
	node := newCompositeNode(OpNot, components)
	node.children = children
	if q.root == nil {
		q.root = node
	}
	return node
}

func (q *filter) processItems(items ...interface{}) ([]Component, []QueryNode) {
	components := make([]Component, 0)
	children := make([]QueryNode, 0)

	for _, item := range items {
		switch v := item.(type) {
		case Component:
			components = append(components, v)
		case []Component:
			components = append(components, v...)
		case QueryNode:
			children = append(children, v)
		}
	}

	return components, children
}

func (q *filter) Evaluate(tbl *Table, registry *Registry) bool {
	if q.root == nil {
		return false
	}
	return q.root.Evaluate(tbl, registry)
}

func (q *filter) rowLevel() bool {
	return q.root != nil && isRowLevel(q.root)
}

func (q *filter) matchRow(tbl *Table, row int, registry *Registry, ticks tickWindow) bool {
	return q.root.(rowNode).matchRow(tbl, row, registry, ticks)
}
