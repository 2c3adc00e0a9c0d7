// Package weakorder computes a deterministic weak order (total pre-order) over the
// nodes of a directed graph. Nodes that lie on a common cycle are tied.
// This package has no dependencies on sim/; it is a pure graph algorithm.
package weakorder

import (
	"container/heap"
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrInvalidIndex is returned when a node index is out of range.
	ErrInvalidIndex = errors.New("node index out of range")
	// ErrNotComputed is returned by queries made before ComputeOrder, or after the
	// graph was mutated without recomputing.
	ErrNotComputed = errors.New("weak order not computed")
)

// Node is the ordering metadata for one vertex.
type Node struct {
	index int
	links []int

	// Tarjan bookkeeping, only meaningful while ComputeOrder runs.
	visit   int // discovery index, -1 when unvisited
	lowlink int
	onStack bool
	scc     int

	rank int
}

// Index returns the stable index of the node.
func (n *Node) Index() int { return n.index }

// Rank returns the rank assigned by the last ComputeOrder.
func (n *Node) Rank() int { return n.rank }

// Links returns the indices this node links to, in insertion order.
func (n *Node) Links() []int {
	out := make([]int, len(n.links))
	copy(out, n.links)
	return out
}

// Graph owns the nodes of one scheduling domain.
// An edge from → to means "from must be scheduled no later than to".
type Graph struct {
	nodes    []*Node
	groups   [][]int
	computed bool
}

// New creates a graph preallocated with n nodes, indexed 0..n-1.
func New(n int) *Graph {
	g := &Graph{nodes: make([]*Node, 0, n)}
	for i := 0; i < n; i++ {
		g.AddNode()
	}
	return g
}

// AddNode allocates a new node and returns its index.
func (g *Graph) AddNode() int {
	idx := len(g.nodes)
	g.nodes = append(g.nodes, &Node{index: idx, visit: -1, scc: -1})
	g.computed = false
	return idx
}

// Size returns the number of nodes.
func (g *Graph) Size() int { return len(g.nodes) }

// Node returns the node at index i.
func (g *Graph) Node(i int) (*Node, error) {
	if err := g.check(i); err != nil {
		return nil, err
	}
	return g.nodes[i], nil
}

// Link records a directed edge from → to. Self-loops are accepted and have no
// effect on the order.
func (g *Graph) Link(from, to int) error {
	if err := g.check(from); err != nil {
		return err
	}
	if err := g.check(to); err != nil {
		return err
	}
	g.nodes[from].links = append(g.nodes[from].links, to)
	g.computed = false
	return nil
}

func (g *Graph) check(i int) error {
	if i < 0 || i >= len(g.nodes) {
		return fmt.Errorf("index %d, graph size %d: %w", i, len(g.nodes), ErrInvalidIndex)
	}
	return nil
}

// ComputeOrder assigns ranks. Strongly connected components are found with
// Tarjan's algorithm, then the condensation is sorted topologically. Among
// components that become ready together, the one holding the lowest node index
// goes first, so the result depends only on the edge set and node indices.
//
// ComputeOrder always starts from scratch and may be re-run after further links.
func (g *Graph) ComputeOrder() {
	sccs := g.stronglyConnected()
	g.groups = g.sortComponents(sccs)
	for rank, members := range g.groups {
		for _, i := range members {
			g.nodes[i].rank = rank
		}
	}
	g.computed = true
}

// Rank returns the rank of node i. Lower ranks are scheduled earlier.
func (g *Graph) Rank(i int) (int, error) {
	if err := g.check(i); err != nil {
		return 0, err
	}
	if !g.computed {
		return 0, ErrNotComputed
	}
	return g.nodes[i].rank, nil
}

// Dominates reports whether a reaches b through directed edges. Every node
// dominates itself; nodes in the same component dominate each other.
func (g *Graph) Dominates(a, b int) (bool, error) {
	if err := g.check(a); err != nil {
		return false, err
	}
	if err := g.check(b); err != nil {
		return false, err
	}
	if !g.computed {
		return false, ErrNotComputed
	}
	na, nb := g.nodes[a], g.nodes[b]
	if na.scc == nb.scc {
		return true, nil
	}
	if na.rank > nb.rank {
		return false, nil
	}

	seen := make([]bool, len(g.nodes))
	seen[a] = true
	queue := []int{a}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.nodes[cur].links {
			if next == b {
				return true, nil
			}
			// Nothing ranked after b can lead back to b.
			if seen[next] || g.nodes[next].rank > nb.rank {
				continue
			}
			seen[next] = true
			queue = append(queue, next)
		}
	}
	return false, nil
}

// Groups returns the members of each rank, ranks ascending, members ascending.
// Returns nil if the order has not been computed.
func (g *Graph) Groups() [][]int {
	if !g.computed {
		return nil
	}
	out := make([][]int, len(g.groups))
	for i, members := range g.groups {
		out[i] = append([]int(nil), members...)
	}
	return out
}

// Order returns all node indices sorted by rank, ties broken by index.
func (g *Graph) Order() []int {
	if !g.computed {
		return nil
	}
	out := make([]int, 0, len(g.nodes))
	for _, members := range g.groups {
		out = append(out, members...)
	}
	return out
}

type tarjan struct {
	g       *Graph
	counter int
	stack   []int
	sccs    [][]int
}

func (g *Graph) stronglyConnected() [][]int {
	for _, n := range g.nodes {
		n.visit = -1
		n.lowlink = 0
		n.onStack = false
		n.scc = -1
	}
	t := &tarjan{g: g}
	for i, n := range g.nodes {
		if n.visit < 0 {
			t.strongConnect(i)
		}
	}
	return t.sccs
}

func (t *tarjan) strongConnect(i int) {
	n := t.g.nodes[i]
	n.visit = t.counter
	n.lowlink = t.counter
	t.counter++
	t.stack = append(t.stack, i)
	n.onStack = true

	for _, j := range n.links {
		m := t.g.nodes[j]
		if m.visit < 0 {
			t.strongConnect(j)
			n.lowlink = min(n.lowlink, m.lowlink)
		} else if m.onStack {
			n.lowlink = min(n.lowlink, m.visit)
		}
	}

	if n.lowlink != n.visit {
		return
	}
	id := len(t.sccs)
	var members []int
	for {
		top := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		t.g.nodes[top].onStack = false
		t.g.nodes[top].scc = id
		members = append(members, top)
		if top == i {
			break
		}
	}
	sort.Ints(members)
	t.sccs = append(t.sccs, members)
}

// sortComponents runs Kahn's algorithm over the condensation graph.
func (g *Graph) sortComponents(sccs [][]int) [][]int {
	indegree := make([]int, len(sccs))
	succ := make([][]int, len(sccs))
	seen := make(map[[2]int]bool)
	for _, n := range g.nodes {
		for _, j := range n.links {
			edge := [2]int{n.scc, g.nodes[j].scc}
			if edge[0] == edge[1] || seen[edge] {
				continue
			}
			seen[edge] = true
			succ[edge[0]] = append(succ[edge[0]], edge[1])
			indegree[edge[1]]++
		}
	}

	ready := &componentQueue{sccs: sccs}
	for c := range sccs {
		if indegree[c] == 0 {
			heap.Push(ready, c)
		}
	}
	groups := make([][]int, 0, len(sccs))
	for ready.Len() > 0 {
		c := heap.Pop(ready).(int)
		groups = append(groups, sccs[c])
		for _, d := range succ[c] {
			indegree[d]--
			if indegree[d] == 0 {
				heap.Push(ready, d)
			}
		}
	}
	return groups
}

// componentQueue implements heap.Interface over component ids, ordered by the
// smallest node index in each component.
type componentQueue struct {
	sccs  [][]int
	items []int
}

func (q *componentQueue) Len() int { return len(q.items) }
func (q *componentQueue) Less(i, j int) bool {
	return q.sccs[q.items[i]][0] < q.sccs[q.items[j]][0]
}
func (q *componentQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *componentQueue) Push(x any) {
	q.items = append(q.items, x.(int))
}

func (q *componentQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	q.items = old[:n-1]
	return item
}
