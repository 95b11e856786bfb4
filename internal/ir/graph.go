package ir

import (
	"slices"
)

// Graph is a target IR graph.
//
// Parameters and Results are the graph's interface. Sinks hold nodes that
// have no consumers yet must stay visible to traversal (for example
// placeholders whose outputs are never read). Nested graphs are owned by
// composite nodes through Node.Bodies; a graph never points back at its
// owner.
type Graph struct {
	Name       string
	Parameters []*Node
	Results    []*Node
	Sinks      []*Node
}

// New creates an empty graph.
func New(name string) *Graph {
	return &Graph{Name: name}
}

// AddParameter appends a graph input.
func (g *Graph) AddParameter(name string, elem ElementType, shape Shape) *Node {
	p := NewNode(TypeParameter, nil, 1)
	p.Name = name
	p.Output(0).SetType(elem, shape)
	p.Output(0).AddName(name)
	g.Parameters = append(g.Parameters, p)
	return p
}

// AddResult appends a graph output fed by src.
func (g *Graph) AddResult(src Output, name string) *Node {
	r := NewNode(TypeResult, []Output{src}, 1)
	r.Name = name
	r.Output(0).SetType(src.ElementType(), src.Shape().Clone())
	g.Results = append(g.Results, r)
	return r
}

// RemoveResult disconnects and drops a result node.
func (g *Graph) RemoveResult(r *Node) {
	r.Detach()
	g.Results = slices.DeleteFunc(g.Results, func(n *Node) bool { return n == r })
}

// AddSink keeps n reachable even though nothing consumes it.
func (g *Graph) AddSink(n *Node) {
	if slices.Contains(g.Sinks, n) {
		return
	}
	g.Sinks = append(g.Sinks, n)
}

// RemoveSink drops n from the sink list.
func (g *Graph) RemoveSink(n *Node) {
	g.Sinks = slices.DeleteFunc(g.Sinks, func(s *Node) bool { return s == n })
}

// RefreshResults copies the element type and shape of every result's
// producer onto the result port.
func (g *Graph) RefreshResults() {
	for _, r := range g.Results {
		src := r.Input(0)
		if !src.Valid() {
			continue
		}
		r.Output(0).SetType(src.ElementType(), src.Shape().Clone())
	}
}

// OrderedOps returns every node reachable from the graph's parameters,
// results and sinks, with producers ordered before their consumers.
// Nodes of nested bodies are not included.
func (g *Graph) OrderedOps() []*Node {
	visited := make(map[*Node]bool)
	order := make([]*Node, 0, len(g.Parameters)+len(g.Results))

	var visit func(n *Node)
	visit = func(n *Node) {
		if visited[n] {
			return
		}
		visited[n] = true
		for _, in := range n.inputs {
			if in.Node != nil {
				visit(in.Node)
			}
		}
		order = append(order, n)
	}

	for _, p := range g.Parameters {
		visit(p)
	}
	for _, r := range g.Results {
		visit(r)
	}
	for _, s := range g.Sinks {
		visit(s)
	}
	return order
}

// Walk calls fn for every node of g and of every nested body, depth first,
// in evaluation order. Walking stops early when fn returns false.
func (g *Graph) Walk(fn func(n *Node) bool) bool {
	for _, n := range g.OrderedOps() {
		if !fn(n) {
			return false
		}
		for _, body := range n.Bodies {
			if !body.Walk(fn) {
				return false
			}
		}
	}
	return true
}

// CountType returns the number of nodes of the given IR type, nested bodies included.
func (g *Graph) CountType(typ string) int {
	count := 0
	g.Walk(func(n *Node) bool {
		if n.Type == typ {
			count++
		}
		return true
	})
	return count
}
