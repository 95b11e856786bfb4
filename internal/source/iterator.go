package source

import (
	"slices"

	"github.com/born-ml/graphlower/internal/onnx"
)

// GraphIterator enumerates the operations of one (possibly nested) graph.
type GraphIterator interface {
	// Name returns the graph name.
	Name() string
	// Nodes returns every operation, producers before consumers.
	// Graph inputs and initializers come first as synthetic Input and
	// Constant nodes.
	Nodes() []Decoder
	// Inputs returns the names of the graph inputs (initializers excluded).
	Inputs() []string
	// Outputs returns the names of the graph outputs.
	Outputs() []string
}

// graph is the GraphIterator over an ONNX GraphProto.
type graph struct {
	name    string
	nodes   []Decoder
	inputs  []string
	outputs []string
}

func (g *graph) Name() string      { return g.name }
func (g *graph) Nodes() []Decoder  { return g.nodes }
func (g *graph) Inputs() []string  { return g.inputs }
func (g *graph) Outputs() []string { return g.outputs }

// FromGraph builds an iterator over an ONNX graph.
func FromGraph(gp *onnx.GraphProto) GraphIterator {
	g := &graph{name: gp.Name}

	initNames := make(map[string]bool, len(gp.Initializers))
	for i := range gp.Initializers {
		initNames[gp.Initializers[i].Name] = true
	}

	for i := range gp.Inputs {
		if initNames[gp.Inputs[i].Name] {
			continue
		}
		g.inputs = append(g.inputs, gp.Inputs[i].Name)
		g.nodes = append(g.nodes, inputDecoder(&gp.Inputs[i]))
	}
	for i := range gp.Initializers {
		g.nodes = append(g.nodes, constantDecoder(&gp.Initializers[i]))
	}
	for _, idx := range topologicalOrder(gp.Nodes) {
		g.nodes = append(g.nodes, &nodeDecoder{node: &gp.Nodes[idx]})
	}
	for i := range gp.Outputs {
		g.outputs = append(g.outputs, gp.Outputs[i].Name)
	}
	return g
}

// topologicalOrder returns node indices so that dependencies come before
// dependents. Names that no node in this graph produces (graph inputs,
// initializers, outer-scope values) impose no ordering.
func topologicalOrder(nodes []onnx.NodeProto) []int {
	outputToNode := make(map[string]int)
	for i := range nodes {
		for _, output := range nodes[i].Outputs {
			outputToNode[output] = i
		}
	}

	visited := make([]bool, len(nodes))
	result := make([]int, 0, len(nodes))

	var visit func(i int)
	visit = func(i int) {
		if visited[i] {
			return
		}
		visited[i] = true

		for _, input := range nodes[i].Inputs {
			if depIdx, ok := outputToNode[input]; ok {
				visit(depIdx)
			}
		}
		// Nested graphs may read values produced in this graph.
		for _, name := range capturedNames(&nodes[i]) {
			if depIdx, ok := outputToNode[name]; ok {
				visit(depIdx)
			}
		}

		result = append(result, i)
	}

	for i := range nodes {
		visit(i)
	}
	return result
}

// capturedNames lists every input name referenced inside the node's nested graphs.
func capturedNames(node *onnx.NodeProto) []string {
	var names []string
	var walk func(g *onnx.GraphProto)
	walk = func(g *onnx.GraphProto) {
		for i := range g.Nodes {
			names = append(names, g.Nodes[i].Inputs...)
			for j := range g.Nodes[i].Attributes {
				if sub := g.Nodes[i].Attributes[j].G; sub != nil {
					walk(sub)
				}
			}
		}
	}
	for i := range node.Attributes {
		if g := node.Attributes[i].G; g != nil {
			walk(g)
		}
	}
	return names
}

// Restrict returns an iterator whose outputs (and optionally inputs) are
// replaced by the given names. Empty slices keep the original list.
func Restrict(it GraphIterator, inputs, outputs []string) GraphIterator {
	r := &graph{
		name:    it.Name(),
		nodes:   it.Nodes(),
		inputs:  it.Inputs(),
		outputs: it.Outputs(),
	}
	if len(inputs) > 0 {
		r.inputs = inputs
	}
	if len(outputs) > 0 {
		r.outputs = outputs
	}
	return r
}

// NewGraph assembles an iterator from decoders that are already in
// topological order. Embedding hosts use it to hand a pre-parsed graph to
// the frontend without going through a file.
func NewGraph(name string, nodes []Decoder, inputs, outputs []string) GraphIterator {
	return &graph{name: name, nodes: nodes, inputs: inputs, outputs: outputs}
}

// CapturedNames returns, sorted and de-duplicated, every tensor name read by
// the nested graphs of d (at any depth). Names produced inside those graphs
// are included; callers resolve them against the enclosing scope and ignore
// the ones it does not know.
func CapturedNames(d Decoder) []string {
	seen := make(map[string]bool)
	var walk func(g GraphIterator)
	walk = func(g GraphIterator) {
		for _, n := range g.Nodes() {
			for _, in := range n.Inputs() {
				if in != "" {
					seen[in] = true
				}
			}
			for _, attr := range n.AttrNames() {
				if sub, ok := n.Subgraph(attr); ok {
					walk(sub)
				}
			}
		}
		for _, out := range g.Outputs() {
			seen[out] = true
		}
	}
	for _, attr := range d.AttrNames() {
		if sub, ok := d.Subgraph(attr); ok {
			walk(sub)
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
