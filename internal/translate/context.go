package translate

import (
	"fmt"

	"github.com/born-ml/graphlower/internal/ir"
	"github.com/born-ml/graphlower/internal/onnx"
	"github.com/born-ml/graphlower/internal/source"
)

// NodeContext is what a translator sees of the node being translated: the
// source decoder, the already translated input values and the graph under
// construction.
type NodeContext struct {
	decoder  source.Decoder
	inputs   []ir.Output
	captures map[string]ir.Output
	graph    *ir.Graph
	session  *Session
}

// NewNodeContext builds a context outside of a session, for calling a
// translator directly.
func NewNodeContext(dec source.Decoder, inputs []ir.Output, g *ir.Graph, reg *Registry) *NodeContext {
	return &NodeContext{
		decoder: dec,
		inputs:  inputs,
		graph:   g,
		session: newBareSession(reg),
	}
}

// OpType returns the source operation type.
func (c *NodeContext) OpType() string { return c.decoder.OpType() }

// Name returns the source node name.
func (c *NodeContext) Name() string { return c.decoder.Name() }

// Decoder returns the source node.
func (c *NodeContext) Decoder() source.Decoder { return c.decoder }

// Graph returns the graph under construction; nil when the translator is
// called outside a graph.
func (c *NodeContext) Graph() *ir.Graph { return c.graph }

// NumInputs returns the number of declared inputs, omitted ones included.
func (c *NodeContext) NumInputs() int { return len(c.inputs) }

// Input returns input i. Omitted optional inputs and out of range indices
// yield an invalid Output.
func (c *NodeContext) Input(i int) ir.Output {
	if i < 0 || i >= len(c.inputs) {
		return ir.Output{}
	}
	return c.inputs[i]
}

// HasInput reports whether input i is present.
func (c *NodeContext) HasInput(i int) bool {
	return c.Input(i).Valid()
}

// Inputs returns all declared inputs.
func (c *NodeContext) Inputs() []ir.Output {
	return c.inputs
}

// RequireInputs fails unless at least n inputs are present.
func (c *NodeContext) RequireInputs(n int) error {
	for i := 0; i < n; i++ {
		if !c.HasInput(i) {
			return c.Errorf("%s requires %d inputs, got %d", c.OpType(), n, len(c.inputs))
		}
	}
	return nil
}

// Errorf returns an operation conversion error for this node.
func (c *NodeContext) Errorf(format string, args ...any) error {
	return newError(ErrOperationConversion, c.OpType(), format, args...)
}

// NewNode creates a target node of type typ named after the source node.
func (c *NodeContext) NewNode(typ string, inputs []ir.Output, numOutputs int) *ir.Node {
	n := ir.NewNode(typ, inputs, numOutputs)
	n.Name = c.Name()
	return n
}

// AddParameter adds an input to the graph under construction.
func (c *NodeContext) AddParameter(name string, elem ir.ElementType, shape ir.Shape) (*ir.Node, error) {
	if c.graph == nil {
		return nil, c.Errorf("cannot add parameter %q outside a graph", name)
	}
	return c.graph.AddParameter(name, elem, shape), nil
}

// HasAttr reports whether the attribute is set.
func (c *NodeContext) HasAttr(name string) bool {
	_, ok := c.decoder.Attr(name)
	return ok
}

// AttrInt returns an integer attribute or defaultVal.
func (c *NodeContext) AttrInt(name string, defaultVal int64) int64 {
	if a, ok := c.decoder.Attr(name); ok {
		return a.I
	}
	return defaultVal
}

// AttrInts returns an integer array attribute.
func (c *NodeContext) AttrInts(name string) []int64 {
	if a, ok := c.decoder.Attr(name); ok {
		return a.Ints
	}
	return nil
}

// AttrFloat returns a float attribute or defaultVal.
func (c *NodeContext) AttrFloat(name string, defaultVal float32) float32 {
	if a, ok := c.decoder.Attr(name); ok {
		return a.F
	}
	return defaultVal
}

// AttrFloats returns a float array attribute.
func (c *NodeContext) AttrFloats(name string) []float32 {
	if a, ok := c.decoder.Attr(name); ok {
		return a.Floats
	}
	return nil
}

// AttrString returns a string attribute or defaultVal.
func (c *NodeContext) AttrString(name, defaultVal string) string {
	if a, ok := c.decoder.Attr(name); ok {
		return string(a.S)
	}
	return defaultVal
}

// AttrTensor returns a tensor attribute.
func (c *NodeContext) AttrTensor(name string) (*onnx.TensorProto, bool) {
	a, ok := c.decoder.Attr(name)
	if !ok || a.T == nil {
		return nil, false
	}
	return a.T, true
}

// Body is a translated nested graph.
//
// Values of enclosing graphs read by the body become extra parameters,
// appended after the body's own inputs. Captured holds the outer values
// feeding them, in the same order.
type Body struct {
	Graph    *ir.Graph
	Captured []ir.Output
}

// TranslateBody translates the nested graph held by attribute attr in a
// scope of its own, using the same registry as the current translation.
func (c *NodeContext) TranslateBody(attr string) (*Body, error) {
	sub, ok := c.decoder.Subgraph(attr)
	if !ok {
		return nil, c.Errorf("%s: attribute %q does not hold a graph", c.OpType(), attr)
	}
	g, captured, err := c.session.translateGraph(sub, c.captures)
	if err != nil {
		return nil, fmt.Errorf("%s body %q: %w", c.OpType(), attr, err)
	}
	return &Body{Graph: g, Captured: captured}, nil
}
