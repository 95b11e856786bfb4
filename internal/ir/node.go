package ir

import (
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/born-ml/graphlower/internal/source"
)

// Structural node types.
const (
	TypeParameter = "Parameter"
	TypeResult    = "Result"
	TypeConstant  = "Constant"
	TypePending   = "Pending"
)

var nextID atomic.Int64

// Node is a single operation of the target graph.
//
// A node owns its output ports. Input edges are stored on the consumer and
// mirrored in the producer port's consumer list, so both directions stay in
// sync through SetInput and Output.Replace.
type Node struct {
	ID     int64
	Type   string
	Name   string
	Attrs  map[string]any
	Bodies []*Graph // Nested graphs owned by composite nodes (If, Loop, ...)

	// Pending is set when the node stands in for an untranslated source node.
	Pending *Pending

	inputs  []Output
	outputs []*port
}

// Pending is the payload of a placeholder node.
type Pending struct {
	Decoder source.Decoder
	// Failure is the message of a failed translation attempt; empty when the
	// op type simply had no translator.
	Failure string
	// Captured names the outer-scope values read by the node's nested graphs.
	// They follow the decoder inputs in the node's input list, in this order.
	Captured []string
}

type port struct {
	elem      ElementType
	shape     Shape
	names     []string
	consumers []Input
}

// NewNode creates a node of the given type wired to inputs.
func NewNode(typ string, inputs []Output, numOutputs int) *Node {
	n := &Node{
		ID:      nextID.Add(1),
		Type:    typ,
		inputs:  make([]Output, len(inputs)),
		outputs: make([]*port, numOutputs),
	}
	for i := range n.outputs {
		n.outputs[i] = &port{}
	}
	for i, in := range inputs {
		n.inputs[i] = in
		if in.Node != nil {
			p := in.port()
			p.consumers = append(p.consumers, Input{Node: n, Index: i})
		}
	}
	return n
}

// NewPending creates a placeholder for an untranslated source node.
// The placeholder exposes one output per source output so that downstream
// consumers can reference it positionally.
func NewPending(dec source.Decoder, inputs []Output, failure string) *Node {
	n := NewNode(TypePending, inputs, len(dec.Outputs()))
	n.Name = dec.Name()
	n.Pending = &Pending{Decoder: dec, Failure: failure}
	for i, name := range dec.Outputs() {
		n.outputs[i].names = []string{name}
	}
	return n
}

// IsPending reports whether the node is a placeholder.
func (n *Node) IsPending() bool {
	return n.Pending != nil
}

// OpType returns the source op type for placeholders and the IR type otherwise.
func (n *Node) OpType() string {
	if n.Pending != nil {
		return n.Pending.Decoder.OpType()
	}
	return n.Type
}

// String implements fmt.Stringer.
func (n *Node) String() string {
	if n.Name != "" {
		return fmt.Sprintf("%s %s#%d", n.OpType(), n.Name, n.ID)
	}
	return fmt.Sprintf("%s#%d", n.OpType(), n.ID)
}

// NumInputs returns the number of input edges.
func (n *Node) NumInputs() int {
	return len(n.inputs)
}

// Input returns the value feeding input i.
func (n *Node) Input(i int) Output {
	return n.inputs[i]
}

// Inputs returns a copy of the input values.
func (n *Node) Inputs() []Output {
	return slices.Clone(n.inputs)
}

// SetInput rewires input i to a new source value.
func (n *Node) SetInput(i int, src Output) {
	old := n.inputs[i]
	if old.Node != nil {
		old.port().removeConsumer(Input{Node: n, Index: i})
	}
	n.inputs[i] = src
	if src.Node != nil {
		p := src.port()
		p.consumers = append(p.consumers, Input{Node: n, Index: i})
	}
}

// Detach disconnects every input edge of the node.
func (n *Node) Detach() {
	for i, in := range n.inputs {
		if in.Node != nil {
			in.port().removeConsumer(Input{Node: n, Index: i})
		}
		n.inputs[i] = Output{}
	}
}

// NumOutputs returns the number of output ports.
func (n *Node) NumOutputs() int {
	return len(n.outputs)
}

// Output returns output port i.
func (n *Node) Output(i int) Output {
	return Output{Node: n, Index: i}
}

// Outputs returns every output port.
func (n *Node) Outputs() []Output {
	outs := make([]Output, len(n.outputs))
	for i := range n.outputs {
		outs[i] = Output{Node: n, Index: i}
	}
	return outs
}

// HasConsumers reports whether any output port is consumed.
func (n *Node) HasConsumers() bool {
	for _, p := range n.outputs {
		if len(p.consumers) > 0 {
			return true
		}
	}
	return false
}

// Attr returns attribute key.
func (n *Node) Attr(key string) (any, bool) {
	v, ok := n.Attrs[key]
	return v, ok
}

// SetAttr sets attribute key.
func (n *Node) SetAttr(key string, value any) {
	if n.Attrs == nil {
		n.Attrs = make(map[string]any)
	}
	n.Attrs[key] = value
}

// Output identifies one output port of a node.
type Output struct {
	Node  *Node
	Index int
}

// Input identifies one input slot of a node.
type Input struct {
	Node  *Node
	Index int
}

// Source returns the value feeding this input slot.
func (in Input) Source() Output {
	return in.Node.inputs[in.Index]
}

func (o Output) port() *port {
	return o.Node.outputs[o.Index]
}

// Valid reports whether the output refers to an existing port.
func (o Output) Valid() bool {
	return o.Node != nil && o.Index >= 0 && o.Index < len(o.Node.outputs)
}

// ElementType returns the element type of the port.
func (o Output) ElementType() ElementType {
	return o.port().elem
}

// Shape returns the shape of the port.
func (o Output) Shape() Shape {
	return o.port().shape
}

// SetType sets element type and shape of the port.
func (o Output) SetType(elem ElementType, shape Shape) {
	p := o.port()
	p.elem = elem
	p.shape = shape
}

// Names returns the tensor names attached to the port.
func (o Output) Names() []string {
	return o.port().names
}

// AddName attaches a tensor name to the port.
func (o Output) AddName(name string) {
	p := o.port()
	if name == "" || slices.Contains(p.names, name) {
		return
	}
	p.names = append(p.names, name)
}

// Consumers returns a copy of the input slots fed by this port.
func (o Output) Consumers() []Input {
	return slices.Clone(o.port().consumers)
}

// Replace moves every consumer edge of o onto with.
// Consumers that belong to with's own node are left alone so that a node
// inserted after o can be spliced in without creating a cycle.
// Tensor names follow the edges.
func (o Output) Replace(with Output) {
	if o == with {
		return
	}
	p := o.port()
	kept := p.consumers[:0]
	moved := make([]Input, 0, len(p.consumers))
	for _, c := range p.consumers {
		if c.Node == with.Node {
			kept = append(kept, c)
			continue
		}
		moved = append(moved, c)
	}
	p.consumers = kept

	dst := with.port()
	for _, c := range moved {
		c.Node.inputs[c.Index] = with
		dst.consumers = append(dst.consumers, c)
	}
	for _, name := range p.names {
		with.AddName(name)
	}
}

func (p *port) removeConsumer(in Input) {
	p.consumers = slices.DeleteFunc(p.consumers, func(c Input) bool {
		return c == in
	})
}
