package source

import (
	"github.com/born-ml/graphlower/internal/onnx"
)

// Synthetic op types produced for graph-level values.
const (
	// OpInput stands for a graph input that is not an initializer.
	// Attributes: "dtype" (INT, ONNX element type), "shape" (INTS, -1 = dynamic).
	OpInput = "Input"
	// OpConstant stands for an initializer. Attribute: "value" (TENSOR).
	OpConstant = "Constant"
)

// Decoder is a read-only view over one source operation.
type Decoder interface {
	// OpType returns the operation type (e.g., "MatMul", "If").
	OpType() string
	// Name returns the node name; may be empty.
	Name() string
	// Domain returns the operator domain (empty for the default domain).
	Domain() string
	// Inputs returns the producer tensor names. An empty name is an omitted
	// optional input.
	Inputs() []string
	// Outputs returns the names of the tensors this node produces.
	Outputs() []string
	// Attr returns the attribute with the given name.
	Attr(name string) (*onnx.AttributeProto, bool)
	// AttrNames lists attribute names in declaration order.
	AttrNames() []string
	// Subgraph returns the nested graph stored in a GRAPH attribute.
	Subgraph(name string) (GraphIterator, bool)
}

// nodeDecoder adapts an ONNX NodeProto.
type nodeDecoder struct {
	node *onnx.NodeProto
}

func (d *nodeDecoder) OpType() string    { return d.node.OpType }
func (d *nodeDecoder) Name() string      { return d.node.Name }
func (d *nodeDecoder) Domain() string    { return d.node.Domain }
func (d *nodeDecoder) Inputs() []string  { return d.node.Inputs }
func (d *nodeDecoder) Outputs() []string { return d.node.Outputs }

func (d *nodeDecoder) Attr(name string) (*onnx.AttributeProto, bool) {
	return d.node.Attribute(name)
}

func (d *nodeDecoder) AttrNames() []string {
	names := make([]string, len(d.node.Attributes))
	for i := range d.node.Attributes {
		names[i] = d.node.Attributes[i].Name
	}
	return names
}

func (d *nodeDecoder) Subgraph(name string) (GraphIterator, bool) {
	attr, ok := d.node.Attribute(name)
	if !ok || attr.G == nil {
		return nil, false
	}
	return FromGraph(attr.G), true
}

// syntheticDecoder describes graph inputs and initializers as nodes.
type syntheticDecoder struct {
	opType string
	name   string
	attrs  []onnx.AttributeProto
}

func (d *syntheticDecoder) OpType() string    { return d.opType }
func (d *syntheticDecoder) Name() string      { return d.name }
func (d *syntheticDecoder) Domain() string    { return "" }
func (d *syntheticDecoder) Inputs() []string  { return nil }
func (d *syntheticDecoder) Outputs() []string { return []string{d.name} }

func (d *syntheticDecoder) Attr(name string) (*onnx.AttributeProto, bool) {
	for i := range d.attrs {
		if d.attrs[i].Name == name {
			return &d.attrs[i], true
		}
	}
	return nil, false
}

func (d *syntheticDecoder) AttrNames() []string {
	names := make([]string, len(d.attrs))
	for i := range d.attrs {
		names[i] = d.attrs[i].Name
	}
	return names
}

func (d *syntheticDecoder) Subgraph(string) (GraphIterator, bool) {
	return nil, false
}

func inputDecoder(vi *onnx.ValueInfoProto) Decoder {
	d := &syntheticDecoder{opType: OpInput, name: vi.Name}
	if vi.Type == nil || vi.Type.TensorType == nil {
		return d
	}
	tt := vi.Type.TensorType
	d.attrs = append(d.attrs, onnx.AttributeProto{
		Name: "dtype",
		Type: onnx.AttributeProtoInt,
		I:    int64(tt.ElemType),
	})
	if tt.Shape != nil {
		shape := make([]int64, len(tt.Shape.Dims))
		for i, dim := range tt.Shape.Dims {
			if dim.DimParam != "" || dim.DimValue <= 0 {
				shape[i] = -1
			} else {
				shape[i] = dim.DimValue
			}
		}
		d.attrs = append(d.attrs, onnx.AttributeProto{
			Name: "shape",
			Type: onnx.AttributeProtoInts,
			Ints: shape,
		})
	}
	return d
}

func constantDecoder(t *onnx.TensorProto) Decoder {
	return &syntheticDecoder{
		opType: OpConstant,
		name:   t.Name,
		attrs: []onnx.AttributeProto{{
			Name: "value",
			Type: onnx.AttributeProtoTensor,
			T:    t,
		}},
	}
}

// NewDecoder wraps a bare NodeProto, mostly for tests and embedding hosts.
func NewDecoder(node *onnx.NodeProto) Decoder {
	return &nodeDecoder{node: node}
}
