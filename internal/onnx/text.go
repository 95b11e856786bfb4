package onnx

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrNoGraph is returned when a text document carries no graph section.
var ErrNoGraph = errors.New("model has no graph")

// textModel is the YAML form of a ModelProto.
type textModel struct {
	IRVersion       int64             `yaml:"ir_version,omitempty"`
	Opset           int64             `yaml:"opset,omitempty"`
	ProducerName    string            `yaml:"producer_name,omitempty"`
	ProducerVersion string            `yaml:"producer_version,omitempty"`
	Domain          string            `yaml:"domain,omitempty"`
	ModelVersion    int64             `yaml:"model_version,omitempty"`
	DocString       string            `yaml:"doc,omitempty"`
	Metadata        map[string]string `yaml:"metadata,omitempty"`
	Graph           *textGraph        `yaml:"graph"`
}

type textGraph struct {
	Name         string       `yaml:"name,omitempty"`
	Inputs       []textValue  `yaml:"inputs,omitempty"`
	Outputs      []textValue  `yaml:"outputs,omitempty"`
	Initializers []textTensor `yaml:"initializers,omitempty"`
	Nodes        []textNode   `yaml:"nodes,omitempty"`
}

type textValue struct {
	Name  string  `yaml:"name"`
	DType string  `yaml:"dtype,omitempty"`
	Shape []int64 `yaml:"shape,omitempty,flow"`
}

type textTensor struct {
	Name   string    `yaml:"name,omitempty"`
	DType  string    `yaml:"dtype,omitempty"`
	Dims   []int64   `yaml:"dims,omitempty,flow"`
	Floats []float32 `yaml:"floats,omitempty,flow"`
	Ints   []int64   `yaml:"ints,omitempty,flow"`
}

type textNode struct {
	Name       string                   `yaml:"name,omitempty"`
	OpType     string                   `yaml:"op_type"`
	Domain     string                   `yaml:"domain,omitempty"`
	Inputs     []string                 `yaml:"inputs,omitempty,flow"`
	Outputs    []string                 `yaml:"outputs,omitempty,flow"`
	Attributes map[string]textAttribute `yaml:"attributes,omitempty"`
}

type textAttribute struct {
	F       *float32    `yaml:"f,omitempty"`
	I       *int64      `yaml:"i,omitempty"`
	S       *string     `yaml:"s,omitempty"`
	Floats  []float32   `yaml:"floats,omitempty,flow"`
	Ints    []int64     `yaml:"ints,omitempty,flow"`
	Strings []string    `yaml:"strings,omitempty,flow"`
	Tensor  *textTensor `yaml:"tensor,omitempty"`
	Graph   *textGraph  `yaml:"graph,omitempty"`
	Graphs  []textGraph `yaml:"graphs,omitempty"`
}

// ParseText parses the YAML text encoding of a model.
//
// Example document:
//
//	ir_version: 8
//	opset: 13
//	graph:
//	  name: square
//	  inputs: [{name: x, dtype: float32, shape: [-1, 4]}]
//	  outputs: [{name: y}]
//	  nodes:
//	    - {op_type: Mul, inputs: [x, x], outputs: [y]}
func ParseText(data []byte) (*ModelProto, error) {
	var doc textModel
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse text model: %w", err)
	}
	if doc.Graph == nil {
		return nil, ErrNoGraph
	}

	m := &ModelProto{
		IRVersion:       doc.IRVersion,
		ProducerName:    doc.ProducerName,
		ProducerVersion: doc.ProducerVersion,
		Domain:          doc.Domain,
		ModelVersion:    doc.ModelVersion,
		DocString:       doc.DocString,
	}
	if doc.Opset != 0 {
		m.OpsetImport = []OperatorSetID{{Version: doc.Opset}}
	}
	keys := make([]string, 0, len(doc.Metadata))
	for k := range doc.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m.MetadataProps = append(m.MetadataProps, StringStringEntry{Key: k, Value: doc.Metadata[k]})
	}

	g, err := graphFromText(doc.Graph)
	if err != nil {
		return nil, err
	}
	m.Graph = g
	return m, nil
}

// ParseTextFile parses a YAML text model from file.
//
//nolint:gosec // G304: Path is provided by user.
func ParseTextFile(path string) (*ModelProto, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return ParseText(data)
}

// MarshalText encodes a model in the YAML text encoding.
func MarshalText(m *ModelProto) ([]byte, error) {
	if m.Graph == nil {
		return nil, ErrNoGraph
	}
	doc := textModel{
		IRVersion:       m.IRVersion,
		ProducerName:    m.ProducerName,
		ProducerVersion: m.ProducerVersion,
		Domain:          m.Domain,
		ModelVersion:    m.ModelVersion,
		DocString:       m.DocString,
		Graph:           graphToText(m.Graph),
	}
	for _, opset := range m.OpsetImport {
		if opset.Domain == "" || opset.Domain == "ai.onnx" {
			doc.Opset = opset.Version
			break
		}
	}
	if len(m.MetadataProps) > 0 {
		doc.Metadata = make(map[string]string, len(m.MetadataProps))
		for _, p := range m.MetadataProps {
			doc.Metadata[p.Key] = p.Value
		}
	}
	return yaml.Marshal(&doc)
}

func graphFromText(tg *textGraph) (*GraphProto, error) {
	g := &GraphProto{Name: tg.Name}
	for _, in := range tg.Inputs {
		vi, err := valueInfoFromText(in)
		if err != nil {
			return nil, err
		}
		g.Inputs = append(g.Inputs, vi)
	}
	for _, out := range tg.Outputs {
		vi, err := valueInfoFromText(out)
		if err != nil {
			return nil, err
		}
		g.Outputs = append(g.Outputs, vi)
	}
	for i := range tg.Initializers {
		t, err := tensorFromText(&tg.Initializers[i])
		if err != nil {
			return nil, err
		}
		g.Initializers = append(g.Initializers, *t)
	}
	for i := range tg.Nodes {
		n, err := nodeFromText(&tg.Nodes[i])
		if err != nil {
			return nil, fmt.Errorf("node %d (%s): %w", i, tg.Nodes[i].OpType, err)
		}
		g.Nodes = append(g.Nodes, n)
	}
	return g, nil
}

func valueInfoFromText(v textValue) (ValueInfoProto, error) {
	vi := ValueInfoProto{Name: v.Name}
	if v.DType == "" && v.Shape == nil {
		return vi, nil
	}
	dtype := int32(TensorProtoUndefined)
	if v.DType != "" {
		var ok bool
		if dtype, ok = DataTypeFromName(v.DType); !ok {
			return vi, fmt.Errorf("value %s: unknown dtype %q", v.Name, v.DType)
		}
	}
	tt := &TensorTypeProto{ElemType: dtype}
	if v.Shape != nil {
		tt.Shape = &TensorShapeProto{}
		for _, d := range v.Shape {
			if d < 0 {
				tt.Shape.Dims = append(tt.Shape.Dims, DimensionProto{DimParam: "?"})
			} else {
				tt.Shape.Dims = append(tt.Shape.Dims, DimensionProto{DimValue: d})
			}
		}
	}
	vi.Type = &TypeProto{TensorType: tt}
	return vi, nil
}

func tensorFromText(tt *textTensor) (*TensorProto, error) {
	t := &TensorProto{Name: tt.Name, Dims: tt.Dims}
	switch {
	case tt.DType != "":
		dtype, ok := DataTypeFromName(tt.DType)
		if !ok {
			return nil, fmt.Errorf("tensor %s: unknown dtype %q", tt.Name, tt.DType)
		}
		t.DataType = dtype
	case len(tt.Ints) > 0:
		t.DataType = TensorProtoInt64
	default:
		t.DataType = TensorProtoFloat
	}
	t.FloatData = tt.Floats
	t.Int64Data = tt.Ints
	return t, nil
}

//nolint:gocognit,cyclop // One branch per attribute kind.
func nodeFromText(tn *textNode) (NodeProto, error) {
	n := NodeProto{
		Name:    tn.Name,
		OpType:  tn.OpType,
		Domain:  tn.Domain,
		Inputs:  tn.Inputs,
		Outputs: tn.Outputs,
	}
	names := make([]string, 0, len(tn.Attributes))
	for name := range tn.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ta := tn.Attributes[name]
		a := AttributeProto{Name: name}
		switch {
		case ta.F != nil:
			a.Type, a.F = AttributeProtoFloat, *ta.F
		case ta.I != nil:
			a.Type, a.I = AttributeProtoInt, *ta.I
		case ta.S != nil:
			a.Type, a.S = AttributeProtoString, []byte(*ta.S)
		case ta.Floats != nil:
			a.Type, a.Floats = AttributeProtoFloats, ta.Floats
		case ta.Ints != nil:
			a.Type, a.Ints = AttributeProtoInts, ta.Ints
		case ta.Strings != nil:
			a.Type = AttributeProtoStrings
			for _, s := range ta.Strings {
				a.Strings = append(a.Strings, []byte(s))
			}
		case ta.Tensor != nil:
			t, err := tensorFromText(ta.Tensor)
			if err != nil {
				return n, err
			}
			a.Type, a.T = AttributeProtoTensor, t
		case ta.Graph != nil:
			g, err := graphFromText(ta.Graph)
			if err != nil {
				return n, fmt.Errorf("attribute %s: %w", name, err)
			}
			a.Type, a.G = AttributeProtoGraph, g
		case ta.Graphs != nil:
			a.Type = AttributeProtoGraphs
			for i := range ta.Graphs {
				g, err := graphFromText(&ta.Graphs[i])
				if err != nil {
					return n, fmt.Errorf("attribute %s[%d]: %w", name, i, err)
				}
				a.Graphs = append(a.Graphs, *g)
			}
		default:
			return n, fmt.Errorf("attribute %s has no value", name)
		}
		n.Attributes = append(n.Attributes, a)
	}
	return n, nil
}

func graphToText(g *GraphProto) *textGraph {
	tg := &textGraph{Name: g.Name}
	for i := range g.Inputs {
		tg.Inputs = append(tg.Inputs, valueInfoToText(&g.Inputs[i]))
	}
	for i := range g.Outputs {
		tg.Outputs = append(tg.Outputs, valueInfoToText(&g.Outputs[i]))
	}
	for i := range g.Initializers {
		tg.Initializers = append(tg.Initializers, tensorToText(&g.Initializers[i]))
	}
	for i := range g.Nodes {
		n := &g.Nodes[i]
		tn := textNode{
			Name:    n.Name,
			OpType:  n.OpType,
			Domain:  n.Domain,
			Inputs:  n.Inputs,
			Outputs: n.Outputs,
		}
		if len(n.Attributes) > 0 {
			tn.Attributes = make(map[string]textAttribute, len(n.Attributes))
		}
		for j := range n.Attributes {
			tn.Attributes[n.Attributes[j].Name] = attributeToText(&n.Attributes[j])
		}
		tg.Nodes = append(tg.Nodes, tn)
	}
	return tg
}

func valueInfoToText(vi *ValueInfoProto) textValue {
	v := textValue{Name: vi.Name}
	if vi.Type == nil || vi.Type.TensorType == nil {
		return v
	}
	v.DType = DataTypeName(vi.Type.TensorType.ElemType)
	if s := vi.Type.TensorType.Shape; s != nil {
		v.Shape = make([]int64, len(s.Dims))
		for i, d := range s.Dims {
			if d.DimParam != "" {
				v.Shape[i] = -1
			} else {
				v.Shape[i] = d.DimValue
			}
		}
	}
	return v
}

func tensorToText(t *TensorProto) textTensor {
	return textTensor{
		Name:   t.Name,
		DType:  DataTypeName(t.DataType),
		Dims:   t.Dims,
		Floats: t.FloatData,
		Ints:   t.Int64Data,
	}
}

func attributeToText(a *AttributeProto) textAttribute {
	var ta textAttribute
	switch a.Type {
	case AttributeProtoFloat:
		f := a.F
		ta.F = &f
	case AttributeProtoInt:
		i := a.I
		ta.I = &i
	case AttributeProtoString:
		s := string(a.S)
		ta.S = &s
	case AttributeProtoFloats:
		ta.Floats = a.Floats
	case AttributeProtoInts:
		ta.Ints = a.Ints
	case AttributeProtoStrings:
		for _, s := range a.Strings {
			ta.Strings = append(ta.Strings, string(s))
		}
	case AttributeProtoTensor:
		if a.T != nil {
			t := tensorToText(a.T)
			ta.Tensor = &t
		}
	case AttributeProtoGraph:
		if a.G != nil {
			ta.Graph = graphToText(a.G)
		}
	case AttributeProtoGraphs:
		for i := range a.Graphs {
			ta.Graphs = append(ta.Graphs, *graphToText(&a.Graphs[i]))
		}
	}
	return ta
}
