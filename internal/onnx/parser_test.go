package onnx

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

// wire builds protobuf messages field by field.
type wire []byte

func (w wire) tag(field, wireType int) wire {
	return binary.AppendUvarint(w, uint64(field<<3|wireType))
}

func (w wire) varint(field int, v int64) wire {
	return binary.AppendUvarint(w.tag(field, wireVarint), uint64(v))
}

func (w wire) fixed32(field int, v float32) wire {
	return binary.LittleEndian.AppendUint32(w.tag(field, wire32Bit), math.Float32bits(v))
}

func (w wire) bytes(field int, data []byte) wire {
	w = binary.AppendUvarint(w.tag(field, wireBytes), uint64(len(data)))
	return append(w, data...)
}

func (w wire) str(field int, s string) wire {
	return w.bytes(field, []byte(s))
}

// packedVarints encodes the payload of a packed repeated varint field.
func packedVarints(vs ...int64) []byte {
	var out []byte
	for _, v := range vs {
		out = binary.AppendUvarint(out, uint64(v))
	}
	return out
}

// valueInfoBytes encodes a float32 ValueInfoProto; non-positive dims are
// symbolic.
func valueInfoBytes(name string, dims ...int64) []byte {
	var shape wire
	for _, d := range dims {
		var dim wire
		if d > 0 {
			dim = dim.varint(1, d)
		} else {
			dim = dim.str(2, "batch")
		}
		shape = shape.bytes(1, dim)
	}
	tensorType := wire{}.varint(1, TensorProtoFloat).bytes(2, shape)
	typ := wire{}.bytes(1, tensorType)
	return wire{}.str(1, name).bytes(2, typ)
}

func nodeBytes(op string, inputs, outputs []string, attrs ...[]byte) []byte {
	var n wire
	for _, in := range inputs {
		n = n.str(1, in)
	}
	for _, out := range outputs {
		n = n.str(2, out)
	}
	n = n.str(4, op)
	for _, a := range attrs {
		n = n.bytes(5, a)
	}
	return n
}

func modelBytes(graph []byte) []byte {
	opset := wire{}.str(1, "").varint(2, 13)
	return wire{}.varint(1, 7).bytes(8, opset).bytes(7, graph)
}

// addGraph is Z = X + Y.
func addGraph() []byte {
	return wire{}.
		str(2, "simple_add").
		bytes(1, nodeBytes("Add", []string{"X", "Y"}, []string{"Z"})).
		bytes(11, valueInfoBytes("X", -1, 784)).
		bytes(11, valueInfoBytes("Y", -1, 784)).
		bytes(12, valueInfoBytes("Z", -1, 784))
}

// TestParseSimpleAdd tests parsing a simple Add operation.
func TestParseSimpleAdd(t *testing.T) {
	model, err := Parse(modelBytes(addGraph()))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if model.IRVersion != 7 {
		t.Errorf("Expected IR version 7, got %d", model.IRVersion)
	}
	if model.Graph == nil {
		t.Fatal("Graph is nil")
	}
	if model.Graph.Name != "simple_add" {
		t.Errorf("Expected graph name 'simple_add', got '%s'", model.Graph.Name)
	}
	if len(model.Graph.Nodes) != 1 {
		t.Fatalf("Expected 1 node, got %d", len(model.Graph.Nodes))
	}

	node := model.Graph.Nodes[0]
	if node.OpType != "Add" {
		t.Errorf("Expected OpType 'Add', got '%s'", node.OpType)
	}
	if !slices.Equal(node.Inputs, []string{"X", "Y"}) {
		t.Errorf("Expected inputs [X Y], got %v", node.Inputs)
	}
	if !slices.Equal(node.Outputs, []string{"Z"}) {
		t.Errorf("Expected outputs [Z], got %v", node.Outputs)
	}
}

// TestParseInputOutput tests parsing graph interface types.
func TestParseInputOutput(t *testing.T) {
	model, err := Parse(modelBytes(addGraph()))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(model.Graph.Inputs) != 2 {
		t.Errorf("Expected 2 inputs, got %d", len(model.Graph.Inputs))
	}
	if len(model.Graph.Outputs) != 1 {
		t.Errorf("Expected 1 output, got %d", len(model.Graph.Outputs))
	}

	input := model.Graph.Inputs[0]
	if input.Name != "X" {
		t.Errorf("Expected input name 'X', got '%s'", input.Name)
	}
	if input.Type == nil || input.Type.TensorType == nil {
		t.Fatal("Input type info is nil")
	}
	tt := input.Type.TensorType
	if tt.ElemType != TensorProtoFloat {
		t.Errorf("Expected float32 type, got %d", tt.ElemType)
	}
	if tt.Shape == nil || len(tt.Shape.Dims) != 2 {
		t.Fatalf("Expected rank-2 shape, got %+v", tt.Shape)
	}
	if tt.Shape.Dims[0].DimParam != "batch" {
		t.Errorf("Expected symbolic batch dim, got %+v", tt.Shape.Dims[0])
	}
	if tt.Shape.Dims[1].DimValue != 784 {
		t.Errorf("Expected dim 784, got %d", tt.Shape.Dims[1].DimValue)
	}
}

// TestParseOpsetVersion tests parsing opset version.
func TestParseOpsetVersion(t *testing.T) {
	model, err := Parse(modelBytes(addGraph()))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(model.OpsetImport) != 1 {
		t.Fatalf("Expected 1 opset import, got %d", len(model.OpsetImport))
	}
	if opset := model.OpsetImport[0]; opset.Version != 13 || opset.Domain != "" {
		t.Errorf("Expected default opset 13, got %+v", opset)
	}
}

// TestParseWithInitializer tests parsing a model with weight tensors.
func TestParseWithInitializer(t *testing.T) {
	weight := wire{}.
		varint(1, 4).varint(1, 4). // unpacked dims
		varint(2, TensorProtoFloat).
		str(8, "W").
		bytes(9, make([]byte, 64))
	graph := wire{}.
		str(2, "matmul_graph").
		bytes(1, nodeBytes("MatMul", []string{"X", "W"}, []string{"Y"})).
		bytes(5, weight).
		bytes(11, valueInfoBytes("X", -1, 4)).
		bytes(12, valueInfoBytes("Y", -1, 4))

	model, err := Parse(modelBytes(graph))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(model.Graph.Initializers) != 1 {
		t.Fatalf("Expected 1 initializer, got %d", len(model.Graph.Initializers))
	}

	init := model.Graph.Initializers[0]
	if init.Name != "W" {
		t.Errorf("Expected initializer name 'W', got '%s'", init.Name)
	}
	if init.DataType != TensorProtoFloat {
		t.Errorf("Expected data type float32, got %d", init.DataType)
	}
	if !slices.Equal(init.Dims, []int64{4, 4}) {
		t.Errorf("Expected dims [4 4], got %v", init.Dims)
	}
	if len(init.RawData) != 64 {
		t.Errorf("Expected raw data size 64, got %d", len(init.RawData))
	}
}

// TestParseTensorData tests the packed typed data fields of TensorProto.
func TestParseTensorData(t *testing.T) {
	floats := binary.LittleEndian.AppendUint32(nil, math.Float32bits(1.5))
	floats = binary.LittleEndian.AppendUint32(floats, math.Float32bits(-2))
	tensor := wire{}.
		bytes(1, packedVarints(2, 1)).
		varint(2, TensorProtoFloat).
		bytes(4, floats).
		bytes(5, packedVarints(-3, 7)).
		bytes(7, packedVarints(-1, 1<<40)).
		str(12, "weights")
	graph := wire{}.bytes(5, tensor)

	model, err := Parse(wire{}.bytes(7, graph))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	got := model.Graph.Initializers[0]
	if !slices.Equal(got.Dims, []int64{2, 1}) {
		t.Errorf("Expected dims [2 1], got %v", got.Dims)
	}
	if !slices.Equal(got.FloatData, []float32{1.5, -2}) {
		t.Errorf("Expected floats [1.5 -2], got %v", got.FloatData)
	}
	if !slices.Equal(got.Int32Data, []int32{-3, 7}) {
		t.Errorf("Expected int32s [-3 7], got %v", got.Int32Data)
	}
	if !slices.Equal(got.Int64Data, []int64{-1, 1 << 40}) {
		t.Errorf("Expected int64s [-1 %d], got %v", int64(1<<40), got.Int64Data)
	}
	if got.DocString != "weights" {
		t.Errorf("Expected doc string 'weights', got '%s'", got.DocString)
	}
}

// TestParseAttributes tests scalar, repeated and nested graph attributes.
func TestParseAttributes(t *testing.T) {
	perm := wire{}.
		str(1, "perm").
		varint(20, AttributeProtoInts).
		bytes(8, packedVarints(1, 0))
	mixed := wire{}.
		str(1, "mixed").
		fixed32(2, 0.25).
		varint(3, -4).
		str(4, "fast").
		varint(8, 5).varint(8, 6). // unpacked ints
		fixed32(7, 1).fixed32(7, 2). // unpacked floats
		str(9, "a").str(9, "b")
	body := wire{}.
		str(2, "then").
		bytes(1, nodeBytes("Neg", []string{"T"}, []string{"R"})).
		bytes(12, valueInfoBytes("R", -1, 4))
	branch := wire{}.
		str(1, "then_branch").
		varint(20, AttributeProtoGraph).
		bytes(6, body)
	branches := wire{}.
		str(1, "branches").
		varint(20, AttributeProtoGraphs).
		bytes(11, body).
		bytes(11, body)

	graph := wire{}.
		str(2, "control_flow").
		bytes(1, nodeBytes("Transpose", []string{"X"}, []string{"T"}, perm, mixed)).
		bytes(1, nodeBytes("If", []string{"C"}, []string{"Y"}, branch, branches))

	model, err := Parse(wire{}.bytes(7, graph))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(model.Graph.Nodes) != 2 {
		t.Fatalf("Expected 2 nodes, got %d", len(model.Graph.Nodes))
	}

	transpose := model.Graph.Nodes[0]
	p, ok := transpose.Attribute("perm")
	if !ok {
		t.Fatal("perm attribute not found")
	}
	if p.Type != AttributeProtoInts || !slices.Equal(p.Ints, []int64{1, 0}) {
		t.Errorf("Expected INTS perm [1 0], got type %d %v", p.Type, p.Ints)
	}

	m, ok := transpose.Attribute("mixed")
	if !ok {
		t.Fatal("mixed attribute not found")
	}
	if m.F != 0.25 || m.I != -4 || string(m.S) != "fast" {
		t.Errorf("Expected f=0.25 i=-4 s=fast, got f=%v i=%d s=%s", m.F, m.I, m.S)
	}
	if !slices.Equal(m.Ints, []int64{5, 6}) {
		t.Errorf("Expected ints [5 6], got %v", m.Ints)
	}
	if !slices.Equal(m.Floats, []float32{1, 2}) {
		t.Errorf("Expected floats [1 2], got %v", m.Floats)
	}
	if len(m.Strings) != 2 || string(m.Strings[1]) != "b" {
		t.Errorf("Expected strings [a b], got %q", m.Strings)
	}

	ifNode := model.Graph.Nodes[1]
	b, ok := ifNode.Attribute("then_branch")
	if !ok {
		t.Fatal("then_branch attribute not found")
	}
	if b.Type != AttributeProtoGraph || b.G == nil {
		t.Fatalf("Expected GRAPH attribute, got type %d", b.Type)
	}
	if b.G.Name != "then" {
		t.Errorf("Expected nested graph name 'then', got '%s'", b.G.Name)
	}
	if len(b.G.Nodes) != 1 || b.G.Nodes[0].OpType != "Neg" {
		t.Errorf("Expected nested Neg node, got %+v", b.G.Nodes)
	}
	if !slices.Equal(b.G.Nodes[0].Inputs, []string{"T"}) {
		t.Errorf("Expected nested node to read outer value 'T', got %v", b.G.Nodes[0].Inputs)
	}

	gs, ok := ifNode.Attribute("branches")
	if !ok || len(gs.Graphs) != 2 {
		t.Fatalf("Expected 2 GRAPHS entries, got %+v", gs)
	}
}

// TestParseSkipsUnknownFields tests that fields of every wire type the
// reader does not know are skipped.
func TestParseSkipsUnknownFields(t *testing.T) {
	data := wire{}.varint(99, 12345).str(98, "ignored").fixed32(97, 3)
	data = binary.LittleEndian.AppendUint64(data.tag(96, wire64Bit), 42)
	data = data.varint(1, 9)

	model, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if model.IRVersion != 9 {
		t.Errorf("Expected IR version 9 after unknown fields, got %d", model.IRVersion)
	}
}

// TestParseMalformed tests error handling for corrupt input.
func TestParseMalformed(t *testing.T) {
	full := modelBytes(addGraph())
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"truncated message", full[:len(full)-3], io.ErrUnexpectedEOF.Error()},
		{"truncated varint", []byte{0x08, 0x80}, io.ErrUnexpectedEOF.Error()},
		{"group wire type", wire{}.tag(99, 3), "unknown wire type: 3"},
		{"ragged packed floats", wire{}.bytes(7, wire{}.bytes(5, wire{}.bytes(4, []byte{1, 2, 3}))), "not a multiple of 4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %q", tt.want, err.Error())
			}
		})
	}

	_, err := Parse(full[:len(full)-3])
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Expected wrapped io.ErrUnexpectedEOF, got %v", err)
	}
}

// TestParseFile tests parsing from file.
func TestParseFile(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "test.onnx")
	if err := os.WriteFile(tmpFile, modelBytes(addGraph()), 0o600); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}

	model, err := ParseFile(tmpFile)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if model.Graph == nil || len(model.Graph.Nodes) != 1 {
		t.Errorf("Expected graph with 1 node, got %+v", model.Graph)
	}
}

// TestParseInvalidFile tests error handling for non-existent file.
func TestParseInvalidFile(t *testing.T) {
	if _, err := ParseFile("/nonexistent/file.onnx"); err == nil {
		t.Error("Expected error for non-existent file, got nil")
	}
}

// TestParseEmptyData tests that empty input is an empty model.
func TestParseEmptyData(t *testing.T) {
	model, err := Parse([]byte{})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if model.Graph != nil {
		t.Errorf("Expected no graph, got %+v", model.Graph)
	}
}
