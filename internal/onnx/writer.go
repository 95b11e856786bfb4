package onnx

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// Marshal encodes a ModelProto into protobuf wire format.
// The output is readable by Parse and by any standard ONNX runtime.
func Marshal(m *ModelProto) []byte {
	e := &encoder{}
	e.varintField(1, m.IRVersion)
	e.stringField(2, m.ProducerName)
	e.stringField(3, m.ProducerVersion)
	e.stringField(4, m.Domain)
	e.varintField(5, m.ModelVersion)
	e.stringField(6, m.DocString)
	if m.Graph != nil {
		e.messageField(7, marshalGraph(m.Graph))
	}
	for i := range m.OpsetImport {
		sub := &encoder{}
		sub.stringField(1, m.OpsetImport[i].Domain)
		sub.varintField(2, m.OpsetImport[i].Version)
		e.messageField(8, sub.buf)
	}
	for i := range m.MetadataProps {
		sub := &encoder{}
		sub.stringField(1, m.MetadataProps[i].Key)
		sub.stringField(2, m.MetadataProps[i].Value)
		e.messageField(14, sub.buf)
	}
	return e.buf
}

// WriteFile encodes a ModelProto and writes it to path.
func WriteFile(path string, m *ModelProto) error {
	if err := os.WriteFile(path, Marshal(m), 0o600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func marshalGraph(g *GraphProto) []byte {
	e := &encoder{}
	for i := range g.Nodes {
		e.messageField(1, marshalNode(&g.Nodes[i]))
	}
	e.stringField(2, g.Name)
	for i := range g.Initializers {
		e.messageField(5, marshalTensor(&g.Initializers[i]))
	}
	e.stringField(10, g.DocString)
	for i := range g.Inputs {
		e.messageField(11, marshalValueInfo(&g.Inputs[i]))
	}
	for i := range g.Outputs {
		e.messageField(12, marshalValueInfo(&g.Outputs[i]))
	}
	for i := range g.ValueInfo {
		e.messageField(13, marshalValueInfo(&g.ValueInfo[i]))
	}
	return e.buf
}

func marshalNode(n *NodeProto) []byte {
	e := &encoder{}
	for _, in := range n.Inputs {
		e.bytesField(1, []byte(in))
	}
	for _, out := range n.Outputs {
		e.bytesField(2, []byte(out))
	}
	e.stringField(3, n.Name)
	e.stringField(4, n.OpType)
	for i := range n.Attributes {
		e.messageField(5, marshalAttribute(&n.Attributes[i]))
	}
	e.stringField(6, n.DocString)
	e.stringField(7, n.Domain)
	return e.buf
}

//nolint:gocognit,cyclop // One branch per populated AttributeProto field.
func marshalAttribute(a *AttributeProto) []byte {
	e := &encoder{}
	e.stringField(1, a.Name)
	if a.F != 0 {
		e.tag(2, wire32Bit)
		e.fixed32(math.Float32bits(a.F))
	}
	e.varintField(3, a.I)
	if len(a.S) > 0 {
		e.bytesField(4, a.S)
	}
	if a.T != nil {
		e.messageField(5, marshalTensor(a.T))
	}
	if a.G != nil {
		e.messageField(6, marshalGraph(a.G))
	}
	if len(a.Floats) > 0 {
		packed := &encoder{}
		for _, f := range a.Floats {
			packed.fixed32(math.Float32bits(f))
		}
		e.bytesField(7, packed.buf)
	}
	if len(a.Ints) > 0 {
		packed := &encoder{}
		for _, v := range a.Ints {
			packed.varint(uint64(v)) //nolint:gosec // G115: two's complement encoding is the protobuf rule.
		}
		e.bytesField(8, packed.buf)
	}
	for _, s := range a.Strings {
		e.bytesField(9, s)
	}
	for i := range a.Tensors {
		e.messageField(10, marshalTensor(&a.Tensors[i]))
	}
	for i := range a.Graphs {
		e.messageField(11, marshalGraph(&a.Graphs[i]))
	}
	e.stringField(13, a.DocString)
	e.varintField(20, int64(a.Type))
	return e.buf
}

func marshalTensor(t *TensorProto) []byte {
	e := &encoder{}
	if len(t.Dims) > 0 {
		packed := &encoder{}
		for _, d := range t.Dims {
			packed.varint(uint64(d)) //nolint:gosec // G115: dims are non-negative.
		}
		e.bytesField(1, packed.buf)
	}
	e.varintField(2, int64(t.DataType))
	if len(t.FloatData) > 0 {
		packed := &encoder{}
		for _, f := range t.FloatData {
			packed.fixed32(math.Float32bits(f))
		}
		e.bytesField(4, packed.buf)
	}
	if len(t.Int32Data) > 0 {
		packed := &encoder{}
		for _, v := range t.Int32Data {
			packed.varint(uint64(int64(v))) //nolint:gosec // G115: sign-extended per protobuf int32 rule.
		}
		e.bytesField(5, packed.buf)
	}
	if len(t.Int64Data) > 0 {
		packed := &encoder{}
		for _, v := range t.Int64Data {
			packed.varint(uint64(v)) //nolint:gosec // G115: two's complement encoding is the protobuf rule.
		}
		e.bytesField(7, packed.buf)
	}
	e.stringField(8, t.Name)
	if len(t.RawData) > 0 {
		e.bytesField(9, t.RawData)
	}
	e.stringField(12, t.DocString)
	return e.buf
}

func marshalValueInfo(v *ValueInfoProto) []byte {
	e := &encoder{}
	e.stringField(1, v.Name)
	if v.Type != nil && v.Type.TensorType != nil {
		tt := &encoder{}
		tt.varintField(1, int64(v.Type.TensorType.ElemType))
		if v.Type.TensorType.Shape != nil {
			shape := &encoder{}
			for _, d := range v.Type.TensorType.Shape.Dims {
				dim := &encoder{}
				if d.DimParam != "" {
					dim.stringField(2, d.DimParam)
				} else {
					dim.tag(1, wireVarint)
					dim.varint(uint64(d.DimValue)) //nolint:gosec // G115: dims are non-negative.
				}
				shape.messageField(1, dim.buf)
			}
			tt.messageField(2, shape.buf)
		}
		typ := &encoder{}
		typ.messageField(1, tt.buf)
		e.messageField(2, typ.buf)
	}
	e.stringField(3, v.DocString)
	return e.buf
}

// encoder appends protobuf wire-format fields to a buffer.
type encoder struct {
	buf []byte
}

func (e *encoder) tag(fieldNum, wireType int) {
	e.varint(uint64(fieldNum<<3 | wireType)) //nolint:gosec // G115: field numbers are small.
}

func (e *encoder) varint(v uint64) {
	e.buf = binary.AppendUvarint(e.buf, v)
}

func (e *encoder) fixed32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

// varintField skips zero values, matching proto3 default elision.
func (e *encoder) varintField(fieldNum int, v int64) {
	if v == 0 {
		return
	}
	e.tag(fieldNum, wireVarint)
	e.varint(uint64(v)) //nolint:gosec // G115: two's complement encoding is the protobuf rule.
}

func (e *encoder) stringField(fieldNum int, s string) {
	if s == "" {
		return
	}
	e.bytesField(fieldNum, []byte(s))
}

func (e *encoder) bytesField(fieldNum int, data []byte) {
	e.tag(fieldNum, wireBytes)
	e.varint(uint64(len(data)))
	e.buf = append(e.buf, data...)
}

func (e *encoder) messageField(fieldNum int, data []byte) {
	e.bytesField(fieldNum, data)
}
