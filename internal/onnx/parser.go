package onnx

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// ParseFile parses an ONNX model from file.
//
//nolint:gosec // G304: Path is provided by user, file inclusion is intentional for ONNX model loading
func ParseFile(path string) (*ModelProto, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data)
}

// Parse parses an ONNX model from bytes. Fields the graph reader does not
// know are skipped.
func Parse(data []byte) (*ModelProto, error) {
	model := &ModelProto{}
	if err := model.decode(&parser{data: data}); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	return model, nil
}

// Protobuf wire types.
const (
	wireVarint = 0 // int32, int64, uint32, uint64, sint32, sint64, bool, enum
	wire64Bit  = 1 // fixed64, sfixed64, double
	wireBytes  = 2 // string, bytes, embedded messages, packed repeated fields
	wire32Bit  = 5 // fixed32, sfixed32, float
)

// parser is a cursor over one protobuf message.
type parser struct {
	data []byte
	pos  int
}

// each calls fn once per field of the message. fn must consume the payload,
// calling skip for fields it does not handle.
func (p *parser) each(fn func(field, wire int) error) error {
	for p.pos < len(p.data) {
		tag, err := p.varint()
		if err != nil {
			return err
		}
		if err := fn(int(tag>>3), int(tag&0x7)); err != nil {
			return err
		}
	}
	return nil
}

//nolint:cyclop // One case per ModelProto field.
func (m *ModelProto) decode(p *parser) error {
	return p.each(func(field, wire int) error {
		switch field {
		case 1: // ir_version
			return p.int64(&m.IRVersion)
		case 2: // producer_name
			return p.str(&m.ProducerName)
		case 3: // producer_version
			return p.str(&m.ProducerVersion)
		case 4: // domain
			return p.str(&m.Domain)
		case 5: // model_version
			return p.int64(&m.ModelVersion)
		case 6: // doc_string
			return p.str(&m.DocString)
		case 7: // graph
			m.Graph = &GraphProto{}
			return p.embedded(m.Graph.decode)
		case 8: // opset_import
			var opset OperatorSetID
			if err := p.embedded(opset.decode); err != nil {
				return err
			}
			m.OpsetImport = append(m.OpsetImport, opset)
			return nil
		case 14: // metadata_props
			var entry StringStringEntry
			if err := p.embedded(entry.decode); err != nil {
				return err
			}
			m.MetadataProps = append(m.MetadataProps, entry)
			return nil
		default:
			return p.skip(wire)
		}
	})
}

//nolint:cyclop // One case per GraphProto field.
func (g *GraphProto) decode(p *parser) error {
	return p.each(func(field, wire int) error {
		switch field {
		case 1: // node
			var node NodeProto
			if err := p.embedded(node.decode); err != nil {
				return err
			}
			g.Nodes = append(g.Nodes, node)
			return nil
		case 2: // name
			return p.str(&g.Name)
		case 5: // initializer
			var t TensorProto
			if err := p.embedded(t.decode); err != nil {
				return err
			}
			g.Initializers = append(g.Initializers, t)
			return nil
		case 10: // doc_string
			return p.str(&g.DocString)
		case 11: // input
			return p.valueInfo(&g.Inputs)
		case 12: // output
			return p.valueInfo(&g.Outputs)
		case 13: // value_info
			return p.valueInfo(&g.ValueInfo)
		default:
			return p.skip(wire)
		}
	})
}

func (n *NodeProto) decode(p *parser) error {
	return p.each(func(field, wire int) error {
		switch field {
		case 1: // input
			return p.appendStr(&n.Inputs)
		case 2: // output
			return p.appendStr(&n.Outputs)
		case 3: // name
			return p.str(&n.Name)
		case 4: // op_type
			return p.str(&n.OpType)
		case 5: // attribute
			var attr AttributeProto
			if err := p.embedded(attr.decode); err != nil {
				return err
			}
			n.Attributes = append(n.Attributes, attr)
			return nil
		case 6: // doc_string
			return p.str(&n.DocString)
		case 7: // domain
			return p.str(&n.Domain)
		default:
			return p.skip(wire)
		}
	})
}

//nolint:cyclop // One case per TensorProto field.
func (t *TensorProto) decode(p *parser) error {
	return p.each(func(field, wire int) error {
		switch field {
		case 1: // dims
			return p.varints(wire, func(v int64) { t.Dims = append(t.Dims, v) })
		case 2: // data_type
			return p.int32(&t.DataType)
		case 4: // float_data
			return p.floats(wire, func(v float32) { t.FloatData = append(t.FloatData, v) })
		case 5: // int32_data
			return p.varints(wire, func(v int64) {
				t.Int32Data = append(t.Int32Data, int32(v)) //nolint:gosec // G115: int32_data holds int32 values.
			})
		case 7: // int64_data
			return p.varints(wire, func(v int64) { t.Int64Data = append(t.Int64Data, v) })
		case 8: // name
			return p.str(&t.Name)
		case 9: // raw_data
			var err error
			t.RawData, err = p.bytes()
			return err
		case 12: // doc_string
			return p.str(&t.DocString)
		default:
			return p.skip(wire)
		}
	})
}

func (v *ValueInfoProto) decode(p *parser) error {
	return p.each(func(field, wire int) error {
		switch field {
		case 1: // name
			return p.str(&v.Name)
		case 2: // type
			v.Type = &TypeProto{}
			return p.embedded(v.Type.decode)
		case 3: // doc_string
			return p.str(&v.DocString)
		default:
			return p.skip(wire)
		}
	})
}

func (t *TypeProto) decode(p *parser) error {
	return p.each(func(field, wire int) error {
		if field != 1 { // tensor_type; sequence and map types are not graph values here
			return p.skip(wire)
		}
		t.TensorType = &TensorTypeProto{}
		return p.embedded(t.TensorType.decode)
	})
}

func (t *TensorTypeProto) decode(p *parser) error {
	return p.each(func(field, wire int) error {
		switch field {
		case 1: // elem_type
			return p.int32(&t.ElemType)
		case 2: // shape
			t.Shape = &TensorShapeProto{}
			return p.embedded(t.Shape.decode)
		default:
			return p.skip(wire)
		}
	})
}

func (s *TensorShapeProto) decode(p *parser) error {
	return p.each(func(field, wire int) error {
		if field != 1 { // dim
			return p.skip(wire)
		}
		var dim DimensionProto
		if err := p.embedded(dim.decode); err != nil {
			return err
		}
		s.Dims = append(s.Dims, dim)
		return nil
	})
}

func (d *DimensionProto) decode(p *parser) error {
	return p.each(func(field, wire int) error {
		switch field {
		case 1: // dim_value
			return p.int64(&d.DimValue)
		case 2: // dim_param
			return p.str(&d.DimParam)
		default:
			return p.skip(wire)
		}
	})
}

//nolint:gocognit,cyclop // One case per AttributeProto field.
func (a *AttributeProto) decode(p *parser) error {
	return p.each(func(field, wire int) error {
		switch field {
		case 1: // name
			return p.str(&a.Name)
		case 2: // f
			var err error
			a.F, err = p.float32()
			return err
		case 3: // i
			return p.int64(&a.I)
		case 4: // s
			var err error
			a.S, err = p.bytes()
			return err
		case 5: // t
			a.T = &TensorProto{}
			return p.embedded(a.T.decode)
		case 6: // g
			a.G = &GraphProto{}
			return p.embedded(a.G.decode)
		case 7: // floats
			return p.floats(wire, func(v float32) { a.Floats = append(a.Floats, v) })
		case 8: // ints
			return p.varints(wire, func(v int64) { a.Ints = append(a.Ints, v) })
		case 9: // strings
			data, err := p.bytes()
			if err != nil {
				return err
			}
			a.Strings = append(a.Strings, data)
			return nil
		case 10: // tensors
			var t TensorProto
			if err := p.embedded(t.decode); err != nil {
				return err
			}
			a.Tensors = append(a.Tensors, t)
			return nil
		case 11: // graphs
			var g GraphProto
			if err := p.embedded(g.decode); err != nil {
				return err
			}
			a.Graphs = append(a.Graphs, g)
			return nil
		case 13: // doc_string
			return p.str(&a.DocString)
		case 20: // type
			return p.int32(&a.Type)
		default:
			return p.skip(wire)
		}
	})
}

func (o *OperatorSetID) decode(p *parser) error {
	return p.each(func(field, wire int) error {
		switch field {
		case 1: // domain
			return p.str(&o.Domain)
		case 2: // version
			return p.int64(&o.Version)
		default:
			return p.skip(wire)
		}
	})
}

func (e *StringStringEntry) decode(p *parser) error {
	return p.each(func(field, wire int) error {
		switch field {
		case 1: // key
			return p.str(&e.Key)
		case 2: // value
			return p.str(&e.Value)
		default:
			return p.skip(wire)
		}
	})
}

// embedded decodes a length-delimited sub-message with decode.
func (p *parser) embedded(decode func(*parser) error) error {
	data, err := p.bytes()
	if err != nil {
		return err
	}
	return decode(&parser{data: data})
}

func (p *parser) valueInfo(dst *[]ValueInfoProto) error {
	var vi ValueInfoProto
	if err := p.embedded(vi.decode); err != nil {
		return err
	}
	*dst = append(*dst, vi)
	return nil
}

func (p *parser) str(dst *string) error {
	data, err := p.bytes()
	if err != nil {
		return err
	}
	*dst = string(data)
	return nil
}

func (p *parser) appendStr(dst *[]string) error {
	var s string
	if err := p.str(&s); err != nil {
		return err
	}
	*dst = append(*dst, s)
	return nil
}

func (p *parser) int64(dst *int64) error {
	v, err := p.varint()
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func (p *parser) int32(dst *int32) error {
	v, err := p.varint()
	if err != nil {
		return err
	}
	*dst = int32(v) //nolint:gosec // G115: Protobuf int32 fields are sign-extended varints.
	return nil
}

// varints reads a repeated varint field in packed or unpacked form.
func (p *parser) varints(wire int, emit func(int64)) error {
	if wire != wireBytes {
		v, err := p.varint()
		if err != nil {
			return err
		}
		emit(v)
		return nil
	}
	data, err := p.bytes()
	if err != nil {
		return err
	}
	packed := &parser{data: data}
	for packed.pos < len(packed.data) {
		v, err := packed.varint()
		if err != nil {
			return err
		}
		emit(v)
	}
	return nil
}

// floats reads a repeated float field in packed or unpacked form.
func (p *parser) floats(wire int, emit func(float32)) error {
	if wire == wire32Bit {
		v, err := p.float32()
		if err != nil {
			return err
		}
		emit(v)
		return nil
	}
	data, err := p.bytes()
	if err != nil {
		return err
	}
	if len(data)%4 != 0 {
		return fmt.Errorf("packed floats: %d bytes is not a multiple of 4", len(data))
	}
	for i := 0; i < len(data); i += 4 {
		emit(math.Float32frombits(binary.LittleEndian.Uint32(data[i:])))
	}
	return nil
}

// varint reads a varint-encoded int64.
func (p *parser) varint() (int64, error) {
	v, n := binary.Uvarint(p.data[p.pos:])
	switch {
	case n == 0:
		return 0, io.ErrUnexpectedEOF
	case n < 0:
		return 0, errors.New("varint overflow")
	}
	p.pos += n
	return int64(v), nil //nolint:gosec // G115: Protobuf varint fits in int64.
}

// bytes reads a length-delimited field. The result aliases the input.
func (p *parser) bytes() ([]byte, error) {
	length, err := p.varint()
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, errors.New("negative length")
	}
	if length > int64(len(p.data)-p.pos) {
		return nil, io.ErrUnexpectedEOF
	}
	end := p.pos + int(length)
	data := p.data[p.pos:end]
	p.pos = end
	return data, nil
}

func (p *parser) float32() (float32, error) {
	if p.pos+4 > len(p.data) {
		return 0, io.ErrUnexpectedEOF
	}
	bits := binary.LittleEndian.Uint32(p.data[p.pos:])
	p.pos += 4
	return math.Float32frombits(bits), nil
}

// skip consumes the payload of a field the reader does not handle.
func (p *parser) skip(wire int) error {
	switch wire {
	case wireVarint:
		_, err := p.varint()
		return err
	case wireBytes:
		_, err := p.bytes()
		return err
	case wire64Bit, wire32Bit:
		size := 4
		if wire == wire64Bit {
			size = 8
		}
		if p.pos+size > len(p.data) {
			return io.ErrUnexpectedEOF
		}
		p.pos += size
		return nil
	default:
		return fmt.Errorf("unknown wire type: %d", wire)
	}
}
