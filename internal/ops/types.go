package ops

import (
	"fmt"

	"github.com/born-ml/graphlower/internal/ir"
	"github.com/born-ml/graphlower/internal/onnx"
)

var elementTypes = map[int32]ir.ElementType{
	onnx.TensorProtoUndefined: ir.Dynamic,
	onnx.TensorProtoFloat:     ir.F32,
	onnx.TensorProtoUint8:     ir.U8,
	onnx.TensorProtoInt8:      ir.I8,
	onnx.TensorProtoUint16:    ir.U16,
	onnx.TensorProtoInt16:     ir.I16,
	onnx.TensorProtoInt32:     ir.I32,
	onnx.TensorProtoInt64:     ir.I64,
	onnx.TensorProtoString:    ir.String,
	onnx.TensorProtoBool:      ir.Boolean,
	onnx.TensorProtoFloat16:   ir.F16,
	onnx.TensorProtoDouble:    ir.F64,
	onnx.TensorProtoUint32:    ir.U32,
	onnx.TensorProtoUint64:    ir.U64,
	onnx.TensorProtoBfloat16:  ir.BF16,
}

// ElementType maps an ONNX data type to an IR element type.
func ElementType(dtype int32) (ir.ElementType, error) {
	t, ok := elementTypes[dtype]
	if !ok {
		return ir.Dynamic, fmt.Errorf("unsupported data type %s (%d)", onnx.DataTypeName(dtype), dtype)
	}
	return t, nil
}

// broadcastShape returns the numpy-style broadcast of a and b, or nil when
// either rank is unknown.
func broadcastShape(a, b ir.Shape) (ir.Shape, error) {
	if a == nil || b == nil {
		return nil, nil
	}
	rank := max(len(a), len(b))
	out := make(ir.Shape, rank)
	for i := 0; i < rank; i++ {
		da, db := int64(1), int64(1)
		if j := len(a) - rank + i; j >= 0 {
			da = a[j]
		}
		if j := len(b) - rank + i; j >= 0 {
			db = b[j]
		}
		switch {
		case da == db:
			out[i] = da
		case da == 1:
			out[i] = db
		case db == 1:
			out[i] = da
		case da == ir.DynamicDim || db == ir.DynamicDim:
			out[i] = ir.DynamicDim
		default:
			return nil, fmt.Errorf("shapes %s and %s are not broadcastable", a, b)
		}
	}
	return out, nil
}

// mergeElementType picks the element type of a binary op.
func mergeElementType(a, b ir.ElementType) (ir.ElementType, error) {
	switch {
	case a == b:
		return a, nil
	case a.IsDynamic():
		return b, nil
	case b.IsDynamic():
		return a, nil
	default:
		return ir.Dynamic, fmt.Errorf("element types %s and %s differ", a, b)
	}
}

// normalizeAxis turns a possibly negative axis into an index below rank.
func normalizeAxis(axis int64, rank int) (int, error) {
	if axis < 0 {
		axis += int64(rank)
	}
	if axis < 0 || axis >= int64(rank) {
		return 0, fmt.Errorf("axis %d out of range for rank %d", axis, rank)
	}
	return int(axis), nil
}

// constantInts returns the integer value of v when it is produced by a
// Constant node.
func constantInts(v ir.Output) ([]int64, bool) {
	if !v.Valid() || v.Node.Type != ir.TypeConstant {
		return nil, false
	}
	raw, ok := v.Node.Attr("value")
	if !ok {
		return nil, false
	}
	t, ok := raw.(*onnx.TensorProto)
	if !ok {
		return nil, false
	}
	return t.Int64s()
}
