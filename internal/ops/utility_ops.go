package ops

import (
	"github.com/born-ml/graphlower/internal/ir"
	"github.com/born-ml/graphlower/internal/onnx"
	"github.com/born-ml/graphlower/internal/translate"
)

// registerStructuralOps adds graph inputs, constants and pass-through ops.
func registerStructuralOps(r *translate.Registry) {
	r.RegisterIndexed(OpInput, translateInput)
	r.RegisterIndexed(OpConstant, translateConstant)
	r.RegisterIndexed(OpNoOp, translateNoOp)
	r.RegisterIndexed("Identity", translateIdentity)
	r.RegisterIndexed("Cast", translateCast)
	r.RegisterIndexed("Shape", translateShape)
}

func translateInput(ctx *translate.NodeContext) ([]ir.Output, error) {
	elem, err := ElementType(int32(ctx.AttrInt("dtype", onnx.TensorProtoUndefined)))
	if err != nil {
		return nil, ctx.Errorf("input %q: %v", ctx.Name(), err)
	}

	var shape ir.Shape
	if ctx.HasAttr("shape") {
		shape = append(ir.Shape{}, ctx.AttrInts("shape")...)
	}

	p, err := ctx.AddParameter(ctx.Name(), elem, shape)
	if err != nil {
		return nil, err
	}
	return []ir.Output{p.Output(0)}, nil
}

func translateConstant(ctx *translate.NodeContext) ([]ir.Output, error) {
	t, ok := ctx.AttrTensor("value")
	if !ok {
		t, ok = scalarConstant(ctx)
	}
	if !ok {
		return nil, ctx.Errorf("constant %q has no value", ctx.Name())
	}

	elem, err := ElementType(t.DataType)
	if err != nil {
		return nil, ctx.Errorf("constant %q: %v", ctx.Name(), err)
	}

	n := ctx.NewNode(ir.TypeConstant, nil, 1)
	n.SetAttr("value", t)
	n.Output(0).SetType(elem, append(ir.Shape{}, t.Dims...))
	return []ir.Output{n.Output(0)}, nil
}

// scalarConstant builds the tensor of a Constant node that uses one of the
// value_* shorthand attributes.
func scalarConstant(ctx *translate.NodeContext) (*onnx.TensorProto, bool) {
	switch {
	case ctx.HasAttr("value_float"):
		return &onnx.TensorProto{
			DataType:  onnx.TensorProtoFloat,
			FloatData: []float32{ctx.AttrFloat("value_float", 0)},
		}, true
	case ctx.HasAttr("value_floats"):
		v := ctx.AttrFloats("value_floats")
		return &onnx.TensorProto{
			DataType:  onnx.TensorProtoFloat,
			Dims:      []int64{int64(len(v))},
			FloatData: v,
		}, true
	case ctx.HasAttr("value_int"):
		return &onnx.TensorProto{
			DataType:  onnx.TensorProtoInt64,
			Int64Data: []int64{ctx.AttrInt("value_int", 0)},
		}, true
	case ctx.HasAttr("value_ints"):
		v := ctx.AttrInts("value_ints")
		return &onnx.TensorProto{
			DataType:  onnx.TensorProtoInt64,
			Dims:      []int64{int64(len(v))},
			Int64Data: v,
		}, true
	default:
		return nil, false
	}
}

// translateNoOp keeps bookkeeping markers in the graph so that cleanup
// passes can find and drop them.
func translateNoOp(ctx *translate.NodeContext) ([]ir.Output, error) {
	var inputs []ir.Output
	for _, in := range ctx.Inputs() {
		if in.Valid() {
			inputs = append(inputs, in)
		}
	}
	n := ctx.NewNode(TypeNoOp, inputs, len(ctx.Decoder().Outputs()))
	return n.Outputs(), nil
}

func translateIdentity(ctx *translate.NodeContext) ([]ir.Output, error) {
	if err := ctx.RequireInputs(1); err != nil {
		return nil, err
	}
	return []ir.Output{ctx.Input(0)}, nil
}

func translateCast(ctx *translate.NodeContext) ([]ir.Output, error) {
	if err := ctx.RequireInputs(1); err != nil {
		return nil, err
	}
	if !ctx.HasAttr("to") {
		return nil, ctx.Errorf("cast requires attribute 'to'")
	}
	elem, err := ElementType(int32(ctx.AttrInt("to", 0)))
	if err != nil {
		return nil, ctx.Errorf("cast: %v", err)
	}

	x := ctx.Input(0)
	n := ctx.NewNode(TypeConvert, []ir.Output{x}, 1)
	n.SetAttr("destination_type", elem)
	n.Output(0).SetType(elem, x.Shape().Clone())
	return []ir.Output{n.Output(0)}, nil
}

func translateShape(ctx *translate.NodeContext) ([]ir.Output, error) {
	if err := ctx.RequireInputs(1); err != nil {
		return nil, err
	}
	x := ctx.Input(0)
	n := ctx.NewNode(TypeShapeOf, []ir.Output{x}, 1)
	var shape ir.Shape
	if x.Shape() != nil {
		shape = ir.Shape{int64(len(x.Shape()))}
	}
	n.Output(0).SetType(ir.I64, shape)
	return []ir.Output{n.Output(0)}, nil
}
