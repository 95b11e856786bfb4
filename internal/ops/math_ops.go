package ops

import (
	"fmt"

	"github.com/born-ml/graphlower/internal/ir"
	"github.com/born-ml/graphlower/internal/onnx"
	"github.com/born-ml/graphlower/internal/translate"
)

// registerMathOps adds math operators to the registry.
func registerMathOps(r *translate.Registry) {
	r.RegisterIndexed("Add", binary(TypeAdd))
	r.RegisterIndexed("Sub", binary(TypeSubtract))
	r.RegisterIndexed("Mul", binary(TypeMultiply))
	r.RegisterIndexed("Div", binary(TypeDivide))
	r.RegisterIndexed("Pow", binary(TypePower))
	r.RegisterIndexed("Square", translateSquare)
	r.RegisterIndexed("MatMul", translateMatMul)
	r.RegisterIndexed("Gemm", translateGemm)
	r.RegisterIndexed("Sqrt", unary(TypeSqrt))
	r.RegisterIndexed("Exp", unary(TypeExp))
	r.RegisterIndexed("Log", unary(TypeLog))
	r.RegisterIndexed("Neg", unary(TypeNegative))
	r.RegisterIndexed("Abs", unary(TypeAbs))
}

// binary translates a broadcasting elementwise operator.
func binary(typ string) translate.Indexed {
	return func(ctx *translate.NodeContext) ([]ir.Output, error) {
		if err := ctx.RequireInputs(2); err != nil {
			return nil, err
		}
		return elementwise(ctx, typ, ctx.Input(0), ctx.Input(1))
	}
}

// unary translates an operator whose output has the type of its input.
func unary(typ string) translate.Indexed {
	return func(ctx *translate.NodeContext) ([]ir.Output, error) {
		if err := ctx.RequireInputs(1); err != nil {
			return nil, err
		}
		x := ctx.Input(0)
		n := ctx.NewNode(typ, []ir.Output{x}, 1)
		n.Output(0).SetType(x.ElementType(), x.Shape().Clone())
		return []ir.Output{n.Output(0)}, nil
	}
}

func elementwise(ctx *translate.NodeContext, typ string, a, b ir.Output) ([]ir.Output, error) {
	elem, err := mergeElementType(a.ElementType(), b.ElementType())
	if err != nil {
		return nil, ctx.Errorf("%s: %v", ctx.OpType(), err)
	}
	shape, err := broadcastShape(a.Shape(), b.Shape())
	if err != nil {
		return nil, ctx.Errorf("%s: %v", ctx.OpType(), err)
	}
	n := ctx.NewNode(typ, []ir.Output{a, b}, 1)
	n.Output(0).SetType(elem, shape)
	return []ir.Output{n.Output(0)}, nil
}

// translateSquare lowers Square(x) to x * x.
func translateSquare(ctx *translate.NodeContext) ([]ir.Output, error) {
	if err := ctx.RequireInputs(1); err != nil {
		return nil, err
	}
	x := ctx.Input(0)
	return elementwise(ctx, TypeMultiply, x, x)
}

func translateMatMul(ctx *translate.NodeContext) ([]ir.Output, error) {
	if err := ctx.RequireInputs(2); err != nil {
		return nil, err
	}
	return matMul(ctx, ctx.Input(0), ctx.Input(1), false, false)
}

func matMul(ctx *translate.NodeContext, a, b ir.Output, transA, transB bool) ([]ir.Output, error) {
	elem, err := mergeElementType(a.ElementType(), b.ElementType())
	if err != nil {
		return nil, ctx.Errorf("%s: %v", ctx.OpType(), err)
	}
	shape, err := matMulShape(a.Shape(), b.Shape(), transA, transB)
	if err != nil {
		return nil, ctx.Errorf("%s: %v", ctx.OpType(), err)
	}
	n := ctx.NewNode(TypeMatMul, []ir.Output{a, b}, 1)
	n.SetAttr("transpose_a", transA)
	n.SetAttr("transpose_b", transB)
	n.Output(0).SetType(elem, shape)
	return []ir.Output{n.Output(0)}, nil
}

// translateGemm implements General Matrix Multiplication: Y = alpha*A*B + beta*C.
func translateGemm(ctx *translate.NodeContext) ([]ir.Output, error) {
	if err := ctx.RequireInputs(2); err != nil {
		return nil, err
	}

	alpha := ctx.AttrFloat("alpha", 1.0)
	beta := ctx.AttrFloat("beta", 1.0)
	transA := ctx.AttrInt("transA", 0) != 0
	transB := ctx.AttrInt("transB", 0) != 0

	y, err := matMul(ctx, ctx.Input(0), ctx.Input(1), transA, transB)
	if err != nil {
		return nil, err
	}
	if alpha != 1 {
		if y, err = elementwise(ctx, TypeMultiply, y[0], scalar(ctx, y[0].ElementType(), alpha)); err != nil {
			return nil, err
		}
	}

	if !ctx.HasInput(2) {
		return y, nil
	}
	c := ctx.Input(2)
	if beta != 1 {
		scaled, err := elementwise(ctx, TypeMultiply, c, scalar(ctx, c.ElementType(), beta))
		if err != nil {
			return nil, err
		}
		c = scaled[0]
	}
	return elementwise(ctx, TypeAdd, y[0], c)
}

// scalar creates a float scalar constant.
func scalar(ctx *translate.NodeContext, elem ir.ElementType, v float32) ir.Output {
	n := ctx.NewNode(ir.TypeConstant, nil, 1)
	n.SetAttr("value", &onnx.TensorProto{
		DataType:  onnx.TensorProtoFloat,
		FloatData: []float32{v},
	})
	if elem.IsDynamic() {
		elem = ir.F32
	}
	n.Output(0).SetType(elem, ir.Shape{})
	return n.Output(0)
}

// matMulShape follows numpy matmul: rank-1 operands are promoted to
// matrices and the promoted axis is dropped from the result.
func matMulShape(a, b ir.Shape, transA, transB bool) (ir.Shape, error) {
	if a == nil || b == nil {
		return nil, nil
	}
	if len(a) == 0 || len(b) == 0 {
		return nil, fmt.Errorf("matmul operands must have rank >= 1, got %s and %s", a, b)
	}

	ra, rb := a.Clone(), b.Clone()
	squeezeA, squeezeB := false, false
	if len(ra) == 1 {
		ra = ir.Shape{1, ra[0]}
		squeezeA = true
	}
	if len(rb) == 1 {
		rb = ir.Shape{rb[0], 1}
		squeezeB = true
	}
	if transA {
		ra[len(ra)-1], ra[len(ra)-2] = ra[len(ra)-2], ra[len(ra)-1]
	}
	if transB {
		rb[len(rb)-1], rb[len(rb)-2] = rb[len(rb)-2], rb[len(rb)-1]
	}

	ka, kb := ra[len(ra)-1], rb[len(rb)-2]
	if ka != ir.DynamicDim && kb != ir.DynamicDim && ka != kb {
		return nil, fmt.Errorf("inner dimensions of %s and %s differ", a, b)
	}

	batch, err := broadcastShape(ra[:len(ra)-2], rb[:len(rb)-2])
	if err != nil {
		return nil, err
	}
	out := batch
	if !squeezeA {
		out = append(out, ra[len(ra)-2])
	}
	if !squeezeB {
		out = append(out, rb[len(rb)-1])
	}
	return out, nil
}
