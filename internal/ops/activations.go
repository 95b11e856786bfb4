package ops

import (
	"github.com/born-ml/graphlower/internal/ir"
	"github.com/born-ml/graphlower/internal/translate"
)

// registerActivations adds activation functions to the registry.
func registerActivations(r *translate.Registry) {
	r.RegisterIndexed("Relu", unary(TypeRelu))
	r.RegisterIndexed("Sigmoid", unary(TypeSigmoid))
	r.RegisterIndexed("Tanh", unary(TypeTanh))
	r.RegisterIndexed("Gelu", unary(TypeGelu))
	r.RegisterIndexed("Silu", unary(TypeSwish))
	r.RegisterIndexed("LeakyRelu", translateLeakyRelu)
	r.RegisterIndexed("Softmax", translateSoftmax)
}

func translateLeakyRelu(ctx *translate.NodeContext) ([]ir.Output, error) {
	out, err := unary(TypeLeakyRelu)(ctx)
	if err != nil {
		return nil, err
	}
	out[0].Node.SetAttr("alpha", ctx.AttrFloat("alpha", 0.01))
	return out, nil
}

func translateSoftmax(ctx *translate.NodeContext) ([]ir.Output, error) {
	out, err := unary(TypeSoftmax)(ctx)
	if err != nil {
		return nil, err
	}
	axis := ctx.AttrInt("axis", -1)
	if rank := ctx.Input(0).Shape(); rank != nil {
		a, err := normalizeAxis(axis, len(rank))
		if err != nil {
			return nil, ctx.Errorf("softmax: %v", err)
		}
		axis = int64(a)
	}
	out[0].Node.SetAttr("axis", axis)
	return out, nil
}
