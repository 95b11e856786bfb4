package ops

import (
	"fmt"
	"slices"

	"github.com/born-ml/graphlower/internal/ir"
	"github.com/born-ml/graphlower/internal/translate"
)

// registerShapeOps adds shape manipulation operators to the registry.
func registerShapeOps(r *translate.Registry) {
	r.RegisterIndexed("Transpose", translateTranspose)
	r.RegisterIndexed("Reshape", translateReshape)
	r.RegisterIndexed("Unsqueeze", translateUnsqueeze)
	r.RegisterIndexed("Concat", translateConcat)
	r.RegisterIndexed("Split", translateSplit)
	r.RegisterIndexed("Gather", translateGather)
}

func translateTranspose(ctx *translate.NodeContext) ([]ir.Output, error) {
	if err := ctx.RequireInputs(1); err != nil {
		return nil, err
	}
	x := ctx.Input(0)
	perm := slices.Clone(ctx.AttrInts("perm"))
	if len(perm) == 0 && x.Shape() != nil {
		// Default permutation reverses the axes.
		for i := len(x.Shape()) - 1; i >= 0; i-- {
			perm = append(perm, int64(i))
		}
	}

	var shape ir.Shape
	if in := x.Shape(); in != nil && len(perm) > 0 {
		if len(perm) != len(in) {
			return nil, ctx.Errorf("transpose: perm %v does not match rank %d", perm, len(in))
		}
		shape = make(ir.Shape, len(perm))
		for i, p := range perm {
			if p < 0 || int(p) >= len(in) {
				return nil, ctx.Errorf("transpose: invalid perm %v", perm)
			}
			shape[i] = in[p]
		}
	}

	n := ctx.NewNode(TypeTranspose, []ir.Output{x}, 1)
	n.SetAttr("order", perm)
	n.Output(0).SetType(x.ElementType(), shape)
	return []ir.Output{n.Output(0)}, nil
}

func translateReshape(ctx *translate.NodeContext) ([]ir.Output, error) {
	if err := ctx.RequireInputs(2); err != nil {
		return nil, err
	}
	x, target := ctx.Input(0), ctx.Input(1)
	specialZero := ctx.AttrInt("allowzero", 0) == 0

	var shape ir.Shape
	if dims, ok := constantInts(target); ok {
		var err error
		if shape, err = reshapeShape(x.Shape(), dims, specialZero); err != nil {
			return nil, ctx.Errorf("reshape: %v", err)
		}
	}

	n := ctx.NewNode(TypeReshape, []ir.Output{x, target}, 1)
	n.SetAttr("special_zero", specialZero)
	n.Output(0).SetType(x.ElementType(), shape)
	return []ir.Output{n.Output(0)}, nil
}

// reshapeShape resolves 0 (copy input dim) and -1 (infer) entries of a
// Reshape target.
func reshapeShape(in ir.Shape, target []int64, specialZero bool) (ir.Shape, error) {
	out := make(ir.Shape, len(target))
	infer := -1
	known := int64(1)
	for i, d := range target {
		switch {
		case d == 0 && specialZero:
			if in == nil || i >= len(in) {
				out[i] = ir.DynamicDim
				known = -1
				continue
			}
			out[i] = in[i]
		case d == -1:
			if infer >= 0 {
				return nil, fmt.Errorf("more than one -1 in target shape %v", target)
			}
			infer = i
			continue
		case d < 0:
			return nil, fmt.Errorf("invalid dimension %d in target shape %v", d, target)
		default:
			out[i] = d
		}
		if out[i] >= 0 && known >= 0 {
			known *= out[i]
		} else {
			known = -1
		}
	}
	if infer < 0 {
		return out, nil
	}

	out[infer] = ir.DynamicDim
	if !in.IsStatic() || known <= 0 {
		return out, nil
	}
	total := int64(1)
	for _, d := range in {
		total *= d
	}
	if total%known != 0 {
		return nil, fmt.Errorf("cannot reshape %s into %v", in, target)
	}
	out[infer] = total / known
	return out, nil
}

func translateUnsqueeze(ctx *translate.NodeContext) ([]ir.Output, error) {
	if err := ctx.RequireInputs(1); err != nil {
		return nil, err
	}
	x := ctx.Input(0)

	axes := ctx.AttrInts("axes")
	inputs := []ir.Output{x}
	if ctx.HasInput(1) {
		inputs = append(inputs, ctx.Input(1))
		axes, _ = constantInts(ctx.Input(1))
	}

	var shape ir.Shape
	if in := x.Shape(); in != nil && len(axes) > 0 {
		rank := len(in) + len(axes)
		insert := make([]bool, rank)
		for _, a := range axes {
			i, err := normalizeAxis(a, rank)
			if err != nil {
				return nil, ctx.Errorf("unsqueeze: %v", err)
			}
			insert[i] = true
		}
		shape = make(ir.Shape, 0, rank)
		j := 0
		for i := 0; i < rank; i++ {
			if insert[i] {
				shape = append(shape, 1)
				continue
			}
			shape = append(shape, in[j])
			j++
		}
	}

	n := ctx.NewNode(TypeUnsqueeze, inputs, 1)
	n.SetAttr("axes", axes)
	n.Output(0).SetType(x.ElementType(), shape)
	return []ir.Output{n.Output(0)}, nil
}

func translateConcat(ctx *translate.NodeContext) ([]ir.Output, error) {
	if ctx.NumInputs() == 0 {
		return nil, ctx.Errorf("concat requires at least 1 input")
	}
	if !ctx.HasAttr("axis") {
		return nil, ctx.Errorf("concat requires attribute 'axis'")
	}
	axis := ctx.AttrInt("axis", 0)

	elem := ir.Dynamic
	var shape ir.Shape
	known := true
	for i, in := range ctx.Inputs() {
		if !in.Valid() {
			return nil, ctx.Errorf("concat: input %d is missing", i)
		}
		var err error
		if elem, err = mergeElementType(elem, in.ElementType()); err != nil {
			return nil, ctx.Errorf("concat: %v", err)
		}
		s := in.Shape()
		if s == nil {
			known = false
			continue
		}
		a, err := normalizeAxis(axis, len(s))
		if err != nil {
			return nil, ctx.Errorf("concat: %v", err)
		}
		if shape == nil {
			shape = s.Clone()
			continue
		}
		if shape[a] == ir.DynamicDim || s[a] == ir.DynamicDim {
			shape[a] = ir.DynamicDim
		} else {
			shape[a] += s[a]
		}
	}
	if !known {
		shape = nil
	}

	n := ctx.NewNode(TypeConcat, ctx.Inputs(), 1)
	n.SetAttr("axis", axis)
	n.Output(0).SetType(elem, shape)
	return []ir.Output{n.Output(0)}, nil
}

func translateSplit(ctx *translate.NodeContext) ([]ir.Output, error) {
	if err := ctx.RequireInputs(1); err != nil {
		return nil, err
	}
	x := ctx.Input(0)
	numOutputs := len(ctx.Decoder().Outputs())
	if numOutputs == 0 {
		return nil, ctx.Errorf("split declares no outputs")
	}

	axis := ctx.AttrInt("axis", 0)
	lengths := ctx.AttrInts("split")
	inputs := []ir.Output{x}
	if ctx.HasInput(1) {
		inputs = append(inputs, ctx.Input(1))
		lengths, _ = constantInts(ctx.Input(1))
	}
	if len(lengths) > 0 && len(lengths) != numOutputs {
		return nil, ctx.Errorf("split: %d lengths for %d outputs", len(lengths), numOutputs)
	}

	n := ctx.NewNode(TypeSplit, inputs, numOutputs)
	n.SetAttr("axis", axis)
	n.SetAttr("split_lengths", lengths)

	in := x.Shape()
	for i := 0; i < numOutputs; i++ {
		var shape ir.Shape
		if in != nil {
			a, err := normalizeAxis(axis, len(in))
			if err != nil {
				return nil, ctx.Errorf("split: %v", err)
			}
			shape = in.Clone()
			switch {
			case len(lengths) > 0:
				shape[a] = lengths[i]
			case in[a] != ir.DynamicDim && in[a]%int64(numOutputs) == 0:
				shape[a] = in[a] / int64(numOutputs)
			default:
				shape[a] = ir.DynamicDim
			}
		}
		n.Output(i).SetType(x.ElementType(), shape)
	}
	return n.Outputs(), nil
}

func translateGather(ctx *translate.NodeContext) ([]ir.Output, error) {
	if err := ctx.RequireInputs(2); err != nil {
		return nil, err
	}
	data, indices := ctx.Input(0), ctx.Input(1)
	axis := ctx.AttrInt("axis", 0)
	if d := data.Shape(); d != nil && len(d) == 0 {
		return nil, ctx.Errorf("gather: data must have rank >= 1")
	}

	var shape ir.Shape
	if d, idx := data.Shape(), indices.Shape(); d != nil && idx != nil {
		a, err := normalizeAxis(axis, len(d))
		if err != nil {
			return nil, ctx.Errorf("gather: %v", err)
		}
		shape = make(ir.Shape, 0, len(d)-1+len(idx))
		shape = append(shape, d[:a]...)
		shape = append(shape, idx...)
		shape = append(shape, d[a+1:]...)
	}

	n := ctx.NewNode(TypeGather, []ir.Output{data, indices}, 1)
	n.SetAttr("axis", axis)
	n.Output(0).SetType(data.ElementType(), shape)
	return []ir.Output{n.Output(0)}, nil
}
