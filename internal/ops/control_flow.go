package ops

import (
	"slices"

	"github.com/born-ml/graphlower/internal/ir"
	"github.com/born-ml/graphlower/internal/translate"
)

// registerControlFlow adds operators that own nested graphs.
func registerControlFlow(r *translate.Registry) {
	r.RegisterIndexed("If", translateIf)
	r.RegisterIndexed("Loop", translateLoop)
}

// translateIf lowers If to a node owning both branches.
//
// Inputs are the condition followed by the captured values of the then
// branch and then of the else branch. The attributes then_inputs and
// else_inputs hold how many of each there are.
func translateIf(ctx *translate.NodeContext) ([]ir.Output, error) {
	if err := ctx.RequireInputs(1); err != nil {
		return nil, err
	}
	thenBody, err := ctx.TranslateBody("then_branch")
	if err != nil {
		return nil, err
	}
	elseBody, err := ctx.TranslateBody("else_branch")
	if err != nil {
		return nil, err
	}

	numOutputs := len(ctx.Decoder().Outputs())
	if len(thenBody.Graph.Results) != numOutputs || len(elseBody.Graph.Results) != numOutputs {
		return nil, ctx.Errorf("if: branches produce %d and %d outputs, node declares %d",
			len(thenBody.Graph.Results), len(elseBody.Graph.Results), numOutputs)
	}

	inputs := []ir.Output{ctx.Input(0)}
	inputs = append(inputs, thenBody.Captured...)
	inputs = append(inputs, elseBody.Captured...)

	n := ctx.NewNode(TypeIf, inputs, numOutputs)
	n.Bodies = []*ir.Graph{thenBody.Graph, elseBody.Graph}
	n.SetAttr("then_inputs", len(thenBody.Captured))
	n.SetAttr("else_inputs", len(elseBody.Captured))

	for i := 0; i < numOutputs; i++ {
		t := thenBody.Graph.Results[i].Output(0)
		e := elseBody.Graph.Results[i].Output(0)
		elem, err := mergeElementType(t.ElementType(), e.ElementType())
		if err != nil {
			return nil, ctx.Errorf("if: output %d: %v", i, err)
		}
		var shape ir.Shape
		if slices.Equal(t.Shape(), e.Shape()) {
			shape = t.Shape().Clone()
		}
		n.Output(i).SetType(elem, shape)
	}
	return n.Outputs(), nil
}

// translateLoop lowers Loop to a node owning its body.
//
// Inputs are the trip count, the condition and the loop-carried values as
// declared, followed by the body's captured values. Outputs are the final
// carried values followed by the scan outputs, which gain a leading dynamic
// iteration axis.
func translateLoop(ctx *translate.NodeContext) ([]ir.Output, error) {
	if ctx.NumInputs() < 2 {
		return nil, ctx.Errorf("loop requires at least 2 inputs, got %d", ctx.NumInputs())
	}
	body, err := ctx.TranslateBody("body")
	if err != nil {
		return nil, err
	}

	carried := ctx.NumInputs() - 2
	numOutputs := len(ctx.Decoder().Outputs())
	if numOutputs < carried {
		return nil, ctx.Errorf("loop: %d outputs for %d carried values", numOutputs, carried)
	}
	if want := 1 + numOutputs; len(body.Graph.Results) != want {
		return nil, ctx.Errorf("loop: body produces %d outputs, want %d", len(body.Graph.Results), want)
	}

	inputs := append(slices.Clone(ctx.Inputs()), body.Captured...)
	n := ctx.NewNode(TypeLoop, inputs, numOutputs)
	n.Bodies = []*ir.Graph{body.Graph}
	n.SetAttr("body_inputs", len(body.Captured))

	for i := 0; i < numOutputs; i++ {
		r := body.Graph.Results[1+i].Output(0)
		shape := r.Shape().Clone()
		if i >= carried && shape != nil {
			shape = append(ir.Shape{ir.DynamicDim}, shape...)
		}
		n.Output(i).SetType(r.ElementType(), shape)
	}
	return n.Outputs(), nil
}
