package passes

import (
	"slices"

	"github.com/born-ml/graphlower/internal/ir"
	"github.com/born-ml/graphlower/internal/ops"
)

// TransposeSinking removes transposes that do not move any axis and pairs
// of consecutive transposes that cancel out. Nested bodies are processed
// too.
type TransposeSinking struct{}

// Name implements Pass.
func (TransposeSinking) Name() string { return "TransposeSinking" }

// Run implements Pass.
func (p TransposeSinking) Run(g *ir.Graph) (bool, error) {
	changed := false
	for {
		c := p.runOnce(g)
		if !c {
			break
		}
		changed = true
	}
	for _, n := range g.OrderedOps() {
		for _, body := range n.Bodies {
			c, err := p.Run(body)
			if err != nil {
				return changed, err
			}
			changed = changed || c
		}
	}
	return changed, nil
}

func (TransposeSinking) runOnce(g *ir.Graph) bool {
	for _, n := range g.OrderedOps() {
		order, ok := transposeOrder(n)
		if !ok {
			continue
		}
		src := n.Input(0)
		if isIdentityPerm(order) {
			bypass(n, src)
			return true
		}
		if inner, ok := transposeOrder(src.Node); ok && isIdentityPerm(compose(inner, order)) &&
			len(src.Consumers()) == 1 {
			bypass(n, src.Node.Input(0))
			src.Node.Detach()
			return true
		}
	}
	return false
}

func transposeOrder(n *ir.Node) ([]int64, bool) {
	if n == nil || n.IsPending() || n.Type != ops.TypeTranspose || n.NumInputs() == 0 {
		return nil, false
	}
	raw, ok := n.Attr("order")
	if !ok {
		return nil, false
	}
	order, ok := raw.([]int64)
	return order, ok && len(order) > 0
}

// compose returns the permutation equal to applying first, then second.
func compose(first, second []int64) []int64 {
	if len(first) != len(second) {
		return nil
	}
	out := make([]int64, len(second))
	for i, s := range second {
		if s < 0 || int(s) >= len(first) {
			return nil
		}
		out[i] = first[s]
	}
	return out
}

func isIdentityPerm(order []int64) bool {
	if len(order) == 0 {
		return false
	}
	for i, v := range order {
		if v != int64(i) {
			return false
		}
	}
	return true
}

// bypass moves the consumers of n's single output to src and disconnects n.
func bypass(n *ir.Node, src ir.Output) {
	n.Output(0).Replace(src)
	n.Detach()
}

// ReverseShapeAndTypeInfer fills in graph parameters of unknown element
// type or rank from the nodes that consume them.
type ReverseShapeAndTypeInfer struct{}

// Name implements Pass.
func (ReverseShapeAndTypeInfer) Name() string { return "ReverseShapeAndTypeInfer" }

// sameTypeOps require every data input to share one element type.
var sameTypeOps = []string{
	ops.TypeAdd, ops.TypeSubtract, ops.TypeMultiply, ops.TypeDivide,
	ops.TypePower, ops.TypeMatMul, ops.TypeConcat,
}

// Run implements Pass.
func (p ReverseShapeAndTypeInfer) Run(g *ir.Graph) (bool, error) {
	changed := false
	for _, param := range g.Parameters {
		out := param.Output(0)
		elem, shape := out.ElementType(), out.Shape()
		for _, c := range out.Consumers() {
			if elem.IsDynamic() {
				elem = peerElementType(c)
			}
			if shape == nil {
				shape = rankFromConsumer(c)
			}
		}
		if elem != out.ElementType() || (shape != nil && out.Shape() == nil) {
			out.SetType(elem, shape)
			changed = true
		}
	}
	for _, n := range g.OrderedOps() {
		for _, body := range n.Bodies {
			c, err := p.Run(body)
			if err != nil {
				return changed, err
			}
			changed = changed || c
		}
	}
	if changed {
		g.RefreshResults()
	}
	return changed, nil
}

// peerElementType returns the element type of another input of the
// consuming node when the node requires matching types.
func peerElementType(c ir.Input) ir.ElementType {
	if !slices.Contains(sameTypeOps, c.Node.Type) {
		return ir.Dynamic
	}
	for i, in := range c.Node.Inputs() {
		if i == c.Index || !in.Valid() {
			continue
		}
		if t := in.ElementType(); !t.IsDynamic() {
			return t
		}
	}
	return ir.Dynamic
}

// rankFromConsumer derives a fully dynamic shape from a transpose order.
func rankFromConsumer(c ir.Input) ir.Shape {
	order, ok := transposeOrder(c.Node)
	if !ok || c.Index != 0 {
		return nil
	}
	shape := make(ir.Shape, len(order))
	for i := range shape {
		shape[i] = ir.DynamicDim
	}
	return shape
}
