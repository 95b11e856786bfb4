package passes

import (
	"github.com/born-ml/graphlower/internal/ir"
	"github.com/born-ml/graphlower/internal/ops"
)

// Fused operation types.
const (
	TypeEmbeddingSegmentsSum = "EmbeddingSegmentsSum"
	TypeLSTMSequence         = "LSTMSequence"
	TypeGRUCell              = "GRUCell"
)

// pendingOf returns the pending nodes of g with the given source op type.
func pendingOf(g *ir.Graph, opType string) []*ir.Node {
	var out []*ir.Node
	for _, n := range g.OrderedOps() {
		if n.IsPending() && n.OpType() == opType {
			out = append(out, n)
		}
	}
	return out
}

// EmbeddingSegmentFusion replaces SparseSegmentSum(Gather(table, ids),
// indices, segments) by a single EmbeddingSegmentsSum lookup.
type EmbeddingSegmentFusion struct{}

// Name implements Pass.
func (EmbeddingSegmentFusion) Name() string { return "EmbeddingSegmentFusion" }

// Run implements Pass.
func (EmbeddingSegmentFusion) Run(g *ir.Graph) (bool, error) {
	changed := false
	for _, n := range pendingOf(g, "SparseSegmentSum") {
		if n.NumInputs() < 3 || !consumedOnly(n, 0) {
			continue
		}
		gathered := n.Input(0)
		if !gathered.Valid() || gathered.Node.Type != ops.TypeGather {
			continue
		}
		table, ids := gathered.Node.Input(0), gathered.Node.Input(1)
		indices, segments := n.Input(1), n.Input(2)

		fused := ir.NewNode(TypeEmbeddingSegmentsSum, []ir.Output{table, ids, indices, segments}, 1)
		fused.Name = n.Name
		var shape ir.Shape
		if ts := table.Shape(); len(ts) > 0 {
			shape = append(ir.Shape{ir.DynamicDim}, ts[1:]...)
		}
		fused.Output(0).SetType(table.ElementType(), shape)

		replacePending(g, n, map[int]ir.Output{0: fused.Output(0)})
		changed = true
	}
	return changed, nil
}

// BlockLSTMReplacer replaces a BlockLSTM whose hidden or cell state
// sequence is the only thing read by an LSTMSequence.
//
// BlockLSTM inputs: seq_len_max, x, cs_prev, h_prev, w, wci, wcf, wco, b.
// Outputs: i, cs, f, o, ci, co, h.
type BlockLSTMReplacer struct{}

// Name implements Pass.
func (BlockLSTMReplacer) Name() string { return "BlockLSTMReplacer" }

// Run implements Pass.
func (BlockLSTMReplacer) Run(g *ir.Graph) (bool, error) {
	const (
		outCS = 1
		outH  = 6
	)
	changed := false
	for _, n := range pendingOf(g, "BlockLSTM") {
		if n.NumInputs() < 9 || n.NumOutputs() < 7 || !consumedOnly(n, outCS, outH) {
			continue
		}
		x := n.Input(1)
		lstm := ir.NewNode(TypeLSTMSequence, []ir.Output{
			x, n.Input(3), n.Input(2), n.Input(4), n.Input(8), n.Input(0),
		}, 3)
		lstm.Name = n.Name
		if a, ok := n.Pending.Decoder.Attr("cell_clip"); ok {
			lstm.SetAttr("cell_clip", a.F)
		}
		for i := 0; i < 3; i++ {
			lstm.Output(i).SetType(x.ElementType(), nil)
		}

		replacePending(g, n, map[int]ir.Output{
			outH:  lstm.Output(0),
			outCS: lstm.Output(2),
		})
		changed = true
	}
	return changed, nil
}

// GRUBlockCellReplacer replaces a GRUBlockCell whose new hidden state is
// its only consumed output by a GRUCell.
//
// GRUBlockCell inputs: x, h_prev, w_ru, w_c, b_ru, b_c. Outputs: r, u, c, h.
type GRUBlockCellReplacer struct{}

// Name implements Pass.
func (GRUBlockCellReplacer) Name() string { return "GRUBlockCellReplacer" }

// Run implements Pass.
func (GRUBlockCellReplacer) Run(g *ir.Graph) (bool, error) {
	const outH = 3
	changed := false
	for _, n := range pendingOf(g, "GRUBlockCell") {
		if n.NumInputs() < 6 || n.NumOutputs() < 4 || !consumedOnly(n, outH) {
			continue
		}
		hPrev := n.Input(1)
		cell := ir.NewNode(TypeGRUCell, n.Inputs()[:6], 1)
		cell.Name = n.Name
		cell.SetAttr("linear_before_reset", false)
		cell.Output(0).SetType(hPrev.ElementType(), hPrev.Shape().Clone())

		replacePending(g, n, map[int]ir.Output{outH: cell.Output(0)})
		changed = true
	}
	return changed, nil
}
