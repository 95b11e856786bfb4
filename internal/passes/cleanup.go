package passes

import (
	"slices"

	"github.com/born-ml/graphlower/internal/ir"
	"github.com/born-ml/graphlower/internal/ops"
)

// bookkeepingOps produce nothing the converted model needs; results fed by
// them are dropped.
var bookkeepingOps = []string{ops.TypeNoOp, "SaveV2", "RestoreV2", "MergeV2Checkpoints"}

// UnusedRemover drops results and sinks fed by bookkeeping operations.
type UnusedRemover struct{}

// Name implements Pass.
func (UnusedRemover) Name() string { return "UnusedRemover" }

// Run implements Pass.
func (UnusedRemover) Run(g *ir.Graph) (bool, error) {
	changed := false
	for _, r := range slices.Clone(g.Results) {
		src := r.Input(0)
		if src.Valid() && slices.Contains(bookkeepingOps, src.Node.OpType()) {
			g.RemoveResult(r)
			changed = true
		}
	}
	for _, s := range slices.Clone(g.Sinks) {
		if slices.Contains(bookkeepingOps, s.OpType()) && !s.HasConsumers() {
			s.Detach()
			g.RemoveSink(s)
			changed = true
		}
	}
	return changed, nil
}

// ConstToResultRemover drops results fed directly by constants.
type ConstToResultRemover struct{}

// Name implements Pass.
func (ConstToResultRemover) Name() string { return "ConstToResultRemover" }

// Run implements Pass.
func (ConstToResultRemover) Run(g *ir.Graph) (bool, error) {
	changed := false
	for _, r := range slices.Clone(g.Results) {
		src := r.Input(0)
		if src.Valid() && src.Node.Type == ir.TypeConstant {
			g.RemoveResult(r)
			changed = true
		}
	}
	return changed, nil
}
