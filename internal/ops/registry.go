package ops

import (
	"github.com/born-ml/graphlower/internal/source"
	"github.com/born-ml/graphlower/internal/translate"
)

// Structural operation types.
const (
	OpInput    = source.OpInput
	OpConstant = source.OpConstant
	OpNoOp     = "NoOp"
)

// DecodeOps are the operation types translated when a graph is only decoded:
// graph inputs and no-op markers. Everything else stays pending.
var DecodeOps = []string{OpInput, OpNoOp}

// NewRegistry creates a registry holding every default translator.
func NewRegistry() *translate.Registry {
	r := translate.NewRegistry()

	registerStructuralOps(r)
	registerMathOps(r)
	registerActivations(r)
	registerShapeOps(r)
	registerControlFlow(r)

	return r
}
