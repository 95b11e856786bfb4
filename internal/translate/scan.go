package translate

import (
	"github.com/samber/lo"

	"github.com/born-ml/graphlower/internal/ir"
)

// Failure is the first recorded translation failure of an operation type.
type Failure struct {
	OpType  string
	Message string
}

// Report lists the unresolved operations of a graph, in traversal order.
type Report struct {
	// Unsupported holds operation types without a translator.
	Unsupported []string
	// Failures holds one entry per operation type whose translator failed.
	// Later failures of an already recorded type are dropped.
	Failures []Failure
}

// Empty reports whether the graph is fully resolved.
func (r Report) Empty() bool {
	return len(r.Unsupported) == 0 && len(r.Failures) == 0
}

// FailureMap returns the failures keyed by operation type.
func (r Report) FailureMap() map[string]string {
	return lo.SliceToMap(r.Failures, func(f Failure) (string, string) {
		return f.OpType, f.Message
	})
}

// Failed reports whether a failure is recorded for opType.
func (r Report) Failed(opType string) bool {
	return lo.ContainsBy(r.Failures, func(f Failure) bool { return f.OpType == opType })
}

// Scan classifies every pending node of g and of its nested bodies.
// It does not modify g.
func Scan(g *ir.Graph) Report {
	var r Report
	g.Walk(func(n *ir.Node) bool {
		if !n.IsPending() {
			return true
		}
		op := n.OpType()
		if n.Pending.Failure != "" {
			if !r.Failed(op) {
				r.Failures = append(r.Failures, Failure{OpType: op, Message: n.Pending.Failure})
			}
			return true
		}
		if !lo.Contains(r.Unsupported, op) {
			r.Unsupported = append(r.Unsupported, op)
		}
		return true
	})
	return r
}
