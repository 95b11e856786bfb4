package passes

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/born-ml/graphlower/internal/ir"
)

// Pass rewrites a graph in place.
type Pass interface {
	// Name identifies the pass in logs and errors.
	Name() string
	// Run applies the pass and reports whether the graph changed.
	Run(g *ir.Graph) (bool, error)
}

// Func adapts a function to the Pass interface.
type Func struct {
	PassName string
	Fn       func(g *ir.Graph) (bool, error)
}

// Name implements Pass.
func (f Func) Name() string { return f.PassName }

// Run implements Pass.
func (f Func) Run(g *ir.Graph) (bool, error) { return f.Fn(g) }

// Manager runs passes in registration order.
type Manager struct {
	passes []Pass
	logger logr.Logger
}

// NewManager creates an empty manager.
func NewManager(logger logr.Logger) *Manager {
	return &Manager{logger: logger}
}

// Register appends passes.
func (m *Manager) Register(p ...Pass) {
	m.passes = append(m.passes, p...)
}

// Names returns the registered pass names in order.
func (m *Manager) Names() []string {
	names := make([]string, len(m.passes))
	for i, p := range m.passes {
		names[i] = p.Name()
	}
	return names
}

// Run applies every pass to g, stopping at the first error.
func (m *Manager) Run(g *ir.Graph) (bool, error) {
	changed := false
	for _, p := range m.passes {
		c, err := p.Run(g)
		if err != nil {
			return changed, fmt.Errorf("pass %s: %w", p.Name(), err)
		}
		m.logger.V(1).Info("Ran pass", "pass", p.Name(), "graph", g.Name, "changed", c)
		changed = changed || c
	}
	return changed, nil
}

// Cleanup returns the structural passes, in the order they must run.
func Cleanup() []Pass {
	return []Pass{
		UnusedRemover{},
		EmbeddingSegmentFusion{},
		BlockLSTMReplacer{},
		GRUBlockCellReplacer{},
		ConstToResultRemover{},
	}
}

// Layout returns the passes that require a fully translated graph.
func Layout() []Pass {
	return []Pass{
		TransposeSinking{},
		ReverseShapeAndTypeInfer{},
	}
}

// replacePending splices outputs of a new node in place of selected outputs
// of a pending node and drops the pending node once nothing reads it.
func replacePending(g *ir.Graph, pending *ir.Node, mapping map[int]ir.Output) {
	for from, to := range mapping {
		pending.Output(from).Replace(to)
	}
	if !pending.HasConsumers() {
		pending.Detach()
		g.RemoveSink(pending)
	}
}

// consumedOnly reports whether n has consumers and only the listed outputs
// have them. A pending node nobody reads stays a sink for the scan to see.
func consumedOnly(n *ir.Node, allowed ...int) bool {
	if !n.HasConsumers() {
		return false
	}
	for i := 0; i < n.NumOutputs(); i++ {
		if len(n.Output(i).Consumers()) == 0 {
			continue
		}
		ok := false
		for _, a := range allowed {
			if a == i {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}
