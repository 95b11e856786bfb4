package translate

import (
	"errors"
	"slices"

	"github.com/born-ml/graphlower/internal/ir"
)

// Resolve translates a pending node with reg and splices the result into
// the graph in place of it.
//
// Consumers of the node's k-th output move to the translator's k-th output.
// When the translator yields fewer outputs than the node has, the remaining
// outputs keep their consumers on the pending node.
func Resolve(node *ir.Node, reg *Registry) error {
	_, err := resolve(nil, node, reg)
	return err
}

// ResolveAll resolves every pending node of g, then of every nested body,
// stopping at the first node that cannot be resolved. Result port types are
// refreshed afterwards.
func ResolveAll(g *ir.Graph, reg *Registry) error {
	for _, n := range g.OrderedOps() {
		if !n.IsPending() {
			continue
		}
		wasSink := slices.Contains(g.Sinks, n)
		nodes, err := resolve(g, n, reg)
		if err != nil {
			return err
		}
		if wasSink && !n.HasConsumers() {
			g.RemoveSink(n)
			for _, r := range nodes {
				if !r.HasConsumers() && (r.IsPending() || len(r.Bodies) > 0) {
					g.AddSink(r)
				}
			}
		}
	}
	for _, n := range g.OrderedOps() {
		for _, body := range n.Bodies {
			if err := ResolveAll(body, reg); err != nil {
				return err
			}
		}
	}
	g.RefreshResults()
	return nil
}

func resolve(g *ir.Graph, node *ir.Node, reg *Registry) ([]*ir.Node, error) {
	if !node.IsPending() {
		return nil, nil
	}
	dec := node.Pending.Decoder
	op := dec.OpType()

	t, ok := reg.Lookup(op)
	if !ok {
		return nil, newError(ErrOperationConversion, op, "%s", NoTranslatorMessage(op))
	}

	all := node.Inputs()
	n := min(len(dec.Inputs()), len(all))
	ctx := &NodeContext{
		decoder: dec,
		inputs:  all[:n],
		graph:   g,
		session: newBareSession(reg),
	}
	for i, name := range node.Pending.Captured {
		if n+i >= len(all) {
			break
		}
		if ctx.captures == nil {
			ctx.captures = make(map[string]ir.Output)
		}
		ctx.captures[name] = all[n+i]
	}

	outs, err := invoke(t, ctx)
	if err != nil {
		var ce *ConversionError
		if errors.As(err, &ce) && ce.Kind == ErrOperationConversion {
			return nil, ce
		}
		return nil, newError(ErrOperationConversion, op,
			"conversion is failed for %s operation with a message:\n%s", op, err)
	}

	k := min(node.NumOutputs(), len(outs))
	var nodes []*ir.Node
	for i := 0; i < k; i++ {
		v := outs[i].Value
		if !v.Valid() {
			continue
		}
		node.Output(i).Replace(v)
		if outs[i].Name != "" {
			v.AddName(outs[i].Name)
		}
		if !slices.Contains(nodes, v.Node) {
			nodes = append(nodes, v.Node)
		}
	}
	if !node.HasConsumers() {
		node.Detach()
	}
	return nodes, nil
}
