// Package rewrite applies user rules to the pending nodes of a decoded
// graph.
//
// A rule matches with a CEL expression over the variable node, a map with
// the keys op, name, domain, inputs, outputs and attrs. A matching node is
// either renamed to another operation type, so that an existing translator
// picks it up, or bypassed, so that its consumers read its inputs directly.
package rewrite

import (
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/google/cel-go/cel"

	"github.com/born-ml/graphlower/internal/ir"
	"github.com/born-ml/graphlower/internal/onnx"
	"github.com/born-ml/graphlower/internal/source"
)

// Errors returned while compiling rules.
var (
	ErrInvalidRule = errors.New("invalid rewrite rule")
)

// Rule is one rewrite rule.
type Rule struct {
	Name   string `yaml:"name"`
	Match  string `yaml:"match"`
	Rename string `yaml:"rename,omitempty"`
	Bypass bool   `yaml:"bypass,omitempty"`
}

type compiledRule struct {
	Rule
	program cel.Program
}

// Rewriter is a pass applying rules in order; the first matching rule wins.
type Rewriter struct {
	rules  []compiledRule
	logger logr.Logger
}

// New compiles rules.
func New(rules []Rule, logger logr.Logger) (*Rewriter, error) {
	env, err := cel.NewEnv(cel.Variable("node", cel.MapType(cel.StringType, cel.DynType)))
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	r := &Rewriter{logger: logger}
	for i, rule := range rules {
		if rule.Name == "" {
			rule.Name = fmt.Sprintf("rule-%d", i)
		}
		if (rule.Rename == "") == !rule.Bypass {
			return nil, fmt.Errorf("%w %s: exactly one of rename and bypass must be set", ErrInvalidRule, rule.Name)
		}
		ast, issues := env.Compile(rule.Match)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("%w %s: compile error: %w", ErrInvalidRule, rule.Name, issues.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("%w %s: program error: %w", ErrInvalidRule, rule.Name, err)
		}
		r.rules = append(r.rules, compiledRule{Rule: rule, program: prg})
	}
	return r, nil
}

// Name implements passes.Pass.
func (r *Rewriter) Name() string { return "Rewrite" }

// Run implements passes.Pass. Nested bodies are rewritten too.
func (r *Rewriter) Run(g *ir.Graph) (bool, error) {
	changed := false
	for _, n := range g.OrderedOps() {
		if n.IsPending() {
			c, err := r.apply(g, n)
			if err != nil {
				return changed, err
			}
			changed = changed || c
		}
		for _, body := range n.Bodies {
			c, err := r.Run(body)
			if err != nil {
				return changed, err
			}
			changed = changed || c
		}
	}
	return changed, nil
}

func (r *Rewriter) apply(g *ir.Graph, n *ir.Node) (bool, error) {
	vars := map[string]any{"node": describe(n.Pending.Decoder)}
	for _, rule := range r.rules {
		out, _, err := rule.program.Eval(vars)
		if err != nil {
			return false, fmt.Errorf("rule %s on %s: %w", rule.Name, n, err)
		}
		matched, ok := out.Value().(bool)
		if !ok {
			return false, fmt.Errorf("rule %s: expression %q did not return bool", rule.Name, rule.Match)
		}
		if !matched {
			continue
		}

		r.logger.V(1).Info("Rewriting node", "rule", rule.Name, "node", n.String())
		if rule.Bypass {
			bypass(g, n)
		} else {
			n.Pending.Decoder = renamed{Decoder: n.Pending.Decoder, opType: rule.Rename}
		}
		return true, nil
	}
	return false, nil
}

// bypass connects the consumers of output i to input i and drops the node.
// Outputs without a matching input keep their consumers.
func bypass(g *ir.Graph, n *ir.Node) {
	for i := 0; i < n.NumOutputs() && i < n.NumInputs(); i++ {
		if in := n.Input(i); in.Valid() {
			n.Output(i).Replace(in)
		}
	}
	if !n.HasConsumers() {
		n.Detach()
		g.RemoveSink(n)
	}
}

// renamed presents a decoder under another operation type.
type renamed struct {
	source.Decoder
	opType string
}

func (d renamed) OpType() string { return d.opType }

// describe builds the CEL view of a source node.
func describe(d source.Decoder) map[string]any {
	attrs := make(map[string]any)
	for _, name := range d.AttrNames() {
		if a, ok := d.Attr(name); ok {
			attrs[name] = attrValue(a)
		}
	}
	return map[string]any{
		"op":      d.OpType(),
		"name":    d.Name(),
		"domain":  d.Domain(),
		"inputs":  toList(d.Inputs()),
		"outputs": toList(d.Outputs()),
		"attrs":   attrs,
	}
}

func attrValue(a *onnx.AttributeProto) any {
	switch a.Type {
	case onnx.AttributeProtoFloat:
		return float64(a.F)
	case onnx.AttributeProtoInt:
		return a.I
	case onnx.AttributeProtoString:
		return string(a.S)
	case onnx.AttributeProtoFloats:
		out := make([]any, len(a.Floats))
		for i, f := range a.Floats {
			out[i] = float64(f)
		}
		return out
	case onnx.AttributeProtoInts:
		out := make([]any, len(a.Ints))
		for i, v := range a.Ints {
			out[i] = v
		}
		return out
	case onnx.AttributeProtoStrings:
		out := make([]any, len(a.Strings))
		for i, s := range a.Strings {
			out[i] = string(s)
		}
		return out
	default:
		return nil
	}
}

func toList(names []string) []any {
	out := make([]any, len(names))
	for i, n := range names {
		out[i] = n
	}
	return out
}
