package translate

import (
	"slices"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/born-ml/graphlower/internal/ir"
	"github.com/born-ml/graphlower/internal/source"
)

// Session translates one source graph against a snapshot of a registry.
//
// A session never stops on an operation it cannot translate. Such nodes are
// emitted as pending nodes; only a structurally broken source graph makes
// Translate fail.
type Session struct {
	id       string
	model    string
	registry *Registry
	logger   logr.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l logr.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithModelName tags log records with the model being translated.
func WithModelName(name string) Option {
	return func(s *Session) {
		s.model = name
	}
}

// NewSession creates a session over a private copy of reg.
func NewSession(reg *Registry, opts ...Option) *Session {
	s := &Session{
		id:       uuid.NewString(),
		registry: reg.Clone(),
		logger:   logr.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithValues("session", s.id)
	if s.model != "" {
		s.logger = s.logger.WithValues("model", s.model)
	}
	return s
}

func newBareSession(reg *Registry) *Session {
	return &Session{registry: reg, logger: logr.Discard()}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Translate builds the target graph for it.
func (s *Session) Translate(it source.GraphIterator) (*ir.Graph, error) {
	s.logger.V(1).Info("Translating graph", "graph", it.Name(), "nodes", len(it.Nodes()))
	g, _, err := s.translateGraph(it, nil)
	if err != nil {
		return nil, err
	}
	s.logger.V(1).Info("Translated graph", "graph", it.Name(),
		"pending", g.CountType(ir.TypePending))
	return g, nil
}

// scope binds tensor names of one graph level to target values.
type scope struct {
	graph  *ir.Graph
	values map[string]ir.Output

	// outer holds values of enclosing graphs visible to this one. A value is
	// turned into a parameter of graph the first time it is read.
	outer    map[string]ir.Output
	captured []ir.Output
}

func (sc *scope) lookup(name string) (ir.Output, bool) {
	if v, ok := sc.values[name]; ok {
		return v, true
	}
	v, ok := sc.outer[name]
	if !ok {
		return ir.Output{}, false
	}
	p := sc.graph.AddParameter(name, v.ElementType(), v.Shape().Clone())
	sc.values[name] = p.Output(0)
	sc.captured = append(sc.captured, v)
	return p.Output(0), true
}

// capturesOf resolves the outer names read by the nested graphs of dec.
func (sc *scope) capturesOf(dec source.Decoder) ([]string, map[string]ir.Output) {
	var names []string
	var values map[string]ir.Output
	for _, name := range source.CapturedNames(dec) {
		v, ok := sc.lookup(name)
		if !ok {
			continue
		}
		if values == nil {
			values = make(map[string]ir.Output)
		}
		names = append(names, name)
		values[name] = v
	}
	return names, values
}

func (s *Session) translateGraph(it source.GraphIterator, outer map[string]ir.Output) (*ir.Graph, []ir.Output, error) {
	sc := &scope{
		graph:  ir.New(it.Name()),
		values: make(map[string]ir.Output),
		outer:  outer,
	}

	var produced []*ir.Node
	for _, dec := range it.Nodes() {
		nodes, err := s.translateNode(sc, dec)
		if err != nil {
			return nil, nil, err
		}
		produced = append(produced, nodes...)
	}

	for _, name := range it.Outputs() {
		v, ok := sc.lookup(name)
		if !ok {
			return nil, nil, newError(ErrInputModel, "",
				"graph %q: output %q is not produced by any node", it.Name(), name)
		}
		sc.graph.AddResult(v, name)
	}

	// Unconsumed placeholders and composite nodes must stay visible to
	// Scan; other dead nodes are dropped.
	for _, n := range produced {
		if n.HasConsumers() || slices.Contains(sc.graph.Sinks, n) {
			continue
		}
		if n.IsPending() || len(n.Bodies) > 0 {
			sc.graph.AddSink(n)
		}
	}
	return sc.graph, sc.captured, nil
}

func (s *Session) translateNode(sc *scope, dec source.Decoder) ([]*ir.Node, error) {
	inputs := make([]ir.Output, len(dec.Inputs()))
	for i, name := range dec.Inputs() {
		if name == "" {
			continue
		}
		v, ok := sc.lookup(name)
		if !ok {
			return nil, newError(ErrInputModel, dec.OpType(),
				"node %q (%s): input %q is not produced by any node", dec.Name(), dec.OpType(), name)
		}
		inputs[i] = v
	}
	captureNames, captures := sc.capturesOf(dec)

	t, ok := s.registry.Lookup(dec.OpType())
	if !ok {
		s.logger.V(2).Info("No translator, keeping node pending", "op", dec.OpType(), "node", dec.Name())
		return []*ir.Node{s.pending(sc, dec, inputs, captureNames, captures, "")}, nil
	}

	ctx := &NodeContext{
		decoder:  dec,
		inputs:   inputs,
		captures: captures,
		graph:    sc.graph,
		session:  s,
	}
	outs, err := invoke(t, ctx)
	if err == nil {
		err = checkOutputs(ctx, outs)
	}
	if err != nil {
		s.logger.V(1).Info("Translation failed, keeping node pending",
			"op", dec.OpType(), "node", dec.Name(), "error", err.Error())
		return []*ir.Node{s.pending(sc, dec, inputs, captureNames, captures, err.Error())}, nil
	}

	s.logger.V(2).Info("Translated node", "op", dec.OpType(), "node", dec.Name(), "outputs", len(outs))
	return bind(sc, dec, outs), nil
}

func (s *Session) pending(sc *scope, dec source.Decoder, inputs []ir.Output,
	captureNames []string, captures map[string]ir.Output, failure string,
) *ir.Node {
	all := slices.Clone(inputs)
	for _, name := range captureNames {
		all = append(all, captures[name])
	}
	n := ir.NewPending(dec, all, failure)
	n.Pending.Captured = captureNames
	for i, name := range dec.Outputs() {
		if name != "" {
			sc.values[name] = n.Output(i)
		}
	}
	return n
}

func bind(sc *scope, dec source.Decoder, outs NamedOutputs) []*ir.Node {
	names := dec.Outputs()
	nodes := make([]*ir.Node, 0, len(outs))
	for i, o := range outs {
		if !o.Value.Valid() {
			continue
		}
		if i < len(names) && names[i] != "" {
			sc.values[names[i]] = o.Value
			o.Value.AddName(names[i])
		}
		if o.Name != "" {
			sc.values[o.Name] = o.Value
			o.Value.AddName(o.Name)
		}
		if !slices.Contains(nodes, o.Value.Node) {
			nodes = append(nodes, o.Value.Node)
		}
	}
	return nodes
}

// checkOutputs fails when a named output of the source node has no
// translated counterpart.
func checkOutputs(ctx *NodeContext, outs NamedOutputs) error {
	for i, name := range ctx.decoder.Outputs() {
		if name == "" {
			continue
		}
		if i >= len(outs) || !outs[i].Value.Valid() {
			return ctx.Errorf("translator produced %d outputs for %d declared", len(outs), len(ctx.decoder.Outputs()))
		}
	}
	return nil
}

// invoke calls t and turns a panic into a conversion error.
func invoke(t Translator, ctx *NodeContext) (outs NamedOutputs, err error) {
	defer func() {
		if r := recover(); r != nil {
			outs = nil
			err = ctx.Errorf("translator panicked: %v", r)
		}
	}()
	return t(ctx)
}
