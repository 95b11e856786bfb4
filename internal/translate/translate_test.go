package translate_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/graphlower/internal/ir"
	"github.com/born-ml/graphlower/internal/onnx"
	"github.com/born-ml/graphlower/internal/source"
	"github.com/born-ml/graphlower/internal/translate"
)

func decoder(op, name string, inputs, outputs []string, attrs ...onnx.AttributeProto) source.Decoder {
	return source.NewDecoder(&onnx.NodeProto{
		Name:       name,
		OpType:     op,
		Inputs:     inputs,
		Outputs:    outputs,
		Attributes: attrs,
	})
}

func graphAttr(name string, g *onnx.GraphProto) onnx.AttributeProto {
	return onnx.AttributeProto{Name: name, Type: onnx.AttributeProtoGraph, G: g}
}

func translateInput(ctx *translate.NodeContext) ([]ir.Output, error) {
	p, err := ctx.AddParameter(ctx.Name(), ir.F32, ir.Shape{2})
	if err != nil {
		return nil, err
	}
	return []ir.Output{p.Output(0)}, nil
}

func unaryAs(typ string) translate.Indexed {
	return func(ctx *translate.NodeContext) ([]ir.Output, error) {
		if err := ctx.RequireInputs(1); err != nil {
			return nil, err
		}
		x := ctx.Input(0)
		n := ctx.NewNode(typ, []ir.Output{x}, 1)
		n.Output(0).SetType(x.ElementType(), x.Shape().Clone())
		return []ir.Output{n.Output(0)}, nil
	}
}

func translateSquare(ctx *translate.NodeContext) ([]ir.Output, error) {
	if err := ctx.RequireInputs(1); err != nil {
		return nil, err
	}
	x := ctx.Input(0)
	n := ctx.NewNode("Multiply", []ir.Output{x, x}, 1)
	n.Output(0).SetType(x.ElementType(), x.Shape().Clone())
	return []ir.Output{n.Output(0)}, nil
}

// translateCall wraps the graph of its "body" attribute into one composite node.
func translateCall(ctx *translate.NodeContext) ([]ir.Output, error) {
	body, err := ctx.TranslateBody("body")
	if err != nil {
		return nil, err
	}
	n := ctx.NewNode("Call", body.Captured, 1)
	n.Bodies = []*ir.Graph{body.Graph}
	if len(body.Graph.Results) > 0 {
		r := body.Graph.Results[0].Output(0)
		n.Output(0).SetType(r.ElementType(), r.Shape())
	}
	return []ir.Output{n.Output(0)}, nil
}

func baseRegistry() *translate.Registry {
	r := translate.NewRegistry()
	r.RegisterIndexed("Input", translateInput)
	r.RegisterIndexed("Square", translateSquare)
	r.RegisterIndexed("Neg", unaryAs("Negative"))
	r.RegisterIndexed("Call", translateCall)
	r.RegisterIndexed("Fail", func(ctx *translate.NodeContext) ([]ir.Output, error) {
		return nil, ctx.Errorf("cannot lower %s", ctx.Name())
	})
	return r
}

// squareGraph is {A: Input} -> {B: Square(A)} -> output b.
func squareGraph() source.GraphIterator {
	return source.NewGraph("square", []source.Decoder{
		decoder("Input", "a", nil, []string{"a"}),
		decoder("Square", "b", []string{"a"}, []string{"b"}),
	}, []string{"a"}, []string{"b"})
}

func TestRegistry(t *testing.T) {
	r := translate.NewRegistry()
	assert.Zero(t, r.Len())

	first := func(*translate.NodeContext) (translate.NamedOutputs, error) { return nil, errors.New("first") }
	second := func(*translate.NodeContext) (translate.NamedOutputs, error) { return nil, errors.New("second") }
	r.Register("Op", first)
	r.Register("Op", second)
	r.RegisterIndexed("Another", translateSquare)

	tr, ok := r.Lookup("Op")
	require.True(t, ok)
	_, err := tr(nil)
	assert.EqualError(t, err, "second")

	_, ok = r.Lookup("Missing")
	assert.False(t, ok)
	assert.Equal(t, []string{"Another", "Op"}, r.SupportedOps())

	clone := r.Clone()
	clone.Register("CloneOnly", first)
	r.Register("OriginalOnly", first)
	_, ok = r.Lookup("CloneOnly")
	assert.False(t, ok)
	_, ok = clone.Lookup("OriginalOnly")
	assert.False(t, ok)

	restricted, err := r.Restrict("Op")
	require.NoError(t, err)
	assert.Equal(t, []string{"Op"}, restricted.SupportedOps())

	_, err = r.Restrict("Op", "Missing")
	assert.ErrorIs(t, err, translate.ErrOperationConversion)
}

func TestSession_EndToEnd(t *testing.T) {
	g, err := translate.NewSession(baseRegistry()).Translate(squareGraph())
	require.NoError(t, err)

	require.Len(t, g.Parameters, 1)
	require.Len(t, g.Results, 1)
	param := g.Parameters[0]

	mul := g.Results[0].Input(0).Node
	assert.Equal(t, "Multiply", mul.Type)
	assert.Same(t, param, mul.Input(0).Node)
	assert.Same(t, param, mul.Input(1).Node)
	assert.Equal(t, []string{"b"}, mul.Output(0).Names())
	assert.Equal(t, ir.F32, g.Results[0].Output(0).ElementType())

	var types []string
	for _, n := range g.OrderedOps() {
		types = append(types, n.Type)
	}
	assert.Equal(t, []string{"Parameter", "Multiply", "Result"}, types)
	assert.True(t, translate.Scan(g).Empty())
}

func TestSession_MissingTranslatorKeepsPending(t *testing.T) {
	reg, err := baseRegistry().Restrict("Input")
	require.NoError(t, err)

	g, err := translate.NewSession(reg).Translate(squareGraph())
	require.NoError(t, err)

	pending := g.Results[0].Input(0).Node
	require.True(t, pending.IsPending())
	assert.Equal(t, "Square", pending.OpType())
	assert.Empty(t, pending.Pending.Failure)
	assert.Same(t, g.Parameters[0], pending.Input(0).Node)

	report := translate.Scan(g)
	assert.Equal(t, []string{"Square"}, report.Unsupported)
	assert.Empty(t, report.Failures)
}

func TestSession_SnapshotsRegistry(t *testing.T) {
	reg, err := baseRegistry().Restrict("Input")
	require.NoError(t, err)

	s := translate.NewSession(reg)
	reg.RegisterIndexed("Square", translateSquare)

	g, err := s.Translate(squareGraph())
	require.NoError(t, err)
	assert.Equal(t, []string{"Square"}, translate.Scan(g).Unsupported)

	other := translate.NewSession(reg)
	assert.NotEmpty(t, s.ID())
	assert.NotEqual(t, s.ID(), other.ID())
}

func TestSession_FailuresAreRecorded(t *testing.T) {
	reg := baseRegistry()
	reg.RegisterIndexed("Boom", func(*translate.NodeContext) ([]ir.Output, error) {
		panic("boom")
	})
	reg.RegisterIndexed("Empty", func(*translate.NodeContext) ([]ir.Output, error) {
		return nil, nil
	})

	it := source.NewGraph("g", []source.Decoder{
		decoder("Input", "a", nil, []string{"a"}),
		decoder("Fail", "f1", []string{"a"}, []string{"o1"}),
		decoder("Fail", "f2", []string{"a"}, []string{"o2"}),
		decoder("Mystery", "m1", []string{"a"}, []string{"o3"}),
		decoder("Boom", "p", []string{"a"}, []string{"o4"}),
		decoder("Empty", "e", []string{"a"}, []string{"o5"}),
		decoder("Mystery", "m2", []string{"a"}, []string{"unused"}),
	}, []string{"a"}, []string{"o1", "o2", "o3", "o4", "o5"})

	g, err := translate.NewSession(reg).Translate(it)
	require.NoError(t, err)

	got := translate.Scan(g)
	want := translate.Report{
		Unsupported: []string{"Mystery"},
		Failures: []translate.Failure{
			{OpType: "Fail", Message: "cannot lower f1"},
			{OpType: "Boom", Message: "translator panicked: boom"},
			{OpType: "Empty", Message: "translator produced 0 outputs for 1 declared"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Scan() mismatch (-want +got):\n%s", diff)
	}

	// The scanner is a pure query.
	if diff := cmp.Diff(got, translate.Scan(g)); diff != "" {
		t.Errorf("second Scan() differs (-first +second):\n%s", diff)
	}

	assert.True(t, got.Failed("Fail"))
	assert.False(t, got.Failed("Mystery"))
	assert.Equal(t, "cannot lower f1", got.FailureMap()["Fail"])

	// The unconsumed placeholder stays reachable through the sinks.
	require.Len(t, g.Sinks, 1)
	assert.Equal(t, "m2", g.Sinks[0].Name)
}

func TestSession_StructuralErrors(t *testing.T) {
	missingInput := source.NewGraph("g", []source.Decoder{
		decoder("Neg", "n", []string{"ghost"}, []string{"y"}),
	}, nil, []string{"y"})
	_, err := translate.NewSession(baseRegistry()).Translate(missingInput)
	assert.ErrorIs(t, err, translate.ErrInputModel)

	missingOutput := source.NewGraph("g", []source.Decoder{
		decoder("Input", "a", nil, []string{"a"}),
	}, []string{"a"}, []string{"nowhere"})
	_, err = translate.NewSession(baseRegistry()).Translate(missingOutput)
	assert.ErrorIs(t, err, translate.ErrInputModel)
	assert.Contains(t, err.Error(), `output "nowhere"`)
}

func TestSession_NamedOutputs(t *testing.T) {
	reg := baseRegistry()
	reg.Register("Alias", func(ctx *translate.NodeContext) (translate.NamedOutputs, error) {
		return translate.NamedOutputs{{Name: "alias", Value: ctx.Input(0)}}, nil
	})

	it := source.NewGraph("g", []source.Decoder{
		decoder("Input", "a", nil, []string{"a"}),
		decoder("Alias", "al", []string{"a"}, []string{"b"}),
		decoder("Neg", "n", []string{"alias"}, []string{"y"}),
	}, []string{"a"}, []string{"y"})

	g, err := translate.NewSession(reg).Translate(it)
	require.NoError(t, err)

	neg := g.Results[0].Input(0).Node
	assert.Same(t, g.Parameters[0], neg.Input(0).Node)
	assert.ElementsMatch(t, []string{"a", "b", "alias"}, g.Parameters[0].Output(0).Names())
}

// callGraph is {a: Input} -> {c: Call { nb = Neg(a); inner = Mystery(nb) }}.
func callGraph(bodyOp string) source.GraphIterator {
	body := &onnx.GraphProto{
		Name: "body",
		Nodes: []onnx.NodeProto{
			{Name: "neg", OpType: "Neg", Inputs: []string{"a"}, Outputs: []string{"nb"}},
			{Name: "inner", OpType: bodyOp, Inputs: []string{"nb"}, Outputs: []string{"r"}},
		},
		Outputs: []onnx.ValueInfoProto{{Name: "r"}},
	}
	return source.NewGraph("outer", []source.Decoder{
		decoder("Input", "a", nil, []string{"a"}),
		decoder("Call", "c", nil, []string{"y"}, graphAttr("body", body)),
	}, []string{"a"}, []string{"y"})
}

func TestSession_NestedBodies(t *testing.T) {
	g, err := translate.NewSession(baseRegistry()).Translate(callGraph("Mystery"))
	require.NoError(t, err)

	call := g.Results[0].Input(0).Node
	require.Equal(t, "Call", call.Type)
	require.Len(t, call.Bodies, 1)
	assert.Same(t, g.Parameters[0], call.Input(0).Node)

	body := call.Bodies[0]
	require.Len(t, body.Parameters, 1)
	assert.Equal(t, "a", body.Parameters[0].Name)
	assert.Equal(t, ir.Shape{2}, body.Parameters[0].Output(0).Shape())

	// Unresolved operations of nested bodies are reported.
	assert.Equal(t, []string{"Mystery"}, translate.Scan(g).Unsupported)
	assert.False(t, translate.Scan(body).Empty())
}

func TestSession_PendingCompositeCarriesCaptures(t *testing.T) {
	reg, err := baseRegistry().Restrict("Input", "Neg")
	require.NoError(t, err)

	g, err := translate.NewSession(reg).Translate(callGraph("Neg"))
	require.NoError(t, err)

	pending := g.Results[0].Input(0).Node
	require.True(t, pending.IsPending())
	assert.Equal(t, []string{"a"}, pending.Pending.Captured)
	require.Equal(t, 1, pending.NumInputs())
	assert.Same(t, g.Parameters[0], pending.Input(0).Node)

	require.NoError(t, translate.ResolveAll(g, baseRegistry()))
	assert.True(t, translate.Scan(g).Empty())

	call := g.Results[0].Input(0).Node
	assert.Equal(t, "Call", call.Type)
	assert.Same(t, g.Parameters[0], call.Input(0).Node)
	assert.Equal(t, 2, call.Bodies[0].CountType("Negative"))
	assert.Equal(t, ir.F32, g.Results[0].Output(0).ElementType())
}

func TestResolve_RewiresConsumers(t *testing.T) {
	reg, err := baseRegistry().Restrict("Input")
	require.NoError(t, err)
	g, err := translate.NewSession(reg).Translate(squareGraph())
	require.NoError(t, err)

	pending := g.Results[0].Input(0).Node
	require.NoError(t, translate.Resolve(pending, baseRegistry()))

	mul := g.Results[0].Input(0).Node
	assert.Equal(t, "Multiply", mul.Type)
	assert.False(t, pending.HasConsumers())
	assert.False(t, pending.Input(0).Valid())
	assert.False(t, g.Parameters[0].Output(0).Consumers()[0].Node.IsPending())
}

func TestResolve_TruncatesToShorterOutputList(t *testing.T) {
	g := ir.New("g")
	x := g.AddParameter("x", ir.F32, ir.Shape{4})
	pending := ir.NewPending(decoder("Split2", "s", []string{"x"}, []string{"lo", "hi"}), []ir.Output{x.Output(0)}, "")
	first := ir.NewNode("Relu", []ir.Output{pending.Output(0)}, 1)
	second := ir.NewNode("Relu", []ir.Output{pending.Output(1)}, 1)

	reg := translate.NewRegistry()
	reg.RegisterIndexed("Split2", unaryAs("Half"))
	require.NoError(t, translate.Resolve(pending, reg))

	assert.Equal(t, "Half", first.Input(0).Node.Type)
	// The second output has no counterpart: its consumer stays on the placeholder.
	assert.Same(t, pending, second.Input(0).Node)
	assert.True(t, pending.HasConsumers())
	assert.Same(t, x, pending.Input(0).Node)
}

func TestResolve_Errors(t *testing.T) {
	g := ir.New("g")
	x := g.AddParameter("x", ir.F32, nil)
	pending := ir.NewPending(decoder("Strange", "s", []string{"x"}, []string{"y"}), []ir.Output{x.Output(0)}, "")

	err := translate.Resolve(pending, translate.NewRegistry())
	assert.ErrorIs(t, err, translate.ErrOperationConversion)
	assert.Contains(t, err.Error(), "No translator found for Strange node.")

	reg := translate.NewRegistry()
	reg.RegisterIndexed("Strange", func(*translate.NodeContext) ([]ir.Output, error) {
		return nil, errors.New("bad attribute")
	})
	err = translate.Resolve(pending, reg)
	assert.ErrorIs(t, err, translate.ErrOperationConversion)
	assert.Equal(t, "conversion is failed for Strange operation with a message:\nbad attribute", err.Error())

	var ce *translate.ConversionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "Strange", ce.OpType)

	// Non-placeholders are left alone.
	assert.NoError(t, translate.Resolve(x, reg))
}

func TestResolveAll_StopsOnFirstFailure(t *testing.T) {
	reg, err := baseRegistry().Restrict("Input")
	require.NoError(t, err)
	g, err := translate.NewSession(reg).Translate(squareGraph())
	require.NoError(t, err)

	err = translate.ResolveAll(g, reg)
	assert.ErrorIs(t, err, translate.ErrOperationConversion)
	assert.Equal(t, []string{"Square"}, translate.Scan(g).Unsupported)
}

func TestResolveAll_ReplacesSinks(t *testing.T) {
	reg, err := baseRegistry().Restrict("Input")
	require.NoError(t, err)

	it := source.NewGraph("g", []source.Decoder{
		decoder("Input", "a", nil, []string{"a"}),
		decoder("Neg", "dead", []string{"a"}, []string{"unused"}),
		decoder("Square", "b", []string{"a"}, []string{"b"}),
	}, []string{"a"}, []string{"b"})

	g, err := translate.NewSession(reg).Translate(it)
	require.NoError(t, err)
	require.Len(t, g.Sinks, 1)

	require.NoError(t, translate.ResolveAll(g, baseRegistry()))
	assert.Empty(t, g.Sinks)
	assert.True(t, translate.Scan(g).Empty())
	assert.Equal(t, ir.Shape{2}, g.Results[0].Output(0).Shape())
}

func TestConversionError(t *testing.T) {
	err := &translate.ConversionError{Kind: translate.ErrUnsupportedOperation, OpType: "X"}
	assert.ErrorIs(t, err, translate.ErrUnsupportedOperation)
	assert.Contains(t, err.Error(), "X")

	err.Details = "custom"
	assert.Equal(t, "custom", err.Error())
	assert.Equal(t, "No translator found for X node.", translate.NoTranslatorMessage("X"))
}

func TestNodeContext_Attributes(t *testing.T) {
	dec := decoder("Op", "n", nil, []string{"y"},
		onnx.AttributeProto{Name: "i", Type: onnx.AttributeProtoInt, I: 3},
		onnx.AttributeProto{Name: "f", Type: onnx.AttributeProtoFloat, F: 0.5},
		onnx.AttributeProto{Name: "s", Type: onnx.AttributeProtoString, S: []byte("txt")},
		onnx.AttributeProto{Name: "is", Type: onnx.AttributeProtoInts, Ints: []int64{1, 2}},
	)
	ctx := translate.NewNodeContext(dec, nil, nil, translate.NewRegistry())

	assert.Equal(t, "Op", ctx.OpType())
	assert.True(t, ctx.HasAttr("i"))
	assert.Equal(t, int64(3), ctx.AttrInt("i", 0))
	assert.Equal(t, int64(7), ctx.AttrInt("missing", 7))
	assert.Equal(t, float32(0.5), ctx.AttrFloat("f", 0))
	assert.Equal(t, "txt", ctx.AttrString("s", ""))
	assert.Equal(t, []int64{1, 2}, ctx.AttrInts("is"))
	_, ok := ctx.AttrTensor("i")
	assert.False(t, ok)

	assert.False(t, ctx.Input(0).Valid())
	assert.ErrorIs(t, ctx.RequireInputs(1), translate.ErrOperationConversion)

	_, err := ctx.AddParameter("p", ir.F32, nil)
	assert.ErrorIs(t, err, translate.ErrOperationConversion)

	_, err = ctx.TranslateBody("i")
	assert.ErrorIs(t, err, translate.ErrOperationConversion)
}
