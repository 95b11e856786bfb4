// Package frontend lowers ONNX computation graphs into the graphlower IR.
//
// A FrontEnd owns a registry of per-operation translators. Converting a
// model walks its graph in topological order and asks the registry for a
// translator for every operation. Operations without a translator, or whose
// translator fails, are kept in the graph as pending nodes carrying the
// original operation and the failure message, so that a partially converted
// graph can still be inspected, transformed and resolved later.
//
// # Entry Points
//
//   - [FrontEnd.Convert]: full conversion; fails unless every operation is resolved
//   - [FrontEnd.ConvertPartially]: best effort; unresolved operations stay pending
//   - [FrontEnd.Decode]: only graph inputs and no-op markers are translated
//   - [FrontEnd.Normalize]: cleanup passes, then layout passes once the graph is
//     fully resolved
//
// # Supported Inputs
//
// [FrontEnd.Load] accepts a path to an .onnx protobuf file, a YAML text graph
// or a packaged model directory (a directory with manifest.yaml whose
// signatures select a model file). An optional second argument names the
// signature. A [GraphIterator] built by the host is accepted as well.
//
// # Example Usage
//
//	fe := frontend.New()
//	defer fe.Close()
//
//	model, err := fe.Load("model.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	graph, err := fe.Convert(model)
//	if errors.Is(err, frontend.ErrUnsupportedOperation) {
//	    // Retry keeping the unsupported operations as pending nodes.
//	    graph, err = fe.ConvertPartially(model)
//	}
//
// # Extensions
//
// Extensions are registered with [FrontEnd.AddExtension]:
//
//   - [NewConversion] / [NewIndexedConversion]: add or override a translator
//   - [NewTransformation]: a graph pass run on the decoded graph before the
//     pending operations are resolved
//   - [NewTelemetry]: receives an event for every unsupported operation type
//   - [NewBundle]: a group of extensions released by [FrontEnd.Close]
//
// Example:
//
//	fe.AddExtension(frontend.NewIndexedConversion("MyRelu",
//	    func(ctx *frontend.NodeContext) ([]frontend.Output, error) {
//	        if err := ctx.RequireInputs(1); err != nil {
//	            return nil, err
//	        }
//	        n := ctx.NewNode("Relu", ctx.Inputs(), 1)
//	        n.Output(0).SetType(ctx.Input(0).ElementType(), ctx.Input(0).Shape())
//	        return []frontend.Output{n.Output(0)}, nil
//	    }))
package frontend

import (
	"github.com/born-ml/graphlower/internal/extension"
	internalfrontend "github.com/born-ml/graphlower/internal/frontend"
	"github.com/born-ml/graphlower/internal/ir"
	"github.com/born-ml/graphlower/internal/ops"
	"github.com/born-ml/graphlower/internal/passes"
	"github.com/born-ml/graphlower/internal/source"
	"github.com/born-ml/graphlower/internal/telemetry"
	"github.com/born-ml/graphlower/internal/translate"
)

// FrontEnd converts source models. Create one with [New].
type FrontEnd = internalfrontend.FrontEnd

// Option configures a FrontEnd.
type Option = internalfrontend.Option

// InputModel is a loaded source model.
type InputModel = internalfrontend.InputModel

// New creates a frontend holding the default translators.
//
// Example:
//
//	fe := frontend.New(frontend.WithLogger(logger))
func New(opts ...Option) *FrontEnd {
	return internalfrontend.New(opts...)
}

// WithLogger sets the logger used for conversion diagnostics.
var WithLogger = internalfrontend.WithLogger

// WithRegistry replaces the default translator set.
var WithRegistry = internalfrontend.WithRegistry

// WithTelemetry sets the initial telemetry sink.
var WithTelemetry = internalfrontend.WithTelemetry

// IR types.
type (
	// Graph is a target IR graph.
	Graph = ir.Graph
	// Node is an IR operation. Pending nodes wrap an untranslated source operation.
	Node = ir.Node
	// Output is one output port of a node.
	Output = ir.Output
	// ElementType is the element type of a port.
	ElementType = ir.ElementType
	// Shape is a port shape; nil means the rank is unknown.
	Shape = ir.Shape
)

// Source graph access.
type (
	// GraphIterator enumerates the operations of a source graph.
	GraphIterator = source.GraphIterator
	// Decoder is a read-only view over one source operation.
	Decoder = source.Decoder
)

// Translation API.
type (
	// Registry maps operation types to translators.
	Registry = translate.Registry
	// NodeContext is handed to translators.
	NodeContext = translate.NodeContext
	// Translator converts one operation into named outputs.
	Translator = translate.Translator
	// Indexed converts one operation into positional outputs.
	Indexed = translate.Indexed
	// NamedOutputs are translator results paired with output names.
	NamedOutputs = translate.NamedOutputs
	// Report lists the unresolved operations of a graph.
	Report = translate.Report
	// ConversionError carries the error kind and the offending operation type.
	ConversionError = translate.ConversionError
)

// Error kinds. Match them with errors.Is.
var (
	ErrUnsupportedOperation = translate.ErrUnsupportedOperation
	ErrOperationConversion  = translate.ErrOperationConversion
	ErrInputModel           = translate.ErrInputModel
	ErrInvalidConfiguration = translate.ErrInvalidConfiguration
)

// DefaultRegistry returns a fresh registry holding the built-in translators.
func DefaultRegistry() *Registry {
	return ops.NewRegistry()
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return translate.NewRegistry()
}

// Scan reports the unresolved operations of g, including nested bodies.
func Scan(g *Graph) Report {
	return translate.Scan(g)
}

// Extensions.
type (
	// Pass is a graph transformation.
	Pass = passes.Pass
	// PassFunc adapts a function to Pass.
	PassFunc = passes.Func
	// TelemetrySink receives telemetry events.
	TelemetrySink = telemetry.Sink
	// TelemetryFunc adapts a function to TelemetrySink.
	TelemetryFunc = telemetry.SinkFunc
	// Bundle groups extensions and releases them on Close.
	Bundle = extension.Bundle
)

// NewConversion registers a translator producing named outputs.
func NewConversion(opType string, t Translator) *extension.Conversion {
	return extension.NewConversion(opType, t)
}

// NewIndexedConversion registers a translator producing positional outputs.
func NewIndexedConversion(opType string, fn Indexed) *extension.Conversion {
	return extension.NewIndexedConversion(opType, fn)
}

// NewTransformation wraps a pass run on decoded graphs.
func NewTransformation(p Pass) *extension.Transformation {
	return extension.NewTransformation(p)
}

// NewTelemetry wraps a telemetry sink.
func NewTelemetry(sink TelemetrySink) *extension.Telemetry {
	return extension.NewTelemetry(sink)
}

// NewBundle groups extensions under a name.
func NewBundle(name string, exts ...any) *Bundle {
	return extension.NewBundle(name, exts...)
}
