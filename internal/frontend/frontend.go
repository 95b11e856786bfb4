package frontend

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"github.com/samber/lo"

	"github.com/born-ml/graphlower/internal/extension"
	"github.com/born-ml/graphlower/internal/ir"
	"github.com/born-ml/graphlower/internal/ops"
	"github.com/born-ml/graphlower/internal/passes"
	"github.com/born-ml/graphlower/internal/source"
	"github.com/born-ml/graphlower/internal/telemetry"
	"github.com/born-ml/graphlower/internal/translate"
)

// TelemetryPrefix is prepended to operation types in telemetry payloads.
const TelemetryPrefix = "onnx_"

// FrontEnd converts source models.
type FrontEnd struct {
	registry *translate.Registry
	logger   logr.Logger

	mu          sync.RWMutex
	telemetry   telemetry.Sink
	transforms  []passes.Pass
	conversions []*extension.Conversion
	bundles     []*extension.Bundle
}

// Option configures a FrontEnd.
type Option func(*FrontEnd)

// WithLogger sets the logger used by the frontend and its sessions.
func WithLogger(l logr.Logger) Option {
	return func(f *FrontEnd) {
		f.logger = l
	}
}

// WithRegistry replaces the default translator set.
func WithRegistry(r *translate.Registry) Option {
	return func(f *FrontEnd) {
		f.registry = r
	}
}

// WithTelemetry sets the initial telemetry sink. Events are delivered
// synchronously; pass a telemetry.Async for sinks that may block.
func WithTelemetry(s telemetry.Sink) Option {
	return func(f *FrontEnd) {
		f.telemetry = s
	}
}

// New creates a frontend with the default translators.
func New(opts ...Option) *FrontEnd {
	f := &FrontEnd{
		logger: logr.Discard(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.registry == nil {
		f.registry = ops.NewRegistry()
	}
	return f
}

// Registry returns the live translator registry.
func (f *FrontEnd) Registry() *translate.Registry {
	return f.registry
}

// Supported reports whether Load would accept the inputs.
func (f *FrontEnd) Supported(inputs ...any) bool {
	in, err := parseInputs(inputs)
	if err != nil {
		return false
	}
	if in.iterator != nil {
		return true
	}
	return source.Detect(in.path) != source.FormatUnknown
}

// Load opens a model. See Supported for the accepted inputs.
func (f *FrontEnd) Load(inputs ...any) (*InputModel, error) {
	in, err := parseInputs(inputs)
	if err != nil {
		return nil, err
	}
	if in.iterator != nil {
		return &InputModel{Model: source.FromIterator(in.iterator)}, nil
	}

	m, err := source.Open(in.path, in.signature)
	if err != nil {
		return nil, inputModelError(err)
	}
	f.logger.V(1).Info("Loaded model", "path", in.path, "format", m.Format.String(), "signature", m.Signature)
	return &InputModel{Model: m}, nil
}

// Convert translates m and fails unless every operation was resolved.
//
// The error lists the first failure message of every failed operation type,
// then names the first operation type without a translator. Before failing,
// every operation type without a translator is reported to telemetry.
func (f *FrontEnd) Convert(m *InputModel) (*ir.Graph, error) {
	g, err := f.ConvertPartially(m)
	if err != nil {
		return nil, err
	}

	report := translate.Scan(g)
	if report.Empty() {
		return g, nil
	}

	var msg strings.Builder
	for _, failure := range report.Failures {
		fmt.Fprintf(&msg, "conversion is failed for %s operation with a message:\n%s\n", failure.OpType, failure.Message)
	}

	for _, op := range report.Unsupported {
		f.sendEvent(telemetry.CategoryErrorCause, TelemetryPrefix+op)
	}

	ce := &translate.ConversionError{Kind: translate.ErrOperationConversion}
	if len(report.Unsupported) > 0 {
		ce.Kind = translate.ErrUnsupportedOperation
		ce.OpType = report.Unsupported[0]
		msg.WriteString(translate.NoTranslatorMessage(report.Unsupported[0]))
	} else {
		ce.OpType = report.Failures[0].OpType
	}
	ce.Details = msg.String()
	return nil, ce
}

// ConvertPartially translates m as far as possible. Unresolved operations
// stay in the graph as pending nodes.
//
// When transformation extensions are registered the model is decoded first,
// the transformations run on the decoded graph and the remaining pending
// nodes are then resolved one by one; any node that cannot be resolved
// fails the call.
func (f *FrontEnd) ConvertPartially(m *InputModel) (*ir.Graph, error) {
	if m == nil || m.Model == nil {
		return nil, invalidConfiguration("no input model")
	}

	if transforms := f.transformations(); len(transforms) > 0 {
		g, err := f.Decode(m)
		if err != nil {
			return nil, err
		}
		mgr := passes.NewManager(f.logger)
		mgr.Register(transforms...)
		if _, err := mgr.Run(g); err != nil {
			return nil, fmt.Errorf("transformation extensions: %w", err)
		}
		if err := f.Resolve(g); err != nil {
			return nil, err
		}
		return g, nil
	}

	session := translate.NewSession(f.registry,
		translate.WithLogger(f.logger), translate.WithModelName(m.Name()))
	g, err := session.Translate(m.Graph)
	if err != nil {
		return nil, err
	}
	if err := f.Normalize(g); err != nil {
		return nil, err
	}
	return g, nil
}

// Decode translates only graph inputs and no-op markers; every other
// operation becomes a pending node.
func (f *FrontEnd) Decode(m *InputModel) (*ir.Graph, error) {
	if m == nil || m.Model == nil {
		return nil, invalidConfiguration("no input model")
	}
	// A custom registry may lack some of the decode translators; the
	// corresponding nodes then simply stay pending.
	reg, err := f.registry.Restrict(lo.Filter(ops.DecodeOps, func(op string, _ int) bool {
		_, ok := f.registry.Lookup(op)
		return ok
	})...)
	if err != nil {
		return nil, err
	}
	session := translate.NewSession(reg,
		translate.WithLogger(f.logger), translate.WithModelName(m.Name()))
	return session.Translate(m.Graph)
}

// Resolve forces every pending node of a decoded graph through the
// registry, then normalizes the graph.
func (f *FrontEnd) Resolve(g *ir.Graph) error {
	if err := translate.ResolveAll(g, f.registry.Clone()); err != nil {
		return err
	}
	return f.Normalize(g)
}

// Normalize runs the cleanup passes and, if the graph is then fully
// resolved, the layout passes.
func (f *FrontEnd) Normalize(g *ir.Graph) error {
	cleanup := passes.NewManager(f.logger)
	cleanup.Register(passes.Cleanup()...)
	if _, err := cleanup.Run(g); err != nil {
		return err
	}

	if report := translate.Scan(g); !report.Empty() {
		f.logger.V(1).Info("Skipping layout passes on unresolved graph",
			"unsupported", report.Unsupported, "failures", len(report.Failures))
		return nil
	}

	layout := passes.NewManager(f.logger)
	layout.Register(passes.Layout()...)
	_, err := layout.Run(g)
	return err
}

// AddExtension registers an extension. Unknown kinds are ignored.
func (f *FrontEnd) AddExtension(ext any) {
	switch e := ext.(type) {
	case *extension.Telemetry:
		f.mu.Lock()
		f.telemetry = e.Sink
		f.mu.Unlock()
	case *extension.Transformation:
		f.mu.Lock()
		f.transforms = append(f.transforms, e.Pass)
		f.mu.Unlock()
	case *extension.Bundle:
		for _, inner := range e.Extensions {
			f.AddExtension(inner)
		}
		f.mu.Lock()
		f.bundles = append(f.bundles, e)
		f.mu.Unlock()
	case *extension.Conversion:
		if e.Translator == nil {
			return
		}
		f.registry.Register(e.OpType, e.Translator)
		f.mu.Lock()
		f.conversions = append(f.conversions, e)
		f.mu.Unlock()
	default:
		f.logger.V(1).Info("Ignoring unknown extension", "type", fmt.Sprintf("%T", ext))
	}
}

// Close releases every bundle added as an extension.
func (f *FrontEnd) Close() error {
	f.mu.Lock()
	bundles := f.bundles
	f.bundles = nil
	f.mu.Unlock()

	var errs []error
	for _, b := range bundles {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("bundle %s: %w", b.Name, err))
		}
	}
	return errors.Join(errs...)
}

// sendEvent delivers one telemetry event. Sink panics are swallowed.
func (f *FrontEnd) sendEvent(category, payload string) {
	f.mu.RLock()
	sink := f.telemetry
	f.mu.RUnlock()
	if sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error(nil, "Telemetry sink panicked", "panic", r)
		}
	}()
	sink.SendEvent(category, payload)
}

func (f *FrontEnd) transformations() []passes.Pass {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]passes.Pass(nil), f.transforms...)
}
