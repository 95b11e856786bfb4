// Package extension defines the objects a host can add to a frontend at
// runtime.
//
// The frontend dispatches on the concrete kind: Telemetry replaces the
// active sink, Transformation adds a graph-level pass run on decoded graphs,
// Conversion overrides or adds a translator, and Bundle groups other
// extensions under one lifetime. Values of any other type are ignored.
package extension

import (
	"sync"

	"github.com/born-ml/graphlower/internal/passes"
	"github.com/born-ml/graphlower/internal/telemetry"
	"github.com/born-ml/graphlower/internal/translate"
)

// Telemetry installs a telemetry sink.
type Telemetry struct {
	Sink telemetry.Sink
}

// NewTelemetry wraps a sink.
func NewTelemetry(sink telemetry.Sink) *Telemetry {
	return &Telemetry{Sink: sink}
}

// Transformation is a graph-level pass applied to the decoded graph before
// its operations are translated.
type Transformation struct {
	Pass passes.Pass
}

// NewTransformation wraps a pass.
func NewTransformation(p passes.Pass) *Transformation {
	return &Transformation{Pass: p}
}

// Conversion registers a translator for one operation type.
type Conversion struct {
	OpType     string
	Translator translate.Translator
}

// NewConversion creates a conversion using the named-output convention.
func NewConversion(opType string, t translate.Translator) *Conversion {
	return &Conversion{OpType: opType, Translator: t}
}

// NewIndexedConversion creates a conversion using positional outputs.
func NewIndexedConversion(opType string, fn translate.Indexed) *Conversion {
	return &Conversion{OpType: opType, Translator: translate.FromIndexed(fn)}
}

// Bundle groups extensions that share a lifetime, such as the translators
// and passes of one plugin.
type Bundle struct {
	Name       string
	Extensions []any

	onClose   func() error
	closeOnce sync.Once
	closeErr  error
}

// NewBundle creates a bundle of extensions.
func NewBundle(name string, exts ...any) *Bundle {
	return &Bundle{Name: name, Extensions: exts}
}

// OnClose sets a function run once when the bundle is closed.
func (b *Bundle) OnClose(fn func() error) *Bundle {
	b.onClose = fn
	return b
}

// Close releases the bundle. It is safe to call more than once.
func (b *Bundle) Close() error {
	b.closeOnce.Do(func() {
		if b.onClose != nil {
			b.closeErr = b.onClose()
		}
	})
	return b.closeErr
}
