package frontend

import (
	"errors"
	"fmt"

	"github.com/born-ml/graphlower/internal/source"
	"github.com/born-ml/graphlower/internal/translate"
)

// InputModel is a loaded source model.
type InputModel struct {
	*source.Model
}

// Name returns a label for logs: the path, or the graph name for
// in-memory models.
func (m *InputModel) Name() string {
	if m.Path != "" {
		return m.Path
	}
	return m.Graph.Name()
}

// modelInput is the parsed form of the variadic Supported/Load arguments.
type modelInput struct {
	path      string
	iterator  source.GraphIterator
	signature string
}

// parseInputs accepts (path), (path, signature) or (iterator), each
// optionally followed by a bool that is reserved for configuration.
func parseInputs(inputs []any) (*modelInput, error) {
	if n := len(inputs); n > 1 {
		if _, ok := inputs[n-1].(bool); ok {
			inputs = inputs[:n-1]
		}
	}
	if len(inputs) == 0 || len(inputs) > 2 {
		return nil, invalidConfiguration("expected 1 or 2 model descriptors, got %d", len(inputs))
	}

	var in modelInput
	switch v := inputs[0].(type) {
	case string:
		in.path = v
	case source.GraphIterator:
		in.iterator = v
	default:
		return nil, invalidConfiguration("unsupported model descriptor of type %T", inputs[0])
	}

	if len(inputs) == 2 {
		sig, ok := inputs[1].(string)
		if !ok || in.path == "" {
			return nil, invalidConfiguration("second descriptor must be a signature name following a path")
		}
		in.signature = sig
	}
	return &in, nil
}

func invalidConfiguration(format string, args ...any) error {
	return &translate.ConversionError{
		Kind:    translate.ErrInvalidConfiguration,
		Details: fmt.Sprintf(format, args...),
	}
}

func inputModelError(err error) error {
	var ce *translate.ConversionError
	if errors.As(err, &ce) {
		return err
	}
	return &translate.ConversionError{
		Kind:    translate.ErrInputModel,
		Details: err.Error(),
	}
}
