package translate

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this package, and by the frontend
// built on it, wraps exactly one of them.
var (
	// ErrUnsupportedOperation means no translator is registered for an
	// operation type.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrOperationConversion means a translator was found but failed.
	ErrOperationConversion = errors.New("operation conversion failed")

	// ErrInputModel means the input could not be recognized or parsed.
	ErrInputModel = errors.New("invalid input model")

	// ErrInvalidConfiguration means an unsupported combination of inputs.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// ConversionError describes a failed conversion.
type ConversionError struct {
	Kind    error  // One of the Err* kinds above
	OpType  string // Offending operation type, if any
	Details string // Human readable message
}

// Error implements the error interface.
func (e *ConversionError) Error() string {
	switch {
	case e.Details != "":
		return e.Details
	case e.OpType != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.OpType)
	default:
		return e.Kind.Error()
	}
}

// Unwrap returns the error kind so that errors.Is works against it.
func (e *ConversionError) Unwrap() error {
	return e.Kind
}

func newError(kind error, opType, format string, args ...any) *ConversionError {
	return &ConversionError{
		Kind:    kind,
		OpType:  opType,
		Details: fmt.Sprintf(format, args...),
	}
}

// NoTranslatorMessage is the report line for an operation type without a
// translator.
func NoTranslatorMessage(opType string) string {
	return fmt.Sprintf("No translator found for %s node.", opType)
}
