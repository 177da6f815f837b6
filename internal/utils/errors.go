package utils

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the training pipeline. Callers classify failures with errors.Is.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnknownClassifier   = errors.New("unknown classifier")
	ErrUnknownPreprocessor = errors.New("unknown preprocessor")
	ErrIllegalArgument     = errors.New("illegal argument")
	ErrMissingColumn       = errors.New("missing column")
	ErrTrainingFailed      = errors.New("training failed")
	ErrCompilationFailed   = errors.New("compilation failed")
	ErrTimeout             = errors.New("timeout")
	ErrStoreUnavailable    = errors.New("store unavailable")
)

// AppError wraps an operation, human-facing message, and underlying error.
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// Kind returns the sentinel error kind wrapped by err, or nil when err is not classified.
func Kind(err error) error {
	for _, kind := range []error{
		ErrInvalidInput,
		ErrUnknownClassifier,
		ErrUnknownPreprocessor,
		ErrIllegalArgument,
		ErrMissingColumn,
		ErrTrainingFailed,
		ErrCompilationFailed,
		ErrTimeout,
		ErrStoreUnavailable,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
