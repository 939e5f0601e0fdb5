package realtime

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected       = errors.New("realtime model is not connected")
	ErrInvalidTemperature = errors.New("temperature must be between 0 and 2")
)

type ErrorKind string

const (
	KindTransient  ErrorKind = "transient"
	KindPersistent ErrorKind = "persistent"
)

// ModelError is a failure of the model connection. Transient errors are
// worth a reconnect; persistent ones are not.
type ModelError struct {
	Kind ErrorKind
	Code string
	Err  error
}

func NewTransientError(code string, err error) *ModelError {
	return &ModelError{Kind: KindTransient, Code: code, Err: err}
}

func NewPersistentError(code string, err error) *ModelError {
	return &ModelError{Kind: KindPersistent, Code: code, Err: err}
}

func (e *ModelError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s model error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s model error (%s): %v", e.Kind, e.Code, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

func (e *ModelError) Transient() bool { return e.Kind == KindTransient }

// AsModelError classifies err, treating anything unclassified as transient.
func AsModelError(err error) *ModelError {
	var modelErr *ModelError
	if errors.As(err, &modelErr) {
		return modelErr
	}
	return NewTransientError("", err)
}
