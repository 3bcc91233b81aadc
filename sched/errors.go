package sched

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an operation targets an item that does not
// exist in the store.
var ErrNotFound = errors.New("item not found")

// ErrConflict is returned when an insert collides with an existing id.
var ErrConflict = errors.New("duplicate item id")

// ValidationError describes a rejected input. It is surfaced synchronously
// to the caller and causes no state change.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TransportError wraps a database or network fault. The worker backs off and
// retries on these; callers may retry their operation.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
