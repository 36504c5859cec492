package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates a Load for an ID with no stored record.
var ErrNotFound = errors.New("record not found")

// Error wraps a backend I/O failure with the backend identity and the
// operation that failed, so callers can distinguish audit-trail failures
// from their own.
type Error struct {
	Backend string
	Op      string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("storage %s: %s: %v", e.Backend, e.Op, e.Err)
}

// Unwrap enables error unwrapping for errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

func opError(backend, op string, err error) error {
	return &Error{Backend: backend, Op: op, Err: err}
}
