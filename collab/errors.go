package collab

import (
	"fmt"
	"strings"
)

// ValidationError indicates a domain state that cannot be serialized.
// Never retried; surfaced before any store is touched.
type ValidationError struct {
	Owner string
	Err   error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid state for owner %s: %v", e.Owner, e.Err)
}

// Unwrap enables error unwrapping for errors.Is and errors.As.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ConflictError indicates that two concurrent updates to the same owner
// diverged and the reject strategy refused to merge them. Callers must
// retry with fresh state.
type ConflictError struct {
	Owner string
	Keys  []string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting updates for owner %s on keys: %s",
		e.Owner, strings.Join(e.Keys, ", "))
}

// ExecutionError wraps a failure raised by the caller-supplied executor.
// The original error is preserved through Unwrap so callers can
// distinguish their own failures from audit-trail failures.
type ExecutionError struct {
	Owner string
	Err   error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed for owner %s: %v", e.Owner, e.Err)
}

// Unwrap enables error unwrapping for errors.Is and errors.As.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}
