package store

import (
	"errors"
	"fmt"
)

// Common store errors used across backend implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrTaskNotFound indicates the requested task record does not exist.
	ErrTaskNotFound = fmt.Errorf("%w: task", ErrNotFound)

	// ErrStoreUnavailable wraps transport-level failures talking to the
	// record store. These are fatal for the current run: the caller
	// aborts, alerts, and exits non-zero.
	ErrStoreUnavailable = errors.New("record store unavailable")

	// ErrInvalidRecord is returned when a record fails validation before
	// being stored. Check the wrapped error for the specific field.
	ErrInvalidRecord = errors.New("invalid record")
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnavailableError checks if the error indicates the store could not
// be reached at all, as opposed to rejecting a particular operation.
func IsUnavailableError(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// StoreError carries the operation and record context of a failed store
// call while wrapping the underlying error for errors.Is/As.
type StoreError struct {
	Operation string // e.g. "find", "create", "patch", "append"
	RecordID  string // empty for queries
	Err       error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	if e.RecordID != "" {
		return fmt.Sprintf("%s operation on record %s failed: %v", e.Operation, e.RecordID, e.Err)
	}
	return fmt.Sprintf("%s operation failed: %v", e.Operation, e.Err)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}
