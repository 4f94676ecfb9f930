package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedKind indicates an unknown entity kind.
	ErrUnsupportedKind = errors.New("unsupported entity kind")

	// ErrFieldNotFound indicates the content record has no such field.
	ErrFieldNotFound = errors.New("field not found")

	// CRM Errors.

	// ErrNotInitialized indicates the CRM connection is unavailable.
	// A reconciliation pass that sees it is abandoned before any write.
	ErrNotInitialized = errors.New("crm not initialized")

	// ErrTransient indicates a CRM call failed in a way that may succeed on retry
	// (timeouts, 5xx responses, rate limiting).
	ErrTransient = errors.New("transient crm failure")

	// ErrRejected indicates the CRM refused the request (validation, permissions).
	ErrRejected = errors.New("crm rejected request")

	// Mapping Errors.

	// ErrNotMapped indicates a parent entity has no content record, or the reverse.
	// It is an expected condition and callers skip silently.
	ErrNotMapped = errors.New("not mapped")
)

// RowFailure records a single row whose CRM call failed.
// The row is excluded from the result and processing carries on.
type RowFailure struct {
	// Op is the attempted action.
	Op ActionType

	// Key is the row's position in the incoming field value, -1 for deletes.
	Key int

	// RemoteID is the CRM record ID involved, zero for creates.
	RemoteID int64

	// Payload is what was sent to the CRM, if anything.
	Payload Payload

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (f *RowFailure) Error() string {
	if f.RemoteID != 0 {
		return fmt.Sprintf("%s remote %d: %v", f.Op, f.RemoteID, f.Err)
	}
	return fmt.Sprintf("%s row %d: %v", f.Op, f.Key, f.Err)
}

// Unwrap returns the underlying cause.
func (f *RowFailure) Unwrap() error {
	return f.Err
}
