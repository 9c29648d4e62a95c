package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrMissingID            = errors.New("notification id is required")
	ErrInvalidStatus        = errors.New("invalid notification status")
	ErrConnectorClosed      = errors.New("connector closed")
	ErrMissingRecipient     = errors.New("notification recipient is required")
	ErrMissingTitle         = errors.New("notification title is required")
)

// ValidationError rejects a malformed entity; the operation that produced it is a no-op.
type ValidationError struct {
	ID    string
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("invalid notification: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("invalid notification %s: %s: %v", e.ID, e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// TransportError covers push-channel failures: dial, subscribe, heartbeat and payload parsing.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// SnapshotError is returned when a snapshot fetch fails. The store is left as it was.
type SnapshotError struct {
	Offset int
	Err    error
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("snapshot fetch at offset %d: %v", e.Offset, e.Err)
}

func (e *SnapshotError) Unwrap() error { return e.Err }

// ReconciliationError reports a failed backend acknowledgement. The optimistic
// local change stays applied.
type ReconciliationError struct {
	Op  string
	ID  string
	Err error
}

func (e *ReconciliationError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("reconcile %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("reconcile %s %s: %v", e.Op, e.ID, e.Err)
}

func (e *ReconciliationError) Unwrap() error { return e.Err }
