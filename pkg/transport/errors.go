package transport

import (
	"errors"
	"fmt"
)

// Sentinel errors for push operations.
var (
	// ErrConnectionGone indicates the target connection permanently no
	// longer exists. Callers treat this as steady-state churn and evict
	// the registry entry rather than failing the surrounding operation.
	ErrConnectionGone = errors.New("connection gone")

	// ErrDeliveryFailed indicates the connection is believed live but the
	// payload could not be delivered (slow consumer, write timeout).
	ErrDeliveryFailed = errors.New("delivery failed")
)

// PushError wraps push failures with the target connection.
type PushError struct {
	// Op is the operation that failed (e.g., "Push", "Broadcast").
	Op string

	// ConnectionID is the target connection.
	ConnectionID string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *PushError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.ConnectionID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *PushError) Unwrap() error {
	return e.Err
}

// IsGone reports whether err indicates the target connection permanently
// no longer exists.
func IsGone(err error) bool {
	return errors.Is(err, ErrConnectionGone)
}
