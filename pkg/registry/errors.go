package registry

import (
	"errors"
	"fmt"
)

// ErrUnavailable indicates the backing store could not serve the request.
// The registry does not retry internally; callers decide.
var ErrUnavailable = errors.New("registry unavailable")

// RegistryError wraps storage-layer failures with operation context.
type RegistryError struct {
	// Op is the operation that failed (e.g., "Put", "Scan").
	Op string

	// Backend is the backend type (e.g., "redis", "memory").
	Backend string

	// ConnectionID is the affected key, if applicable.
	ConnectionID string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *RegistryError) Error() string {
	if e.ConnectionID != "" {
		return fmt.Sprintf("registry %s %s: %s: %v", e.Backend, e.Op, e.ConnectionID, e.Err)
	}
	return fmt.Sprintf("registry %s %s: %v", e.Backend, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *RegistryError) Unwrap() error {
	return e.Err
}

// IsUnavailable reports whether err indicates the backing store is down.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
