// Package registry implements the connection directory: a durable mapping
// from connection identifier to liveness.
//
// Presence in the registry is the liveness signal itself. An entry exists
// iff the connection is believed live; there is no tombstone state. Entries
// are written on connect, removed on disconnect, and lazily evicted when a
// push discovers the target is gone.
package registry

import "context"

// Registry stores the set of live connection identifiers.
//
// All operations are safe for concurrent use. Single-key operations are
// independent; no invariant spans multiple entries.
type Registry interface {
	// Put records the connection as live. Re-adding a present id is a no-op.
	Put(ctx context.Context, connectionID string) error

	// Remove deletes the record if present. Removing an absent id is not
	// an error.
	Remove(ctx context.Context, connectionID string) error

	// Scan calls fn for every registered connection id. Enumeration is
	// lazy and best-effort: a connection that disconnects mid-scan may or
	// may not be visited. Scan stops early if fn returns an error, and
	// that error is returned as-is.
	Scan(ctx context.Context, fn func(connectionID string) error) error
}
