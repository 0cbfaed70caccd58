// Package transport defines the push capability used to deliver payloads
// to individual client connections.
//
// Implementations must distinguish a permanently unreachable target (the
// connection no longer exists) from a transient delivery failure, because
// callers evict registry entries only on the former.
package transport

import "context"

// Pusher delivers an opaque payload to a single connection.
type Pusher interface {
	// Push writes payload to the connection identified by connectionID.
	//
	// A connection that no longer exists yields an error classified as
	// gone (see IsGone); any other failure is transient from the
	// caller's perspective.
	Push(ctx context.Context, connectionID string, payload []byte) error
}
