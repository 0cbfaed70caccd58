package registry

import (
	"context"
	"sync"
)

// Memory is an in-process Registry backed by a mutex-guarded set.
//
// Suitable for single-process deployments and tests. Scan iterates over a
// snapshot, so removals during enumeration are tolerated.
type Memory struct {
	mu    sync.RWMutex
	conns map[string]struct{}
}

var _ Registry = (*Memory)(nil)

// NewMemory creates an empty in-memory registry.
func NewMemory() *Memory {
	return &Memory{conns: make(map[string]struct{})}
}

// Put records the connection as live.
func (m *Memory) Put(ctx context.Context, connectionID string) error {
	if err := ctx.Err(); err != nil {
		return &RegistryError{Op: "Put", Backend: "memory", ConnectionID: connectionID, Err: err}
	}
	m.mu.Lock()
	m.conns[connectionID] = struct{}{}
	m.mu.Unlock()
	return nil
}

// Remove deletes the record if present.
func (m *Memory) Remove(ctx context.Context, connectionID string) error {
	if err := ctx.Err(); err != nil {
		return &RegistryError{Op: "Remove", Backend: "memory", ConnectionID: connectionID, Err: err}
	}
	m.mu.Lock()
	delete(m.conns, connectionID)
	m.mu.Unlock()
	return nil
}

// Scan visits a snapshot of the registered connection ids.
func (m *Memory) Scan(ctx context.Context, fn func(connectionID string) error) error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return &RegistryError{Op: "Scan", Backend: "memory", Err: err}
		}
		if err := fn(id); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the current number of registered connections.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}
