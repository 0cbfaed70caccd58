// Package session handles connect and disconnect events from the client
// transport, keeping the connection registry in step with them.
package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/soundbarn/audiorelay/pkg/registry"
)

// Manager records transport session events in the registry.
type Manager struct {
	registry registry.Registry
	logger   *zap.Logger
}

// NewManager creates a session manager.
func NewManager(reg registry.Registry, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{registry: reg, logger: logger}
}

// Connect registers the connection. A registry failure here is returned to
// the transport layer so the handshake can be rejected; the client is not
// considered connected until the entry is written.
func (m *Manager) Connect(ctx context.Context, connectionID string) error {
	if err := m.registry.Put(ctx, connectionID); err != nil {
		m.logger.Error("failed to register connection",
			zap.String("connection_id", connectionID),
			zap.Error(err))
		return fmt.Errorf("register connection: %w", err)
	}
	m.logger.Info("connection registered", zap.String("connection_id", connectionID))
	return nil
}

// Disconnect removes the connection's registry entry. A removal failure is
// logged but not surfaced: the connection is gone regardless, and a stale
// entry will be lazily evicted on the next failed push.
func (m *Manager) Disconnect(ctx context.Context, connectionID string) {
	if err := m.registry.Remove(ctx, connectionID); err != nil {
		m.logger.Warn("failed to remove connection entry; will be lazily evicted",
			zap.String("connection_id", connectionID),
			zap.Error(err))
		return
	}
	m.logger.Info("connection removed", zap.String("connection_id", connectionID))
}
