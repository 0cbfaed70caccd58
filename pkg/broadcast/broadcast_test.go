package broadcast

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundbarn/audiorelay/pkg/registry"
	"github.com/soundbarn/audiorelay/pkg/transport"
)

// fakePusher records pushes and fails configured targets.
type fakePusher struct {
	mu        sync.Mutex
	pushed    map[string][][]byte
	gone      map[string]bool
	transient map[string]bool
}

func newFakePusher() *fakePusher {
	return &fakePusher{
		pushed:    make(map[string][][]byte),
		gone:      make(map[string]bool),
		transient: make(map[string]bool),
	}
}

func (p *fakePusher) Push(ctx context.Context, id string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gone[id] {
		return &transport.PushError{Op: "Push", ConnectionID: id, Err: transport.ErrConnectionGone}
	}
	if p.transient[id] {
		return &transport.PushError{Op: "Push", ConnectionID: id, Err: transport.ErrDeliveryFailed}
	}
	p.pushed[id] = append(p.pushed[id], payload)
	return nil
}

func (p *fakePusher) deliveredTo() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.pushed))
	for id := range p.pushed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func seedRegistry(t *testing.T, ids ...string) *registry.Memory {
	t.Helper()
	reg := registry.NewMemory()
	for _, id := range ids {
		require.NoError(t, reg.Put(context.Background(), id))
	}
	return reg
}

func TestBroadcast_AllDelivered(t *testing.T) {
	reg := seedRegistry(t, "c1", "c2", "c3")
	pusher := newFakePusher()
	d := NewDispatcher(reg, pusher, Config{}, nil)

	result, err := d.Broadcast(context.Background(), []byte("hello"))
	require.NoError(t, err)

	assert.Equal(t, 3, result.Recipients)
	assert.Equal(t, 3, result.Delivered)
	assert.Empty(t, result.Evicted)
	assert.Empty(t, result.Failures)
	assert.Equal(t, []string{"c1", "c2", "c3"}, pusher.deliveredTo())
}

func TestBroadcast_GoneConnectionsEvictedWithoutFailing(t *testing.T) {
	reg := seedRegistry(t, "c1", "c2", "c3", "c4")
	pusher := newFakePusher()
	pusher.gone["c2"] = true
	pusher.gone["c4"] = true
	d := NewDispatcher(reg, pusher, Config{}, nil)

	result, err := d.Broadcast(context.Background(), []byte("x"))
	require.NoError(t, err, "gone failures must not fail the broadcast")

	assert.Equal(t, 2, result.Delivered)
	sort.Strings(result.Evicted)
	assert.Equal(t, []string{"c2", "c4"}, result.Evicted)

	// Stale entries are gone from the registry afterwards.
	assert.Equal(t, []string{"c1", "c3"}, registryIDs(t, reg))
}

func TestBroadcast_TransientFailureSurfacesButDoesNotEvict(t *testing.T) {
	reg := seedRegistry(t, "c1", "c2")
	pusher := newFakePusher()
	pusher.transient["c2"] = true
	d := NewDispatcher(reg, pusher, Config{}, nil)

	result, err := d.Broadcast(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrDeliveryFailed)

	assert.Equal(t, 1, result.Delivered)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "c2", result.Failures[0].ConnectionID)

	// Transient failures never evict.
	assert.Equal(t, []string{"c1", "c2"}, registryIDs(t, reg))
}

func TestBroadcast_MixedGoneAndTransient(t *testing.T) {
	reg := seedRegistry(t, "c1", "c2", "c3")
	pusher := newFakePusher()
	pusher.gone["c1"] = true
	pusher.transient["c2"] = true
	d := NewDispatcher(reg, pusher, Config{}, nil)

	result, err := d.Broadcast(context.Background(), []byte("x"))
	require.Error(t, err)

	assert.Equal(t, 1, result.Delivered)
	assert.Equal(t, []string{"c1"}, result.Evicted)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "c2", result.Failures[0].ConnectionID)
}

func TestBroadcast_EmptyRegistry(t *testing.T) {
	reg := registry.NewMemory()
	d := NewDispatcher(reg, newFakePusher(), Config{}, nil)

	result, err := d.Broadcast(context.Background(), []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, 0, result.Recipients)
	assert.Equal(t, 0, result.Delivered)
}

func TestBroadcast_EnumerationFailure(t *testing.T) {
	d := NewDispatcher(scanFailRegistry{}, newFakePusher(), Config{}, nil)

	_, err := d.Broadcast(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.True(t, registry.IsUnavailable(err))
}

func TestBroadcast_BoundedConcurrency(t *testing.T) {
	reg := seedRegistry(t, "c1", "c2", "c3", "c4", "c5", "c6", "c7", "c8")
	pusher := newFakePusher()
	d := NewDispatcher(reg, pusher, Config{MaxConcurrency: 2}, nil)

	result, err := d.Broadcast(context.Background(), []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, 8, result.Delivered)
}

type scanFailRegistry struct{}

func (scanFailRegistry) Put(ctx context.Context, id string) error    { return nil }
func (scanFailRegistry) Remove(ctx context.Context, id string) error { return nil }
func (scanFailRegistry) Scan(ctx context.Context, fn func(string) error) error {
	return &registry.RegistryError{Op: "Scan", Backend: "test", Err: registry.ErrUnavailable}
}

func registryIDs(t *testing.T, reg registry.Registry) []string {
	t.Helper()
	var ids []string
	require.NoError(t, reg.Scan(context.Background(), func(id string) error {
		ids = append(ids, id)
		return nil
	}))
	sort.Strings(ids)
	return ids
}

var _ error = (*transport.PushError)(nil)

func TestDeliveryFailureErrIsJoined(t *testing.T) {
	reg := seedRegistry(t, "c1")
	pusher := newFakePusher()
	pusher.transient["c1"] = true
	d := NewDispatcher(reg, pusher, Config{}, nil)

	_, err := d.Broadcast(context.Background(), []byte("x"))
	require.Error(t, err)

	var pushErr *transport.PushError
	assert.True(t, errors.As(err, &pushErr))
	assert.Equal(t, "c1", pushErr.ConnectionID)
}
