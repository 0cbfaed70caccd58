package registry

import (
	"context"
	"fmt"

	r "github.com/redis/go-redis/v9"
)

// Redis is a Registry backed by a Redis set, for deployments where the
// connection directory must survive process restarts or be shared.
//
// Each connection id is a member of a single set under KeyPrefix. SSCAN
// gives lazy, restartable, best-effort enumeration, which matches the
// registry's read-consistency contract.
type Redis struct {
	rdb    *r.Client
	key    string
	scanSz int64
}

var _ Registry = (*Redis)(nil)

// DefaultScanCount is the SSCAN page size hint.
const DefaultScanCount = 256

// NewRedis creates a Redis-backed registry. keyPrefix namespaces the
// connection set (e.g., "audiorelay:connections").
func NewRedis(rdb *r.Client, keyPrefix string) *Redis {
	if keyPrefix == "" {
		keyPrefix = "audiorelay"
	}
	return &Redis{
		rdb:    rdb,
		key:    keyPrefix + ":connections",
		scanSz: DefaultScanCount,
	}
}

// Put records the connection as live. SADD of a present member is a no-op.
func (s *Redis) Put(ctx context.Context, connectionID string) error {
	if err := s.rdb.SAdd(ctx, s.key, connectionID).Err(); err != nil {
		return s.wrap("Put", connectionID, err)
	}
	return nil
}

// Remove deletes the record if present. SREM of an absent member is a no-op.
func (s *Redis) Remove(ctx context.Context, connectionID string) error {
	if err := s.rdb.SRem(ctx, s.key, connectionID).Err(); err != nil {
		return s.wrap("Remove", connectionID, err)
	}
	return nil
}

// Scan visits registered connection ids page by page via SSCAN.
func (s *Redis) Scan(ctx context.Context, fn func(connectionID string) error) error {
	var cursor uint64
	for {
		ids, next, err := s.rdb.SScan(ctx, s.key, cursor, "", s.scanSz).Result()
		if err != nil {
			return s.wrap("Scan", "", err)
		}
		for _, id := range ids {
			if err := fn(id); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (s *Redis) wrap(op, connectionID string, err error) error {
	return &RegistryError{
		Op:           op,
		Backend:      "redis",
		ConnectionID: connectionID,
		Err:          fmt.Errorf("%w: %w", ErrUnavailable, err),
	}
}
