// Package broadcast implements registry-wide fan-out of a payload to every
// live connection.
//
// Pushes to distinct connections are issued concurrently so total latency
// is bounded by the slowest single push. A push that fails because the
// target is gone triggers lazy eviction of its registry entry and does not
// fail the broadcast; only transient delivery failures do.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/soundbarn/audiorelay/pkg/registry"
	"github.com/soundbarn/audiorelay/pkg/transport"
)

// Config configures dispatcher behavior.
type Config struct {
	// RateLimit is the maximum pushes per second issued by one broadcast.
	// Zero means unlimited.
	// Default: 0
	RateLimit float64

	// MaxConcurrency bounds in-flight pushes. Zero or negative means one
	// goroutine per recipient.
	// Default: 0
	MaxConcurrency int
}

// DeliveryFailure records a transient (non-gone) push failure for one
// recipient.
type DeliveryFailure struct {
	ConnectionID string
	Err          error
}

// Result summarizes one broadcast. Situations the system treats as
// non-fatal (evictions, delivery failures already folded into the error
// return) are reported here so callers and tests can assert on them.
type Result struct {
	// Recipients is the number of registry entries enumerated.
	Recipients int

	// Delivered is the number of successful pushes.
	Delivered int

	// Evicted lists connection ids removed after a gone-classified push.
	Evicted []string

	// Failures lists transient delivery failures.
	Failures []DeliveryFailure
}

// Dispatcher fans a payload out to every registered connection.
type Dispatcher struct {
	registry registry.Registry
	pusher   transport.Pusher
	logger   *zap.Logger
	limiter  *rate.Limiter
	maxConc  int
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(reg registry.Registry, pusher transport.Pusher, cfg Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		registry: reg,
		pusher:   pusher,
		logger:   logger,
		maxConc:  cfg.MaxConcurrency,
	}
	if cfg.RateLimit > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return d
}

// Broadcast pushes payload to every connection in the registry and waits
// for all pushes to settle.
//
// The returned error is non-nil only when enumeration fails or at least
// one push failed transiently; gone-classified failures are absorbed into
// eviction. The Result is populated in both cases.
func (d *Dispatcher) Broadcast(ctx context.Context, payload []byte) (Result, error) {
	var result Result

	var ids []string
	err := d.registry.Scan(ctx, func(id string) error {
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("enumerate connections: %w", err)
	}
	result.Recipients = len(ids)

	type outcome struct {
		id   string
		err  error
		gone bool
	}

	sem := newSemaphore(d.maxConc)
	outcomes := make([]outcome, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				outcomes[i] = outcome{id: id, err: err}
				continue
			}
		}
		wg.Add(1)
		sem.acquire()
		go func(i int, id string) {
			defer wg.Done()
			defer sem.release()
			err := d.pusher.Push(ctx, id, payload)
			outcomes[i] = outcome{id: id, err: err, gone: transport.IsGone(err)}
		}(i, id)
	}
	wg.Wait()

	var failed []error
	for _, o := range outcomes {
		switch {
		case o.err == nil:
			result.Delivered++
		case o.gone:
			// Expected steady-state churn: evict and move on.
			if rmErr := d.registry.Remove(ctx, o.id); rmErr != nil {
				d.logger.Warn("failed to evict stale connection",
					zap.String("connection_id", o.id),
					zap.Error(rmErr))
			} else {
				d.logger.Info("evicted stale connection",
					zap.String("connection_id", o.id))
			}
			result.Evicted = append(result.Evicted, o.id)
		default:
			result.Failures = append(result.Failures, DeliveryFailure{ConnectionID: o.id, Err: o.err})
			failed = append(failed, &transport.PushError{Op: "Broadcast", ConnectionID: o.id, Err: o.err})
			d.logger.Warn("broadcast delivery failed",
				zap.String("connection_id", o.id),
				zap.Error(o.err))
		}
	}

	if len(failed) > 0 {
		return result, errors.Join(failed...)
	}
	return result, nil
}

// semaphore is a counting semaphore; a nil-channel semaphore is unbounded.
type semaphore struct {
	ch chan struct{}
}

func newSemaphore(n int) *semaphore {
	if n <= 0 {
		return &semaphore{}
	}
	return &semaphore{ch: make(chan struct{}, n)}
}

func (s *semaphore) acquire() {
	if s.ch != nil {
		s.ch <- struct{}{}
	}
}

func (s *semaphore) release() {
	if s.ch != nil {
		<-s.ch
	}
}
