package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/soundbarn/audiorelay/pkg/transport"
)

// maxRememberedJobs bounds the terminal-notification dedup set. Oldest
// entries are dropped first; a duplicate event older than the window would
// be re-delivered, which is acceptable for the at-least-once processors
// this guards against.
const maxRememberedJobs = 4096

// SubmitOutcome reports one submission. A failed STARTED push does not
// roll back the job, so it is reported here instead of as an error.
type SubmitOutcome struct {
	JobID string

	// Notified is true when the STARTED push reached the connection.
	Notified bool

	// NotifyErr holds the push failure when Notified is false.
	NotifyErr error
}

// NotifyOutcome reports one terminal push attempt. Delivery failures are
// telemetry, not user-facing errors: the connection may simply be gone.
type NotifyOutcome struct {
	JobID  string
	Status Status

	// Duplicate is true when this job's terminal status was already
	// handled; no push was attempted.
	Duplicate bool

	// Delivered is true when the push reached the connection.
	Delivered bool

	// Err holds the push failure when Delivered is false.
	Err error
}

// Correlator submits jobs with the originating connection id embedded as
// metadata and routes terminal notifications back to that connection.
type Correlator struct {
	processor Processor
	pusher    transport.Pusher
	logger    *zap.Logger

	// Terminal dedup: the processor's event channel is at-least-once,
	// but a client must see at most one terminal push per job.
	mu       sync.Mutex
	notified map[string]struct{}
	order    []string
}

// NewCorrelator creates a correlator.
func NewCorrelator(processor Processor, pusher transport.Pusher, logger *zap.Logger) *Correlator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Correlator{
		processor: processor,
		pusher:    pusher,
		logger:    logger,
		notified:  make(map[string]struct{}),
	}
}

// Submit sends the job to the processor with connectionID embedded as
// metadata, then acknowledges STARTED to that connection.
//
// A submission failure returns an error and performs no push. A STARTED
// push failure is reported in the outcome only: the job keeps running
// regardless of whether the acknowledgment was delivered.
func (c *Correlator) Submit(ctx context.Context, connectionID string, req SubmitRequest) (SubmitOutcome, error) {
	metadata := map[string]string{MetadataConnectionID: connectionID}

	jobID, err := c.processor.Submit(ctx, req, metadata)
	if err != nil {
		return SubmitOutcome{}, fmt.Errorf("submit transcode job: %w", err)
	}

	outcome := SubmitOutcome{JobID: jobID}
	if err := c.push(ctx, connectionID, StartedEnvelope(jobID)); err != nil {
		outcome.NotifyErr = err
		c.logger.Warn("failed to deliver STARTED notification",
			zap.String("job_id", jobID),
			zap.String("connection_id", connectionID),
			zap.Error(err))
	} else {
		outcome.Notified = true
	}

	c.logger.Info("transcode job submitted",
		zap.String("job_id", jobID),
		zap.String("connection_id", connectionID),
		zap.String("input_key", req.InputKey))
	return outcome, nil
}

// OnTerminal pushes the job's terminal status to the correlated
// connection, at most once per job. Push failures are reported in the
// outcome and never retried; the correlator's obligation ends with the
// attempt.
func (c *Correlator) OnTerminal(ctx context.Context, jobID, connectionID string, status Status, detail string) NotifyOutcome {
	if !status.Terminal() {
		status = StatusError
	}
	outcome := NotifyOutcome{JobID: jobID, Status: status}

	if !c.markNotified(jobID) {
		outcome.Duplicate = true
		c.logger.Info("duplicate terminal notification ignored",
			zap.String("job_id", jobID),
			zap.String("status", string(status)))
		return outcome
	}

	if err := c.push(ctx, connectionID, TerminalEnvelope(jobID, status, detail)); err != nil {
		outcome.Err = err
		c.logger.Warn("failed to deliver terminal notification",
			zap.String("job_id", jobID),
			zap.String("connection_id", connectionID),
			zap.String("status", string(status)),
			zap.Bool("connection_gone", transport.IsGone(err)),
			zap.Error(err))
		return outcome
	}

	outcome.Delivered = true
	c.logger.Info("terminal notification delivered",
		zap.String("job_id", jobID),
		zap.String("connection_id", connectionID),
		zap.String("status", string(status)))
	return outcome
}

// markNotified records the job as handled. Returns false if it already was.
func (c *Correlator) markNotified(jobID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, seen := c.notified[jobID]; seen {
		return false
	}
	c.notified[jobID] = struct{}{}
	c.order = append(c.order, jobID)
	if len(c.order) > maxRememberedJobs {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.notified, oldest)
	}
	return true
}

func (c *Correlator) push(ctx context.Context, connectionID string, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return c.pusher.Push(ctx, connectionID, payload)
}
