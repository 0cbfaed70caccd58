package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Poller is the active-polling watcher strategy: after submission it
// queries the processor at a fixed interval until the job is terminal.
//
// Polling couples the terminal notification's delivery to the liveness of
// this process. Prefer the event-driven watcher where the processor has a
// native event channel; the poller exists for environments that do not.
type Poller struct {
	processor  Processor
	correlator *Correlator
	interval   time.Duration
	maxWait    time.Duration
	logger     *zap.Logger
}

// Default polling cadence and cutoff.
const (
	DefaultPollInterval = 200 * time.Millisecond
	DefaultPollMaxWait  = 2 * time.Minute
)

// NewPoller creates a poller. Zero interval or maxWait use the defaults.
func NewPoller(processor Processor, correlator *Correlator, interval, maxWait time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if maxWait <= 0 {
		maxWait = DefaultPollMaxWait
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		processor:  processor,
		correlator: correlator,
		interval:   interval,
		maxWait:    maxWait,
		logger:     logger,
	}
}

// Watch polls until the job reports a terminal status, a status query
// fails, or the cutoff elapses, then invokes the correlator's terminal
// handling exactly once. Query failures and the cutoff map to ERROR so
// the loop can never hang.
//
// Watch blocks; run it in its own goroutine.
func (p *Poller) Watch(ctx context.Context, jobID, connectionID string) NotifyOutcome {
	pollCtx, cancel := context.WithTimeout(ctx, p.maxWait)
	defer cancel()

	// The terminal push must still go out after the polling cutoff fires.
	pushCtx := context.WithoutCancel(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-pollCtx.Done():
			p.logger.Warn("status polling cut off before terminal state",
				zap.String("job_id", jobID),
				zap.Duration("max_wait", p.maxWait),
				zap.Error(pollCtx.Err()))
			return p.correlator.OnTerminal(pushCtx, jobID, connectionID, StatusError, "status polling timed out")
		case <-ticker.C:
			status, err := p.processor.Status(pollCtx, jobID)
			if err != nil {
				p.logger.Warn("status query failed; treating job as failed",
					zap.String("job_id", jobID),
					zap.Error(err))
				return p.correlator.OnTerminal(pushCtx, jobID, connectionID, StatusError, "status query failed")
			}
			if status.Terminal() {
				return p.correlator.OnTerminal(pushCtx, jobID, connectionID, status, "")
			}
		}
	}
}
