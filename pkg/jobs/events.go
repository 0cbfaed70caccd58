package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrMalformedEvent indicates a terminal event that cannot be correlated
// (unparseable, or missing the job id or embedded connection id).
var ErrMalformedEvent = errors.New("malformed terminal event")

// TerminalEvent is the out-of-band state-change notification the
// processor emits when a job reaches a terminal state. The embedded
// userMetadata carries the correlation key set at submission.
type TerminalEvent struct {
	Detail TerminalEventDetail `json:"detail"`
}

// TerminalEventDetail is the event payload body.
type TerminalEventDetail struct {
	JobID        string            `json:"jobId"`
	Status       string            `json:"status"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
	UserMetadata map[string]string `json:"userMetadata"`
}

// EventWatcher is the event-driven watcher strategy: a stateless handler
// for terminal state-change events. It resolves the correlated connection
// from the event's own metadata and never queries the processor, so it
// has no liveness dependency on the process that submitted the job.
type EventWatcher struct {
	correlator *Correlator
	logger     *zap.Logger
}

// NewEventWatcher creates an event watcher.
func NewEventWatcher(correlator *Correlator, logger *zap.Logger) *EventWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventWatcher{correlator: correlator, logger: logger}
}

// HandleEvent parses a raw terminal event and routes it to the correlated
// connection. The returned error covers only malformed events; delivery
// problems are reported in the outcome.
func (w *EventWatcher) HandleEvent(ctx context.Context, raw []byte) (NotifyOutcome, error) {
	var ev TerminalEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return NotifyOutcome{}, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	return w.Handle(ctx, ev)
}

// Handle routes a parsed terminal event.
func (w *EventWatcher) Handle(ctx context.Context, ev TerminalEvent) (NotifyOutcome, error) {
	if ev.Detail.JobID == "" {
		return NotifyOutcome{}, fmt.Errorf("%w: missing jobId", ErrMalformedEvent)
	}
	connectionID := ev.Detail.UserMetadata[MetadataConnectionID]
	if connectionID == "" {
		return NotifyOutcome{}, fmt.Errorf("%w: missing %s metadata", ErrMalformedEvent, MetadataConnectionID)
	}

	status := ParseStatus(ev.Detail.Status)

	// Event channels wired to match all job state changes also deliver
	// progress events. Those carry no outcome: ignoring them keeps the
	// job's single terminal notification for the real terminal state.
	if !status.Terminal() {
		w.logger.Debug("ignoring non-terminal state-change event",
			zap.String("job_id", ev.Detail.JobID),
			zap.String("status", ev.Detail.Status))
		return NotifyOutcome{JobID: ev.Detail.JobID, Status: status}, nil
	}

	w.logger.Debug("terminal event received",
		zap.String("job_id", ev.Detail.JobID),
		zap.String("status", string(status)),
		zap.String("connection_id", connectionID))

	return w.correlator.OnTerminal(ctx, ev.Detail.JobID, connectionID, status, ev.Detail.ErrorMessage), nil
}
