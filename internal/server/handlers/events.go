package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/soundbarn/audiorelay/internal/server/middleware"
	"github.com/soundbarn/audiorelay/pkg/jobs"
)

// maxEventBody bounds the intake payload. Terminal events are small;
// anything larger is noise.
const maxEventBody = 256 * 1024

// EventIntake consumes raw terminal events from the transcoder.
type EventIntake interface {
	HandleEvent(ctx context.Context, raw []byte) (jobs.NotifyOutcome, error)
}

// EventsHandler serves POST /events/transcode, the push-style terminal
// notification channel.
type EventsHandler struct {
	intake EventIntake
}

// NewEventsHandler wires the intake endpoint to an event watcher.
func NewEventsHandler(intake EventIntake) *EventsHandler {
	return &EventsHandler{intake: intake}
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
	if err != nil {
		middleware.WriteError(w, r, http.StatusBadRequest,
			"INVALID_REQUEST", "could not read event body", nil)
		return
	}

	outcome, err := h.intake.HandleEvent(r.Context(), raw)
	if err != nil {
		if errors.Is(err, jobs.ErrMalformedEvent) {
			middleware.WriteError(w, r, http.StatusBadRequest,
				"MALFORMED_EVENT", err.Error(), nil)
			return
		}
		middleware.WriteError(w, r, http.StatusInternalServerError,
			"INTERNAL_ERROR", "event processing failed", nil)
		return
	}

	// Accepted regardless of delivery: a gone client is the sender's
	// success, not its failure.
	writeJSON(w, http.StatusAccepted, map[string]any{
		"jobId":     outcome.JobID,
		"status":    outcome.Status,
		"duplicate": outcome.Duplicate,
		"delivered": outcome.Delivered,
	})
}
