// Package jobs correlates asynchronous transcode jobs with the connection
// that requested them.
//
// The originating connection id is embedded as job metadata at submission,
// so whichever watcher strategy observes the terminal state (polling or
// event-driven) can recover the correlation key without a side table.
package jobs

import "strings"

// Status is the lifecycle state of a transcode job.
//
// A status is terminal (COMPLETE or ERROR) once the external processor
// stops working on the job; terminal statuses never transition again.
type Status string

const (
	StatusSubmitted  Status = "SUBMITTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusComplete   Status = "COMPLETE"
	StatusError      Status = "ERROR"
)

// Terminal reports whether no further transitions can occur.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// ParseStatus normalizes a processor-reported status string. Unknown
// values map to StatusError so a malformed report cannot leave a watcher
// waiting forever.
func ParseStatus(raw string) Status {
	switch Status(strings.ToUpper(strings.TrimSpace(raw))) {
	case StatusSubmitted:
		return StatusSubmitted
	case StatusInProgress, Status("PROGRESSING"):
		return StatusInProgress
	case StatusComplete:
		return StatusComplete
	default:
		return StatusError
	}
}

// MetadataConnectionID is the job metadata key carrying the correlation
// key. The value is opaque to the processor and echoed back verbatim in
// terminal state-change events.
const MetadataConnectionID = "connectionId"

// Envelope is the tagged status payload pushed to clients.
type Envelope struct {
	Kind string `json:"kind"` // STARTED, COMPLETE, ERROR, or BROADCAST
	Data any    `json:"data,omitempty"`
}

// Envelope kinds.
const (
	KindStarted   = "STARTED"
	KindComplete  = "COMPLETE"
	KindError     = "ERROR"
	KindBroadcast = "BROADCAST"
)

// StatusData is the Data carried by job-status envelopes.
type StatusData struct {
	JobID  string `json:"jobId"`
	Detail string `json:"detail,omitempty"`
}

// StartedEnvelope builds the acknowledgment pushed right after submission.
func StartedEnvelope(jobID string) Envelope {
	return Envelope{Kind: KindStarted, Data: StatusData{JobID: jobID}}
}

// TerminalEnvelope builds the payload for a terminal status push.
func TerminalEnvelope(jobID string, status Status, detail string) Envelope {
	kind := KindComplete
	if status != StatusComplete {
		kind = KindError
	}
	return Envelope{Kind: kind, Data: StatusData{JobID: jobID, Detail: detail}}
}

// BroadcastEnvelope wraps a client-originated broadcast payload.
func BroadcastEnvelope(data any) Envelope {
	return Envelope{Kind: KindBroadcast, Data: data}
}
