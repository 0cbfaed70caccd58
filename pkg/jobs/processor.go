package jobs

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for processor operations.
var (
	// ErrSubmissionRejected indicates the processor refused the job.
	// Surfaced to the caller as-is; the job is never retried here.
	ErrSubmissionRejected = errors.New("job submission rejected")

	// ErrJobNotFound indicates the processor does not know the job id.
	ErrJobNotFound = errors.New("job not found")
)

// ProcessorError wraps processor failures with operation context.
type ProcessorError struct {
	// Op is the operation that failed (e.g., "Submit", "Status").
	Op string

	// JobID is the affected job, if known.
	JobID string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ProcessorError) Error() string {
	if e.JobID != "" {
		return fmt.Sprintf("processor %s %s: %v", e.Op, e.JobID, e.Err)
	}
	return fmt.Sprintf("processor %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ProcessorError) Unwrap() error {
	return e.Err
}

// SubmitRequest describes one transcode job.
type SubmitRequest struct {
	// InputKey is the source object key in the upload bucket.
	InputKey string

	// Preset holds the output encoding settings.
	Preset Preset
}

// Processor is the external transcode job processor, specified only at
// its interface boundary. Metadata submitted with a job is opaque to the
// processor and carried through to its terminal state-change event.
type Processor interface {
	// Submit creates the job and returns the processor-assigned job id.
	Submit(ctx context.Context, req SubmitRequest, metadata map[string]string) (string, error)

	// Status reports the job's current status, for the polling watcher.
	Status(ctx context.Context, jobID string) (Status, error)
}
