// Package transcode implements the client for the external transcode job
// processor. The processor itself is an opaque collaborator; this package
// only speaks its job-submission and job-status API.
package transcode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/soundbarn/audiorelay/pkg/jobs"
)

// Config configures the processor client.
type Config struct {
	// BaseURL is the processor's API root (required), e.g.
	// "https://transcode.internal:8443".
	BaseURL string

	// RoleARN is forwarded with each job for processors that assume an
	// execution role to reach the media bucket. Optional.
	RoleARN string

	// Timeout bounds each HTTP call. Zero uses DefaultTimeout.
	Timeout time.Duration
}

// DefaultTimeout bounds a single processor API call.
const DefaultTimeout = 10 * time.Second

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("transcode config: base URL is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("transcode config: invalid base URL: %w", err)
	}
	return nil
}

// Client talks to the external transcode processor over HTTP.
type Client struct {
	http   *http.Client
	base   string
	role   string
	logger *zap.Logger
}

var _ jobs.Processor = (*Client)(nil)

// NewClient creates a processor client.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http:   &http.Client{Timeout: cfg.Timeout},
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		role:   cfg.RoleARN,
		logger: logger,
	}, nil
}

// submitBody is the job creation request wire format.
type submitBody struct {
	Role         string            `json:"role,omitempty"`
	Input        inputSpec         `json:"input"`
	Output       outputSpec        `json:"output"`
	UserMetadata map[string]string `json:"userMetadata,omitempty"`
}

type inputSpec struct {
	Key string `json:"key"`
}

type outputSpec struct {
	Codec             string `json:"codec"`
	Bitrate           int    `json:"bitrate"`
	SampleRate        int    `json:"sampleRate"`
	Channels          int    `json:"channels"`
	RateControl       string `json:"rateControl"`
	VBRQuality        int    `json:"vbrQuality,omitempty"`
	DestinationPrefix string `json:"destinationPrefix"`
}

// jobBody is the processor's job representation in responses.
type jobBody struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

// Submit creates a transcode job. Metadata is opaque to the processor and
// echoed back in its terminal state-change events.
func (c *Client) Submit(ctx context.Context, req jobs.SubmitRequest, metadata map[string]string) (string, error) {
	if req.InputKey == "" {
		return "", &jobs.ProcessorError{Op: "Submit", Err: fmt.Errorf("%w: input key is required", jobs.ErrSubmissionRejected)}
	}

	body := submitBody{
		Role:  c.role,
		Input: inputSpec{Key: req.InputKey},
		Output: outputSpec{
			Codec:             req.Preset.Codec,
			Bitrate:           req.Preset.Bitrate,
			SampleRate:        req.Preset.SampleRate,
			Channels:          req.Preset.Channels,
			RateControl:       req.Preset.RateControl,
			VBRQuality:        req.Preset.VBRQuality,
			DestinationPrefix: req.Preset.DestinationPrefix,
		},
		UserMetadata: metadata,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", &jobs.ProcessorError{Op: "Submit", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/jobs", bytes.NewReader(payload))
	if err != nil {
		return "", &jobs.ProcessorError{Op: "Submit", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", &jobs.ProcessorError{Op: "Submit", Err: err}
	}
	defer drainAndClose(resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", &jobs.ProcessorError{
			Op:  "Submit",
			Err: fmt.Errorf("%w: %s", jobs.ErrSubmissionRejected, readErrorDetail(resp)),
		}
	default:
		return "", &jobs.ProcessorError{
			Op:  "Submit",
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	var job jobBody
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return "", &jobs.ProcessorError{Op: "Submit", Err: fmt.Errorf("decode response: %w", err)}
	}
	if job.JobID == "" {
		return "", &jobs.ProcessorError{Op: "Submit", Err: fmt.Errorf("response missing jobId")}
	}

	c.logger.Debug("job created", zap.String("job_id", job.JobID))
	return job.JobID, nil
}

// Status queries the processor for the job's current status.
func (c *Client) Status(ctx context.Context, jobID string) (jobs.Status, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/v1/jobs/"+url.PathEscape(jobID), nil)
	if err != nil {
		return "", &jobs.ProcessorError{Op: "Status", JobID: jobID, Err: err}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", &jobs.ProcessorError{Op: "Status", JobID: jobID, Err: err}
	}
	defer drainAndClose(resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return "", &jobs.ProcessorError{Op: "Status", JobID: jobID, Err: jobs.ErrJobNotFound}
	default:
		return "", &jobs.ProcessorError{
			Op:    "Status",
			JobID: jobID,
			Err:   fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	var job jobBody
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return "", &jobs.ProcessorError{Op: "Status", JobID: jobID, Err: fmt.Errorf("decode response: %w", err)}
	}

	return jobs.ParseStatus(job.Status), nil
}

// readErrorDetail extracts a short error string from a rejection response.
func readErrorDetail(resp *http.Response) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && json.Unmarshal(raw, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return fmt.Sprintf("status %d", resp.StatusCode)
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}
