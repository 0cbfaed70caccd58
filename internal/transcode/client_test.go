package transcode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundbarn/audiorelay/pkg/jobs"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL, RoleARN: "arn:aws:iam::123456789012:role/transcode"}, nil)
	require.NoError(t, err)
	return c
}

func TestClient_SubmitCarriesMetadataAndPreset(t *testing.T) {
	var got submitBody
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/jobs", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(jobBody{JobID: "j1", Status: "SUBMITTED"})
	})

	jobID, err := c.Submit(context.Background(),
		jobs.SubmitRequest{InputKey: "uploads/a.wav", Preset: jobs.DefaultPreset()},
		map[string]string{jobs.MetadataConnectionID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, "j1", jobID)

	assert.Equal(t, "uploads/a.wav", got.Input.Key)
	assert.Equal(t, "c1", got.UserMetadata[jobs.MetadataConnectionID])
	assert.Equal(t, "mp3", got.Output.Codec)
	assert.Equal(t, 160000, got.Output.Bitrate)
	assert.Equal(t, "out/", got.Output.DestinationPrefix)
	assert.Equal(t, "arn:aws:iam::123456789012:role/transcode", got.Role)
}

func TestClient_SubmitRejection(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unsupported container"})
	})

	_, err := c.Submit(context.Background(), jobs.SubmitRequest{InputKey: "uploads/a.flv"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, jobs.ErrSubmissionRejected)
	assert.Contains(t, err.Error(), "unsupported container")
}

func TestClient_SubmitServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Submit(context.Background(), jobs.SubmitRequest{InputKey: "uploads/a.wav"}, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, jobs.ErrSubmissionRejected)

	var procErr *jobs.ProcessorError
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, "Submit", procErr.Op)
}

func TestClient_SubmitEmptyInputKey(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := c.Submit(context.Background(), jobs.SubmitRequest{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, jobs.ErrSubmissionRejected)
}

func TestClient_Status(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/jobs/j1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(jobBody{JobID: "j1", Status: "PROGRESSING"})
	})

	status, err := c.Status(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusInProgress, status)
}

func TestClient_StatusNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.Status(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
}

func TestNewClient_ConfigValidation(t *testing.T) {
	_, err := NewClient(Config{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base URL is required")
}
