package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundbarn/audiorelay/internal/server/middleware"
	"github.com/soundbarn/audiorelay/pkg/jobs"
)

type fakeIntake struct {
	raw     []byte
	outcome jobs.NotifyOutcome
	err     error
}

func (f *fakeIntake) HandleEvent(_ context.Context, raw []byte) (jobs.NotifyOutcome, error) {
	f.raw = raw
	return f.outcome, f.err
}

func TestEventsHandler_AcceptsTerminalEvent(t *testing.T) {
	intake := &fakeIntake{outcome: jobs.NotifyOutcome{
		JobID:     "job-1",
		Status:    jobs.StatusComplete,
		Delivered: true,
	}}
	h := NewEventsHandler(intake)

	body := `{"detail":{"jobId":"job-1","status":"COMPLETE","userMetadata":{"connectionId":"c1"}}}`
	req := httptest.NewRequest(http.MethodPost, "/events/transcode", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, body, string(intake.raw))

	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "job-1", resp["jobId"])
	assert.Equal(t, string(jobs.StatusComplete), resp["status"])
	assert.Equal(t, true, resp["delivered"])
}

func TestEventsHandler_AcceptsEvenWhenClientGone(t *testing.T) {
	intake := &fakeIntake{outcome: jobs.NotifyOutcome{
		JobID:     "job-1",
		Status:    jobs.StatusError,
		Delivered: false,
	}}
	h := NewEventsHandler(intake)

	req := httptest.NewRequest(http.MethodPost, "/events/transcode", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestEventsHandler_MalformedEvent(t *testing.T) {
	intake := &fakeIntake{err: fmt.Errorf("%w: missing jobId", jobs.ErrMalformedEvent)}
	h := NewEventsHandler(intake)

	req := httptest.NewRequest(http.MethodPost, "/events/transcode", strings.NewReader(`{"detail":{}}`))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp middleware.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "MALFORMED_EVENT", resp.Error.Code)
}

func TestVersionHandler(t *testing.T) {
	h := VersionHandler(VersionInfo{Version: "1.2.3", Commit: "abc123", BuildDate: "2026-01-01"})

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var info VersionInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	assert.Equal(t, "1.2.3", info.Version)
	assert.Equal(t, "abc123", info.Commit)
}
