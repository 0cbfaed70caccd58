package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundbarn/audiorelay/internal/ws"
	"github.com/soundbarn/audiorelay/pkg/broadcast"
	"github.com/soundbarn/audiorelay/pkg/jobs"
)

type fakeBroadcaster struct {
	mu       sync.Mutex
	payloads [][]byte
	err      error
}

func (f *fakeBroadcaster) Broadcast(_ context.Context, payload []byte) (broadcast.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return broadcast.Result{Recipients: 1, Delivered: 1}, f.err
}

type fakeSubmitter struct {
	mu       sync.Mutex
	requests []jobs.SubmitRequest
	conns    []string
	err      error
}

func (f *fakeSubmitter) Submit(_ context.Context, connectionID string, req jobs.SubmitRequest) (jobs.SubmitOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return jobs.SubmitOutcome{}, f.err
	}
	f.requests = append(f.requests, req)
	f.conns = append(f.conns, connectionID)
	return jobs.SubmitOutcome{JobID: "job-1", Notified: true}, nil
}

type fakeVerifier struct {
	err error
}

func (f *fakeVerifier) Verify(context.Context, string) error { return f.err }

type fakeWatcher struct {
	watched chan string
}

func (f *fakeWatcher) Watch(_ context.Context, jobID, connectionID string) jobs.NotifyOutcome {
	f.watched <- jobID + "/" + connectionID
	return jobs.NotifyOutcome{JobID: jobID}
}

func frame(t *testing.T, action string, data any) ws.ClientMessage {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return ws.ClientMessage{Action: action, Data: raw}
}

func TestHandleMessage_BroadcastWrapsEnvelope(t *testing.T) {
	b := &fakeBroadcaster{}
	svc := NewService(b, &fakeSubmitter{}, nil, nil, jobs.DefaultPreset(), nil)

	svc.HandleMessage(context.Background(), "c1", frame(t, ActionMessage, map[string]string{"text": "hello"}))

	require.Len(t, b.payloads, 1)
	var env struct {
		Kind string          `json:"kind"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(b.payloads[0], &env))
	assert.Equal(t, jobs.KindBroadcast, env.Kind)
	assert.JSONEq(t, `{"text":"hello"}`, string(env.Data))
}

func TestHandleMessage_CompressSubmitsWithPreset(t *testing.T) {
	sub := &fakeSubmitter{}
	preset := jobs.DefaultPreset()
	preset.Bitrate = 96000
	svc := NewService(&fakeBroadcaster{}, sub, &fakeVerifier{}, nil, preset, nil)

	svc.HandleMessage(context.Background(), "c1", frame(t, ActionCompress, map[string]string{"key": "uploads/take.wav"}))

	require.Len(t, sub.requests, 1)
	assert.Equal(t, "uploads/take.wav", sub.requests[0].InputKey)
	assert.Equal(t, 96000, sub.requests[0].Preset.Bitrate)
	assert.Equal(t, []string{"c1"}, sub.conns)
}

func TestHandleMessage_CompressRejectedWhenObjectMissing(t *testing.T) {
	sub := &fakeSubmitter{}
	svc := NewService(&fakeBroadcaster{}, sub, &fakeVerifier{err: errors.New("no such key")}, nil, jobs.DefaultPreset(), nil)

	svc.HandleMessage(context.Background(), "c1", frame(t, ActionCompress, map[string]string{"key": "uploads/missing.wav"}))

	assert.Empty(t, sub.requests)
}

func TestHandleMessage_CompressStartsWatch(t *testing.T) {
	w := &fakeWatcher{watched: make(chan string, 1)}
	svc := NewService(&fakeBroadcaster{}, &fakeSubmitter{}, nil, w, jobs.DefaultPreset(), nil)

	svc.HandleMessage(context.Background(), "c1", frame(t, ActionCompress, map[string]string{"key": "uploads/take.wav"}))

	select {
	case got := <-w.watched:
		assert.Equal(t, "job-1/c1", got)
	case <-time.After(time.Second):
		t.Fatal("watch was not started")
	}
}

func TestHandleMessage_MalformedCompressIgnored(t *testing.T) {
	sub := &fakeSubmitter{}
	svc := NewService(&fakeBroadcaster{}, sub, nil, nil, jobs.DefaultPreset(), nil)

	svc.HandleMessage(context.Background(), "c1", ws.ClientMessage{Action: ActionCompress, Data: json.RawMessage(`{"key":""}`)})
	svc.HandleMessage(context.Background(), "c1", ws.ClientMessage{Action: ActionCompress, Data: json.RawMessage(`not json`)})

	assert.Empty(t, sub.requests)
}

func TestHandleMessage_UnknownActionIgnored(t *testing.T) {
	b := &fakeBroadcaster{}
	sub := &fakeSubmitter{}
	svc := NewService(b, sub, nil, nil, jobs.DefaultPreset(), nil)

	svc.HandleMessage(context.Background(), "c1", frame(t, "subscribe", map[string]string{"topic": "x"}))

	assert.Empty(t, b.payloads)
	assert.Empty(t, sub.requests)
}

func TestHandleMessage_SubmitFailureDoesNotPanic(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("transcoder down")}
	svc := NewService(&fakeBroadcaster{}, sub, nil, nil, jobs.DefaultPreset(), nil)

	svc.HandleMessage(context.Background(), "c1", frame(t, ActionCompress, map[string]string{"key": "uploads/take.wav"}))
}
