package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoller_QueriesUntilTerminal(t *testing.T) {
	// IN_PROGRESS for 3 polls, then COMPLETE: exactly 4 status queries.
	proc := &fakeProcessor{
		statuses: []Status{StatusInProgress, StatusInProgress, StatusInProgress, StatusComplete},
	}
	pusher := newRecordingPusher()
	c := NewCorrelator(proc, pusher, nil)
	p := NewPoller(proc, c, time.Millisecond, time.Second, nil)

	outcome := p.Watch(context.Background(), "j1", "c1")

	assert.Equal(t, int64(4), proc.statusCall.Load())
	assert.Equal(t, StatusComplete, outcome.Status)
	assert.True(t, outcome.Delivered)

	envs := pusher.envelopes("c1")
	require.Len(t, envs, 1)
	assert.Equal(t, KindComplete, envs[0].Kind)
}

func TestPoller_ErrorStatusTerminatesLoop(t *testing.T) {
	proc := &fakeProcessor{
		statuses: []Status{StatusInProgress, StatusError},
	}
	pusher := newRecordingPusher()
	c := NewCorrelator(proc, pusher, nil)
	p := NewPoller(proc, c, time.Millisecond, time.Second, nil)

	outcome := p.Watch(context.Background(), "j1", "c1")

	assert.Equal(t, int64(2), proc.statusCall.Load())
	assert.Equal(t, StatusError, outcome.Status)
}

func TestPoller_QueryErrorTreatedAsErrorTerminal(t *testing.T) {
	proc := &fakeProcessor{
		statusErr: &ProcessorError{Op: "Status", JobID: "j1", Err: ErrJobNotFound},
	}
	pusher := newRecordingPusher()
	c := NewCorrelator(proc, pusher, nil)
	p := NewPoller(proc, c, time.Millisecond, time.Second, nil)

	outcome := p.Watch(context.Background(), "j1", "c1")

	assert.Equal(t, int64(1), proc.statusCall.Load())
	assert.Equal(t, StatusError, outcome.Status)
	assert.True(t, outcome.Delivered)

	envs := pusher.envelopes("c1")
	require.Len(t, envs, 1)
	assert.Equal(t, KindError, envs[0].Kind)
}

func TestPoller_CutoffDeliversErrorInsteadOfHanging(t *testing.T) {
	// Job never leaves IN_PROGRESS; the cutoff must end the watch with an
	// ERROR push rather than block forever.
	proc := &fakeProcessor{statuses: []Status{StatusInProgress}}
	pusher := newRecordingPusher()
	c := NewCorrelator(proc, pusher, nil)
	p := NewPoller(proc, c, time.Millisecond, 20*time.Millisecond, nil)

	done := make(chan NotifyOutcome, 1)
	go func() { done <- p.Watch(context.Background(), "j1", "c1") }()

	select {
	case outcome := <-done:
		assert.Equal(t, StatusError, outcome.Status)
		assert.True(t, outcome.Delivered, "terminal push must still go out after the cutoff")
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not terminate after cutoff")
	}
}

func TestPoller_DefaultsApplied(t *testing.T) {
	p := NewPoller(&fakeProcessor{}, NewCorrelator(&fakeProcessor{}, newRecordingPusher(), nil), 0, 0, nil)
	assert.Equal(t, DefaultPollInterval, p.interval)
	assert.Equal(t, DefaultPollMaxWait, p.maxWait)
}
