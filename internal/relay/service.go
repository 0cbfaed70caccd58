// Package relay ties the transport to the domain: it routes client
// frames to the broadcast dispatcher and the job correlator, and feeds
// transcoder terminal events back to their submitters.
package relay

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/soundbarn/audiorelay/internal/ws"
	"github.com/soundbarn/audiorelay/pkg/broadcast"
	"github.com/soundbarn/audiorelay/pkg/jobs"
)

// Client actions.
const (
	ActionMessage  = "message"
	ActionCompress = "compress"
)

// Broadcaster fans a payload out to every registered connection.
type Broadcaster interface {
	Broadcast(ctx context.Context, payload []byte) (broadcast.Result, error)
}

// Submitter starts a transcode job correlated with a connection.
type Submitter interface {
	Submit(ctx context.Context, connectionID string, req jobs.SubmitRequest) (jobs.SubmitOutcome, error)
}

// Verifier checks that an object key names something real before a job
// is submitted for it.
type Verifier interface {
	Verify(ctx context.Context, key string) error
}

// Watcher resolves a submitted job to its terminal status. Only wired
// under the poll strategy; nil when terminal events arrive over HTTP.
type Watcher interface {
	Watch(ctx context.Context, jobID, connectionID string) jobs.NotifyOutcome
}

// Service is the message-level application logic behind the socket.
type Service struct {
	broadcaster Broadcaster
	submitter   Submitter
	verifier    Verifier
	watcher     Watcher
	preset      jobs.Preset
	logger      *zap.Logger
}

// NewService wires the relay. watcher may be nil.
func NewService(b Broadcaster, s Submitter, v Verifier, w Watcher, preset jobs.Preset, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		broadcaster: b,
		submitter:   s,
		verifier:    v,
		watcher:     w,
		preset:      preset,
		logger:      logger,
	}
}

// compressRequest is the payload of a "compress" action.
type compressRequest struct {
	Key string `json:"key"`
}

// HandleMessage dispatches one client frame. It never returns an error:
// per-message failures are logged and, where a submitter is involved,
// already reported back to the client as an ERROR envelope.
func (s *Service) HandleMessage(ctx context.Context, connectionID string, msg ws.ClientMessage) {
	switch msg.Action {
	case ActionMessage:
		s.handleBroadcast(ctx, connectionID, msg.Data)
	case ActionCompress:
		s.handleCompress(ctx, connectionID, msg.Data)
	default:
		s.logger.Warn("unknown client action",
			zap.String("connection_id", connectionID),
			zap.String("action", msg.Action))
	}
}

func (s *Service) handleBroadcast(ctx context.Context, connectionID string, data json.RawMessage) {
	payload, err := json.Marshal(jobs.BroadcastEnvelope(data))
	if err != nil {
		s.logger.Error("broadcast envelope marshal failed",
			zap.String("connection_id", connectionID),
			zap.Error(err))
		return
	}

	result, err := s.broadcaster.Broadcast(ctx, payload)
	if err != nil {
		s.logger.Warn("broadcast completed with failures",
			zap.String("connection_id", connectionID),
			zap.Int("recipients", result.Recipients),
			zap.Int("delivered", result.Delivered),
			zap.Int("evicted", len(result.Evicted)),
			zap.Error(err))
		return
	}
	s.logger.Debug("broadcast delivered",
		zap.String("connection_id", connectionID),
		zap.Int("recipients", result.Recipients),
		zap.Int("delivered", result.Delivered),
		zap.Int("evicted", len(result.Evicted)))
}

func (s *Service) handleCompress(ctx context.Context, connectionID string, data json.RawMessage) {
	var req compressRequest
	if err := json.Unmarshal(data, &req); err != nil || req.Key == "" {
		s.logger.Warn("malformed compress request",
			zap.String("connection_id", connectionID),
			zap.Error(err))
		return
	}

	if s.verifier != nil {
		if err := s.verifier.Verify(ctx, req.Key); err != nil {
			s.logger.Warn("compress rejected: object not verifiable",
				zap.String("connection_id", connectionID),
				zap.String("key", req.Key),
				zap.Error(err))
			return
		}
	}

	outcome, err := s.submitter.Submit(ctx, connectionID, jobs.SubmitRequest{
		InputKey: req.Key,
		Preset:   s.preset,
	})
	if err != nil {
		s.logger.Error("job submission failed",
			zap.String("connection_id", connectionID),
			zap.String("key", req.Key),
			zap.Error(err))
		return
	}

	s.logger.Info("job submitted",
		zap.String("connection_id", connectionID),
		zap.String("job_id", outcome.JobID),
		zap.String("key", req.Key),
		zap.Bool("started_notified", outcome.Notified))

	if s.watcher != nil {
		// Detached from the message context: the watch outlives the
		// frame that started it.
		go s.watcher.Watch(context.Background(), outcome.JobID, connectionID)
	}
}
