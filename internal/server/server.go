// Package server assembles the HTTP surface: the WebSocket endpoint,
// health and version probes, presigned upload minting, and the
// transcoder event intake.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/soundbarn/audiorelay/internal/observability"
	"github.com/soundbarn/audiorelay/internal/server/handlers"
	"github.com/soundbarn/audiorelay/internal/server/middleware"
)

// Options carries the optional endpoint wiring. Nil members leave their
// routes unregistered, which keeps tests of the core router cheap.
type Options struct {
	// Hub serves GET /ws. Typically *ws.Hub.
	Hub http.Handler

	// Presigner backs GET /uploads/presign.
	Presigner handlers.UploadPresigner

	// EventIntake backs POST /events/transcode.
	EventIntake handlers.EventIntake

	// Version is served at GET /version.
	Version handlers.VersionInfo

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Server is the audiorelay HTTP server.
type Server struct {
	host   string
	port   int
	opts   Options
	router chi.Router
}

// New builds the server and its route table.
func New(host string, port int, opts Options) *Server {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 30 * time.Second
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 120 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{host: host, port: port, opts: opts}
	s.router = s.buildRouter()
	return s
}

// Port returns the configured listen port.
func (s *Server) Port() int {
	return s.port
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.host, s.port)
}

// Handler returns the fully wired route table.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		middleware.WriteError(w, req, http.StatusNotFound,
			"NOT_FOUND", "no such endpoint", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		middleware.WriteError(w, req, http.StatusMethodNotAllowed,
			"METHOD_NOT_ALLOWED", "method not allowed for this endpoint", nil)
	})

	r.Get("/health", handlers.HealthHandler)
	r.Get("/health/live", handlers.LivenessHandler)
	r.Get("/health/ready", handlers.ReadinessHandler)
	r.Get("/health/startup", handlers.StartupHandler)
	r.Get("/version", handlers.VersionHandler(s.opts.Version))

	if s.opts.Hub != nil {
		r.Get("/ws", s.opts.Hub.ServeHTTP)
	}
	if s.opts.Presigner != nil {
		r.Get("/uploads/presign", handlers.NewPresignHandler(s.opts.Presigner).ServeHTTP)
	}
	if s.opts.EventIntake != nil {
		r.Post("/events/transcode", handlers.NewEventsHandler(s.opts.EventIntake).ServeHTTP)
	}

	return r
}

// Run serves until ctx is cancelled, then drains in-flight requests
// within the shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         s.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  s.opts.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		observability.ServerLogger.Info("http server listening", zap.String("addr", s.Addr()))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()

	observability.ServerLogger.Info("http server draining")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
