// Package ws implements the WebSocket transport: it upgrades client
// connections, assigns connection ids, feeds session lifecycle events to
// the session manager, and provides the push capability used by the
// broadcast dispatcher and the job correlator.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/soundbarn/audiorelay/pkg/session"
	"github.com/soundbarn/audiorelay/pkg/transport"
)

// ClientMessage is the frame clients send over the socket.
type ClientMessage struct {
	// Action routes the message: "message" broadcasts Data to everyone,
	// "compress" requests a transcode of the object Data references.
	Action string `json:"action"`

	// Data is the action-specific payload, passed through opaquely.
	Data json.RawMessage `json:"data"`
}

// MessageHandler consumes client messages. Handlers run on the
// connection's read goroutine, so long work should be dispatched.
type MessageHandler func(ctx context.Context, connectionID string, msg ClientMessage)

// Config tunes per-connection socket behavior.
type Config struct {
	// SendBuffer is the per-connection outbound queue length.
	// Default: 32
	SendBuffer int

	// WriteWait bounds a single frame write.
	// Default: 10s
	WriteWait time.Duration

	// PongWait is how long a connection may stay silent before the read
	// loop gives up. Pings go out at PongWait * 9/10.
	// Default: 60s
	PongWait time.Duration

	// MaxMessageSize limits inbound frame size in bytes.
	// Default: 64KiB
	MaxMessageSize int64
}

// DefaultConfig returns the default socket tuning.
func DefaultConfig() Config {
	return Config{
		SendBuffer:     32,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		MaxMessageSize: 64 * 1024,
	}
}

// Hub owns the live sockets for this process.
//
// The hub is the transport behind the connection registry: registry
// entries name connections, the hub holds them. A registry entry with no
// hub socket is by definition gone, which is exactly the signal lazy
// eviction keys off.
type Hub struct {
	cfg      Config
	upgrader websocket.Upgrader
	sessions *session.Manager
	handler  MessageHandler
	logger   *zap.Logger

	mu    sync.RWMutex
	conns map[string]*conn
}

var _ transport.Pusher = (*Hub)(nil)

// conn is one client socket with its outbound queue.
type conn struct {
	id   string
	sock *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

// NewHub creates a hub. handler receives every parsed client frame.
func NewHub(cfg Config, sessions *session.Manager, handler MessageHandler, logger *zap.Logger) *Hub {
	def := DefaultConfig()
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = def.WriteWait
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = def.PongWait
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin checks are an authn concern, which sits outside
			// this service.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sessions: sessions,
		handler:  handler,
		logger:   logger,
		conns:    make(map[string]*conn),
	}
}

// ServeHTTP upgrades the request and runs the connection until it drops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	id := uuid.NewString()

	// The client is not connected until its registry entry exists.
	if err := h.sessions.Connect(r.Context(), id); err != nil {
		h.logger.Error("rejecting connection: registry write failed",
			zap.String("connection_id", id),
			zap.Error(err))
		_ = sock.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "registry unavailable"),
			time.Now().Add(h.cfg.WriteWait))
		_ = sock.Close()
		return
	}

	c := &conn{
		id:   id,
		sock: sock,
		send: make(chan []byte, h.cfg.SendBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.conns[id] = c
	h.mu.Unlock()

	go h.writeLoop(c)
	h.readLoop(c) // blocks until the connection drops
}

// Push delivers payload to one connection. An unknown or closed
// connection yields a gone-classified error; a full outbound queue is a
// transient delivery failure.
func (h *Hub) Push(ctx context.Context, connectionID string, payload []byte) error {
	h.mu.RLock()
	c := h.conns[connectionID]
	h.mu.RUnlock()

	if c == nil {
		return &transport.PushError{Op: "Push", ConnectionID: connectionID, Err: transport.ErrConnectionGone}
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return &transport.PushError{Op: "Push", ConnectionID: connectionID, Err: transport.ErrConnectionGone}
	case <-ctx.Done():
		return &transport.PushError{Op: "Push", ConnectionID: connectionID, Err: ctx.Err()}
	default:
		return &transport.PushError{Op: "Push", ConnectionID: connectionID, Err: transport.ErrDeliveryFailed}
	}
}

// Len returns the number of sockets currently held.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close drops every socket. Used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

func (h *Hub) readLoop(c *conn) {
	defer h.drop(c)

	c.sock.SetReadLimit(h.cfg.MaxMessageSize)
	_ = c.sock.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		_, raw, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("connection read failed",
					zap.String("connection_id", c.id),
					zap.Error(err))
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.logger.Warn("dropping unparseable client frame",
				zap.String("connection_id", c.id),
				zap.Error(err))
			continue
		}

		if h.handler != nil {
			h.handler(context.Background(), c.id, msg)
		}
	}
}

func (h *Hub) writeLoop(c *conn) {
	pingInterval := h.cfg.PongWait * 9 / 10
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case payload := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := c.sock.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// drop tears down the socket and replays the disconnect into the
// registry.
func (h *Hub) drop(c *conn) {
	h.mu.Lock()
	delete(h.conns, c.id)
	h.mu.Unlock()

	c.close()
	h.sessions.Disconnect(context.Background(), c.id)
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.sock.Close()
	})
}
