package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/google/uuid"
)

var (
	// ErrUnauthenticated is returned by Serve when the identity is empty.
	ErrUnauthenticated = errors.New("realtime: unauthenticated")
	// ErrUnauthorized is returned by Serve when the authorizer refuses the room.
	ErrUnauthorized = errors.New("realtime: unauthorized")
)

// Identity is the verified user behind a connection attempt. An empty UserID means
// the request carried no valid credentials.
type Identity struct {
	UserID string
}

// Authorizer decides whether a user may join a room.
type Authorizer interface {
	CanJoin(ctx context.Context, userID string, key RoomKey) (bool, error)
}

// HubConfig tunes per-connection resources.
type HubConfig struct {
	// SendBuffer is the number of frames queued per connection before it is dropped.
	SendBuffer int
}

// Hub serves connections and broadcasts frames to rooms.
type Hub struct {
	registry   *Registry
	authorizer Authorizer
	metrics    *Metrics
	logger     *slog.Logger
	config     HubConfig
	newID      func() string
}

// NewHub constructs a hub over a shared registry. metrics may be nil.
func NewHub(registry *Registry, authorizer Authorizer, metrics *Metrics, logger *slog.Logger, config HubConfig) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if config.SendBuffer <= 0 {
		config.SendBuffer = 64
	}
	return &Hub{
		registry:   registry,
		authorizer: authorizer,
		metrics:    metrics,
		logger:     logger.With("component", "realtime.Hub"),
		config:     config,
		newID:      uuid.NewString,
	}
}

// Registry returns the registry the hub publishes to.
func (h *Hub) Registry() *Registry {
	return h.registry
}

type envelope struct {
	Event json.RawMessage `json:"event"`
}

// BroadcastToRoom sends {"event": payload} to every subscriber present at call time.
// It never waits on subscriber I/O; subscribers that cannot accept the frame are dropped
// and their close frames are written in the background.
func (h *Hub) BroadcastToRoom(key RoomKey, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("realtime: encode payload: %w", err)
	}
	frame, err := json.Marshal(envelope{Event: raw})
	if err != nil {
		return fmt.Errorf("realtime: encode frame: %w", err)
	}
	h.fanout(key, frame, "notifier")
	return nil
}

func (h *Hub) fanout(key RoomKey, frame []byte, origin string) {
	delivered, failed := h.registry.Fanout(key, frame)
	for _, sub := range failed {
		h.registry.Remove(key, sub.ID())
		if c, ok := sub.(*Conn); ok {
			h.logger.Warn("dropping subscriber",
				"room", key.String(),
				"user_id", c.userID,
				"connection_id", c.id,
			)
			if c.evict(ClosePolicyViolation, "send queue full") {
				h.metrics.connectionClosed(key)
			}
		}
	}
	h.metrics.broadcast(key, origin, delivered, len(failed))
}

// Serve runs one connection to completion: it admits the identity into the room and
// relays inbound frames until the client goes away or ctx is cancelled. The
// transport is always closed; for a dropped slow consumer that may finish just
// after Serve returns.
func (h *Hub) Serve(ctx context.Context, transport Transport, identity Identity, key RoomKey) (err error) {
	logger := h.logger.With("room", key.String(), "user_id", identity.UserID)
	conn := newConn(h.newID(), identity.UserID, key, transport, h.config.SendBuffer)

	if identity.UserID == "" {
		conn.shutdown(CloseUnauthenticated, "unauthenticated")
		logger.Info("connection refused", "reason", "unauthenticated")
		return ErrUnauthenticated
	}

	allowed, err := h.authorizer.CanJoin(ctx, identity.UserID, key)
	if err != nil {
		conn.shutdown(CloseInternalError, "internal error")
		logger.Error("room authorization failed", "operation", "connect", "error", err)
		return err
	}
	if !allowed {
		conn.shutdown(CloseUnauthorized, "unauthorized")
		logger.Info("connection refused", "reason", "unauthorized")
		return ErrUnauthorized
	}

	logger = logger.With("connection_id", conn.id)
	h.registry.Add(key, conn)
	conn.join()
	h.metrics.connectionOpened(key)
	logger.Debug("connection joined")
	defer h.disconnect(conn, logger)

	go conn.writeLoop(func(werr error) {
		logger.Debug("write failed", "error", werr)
		h.disconnect(conn, logger)
	})
	go func() {
		select {
		case <-ctx.Done():
			h.closeConn(conn, CloseNormal, "server shutting down")
		case <-conn.done:
		}
	}()

	return h.readLoop(conn, logger)
}

// readLoop relays inbound frames until the transport fails. A panic while handling
// the session is logged and closes the connection with an internal error.
func (h *Hub) readLoop(conn *Conn, logger *slog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("session panicked",
				"operation", "client_message",
				"panic", r,
				"stack", string(debug.Stack()),
			)
			h.closeConn(conn, CloseInternalError, "internal error")
			err = fmt.Errorf("realtime: session panic: %v", r)
		}
	}()

	for {
		data, rerr := conn.transport.ReadMessage()
		if rerr != nil {
			if conn.State() != StateClosed {
				logger.Debug("read ended", "error", rerr)
			}
			return nil
		}
		h.handleClientMessage(conn, data, logger)
	}
}

// handleClientMessage relays {"event": ...} to the whole room, sender included.
// Frames that are not JSON objects or lack an event field are dropped.
func (h *Hub) handleClientMessage(conn *Conn, data []byte, logger *slog.Logger) {
	if conn.State() != StateJoined {
		return
	}
	var msg map[string]json.RawMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Debug("dropping malformed frame", "error", err)
		return
	}
	event, ok := msg["event"]
	if !ok {
		return
	}
	frame, err := json.Marshal(envelope{Event: event})
	if err != nil {
		logger.Debug("dropping frame", "error", err)
		return
	}
	h.fanout(conn.key, frame, "relay")
}

func (h *Hub) closeConn(conn *Conn, code int, reason string) {
	h.registry.Remove(conn.key, conn.id)
	if conn.shutdown(code, reason) {
		h.metrics.connectionClosed(conn.key)
	}
}

// disconnect is idempotent.
func (h *Hub) disconnect(conn *Conn, logger *slog.Logger) {
	h.registry.Remove(conn.key, conn.id)
	if conn.shutdown(0, "") {
		h.metrics.connectionClosed(conn.key)
		logger.Debug("connection closed")
	}
}
