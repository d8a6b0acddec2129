package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/groupsync/internal/auth"
	"github.com/example/groupsync/internal/realtime"
)

type roomServer interface {
	Serve(ctx context.Context, transport realtime.Transport, identity realtime.Identity, key realtime.RoomKey) error
}

// RealtimeConfig tunes the websocket endpoint.
type RealtimeConfig struct {
	// AllowedOrigins lists the browser origins that may connect. Empty keeps the
	// same-origin check; "*" accepts any origin.
	AllowedOrigins []string
	WriteTimeout   time.Duration
}

// RealtimeHandler upgrades /ws/{namespace}/{objectID} requests and hands them to the hub.
// Authentication failures are reported through close codes after the upgrade.
type RealtimeHandler struct {
	hub          roomServer
	verifier     TokenVerifier
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	responder    responder
	logger       *slog.Logger
}

func NewRealtimeHandler(hub roomServer, verifier TokenVerifier, cfg RealtimeConfig, logger *slog.Logger) *RealtimeHandler {
	base := defaultLogger(logger)
	return &RealtimeHandler{
		hub:      hub,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		writeTimeout: cfg.WriteTimeout,
		responder:    newResponder(base),
		logger:       base,
	}
}

func (h *RealtimeHandler) Serve(w http.ResponseWriter, r *http.Request) {
	namespace, ok := realtime.ParseNamespace(r.PathValue("namespace"))
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusNotFound, nil)
		return
	}
	key := realtime.RoomKey{Namespace: namespace, ObjectID: r.PathValue("objectID")}
	logger := roomLogger(r.Context(), h.logger, key, realtime.Identity{})

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	identity := h.identify(r, logger)
	logger = roomLogger(r.Context(), h.logger, key, identity)
	err = h.hub.Serve(r.Context(), realtime.NewWebSocketTransport(conn, h.writeTimeout), identity, key)
	switch {
	case err == nil:
	case errors.Is(err, realtime.ErrUnauthenticated), errors.Is(err, realtime.ErrUnauthorized):
		logger.DebugContext(r.Context(), "websocket refused", "error", err)
	default:
		logger.WarnContext(r.Context(), "websocket session ended with error", "error", err)
	}
}

// identify returns an empty identity when the token is missing or invalid so the hub
// closes the connection with the unauthenticated code.
func (h *RealtimeHandler) identify(r *http.Request, logger *slog.Logger) realtime.Identity {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		token = bearerToken(r)
	}
	if token == "" || h.verifier == nil {
		return realtime.Identity{}
	}
	identity, err := h.verifier.Verify(token)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidToken) {
			logger.ErrorContext(r.Context(), "token verification failed", "error", err)
		}
		return realtime.Identity{}
	}
	return realtime.Identity{UserID: identity.UserID}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(origin, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}
