package http

import (
	"context"
	"log/slog"

	"github.com/example/groupsync/internal/realtime"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

// handlerLogger prefers the request-scoped logger installed by RequestLogger, which
// already carries request_id and, behind RequireToken, principal_id.
func handlerLogger(ctx context.Context, fallback *slog.Logger, handlerName, operation string, attrs ...any) *slog.Logger {
	logger := LoggerFromContext(ctx)
	if logger == nil {
		logger = defaultLogger(fallback)
	}

	pairs := make([]any, 0, 4+len(attrs))
	pairs = append(pairs, "handler", handlerName)
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	pairs = append(pairs, attrs...)
	return logger.With(pairs...)
}

// roomLogger scopes a websocket request to its room. The user is only known once
// the token has been checked, so an anonymous identity adds no user_id.
func roomLogger(ctx context.Context, fallback *slog.Logger, key realtime.RoomKey, identity realtime.Identity) *slog.Logger {
	attrs := []any{"namespace", string(key.Namespace), "object_id", key.ObjectID}
	if identity.UserID != "" {
		attrs = append(attrs, "user_id", identity.UserID)
	}
	return handlerLogger(ctx, fallback, "RealtimeHandler", "Serve", attrs...)
}
