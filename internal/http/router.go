package http

import (
	"context"
	"log/slog"
	"net/http"
)

// RouterConfig wires handlers into the mux. Nil handlers leave their routes unregistered.
type RouterConfig struct {
	Groups       *GroupHandler
	Schedules    *ScheduleHandler
	Availability *AvailabilityHandler
	Realtime     *RealtimeHandler
	// Verifier guards every REST route. The websocket route verifies its own token.
	Verifier TokenVerifier
	// Metrics is served at GET /metrics when set.
	Metrics http.Handler
	// Health is probed by GET /healthz when set.
	Health     func(ctx context.Context) error
	Logger     *slog.Logger
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	logger := defaultLogger(cfg.Logger)

	protect := func(h http.HandlerFunc) http.Handler {
		if cfg.Verifier == nil {
			return h
		}
		return RequireToken(cfg.Verifier, logger)(h)
	}

	if cfg.Groups != nil {
		mux.Handle("GET /groups", protect(cfg.Groups.List))
		mux.Handle("POST /groups", protect(cfg.Groups.Create))
		mux.Handle("GET /groups/{groupID}", protect(cfg.Groups.Get))
		mux.Handle("PATCH /groups/{groupID}", protect(cfg.Groups.Rename))
		mux.Handle("DELETE /groups/{groupID}", protect(cfg.Groups.Delete))
		mux.Handle("GET /groups/{groupID}/members", protect(cfg.Groups.ListMembers))
		mux.Handle("POST /groups/{groupID}/members", protect(cfg.Groups.AddMember))
		mux.Handle("DELETE /groups/{groupID}/members/{userID}", protect(cfg.Groups.RemoveMember))
		mux.Handle("PUT /groups/{groupID}/members/{userID}/active-schedule", protect(cfg.Groups.SetActiveSchedule))
	}

	if cfg.Availability != nil {
		mux.Handle("GET /groups/{groupID}/availability", protect(cfg.Availability.Get))
	}

	if cfg.Schedules != nil {
		mux.Handle("GET /schedules", protect(cfg.Schedules.List))
		mux.Handle("POST /schedules", protect(cfg.Schedules.Create))
		mux.Handle("GET /schedules/{scheduleID}", protect(cfg.Schedules.Get))
		mux.Handle("DELETE /schedules/{scheduleID}", protect(cfg.Schedules.Delete))
		mux.Handle("GET /schedules/{scheduleID}/events", protect(cfg.Schedules.ListEvents))
		mux.Handle("POST /schedules/{scheduleID}/events", protect(cfg.Schedules.CreateEvent))
		mux.Handle("PUT /schedules/{scheduleID}/events/{eventID}", protect(cfg.Schedules.UpdateEvent))
		mux.Handle("DELETE /schedules/{scheduleID}/events/{eventID}", protect(cfg.Schedules.DeleteEvent))
	}

	if cfg.Realtime != nil {
		mux.HandleFunc("GET /ws/{namespace}/{objectID}", cfg.Realtime.Serve)
		mux.HandleFunc("GET /ws/{namespace}/{objectID}/{$}", cfg.Realtime.Serve)
	}

	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	responder := newResponder(logger)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Health != nil {
			if err := cfg.Health(r.Context()); err != nil {
				responder.loggerFor(r.Context()).ErrorContext(r.Context(), "health check failed", "error", err)
				responder.writeJSON(r.Context(), w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
				return
			}
		}
		responder.writeJSON(r.Context(), w, http.StatusOK, healthResponse{Status: "ok"})
	})

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}

	return handler
}

type healthResponse struct {
	Status string `json:"status"`
}
