package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/groupsync/internal/application"
	"github.com/example/groupsync/internal/auth"
	"github.com/example/groupsync/internal/config"
	httptransport "github.com/example/groupsync/internal/http"
	"github.com/example/groupsync/internal/logging"
	"github.com/example/groupsync/internal/notify"
	"github.com/example/groupsync/internal/persistence"
	"github.com/example/groupsync/internal/persistence/memory"
	"github.com/example/groupsync/internal/persistence/sqlite"
	"github.com/example/groupsync/internal/realtime"
)

const shutdownTimeout = 10 * time.Second

// storeHandle bundles the selected store with its health probe and cleanup.
type storeHandle struct {
	store  persistence.Store
	health func(ctx context.Context) error
	close  func() error
}

func openStore(ctx context.Context, cfg config.Config) (storeHandle, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return storeHandle{store: memory.New(), close: func() error { return nil }}, nil
	case config.StoreSQLite:
		store, err := sqlite.Open(ctx, sqlite.DefaultConfig(cfg.SQLiteDSN))
		if err != nil {
			return storeHandle{}, err
		}
		return storeHandle{store: store, health: store.Ping, close: store.Close}, nil
	default:
		return storeHandle{}, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// buildHandler wires the services, the hub and the router over store.
func buildHandler(cfg config.Config, handle storeHandle, logger *slog.Logger) (http.Handler, error) {
	verifierOptions := []auth.Option{auth.WithLeeway(cfg.TokenLeeway)}
	if cfg.TokenIssuer != "" {
		verifierOptions = append(verifierOptions, auth.WithIssuer(cfg.TokenIssuer))
	}
	verifier, err := auth.NewVerifier(cfg.TokenSecret, verifierOptions...)
	if err != nil {
		return nil, err
	}

	var (
		registry       *prometheus.Registry
		metricsHandler http.Handler
	)
	if cfg.MetricsEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	}
	var metrics *realtime.Metrics
	if registry != nil {
		metrics = realtime.NewMetrics(registry)
	}

	store := handle.store
	hub := realtime.NewHub(
		realtime.NewRegistry(),
		application.NewRoomAuthorizer(store),
		metrics,
		logger,
		realtime.HubConfig{SendBuffer: cfg.WSSendBuffer},
	)
	notifier := notify.New(hub, store, logger)

	groups := application.NewGroupService(store, notifier, uuid.NewString, time.Now, logger)
	schedules := application.NewScheduleService(store, notifier, uuid.NewString, time.Now, logger)
	availability := application.NewAvailabilityService(store, metrics, logger)

	return httptransport.NewRouter(httptransport.RouterConfig{
		Groups:       httptransport.NewGroupHandler(groups, logger),
		Schedules:    httptransport.NewScheduleHandler(schedules, logger),
		Availability: httptransport.NewAvailabilityHandler(availability, logger),
		Realtime: httptransport.NewRealtimeHandler(hub, verifier, httptransport.RealtimeConfig{
			AllowedOrigins: cfg.AllowedOrigins,
			WriteTimeout:   cfg.WSWriteTimeout,
		}, logger),
		Verifier:   verifier,
		Metrics:    metricsHandler,
		Health:     handle.health,
		Logger:     logger,
		Middleware: []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)},
	}), nil
}

func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	return logging.NewJSONLogger(w, level)
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := newLogger(os.Stdout, cfg)

	handle, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open storage", "store", cfg.Store, "error", err)
		return err
	}
	defer func() {
		if cerr := handle.close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	handler, err := buildHandler(cfg, handle, logger)
	if err != nil {
		logger.Error("failed to build server", "error", err)
		return err
	}

	// WriteTimeout stays unset: it would also cut long-lived websocket sessions.
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("groupsync listening", "addr", server.Addr, "store", cfg.Store)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server encountered error", "error", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
		return err
	}
	return nil
}
