package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/groupsync/internal/application"
	"github.com/example/groupsync/internal/auth"
	"github.com/example/groupsync/internal/notify"
	"github.com/example/groupsync/internal/persistence/memory"
	"github.com/example/groupsync/internal/realtime"
	"github.com/example/groupsync/internal/testfixtures"
)

const testSecret = "http-test-secret"

type testServer struct {
	*httptest.Server
	store *memory.Storage
	seed  *testfixtures.Seeder
	hub   *realtime.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	clock := testfixtures.NewClock(time.Time{})
	ids := testfixtures.NewIDGenerator("id")

	verifier, err := auth.NewVerifier(testSecret)
	if err != nil {
		t.Fatalf("NewVerifier returned error: %v", err)
	}

	reg := prometheus.NewRegistry()
	metrics := realtime.NewMetrics(reg)
	hub := realtime.NewHub(realtime.NewRegistry(), application.NewRoomAuthorizer(store), metrics, logger, realtime.HubConfig{})
	notifier := notify.New(hub, store, logger)

	router := NewRouter(RouterConfig{
		Groups:       NewGroupHandler(application.NewGroupService(store, notifier, ids.NextFunc(), clock.NowFunc(), logger), logger),
		Schedules:    NewScheduleHandler(application.NewScheduleService(store, notifier, ids.NextFunc(), clock.NowFunc(), logger), logger),
		Availability: NewAvailabilityHandler(application.NewAvailabilityService(store, metrics, logger), logger),
		Realtime:     NewRealtimeHandler(hub, verifier, RealtimeConfig{WriteTimeout: time.Second}, logger),
		Verifier:     verifier,
		Metrics:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:       logger,
		Middleware:   []func(http.Handler) http.Handler{RequestLogger(logger)},
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testServer{Server: server, store: store, seed: testfixtures.NewSeeder(t, store), hub: hub}
}

func issueToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

// do sends a request as userID (anonymous when empty) and decodes a JSON body into out.
func (s *testServer) do(t *testing.T, method, path, userID string, body any, out any) int {
	t.Helper()

	var reader io.Reader
	if raw, ok := body.(string); ok {
		reader = strings.NewReader(raw)
	} else if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+issueToken(t, userID))
	}

	resp, err := s.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode %s %s response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}
