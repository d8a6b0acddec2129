package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/groupsync/internal/config"
)

func setTestEnvironment(t *testing.T, dsn string) {
	t.Helper()
	t.Setenv("GROUPSYNC_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("GROUPSYNC_CONFIG_FILE", "")
	t.Setenv("GROUPSYNC_TOKEN_SECRET", "cli-test-secret")
	t.Setenv("GROUPSYNC_STORE", config.StoreSQLite)
	t.Setenv("GROUPSYNC_SQLITE_DSN", dsn)
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrateCommands(t *testing.T) {
	setTestEnvironment(t, filepath.Join(t.TempDir(), "groupsync.db"))

	out, err := runCommand(t, "migrate", "version")
	if err != nil {
		t.Fatalf("migrate version returned error: %v", err)
	}
	if !strings.Contains(out, "version 0 (dirty=false)") {
		t.Fatalf("expected fresh database at version 0, got %q", out)
	}

	if _, err := runCommand(t, "migrate", "up"); err != nil {
		t.Fatalf("migrate up returned error: %v", err)
	}
	out, err = runCommand(t, "migrate", "version")
	if err != nil {
		t.Fatalf("migrate version returned error: %v", err)
	}
	if !strings.Contains(out, "version 1 (dirty=false)") {
		t.Fatalf("expected version 1 after up, got %q", out)
	}

	if _, err := runCommand(t, "migrate", "down"); err != nil {
		t.Fatalf("migrate down returned error: %v", err)
	}
}

func TestMigrateRejectsMemoryStore(t *testing.T) {
	setTestEnvironment(t, filepath.Join(t.TempDir(), "groupsync.db"))
	t.Setenv("GROUPSYNC_STORE", config.StoreMemory)

	_, err := runCommand(t, "migrate", "up")
	if err == nil || !strings.Contains(err.Error(), "sqlite") {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestServeRequiresTokenSecret(t *testing.T) {
	setTestEnvironment(t, filepath.Join(t.TempDir(), "groupsync.db"))
	t.Setenv("GROUPSYNC_TOKEN_SECRET", "")

	_, err := runCommand(t, "serve")
	if err == nil || !strings.Contains(err.Error(), "GROUPSYNC_TOKEN_SECRET") {
		t.Fatalf("expected missing secret error, got %v", err)
	}
}

func TestBuildHandler_ServesHealthAndMetrics(t *testing.T) {
	cfg := config.Default()
	cfg.Store = config.StoreSQLite
	cfg.SQLiteDSN = filepath.Join(t.TempDir(), "groupsync.db")
	cfg.TokenSecret = "cli-test-secret"

	handle, err := openStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("openStore returned error: %v", err)
	}
	t.Cleanup(func() { handle.close() })

	handler, err := buildHandler(cfg, handle, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("buildHandler returned error: %v", err)
	}
	server := httptest.NewServer(handler)
	defer server.Close()

	res, err := server.Client().Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	var body struct {
		Status string `json:"status"`
	}
	err = json.NewDecoder(res.Body).Decode(&body)
	res.Body.Close()
	if err != nil || res.StatusCode != http.StatusOK || body.Status != "ok" {
		t.Fatalf("unexpected health response: %d %+v %v", res.StatusCode, body, err)
	}

	res, err = server.Client().Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	metrics, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if !strings.Contains(string(metrics), "go_goroutines") {
		t.Fatalf("expected runtime collectors in metrics output")
	}

	res, err = server.Client().Get(server.URL + "/groups")
	if err != nil {
		t.Fatalf("groups request failed: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", res.StatusCode)
	}
}

func TestOpenStore_Memory(t *testing.T) {
	cfg := config.Default()
	cfg.Store = config.StoreMemory

	handle, err := openStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("openStore returned error: %v", err)
	}
	if handle.store == nil || handle.health != nil {
		t.Fatalf("expected memory store without health probe, got %+v", handle)
	}
	if err := handle.close(); err != nil {
		t.Fatalf("close returned error: %v", err)
	}
}
