package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

var loaderKeys = []string{
	"GROUPSYNC_ENV_FILE",
	"GROUPSYNC_CONFIG_FILE",
	"GROUPSYNC_HTTP_PORT",
	"GROUPSYNC_STORE",
	"GROUPSYNC_SQLITE_DSN",
	"GROUPSYNC_TOKEN_SECRET",
	"GROUPSYNC_TOKEN_ISSUER",
	"GROUPSYNC_TOKEN_LEEWAY",
	"GROUPSYNC_LOG_LEVEL",
	"GROUPSYNC_METRICS_ENABLED",
	"GROUPSYNC_WS_SEND_BUFFER",
	"GROUPSYNC_WS_WRITE_TIMEOUT",
	"GROUPSYNC_ALLOWED_ORIGINS",
}

// clearEnvironment unsets every loader key for the duration of the test and points
// the .env lookup at a file that does not exist.
func clearEnvironment(t *testing.T) {
	t.Helper()
	for _, key := range loaderKeys {
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("failed to unset %s: %v", key, err)
		}
	}
	t.Setenv("GROUPSYNC_ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
}

func TestLoader_ParseEnvironment(t *testing.T) {
	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		clearEnvironment(t)
		const secret = "super-secret"
		t.Setenv("GROUPSYNC_TOKEN_SECRET", secret)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 8080 {
			t.Fatalf("expected default HTTP port 8080, got %d", cfg.HTTPPort)
		}
		if cfg.Store != StoreSQLite {
			t.Fatalf("expected sqlite store by default, got %q", cfg.Store)
		}
		if cfg.SQLiteDSN != "groupsync.db" {
			t.Fatalf("unexpected default DSN: %q", cfg.SQLiteDSN)
		}
		if cfg.TokenSecret != secret {
			t.Fatalf("expected token secret to be %q, got %q", secret, cfg.TokenSecret)
		}
		if cfg.WSSendBuffer != 64 || cfg.WSWriteTimeout != 10*time.Second {
			t.Fatalf("unexpected websocket defaults: %d %s", cfg.WSSendBuffer, cfg.WSWriteTimeout)
		}
		if !cfg.MetricsEnabled {
			t.Fatalf("expected metrics to be enabled by default")
		}
	})

	t.Run("errors when required values are missing", func(t *testing.T) {
		clearEnvironment(t)

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error when required values are missing")
		}
		expected := "required environment variables are not set: GROUPSYNC_TOKEN_SECRET"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("parses duration and numeric fields", func(t *testing.T) {
		clearEnvironment(t)
		t.Setenv("GROUPSYNC_TOKEN_SECRET", "secret-value")
		t.Setenv("GROUPSYNC_HTTP_PORT", "9090")
		t.Setenv("GROUPSYNC_STORE", "Memory")
		t.Setenv("GROUPSYNC_TOKEN_LEEWAY", "30s")
		t.Setenv("GROUPSYNC_WS_SEND_BUFFER", "16")
		t.Setenv("GROUPSYNC_WS_WRITE_TIMEOUT", "2s")
		t.Setenv("GROUPSYNC_METRICS_ENABLED", "false")
		t.Setenv("GROUPSYNC_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 9090 {
			t.Fatalf("expected HTTP port 9090, got %d", cfg.HTTPPort)
		}
		if cfg.Store != StoreMemory {
			t.Fatalf("expected memory store, got %q", cfg.Store)
		}
		if cfg.TokenLeeway != 30*time.Second {
			t.Fatalf("expected leeway 30s, got %s", cfg.TokenLeeway)
		}
		if cfg.WSSendBuffer != 16 || cfg.WSWriteTimeout != 2*time.Second {
			t.Fatalf("unexpected websocket settings: %d %s", cfg.WSSendBuffer, cfg.WSWriteTimeout)
		}
		if cfg.MetricsEnabled {
			t.Fatalf("expected metrics to be disabled")
		}
		want := []string{"https://a.example", "https://b.example"}
		if !reflect.DeepEqual(cfg.AllowedOrigins, want) {
			t.Fatalf("unexpected origins: %v", cfg.AllowedOrigins)
		}
	})

	t.Run("reports every invalid value", func(t *testing.T) {
		clearEnvironment(t)
		t.Setenv("GROUPSYNC_TOKEN_SECRET", "secret-value")
		t.Setenv("GROUPSYNC_HTTP_PORT", "eighty")
		t.Setenv("GROUPSYNC_STORE", "postgres")
		t.Setenv("GROUPSYNC_LOG_LEVEL", "loud")

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error for invalid values")
		}
		expected := "environment variables have invalid values: GROUPSYNC_HTTP_PORT, GROUPSYNC_STORE, GROUPSYNC_LOG_LEVEL"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})
}

func TestLoader_ConfigFileAndDotEnv(t *testing.T) {
	clearEnvironment(t)
	dir := t.TempDir()

	configPath := filepath.Join(dir, "groupsync.yaml")
	yamlBody := strings.Join([]string{
		"http_port: 7070",
		"store: memory",
		"token_issuer: file-issuer",
		"ws_write_timeout: 3s",
		"allowed_origins:",
		"  - https://file.example",
	}, "\n")
	if err := os.WriteFile(configPath, []byte(yamlBody), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	envPath := filepath.Join(dir, "test.env")
	if err := os.WriteFile(envPath, []byte("GROUPSYNC_TOKEN_SECRET=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("GROUPSYNC_TOKEN_SECRET") })

	t.Setenv("GROUPSYNC_ENV_FILE", envPath)
	t.Setenv("GROUPSYNC_CONFIG_FILE", configPath)
	t.Setenv("GROUPSYNC_HTTP_PORT", "6060")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.TokenSecret != "from-dotenv" {
		t.Fatalf("expected secret from .env, got %q", cfg.TokenSecret)
	}
	if cfg.HTTPPort != 6060 {
		t.Fatalf("expected environment to override file port, got %d", cfg.HTTPPort)
	}
	if cfg.Store != StoreMemory || cfg.TokenIssuer != "file-issuer" {
		t.Fatalf("expected file values to apply, got store=%q issuer=%q", cfg.Store, cfg.TokenIssuer)
	}
	if cfg.WSWriteTimeout != 3*time.Second {
		t.Fatalf("expected write timeout from file, got %s", cfg.WSWriteTimeout)
	}
	if !reflect.DeepEqual(cfg.AllowedOrigins, []string{"https://file.example"}) {
		t.Fatalf("unexpected origins: %v", cfg.AllowedOrigins)
	}
}
