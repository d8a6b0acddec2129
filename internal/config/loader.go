package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/example/groupsync/internal/logging"
)

// Store drivers.
const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Config captures the settings of the groupsync server.
type Config struct {
	HTTPPort       int           `yaml:"http_port"`
	Store          string        `yaml:"store"`
	SQLiteDSN      string        `yaml:"sqlite_dsn"`
	TokenSecret    string        `yaml:"token_secret"`
	TokenIssuer    string        `yaml:"token_issuer"`
	TokenLeeway    time.Duration `yaml:"token_leeway"`
	LogLevel       string        `yaml:"log_level"`
	MetricsEnabled bool          `yaml:"metrics_enabled"`
	WSSendBuffer   int           `yaml:"ws_send_buffer"`
	WSWriteTimeout time.Duration `yaml:"ws_write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		HTTPPort:       8080,
		Store:          StoreSQLite,
		SQLiteDSN:      "groupsync.db",
		LogLevel:       "info",
		MetricsEnabled: true,
		WSSendBuffer:   64,
		WSWriteTimeout: 10 * time.Second,
	}
}

// Load builds the configuration in three layers: defaults, an optional YAML file
// named by GROUPSYNC_CONFIG_FILE, then GROUPSYNC_* environment variables. A .env
// file (GROUPSYNC_ENV_FILE, default ".env") is loaded first when present and never
// overrides variables that are already set.
//
// Missing required values and unparsable values are reported together.
func Load() (Config, error) {
	envFile := strings.TrimSpace(os.Getenv("GROUPSYNC_ENV_FILE"))
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load %s: %w", envFile, err)
	}

	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("GROUPSYNC_CONFIG_FILE")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 2)

	if portValue := env("GROUPSYNC_HTTP_PORT"); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil {
			invalid = append(invalid, "GROUPSYNC_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		invalid = appendOnce(invalid, "GROUPSYNC_HTTP_PORT")
	}

	if store := env("GROUPSYNC_STORE"); store != "" {
		cfg.Store = strings.ToLower(store)
	}
	if cfg.Store != StoreSQLite && cfg.Store != StoreMemory {
		invalid = append(invalid, "GROUPSYNC_STORE")
	}

	if dsn := env("GROUPSYNC_SQLITE_DSN"); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	if secret := env("GROUPSYNC_TOKEN_SECRET"); secret != "" {
		cfg.TokenSecret = secret
	}
	if strings.TrimSpace(cfg.TokenSecret) == "" {
		missing = append(missing, "GROUPSYNC_TOKEN_SECRET")
	}

	if issuer := env("GROUPSYNC_TOKEN_ISSUER"); issuer != "" {
		cfg.TokenIssuer = issuer
	}

	if leewayValue := env("GROUPSYNC_TOKEN_LEEWAY"); leewayValue != "" {
		leeway, err := time.ParseDuration(leewayValue)
		if err != nil || leeway < 0 {
			invalid = append(invalid, "GROUPSYNC_TOKEN_LEEWAY")
		} else {
			cfg.TokenLeeway = leeway
		}
	}

	if level := env("GROUPSYNC_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		invalid = append(invalid, "GROUPSYNC_LOG_LEVEL")
	}

	if metricsValue := env("GROUPSYNC_METRICS_ENABLED"); metricsValue != "" {
		enabled, err := strconv.ParseBool(metricsValue)
		if err != nil {
			invalid = append(invalid, "GROUPSYNC_METRICS_ENABLED")
		} else {
			cfg.MetricsEnabled = enabled
		}
	}

	if bufferValue := env("GROUPSYNC_WS_SEND_BUFFER"); bufferValue != "" {
		buffer, err := strconv.Atoi(bufferValue)
		if err != nil {
			invalid = append(invalid, "GROUPSYNC_WS_SEND_BUFFER")
		} else {
			cfg.WSSendBuffer = buffer
		}
	}
	if cfg.WSSendBuffer <= 0 {
		invalid = appendOnce(invalid, "GROUPSYNC_WS_SEND_BUFFER")
	}

	if timeoutValue := env("GROUPSYNC_WS_WRITE_TIMEOUT"); timeoutValue != "" {
		timeout, err := time.ParseDuration(timeoutValue)
		if err != nil || timeout <= 0 {
			invalid = append(invalid, "GROUPSYNC_WS_WRITE_TIMEOUT")
		} else {
			cfg.WSWriteTimeout = timeout
		}
	}

	if origins := env("GROUPSYNC_ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitList(origins)
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("environment variables have invalid values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func appendOnce(values []string, value string) []string {
	for _, v := range values {
		if v == value {
			return values
		}
	}
	return append(values, value)
}
