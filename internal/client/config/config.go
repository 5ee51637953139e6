package config

import "time"

// Store backend selectors.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Log backend selectors.
const (
	LogSlog    = "slog"
	LogZerolog = "zerolog"
)

// Config holds runtime settings for the auth client.
//
// Fields:
//   - BaseURL: identity backend base URL.
//   - StoreBackend: credential store backend (sqlite, redis, memory).
//   - StorePath: SQLite file path for the sqlite backend.
//   - RedisAddr: host:port for the redis backend.
//   - RequestTimeout: per-request HTTP timeout.
//   - VerifyTokenOnStart: check the stored token's expiry at bootstrap
//     instead of restoring it optimistically.
//   - LogBackend: structured-log implementation (slog, zerolog).
type Config struct {
	BaseURL            string
	StoreBackend       string
	StorePath          string
	RedisAddr          string
	RequestTimeout     time.Duration
	VerifyTokenOnStart bool
	LogBackend         string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.BaseURL = "http://127.0.0.1:8080"
	c.StoreBackend = BackendSQLite
	c.StorePath = "session.db"
	c.RedisAddr = "127.0.0.1:6379"
	c.RequestTimeout = 15 * time.Second
	c.VerifyTokenOnStart = false
	c.LogBackend = LogSlog
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
