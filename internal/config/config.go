// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and ARENA_* environment variables over them.
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Store and mirror drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverREST   = "rest"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoder: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreDriver selects the persistence backend: memory or sqlite.
	StoreDriver string `koanf:"store_driver"`

	// SQLitePath is the database file used by the sqlite driver.
	SQLitePath string `koanf:"sqlite_path"`

	// DBDebug logs every SQL query.
	DBDebug bool `koanf:"db_debug"`

	// SyncWorkers sets the number of fan-out shards.
	SyncWorkers int `koanf:"sync_workers"`

	// SyncQueueSize bounds each fan-out shard.
	SyncQueueSize int `koanf:"sync_queue_size"`

	// MirrorDriver selects the realtime mirror: memory or rest.
	MirrorDriver string `koanf:"mirror_driver"`

	// MirrorURL is the base URL of the REST mirror.
	MirrorURL string `koanf:"mirror_url"`

	// MirrorAuthToken is sent as the auth query parameter.
	MirrorAuthToken string `koanf:"mirror_auth_token"`

	// MirrorTimeout bounds one mirror request.
	MirrorTimeout time.Duration `koanf:"mirror_timeout"`

	// MirrorMaxRetries caps attempts per mirror request.
	MirrorMaxRetries int `koanf:"mirror_max_retries"`

	// AuthSecret signs and verifies bearer tokens.
	AuthSecret string `koanf:"auth_secret"`

	// InboundToken authenticates remote device updates. Empty disables the endpoint.
	InboundToken string `koanf:"inbound_token"`

	// PercentageScale is the mark that counts as 100%.
	PercentageScale int `koanf:"percentage_scale"`

	// InboundDedupeSize sets how many device update ids are remembered.
	InboundDedupeSize int `koanf:"inbound_dedupe_size"`

	// LiveSendBuffer is the per-subscriber message buffer.
	LiveSendBuffer int `koanf:"live_send_buffer"`

	// SeedFile is an optional YAML fixture loaded at startup.
	SeedFile string `koanf:"seed_file"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		StoreDriver:       DriverMemory,
		SQLitePath:        "arena.db",
		SyncWorkers:       runtime.NumCPU(),
		SyncQueueSize:     1024,
		MirrorDriver:      DriverMemory,
		MirrorTimeout:     5 * time.Second,
		MirrorMaxRetries:  3,
		PercentageScale:   10,
		InboundDedupeSize: 50_000,
		LiveSendBuffer:    64,
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.Addr == "" {
		problems = append(problems, "addr must not be empty")
	}
	switch c.StoreDriver {
	case DriverMemory:
	case DriverSQLite:
		if c.SQLitePath == "" {
			problems = append(problems, "sqlite_path is required for the sqlite store")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown store_driver %q", c.StoreDriver))
	}
	switch c.MirrorDriver {
	case DriverMemory:
	case DriverREST:
		if c.MirrorURL == "" {
			problems = append(problems, "mirror_url is required for the rest mirror")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown mirror_driver %q", c.MirrorDriver))
	}
	if c.SyncWorkers <= 0 {
		problems = append(problems, "sync_workers must be positive")
	}
	if c.SyncQueueSize <= 0 {
		problems = append(problems, "sync_queue_size must be positive")
	}
	if c.PercentageScale <= 0 {
		problems = append(problems, "percentage_scale must be positive")
	}
	if c.MirrorTimeout <= 0 {
		problems = append(problems, "mirror_timeout must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
