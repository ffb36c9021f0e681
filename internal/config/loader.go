package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variable names.
const (
	EnvPrefix     = "ARENA_"
	EnvConfigFile = "ARENA_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  0. a .env file in the working directory, if present, seeds the environment
//  1. defaults (New())
//  2. file (YAML) if ARENA_CONFIG is set
//  3. env (prefix ARENA_)
func Load(_ context.Context) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: .env: %w", ErrLoadConfig, err)
	}

	// Start with defaults
	base := New()

	k := koanf.New(".")

	// Load from file if provided
	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// Environment variables: ARENA_ADDR, ARENA_SYNC_WORKERS, ...
	// Map env keys like ARENA_SYNC_WORKERS -> sync_workers (flat keys)
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, strings.ToLower(EnvPrefix))
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	// Unmarshal into a copy
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
