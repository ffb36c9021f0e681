// Package mirror pushes denormalized documents to a remote key/value tree.
//
// Paths are slash separated ("rankings/7"). The memory driver keeps documents
// in process; the rest driver talks to a Firebase-style realtime database.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/arena/internal/domain/errs"
)

// Driver names accepted by Open.
const (
	DriverMemory = "memory"
	DriverREST   = "rest"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultMaxRetries = 3
)

var (
	// ErrClosed is returned by every call after Close.
	ErrClosed = fmt.Errorf("mirror closed: %w", errs.ErrSync)
	// ErrInvalidPath is returned for empty or malformed paths.
	ErrInvalidPath = fmt.Errorf("invalid mirror path: %w", errs.ErrValidation)
)

// Client is the mirror boundary used by the fan-out.
type Client interface {
	// Write replaces the document at path with v.
	Write(ctx context.Context, path string, v any) error
	// Read decodes the document at path into v. It reports false when absent.
	Read(ctx context.Context, path string, v any) (bool, error)
	// Delete removes the document at path and everything under it.
	Delete(ctx context.Context, path string) error
	Close() error
}

// Config selects and configures a driver.
type Config struct {
	Driver     string
	URL        string
	AuthToken  string
	Timeout    time.Duration
	MaxRetries int
}

// Open builds the configured client. An empty driver means memory.
func Open(_ context.Context, cfg Config) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverREST:
		if cfg.URL == "" {
			return nil, errors.New("mirror: rest driver requires a url")
		}
		opts := []RESTOption{WithAuthToken(cfg.AuthToken)}
		if cfg.Timeout > 0 {
			opts = append(opts, WithTimeout(cfg.Timeout))
		}
		if cfg.MaxRetries > 0 {
			opts = append(opts, WithMaxRetries(cfg.MaxRetries))
		}
		return NewREST(cfg.URL, opts...), nil
	default:
		return nil, fmt.Errorf("mirror: unknown driver %q", cfg.Driver)
	}
}

// cleanPath trims slashes and rejects empty segments.
func cleanPath(p string) (string, error) {
	p = strings.Trim(p, "/")
	if p == "" {
		return "", ErrInvalidPath
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", ErrInvalidPath
		}
	}
	return p, nil
}
