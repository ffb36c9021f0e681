// Package service wires the scoring domain together and implements the
// operations served by the HTTP API: score mutations, ranking reads, live
// subscriptions and sync control.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/okian/arena/internal/adapters/fanout"
	"github.com/okian/arena/internal/adapters/identity"
	"github.com/okian/arena/internal/adapters/live"
	"github.com/okian/arena/internal/adapters/mirror"
	"github.com/okian/arena/internal/adapters/repository"
	"github.com/okian/arena/internal/domain/aggregate"
	"github.com/okian/arena/internal/domain/dedupe"
	"github.com/okian/arena/internal/domain/gate"
	"github.com/okian/arena/internal/domain/ranking"
	"github.com/okian/arena/pkg/logger"
)

// Service implements the API dependencies for the scoring system.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	gate      *gate.Gate
	engine    *ranking.Engine
	syncer    *fanout.Syncer
	hub       *live.Hub
	deduper   dedupe.Deduper
	directory *identity.Directory

	// Configuration
	scale         decimal.Decimal
	syncWorkers   int
	syncQueueSize int
	dedupeSize    int
	liveBuffer    int
	now           func() time.Time

	// State
	started bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithScale sets the mark scale used for averages (10 by default).
func WithScale(scale decimal.Decimal) Option {
	return func(s *Service) {
		if scale.IsPositive() {
			s.scale = scale
		}
	}
}

// WithSyncWorkers sets the number of fan-out worker shards.
func WithSyncWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.syncWorkers = n
		}
	}
}

// WithSyncQueueSize sets the capacity of each fan-out shard.
func WithSyncQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.syncQueueSize = n
		}
	}
}

// WithDedupeSize sets how many inbound update ids are remembered.
func WithDedupeSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.dedupeSize = n
		}
	}
}

// WithLiveBuffer sets the per-subscriber live buffer depth.
func WithLiveBuffer(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.liveBuffer = n
		}
	}
}

// WithClock sets the time source for sync status timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs the service over a store and a mirror client. Both stay
// owned by the caller.
func New(store repository.Store, m mirror.Client, opts ...Option) *Service {
	s := &Service{
		store:         store,
		scale:         aggregate.DefaultScale,
		syncWorkers:   4,
		syncQueueSize: 1024,
		dedupeSize:    50000,
		liveBuffer:    64,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.gate = gate.New()
	s.engine = ranking.NewEngine(store, s.gate, ranking.WithScale(s.scale))
	s.hub = live.NewHub(live.WithSendBuffer(s.liveBuffer))
	s.syncer = fanout.New(store, m, s.hub, s.engine,
		fanout.WithWorkers(s.syncWorkers),
		fanout.WithQueueSize(s.syncQueueSize),
		fanout.WithClock(s.now),
	)
	s.deduper = dedupe.NewWindow(dedupe.WithMaxSize(s.dedupeSize))
	s.directory = identity.NewDirectory(store)
	return s
}

// Start launches the fan-out workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting scoring service...")
	s.syncer.Start(ctx)
	s.started = true
	s.logger.Info(ctx, "scoring service started",
		logger.Int("syncWorkers", s.syncWorkers),
		logger.Int("syncQueueSize", s.syncQueueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.String("scale", s.scale.String()),
	)
	return nil
}

// Stop drains pending sync jobs and disconnects live subscribers.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping scoring service...")
	err := s.syncer.Stop(ctx)
	s.hub.Close()
	s.started = false
	s.logger.Info(ctx, "scoring service stopped")
	return err
}

// Hub returns the live hub that serves websocket subscribers.
func (s *Service) Hub() *live.Hub { return s.hub }

// Engine returns the ranking engine.
func (s *Service) Engine() *ranking.Engine { return s.engine }

// Directory returns the judge directory.
func (s *Service) Directory() *identity.Directory { return s.directory }

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"started":         s.started,
		"syncWorkers":     s.syncWorkers,
		"syncQueueSize":   s.syncQueueSize,
		"pendingSyncJobs": s.syncer.Pending(ctx),
		"liveSubscribers": s.hub.Total(),
		"dedupeSize":      s.deduper.Size(),
		"scale":           s.scale.InexactFloat64(),
	}
}
