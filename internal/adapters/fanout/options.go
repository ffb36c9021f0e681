package fanout

import (
	"time"

	"github.com/okian/arena/pkg/logger"
)

// Option configures a Syncer.
type Option func(*Syncer)

// WithWorkers sets the number of worker shards.
func WithWorkers(n int) Option {
	return func(s *Syncer) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithQueueSize sets the capacity of each shard's queue.
func WithQueueSize(n int) Option {
	return func(s *Syncer) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithClock sets the time source for sync status timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Syncer) {
		if l != nil {
			s.logger = l
		}
	}
}
