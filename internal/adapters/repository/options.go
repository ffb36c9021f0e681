package repository

import "time"

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithClock sets the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}
