package repository

import (
	"time"

	"github.com/okian/duel/pkg/logger"
)

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// WithSnapshotPath persists the store to path as YAML. Empty disables it.
func WithSnapshotPath(path string) Option {
	return func(s *MemoryStore) {
		s.snapshotPath = path
	}
}

// WithSnapshotInterval sets how often the store is flushed to its snapshot file.
func WithSnapshotInterval(interval time.Duration) Option {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.snapshotInterval = interval
		}
	}
}

// WithClock overrides the time source used for created-at stamps.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *MemoryStore) {
		if l != nil {
			s.logger = l
		}
	}
}
