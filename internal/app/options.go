package service

import (
	"time"

	"github.com/okian/duel/internal/domain/dedupe"
	"github.com/okian/duel/internal/domain/progress"
	"github.com/okian/duel/internal/domain/selection"
	"github.com/okian/duel/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithSelector sets the pair selector used during generation.
func WithSelector(sel *selection.Selector) Option {
	return func(s *Service) {
		if sel != nil {
			s.selector = sel
		}
	}
}

// WithTracker sets the progress tracker.
func WithTracker(t *progress.Tracker) Option {
	return func(s *Service) {
		if t != nil {
			s.tracker = t
		}
	}
}

// WithDeduper sets the store of resolved continuation tokens.
func WithDeduper(d dedupe.Deduper) Option {
	return func(s *Service) {
		if d != nil {
			s.deduper = d
		}
	}
}

// WithDedupeSize sets the size of the default token cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithHistoryLimit bounds the recent outcomes passed to the selector.
func WithHistoryLimit(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.historyLimit = n
		}
	}
}

// WithSeedCandidates sets texts inserted into the pool on Start.
func WithSeedCandidates(texts []string) Option {
	return func(s *Service) {
		s.seeds = append([]string(nil), texts...)
	}
}

// WithTokenSource overrides how continuation tokens are minted.
func WithTokenSource(next func() string) Option {
	return func(s *Service) {
		if next != nil {
			s.newToken = next
		}
	}
}

// WithClock overrides the time source.
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
