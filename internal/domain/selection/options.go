package selection

import (
	"time"

	"github.com/okian/duel/pkg/logger"
)

// Option applies a configuration option to the Selector.
type Option func(*Selector)

// WithExploitProbability sets the chance of taking the exploitation path.
func WithExploitProbability(p float64) Option {
	return func(s *Selector) {
		if p >= 0 && p <= 1 {
			s.pExploit = p
		}
	}
}

// WithGenerator sets the option generator used for exploration.
func WithGenerator(g Generator) Option {
	return func(s *Selector) {
		s.generator = g
	}
}

// WithGeneratorTimeout bounds a single generator call.
func WithGeneratorTimeout(d time.Duration) Option {
	return func(s *Selector) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithHistoryBounds sets the top-K and recent-outcome limits of the summary.
func WithHistoryBounds(topK, limit int) Option {
	return func(s *Selector) {
		if topK >= 0 {
			s.topK = topK
		}
		if limit >= 0 {
			s.historyLimit = limit
		}
	}
}

// WithRand sets the random source.
func WithRand(r Rand) Option {
	return func(s *Selector) {
		if r != nil {
			s.rng = r
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Selector) {
		if l != nil {
			s.logger = l
		}
	}
}
