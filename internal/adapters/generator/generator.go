// Package generator turns an LLM client into the option source used by the
// pair selector.
package generator

import (
	"context"
	"sync"

	"github.com/okian/duel/internal/adapters/llm"
	"github.com/okian/duel/internal/domain/selection"
	"github.com/okian/duel/pkg/logger"
)

// Completer is the slice of the LLM client the generator needs.
type Completer interface {
	Complete(ctx context.Context, system, prompt string, opts map[string]any) (string, error)
	Provider() string
}

// Generator proposes two candidate texts per call.
type Generator struct {
	client      Completer
	maxTokens   int
	temperature float64
	logger      logger.Logger
	logOnce     sync.Once
}

var _ selection.Generator = (*Generator)(nil)

// Option configures a Generator.
type Option func(*Generator)

// WithMaxTokens bounds the response length.
func WithMaxTokens(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature, within [0, 2].
func WithTemperature(t float64) Option {
	return func(g *Generator) {
		if t >= 0 && t <= 2 {
			g.temperature = t
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// New creates a Generator over client.
func New(client Completer, opts ...Option) *Generator {
	g := &Generator{client: client, maxTokens: 128, temperature: 0.9}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) log() logger.Logger {
	g.logOnce.Do(func() {
		if g.logger == nil {
			g.logger = logger.Named("generator")
		}
	})
	return g.logger
}

// Generate implements selection.Generator. Every failure is an *AdapterError.
func (g *Generator) Generate(ctx context.Context, prompt string, summary selection.HistorySummary) (string, string, error) {
	if g.client == nil {
		return "", "", &AdapterError{Kind: KindUnavailable, Err: ErrNoClient}
	}
	provider := g.client.Provider()

	raw, err := g.client.Complete(ctx, SystemPrompt, UserContent(prompt, summary), map[string]any{
		llm.OptMaxTokens:   g.maxTokens,
		llm.OptTemperature: g.temperature,
	})
	if err != nil {
		return "", "", &AdapterError{Kind: KindProvider, Provider: provider, Err: err}
	}

	a, b, ok := ParsePair(raw)
	if !ok {
		g.log().Debug(ctx, "unparseable generator response",
			logger.String("provider", provider),
			logger.Int("length", len(raw)))
		return "", "", &AdapterError{Kind: KindMalformed, Provider: provider, Raw: raw}
	}
	return a, b, nil
}
