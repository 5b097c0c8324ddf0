// Package phase holds the externally supplied phase configuration.
package phase

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Step identifies which phase the service is in.
type Step int

// Known steps.
const (
	StepDisabled   Step = 0
	StepGeneration Step = 1
	StepSelection  Step = 2
)

// String returns the metric/log label for s.
func (s Step) String() string {
	switch s {
	case StepDisabled:
		return "disabled"
	case StepGeneration:
		return "generation"
	case StepSelection:
		return "selection"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// Config is the read-mostly phase configuration.
type Config struct {
	CurrentStep  Step   `json:"current_step" yaml:"current_step" validate:"gte=0,lte=2"`
	RoundsTarget int    `json:"rounds_target" yaml:"rounds_target" validate:"gte=1"`
	Prompt       string `json:"prompt" yaml:"prompt" validate:"max=4000"`
}

// Validate checks c against its struct tags.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

var validate = validator.New()

// Provider supplies the current phase configuration. Implementations must
// not cache across requests.
type Provider interface {
	Current(ctx context.Context) (Config, error)
}

// Saver persists a configuration set at runtime.
type Saver interface {
	SavePhase(ctx context.Context, cfg Config) error
}

// Holder is an in-memory Provider that can be updated at runtime.
type Holder struct {
	mu    sync.RWMutex
	cfg   Config
	saver Saver
}

// HolderOption configures a Holder.
type HolderOption func(*Holder)

// WithSaver makes Set persist the new configuration before it takes effect.
func WithSaver(sv Saver) HolderOption {
	return func(h *Holder) {
		h.saver = sv
	}
}

// NewHolder returns a Holder seeded with cfg.
func NewHolder(cfg Config, opts ...HolderOption) (*Holder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	h := &Holder{cfg: cfg}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Current returns the configuration in effect.
func (h *Holder) Current(_ context.Context) (Config, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg, nil
}

// Set replaces the configuration after validating and persisting it.
func (h *Holder) Set(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.saver != nil {
		if err := h.saver.SavePhase(ctx, cfg); err != nil {
			return fmt.Errorf("save phase: %w", err)
		}
	}
	h.cfg = cfg
	return nil
}
