// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Durations are expressed in milliseconds and exposed through helpers.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"context"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"omitempty,oneof=debug info warn warning error DEBUG INFO WARN WARNING ERROR"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr" validate:"required"`

	// SnapshotPath is the YAML file the store is persisted to. Empty disables persistence.
	SnapshotPath string `koanf:"snapshot_path"`

	// SnapshotIntervalMS is how often the store is flushed to SnapshotPath.
	SnapshotIntervalMS int `koanf:"snapshot_interval_ms" validate:"gte=100"`

	// CurrentStep seeds the phase: 0 disabled, 1 generation, 2 selection.
	CurrentStep int `koanf:"current_step" validate:"gte=0,lte=2"`

	// RoundsTarget is the number of generation rounds per session.
	RoundsTarget int `koanf:"rounds_target" validate:"gte=1"`

	// Prompt is the criteria text passed to the option generator.
	Prompt string `koanf:"prompt"`

	// ExploitProbability is the chance of reusing known candidates instead of generating new ones.
	ExploitProbability float64 `koanf:"exploit_probability" validate:"gte=0,lte=1"`

	// HistoryLimit bounds the recent outcomes sent to the generator.
	HistoryLimit int `koanf:"history_limit" validate:"gte=0"`

	// HistoryTopK bounds the most-selected candidates sent to the generator.
	HistoryTopK int `koanf:"history_top_k" validate:"gte=0"`

	// SeedCandidates are inserted at startup so the exploit path has a pool
	// before the generator has produced anything.
	SeedCandidates []string `koanf:"seed_candidates" validate:"dive,required,max=200"`

	// Generator settings.
	GeneratorProvider   string  `koanf:"generator_provider" validate:"oneof=none openai anthropic google"`
	GeneratorModel      string  `koanf:"generator_model"`
	GeneratorAPIKey     string  `koanf:"generator_api_key"`
	GeneratorBaseURL    string  `koanf:"generator_base_url" validate:"omitempty,url"`
	GeneratorTimeoutMS  int     `koanf:"generator_timeout_ms" validate:"gte=1"`
	GeneratorMaxRetries int     `koanf:"generator_max_retries" validate:"gte=0,lte=10"`
	GeneratorRateLimit  float64 `koanf:"generator_rate_limit" validate:"gte=0"`
	GeneratorBurst      int     `koanf:"generator_burst" validate:"gte=1"`
	GeneratorMaxTokens  int     `koanf:"generator_max_tokens" validate:"gte=16"`
	GeneratorTemp       float64 `koanf:"generator_temperature" validate:"gte=0,lte=2"`

	// Circuit breaker around the generator.
	BreakerMaxFailures int `koanf:"breaker_max_failures" validate:"gte=1"`
	BreakerCooldownMS  int `koanf:"breaker_cooldown_ms" validate:"gte=1"`

	// DedupeSize bounds the number of resolved continuation tokens remembered.
	DedupeSize int `koanf:"dedupe_size" validate:"gte=1"`

	// SessionCookie is the cookie carrying the anonymous session id.
	SessionCookie string `koanf:"session_cookie" validate:"required"`

	// AdminToken guards the admin endpoints. Empty disables them.
	AdminToken string `koanf:"admin_token"`
}

// New creates a Config populated with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		SnapshotPath:        "",
		SnapshotIntervalMS:  5_000,
		CurrentStep:         1,
		RoundsTarget:        10,
		Prompt:              "What should we name the new team mascot?",
		ExploitProbability:  0.5,
		HistoryLimit:        10,
		HistoryTopK:         5,
		GeneratorProvider:   "none",
		GeneratorModel:      "",
		GeneratorTimeoutMS:  8_000,
		GeneratorMaxRetries: 2,
		GeneratorRateLimit:  5,
		GeneratorBurst:      5,
		GeneratorMaxTokens:  128,
		GeneratorTemp:       0.9,
		BreakerMaxFailures:  5,
		BreakerCooldownMS:   30_000,
		DedupeSize:          100_000,
		SessionCookie:       "duel_session",
	}
}

// SnapshotInterval returns SnapshotIntervalMS as a duration.
func (c *Config) SnapshotInterval() time.Duration {
	return time.Duration(c.SnapshotIntervalMS) * time.Millisecond
}

// GeneratorTimeout returns GeneratorTimeoutMS as a duration.
func (c *Config) GeneratorTimeout() time.Duration {
	return time.Duration(c.GeneratorTimeoutMS) * time.Millisecond
}

// BreakerCooldown returns BreakerCooldownMS as a duration.
func (c *Config) BreakerCooldown() time.Duration {
	return time.Duration(c.BreakerCooldownMS) * time.Millisecond
}
