// Package llm wraps text-completion providers behind one CoreLLM interface
// and composes resilience concerns around it as middleware.
package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// CoreLLM is the minimal provider contract. DoRequest returns the response
// text plus input and output token counts.
type CoreLLM interface {
	DoRequest(ctx context.Context, prompt string, opts map[string]any) (response string, tokensIn, tokensOut int, err error)
	GetModel() string
	SetModel(model string)
}

// Middleware wraps a CoreLLM with a cross-cutting concern.
type Middleware func(CoreLLM) CoreLLM

// Config configures a provider client.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	// Timeout bounds the provider HTTP client. Zero keeps the SDK default.
	Timeout time.Duration
	// Middleware is applied in order, first entry outermost.
	Middleware []Middleware
}

// Client is a provider with its middleware chain applied.
type Client struct {
	provider string
	core     CoreLLM
}

// ProviderFactory builds a CoreLLM from configuration.
type ProviderFactory func(Config) (CoreLLM, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]ProviderFactory{}
)

// RegisterProvider makes a provider available to New under name.
func RegisterProvider(name string, factory ProviderFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

// Providers lists the registered provider names.
func Providers() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds a client for the named provider.
func New(provider string, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	factoriesMu.RLock()
	factory, ok := factories[provider]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	core, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s provider: %w", provider, err)
	}
	return Wrap(provider, core, cfg.Middleware...), nil
}

// Wrap applies middleware around an existing CoreLLM.
func Wrap(provider string, core CoreLLM, middleware ...Middleware) *Client {
	for i := len(middleware) - 1; i >= 0; i-- {
		core = middleware[i](core)
	}
	return &Client{provider: provider, core: core}
}

// Complete sends prompt with an optional system instruction.
func (c *Client) Complete(ctx context.Context, system, prompt string, opts map[string]any) (string, error) {
	if system != "" {
		merged := make(map[string]any, len(opts)+1)
		for k, v := range opts {
			merged[k] = v
		}
		merged[OptSystem] = system
		opts = merged
	}
	resp, _, _, err := c.core.DoRequest(ctx, prompt, opts)
	return resp, err
}

// Provider returns the provider name.
func (c *Client) Provider() string { return c.provider }

// GetModel returns the model used by the provider.
func (c *Client) GetModel() string { return c.core.GetModel() }

// SetModel switches the model for subsequent requests.
func (c *Client) SetModel(model string) { c.core.SetModel(model) }

// baseProvider holds the model name shared by every provider.
type baseProvider struct {
	mu    sync.RWMutex
	model string
}

func (b *baseProvider) GetModel() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.model
}

func (b *baseProvider) SetModel(model string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.model = model
}
