package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicDefaultModel is used when no model is configured.
const AnthropicDefaultModel = "claude-3-5-haiku-latest"

func init() {
	RegisterProvider("anthropic", newAnthropicProvider)
}

type anthropicProvider struct {
	baseProvider
	client anthropic.Client
}

func newAnthropicProvider(cfg Config) (CoreLLM, error) {
	if cfg.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	model := cfg.Model
	if model == "" {
		model = AnthropicDefaultModel
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	baseURL, err := validateBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &anthropicProvider{
		baseProvider: baseProvider{model: model},
		client:       anthropic.NewClient(opts...),
	}, nil
}

func (p *anthropicProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	o := parseOptions(opts, p.GetModel())

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(o.Model),
		MaxTokens: int64(o.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if o.Temperature != nil {
		// Anthropic accepts [0, 1].
		params.Temperature = anthropic.Float(min(*o.Temperature, 1))
	}
	if o.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: o.System}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", 0, 0, p.handleError(err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}
	content := b.String()
	if content == "" {
		return "", 0, 0, ErrEmptyResponse
	}
	return content,
		tokenCount(msg.Usage.InputTokens, prompt),
		tokenCount(msg.Usage.OutputTokens, content),
		nil
}

func (p *anthropicProvider) handleError(err error) error {
	if pe := classifyContext("anthropic", err); pe != nil {
		return pe
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return classifyHTTP("anthropic", apiErr.StatusCode, "", err)
	}
	return &ProviderError{Type: ErrorTypeNetwork, Provider: "anthropic", Message: "request failed", Err: err}
}
