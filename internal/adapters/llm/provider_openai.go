package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIDefaultModel is used when no model is configured.
const OpenAIDefaultModel = "gpt-4o-mini"

func init() {
	RegisterProvider("openai", newOpenAIProvider)
}

type openAIProvider struct {
	baseProvider
	client *openai.Client
}

func newOpenAIProvider(cfg Config) (CoreLLM, error) {
	if cfg.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	model := cfg.Model
	if model == "" {
		model = OpenAIDefaultModel
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	baseURL, err := validateBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	if cfg.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &openAIProvider{
		baseProvider: baseProvider{model: model},
		client:       openai.NewClientWithConfig(clientConfig),
	}, nil
}

func (p *openAIProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	o := parseOptions(opts, p.GetModel())

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if o.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: o.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	req := openai.ChatCompletionRequest{
		Model:     o.Model,
		Messages:  messages,
		MaxTokens: o.MaxTokens,
	}
	if o.Temperature != nil {
		req.Temperature = float32(*o.Temperature)
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", 0, 0, p.handleError(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", 0, 0, ErrEmptyResponse
	}

	content := resp.Choices[0].Message.Content
	return content,
		tokenCount(int64(resp.Usage.PromptTokens), prompt),
		tokenCount(int64(resp.Usage.CompletionTokens), content),
		nil
}

func (p *openAIProvider) handleError(err error) error {
	if pe := classifyContext("openai", err); pe != nil {
		return pe
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyHTTP("openai", apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyHTTP("openai", reqErr.HTTPStatusCode, fmt.Sprintf("request error: %s", reqErr.Error()), err)
	}
	return &ProviderError{Type: ErrorTypeNetwork, Provider: "openai", Message: "request failed", Err: err}
}
