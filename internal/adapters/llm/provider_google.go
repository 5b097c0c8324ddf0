package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

// GoogleDefaultModel is used when no model is configured.
const GoogleDefaultModel = "gemini-2.0-flash"

func init() {
	RegisterProvider("google", newGoogleProvider)
}

type googleProvider struct {
	baseProvider
	client *genai.Client
}

func newGoogleProvider(cfg Config) (CoreLLM, error) {
	if cfg.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	model := cfg.Model
	if model == "" {
		model = GoogleDefaultModel
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	baseURL, err := validateBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("create google client: %w", err)
	}
	return &googleProvider{
		baseProvider: baseProvider{model: model},
		client:       client,
	}, nil
}

func (p *googleProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	o := parseOptions(opts, p.GetModel())

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(min(o.MaxTokens, math.MaxInt32)),
	}
	if o.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*o.Temperature))
	}
	if o.System != "" {
		config.SystemInstruction = genai.NewContentFromText(o.System, genai.RoleUser)
	}

	resp, err := p.client.Models.GenerateContent(ctx, o.Model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, config)
	if err != nil {
		return "", 0, 0, p.handleError(err)
	}

	content := resp.Text()
	if content == "" {
		return "", 0, 0, ErrEmptyResponse
	}
	var in, out int64
	if u := resp.UsageMetadata; u != nil {
		in, out = int64(u.PromptTokenCount), int64(u.CandidatesTokenCount)
	}
	return content, tokenCount(in, prompt), tokenCount(out, content), nil
}

func (p *googleProvider) handleError(err error) error {
	if pe := classifyContext("google", err); pe != nil {
		return pe
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if blockedBySafety(apiErr) {
			return &ProviderError{Type: ErrorTypeContentPolicy, Provider: "google", StatusCode: apiErr.Code, Message: "blocked by safety filters", Err: err}
		}
		return classifyHTTP("google", apiErr.Code, apiErr.Message, err)
	}
	return &ProviderError{Type: ErrorTypeNetwork, Provider: "google", Message: "request failed", Err: err}
}

func blockedBySafety(apiErr *googleapi.Error) bool {
	lower := strings.ToLower(apiErr.Message)
	if strings.Contains(lower, "safety") || strings.Contains(lower, "blocked") {
		return true
	}
	for _, e := range apiErr.Errors {
		if e.Reason == "SAFETY" || e.Reason == "BLOCKED" {
			return true
		}
	}
	return false
}
