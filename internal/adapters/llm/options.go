package llm

import (
	"fmt"
	"net/url"
)

// Request option keys understood by every provider.
const (
	OptModel       = "model"
	OptSystem      = "system"
	OptMaxTokens   = "max_tokens"
	OptTemperature = "temperature"
)

// DefaultMaxTokens bounds responses when the caller does not.
const DefaultMaxTokens = 256

// requestOptions is the parsed, provider-neutral view of an opts map.
type requestOptions struct {
	Model       string
	System      string
	MaxTokens   int
	Temperature *float64
}

func parseOptions(opts map[string]any, defaultModel string) requestOptions {
	o := requestOptions{Model: defaultModel, MaxTokens: DefaultMaxTokens}
	if v, ok := opts[OptModel].(string); ok && v != "" {
		o.Model = v
	}
	if v, ok := opts[OptSystem].(string); ok {
		o.System = v
	}
	switch v := opts[OptMaxTokens].(type) {
	case int:
		if v > 0 {
			o.MaxTokens = v
		}
	case int64:
		if v > 0 {
			o.MaxTokens = int(v)
		}
	}
	var t float64
	switch v := opts[OptTemperature].(type) {
	case float64:
		t = v
	case float32:
		t = float64(v)
	case int:
		t = float64(v)
	default:
		return o
	}
	if t >= 0 && t <= 2 {
		o.Temperature = &t
	}
	return o
}

// validateBaseURL requires an absolute http(s) URL. Empty means provider default.
func validateBaseURL(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("base url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("base url must include a host")
	}
	return raw, nil
}

// estimateTokens approximates four characters per token.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}

func tokenCount(actual int64, text string) int {
	if actual > 0 {
		return int(actual)
	}
	return estimateTokens(text)
}
