package llm

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MockCoreLLM is a scriptable CoreLLM for tests.
type MockCoreLLM struct {
	mu sync.Mutex

	// Responses are returned in order; the last one repeats.
	Responses []string
	TokensIn  int
	TokensOut int
	Err       error
	Model     string
	Delay     time.Duration
	// FailFirst makes the first N calls return Err (or a generic error).
	FailFirst int

	calls      int
	lastPrompt string
	lastOpts   map[string]any
}

// NewMockCoreLLM returns a mock answering with responses.
func NewMockCoreLLM(responses ...string) *MockCoreLLM {
	return &MockCoreLLM{Responses: responses, TokensIn: 10, TokensOut: 5, Model: "mock-model"}
}

var errMockFailure = errors.New("mock failure")

func (m *MockCoreLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.lastPrompt = prompt
	m.lastOpts = opts
	delay := m.Delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", 0, 0, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if call <= m.FailFirst {
		if m.Err != nil {
			return "", 0, 0, m.Err
		}
		return "", 0, 0, errMockFailure
	}
	if m.Err != nil && m.FailFirst == 0 {
		return "", 0, 0, m.Err
	}
	if len(m.Responses) == 0 {
		return "", 0, 0, ErrEmptyResponse
	}
	idx := min(call-m.FailFirst-1, len(m.Responses)-1)
	return m.Responses[idx], m.TokensIn, m.TokensOut, nil
}

func (m *MockCoreLLM) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Model
}

func (m *MockCoreLLM) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Model = model
}

// Calls returns how many requests were made.
func (m *MockCoreLLM) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastPrompt returns the most recent prompt and options.
func (m *MockCoreLLM) LastPrompt() (string, map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPrompt, m.lastOpts
}
