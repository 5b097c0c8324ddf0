package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeoutMiddleware_CancelsSlowRequest(t *testing.T) {
	mock := NewMockCoreLLM("late")
	mock.Delay = 200 * time.Millisecond
	wrapped := TimeoutMiddleware(20 * time.Millisecond)(mock)

	start := time.Now()
	_, _, _, err := wrapped.DoRequest(context.Background(), "p", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 150*time.Millisecond, "request should be cut at the timeout")
}

func TestTimeoutMiddleware_ZeroDisables(t *testing.T) {
	mock := NewMockCoreLLM("ok")
	wrapped := TimeoutMiddleware(0)(mock)

	resp, _, _, err := wrapped.DoRequest(context.Background(), "p", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}

func TestRetryMiddleware_RetriesTransientFailures(t *testing.T) {
	mock := NewMockCoreLLM("A\nB")
	mock.FailFirst = 2
	wrapped := RetryMiddleware("mock", 3, time.Millisecond, 5*time.Millisecond)(mock)

	resp, in, out, err := wrapped.DoRequest(context.Background(), "p", nil)

	require.NoError(t, err)
	assert.Equal(t, "A\nB", resp)
	assert.Equal(t, 10, in)
	assert.Equal(t, 5, out)
	assert.Equal(t, 3, mock.Calls(), "two failures then one success")
}

func TestRetryMiddleware_GivesUpAfterMaxRetries(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Err = errors.New("persistent")
	wrapped := RetryMiddleware("mock", 2, time.Millisecond, 5*time.Millisecond)(mock)

	_, _, _, err := wrapped.DoRequest(context.Background(), "p", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "persistent")
	assert.Equal(t, 3, mock.Calls())
}

func TestRetryMiddleware_SkipsNonRetryable(t *testing.T) {
	cases := map[string]error{
		"circuit open": ErrCircuitOpen,
		"auth":         &ProviderError{Type: ErrorTypeAuthentication, Provider: "mock"},
		"bad request":  &ProviderError{Type: ErrorTypeBadRequest, Provider: "mock"},
		"canceled":     context.Canceled,
	}
	for name, cause := range cases {
		t.Run(name, func(t *testing.T) {
			mock := NewMockCoreLLM()
			mock.Err = cause
			wrapped := RetryMiddleware("mock", 3, time.Millisecond, 5*time.Millisecond)(mock)

			_, _, _, err := wrapped.DoRequest(context.Background(), "p", nil)

			require.Error(t, err)
			assert.ErrorIs(t, err, cause)
			assert.Equal(t, 1, mock.Calls())
		})
	}
}

func TestRetryMiddleware_RetriesRateLimit(t *testing.T) {
	mock := NewMockCoreLLM("ok")
	mock.Err = &ProviderError{Type: ErrorTypeRateLimit, Provider: "mock", StatusCode: 429}
	mock.FailFirst = 1
	wrapped := RetryMiddleware("mock", 1, time.Millisecond, time.Millisecond)(mock)

	resp, _, _, err := wrapped.DoRequest(context.Background(), "p", nil)

	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
	assert.Equal(t, 2, mock.Calls())
}

func TestRetryMiddleware_StopsOnCallerDeadline(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Err = errors.New("flaky")
	wrapped := RetryMiddleware("mock", 10, 50*time.Millisecond, time.Second)(mock)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, _, _, err := wrapped.DoRequest(ctx, "p", nil)

	require.Error(t, err)
	assert.Less(t, mock.Calls(), 3)
}

func TestRetryMiddleware_DelayIsBounded(t *testing.T) {
	r := &retryLLM{baseDelay: 100 * time.Millisecond, maxDelay: 300 * time.Millisecond}
	for attempt := 0; attempt < 40; attempt++ {
		d := r.delay(attempt)
		assert.LessOrEqual(t, d, 300*time.Millisecond)
		assert.Greater(t, d, time.Duration(0))
	}
}

func TestRateLimitMiddleware_Paces(t *testing.T) {
	mock := NewMockCoreLLM("ok")
	wrapped := RateLimitMiddleware(20, 1)(mock)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, _, _, err := wrapped.DoRequest(context.Background(), "p", nil)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond, "burst 1 at 20 rps should space calls 50ms apart")
}

func TestRateLimitMiddleware_HonoursContext(t *testing.T) {
	mock := NewMockCoreLLM("ok")
	wrapped := RateLimitMiddleware(0.1, 1)(mock)

	_, _, _, err := wrapped.DoRequest(context.Background(), "p", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, _, _, err = wrapped.DoRequest(ctx, "p", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
	assert.Equal(t, 1, mock.Calls())
}

func TestRateLimitMiddleware_NonPositiveIsUnlimited(t *testing.T) {
	mock := NewMockCoreLLM("ok")
	wrapped := RateLimitMiddleware(0, 0)(mock)

	for i := 0; i < 50; i++ {
		_, _, _, err := wrapped.DoRequest(context.Background(), "p", nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 50, mock.Calls())
}

func TestTracingAndMetricsMiddleware_PassThrough(t *testing.T) {
	mock := NewMockCoreLLM("ok")
	wrapped := Wrap("mock", mock, TracingMiddleware("mock"), MetricsMiddleware("mock"))

	resp, err := wrapped.Complete(context.Background(), "", "p", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)

	mock.Err = &ProviderError{Type: ErrorTypeServerError, Provider: "mock"}
	_, err = wrapped.Complete(context.Background(), "", "p", nil)
	require.Error(t, err)

	wrapped.SetModel("other")
	assert.Equal(t, "other", wrapped.GetModel())
	assert.Equal(t, "other", mock.GetModel())
}

func TestOutcomeLabels(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "success", outcome(ctx, nil))
	assert.Equal(t, "circuit_open", outcome(ctx, ErrCircuitOpen))
	assert.Equal(t, "timeout", outcome(ctx, context.DeadlineExceeded))
	assert.Equal(t, "rate_limit", outcome(ctx, &ProviderError{Type: ErrorTypeRateLimit}))
	assert.Equal(t, "error", outcome(ctx, errors.New("boom")))
}

func TestResilienceChain(t *testing.T) {
	mock := NewMockCoreLLM("ok")
	mock.FailFirst = 1
	client := Wrap("mock", mock, Resilience{
		Timeout:         time.Second,
		MaxRetries:      1,
		RetryBaseDelay:  time.Millisecond,
		RetryMaxDelay:   time.Millisecond,
		RateLimit:       100,
		Burst:           5,
		BreakerFailures: 3,
		BreakerCooldown: time.Second,
	}.Chain("mock")...)

	resp, err := client.Complete(context.Background(), "system", "prompt", nil)

	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
	assert.Equal(t, 2, mock.Calls())
	_, opts := mock.LastPrompt()
	assert.Equal(t, "system", opts[OptSystem])
}
