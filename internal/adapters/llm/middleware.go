package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/okian/duel/pkg/metrics"
)

// passthrough forwards model accessors to the wrapped CoreLLM.
type passthrough struct{ next CoreLLM }

func (p passthrough) GetModel() string  { return p.next.GetModel() }
func (p passthrough) SetModel(m string) { p.next.SetModel(m) }

type timeoutLLM struct {
	passthrough
	timeout time.Duration
}

// TimeoutMiddleware bounds each request by timeout.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &timeoutLLM{passthrough: passthrough{next}, timeout: timeout}
	}
}

func (t *timeoutLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	if t.timeout <= 0 {
		return t.next.DoRequest(ctx, prompt, opts)
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.DoRequest(ctx, prompt, opts)
}

type retryLLM struct {
	passthrough
	provider   string
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// RetryMiddleware retries transient failures with exponential backoff and
// jitter. It never retries an open circuit or a cancelled caller.
func RetryMiddleware(provider string, maxRetries int, baseDelay, maxDelay time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &retryLLM{
			passthrough: passthrough{next},
			provider:    provider,
			maxRetries:  maxRetries,
			baseDelay:   baseDelay,
			maxDelay:    maxDelay,
		}
	}
}

func (r *retryLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		resp, in, out, err := r.next.DoRequest(ctx, prompt, opts)
		if err == nil {
			return resp, in, out, nil
		}
		lastErr = err

		if ctx.Err() != nil || !retryable(err) || attempt == r.maxRetries {
			break
		}
		metrics.RecordGeneratorRetry(r.provider)

		select {
		case <-ctx.Done():
			return "", 0, 0, ctx.Err()
		case <-time.After(r.delay(attempt)):
		}
	}
	return "", 0, 0, fmt.Errorf("request failed: %w", lastErr)
}

func (r *retryLLM) delay(attempt int) time.Duration {
	attempt = min(max(attempt, 0), 30)
	d := r.baseDelay * time.Duration(1<<uint(attempt))
	// ±25% jitter
	d = d + time.Duration(rand.Float64()*float64(d)*0.5) - d/4
	if r.maxDelay > 0 && d > r.maxDelay {
		d = r.maxDelay
	}
	return d
}

type rateLimitedLLM struct {
	passthrough
	limiter *rate.Limiter
}

// RateLimitMiddleware paces requests with a token bucket. A non-positive
// limit disables pacing.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	if limit <= 0 {
		limit = rate.Inf
	}
	limiter := rate.NewLimiter(limit, max(burst, 1))
	return func(next CoreLLM) CoreLLM {
		return &rateLimitedLLM{passthrough: passthrough{next}, limiter: limiter}
	}
}

func (r *rateLimitedLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", 0, 0, fmt.Errorf("rate limit: %w", err)
	}
	return r.next.DoRequest(ctx, prompt, opts)
}

type tracedLLM struct {
	passthrough
	provider string
	tracer   trace.Tracer
}

// TracingMiddleware records each request as an OpenTelemetry span.
func TracingMiddleware(provider string) Middleware {
	tracer := otel.Tracer("github.com/okian/duel/internal/adapters/llm")
	return func(next CoreLLM) CoreLLM {
		return &tracedLLM{passthrough: passthrough{next}, provider: provider, tracer: tracer}
	}
}

func (t *tracedLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	ctx, span := t.tracer.Start(ctx, "llm.request", trace.WithAttributes(
		attribute.String("llm.provider", t.provider),
		attribute.String("llm.model", t.next.GetModel()),
		attribute.Int("llm.prompt.length", len(prompt)),
	))
	defer span.End()

	resp, in, out, err := t.next.DoRequest(ctx, prompt, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return resp, in, out, err
	}
	span.SetAttributes(
		attribute.Int("llm.tokens.input", in),
		attribute.Int("llm.tokens.output", out),
	)
	return resp, in, out, nil
}

type metricsLLM struct {
	passthrough
	provider string
}

// MetricsMiddleware records request outcome, latency and token usage.
func MetricsMiddleware(provider string) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &metricsLLM{passthrough: passthrough{next}, provider: provider}
	}
}

func (m *metricsLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	start := time.Now()
	resp, in, out, err := m.next.DoRequest(ctx, prompt, opts)
	ms := float64(time.Since(start).Microseconds()) / 1000

	metrics.RecordGeneratorRequest(m.provider, outcome(ctx, err), ms)
	if err == nil {
		metrics.RecordGeneratorTokens(m.provider, in, out)
	}
	return resp, in, out, err
}

func outcome(ctx context.Context, err error) string {
	var pe *ProviderError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &pe):
		return pe.Type.String()
	default:
		return "error"
	}
}
