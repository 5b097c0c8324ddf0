package llm

import (
	"time"

	"golang.org/x/time/rate"
)

// Resilience describes the standard middleware stack.
type Resilience struct {
	Timeout         time.Duration
	MaxRetries      int
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
	RateLimit       float64
	Burst           int
	BreakerFailures int
	BreakerCooldown time.Duration
}

// Chain returns the middleware stack for provider, outermost first:
// tracing, metrics, circuit breaker, retry, rate limit, per-attempt timeout.
func (r Resilience) Chain(provider string) []Middleware {
	base := r.RetryBaseDelay
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	maxDelay := r.RetryMaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	return []Middleware{
		TracingMiddleware(provider),
		MetricsMiddleware(provider),
		CircuitBreakerMiddleware(provider, NewCircuitBreaker(r.BreakerFailures, r.BreakerCooldown)),
		RetryMiddleware(provider, r.MaxRetries, base, maxDelay),
		RateLimitMiddleware(rate.Limit(r.RateLimit), r.Burst),
		TimeoutMiddleware(r.Timeout),
	}
}
