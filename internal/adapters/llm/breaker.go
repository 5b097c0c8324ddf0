package llm

import (
	"context"
	"sync"
	"time"

	"github.com/okian/duel/pkg/metrics"
)

// BreakerState is the state of a CircuitBreaker.
type BreakerState int

// Breaker states.
const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreaker opens after maxFailures consecutive failures and lets a
// single probe through once cooldown has elapsed.
type CircuitBreaker struct {
	mu          sync.Mutex
	state       BreakerState
	failures    int
	maxFailures int
	cooldown    time.Duration
	openedAt    time.Time
	probing     bool
	now         func() time.Time
	onChange    func(BreakerState)
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(maxFailures int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures: max(maxFailures, 1),
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// allow reports whether a request may proceed and moves Open to HalfOpen
// once the cooldown elapsed.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return false
		}
		cb.setState(StateHalfOpen)
		cb.probing = true
		return true
	case StateHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	default:
		return true
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probing = false
	if err == nil {
		cb.failures = 0
		cb.setState(StateClosed)
		return
	}
	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
		cb.openedAt = cb.now()
		cb.setState(StateOpen)
	}
}

func (cb *CircuitBreaker) setState(s BreakerState) {
	if cb.state == s {
		return
	}
	cb.state = s
	if cb.onChange != nil {
		cb.onChange(s)
	}
}

type breakerLLM struct {
	passthrough
	cb *CircuitBreaker
}

// CircuitBreakerMiddleware guards the wrapped provider with cb and exports
// its state on the generator circuit gauge.
func CircuitBreakerMiddleware(provider string, cb *CircuitBreaker) Middleware {
	cb.mu.Lock()
	cb.onChange = func(s BreakerState) { metrics.UpdateCircuitState(provider, int(s)) }
	cb.mu.Unlock()
	metrics.UpdateCircuitState(provider, int(cb.State()))

	return func(next CoreLLM) CoreLLM {
		return &breakerLLM{passthrough: passthrough{next}, cb: cb}
	}
}

func (b *breakerLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	if !b.cb.allow() {
		return "", 0, 0, ErrCircuitOpen
	}
	resp, in, out, err := b.next.DoRequest(ctx, prompt, opts)
	b.cb.record(err)
	return resp, in, out, err
}
