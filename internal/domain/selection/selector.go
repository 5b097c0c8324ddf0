package selection

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/duel/internal/domain/candidate"
	"github.com/okian/duel/pkg/logger"
	"github.com/okian/duel/pkg/metrics"
)

// Default selector configuration.
const (
	defaultExploitProbability = 0.5
	defaultGeneratorTimeout   = 8 * time.Second
	defaultTopK               = 5
	defaultHistoryLimit       = 10
)

var tracer = otel.Tracer("github.com/okian/duel/internal/domain/selection")

// Store is the part of the candidate store the selector needs.
type Store interface {
	GetOrCreate(ctx context.Context, text string, origin candidate.Origin, sessionID string) (candidate.Candidate, bool, error)
	ListPool(ctx context.Context) ([]candidate.Candidate, error)
}

// Generator proposes two fresh candidate texts.
type Generator interface {
	Generate(ctx context.Context, prompt string, summary HistorySummary) (string, string, error)
}

// Request carries the per-call inputs of the selector.
type Request struct {
	SessionID string
	Prompt    string
	// Exclude lists candidate ids already shown to the session this round.
	Exclude []int64
	// Recent holds the session's latest outcomes, oldest first.
	Recent []HistoryItem
}

// Path records how a pair was produced.
type Path string

// Paths.
const (
	PathExploit    Path = "exploit"
	PathExplore    Path = "explore"
	PathFallback   Path = "fallback"
	PathSubmission Path = "submission"
)

// Result is a selected pair and the path that produced it.
type Result struct {
	Pair Pair
	Path Path
}

var (
	errNoGenerator   = errors.New("no generator configured")
	errMalformedPair = errors.New("generator returned a malformed pair")
	errIdenticalPair = errors.New("generator returned identical options")
)

// Selector executes the selection policy against a store and a generator.
type Selector struct {
	store        Store
	generator    Generator
	pExploit     float64
	timeout      time.Duration
	topK         int
	historyLimit int
	rng          Rand
	logger       logger.Logger
	logOnce      sync.Once
}

// New creates a Selector over store.
func New(store Store, opts ...Option) *Selector {
	s := &Selector{
		store:        store,
		pExploit:     defaultExploitProbability,
		timeout:      defaultGeneratorTimeout,
		topK:         defaultTopK,
		historyLimit: defaultHistoryLimit,
		rng:          globalRand{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, ok := s.rng.(globalRand); !ok {
		s.rng = &lockedRand{r: s.rng}
	}
	return s
}

func (s *Selector) log() logger.Logger {
	s.logOnce.Do(func() {
		if s.logger == nil {
			s.logger = logger.Named("selector")
		}
	})
	return s.logger
}

// SelectPair returns the next pair for a session. Generator failures fall
// back to exploitation; ErrGenerationUnavailable is returned only when the
// pool cannot supply two candidates either.
func (s *Selector) SelectPair(ctx context.Context, req Request) (Result, error) {
	ctx, span := tracer.Start(ctx, "selection.SelectPair",
		trace.WithAttributes(attribute.String("session.id", req.SessionID)))
	defer span.End()

	pool, err := s.store.ListPool(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list pool")
		return Result{}, fmt.Errorf("list pool: %w", err)
	}

	d := Decide(pool, req.Exclude, s.pExploit, s.rng)
	span.SetAttributes(
		attribute.String("selection.kind", d.Kind.String()),
		attribute.Int("selection.pool_size", len(pool)),
	)
	if d.Kind == KindExploit {
		return Result{Pair: d.Pair, Path: PathExploit}, nil
	}

	pair, err := s.explore(ctx, req, pool)
	if err == nil {
		return Result{Pair: pair, Path: PathExplore}, nil
	}

	reason := fallbackReason(err)
	metrics.RecordGeneratorFallback(reason)
	span.AddEvent("fallback", trace.WithAttributes(attribute.String("reason", reason)))
	s.log().Warn(ctx, "exploration failed, falling back to pool",
		logger.String("session", req.SessionID),
		logger.String("reason", reason),
		logger.Error(err))

	pair, ok := s.exploitRelaxed(pool, req.Exclude)
	if !ok {
		span.SetStatus(codes.Error, "generation unavailable")
		return Result{}, ErrGenerationUnavailable
	}
	return Result{Pair: pair, Path: PathFallback}, nil
}

// Submit inserts user-submitted text and pairs it with a partner from the
// pool, or with a generated option when the pool has none.
func (s *Selector) Submit(ctx context.Context, req Request, text string) (Result, error) {
	ctx, span := tracer.Start(ctx, "selection.Submit",
		trace.WithAttributes(attribute.String("session.id", req.SessionID)))
	defer span.End()

	normalized, err := candidate.NormalizeValid(text)
	if err != nil {
		return Result{}, err
	}
	submitted, _, err := s.store.GetOrCreate(ctx, normalized, candidate.OriginUserSubmitted, req.SessionID)
	if err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("store submission: %w", err)
	}
	pool, err := s.store.ListPool(ctx)
	if err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("list pool: %w", err)
	}

	partner, ok := Partner(pool, submitted, req.Exclude, s.rng)
	if !ok {
		partner, ok = Partner(pool, submitted, nil, s.rng)
	}
	if !ok {
		generated, gerr := s.explore(ctx, req, pool)
		switch {
		case gerr != nil:
			metrics.RecordGeneratorFallback(fallbackReason(gerr))
		case !candidate.Same(generated.A.Text, submitted.Text):
			partner, ok = generated.A, true
		default:
			partner, ok = generated.B, true
		}
	}
	if !ok {
		return Result{}, ErrGenerationUnavailable
	}
	return Result{Pair: Pair{A: submitted, B: partner}, Path: PathSubmission}, nil
}

// explore asks the generator for a fresh pair and upserts both sides.
func (s *Selector) explore(ctx context.Context, req Request, pool []candidate.Candidate) (Pair, error) {
	if s.generator == nil {
		return Pair{}, errNoGenerator
	}
	summary := Summarize(pool, req.Recent, s.topK, s.historyLimit)

	gctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	a, b, err := s.generator.Generate(gctx, req.Prompt, summary)
	if err != nil {
		return Pair{}, err
	}

	na, errA := candidate.NormalizeValid(a)
	nb, errB := candidate.NormalizeValid(b)
	if errA != nil || errB != nil {
		return Pair{}, errors.Join(errMalformedPair, errA, errB)
	}
	if na == nb {
		return Pair{}, errIdenticalPair
	}

	ca, _, err := s.store.GetOrCreate(ctx, na, candidate.OriginGenerated, req.SessionID)
	if err != nil {
		return Pair{}, fmt.Errorf("store generated option: %w", err)
	}
	cb, _, err := s.store.GetOrCreate(ctx, nb, candidate.OriginGenerated, req.SessionID)
	if err != nil {
		return Pair{}, fmt.Errorf("store generated option: %w", err)
	}
	return Pair{A: ca, B: cb}, nil
}

// exploitRelaxed samples with exclusion first and drops it when the
// remaining pool is too small.
func (s *Selector) exploitRelaxed(pool []candidate.Candidate, exclude []int64) (Pair, bool) {
	if pair, ok := Exploit(pool, exclude, s.rng); ok {
		return pair, true
	}
	return Exploit(pool, nil, s.rng)
}

// reasoner is implemented by adapter errors that classify themselves.
type reasoner interface {
	Reason() string
}

func fallbackReason(err error) string {
	var r reasoner
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, errNoGenerator):
		return "no_generator"
	case errors.Is(err, errMalformedPair):
		return "malformed"
	case errors.Is(err, errIdenticalPair):
		return "identical"
	case errors.As(err, &r):
		return r.Reason()
	default:
		return "adapter"
	}
}

// globalRand draws from the goroutine-safe top-level math/rand/v2 source.
type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// lockedRand serializes access to an injected source.
type lockedRand struct {
	mu sync.Mutex
	r  Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}
