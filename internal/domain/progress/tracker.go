package progress

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/duel/pkg/logger"
	"github.com/okian/duel/pkg/metrics"
)

// Store persists generation sessions.
//
// SaveProgress writes next only if the stored RoundsCompleted equals
// expected (-1 meaning the session must not exist yet) and reports whether
// the write happened.
type Store interface {
	LoadProgress(ctx context.Context, sessionID string) (GenerationSession, bool, error)
	SaveProgress(ctx context.Context, next GenerationSession, expected int) (bool, error)
}

// Tracker applies GenerationSession transitions against a Store.
type Tracker struct {
	store  Store
	now    func() time.Time
	logger logger.Logger
	once   sync.Once
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) TrackerOption {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTracker creates a Tracker over store.
func NewTracker(store Store, opts ...TrackerOption) *Tracker {
	t := &Tracker{store: store, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) log() logger.Logger {
	t.once.Do(func() {
		if t.logger == nil {
			t.logger = logger.Named("progress")
		}
	})
	return t.logger
}

// Session loads the session, creating it with target rounds if absent.
func (t *Tracker) Session(ctx context.Context, sessionID string, target int) (GenerationSession, error) {
	s, ok, err := t.store.LoadProgress(ctx, sessionID)
	if err != nil {
		return GenerationSession{}, fmt.Errorf("load progress: %w", err)
	}
	if ok {
		return s, nil
	}
	s = NewGenerationSession(sessionID, target)
	s.UpdatedAt = t.now()
	saved, err := t.store.SaveProgress(ctx, s, -1)
	if err != nil {
		return GenerationSession{}, fmt.Errorf("create progress: %w", err)
	}
	if !saved {
		// Lost the creation race; the winner's row is authoritative.
		s, _, err = t.store.LoadProgress(ctx, sessionID)
		if err != nil {
			return GenerationSession{}, fmt.Errorf("load progress: %w", err)
		}
	}
	return s, nil
}

// Advance completes round for the session. Stale or duplicate advances are
// absorbed: the current state is returned with a nil error. An unknown
// session has nothing left to do and reports Complete without being created.
func (t *Tracker) Advance(ctx context.Context, sessionID string, round int) (GenerationSession, RoundResult, error) {
	current, ok, err := t.store.LoadProgress(ctx, sessionID)
	if err != nil {
		return GenerationSession{}, RoundResult{}, fmt.Errorf("load progress: %w", err)
	}
	if !ok {
		metrics.RecordInvalidRoundState()
		t.log().Debug(ctx, "ignoring advance for unknown session",
			logger.String("session", sessionID),
			logger.Int("round", round))
		empty := GenerationSession{ID: sessionID}
		return empty, empty.Result(), nil
	}

	next, res, err := current.Advance(round)
	if errors.Is(err, ErrInvalidRoundState) {
		metrics.RecordInvalidRoundState()
		t.log().Debug(ctx, "ignoring stale advance",
			logger.String("session", sessionID),
			logger.Int("round", round),
			logger.Int("completed", current.RoundsCompleted))
		return current, res, nil
	}
	if next.RoundsCompleted == current.RoundsCompleted {
		return current, res, nil
	}

	next.UpdatedAt = t.now()
	saved, err := t.store.SaveProgress(ctx, next, current.RoundsCompleted)
	if err != nil {
		return current, current.Result(), fmt.Errorf("save progress: %w", err)
	}
	if !saved {
		// A concurrent advance for the same round won.
		metrics.RecordInvalidRoundState()
		latest, _, err := t.store.LoadProgress(ctx, sessionID)
		if err != nil {
			return current, current.Result(), fmt.Errorf("load progress: %w", err)
		}
		return latest, latest.Result(), nil
	}

	if res.Outcome == Complete {
		metrics.RecordSessionCompleted("generation")
		t.log().Info(ctx, "generation session complete",
			logger.String("session", sessionID),
			logger.Int("rounds", next.RoundsCompleted))
	}
	return next, res, nil
}
