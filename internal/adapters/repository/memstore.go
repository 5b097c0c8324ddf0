package repository

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/okian/duel/internal/domain/candidate"
	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/internal/domain/phase"
	"github.com/okian/duel/internal/domain/progress"
	"github.com/okian/duel/internal/domain/tournament"
	"github.com/okian/duel/pkg/logger"
	"github.com/okian/duel/pkg/metrics"
)

// MemoryStore is a mutex-guarded, in-memory Store with optional YAML
// persistence.
//
// Candidate ids come from a monotonically increasing sequence, so id order
// is creation order. byText maps a normalized text to its id.
type MemoryStore struct {
	mu          sync.RWMutex
	candidates  map[int64]candidate.Candidate
	byText      map[string]int64
	nextID      int64
	votes       []model.Vote
	nextVoteID  int64
	progress    map[string]progress.GenerationSession
	tournaments map[string]tournament.Session
	pending     map[string]Pending
	phase       *phase.Config
	dirty       bool

	now                   func() time.Time
	snapshotPath          string
	snapshotInterval      time.Duration
	metricsUpdateInterval time.Duration
	logger                logger.Logger
	logOnce               sync.Once

	wg       sync.WaitGroup
	stopChan chan struct{}
	closed   sync.Once
}

// Compile-time check.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs a store, restoring it from the snapshot file
// when one is configured and present.
func NewMemoryStore(ctx context.Context, opts ...Option) (*MemoryStore, error) {
	s := &MemoryStore{
		candidates:            make(map[int64]candidate.Candidate),
		byText:                make(map[string]int64),
		progress:              make(map[string]progress.GenerationSession),
		tournaments:           make(map[string]tournament.Session),
		pending:               make(map[string]Pending),
		now:                   time.Now,
		snapshotInterval:      5 * time.Second,
		metricsUpdateInterval: 5 * time.Second,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.snapshotPath != "" {
		if err := s.restore(ctx); err != nil {
			return nil, err
		}
		s.startPeriodicSnapshots(ctx)
	}

	metrics.UpdateCandidatePoolSize(s.Count(ctx))
	s.startMetricsUpdater(ctx)
	return s, nil
}

// startPeriodicSnapshots flushes dirty state to disk at the configured interval.
func (s *MemoryStore) startPeriodicSnapshots(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.snapshotInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				if err := s.Flush(ctx); err != nil {
					s.log().Error(ctx, "periodic snapshot failed", logger.Error(err))
				}
			}
		}
	}()
}

func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				metrics.UpdateCandidatePoolSize(s.Count(ctx))
			}
		}
	}()
}

// Close stops the background goroutines and writes a final snapshot.
func (s *MemoryStore) Close() error {
	var err error
	s.closed.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
		if s.snapshotPath != "" {
			err = s.Flush(context.Background())
		}
	})
	return err
}

func (s *MemoryStore) log() logger.Logger {
	s.logOnce.Do(func() {
		if s.logger == nil {
			s.logger = logger.Named("repository")
		}
	})
	return s.logger
}

func observeUpdate(start time.Time) {
	metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Microseconds()) / 1000)
}

func observeQuery(start time.Time) {
	metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
}

// GetOrCreate implements Store.GetOrCreate. text must already be normalized
// by the caller; it is normalized again for the lookup key.
func (s *MemoryStore) GetOrCreate(ctx context.Context, text string, origin candidate.Origin, sessionID string) (candidate.Candidate, bool, error) {
	start := time.Now()
	defer observeUpdate(start)

	if !origin.Valid() {
		metrics.RecordErrorByComponent("repository", "invalid_origin")
		return candidate.Candidate{}, false, fmt.Errorf("%w: %q", ErrInvalidOrigin, origin)
	}
	key, err := candidate.NormalizeValid(text)
	if err != nil {
		return candidate.Candidate{}, false, err
	}

	s.mu.Lock()
	if id, ok := s.byText[key]; ok {
		c := s.candidates[id]
		s.mu.Unlock()
		return c, false, nil
	}
	s.nextID++
	c := candidate.Candidate{
		ID:        s.nextID,
		Text:      key,
		Origin:    origin,
		SessionID: sessionID,
		CreatedAt: s.now(),
	}
	s.candidates[c.ID] = c
	s.byText[key] = c.ID
	s.dirty = true
	size := len(s.candidates)
	s.mu.Unlock()

	metrics.RecordCandidateCreated(string(origin))
	metrics.UpdateCandidatePoolSize(size)
	return c, true, nil
}

// Get implements Store.Get.
func (s *MemoryStore) Get(ctx context.Context, id int64) (candidate.Candidate, error) {
	start := time.Now()
	defer observeQuery(start)

	s.mu.RLock()
	c, ok := s.candidates[id]
	s.mu.RUnlock()
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return candidate.Candidate{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return c, nil
}

// IncrementSelectionCount implements Store.IncrementSelectionCount.
func (s *MemoryStore) IncrementSelectionCount(ctx context.Context, id int64) (int64, error) {
	start := time.Now()
	defer observeUpdate(start)

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.candidates[id]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return 0, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	c.SelectionCount++
	s.candidates[id] = c
	s.dirty = true
	return c.SelectionCount, nil
}

// ListPool implements Store.ListPool.
func (s *MemoryStore) ListPool(ctx context.Context) ([]candidate.Candidate, error) {
	return s.list(func(candidate.Candidate) bool { return true }), nil
}

// ListEligible implements Store.ListEligible.
func (s *MemoryStore) ListEligible(ctx context.Context) ([]candidate.Candidate, error) {
	return s.list(candidate.Candidate.Eligible), nil
}

func (s *MemoryStore) list(keep func(candidate.Candidate) bool) []candidate.Candidate {
	start := time.Now()
	defer observeQuery(start)

	s.mu.RLock()
	out := make([]candidate.Candidate, 0, len(s.candidates))
	for _, c := range s.candidates {
		if keep(c) {
			out = append(out, c)
		}
	}
	s.mu.RUnlock()

	candidate.SortByCreation(out)
	return out
}

// Count returns the number of candidates.
func (s *MemoryStore) Count(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.candidates)
}

// AppendVote implements Store.AppendVote.
func (s *MemoryStore) AppendVote(ctx context.Context, v model.Vote) (model.Vote, error) {
	start := time.Now()
	defer observeUpdate(start)

	if v.SessionID == "" || (v.ChosenID == 0 && v.RejectedID == 0) || v.ChosenID == v.RejectedID {
		metrics.RecordErrorByComponent("repository", "invalid_vote")
		return model.Vote{}, fmt.Errorf("%w: session %q chosen %d rejected %d", ErrInvalidVote, v.SessionID, v.ChosenID, v.RejectedID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextVoteID++
	v.ID = s.nextVoteID
	if v.CreatedAt.IsZero() {
		v.CreatedAt = s.now()
	}
	s.votes = append(s.votes, v)
	s.dirty = true
	return v, nil
}

// ListVotes implements Store.ListVotes. Votes come back in insertion order.
func (s *MemoryStore) ListVotes(ctx context.Context, sessionID string, step int) ([]model.Vote, error) {
	start := time.Now()
	defer observeQuery(start)

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Vote, 0)
	for _, v := range s.votes {
		if sessionID != "" && v.SessionID != sessionID {
			continue
		}
		if step != 0 && v.Phase != step {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// LoadProgress implements progress.Store.
func (s *MemoryStore) LoadProgress(ctx context.Context, sessionID string) (progress.GenerationSession, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.progress[sessionID]
	return p, ok, nil
}

// SaveProgress implements progress.Store.
func (s *MemoryStore) SaveProgress(ctx context.Context, next progress.GenerationSession, expected int) (bool, error) {
	start := time.Now()
	defer observeUpdate(start)

	if next.ID == "" {
		return false, fmt.Errorf("%w: empty id", ErrInvalidSession)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.progress[next.ID]
	switch {
	case expected < 0 && ok:
		return false, nil
	case expected >= 0 && (!ok || current.RoundsCompleted != expected):
		return false, nil
	}
	s.progress[next.ID] = next
	s.dirty = true
	return true, nil
}

// LoadTournament implements Store.LoadTournament.
func (s *MemoryStore) LoadTournament(ctx context.Context, sessionID string) (tournament.Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tournaments[sessionID]
	if !ok {
		return tournament.Session{}, false, nil
	}
	return cloneSession(t), true, nil
}

// SaveTournament implements Store.SaveTournament.
func (s *MemoryStore) SaveTournament(ctx context.Context, t tournament.Session, expected int) (bool, error) {
	start := time.Now()
	defer observeUpdate(start)

	if t.ID == "" {
		return false, fmt.Errorf("%w: empty id", ErrInvalidSession)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.tournaments[t.ID]
	switch {
	case expected < 0 && ok:
		return false, nil
	case expected >= 0 && (!ok || current.Comparisons() != expected):
		return false, nil
	}
	s.tournaments[t.ID] = cloneSession(t)
	s.dirty = true
	return true, nil
}

// ListTournaments implements Store.ListTournaments.
func (s *MemoryStore) ListTournaments(ctx context.Context) ([]tournament.Session, error) {
	start := time.Now()
	defer observeQuery(start)

	s.mu.RLock()
	out := make([]tournament.Session, 0, len(s.tournaments))
	for _, t := range s.tournaments {
		out = append(out, cloneSession(t))
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b tournament.Session) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// LoadPending implements Store.LoadPending.
func (s *MemoryStore) LoadPending(ctx context.Context, sessionID string) (Pending, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pending[sessionID]
	return p, ok, nil
}

// SavePending implements Store.SavePending, replacing any earlier pair.
func (s *MemoryStore) SavePending(ctx context.Context, p Pending) error {
	if p.SessionID == "" || p.Token == "" {
		return fmt.Errorf("%w: pending pair needs session and token", ErrInvalidSession)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[p.SessionID] = p
	s.dirty = true
	return nil
}

// ConsumePending implements Store.ConsumePending.
func (s *MemoryStore) ConsumePending(ctx context.Context, sessionID, token string) (Pending, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[sessionID]
	if !ok || p.Token != token {
		return Pending{}, false, nil
	}
	delete(s.pending, sessionID)
	s.dirty = true
	return p, true, nil
}

func cloneSession(t tournament.Session) tournament.Session {
	t.Eligible = slices.Clone(t.Eligible)
	t.History = slices.Clone(t.History)
	return t
}

// LoadPhase returns the phase configuration last set at runtime.
func (s *MemoryStore) LoadPhase(_ context.Context) (phase.Config, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.phase == nil {
		return phase.Config{}, false, nil
	}
	return *s.phase, true, nil
}

// SavePhase implements phase.Saver.
func (s *MemoryStore) SavePhase(_ context.Context, cfg phase.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = &cfg
	s.dirty = true
	return nil
}
