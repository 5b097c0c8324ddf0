// Package service implements the participant and admin operations exposed
// by the HTTP API on top of the domain packages and the candidate store.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/duel/internal/adapters/repository"
	"github.com/okian/duel/internal/domain/candidate"
	"github.com/okian/duel/internal/domain/dedupe"
	"github.com/okian/duel/internal/domain/phase"
	"github.com/okian/duel/internal/domain/progress"
	"github.com/okian/duel/internal/domain/results"
	"github.com/okian/duel/internal/domain/selection"
	"github.com/okian/duel/internal/domain/types"
	"github.com/okian/duel/pkg/logger"
	"github.com/okian/duel/pkg/metrics"
)

// PhaseSetter is implemented by phase providers that can be changed at runtime.
type PhaseSetter interface {
	Set(ctx context.Context, cfg phase.Config) error
}

// Service implements the API dependencies for option discovery.
type Service struct {
	mu sync.RWMutex

	// Core components
	store    repository.Store
	phases   phase.Provider
	selector *selection.Selector
	tracker  *progress.Tracker
	deduper  dedupe.Deduper

	// Configuration
	dedupeSize   int
	historyLimit int
	seeds        []string
	newToken     func() string
	now          func() time.Time

	// State
	started bool

	logger  logger.Logger
	logOnce sync.Once
}

// New constructs a Service over store. Phase configuration is re-read from
// phases on every request.
func New(store repository.Store, phases phase.Provider, opts ...Option) *Service {
	s := &Service{
		store:        store,
		phases:       phases,
		dedupeSize:   50_000,
		historyLimit: 10,
		newToken:     uuid.NewString,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.selector == nil {
		s.selector = selection.New(store)
	}
	if s.tracker == nil {
		s.tracker = progress.NewTracker(store)
	}
	if s.deduper == nil {
		s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	}
	return s
}

func (s *Service) log() logger.Logger {
	s.logOnce.Do(func() {
		if s.logger == nil {
			s.logger = logger.Named("service")
		}
	})
	return s.logger
}

// Start seeds the candidate pool. It is safe to call more than once.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	created := 0
	for _, text := range s.seeds {
		_, isNew, err := s.store.GetOrCreate(ctx, text, candidate.OriginGenerated, "")
		if err != nil {
			s.log().Warn(ctx, "skipping seed candidate",
				logger.String("text", text),
				logger.Error(err))
			continue
		}
		if isNew {
			created++
		}
	}

	// Tokens resolved before a restart stay replays.
	votes, err := s.store.ListVotes(ctx, "", 0)
	if err != nil {
		return fmt.Errorf("list votes: %w", err)
	}
	for _, v := range votes {
		if v.Token != "" {
			s.deduper.SeenAndRecord(ctx, tokenKey(v.SessionID, v.Token))
		}
	}

	s.started = true
	s.log().Info(ctx, "discovery service started",
		logger.Int("seeds", len(s.seeds)),
		logger.Int("seedsCreated", created),
		logger.Int("candidates", s.store.Count(ctx)),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop marks the service stopped. The store is owned by the caller.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.started = false
	s.log().Info(context.Background(), "discovery service stopped")
}

// NewSessionID mints an anonymous session id.
func (s *Service) NewSessionID() string { return uuid.NewString() }

// ValidSessionID reports whether id was minted by NewSessionID.
func (s *Service) ValidSessionID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Current returns the pair the session should judge next, issuing one if
// needed. Reloading before voting returns the same pair and token.
func (s *Service) Current(ctx context.Context, sessionID string) (types.Next, error) {
	cfg, err := s.phases.Current(ctx)
	if err != nil {
		return types.Next{}, fmt.Errorf("load phase: %w", err)
	}
	switch cfg.CurrentStep {
	case phase.StepGeneration:
		return s.nextGeneration(ctx, sessionID, cfg)
	case phase.StepSelection:
		return s.nextSelection(ctx, sessionID)
	default:
		return types.Next{Status: disabledStatus()}, nil
	}
}

// Status reports the session's position in the current phase without
// issuing a pair.
func (s *Service) Status(ctx context.Context, sessionID string) (types.Status, error) {
	cfg, err := s.phases.Current(ctx)
	if err != nil {
		return types.Status{}, fmt.Errorf("load phase: %w", err)
	}
	switch cfg.CurrentStep {
	case phase.StepGeneration:
		sess, ok, err := s.store.LoadProgress(ctx, sessionID)
		if err != nil {
			return types.Status{}, fmt.Errorf("load progress: %w", err)
		}
		if !ok {
			sess = progress.NewGenerationSession(sessionID, cfg.RoundsTarget)
		}
		return generationStatus(sess), nil
	case phase.StepSelection:
		t, ok, err := s.store.LoadTournament(ctx, sessionID)
		if err != nil {
			return types.Status{}, fmt.Errorf("load tournament: %w", err)
		}
		if ok {
			return selectionStatus(&t), nil
		}
		eligible, err := s.store.ListEligible(ctx)
		if err != nil {
			return types.Status{}, fmt.Errorf("list eligible: %w", err)
		}
		if len(eligible) == 0 {
			return types.Status{State: types.StateNoResults, Phase: int(phase.StepSelection)}, nil
		}
		return types.Status{
			State:       types.StateActive,
			Phase:       int(phase.StepSelection),
			Round:       1,
			TotalRounds: max(len(eligible)-1, 0),
		}, nil
	default:
		return disabledStatus(), nil
	}
}

// Choose resolves the pending pair named by token in favour of optionID and
// returns what comes next. A replayed token is answered with the current
// state and applied only once.
func (s *Service) Choose(ctx context.Context, sessionID, token string, optionID int64) (types.Next, error) {
	cfg, err := s.phases.Current(ctx)
	if err != nil {
		return types.Next{}, fmt.Errorf("load phase: %w", err)
	}
	switch cfg.CurrentStep {
	case phase.StepGeneration:
		return s.chooseGeneration(ctx, cfg, sessionID, token, optionID)
	case phase.StepSelection:
		return s.chooseSelection(ctx, sessionID, token, optionID)
	default:
		return types.Next{}, ErrPhaseDisabled
	}
}

// Neither rejects both sides of the pending pair. It completes the round.
func (s *Service) Neither(ctx context.Context, sessionID, token string) (types.Next, error) {
	cfg, err := s.phases.Current(ctx)
	if err != nil {
		return types.Next{}, fmt.Errorf("load phase: %w", err)
	}
	switch cfg.CurrentStep {
	case phase.StepGeneration:
		return s.neither(ctx, cfg, sessionID, token)
	case phase.StepSelection:
		return types.Next{}, ErrNeitherNotAllowed
	default:
		return types.Next{}, ErrPhaseDisabled
	}
}

// Submit adds the participant's own option and replaces the pending pair
// with it and a partner. It does not complete a round.
func (s *Service) Submit(ctx context.Context, sessionID, text string) (types.Next, error) {
	cfg, err := s.phases.Current(ctx)
	if err != nil {
		return types.Next{}, fmt.Errorf("load phase: %w", err)
	}
	switch cfg.CurrentStep {
	case phase.StepGeneration:
		return s.submit(ctx, cfg, sessionID, text)
	case phase.StepSelection:
		return types.Next{}, ErrSubmitNotAllowed
	default:
		return types.Next{}, ErrPhaseDisabled
	}
}

// Phase returns the phase configuration in effect.
func (s *Service) Phase(ctx context.Context) (phase.Config, error) {
	return s.phases.Current(ctx)
}

// SetPhase replaces the phase configuration. Sessions keep the round target
// they were created with.
func (s *Service) SetPhase(ctx context.Context, cfg phase.Config) error {
	setter, ok := s.phases.(PhaseSetter)
	if !ok {
		return ErrPhaseReadOnly
	}
	prev, err := s.phases.Current(ctx)
	if err != nil {
		return fmt.Errorf("load phase: %w", err)
	}
	if err := setter.Set(ctx, cfg); err != nil {
		return err
	}
	s.log().Info(ctx, "phase configuration changed",
		logger.String("from", prev.CurrentStep.String()),
		logger.String("to", cfg.CurrentStep.String()),
		logger.Int("roundsTarget", cfg.RoundsTarget))
	return nil
}

// Popularity ranks generation-phase picks. limit <= 0 returns all.
func (s *Service) Popularity(ctx context.Context, limit int) ([]types.PopularityEntry, error) {
	pool, err := s.store.ListPool(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pool: %w", err)
	}
	return results.Popularity(pool, limit), nil
}

// Streaks ranks candidates by their longest tournament streak.
func (s *Service) Streaks(ctx context.Context, limit int) ([]types.StreakEntry, error) {
	sessions, err := s.store.ListTournaments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tournaments: %w", err)
	}
	return results.Streaks(sessions, limit), nil
}

// Winners counts final tournament winners.
func (s *Service) Winners(ctx context.Context, limit int) ([]types.WinnerEntry, error) {
	sessions, err := s.store.ListTournaments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tournaments: %w", err)
	}
	return results.Winners(sessions, limit), nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":    s.started,
		"dedupeSize": s.dedupeSize,
		"tokensSeen": s.deduper.Size(),
	}
	if cfg, err := s.phases.Current(ctx); err == nil {
		stats["phase"] = cfg.CurrentStep.String()
		stats["roundsTarget"] = cfg.RoundsTarget
	}

	total := s.store.Count(ctx)
	stats["candidates"] = total
	metrics.UpdateCandidatePoolSize(total)

	if eligible, err := s.store.ListEligible(ctx); err == nil {
		stats["eligible"] = len(eligible)
	}
	if votes, err := s.store.ListVotes(ctx, "", 0); err == nil {
		stats["votes"] = len(votes)
	}
	if sessions, err := s.store.ListTournaments(ctx); err == nil {
		stats["tournaments"] = len(sessions)
	}
	return stats
}

func tokenKey(sessionID, token string) string { return sessionID + "/" + token }

// errReplay marks a token that was already resolved.
var errReplay = errors.New("token replay")

// claim takes ownership of the pending pair named by token. check validates
// the pending pair before it is consumed. On success the caller must call
// release if it fails to apply the vote.
func (s *Service) claim(ctx context.Context, sessionID, token string, step phase.Step, check func(repository.Pending) error) (repository.Pending, error) {
	key := tokenKey(sessionID, token)
	if s.deduper.SeenAndRecord(ctx, key) {
		metrics.RecordTokenReplay()
		s.log().Debug(ctx, "replayed token",
			logger.String("session", sessionID),
			logger.String("token", token))
		return repository.Pending{}, errReplay
	}

	pending, ok, err := s.store.LoadPending(ctx, sessionID)
	if err != nil {
		s.deduper.Unrecord(ctx, key)
		return repository.Pending{}, fmt.Errorf("load pending: %w", err)
	}
	if !ok || pending.Token != token || pending.Phase != int(step) {
		s.deduper.Unrecord(ctx, key)
		return repository.Pending{}, ErrStaleToken
	}
	if check != nil {
		if err := check(pending); err != nil {
			s.deduper.Unrecord(ctx, key)
			return repository.Pending{}, err
		}
	}

	consumed, ok, err := s.store.ConsumePending(ctx, sessionID, token)
	if err != nil {
		s.deduper.Unrecord(ctx, key)
		return repository.Pending{}, fmt.Errorf("consume pending: %w", err)
	}
	if !ok {
		s.deduper.Unrecord(ctx, key)
		return repository.Pending{}, ErrStaleToken
	}
	return consumed, nil
}

// release restores a claimed pair so the vote can be retried.
func (s *Service) release(ctx context.Context, p repository.Pending) {
	s.deduper.Unrecord(ctx, tokenKey(p.SessionID, p.Token))
	if err := s.store.SavePending(ctx, p); err != nil {
		s.log().Error(ctx, "failed to restore pending pair",
			logger.String("session", p.SessionID),
			logger.Error(err))
	}
}

// issue stores a new pending pair for the session and renders it.
func (s *Service) issue(ctx context.Context, sessionID string, step phase.Step, round int, left, right candidate.Candidate, path string) (repository.Pending, error) {
	p := repository.Pending{
		SessionID: sessionID,
		Token:     s.newToken(),
		Phase:     int(step),
		Round:     round,
		LeftID:    left.ID,
		RightID:   right.ID,
		Path:      path,
		IssuedAt:  s.now(),
	}
	if err := s.store.SavePending(ctx, p); err != nil {
		return repository.Pending{}, fmt.Errorf("save pending: %w", err)
	}
	metrics.RecordPairPresented(step.String(), path)
	return p, nil
}

// view renders a generation pair, loading both options from the store.
// Display rounds are one-based.
func (s *Service) view(ctx context.Context, p repository.Pending, total int, allowSubmit bool) (*types.PairView, error) {
	left, err := s.store.Get(ctx, p.LeftID)
	if err != nil {
		return nil, fmt.Errorf("load option %d: %w", p.LeftID, err)
	}
	right, err := s.store.Get(ctx, p.RightID)
	if err != nil {
		return nil, fmt.Errorf("load option %d: %w", p.RightID, err)
	}
	return render(p, left, right, total, allowSubmit), nil
}

func render(p repository.Pending, left, right candidate.Candidate, total int, allowSubmit bool) *types.PairView {
	return &types.PairView{
		Token:       p.Token,
		Phase:       p.Phase,
		Round:       p.Round + 1,
		TotalRounds: total,
		OptionA:     types.Option{ID: left.ID, Text: left.Text},
		OptionB:     types.Option{ID: right.ID, Text: right.Text},
		AllowSubmit: allowSubmit,
	}
}

// pendingFor returns the session's pending pair if it belongs to step and round.
func (s *Service) pendingFor(ctx context.Context, sessionID string, step phase.Step, round int) (repository.Pending, bool, error) {
	p, ok, err := s.store.LoadPending(ctx, sessionID)
	if err != nil {
		return repository.Pending{}, false, fmt.Errorf("load pending: %w", err)
	}
	if !ok || p.Phase != int(step) || p.Round != round {
		return repository.Pending{}, false, nil
	}
	return p, true, nil
}

func disabledStatus() types.Status {
	return types.Status{State: types.StateDisabled, Phase: int(phase.StepDisabled)}
}
