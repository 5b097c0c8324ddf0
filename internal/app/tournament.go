package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/duel/internal/adapters/repository"
	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/internal/domain/phase"
	"github.com/okian/duel/internal/domain/tournament"
	"github.com/okian/duel/internal/domain/types"
	"github.com/okian/duel/pkg/logger"
	"github.com/okian/duel/pkg/metrics"
)

const pathTournament = "tournament"

func selectionStatus(t *tournament.Session) types.Status {
	st := types.Status{
		Phase:       int(phase.StepSelection),
		TotalRounds: t.Total(),
	}
	step := t.Next()
	if !step.Done() {
		st.State = types.StateActive
		st.Round = t.Comparisons() + 1
		return st
	}
	st.State = types.StateComplete
	st.Round = t.Comparisons()
	st.LongestStreak = step.Finished.LongestStreak
	st.Winner = &types.Option{ID: step.Finished.Winner.ID, Text: step.Finished.Winner.Text}
	if st.LongestStreak > 0 {
		st.StreakHolder = &types.Option{ID: step.Finished.StreakHolder.ID, Text: step.Finished.StreakHolder.Text}
	}
	return st
}

// loadOrStart returns the session's tournament, starting it from the current
// eligible set on first use. The eligible set is frozen from then on.
func (s *Service) loadOrStart(ctx context.Context, sessionID string) (tournament.Session, error) {
	t, ok, err := s.store.LoadTournament(ctx, sessionID)
	if err != nil {
		return tournament.Session{}, fmt.Errorf("load tournament: %w", err)
	}
	if ok {
		return t, nil
	}

	eligible, err := s.store.ListEligible(ctx)
	if err != nil {
		return tournament.Session{}, fmt.Errorf("list eligible: %w", err)
	}
	started, err := tournament.Start(sessionID, eligible)
	if err != nil {
		return tournament.Session{}, err
	}
	metrics.RecordEligibleSetSize(len(eligible))

	saved, err := s.store.SaveTournament(ctx, *started, -1)
	if err != nil {
		return tournament.Session{}, fmt.Errorf("save tournament: %w", err)
	}
	if !saved {
		// Another request for this session started it first.
		t, _, err = s.store.LoadTournament(ctx, sessionID)
		if err != nil {
			return tournament.Session{}, fmt.Errorf("load tournament: %w", err)
		}
		return t, nil
	}
	s.log().Debug(ctx, "tournament started",
		logger.String("session", sessionID),
		logger.Int("eligible", len(eligible)))
	return *started, nil
}

func (s *Service) nextSelection(ctx context.Context, sessionID string) (types.Next, error) {
	t, err := s.loadOrStart(ctx, sessionID)
	if errors.Is(err, tournament.ErrNoEligibleCandidates) {
		return types.Next{Status: types.Status{State: types.StateNoResults, Phase: int(phase.StepSelection)}}, nil
	}
	if err != nil {
		return types.Next{}, err
	}

	status := selectionStatus(&t)
	step := t.Next()
	if step.Done() {
		return types.Next{Status: status}, nil
	}

	// Options are rendered from the frozen snapshot so merges in the pool
	// never strand a running tournament.
	left, right := step.Comparison.Sides()
	p, ok, err := s.pendingFor(ctx, sessionID, phase.StepSelection, t.Comparisons())
	if err != nil {
		return types.Next{}, err
	}
	if !ok || p.LeftID != left.ID || p.RightID != right.ID {
		p, err = s.issue(ctx, sessionID, phase.StepSelection, step.Comparison.Index, left, right, pathTournament)
		if err != nil {
			return types.Next{}, err
		}
	}
	return types.Next{Pair: render(p, left, right, t.Total(), false), Status: status}, nil
}

func (s *Service) chooseSelection(ctx context.Context, sessionID, token string, optionID int64) (types.Next, error) {
	p, err := s.claim(ctx, sessionID, token, phase.StepSelection, func(p repository.Pending) error {
		if !p.Contains(optionID) {
			return ErrUnknownOption
		}
		return nil
	})
	switch {
	case errors.Is(err, errReplay):
		return s.nextSelection(ctx, sessionID)
	case errors.Is(err, ErrStaleToken):
		return types.Next{}, s.staleSelection(ctx, sessionID)
	case err != nil:
		return types.Next{}, err
	}

	t, ok, err := s.store.LoadTournament(ctx, sessionID)
	if err != nil {
		s.release(ctx, p)
		return types.Next{}, fmt.Errorf("load tournament: %w", err)
	}
	if !ok || t.Comparisons() != p.Round {
		s.release(ctx, p)
		return types.Next{}, ErrStaleToken
	}

	expected := t.Comparisons()
	if err := t.Record(optionID); err != nil {
		s.release(ctx, p)
		switch {
		case errors.Is(err, tournament.ErrFinished):
			return types.Next{}, ErrSessionComplete
		case errors.Is(err, tournament.ErrNotInComparison):
			return types.Next{}, ErrUnknownOption
		}
		return types.Next{}, err
	}
	saved, err := s.store.SaveTournament(ctx, t, expected)
	if err != nil {
		s.release(ctx, p)
		return types.Next{}, fmt.Errorf("save tournament: %w", err)
	}
	if !saved {
		s.release(ctx, p)
		return types.Next{}, ErrStaleToken
	}

	vote := model.Vote{
		SessionID:  sessionID,
		Token:      p.Token,
		Phase:      model.PhaseSelection,
		Round:      expected,
		ChosenID:   optionID,
		RejectedID: p.Other(optionID),
		Position:   p.Position(optionID),
		CreatedAt:  s.now(),
	}
	if _, err := s.store.AppendVote(ctx, vote); err != nil {
		// The comparison is already recorded on the session.
		s.log().Error(ctx, "failed to record tournament vote",
			logger.String("session", sessionID),
			logger.Error(err))
	}
	metrics.RecordVote(phase.StepSelection.String(), "choice")

	if t.Done() {
		metrics.RecordSessionCompleted(phase.StepSelection.String())
		metrics.RecordLongestStreak(t.BestStreak)
		s.log().Info(ctx, "tournament complete",
			logger.String("session", sessionID),
			logger.Int("comparisons", t.Comparisons()),
			logger.Int("longestStreak", t.BestStreak))
	}
	return s.nextSelection(ctx, sessionID)
}

func (s *Service) staleSelection(ctx context.Context, sessionID string) error {
	t, ok, err := s.store.LoadTournament(ctx, sessionID)
	if err == nil && ok && t.Done() {
		return ErrSessionComplete
	}
	return ErrStaleToken
}
