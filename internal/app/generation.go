package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/duel/internal/adapters/repository"
	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/internal/domain/phase"
	"github.com/okian/duel/internal/domain/progress"
	"github.com/okian/duel/internal/domain/selection"
	"github.com/okian/duel/internal/domain/types"
	"github.com/okian/duel/pkg/logger"
	"github.com/okian/duel/pkg/metrics"
)

func generationStatus(sess progress.GenerationSession) types.Status {
	st := types.Status{
		Phase:       int(phase.StepGeneration),
		TotalRounds: sess.RoundsTarget,
	}
	if sess.Complete() {
		st.State = types.StateComplete
		st.Round = sess.RoundsCompleted
		return st
	}
	st.State = types.StateActive
	st.Round = sess.RoundsCompleted + 1
	return st
}

func (s *Service) nextGeneration(ctx context.Context, sessionID string, cfg phase.Config) (types.Next, error) {
	sess, err := s.tracker.Session(ctx, sessionID, cfg.RoundsTarget)
	if err != nil {
		return types.Next{}, err
	}
	status := generationStatus(sess)
	if sess.Complete() {
		return types.Next{Status: status}, nil
	}

	p, ok, err := s.pendingFor(ctx, sessionID, phase.StepGeneration, sess.RoundsCompleted)
	if err != nil {
		return types.Next{}, err
	}
	if !ok {
		req, err := s.request(ctx, sessionID, cfg.Prompt)
		if err != nil {
			return types.Next{}, err
		}
		res, err := s.selector.SelectPair(ctx, req)
		if err != nil {
			return types.Next{}, err
		}
		p, err = s.issue(ctx, sessionID, phase.StepGeneration, sess.RoundsCompleted, res.Pair.A, res.Pair.B, string(res.Path))
		if err != nil {
			return types.Next{}, err
		}
	}

	view, err := s.view(ctx, p, sess.RoundsTarget, true)
	if err != nil {
		return types.Next{}, err
	}
	return types.Next{Pair: view, Status: status}, nil
}

func (s *Service) chooseGeneration(ctx context.Context, cfg phase.Config, sessionID, token string, optionID int64) (types.Next, error) {
	p, err := s.claim(ctx, sessionID, token, phase.StepGeneration, func(p repository.Pending) error {
		if !p.Contains(optionID) {
			return ErrUnknownOption
		}
		return s.checkRound(ctx, p)
	})
	switch {
	case errors.Is(err, errReplay):
		return s.nextGeneration(ctx, sessionID, cfg)
	case errors.Is(err, ErrStaleToken):
		return types.Next{}, s.staleGeneration(ctx, sessionID)
	case err != nil:
		return types.Next{}, err
	}

	vote := model.Vote{
		SessionID:  sessionID,
		Token:      p.Token,
		Phase:      model.PhaseGeneration,
		Round:      p.Round,
		ChosenID:   optionID,
		RejectedID: p.Other(optionID),
		Position:   p.Position(optionID),
		CreatedAt:  s.now(),
	}
	if _, err := s.store.AppendVote(ctx, vote); err != nil {
		s.release(ctx, p)
		return types.Next{}, fmt.Errorf("record vote: %w", err)
	}
	if _, err := s.store.IncrementSelectionCount(ctx, optionID); err != nil {
		return types.Next{}, fmt.Errorf("increment selection: %w", err)
	}
	metrics.RecordVote(phase.StepGeneration.String(), "choice")

	return s.advance(ctx, cfg, sessionID, p.Round)
}

func (s *Service) neither(ctx context.Context, cfg phase.Config, sessionID, token string) (types.Next, error) {
	p, err := s.claim(ctx, sessionID, token, phase.StepGeneration, func(p repository.Pending) error {
		return s.checkRound(ctx, p)
	})
	switch {
	case errors.Is(err, errReplay):
		return s.nextGeneration(ctx, sessionID, cfg)
	case errors.Is(err, ErrStaleToken):
		return types.Next{}, s.staleGeneration(ctx, sessionID)
	case err != nil:
		return types.Next{}, err
	}

	for _, id := range []int64{p.LeftID, p.RightID} {
		vote := model.Vote{
			SessionID:  sessionID,
			Token:      p.Token,
			Phase:      model.PhaseGeneration,
			Round:      p.Round,
			RejectedID: id,
			Position:   p.Position(id),
			CreatedAt:  s.now(),
		}
		if _, err := s.store.AppendVote(ctx, vote); err != nil {
			if id == p.LeftID {
				s.release(ctx, p)
			}
			return types.Next{}, fmt.Errorf("record vote: %w", err)
		}
	}
	metrics.RecordVote(phase.StepGeneration.String(), "neither")

	return s.advance(ctx, cfg, sessionID, p.Round)
}

func (s *Service) advance(ctx context.Context, cfg phase.Config, sessionID string, round int) (types.Next, error) {
	sess, res, err := s.tracker.Advance(ctx, sessionID, round)
	if err != nil {
		return types.Next{}, err
	}
	if res.Outcome == progress.Complete {
		return types.Next{Status: generationStatus(sess)}, nil
	}
	return s.nextGeneration(ctx, sessionID, cfg)
}

func (s *Service) submit(ctx context.Context, cfg phase.Config, sessionID, text string) (types.Next, error) {
	sess, err := s.tracker.Session(ctx, sessionID, cfg.RoundsTarget)
	if err != nil {
		return types.Next{}, err
	}
	if sess.Complete() {
		return types.Next{}, ErrSessionComplete
	}

	req, err := s.request(ctx, sessionID, cfg.Prompt)
	if err != nil {
		return types.Next{}, err
	}
	res, err := s.selector.Submit(ctx, req, text)
	if err != nil {
		return types.Next{}, err
	}
	p, err := s.issue(ctx, sessionID, phase.StepGeneration, sess.RoundsCompleted, res.Pair.A, res.Pair.B, string(res.Path))
	if err != nil {
		return types.Next{}, err
	}
	s.log().Debug(ctx, "option submitted",
		logger.String("session", sessionID),
		logger.Int64("candidate", res.Pair.A.ID))

	view, err := s.view(ctx, p, sess.RoundsTarget, true)
	if err != nil {
		return types.Next{}, err
	}
	return types.Next{Pair: view, Status: generationStatus(sess)}, nil
}

// checkRound rejects a pending pair issued for a round the session already left.
func (s *Service) checkRound(ctx context.Context, p repository.Pending) error {
	sess, ok, err := s.store.LoadProgress(ctx, p.SessionID)
	if err != nil {
		return fmt.Errorf("load progress: %w", err)
	}
	if !ok || sess.RoundsCompleted != p.Round {
		return ErrStaleToken
	}
	return nil
}

// staleGeneration distinguishes a finished session from an outdated token.
func (s *Service) staleGeneration(ctx context.Context, sessionID string) error {
	sess, ok, err := s.store.LoadProgress(ctx, sessionID)
	if err == nil && ok && sess.Complete() {
		return ErrSessionComplete
	}
	return ErrStaleToken
}

// request builds the selector input from the session's generation votes.
// Exclude holds the options of the latest round so consecutive pairs differ.
func (s *Service) request(ctx context.Context, sessionID, prompt string) (selection.Request, error) {
	req := selection.Request{SessionID: sessionID, Prompt: prompt}

	votes, err := s.store.ListVotes(ctx, sessionID, model.PhaseGeneration)
	if err != nil {
		return req, fmt.Errorf("list votes: %w", err)
	}
	if len(votes) == 0 {
		return req, nil
	}

	lastRound := votes[len(votes)-1].Round
	texts := make(map[int64]string)
	text := func(id int64) (string, bool) {
		if t, ok := texts[id]; ok {
			return t, true
		}
		c, err := s.store.Get(ctx, id)
		if err != nil {
			return "", false
		}
		texts[id] = c.Text
		return c.Text, true
	}

	var recent []selection.HistoryItem
	for _, v := range votes {
		if v.Round == lastRound {
			for _, id := range []int64{v.ChosenID, v.RejectedID} {
				if id != 0 {
					req.Exclude = append(req.Exclude, id)
				}
			}
		}
		if !v.Neither() {
			if t, ok := text(v.ChosenID); ok {
				recent = append(recent, selection.HistoryItem{Text: t, Selected: true})
			}
		}
		if t, ok := text(v.RejectedID); ok {
			recent = append(recent, selection.HistoryItem{Text: t, Selected: false})
		}
	}
	if len(recent) > s.historyLimit {
		recent = recent[len(recent)-s.historyLimit:]
	}
	req.Recent = recent
	return req, nil
}
