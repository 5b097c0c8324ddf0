// Package progress tracks how far each anonymous session has come through
// the generation phase.
package progress

import (
	"fmt"
	"time"
)

// Outcome of advancing a session.
type Outcome int

// Outcomes.
const (
	Continue Outcome = iota + 1
	Complete
)

func (o Outcome) String() string {
	switch o {
	case Continue:
		return "continue"
	case Complete:
		return "complete"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// RoundResult is Continue(NextRound) or Complete.
type RoundResult struct {
	Outcome   Outcome
	NextRound int
}

// GenerationSession is the per-session round counter.
//
// Invariant: 0 <= RoundsCompleted <= RoundsTarget.
type GenerationSession struct {
	ID              string    `json:"id" yaml:"id"`
	RoundsCompleted int       `json:"rounds_completed" yaml:"rounds_completed"`
	RoundsTarget    int       `json:"rounds_target" yaml:"rounds_target"`
	UpdatedAt       time.Time `json:"updated_at" yaml:"updated_at"`
}

// NewGenerationSession starts a session at round zero.
func NewGenerationSession(id string, target int) GenerationSession {
	if target < 1 {
		target = 1
	}
	return GenerationSession{ID: id, RoundsTarget: target}
}

// Complete reports whether the session reached its round target.
func (s GenerationSession) Complete() bool { return s.RoundsCompleted >= s.RoundsTarget }

// Result is the state the session is in without advancing it.
func (s GenerationSession) Result() RoundResult {
	if s.Complete() {
		return RoundResult{Outcome: Complete, NextRound: s.RoundsTarget}
	}
	return RoundResult{Outcome: Continue, NextRound: s.RoundsCompleted}
}

// Advance completes round and returns the next state.
//
// A complete session is returned unchanged with Complete. A round index
// other than RoundsCompleted is stale and yields ErrInvalidRoundState with
// the session unchanged.
func (s GenerationSession) Advance(round int) (GenerationSession, RoundResult, error) {
	if s.Complete() {
		return s, s.Result(), nil
	}
	if round != s.RoundsCompleted {
		return s, s.Result(), fmt.Errorf("%w: round %d, completed %d", ErrInvalidRoundState, round, s.RoundsCompleted)
	}
	next := s
	next.RoundsCompleted++
	return next, next.Result(), nil
}
