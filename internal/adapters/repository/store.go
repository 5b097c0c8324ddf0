// Package repository persists candidates, votes and per-session state.
package repository

import (
	"context"
	"time"

	"github.com/okian/duel/internal/domain/candidate"
	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/internal/domain/phase"
	"github.com/okian/duel/internal/domain/progress"
	"github.com/okian/duel/internal/domain/tournament"
)

// Pending is the pair most recently issued to a session. A vote is only
// accepted against the pending pair carrying the same Token.
type Pending struct {
	SessionID string    `json:"session_id" yaml:"session_id"`
	Token     string    `json:"token" yaml:"token"`
	Phase     int       `json:"phase" yaml:"phase"`
	Round     int       `json:"round" yaml:"round"`
	LeftID    int64     `json:"left_id" yaml:"left_id"`
	RightID   int64     `json:"right_id" yaml:"right_id"`
	Path      string    `json:"path" yaml:"path"`
	IssuedAt  time.Time `json:"issued_at" yaml:"issued_at"`
}

// Contains reports whether id is one of the pending sides.
func (p Pending) Contains(id int64) bool {
	return id != 0 && (p.LeftID == id || p.RightID == id)
}

// Other returns the side that is not id.
func (p Pending) Other(id int64) int64 {
	if p.LeftID == id {
		return p.RightID
	}
	return p.LeftID
}

// Position returns "left" or "right" for id.
func (p Pending) Position(id int64) string {
	if p.RightID == id {
		return model.PositionRight
	}
	return model.PositionLeft
}

// MergeGroup describes duplicates folded into the earliest candidate sharing
// the same normalized text.
type MergeGroup struct {
	Normalized string
	KeepID     int64
	DropIDs    []int64
	// Renamed is set when the kept candidate's stored text was not normalized.
	Renamed bool
}

// Store provides read/write access to the discovery state.
//
// Candidate methods satisfy selection.Store; progress methods satisfy
// progress.Store. Save methods taking an expected value are compare-and-set:
// they report false without writing when the stored state moved on.
type Store interface {
	// GetOrCreate returns the candidate whose normalized text equals text,
	// creating it when absent. The bool reports whether it was created.
	GetOrCreate(ctx context.Context, text string, origin candidate.Origin, sessionID string) (candidate.Candidate, bool, error)
	// Get returns a candidate by id or ErrNotFound.
	Get(ctx context.Context, id int64) (candidate.Candidate, error)
	// IncrementSelectionCount adds one selection to the candidate.
	IncrementSelectionCount(ctx context.Context, id int64) (int64, error)
	// ListPool returns every candidate in creation order.
	ListPool(ctx context.Context) ([]candidate.Candidate, error)
	// ListEligible returns candidates selected at least once, in creation order.
	ListEligible(ctx context.Context) ([]candidate.Candidate, error)
	// Count returns the number of candidates.
	Count(ctx context.Context) int

	// AppendVote stores v, assigning its id.
	AppendVote(ctx context.Context, v model.Vote) (model.Vote, error)
	// ListVotes returns votes of step (0 for all) for sessionID ("" for all).
	ListVotes(ctx context.Context, sessionID string, step int) ([]model.Vote, error)

	LoadProgress(ctx context.Context, sessionID string) (progress.GenerationSession, bool, error)
	// SaveProgress writes next if the stored RoundsCompleted equals expected;
	// -1 requires the session to be absent.
	SaveProgress(ctx context.Context, next progress.GenerationSession, expected int) (bool, error)

	LoadTournament(ctx context.Context, sessionID string) (tournament.Session, bool, error)
	// SaveTournament writes s if the stored comparison count equals expected;
	// -1 requires the session to be absent.
	SaveTournament(ctx context.Context, s tournament.Session, expected int) (bool, error)
	// ListTournaments returns every tournament session ordered by id.
	ListTournaments(ctx context.Context) ([]tournament.Session, error)

	LoadPending(ctx context.Context, sessionID string) (Pending, bool, error)
	SavePending(ctx context.Context, p Pending) error
	// ConsumePending deletes the pending pair if it still carries token.
	ConsumePending(ctx context.Context, sessionID, token string) (Pending, bool, error)

	// MergeDuplicates folds candidates sharing a normalized text into the
	// earliest one. With dryRun it only reports what would change.
	MergeDuplicates(ctx context.Context, dryRun bool) ([]MergeGroup, error)

	// LoadPhase returns the phase configuration last saved, if any.
	LoadPhase(ctx context.Context) (phase.Config, bool, error)
	SavePhase(ctx context.Context, cfg phase.Config) error
}
