// Package tournament runs the per-session single-elimination streak
// tournament over the candidates selected during generation.
package tournament

import (
	"fmt"

	"github.com/okian/duel/internal/domain/candidate"
)

// Side is where a candidate is rendered.
type Side int

// Sides.
const (
	Left  Side = 0
	Right Side = 1
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Left {
		return Right
	}
	return Left
}

func (s Side) String() string {
	if s == Right {
		return "right"
	}
	return "left"
}

// Comparison is the next pair to be judged.
type Comparison struct {
	Leader     candidate.Candidate
	Challenger candidate.Candidate
	// LeaderSide keeps the leader where it was last chosen.
	LeaderSide Side
	// Index is the zero-based comparison number.
	Index int
}

// Sides returns the pair in render order.
func (c Comparison) Sides() (left, right candidate.Candidate) {
	if c.LeaderSide == Right {
		return c.Challenger, c.Leader
	}
	return c.Leader, c.Challenger
}

// SideOf returns the side id is rendered on.
func (c Comparison) SideOf(id int64) Side {
	if id == c.Leader.ID {
		return c.LeaderSide
	}
	return c.LeaderSide.Opposite()
}

// Finished is the terminal outcome of a session.
type Finished struct {
	Winner        candidate.Candidate
	LongestStreak int
	StreakHolder  candidate.Candidate
}

// Step is either a Comparison or Finished.
type Step struct {
	Comparison *Comparison
	Finished   *Finished
}

// Done reports whether the step is terminal.
func (s Step) Done() bool { return s.Finished != nil }

// Outcome is one recorded comparison.
type Outcome struct {
	LeaderID     int64 `json:"leader_id" yaml:"leader_id"`
	ChallengerID int64 `json:"challenger_id" yaml:"challenger_id"`
	WinnerID     int64 `json:"winner_id" yaml:"winner_id"`
	WinnerSide   Side  `json:"winner_side" yaml:"winner_side"`
}

// LoserID returns the id of the candidate that lost.
func (o Outcome) LoserID() int64 {
	if o.WinnerID == o.LeaderID {
		return o.ChallengerID
	}
	return o.LeaderID
}

// Session is the serializable tournament state of one participant.
//
// Eligible is fixed at Start. Leader and Cursor index into it; Cursor is the
// next unseen challenger. Invariant: Leader is the winner of the most recent
// comparison, or the first candidate when none has happened.
type Session struct {
	ID           string                `json:"id" yaml:"id"`
	Eligible     []candidate.Candidate `json:"eligible" yaml:"eligible"`
	Leader       int                   `json:"leader" yaml:"leader"`
	Cursor       int                   `json:"cursor" yaml:"cursor"`
	Streak       int                   `json:"streak" yaml:"streak"`
	BestStreak   int                   `json:"best_streak" yaml:"best_streak"`
	BestHolderID int64                 `json:"best_holder_id" yaml:"best_holder_id"`
	LeaderSide   Side                  `json:"leader_side" yaml:"leader_side"`
	History      []Outcome             `json:"history" yaml:"history"`
}

// Start snapshots eligible in creation order and seeds the leader with the
// first candidate. It fails with ErrNoEligibleCandidates when eligible is empty.
func Start(sessionID string, eligible []candidate.Candidate) (*Session, error) {
	if len(eligible) == 0 {
		return nil, ErrNoEligibleCandidates
	}
	snapshot := make([]candidate.Candidate, len(eligible))
	copy(snapshot, eligible)
	candidate.SortByCreation(snapshot)

	return &Session{
		ID:         sessionID,
		Eligible:   snapshot,
		Leader:     0,
		Cursor:     1,
		LeaderSide: Left,
	}, nil
}

// Replay rebuilds a session from a recorded sequence of winners.
func Replay(sessionID string, eligible []candidate.Candidate, winners []int64) (*Session, error) {
	s, err := Start(sessionID, eligible)
	if err != nil {
		return nil, err
	}
	for i, w := range winners {
		if err := s.Record(w); err != nil {
			return nil, fmt.Errorf("replay comparison %d: %w", i, err)
		}
	}
	return s, nil
}

// Comparisons returns how many comparisons have been recorded.
func (s *Session) Comparisons() int { return len(s.History) }

// Total is the number of comparisons a full run performs: n-1.
func (s *Session) Total() int {
	if len(s.Eligible) < 2 {
		return 0
	}
	return len(s.Eligible) - 1
}

// Done reports whether every challenger has been seen.
func (s *Session) Done() bool { return s.Cursor >= len(s.Eligible) }

// Next returns the next comparison or the terminal outcome.
func (s *Session) Next() Step {
	if s.Done() {
		holder := s.Eligible[s.Leader]
		if s.BestHolderID != 0 {
			holder = s.byID(s.BestHolderID)
		}
		return Step{Finished: &Finished{
			Winner:        s.Eligible[s.Leader],
			LongestStreak: s.BestStreak,
			StreakHolder:  holder,
		}}
	}
	return Step{Comparison: &Comparison{
		Leader:     s.Eligible[s.Leader],
		Challenger: s.Eligible[s.Cursor],
		LeaderSide: s.LeaderSide,
		Index:      len(s.History),
	}}
}

// Record applies the result of the current comparison.
func (s *Session) Record(winnerID int64) error {
	if s.Done() {
		return ErrFinished
	}
	leader, challenger := s.Eligible[s.Leader], s.Eligible[s.Cursor]
	out := Outcome{LeaderID: leader.ID, ChallengerID: challenger.ID, WinnerID: winnerID}

	switch winnerID {
	case leader.ID:
		out.WinnerSide = s.LeaderSide
		s.Streak++
	case challenger.ID:
		out.WinnerSide = s.LeaderSide.Opposite()
		s.Leader = s.Cursor
		s.LeaderSide = out.WinnerSide
		s.Streak = 1
	default:
		return fmt.Errorf("%w: %d is neither %d nor %d", ErrNotInComparison, winnerID, leader.ID, challenger.ID)
	}
	if s.Streak > s.BestStreak {
		s.BestStreak = s.Streak
		s.BestHolderID = winnerID
	}
	s.Cursor++
	s.History = append(s.History, out)
	return nil
}

func (s *Session) byID(id int64) candidate.Candidate {
	for _, c := range s.Eligible {
		if c.ID == id {
			return c
		}
	}
	return s.Eligible[s.Leader]
}
