// Package types contains the read shapes returned across the API boundary.
package types

// Session states reported to participants.
const (
	StateActive      = "active"
	StateComplete    = "complete"
	StateDisabled    = "disabled"
	StateNoResults   = "no_results"
	StateUnavailable = "unavailable"
)

// Option is one side of a presented pair.
type Option struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// PairView is what a participant is shown next. Token must be echoed back
// to resolve the pair.
type PairView struct {
	Token       string `json:"token"`
	Phase       int    `json:"phase"`
	Round       int    `json:"round"`
	TotalRounds int    `json:"total_rounds"`
	OptionA     Option `json:"option_a"`
	OptionB     Option `json:"option_b"`
	AllowSubmit bool   `json:"allow_submit"`
}

// Status summarizes a participant's position in the current phase.
type Status struct {
	State         string  `json:"state"`
	Phase         int     `json:"phase"`
	Round         int     `json:"round"`
	TotalRounds   int     `json:"total_rounds"`
	Winner        *Option `json:"winner,omitempty"`
	LongestStreak int     `json:"longest_streak,omitempty"`
	StreakHolder  *Option `json:"streak_holder,omitempty"`
}

// PopularityEntry ranks candidates by generation-phase selections.
type PopularityEntry struct {
	Rank           int    `json:"rank"`
	ID             int64  `json:"id"`
	Text           string `json:"text"`
	Origin         string `json:"origin"`
	SelectionCount int64  `json:"selection_count"`
}

// StreakEntry ranks candidates by the longest streak they held in any session.
type StreakEntry struct {
	Rank      int    `json:"rank"`
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	MaxStreak int    `json:"max_streak"`
	Sessions  int    `json:"sessions"`
}

// WinnerEntry counts how many sessions a candidate won.
type WinnerEntry struct {
	Rank int    `json:"rank"`
	ID   int64  `json:"id"`
	Text string `json:"text"`
	Wins int    `json:"wins"`
}

// Next is what a participant should see: a pair to judge, or only a status
// when there is nothing to judge.
type Next struct {
	Pair   *PairView `json:"pair,omitempty"`
	Status Status    `json:"status"`
}
