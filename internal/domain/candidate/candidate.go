// Package candidate defines the option record shared by the discovery and
// tournament phases, plus the text normalization used to deduplicate it.
package candidate

import (
	"cmp"
	"slices"
	"time"
)

// Origin tags where a candidate came from.
type Origin string

// Known origins.
const (
	OriginGenerated     Origin = "generated"
	OriginUserSubmitted Origin = "user_submitted"
)

// Valid reports whether o is a known origin.
func (o Origin) Valid() bool {
	return o == OriginGenerated || o == OriginUserSubmitted
}

// Candidate is a proposed item competing for selection.
//
// ID is assigned from a monotonically increasing sequence and doubles as the
// creation order. Text is always stored normalized.
type Candidate struct {
	ID             int64     `json:"id" yaml:"id"`
	Text           string    `json:"text" yaml:"text"`
	Origin         Origin    `json:"origin" yaml:"origin"`
	SelectionCount int64     `json:"selection_count" yaml:"selection_count"`
	SessionID      string    `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	CreatedAt      time.Time `json:"created_at" yaml:"created_at"`
}

// Eligible reports whether c may enter the tournament.
func (c Candidate) Eligible() bool { return c.SelectionCount >= 1 }

// Weight is the Laplace-smoothed exploitation weight.
func (c Candidate) Weight() float64 { return float64(c.SelectionCount + 1) }

// SortByCreation orders candidates by creation order in place.
func SortByCreation(cs []Candidate) {
	slices.SortFunc(cs, func(a, b Candidate) int { return cmp.Compare(a.ID, b.ID) })
}

// SortByPopularity orders candidates by selection count, most selected first,
// breaking ties by creation order.
func SortByPopularity(cs []Candidate) {
	slices.SortFunc(cs, func(a, b Candidate) int {
		if c := cmp.Compare(b.SelectionCount, a.SelectionCount); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
