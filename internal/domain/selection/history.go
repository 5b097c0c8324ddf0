package selection

import (
	"github.com/okian/duel/internal/domain/candidate"
)

// HistoryItem is one recent outcome for the calling session.
type HistoryItem struct {
	Text     string `json:"text"`
	Selected bool   `json:"selected"`
}

// HistorySummary is the bounded digest handed to the generator.
type HistorySummary struct {
	CandidateCount int           `json:"candidate_count"`
	TopSelected    []string      `json:"top_selected"`
	Recent         []HistoryItem `json:"recent"`
}

// Summarize builds a HistorySummary from a pool snapshot and the session's
// recent outcomes (oldest first). Only candidates selected at least once are
// listed in TopSelected.
func Summarize(pool []candidate.Candidate, recent []HistoryItem, topK, limit int) HistorySummary {
	sorted := make([]candidate.Candidate, len(pool))
	copy(sorted, pool)
	candidate.SortByPopularity(sorted)

	top := make([]string, 0, topK)
	for _, c := range sorted {
		if len(top) >= topK || c.SelectionCount < 1 {
			break
		}
		top = append(top, c.Text)
	}

	if limit >= 0 && len(recent) > limit {
		recent = recent[len(recent)-limit:]
	}
	out := make([]HistoryItem, len(recent))
	copy(out, recent)

	return HistorySummary{
		CandidateCount: len(pool),
		TopSelected:    top,
		Recent:         out,
	}
}
