// Package results aggregates phase outcomes into ranked reports.
package results

import (
	"cmp"
	"slices"

	"github.com/okian/duel/internal/domain/candidate"
	"github.com/okian/duel/internal/domain/tournament"
	"github.com/okian/duel/internal/domain/types"
)

// Popularity ranks candidates selected at least once in the generation
// phase. limit <= 0 returns all.
func Popularity(pool []candidate.Candidate, limit int) []types.PopularityEntry {
	sorted := make([]candidate.Candidate, 0, len(pool))
	for _, c := range pool {
		if c.Eligible() {
			sorted = append(sorted, c)
		}
	}
	candidate.SortByPopularity(sorted)
	sorted = truncate(sorted, limit)

	out := make([]types.PopularityEntry, len(sorted))
	for i, c := range sorted {
		out[i] = types.PopularityEntry{
			Rank:           i + 1,
			ID:             c.ID,
			Text:           c.Text,
			Origin:         string(c.Origin),
			SelectionCount: c.SelectionCount,
		}
	}
	return out
}

// Streaks ranks candidates by the longest streak they held in any session,
// then by the number of sessions in which they held it. Sessions without
// comparisons are ignored.
func Streaks(sessions []tournament.Session, limit int) []types.StreakEntry {
	type agg struct {
		c        candidate.Candidate
		max      int
		sessions int
	}
	byID := map[int64]*agg{}
	for i := range sessions {
		s := &sessions[i]
		if s.Comparisons() == 0 || s.BestHolderID == 0 {
			continue
		}
		holder := s.Next()
		var c candidate.Candidate
		if holder.Finished != nil {
			c = holder.Finished.StreakHolder
		} else {
			c = lookup(s.Eligible, s.BestHolderID)
		}
		a, ok := byID[c.ID]
		if !ok {
			a = &agg{c: c}
			byID[c.ID] = a
		}
		a.sessions++
		a.max = max(a.max, s.BestStreak)
	}

	aggs := make([]*agg, 0, len(byID))
	for _, a := range byID {
		aggs = append(aggs, a)
	}
	slices.SortFunc(aggs, func(x, y *agg) int {
		if c := cmp.Compare(y.max, x.max); c != 0 {
			return c
		}
		if c := cmp.Compare(y.sessions, x.sessions); c != 0 {
			return c
		}
		return cmp.Compare(x.c.ID, y.c.ID)
	})
	aggs = truncate(aggs, limit)

	out := make([]types.StreakEntry, len(aggs))
	for i, a := range aggs {
		out[i] = types.StreakEntry{Rank: i + 1, ID: a.c.ID, Text: a.c.Text, MaxStreak: a.max, Sessions: a.sessions}
	}
	return out
}

// Winners counts the leader after the last comparison of every session with
// at least one comparison. For a finished session that is its final winner;
// for one in progress it is the latest choice, matching Streaks, which also
// counts sessions in progress.
func Winners(sessions []tournament.Session, limit int) []types.WinnerEntry {
	type agg struct {
		c    candidate.Candidate
		wins int
	}
	byID := map[int64]*agg{}
	for i := range sessions {
		s := &sessions[i]
		if s.Comparisons() == 0 {
			continue
		}
		w := s.Eligible[s.Leader]
		a, ok := byID[w.ID]
		if !ok {
			a = &agg{c: w}
			byID[w.ID] = a
		}
		a.wins++
	}

	aggs := make([]*agg, 0, len(byID))
	for _, a := range byID {
		aggs = append(aggs, a)
	}
	slices.SortFunc(aggs, func(x, y *agg) int {
		if c := cmp.Compare(y.wins, x.wins); c != 0 {
			return c
		}
		return cmp.Compare(x.c.ID, y.c.ID)
	})
	aggs = truncate(aggs, limit)

	out := make([]types.WinnerEntry, len(aggs))
	for i, a := range aggs {
		out[i] = types.WinnerEntry{Rank: i + 1, ID: a.c.ID, Text: a.c.Text, Wins: a.wins}
	}
	return out
}

func lookup(cs []candidate.Candidate, id int64) candidate.Candidate {
	for _, c := range cs {
		if c.ID == id {
			return c
		}
	}
	return candidate.Candidate{ID: id}
}

func truncate[T any](s []T, limit int) []T {
	if limit > 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}
