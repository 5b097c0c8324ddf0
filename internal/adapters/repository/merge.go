package repository

import (
	"context"
	"slices"
	"time"

	"github.com/okian/duel/internal/domain/candidate"
	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/pkg/logger"
	"github.com/okian/duel/pkg/metrics"
)

// MergeDuplicates implements Store.MergeDuplicates.
//
// Candidates are grouped by normalized text in creation order. The earliest
// of each group is kept, takes the normalized text and absorbs the selection
// counts of the others. Votes and generation pending pairs are re-pointed
// to it. Tournament sessions and their pending pairs keep their frozen
// snapshots.
func (s *MemoryStore) MergeDuplicates(ctx context.Context, dryRun bool) ([]MergeGroup, error) {
	start := time.Now()
	defer observeUpdate(start)

	s.mu.Lock()
	defer s.mu.Unlock()

	ordered := make([]candidate.Candidate, 0, len(s.candidates))
	for _, c := range s.candidates {
		ordered = append(ordered, c)
	}
	candidate.SortByCreation(ordered)

	groups := make(map[string]*MergeGroup)
	var keys []string
	for _, c := range ordered {
		key := candidate.Normalize(c.Text)
		g, ok := groups[key]
		if !ok {
			groups[key] = &MergeGroup{Normalized: key, KeepID: c.ID, Renamed: c.Text != key}
			keys = append(keys, key)
			continue
		}
		g.DropIDs = append(g.DropIDs, c.ID)
	}

	var out []MergeGroup
	for _, key := range keys {
		g := groups[key]
		if len(g.DropIDs) == 0 && !g.Renamed {
			continue
		}
		out = append(out, *g)
		if dryRun {
			continue
		}
		s.applyMergeLocked(*g)
	}

	if !dryRun && len(out) > 0 {
		s.dirty = true
		metrics.UpdateCandidatePoolSize(len(s.candidates))
	}
	for _, g := range out {
		s.log().Info(ctx, "merge duplicates",
			logger.Bool("dry_run", dryRun),
			logger.Int64("keep", g.KeepID),
			logger.Any("drop", g.DropIDs),
			logger.String("text", g.Normalized))
	}
	return out, nil
}

func (s *MemoryStore) applyMergeLocked(g MergeGroup) {
	keep := s.candidates[g.KeepID]
	keep.Text = g.Normalized
	for _, id := range g.DropIDs {
		keep.SelectionCount += s.candidates[id].SelectionCount
		delete(s.candidates, id)

		for i := range s.votes {
			s.votes[i].Repoint(id, g.KeepID)
		}
		for sid, p := range s.pending {
			if p.Phase == model.PhaseSelection || !p.Contains(id) {
				continue
			}
			if p.LeftID == id {
				p.LeftID = g.KeepID
			}
			if p.RightID == id {
				p.RightID = g.KeepID
			}
			if p.LeftID == p.RightID {
				delete(s.pending, sid)
				continue
			}
			s.pending[sid] = p
		}
	}
	s.candidates[g.KeepID] = keep
	s.byText[g.Normalized] = g.KeepID
}

// DropIDsOf flattens the ids removed by groups.
func DropIDsOf(groups []MergeGroup) []int64 {
	var ids []int64
	for _, g := range groups {
		ids = append(ids, g.DropIDs...)
	}
	slices.Sort(ids)
	return ids
}
