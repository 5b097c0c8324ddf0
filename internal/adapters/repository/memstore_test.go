package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/okian/duel/internal/domain/candidate"
	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/internal/domain/phase"
	"github.com/okian/duel/internal/domain/progress"
	"github.com/okian/duel/internal/domain/tournament"
	"github.com/okian/duel/pkg/logger"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func newStore(t *testing.T, opts ...Option) *MemoryStore {
	t.Helper()
	s, err := NewMemoryStore(context.Background(), opts...)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMemoryStore_GetOrCreate(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	a, created, err := store.GetOrCreate(ctx, "Blue Fox", candidate.OriginGenerated, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Error("expected first insert to create")
	}
	if a.Text != "BLUE FOX" {
		t.Errorf("expected normalized text, got %q", a.Text)
	}

	b, created, err := store.GetOrCreate(ctx, "  blue   fox ", candidate.OriginUserSubmitted, "s2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Error("expected colliding text to return the existing candidate")
	}
	if b.ID != a.ID || b.Origin != candidate.OriginGenerated || b.SessionID != "s1" {
		t.Errorf("expected original candidate, got %+v", b)
	}

	c, _, err := store.GetOrCreate(ctx, "Red Owl", candidate.OriginGenerated, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ID <= a.ID {
		t.Errorf("expected increasing ids, got %d after %d", c.ID, a.ID)
	}
	if count := store.Count(ctx); count != 2 {
		t.Errorf("expected count 2, got %d", count)
	}
}

func TestMemoryStore_GetOrCreateRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	if _, _, err := store.GetOrCreate(ctx, "   ", candidate.OriginGenerated, "s"); !errors.Is(err, candidate.ErrEmptyText) {
		t.Errorf("expected ErrEmptyText, got %v", err)
	}
	if _, _, err := store.GetOrCreate(ctx, "x", candidate.Origin("scraped"), "s"); !errors.Is(err, ErrInvalidOrigin) {
		t.Errorf("expected ErrInvalidOrigin, got %v", err)
	}
	if store.Count(ctx) != 0 {
		t.Error("expected nothing stored")
	}
}

func TestMemoryStore_ConcurrentGetOrCreate(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	var wg sync.WaitGroup
	ids := make([]int64, 64)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			variant := "shared option"
			if i%2 == 0 {
				variant = "  SHARED   Option "
			}
			c, _, err := store.GetOrCreate(ctx, variant, candidate.OriginGenerated, fmt.Sprintf("s%d", i))
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			ids[i] = c.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("expected a single candidate, got ids %v", ids)
		}
	}
	if store.Count(ctx) != 1 {
		t.Errorf("expected count 1, got %d", store.Count(ctx))
	}
}

func TestMemoryStore_SelectionCounts(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	a, _, _ := store.GetOrCreate(ctx, "a", candidate.OriginGenerated, "")
	b, _, _ := store.GetOrCreate(ctx, "b", candidate.OriginGenerated, "")
	_, _, _ = store.GetOrCreate(ctx, "c", candidate.OriginGenerated, "")

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.IncrementSelectionCount(ctx, a.ID); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if _, err := store.IncrementSelectionCount(ctx, b.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := store.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.SelectionCount != 100 {
		t.Errorf("expected 100 selections, got %d", got.SelectionCount)
	}

	eligible, _ := store.ListEligible(ctx)
	if len(eligible) != 2 || eligible[0].ID != a.ID || eligible[1].ID != b.ID {
		t.Errorf("expected [a b] in creation order, got %+v", eligible)
	}
	pool, _ := store.ListPool(ctx)
	if len(pool) != 3 {
		t.Errorf("expected pool of 3, got %d", len(pool))
	}

	if _, err := store.IncrementSelectionCount(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Get(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_Votes(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	v1, err := store.AppendVote(ctx, model.Vote{SessionID: "s1", Phase: model.PhaseGeneration, ChosenID: 1, RejectedID: 2, Position: model.PositionLeft})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, _ = store.AppendVote(ctx, model.Vote{SessionID: "s1", Phase: model.PhaseSelection, ChosenID: 2, RejectedID: 1})
	_, _ = store.AppendVote(ctx, model.Vote{SessionID: "s2", Phase: model.PhaseGeneration, RejectedID: 3})

	if v1.ID != 1 || v1.CreatedAt.IsZero() {
		t.Errorf("expected id and timestamp assigned, got %+v", v1)
	}

	all, _ := store.ListVotes(ctx, "", 0)
	if len(all) != 3 {
		t.Errorf("expected 3 votes, got %d", len(all))
	}
	gen, _ := store.ListVotes(ctx, "", model.PhaseGeneration)
	if len(gen) != 2 {
		t.Errorf("expected 2 generation votes, got %d", len(gen))
	}
	s1, _ := store.ListVotes(ctx, "s1", model.PhaseSelection)
	if len(s1) != 1 || s1[0].ChosenID != 2 {
		t.Errorf("expected one selection vote for s1, got %+v", s1)
	}

	bad := []model.Vote{
		{Phase: 1, ChosenID: 1, RejectedID: 2},
		{SessionID: "s", Phase: 1},
		{SessionID: "s", Phase: 1, ChosenID: 4, RejectedID: 4},
	}
	for _, v := range bad {
		if _, err := store.AppendVote(ctx, v); !errors.Is(err, ErrInvalidVote) {
			t.Errorf("expected ErrInvalidVote for %+v, got %v", v, err)
		}
	}
}

func TestMemoryStore_ProgressCompareAndSet(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	sess := progress.NewGenerationSession("s1", 3)
	if ok, err := store.SaveProgress(ctx, sess, -1); err != nil || !ok {
		t.Fatalf("expected create, got %v %v", ok, err)
	}
	if ok, _ := store.SaveProgress(ctx, sess, -1); ok {
		t.Error("expected second create to be refused")
	}

	next := sess
	next.RoundsCompleted = 1
	if ok, _ := store.SaveProgress(ctx, next, 0); !ok {
		t.Error("expected advance from 0 to succeed")
	}
	if ok, _ := store.SaveProgress(ctx, next, 0); ok {
		t.Error("expected stale advance to be refused")
	}

	got, found, _ := store.LoadProgress(ctx, "s1")
	if !found || got.RoundsCompleted != 1 {
		t.Errorf("expected 1 round completed, got %+v", got)
	}

	if ok, _ := store.SaveProgress(ctx, progress.NewGenerationSession("ghost", 3), 0); ok {
		t.Error("expected update of absent session to be refused")
	}
	if _, err := store.SaveProgress(ctx, progress.GenerationSession{}, -1); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("expected ErrInvalidSession, got %v", err)
	}
}

func TestMemoryStore_ProgressTrackerRace(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	tracker := progress.NewTracker(store)

	if _, err := tracker.Session(ctx, "s1", 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := tracker.Advance(ctx, "s1", 0); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _, _ := store.LoadProgress(ctx, "s1")
	if got.RoundsCompleted != 1 {
		t.Errorf("expected exactly one advance, got %d", got.RoundsCompleted)
	}
}

func tournamentPool(ctx context.Context, t *testing.T, store *MemoryStore, texts ...string) []candidate.Candidate {
	t.Helper()
	for _, text := range texts {
		c, _, err := store.GetOrCreate(ctx, text, candidate.OriginGenerated, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := store.IncrementSelectionCount(ctx, c.ID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	eligible, _ := store.ListEligible(ctx)
	return eligible
}

func TestMemoryStore_Tournaments(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	eligible := tournamentPool(ctx, t, store, "x", "y", "z")

	sess, err := tournament.Start("s1", eligible)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok, _ := store.SaveTournament(ctx, *sess, -1); !ok {
		t.Fatal("expected create")
	}

	if err := sess.Record(eligible[0].ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok, _ := store.SaveTournament(ctx, *sess, 0); !ok {
		t.Error("expected save at 0 comparisons to succeed")
	}
	if ok, _ := store.SaveTournament(ctx, *sess, 0); ok {
		t.Error("expected stale save to be refused")
	}

	loaded, found, _ := store.LoadTournament(ctx, "s1")
	if !found || loaded.Comparisons() != 1 {
		t.Fatalf("expected one comparison, got %+v", loaded)
	}

	// Loaded sessions must not alias stored state.
	loaded.History[0].WinnerID = 42
	again, _, _ := store.LoadTournament(ctx, "s1")
	if again.History[0].WinnerID == 42 {
		t.Error("expected stored history to be isolated from callers")
	}

	other, _ := tournament.Start("a0", eligible)
	_, _ = store.SaveTournament(ctx, *other, -1)
	list, _ := store.ListTournaments(ctx)
	if len(list) != 2 || list[0].ID != "a0" || list[1].ID != "s1" {
		t.Errorf("expected sessions ordered by id, got %d", len(list))
	}
}

func TestMemoryStore_Pending(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	p := Pending{SessionID: "s1", Token: "t1", Phase: 1, LeftID: 1, RightID: 2}
	if err := store.SavePending(ctx, p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.SavePending(ctx, Pending{SessionID: "s1"}); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("expected ErrInvalidSession, got %v", err)
	}

	if _, ok, _ := store.ConsumePending(ctx, "s1", "wrong"); ok {
		t.Error("expected mismatched token to be refused")
	}
	got, ok, _ := store.ConsumePending(ctx, "s1", "t1")
	if !ok || got.RightID != 2 {
		t.Errorf("expected pending pair, got %+v", got)
	}
	if _, ok, _ := store.ConsumePending(ctx, "s1", "t1"); ok {
		t.Error("expected pair to be consumed once")
	}

	if p.Position(2) != model.PositionRight || p.Position(1) != model.PositionLeft {
		t.Error("unexpected positions")
	}
	if p.Other(1) != 2 || !p.Contains(2) || p.Contains(3) || p.Contains(0) {
		t.Error("unexpected pending membership")
	}
}

const legacySnapshot = `version: 1
next_id: 4
next_vote_id: 2
candidates:
  - id: 1
    text: option
    origin: generated
    selection_count: 1
  - id: 2
    text: OPTION
    origin: user_submitted
    selection_count: 2
  - id: 3
    text: "  option  "
    origin: generated
  - id: 4
    text: OTHER
    origin: generated
votes:
  - id: 1
    session_id: s1
    phase: 1
    chosen_id: 2
    rejected_id: 4
  - id: 2
    session_id: s1
    phase: 1
    chosen_id: 4
    rejected_id: 3
pending:
  - session_id: s1
    token: tok
    phase: 1
    left_id: 1
    right_id: 3
`

func writeSnapshot(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	return path
}

func TestMemoryStore_MergeDuplicatesDryRun(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, WithSnapshotPath(writeSnapshot(t, legacySnapshot)))

	groups, err := store.MergeDuplicates(ctx, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected one group, got %+v", groups)
	}
	g := groups[0]
	if g.KeepID != 1 || len(g.DropIDs) != 2 || !g.Renamed || g.Normalized != "OPTION" {
		t.Errorf("unexpected group %+v", g)
	}

	if store.Count(ctx) != 4 {
		t.Errorf("expected dry run to keep all candidates, got %d", store.Count(ctx))
	}
	c, _ := store.Get(ctx, 1)
	if c.Text != "option" {
		t.Errorf("expected dry run to keep text, got %q", c.Text)
	}
}

func TestMemoryStore_MergeDuplicates(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, WithSnapshotPath(writeSnapshot(t, legacySnapshot)))

	groups, err := store.MergeDuplicates(ctx, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ids := DropIDsOf(groups); len(ids) != 2 || ids[0] != 2 || ids[1] != 3 {
		t.Errorf("expected 2 and 3 dropped, got %v", ids)
	}

	if store.Count(ctx) != 2 {
		t.Errorf("expected 2 candidates, got %d", store.Count(ctx))
	}
	kept, err := store.Get(ctx, 1)
	if err != nil {
		t.Fatalf("expected oldest kept: %v", err)
	}
	if kept.Text != "OPTION" || kept.SelectionCount != 3 {
		t.Errorf("expected normalized text and summed count, got %+v", kept)
	}

	votes, _ := store.ListVotes(ctx, "", 0)
	if votes[0].ChosenID != 1 {
		t.Errorf("expected chosen re-pointed, got %d", votes[0].ChosenID)
	}
	if votes[1].RejectedID != 1 {
		t.Errorf("expected rejected re-pointed, got %d", votes[1].RejectedID)
	}

	if _, ok, _ := store.LoadPending(ctx, "s1"); ok {
		t.Error("expected pending pair collapsed onto one candidate to be dropped")
	}

	c, created, _ := store.GetOrCreate(ctx, "option", candidate.OriginGenerated, "")
	if created || c.ID != 1 {
		t.Errorf("expected lookup to hit the kept candidate, got %+v", c)
	}

	again, _ := store.MergeDuplicates(ctx, false)
	if len(again) != 0 {
		t.Errorf("expected merge to be idempotent, got %+v", again)
	}
}

func TestMemoryStore_SnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.yaml")

	store, err := NewMemoryStore(ctx, WithSnapshotPath(path), WithSnapshotInterval(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	eligible := tournamentPool(ctx, t, store, "alpha", "beta")
	sess, _ := tournament.Start("s1", eligible)
	_ = sess.Record(eligible[1].ID)
	_, _ = store.SaveTournament(ctx, *sess, -1)
	_, _ = store.SaveProgress(ctx, progress.NewGenerationSession("s1", 4), -1)
	_, _ = store.AppendVote(ctx, model.Vote{SessionID: "s1", Phase: 1, Token: "tok", ChosenID: eligible[0].ID, RejectedID: eligible[1].ID})
	if _, ok, _ := store.LoadPhase(ctx); ok {
		t.Error("expected no phase before one is saved")
	}
	saved := phase.Config{CurrentStep: phase.StepSelection, RoundsTarget: 7, Prompt: "names"}
	if err := store.SavePhase(ctx, saved); err != nil {
		t.Fatalf("save phase: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	restored := newStore(t, WithSnapshotPath(path))
	if got, ok, _ := restored.LoadPhase(ctx); !ok || got != saved {
		t.Errorf("expected phase %+v restored, got %+v (found=%v)", saved, got, ok)
	}
	if restored.Count(ctx) != 2 {
		t.Errorf("expected 2 candidates, got %d", restored.Count(ctx))
	}
	loaded, found, _ := restored.LoadTournament(ctx, "s1")
	if !found || loaded.Comparisons() != 1 || loaded.BestHolderID != eligible[1].ID {
		t.Errorf("expected tournament restored, got %+v", loaded)
	}
	if _, found, _ := restored.LoadProgress(ctx, "s1"); !found {
		t.Error("expected progress restored")
	}
	votes, _ := restored.ListVotes(ctx, "", 0)
	if len(votes) != 1 || votes[0].Token != "tok" {
		t.Errorf("expected 1 vote with its token, got %+v", votes)
	}

	c, created, _ := restored.GetOrCreate(ctx, "gamma", candidate.OriginGenerated, "")
	if !created || c.ID != 3 {
		t.Errorf("expected id sequence to continue at 3, got %+v", c)
	}
	v, _ := restored.AppendVote(ctx, model.Vote{SessionID: "s2", Phase: 1, RejectedID: c.ID})
	if v.ID != 2 {
		t.Errorf("expected vote sequence to continue at 2, got %d", v.ID)
	}
}

func TestMemoryStore_SnapshotErrors(t *testing.T) {
	ctx := context.Background()

	if _, err := NewMemoryStore(ctx, WithSnapshotPath(writeSnapshot(t, "candidates: [oops"))); !errors.Is(err, ErrSnapshot) {
		t.Errorf("expected ErrSnapshot for malformed yaml, got %v", err)
	}
	if _, err := NewMemoryStore(ctx, WithSnapshotPath(writeSnapshot(t, "version: 9\n"))); !errors.Is(err, ErrSnapshot) {
		t.Errorf("expected ErrSnapshot for unknown version, got %v", err)
	}

	missing := filepath.Join(t.TempDir(), "absent.yaml")
	store := newStore(t, WithSnapshotPath(missing))
	if store.Count(ctx) != 0 {
		t.Error("expected empty store for missing snapshot")
	}
}

func TestMemoryStore_FlushOnlyWhenDirty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.yaml")
	store := newStore(t, WithSnapshotPath(path), WithSnapshotInterval(time.Hour))

	if err := store.Flush(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected no file for a clean store")
	}

	_, _, _ = store.GetOrCreate(ctx, "alpha", candidate.OriginGenerated, "")
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected snapshot file, got %v", err)
	}

	data, err := store.Export(ctx)
	if err != nil || len(data) == 0 {
		t.Errorf("expected export, got %v", err)
	}
}

func TestMemoryStore_PeriodicSnapshots(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.yaml")
	store := newStore(t, WithSnapshotPath(path), WithSnapshotInterval(20*time.Millisecond))

	_, _, _ = store.GetOrCreate(ctx, "alpha", candidate.OriginGenerated, "")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("expected periodic snapshot to be written")
}

func TestMemoryStore_CloseIsIdempotent(t *testing.T) {
	store, err := NewMemoryStore(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("unexpected error on second close: %v", err)
	}
}
