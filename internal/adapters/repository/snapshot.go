package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/okian/duel/internal/domain/candidate"
	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/internal/domain/phase"
	"github.com/okian/duel/internal/domain/progress"
	"github.com/okian/duel/internal/domain/tournament"
	"github.com/okian/duel/pkg/logger"
	"github.com/okian/duel/pkg/metrics"
)

const snapshotVersion = 1

// document is the on-disk layout of a snapshot.
type document struct {
	Version     int                          `yaml:"version"`
	SavedAt     time.Time                    `yaml:"saved_at"`
	NextID      int64                        `yaml:"next_id"`
	NextVoteID  int64                        `yaml:"next_vote_id"`
	Candidates  []candidate.Candidate        `yaml:"candidates"`
	Votes       []model.Vote                 `yaml:"votes"`
	Progress    []progress.GenerationSession `yaml:"progress"`
	Tournaments []tournament.Session         `yaml:"tournaments"`
	Pending     []Pending                    `yaml:"pending"`
	Phase       *phase.Config                `yaml:"phase,omitempty"`
}

// Flush writes the store to its snapshot file if anything changed since the
// last write.
func (s *MemoryStore) Flush(ctx context.Context) error {
	if s.snapshotPath == "" {
		return nil
	}
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	doc := s.documentLocked()
	s.dirty = false
	s.mu.Unlock()

	if err := s.write(ctx, doc); err != nil {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		return err
	}
	return nil
}

// Export returns the encoded snapshot of the current state.
func (s *MemoryStore) Export(ctx context.Context) ([]byte, error) {
	s.mu.RLock()
	doc := s.documentLocked()
	s.mu.RUnlock()
	return yaml.Marshal(doc)
}

func (s *MemoryStore) documentLocked() document {
	doc := document{
		Version:     snapshotVersion,
		SavedAt:     s.now(),
		NextID:      s.nextID,
		NextVoteID:  s.nextVoteID,
		Candidates:  make([]candidate.Candidate, 0, len(s.candidates)),
		Votes:       append([]model.Vote(nil), s.votes...),
		Progress:    make([]progress.GenerationSession, 0, len(s.progress)),
		Tournaments: make([]tournament.Session, 0, len(s.tournaments)),
		Pending:     make([]Pending, 0, len(s.pending)),
		Phase:       s.phase,
	}
	for _, c := range s.candidates {
		doc.Candidates = append(doc.Candidates, c)
	}
	candidate.SortByCreation(doc.Candidates)
	for _, p := range s.progress {
		doc.Progress = append(doc.Progress, p)
	}
	for _, t := range s.tournaments {
		doc.Tournaments = append(doc.Tournaments, cloneSession(t))
	}
	for _, p := range s.pending {
		doc.Pending = append(doc.Pending, p)
	}
	return doc
}

// write replaces the snapshot file atomically.
func (s *MemoryStore) write(ctx context.Context, doc document) error {
	start := time.Now()

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrSnapshot, err)
	}
	dir := filepath.Dir(s.snapshotPath)
	tmp, err := os.CreateTemp(dir, ".snapshot-*.yaml")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSnapshot, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write: %w", ErrSnapshot, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close: %w", ErrSnapshot, err)
	}
	if err := os.Rename(tmp.Name(), s.snapshotPath); err != nil {
		return fmt.Errorf("%w: rename: %w", ErrSnapshot, err)
	}

	ms := float64(time.Since(start).Microseconds()) / 1000
	metrics.RecordRepositorySnapshot(ms)
	s.log().Debug(ctx, "snapshot written",
		logger.String("path", s.snapshotPath),
		logger.Int("candidates", len(doc.Candidates)),
		logger.Int("votes", len(doc.Votes)),
		logger.Float64("duration_ms", ms))
	return nil
}

// restore loads the snapshot file. A missing file leaves the store empty.
func (s *MemoryStore) restore(ctx context.Context) error {
	data, err := os.ReadFile(s.snapshotPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", ErrSnapshot, s.snapshotPath, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: decode %s: %w", ErrSnapshot, s.snapshotPath, err)
	}
	if doc.Version != snapshotVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrSnapshot, doc.Version)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID = doc.NextID
	s.nextVoteID = doc.NextVoteID
	for _, c := range doc.Candidates {
		s.candidates[c.ID] = c
		// The earliest candidate owns a text; later collisions wait for MergeDuplicates.
		key := candidate.Normalize(c.Text)
		if id, ok := s.byText[key]; !ok || c.ID < id {
			s.byText[key] = c.ID
		}
		s.nextID = max(s.nextID, c.ID)
	}
	s.votes = doc.Votes
	for _, v := range doc.Votes {
		s.nextVoteID = max(s.nextVoteID, v.ID)
	}
	for _, p := range doc.Progress {
		s.progress[p.ID] = p
	}
	for _, t := range doc.Tournaments {
		s.tournaments[t.ID] = t
	}
	for _, p := range doc.Pending {
		s.pending[p.SessionID] = p
	}
	s.phase = doc.Phase

	s.log().Info(ctx, "snapshot restored",
		logger.String("path", s.snapshotPath),
		logger.Int("candidates", len(doc.Candidates)),
		logger.Int("votes", len(doc.Votes)),
		logger.Int("sessions", len(doc.Progress)))
	return nil
}
