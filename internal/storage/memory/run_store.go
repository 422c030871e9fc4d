package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/page-archiver/internal/archive"
)

// RunStore provides an in-memory archive.RunStore.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]archive.Run
	now  func() time.Time
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{
		runs: make(map[string]archive.Run),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// CreateRun stores a new run record.
func (s *RunStore) CreateRun(_ context.Context, run archive.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return errors.New("run already exists")
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

// UpdateRun replaces the stored record, stamping start and finish times on
// the first running and terminal transitions.
func (s *RunStore) UpdateRun(_ context.Context, run archive.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.runs[run.ID]
	if !ok {
		return fmt.Errorf("run %s: %w", run.ID, archive.ErrNotFound)
	}
	run.Started = existing.Started
	run.Finished = existing.Finished
	if run.Submitted.IsZero() {
		run.Submitted = existing.Submitted
	}
	now := s.now()
	if run.Status == archive.RunStatusRunning && run.Started == nil {
		run.Started = pointerTime(now)
	}
	if run.Status.IsTerminal() && run.Finished == nil {
		run.Finished = pointerTime(now)
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, runID string) (archive.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return archive.Run{}, fmt.Errorf("run %s: %w", runID, archive.ErrNotFound)
	}
	return cloneRun(run), nil
}

func cloneRun(run archive.Run) archive.Run {
	if run.Manifest != nil {
		run.Manifest = append(archive.Manifest(nil), run.Manifest...)
	}
	return run
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
