package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JunJD/xiuer-spider/internal/crawler"
	"github.com/JunJD/xiuer-spider/internal/progress"
)

// RunRecord is the service-side view of one submitted run.
type RunRecord struct {
	RunID       string                   `json:"run_id"`
	TaskID      string                   `json:"task_id,omitempty"`
	Query       string                   `json:"query"`
	SubmittedAt time.Time                `json:"submitted_at"`
	Statuses    []crawler.RunStatus      `json:"statuses"`
	Latest      *progress.LifecycleEvent `json:"latest,omitempty"`
}

// Queued reports whether no lifecycle event has arrived yet.
func (r RunRecord) Queued() bool { return r.Latest == nil }

// RunStore tracks submitted runs and the latest event of each. It doubles as
// a progress.Sink. The oldest runs are evicted beyond limit.
type RunStore struct {
	mu    sync.RWMutex
	runs  map[string]*RunRecord
	order []string
	limit int
}

// NewRunStore builds a RunStore. A non-positive limit keeps 256 runs.
func NewRunStore(limit int) *RunStore {
	if limit <= 0 {
		limit = 256
	}
	return &RunStore{runs: make(map[string]*RunRecord), limit: limit}
}

// Submit records a run before its first event.
func (s *RunStore) Submit(runID, taskID, query string, at time.Time) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[runID]; exists {
		return fmt.Errorf("run %s already submitted", runID)
	}
	s.insertLocked(&RunRecord{RunID: runID, TaskID: taskID, Query: query, SubmittedAt: at})
	return nil
}

// Discard forgets a run that never reached the worker.
func (s *RunStore) Discard(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; !ok {
		return
	}
	delete(s.runs, runID)
	for i, id := range s.order {
		if id == runID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Deliver stores evt as the run's latest event.
func (s *RunStore) Deliver(_ context.Context, evt progress.LifecycleEvent) error {
	if err := evt.Validate(); err != nil {
		return fmt.Errorf("store lifecycle event: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[evt.RunID]
	if !ok {
		rec = &RunRecord{RunID: evt.RunID, TaskID: evt.TaskID, Query: evt.Data.Query, SubmittedAt: evt.Timestamp}
		s.insertLocked(rec)
	}
	latest := evt
	rec.Latest = &latest
	rec.Statuses = append(rec.Statuses, evt.Status)
	return nil
}

// Get returns a snapshot of one run.
func (s *RunStore) Get(runID string) (RunRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.runs[runID]
	if !ok {
		return RunRecord{}, false
	}
	return snapshot(rec), true
}

// List returns snapshots newest first.
func (s *RunStore) List() []RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RunRecord, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, snapshot(s.runs[s.order[i]]))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out
}

func (s *RunStore) insertLocked(rec *RunRecord) {
	s.runs[rec.RunID] = rec
	s.order = append(s.order, rec.RunID)
	for len(s.order) > s.limit {
		delete(s.runs, s.order[0])
		s.order = s.order[1:]
	}
}

func snapshot(rec *RunRecord) RunRecord {
	out := *rec
	out.Statuses = append([]crawler.RunStatus(nil), rec.Statuses...)
	if rec.Latest != nil {
		latest := *rec.Latest
		out.Latest = &latest
	}
	return out
}
