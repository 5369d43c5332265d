package crawler

import "time"

// CrawlRun is the mutable state of one orchestrated run. It is owned by a
// single orchestrator invocation and never shared.
type CrawlRun struct {
	RunID          string
	TaskID         string
	Query          string
	RequestedCount int
	SortMode       SortMode
	StartTime      time.Time
	Status         RunStatus
	Progress       int

	elapsed    time.Duration
	elapsedSet bool
}

// NewCrawlRun builds a run in the started state.
func NewCrawlRun(runID, taskID, query string, count int, sort SortMode, start time.Time) *CrawlRun {
	return &CrawlRun{
		RunID:          runID,
		TaskID:         taskID,
		Query:          query,
		RequestedCount: count,
		SortMode:       sort,
		StartTime:      start,
		Status:         RunStatusStarted,
	}
}

// Advance moves progress forward. Values are clamped to [0,100] and never
// decrease.
func (r *CrawlRun) Advance(progress int) int {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	if progress > r.Progress {
		r.Progress = progress
	}
	return r.Progress
}

// Finish records the terminal status and freezes the elapsed time.
func (r *CrawlRun) Finish(status RunStatus, now time.Time) {
	r.Status = status
	if !r.elapsedSet {
		r.elapsed = now.Sub(r.StartTime)
		if r.elapsed < 0 {
			r.elapsed = 0
		}
		r.elapsedSet = true
	}
}

// Elapsed returns the frozen elapsed time once finished, otherwise the time
// since start measured against now.
func (r *CrawlRun) Elapsed(now time.Time) time.Duration {
	if r.elapsedSet {
		return r.elapsed
	}
	d := now.Sub(r.StartTime)
	if d < 0 {
		return 0
	}
	return d
}
