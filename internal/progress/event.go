package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/JunJD/xiuer-spider/internal/crawler"
)

// LifecycleEvent is the status snapshot delivered to sinks, one per call.
type LifecycleEvent struct {
	// Status is the run state this event reports.
	Status crawler.RunStatus `json:"status"`
	// Message is a human readable summary of the transition.
	Message string `json:"message"`
	// Timestamp is when the event was built.
	Timestamp time.Time `json:"timestamp"`
	// RunID identifies the run; TaskID optionally correlates it with a caller.
	RunID  string `json:"run_id"`
	TaskID string `json:"task_id,omitempty"`
	// Progress is an integer percentage, non-decreasing within a run.
	Progress int `json:"progress"`
	// ElapsedTime is set on terminal events, in seconds.
	ElapsedTime *float64 `json:"elapsed_time,omitempty"`
	// Data carries the notes and comment results accumulated so far.
	Data EventData `json:"data"`
	// Errors lists isolated per-item failures.
	Errors []string `json:"errors,omitempty"`
}

// EventData is the result payload of a lifecycle event.
type EventData struct {
	Query         string                   `json:"query"`
	SortType      crawler.SortMode         `json:"sort_type"`
	TotalFound    int                      `json:"total_found"`
	ReturnedCount int                      `json:"returned_count"`
	Notes         []crawler.NoteRecord     `json:"notes"`
	Comments      map[string]CommentBundle `json:"comments,omitempty"`
	CommentStats  *CommentStats            `json:"comment_stats,omitempty"`
}

// CommentBundle is the comment outcome for one note.
type CommentBundle struct {
	Success  bool                    `json:"success"`
	Count    int                     `json:"count"`
	Comments []crawler.CommentRecord `json:"comments"`
	Error    string                  `json:"error,omitempty"`
}

// CommentStats aggregates comment retrieval across a run.
type CommentStats struct {
	TotalNotesWithComments int `json:"total_notes_with_comments"`
	TotalCommentsCount     int `json:"total_comments_count"`
	FailedComments         int `json:"failed_comments"`
}

// Validate ensures the event carries the minimum viable fields.
func (e LifecycleEvent) Validate() error {
	if e.RunID == "" {
		return errors.New("run_id is required")
	}
	if !e.Status.Valid() {
		return fmt.Errorf("unknown status %q", e.Status)
	}
	if e.Timestamp.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.Progress < 0 || e.Progress > 100 {
		return fmt.Errorf("progress %d out of range", e.Progress)
	}
	return nil
}

// Attributes exposes routing metadata for message publishers.
func (e LifecycleEvent) Attributes() map[string]string {
	attrs := map[string]string{
		"run_id": e.RunID,
		"status": string(e.Status),
	}
	if e.TaskID != "" {
		attrs["task_id"] = e.TaskID
	}
	return attrs
}

// Terminal reports whether the event closes its run.
func (e LifecycleEvent) Terminal() bool {
	return e.Status.Terminal()
}
