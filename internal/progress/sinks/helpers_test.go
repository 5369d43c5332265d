package sinks

import (
	"time"

	"github.com/JunJD/xiuer-spider/internal/crawler"
	"github.com/JunJD/xiuer-spider/internal/progress"
)

func strPtr(s string) *string { return &s }

func terminalEvent(status crawler.RunStatus) progress.LifecycleEvent {
	elapsed := 12.5
	return progress.LifecycleEvent{
		Status:      status,
		Message:     "crawl finished",
		Timestamp:   time.Date(2025, 3, 10, 15, 30, 5, 0, time.UTC),
		RunID:       "run-1",
		Progress:    100,
		ElapsedTime: &elapsed,
		Data: progress.EventData{
			Query:      "咖啡 拿铁",
			TotalFound: 2,
			Notes: []crawler.NoteRecord{
				{NoteID: "n1", Title: strPtr("first")},
				{NoteID: "n2", Title: strPtr("second")},
			},
			Comments: map[string]progress.CommentBundle{
				"n1": {Success: true, Count: 1, Comments: []crawler.CommentRecord{{CommentID: "c1", NoteID: "n1"}}},
				"n2": {Success: false, Error: "timeout"},
			},
			CommentStats: &progress.CommentStats{TotalNotesWithComments: 1, TotalCommentsCount: 1, FailedComments: 1},
		},
		Errors: []string{"comment: note n2: timeout"},
	}
}
