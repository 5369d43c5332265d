package orchestrator

import (
	"go.uber.org/zap"
)

const summaryNotes = 3

// LogSummary writes a compact report of res: counts plus the first few note
// titles and authors.
func LogSummary(logger *zap.Logger, res Result) {
	if logger == nil {
		return
	}
	fields := []zap.Field{
		zap.String("run_id", res.RunID),
		zap.String("status", string(res.Status)),
		zap.String("query", res.Event.Data.Query),
		zap.Int("total_found", res.Event.Data.TotalFound),
		zap.Int("returned", len(res.Notes)),
		zap.Int("errors", len(res.Errors)),
	}
	if res.Event.ElapsedTime != nil {
		fields = append(fields, zap.Float64("elapsed_seconds", *res.Event.ElapsedTime))
	}
	if stats := res.Event.Data.CommentStats; stats != nil {
		fields = append(fields,
			zap.Int("comments", stats.TotalCommentsCount),
			zap.Int("comment_failures", stats.FailedComments),
		)
	}
	if !res.Success {
		logger.Error("crawl failed", append(fields, zap.Error(res.Err))...)
		return
	}
	logger.Info("crawl summary", fields...)

	for i, note := range res.Notes {
		if i == summaryNotes {
			break
		}
		logger.Info("note",
			zap.Int("rank", i+1),
			zap.String("note_id", note.NoteID),
			zap.String("title", deref(note.Title)),
			zap.String("author", deref(note.Author.Nickname)),
			zap.Int("liked", note.Interactions.Liked),
		)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
