package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JunJD/xiuer-spider/internal/crawler"
	"github.com/JunJD/xiuer-spider/internal/progress"
)

// LogSink writes each lifecycle event as a structured log line.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Deliver logs evt. Failed runs log at error level.
func (s *LogSink) Deliver(_ context.Context, evt progress.LifecycleEvent) error {
	fields := []zap.Field{
		zap.String("run_id", evt.RunID),
		zap.String("task_id", evt.TaskID),
		zap.String("status", string(evt.Status)),
		zap.Int("progress", evt.Progress),
		zap.String("query", evt.Data.Query),
		zap.Int("notes", len(evt.Data.Notes)),
		zap.Int("errors", len(evt.Errors)),
	}
	if evt.ElapsedTime != nil {
		fields = append(fields, zap.Float64("elapsed_seconds", *evt.ElapsedTime))
	}
	if evt.Data.CommentStats != nil {
		fields = append(fields,
			zap.Int("comments", evt.Data.CommentStats.TotalCommentsCount),
			zap.Int("failed_comments", evt.Data.CommentStats.FailedComments),
		)
	}
	switch evt.Status {
	case crawler.RunStatusFailed:
		s.logger.Error(evt.Message, fields...)
	case crawler.RunStatusProgress:
		s.logger.Debug(evt.Message, fields...)
	default:
		s.logger.Info(evt.Message, fields...)
	}
	return nil
}
