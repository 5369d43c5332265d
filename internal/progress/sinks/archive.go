package sinks

import (
	"context"
	"fmt"

	"github.com/JunJD/xiuer-spider/internal/crawler"
	"github.com/JunJD/xiuer-spider/internal/progress"
)

// NoteArchiver stores the notes and comments of a finished run.
type NoteArchiver interface {
	ArchiveNotes(ctx context.Context, runID, query string, notes []crawler.NoteRecord) error
	ArchiveComments(ctx context.Context, runID string, comments []crawler.CommentRecord) error
}

// ArchiveSink hands the results of every successful or completed run to an
// archiver.
type ArchiveSink struct {
	archiver NoteArchiver
}

// NewArchiveSink builds an ArchiveSink.
func NewArchiveSink(archiver NoteArchiver) *ArchiveSink {
	return &ArchiveSink{archiver: archiver}
}

// Deliver archives terminal, non-failed events that carry notes.
func (s *ArchiveSink) Deliver(ctx context.Context, evt progress.LifecycleEvent) error {
	if evt.Status != crawler.RunStatusSuccess && evt.Status != crawler.RunStatusCompleted {
		return nil
	}
	if len(evt.Data.Notes) == 0 {
		return nil
	}
	if err := s.archiver.ArchiveNotes(ctx, evt.RunID, evt.Data.Query, evt.Data.Notes); err != nil {
		return fmt.Errorf("archive notes: %w", err)
	}
	var comments []crawler.CommentRecord
	for _, note := range evt.Data.Notes {
		if bundle, ok := evt.Data.Comments[note.NoteID]; ok {
			comments = append(comments, bundle.Comments...)
		}
	}
	if len(comments) == 0 {
		return nil
	}
	if err := s.archiver.ArchiveComments(ctx, evt.RunID, comments); err != nil {
		return fmt.Errorf("archive comments: %w", err)
	}
	return nil
}
