package sinks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JunJD/xiuer-spider/internal/crawler"
	"github.com/JunJD/xiuer-spider/internal/progress"
)

type fakeArchiver struct {
	notes    []crawler.NoteRecord
	comments []crawler.CommentRecord
	query    string
	err      error
}

func (a *fakeArchiver) ArchiveNotes(_ context.Context, _ string, query string, notes []crawler.NoteRecord) error {
	if a.err != nil {
		return a.err
	}
	a.query = query
	a.notes = append(a.notes, notes...)
	return nil
}

func (a *fakeArchiver) ArchiveComments(_ context.Context, _ string, comments []crawler.CommentRecord) error {
	a.comments = append(a.comments, comments...)
	return nil
}

func TestArchiveSinkStoresTerminalResults(t *testing.T) {
	t.Parallel()

	archiver := &fakeArchiver{}
	sink := NewArchiveSink(archiver)

	require.NoError(t, sink.Deliver(context.Background(), progress.LifecycleEvent{Status: crawler.RunStatusProgress}))
	require.Empty(t, archiver.notes)

	require.NoError(t, sink.Deliver(context.Background(), terminalEvent(crawler.RunStatusCompleted)))
	require.Len(t, archiver.notes, 2)
	require.Equal(t, "咖啡 拿铁", archiver.query)
	require.Len(t, archiver.comments, 1)
	require.Equal(t, "c1", archiver.comments[0].CommentID)
}

func TestArchiveSinkSkipsEmptyAndWrapsErrors(t *testing.T) {
	t.Parallel()

	archiver := &fakeArchiver{err: errors.New("db down")}
	sink := NewArchiveSink(archiver)

	empty := terminalEvent(crawler.RunStatusSuccess)
	empty.Data.Notes = nil
	require.NoError(t, sink.Deliver(context.Background(), empty))

	err := sink.Deliver(context.Background(), terminalEvent(crawler.RunStatusSuccess))
	require.ErrorContains(t, err, "archive notes: db down")
}
