package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JunJD/xiuer-spider/internal/crawler"
	"github.com/JunJD/xiuer-spider/internal/progress"
)

func event(runID string, status crawler.RunStatus, pct int, at time.Time) progress.LifecycleEvent {
	return progress.LifecycleEvent{
		RunID:     runID,
		Status:    status,
		Progress:  pct,
		Timestamp: at,
		Data:      progress.EventData{Query: "咖啡", Notes: []crawler.NoteRecord{}},
	}
}

func TestRunStoreTracksLatestEvent(t *testing.T) {
	t.Parallel()

	store := NewRunStore(0)
	now := time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC)
	require.NoError(t, store.Submit("run-1", "task-1", "咖啡", now))

	rec, ok := store.Get("run-1")
	require.True(t, ok)
	require.True(t, rec.Queued())
	require.Equal(t, "task-1", rec.TaskID)

	ctx := context.Background()
	require.NoError(t, store.Deliver(ctx, event("run-1", crawler.RunStatusStarted, 0, now)))
	require.NoError(t, store.Deliver(ctx, event("run-1", crawler.RunStatusProgress, 50, now.Add(time.Second))))
	require.NoError(t, store.Deliver(ctx, event("run-1", crawler.RunStatusSuccess, 100, now.Add(2*time.Second))))

	rec, ok = store.Get("run-1")
	require.True(t, ok)
	require.False(t, rec.Queued())
	require.Equal(t, crawler.RunStatusSuccess, rec.Latest.Status)
	require.Equal(t, 100, rec.Latest.Progress)
	require.Equal(t, []crawler.RunStatus{
		crawler.RunStatusStarted, crawler.RunStatusProgress, crawler.RunStatusSuccess,
	}, rec.Statuses)
}

func TestRunStoreSnapshotsAreIsolated(t *testing.T) {
	t.Parallel()

	store := NewRunStore(0)
	now := time.Now()
	require.NoError(t, store.Deliver(context.Background(), event("run-1", crawler.RunStatusStarted, 0, now)))

	rec, _ := store.Get("run-1")
	rec.Statuses[0] = crawler.RunStatusFailed
	rec.Latest.Progress = 99

	again, _ := store.Get("run-1")
	require.Equal(t, crawler.RunStatusStarted, again.Statuses[0])
	require.Equal(t, 0, again.Latest.Progress)
}

func TestRunStoreRejectsInvalid(t *testing.T) {
	t.Parallel()

	store := NewRunStore(0)
	require.Error(t, store.Submit("", "", "q", time.Now()))
	require.NoError(t, store.Submit("run-1", "", "q", time.Now()))
	require.Error(t, store.Submit("run-1", "", "q", time.Now()))
	require.Error(t, store.Deliver(context.Background(), progress.LifecycleEvent{RunID: "run-1"}))
	_, ok := store.Get("missing")
	require.False(t, ok)
}

func TestRunStoreEvictsOldest(t *testing.T) {
	t.Parallel()

	store := NewRunStore(2)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Submit(id, "", "q", base.Add(time.Duration(i)*time.Minute)))
	}
	_, ok := store.Get("a")
	require.False(t, ok)

	list := store.List()
	require.Len(t, list, 2)
	require.Equal(t, "c", list[0].RunID)
	require.Equal(t, "b", list[1].RunID)
}

func TestRunStoreDiscard(t *testing.T) {
	t.Parallel()

	store := NewRunStore(0)
	require.NoError(t, store.Submit("run-1", "", "q", time.Now()))
	require.NoError(t, store.Submit("run-2", "", "q", time.Now()))
	store.Discard("run-1")
	store.Discard("missing")

	_, ok := store.Get("run-1")
	require.False(t, ok)
	require.Len(t, store.List(), 1)
	require.NoError(t, store.Submit("run-1", "", "q", time.Now()))
}
