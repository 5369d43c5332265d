package sinks

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JunJD/xiuer-spider/internal/crawler"
	"github.com/JunJD/xiuer-spider/internal/progress"
)

func TestPrometheusSinkRecordsRunMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sink.Deliver(ctx, progress.LifecycleEvent{RunID: "run-1", Status: crawler.RunStatusStarted}))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsActive))

	require.NoError(t, sink.Deliver(ctx, progress.LifecycleEvent{RunID: "run-1", Status: crawler.RunStatusProgress}))
	require.NoError(t, sink.Deliver(ctx, terminalEvent(crawler.RunStatusCompleted)))

	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsActive))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.events.WithLabelValues("started")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.events.WithLabelValues("progress")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("completed")))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.notes))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.comments))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.commentFailure))
	require.Equal(t, 1, testutil.CollectAndCount(sink.runDuration, "xiuer_run_duration_seconds"))
}

func TestPrometheusSinkRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.ErrorContains(t, err, "register run collector")
}
