package progress

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JunJD/xiuer-spider/internal/crawler"
)

// Reporter builds lifecycle events from run state and hands them to a sink.
type Reporter struct {
	sink   Sink
	clock  crawler.Clock
	logger *zap.Logger
}

// NewReporter builds a Reporter. A nil sink disables delivery; events are
// still built so callers can return them.
func NewReporter(sink Sink, clock crawler.Clock, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{sink: sink, clock: clock, logger: logger}
}

// With returns a Reporter that also delivers to extra. A nil extra returns r.
func (r *Reporter) With(extra Sink) *Reporter {
	if extra == nil {
		return r
	}
	sink := extra
	if r.sink != nil {
		sink = Fanout{r.sink, extra}
	}
	return &Reporter{sink: sink, clock: r.clock, logger: r.logger}
}

// Enabled reports whether events are delivered anywhere.
func (r *Reporter) Enabled() bool { return r.sink != nil }

// Event snapshots run into a LifecycleEvent. Terminal runs carry their
// elapsed time.
func (r *Reporter) Event(run *crawler.CrawlRun, message string, data EventData, errs []string) LifecycleEvent {
	now := r.clock.Now()
	if data.Notes == nil {
		data.Notes = []crawler.NoteRecord{}
	}
	data.Query = run.Query
	data.SortType = run.SortMode
	evt := LifecycleEvent{
		Status:    run.Status,
		Message:   message,
		Timestamp: now,
		RunID:     run.RunID,
		TaskID:    run.TaskID,
		Progress:  run.Progress,
		Data:      data,
		Errors:    errs,
	}
	if run.Status.Terminal() {
		elapsed := run.Elapsed(now).Seconds()
		evt.ElapsedTime = &elapsed
	}
	return evt
}

// Emit delivers evt. It reports whether delivery succeeded; failures and
// panics inside the sink are logged and swallowed.
func (r *Reporter) Emit(ctx context.Context, evt LifecycleEvent) (delivered bool) {
	if r.sink == nil {
		return false
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logDeliveryFailure(evt, fmt.Errorf("%w: sink panic: %v", crawler.ErrDelivery, rec))
			delivered = false
		}
	}()
	if err := r.sink.Deliver(ctx, evt); err != nil {
		r.logDeliveryFailure(evt, fmt.Errorf("%w: %w", crawler.ErrDelivery, err))
		return false
	}
	return true
}

// Report builds and emits an event for the current run state.
func (r *Reporter) Report(
	ctx context.Context,
	run *crawler.CrawlRun,
	message string,
	data EventData,
	errs []string,
) LifecycleEvent {
	evt := r.Event(run, message, data, errs)
	r.Emit(ctx, evt)
	return evt
}

func (r *Reporter) logDeliveryFailure(evt LifecycleEvent, err error) {
	r.logger.Warn("lifecycle event delivery failed",
		zap.String("run_id", evt.RunID),
		zap.String("status", string(evt.Status)),
		zap.Int("progress", evt.Progress),
		zap.Error(err),
	)
}
