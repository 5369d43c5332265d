// Package worker drains the run queue, executing one crawl at a time.
package worker

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JunJD/xiuer-spider/internal/orchestrator"
	"github.com/JunJD/xiuer-spider/internal/queue/memory"
)

// Queue yields submitted runs.
type Queue interface {
	Dequeue(ctx context.Context) (orchestrator.Request, error)
}

// Runner executes one run.
type Runner interface {
	Run(ctx context.Context, req orchestrator.Request) orchestrator.Result
}

// Worker consumes queue items and runs them sequentially.
type Worker struct {
	queue  Queue
	runner Runner
	logger *zap.Logger
	done   func(orchestrator.Result)
}

// Option customizes a Worker.
type Option func(*Worker)

// OnResult registers a callback invoked after each run.
func OnResult(fn func(orchestrator.Result)) Option {
	return func(w *Worker) { w.done = fn }
}

// New constructs a Worker.
func New(queue Queue, runner Runner, logger *zap.Logger, opts ...Option) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Worker{queue: queue, runner: runner, logger: logger}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks, consuming queue items until the context finishes or the queue
// is closed and drained.
func (w *Worker) Run(ctx context.Context) {
	for {
		req, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, memory.ErrClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued run", zap.String("run_id", req.RunID))
		w.process(ctx, req)
	}
}

func (w *Worker) process(ctx context.Context, req orchestrator.Request) {
	ctx, span := otel.Tracer("xiuer-spider/worker").Start(ctx, "crawl.run")
	span.SetAttributes(
		attribute.String("run.id", req.RunID),
		attribute.String("run.query", req.Query),
		attribute.Int("run.count", req.Count),
	)
	res := w.runner.Run(ctx, req)
	span.SetAttributes(attribute.String("run.status", string(res.Status)))
	if !res.Success {
		span.SetStatus(codes.Error, "run failed")
	}
	span.End()

	orchestrator.LogSummary(w.logger, res)
	if w.done != nil {
		w.done(res)
	}
}
