// Package dispatcher accepts run submissions and feeds the worker.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JunJD/xiuer-spider/internal/orchestrator"
	"github.com/JunJD/xiuer-spider/internal/queue/memory"
	"github.com/JunJD/xiuer-spider/internal/worker"
)

// ErrBusy is returned when the run queue has no room.
var ErrBusy = errors.New("run queue is full")

// Dispatcher owns the run queue and a single worker so that only one run
// talks to the upstream at a time.
type Dispatcher struct {
	queue  *memory.Queue[orchestrator.Request]
	worker *worker.Worker
}

// New creates a Dispatcher.
func New(queue *memory.Queue[orchestrator.Request], w *worker.Worker) *Dispatcher {
	return &Dispatcher{queue: queue, worker: w}
}

// Run starts the worker and blocks until the context finishes. The queue
// is closed on return.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.worker.Run(ctx)
	}()
	<-ctx.Done()
	d.queue.Close()
	wg.Wait()
}

// Submit queues req without blocking.
func (d *Dispatcher) Submit(req orchestrator.Request) error {
	if err := d.queue.TryEnqueue(req); err != nil {
		if errors.Is(err, memory.ErrFull) {
			return ErrBusy
		}
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Pending returns the number of queued runs.
func (d *Dispatcher) Pending() int { return d.queue.Len() }
