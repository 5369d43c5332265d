package progress

import (
	"context"
	"errors"
	"fmt"
)

// Sink receives lifecycle events. Implementations own their own retry and
// timeout policy and report failure through the returned error.
type Sink interface {
	Deliver(ctx context.Context, evt LifecycleEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, evt LifecycleEvent) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, evt LifecycleEvent) error {
	return f(ctx, evt)
}

// Fanout delivers each event to every sink in order. A failing or panicking
// sink does not stop delivery to the rest; all failures are joined.
type Fanout []Sink

// Deliver implements Sink.
func (f Fanout) Deliver(ctx context.Context, evt LifecycleEvent) error {
	var errs []error
	for i, s := range f {
		if s == nil {
			continue
		}
		if err := deliverOne(ctx, s, evt); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func deliverOne(ctx context.Context, s Sink, evt LifecycleEvent) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("sink panic: %v", rec)
		}
	}()
	return s.Deliver(ctx, evt)
}
