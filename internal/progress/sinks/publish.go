package sinks

import (
	"context"
	"fmt"

	"github.com/JunJD/xiuer-spider/internal/progress"
)

// Publisher sends a payload to a message topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// PublishSink forwards lifecycle events to a topic.
type PublishSink struct {
	publisher    Publisher
	topic        string
	terminalOnly bool
}

// NewPublishSink builds a PublishSink. With terminalOnly set, intermediate
// progress events are skipped.
func NewPublishSink(publisher Publisher, topic string, terminalOnly bool) *PublishSink {
	return &PublishSink{publisher: publisher, topic: topic, terminalOnly: terminalOnly}
}

// Deliver publishes evt.
func (s *PublishSink) Deliver(ctx context.Context, evt progress.LifecycleEvent) error {
	if s.terminalOnly && !evt.Terminal() {
		return nil
	}
	if _, err := s.publisher.Publish(ctx, s.topic, evt); err != nil {
		return fmt.Errorf("publish lifecycle event: %w", err)
	}
	return nil
}
