package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JunJD/xiuer-spider/internal/crawler"
	"github.com/JunJD/xiuer-spider/internal/progress"
)

// PrometheusSink exports run metrics derived from lifecycle events.
type PrometheusSink struct {
	events         *prometheus.CounterVec
	runsCompleted  *prometheus.CounterVec
	runsActive     prometheus.Gauge
	runDuration    *prometheus.HistogramVec
	notes          prometheus.Counter
	comments       prometheus.Counter
	commentFailure prometheus.Counter

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xiuer_lifecycle_events_total",
			Help: "Lifecycle events emitted, partitioned by status.",
		}, []string{"status"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xiuer_runs_completed_total",
			Help: "Runs that reached a terminal status.",
		}, []string{"status"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "xiuer_runs_active",
			Help: "Runs started but not yet terminal.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "xiuer_run_duration_seconds",
			Help:    "Wall time per terminal run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"status"}),
		notes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xiuer_notes_collected_total",
			Help: "Notes returned by terminal runs.",
		}),
		comments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xiuer_comments_collected_total",
			Help: "Comments returned by terminal runs.",
		}),
		commentFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xiuer_comment_failures_total",
			Help: "Notes whose comment retrieval failed.",
		}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.events,
		s.runsCompleted,
		s.runsActive,
		s.runDuration,
		s.notes,
		s.comments,
		s.commentFailure,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register run collector: %w", err)
		}
	}
	return s, nil
}

// Deliver updates the collectors. It is safe for concurrent use.
func (s *PrometheusSink) Deliver(_ context.Context, evt progress.LifecycleEvent) error {
	s.events.WithLabelValues(string(evt.Status)).Inc()
	if evt.Status == crawler.RunStatusStarted {
		if s.tracker.start(evt.RunID) {
			s.runsActive.Inc()
		}
		return nil
	}
	if !evt.Terminal() {
		return nil
	}
	status := string(evt.Status)
	s.runsCompleted.WithLabelValues(status).Inc()
	if evt.ElapsedTime != nil {
		s.runDuration.WithLabelValues(status).Observe(*evt.ElapsedTime)
	}
	s.notes.Add(float64(len(evt.Data.Notes)))
	if stats := evt.Data.CommentStats; stats != nil {
		s.comments.Add(float64(stats.TotalCommentsCount))
		s.commentFailure.Add(float64(stats.FailedComments))
	}
	if s.tracker.complete(evt.RunID) {
		s.runsActive.Dec()
	}
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[string]struct{})}
}

func (t *runTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
