package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/outreachkit/prospector/internal/progress"
)

// PrometheusSink exports run progress via Prometheus. It owns all
// collectors for runs started/finished/running and per-step counters.
type PrometheusSink struct {
	runsStarted  prometheus.Counter
	runsFinished *prometheus.CounterVec
	runsRunning  prometheus.Gauge
	stepEvents   *prometheus.CounterVec
	itemsSeen    *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided
// registry; nil uses the default registerer.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prospector_runs_started_total",
			Help: "Total pipeline runs that have started.",
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prospector_runs_finished_total",
			Help: "Total pipeline runs finished partitioned by outcome.",
		}, []string{"outcome"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "prospector_runs_running",
			Help: "Current number of running pipeline runs.",
		}),
		stepEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prospector_step_events_total",
			Help: "Step milestone events partitioned by step and type.",
		}, []string{"step", "type"}),
		itemsSeen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prospector_step_items_total",
			Help: "Items reported processed per step.",
		}, []string{"step"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsFinished,
		s.runsRunning,
		s.stepEvents,
		s.itemsSeen,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch. Safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Type {
	case progress.TypeStarted:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
	case progress.TypeStepStart, progress.TypeStepComplete:
		s.stepEvents.WithLabelValues(evt.Step, string(evt.Type)).Inc()
	case progress.TypeProgress:
		s.stepEvents.WithLabelValues(evt.Step, string(evt.Type)).Inc()
		s.itemsSeen.WithLabelValues(evt.Step).Inc()
	}
	if evt.Terminal() {
		s.runsFinished.WithLabelValues(string(evt.Type)).Inc()
		if s.tracker.finish(evt.RunID) {
			s.runsRunning.Dec()
		}
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
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

func (t *runTracker) finish(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
