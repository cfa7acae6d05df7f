package sinks

import (
	"context"
	"sync"

	"github.com/outreachkit/prospector/internal/progress"
)

const defaultMemoryCap = 512

// MemorySink retains the most recent events per run for API polling.
// Each run keeps at most capPerRun events; older entries are discarded
// front-first.
type MemorySink struct {
	mu        sync.RWMutex
	byRun     map[string][]progress.Event
	capPerRun int
}

// NewMemorySink builds a sink keeping up to capPerRun events per run;
// zero or negative applies the default of 512.
func NewMemorySink(capPerRun int) *MemorySink {
	if capPerRun <= 0 {
		capPerRun = defaultMemoryCap
	}
	return &MemorySink{
		byRun:     make(map[string][]progress.Event),
		capPerRun: capPerRun,
	}
}

// Consume appends the batch to each run's ring.
func (s *MemorySink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		events := append(s.byRun[evt.RunID], evt)
		if len(events) > s.capPerRun {
			events = events[len(events)-s.capPerRun:]
		}
		s.byRun[evt.RunID] = events
	}
	return nil
}

// Events returns a copy of the retained events for one run, oldest first.
func (s *MemorySink) Events(runID string) []progress.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]progress.Event(nil), s.byRun[runID]...)
}

// Close implements the Sink interface; it performs no action.
func (s *MemorySink) Close(context.Context) error {
	return nil
}
