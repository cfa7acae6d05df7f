// Package sinks holds progress.Sink implementations.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/outreachkit/prospector/internal/progress"
)

// LogSink emits structured logs for progress streams. Useful during
// development or when no durable event store is wired.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.logger.Info("progress event",
			zap.String("run_id", evt.RunID),
			zap.String("type", string(evt.Type)),
			zap.String("step", evt.Step),
			zap.Float64("progress", evt.Progress),
			zap.Int("processed", evt.Processed),
			zap.Int("total", evt.Total),
			zap.String("current_item", evt.CurrentItem),
			zap.String("message", evt.Message),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
