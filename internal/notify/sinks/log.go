package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/coursekit/genprogress/internal/notify"
)

// LogSink emits structured logs for debugging progress streams. It is useful
// during development or audits where a durable store is unavailable.
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

// Consume logs each update in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []notify.Update) error {
	for _, u := range batch {
		s.logger.Info("progress update",
			zap.Stringer("run_id", u.RunUUID()),
			zap.String("kind", string(u.Kind)),
			zap.String("phase", u.Phase),
			zap.Float64("overall", u.Overall),
			zap.Time("ts", u.TS),
			zap.String("note", u.Note),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
