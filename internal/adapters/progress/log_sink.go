package progress

import (
	"context"
	"log/slog"

	"github.com/trebuchet-org/treb-runner/internal/usecase"
)

// LogSink forwards progress to the structured logger. The API server uses it
// since there is no terminal to draw on.
type LogSink struct {
	log *slog.Logger
}

// NewLogSink creates a progress sink that logs at debug level
func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log.With("component", "progress")}
}

func (s *LogSink) OnProgress(ctx context.Context, event usecase.ProgressEvent) {
	s.log.DebugContext(ctx, event.Message, "stage", event.Stage)
}

func (s *LogSink) Info(message string) {
	s.log.Info(message)
}

func (s *LogSink) Error(message string) {
	s.log.Error(message)
}

var _ usecase.ProgressSink = (*LogSink)(nil)
