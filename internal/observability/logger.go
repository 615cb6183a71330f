package observability

import (
	"log/slog"
	"os"
)

// NewLogger builds the process-wide JSON logger. When tracing is
// enabled the handler is wrapped so records pick up trace/span IDs
// from the request context.
func NewLogger(env string, withTrace bool) *slog.Logger {
	level := slog.LevelInfo

	if env == "dev" {
		level = slog.LevelDebug
	}

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	if withTrace {
		handler = NewTraceHandler(handler)
	}

	return slog.New(handler)
}
