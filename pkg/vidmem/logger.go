package vidmem

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with consistent field names for pipeline events.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// LogEncode logs the outcome of an encode.
func (l *Logger) LogEncode(ctx context.Context, path string, chunks int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "encode failed", "path", path, "chunks", chunks, "error", err)
		return
	}
	l.InfoContext(ctx, "encode completed", "path", path, "chunks", chunks)
}

// LogDecode logs the outcome of a decode.
func (l *Logger) LogDecode(ctx context.Context, path string, res *DecodeResult, err error) {
	switch {
	case err != nil:
		l.ErrorContext(ctx, "decode failed", "path", path, "error", err)
	case res.LostFrames > 0:
		l.WarnContext(ctx, "decode completed with lost frames",
			"path", path,
			"frames", res.FramesExamined,
			"chunks", res.TotalChunks,
			"lost", res.LostFrames,
			"malformed", res.MalformedFrames,
		)
	default:
		l.InfoContext(ctx, "decode completed",
			"path", path,
			"frames", res.FramesExamined,
			"chunks", res.TotalChunks,
		)
	}
}
