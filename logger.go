package greyhound

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with greyhound-specific context.
// This provides structured logging with consistent field names.
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
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithDataset adds a dataset field to the logger.
func (l *Logger) WithDataset(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("dataset", name),
	}
}

// LogInitialize logs the outcome of Session initialization.
func (l *Logger) LogInitialize(ctx context.Context, indexRoot, sourcePath string, err error) {
	if err != nil {
		l.WarnContext(ctx, "session initialization failed",
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "session initialized",
		"index", found(indexRoot),
		"source", found(sourcePath),
	)
}

func found(p string) string {
	if p == "" {
		return "not found"
	}
	return p
}

// LogResolve logs a lazy source or index resolution.
func (l *Logger) LogResolve(ctx context.Context, kind string, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "resolve failed",
			"kind", kind,
			"duration", duration,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "resolved",
		"kind", kind,
		"duration", duration,
	)
}

// LogQuery logs a query dispatch.
func (l *Logger) LogQuery(ctx context.Context, indexed bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "query failed",
			"indexed", indexed,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "query started",
		"indexed", indexed,
	)
}
