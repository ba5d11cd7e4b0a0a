package kvgo

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with kvgo-specific context.
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
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
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
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithTransaction adds a transaction id field to the logger.
func (l *Logger) WithTransaction(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("transaction_id", id),
	}
}

// WithStore adds a store name field to the logger.
func (l *Logger) WithStore(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("store", name),
	}
}

// LogCommit logs a commit attempt.
func (l *Logger) LogCommit(ctx context.Context, id string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "commit failed",
			"transaction_id", id,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "commit completed",
			"transaction_id", id,
		)
	}
}

// LogRetry logs one transaction retry after a commit conflict.
func (l *Logger) LogRetry(ctx context.Context, attempt int) {
	l.DebugContext(ctx, "retrying transaction after conflict",
		"attempt", attempt,
	)
}
