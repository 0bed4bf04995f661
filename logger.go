package vecrec

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with vecrec-specific context.
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
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, nil))
}

// WithIndex adds an index name field to the logger.
func (l *Logger) WithIndex(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("index", name),
	}
}

// LogBuild logs a full index build.
func (l *Logger) LogBuild(ctx context.Context, name string, count int, dur time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "index build failed",
			"index", name,
			"count", count,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "index built",
			"index", name,
			"count", count,
			"duration", dur,
		)
	}
}

// LogUpdate logs an incremental index update.
func (l *Logger) LogUpdate(ctx context.Context, name string, from, to int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "index update failed",
			"index", name,
			"from", from,
			"to", to,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "index updated",
			"index", name,
			"from", from,
			"to", to,
		)
	}
}

// LogRecommend logs a recommendation query. Per-index failures are
// reported individually.
func (l *Logger) LogRecommend(ctx context.Context, id uint32, k int, exactErr, approxErr error) {
	switch {
	case exactErr != nil || approxErr != nil:
		l.WarnContext(ctx, "recommend degraded",
			"id", id,
			"k", k,
			"exact_error", exactErr,
			"approximate_error", approxErr,
		)
	default:
		l.DebugContext(ctx, "recommend completed",
			"id", id,
			"k", k,
		)
	}
}

// LogIngest logs an ingestion batch.
func (l *Logger) LogIngest(ctx context.Context, added, skipped int) {
	if skipped > 0 {
		l.WarnContext(ctx, "ingest completed with skipped items",
			"added", added,
			"skipped", skipped,
		)
	} else {
		l.InfoContext(ctx, "ingest completed",
			"added", added,
		)
	}
}

// LogPersist logs a persisted artifact.
func (l *Logger) LogPersist(ctx context.Context, name string, bytes int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "persist failed",
			"name", name,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "persisted",
			"name", name,
			"bytes", bytes,
		)
	}
}

// LogRecovery logs a fallback rebuild of an index whose persisted form could
// not be used.
func (l *Logger) LogRecovery(ctx context.Context, name string, err error) {
	l.WarnContext(ctx, "persisted index unusable, rebuilding from feature store",
		"index", name,
		"error", err,
	)
}
