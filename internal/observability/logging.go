// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"
)

// ParseLevel maps LOG_LEVEL values onto slog levels. Unknown values mean info.
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewHandler builds the base handler: JSON for "json", text otherwise.
func NewHandler(w io.Writer, level, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// JobLogger logs the lifecycle of a background job run.
type JobLogger struct {
	job    string
	logger *slog.Logger
}

// NewJobLogger returns a JobLogger writing to logger.
func NewJobLogger(logger *slog.Logger, job string) *JobLogger {
	return &JobLogger{job: job, logger: logger}
}

// Run logs start and completion of fn, including its duration and error.
func (l *JobLogger) Run(ctx context.Context, fn func(ctx context.Context) (map[string]any, error)) error {
	start := time.Now()
	l.logger.InfoContext(ctx, "job started", slog.String("job", l.job))

	fields, err := fn(ctx)

	attrs := []any{
		slog.String("job", l.job),
		slog.Duration("elapsed", time.Since(start)),
	}
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		l.logger.ErrorContext(ctx, "job failed", attrs...)
		return err
	}
	l.logger.InfoContext(ctx, "job completed", attrs...)
	return nil
}
