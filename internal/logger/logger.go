// Package logger provides structured logging using Go 1.21's log/slog.
// It sets up a JSON handler with service-level context, optional rotating
// file output, and trace ID propagation through context.Context.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

type options struct {
	out  io.Writer
	file *lumberjack.Logger
}

// Option configures Init.
type Option func(*options)

// WithFile also writes to path, rotated at maxSizeMB and keeping maxBackups
// old files.
func WithFile(path string, maxSizeMB, maxBackups int) Option {
	return func(o *options) {
		if path == "" {
			return
		}
		o.file = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			Compress:   true,
		}
	}
}

// WithOutput replaces stdout (tests).
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

// Init creates and returns a structured logger for the given service and
// installs it as the slog default. The returned closer flushes the log file,
// if any.
func Init(service string, level slog.Level, opts ...Option) (*slog.Logger, io.Closer) {
	o := options{out: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	var closer io.Closer = nopCloser{}
	out := o.out
	if o.file != nil {
		out = io.MultiWriter(o.out, o.file)
		closer = o.file
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
	)

	// Set as default so log/slog.Info() etc. also use structured output
	slog.SetDefault(logger)

	return logger, closer
}

// ParseLevel maps "debug", "info", "warn" and "error" to a slog.Level,
// defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// WithTraceID stores a trace ID in the context for downstream propagation.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID extracts the trace ID from context. Returns "" if not set.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// GenerateTraceID creates a trace ID from a market ID and timestamp.
// Format: "{marketId}-{unixNano}".
func GenerateTraceID(marketID string, ts time.Time) string {
	return fmt.Sprintf("%s-%d", marketID, ts.UnixNano())
}

// LogWithTrace returns slog attributes including the trace ID from context.
// Usage: slog.Info("msg", logger.LogWithTrace(ctx)...)
func LogWithTrace(ctx context.Context) []any {
	tid := TraceID(ctx)
	if tid == "" {
		return nil
	}
	return []any{slog.String("trace_id", tid)}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
