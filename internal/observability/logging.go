// Package observability wires zerolog logging and OpenTelemetry tracing the
// way manifold/internal/observability does: a package-level logger
// configured once at startup, context-scoped loggers for request-local
// fields, and best-effort span helpers that are no-ops without a configured
// SDK.
package observability

import (
	"context"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger initializes zerolog with sane defaults. If logPath is non-empty,
// logs are written to that file (append mode) instead of stdout; if the file
// cannot be opened it falls back to stdout and prints a warning to stderr.
func InitLogger(logPath string, level string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	var w io.Writer = os.Stdout
	if logPath != "" {
		if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			w = f
		} else {
			_, _ = fmt.Fprintf(os.Stderr, "failed to open log file %q: %v\n", logPath, err)
		}
	}
	log.Logger = log.Output(w).With().Timestamp().Logger()

	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	lvl := zerolog.InfoLevel
	if level != "" {
		if l, err := zerolog.ParseLevel(level); err == nil {
			lvl = l
		}
	}
	zerolog.SetGlobalLevel(lvl)

	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)
}

type ctxLoggerKey struct{}

// WithRequestFields returns a context carrying a logger enriched with the
// given key/value pairs, retrievable later via LoggerWithTrace.
func WithRequestFields(ctx context.Context, fields map[string]any) context.Context {
	l := log.Logger.With().Fields(fields).Logger()
	return context.WithValue(ctx, ctxLoggerKey{}, &l)
}

// LoggerWithTrace returns the context-scoped logger if one was attached via
// WithRequestFields or WithTraceID, otherwise the global logger. Every
// subsystem should fetch its logger through this function rather than
// referencing log.Logger directly, so request-scoped fields (trace id,
// conversation id, repo path) propagate automatically.
func LoggerWithTrace(ctx context.Context) zerolog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxLoggerKey{}).(*zerolog.Logger); ok && l != nil {
			return *l
		}
	}
	return log.Logger
}

// WithTraceID attaches a trace id field to the context logger, used when a
// caller has a correlation id but no OpenTelemetry span (e.g. CLI runs).
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return WithRequestFields(ctx, map[string]any{"trace_id": traceID})
}
