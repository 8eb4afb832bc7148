// Package logger configures structured logging for the engine.
//
// All components log through log/slog. Third-party/dependency log lines are
// filtered out below debug level so operators see engine activity by
// default and the full firehose only when they ask for it.
package logger

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"strings"
)

const enginePackagePrefix = "github.com/arbiterloop/engine"

// ParseLevel converts a string log level to slog.Level.
// Unrecognized input falls back to warn, matching the rest of the pack's
// fail-open logging posture.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// filteringHandler wraps a slog handler and suppresses log lines whose
// caller is outside the engine module unless the configured level is debug.
type filteringHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *filteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level < h.minLevel {
		return false
	}
	return true
}

func (h *filteringHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.minLevel > slog.LevelDebug && !fromEnginePackage(2) {
		return nil
	}
	return h.handler.Handle(ctx, r)
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

func fromEnginePackage(skip int) bool {
	pc := make([]uintptr, 16)
	n := runtime.Callers(skip+2, pc)
	frames := runtime.CallersFrames(pc[:n])
	for {
		frame, more := frames.Next()
		if strings.Contains(frame.Function, enginePackagePrefix) {
			return true
		}
		if !more {
			break
		}
	}
	return false
}

// New builds a slog.Logger writing JSON records to w at the given level.
func New(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	base := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	return slog.New(&filteringHandler{handler: base, minLevel: lvl})
}

// WithEntity returns a logger annotated with an entity kind/id pair, used to
// scope every log line emitted while handling a session, execution, or tool
// call so operators can grep by id.
func WithEntity(l *slog.Logger, kind, id string) *slog.Logger {
	return l.With(slog.String(kind, id))
}
