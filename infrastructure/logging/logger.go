// Package logging provides structured, leveled logging with trace-id
// propagation through context.Context.
package logging

import (
	"context"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus.Logger with a fixed component name.
type Logger struct {
	*logrus.Logger
	component string
}

// New builds a Logger. format is "json" or "text"; level is a logrus level
// name ("debug", "info", "warn", "error"). Unrecognized values fall back to
// json/info, matching the permissive defaulting used across the stack.
func New(component, level, format string) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if format == "text" {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	return &Logger{Logger: l, component: component}
}

// NewFromEnv reads LOG_LEVEL and LOG_FORMAT, defaulting to info/json.
func NewFromEnv(component string) *Logger {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	format := os.Getenv("LOG_FORMAT")
	if format == "" {
		format = "json"
	}
	return New(component, level, format)
}

type contextKey string

const (
	traceIDKey   contextKey = "trace_id"
	sessionIDKey contextKey = "session_id"
)

// NewTraceID returns a fresh, globally unique trace identifier.
func NewTraceID() string { return uuid.New().String() }

// WithTraceID attaches a trace id to ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID returns the trace id carried by ctx, or "" if absent.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// WithSessionID attaches a session id to ctx.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// SessionID returns the session id carried by ctx, or "" if absent.
func SessionID(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

// WithContext returns a logrus Entry pre-populated with the component name
// and any trace/session ids found on ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.WithField("component", l.component)
	if tid := TraceID(ctx); tid != "" {
		entry = entry.WithField("trace_id", tid)
	}
	if sid := SessionID(ctx); sid != "" {
		entry = entry.WithField("session_id", sid)
	}
	return entry
}

// WithError is a convenience wrapper matching the rest of the stack's style.
func (l *Logger) WithError(ctx context.Context, err error) *logrus.Entry {
	return l.WithContext(ctx).WithError(err)
}
