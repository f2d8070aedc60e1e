package logging

import (
	"log/slog"
	"slices"
	"time"
)

// Attr is re-exported so callers build log fields without importing slog.
type Attr = slog.Attr

func String(key, value string) Attr { return slog.String(key, value) }

func Int(key string, value int) Attr { return slog.Int(key, value) }

func Int64(key string, value int64) Attr { return slog.Int64(key, value) }

func Float64(key string, value float64) Attr { return slog.Float64(key, value) }

func Bool(key string, value bool) Attr { return slog.Bool(key, value) }

func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

// Error records err under "error"; a nil error is logged as "<nil>" rather
// than dropped.
func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// EventType tags a line for filtering (stage_complete, publish_blocked, ...).
func EventType(value string) Attr { return slog.String(FieldEventType, value) }

// Alert marks lines an operator must look at, such as compliance violations.
func Alert(value string) Attr { return slog.String(FieldAlert, value) }

// Args converts attrs to the variadic form slog.Logger methods take.
func Args(attrs ...Attr) []any {
	out := make([]any, len(attrs))
	for i, attr := range attrs {
		out[i] = attr
	}
	return out
}

// NewNop returns a logger that discards everything.
func NewNop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// NewComponentLogger scopes logger to one component. A nil logger yields a
// component-tagged no-op logger.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

// WarnWithContext logs a warning that always says what happened, what it
// costs and what to do about it. Missing event_type, error_hint or impact
// fields are filled with generic defaults.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	defaults := []Attr{
		EventType(eventType),
		String(FieldErrorHint, "check logs for details"),
		String(FieldImpact, "operation completed with warnings"),
	}
	for _, d := range defaults {
		if !slices.ContainsFunc(attrs, func(a Attr) bool { return a.Key == d.Key }) {
			attrs = append(attrs, d)
		}
	}
	logger.Warn(msg, Args(attrs...)...)
}
