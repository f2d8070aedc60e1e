package logging

import (
	"context"
	"log/slog"

	"loopdeck/internal/services"
)

// Structured log keys. The tracing keys match services.Annotations.
const (
	FieldComponent     = "component"
	FieldSourceID      = "source_id"
	FieldStage         = "stage"
	FieldPool          = "pool"
	FieldWorker        = "worker"
	FieldCorrelationID = "correlation_id"

	// FieldEventType classifies a line for dashboards, e.g. stage_completed.
	FieldEventType = "event_type"
	// FieldErrorHint is the operator's next step.
	FieldErrorHint = "error_hint"
	// FieldAlert lifts a record into the console prefix.
	FieldAlert = "alert"
	// FieldImpact is what the operator loses if they ignore the warning.
	FieldImpact = "impact"
)

// ContextFields turns the tracing values on ctx into attributes.
func ContextFields(ctx context.Context) []slog.Attr {
	var fields []slog.Attr
	for name, v := range services.Annotations(ctx) {
		fields = append(fields, slog.String(name, v))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
