package services

import (
	"context"
	"iter"
)

type ctxKey uint8

const (
	sourceIDKey ctxKey = iota
	stageKey
	poolKey
	requestIDKey
	actorKey
)

// annotationNames is the order and field name Annotations reports keys in.
var annotationNames = []struct {
	key  ctxKey
	name string
}{
	{sourceIDKey, "source_id"},
	{stageKey, "stage"},
	{poolKey, "pool"},
	{requestIDKey, "correlation_id"},
}

func withValue(ctx context.Context, key ctxKey, v string) context.Context {
	if v == "" {
		return ctx
	}
	return context.WithValue(ctx, key, v)
}

func value(ctx context.Context, key ctxKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok && v != ""
}

// WithSourceID tags ctx with the upstream video id.
func WithSourceID(ctx context.Context, id string) context.Context {
	return withValue(ctx, sourceIDKey, id)
}

func SourceIDFromContext(ctx context.Context) (string, bool) { return value(ctx, sourceIDKey) }

// WithStage tags ctx with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	return withValue(ctx, stageKey, stage)
}

func StageFromContext(ctx context.Context) (string, bool) { return value(ctx, stageKey) }

// WithPool tags ctx with the worker pool name.
func WithPool(ctx context.Context, pool string) context.Context {
	return withValue(ctx, poolKey, pool)
}

func PoolFromContext(ctx context.Context) (string, bool) { return value(ctx, poolKey) }

// WithRequestID tags ctx with a correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) (string, bool) { return value(ctx, requestIDKey) }

// WithActor records who triggered an operator action: the API token subject
// or the CLI user.
func WithActor(ctx context.Context, actor string) context.Context {
	return withValue(ctx, actorKey, actor)
}

// ActorFromContext returns the operator identity, or "system" for actions
// the pipeline takes on its own.
func ActorFromContext(ctx context.Context) string {
	if v, ok := value(ctx, actorKey); ok {
		return v
	}
	return "system"
}

// Annotations yields the tracing values set on ctx as (field, value) pairs
// in a fixed order. The actor is not included.
func Annotations(ctx context.Context) iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		if ctx == nil {
			return
		}
		for _, a := range annotationNames {
			if v, ok := value(ctx, a.key); ok && !yield(a.name, v) {
				return
			}
		}
	}
}
