package stage

import (
	"context"

	"loopdeck/internal/queue"
)

// Handler describes the contract the workflow manager needs from each stage.
//
// Execute mutates the claimed item in place (artifacts, vocal score, review
// flags). The manager persists it afterwards. Rejections and deferrals are
// returned as services.RejectionError and services.DeferError.
type Handler interface {
	Prepare(context.Context, *queue.Item) error
	Execute(context.Context, *queue.Item) error
	HealthCheck(context.Context) Health
}
