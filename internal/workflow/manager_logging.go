package workflow

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"loopdeck/internal/logging"
	"loopdeck/internal/queue"
	"loopdeck/internal/services"
	"loopdeck/internal/stage"
)

func (m *Manager) poolLogger(p *pool) *slog.Logger {
	base := m.logger
	if base == nil {
		base = logging.NewNop()
	}
	return base.With(logging.String(logging.FieldPool, p.stage.name))
}

// trackContext tags ctx with everything a log line about one stage run of one
// Track carries: source id, stage, pool and a per-run request id.
func trackContext(ctx context.Context, p *pool, item *queue.Item, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if item != nil {
		ctx = services.WithSourceID(ctx, item.SourceID)
	}
	if p != nil {
		ctx = services.WithPool(services.WithStage(ctx, string(p.stage.processingStatus)), p.stage.name)
	}
	if requestID != "" {
		ctx = services.WithRequestID(ctx, requestID)
	}
	return ctx
}

// progressLabel turns a queue status like "separating" or "pending_review"
// into the label shown in progress output ("Separating", "Pending Review").
func progressLabel(status queue.Status) string {
	if status == "" {
		return ""
	}
	words := strings.ReplaceAll(string(status), "_", " ")
	return cases.Title(language.English).String(words)
}

// logBlockedStages warns once per stage that would fail every Track it takes.
func (m *Manager) logBlockedStages(ctx context.Context, pools []*pool) {
	health := make(map[string]stage.Health, len(pools))
	for _, p := range pools {
		health[p.stage.name] = p.stage.handler.HealthCheck(ctx)
	}
	for _, blocked := range stage.Blocked(health) {
		logging.WarnWithContext(m.logger, "stage not ready", "stage_blocked",
			logging.String(logging.FieldPool, blocked.Name),
			logging.String("detail", blocked.Detail),
			logging.String(logging.FieldErrorHint, "check `loopdeck status` and the stage's tool configuration"),
			logging.String(logging.FieldImpact, "Tracks entering this stage fail until it is ready"),
		)
	}
}
