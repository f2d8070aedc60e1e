package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"loopdeck/internal/logging"
	"loopdeck/internal/queue"
	"loopdeck/internal/stage"
)

// processItem runs one claimed Track through p's stage. The stage runs under
// a per-Track context so Reject and Reingest can cancel it.
func (m *Manager) processItem(ctx context.Context, p *pool, logger *slog.Logger, item *queue.Item) {
	trackCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.trackInflight(item.SourceID, cancel)
	defer m.untrackInflight(item.SourceID)

	p.busy.Add(1)
	defer p.busy.Add(-1)
	m.drained(p)

	stageCtx := trackContext(trackCtx, p, item, uuid.NewString())
	m.setLastItem(item)
	m.executeStage(stageCtx, p, logging.WithContext(stageCtx, logger), item)
}

func (m *Manager) executeStage(ctx context.Context, p *pool, logger *slog.Logger, item *queue.Item) {
	stageStart := time.Now()
	logger.Info(
		"stage started",
		logging.EventType("stage_start"),
		logging.String("processing_status", string(p.stage.processingStatus)),
		logging.String("title", item.Title),
		logging.Int("attempt", item.Attempts+1),
	)
	if item.ProgressStage == "" {
		item.ProgressStage = progressLabel(p.stage.processingStatus)
	}

	handler := p.stage.handler
	if err := handler.Prepare(ctx, item); err != nil {
		m.stageStopped(ctx, p, logger, item, err)
		return
	}
	if err := m.executeWithHeartbeat(ctx, logger, handler, item); err != nil {
		m.stageStopped(ctx, p, logger, item, err)
		return
	}
	m.completeStage(ctx, p, logger, item, stageStart)
}

// stageStopped separates cancellation from genuine stage failures.
func (m *Manager) stageStopped(ctx context.Context, p *pool, logger *slog.Logger, item *queue.Item, err error) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		if m.isRunning() {
			logger.Info("stage cancelled; track left the stage",
				logging.EventType("stage_cancelled"),
			)
		} else {
			logger.Debug("stage interrupted by shutdown")
		}
		return
	}
	m.handleStageFailure(ctx, p, logger, item, err)
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, logger *slog.Logger, handler stage.Handler, item *queue.Item) error {
	stop := m.heartbeat.beat(ctx, logger, item.ID)
	defer stop()
	return handler.Execute(ctx, item)
}

// completeStage advances the Track and caches the stage result. The write is
// conditional on the Track still being in p's processing status.
func (m *Manager) completeStage(ctx context.Context, p *pool, logger *slog.Logger, item *queue.Item, stageStart time.Time) {
	ctx = context.WithoutCancel(ctx)
	if item.Status == p.stage.processingStatus || item.Status == "" {
		item.Status = p.stage.doneStatus
	}
	item.LastHeartbeat = nil
	item.NotBefore = nil
	item.Attempts = 0
	item.ErrorMessage = ""
	item.FailedStatus = ""
	if item.Status == queue.StatusPublished {
		item.SetProgressComplete("Published", "Loop published to the catalog")
	} else {
		item.SetProgressComplete(progressLabel(item.Status), fmt.Sprintf("%s complete", p.stage.name))
	}

	applied, err := m.store.CompleteStage(ctx, item, p.stage.processingStatus)
	if err != nil {
		wrapped := fmt.Errorf("persist stage result: %w", err)
		logger.Error("failed to persist stage result",
			logging.Error(wrapped),
			logging.EventType("stage_persist_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
			logging.String(logging.FieldImpact, "the stage runs again after the heartbeat timeout"),
		)
		m.setLastError(wrapped)
		return
	}
	if !applied {
		logger.Info("stage result discarded; track moved while processing",
			logging.EventType("stage_discarded"),
		)
		return
	}
	p.executed.Add(1)
	logger.Info(
		"stage completed",
		logging.EventType("stage_complete"),
		logging.String("next_status", string(item.Status)),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
	m.setLastItem(item)

	if item.NeedsReview {
		logger.Warn("track held for review",
			logging.String("review_reason", item.ReviewReason),
			logging.EventType("review_required"),
			logging.String(logging.FieldErrorHint, "loopdeck review approve|reject "+item.SourceID),
			logging.String(logging.FieldImpact, "the track does not advance until reviewed"),
		)
		m.notifyReview(ctx, item)
		return
	}
	p.next.wake()
}
