package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"loopdeck/internal/logging"
	"loopdeck/internal/queue"
	"loopdeck/internal/services"
)

// handleStageFailure routes a stage error through the failure taxonomy:
// rejection, deferral, compliance hold, retry with backoff or failure.
func (m *Manager) handleStageFailure(ctx context.Context, p *pool, logger *slog.Logger, item *queue.Item, stageErr error) {
	ctx = context.WithoutCancel(ctx)
	m.setLastError(stageErr)

	switch services.Classify(stageErr) {
	case services.OutcomeRejected:
		var rejection *services.RejectionError
		errors.As(stageErr, &rejection)
		m.rejectFromStage(ctx, logger, item, rejection)

	case services.OutcomeDeferred:
		var deferral *services.DeferError
		errors.As(stageErr, &deferral)
		until := m.now().Add(deferral.Delay)
		m.returnToStart(p, item)
		item.NotBefore = &until
		item.SetProgress(progressLabel(p.stage.startStatus), deferral.Reason, 0)
		if m.persistFailure(ctx, p, logger, item) {
			logger.Info("stage deferred",
				logging.String("reason", deferral.Reason),
				logging.Duration("delay", deferral.Delay),
				logging.EventType("stage_deferred"),
			)
		}

	case services.OutcomeCompliance:
		m.returnToStart(p, item)
		item.NeedsReview = true
		item.ReviewReason = services.FlagComplianceViolation
		item.ErrorMessage = strings.TrimSpace(stageErr.Error())
		item.SetProgress("Compliance hold", "publish blocked: rights are not cleared", 0)
		if m.persistFailure(ctx, p, logger, item) {
			logger.Error("publish blocked; track held for review",
				logging.Error(stageErr),
				logging.Alert("compliance_violation"),
				logging.EventType("publish_blocked"),
				logging.String(logging.FieldErrorHint, "check the rights record before approving"),
			)
		}

	case services.OutcomeRetry:
		item.Attempts++
		if item.Attempts >= m.maxAttempts() {
			m.failTrack(ctx, p, logger, item, stageErr)
			return
		}
		delay := m.cfg.Workflow.RetryBackoff(item.Attempts)
		until := m.now().Add(delay)
		m.returnToStart(p, item)
		item.NotBefore = &until
		item.ErrorMessage = strings.TrimSpace(stageErr.Error())
		item.SetProgress(progressLabel(p.stage.startStatus), "retry scheduled", 0)
		if m.persistFailure(ctx, p, logger, item) {
			logger.Warn("stage failed; retry scheduled",
				logging.Error(stageErr),
				logging.Int("attempt", item.Attempts),
				logging.Int("max_attempts", m.maxAttempts()),
				logging.Duration("retry_in", delay),
				logging.EventType("stage_retry"),
				logging.String(logging.FieldImpact, "the stage runs again after the backoff"),
			)
		}

	default:
		item.Attempts++
		m.failTrack(ctx, p, logger, item, stageErr)
	}
}

func (m *Manager) maxAttempts() int {
	if m.cfg.Workflow.MaxAttempts < 1 {
		return 1
	}
	return m.cfg.Workflow.MaxAttempts
}

func (m *Manager) returnToStart(p *pool, item *queue.Item) {
	item.Status = p.stage.startStatus
	item.LastHeartbeat = nil
}

func (m *Manager) rejectFromStage(ctx context.Context, logger *slog.Logger, item *queue.Item, rejection *services.RejectionError) {
	previous, err := m.store.RejectItem(ctx, item, rejection.Reason, rejection.Detail)
	if err != nil {
		logger.Error("failed to persist rejection",
			logging.Error(err),
			logging.String("reason", rejection.Reason),
			logging.EventType("stage_persist_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		return
	}
	if previous == "" {
		return
	}
	logger.Info("track rejected",
		logging.String("reason", rejection.Reason),
		logging.String("detail", rejection.Detail),
		logging.String("previous_status", string(previous)),
		logging.EventType("track_rejected"),
	)
}

func (m *Manager) failTrack(ctx context.Context, p *pool, logger *slog.Logger, item *queue.Item, stageErr error) {
	message := strings.TrimSpace(stageErr.Error())
	if message == "" {
		message = p.stage.name + " failed"
	}
	item.Status = queue.StatusFailed
	item.FailedStatus = p.stage.startStatus
	item.ErrorMessage = message
	item.NotBefore = nil
	item.LastHeartbeat = nil
	item.SetProgress("Failed", message, 0)
	if !m.persistFailure(ctx, p, logger, item) {
		return
	}
	p.failed.Add(1)
	logger.Error("stage failed",
		logging.Error(stageErr),
		logging.Int("attempts", item.Attempts),
		logging.Alert("stage_failure"),
		logging.EventType("stage_failure"),
		logging.String(logging.FieldErrorHint, "fix the cause, then loopdeck queue retry "+item.SourceID),
	)
	m.notifyFailure(ctx, p.stage.name, item, stageErr)
}

// persistFailure writes item only while it is still in p's processing status.
func (m *Manager) persistFailure(ctx context.Context, p *pool, logger *slog.Logger, item *queue.Item) bool {
	applied, err := m.store.UpdateIfStatus(ctx, item, p.stage.processingStatus)
	if err != nil {
		logger.Error("failed to persist stage failure",
			logging.Error(err),
			logging.EventType("stage_persist_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		return false
	}
	if !applied {
		logger.Info("stage failure discarded; track moved while processing",
			logging.EventType("stage_discarded"),
		)
		return false
	}
	m.setLastItem(item)
	return true
}
