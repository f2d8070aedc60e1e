package workflow

import (
	"context"
	"fmt"
	"strings"

	"loopdeck/internal/catalog"
	"loopdeck/internal/logging"
	"loopdeck/internal/queue"
	"loopdeck/internal/rights"
	"loopdeck/internal/services"
)

// Submit runs stageName for sourceID and returns its result. A stage that
// already completed for the Track since its last reingest is not run again:
// the cached result is returned and the pool's Cached counter grows instead
// of Executed.
func (m *Manager) Submit(ctx context.Context, sourceID, stageName string) (*queue.StageResult, error) {
	p, ok := m.poolNamed(stageName)
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "workflow", "submit", "unknown stage "+stageName, nil)
	}
	cached, err := m.store.StageResult(ctx, sourceID, p.stage.doneStatus)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		p.cached.Add(1)
		logging.WithContext(services.WithSourceID(ctx, sourceID), p.logger).Debug("stage result served from cache",
			logging.Int("executions", cached.Executions),
			logging.EventType("stage_cached"),
		)
		return cached, nil
	}

	item, err := m.store.Claim(ctx, sourceID, p.stage.startStatus, p.stage.processingStatus)
	if err != nil {
		return nil, err
	}
	if item == nil {
		current, err := m.store.GetBySourceID(ctx, sourceID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, services.Wrap(services.ErrNotFound, "workflow", "submit", "unknown track "+sourceID, nil)
		}
		return nil, services.Wrap(services.ErrValidation, "workflow", "submit",
			fmt.Sprintf("track %s is %s; %s needs %s", sourceID, describeStatus(current), stageName, p.stage.startStatus), nil)
	}
	m.processItem(ctx, p, p.logger, item)

	result, err := m.store.StageResult(ctx, sourceID, p.stage.doneStatus)
	if err != nil {
		return nil, err
	}
	if result != nil {
		return result, nil
	}
	current, err := m.store.GetBySourceID(ctx, sourceID)
	if err != nil || current == nil {
		return nil, fmt.Errorf("%s did not complete for %s", stageName, sourceID)
	}
	if current.ErrorMessage != "" {
		return nil, fmt.Errorf("%s did not complete for %s (%s): %s", stageName, sourceID, describeStatus(current), current.ErrorMessage)
	}
	return nil, fmt.Errorf("%s did not complete for %s (%s)", stageName, sourceID, describeStatus(current))
}

func describeStatus(item *queue.Item) string {
	switch {
	case item.Status == queue.StatusRejected:
		return "rejected: " + item.RejectionReason
	case item.NeedsReview:
		return string(item.Status) + " awaiting review: " + item.ReviewReason
	case item.Status == queue.StatusFailed:
		return fmt.Sprintf("failed in %s after %d attempts", item.Stage(), item.Attempts)
	default:
		return string(item.Status)
	}
}

// ApproveReview releases a Track held by a quality gate or a compliance hold.
// Approving a compliance hold does not bypass the rights check: publish
// re-reads the rights record.
func (m *Manager) ApproveReview(ctx context.Context, sourceID string) error {
	item, err := m.reviewItem(ctx, sourceID)
	if err != nil {
		return err
	}
	released, err := m.store.ClearReview(ctx, sourceID)
	if err != nil {
		return err
	}
	if !released {
		return services.Wrap(services.ErrValidation, "workflow", "approve review", sourceID+" is not awaiting review", nil)
	}
	logging.WithContext(services.WithSourceID(ctx, sourceID), m.logger).Info("review approved",
		logging.String("review_reason", item.ReviewReason),
		logging.String("actor", services.ActorFromContext(ctx)),
		logging.EventType("review_approved"),
	)
	m.poolForStatus(item.Status).wake()
	return nil
}

// RejectReview rejects a Track held for review with the rejection reason
// matching the gate that flagged it.
func (m *Manager) RejectReview(ctx context.Context, sourceID string) error {
	item, err := m.reviewItem(ctx, sourceID)
	if err != nil {
		return err
	}
	reason, err := m.reviewRejectionReason(ctx, item)
	if err != nil {
		return err
	}
	return m.Reject(ctx, sourceID, reason, "rejected at review: "+item.ReviewReason)
}

func (m *Manager) reviewItem(ctx context.Context, sourceID string) (*queue.Item, error) {
	item, err := m.store.GetBySourceID(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, services.Wrap(services.ErrNotFound, "workflow", "review", "unknown track "+sourceID, nil)
	}
	if !item.NeedsReview {
		return nil, services.Wrap(services.ErrValidation, "workflow", "review", sourceID+" is not awaiting review", nil)
	}
	return item, nil
}

func (m *Manager) reviewRejectionReason(ctx context.Context, item *queue.Item) (string, error) {
	flags := item.ReviewReason
	switch {
	case strings.Contains(flags, services.FlagComplianceViolation):
		return m.rightsRejectionReason(ctx, item.SourceID)
	case strings.Contains(flags, services.FlagSeparationBelowThreshold):
		return services.ReasonSeparationQualityFailure, nil
	default:
		return services.ReasonSeamQualityFailure, nil
	}
}

func (m *Manager) rightsRejectionReason(ctx context.Context, sourceID string) (string, error) {
	if m.catalog == nil {
		return services.ReasonRightsRestricted, nil
	}
	rec, err := m.catalog.Store().Rights(ctx, sourceID)
	if err != nil {
		return "", err
	}
	if rec.State == rights.StateRejected {
		return services.ReasonRightsRejected, nil
	}
	return services.ReasonRightsRestricted, nil
}

// Reject moves a Track to rejected from any stage and cancels its running
// stage, whose late result is then discarded.
func (m *Manager) Reject(ctx context.Context, sourceID, reason, detail string) error {
	previous, err := m.store.Reject(ctx, sourceID, reason, detail)
	if err != nil {
		return err
	}
	cancelled := m.cancelInflight(sourceID)
	if previous == "" {
		return nil
	}
	logging.WithContext(services.WithSourceID(ctx, sourceID), m.logger).Info("track rejected",
		logging.String("reason", reason),
		logging.String("detail", detail),
		logging.String("previous_status", string(previous)),
		logging.Bool("cancelled_running_stage", cancelled),
		logging.String("actor", services.ActorFromContext(ctx)),
		logging.EventType("track_rejected"),
	)
	return nil
}

// Reingest resets a Track to fetched, dropping its cached stage results.
func (m *Manager) Reingest(ctx context.Context, sourceID string) (bool, error) {
	m.cancelInflight(sourceID)
	found, err := m.store.Reingest(ctx, sourceID)
	if err != nil || !found {
		return found, err
	}
	logging.WithContext(services.WithSourceID(ctx, sourceID), m.logger).Info("track reingested",
		logging.String("actor", services.ActorFromContext(ctx)),
		logging.EventType("track_reingested"),
	)
	m.poolForStatus(queue.StatusFetched).wake()
	return true, nil
}

// RetryFailed returns failed Tracks to the stage they failed in. No ids
// retries every failed Track.
func (m *Manager) RetryFailed(ctx context.Context, sourceIDs ...string) (int64, error) {
	n, err := m.store.RetryFailed(ctx, sourceIDs...)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.logger.Info("failed tracks requeued",
			logging.Int64("count", n),
			logging.String("actor", services.ActorFromContext(ctx)),
			logging.EventType("tracks_retried"),
		)
		m.wakeAll()
	}
	return n, nil
}

// SetLicenseState changes a Track's rights state through the catalog and wakes
// the rights gate so a waiting Track sees the new state without waiting for
// its recheck. Live entries downgraded by the change are retracted by the
// next Reconcile.
func (m *Manager) SetLicenseState(ctx context.Context, sourceID string, state rights.State, evidenceURI string, opts ...catalog.SetOption) (rights.Record, error) {
	if m.catalog == nil {
		return rights.Record{}, errNoCatalog("set license state")
	}
	rec, err := m.catalog.SetLicenseState(ctx, sourceID, state, evidenceURI, opts...)
	if err != nil {
		return rec, err
	}
	if err := m.store.Wake(ctx, sourceID); err != nil {
		m.logger.Warn("failed to wake track after license change",
			logging.String(logging.FieldSourceID, sourceID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "the rights gate runs at the next recheck"),
		)
	}
	m.poolForStatus(queue.StatusAligned).wake()
	return rec, nil
}

// Unpublish retracts a live catalog entry and marks the Track rejected.
func (m *Manager) Unpublish(ctx context.Context, sourceID, reason string) (bool, error) {
	if m.catalog == nil {
		return false, errNoCatalog("unpublish")
	}
	if strings.TrimSpace(reason) == "" {
		reason = services.ReasonUnpublished
	}
	retracted, err := m.catalog.Unpublish(ctx, sourceID, reason)
	if err != nil || !retracted {
		return retracted, err
	}
	if err := m.Reject(ctx, sourceID, services.ReasonUnpublished, reason); err != nil {
		m.logger.Warn("failed to reject unpublished track",
			logging.String(logging.FieldSourceID, sourceID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "queue status still shows published"),
		)
	}
	return true, nil
}

// Reconcile retracts every live entry whose rights are no longer cleared and
// rejects the matching Tracks with the rights reason.
func (m *Manager) Reconcile(ctx context.Context) (catalog.ReconcileReport, error) {
	if m.catalog == nil {
		return catalog.ReconcileReport{}, errNoCatalog("reconcile")
	}
	report, err := m.catalog.Reconcile(ctx)
	if err != nil {
		return report, err
	}
	for _, sourceID := range report.Retracted {
		reason, err := m.rightsRejectionReason(ctx, sourceID)
		if err != nil {
			reason = services.ReasonRightsRestricted
		}
		if err := m.Reject(ctx, sourceID, reason, "retracted by reconcile"); err != nil {
			m.logger.Warn("failed to reject retracted track",
				logging.String(logging.FieldSourceID, sourceID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "queue status still shows published"),
			)
		}
	}
	return report, nil
}

func errNoCatalog(op string) error {
	return services.Wrap(services.ErrConfiguration, "workflow", op, "catalog is not configured", nil)
}
