package workflow

import (
	"context"
	"errors"
	"strconv"

	"loopdeck/internal/logging"
	"loopdeck/internal/notifications"
	"loopdeck/internal/queue"
)

func (m *Manager) notifyFailure(ctx context.Context, stageName string, item *queue.Item, stageErr error) {
	m.publish(ctx, notifications.EventTrackFailed, notifications.Payload{
		"sourceID": item.SourceID,
		"title":    item.Title,
		"stage":    stageName,
		"error":    stageErr.Error(),
	})
}

func (m *Manager) notifyReview(ctx context.Context, item *queue.Item) {
	m.publish(ctx, notifications.EventReviewRequired, notifications.Payload{
		"sourceID": item.SourceID,
		"title":    item.Title,
		"reason":   item.ReviewReason,
	})
}

func (m *Manager) notifyIngest(ctx context.Context, playlistID string, created int) {
	m.publish(ctx, notifications.EventIngestCompleted, notifications.Payload{
		"playlist": playlistID,
		"count":    strconv.Itoa(created),
	})
}

func (m *Manager) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, notification dropped", logging.String("event", string(event)))
			return
		}
		m.logger.Debug("notification failed",
			logging.String("event", string(event)),
			logging.Error(err),
		)
	}
}
