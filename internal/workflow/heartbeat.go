package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"loopdeck/internal/logging"
	"loopdeck/internal/queue"
)

// heartbeat keeps claimed Tracks fresh while a stage runs and returns Tracks
// whose worker went silent to the start of their stage.
type heartbeat struct {
	store    *queue.Store
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
}

// beat refreshes itemID's heartbeat every interval until the returned stop
// function is called. stop blocks until the refresher has exited.
func (h heartbeat) beat(ctx context.Context, logger *slog.Logger, itemID int64) (stop func()) {
	if h.interval <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Go(func() {
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			err := h.store.UpdateHeartbeat(ctx, itemID)
			switch {
			case err == nil:
			case errors.Is(err, context.Canceled):
				logger.Debug("heartbeat update cancelled")
			default:
				logger.Warn("heartbeat update failed",
					logging.Error(err),
					logging.EventType("heartbeat_failed"),
				)
			}
		}
	})
	return func() {
		cancel()
		wg.Wait()
	}
}

// reclaim requeues Tracks whose heartbeat is older than the timeout.
func (h heartbeat) reclaim(ctx context.Context, logger *slog.Logger) (int64, error) {
	if h.timeout <= 0 {
		return 0, nil
	}
	n, err := h.store.ReclaimStaleProcessing(ctx, h.now().Add(-h.timeout))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Warn("reclaimed stale tracks",
			logging.Int64("count", n),
			logging.EventType("heartbeat_reclaimed"),
			logging.String(logging.FieldImpact, "the interrupted stage runs again from the start"),
		)
	}
	return n, nil
}

// runReclaimer sweeps for silent workers every interval and wakes the pools
// when anything came back.
func (m *Manager) runReclaimer(ctx context.Context) {
	defer m.wg.Done()
	if m.heartbeat.timeout <= 0 {
		return
	}
	every := m.heartbeat.interval
	if every <= 0 {
		every = m.pollInterval
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		n, err := m.heartbeat.reclaim(ctx, m.logger)
		if err != nil {
			if ctx.Err() == nil {
				m.logger.Warn("reclaim stale processing failed; stuck tracks may remain",
					logging.Error(err),
					logging.EventType("heartbeat_reclaim_failed"),
					logging.String(logging.FieldErrorHint, "check queue database access"),
				)
			}
			continue
		}
		if n > 0 {
			m.wakeAll()
		}
	}
}
