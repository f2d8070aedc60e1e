package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"loopdeck/internal/logging"
	"loopdeck/internal/queue"
)

// Start resets work interrupted by a previous run and launches the stage
// pools, the stale-heartbeat reclaimer and the catalog reconcile loop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	pools := append([]*pool(nil), m.pools...)
	if len(pools) == 0 {
		m.mu.Unlock()
		return errors.New("workflow stages not configured")
	}

	reset, err := m.store.ResetStuckProcessing(ctx)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if reset > 0 {
		m.logger.Info("reset interrupted tracks",
			logging.Int64("count", reset),
			logging.EventType("processing_reset"),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	for _, p := range pools {
		m.wg.Add(p.workers)
		for worker := range p.workers {
			go m.runWorker(runCtx, p, worker)
		}
	}
	m.wg.Add(1)
	go m.runReclaimer(runCtx)
	if m.catalog != nil && m.cfg.Workflow.ReconcileInterval > 0 {
		m.wg.Add(1)
		go m.runReconciler(runCtx)
	}
	m.mu.Unlock()

	m.logBlockedStages(runCtx, pools)
	m.logger.Info("workflow started",
		logging.Int("pools", len(pools)),
		logging.EventType("workflow_started"),
	)
	return nil
}

// Stop terminates background processing and waits for completion. Tracks
// that were mid-stage stay in their processing status and are reset on the
// next Start.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) runWorker(ctx context.Context, p *pool, worker int) {
	defer m.wg.Done()
	logger := p.logger.With(logging.Int(logging.FieldWorker, worker))

	for {
		if ctx.Err() != nil {
			return
		}

		full, err := m.backlogFull(ctx, p.next)
		if err != nil {
			m.handleClaimError(ctx, logger, err)
			continue
		}
		if full {
			m.waitForWork(ctx, p)
			continue
		}

		item, err := m.store.ClaimNext(ctx, p.stage.startStatus, p.stage.processingStatus)
		if err != nil {
			m.handleClaimError(ctx, logger, err)
			continue
		}
		if item == nil {
			m.waitForWork(ctx, p)
			continue
		}
		m.processItem(ctx, p, logger, item)
	}
}

// backlogFull reports whether the pool downstream already holds
// workflow.stage_backlog ready Tracks, in which case the producer waits.
func (m *Manager) backlogFull(ctx context.Context, next *pool) (bool, error) {
	limit := m.cfg.Workflow.StageBacklog
	if next == nil || limit <= 0 {
		return false, nil
	}
	ready, err := m.store.CountReady(ctx, next.stage.startStatus)
	if err != nil {
		return false, err
	}
	return ready >= limit, nil
}

// drained is called after a pool claims a Track: its input backlog shrank,
// so whoever feeds it may proceed.
func (m *Manager) drained(p *pool) {
	if p.prev != nil {
		p.prev.wake()
		return
	}
	if p.stage.startStatus == queue.StatusFetched {
		select {
		case m.ingestKick <- struct{}{}:
		default:
		}
	}
}

func (m *Manager) handleClaimError(ctx context.Context, logger *slog.Logger, err error) {
	if ctx.Err() != nil {
		return
	}
	m.setLastError(err)
	logger.Error("failed to claim next track",
		logging.Error(err),
		logging.EventType("queue_claim_failed"),
		logging.String(logging.FieldErrorHint, "check queue database access"),
	)
	select {
	case <-ctx.Done():
	case <-time.After(m.pollInterval):
	}
}

func (m *Manager) waitForWork(ctx context.Context, p *pool) {
	select {
	case <-ctx.Done():
	case <-p.kick:
	case <-time.After(m.pollInterval):
	}
}

func (m *Manager) runReconciler(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(time.Duration(m.cfg.Workflow.ReconcileInterval) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Reconcile(ctx); err != nil && ctx.Err() == nil {
				m.logger.Warn("catalog reconcile failed; downgraded entries may stay live until the next pass",
					logging.Error(err),
					logging.EventType("reconcile_failed"),
					logging.String(logging.FieldErrorHint, "check catalog database and object store access"),
				)
			}
		}
	}
}
