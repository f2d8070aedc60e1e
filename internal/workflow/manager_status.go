package workflow

import (
	"context"

	"loopdeck/internal/logging"
	"loopdeck/internal/queue"
	"loopdeck/internal/stage"
)

// PoolStatus reports one stage pool. Waiting is the number of Tracks queued
// at the stage's start status; Executed counts completed stage runs; Cached
// counts Submit calls answered from the stage result cache.
type PoolStatus struct {
	Name     string
	Workers  int
	Busy     int
	Waiting  int
	Executed int64
	Cached   int64
	Failed   int64
}

// StatusSummary is the workflow section of the daemon status.
type StatusSummary struct {
	Running     bool
	LastError   string
	LastItem    *queue.Item
	QueueStats  map[queue.Status]int
	StageHealth map[string]stage.Health
	Pools       []PoolStatus
}

type managerState struct {
	running  bool
	lastErr  error
	lastItem *queue.Item
	pools    []*pool
}

func (m *Manager) state() managerState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := managerState{
		running: m.running,
		lastErr: m.lastErr,
		pools:   append([]*pool(nil), m.pools...),
	}
	if m.lastItem != nil {
		item := *m.lastItem
		st.lastItem = &item
	}
	return st
}

func (p *pool) status(stats map[queue.Status]int) PoolStatus {
	return PoolStatus{
		Name:     p.stage.name,
		Workers:  p.workers,
		Busy:     int(p.busy.Load()),
		Waiting:  stats[p.stage.startStatus],
		Executed: p.executed.Load(),
		Cached:   p.cached.Load(),
		Failed:   p.failed.Load(),
	}
}

// Status reports pool counters, stage readiness and queue counts. A failed
// stats read is logged and leaves QueueStats and Waiting empty.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	st := m.state()
	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err), logging.EventType("status_stats_failed"))
	}

	summary := StatusSummary{
		Running:     st.running,
		LastItem:    st.lastItem,
		QueueStats:  stats,
		StageHealth: make(map[string]stage.Health, len(st.pools)),
		Pools:       make([]PoolStatus, 0, len(st.pools)),
	}
	if st.lastErr != nil {
		summary.LastError = st.lastErr.Error()
	}
	for _, p := range st.pools {
		summary.StageHealth[p.stage.name] = p.stage.handler.HealthCheck(ctx)
		summary.Pools = append(summary.Pools, p.status(stats))
	}
	return summary
}

// PoolStats returns every pool's counters in pipeline order, without
// touching the queue database.
func (m *Manager) PoolStats() []PoolStatus {
	pools := m.state().pools
	out := make([]PoolStatus, len(pools))
	for i, p := range pools {
		out[i] = p.status(nil)
	}
	return out
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastItem(item *queue.Item) {
	var saved *queue.Item
	if item != nil {
		copied := *item
		saved = &copied
	}
	m.mu.Lock()
	m.lastItem = saved
	m.mu.Unlock()
}
