package workflow

import (
	"loopdeck/internal/config"
	"loopdeck/internal/queue"
	"loopdeck/internal/stage"
)

var stageTable = []struct {
	name       string
	handler    func(StageSet) stage.Handler
	workers    func(config.Workflow) int
	start      queue.Status
	processing queue.Status
	done       queue.Status
}{
	{PoolFilter, func(s StageSet) stage.Handler { return s.Filter }, func(w config.Workflow) int { return w.FilterWorkers },
		queue.StatusFetched, queue.StatusFiltering, queue.StatusFiltered},
	{PoolSegment, func(s StageSet) stage.Handler { return s.Segment }, func(w config.Workflow) int { return w.SegmentWorkers },
		queue.StatusFiltered, queue.StatusSegmenting, queue.StatusSegmented},
	{PoolSeparate, func(s StageSet) stage.Handler { return s.Separate }, func(w config.Workflow) int { return w.SeparateWorkers },
		queue.StatusSegmented, queue.StatusSeparating, queue.StatusSeparated},
	{PoolAlign, func(s StageSet) stage.Handler { return s.Align }, func(w config.Workflow) int { return w.AlignWorkers },
		queue.StatusSeparated, queue.StatusAligning, queue.StatusAligned},
	{PoolRights, func(s StageSet) stage.Handler { return s.Rights }, func(w config.Workflow) int { return w.RightsWorkers },
		queue.StatusAligned, queue.StatusRightsChecking, queue.StatusRightsChecked},
	{PoolPublish, func(s StageSet) stage.Handler { return s.Publish }, func(w config.Workflow) int { return w.PublishWorkers },
		queue.StatusRightsChecked, queue.StatusPublishing, queue.StatusPublished},
}

// ConfigureStages registers the concrete stage handlers and sizes one worker
// pool per stage from the workflow config.
func (m *Manager) ConfigureStages(set StageSet) {
	pools := make([]*pool, 0, len(stageTable))
	byName := make(map[string]*pool, len(stageTable))
	byStart := make(map[queue.Status]*pool, len(stageTable))

	var prev *pool
	for _, row := range stageTable {
		handler := row.handler(set)
		if handler == nil {
			prev = nil
			continue
		}
		p := newPool(pipelineStage{
			name:             row.name,
			handler:          handler,
			startStatus:      row.start,
			processingStatus: row.processing,
			doneStatus:       row.done,
		}, row.workers(m.cfg.Workflow))
		p.logger = m.poolLogger(p)
		if prev != nil {
			prev.next = p
			p.prev = prev
		}
		pools = append(pools, p)
		byName[p.stage.name] = p
		byStart[p.stage.startStatus] = p
		prev = p
	}

	m.mu.Lock()
	m.pools = pools
	m.byName = byName
	m.byStart = byStart
	m.mu.Unlock()
}

func (m *Manager) poolNamed(name string) (*pool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.byName[name]
	return p, ok
}

func (m *Manager) poolForStatus(status queue.Status) *pool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byStart[status]
}

func (m *Manager) wakeAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.pools {
		p.wake()
	}
}
