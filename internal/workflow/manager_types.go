package workflow

import (
	"log/slog"
	"sync/atomic"

	"loopdeck/internal/queue"
	"loopdeck/internal/stage"
)

// StageSet bundles the concrete stage handlers the manager orchestrates. A
// nil handler leaves Tracks waiting at that stage's start status.
type StageSet struct {
	Filter   stage.Handler
	Segment  stage.Handler
	Separate stage.Handler
	Align    stage.Handler
	Rights   stage.Handler
	Publish  stage.Handler
}

// Pool names, used by Submit and in logs.
const (
	PoolFilter   = "filter"
	PoolSegment  = "segment"
	PoolSeparate = "separate"
	PoolAlign    = "align"
	PoolRights   = "rights"
	PoolPublish  = "publish"
)

type pipelineStage struct {
	name             string
	handler          stage.Handler
	startStatus      queue.Status
	processingStatus queue.Status
	doneStatus       queue.Status
}

// pool is the bounded set of workers serving one stage.
type pool struct {
	stage   pipelineStage
	workers int
	logger  *slog.Logger

	// kick wakes an idle worker early; prev and next are the neighbouring
	// pools whose backlog this pool feeds or drains.
	kick chan struct{}
	prev *pool
	next *pool

	busy     atomic.Int32
	executed atomic.Int64
	cached   atomic.Int64
	failed   atomic.Int64
}

func newPool(stg pipelineStage, workers int) *pool {
	if workers < 1 {
		workers = 1
	}
	return &pool{stage: stg, workers: workers, kick: make(chan struct{}, 1)}
}

func (p *pool) wake() {
	if p == nil {
		return
	}
	select {
	case p.kick <- struct{}{}:
	default:
	}
}
