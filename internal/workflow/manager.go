package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"loopdeck/internal/catalog"
	"loopdeck/internal/config"
	"loopdeck/internal/logging"
	"loopdeck/internal/notifications"
	"loopdeck/internal/playlist"
	"loopdeck/internal/queue"
)

// Manager coordinates the stage pools over the durable queue.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	catalog      *catalog.Catalog
	fetcher      *playlist.Fetcher
	logger       *slog.Logger
	notifier     notifications.Service
	pollInterval time.Duration
	now          func() time.Time

	heartbeat  heartbeat
	ingestKick chan struct{}

	pools   []*pool
	byName  map[string]*pool
	byStart map[queue.Status]*pool

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastErr  error
	lastItem *queue.Item

	inflightMu sync.Mutex
	inflight   map[string]context.CancelFunc
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithNotifier replaces the notifier built from config.
func WithNotifier(notifier notifications.Service) ManagerOption {
	return func(m *Manager) {
		if notifier != nil {
			m.notifier = notifier
		}
	}
}

// WithFetcher sets the playlist fetcher used by Ingest.
func WithFetcher(fetcher *playlist.Fetcher) ManagerOption {
	return func(m *Manager) { m.fetcher = fetcher }
}

// WithClock overrides the time source used for retry and deferral schedules.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager constructs a workflow manager. cat may be nil when only the
// queue stages run (tests); catalog operations then report a configuration
// error.
func NewManager(cfg *config.Config, store *queue.Store, cat *catalog.Catalog, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	interval, timeout := cfg.Workflow.Heartbeat()
	m := &Manager{
		cfg:          cfg,
		store:        store,
		catalog:      cat,
		logger:       logging.NewComponentLogger(logger, "workflow"),
		notifier:     notifications.NewService(cfg),
		pollInterval: cfg.Workflow.PollInterval(),
		now:          time.Now,
		ingestKick:   make(chan struct{}, 1),
		byName:       make(map[string]*pool),
		byStart:      make(map[queue.Status]*pool),
		inflight:     make(map[string]context.CancelFunc),
	}
	if m.pollInterval <= 0 {
		m.pollInterval = time.Second
	}
	m.heartbeat = heartbeat{store: store, interval: interval, timeout: timeout, now: func() time.Time { return m.now() }}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// trackInflight registers the cancel func of a running stage so operator
// actions can stop it.
func (m *Manager) trackInflight(sourceID string, cancel context.CancelFunc) {
	m.inflightMu.Lock()
	m.inflight[sourceID] = cancel
	m.inflightMu.Unlock()
}

func (m *Manager) untrackInflight(sourceID string) {
	m.inflightMu.Lock()
	delete(m.inflight, sourceID)
	m.inflightMu.Unlock()
}

// cancelInflight stops the running stage of sourceID, if any.
func (m *Manager) cancelInflight(sourceID string) bool {
	m.inflightMu.Lock()
	cancel, ok := m.inflight[sourceID]
	m.inflightMu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (m *Manager) isRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}
