package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"loopdeck/internal/catalog"
	"loopdeck/internal/config"
	"loopdeck/internal/deps"
	"loopdeck/internal/logging"
	"loopdeck/internal/notifications"
	"loopdeck/internal/queue"
	"loopdeck/internal/workflow"
)

// Daemon coordinates the background processing services and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	catalog  *catalog.Catalog
	workflow *workflow.Manager
	notifier notifications.Service

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	depsMu       sync.RWMutex
	dependencies []deps.Status

	running atomic.Bool
	cancel  context.CancelFunc
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithNotifier overrides the notifier used for test notifications.
func WithNotifier(notifier notifications.Service) Option {
	return func(d *Daemon) {
		if notifier != nil {
			d.notifier = notifier
		}
	}
}

// WithDependencies seeds the dependency snapshot reported by Status.
func WithDependencies(statuses []deps.Status) Option {
	return func(d *Daemon) { d.SetDependencies(statuses) }
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	Workflow      workflow.StatusSummary
	QueueDBPath   string
	CatalogDBPath string
	LockFilePath  string
	Storage       string
	APIAddress    string
	Dependencies  []deps.Status
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, cat *catalog.Catalog, logger *slog.Logger, wf *workflow.Manager, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || cat == nil || logger == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, catalog, logger, and workflow manager")
	}

	lockPath := cfg.DaemonLockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		catalog:  cat,
		workflow: wf,
		notifier: notifications.NewService(cfg),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	srv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = srv
	return d, nil
}

// Start takes the single-instance lock, then starts the workflow manager and
// the operator API. Whatever started is unwound if a later step fails.
func (d *Daemon) Start(ctx context.Context) (err error) {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	var undo []func()
	defer func() {
		if err != nil {
			for i := len(undo) - 1; i >= 0; i-- {
				undo[i]()
			}
		}
	}()

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("ensure lock directory: %w", err)
	}
	switch locked, err := d.lock.TryLock(); {
	case err != nil:
		return fmt.Errorf("acquire lock: %w", err)
	case !locked:
		return errors.New("another loopdeck daemon instance is already running")
	}
	undo = append(undo, func() { _ = d.lock.Unlock() })

	runCtx, cancel := context.WithCancel(ctx)
	undo = append(undo, cancel)
	if err := d.workflow.Start(runCtx); err != nil {
		return fmt.Errorf("start workflow: %w", err)
	}
	undo = append(undo, d.workflow.Stop)
	if err := d.api.start(runCtx); err != nil {
		return err
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("loopdeck daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.APIAddress()),
		logging.EventType("daemon_started"),
	)
	return nil
}

// Stop shuts down in reverse start order: the API first so no new operator
// actions arrive, then the workflow, then the lock.
func (d *Daemon) Stop() {
	if !d.running.CompareAndSwap(true, false) {
		return
	}
	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the next start may report another instance running"),
		)
	}
	d.logger.Info("loopdeck daemon stopped", logging.EventType("daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Workflow exposes the workflow manager for operator actions.
func (d *Daemon) Workflow() *workflow.Manager {
	return d.workflow
}

// APIAddress returns the address the API listens on, or "" when disabled.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// SetDependencies replaces the dependency snapshot.
func (d *Daemon) SetDependencies(statuses []deps.Status) {
	d.depsMu.Lock()
	d.dependencies = append([]deps.Status(nil), statuses...)
	d.depsMu.Unlock()
}

// QueueHealth returns aggregate queue diagnostics.
func (d *Daemon) QueueHealth(ctx context.Context) (queue.HealthSummary, error) {
	return d.store.Health(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	d.depsMu.RLock()
	dependencies := append([]deps.Status(nil), d.dependencies...)
	d.depsMu.RUnlock()

	return Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		Workflow:      d.workflow.Status(ctx),
		QueueDBPath:   d.cfg.QueueDBPath(),
		CatalogDBPath: d.cfg.CatalogDBPath(),
		LockFilePath:  d.lockPath,
		Storage:       d.catalog.Blobs().Location(),
		APIAddress:    d.APIAddress(),
		Dependencies:  dependencies,
	}
}
