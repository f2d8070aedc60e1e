package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"loopdeck/internal/alignment"
	"loopdeck/internal/catalog"
	"loopdeck/internal/catalog/blob"
	"loopdeck/internal/config"
	"loopdeck/internal/daemon"
	"loopdeck/internal/deps"
	"loopdeck/internal/eligibility"
	"loopdeck/internal/keylock"
	"loopdeck/internal/logging"
	"loopdeck/internal/notifications"
	"loopdeck/internal/playlist"
	"loopdeck/internal/preflight"
	"loopdeck/internal/queue"
	"loopdeck/internal/rawcache"
	"loopdeck/internal/segmentation"
	"loopdeck/internal/separation"
	"loopdeck/internal/services/ffmpeg"
	"loopdeck/internal/services/ytdlp"
	"loopdeck/internal/staging"
	"loopdeck/internal/workflow"
)

// staleWorkAge is how long an untouched per-track work directory survives.
const staleWorkAge = 7 * 24 * time.Hour

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the loopdeck daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logPath := cfg.DaemonLogPath()
	logger, err := logging.NewDaemonLogger(cfg, opts.LogLevel, opts.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	retention := time.Duration(cfg.Logging.RetentionDays) * 24 * time.Hour
	logging.PruneRotated(logger, cfg.Paths.LogDir, logPath, retention, time.Now())

	pidPath := cfg.DaemonPIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	defer store.Close()

	catStore, err := catalog.Open(cfg)
	if err != nil {
		logger.Error("open catalog store", logging.Error(err))
		return err
	}
	defer catStore.Close()

	blobs, err := blob.New(signalCtx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open artifact storage: %w", err)
	}

	locks, err := keylock.New(cfg.Lock)
	if err != nil {
		return fmt.Errorf("open lock backend: %w", err)
	}
	defer locks.Close()

	notifier := notifications.NewService(cfg)
	cat := catalog.New(catStore, blobs, locks, notifier, logger)

	mgrOpts := []workflow.ManagerOption{workflow.WithNotifier(notifier)}
	if source, err := playlist.NewSource(signalCtx, cfg); err != nil {
		logger.Warn("playlist source unavailable",
			logging.Error(err),
			logging.String(logging.FieldEventType, "playlist_source_unavailable"),
			logging.String(logging.FieldErrorHint, "check playlist.source and youtube credentials"),
			logging.String(logging.FieldImpact, "ingest is disabled until the daemon restarts"),
		)
	} else {
		mgrOpts = append(mgrOpts, workflow.WithFetcher(playlist.NewFetcher(source)))
	}
	mgr := workflow.NewManager(cfg, store, cat, logger, mgrOpts...)
	if err := registerStages(mgr, cfg, store, cat, logger); err != nil {
		return err
	}

	runPreflight(signalCtx, logger, cfg, blobs)
	dependencies := preflight.CheckSystemDeps(cfg)
	logDependencySnapshot(logger, dependencies)
	cleanStaging(signalCtx, logger, cfg, store)

	d, err := daemon.New(cfg, store, cat, logger, mgr,
		daemon.WithNotifier(notifier),
		daemon.WithDependencies(dependencies),
	)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Stop()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check for another running instance and queue database access"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("loopdeck daemon shutting down", logging.EventType("daemon_shutdown"))
	return nil
}

func registerStages(mgr *workflow.Manager, cfg *config.Config, store *queue.Store, cat *catalog.Catalog, logger *slog.Logger) error {
	downloader := ytdlp.New(cfg.Tools.YtDlpBinary, cfg.Tools.CookiesFile)
	decoder := ffmpeg.New(cfg.Tools.FFmpegBinary)

	separator, err := separation.NewBackend(cfg)
	if err != nil {
		return err
	}
	aligner, err := alignment.NewBackend(cfg)
	if err != nil {
		return err
	}

	mgr.ConfigureStages(workflow.StageSet{
		Filter:   eligibility.NewHandler(cfg, store, rawcache.NewManager(cfg, downloader, logger), decoder, logger),
		Segment:  segmentation.NewHandler(cfg, store, decoder, logger),
		Separate: separation.NewHandler(cfg, store, separator, logger),
		Align: alignment.NewHandler(cfg, store,
			alignment.NewCaptionSource(downloader, cfg.Alignment.CaptionLanguages),
			aligner,
			alignment.NewDSPBeatTracker(cfg.Segmentation),
			logger,
		),
		Rights:  catalog.NewGate(cfg, store, cat, logger),
		Publish: catalog.NewPublisher(cfg, store, cat, logger),
	})
	return nil
}

func runPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config, blobs blob.Store) {
	for _, result := range preflight.RunAll(ctx, cfg, blobs) {
		if result.Passed {
			logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
			continue
		}
		logger.Warn("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldEventType, "preflight_failed"),
			logging.String(logging.FieldImpact, "stages depending on this check will fail until it passes"),
		)
	}
}

func logDependencySnapshot(logger *slog.Logger, statuses []deps.Status) {
	attrs := []any{logging.String(logging.FieldEventType, "dependency_snapshot")}
	for _, status := range statuses {
		attrs = append(attrs, logging.Bool(status.Name+"_available", status.Available))
	}
	logger.Info("dependency snapshot", attrs...)
	required, optional := deps.Unavailable(statuses)
	for _, missing := range required {
		logger.Error("required dependency unavailable",
			logging.String("dependency", missing.Name),
			logging.String("command", missing.Command),
			logging.String("detail", missing.Detail),
			logging.String(logging.FieldEventType, "dependency_missing"),
			logging.String(logging.FieldImpact, "stages that run this tool will fail"),
		)
	}
	for _, missing := range optional {
		logger.Warn("optional dependency unavailable",
			logging.String("dependency", missing.Name),
			logging.String("command", missing.Command),
			logging.String("detail", missing.Detail),
			logging.String(logging.FieldEventType, "dependency_missing"),
		)
	}
}

// cleanStaging drops stale scratch directories and work directories of
// Tracks that no longer need them.
func cleanStaging(ctx context.Context, logger *slog.Logger, cfg *config.Config, store *queue.Store) {
	opts := staging.SweepOptions{MaxAge: staleWorkAge}
	if items, err := store.List(ctx); err != nil {
		logger.Warn("orphaned work directory cleanup skipped",
			logging.Error(err),
			logging.String(logging.FieldImpact, "orphaned work directories are kept until next start"),
		)
	} else {
		opts.Active = make(map[string]struct{}, len(items))
		for _, item := range items {
			if !item.IsTerminal() {
				opts.Active[item.SourceID] = struct{}{}
			}
		}
	}
	report := staging.Sweep(ctx, cfg.WorkRoot(), opts, logger)
	if len(report.Removed) > 0 {
		logger.Info("staging cleaned",
			logging.Int("stale_removed", report.Count(staging.SweepStale)),
			logging.Int("orphaned_removed", report.Count(staging.SweepOrphaned)),
			logging.EventType("staging_cleaned"),
		)
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
