package staging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"loopdeck/internal/logging"
)

// SweepReason says why a work directory was removed.
type SweepReason string

const (
	// SweepStale marks a directory nothing has written to within MaxAge.
	SweepStale SweepReason = "stale"
	// SweepOrphaned marks a directory whose Track is terminal or gone.
	SweepOrphaned SweepReason = "orphaned"
)

// SweepOptions selects which per-track work directories a sweep removes.
// Directory names are source ids and are compared exactly. Hidden
// directories (in-flight fetches) are never touched.
type SweepOptions struct {
	// MaxAge removes directories untouched for longer. Zero disables it.
	MaxAge time.Duration
	// Active lists Tracks still moving through the pipeline. When non-nil,
	// any other directory is removed.
	Active map[string]struct{}
	Now    time.Time
}

// SweepReport lists removed directories by reason and those that could
// not be removed.
type SweepReport struct {
	Removed map[SweepReason][]string
	Failed  map[string]error
}

// Count returns how many directories were removed for reason.
func (r SweepReport) Count(reason SweepReason) int { return len(r.Removed[reason]) }

// Sweep removes work directories under workRoot in a single pass.
func Sweep(ctx context.Context, workRoot string, opts SweepOptions, logger *slog.Logger) SweepReport {
	report := SweepReport{Removed: map[SweepReason][]string{}, Failed: map[string]error{}}
	workRoot = strings.TrimSpace(workRoot)
	if workRoot == "" {
		return report
	}
	entries, err := os.ReadDir(workRoot)
	if err != nil {
		if !os.IsNotExist(err) {
			report.Failed[workRoot] = err
		}
		return report
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		name := entry.Name()
		if !entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(workRoot, name)
		reason, ok := sweepReason(entry, name, opts)
		if !ok {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			report.Failed[path] = err
			logging.WarnWithContext(logger, "work directory not removed", "staging_cleanup_failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check paths.staging_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		report.Removed[reason] = append(report.Removed[reason], path)
		logger.Debug("work directory removed",
			logging.String(logging.FieldSourceID, name),
			logging.String("reason", string(reason)),
			logging.EventType("staging_cleanup"),
		)
	}
	return report
}

func sweepReason(entry os.DirEntry, name string, opts SweepOptions) (SweepReason, bool) {
	if opts.Active != nil {
		if _, active := opts.Active[name]; !active {
			return SweepOrphaned, true
		}
	}
	if opts.MaxAge <= 0 {
		return "", false
	}
	info, err := entry.Info()
	if err != nil || !info.ModTime().Before(opts.Now.Add(-opts.MaxAge)) {
		return "", false
	}
	return SweepStale, true
}
