package logging

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// rotatedPattern matches the backups lumberjack leaves next to the active
// daemon log (loopdeck-<timestamp>.log).
const rotatedPattern = "loopdeck-*.log"

// PruneReport lists what a retention sweep removed and what it could not.
type PruneReport struct {
	Removed []string
	Failed  map[string]error
}

// PruneRotated deletes rotated daemon logs in dir whose modification time is
// older than maxAge. The active log at keep is never touched. A zero maxAge
// leaves everything in place.
func PruneRotated(logger *slog.Logger, dir, keep string, maxAge time.Duration, now time.Time) PruneReport {
	report := PruneReport{Failed: map[string]error{}}
	if maxAge <= 0 || dir == "" {
		return report
	}
	matches, err := filepath.Glob(filepath.Join(dir, rotatedPattern))
	if err != nil {
		return report
	}
	sort.Strings(matches)

	keepAbs, _ := filepath.Abs(keep)
	cutoff := now.Add(-maxAge)
	for _, path := range matches {
		if abs, err := filepath.Abs(path); err == nil && abs == keepAbs {
			continue
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			report.Failed[path] = err
			WarnWithContext(logger, "rotated log not removed", "log_retention_failed",
				String("path", path),
				Error(err),
				String(FieldErrorHint, "check ownership of paths.log_dir"),
				String(FieldImpact, "rotated log stays on disk until the next start"),
			)
			continue
		}
		report.Removed = append(report.Removed, path)
	}
	if logger != nil && len(report.Removed) > 0 {
		logger.Info("rotated logs pruned",
			Int("removed", len(report.Removed)),
			Duration("max_age", maxAge),
			EventType("log_pruned"),
		)
	}
	return report
}
