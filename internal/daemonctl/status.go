package daemonctl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"loopdeck/internal/api"
	"loopdeck/internal/config"
	"loopdeck/internal/preflight"
	"loopdeck/internal/queue"
)

// StatusLine is one labelled row of the status report.
type StatusLine struct {
	Label    string
	Severity string
	Detail   string
}

// DependencySummary aggregates dependency readiness.
type DependencySummary struct {
	Total           int
	Available       int
	MissingRequired int
	MissingOptional int
	Severity        string
	Detail          string
}

// StatusSnapshot is everything `loopdeck status` renders.
type StatusSnapshot struct {
	Daemon            api.DaemonStatus
	QueueStats        map[string]int
	SystemChecks      []StatusLine
	Paths             []StatusLine
	DependencySummary DependencySummary
}

// BuildStatusSnapshot collects daemon status and falls back to reading the
// queue database and probing dependencies locally when the daemon is down.
func BuildStatusSnapshot(ctx context.Context, cfg *config.Config) (*StatusSnapshot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration not available")
	}
	snap := &StatusSnapshot{}

	if client, err := NewClient(cfg, ""); err == nil {
		queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if status, statusErr := client.Status(queryCtx); statusErr == nil {
			snap.Daemon = *status
		}
		cancel()
	}

	snap.QueueStats = make(map[string]int, len(snap.Daemon.Workflow.QueueStats))
	for k, v := range snap.Daemon.Workflow.QueueStats {
		snap.QueueStats[k] = v
	}

	if !snap.Daemon.Running {
		snap.Daemon.QueueDBPath = cfg.QueueDBPath()
		snap.Daemon.CatalogDBPath = cfg.CatalogDBPath()
		queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if store, openErr := queue.Open(cfg); openErr == nil {
			stats, statsErr := store.Stats(queryCtx)
			_ = store.Close()
			if statsErr == nil {
				snap.QueueStats = api.MergeQueueStats(stats)
			}
		}
	}
	if len(snap.Daemon.Dependencies) == 0 {
		snap.Daemon.Dependencies = api.FromDependencies(preflight.CheckSystemDeps(cfg))
	}

	snap.SystemChecks = BuildSystemChecks(cfg, snap.Daemon.Running)
	snap.Paths = BuildPathChecks(cfg)
	snap.DependencySummary = BuildDependencySummary(snap.Daemon.Dependencies)
	return snap, nil
}

// DependencySeverity classifies one dependency for display.
func DependencySeverity(dep api.DependencyStatus) string {
	switch {
	case dep.Available:
		return "ok"
	case dep.Optional:
		return "warn"
	default:
		return "error"
	}
}

// BuildSystemChecks resolves status lines that combine runtime state and config checks.
func BuildSystemChecks(cfg *config.Config, daemonRunning bool) []StatusLine {
	lines := make([]StatusLine, 0, 5)
	if daemonRunning {
		lines = append(lines, StatusLine{Label: "Loopdeck", Severity: "ok", Detail: "Running"})
	} else {
		lines = append(lines, StatusLine{Label: "Loopdeck", Severity: "warn", Detail: "Not running (run `loopdeck daemon start`)"})
	}

	lines = append(lines, StatusLine{
		Label:    "Playlist",
		Severity: playlistSeverity(cfg),
		Detail:   playlistDetail(cfg),
	})

	youtube := preflight.CheckYouTubeFromConfig(cfg)
	switch {
	case youtube.Passed:
		lines = append(lines, StatusLine{Label: "YouTube", Severity: "ok", Detail: youtube.Detail})
	case strings.EqualFold(strings.TrimSpace(youtube.Detail), "Unknown"):
		lines = append(lines, StatusLine{Label: "YouTube", Severity: "info", Detail: youtube.Detail})
	default:
		lines = append(lines, StatusLine{Label: "YouTube", Severity: "warn", Detail: youtube.Detail})
	}

	lines = append(lines, StatusLine{Label: "Storage", Severity: "info", Detail: storageDetail(cfg)})

	notify := preflight.CheckNotificationsFromConfig(cfg)
	if strings.EqualFold(notify.Detail, "Disabled") {
		lines = append(lines, StatusLine{Label: "Notifications", Severity: "info", Detail: notify.Detail})
	} else {
		lines = append(lines, StatusLine{Label: "Notifications", Severity: "ok", Detail: notify.Detail})
	}
	return lines
}

func playlistSeverity(cfg *config.Config) string {
	if strings.TrimSpace(cfg.Playlist.ID) == "" && cfg.Playlist.Source != config.SourceManifest {
		return "warn"
	}
	return "ok"
}

func playlistDetail(cfg *config.Config) string {
	switch {
	case cfg.Playlist.Source == config.SourceManifest:
		return "manifest " + cfg.Playlist.ManifestPath
	case strings.TrimSpace(cfg.Playlist.ID) == "":
		return "No playlist configured"
	default:
		return fmt.Sprintf("%s via %s", cfg.Playlist.ID, cfg.Playlist.Source)
	}
}

func storageDetail(cfg *config.Config) string {
	switch cfg.Storage.Backend {
	case config.StorageGCS:
		return "gs://" + cfg.Storage.Bucket
	case config.StorageS3:
		return "s3://" + cfg.Storage.Bucket
	default:
		return cfg.Storage.LocalDir
	}
}

// BuildPathChecks resolves configured directory readiness.
func BuildPathChecks(cfg *config.Config) []StatusLine {
	lines := make([]StatusLine, 0, 3)
	for _, dir := range []struct {
		label string
		path  string
	}{
		{label: "Staging", path: cfg.Paths.StagingDir},
		{label: "State", path: cfg.Paths.StateDir},
		{label: "Logs", path: cfg.Paths.LogDir},
	} {
		result := preflight.CheckDirectoryAccess(dir.label, dir.path)
		severity := "error"
		if result.Passed {
			severity = "ok"
		}
		lines = append(lines, StatusLine{
			Label:    dir.label,
			Severity: severity,
			Detail:   result.Detail,
		})
	}
	return lines
}

// BuildDependencySummary computes aggregate dependency readiness.
func BuildDependencySummary(deps []api.DependencyStatus) DependencySummary {
	if len(deps) == 0 {
		return DependencySummary{
			Severity: "info",
			Detail:   "No dependency checks configured",
		}
	}

	missingRequired := 0
	missingOptional := 0
	for _, dep := range deps {
		if dep.Available {
			continue
		}
		if dep.Optional {
			missingOptional++
		} else {
			missingRequired++
		}
	}

	missingCount := missingRequired + missingOptional
	available := len(deps) - missingCount
	severity := "ok"
	if missingRequired > 0 {
		severity = "error"
	} else if missingOptional > 0 {
		severity = "warn"
	}
	detail := fmt.Sprintf("%d/%d available (missing: %d required, %d optional)", available, len(deps), missingRequired, missingOptional)
	if missingCount == 0 {
		detail = fmt.Sprintf("%d/%d available", available, len(deps))
	}

	return DependencySummary{
		Total:           len(deps),
		Available:       available,
		MissingRequired: missingRequired,
		MissingOptional: missingOptional,
		Severity:        severity,
		Detail:          detail,
	}
}
