package preflight

import (
	"fmt"
	"os"
	"strings"

	"loopdeck/internal/config"
)

// CheckYouTubeFromConfig evaluates whether Data API credentials are usable.
// It does not spend quota.
func CheckYouTubeFromConfig(cfg *config.Config) Result {
	const name = "YouTube Data API"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if cfg.Playlist.Source != config.SourceYouTube {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("Not used (source %s)", cfg.Playlist.Source)}
	}
	if path := strings.TrimSpace(cfg.YouTube.CredentialsFile); path != "" {
		if _, err := os.Stat(path); err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("credentials file unreadable: %v", err)}
		}
		return Result{Name: name, Passed: true, Detail: "Service account credentials"}
	}
	if strings.TrimSpace(cfg.YouTube.APIKey) == "" {
		return Result{Name: name, Detail: "Missing API key"}
	}
	return Result{Name: name, Passed: true, Detail: "API key configured"}
}

// CheckNotificationsFromConfig reports whether ntfy delivery is configured.
func CheckNotificationsFromConfig(cfg *config.Config) Result {
	const name = "Notifications"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	var events []string
	if cfg.Notifications.Review {
		events = append(events, "review")
	}
	if cfg.Notifications.Compliance {
		events = append(events, "compliance")
	}
	if cfg.Notifications.Failures {
		events = append(events, "failures")
	}
	if cfg.Notifications.Publish {
		events = append(events, "publish")
	}
	if len(events) == 0 {
		return Result{Name: name, Passed: true, Detail: "Topic set, all events muted"}
	}
	return Result{Name: name, Passed: true, Detail: "ntfy: " + strings.Join(events, ", ")}
}
