// Package notifications pushes pipeline events to ntfy.
//
// NewService returns a no-op notifier when no topic is configured, so callers
// never need to check whether notifications are enabled. Each event family
// (review, compliance, failures, publish) can be muted in config.toml;
// compliance violations are the one event operators should leave on.
package notifications
