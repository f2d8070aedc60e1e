package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"loopdeck/internal/config"
)

const userAgent = "loopdeck/0.1.0"

// Event identifies a notification template.
type Event string

const (
	EventReviewRequired      Event = "review_required"
	EventComplianceViolation Event = "compliance_violation"
	EventTrackFailed         Event = "track_failed"
	EventTrackPublished      Event = "track_published"
	EventTrackRetracted      Event = "track_retracted"
	EventIngestCompleted     Event = "ingest_completed"
	EventTest                Event = "test"
)

// Payload carries template fields. Unknown keys are ignored.
type Payload map[string]string

// Service publishes pipeline events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed service, or a no-op when no topic is set.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventReviewRequired:      cfg.Notifications.Review,
			EventComplianceViolation: cfg.Notifications.Compliance,
			EventTrackFailed:         cfg.Notifications.Failures,
			EventTrackPublished:      cfg.Notifications.Publish,
			EventTrackRetracted:      cfg.Notifications.Publish || cfg.Notifications.Compliance,
			EventIngestCompleted:     cfg.Notifications.Publish,
			EventTest:                true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled[event] {
		return nil
	}
	msg, ok := render(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func render(event Event, p Payload) (message, bool) {
	track := describe(p)
	switch event {
	case EventReviewRequired:
		return message{
			title: "loopdeck - Review Required",
			body:  fmt.Sprintf("%s needs review: %s", track, fallback(p["reason"], "quality gate")),
			tags:  []string{"loopdeck", "review"},
		}, true
	case EventComplianceViolation:
		return message{
			title:    "loopdeck - Compliance Violation",
			body:     fmt.Sprintf("Publish blocked for %s: license state is %s", track, fallback(p["licenseState"], "unknown")),
			tags:     []string{"loopdeck", "compliance", "alert"},
			priority: "urgent",
		}, true
	case EventTrackFailed:
		body := fmt.Sprintf("%s failed in %s", track, fallback(p["stage"], "pipeline"))
		if errText := strings.TrimSpace(p["error"]); errText != "" {
			body += ": " + errText
		}
		return message{
			title:    "loopdeck - Track Failed",
			body:     body,
			tags:     []string{"loopdeck", "error"},
			priority: "high",
		}, true
	case EventTrackPublished:
		return message{
			title: "loopdeck - Published",
			body:  fmt.Sprintf("Published %s", track),
			tags:  []string{"loopdeck", "catalog", "published"},
		}, true
	case EventTrackRetracted:
		return message{
			title:    "loopdeck - Retracted",
			body:     fmt.Sprintf("Retracted %s: %s", track, fallback(p["reason"], "unpublished")),
			tags:     []string{"loopdeck", "catalog", "retracted"},
			priority: "high",
		}, true
	case EventIngestCompleted:
		return message{
			title: "loopdeck - Ingest Complete",
			body:  fmt.Sprintf("Ingested %s new tracks from %s", fallback(p["count"], "0"), fallback(p["playlist"], "playlist")),
			tags:  []string{"loopdeck", "ingest"},
		}, true
	case EventTest:
		return message{
			title:    "loopdeck - Test",
			body:     "Notification system test",
			tags:     []string{"loopdeck", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func describe(p Payload) string {
	id := strings.TrimSpace(p["sourceID"])
	title := strings.TrimSpace(p["title"])
	switch {
	case title != "" && id != "":
		return fmt.Sprintf("%s [%s]", title, id)
	case title != "":
		return title
	case id != "":
		return id
	default:
		return "track"
	}
}

func fallback(value, def string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return def
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

// Recorder keeps published events in memory. Tests and dry runs use it.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
}

// Recorded is one event captured by a Recorder.
type Recorded struct {
	Event   Event
	Payload Payload
}

// Publish implements Service.
func (r *Recorder) Publish(_ context.Context, event Event, payload Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Recorded{Event: event, Payload: payload})
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Recorded(nil), r.events...)
}

// Count returns how many times event was published.
func (r *Recorder) Count(event Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.events {
		if rec.Event == event {
			n++
		}
	}
	return n
}
