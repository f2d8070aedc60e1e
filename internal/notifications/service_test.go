package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"loopdeck/internal/config"
	"loopdeck/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventTrackFailed, notifications.Payload{"sourceID": "abc"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:          "review required",
			event:         notifications.EventReviewRequired,
			payload:       notifications.Payload{"sourceID": "dQw4w9WgXcQ", "title": "Never Gonna", "reason": "SeamDiscontinuity"},
			expectTitle:   "loopdeck - Review Required",
			expectMessage: "Never Gonna [dQw4w9WgXcQ] needs review: SeamDiscontinuity",
			expectTags:    "loopdeck,review",
		},
		{
			name:           "compliance violation",
			event:          notifications.EventComplianceViolation,
			payload:        notifications.Payload{"sourceID": "abc", "licenseState": "restricted"},
			expectTitle:    "loopdeck - Compliance Violation",
			expectMessage:  "Publish blocked for abc: license state is restricted",
			expectTags:     "loopdeck,compliance,alert",
			expectPriority: "urgent",
		},
		{
			name:           "track failed",
			event:          notifications.EventTrackFailed,
			payload:        notifications.Payload{"title": "Song", "stage": "separating", "error": "out of memory"},
			expectTitle:    "loopdeck - Track Failed",
			expectMessage:  "Song failed in separating: out of memory",
			expectTags:     "loopdeck,error",
			expectPriority: "high",
		},
		{
			name:           "retracted",
			event:          notifications.EventTrackRetracted,
			payload:        notifications.Payload{"sourceID": "abc", "reason": "license restricted"},
			expectTitle:    "loopdeck - Retracted",
			expectMessage:  "Retracted abc: license restricted",
			expectTags:     "loopdeck,catalog,retracted",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := newNtfyRecorder(t, http.StatusOK)
			svc := notifications.NewService(rec.config())
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			got := rec.only(t)
			for _, check := range []struct{ field, got, want string }{
				{"title", got.Header.Get("Title"), tc.expectTitle},
				{"message", got.body, tc.expectMessage},
				{"tags", got.Header.Get("Tags"), tc.expectTags},
				{"priority", got.Header.Get("Priority"), tc.expectPriority},
			} {
				if check.got != check.want {
					t.Fatalf("expected %s %q, got %q", check.field, check.want, check.got)
				}
			}
		})
	}
}

type ntfyRequest struct {
	*http.Request
	body string
}

// ntfyRecorder is an ntfy endpoint that records every POST and answers with
// a fixed status.
type ntfyRecorder struct {
	url string

	mu       sync.Mutex
	requests []ntfyRequest
}

func newNtfyRecorder(t *testing.T, status int) *ntfyRecorder {
	t.Helper()
	rec := &ntfyRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.requests = append(rec.requests, ntfyRequest{Request: r, body: string(body)})
		rec.mu.Unlock()
		if status >= 400 {
			http.Error(w, "topic closed", status)
			return
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	rec.url = srv.URL
	return rec
}

func (r *ntfyRecorder) config() *config.Config {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = r.url
	cfg.Notifications.RequestTimeout = 5
	return &cfg
}

func (r *ntfyRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

func (r *ntfyRecorder) only(t *testing.T) ntfyRequest {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.requests) != 1 {
		t.Fatalf("expected one ntfy request, got %d", len(r.requests))
	}
	return r.requests[0]
}

func TestNtfyServiceIgnoresMutedEvents(t *testing.T) {
	rec := newNtfyRecorder(t, http.StatusOK)
	cfg := rec.config()
	cfg.Notifications.Publish = false
	cfg.Notifications.Failures = false

	svc := notifications.NewService(cfg)
	for _, event := range []notifications.Event{
		notifications.EventTrackPublished,
		notifications.EventIngestCompleted,
		notifications.EventTrackFailed,
		notifications.Event("unknown"),
	} {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"sourceID": "ignored"}); err != nil {
			t.Fatalf("expected no error for muted event %s, got %v", event, err)
		}
	}
	if n := rec.count(); n != 0 {
		t.Fatalf("muted events reached ntfy %d times", n)
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	rec := newNtfyRecorder(t, http.StatusForbidden)
	svc := notifications.NewService(rec.config())
	if err := svc.Publish(context.Background(), notifications.EventTest, nil); err == nil {
		t.Fatal("expected error for 403 response")
	}
}
