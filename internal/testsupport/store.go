package testsupport

import (
	"context"
	"testing"

	"loopdeck/internal/config"
	"loopdeck/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewTrack ingests a fetched Track with the given duration.
func NewTrack(t testing.TB, store *queue.Store, sourceID string, durationSeconds float64) *queue.Item {
	t.Helper()

	item, _, err := store.Ingest(context.Background(), queue.NewTrack{
		SourceID:        sourceID,
		Title:           "Track " + sourceID,
		Uploader:        "uploader",
		DurationSeconds: durationSeconds,
	})
	if err != nil {
		t.Fatalf("store.Ingest: %v", err)
	}
	return item
}
