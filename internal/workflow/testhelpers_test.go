package workflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"loopdeck/internal/catalog"
	"loopdeck/internal/catalog/blob"
	"loopdeck/internal/config"
	"loopdeck/internal/keylock"
	"loopdeck/internal/logging"
	"loopdeck/internal/notifications"
	"loopdeck/internal/playlist"
	"loopdeck/internal/queue"
	"loopdeck/internal/rights"
	"loopdeck/internal/stage"
	"loopdeck/internal/staging"
	"loopdeck/internal/testsupport"
	"loopdeck/internal/workflow"
)

type stubStage struct {
	name        string
	prepareErr  error
	executeHook func(context.Context, *queue.Item) error
	health      stage.Health

	mu    sync.Mutex
	calls map[string]int
}

func newStubStage(name string) *stubStage {
	return &stubStage{name: name, health: stage.Ready(name), calls: make(map[string]int)}
}

func (s *stubStage) Prepare(context.Context, *queue.Item) error {
	return s.prepareErr
}

func (s *stubStage) Execute(ctx context.Context, item *queue.Item) error {
	s.mu.Lock()
	s.calls[item.SourceID]++
	s.mu.Unlock()
	if s.executeHook != nil {
		return s.executeHook(ctx, item)
	}
	return nil
}

func (s *stubStage) HealthCheck(context.Context) stage.Health {
	return s.health
}

func (s *stubStage) Calls(sourceID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[sourceID]
}

type harness struct {
	cfg     *config.Config
	store   *queue.Store
	catalog *catalog.Catalog
	blobs   *blob.Local
	notes   *notifications.Recorder
	mgr     *workflow.Manager
	stubs   map[string]*stubStage
}

// newHarness wires a manager over a fresh queue and catalog. Stages are not
// configured; call useStubs or ConfigureStages.
func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Playlist.ID = "PLtest"
	store := testsupport.MustOpenStore(t, cfg)
	catStore, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() { _ = catStore.Close() })
	blobs, err := blob.NewLocal(cfg.Storage.LocalDir)
	if err != nil {
		t.Fatalf("blob.NewLocal: %v", err)
	}
	notes := &notifications.Recorder{}
	cat := catalog.New(catStore, blobs, keylock.NewLocal(), notes, logging.NewNop())

	source, err := playlist.NewSource(context.Background(), cfg)
	if err != nil {
		t.Fatalf("playlist.NewSource: %v", err)
	}
	mgr := workflow.NewManager(cfg, store, cat, logging.NewNop(),
		workflow.WithNotifier(notes),
		workflow.WithFetcher(playlist.NewFetcher(source)),
	)
	t.Cleanup(mgr.Stop)
	return &harness{
		cfg:     cfg,
		store:   store,
		catalog: cat,
		blobs:   blobs,
		notes:   notes,
		mgr:     mgr,
		stubs:   make(map[string]*stubStage),
	}
}

// useStubs configures a stub for every pool.
func (h *harness) useStubs() {
	for _, name := range []string{
		workflow.PoolFilter, workflow.PoolSegment, workflow.PoolSeparate,
		workflow.PoolAlign, workflow.PoolRights, workflow.PoolPublish,
	} {
		h.stubs[name] = newStubStage(name)
	}
	h.mgr.ConfigureStages(workflow.StageSet{
		Filter:   h.stubs[workflow.PoolFilter],
		Segment:  h.stubs[workflow.PoolSegment],
		Separate: h.stubs[workflow.PoolSeparate],
		Align:    h.stubs[workflow.PoolAlign],
		Rights:   h.stubs[workflow.PoolRights],
		Publish:  h.stubs[workflow.PoolPublish],
	})
}

func (h *harness) track(t *testing.T, sourceID string) *queue.Item {
	t.Helper()
	return testsupport.NewTrack(t, h.store, sourceID, 45)
}

func (h *harness) get(t *testing.T, sourceID string) *queue.Item {
	t.Helper()
	item, err := h.store.GetBySourceID(context.Background(), sourceID)
	if err != nil {
		t.Fatalf("GetBySourceID(%s): %v", sourceID, err)
	}
	if item == nil {
		t.Fatalf("track %s not found", sourceID)
	}
	return item
}

func (h *harness) submit(t *testing.T, sourceID string, stages ...string) *queue.StageResult {
	t.Helper()
	var result *queue.StageResult
	for _, name := range stages {
		var err error
		result, err = h.mgr.Submit(context.Background(), sourceID, name)
		if err != nil {
			t.Fatalf("Submit(%s, %s): %v", sourceID, name, err)
		}
	}
	return result
}

func (h *harness) register(t *testing.T, sourceID string) {
	t.Helper()
	rec := rights.NewRecord(sourceID, "uploader", "Standard YouTube License", h.cfg.Rights.AcquisitionMethod, time.Now())
	if _, err := h.catalog.RegisterTrack(context.Background(), rec); err != nil {
		t.Fatalf("RegisterTrack(%s): %v", sourceID, err)
	}
}

func (h *harness) notified(event notifications.Event) int {
	count := 0
	for _, e := range h.notes.Events() {
		if e.Event == event {
			count++
		}
	}
	return count
}

func (h *harness) poolStats(t *testing.T, name string) workflow.PoolStatus {
	t.Helper()
	for _, p := range h.mgr.PoolStats() {
		if p.Name == name {
			return p
		}
	}
	t.Fatalf("pool %s not configured", name)
	return workflow.PoolStatus{}
}

func writeArtifact(t *testing.T, out, key string) string {
	t.Helper()
	return testsupport.WriteArtifact(t, staging.Path(out, key))
}

func waitForStatus(t *testing.T, store *queue.Store, sourceID string, want queue.Status) *queue.Item {
	t.Helper()
	return waitFor(t, store, sourceID, string(want), func(item *queue.Item) bool { return item.Status == want })
}

// waitFor polls the queue until cond holds for sourceID.
func waitFor(t *testing.T, store *queue.Store, sourceID, what string, cond func(*queue.Item) bool) *queue.Item {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		item, err := store.GetBySourceID(context.Background(), sourceID)
		if err != nil {
			t.Fatalf("GetBySourceID(%s): %v", sourceID, err)
		}
		if item != nil && cond(item) {
			return item
		}
		if time.Now().After(deadline) {
			got := "missing"
			if item != nil {
				got = string(item.Status)
			}
			t.Fatalf("track %s stuck at %s waiting for %s", sourceID, got, what)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
