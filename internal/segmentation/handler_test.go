package segmentation_test

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"loopdeck/internal/audio/pcm"
	"loopdeck/internal/config"
	"loopdeck/internal/logging"
	"loopdeck/internal/queue"
	"loopdeck/internal/segmentation"
	"loopdeck/internal/services"
	"loopdeck/internal/services/ffmpeg"
	"loopdeck/internal/staging"
	"loopdeck/internal/testsupport"
)

func newHandler(t *testing.T, cfg *config.Config) (*segmentation.Handler, *queue.Store) {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	h := segmentation.NewHandler(cfg, store, ffmpeg.New(""), logging.NewNop())
	if health := h.HealthCheck(context.Background()); !health.Ready {
		t.Fatalf("expected ready handler, got %+v", health)
	}
	return h, store
}

func stagedTrack(t *testing.T, cfg *config.Config, store *queue.Store, id string) *queue.Item {
	t.Helper()
	item := testsupport.NewTrack(t, store, id, 90)
	item.Artifacts.RawAudio = testsupport.WriteWAV(t, t.TempDir(), id+".wav", testsupport.PopSong())
	score := 0.9
	item.VocalScore = &score
	return item
}

func TestHandlerStagesLoopAndMetadata(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	h, store := newHandler(t, cfg)
	item := stagedTrack(t, cfg, store, "vid1")

	ctx := context.Background()
	if err := h.Prepare(ctx, item); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := h.Execute(ctx, item); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	wantAudio := staging.Path(cfg.OutputDir(), staging.SegmentKey("vid1"))
	if item.Artifacts.SegmentAudio != wantAudio {
		t.Fatalf("segment audio = %q, want %q", item.Artifacts.SegmentAudio, wantAudio)
	}
	loop, err := pcm.ReadFile(wantAudio)
	if err != nil {
		t.Fatalf("read loop: %v", err)
	}

	var seg segmentation.Segment
	if err := json.Unmarshal(item.Artifacts.Segment, &seg); err != nil {
		t.Fatalf("decode segment: %v", err)
	}
	if seg.SourceID != "vid1" || seg.VocalScore != 0.9 {
		t.Fatalf("unexpected segment %+v", seg)
	}
	if diff := loop.Duration() - seg.LoopSeconds; diff > 0.001 || diff < -0.001 {
		t.Fatalf("staged loop is %.3fs, metadata says %.3fs", loop.Duration(), seg.LoopSeconds)
	}

	metaPath := item.Artifacts.Metadata[staging.SegmentMetaKey("vid1")]
	data, err := os.ReadFile(metaPath)
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	for _, key := range []string{"start", "end", "crossfade_ms", "bpm", "key", "vocal_score", "loudness_lufs"} {
		if _, ok := doc[key]; !ok {
			t.Fatalf("metadata missing %q: %s", key, data)
		}
	}
	if item.NeedsReview {
		t.Fatalf("clean loop should not need review: %s", item.ReviewReason)
	}
	if item.ProgressPercent != 100 {
		t.Fatalf("expected completed progress, got %v", item.ProgressPercent)
	}
}

func TestHandlerFlagsReviewWhenPeakCeilingIsExceeded(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Segmentation.TruePeakCeiling = -20
	h, store := newHandler(t, cfg)
	item := stagedTrack(t, cfg, store, "hot")

	if err := h.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !item.NeedsReview || !strings.Contains(item.ReviewReason, services.FlagTruePeakExceeded) {
		t.Fatalf("expected TruePeakExceeded review, got needs_review=%v reason=%q", item.NeedsReview, item.ReviewReason)
	}
}

func TestHandlerFailsWithoutRawAudio(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	h, store := newHandler(t, cfg)
	item := testsupport.NewTrack(t, store, "missing", 90)

	err := h.Execute(context.Background(), item)
	if err == nil || services.Classify(err) != services.OutcomeFailed {
		t.Fatalf("expected permanent failure, got %v", err)
	}
}
