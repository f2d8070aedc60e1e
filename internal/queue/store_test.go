package queue_test

import (
	"context"
	"testing"
	"time"

	"loopdeck/internal/queue"
	"loopdeck/internal/testsupport"
)

func TestIngestIsIdempotentOnSourceID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first, created, err := store.Ingest(ctx, queue.NewTrack{SourceID: "vid-1", Title: "Song", DurationSeconds: 45})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if !created || first.Status != queue.StatusFetched {
		t.Fatalf("expected new fetched track, got created=%v status=%s", created, first.Status)
	}

	again, created, err := store.Ingest(ctx, queue.NewTrack{SourceID: "vid-1", Title: "Other"})
	if err != nil {
		t.Fatalf("second Ingest failed: %v", err)
	}
	if created || again.ID != first.ID || again.Title != "Song" {
		t.Fatalf("expected existing track returned unchanged, got created=%v %+v", created, again)
	}

	if _, _, err := store.Ingest(ctx, queue.NewTrack{SourceID: "  "}); err == nil {
		t.Fatal("expected error for empty source id")
	}
}

func TestClaimCompleteAndStageResult(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.NewTrack(t, store, "vid-1", 45)

	item, err := store.ClaimNext(ctx, queue.StatusFetched, queue.StatusFiltering)
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if item == nil || item.Status != queue.StatusFiltering || item.LastHeartbeat == nil {
		t.Fatalf("unexpected claim result %+v", item)
	}
	if again, err := store.ClaimNext(ctx, queue.StatusFetched, queue.StatusFiltering); err != nil || again != nil {
		t.Fatalf("expected nothing left to claim, got %+v err=%v", again, err)
	}

	score := 0.6
	item.VocalScore = &score
	item.Artifacts.RawAudio = "/staging/raw/vid-1.wav"
	item.Artifacts.SetMetadata("metadata/vid-1_segment.json", "/staging/metadata/vid-1_segment.json")
	item.Status = queue.StatusFiltered
	ok, err := store.CompleteStage(ctx, item, queue.StatusFiltering)
	if err != nil || !ok {
		t.Fatalf("CompleteStage = %v, %v", ok, err)
	}

	result, err := store.StageResult(ctx, "vid-1", queue.StatusFiltered)
	if err != nil {
		t.Fatalf("StageResult failed: %v", err)
	}
	if result == nil || result.Executions != 1 || result.VocalScore == nil || *result.VocalScore != 0.6 {
		t.Fatalf("unexpected stage result %+v", result)
	}
	if result.Artifacts.RawAudio != "/staging/raw/vid-1.wav" || len(result.Artifacts.Metadata) != 1 {
		t.Fatalf("artifacts not cached: %+v", result.Artifacts)
	}

	stored, err := store.GetBySourceID(ctx, "vid-1")
	if err != nil {
		t.Fatalf("GetBySourceID failed: %v", err)
	}
	if stored.Status != queue.StatusFiltered || stored.Score() != 0.6 || stored.Stage() != queue.StatusFiltered {
		t.Fatalf("unexpected stored track %+v", stored)
	}
}

func TestCompleteStageLosesToRejection(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.NewTrack(t, store, "vid-1", 45)

	item, err := store.ClaimNext(ctx, queue.StatusFetched, queue.StatusFiltering)
	if err != nil || item == nil {
		t.Fatalf("ClaimNext = %v, %v", item, err)
	}
	previous, err := store.Reject(ctx, "vid-1", "RightsRejected", "operator rejected")
	if err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if previous != queue.StatusFiltering {
		t.Fatalf("expected previous status filtering, got %s", previous)
	}

	item.Status = queue.StatusFiltered
	ok, err := store.CompleteStage(ctx, item, queue.StatusFiltering)
	if err != nil {
		t.Fatalf("CompleteStage failed: %v", err)
	}
	if ok {
		t.Fatal("expected stale completion to be a no-op")
	}
	if result, _ := store.StageResult(ctx, "vid-1", queue.StatusFiltered); result != nil {
		t.Fatalf("expected no cached result after lost claim, got %+v", result)
	}
	stored, _ := store.GetBySourceID(ctx, "vid-1")
	if stored.Status != queue.StatusRejected || stored.RejectionReason != "RightsRejected" {
		t.Fatalf("unexpected stored track %+v", stored)
	}

	if previous, err := store.Reject(ctx, "vid-1", "RightsRejected", ""); err != nil || previous != "" {
		t.Fatalf("expected repeated reject to be a no-op, got %q %v", previous, err)
	}
}

func TestRejectItemKeepsStageEvidence(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.NewTrack(t, store, "vid-1", 45)

	item, err := store.ClaimNext(ctx, queue.StatusFetched, queue.StatusFiltering)
	if err != nil || item == nil {
		t.Fatalf("ClaimNext = %v, %v", item, err)
	}
	score := 0.12
	item.VocalScore = &score
	item.Artifacts.RawAudio = "/cache/vid-1.wav"
	if _, err := store.RejectItem(ctx, item, "LowVocalPresence", "vocal score 0.120 below threshold 0.200"); err != nil {
		t.Fatalf("RejectItem failed: %v", err)
	}

	stored, _ := store.GetBySourceID(ctx, "vid-1")
	if stored.Status != queue.StatusRejected || stored.RejectionReason != "LowVocalPresence" {
		t.Fatalf("unexpected stored track %+v", stored)
	}
	if stored.VocalScore == nil || *stored.VocalScore != score {
		t.Fatalf("expected vocal score %.2f kept, got %v", score, stored.VocalScore)
	}
	if stored.Artifacts.RawAudio != "/cache/vid-1.wav" {
		t.Fatalf("expected raw audio ref kept, got %q", stored.Artifacts.RawAudio)
	}
	listed, err := store.List(ctx, queue.StatusRejected)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	rejected := 0
	for _, it := range listed {
		if it.SourceID == "vid-1" && it.VocalScore != nil {
			rejected++
		}
	}
	if rejected != 1 {
		t.Fatalf("expected rejected track listable with its score, got %d", rejected)
	}
}

func TestClaimHonorsNotBeforeAndReview(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	testsupport.NewTrack(t, store, "later", 45)
	testsupport.NewTrack(t, store, "held", 45)

	later, _ := store.GetBySourceID(ctx, "later")
	until := now.Add(30 * time.Second)
	later.NotBefore = &until
	later.Attempts = 1
	if err := store.Update(ctx, later); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := store.FlagReview(ctx, "held", "SeamDiscontinuity"); err != nil {
		t.Fatalf("FlagReview failed: %v", err)
	}

	if item, err := store.ClaimNext(ctx, queue.StatusFetched, queue.StatusFiltering); err != nil || item != nil {
		t.Fatalf("expected no claimable track, got %+v err=%v", item, err)
	}

	now = now.Add(time.Minute)
	item, err := store.ClaimNext(ctx, queue.StatusFetched, queue.StatusFiltering)
	if err != nil || item == nil || item.SourceID != "later" {
		t.Fatalf("expected delayed track after NotBefore, got %+v err=%v", item, err)
	}

	review, err := store.ListReview(ctx)
	if err != nil || len(review) != 1 || review[0].ReviewReason != "SeamDiscontinuity" {
		t.Fatalf("unexpected review list %+v err=%v", review, err)
	}
	if ok, err := store.ClearReview(ctx, "held"); err != nil || !ok {
		t.Fatalf("ClearReview = %v, %v", ok, err)
	}
	if ok, _ := store.ClearReview(ctx, "held"); ok {
		t.Fatal("expected second ClearReview to report false")
	}
	item, err = store.ClaimNext(ctx, queue.StatusFetched, queue.StatusFiltering)
	if err != nil || item == nil || item.SourceID != "held" {
		t.Fatalf("expected approved track claimable, got %+v err=%v", item, err)
	}
}

func TestClaimSpecificTrack(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewTrack(t, store, "first", 45)
	testsupport.NewTrack(t, store, "second", 45)

	item, err := store.Claim(ctx, "second", queue.StatusFetched, queue.StatusFiltering)
	if err != nil || item == nil || item.SourceID != "second" || item.Status != queue.StatusFiltering {
		t.Fatalf("expected second claimed, got %+v err=%v", item, err)
	}
	again, err := store.Claim(ctx, "second", queue.StatusFetched, queue.StatusFiltering)
	if err != nil || again != nil {
		t.Fatalf("expected nothing to claim twice, got %+v err=%v", again, err)
	}
	first, _ := store.GetBySourceID(ctx, "first")
	if first.Status != queue.StatusFetched {
		t.Fatalf("expected first untouched, got %s", first.Status)
	}
}

func TestClaimRejectsMismatchedStatuses(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	if _, err := store.ClaimNext(context.Background(), queue.StatusFetched, queue.StatusSegmenting); err == nil {
		t.Fatal("expected error for mismatched claim statuses")
	}
}

func TestRetryFailedRestoresFailedStage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	item := testsupport.NewTrack(t, store, "vid-1", 45)

	item.Status = queue.StatusFailed
	item.FailedStatus = queue.StatusSegmented
	item.Attempts = 5
	item.ErrorMessage = "transient separation failure"
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	stored, _ := store.GetBySourceID(ctx, "vid-1")
	if stored.Stage() != queue.StatusSegmented {
		t.Fatalf("expected failed track to report segmented stage, got %s", stored.Stage())
	}

	n, err := store.RetryFailed(ctx, "vid-1")
	if err != nil || n != 1 {
		t.Fatalf("RetryFailed = %d, %v", n, err)
	}
	stored, _ = store.GetBySourceID(ctx, "vid-1")
	if stored.Status != queue.StatusSegmented || stored.Attempts != 0 || stored.ErrorMessage != "" || stored.FailedStatus != "" {
		t.Fatalf("unexpected retried track %+v", stored)
	}
}

func TestReingestResetsTrackAndStageResults(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.NewTrack(t, store, "vid-1", 45)

	item, _ := store.ClaimNext(ctx, queue.StatusFetched, queue.StatusFiltering)
	item.Status = queue.StatusFiltered
	if ok, err := store.CompleteStage(ctx, item, queue.StatusFiltering); err != nil || !ok {
		t.Fatalf("CompleteStage = %v, %v", ok, err)
	}
	if _, err := store.Reject(ctx, "vid-1", "LowVocalPresence", ""); err != nil {
		t.Fatalf("Reject failed: %v", err)
	}

	found, err := store.Reingest(ctx, "vid-1")
	if err != nil || !found {
		t.Fatalf("Reingest = %v, %v", found, err)
	}
	stored, _ := store.GetBySourceID(ctx, "vid-1")
	if stored.Status != queue.StatusFetched || stored.RejectionReason != "" || stored.VocalScore != nil {
		t.Fatalf("unexpected reingested track %+v", stored)
	}
	if result, _ := store.StageResult(ctx, "vid-1", queue.StatusFiltered); result != nil {
		t.Fatalf("expected stage results dropped, got %+v", result)
	}
	if found, _ := store.Reingest(ctx, "missing"); found {
		t.Fatal("expected Reingest of unknown source to report false")
	}
}

func TestResetStuckProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	cases := []struct {
		sourceID string
		status   queue.Status
		want     queue.Status
	}{
		{"a", queue.StatusFiltering, queue.StatusFetched},
		{"b", queue.StatusSegmenting, queue.StatusFiltered},
		{"c", queue.StatusSeparating, queue.StatusSegmented},
		{"d", queue.StatusAligning, queue.StatusSeparated},
		{"e", queue.StatusRightsChecking, queue.StatusAligned},
		{"f", queue.StatusPublishing, queue.StatusRightsChecked},
		{"g", queue.StatusPublished, queue.StatusPublished},
	}
	for _, tc := range cases {
		item := testsupport.NewTrack(t, store, tc.sourceID, 45)
		item.Status = tc.status
		if err := store.Update(ctx, item); err != nil {
			t.Fatalf("Update %s failed: %v", tc.sourceID, err)
		}
	}

	n, err := store.ResetStuckProcessing(ctx)
	if err != nil {
		t.Fatalf("ResetStuckProcessing failed: %v", err)
	}
	if n != 6 {
		t.Fatalf("expected 6 tracks reset, got %d", n)
	}
	for _, tc := range cases {
		stored, _ := store.GetBySourceID(ctx, tc.sourceID)
		if stored.Status != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.sourceID, tc.want, stored.Status)
		}
	}
}

func TestReclaimStaleProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	testsupport.NewTrack(t, store, "stale", 45)
	testsupport.NewTrack(t, store, "fresh", 45)
	if _, err := store.ClaimNext(ctx, queue.StatusFetched, queue.StatusFiltering); err != nil {
		t.Fatal(err)
	}
	now = now.Add(5 * time.Minute)
	fresh, err := store.ClaimNext(ctx, queue.StatusFetched, queue.StatusFiltering)
	if err != nil || fresh == nil || fresh.SourceID != "fresh" {
		t.Fatalf("unexpected second claim %+v err=%v", fresh, err)
	}

	n, err := store.ReclaimStaleProcessing(ctx, now.Add(-2*time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("ReclaimStaleProcessing = %d, %v", n, err)
	}
	stale, _ := store.GetBySourceID(ctx, "stale")
	if stale.Status != queue.StatusFetched {
		t.Fatalf("expected stale track reclaimed, got %s", stale.Status)
	}
	freshStored, _ := store.GetBySourceID(ctx, "fresh")
	if freshStored.Status != queue.StatusFiltering {
		t.Fatalf("expected fresh claim untouched, got %s", freshStored.Status)
	}
}

func TestHealthCounts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewTrack(t, store, "waiting", 45)
	rejected := testsupport.NewTrack(t, store, "short", 35)
	rejected.Status = queue.StatusRejected
	rejected.RejectionReason = "DurationTooShort"
	if err := store.Update(ctx, rejected); err != nil {
		t.Fatal(err)
	}
	if err := store.FlagReview(ctx, "waiting", "SeparationBelowThreshold"); err != nil {
		t.Fatal(err)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Total != 2 || health.Rejected != 1 || health.Waiting != 1 || health.Review != 1 {
		t.Fatalf("unexpected health %+v", health)
	}

	diag, err := store.CheckHealth(ctx)
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if !diag.DatabaseExists || !diag.TableExists || !diag.IntegrityCheck || len(diag.MissingColumns) != 0 || diag.TotalItems != 2 {
		t.Fatalf("unexpected diagnostics %+v", diag)
	}
}

func TestListFiltersByStatusInPlaylistOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	for i, id := range []string{"vid-c", "vid-a", "vid-b"} {
		if _, _, err := store.Ingest(ctx, queue.NewTrack{SourceID: id, Position: 3 - i, DurationSeconds: 45}); err != nil {
			t.Fatalf("ingest %s: %v", id, err)
		}
	}
	failed, err := store.GetBySourceID(ctx, "vid-a")
	if err != nil || failed == nil {
		t.Fatalf("get vid-a: %v", err)
	}
	failed.Status = queue.StatusFailed
	failed.FailedStatus = queue.StatusFiltered
	if err := store.Update(ctx, failed); err != nil {
		t.Fatal(err)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].SourceID != "vid-b" || all[2].SourceID != "vid-c" {
		t.Fatalf("expected playlist order b, a, c; got %v", sourceIDs(all))
	}

	some, err := store.List(ctx, queue.StatusFailed, queue.StatusPublished)
	if err != nil {
		t.Fatalf("List filtered: %v", err)
	}
	if len(some) != 1 || some[0].SourceID != "vid-a" || some[0].FailedStatus != queue.StatusFiltered {
		t.Fatalf("expected only vid-a, got %v", sourceIDs(some))
	}

	n, err := store.RetryFailed(ctx, "vid-a", "vid-missing")
	if err != nil || n != 1 {
		t.Fatalf("RetryFailed = %d, %v", n, err)
	}
}

func sourceIDs(items []*queue.Item) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.SourceID
	}
	return out
}
