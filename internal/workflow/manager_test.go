package workflow_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"loopdeck/internal/notifications"
	"loopdeck/internal/playlist"
	"loopdeck/internal/queue"
	"loopdeck/internal/rights"
	"loopdeck/internal/services"
	"loopdeck/internal/stage"
	"loopdeck/internal/testsupport"
	"loopdeck/internal/workflow"
)

var pipeline = []string{
	workflow.PoolFilter, workflow.PoolSegment, workflow.PoolSeparate,
	workflow.PoolAlign, workflow.PoolRights, workflow.PoolPublish,
}

func TestSubmitAdvancesTrackThroughEveryStage(t *testing.T) {
	h := newHarness(t)
	h.useStubs()
	h.track(t, "abc")

	result := h.submit(t, "abc", pipeline...)
	if result.Stage != queue.StatusPublished || result.Executions != 1 {
		t.Fatalf("unexpected final result %+v", result)
	}
	item := h.get(t, "abc")
	if item.Status != queue.StatusPublished {
		t.Fatalf("expected published, got %s", item.Status)
	}
	if item.ProgressPercent != 100 || item.ProgressStage != "Published" {
		t.Fatalf("unexpected progress %s %.0f", item.ProgressStage, item.ProgressPercent)
	}
	for _, name := range pipeline {
		if calls := h.stubs[name].Calls("abc"); calls != 1 {
			t.Fatalf("%s ran %d times, want 1", name, calls)
		}
		if stats := h.poolStats(t, name); stats.Executed != 1 || stats.Failed != 0 {
			t.Fatalf("unexpected %s pool stats %+v", name, stats)
		}
	}
}

func TestSubmitServesCachedResultWithoutRerunning(t *testing.T) {
	h := newHarness(t)
	h.useStubs()
	h.stubs[workflow.PoolFilter].executeHook = func(_ context.Context, item *queue.Item) error {
		score := 0.8
		item.VocalScore = &score
		return nil
	}
	h.track(t, "abc")

	first := h.submit(t, "abc", workflow.PoolFilter)
	second := h.submit(t, "abc", workflow.PoolFilter)

	if first.Executions != 1 || second.Executions != 1 {
		t.Fatalf("expected a single execution, got %d and %d", first.Executions, second.Executions)
	}
	if second.VocalScore == nil || *second.VocalScore != 0.8 {
		t.Fatalf("cached result lost the vocal score: %+v", second)
	}
	if calls := h.stubs[workflow.PoolFilter].Calls("abc"); calls != 1 {
		t.Fatalf("filter ran %d times, want 1", calls)
	}
	stats := h.poolStats(t, workflow.PoolFilter)
	if stats.Executed != 1 || stats.Cached != 1 {
		t.Fatalf("expected executed=1 cached=1, got %+v", stats)
	}
}

func TestReingestDropsCachedResults(t *testing.T) {
	h := newHarness(t)
	h.useStubs()
	h.track(t, "abc")
	h.submit(t, "abc", workflow.PoolFilter, workflow.PoolSegment)

	found, err := h.mgr.Reingest(context.Background(), "abc")
	if err != nil || !found {
		t.Fatalf("Reingest: found=%v err=%v", found, err)
	}
	if item := h.get(t, "abc"); item.Status != queue.StatusFetched {
		t.Fatalf("expected fetched after reingest, got %s", item.Status)
	}
	h.submit(t, "abc", workflow.PoolFilter)
	if calls := h.stubs[workflow.PoolFilter].Calls("abc"); calls != 2 {
		t.Fatalf("filter should run again after reingest, ran %d times", calls)
	}
}

func TestSubmitValidatesStageAndStatus(t *testing.T) {
	h := newHarness(t)
	h.useStubs()
	h.track(t, "abc")
	ctx := context.Background()

	if _, err := h.mgr.Submit(ctx, "abc", "mastering"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unknown stage, got %v", err)
	}
	if _, err := h.mgr.Submit(ctx, "missing", workflow.PoolFilter); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for unknown track, got %v", err)
	}
	_, err := h.mgr.Submit(ctx, "abc", workflow.PoolSeparate)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for out-of-order stage, got %v", err)
	}
	if !strings.Contains(err.Error(), string(queue.StatusFetched)) {
		t.Fatalf("error should name the current status: %v", err)
	}
	if calls := h.stubs[workflow.PoolSeparate].Calls("abc"); calls != 0 {
		t.Fatalf("separate ran %d times for a fetched track", calls)
	}
}

func TestRejectionFromStageIsTerminal(t *testing.T) {
	h := newHarness(t)
	h.useStubs()
	h.stubs[workflow.PoolFilter].executeHook = func(_ context.Context, item *queue.Item) error {
		score := 0.05
		item.VocalScore = &score
		item.Artifacts.RawChecksum = "deadbeef"
		return services.Reject(services.ReasonLowVocalPresence, "vocal score 0.050 below threshold 0.350")
	}
	h.track(t, "abc")

	_, err := h.mgr.Submit(context.Background(), "abc", workflow.PoolFilter)
	if err == nil || !strings.Contains(err.Error(), services.ReasonLowVocalPresence) {
		t.Fatalf("expected rejection to be reported, got %v", err)
	}
	item := h.get(t, "abc")
	if item.Status != queue.StatusRejected || item.RejectionReason != services.ReasonLowVocalPresence {
		t.Fatalf("expected rejected LowVocalPresence, got %s %q", item.Status, item.RejectionReason)
	}
	if item.Attempts != 0 {
		t.Fatalf("rejections must not count attempts, got %d", item.Attempts)
	}
	if item.VocalScore == nil || *item.VocalScore != 0.05 || item.Artifacts.RawChecksum != "deadbeef" {
		t.Fatalf("rejected track lost the filter's evidence: score=%v checksum=%q", item.VocalScore, item.Artifacts.RawChecksum)
	}
	if stats := h.poolStats(t, workflow.PoolFilter); stats.Failed != 0 || stats.Executed != 0 {
		t.Fatalf("rejection should not count as failure or execution: %+v", stats)
	}
}

func TestTransientFailureRetriesThenFails(t *testing.T) {
	h := newHarness(t, testsupport.WithMaxAttempts(2))
	h.useStubs()
	failing := true
	h.stubs[workflow.PoolFilter].executeHook = func(context.Context, *queue.Item) error {
		if failing {
			return services.Wrap(services.ErrTransient, "eligibility", "download audio", "", errors.New("connection reset"))
		}
		return nil
	}
	h.track(t, "abc")
	ctx := context.Background()

	if _, err := h.mgr.Submit(ctx, "abc", workflow.PoolFilter); err == nil {
		t.Fatal("expected first attempt to fail")
	}
	item := h.get(t, "abc")
	if item.Status != queue.StatusFetched || item.Attempts != 1 || item.NotBefore == nil {
		t.Fatalf("expected retry scheduled, got status=%s attempts=%d not_before=%v", item.Status, item.Attempts, item.NotBefore)
	}
	if !strings.Contains(item.ErrorMessage, "connection reset") {
		t.Fatalf("expected error message recorded, got %q", item.ErrorMessage)
	}
	if _, err := h.mgr.Submit(ctx, "abc", workflow.PoolFilter); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("track in backoff should not be claimable, got %v", err)
	}

	if err := h.store.Wake(ctx, "abc"); err != nil {
		t.Fatalf("Wake: %v", err)
	}
	if _, err := h.mgr.Submit(ctx, "abc", workflow.PoolFilter); err == nil {
		t.Fatal("expected second attempt to fail")
	}
	item = h.get(t, "abc")
	if item.Status != queue.StatusFailed || item.FailedStatus != queue.StatusFetched || item.Attempts != 2 {
		t.Fatalf("expected failed after the retry budget, got status=%s failed_status=%s attempts=%d",
			item.Status, item.FailedStatus, item.Attempts)
	}
	if n := h.notified(notifications.EventTrackFailed); n != 1 {
		t.Fatalf("expected one failure notification, got %d", n)
	}
	if stats := h.poolStats(t, workflow.PoolFilter); stats.Failed != 1 {
		t.Fatalf("expected failed=1, got %+v", stats)
	}

	failing = false
	n, err := h.mgr.RetryFailed(ctx, "abc")
	if err != nil || n != 1 {
		t.Fatalf("RetryFailed: n=%d err=%v", n, err)
	}
	item = h.get(t, "abc")
	if item.Status != queue.StatusFetched || item.Attempts != 0 {
		t.Fatalf("expected fetched with a fresh budget, got %s attempts=%d", item.Status, item.Attempts)
	}
	h.submit(t, "abc", workflow.PoolFilter)
	if item := h.get(t, "abc"); item.Status != queue.StatusFiltered || item.ErrorMessage != "" {
		t.Fatalf("expected filtered with error cleared, got %s %q", item.Status, item.ErrorMessage)
	}
}

func TestPermanentFailureSkipsRetries(t *testing.T) {
	h := newHarness(t, testsupport.WithMaxAttempts(5))
	h.useStubs()
	h.stubs[workflow.PoolSegment].executeHook = func(context.Context, *queue.Item) error {
		return services.Wrap(services.ErrValidation, "segmentation", "decode", "corrupt audio", nil)
	}
	h.track(t, "abc")
	h.submit(t, "abc", workflow.PoolFilter)

	if _, err := h.mgr.Submit(context.Background(), "abc", workflow.PoolSegment); err == nil {
		t.Fatal("expected segment to fail")
	}
	item := h.get(t, "abc")
	if item.Status != queue.StatusFailed || item.FailedStatus != queue.StatusFiltered {
		t.Fatalf("expected failed from filtered, got %s/%s", item.Status, item.FailedStatus)
	}
}

func TestDeferralWaitsWithoutSpendingAttempts(t *testing.T) {
	h := newHarness(t, testsupport.WithMaxAttempts(1))
	h.useStubs()
	h.stubs[workflow.PoolRights].executeHook = func(context.Context, *queue.Item) error {
		return services.Defer(time.Hour, "awaiting clearance")
	}
	h.track(t, "abc")
	h.submit(t, "abc", workflow.PoolFilter, workflow.PoolSegment, workflow.PoolSeparate, workflow.PoolAlign)
	ctx := context.Background()

	before := time.Now()
	for range 2 {
		if _, err := h.mgr.Submit(ctx, "abc", workflow.PoolRights); err == nil {
			t.Fatal("expected deferral to leave the stage incomplete")
		}
		item := h.get(t, "abc")
		if item.Status != queue.StatusAligned || item.Attempts != 0 {
			t.Fatalf("expected aligned with no attempts spent, got %s attempts=%d", item.Status, item.Attempts)
		}
		if item.NotBefore == nil || item.NotBefore.Before(before.Add(50*time.Minute)) {
			t.Fatalf("expected deferral about an hour out, got %v", item.NotBefore)
		}
		if item.ProgressMessage != "awaiting clearance" {
			t.Fatalf("expected deferral reason as progress, got %q", item.ProgressMessage)
		}
		ready, err := h.store.CountReady(ctx, queue.StatusAligned)
		if err != nil || ready != 0 {
			t.Fatalf("deferred track should not count as ready: n=%d err=%v", ready, err)
		}
		if err := h.store.Wake(ctx, "abc"); err != nil {
			t.Fatalf("Wake: %v", err)
		}
	}
	if calls := h.stubs[workflow.PoolRights].Calls("abc"); calls != 2 {
		t.Fatalf("rights ran %d times, want 2", calls)
	}
}

func TestReviewHoldsTrackUntilApproved(t *testing.T) {
	h := newHarness(t)
	h.useStubs()
	h.stubs[workflow.PoolSegment].executeHook = func(_ context.Context, item *queue.Item) error {
		item.NeedsReview = true
		item.ReviewReason = services.FlagSeamDiscontinuity
		return nil
	}
	h.track(t, "abc")
	h.submit(t, "abc", workflow.PoolFilter, workflow.PoolSegment)
	ctx := context.Background()

	item := h.get(t, "abc")
	if item.Status != queue.StatusSegmented || !item.NeedsReview || item.ReviewReason != services.FlagSeamDiscontinuity {
		t.Fatalf("expected segmented under review, got %s review=%v %q", item.Status, item.NeedsReview, item.ReviewReason)
	}
	if n := h.notified(notifications.EventReviewRequired); n != 1 {
		t.Fatalf("expected one review notification, got %d", n)
	}
	if _, err := h.mgr.Submit(ctx, "abc", workflow.PoolSeparate); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("held track should not be claimable, got %v", err)
	}

	if err := h.mgr.ApproveReview(ctx, "abc"); err != nil {
		t.Fatalf("ApproveReview: %v", err)
	}
	if err := h.mgr.ApproveReview(ctx, "abc"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("second approval should fail validation, got %v", err)
	}
	h.submit(t, "abc", workflow.PoolSeparate)
	if item := h.get(t, "abc"); item.Status != queue.StatusSeparated || item.NeedsReview {
		t.Fatalf("expected separated without review, got %s review=%v", item.Status, item.NeedsReview)
	}
}

func TestRejectReviewUsesGateReason(t *testing.T) {
	h := newHarness(t)
	h.useStubs()
	flags := map[string]string{
		"seam":       services.FlagSeamDiscontinuity + "," + services.FlagTruePeakExceeded,
		"separation": services.FlagSeparationBelowThreshold,
	}
	h.stubs[workflow.PoolSeparate].executeHook = func(_ context.Context, item *queue.Item) error {
		item.NeedsReview = true
		item.ReviewReason = flags[item.SourceID]
		return nil
	}
	want := map[string]string{
		"seam":       services.ReasonSeamQualityFailure,
		"separation": services.ReasonSeparationQualityFailure,
	}
	for id, reason := range want {
		h.track(t, id)
		h.submit(t, id, workflow.PoolFilter, workflow.PoolSegment, workflow.PoolSeparate)
		if err := h.mgr.RejectReview(context.Background(), id); err != nil {
			t.Fatalf("RejectReview(%s): %v", id, err)
		}
		item := h.get(t, id)
		if item.Status != queue.StatusRejected || item.RejectionReason != reason {
			t.Fatalf("%s: expected rejected %s, got %s %q", id, reason, item.Status, item.RejectionReason)
		}
		if item.NeedsReview {
			t.Fatalf("%s: rejection should clear the review flag", id)
		}
	}
}

func TestComplianceHoldRejectsWithRightsReason(t *testing.T) {
	h := newHarness(t)
	h.useStubs()
	h.stubs[workflow.PoolPublish].executeHook = func(context.Context, *queue.Item) error {
		return services.Wrap(services.ErrComplianceViolation, "publishing", "verify rights", "license state is rejected", nil)
	}
	h.track(t, "abc")
	h.register(t, "abc")
	ctx := context.Background()
	h.submit(t, "abc", workflow.PoolFilter, workflow.PoolSegment, workflow.PoolSeparate, workflow.PoolAlign, workflow.PoolRights)

	if _, err := h.mgr.Submit(ctx, "abc", workflow.PoolPublish); err == nil {
		t.Fatal("expected compliance violation")
	}
	item := h.get(t, "abc")
	if item.Status != queue.StatusRightsChecked || !item.NeedsReview || item.ReviewReason != services.FlagComplianceViolation {
		t.Fatalf("expected compliance hold at rights_checked, got %s review=%v %q", item.Status, item.NeedsReview, item.ReviewReason)
	}

	if _, err := h.mgr.SetLicenseState(ctx, "abc", rights.StateRejected, ""); err != nil {
		t.Fatalf("SetLicenseState: %v", err)
	}
	if err := h.mgr.RejectReview(ctx, "abc"); err != nil {
		t.Fatalf("RejectReview: %v", err)
	}
	item = h.get(t, "abc")
	if item.Status != queue.StatusRejected || item.RejectionReason != services.ReasonRightsRejected {
		t.Fatalf("expected rejected RightsRejected, got %s %q", item.Status, item.RejectionReason)
	}
}

func TestRejectCancelsRunningStage(t *testing.T) {
	h := newHarness(t)
	h.useStubs()
	started := make(chan struct{})
	stopped := make(chan error, 1)
	h.stubs[workflow.PoolSegment].executeHook = func(ctx context.Context, item *queue.Item) error {
		close(started)
		<-ctx.Done()
		stopped <- ctx.Err()
		return ctx.Err()
	}
	h.track(t, "abc")
	h.submit(t, "abc", workflow.PoolFilter)

	ctx := context.Background()
	done := make(chan error, 1)
	go func() {
		_, err := h.mgr.Submit(ctx, "abc", workflow.PoolSegment)
		done <- err
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("segment stage never started")
	}
	if err := h.mgr.Reject(services.WithActor(ctx, "alice"), "abc", services.ReasonSeamQualityFailure, "operator rejected"); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	select {
	case err := <-stopped:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected stage context cancelled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("running stage was not cancelled")
	}
	if err := <-done; err == nil || !strings.Contains(err.Error(), "rejected") {
		t.Fatalf("expected Submit to report the rejection, got %v", err)
	}

	item := h.get(t, "abc")
	if item.Status != queue.StatusRejected || item.RejectionReason != services.ReasonSeamQualityFailure {
		t.Fatalf("expected rejected, got %s %q", item.Status, item.RejectionReason)
	}
	result, err := h.store.StageResult(ctx, "abc", queue.StatusSegmented)
	if err != nil || result != nil {
		t.Fatalf("cancelled stage must not cache a result: %+v %v", result, err)
	}
}

func TestRejectUnknownTrack(t *testing.T) {
	h := newHarness(t)
	h.useStubs()
	if err := h.mgr.Reject(context.Background(), "missing", services.ReasonUnpublished, ""); err == nil {
		t.Fatal("expected error rejecting an unknown track")
	}
}

func TestDaemonDrivesTracksToPublished(t *testing.T) {
	h := newHarness(t)
	h.useStubs()
	ids := []string{"a1", "b2", "c3", "d4"}
	for _, id := range ids {
		h.track(t, id)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.mgr.Start(ctx); err == nil {
		t.Fatal("expected second Start to fail")
	}
	for _, id := range ids {
		waitForStatus(t, h.store, id, queue.StatusPublished)
	}
	status := h.mgr.Status(ctx)
	if !status.Running || status.QueueStats[queue.StatusPublished] != len(ids) {
		t.Fatalf("unexpected status %+v", status)
	}
	if len(status.Pools) != len(pipeline) {
		t.Fatalf("expected %d pools, got %d", len(pipeline), len(status.Pools))
	}
	for _, p := range status.Pools {
		if p.Waiting != 0 {
			t.Fatalf("expected drained %s pool, got %+v", p.Name, p)
		}
	}
	h.mgr.Stop()
	if h.mgr.Status(ctx).Running {
		t.Fatal("expected manager stopped")
	}
	for _, name := range pipeline {
		if stats := h.poolStats(t, name); stats.Executed != int64(len(ids)) || stats.Busy != 0 {
			t.Fatalf("unexpected %s stats %+v", name, stats)
		}
	}
}

func TestStartResetsInterruptedTracks(t *testing.T) {
	h := newHarness(t)
	h.useStubs()
	item := h.track(t, "abc")
	item.Status = queue.StatusSegmenting
	if err := h.store.Update(context.Background(), item); err != nil {
		t.Fatalf("Update: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForStatus(t, h.store, "abc", queue.StatusPublished)
	if calls := h.stubs[workflow.PoolSegment].Calls("abc"); calls != 1 {
		t.Fatalf("segment ran %d times, want 1", calls)
	}
	if calls := h.stubs[workflow.PoolFilter].Calls("abc"); calls != 0 {
		t.Fatalf("filter should not rerun for a reset segmenting track, ran %d", calls)
	}
}

func TestStartRequiresStages(t *testing.T) {
	h := newHarness(t)
	if err := h.mgr.Start(context.Background()); err == nil {
		t.Fatal("expected Start to fail without stages")
	}
}

func TestStatusReportsStageHealth(t *testing.T) {
	h := newHarness(t)
	h.useStubs()
	h.stubs[workflow.PoolSeparate].health = stage.NotReady(workflow.PoolSeparate, "demucs missing")

	status := h.mgr.Status(context.Background())
	health, ok := status.StageHealth[workflow.PoolSeparate]
	if !ok || health.Ready || health.Detail != "demucs missing" {
		t.Fatalf("unexpected separate health %+v", health)
	}
	if !status.StageHealth[workflow.PoolFilter].Ready {
		t.Fatal("expected filter healthy")
	}
}

func TestIngestRecordsCandidatesWithPendingRights(t *testing.T) {
	h := newHarness(t)
	h.useStubs()
	manifest := &playlist.Manifest{
		PlaylistID: h.cfg.Playlist.ID,
		Items: []playlist.Candidate{
			{SourceID: "vid1", Title: "One", Uploader: "Artist", DurationSeconds: 212, License: "youtube"},
			{SourceID: "vid2", Title: "Two", Uploader: "Artist", DurationSeconds: 35, License: "creativeCommon"},
			{SourceID: "vid3", Title: "Three", Uploader: "Band", DurationSeconds: 180, License: "youtube"},
		},
	}
	if err := playlist.WriteManifest(h.cfg.Playlist.ManifestPath, manifest); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}
	ctx := context.Background()

	var seen []string
	report, err := h.mgr.Ingest(ctx, workflow.IngestOptions{
		Progress: func(c playlist.Candidate, created bool) {
			if created {
				seen = append(seen, c.SourceID)
			}
		},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if report.Seen != 3 || report.Created != 3 || report.Existing != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if strings.Join(seen, ",") != "vid1,vid2,vid3" {
		t.Fatalf("unexpected progress order %v", seen)
	}
	for _, c := range manifest.Items {
		item := h.get(t, c.SourceID)
		if item.Status != queue.StatusFetched || item.PlaylistID != h.cfg.Playlist.ID || item.DurationSeconds != c.DurationSeconds {
			t.Fatalf("unexpected track %+v", item)
		}
		rec, err := h.catalog.Store().Rights(ctx, c.SourceID)
		if err != nil {
			t.Fatalf("Rights(%s): %v", c.SourceID, err)
		}
		if rec.State != rights.StatePending || rec.Uploader != c.Uploader {
			t.Fatalf("expected pending record for %s, got %+v", c.SourceID, rec)
		}
	}
	if n := h.notified(notifications.EventIngestCompleted); n != 1 {
		t.Fatalf("expected one ingest notification, got %d", n)
	}

	again, err := h.mgr.Ingest(ctx, workflow.IngestOptions{})
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	if again.Created != 0 || again.Existing != 3 {
		t.Fatalf("re-ingest should be idempotent, got %+v", again)
	}
	if n := h.notified(notifications.EventIngestCompleted); n != 1 {
		t.Fatalf("idempotent ingest should not notify, got %d", n)
	}
}

func TestIngestHonorsLimitAndCursor(t *testing.T) {
	h := newHarness(t)
	h.useStubs()
	manifest := &playlist.Manifest{PlaylistID: h.cfg.Playlist.ID}
	for _, id := range []string{"v1", "v2", "v3", "v4", "v5"} {
		manifest.Items = append(manifest.Items, playlist.Candidate{SourceID: id, Title: id, DurationSeconds: 60})
	}
	if err := playlist.WriteManifest(h.cfg.Playlist.ManifestPath, manifest); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}
	ctx := context.Background()

	first, err := h.mgr.Ingest(ctx, workflow.IngestOptions{Limit: 2})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if first.Created != 2 {
		t.Fatalf("expected 2 created, got %+v", first)
	}
	rest, err := h.mgr.Ingest(ctx, workflow.IngestOptions{Cursor: first.Cursor})
	if err != nil {
		t.Fatalf("resumed Ingest: %v", err)
	}
	if rest.Created != 3 || rest.Existing != 0 {
		t.Fatalf("resume should pick up after the cursor, got %+v", rest)
	}
}

func TestIngestRequiresPlaylist(t *testing.T) {
	h := newHarness(t)
	h.cfg.Playlist.ID = ""
	if _, err := h.mgr.Ingest(context.Background(), workflow.IngestOptions{}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
