package workflow

import (
	"context"
	"testing"
	"time"

	"loopdeck/internal/logging"
	"loopdeck/internal/queue"
	"loopdeck/internal/testsupport"
)

func TestHeartbeatBeatRefreshesUntilStopped(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.NewTrack(t, store, "abc123", 45)
	item, err := store.ClaimNext(ctx, queue.StatusFetched, queue.StatusFiltering)
	if err != nil || item == nil {
		t.Fatalf("ClaimNext: %+v %v", item, err)
	}
	if item.LastHeartbeat == nil {
		t.Fatal("claim should stamp a heartbeat")
	}
	claimedAt := *item.LastHeartbeat

	now := claimedAt.Add(time.Minute)
	store.SetClock(func() time.Time { return now })
	hb := heartbeat{store: store, interval: 10 * time.Millisecond}
	stop := hb.beat(ctx, logging.NewNop(), item.ID)

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := store.GetByID(ctx, item.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.LastHeartbeat != nil && got.LastHeartbeat.After(claimedAt) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("heartbeat never refreshed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	stop()
}

func TestHeartbeatReclaimUsesTimeout(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return start })
	testsupport.NewTrack(t, store, "abc123", 45)
	if _, err := store.ClaimNext(ctx, queue.StatusFetched, queue.StatusFiltering); err != nil {
		t.Fatal(err)
	}

	now := start.Add(30 * time.Second)
	hb := heartbeat{store: store, timeout: time.Minute, now: func() time.Time { return now }}
	if n, err := hb.reclaim(ctx, logging.NewNop()); err != nil || n != 0 {
		t.Fatalf("fresh claim reclaimed: %d %v", n, err)
	}
	now = start.Add(2 * time.Minute)
	if n, err := hb.reclaim(ctx, logging.NewNop()); err != nil || n != 1 {
		t.Fatalf("expected one reclaimed track, got %d %v", n, err)
	}
	got, _ := store.GetBySourceID(ctx, "abc123")
	if got.Status != queue.StatusFetched {
		t.Fatalf("expected fetched after reclaim, got %s", got.Status)
	}

	if n, err := (heartbeat{store: store}).reclaim(ctx, logging.NewNop()); err != nil || n != 0 {
		t.Fatalf("zero timeout must disable reclaim, got %d %v", n, err)
	}
}
