package catalog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"loopdeck/internal/catalog"
	"loopdeck/internal/logging"
	"loopdeck/internal/rights"
	"loopdeck/internal/services"
	"loopdeck/internal/staging"
)

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestGateOutcomes(t *testing.T) {
	f := newFixture(t)
	gate := catalog.NewGate(f.cfg, f.queue, f.catalog, logging.NewNop())
	ctx := context.Background()

	item := f.stagedItem(t, "abc")
	if err := gate.Prepare(ctx, item); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	var deferral *services.DeferError
	if err := gate.Execute(ctx, item); !errors.As(err, &deferral) || deferral.Delay != f.cfg.Rights.Recheck() {
		t.Fatalf("pending rights should defer for %s, got %v", f.cfg.Rights.Recheck(), err)
	}

	f.clear(t, "abc")
	if err := gate.Execute(ctx, item); err != nil {
		t.Fatalf("cleared rights should pass, got %v", err)
	}
	if item.Artifacts.Metadata[staging.RightsMetaKey("abc")] == "" {
		t.Fatal("expected staged rights document")
	}

	other := f.stagedItem(t, "def")
	if _, err := f.catalog.SetLicenseState(ctx, "def", rights.StateRejected, ""); err != nil {
		t.Fatal(err)
	}
	var rejection *services.RejectionError
	if err := gate.Execute(ctx, other); !errors.As(err, &rejection) || rejection.Reason != services.ReasonRightsRejected {
		t.Fatalf("expected RightsRejected, got %v", err)
	}
}

func TestGateCreatesMissingRecord(t *testing.T) {
	f := newFixture(t)
	gate := catalog.NewGate(f.cfg, f.queue, f.catalog, logging.NewNop())
	item := f.stagedItem(t, "abc")
	item.SourceID = "unregistered"

	var deferral *services.DeferError
	if err := gate.Execute(context.Background(), item); !errors.As(err, &deferral) {
		t.Fatalf("expected deferral, got %v", err)
	}
	rec, err := f.store.Rights(context.Background(), "unregistered")
	if err != nil || rec.State != rights.StatePending {
		t.Fatalf("expected pending record, got %+v (%v)", rec, err)
	}
}

func TestPublisherRereadsRightsBeforePublishing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gate := catalog.NewGate(f.cfg, f.queue, f.catalog, logging.NewNop())
	publisher := catalog.NewPublisher(f.cfg, f.queue, f.catalog, logging.NewNop())

	item := f.stagedItem(t, "abc")
	f.clear(t, "abc")
	if err := gate.Execute(ctx, item); err != nil {
		t.Fatalf("gate: %v", err)
	}
	if _, err := f.catalog.SetLicenseState(ctx, "abc", rights.StateRestricted, ""); err != nil {
		t.Fatal(err)
	}

	if err := publisher.Prepare(ctx, item); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	err := publisher.Execute(ctx, item)
	if services.Classify(err) != services.OutcomeCompliance {
		t.Fatalf("expected compliance violation after downgrade, got %v", err)
	}
	if f.exists(t, staging.RawKey("abc")) {
		t.Fatal("raw audio must not be published after a downgrade")
	}
}

func TestPublisherPublishesClearedTrack(t *testing.T) {
	f := newFixture(t)
	publisher := catalog.NewPublisher(f.cfg, f.queue, f.catalog, logging.NewNop())
	item := f.stagedItem(t, "abc")
	f.clear(t, "abc")
	if err := publisher.Execute(context.Background(), item); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if item.ProgressPercent != 100 {
		t.Fatalf("expected completed progress, got %v", item.ProgressPercent)
	}
	if health := publisher.HealthCheck(context.Background()); !health.Ready {
		t.Fatalf("expected healthy publisher, got %+v", health)
	}
}
