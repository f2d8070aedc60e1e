package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"loopdeck/internal/api"
	"loopdeck/internal/playlist"
	"loopdeck/internal/testsupport"
)

func TestStatusCommandReportsRunningDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env.configPath, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "System Status")
	requireContains(t, out, "Running")
	requireContains(t, out, "Dependencies")
	requireContains(t, out, "Queue Status")
}

func TestStatusCommandOffline(t *testing.T) {
	_, _, configPath := setupOfflineEnv(t)

	out, _, err := runCLI(t, configPath, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Not running")
	requireContains(t, out, "Queue is empty")
}

func TestQueueListThroughDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.NewTrack(t, env.store, "abc123", 45)

	out, _, err := runCLI(t, env.configPath, "queue", "list")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "abc123")

	out, _, err = runCLI(t, env.configPath, "queue", "show", "abc123", "--json")
	if err != nil {
		t.Fatalf("queue show: %v", err)
	}
	var track api.Track
	if err := json.Unmarshal([]byte(out), &track); err != nil {
		t.Fatalf("decode show output: %v", err)
	}
	if track.SourceID != "abc123" || track.Title != "Track abc123" {
		t.Fatalf("unexpected track %+v", track)
	}

	if _, _, err := runCLI(t, env.configPath, "queue", "show", "missing"); err == nil {
		t.Fatal("expected error for unknown track")
	}
}

func TestQueueCommandsFallBackToDatabase(t *testing.T) {
	_, store, configPath := setupOfflineEnv(t)
	testsupport.NewTrack(t, store, "abc123", 45)
	testsupport.NewTrack(t, store, "def456", 50)

	out, _, err := runCLI(t, configPath, "queue", "list", "--status", "fetched")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "abc123")
	requireContains(t, out, "def456")

	if _, _, err := runCLI(t, configPath, "queue", "list", "--status", "bogus"); err == nil {
		t.Fatal("expected error for unknown status")
	}

	out, _, err = runCLI(t, configPath, "queue", "reject", "abc123", "--detail", "duplicate upload")
	if err != nil {
		t.Fatalf("queue reject: %v", err)
	}
	requireContains(t, out, "rejected (Manual)")

	item, err := store.GetBySourceID(context.Background(), "abc123")
	if err != nil || item == nil {
		t.Fatalf("GetBySourceID: %v", err)
	}
	if item.RejectionReason != "Manual" {
		t.Fatalf("expected Manual rejection, got %q", item.RejectionReason)
	}

	out, _, err = runCLI(t, configPath, "queue", "retry")
	if err != nil {
		t.Fatalf("queue retry: %v", err)
	}
	requireContains(t, out, "No failed Tracks to retry")

	out, _, err = runCLI(t, configPath, "queue", "reingest", "def456")
	if err != nil {
		t.Fatalf("queue reingest: %v", err)
	}
	requireContains(t, out, "requeued")

	if _, _, err := runCLI(t, configPath, "queue", "reingest", "missing"); err == nil {
		t.Fatal("expected error reingesting unknown track")
	}
}

func TestRightsCommandsRecordOperator(t *testing.T) {
	env := setupCLITestEnv(t)
	env.registerRights(t, "abc123")

	_, _, err := runCLI(t, env.configPath, "rights", "set", "abc123", "cleared")
	if err == nil {
		t.Fatal("expected clearing without evidence to fail")
	}
	requireContains(t, err.Error(), "400")

	out, _, err := runCLI(t, env.configPath, "--operator", "carol",
		"rights", "set", "abc123", "cleared", "--evidence", "https://example.com/license.pdf", "--reason", "signed")
	if err != nil {
		t.Fatalf("rights set: %v", err)
	}
	requireContains(t, out, "is now cleared")

	out, _, err = runCLI(t, env.configPath, "rights", "show", "abc123")
	if err != nil {
		t.Fatalf("rights show: %v", err)
	}
	requireContains(t, out, "carol")
	requireContains(t, out, "https://example.com/license.pdf")

	out, _, err = runCLI(t, env.configPath, "rights", "history", "abc123", "--json")
	if err != nil {
		t.Fatalf("rights history: %v", err)
	}
	var history []api.RightsHistoryEntry
	if err := json.Unmarshal([]byte(out), &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history) != 1 || history[0].Actor != "carol" || history[0].ToState != "cleared" {
		t.Fatalf("unexpected history %+v", history)
	}

	out, _, err = runCLI(t, env.configPath, "rights", "list", "--state", "cleared", "--json")
	if err != nil {
		t.Fatalf("rights list: %v", err)
	}
	var records []api.RightsRecord
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		t.Fatalf("decode rights list: %v", err)
	}
	if len(records) != 1 || records[0].SourceID != "abc123" {
		t.Fatalf("unexpected records %+v", records)
	}

	if _, _, err := runCLI(t, env.configPath, "rights", "set", "abc123", "pending"); err == nil {
		t.Fatal("expected cleared -> pending to be refused")
	}
}

func TestDaemonOnlyCommandsExplainHowToStart(t *testing.T) {
	_, _, configPath := setupOfflineEnv(t)

	_, _, err := runCLI(t, configPath, "rights", "list")
	if err == nil {
		t.Fatal("expected error without a daemon")
	}
	requireContains(t, err.Error(), "loopdeck daemon start")
}

func TestCatalogCommandsOnEmptyCatalog(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env.configPath, "catalog", "list")
	if err != nil {
		t.Fatalf("catalog list: %v", err)
	}
	requireContains(t, out, "Catalog is empty")

	out, _, err = runCLI(t, env.configPath, "catalog", "reconcile")
	if err != nil {
		t.Fatalf("catalog reconcile: %v", err)
	}
	requireContains(t, out, "Checked 0 live entries")

	if _, _, err := runCLI(t, env.configPath, "catalog", "show", "missing"); err == nil {
		t.Fatal("expected error for unpublished track")
	}
}

func TestSubmitRejectsUnknownStage(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.NewTrack(t, env.store, "abc123", 45)

	_, _, err := runCLI(t, env.configPath, "submit", "abc123", "mastering")
	if err == nil {
		t.Fatal("expected unknown stage to fail")
	}
	requireContains(t, err.Error(), "unknown stage")
}

func TestDaemonStopWhenNotRunning(t *testing.T) {
	_, _, configPath := setupOfflineEnv(t)

	out, _, err := runCLI(t, configPath, "daemon", "stop")
	if err != nil {
		t.Fatalf("daemon stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	target := filepath.Join(t.TempDir(), "nested", "config.toml")

	out, _, err := runCLI(t, "", "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file: %v", err)
	}

	if _, _, err := runCLI(t, "", "config", "init", "--path", target); err == nil {
		t.Fatal("expected refusal without --overwrite")
	}
	if _, _, err := runCLI(t, "", "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigValidateReportsSettings(t *testing.T) {
	_, _, configPath := setupOfflineEnv(t)

	out, _, err := runCLI(t, configPath, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Config path: "+configPath)
	requireContains(t, out, "Configuration valid")
}

func TestConfigShowMasksSecrets(t *testing.T) {
	_, _, configPath := setupOfflineEnv(t)

	out, _, err := runCLI(t, configPath, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "[playlist]")
	requireContains(t, out, "<redacted>")
	if strings.Contains(out, "test-secret") {
		t.Fatalf("jwt secret printed without --reveal:\n%s", out)
	}

	out, _, err = runCLI(t, configPath, "config", "show", "--reveal")
	if err != nil {
		t.Fatalf("config show --reveal: %v", err)
	}
	requireContains(t, out, "test-secret")
}

func TestIngestLocallyFromManifest(t *testing.T) {
	cfg, store, configPath := setupOfflineEnv(t)
	err := playlist.WriteManifest(cfg.Playlist.ManifestPath, &playlist.Manifest{
		PlaylistID: "PLtest",
		Items: []playlist.Candidate{
			{SourceID: "vid1", Title: "First", Uploader: "someone", DurationSeconds: 200},
			{SourceID: "vid2", Title: "Second", Uploader: "someone", DurationSeconds: 180},
		},
	})
	if err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	out, _, err := runCLI(t, configPath, "ingest", "--playlist", "PLtest", "--json")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	var resp api.IngestResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode ingest output %q: %v", out, err)
	}
	if resp.Seen != 2 || resp.Created != 2 {
		t.Fatalf("unexpected ingest report %+v", resp)
	}
	item, err := store.GetBySourceID(context.Background(), "vid2")
	if err != nil || item == nil {
		t.Fatalf("expected vid2 queued: %v", err)
	}
}

func TestLogsCommandFiltersByTrack(t *testing.T) {
	cfg, _, configPath := setupOfflineEnv(t)
	content := "INFO abc123/filter stage started\nINFO def456/filter stage started\nINFO abc123/filter stage completed\n"
	if err := os.WriteFile(cfg.DaemonLogPath(), []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, _, err := runCLI(t, configPath, "logs", "--track", "abc123")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "abc123/filter stage completed")
	if strings.Contains(out, "def456") {
		t.Fatalf("expected def456 lines filtered out, got %q", out)
	}
}
