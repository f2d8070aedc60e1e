package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"loopdeck/internal/catalog"
	"loopdeck/internal/catalog/blob"
	"loopdeck/internal/config"
	"loopdeck/internal/daemon"
	"loopdeck/internal/keylock"
	"loopdeck/internal/logging"
	"loopdeck/internal/notifications"
	"loopdeck/internal/queue"
	"loopdeck/internal/rights"
	"loopdeck/internal/stage"
	"loopdeck/internal/testsupport"
	"loopdeck/internal/workflow"
)

type noopStage struct{}

func (noopStage) Prepare(context.Context, *queue.Item) error { return nil }
func (noopStage) Execute(context.Context, *queue.Item) error { return nil }
func (noopStage) HealthCheck(context.Context) stage.Health {
	return stage.Ready("noop")
}

type cliTestEnv struct {
	cfg        *config.Config
	store      *queue.Store
	catalog    *catalog.Catalog
	daemon     *daemon.Daemon
	configPath string
}

// setupCLITestEnv runs a daemon with no-op stages and writes a config file
// pointing the CLI at its API.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
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

	logger := logging.NewNop()
	cat := catalog.New(catStore, blobs, keylock.NewLocal(), &notifications.Recorder{}, logger)
	mgr := workflow.NewManager(cfg, store, cat, logger)
	mgr.ConfigureStages(workflow.StageSet{
		Filter:   noopStage{},
		Segment:  noopStage{},
		Separate: noopStage{},
		Align:    noopStage{},
		Rights:   noopStage{},
		Publish:  noopStage{},
	})
	d, err := daemon.New(cfg, store, cat, logger, mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon start: %v", err)
	}
	t.Cleanup(func() {
		d.Stop()
		cancel()
	})

	cfg.API.Bind = d.APIAddress()
	env := &cliTestEnv{
		cfg:     cfg,
		store:   store,
		catalog: cat,
		daemon:  d,
	}
	env.configPath = writeTestConfig(t, cfg)
	return env
}

// setupOfflineEnv writes a config whose API address has no listener.
func setupOfflineEnv(t *testing.T) (*config.Config, *queue.Store, string) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	cfg := testsupport.NewConfig(t)
	cfg.API.Bind = "127.0.0.1:1"
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	return cfg, store, writeTestConfig(t, cfg)
}

func writeTestConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func (env *cliTestEnv) registerRights(t *testing.T, sourceID string) {
	t.Helper()
	testsupport.NewTrack(t, env.store, sourceID, 45)
	rec := rights.NewRecord(sourceID, "uploader", "Standard YouTube License", "manual", time.Now())
	if _, err := env.catalog.RegisterTrack(context.Background(), rec); err != nil {
		t.Fatalf("RegisterTrack: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
