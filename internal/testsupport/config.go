package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"loopdeck/internal/config"
)

// ConfigOption adjusts a test configuration after the defaults are applied.
type ConfigOption func(t testing.TB, cfg *config.Config)

// NewConfig returns a configuration rooted in a fresh temp directory. It uses
// the manifest playlist source and the in-process separation, alignment,
// storage and lock backends, so nothing external is contacted.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths = config.Paths{
		StagingDir:     filepath.Join(base, "staging"),
		StateDir:       filepath.Join(base, "state"),
		LogDir:         filepath.Join(base, "logs"),
		RawCacheMaxGiB: cfg.Paths.RawCacheMaxGiB,
	}
	cfg.Playlist.Source = config.SourceManifest
	cfg.Playlist.ManifestPath = filepath.Join(base, "playlist.yaml")
	cfg.Storage.Backend = config.StorageLocal
	cfg.Storage.LocalDir = filepath.Join(base, "catalog")
	cfg.Separation.Backend = config.SeparationCenter
	cfg.Alignment.Backend = config.AlignmentTranscript
	cfg.Lock.Backend = config.LockLocal
	cfg.API.Bind = "127.0.0.1:0"
	cfg.API.JWTSecret = "test-secret"
	cfg.Workflow.QueuePollInterval = 1
	cfg.Workflow.RetryBaseSeconds = 1
	cfg.Workflow.RetryMaxSeconds = 4
	cfg.Segmentation.SeamSimulateMinutes = 1

	for _, opt := range opts {
		opt(t, &cfg)
	}
	return &cfg
}

// BaseDir returns the temp directory the configuration is rooted in.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}

func WithVocalThreshold(threshold float64) ConfigOption {
	return func(_ testing.TB, cfg *config.Config) {
		cfg.Eligibility.VocalThreshold = threshold
	}
}

func WithMaxAttempts(n int) ConfigOption {
	return func(_ testing.TB, cfg *config.Config) {
		cfg.Workflow.MaxAttempts = n
	}
}

// WithStubbedBinaries puts no-op executables for names first on PATH for
// the rest of the test. No names stubs every tool loopdeck shells out to.
func WithStubbedBinaries(names ...string) ConfigOption {
	if len(names) == 0 {
		names = []string{"yt-dlp", "ffmpeg", "demucs", "whisperx"}
	}
	return func(t testing.TB, cfg *config.Config) {
		t.Helper()
		binDir := filepath.Join(BaseDir(cfg), "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			t.Fatalf("mkdir bin dir: %v", err)
		}
		for _, name := range names {
			if err := os.WriteFile(filepath.Join(binDir, name), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
				t.Fatalf("write stub %s: %v", name, err)
			}
		}
		t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}
