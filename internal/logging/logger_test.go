package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"loopdeck/internal/logging"
	"loopdeck/internal/services"
	"loopdeck/internal/testsupport"
)

func TestConsoleLoggerWritesSubject(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{
		Format:  "console",
		Level:   "info",
		Outputs: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithStage(services.WithSourceID(context.Background(), "abc123"), "segmenting")
	logging.WithContext(ctx, logging.NewComponentLogger(logger, "workflow")).Info("stage completed", logging.Int("attempt", 1))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	for _, want := range []string{"INFO", "[workflow]", "abc123 (segmenting)", "stage completed", "attempt=1"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
	if strings.Contains(line, "\x1b[") {
		t.Fatalf("expected no ANSI color in file output, got %q", line)
	}
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", line)
	}
}

func TestJSONLoggerRenamesKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{
		Format:  "json",
		Level:   "debug",
		Outputs: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("compliance violation", logging.Alert("compliance_violation"), logging.EventType("publish_blocked"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(content))), &record); err != nil {
		t.Fatalf("decode json log: %v (%q)", err, content)
	}
	if record["level"] != "warn" || record["msg"] != "compliance violation" {
		t.Fatalf("unexpected record %v", record)
	}
	if record[logging.FieldAlert] != "compliance_violation" || record[logging.FieldEventType] != "publish_blocked" {
		t.Fatalf("missing alert fields in %v", record)
	}
	if _, ok := record["source"]; !ok {
		t.Fatalf("expected source at debug level, got %v", record)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestPruneRotatedKeepsActiveAndFreshLogs(t *testing.T) {
	dir := t.TempDir()
	active := filepath.Join(dir, "loopdeck-current.log")
	old := filepath.Join(dir, "loopdeck-2026-01-02T03-04-05.000.log")
	fresh := filepath.Join(dir, "loopdeck-2026-10-18T00-00-00.000.log")
	other := filepath.Join(dir, "notes.txt")
	for _, path := range []string{active, old, fresh, other} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	now := time.Now()
	past := now.AddDate(0, 0, -10)
	for _, path := range []string{active, old, other} {
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatal(err)
		}
	}

	report := logging.PruneRotated(logging.NewNop(), dir, active, 5*24*time.Hour, now)

	if len(report.Removed) != 1 || report.Removed[0] != old {
		t.Fatalf("expected only %s removed, got %v", old, report.Removed)
	}
	for _, path := range []string{active, fresh, other} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s kept: %v", path, err)
		}
	}
	if got := logging.PruneRotated(logging.NewNop(), dir, active, 0, now); len(got.Removed) != 0 {
		t.Fatalf("expected zero max age to disable pruning, got %v", got.Removed)
	}
}

func TestCommandLoggerWritesDaemonLog(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	logger, err := logging.NewCommandLogger(cfg, "ingest")
	if err != nil {
		t.Fatalf("NewCommandLogger: %v", err)
	}
	logger.Info("playlist page fetched", logging.Int("items", 50))

	content, err := os.ReadFile(cfg.DaemonLogPath())
	if err != nil {
		t.Fatalf("read daemon log: %v", err)
	}
	for _, want := range []string{"playlist page fetched", "ingest"} {
		if !strings.Contains(string(content), want) {
			t.Fatalf("expected %q in %q", want, content)
		}
	}
}

func TestConsoleLoggerLiftsAlert(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Outputs: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("publish blocked", logging.Alert("compliance_violation"))
	logger.WithGroup("qa").Info("stems scored", logging.Float64("sdr", 4.5))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if !strings.Contains(line, "WARN ALERT(compliance_violation) - publish blocked") {
		t.Fatalf("expected alert in line prefix, got %q", line)
	}
	if !strings.Contains(line, "qa.sdr=4.5") {
		t.Fatalf("expected grouped key in %q", line)
	}
}
