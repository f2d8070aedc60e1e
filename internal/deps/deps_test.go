package deps_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"loopdeck/internal/deps"
)

func writeStub(t *testing.T, path string, mode os.FileMode) {
	t.Helper()
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), mode); err != nil {
		t.Fatalf("write stub: %v", err)
	}
}

func TestCheckReportsEachRequirement(t *testing.T) {
	present := filepath.Join(t.TempDir(), "present")
	writeStub(t, present, 0o755)

	results := deps.Check(
		deps.Requirement{Name: "Present", Command: present},
		deps.Requirement{Name: "Missing", Command: "clearly-not-present-binary"},
		deps.Requirement{Name: "Unset", Command: "  ", Optional: true},
	)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].Available || results[0].Detail != "" || results[0].Command != present {
		t.Fatalf("expected first requirement available, got %#v", results[0])
	}
	if results[1].Available || !strings.Contains(results[1].Detail, "not found") {
		t.Fatalf("expected missing binary with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected detail for unset command: %q", results[2].Detail)
	}

	required, optional := deps.Unavailable(results)
	if len(required) != 1 || required[0].Name != "Missing" {
		t.Fatalf("expected the missing binary as required, got %#v", required)
	}
	if len(optional) != 1 || optional[0].Name != "Unset" {
		t.Fatalf("expected the unset command as optional, got %#v", optional)
	}
}

func TestResolveUsesPath(t *testing.T) {
	binDir := t.TempDir()
	tool := filepath.Join(binDir, "yt-dlp")
	writeStub(t, tool, 0o755)
	t.Setenv("PATH", binDir)

	got, err := deps.Resolve("yt-dlp")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != tool {
		t.Fatalf("expected %q, got %q", tool, got)
	}
}

func TestResolveRejectsNonExecutable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demucs")
	writeStub(t, path, 0o644)
	if _, err := deps.Resolve(path); err == nil {
		t.Fatal("expected non-executable file to be rejected")
	}
	if _, err := deps.Resolve(t.TempDir()); err == nil {
		t.Fatal("expected directory to be rejected")
	}
}
