package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteArtifact creates path, and any missing parents, holding a short payload
// derived from its base name so copies in a blob store can be told apart.
// It returns path for chaining into Artifacts fields.
func WriteArtifact(t testing.TB, path string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create artifact dir for %s: %v", path, err)
	}
	payload := []byte("artifact:" + filepath.Base(path) + "\n")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("write artifact %s: %v", path, err)
	}
	return path
}
