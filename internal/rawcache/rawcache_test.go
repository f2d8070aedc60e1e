package rawcache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"loopdeck/internal/config"
	"loopdeck/internal/logging"
	"loopdeck/internal/services"
)

type fakeDownloader struct {
	payload map[string]string
	calls   int
	err     error
}

func (f *fakeDownloader) DownloadAudio(_ context.Context, id, dir string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	path := filepath.Join(dir, id+".wav")
	return path, os.WriteFile(path, []byte(f.payload[id]), 0o644)
}

func newManager(t *testing.T, dl Downloader) *Manager {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.StagingDir = t.TempDir()
	cfg.Paths.RawCacheMaxGiB = 1
	m := NewManager(&cfg, dl, logging.NewNop())
	m.statfs = func(string) (uint64, uint64, error) { return 100, 50, nil }
	return m
}

func TestFetchDownloadsOnceThenReuses(t *testing.T) {
	dl := &fakeDownloader{payload: map[string]string{"vid": "RIFF-audio"}}
	m := newManager(t, dl)

	first, err := m.Fetch(context.Background(), "vid", "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if first.Reused || first.Checksum == "" || first.SizeBytes != int64(len("RIFF-audio")) {
		t.Fatalf("unexpected first entry %+v", first)
	}
	if first.Path != filepath.Join(m.Root(), "vid", audioFileName) {
		t.Fatalf("unexpected path %s", first.Path)
	}

	second, err := m.Fetch(context.Background(), "vid", first.Checksum)
	if err != nil {
		t.Fatalf("Fetch again: %v", err)
	}
	if !second.Reused || dl.calls != 1 {
		t.Fatalf("expected cached reuse without download, calls=%d entry=%+v", dl.calls, second)
	}
	if !m.Verify("vid", first.Checksum) {
		t.Fatal("expected Verify to match")
	}
}

func TestFetchRefetchesCorruptEntry(t *testing.T) {
	dl := &fakeDownloader{payload: map[string]string{"vid": "original"}}
	m := newManager(t, dl)
	entry, err := m.Fetch(context.Background(), "vid", "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if err := os.WriteFile(entry.Path, []byte("tampered"), 0o644); err != nil {
		t.Fatal(err)
	}
	again, err := m.Fetch(context.Background(), "vid", "")
	if err != nil {
		t.Fatalf("Fetch after corruption: %v", err)
	}
	if again.Reused || dl.calls != 2 || again.Checksum != entry.Checksum {
		t.Fatalf("expected refetch restoring checksum, calls=%d entry=%+v", dl.calls, again)
	}
}

func TestFetchRefetchesOnChecksumMismatch(t *testing.T) {
	dl := &fakeDownloader{payload: map[string]string{"vid": "v1"}}
	m := newManager(t, dl)
	if _, err := m.Fetch(context.Background(), "vid", ""); err != nil {
		t.Fatal(err)
	}
	dl.payload["vid"] = "v2"
	entry, err := m.Fetch(context.Background(), "vid", "deadbeef")
	if err != nil {
		t.Fatal(err)
	}
	if entry.Reused || dl.calls != 2 {
		t.Fatalf("expected download on mismatch, calls=%d", dl.calls)
	}
}

func TestFetchPropagatesDownloadError(t *testing.T) {
	dl := &fakeDownloader{err: services.Wrap(services.ErrFetch, "yt-dlp", "download audio", "vid", nil)}
	m := newManager(t, dl)
	_, err := m.Fetch(context.Background(), "vid", "")
	if !errors.Is(err, services.ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
	leftovers, _ := os.ReadDir(m.Root())
	if len(leftovers) != 0 {
		t.Fatalf("expected no partial entries, found %d", len(leftovers))
	}
}

func TestFetchRejectsPathLikeIDs(t *testing.T) {
	m := newManager(t, &fakeDownloader{})
	for _, id := range []string{"", "../x", "a/b", ".hidden"} {
		if _, err := m.Fetch(context.Background(), id, ""); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("expected ErrValidation for %q, got %v", id, err)
		}
	}
}

func TestPruneRemovesOldestButKeepsActive(t *testing.T) {
	dl := &fakeDownloader{payload: map[string]string{"a": "aaaaaaaaaa", "b": "bbbbbbbbbb", "c": "cccccccccc"}}
	m := newManager(t, dl)
	m.maxBytes = 25

	for i, id := range []string{"a", "b"} {
		if _, err := m.Fetch(context.Background(), id, ""); err != nil {
			t.Fatal(err)
		}
		past := time.Now().Add(time.Duration(i-10) * time.Minute)
		if err := os.Chtimes(filepath.Join(m.Root(), id), past, past); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := m.Fetch(context.Background(), "c", ""); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(m.Root(), "a")); !os.IsNotExist(err) {
		t.Fatalf("expected oldest entry pruned, stat err=%v", err)
	}
	for _, id := range []string{"b", "c"} {
		if _, err := os.Stat(filepath.Join(m.Root(), id, audioFileName)); err != nil {
			t.Fatalf("expected %s kept: %v", id, err)
		}
	}
	stats, err := m.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 2 || stats.TotalBytes != 20 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
