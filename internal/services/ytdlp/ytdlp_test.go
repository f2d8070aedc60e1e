package ytdlp_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"loopdeck/internal/services"
	"loopdeck/internal/services/ytdlp"
)

func TestFlatPlaylistParsesEntries(t *testing.T) {
	svc := ytdlp.New("", "/tmp/cookies.txt")
	svc.WithRunner(func(_ context.Context, name string, args ...string) ([]byte, error) {
		if name != ytdlp.DefaultBinary {
			t.Fatalf("unexpected binary %q", name)
		}
		if !slices.Contains(args, "--flat-playlist") || !slices.Contains(args, "https://www.youtube.com/playlist?list=PL1") {
			t.Fatalf("unexpected args %v", args)
		}
		if i := slices.Index(args, "--cookies"); i < 0 || args[i+1] != "/tmp/cookies.txt" {
			t.Fatalf("expected cookies flag in %v", args)
		}
		return []byte(`{"id":"PL1","title":"Mix","entries":[
			{"id":"a","title":"A","channel":"Chan","duration":212.5},
			{"id":"","title":"deleted"},
			{"id":"b","title":"B","uploader":"Up","duration":35,"license":"Creative Commons"}]}`), nil
	})

	pl, err := svc.FlatPlaylist(context.Background(), "PL1")
	if err != nil {
		t.Fatalf("FlatPlaylist: %v", err)
	}
	if len(pl.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", pl.Entries)
	}
	if pl.Entries[0].Uploader != "Chan" || pl.Entries[0].Duration != 212.5 {
		t.Fatalf("unexpected first entry %+v", pl.Entries[0])
	}
}

func TestFlatPlaylistFailureIsFetchError(t *testing.T) {
	svc := ytdlp.New("yt", "")
	svc.WithRunner(func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("HTTP Error 429")
	})
	if _, err := svc.FlatPlaylist(context.Background(), "PL1"); !errors.Is(err, services.ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
}

func TestDownloadAudioReturnsWAVPath(t *testing.T) {
	dir := t.TempDir()
	svc := ytdlp.New("", "")
	svc.WithRunner(func(_ context.Context, _ string, args ...string) ([]byte, error) {
		i := slices.Index(args, "-o")
		if i < 0 || args[i+1] != filepath.Join(dir, "vid.%(ext)s") {
			t.Fatalf("unexpected output template in %v", args)
		}
		return nil, os.WriteFile(filepath.Join(dir, "vid.wav"), []byte("RIFF"), 0o644)
	})
	path, err := svc.DownloadAudio(context.Background(), "vid", dir)
	if err != nil {
		t.Fatalf("DownloadAudio: %v", err)
	}
	if path != filepath.Join(dir, "vid.wav") {
		t.Fatalf("unexpected path %s", path)
	}
}

func TestDownloadCaptionsFallsBackToAutomatic(t *testing.T) {
	dir := t.TempDir()
	svc := ytdlp.New("", "")
	var calls int
	svc.WithRunner(func(_ context.Context, _ string, args ...string) ([]byte, error) {
		calls++
		if slices.Contains(args, "--write-auto-subs") {
			return nil, os.WriteFile(filepath.Join(dir, "vid.en.vtt"), []byte("WEBVTT\n"), 0o644)
		}
		return nil, nil
	})
	path, err := svc.DownloadCaptions(context.Background(), "vid", dir, []string{"en"})
	if err != nil {
		t.Fatalf("DownloadCaptions: %v", err)
	}
	if calls != 2 || filepath.Base(path) != "vid.en.vtt" {
		t.Fatalf("expected automatic caption after 2 calls, got %s after %d", path, calls)
	}
}

func TestDownloadCaptionsNone(t *testing.T) {
	svc := ytdlp.New("", "")
	svc.WithRunner(func(context.Context, string, ...string) ([]byte, error) { return nil, nil })
	_, err := svc.DownloadCaptions(context.Background(), "vid", t.TempDir(), nil)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDownloadCaptionsPrefersRequestedLanguage(t *testing.T) {
	dir := t.TempDir()
	svc := ytdlp.New("", "")
	svc.WithRunner(func(context.Context, string, ...string) ([]byte, error) {
		for _, name := range []string{"vid.de.vtt", "vid.en-GB.vtt"} {
			if err := os.WriteFile(filepath.Join(dir, name), []byte("WEBVTT\n"), 0o644); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	path, err := svc.DownloadCaptions(context.Background(), "vid", dir, []string{"en"})
	if err != nil {
		t.Fatalf("DownloadCaptions: %v", err)
	}
	if filepath.Base(path) != "vid.en-GB.vtt" {
		t.Fatalf("expected the English track, got %s", path)
	}
}
