package ffmpeg_test

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"loopdeck/internal/audio/pcm"
	"loopdeck/internal/services"
	"loopdeck/internal/services/ffmpeg"
)

func TestLoadDecodesThroughRunner(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "vid.m4a")

	svc := ffmpeg.New("")
	var gotArgs []string
	svc.WithRunner(func(_ context.Context, name string, args ...string) ([]byte, error) {
		if name != ffmpeg.DefaultBinary {
			t.Fatalf("unexpected binary %q", name)
		}
		gotArgs = args
		dest := args[len(args)-1]
		return nil, pcm.WriteFile(dest, pcm.New(44100, 2, 441), pcm.Float32)
	})

	buf, err := svc.Load(context.Background(), source, dir, 0)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if buf.Frames() != 441 || buf.NumChannels() != 2 {
		t.Fatalf("unexpected buffer shape %d frames %d channels", buf.Frames(), buf.NumChannels())
	}
	if !slices.Contains(gotArgs, "pcm_f32le") || !slices.Contains(gotArgs, source) {
		t.Fatalf("unexpected args %v", gotArgs)
	}
}

func TestLoadReadsMatchingWAVDirectly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vid.wav")
	if err := pcm.WriteFile(path, pcm.New(44100, 1, 100), pcm.PCM16); err != nil {
		t.Fatal(err)
	}
	svc := ffmpeg.New("ffmpeg")
	svc.WithRunner(func(context.Context, string, ...string) ([]byte, error) {
		t.Fatal("runner should not be called for matching wav")
		return nil, nil
	})
	if _, err := svc.Load(context.Background(), path, "", 44100); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
}

func TestDecodeFailureIsExternalToolError(t *testing.T) {
	svc := ffmpeg.New("ffmpeg")
	svc.WithRunner(func(context.Context, string, ...string) ([]byte, error) {
		return []byte("Invalid data found when processing input"), errors.New("exit status 1")
	})
	err := svc.DecodeToWAV(context.Background(), "in.webm", filepath.Join(t.TempDir(), "out.wav"), 44100)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}
