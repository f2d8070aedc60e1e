package demucs_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"loopdeck/internal/services"
	"loopdeck/internal/services/demucs"
)

func TestSeparateReturnsTwoStemLayout(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "vid.wav")
	svc := demucs.New("", "", "cpu")

	var gotArgs []string
	svc.WithRunner(func(_ context.Context, name string, args ...string) ([]byte, error) {
		if name != demucs.DefaultBinary {
			t.Fatalf("unexpected binary %q", name)
		}
		gotArgs = args
		stemDir := filepath.Join(dir, "out", demucs.DefaultModel, "vid")
		if err := os.MkdirAll(stemDir, 0o755); err != nil {
			return nil, err
		}
		for _, name := range []string{"vocals.wav", "no_vocals.wav"} {
			if err := os.WriteFile(filepath.Join(stemDir, name), []byte("RIFF"), 0o644); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})

	stems, err := svc.Separate(context.Background(), source, filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("Separate: %v", err)
	}
	if filepath.Base(stems.Vocals) != "vocals.wav" || filepath.Base(stems.Bed) != "no_vocals.wav" {
		t.Fatalf("unexpected stems %+v", stems)
	}
	for _, want := range []string{"--two-stems=vocals", "htdemucs", "cpu", source} {
		if !slices.Contains(gotArgs, want) {
			t.Fatalf("expected %q in args %v", want, gotArgs)
		}
	}
	if gotArgs[len(gotArgs)-1] != source {
		t.Fatalf("source must be the last argument, got %v", gotArgs)
	}
}

func TestSeparateClassifiesFailures(t *testing.T) {
	cases := []struct {
		name   string
		output string
		want   error
	}{
		{"oom", "RuntimeError: CUDA out of memory. Tried to allocate 2.00 GiB", services.ErrTransientSeparation},
		{"bad input", "Could not load file vid.wav", services.ErrExternalTool},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := demucs.New("", "", "")
			svc.WithRunner(func(context.Context, string, ...string) ([]byte, error) {
				return []byte(tc.output), errors.New("exit status 1")
			})
			_, err := svc.Separate(context.Background(), "vid.wav", t.TempDir())
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestSeparateMissingStemsIsToolError(t *testing.T) {
	svc := demucs.New("", "", "")
	svc.WithRunner(func(context.Context, string, ...string) ([]byte, error) { return nil, nil })
	_, err := svc.Separate(context.Background(), "vid.wav", t.TempDir())
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestSeparateCancelledIsTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := demucs.New("", "", "")
	svc.WithRunner(func(ctx context.Context, _ string, _ ...string) ([]byte, error) { return nil, ctx.Err() })
	_, err := svc.Separate(ctx, "vid.wav", t.TempDir())
	if !errors.Is(err, services.ErrTimeout) || !services.IsTransient(err) {
		t.Fatalf("expected transient timeout, got %v", err)
	}
}
