// Package demucs runs the demucs CLI in two-stem mode to split a mix into a
// vocal stem and an accompaniment stem.
package demucs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"loopdeck/internal/services"
)

const (
	// DefaultBinary is used when no binary is configured.
	DefaultBinary = "demucs"
	// DefaultModel is the hybrid transformer checkpoint.
	DefaultModel = "htdemucs"
)

// transientMarkers are output fragments that indicate the run may succeed
// later: memory pressure or a busy accelerator.
var transientMarkers = []string{
	"out of memory",
	"cuda error: device-side assert",
	"device or resource busy",
	"resource temporarily unavailable",
	"killed",
}

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Stems are the files demucs wrote.
type Stems struct {
	Vocals string
	Bed    string
}

// Service wraps the demucs executable.
type Service struct {
	binary string
	model  string
	device string
	run    Runner
}

// New returns a Service. Empty binary and model fall back to the defaults;
// an empty device lets demucs choose.
func New(binary, model, device string) *Service {
	if strings.TrimSpace(binary) == "" {
		binary = DefaultBinary
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	return &Service{binary: binary, model: model, device: strings.TrimSpace(device), run: combinedOutput}
}

// WithRunner replaces command execution (for testing).
func (s *Service) WithRunner(run Runner) {
	if run != nil {
		s.run = run
	}
}

// Binary returns the configured executable.
func (s *Service) Binary() string { return s.binary }

// Model returns the configured checkpoint name.
func (s *Service) Model() string { return s.model }

func combinedOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	// Torch 2.6 changed torch.load to weights_only=true, which breaks older checkpoints.
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		cmd.Env = append(os.Environ(), "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}
	return cmd.CombinedOutput()
}

// BuildArgs returns the demucs arguments for a two-stem vocal split.
func (s *Service) BuildArgs(source, outDir string) []string {
	args := []string{"--two-stems=vocals", "-n", s.model, "-o", outDir}
	if s.device != "" {
		args = append(args, "-d", s.device)
	}
	return append(args, source)
}

// StemPaths returns where demucs writes the stems for source.
func (s *Service) StemPaths(source, outDir string) Stems {
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	dir := filepath.Join(outDir, s.model, base)
	return Stems{
		Vocals: filepath.Join(dir, "vocals.wav"),
		Bed:    filepath.Join(dir, "no_vocals.wav"),
	}
}

// Separate splits source into stems under outDir.
func (s *Service) Separate(ctx context.Context, source, outDir string) (Stems, error) {
	if strings.TrimSpace(source) == "" {
		return Stems{}, services.Wrap(services.ErrValidation, "demucs", "separate", "source path required", nil)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Stems{}, services.Wrap(services.ErrConfiguration, "demucs", "ensure output dir", outDir, err)
	}
	output, err := s.run(ctx, s.binary, s.BuildArgs(source, outDir)...)
	if err != nil {
		return Stems{}, classify(ctx, output, err)
	}
	stems := s.StemPaths(source, outDir)
	for _, path := range []string{stems.Vocals, stems.Bed} {
		if _, statErr := os.Stat(path); statErr != nil {
			return Stems{}, services.Wrap(services.ErrExternalTool, "demucs", "locate stems",
				fmt.Sprintf("expected %s after a successful run", path), statErr)
		}
	}
	return stems, nil
}

func classify(ctx context.Context, output []byte, err error) error {
	detail := strings.TrimSpace(string(output))
	if len(detail) > 400 {
		detail = detail[len(detail)-400:]
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return services.Wrap(services.ErrTimeout, "demucs", "separate", "run cancelled or timed out", errors.Join(ctxErr, err))
	}
	lower := strings.ToLower(detail)
	var exitErr *exec.ExitError
	for _, marker := range transientMarkers {
		if strings.Contains(lower, marker) {
			return services.Wrap(services.ErrTransientSeparation, "demucs", "separate", detail, err)
		}
	}
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 137 {
		return services.Wrap(services.ErrTransientSeparation, "demucs", "separate", "process killed", err)
	}
	return services.Wrap(services.ErrExternalTool, "demucs", "separate", detail, err)
}
