// Package ffmpeg wraps the ffmpeg CLI for decoding downloaded audio into the
// WAV layout the analysis code reads.
package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"loopdeck/internal/audio/pcm"
	"loopdeck/internal/services"
)

// DefaultBinary is used when no binary is configured.
const DefaultBinary = "ffmpeg"

// AnalysisSampleRate is the rate every stage analyses audio at.
const AnalysisSampleRate = 44100

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Service converts audio files with ffmpeg.
type Service struct {
	binary string
	run    Runner
}

// New returns a Service for binary.
func New(binary string) *Service {
	if strings.TrimSpace(binary) == "" {
		binary = DefaultBinary
	}
	return &Service{binary: binary, run: combinedOutput}
}

// WithRunner replaces command execution (for testing).
func (s *Service) WithRunner(run Runner) {
	if run != nil {
		s.run = run
	}
}

// Binary returns the configured ffmpeg executable.
func (s *Service) Binary() string {
	return s.binary
}

func combinedOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	return cmd.CombinedOutput()
}

// BuildDecodeArgs returns the ffmpeg arguments that decode source into a
// stereo float WAV at sampleRate.
func BuildDecodeArgs(source, dest string, sampleRate int) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-sn",
		"-dn",
		"-ac", "2",
		"-ar", strconv.Itoa(sampleRate),
		"-c:a", "pcm_f32le",
		dest,
	}
}

// DecodeToWAV converts source to a stereo float WAV at dest.
func (s *Service) DecodeToWAV(ctx context.Context, source, dest string, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = AnalysisSampleRate
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("ffmpeg decode: ensure output dir: %w", err)
	}
	output, err := s.run(ctx, s.binary, BuildDecodeArgs(source, dest, sampleRate)...)
	if err != nil {
		if ctx.Err() != nil {
			return services.Wrap(services.ErrTimeout, "ffmpeg", "decode", filepath.Base(source), ctx.Err())
		}
		return services.Wrap(services.ErrExternalTool, "ffmpeg", "decode",
			strings.TrimSpace(string(output)), err)
	}
	return nil
}

// Load decodes source and returns the samples. WAV input already at
// sampleRate is read directly without running ffmpeg.
func (s *Service) Load(ctx context.Context, source, scratchDir string, sampleRate int) (*pcm.Buffer, error) {
	if sampleRate <= 0 {
		sampleRate = AnalysisSampleRate
	}
	if strings.EqualFold(filepath.Ext(source), ".wav") {
		if buf, err := pcm.ReadFile(source); err == nil && buf.SampleRate == sampleRate {
			return buf, nil
		}
	}
	if scratchDir == "" {
		scratchDir = filepath.Dir(source)
	}
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	dest := filepath.Join(scratchDir, base+".decoded.wav")
	if err := s.DecodeToWAV(ctx, source, dest, sampleRate); err != nil {
		return nil, err
	}
	defer os.Remove(dest)
	buf, err := pcm.ReadFile(dest)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "ffmpeg", "read decoded audio", dest, err)
	}
	return buf, nil
}
