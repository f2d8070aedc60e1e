package whisperx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"loopdeck/internal/services"
)

// transientMarkers are output fragments that indicate a retry may succeed.
var transientMarkers = []string{
	"out of memory",
	"cuda error",
	"device or resource busy",
	"connection reset",
	"temporary failure in name resolution",
	"killed",
}

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Service provides WhisperX alignment runs.
type Service struct {
	cfg Config
	run Runner
}

// NewService returns a Service running the configured binary.
func NewService(cfg Config) *Service {
	return &Service{cfg: cfg.withDefaults(), run: combinedOutput}
}

// WithRunner replaces command execution (for testing).
func (s *Service) WithRunner(run Runner) {
	if run != nil {
		s.run = run
	}
}

// Model is the Whisper checkpoint the service loads.
func (s *Service) Model() string {
	return s.cfg.Model
}

// combinedOutput runs the tool with torch's weights-only loading disabled,
// which pyannote checkpoints still require.
func combinedOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		cmd.Env = append(os.Environ(), "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}
	return cmd.CombinedOutput()
}

// Align runs WhisperX over source and returns the timed words in order.
// outputDir receives the JSON WhisperX writes.
func (s *Service) Align(ctx context.Context, source, outputDir string) ([]Word, error) {
	if strings.TrimSpace(source) == "" {
		return nil, services.Wrap(services.ErrValidation, "whisperx", "align", "source path required", nil)
	}
	if outputDir == "" {
		outputDir = filepath.Dir(source)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "whisperx", "ensure output dir", outputDir, err)
	}

	output, err := s.run(ctx, s.cfg.Binary, s.cfg.args(source, outputDir)...)
	if err != nil {
		return nil, classify(ctx, output, err)
	}

	baseName := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	jsonPath := filepath.Join(outputDir, baseName+".json")
	segments, err := LoadSegments(jsonPath)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "whisperx", "load output", jsonPath, err)
	}
	return Words(segments), nil
}

func classify(ctx context.Context, output []byte, err error) error {
	detail := strings.TrimSpace(string(output))
	if len(detail) > 400 {
		detail = detail[len(detail)-400:]
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return services.Wrap(services.ErrTimeout, "whisperx", "align", "run cancelled or timed out", errors.Join(ctxErr, err))
	}
	lower := strings.ToLower(detail)
	for _, marker := range transientMarkers {
		if strings.Contains(lower, marker) {
			return services.Wrap(services.ErrTransientAlignment, "whisperx", "align", detail, err)
		}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 137 {
		return services.Wrap(services.ErrTransientAlignment, "whisperx", "align", "process killed", err)
	}
	return services.Wrap(services.ErrExternalTool, "whisperx", "align", detail, err)
}

// Word represents a single word with timing from WhisperX output. Start and
// End are nil when the aligner could not place the word.
type Word struct {
	Word  string   `json:"word"`
	Start *float64 `json:"start,omitempty"`
	End   *float64 `json:"end,omitempty"`
	Score float64  `json:"score"`
}

// Segment represents a transcribed segment from WhisperX JSON output.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Words []Word  `json:"words"`
}

type payload struct {
	Segments []Segment `json:"segments"`
}

// LoadSegments loads segments from a WhisperX JSON file.
func LoadSegments(jsonPath string) ([]Segment, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, err
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse whisperx json: %w", err)
	}
	return p.Segments, nil
}

// Words flattens segments into timed words, dropping words without timings
// and blank tokens.
func Words(segments []Segment) []Word {
	var words []Word
	for _, seg := range segments {
		for _, w := range seg.Words {
			w.Word = strings.TrimSpace(w.Word)
			if w.Word == "" || w.Start == nil || w.End == nil {
				continue
			}
			if *w.End < *w.Start {
				end := *w.Start
				w.End = &end
			}
			words = append(words, w)
		}
	}
	return words
}
