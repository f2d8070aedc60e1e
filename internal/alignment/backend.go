package alignment

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"loopdeck/internal/config"
	"loopdeck/internal/services"
	"loopdeck/internal/services/whisperx"
	"loopdeck/internal/textutil"
)

// Word is one lyric token on the loop timeline. Beat is its fractional
// position on the loop's beat grid.
type Word struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Beat  float64 `json:"beat"`
}

// Input is one alignment job. Transcript is already windowed to the loop.
type Input struct {
	SourceID   string
	AudioPath  string
	WorkDir    string
	Transcript Transcript
}

// Backend produces word timings for a loop.
type Backend interface {
	Name() string
	Align(ctx context.Context, in Input) ([]Word, error)
}

// NewBackend returns the backend named in cfg.
func NewBackend(cfg *config.Config) (Backend, error) {
	switch cfg.Alignment.Backend {
	case config.AlignmentWhisperX:
		svc := whisperx.NewService(whisperx.Config{
			Binary:   cfg.Tools.WhisperXBinary,
			Model:    cfg.Alignment.WhisperXModel,
			Device:   cfg.Alignment.Device,
			Language: cfg.Alignment.Language,
		})
		return NewWhisperXBackend(svc, time.Duration(cfg.Tools.AlignmentTimeout)*time.Second), nil
	case config.AlignmentTranscript:
		return TranscriptBackend{}, nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, stageName, "select backend",
			fmt.Sprintf("unknown alignment backend %q", cfg.Alignment.Backend), nil)
	}
}

// TranscriptBackend times words from their cues alone: each cue's span is
// shared among its words in proportion to their length.
type TranscriptBackend struct{}

// Name identifies the backend in alignment maps.
func (TranscriptBackend) Name() string { return config.AlignmentTranscript }

// Align ignores the audio.
func (TranscriptBackend) Align(ctx context.Context, in Input) ([]Word, error) {
	if err := ctx.Err(); err != nil {
		return nil, services.Wrap(services.ErrTimeout, stageName, "align", "cancelled", err)
	}
	return cueWords(in.Transcript), nil
}

// WhisperXBackend recognizes and force-aligns the vocal stem with WhisperX,
// then merges the recognized words into the transcript.
type WhisperXBackend struct {
	svc     *whisperx.Service
	timeout time.Duration
}

// NewWhisperXBackend wraps svc. A zero timeout leaves the run unbounded.
func NewWhisperXBackend(svc *whisperx.Service, timeout time.Duration) *WhisperXBackend {
	return &WhisperXBackend{svc: svc, timeout: timeout}
}

// Name identifies the backend and model.
func (b *WhisperXBackend) Name() string {
	return config.AlignmentWhisperX + ":" + b.svc.Model()
}

// Align runs WhisperX on in.AudioPath.
func (b *WhisperXBackend) Align(ctx context.Context, in Input) ([]Word, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	recognized, err := b.svc.Align(ctx, in.AudioPath, filepath.Join(in.WorkDir, "whisperx"))
	if err != nil {
		return nil, err
	}
	return Merge(cueWords(in.Transcript), recognized), nil
}

// cueWords spreads each cue's words across its interval.
func cueWords(t Transcript) []Word {
	var words []Word
	for _, cue := range t.Cues {
		tokens := textutil.Words(cue.Text)
		if len(tokens) == 0 {
			continue
		}
		weights := make([]float64, len(tokens))
		var total float64
		for i, tok := range tokens {
			weights[i] = float64(len([]rune(textutil.Normalize(tok)))) + 1
			total += weights[i]
		}
		span := cue.End - cue.Start
		at := cue.Start
		for i, tok := range tokens {
			end := at + span*weights[i]/total
			words = append(words, Word{Text: tok, Start: at, End: end})
			at = end
		}
	}
	return words
}
