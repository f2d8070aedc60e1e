package segmentation

import (
	"fmt"
	"math"
	"slices"

	"loopdeck/internal/services"
)

// SeamReport summarizes the simulated loop playback.
type SeamReport struct {
	Seams            int     `json:"seams"`
	SimulatedSeconds float64 `json:"simulated_seconds"`
	MaxRMSJumpDB     float64 `json:"max_rms_jump_db"`
	MaxStepRatio     float64 `json:"max_step_ratio"`
	Pass             bool    `json:"pass"`
}

// Segment describes the loop cut from a track. Times are seconds into the
// source audio.
type Segment struct {
	SourceID      string     `json:"source_id,omitempty"`
	StartSec      float64    `json:"start"`
	EndSec        float64    `json:"end"`
	CrossfadeMs   int        `json:"crossfade_ms"`
	LoopSeconds   float64    `json:"loop_seconds"`
	BPM           float64    `json:"bpm"`
	Key           string     `json:"key"`
	Mode          string     `json:"mode,omitempty"`
	KeyConfidence float64    `json:"key_confidence,omitempty"`
	VocalScore    float64    `json:"vocal_score"`
	VocalDensity  float64    `json:"vocal_density"`
	Recurrence    float64    `json:"recurrence"`
	LoudnessLUFS  float64    `json:"loudness_lufs"`
	TruePeakDBTP  float64    `json:"true_peak_dbtp"`
	GainDB        float64    `json:"gain_db"`
	Beats         []float64  `json:"beats,omitempty"`
	Seam          SeamReport `json:"seam"`
	Flags         []string   `json:"flags,omitempty"`
}

// Duration returns the window length.
func (s Segment) Duration() float64 {
	return s.EndSec - s.StartSec
}

// Validate checks the loop bounds and crossfade invariants. A rendered loop
// must match the window to within a frame of rounding.
func (s Segment) Validate(minSeconds, maxSeconds float64) error {
	const (
		slack      = 1e-6
		frameSlack = 1e-3
	)
	length := s.Duration()
	switch {
	case s.StartSec < 0 || math.IsNaN(length):
		return services.Wrap(services.ErrValidation, stageName, "validate segment",
			fmt.Sprintf("invalid window %.3f-%.3f", s.StartSec, s.EndSec), nil)
	case length < minSeconds-slack || length > maxSeconds+slack:
		return services.Wrap(services.ErrValidation, stageName, "validate segment",
			fmt.Sprintf("loop length %.3fs outside [%.0f, %.0f]", length, minSeconds, maxSeconds), nil)
	case s.LoopSeconds != 0 && math.Abs(s.LoopSeconds-length) > frameSlack:
		return services.Wrap(services.ErrValidation, stageName, "validate segment",
			fmt.Sprintf("rendered loop is %.4fs for a %.3fs window", s.LoopSeconds, length), nil)
	case s.CrossfadeMs <= 0 || float64(s.CrossfadeMs*2) >= length*1000:
		return services.Wrap(services.ErrValidation, stageName, "validate segment",
			fmt.Sprintf("crossfade %dms does not fit a %.3fs loop", s.CrossfadeMs, length), nil)
	}
	return nil
}

// HasFlag reports whether the segment carries the quality flag.
func (s Segment) HasFlag(flag string) bool {
	return slices.Contains(s.Flags, flag)
}
