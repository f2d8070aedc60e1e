package separation

import (
	"fmt"
	"math"

	"loopdeck/internal/config"
)

// Result is the separation outcome stored on the track and in the catalog.
// Refs are storage keys.
type Result struct {
	Backend      string  `json:"backend"`
	VocalRef     string  `json:"vocal_ref"`
	BedRef       string  `json:"bed_ref"`
	SDR          float64 `json:"sdr"`
	SIR          float64 `json:"sir"`
	SDRThreshold float64 `json:"sdr_threshold"`
	SIRThreshold float64 `json:"sir_threshold"`
	QAPass       bool    `json:"qa_pass"`
}

// Targets are the playback tolerances a published loop is expected to meet.
type Targets struct {
	LoopTargetMinutes    float64 `json:"loop_target_minutes"`
	LyricSyncToleranceMs float64 `json:"lyric_sync_tolerance_ms"`
	TempoVariation       string  `json:"tempo_variation"`
	PitchVariation       string  `json:"pitch_variation"`
}

// QAReport is metadata/{id}_qa.json.
type QAReport struct {
	SourceID   string  `json:"source_id"`
	Separation Result  `json:"separation"`
	QA         Targets `json:"qa"`
}

// TargetsFromConfig describes the configured playback tolerances.
func TargetsFromConfig(a config.Alignment) Targets {
	tempo := math.Max(math.Abs(1-a.TempoMin), math.Abs(a.TempoMax-1))
	pitch := math.Max(math.Abs(a.PitchMin), math.Abs(a.PitchMax))
	return Targets{
		LoopTargetMinutes:    a.LoopTargetMinutes,
		LyricSyncToleranceMs: a.SyncToleranceMs,
		TempoVariation:       fmt.Sprintf("±%.0f%%", tempo*100),
		PitchVariation:       fmt.Sprintf("±%g semitones", pitch),
	}
}
