package segmentation

import (
	"math"

	"loopdeck/internal/audio/dsp"
	"loopdeck/internal/audio/loudness"
	"loopdeck/internal/audio/pcm"
	"loopdeck/internal/config"
	"loopdeck/internal/services"
)

// lufsFloor replaces -Inf loudness so segment metadata stays valid JSON.
const lufsFloor = -70.0

// Result is a rendered loop and its metadata.
type Result struct {
	Segment Segment
	Loop    *pcm.Buffer
}

// Engine runs window selection, loop rendering and the loop quality checks.
// It holds no state between runs; the same audio always yields the same loop.
type Engine struct {
	cfg config.Segmentation
}

// NewEngine returns an engine for the given settings.
func NewEngine(cfg config.Segmentation) *Engine {
	return &Engine{cfg: cfg}
}

// Run cuts the best loop from buf. vocalScore is the track's eligibility
// score, carried into the metadata. Quality problems do not fail the run;
// they are reported in Segment.Flags for review.
func (e *Engine) Run(buf *pcm.Buffer, vocalScore float64) (*Result, error) {
	if err := buf.Validate(); err != nil {
		return nil, services.Wrap(services.ErrValidation, stageName, "load audio", "decoded audio is unusable", err)
	}
	a := analyze(buf, e.cfg)
	best, err := rankWindows(a, e.cfg)
	if err != nil {
		return nil, err
	}
	startSec, endSec := snapWindow(best, a.beats, a.duration, e.cfg)

	rate := buf.SampleRate
	xf := e.cfg.CrossfadeMs * rate / 1000
	loop := renderLoop(buf, buf.Frame(startSec), buf.Frame(endSec), xf)

	target := loudness.Target{
		LUFS:            e.cfg.TargetLUFS,
		Tolerance:       e.cfg.LUFSTolerance,
		TruePeakCeiling: e.cfg.TruePeakCeiling,
	}
	normalized, norm, err := loudness.Normalize(loop, target)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, stageName, "normalize", "loudness normalization failed", err)
	}
	seam := CheckSeams(normalized, SeamLimits{
		Minutes:      e.cfg.SeamSimulateMinutes,
		MaxRMSJumpDB: e.cfg.SeamMaxRMSJumpDB,
		MaxStepRatio: e.cfg.SeamMaxStepRatio,
	})

	lo, hi := a.feats.FrameAt(startSec), a.feats.FrameAt(endSec)
	key := dsp.Key{Mode: "major"}
	if hi > lo {
		key = dsp.EstimateKey(dsp.MeanChroma(a.feats.Chroma[lo:hi]))
	}

	seg := Segment{
		StartSec:      startSec,
		EndSec:        endSec,
		CrossfadeMs:   e.cfg.CrossfadeMs,
		LoopSeconds:   normalized.Duration(),
		BPM:           round(a.bpm, 2),
		Key:           key.Name(),
		Mode:          key.Mode,
		KeyConfidence: round(key.Confidence, 3),
		VocalScore:    vocalScore,
		VocalDensity:  round(best.vocal, 4),
		Recurrence:    round(best.recurrence, 4),
		LoudnessLUFS:  finite(norm.OutputLUFS),
		TruePeakDBTP:  finite(norm.TruePeakDBTP),
		GainDB:        round(norm.GainDB, 3),
		Beats:         loopBeats(a.beats, startSec, startSec+normalized.Duration()),
		Seam:          seam,
	}
	if !seam.Pass {
		seg.Flags = append(seg.Flags, services.FlagSeamDiscontinuity)
	}
	if norm.PeakExceeded(target) {
		seg.Flags = append(seg.Flags, services.FlagTruePeakExceeded)
	}
	if !norm.WithinTolerance(target) {
		seg.Flags = append(seg.Flags, services.FlagLoudnessOutOfTolerance)
	}
	if err := seg.Validate(e.cfg.MinSeconds, e.cfg.MaxSeconds); err != nil {
		return nil, err
	}
	return &Result{Segment: seg, Loop: normalized}, nil
}

// loopBeats returns beat times inside [start, end) relative to start.
func loopBeats(beats []float64, start, end float64) []float64 {
	var out []float64
	for _, b := range beats {
		if b >= start-scoreEpsilon && b < end {
			out = append(out, round(math.Max(0, b-start), 4))
		}
	}
	return out
}

func finite(v float64) float64 {
	switch {
	case math.IsInf(v, -1) || math.IsNaN(v):
		return lufsFloor
	case math.IsInf(v, 1):
		return 0
	}
	return round(v, 3)
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
