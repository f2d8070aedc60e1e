package alignment

import (
	"math"

	"loopdeck/internal/config"
)

// WarpParams describe the player the warp is built for. They are stored in
// the alignment map so a client can reproduce the mapping.
type WarpParams struct {
	SampleRate     int     `json:"sample_rate"`
	StretchHop     int     `json:"stretch_hop"`
	PitchLatencyMs float64 `json:"pitch_latency_ms"`
	TempoMin       float64 `json:"tempo_min"`
	TempoMax       float64 `json:"tempo_max"`
	PitchMin       float64 `json:"pitch_min"`
	PitchMax       float64 `json:"pitch_max"`
}

// ParamsFromConfig builds warp parameters for audio at sampleRate.
func ParamsFromConfig(a config.Alignment, sampleRate int) WarpParams {
	return WarpParams{
		SampleRate:     sampleRate,
		StretchHop:     a.StretchHop,
		PitchLatencyMs: a.PitchLatencyMs,
		TempoMin:       a.TempoMin,
		TempoMax:       a.TempoMax,
		PitchMin:       a.PitchMin,
		PitchMax:       a.PitchMax,
	}
}

// The player resamples by 2^(pitch/12) to shift pitch and time-stretches by
// tempo/2^(pitch/12) to restore the requested tempo. The stretcher emits
// StretchHop samples per frame and consumes a whole number of input samples
// per frame, so the tempo it actually plays is quantized. A pitch shift adds
// a fixed output latency.

// hops returns the stretcher's input hop and the resampling ratio.
func (p WarpParams) hops(tempo, pitch float64) (analysis int, resample float64) {
	resample = math.Pow(2, pitch/12)
	analysis = max(1, int(math.Round(float64(p.StretchHop)*tempo/resample)))
	return analysis, resample
}

// rate is loop seconds consumed per second heard.
func (p WarpParams) rate(tempo, pitch float64) float64 {
	analysis, resample := p.hops(tempo, pitch)
	return resample * float64(analysis) / float64(p.StretchHop)
}

func (p WarpParams) latency(pitch float64) float64 {
	if pitch == 0 {
		return 0
	}
	return p.PitchLatencyMs / 1000
}

// Warp maps stored loop timestamps to heard time.
type Warp struct {
	m      *Map
	params WarpParams
}

// NewWarp returns the runtime warp for m.
func NewWarp(m *Map, params WarpParams) *Warp {
	if params.SampleRate <= 0 {
		params.SampleRate = m.SampleRate
	}
	if params.StretchHop <= 0 {
		params.StretchHop = 256
	}
	return &Warp{m: m, params: params}
}

// Params returns the player model in use.
func (w *Warp) Params() WarpParams { return w.params }

// clamp limits tempo and pitch to the supported range.
func (w *Warp) clamp(tempo, pitch float64) (float64, float64) {
	p := w.params
	if p.TempoMax > p.TempoMin {
		tempo = min(max(tempo, p.TempoMin), p.TempoMax)
	}
	if p.PitchMax > p.PitchMin {
		pitch = min(max(pitch, p.PitchMin), p.PitchMax)
	}
	if tempo <= 0 {
		tempo = 1
	}
	return tempo, pitch
}

func (w *Warp) loopSamples() int {
	return int(math.Round(w.m.LoopSeconds * float64(w.params.SampleRate)))
}

// LoopPeriod is how long one pass of the loop lasts when heard. The player
// restarts the stretcher at every loop boundary, so a pass always takes a
// whole number of stretcher frames.
func (w *Warp) LoopPeriod(tempo, pitch float64) float64 {
	tempo, pitch = w.clamp(tempo, pitch)
	analysis, resample := w.params.hops(tempo, pitch)
	frames := (w.loopSamples() + analysis - 1) / analysis
	return float64(frames*w.params.StretchHop) / (float64(w.params.SampleRate) * resample)
}

// Map returns when stored time t is heard, measured from the start of the
// current loop pass: t scaled by the stretcher's effective rate plus the
// pitch shifter's latency. Nothing carries over from earlier passes.
func (w *Warp) Map(t, tempo, pitch float64) float64 {
	tempo, pitch = w.clamp(tempo, pitch)
	return t/w.params.rate(tempo, pitch) + w.params.latency(pitch)
}

// PlaybackTime returns when stored time t is heard during pass loop
// (zero-based), measured from the start of playback. Each pass starts at a
// whole LoopPeriod, where the player restarts the stretcher at t'=0, so
// error in one pass never reaches the next.
func (w *Warp) PlaybackTime(t float64, loop int, tempo, pitch float64) float64 {
	return float64(loop)*w.LoopPeriod(tempo, pitch) + w.Map(t, tempo, pitch)
}

// Locate inverts PlaybackTime: it returns the loop pass and stored time
// being heard at playback position pos.
func (w *Warp) Locate(pos, tempo, pitch float64) (loop int, t float64) {
	tempo, pitch = w.clamp(tempo, pitch)
	period := w.LoopPeriod(tempo, pitch)
	if pos < 0 || period <= 0 {
		return 0, 0
	}
	loop = int(math.Floor(pos / period))
	within := pos - float64(loop)*period
	t = (within - w.params.latency(pitch)) * w.params.rate(tempo, pitch)
	return loop, min(max(t, 0), w.m.LoopSeconds)
}

// ActiveWord returns the index of the word being sung at playback position
// pos, or -1 between words.
func (w *Warp) ActiveWord(pos, tempo, pitch float64) int {
	_, t := w.Locate(pos, tempo, pitch)
	for i, word := range w.m.Words {
		if t >= word.Start && t < word.End {
			return i
		}
	}
	return -1
}

// NaiveMap is the global linear mapping (loop*L + t)/tempo. It ignores the
// stretcher's quantization and the pitch latency, and never re-anchors, so
// its error grows with every loop pass.
func (w *Warp) NaiveMap(t float64, loop int, tempo float64) float64 {
	if tempo <= 0 {
		tempo = 1
	}
	return (float64(loop)*w.m.LoopSeconds + t) / tempo
}
