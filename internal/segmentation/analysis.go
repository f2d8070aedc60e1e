package segmentation

import (
	"loopdeck/internal/audio/dsp"
	"loopdeck/internal/audio/pcm"
	"loopdeck/internal/config"
)

const (
	vocalLowHz   = 250.0
	vocalHighHz  = 3500.0
	silenceFloor = -60.0
	hpssTimeSpan = 8
	hpssFreqSpan = 4

	// Recurrence compares two-bar phrases (in 4/4) at least four bars apart.
	recurrencePath   = 8
	recurrenceMinLag = 16
)

// analysis holds the frame curves the window search runs on.
type analysis struct {
	feats    *dsp.Features
	duration float64
	bpm      float64
	beats    []float64
	// vocal and recurrence are per analysis frame, in [0,1].
	vocal      []float64
	recurrence []float64
	// firstRecurring is the start of the first beat whose phrase recurs, or
	// -1 when nothing in the track repeats.
	firstRecurring float64
}

func analyze(buf *pcm.Buffer, cfg config.Segmentation) *analysis {
	feats := dsp.Analyze(buf.Mono(), buf.SampleRate, dsp.Options{FrameSize: cfg.FrameSize, Hop: cfg.HopSize})
	a := &analysis{
		feats:          feats,
		duration:       buf.Duration(),
		recurrence:     make([]float64, feats.Frames()),
		firstRecurring: -1,
	}
	if feats.Frames() == 0 {
		return a
	}

	harmonic, _ := dsp.HPSS(feats.Bands, hpssTimeSpan, hpssFreqSpan)
	first, last := feats.BandRange(vocalLowHz, vocalHighHz)
	a.vocal = dsp.VocalActivity(feats.Energy, harmonic, first, last, dsp.SilentFrames(feats.Energy, silenceFloor))

	a.bpm = dsp.EstimateTempo(feats.Onset, feats.FrameRate())
	beatFrames := dsp.TrackBeats(feats.Onset, feats.FrameRate(), a.bpm)
	a.beats = feats.BeatTimes(beatFrames)
	if len(beatFrames) < 2 {
		return a
	}

	scores := dsp.Recurrence(dsp.BeatChroma(feats.Chroma, beatFrames), recurrencePath, recurrenceMinLag)
	for i, score := range scores {
		for f := beatFrames[i]; f < beatFrames[i+1] && f < len(a.recurrence); f++ {
			a.recurrence[f] = score
		}
		if a.firstRecurring < 0 && score >= cfg.RecurrenceThreshold {
			a.firstRecurring = a.beats[i]
		}
	}
	return a
}

// prefix returns running sums so window means cost O(1).
func prefix(values []float64) []float64 {
	out := make([]float64, len(values)+1)
	for i, v := range values {
		out[i+1] = out[i] + v
	}
	return out
}

func meanBetween(sums []float64, lo, hi int) float64 {
	lo = max(0, min(lo, len(sums)-1))
	hi = max(lo, min(hi, len(sums)-1))
	if hi == lo {
		return 0
	}
	return (sums[hi] - sums[lo]) / float64(hi-lo)
}
