package eligibility

import (
	"math"

	"loopdeck/internal/audio/dsp"
	"loopdeck/internal/audio/pcm"
)

const (
	vocalLowHz   = 250.0
	vocalHighHz  = 3500.0
	silenceFloor = -60.0
	hpssTimeSpan = 8
	hpssFreqSpan = 4
	scoreSlope   = 0.5
	ratioEpsilon = 1e-12
)

// ScoreVocalPresence returns a score in [0,1]. The mix is split into
// harmonic and percussive band energy; the score is tanh(0.5·r) where r is
// the harmonic energy inside the vocal band over the percussive energy, both
// summed over non-silent frames. Silence scores 0.
func ScoreVocalPresence(buf *pcm.Buffer) float64 {
	if buf == nil || buf.Frames() == 0 {
		return 0
	}
	feats := dsp.Analyze(buf.Mono(), buf.SampleRate, dsp.DefaultOptions())
	return scoreFeatures(feats)
}

func scoreFeatures(feats *dsp.Features) float64 {
	if feats.Frames() == 0 {
		return 0
	}
	harmonic, percussive := dsp.HPSS(feats.Bands, hpssTimeSpan, hpssFreqSpan)
	first, last := feats.BandRange(vocalLowHz, vocalHighHz)
	silent := dsp.SilentFrames(feats.Energy, silenceFloor)

	var vocal, perc float64
	active := 0
	for i := range harmonic {
		if silent[i] {
			continue
		}
		active++
		for b := first; b >= 0 && b <= last; b++ {
			vocal += harmonic[i][b]
		}
		for _, p := range percussive[i] {
			perc += p
		}
	}
	if active == 0 || vocal <= 0 {
		return 0
	}
	ratio := vocal / (perc + ratioEpsilon)
	return math.Tanh(scoreSlope * ratio)
}
