package dsp

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// PitchClassNames indexes pitch classes from C.
var PitchClassNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

var (
	majorProfile = []float64{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88}
	minorProfile = []float64{6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17}
)

// Key is a tonal centre estimate.
type Key struct {
	Tonic      int
	Mode       string
	Confidence float64
}

// Name returns the tonic pitch class name.
func (k Key) Name() string {
	return PitchClassNames[((k.Tonic%12)+12)%12]
}

// MeanChroma averages chroma over frames.
func MeanChroma(chroma [][]float64) []float64 {
	mean := make([]float64, 12)
	if len(chroma) == 0 {
		return mean
	}
	for _, frame := range chroma {
		for pc, v := range frame {
			mean[pc] += v
		}
	}
	for pc := range mean {
		mean[pc] /= float64(len(chroma))
	}
	return mean
}

// EstimateKey correlates mean chroma with the Krumhansl-Schmuckler major and
// minor profiles in all twelve rotations. Flat chroma yields C major with zero
// confidence.
func EstimateKey(meanChroma []float64) Key {
	best := Key{Tonic: 0, Mode: "major"}
	if len(meanChroma) != 12 || stat.StdDev(meanChroma, nil) == 0 {
		return best
	}
	rotated := make([]float64, 12)
	bestCorr := math.Inf(-1)
	for _, mode := range []struct {
		name    string
		profile []float64
	}{{"major", majorProfile}, {"minor", minorProfile}} {
		for tonic := 0; tonic < 12; tonic++ {
			for pc := 0; pc < 12; pc++ {
				rotated[pc] = mode.profile[(pc-tonic+12)%12]
			}
			corr := stat.Correlation(meanChroma, rotated, nil)
			if corr > bestCorr {
				bestCorr = corr
				best = Key{Tonic: tonic, Mode: mode.name, Confidence: corr}
			}
		}
	}
	return best
}
