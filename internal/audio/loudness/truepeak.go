package loudness

import (
	"math"

	"loopdeck/internal/audio/pcm"
)

const (
	oversample = 4
	halfTaps   = 12
)

// interpolation holds one windowed-sinc FIR per fractional phase.
var interpolation = buildInterpolation()

func buildInterpolation() [oversample][2 * halfTaps]float64 {
	var taps [oversample][2 * halfTaps]float64
	span := float64(2 * halfTaps)
	for p := 1; p < oversample; p++ {
		frac := float64(p) / oversample
		for m := -halfTaps + 1; m <= halfTaps; m++ {
			x := frac - float64(m)
			sinc := 1.0
			if x != 0 {
				sinc = math.Sin(math.Pi*x) / (math.Pi * x)
			}
			pos := (x + halfTaps) / span
			window := 0.5 - 0.5*math.Cos(2*math.Pi*pos)
			taps[p][m+halfTaps-1] = sinc * window
		}
	}
	return taps
}

// TruePeak returns the 4x oversampled peak of buf in dBTP.
func TruePeak(buf *pcm.Buffer) float64 {
	return toDB(truePeakLinear(buf))
}

func truePeakLinear(buf *pcm.Buffer) float64 {
	if buf == nil {
		return 0
	}
	var peak float64
	for _, samples := range buf.Data {
		n := len(samples)
		for i := 0; i < n; i++ {
			peak = math.Max(peak, math.Abs(samples[i]))
			for p := 1; p < oversample; p++ {
				var acc float64
				for m := -halfTaps + 1; m <= halfTaps; m++ {
					idx := i + m
					if idx < 0 || idx >= n {
						continue
					}
					acc += samples[idx] * interpolation[p][m+halfTaps-1]
				}
				peak = math.Max(peak, math.Abs(acc))
			}
		}
	}
	return peak
}

func toDB(linear float64) float64 {
	if linear <= 0 {
		return Silence
	}
	return 20 * math.Log10(linear)
}
