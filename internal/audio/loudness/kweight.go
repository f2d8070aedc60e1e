package loudness

import "math"

// biquad is a direct form I second order section.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
}

func (f biquad) apply(in []float64) []float64 {
	out := make([]float64, len(in))
	var x1, x2, y1, y2 float64
	for i, x := range in {
		y := f.b0*x + f.b1*x1 + f.b2*x2 - f.a1*y1 - f.a2*y2
		x2, x1 = x1, x
		y2, y1 = y1, y
		out[i] = y
	}
	return out
}

// kWeighting returns the pre-filter shelf and RLB high-pass for sampleRate,
// derived from the analog prototypes so any rate is supported.
func kWeighting(sampleRate int) (shelf, highpass biquad) {
	rate := float64(sampleRate)

	f0 := 1681.974450955533
	gain := 3.999843853973347
	q := 0.7071752369554196
	k := math.Tan(math.Pi * f0 / rate)
	vh := math.Pow(10, gain/20)
	vb := math.Pow(vh, 0.4996667741545416)
	a0 := 1 + k/q + k*k
	shelf = biquad{
		b0: (vh + vb*k/q + k*k) / a0,
		b1: 2 * (k*k - vh) / a0,
		b2: (vh - vb*k/q + k*k) / a0,
		a1: 2 * (k*k - 1) / a0,
		a2: (1 - k/q + k*k) / a0,
	}

	f0 = 38.13547087602444
	q = 0.5003270373238773
	k = math.Tan(math.Pi * f0 / rate)
	a0 = 1 + k/q + k*k
	highpass = biquad{
		b0: 1,
		b1: -2,
		b2: 1,
		a1: 2 * (k*k - 1) / a0,
		a2: (1 - k/q + k*k) / a0,
	}
	return shelf, highpass
}
