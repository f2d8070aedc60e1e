package dsp

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// Options controls the short-time analysis.
type Options struct {
	FrameSize int
	Hop       int
	Bands     int
	MinHz     float64
	MaxHz     float64
}

// DefaultOptions matches the segmentation defaults in the config.
func DefaultOptions() Options {
	return Options{FrameSize: 2048, Hop: 512, Bands: 64, MinHz: 50, MaxHz: 11025}
}

func (o Options) withDefaults(sampleRate int) Options {
	def := DefaultOptions()
	if o.FrameSize <= 0 {
		o.FrameSize = def.FrameSize
	}
	if o.Hop <= 0 {
		o.Hop = def.Hop
	}
	if o.Bands <= 0 {
		o.Bands = def.Bands
	}
	if o.MinHz <= 0 {
		o.MinHz = def.MinHz
	}
	if o.MaxHz <= o.MinHz {
		o.MaxHz = def.MaxHz
	}
	if nyquist := float64(sampleRate) / 2; o.MaxHz > nyquist {
		o.MaxHz = nyquist
	}
	return o
}

// Features is the frame-level analysis of a mono signal. Frame i is centred
// on sample i*Hop.
type Features struct {
	SampleRate int
	FrameSize  int
	Hop        int
	BandEdges  []float64
	Bands      [][]float64
	Energy     []float64
	Onset      []float64
	Chroma     [][]float64
}

// Frames returns the number of analysis frames.
func (f *Features) Frames() int {
	return len(f.Bands)
}

// FrameRate returns analysis frames per second.
func (f *Features) FrameRate() float64 {
	return float64(f.SampleRate) / float64(f.Hop)
}

// FrameTime returns the centre time of frame i in seconds.
func (f *Features) FrameTime(i int) float64 {
	return float64(i*f.Hop) / float64(f.SampleRate)
}

// FrameAt returns the frame nearest to sec, clamped to the valid range.
func (f *Features) FrameAt(sec float64) int {
	i := int(math.Round(sec * f.FrameRate()))
	return max(0, min(i, f.Frames()-1))
}

// BandRange returns the band indices whose centre lies within [loHz, hiHz].
func (f *Features) BandRange(loHz, hiHz float64) (first, last int) {
	first, last = -1, -1
	for b := 0; b+1 < len(f.BandEdges); b++ {
		centre := math.Sqrt(f.BandEdges[b] * f.BandEdges[b+1])
		if centre >= loHz && centre <= hiHz {
			if first < 0 {
				first = b
			}
			last = b
		}
	}
	return first, last
}

// Analyze computes log-band power, frame energy, onset strength and chroma.
func Analyze(samples []float64, sampleRate int, opts Options) *Features {
	opts = opts.withDefaults(sampleRate)
	n := opts.FrameSize
	half := n / 2
	feats := &Features{
		SampleRate: sampleRate,
		FrameSize:  n,
		Hop:        opts.Hop,
		BandEdges:  logEdges(opts.Bands, opts.MinHz, opts.MaxHz),
	}
	if len(samples) == 0 || sampleRate <= 0 {
		return feats
	}

	binHz := float64(sampleRate) / float64(n)
	binBand, fillBin := assignBins(feats.BandEdges, half, binHz)
	pitchClass := chromaBins(half, binHz)

	frames := 1 + len(samples)/opts.Hop
	feats.Bands = make([][]float64, frames)
	feats.Energy = make([]float64, frames)
	feats.Onset = make([]float64, frames)
	feats.Chroma = make([][]float64, frames)

	window := hann(n)
	fft := fourier.NewFFT(n)
	seq := make([]float64, n)
	power := make([]float64, half+1)
	prevLog := make([]float64, opts.Bands)
	var coeffs []complex128

	for i := 0; i < frames; i++ {
		start := i*opts.Hop - half
		for j := range seq {
			idx := start + j
			v := 0.0
			if idx >= 0 && idx < len(samples) {
				v = samples[idx]
			}
			seq[j] = v * window[j]
		}
		coeffs = fft.Coefficients(coeffs, seq)
		for k, c := range coeffs {
			a := cmplx.Abs(c)
			power[k] = a * a
		}

		bands := make([]float64, opts.Bands)
		chroma := make([]float64, 12)
		for k := 1; k <= half; k++ {
			if b := binBand[k]; b >= 0 {
				bands[b] += power[k]
			}
			if pc := pitchClass[k]; pc >= 0 {
				chroma[pc] += power[k]
			}
		}
		for b, k := range fillBin {
			if k >= 0 {
				width := feats.BandEdges[b+1] - feats.BandEdges[b]
				bands[b] = power[k] * width / binHz
			}
		}
		if peak := floats.Max(chroma); peak > 0 {
			floats.Scale(1/peak, chroma)
		}

		var flux float64
		for b, p := range bands {
			l := math.Log1p(p)
			if i > 0 {
				if d := l - prevLog[b]; d > 0 {
					flux += d
				}
			}
			prevLog[b] = l
		}

		feats.Bands[i] = bands
		feats.Energy[i] = floats.Sum(bands)
		feats.Onset[i] = flux
		feats.Chroma[i] = chroma
	}
	return feats
}

func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

func logEdges(bands int, lo, hi float64) []float64 {
	edges := make([]float64, bands+1)
	ratio := math.Log(hi / lo)
	for i := range edges {
		edges[i] = lo * math.Exp(ratio*float64(i)/float64(bands))
	}
	return edges
}

// assignBins maps each FFT bin to its band. Bands narrower than a bin get the
// nearest bin's power scaled by relative width through fillBin.
func assignBins(edges []float64, half int, binHz float64) (binBand []int, fillBin []int) {
	bands := len(edges) - 1
	binBand = make([]int, half+1)
	counts := make([]int, bands)
	for k := range binBand {
		binBand[k] = -1
		f := float64(k) * binHz
		for b := 0; b < bands; b++ {
			if f >= edges[b] && f < edges[b+1] {
				binBand[k] = b
				counts[b]++
				break
			}
		}
	}
	fillBin = make([]int, bands)
	for b := range fillBin {
		fillBin[b] = -1
		if counts[b] == 0 {
			centre := math.Sqrt(edges[b] * edges[b+1])
			fillBin[b] = min(half, max(1, int(math.Round(centre/binHz))))
		}
	}
	return binBand, fillBin
}

func chromaBins(half int, binHz float64) []int {
	pcs := make([]int, half+1)
	for k := range pcs {
		pcs[k] = -1
		f := float64(k) * binHz
		if f < 65 || f > 2100 {
			continue
		}
		midi := 69 + 12*math.Log2(f/440)
		pcs[k] = ((int(math.Round(midi)) % 12) + 12) % 12
	}
	return pcs
}

// SilentFrames marks frames more than floorDB below the loudest frame, or
// with no energy at all.
func SilentFrames(energy []float64, floorDB float64) []bool {
	silent := make([]bool, len(energy))
	if len(energy) == 0 {
		return silent
	}
	peak := floats.Max(energy)
	threshold := peak * math.Pow(10, floorDB/10)
	for i, e := range energy {
		silent[i] = e <= 1e-12 || e < threshold
	}
	return silent
}
