package separation

import (
	"context"
	"math"
	"math/cmplx"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/dsp/fourier"

	"loopdeck/internal/audio/pcm"
	"loopdeck/internal/config"
	"loopdeck/internal/services"
)

const (
	centerFrame = 4096
	centerLowHz = 120.0
	centerHiHz  = 8000.0
	// centerSharpness raises the inter-channel coherence so only content
	// panned close to the centre is kept.
	centerSharpness = 4
)

// CenterBackend extracts content panned to the centre of a stereo mix. Each
// STFT bin in the vocal range is kept in proportion to how coherent the two
// channels are there; the bed is the mix minus that estimate, so the stems
// always sum back to the input.
type CenterBackend struct{}

// NewCenterBackend returns the in-process backend.
func NewCenterBackend() *CenterBackend { return &CenterBackend{} }

// Name identifies the backend in QA reports.
func (*CenterBackend) Name() string { return config.SeparationCenter }

// Separate reads in.AudioPath and writes both stems under in.WorkDir.
func (b *CenterBackend) Separate(ctx context.Context, in Input) (Stems, error) {
	mix, err := pcm.ReadFile(in.AudioPath)
	if err != nil {
		return Stems{}, services.Wrap(services.ErrValidation, stageName, "read mix", in.AudioPath, err)
	}
	vocals, bed, err := ExtractCenter(ctx, mix)
	if err != nil {
		return Stems{}, err
	}
	dir := filepath.Join(in.WorkDir, config.SeparationCenter)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Stems{}, services.Wrap(services.ErrConfiguration, stageName, "ensure stem dir", dir, err)
	}
	stems := Stems{
		VocalsPath: filepath.Join(dir, "vocals.wav"),
		BedPath:    filepath.Join(dir, "no_vocals.wav"),
	}
	if err := pcm.WriteFile(stems.VocalsPath, vocals, pcm.Float32); err != nil {
		return Stems{}, services.Wrap(services.ErrTransientSeparation, stageName, "write vocals", stems.VocalsPath, err)
	}
	if err := pcm.WriteFile(stems.BedPath, bed, pcm.Float32); err != nil {
		return Stems{}, services.Wrap(services.ErrTransientSeparation, stageName, "write bed", stems.BedPath, err)
	}
	return stems, nil
}

// ExtractCenter splits mix into a centre estimate and the residual. It uses a
// square-root Hann window at 50% overlap for both analysis and synthesis,
// which reconstructs the input exactly when nothing is masked.
func ExtractCenter(ctx context.Context, mix *pcm.Buffer) (vocals, bed *pcm.Buffer, err error) {
	if err := mix.Validate(); err != nil {
		return nil, nil, services.Wrap(services.ErrValidation, stageName, "extract centre", "unusable mix", err)
	}
	frames := mix.Frames()
	channels := mix.NumChannels()
	vocals = pcm.New(mix.SampleRate, channels, frames)
	bed = mix.Clone()
	if frames == 0 {
		return vocals, bed, nil
	}

	left := mix.Data[0]
	right := mix.Data[min(1, channels-1)]
	n := centerFrame
	hop := n / 2
	window := sqrtHann(n)
	fft := fourier.NewFFT(n)
	binHz := float64(mix.SampleRate) / float64(n)
	lo := int(math.Ceil(centerLowHz / binHz))
	hi := min(n/2, int(math.Floor(centerHiHz/binHz)))

	segL := make([]float64, n)
	segR := make([]float64, n)
	centre := make([]complex128, n/2+1)
	out := make([]float64, n)
	var specL, specR []complex128
	estimate := make([]float64, frames)

	for start := -hop; start < frames; start += hop {
		if err := ctx.Err(); err != nil {
			return nil, nil, services.Wrap(services.ErrTimeout, stageName, "extract centre", "cancelled", err)
		}
		for j := 0; j < n; j++ {
			idx := start + j
			var l, r float64
			if idx >= 0 && idx < frames {
				l, r = left[idx], right[idx]
			}
			segL[j] = l * window[j]
			segR[j] = r * window[j]
		}
		specL = fft.Coefficients(specL, segL)
		specR = fft.Coefficients(specR, segR)
		for k := range centre {
			centre[k] = 0
			if k < lo || k > hi {
				continue
			}
			cl, cr := specL[k], specR[k]
			power := real(cl)*real(cl) + imag(cl)*imag(cl) + real(cr)*real(cr) + imag(cr)*imag(cr)
			if power <= 1e-20 {
				continue
			}
			coherence := math.Max(0, 2*real(cl*cmplx.Conj(cr))/power)
			centre[k] = complex(math.Pow(coherence, centerSharpness), 0) * (cl + cr) / 2
		}
		out = fft.Sequence(out, centre)
		for j := 0; j < n; j++ {
			idx := start + j
			if idx >= 0 && idx < frames {
				estimate[idx] += out[j] / float64(n) * window[j]
			}
		}
	}

	for ch := 0; ch < channels; ch++ {
		copy(vocals.Data[ch], estimate)
		for i, v := range estimate {
			bed.Data[ch][i] -= v
		}
	}
	return vocals, bed, nil
}

func sqrtHann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = math.Sqrt(0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n)))
	}
	return w
}
