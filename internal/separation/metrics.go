package separation

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"loopdeck/internal/audio/pcm"
)

// MetricCeiling caps SDR and SIR so perfect reconstructions stay finite.
const MetricCeiling = 60.0

// emptyStemDB is how far below the mix a vocal stem may be before it counts
// as nothing having been isolated.
const emptyStemDB = -60.0

// Metrics are the objective quality scores of a separation, in dB.
type Metrics struct {
	SDR float64 `json:"sdr"`
	SIR float64 `json:"sir"`
}

// Pass reports whether both scores meet their thresholds.
func (m Metrics) Pass(sdrThreshold, sirThreshold float64) bool {
	return m.SDR >= sdrThreshold && m.SIR >= sirThreshold
}

// Measure scores stems against the mix they came from. SDR is mixture
// consistency: mix energy over the energy of mix-(vocals+bed). SIR is
// -20·log10|ρ| for the Pearson correlation ρ between the mono vocal and bed
// stems. An empty vocal stem scores SIR 0.
func Measure(mix, vocals, bed *pcm.Buffer) Metrics {
	frames := min(mix.Frames(), vocals.Frames(), bed.Frames())
	var signal, residual float64
	for ch := 0; ch < mix.NumChannels(); ch++ {
		m := mix.Data[ch]
		v := channel(vocals, ch)
		b := channel(bed, ch)
		for i := 0; i < frames; i++ {
			signal += m[i] * m[i]
			d := m[i] - v[i] - b[i]
			residual += d * d
		}
	}
	metrics := Metrics{SDR: ratioDB(signal, residual)}

	vocalMono := vocals.Mono()[:frames]
	bedMono := bed.Mono()[:frames]
	vocalEnergy := energy(vocalMono)
	mixEnergy := energy(mix.Mono()[:frames])
	if mixEnergy == 0 || vocalEnergy <= mixEnergy*math.Pow(10, emptyStemDB/10) {
		metrics.SIR = 0
		return metrics
	}
	rho := stat.Correlation(vocalMono, bedMono, nil)
	if math.IsNaN(rho) {
		rho = 0
	}
	metrics.SIR = math.Min(MetricCeiling, -20*math.Log10(math.Max(math.Abs(rho), 1e-9)))
	return metrics
}

func channel(buf *pcm.Buffer, ch int) []float64 {
	return buf.Data[min(ch, buf.NumChannels()-1)]
}

func energy(samples []float64) float64 {
	var sum float64
	for _, v := range samples {
		sum += v * v
	}
	return sum
}

func ratioDB(signal, noise float64) float64 {
	if signal <= 0 {
		return 0
	}
	if noise <= 0 {
		return MetricCeiling
	}
	return math.Min(MetricCeiling, 10*math.Log10(signal/noise))
}
