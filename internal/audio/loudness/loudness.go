package loudness

import (
	"math"

	"loopdeck/internal/audio/pcm"
)

const (
	blockSeconds   = 0.4
	stepSeconds    = 0.1
	absoluteGate   = -70.0
	relativeGateDB = -10.0
)

// Silence is reported for buffers with no gated blocks.
var Silence = math.Inf(-1)

// Integrated returns the gated integrated loudness of buf in LUFS.
func Integrated(buf *pcm.Buffer) float64 {
	if buf == nil || buf.SampleRate <= 0 || buf.Frames() == 0 {
		return Silence
	}
	shelf, highpass := kWeighting(buf.SampleRate)
	weighted := make([][]float64, buf.NumChannels())
	for ch, samples := range buf.Data {
		weighted[ch] = highpass.apply(shelf.apply(samples))
	}

	frames := buf.Frames()
	block := int(blockSeconds * float64(buf.SampleRate))
	step := int(stepSeconds * float64(buf.SampleRate))
	if frames < block {
		block = frames
	}

	var powers []float64
	for start := 0; start+block <= frames; start += step {
		var z float64
		for _, samples := range weighted {
			var sum float64
			for _, v := range samples[start : start+block] {
				sum += v * v
			}
			z += sum / float64(block)
		}
		powers = append(powers, z)
	}

	gated := gate(powers, absoluteGate)
	if len(gated) == 0 {
		return Silence
	}
	relative := blockLoudness(mean(gated)) + relativeGateDB
	gated = gate(gated, relative)
	if len(gated) == 0 {
		return Silence
	}
	return blockLoudness(mean(gated))
}

func gate(powers []float64, thresholdLUFS float64) []float64 {
	out := make([]float64, 0, len(powers))
	for _, z := range powers {
		if blockLoudness(z) > thresholdLUFS {
			out = append(out, z)
		}
	}
	return out
}

func blockLoudness(z float64) float64 {
	if z <= 0 {
		return Silence
	}
	return -0.691 + 10*math.Log10(z)
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
