package loudness_test

import (
	"math"
	"testing"

	"loopdeck/internal/audio/loudness"
	"loopdeck/internal/audio/pcm"
	"loopdeck/internal/testsupport"
)

func stereo(samples []float64) *pcm.Buffer {
	left := append([]float64(nil), samples...)
	right := append([]float64(nil), samples...)
	return &pcm.Buffer{SampleRate: testsupport.SampleRate, Data: [][]float64{left, right}}
}

func TestIntegratedOfReferenceTone(t *testing.T) {
	// A 997 Hz full-scale sine in one channel reads -3.01 LUFS.
	mono := &pcm.Buffer{SampleRate: testsupport.SampleRate, Data: [][]float64{testsupport.Sine(5, 997, 1)}}
	if got := loudness.Integrated(mono); math.Abs(got+3.01) > 0.3 {
		t.Fatalf("expected ~-3.01 LUFS, got %.2f", got)
	}

	// Same tone at -20 dBFS in both channels reads ~-20 LUFS.
	buf := stereo(testsupport.Sine(5, 997, 0.1))
	if got := loudness.Integrated(buf); math.Abs(got+20) > 0.3 {
		t.Fatalf("expected ~-20 LUFS, got %.2f", got)
	}
}

func TestIntegratedGatesSilence(t *testing.T) {
	tone := testsupport.Sine(4, 997, 0.1)
	padded := append(make([]float64, testsupport.SampleRate*8), tone...)
	withSilence := loudness.Integrated(stereo(padded))
	plain := loudness.Integrated(stereo(tone))
	if math.Abs(withSilence-plain) > 0.2 {
		t.Fatalf("expected absolute gate to ignore silence: %.2f vs %.2f", withSilence, plain)
	}
	if got := loudness.Integrated(stereo(make([]float64, testsupport.SampleRate))); !math.IsInf(got, -1) {
		t.Fatalf("expected -Inf for silence, got %f", got)
	}
}

func TestTruePeakFindsInterSamplePeak(t *testing.T) {
	n := testsupport.SampleRate
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(math.Pi/2*float64(i)+math.Pi/4)
	}
	buf := stereo(samples)
	samplePeak := 20 * math.Log10(buf.Peak())
	truePeak := loudness.TruePeak(buf)
	if math.Abs(samplePeak-20*math.Log10(0.5*math.Sqrt2/2)) > 0.01 {
		t.Fatalf("unexpected sample peak %.2f", samplePeak)
	}
	if math.Abs(truePeak-20*math.Log10(0.5)) > 0.5 {
		t.Fatalf("expected true peak near -6.02 dBTP, got %.2f", truePeak)
	}
}

func TestNormalizeHitsTargetAndIsIdempotent(t *testing.T) {
	target := loudness.Target{LUFS: -14, Tolerance: 1, TruePeakCeiling: -1.5}
	song := testsupport.PopSong().Slice(0, testsupport.SampleRate*20)

	once, first, err := loudness.Normalize(song, target)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !first.WithinTolerance(target) {
		t.Fatalf("expected output within tolerance, got %+v", first)
	}
	if math.Abs(loudness.Integrated(once)-first.OutputLUFS) > 1e-9 {
		t.Fatalf("reported loudness differs from measured")
	}

	_, second, err := loudness.Normalize(once, target)
	if err != nil {
		t.Fatalf("Normalize again: %v", err)
	}
	if delta := math.Abs(second.OutputLUFS - first.OutputLUFS); delta >= 0.1 {
		t.Fatalf("expected idempotent normalization, changed by %.4f dB", delta)
	}
	if math.Abs(second.GainDB) >= 0.1 {
		t.Fatalf("expected negligible gain on second pass, got %.4f", second.GainDB)
	}
}

func TestNormalizeLeavesInputUntouched(t *testing.T) {
	buf := stereo(testsupport.Sine(2, 440, 0.05))
	before := buf.Data[0][100]
	if _, _, err := loudness.Normalize(buf, loudness.Target{LUFS: -14, Tolerance: 1, TruePeakCeiling: -1.5}); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if buf.Data[0][100] != before {
		t.Fatal("expected input buffer unchanged")
	}
}

func TestNormalizeReportsPeakOverCeiling(t *testing.T) {
	// Sparse clicks are quiet on average but peaky, so matching -14 LUFS pushes peaks past the ceiling.
	buf := stereo(testsupport.ClickTrack(6, 60, 0.3))
	target := loudness.Target{LUFS: -14, Tolerance: 1, TruePeakCeiling: -1.5}
	_, res, err := loudness.Normalize(buf, target)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !res.PeakExceeded(target) {
		t.Fatalf("expected true peak over ceiling, got %+v", res)
	}
}

func TestNormalizeSilence(t *testing.T) {
	buf := stereo(make([]float64, testsupport.SampleRate))
	out, res, err := loudness.Normalize(buf, loudness.Target{LUFS: -14})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if res.GainDB != 0 || out.Peak() != 0 {
		t.Fatalf("expected silence untouched, got %+v", res)
	}
}
