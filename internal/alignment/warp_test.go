package alignment_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loopdeck/internal/alignment"
	"loopdeck/internal/config"
)

const sessionSeconds = 300

func lyricMap(t *testing.T, loopSeconds float64) *alignment.Map {
	t.Helper()
	var words []alignment.Word
	for s := 0.2; s+0.3 < loopSeconds; s += 0.37 {
		words = append(words, alignment.Word{Text: "la", Start: s, End: s + 0.3})
	}
	m, err := alignment.Build("vid", loopSeconds, 44100, words, beatGrid(0.5, loopSeconds))
	require.NoError(t, err)
	return m
}

func newWarp(t *testing.T, loopSeconds float64) *alignment.Warp {
	t.Helper()
	return alignment.NewWarp(lyricMap(t, loopSeconds), alignment.ParamsFromConfig(config.Default().Alignment, 44100))
}

func TestWarpStaysWithinToleranceAcrossRange(t *testing.T) {
	w := newWarp(t, 48)
	for _, tempo := range []float64{0.9, 0.95, 1, 1.05, 1.1} {
		for _, pitch := range []float64{-2, -1, 0, 1, 2} {
			report := w.EvaluateSync(tempo, pitch, sessionSeconds, 100)
			assert.Truef(t, report.Pass, "tempo %.2f pitch %.0f: %+v", tempo, pitch, report)
			assert.Lessf(t, report.MaxErrorMs, 2.0, "tempo %.2f pitch %.0f", tempo, pitch)
		}
	}
}

func TestWarpErrorDoesNotCompoundAcrossLoops(t *testing.T) {
	w := newWarp(t, 48)
	report := w.EvaluateSync(1.1, 0, sessionSeconds, 100)
	require.Equal(t, 7, report.Loops)
	require.Len(t, report.LoopMaxErrorMs, 7)
	first := report.LoopMaxErrorMs[0]
	for i, e := range report.LoopMaxErrorMs {
		assert.LessOrEqualf(t, e, first+0.01, "loop %d error grew from %.3f to %.3f ms", i, first, e)
	}
}

func TestPlaybackTimeRestartsEveryPass(t *testing.T) {
	w := newWarp(t, 48)
	period := w.LoopPeriod(1.05, 1)
	require.Greater(t, period, 0.0)
	for _, stored := range []float64{0, 0.25, 12.3, 47.9} {
		first := w.PlaybackTime(stored, 0, 1.05, 1)
		assert.InDelta(t, w.Map(stored, 1.05, 1), first, 1e-12)
		for loop := 1; loop < 6; loop++ {
			assert.InDeltaf(t, first+float64(loop)*period, w.PlaybackTime(stored, loop, 1.05, 1), 1e-9,
				"stored %.2f pass %d", stored, loop)
		}
	}

	// Only the loop length and player model decide timing, not where the
	// beat grid starts.
	params := alignment.ParamsFromConfig(config.Default().Alignment, 44100)
	words := []alignment.Word{{Text: "la", Start: 3, End: 3.4}}
	early, err := alignment.Build("vid", 48, 44100, words, beatGrid(0.5, 48))
	require.NoError(t, err)
	shifted, err := alignment.Build("vid", 48, 44100, words, shiftedGrid(0.5, 0.2, 48))
	require.NoError(t, err)
	require.NotEqual(t, early.Origin(), shifted.Origin())
	assert.InDelta(t,
		alignment.NewWarp(early, params).Map(3, 0.9, -2),
		alignment.NewWarp(shifted, params).Map(3, 0.9, -2), 1e-12)
}

func shiftedGrid(period, offset, loopSeconds float64) alignment.BeatGrid {
	grid := beatGrid(period, loopSeconds)
	for i := range grid.Beats {
		grid.Beats[i] += offset
	}
	return grid
}

func TestNaiveMapDriftsLoopOverLoop(t *testing.T) {
	w := newWarp(t, 48)
	report := w.EvaluateNaive(1.1, 0, sessionSeconds, 100)
	require.Equal(t, 7, report.Loops)
	for i := 1; i < len(report.LoopMaxErrorMs); i++ {
		assert.Greaterf(t, report.LoopMaxErrorMs[i], report.LoopMaxErrorMs[i-1], "naive error should grow at loop %d", i)
	}
	assert.False(t, report.Pass)
	assert.Greater(t, report.MaxErrorMs, 300.0)
}

func TestSyncHoldsForSampleTrackSet(t *testing.T) {
	lengths := []float64{40, 41.3, 44.44, 47.9, 50.05, 53.3, 56.6, 59.99}
	passing := 0
	for _, length := range lengths {
		w := newWarp(t, length)
		ok := true
		for _, tempo := range []float64{0.9, 1, 1.1} {
			for _, pitch := range []float64{-2, 0, 2} {
				if !w.EvaluateSync(tempo, pitch, sessionSeconds, 100).Pass {
					ok = false
				}
			}
		}
		if ok {
			passing++
		}
	}
	assert.GreaterOrEqual(t, float64(passing)/float64(len(lengths)), 0.9)
}

func TestLocateInvertsPlaybackTime(t *testing.T) {
	w := newWarp(t, 48)
	for _, tc := range []struct {
		t, tempo, pitch float64
		loop            int
	}{
		{t: 0.5, tempo: 1, pitch: 0, loop: 0},
		{t: 12.34, tempo: 0.9, pitch: 2, loop: 3},
		{t: 47.5, tempo: 1.1, pitch: -2, loop: 6},
	} {
		pos := w.PlaybackTime(tc.t, tc.loop, tc.tempo, tc.pitch)
		loop, got := w.Locate(pos, tc.tempo, tc.pitch)
		assert.Equal(t, tc.loop, loop)
		assert.InDelta(t, tc.t, got, 1e-6)
	}
}

func TestWarpClampsAndAddsPitchLatency(t *testing.T) {
	w := newWarp(t, 48)
	assert.Equal(t, w.Map(10, 1.1, 0), w.Map(10, 1.5, 0), "tempo clamped to the supported range")
	assert.Equal(t, w.Map(10, 1, 2), w.Map(10, 1, 7), "pitch clamped to the supported range")
	assert.InDelta(t, 0.0, w.Map(0, 1, 0), 1e-12)
	assert.InDelta(t, 0.012, w.Map(0, 1, 1), 1e-12)
	assert.InDelta(t, 48.0, w.LoopPeriod(1, 0), 0.01)
}

func TestActiveWord(t *testing.T) {
	w := newWarp(t, 48)
	assert.Equal(t, 0, w.ActiveWord(w.PlaybackTime(0.3, 2, 1, 0), 1, 0))
	assert.Equal(t, -1, w.ActiveWord(w.PlaybackTime(0.1, 2, 1, 0), 1, 0))
}
