package segmentation

import (
	"math"
	"testing"

	"loopdeck/internal/audio/pcm"
	"loopdeck/internal/testsupport"
)

func sineBuffer(seconds, freq float64) *pcm.Buffer {
	tone := testsupport.Sine(seconds, freq, 0.5)
	right := make([]float64, len(tone))
	copy(right, tone)
	return &pcm.Buffer{SampleRate: testsupport.SampleRate, Data: [][]float64{tone, right}}
}

func TestRenderLoopWrapsIntoTheFollowingAudio(t *testing.T) {
	src := sineBuffer(60, 440)
	start, end, xf := 44100, 44100+1764026, 2205

	loop := renderLoop(src, start, end, xf)
	if loop.Frames() != end-start {
		t.Fatalf("loop has %d frames, want %d", loop.Frames(), end-start)
	}
	for ch := range loop.Data {
		if loop.Data[ch][0] != src.Data[ch][end] {
			t.Fatalf("first frame should continue the source after end")
		}
		if last := loop.Data[ch][loop.Frames()-1]; last != src.Data[ch][end-1] {
			t.Fatalf("last frame should be the source frame before end")
		}
		if mid := loop.Data[ch][xf+10]; mid != src.Data[ch][start+xf+10] {
			t.Fatalf("audio after the crossfade should be untouched")
		}
	}
}

func TestRenderLoopUsesPreRollAtTrackEnd(t *testing.T) {
	src := sineBuffer(41, 440)
	start, end, xf := 44100, src.Frames(), 2205

	loop := renderLoop(src, start, end, xf)
	if loop.Frames() != end-start {
		t.Fatalf("loop has %d frames, want the full window of %d", loop.Frames(), end-start)
	}
	n := loop.Frames()
	for ch := range loop.Data {
		if loop.Data[ch][0] != src.Data[ch][start] {
			t.Fatal("first frame should be the window start")
		}
		if loop.Data[ch][n-xf] != src.Data[ch][end-xf] {
			t.Fatal("crossfade should begin on the window's own audio")
		}
		if d := math.Abs(loop.Data[ch][n-1] - src.Data[ch][start-1]); d > 2e-3 {
			t.Fatalf("last frame should have faded into the audio before start, off by %v", d)
		}
	}
	report := CheckSeams(loop, SeamLimits{Minutes: 2, MaxRMSJumpDB: 6, MaxStepRatio: 4})
	if !report.Pass {
		t.Fatalf("expected clean seams, got %+v", report)
	}
}

func TestRenderLoopSplitsCrossfadeAcrossBothEdges(t *testing.T) {
	src := sineBuffer(41, 440)
	xf := 2205
	start, end := 1000, src.Frames()-1205

	loop := renderLoop(src, start, end, xf)
	n := loop.Frames()
	if n != end-start {
		t.Fatalf("loop has %d frames, want %d", n, end-start)
	}
	// 1000 frames of lead-in end the loop, 1205 frames of tail open it.
	if loop.Data[0][n-1000] != src.Data[0][end-1000] {
		t.Fatal("crossfade should start 1000 frames before the wrap")
	}
	if loop.Data[0][1205] != src.Data[0][start+1205] {
		t.Fatal("audio after the crossfade should be untouched")
	}
	if loop.Data[0][n-1001] != src.Data[0][end-1001] {
		t.Fatal("audio before the crossfade should be untouched")
	}
}

func TestRenderLoopWithoutSpareAudioKeepsWindow(t *testing.T) {
	src := sineBuffer(40, 440)
	loop := renderLoop(src, 0, src.Frames(), 2205)
	if loop.Frames() != src.Frames() {
		t.Fatalf("loop has %d frames, want %d", loop.Frames(), src.Frames())
	}
	if loop.Data[0][0] != src.Data[0][0] || loop.Data[0][loop.Frames()-1] != src.Data[0][src.Frames()-1] {
		t.Fatal("without outside audio the window is copied as is")
	}
}

func TestEqualPowerCurve(t *testing.T) {
	xf := 2205
	for _, n := range []int{0, xf / 4, xf / 2, xf - 1} {
		theta := 0.5 * math.Pi * float64(n) / float64(xf)
		if p := math.Pow(math.Sin(theta), 2) + math.Pow(math.Cos(theta), 2); math.Abs(p-1) > 1e-12 {
			t.Fatalf("gain power at %d = %v", n, p)
		}
	}
}

func TestLoopReaderWraps(t *testing.T) {
	loop := pcm.FromMono(10, []float64{1, 2, 3})
	reader := NewLoopReader(loop)
	dst := pcm.New(10, 1, 7)
	if n := reader.Read(dst); n != 7 {
		t.Fatalf("read %d frames", n)
	}
	want := []float64{1, 2, 3, 1, 2, 3, 1}
	for i, v := range want {
		if dst.Data[0][i] != v {
			t.Fatalf("frame %d = %v, want %v", i, dst.Data[0][i], v)
		}
	}
	reader.Read(dst)
	if dst.Data[0][0] != 2 {
		t.Fatalf("second read should resume mid-loop, got %v", dst.Data[0][0])
	}
}

func TestCheckSeamsPassesCrossfadedLoop(t *testing.T) {
	src := sineBuffer(60, 440)
	loop := renderLoop(src, 44100, 44100+1764026, 2205)
	limits := SeamLimits{Minutes: 5, MaxRMSJumpDB: 6, MaxStepRatio: 4}

	report := CheckSeams(loop, limits)
	if !report.Pass {
		t.Fatalf("expected clean seams, got %+v", report)
	}
	if report.Seams != 7 {
		t.Fatalf("expected 7 seams in five minutes of a 40s loop, got %d", report.Seams)
	}
	if report.MaxStepRatio > 1.5 || report.MaxRMSJumpDB > 0.5 {
		t.Fatalf("seam metrics too high: %+v", report)
	}
}

func TestCheckSeamsFlagsHardCut(t *testing.T) {
	// 1764026 frames of 440 Hz ends a quarter cycle in, so the wrap jumps
	// from the crest straight back to zero.
	src := sineBuffer(41, 440)
	loop := src.Slice(0, 1764026)
	limits := SeamLimits{Minutes: 2, MaxRMSJumpDB: 6, MaxStepRatio: 4}

	report := CheckSeams(loop, limits)
	if report.Pass {
		t.Fatalf("expected the hard cut to fail, got %+v", report)
	}
	if report.MaxStepRatio < 4 {
		t.Fatalf("expected a large step ratio, got %+v", report)
	}
}

func TestCheckSeamsOnSilenceDoesNotExplode(t *testing.T) {
	loop := pcm.New(44100, 2, 44100*40)
	report := CheckSeams(loop, SeamLimits{Minutes: 1, MaxRMSJumpDB: 6, MaxStepRatio: 4})
	if !report.Pass || report.MaxStepRatio != 0 || report.MaxRMSJumpDB != 0 {
		t.Fatalf("silent loop should pass quietly, got %+v", report)
	}
}
