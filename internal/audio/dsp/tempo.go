package dsp

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	minBPM        = 60.0
	maxBPM        = 200.0
	priorBPM      = 120.0
	priorOctaves  = 1.0
	beatTightness = 100.0
)

// EstimateTempo picks the onset autocorrelation peak between 60 and 200 BPM,
// weighted by a log-normal prior centred on 120 BPM, and refines the lag by
// parabolic interpolation. It returns 0 when the envelope carries no rhythm.
func EstimateTempo(onset []float64, frameRate float64) float64 {
	if len(onset) < 4 || frameRate <= 0 {
		return 0
	}
	mean := stat.Mean(onset, nil)
	centred := make([]float64, len(onset))
	for i, v := range onset {
		centred[i] = v - mean
	}

	minLag := int(math.Floor(60 * frameRate / maxBPM))
	maxLag := int(math.Ceil(60 * frameRate / minBPM))
	minLag = max(minLag, 1)
	maxLag = min(maxLag, len(onset)-2)
	if maxLag <= minLag {
		return 0
	}

	ac := make([]float64, maxLag+2)
	for lag := max(1, minLag-1); lag <= maxLag+1 && lag < len(centred); lag++ {
		var sum float64
		for i := lag; i < len(centred); i++ {
			sum += centred[i] * centred[i-lag]
		}
		ac[lag] = sum / float64(len(centred)-lag)
	}

	best, bestLag := 0.0, -1
	for lag := minLag; lag <= maxLag; lag++ {
		bpm := 60 * frameRate / float64(lag)
		octaves := math.Log2(bpm / priorBPM)
		weighted := ac[lag] * math.Exp(-0.5*(octaves/priorOctaves)*(octaves/priorOctaves))
		if weighted > best {
			best, bestLag = weighted, lag
		}
	}
	if bestLag < 0 {
		return 0
	}

	lag := float64(bestLag)
	if bestLag > 1 && bestLag+1 < len(ac) {
		a, b, c := ac[bestLag-1], ac[bestLag], ac[bestLag+1]
		if denom := a - 2*b + c; denom < 0 {
			lag += 0.5 * (a - c) / denom
		}
	}
	return 60 * frameRate / lag
}

// TrackBeats places beats on the onset envelope by dynamic programming: each
// beat maximizes onset strength plus a log-interval penalty relative to the
// tempo period. It returns beat frame indices in ascending order.
func TrackBeats(onset []float64, frameRate, bpm float64) []int {
	n := len(onset)
	if n == 0 || bpm <= 0 || frameRate <= 0 {
		return nil
	}
	sd := stat.StdDev(onset, nil)
	if sd == 0 || math.IsNaN(sd) {
		return nil
	}
	period := 60 * frameRate / bpm
	local := smoothOnset(onset, period, sd)

	minLag := max(1, int(math.Round(period/2)))
	maxLag := max(minLag, int(math.Round(2*period)))
	score := make([]float64, n)
	back := make([]int, n)
	for i := 0; i < n; i++ {
		best, arg := math.Inf(-1), -1
		for prev := max(0, i-maxLag); prev <= i-minLag; prev++ {
			d := math.Log(float64(i-prev) / period)
			cand := score[prev] - beatTightness*d*d
			if cand > best {
				best, arg = cand, prev
			}
		}
		if arg >= 0 && best > 0 {
			score[i] = local[i] + best
			back[i] = arg
		} else {
			score[i] = local[i]
			back[i] = -1
		}
	}

	tail := max(0, n-int(math.Ceil(period)))
	last := tail
	for i := tail; i < n; i++ {
		if score[i] > score[last] {
			last = i
		}
	}

	var beats []int
	for i := last; i >= 0; i = back[i] {
		beats = append(beats, i)
		if back[i] < 0 {
			break
		}
	}
	for l, r := 0, len(beats)-1; l < r; l, r = l+1, r-1 {
		beats[l], beats[r] = beats[r], beats[l]
	}
	return beats
}

// smoothOnset normalizes the envelope and convolves it with a narrow Gaussian
// (period/32 frames) so beats can land between onset peaks.
func smoothOnset(onset []float64, period, sd float64) []float64 {
	sigma := math.Max(period/32, 0.5)
	radius := int(math.Ceil(3 * sigma))
	kernel := make([]float64, 2*radius+1)
	var ksum float64
	for i := range kernel {
		x := float64(i-radius) / sigma
		kernel[i] = math.Exp(-0.5 * x * x)
		ksum += kernel[i]
	}
	out := make([]float64, len(onset))
	for i := range onset {
		var acc float64
		for j, w := range kernel {
			idx := i + j - radius
			if idx >= 0 && idx < len(onset) {
				acc += w * onset[idx]
			}
		}
		out[i] = acc / ksum / sd
	}
	return out
}

// BeatTimes converts beat frames to seconds.
func (f *Features) BeatTimes(beats []int) []float64 {
	times := make([]float64, len(beats))
	for i, b := range beats {
		times[i] = f.FrameTime(b)
	}
	return times
}
