package segmentation

import (
	"math"

	"loopdeck/internal/audio/pcm"
)

const (
	seamRMSWindow  = 0.1
	seamStepWindow = 0.005
	seamBlock      = 4096
	// seamStepFloor stops near-silent seams from producing huge ratios.
	seamStepFloor = 1e-4
	seamRMSFloor  = 1e-6
)

// SeamLimits bounds what a seam may do before the loop is sent for review.
type SeamLimits struct {
	Minutes      float64
	MaxRMSJumpDB float64
	MaxStepRatio float64
}

// LoopReader plays a buffer end to end, wrapping forever.
type LoopReader struct {
	loop *pcm.Buffer
	pos  int
}

// NewLoopReader starts playback at the first frame.
func NewLoopReader(loop *pcm.Buffer) *LoopReader {
	return &LoopReader{loop: loop}
}

// Read fills dst with the next frames and returns how many were written.
// Channels missing from the loop are left untouched.
func (r *LoopReader) Read(dst *pcm.Buffer) int {
	period := r.loop.Frames()
	n := dst.Frames()
	if period == 0 {
		return 0
	}
	written := 0
	for written < n {
		chunk := min(n-written, period-r.pos)
		for ch := range dst.Data {
			if ch < len(r.loop.Data) {
				copy(dst.Data[ch][written:written+chunk], r.loop.Data[ch][r.pos:r.pos+chunk])
			}
		}
		written += chunk
		r.pos = (r.pos + chunk) % period
	}
	return written
}

// CheckSeams plays the loop for limits.Minutes through a LoopReader and
// inspects every wrap point. At each seam it compares the RMS of the 100 ms
// either side, and the sample step across the seam against the largest step
// within 5 ms of it.
func CheckSeams(loop *pcm.Buffer, limits SeamLimits) SeamReport {
	report := SeamReport{}
	period := loop.Frames()
	channels := loop.NumChannels()
	if period < 4 || channels == 0 {
		return report
	}
	rate := loop.SampleRate
	half := min(int(seamRMSWindow*float64(rate)), period/2)
	stepHalf := max(1, min(int(seamStepWindow*float64(rate)), half-1))
	total := max(int(limits.Minutes*60*float64(rate)), period+half)
	report.SimulatedSeconds = float64(total) / float64(rate)

	ringLen := 2 * half
	ring := make([][]float64, channels)
	for ch := range ring {
		ring[ch] = make([]float64, ringLen)
	}
	at := func(ch, pos, j int) float64 {
		return ring[ch][(pos-ringLen+j)%ringLen]
	}

	reader := NewLoopReader(loop)
	block := pcm.New(rate, channels, seamBlock)
	pos, nextSeam := 0, period
	for pos < total {
		n := reader.Read(block)
		for i := 0; i < n && pos < total; i++ {
			for ch := range ring {
				ring[ch][pos%ringLen] = block.Data[ch][i]
			}
			pos++
			if pos != nextSeam+half {
				continue
			}
			jump, ratio := measureSeam(channels, half, stepHalf, func(ch, j int) float64 { return at(ch, pos, j) })
			report.Seams++
			report.MaxRMSJumpDB = math.Max(report.MaxRMSJumpDB, jump)
			report.MaxStepRatio = math.Max(report.MaxStepRatio, ratio)
			nextSeam += period
		}
	}
	report.Pass = report.Seams > 0 &&
		report.MaxRMSJumpDB <= limits.MaxRMSJumpDB &&
		report.MaxStepRatio <= limits.MaxStepRatio
	return report
}

// measureSeam inspects 2*half frames where frame half is the first one after
// the wrap.
func measureSeam(channels, half, stepHalf int, sample func(ch, j int) float64) (jumpDB, stepRatio float64) {
	var before, after float64
	for ch := 0; ch < channels; ch++ {
		for j := 0; j < half; j++ {
			v := sample(ch, j)
			before += v * v
			w := sample(ch, half+j)
			after += w * w
		}
	}
	norm := float64(channels * half)
	rmsBefore := math.Sqrt(before/norm) + seamRMSFloor
	rmsAfter := math.Sqrt(after/norm) + seamRMSFloor
	jumpDB = math.Abs(20 * math.Log10(rmsAfter/rmsBefore))

	var seamStep, neighbourStep float64
	for ch := 0; ch < channels; ch++ {
		seamStep = math.Max(seamStep, math.Abs(sample(ch, half)-sample(ch, half-1)))
		for j := half - stepHalf; j < half+stepHalf; j++ {
			if j == half {
				continue
			}
			neighbourStep = math.Max(neighbourStep, math.Abs(sample(ch, j)-sample(ch, j-1)))
		}
	}
	return jumpDB, seamStep / math.Max(neighbourStep, seamStepFloor)
}
