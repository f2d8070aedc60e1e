package segmentation

import (
	"math"

	"loopdeck/internal/audio/pcm"
)

// renderLoop cuts frames [start, end) and crossfades the seam with an equal-power
// curve. The fade-out side is the audio that continues past end and the
// fade-in side is the audio leading into start, so the wrap plays as the
// recording would. The xf frames are taken after end where the track allows
// and from before start for the remainder: the crossfade then straddles the
// wrap, covering the last frames of the loop and the first ones. The loop is
// always end-start frames long. xf shrinks to the audio available outside the
// window.
func renderLoop(src *pcm.Buffer, start, end, xf int) *pcm.Buffer {
	frames := src.Frames()
	start = max(0, min(start, frames))
	end = max(start, min(end, frames))
	length := end - start
	xf = max(0, min(xf, length/2, start+frames-end))
	after := min(xf, frames-end)
	before := xf - after

	out := pcm.New(src.SampleRate, src.NumChannels(), length)
	for ch, data := range src.Data {
		dst := out.Data[ch]
		copy(dst, data[start:end])
		for k := 0; k < xf; k++ {
			theta := 0.5 * math.Pi * float64(k) / float64(xf)
			pos := k - before
			if pos < 0 {
				pos += length
			}
			dst[pos] = data[end-before+k]*math.Cos(theta) + data[start-before+k]*math.Sin(theta)
		}
	}
	return out
}
