package pcm

import (
	"errors"
	"math"
)

// Buffer is planar audio: Data[channel][frame].
type Buffer struct {
	SampleRate int
	Data       [][]float64
}

// New allocates a silent buffer.
func New(sampleRate, channels, frames int) *Buffer {
	data := make([][]float64, channels)
	for ch := range data {
		data[ch] = make([]float64, frames)
	}
	return &Buffer{SampleRate: sampleRate, Data: data}
}

// FromMono wraps samples as a single-channel buffer.
func FromMono(sampleRate int, samples []float64) *Buffer {
	return &Buffer{SampleRate: sampleRate, Data: [][]float64{samples}}
}

// NumChannels returns the channel count.
func (b *Buffer) NumChannels() int {
	if b == nil {
		return 0
	}
	return len(b.Data)
}

// Frames returns the number of sample frames.
func (b *Buffer) Frames() int {
	if b == nil || len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

// Duration returns the length in seconds.
func (b *Buffer) Duration() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// Validate checks the buffer is usable by the analysis code.
func (b *Buffer) Validate() error {
	switch {
	case b == nil:
		return errors.New("pcm: nil buffer")
	case b.SampleRate <= 0:
		return errors.New("pcm: sample rate must be positive")
	case len(b.Data) == 0:
		return errors.New("pcm: buffer has no channels")
	}
	frames := len(b.Data[0])
	for _, ch := range b.Data[1:] {
		if len(ch) != frames {
			return errors.New("pcm: channels have different lengths")
		}
	}
	return nil
}

// Mono returns the channel average.
func (b *Buffer) Mono() []float64 {
	frames := b.Frames()
	out := make([]float64, frames)
	if frames == 0 {
		return out
	}
	if len(b.Data) == 1 {
		copy(out, b.Data[0])
		return out
	}
	scale := 1 / float64(len(b.Data))
	for _, ch := range b.Data {
		for i, v := range ch {
			out[i] += v * scale
		}
	}
	return out
}

// Slice copies frames [start, end) into a new buffer. Bounds are clamped.
func (b *Buffer) Slice(start, end int) *Buffer {
	frames := b.Frames()
	start = max(0, min(start, frames))
	end = max(start, min(end, frames))
	out := New(b.SampleRate, b.NumChannels(), end-start)
	for ch := range b.Data {
		copy(out.Data[ch], b.Data[ch][start:end])
	}
	return out
}

// Clone returns a deep copy.
func (b *Buffer) Clone() *Buffer {
	return b.Slice(0, b.Frames())
}

// Gain multiplies every sample by the linear factor derived from db.
func (b *Buffer) Gain(db float64) {
	factor := math.Pow(10, db/20)
	for _, ch := range b.Data {
		for i := range ch {
			ch[i] *= factor
		}
	}
}

// Peak returns the largest absolute sample value.
func (b *Buffer) Peak() float64 {
	var peak float64
	for _, ch := range b.Data {
		for _, v := range ch {
			if a := math.Abs(v); a > peak {
				peak = a
			}
		}
	}
	return peak
}

// RMS returns the root mean square across all channels of frames [start, end).
func (b *Buffer) RMS(start, end int) float64 {
	frames := b.Frames()
	start = max(0, min(start, frames))
	end = max(start, min(end, frames))
	if end == start || len(b.Data) == 0 {
		return 0
	}
	var sum float64
	for _, ch := range b.Data {
		for _, v := range ch[start:end] {
			sum += v * v
		}
	}
	return math.Sqrt(sum / float64((end-start)*len(b.Data)))
}

// Seconds converts a frame index to seconds.
func (b *Buffer) Seconds(frame int) float64 {
	return float64(frame) / float64(b.SampleRate)
}

// Frame converts seconds to the nearest frame index.
func (b *Buffer) Frame(seconds float64) int {
	return int(math.Round(seconds * float64(b.SampleRate)))
}
