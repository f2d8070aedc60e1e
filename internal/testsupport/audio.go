package testsupport

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"loopdeck/internal/audio/pcm"
)

// SampleRate is the rate synthetic audio is generated at.
const SampleRate = 44100

// Sine returns a pure tone.
func Sine(seconds, freq, amp float64) []float64 {
	out := make([]float64, int(seconds*SampleRate))
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/SampleRate)
	}
	return out
}

// Voice returns a harmonic stack with slow vibrato, a stand-in for a sung note.
func Voice(seconds, f0, amp float64) []float64 {
	out := make([]float64, int(seconds*SampleRate))
	addVoice(out, 0, len(out), f0, amp)
	return out
}

func addVoice(dst []float64, start, end int, f0, amp float64) {
	var phase float64
	for i := start; i < end && i < len(dst); i++ {
		t := float64(i) / SampleRate
		f := f0 * (1 + 0.01*math.Sin(2*math.Pi*5*t))
		phase += 2 * math.Pi * f / SampleRate
		var v float64
		for h := 1; h <= 4; h++ {
			v += math.Sin(float64(h)*phase) / float64(h)
		}
		dst[i] += amp * 0.5 * v
	}
}

// ClickTrack returns short noise bursts on every beat.
func ClickTrack(seconds, bpm, amp float64) []float64 {
	out := make([]float64, int(seconds*SampleRate))
	addClicks(out, bpm, amp)
	return out
}

func addClicks(dst []float64, bpm, amp float64) {
	period := 60 / bpm * SampleRate
	burst := int(0.01 * SampleRate)
	seed := uint32(12345)
	for beat := 0; ; beat++ {
		start := int(math.Round(float64(beat) * period))
		if start >= len(dst) {
			return
		}
		for j := 0; j < burst && start+j < len(dst); j++ {
			seed = seed*1664525 + 1013904223
			noise := float64(seed>>8)/float64(1<<24)*2 - 1
			dst[start+j] += amp * noise * math.Exp(-float64(j)/float64(burst)*5)
		}
	}
}

// Noise returns deterministic white noise.
func Noise(seconds, amp float64) []float64 {
	out := make([]float64, int(seconds*SampleRate))
	seed := uint32(987654321)
	for i := range out {
		seed = seed*1664525 + 1013904223
		out[i] = amp * (float64(seed>>8)/float64(1<<24)*2 - 1)
	}
	return out
}

// Section describes part of a synthetic song: a melody cycled one note per
// beat, sung when Vocal is set.
type Section struct {
	Seconds float64
	Melody  []float64
	Vocal   bool
}

// Song renders stereo audio with a click beat and bass panned to the sides and
// the melody centred. Repeating a Section gives the track a recurring chorus.
func Song(bpm float64, sections ...Section) *pcm.Buffer {
	var total float64
	for _, s := range sections {
		total += s.Seconds
	}
	frames := int(total * SampleRate)
	left := make([]float64, frames)
	right := make([]float64, frames)

	clicks := make([]float64, frames)
	addClicks(clicks, bpm, 0.3)
	beatFrames := 60 / bpm * SampleRate

	offset := 0
	for _, s := range sections {
		length := int(s.Seconds * SampleRate)
		vocal := make([]float64, frames)
		if s.Vocal && len(s.Melody) > 0 {
			for beat := 0; float64(beat)*beatFrames < float64(length); beat++ {
				start := offset + int(float64(beat)*beatFrames)
				end := min(offset+length, offset+int(float64(beat+1)*beatFrames))
				addVoice(vocal, start, end, s.Melody[beat%len(s.Melody)], 0.3)
			}
		}
		for i := offset; i < offset+length && i < frames; i++ {
			bass := 0.15 * math.Sin(2*math.Pi*55*float64(i)/SampleRate)
			left[i] = vocal[i] + 0.8*clicks[i] + 0.3*bass
			right[i] = vocal[i] + 0.3*clicks[i] + 0.9*bass
		}
		offset += length
	}
	return &pcm.Buffer{SampleRate: SampleRate, Data: [][]float64{left, right}}
}

// PopSong is a 90 s, 120 BPM track with an instrumental intro, a verse and a
// chorus that repeats.
func PopSong() *pcm.Buffer {
	verse := []float64{220, 247, 262, 294}
	chorus := []float64{330, 392, 440, 392, 349, 330, 294, 262}
	return Song(120,
		Section{Seconds: 8},
		Section{Seconds: 20, Melody: verse, Vocal: true},
		Section{Seconds: 24, Melody: chorus, Vocal: true},
		Section{Seconds: 14, Melody: verse, Vocal: true},
		Section{Seconds: 24, Melody: chorus, Vocal: true},
	)
}

// WriteWAV stores buf under dir and returns the path.
func WriteWAV(t testing.TB, dir, name string, buf *pcm.Buffer) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := pcm.WriteFile(path, buf, pcm.Float32); err != nil {
		t.Fatalf("write wav %s: %v", path, err)
	}
	return path
}

// AudioLibrary serves synthetic audio in place of a real downloader.
type AudioLibrary struct {
	mu     sync.Mutex
	tracks map[string]*pcm.Buffer
	calls  map[string]int
	// Fail, when set, is returned for every download.
	Fail error
}

// NewAudioLibrary returns an empty library.
func NewAudioLibrary() *AudioLibrary {
	return &AudioLibrary{tracks: make(map[string]*pcm.Buffer), calls: make(map[string]int)}
}

// Add registers audio for id.
func (l *AudioLibrary) Add(id string, buf *pcm.Buffer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tracks[id] = buf
}

// Downloads reports how many times id was downloaded.
func (l *AudioLibrary) Downloads(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[id]
}

// DownloadAudio writes the registered audio for id as WAV.
func (l *AudioLibrary) DownloadAudio(_ context.Context, id, destDir string) (string, error) {
	l.mu.Lock()
	l.calls[id]++
	buf, ok := l.tracks[id]
	fail := l.Fail
	l.mu.Unlock()
	if fail != nil {
		return "", fail
	}
	if !ok {
		return "", fmt.Errorf("no audio registered for %s", id)
	}
	path := filepath.Join(destDir, id+".wav")
	if err := pcm.WriteFile(path, buf, pcm.Float32); err != nil {
		return "", err
	}
	return path, nil
}
