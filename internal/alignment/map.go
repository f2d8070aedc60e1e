package alignment

import (
	"errors"
	"fmt"
	"math"
)

// TempoPoint anchors a beat index to loop time.
type TempoPoint struct {
	BeatIndex int     `json:"beat_index"`
	Time      float64 `json:"time"`
}

// Map is the alignment map of one loop: words and beats on the loop
// timeline, with timestamps in seconds from the loop start.
type Map struct {
	SourceID         string       `json:"source_id"`
	LoopSeconds      float64      `json:"loop_seconds"`
	SampleRate       int          `json:"sample_rate"`
	BPM              float64      `json:"bpm"`
	Backend          string       `json:"backend"`
	TranscriptSource string       `json:"transcript_source"`
	Language         string       `json:"language,omitempty"`
	Words            []Word       `json:"words"`
	TempoMap         []TempoPoint `json:"tempo_map"`
	Warp             *WarpParams  `json:"warp,omitempty"`
	Sync             []SyncReport `json:"sync,omitempty"`
}

// Build assembles a map from aligned words and the loop's beat grid.
// Words keep their order; timestamps are made non-decreasing and clipped to
// the loop, and words falling entirely outside it are dropped.
func Build(sourceID string, loopSeconds float64, sampleRate int, words []Word, grid BeatGrid) (*Map, error) {
	if loopSeconds <= 0 || math.IsNaN(loopSeconds) || math.IsInf(loopSeconds, 0) {
		return nil, fmt.Errorf("alignment map: loop length must be positive, got %v", loopSeconds)
	}
	m := &Map{
		SourceID:    sourceID,
		LoopSeconds: loopSeconds,
		SampleRate:  sampleRate,
		BPM:         grid.BPM,
		Words:       []Word{},
		TempoMap:    []TempoPoint{},
	}
	last := math.Inf(-1)
	for _, b := range grid.Beats {
		if b < 0 || b >= loopSeconds || b <= last {
			continue
		}
		m.TempoMap = append(m.TempoMap, TempoPoint{BeatIndex: len(m.TempoMap), Time: b})
		last = b
	}

	prevStart := 0.0
	for _, w := range words {
		if w.Start >= loopSeconds || w.End <= 0 {
			continue
		}
		w.Start = max(w.Start, prevStart, 0)
		w.End = min(max(w.End, w.Start), loopSeconds)
		w.Beat = m.BeatAt(w.Start)
		m.Words = append(m.Words, w)
		prevStart = w.Start
	}
	return m, m.Validate()
}

// Validate checks the ordering invariants.
func (m *Map) Validate() error {
	if m == nil {
		return errors.New("alignment map: nil")
	}
	if m.LoopSeconds <= 0 {
		return errors.New("alignment map: loop length must be positive")
	}
	for i, w := range m.Words {
		if w.Start < 0 || w.End > m.LoopSeconds || w.End < w.Start {
			return fmt.Errorf("alignment map: word %d (%q) spans [%.3f, %.3f] outside the loop", i, w.Text, w.Start, w.End)
		}
		if i > 0 && w.Start < m.Words[i-1].Start {
			return fmt.Errorf("alignment map: word %d starts before word %d", i, i-1)
		}
	}
	for i := 1; i < len(m.TempoMap); i++ {
		if m.TempoMap[i].Time <= m.TempoMap[i-1].Time || m.TempoMap[i].BeatIndex <= m.TempoMap[i-1].BeatIndex {
			return fmt.Errorf("alignment map: tempo map not increasing at %d", i)
		}
	}
	return nil
}

// Origin is the loop's first beat, where beat index zero sits. It is zero
// when the loop has no beats.
func (m *Map) Origin() float64 {
	if len(m.TempoMap) == 0 {
		return 0
	}
	return m.TempoMap[0].Time
}

// BeatAt converts loop time to a fractional beat index, extrapolating with
// the nearest beat period outside the grid. It returns 0 without a grid.
func (m *Map) BeatAt(t float64) float64 {
	tm := m.TempoMap
	switch len(tm) {
	case 0:
		return 0
	case 1:
		return float64(tm[0].BeatIndex)
	}
	i := 0
	for i < len(tm)-2 && t >= tm[i+1].Time {
		i++
	}
	a, b := tm[i], tm[i+1]
	return float64(a.BeatIndex) + float64(b.BeatIndex-a.BeatIndex)*(t-a.Time)/(b.Time-a.Time)
}

// TimeAtBeat is the inverse of BeatAt.
func (m *Map) TimeAtBeat(beat float64) float64 {
	tm := m.TempoMap
	switch len(tm) {
	case 0, 1:
		return m.Origin()
	}
	i := 0
	for i < len(tm)-2 && beat >= float64(tm[i+1].BeatIndex) {
		i++
	}
	a, b := tm[i], tm[i+1]
	return a.Time + (b.Time-a.Time)*(beat-float64(a.BeatIndex))/float64(b.BeatIndex-a.BeatIndex)
}
