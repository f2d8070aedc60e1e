package segmentation

import (
	"fmt"
	"math"

	"loopdeck/internal/config"
	"loopdeck/internal/services"
)

const (
	// recurrenceFloor keeps vocal-heavy windows rankable in through-composed
	// tracks where nothing repeats.
	recurrenceFloor = 0.05
	scoreEpsilon    = 1e-9
)

type window struct {
	start      float64
	length     float64
	score      float64
	vocal      float64
	recurrence float64
}

// crossfadeSeconds is the audio a loop needs outside its window for the seam.
func crossfadeSeconds(cfg config.Segmentation) float64 {
	return float64(cfg.CrossfadeMs) / 1000
}

// loopLength returns the target length clamped to the configured bounds and
// to the track duration less one crossfade.
func loopLength(cfg config.Segmentation, duration float64) (float64, error) {
	if duration < cfg.MinSeconds {
		return 0, services.Reject(services.ReasonDurationTooShort,
			fmt.Sprintf("audio is %.2fs, loops need %.0fs", duration, cfg.MinSeconds))
	}
	length := math.Max(cfg.MinSeconds, math.Min(cfg.TargetSeconds, cfg.MaxSeconds))
	length = math.Min(length, duration-crossfadeSeconds(cfg))
	if length < cfg.MinSeconds-scoreEpsilon {
		return 0, services.Reject(services.ReasonSeamQualityFailure,
			fmt.Sprintf("audio is %.2fs, a %.0fs loop with a %dms crossfade needs %.3fs",
				duration, cfg.MinSeconds, cfg.CrossfadeMs, cfg.MinSeconds+crossfadeSeconds(cfg)))
	}
	return length, nil
}

// rankWindows scores every candidate start on the search hop and returns the
// best one. The score is
//
//	vocal density × (floor + (1-floor) × recurrence) × (1 + bias × e^(-|start-first|/decay))
//
// where first is the start of the first recurring section. Equal scores are
// resolved by cfg.TieBreak.
func rankWindows(a *analysis, cfg config.Segmentation) (window, error) {
	length, err := loopLength(cfg, a.duration)
	if err != nil {
		return window{}, err
	}
	vocal := prefix(a.vocal)
	recurrence := prefix(a.recurrence)
	hop := cfg.SearchHopSeconds
	steps := int(math.Floor((a.duration-length)/hop + scoreEpsilon))

	best := window{start: 0, length: length, score: math.Inf(-1)}
	for k := 0; k <= steps; k++ {
		start := float64(k) * hop
		lo := a.feats.FrameAt(start)
		hi := a.feats.FrameAt(start + length)
		w := window{
			start:      start,
			length:     length,
			vocal:      meanBetween(vocal, lo, hi),
			recurrence: meanBetween(recurrence, lo, hi),
		}
		w.score = w.vocal * (recurrenceFloor + (1-recurrenceFloor)*w.recurrence)
		if a.firstRecurring >= 0 && cfg.BiasDecaySeconds > 0 {
			w.score *= 1 + cfg.FirstSectionBias*math.Exp(-math.Abs(start-a.firstRecurring)/cfg.BiasDecaySeconds)
		}
		if better(w.score, best.score, cfg.TieBreak) {
			best = w
		}
	}
	return best, nil
}

func better(candidate, current float64, tieBreak string) bool {
	if tieBreak == config.TieBreakLatest {
		return candidate >= current-scoreEpsilon
	}
	return candidate > current+scoreEpsilon
}

// snapWindow moves the window edges onto beats. The start goes to the beat
// nearest the ranked start that still leaves room for a minimum-length loop;
// the end goes to the beat nearest start+length that keeps the loop inside
// [MinSeconds, MaxSeconds] and leaves one crossfade of audio outside the
// window. Equidistant beats resolve to the earlier one. Without usable beats
// the window is returned unchanged.
func snapWindow(w window, beats []float64, duration float64, cfg config.Segmentation) (start, end float64) {
	start, end = w.start, w.start+w.length
	if len(beats) < 2 {
		return start, end
	}
	xf := crossfadeSeconds(cfg)
	if b, ok := nearestBeat(beats, w.start, 0, duration-cfg.MinSeconds); ok {
		start = b
	}
	limit := min(start+cfg.MaxSeconds, duration, duration+start-xf)
	if b, ok := nearestBeat(beats, start+w.length, start+cfg.MinSeconds, limit); ok {
		return start, b
	}
	return start, math.Min(start+w.length, limit)
}

func nearestBeat(beats []float64, target, lo, hi float64) (float64, bool) {
	best, bestDist, found := 0.0, math.Inf(1), false
	for _, b := range beats {
		if b < lo-scoreEpsilon || b > hi+scoreEpsilon {
			continue
		}
		if d := math.Abs(b - target); d < bestDist-scoreEpsilon {
			best, bestDist, found = b, d, true
		}
	}
	return best, found
}
