package alignment

import "math"

// SyncReport is the lyric sync error of one tempo and pitch setting, measured
// against a simulated player over a listening session.
type SyncReport struct {
	Tempo          float64   `json:"tempo"`
	Pitch          float64   `json:"pitch"`
	Loops          int       `json:"loops"`
	LoopMaxErrorMs []float64 `json:"loop_max_error_ms"`
	MaxErrorMs     float64   `json:"max_error_ms"`
	ToleranceMs    float64   `json:"tolerance_ms"`
	Pass           bool      `json:"pass"`
}

// EvaluateSync plays the loop for seconds of heard time at tempo and pitch
// and reports, per loop pass, the largest gap between when PlaybackTime says
// a word is heard and when the simulated player plays it.
func (w *Warp) EvaluateSync(tempo, pitch, seconds, toleranceMs float64) SyncReport {
	return w.evaluate(tempo, pitch, seconds, toleranceMs, func(t float64, loop int, tempo, pitch float64) float64 {
		return w.PlaybackTime(t, loop, tempo, pitch)
	})
}

// EvaluateNaive is EvaluateSync for NaiveMap.
func (w *Warp) EvaluateNaive(tempo, pitch, seconds, toleranceMs float64) SyncReport {
	return w.evaluate(tempo, pitch, seconds, toleranceMs, func(t float64, loop int, tempo, _ float64) float64 {
		return w.NaiveMap(t, loop, tempo)
	})
}

// SweepSync evaluates the warp at the corners and centre of the supported
// tempo and pitch range.
func (w *Warp) SweepSync(seconds, toleranceMs float64) []SyncReport {
	p := w.params
	var reports []SyncReport
	for _, tempo := range distinct(p.TempoMin, 1, p.TempoMax) {
		for _, pitch := range distinct(p.PitchMin, 0, p.PitchMax) {
			reports = append(reports, w.EvaluateSync(tempo, pitch, seconds, toleranceMs))
		}
	}
	return reports
}

func distinct(values ...float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		dup := false
		for _, o := range out {
			if o == v {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out
}

type predictor func(t float64, loop int, tempo, pitch float64) float64

// evaluate steps the reference player frame by frame. Each frame reads
// `analysis` input samples and writes StretchHop output samples; inside a
// frame the input plays at its own rate. When the input reaches the loop end
// the player restarts at the loop start on the next frame.
func (w *Warp) evaluate(tempo, pitch, seconds, toleranceMs float64, predict predictor) SyncReport {
	tempo, pitch = w.clamp(tempo, pitch)
	p := w.params
	analysis, resample := p.hops(tempo, pitch)
	outRate := float64(p.SampleRate) * resample
	latency := p.latency(pitch)
	loopSamples := w.loopSamples()

	report := SyncReport{Tempo: tempo, Pitch: pitch, ToleranceMs: toleranceMs}
	if loopSamples <= 0 {
		report.Pass = true
		return report
	}
	onsets := make([]int, len(w.m.Words))
	for i, word := range w.m.Words {
		onsets[i] = int(math.Round(word.Start * float64(p.SampleRate)))
	}

	limit := int64(math.Ceil(seconds * outRate))
	var out int64
	loop, next, content := 0, 0, 0
	loopMax := 0.0
	report.Loops = 1
	for out < limit {
		for next < len(onsets) && onsets[next] < content+analysis {
			heard := float64(out+int64(onsets[next]-content))/outRate + latency
			if heard <= seconds {
				err := math.Abs(predict(w.m.Words[next].Start, loop, tempo, pitch)-heard) * 1000
				loopMax = max(loopMax, err)
			}
			next++
		}
		content += analysis
		out += int64(p.StretchHop)
		if content >= loopSamples {
			report.LoopMaxErrorMs = append(report.LoopMaxErrorMs, loopMax)
			loopMax = 0
			content, next = 0, 0
			loop++
			if out < limit {
				report.Loops++
			}
		}
	}
	if len(report.LoopMaxErrorMs) < report.Loops {
		report.LoopMaxErrorMs = append(report.LoopMaxErrorMs, loopMax)
	}
	for _, e := range report.LoopMaxErrorMs {
		report.MaxErrorMs = max(report.MaxErrorMs, e)
	}
	report.MaxErrorMs = math.Round(report.MaxErrorMs*1000) / 1000
	for i, e := range report.LoopMaxErrorMs {
		report.LoopMaxErrorMs[i] = math.Round(e*1000) / 1000
	}
	report.Pass = report.MaxErrorMs <= toleranceMs
	return report
}
