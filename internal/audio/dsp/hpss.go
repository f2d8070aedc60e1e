package dsp

import "slices"

// HPSS splits band power into harmonic and percussive parts. Harmonic content
// is the median across ±timeRadius frames, percussive the median across
// ±freqRadius bands; both are turned into soft Wiener masks.
func HPSS(bands [][]float64, timeRadius, freqRadius int) (harmonic, percussive [][]float64) {
	frames := len(bands)
	if frames == 0 {
		return nil, nil
	}
	nb := len(bands[0])
	hMed := make([][]float64, frames)
	pMed := make([][]float64, frames)
	for i := range hMed {
		hMed[i] = make([]float64, nb)
		pMed[i] = make([]float64, nb)
	}

	scratch := make([]float64, 0, 2*max(timeRadius, freqRadius)+1)
	for b := 0; b < nb; b++ {
		for i := 0; i < frames; i++ {
			scratch = scratch[:0]
			for j := max(0, i-timeRadius); j <= min(frames-1, i+timeRadius); j++ {
				scratch = append(scratch, bands[j][b])
			}
			hMed[i][b] = median(scratch)
		}
	}
	for i := 0; i < frames; i++ {
		for b := 0; b < nb; b++ {
			scratch = scratch[:0]
			for c := max(0, b-freqRadius); c <= min(nb-1, b+freqRadius); c++ {
				scratch = append(scratch, bands[i][c])
			}
			pMed[i][b] = median(scratch)
		}
	}

	harmonic = make([][]float64, frames)
	percussive = make([][]float64, frames)
	for i := 0; i < frames; i++ {
		harmonic[i] = make([]float64, nb)
		percussive[i] = make([]float64, nb)
		for b := 0; b < nb; b++ {
			h2 := hMed[i][b] * hMed[i][b]
			p2 := pMed[i][b] * pMed[i][b]
			mask := 0.5
			if total := h2 + p2; total > 0 {
				mask = h2 / total
			}
			harmonic[i][b] = bands[i][b] * mask
			percussive[i][b] = bands[i][b] * (1 - mask)
		}
	}
	return harmonic, percussive
}

// median sorts values in place.
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	slices.Sort(values)
	mid := len(values) / 2
	if len(values)%2 == 1 {
		return values[mid]
	}
	return (values[mid-1] + values[mid]) / 2
}

// VocalActivity returns, per frame, the share of frame energy that is
// harmonic and inside the vocal band [first, last]. Silent frames report 0.
func VocalActivity(energy []float64, harmonic [][]float64, first, last int, silent []bool) []float64 {
	out := make([]float64, len(energy))
	if first < 0 || last < first {
		return out
	}
	for i := range out {
		if (silent != nil && silent[i]) || energy[i] <= 0 {
			continue
		}
		var sum float64
		for b := first; b <= last && b < len(harmonic[i]); b++ {
			sum += harmonic[i][b]
		}
		out[i] = min(1, sum/energy[i])
	}
	return out
}
