package dsp

import "math"

// BeatChroma averages chroma between consecutive beats and L2-normalizes each
// vector. The result has one entry per beat interval.
func BeatChroma(chroma [][]float64, beats []int) [][]float64 {
	if len(beats) < 2 {
		return nil
	}
	out := make([][]float64, 0, len(beats)-1)
	for i := 0; i+1 < len(beats); i++ {
		vec := make([]float64, 12)
		lo, hi := beats[i], min(beats[i+1], len(chroma))
		for f := lo; f < hi; f++ {
			for pc, v := range chroma[f] {
				vec[pc] += v
			}
		}
		var norm float64
		for _, v := range vec {
			norm += v * v
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for pc := range vec {
				vec[pc] /= norm
			}
		}
		out = append(out, vec)
	}
	return out
}

// Recurrence scores each beat by how strongly the pathLen beats starting there
// repeat elsewhere in the track, at least minLag beats away. Scores are the
// best mean cosine similarity along a diagonal of the self-similarity matrix.
func Recurrence(beatChroma [][]float64, pathLen, minLag int) []float64 {
	n := len(beatChroma)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	pathLen = max(1, pathLen)
	minLag = max(1, minLag)
	for j := 0; j < n; j++ {
		best := 0.0
		for k := 0; k < n; k++ {
			if abs(k-j) < minLag {
				continue
			}
			var sum float64
			count := 0
			for l := 0; l < pathLen && j+l < n && k+l < n; l++ {
				sum += dot(beatChroma[j+l], beatChroma[k+l])
				count++
			}
			if count == 0 {
				continue
			}
			if sim := sum / float64(pathLen); sim > best {
				best = sim
			}
		}
		out[j] = best
	}
	return out
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
