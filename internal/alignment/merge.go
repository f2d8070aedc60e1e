package alignment

import (
	"loopdeck/internal/services/whisperx"
	"loopdeck/internal/textutil"
)

const (
	// matchSimilarity is the least similar pair the merge will still pair up.
	matchSimilarity = 0.6
	gapPenalty      = -1.0
	mismatchPenalty = -1.0
)

// Merge places transcript words on the recognized timeline. The two word
// sequences are globally aligned (Needleman-Wunsch) on normalized text;
// transcript words paired with a recognized word take its timing and the
// rest are spread evenly between their timed neighbours. With no transcript
// the recognized words are used as they are; with nothing recognized the
// transcript keeps its cue timing.
func Merge(reference []Word, recognized []whisperx.Word) []Word {
	if len(reference) == 0 {
		out := make([]Word, 0, len(recognized))
		for _, w := range recognized {
			out = append(out, Word{Text: w.Word, Start: *w.Start, End: *w.End})
		}
		return out
	}
	if len(recognized) == 0 {
		return reference
	}

	pairs := globalAlign(reference, recognized)
	out := make([]Word, len(reference))
	copy(out, reference)
	timed := make([]bool, len(reference))
	for i, j := range pairs {
		if j < 0 {
			continue
		}
		out[i].Start = *recognized[j].Start
		out[i].End = *recognized[j].End
		timed[i] = true
	}
	interpolate(out, timed)
	return out
}

// globalAlign returns, for each reference word, the index of the recognized
// word it pairs with or -1.
func globalAlign(reference []Word, recognized []whisperx.Word) []int {
	n, m := len(reference), len(recognized)
	sim := make([][]float64, n)
	for i := range sim {
		sim[i] = make([]float64, m)
		for j := range sim[i] {
			sim[i][j] = textutil.Similarity(reference[i].Text, recognized[j].Word)
		}
	}
	pairScore := func(i, j int) float64 {
		if s := sim[i][j]; s >= matchSimilarity {
			return 2 * s
		}
		return mismatchPenalty
	}

	score := make([][]float64, n+1)
	for i := range score {
		score[i] = make([]float64, m+1)
		score[i][0] = float64(i) * gapPenalty
	}
	for j := 0; j <= m; j++ {
		score[0][j] = float64(j) * gapPenalty
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			score[i][j] = max(
				score[i-1][j-1]+pairScore(i-1, j-1),
				score[i-1][j]+gapPenalty,
				score[i][j-1]+gapPenalty,
			)
		}
	}

	pairs := make([]int, n)
	for i := range pairs {
		pairs[i] = -1
	}
	i, j := n, m
	for i > 0 && j > 0 {
		switch {
		case score[i][j] == score[i-1][j-1]+pairScore(i-1, j-1):
			if sim[i-1][j-1] >= matchSimilarity {
				pairs[i-1] = j - 1
			}
			i--
			j--
		case score[i][j] == score[i-1][j]+gapPenalty:
			i--
		default:
			j--
		}
	}
	return pairs
}

// interpolate spreads each run of untimed words evenly between the end of
// the timed word before it and the start of the timed word after it. Runs at
// either edge keep their cue timing.
func interpolate(words []Word, timed []bool) {
	for i := 0; i < len(words); {
		if timed[i] {
			i++
			continue
		}
		j := i
		for j < len(words) && !timed[j] {
			j++
		}
		if i > 0 && j < len(words) {
			lo := words[i-1].End
			hi := max(words[j].Start, lo)
			step := (hi - lo) / float64(j-i)
			for k := i; k < j; k++ {
				words[k].Start = lo + float64(k-i)*step
				words[k].End = words[k].Start + step
			}
		}
		i = j
	}
}
