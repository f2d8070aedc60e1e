package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds a word to its comparison form: compatibility-decomposed,
// stripped of combining marks and case-folded, keeping only letters and
// digits. "Café!" and "cafe" normalize to the same string.
func Normalize(word string) string {
	stripped, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), word)
	if err != nil {
		stripped = word
	}
	folded := cases.Fold().String(stripped)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Words splits text on whitespace and trims surrounding punctuation from each
// token. Tokens with nothing left to match (dashes, music notes) are dropped.
func Words(text string) []string {
	fields := strings.Fields(text)
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
		})
		f = strings.Trim(f, "'")
		if Normalize(f) == "" {
			continue
		}
		words = append(words, f)
	}
	return words
}

// Similarity compares the normalized forms of a and b: 1 for equal, 0 for
// nothing in common, otherwise one minus the edit distance over the longer
// length.
func Similarity(a, b string) float64 {
	na := []rune(Normalize(a))
	nb := []rune(Normalize(b))
	longest := max(len(na), len(nb))
	if longest == 0 {
		return 0
	}
	return 1 - float64(editDistance(na, nb))/float64(longest)
}

func editDistance(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
