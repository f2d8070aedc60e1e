// Package textutil normalizes lyric text for matching.
//
// Words from captions and from speech recognition rarely agree on case,
// punctuation or accents. Normalize folds all three away so the aligner can
// compare tokens, and Similarity scores near misses ("gonna" vs "gona").
package textutil
