package staging

import (
	"path/filepath"
	"strings"
)

// Storage keys. The same relative layout is used in the staging output
// directory and in the published blob store.

// RawKey is the source audio fetched for a track.
func RawKey(sourceID string) string { return "raw/" + sourceID + ".wav" }

// SegmentKey is the normalized loop.
func SegmentKey(sourceID string) string { return "segments/" + sourceID + ".wav" }

// VocalsKey is the isolated vocal stem.
func VocalsKey(sourceID string) string { return "separation/" + sourceID + "/vocals.wav" }

// BedKey is the karaoke bed (everything but the vocals).
func BedKey(sourceID string) string { return "separation/" + sourceID + "/no_vocals.wav" }

// SegmentMetaKey is the loop metadata document.
func SegmentMetaKey(sourceID string) string { return "metadata/" + sourceID + "_segment.json" }

// QAMetaKey is the separation quality report.
func QAMetaKey(sourceID string) string { return "metadata/" + sourceID + "_qa.json" }

// AlignmentMetaKey is the lyric alignment map.
func AlignmentMetaKey(sourceID string) string { return "metadata/" + sourceID + "_alignment.json" }

// RightsMetaKey is the rights snapshot written at publish time.
func RightsMetaKey(sourceID string) string { return "metadata/" + sourceID + "_rights.json" }

// AudioKeys lists the audio objects of a published entry. Unpublishing
// deletes these and keeps the metadata documents.
func AudioKeys(sourceID string) []string {
	return []string{RawKey(sourceID), SegmentKey(sourceID), VocalsKey(sourceID), BedKey(sourceID)}
}

// Path resolves a storage key under root.
func Path(root, key string) string {
	return filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(key, "/")))
}
