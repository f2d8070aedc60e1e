package staging_test

import (
	"path/filepath"
	"testing"

	"loopdeck/internal/staging"
)

func TestLayoutKeys(t *testing.T) {
	cases := map[string]string{
		staging.RawKey("abc"):           "raw/abc.wav",
		staging.SegmentKey("abc"):       "segments/abc.wav",
		staging.VocalsKey("abc"):        "separation/abc/vocals.wav",
		staging.BedKey("abc"):           "separation/abc/no_vocals.wav",
		staging.SegmentMetaKey("abc"):   "metadata/abc_segment.json",
		staging.QAMetaKey("abc"):        "metadata/abc_qa.json",
		staging.AlignmentMetaKey("abc"): "metadata/abc_alignment.json",
		staging.RightsMetaKey("abc"):    "metadata/abc_rights.json",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("key = %q, want %q", got, want)
		}
	}
	if keys := staging.AudioKeys("abc"); len(keys) != 4 {
		t.Fatalf("expected four audio keys, got %v", keys)
	}
}

func TestPathJoinsUnderRoot(t *testing.T) {
	root := t.TempDir()
	got := staging.Path(root, "/separation/abc/vocals.wav")
	want := filepath.Join(root, "separation", "abc", "vocals.wav")
	if got != want {
		t.Fatalf("Path = %q, want %q", got, want)
	}
}
