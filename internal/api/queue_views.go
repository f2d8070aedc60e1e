package api

import (
	"slices"
	"strings"
)

// SortTracksNewestFirst orders Tracks by CreatedAt descending, breaking ties by ID descending.
func SortTracksNewestFirst(items []Track) []Track {
	if len(items) == 0 {
		return nil
	}
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b Track) int {
		ta, tb := ParseTime(a.CreatedAt), ParseTime(b.CreatedAt)
		if c := tb.Compare(ta); c != 0 {
			return c
		}
		return int(b.ID - a.ID)
	})
	return sorted
}

// SortTracksByPlaylist orders Tracks by playlist position, the ingestion order.
func SortTracksByPlaylist(items []Track) []Track {
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b Track) int {
		if c := strings.Compare(a.PlaylistID, b.PlaylistID); c != 0 {
			return c
		}
		return a.Position - b.Position
	})
	return sorted
}

// Outcome summarizes where a Track ended up for list views.
func (t Track) Outcome() string {
	switch {
	case t.NeedsReview:
		return "review: " + t.ReviewReason
	case t.RejectionReason != "":
		return t.RejectionReason
	case t.ErrorMessage != "":
		return t.ErrorMessage
	case t.NotBefore != "":
		return "waiting until " + t.NotBefore
	default:
		return t.Progress.Message
	}
}
