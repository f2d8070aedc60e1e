package playlist

import (
	"context"
	"io"
)

// Cursor marks a resume point: the token of the page being read and how many
// of its candidates were already yielded.
type Cursor struct {
	PageToken string `json:"page_token"`
	Offset    int    `json:"offset"`
}

// Fetcher produces candidate iterators over a Source.
type Fetcher struct {
	source Source
}

// NewFetcher wraps source.
func NewFetcher(source Source) *Fetcher {
	return &Fetcher{source: source}
}

// Candidates returns an iterator from the start of the playlist.
func (f *Fetcher) Candidates(playlistID string) *Iterator {
	return f.Resume(playlistID, Cursor{})
}

// Resume returns an iterator that starts at cursor.
func (f *Fetcher) Resume(playlistID string, cursor Cursor) *Iterator {
	return &Iterator{source: f.source, playlistID: playlistID, cursor: cursor}
}

// Iterator lazily pages through a playlist. It is not safe for concurrent use.
type Iterator struct {
	source     Source
	playlistID string

	cursor  Cursor
	page    []Candidate
	next    string
	loaded  bool
	done    bool
	yielded int
}

// Next returns the next candidate, io.EOF at the end of the playlist, or the
// source's error. After an error Next may be called again to retry the same
// page.
func (it *Iterator) Next(ctx context.Context) (Candidate, error) {
	for {
		if it.done {
			return Candidate{}, io.EOF
		}
		if !it.loaded {
			page, err := it.source.ListPlaylistItems(ctx, it.playlistID, it.cursor.PageToken)
			if err != nil {
				return Candidate{}, err
			}
			it.page = page.Candidates
			it.next = page.NextPageToken
			it.loaded = true
		}
		if it.cursor.Offset < len(it.page) {
			c := it.page[it.cursor.Offset]
			it.cursor.Offset++
			it.yielded++
			return c, nil
		}
		if it.next == "" {
			it.done = true
			continue
		}
		it.cursor = Cursor{PageToken: it.next}
		it.loaded = false
	}
}

// Cursor returns the resume point after the last yielded candidate.
func (it *Iterator) Cursor() Cursor {
	return it.cursor
}

// Yielded reports how many candidates this iterator returned.
func (it *Iterator) Yielded() int {
	return it.yielded
}
