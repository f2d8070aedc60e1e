// Package playlist turns a YouTube playlist into an ordered, lazily paged
// stream of Candidates.
//
// Sources implement a single page call; the Iterator walks pages in playlist
// order and exposes a Cursor so an interrupted ingest can resume where it
// stopped. Network and auth failures surface as services.ErrFetch and leave
// already yielded candidates valid.
package playlist
