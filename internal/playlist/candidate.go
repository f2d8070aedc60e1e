package playlist

// Candidate is a playlist entry as reported by the metadata source.
type Candidate struct {
	SourceID        string  `json:"source_id" yaml:"source_id"`
	Title           string  `json:"title" yaml:"title"`
	Uploader        string  `json:"uploader" yaml:"uploader"`
	DurationSeconds float64 `json:"duration_seconds" yaml:"duration_seconds"`
	License         string  `json:"license" yaml:"license"`
	Position        int     `json:"position" yaml:"position"`
	PlaylistID      string  `json:"playlist_id" yaml:"-"`
}

// Page is one page of candidates in playlist order.
type Page struct {
	Candidates    []Candidate
	NextPageToken string
}
