package playlist

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"

	"loopdeck/internal/services"
)

// Manifest is an offline playlist description.
//
//	playlist_id: PLdemo
//	items:
//	  - source_id: abc123
//	    title: Song
//	    uploader: Artist
//	    duration_seconds: 212
//	    license: creativeCommon
type Manifest struct {
	PlaylistID string      `yaml:"playlist_id"`
	Items      []Candidate `yaml:"items"`
}

// LoadManifest parses a manifest file. Positions default to file order.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, services.Wrap(services.ErrNotFound, "playlist", "read manifest", path, err)
		}
		return nil, services.Wrap(services.ErrFetch, "playlist", "read manifest", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, services.Wrap(services.ErrValidation, "playlist", "parse manifest", path, err)
	}
	seen := make(map[string]struct{}, len(m.Items))
	for i := range m.Items {
		id := m.Items[i].SourceID
		if id == "" {
			return nil, services.Wrap(services.ErrValidation, "playlist", "parse manifest", fmt.Sprintf("item %d has no source_id", i), nil)
		}
		if _, dup := seen[id]; dup {
			return nil, services.Wrap(services.ErrValidation, "playlist", "parse manifest", "duplicate source_id "+id, nil)
		}
		seen[id] = struct{}{}
		if m.Items[i].Position == 0 {
			m.Items[i].Position = i
		}
	}
	return &m, nil
}

// WriteManifest stores m at path.
func WriteManifest(path string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ManifestSource serves a manifest file in pages. Page tokens are item offsets.
// The file is read once.
type ManifestSource struct {
	Path     string
	PageSize int

	once     sync.Once
	manifest *Manifest
	err      error
}

// ListPlaylistItems implements Source.
func (s *ManifestSource) ListPlaylistItems(ctx context.Context, playlistID, pageToken string) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	s.once.Do(func() { s.manifest, s.err = LoadManifest(s.Path) })
	if s.err != nil {
		return Page{}, s.err
	}
	if s.manifest.PlaylistID != "" && playlistID != "" && s.manifest.PlaylistID != playlistID {
		return Page{}, services.Wrap(services.ErrNotFound, "playlist", "list manifest",
			fmt.Sprintf("manifest describes %s, not %s", s.manifest.PlaylistID, playlistID), nil)
	}

	offset := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil || n < 0 {
			return Page{}, services.Wrap(services.ErrValidation, "playlist", "list manifest", "bad page token "+pageToken, err)
		}
		offset = n
	}
	size := s.PageSize
	if size <= 0 {
		size = len(s.manifest.Items)
	}
	items := s.manifest.Items
	offset = min(offset, len(items))
	end := min(offset+size, len(items))

	page := Page{Candidates: make([]Candidate, 0, end-offset)}
	for _, c := range items[offset:end] {
		c.PlaylistID = playlistID
		if playlistID == "" {
			c.PlaylistID = s.manifest.PlaylistID
		}
		page.Candidates = append(page.Candidates, c)
	}
	if end < len(items) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}
