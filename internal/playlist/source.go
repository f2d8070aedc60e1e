package playlist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"loopdeck/internal/config"
	"loopdeck/internal/services/youtube"
	"loopdeck/internal/services/ytdlp"
)

// Source lists one page of a playlist. An empty NextPageToken ends the walk.
type Source interface {
	ListPlaylistItems(ctx context.Context, playlistID, pageToken string) (Page, error)
}

// NewSource builds the source selected by cfg.Playlist.Source.
func NewSource(ctx context.Context, cfg *config.Config) (Source, error) {
	switch cfg.Playlist.Source {
	case config.SourceYouTube:
		client, err := youtube.New(ctx, cfg.YouTube.APIKey, cfg.YouTube.CredentialsFile)
		if err != nil {
			return nil, err
		}
		return &YouTubeSource{
			Client:   client,
			PageSize: cfg.Playlist.PageSize,
			Timeout:  time.Duration(cfg.YouTube.RequestTimeout) * time.Second,
		}, nil
	case config.SourceYtDlp:
		return &YtDlpSource{Service: ytdlp.New(cfg.Tools.YtDlpBinary, cfg.Tools.CookiesFile)}, nil
	case config.SourceManifest:
		return &ManifestSource{Path: cfg.Playlist.ManifestPath, PageSize: cfg.Playlist.PageSize}, nil
	default:
		return nil, fmt.Errorf("unsupported playlist source %q", cfg.Playlist.Source)
	}
}

// YouTubeSource pages the Data API.
type YouTubeSource struct {
	Client   *youtube.Client
	PageSize int
	Timeout  time.Duration
}

// ListPlaylistItems implements Source.
func (s *YouTubeSource) ListPlaylistItems(ctx context.Context, playlistID, pageToken string) (Page, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	page, err := s.Client.PlaylistPage(ctx, playlistID, pageToken, s.PageSize)
	if err != nil {
		return Page{}, err
	}
	out := Page{NextPageToken: page.NextPageToken, Candidates: make([]Candidate, 0, len(page.Videos))}
	for _, v := range page.Videos {
		out.Candidates = append(out.Candidates, Candidate{
			SourceID:        v.ID,
			Title:           v.Title,
			Uploader:        v.Channel,
			DurationSeconds: v.DurationSeconds,
			License:         v.License,
			Position:        v.Position,
			PlaylistID:      playlistID,
		})
	}
	return out, nil
}

// YtDlpSource lists the whole playlist in one flat dump.
type YtDlpSource struct {
	Service *ytdlp.Service
}

// ListPlaylistItems implements Source. The page token is ignored.
func (s *YtDlpSource) ListPlaylistItems(ctx context.Context, playlistID, _ string) (Page, error) {
	pl, err := s.Service.FlatPlaylist(ctx, playlistID)
	if err != nil {
		return Page{}, err
	}
	out := Page{Candidates: make([]Candidate, 0, len(pl.Entries))}
	for i, e := range pl.Entries {
		out.Candidates = append(out.Candidates, Candidate{
			SourceID:        e.ID,
			Title:           e.Title,
			Uploader:        e.Uploader,
			DurationSeconds: e.Duration,
			License:         normalizeLicense(e.License),
			Position:        i,
			PlaylistID:      playlistID,
		})
	}
	return out, nil
}

// normalizeLicense maps yt-dlp's display strings onto the Data API values.
func normalizeLicense(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	switch {
	case v == "":
		return ""
	case strings.Contains(v, "creative"):
		return "creativeCommon"
	case strings.Contains(v, "youtube") || strings.Contains(v, "standard"):
		return "youtube"
	default:
		return value
	}
}
