package alignment

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"loopdeck/internal/language"
	"loopdeck/internal/services"
)

// TranscriptSource fetches the reference text for a track.
type TranscriptSource interface {
	Fetch(ctx context.Context, sourceID, workDir string) (Transcript, error)
}

// CaptionDownloader writes a WebVTT caption file and returns its path.
type CaptionDownloader interface {
	DownloadCaptions(ctx context.Context, id, destDir string, langs []string) (string, error)
}

// CaptionSource reads uploaded or automatic captions. A video without
// captions yields an empty transcript rather than an error.
type CaptionSource struct {
	downloader CaptionDownloader
	languages  []string
}

// NewCaptionSource returns a source preferring languages in order.
func NewCaptionSource(downloader CaptionDownloader, languages []string) *CaptionSource {
	return &CaptionSource{downloader: downloader, languages: languages}
}

// Fetch downloads and parses captions for sourceID.
func (s *CaptionSource) Fetch(ctx context.Context, sourceID, workDir string) (Transcript, error) {
	if s == nil || s.downloader == nil {
		return Transcript{Source: TranscriptNone}, nil
	}
	path, err := s.downloader.DownloadCaptions(ctx, sourceID, filepath.Join(workDir, "captions"), s.languages)
	if errors.Is(err, services.ErrNotFound) {
		return Transcript{Source: TranscriptNone}, nil
	}
	if err != nil {
		return Transcript{}, err
	}
	cues, err := ReadVTT(path)
	if err != nil {
		return Transcript{}, services.Wrap(services.ErrValidation, stageName, "parse captions", path, err)
	}
	return Transcript{Source: TranscriptCaptions, Language: captionLanguage(path), Cues: cues}, nil
}

// captionLanguage reads the language tag yt-dlp puts in the file name
// ({id}.{lang}.vtt).
func captionLanguage(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), ".vtt")
	if i := strings.LastIndex(name, "."); i >= 0 {
		return language.ToISO2(name[i+1:])
	}
	return ""
}

// NoTranscript is used when captions are disabled.
type NoTranscript struct{}

// Fetch returns an empty transcript.
func (NoTranscript) Fetch(context.Context, string, string) (Transcript, error) {
	return Transcript{Source: TranscriptNone}, nil
}
