// Package ytdlp drives the yt-dlp CLI for playlist listing, audio download
// and caption download.
package ytdlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"loopdeck/internal/language"
	"loopdeck/internal/services"
)

// DefaultBinary is used when no binary is configured.
const DefaultBinary = "yt-dlp"

// Runner executes a command and returns stdout. Errors carry stderr.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Entry is a flat playlist entry.
type Entry struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Uploader string  `json:"uploader"`
	Channel  string  `json:"channel"`
	Duration float64 `json:"duration"`
	License  string  `json:"license"`
}

// Playlist is the flat playlist dump.
type Playlist struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Entries []Entry `json:"entries"`
}

// Service wraps the yt-dlp binary.
type Service struct {
	binary  string
	cookies string
	run     Runner
}

// New returns a Service. cookiesFile is optional.
func New(binary, cookiesFile string) *Service {
	if strings.TrimSpace(binary) == "" {
		binary = DefaultBinary
	}
	return &Service{binary: binary, cookies: strings.TrimSpace(cookiesFile), run: stdout}
}

// WithRunner replaces command execution (for testing).
func (s *Service) WithRunner(run Runner) {
	if run != nil {
		s.run = run
	}
}

// Binary returns the configured executable.
func (s *Service) Binary() string {
	return s.binary
}

func stdout(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	cmd.Env = append(os.Environ(), "PYTHONUTF8=1", "PYTHONIOENCODING=utf-8")
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return out, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
	}
	return out, err
}

// PlaylistURL expands a bare playlist id into a URL.
func PlaylistURL(playlist string) string {
	playlist = strings.TrimSpace(playlist)
	if strings.HasPrefix(playlist, "http://") || strings.HasPrefix(playlist, "https://") {
		return playlist
	}
	return "https://www.youtube.com/playlist?list=" + playlist
}

// VideoURL returns the watch URL for a video id.
func VideoURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

func (s *Service) baseArgs() []string {
	args := []string{"--no-warnings", "--quiet"}
	if s.cookies != "" {
		args = append(args, "--cookies", s.cookies)
	}
	return args
}

// FlatPlaylist lists the playlist without downloading media.
func (s *Service) FlatPlaylist(ctx context.Context, playlist string) (Playlist, error) {
	args := append(s.baseArgs(), "--flat-playlist", "--dump-single-json", "--skip-download", PlaylistURL(playlist))
	out, err := s.run(ctx, s.binary, args...)
	if err != nil {
		return Playlist{}, s.wrap(ctx, "flat playlist", playlist, err)
	}
	var pl Playlist
	if err := json.Unmarshal(out, &pl); err != nil {
		return Playlist{}, services.Wrap(services.ErrValidation, "yt-dlp", "decode playlist", playlist, err)
	}
	kept := pl.Entries[:0]
	for _, e := range pl.Entries {
		if strings.TrimSpace(e.ID) == "" {
			continue
		}
		if e.Uploader == "" {
			e.Uploader = e.Channel
		}
		kept = append(kept, e)
	}
	pl.Entries = kept
	return pl, nil
}

// DownloadAudio fetches the best audio stream for id and converts it to WAV
// at destDir/<id>.wav.
func (s *Service) DownloadAudio(ctx context.Context, id, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("yt-dlp download: ensure dir: %w", err)
	}
	args := append(s.baseArgs(),
		"--no-playlist",
		"-f", "bestaudio[ext=m4a]/bestaudio/best",
		"-x",
		"--audio-format", "wav",
		"--audio-quality", "0",
		"-o", filepath.Join(destDir, id+".%(ext)s"),
		VideoURL(id),
	)
	if _, err := s.run(ctx, s.binary, args...); err != nil {
		return "", s.wrap(ctx, "download audio", id, err)
	}
	path := filepath.Join(destDir, id+".wav")
	if _, err := os.Stat(path); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "yt-dlp", "download audio", "expected "+path, err)
	}
	return path, nil
}

// DownloadCaptions writes the first available WebVTT caption track in langs
// (uploaded captions first, then automatic) and returns its path. It returns
// ErrNotFound when the video has none.
func (s *Service) DownloadCaptions(ctx context.Context, id, destDir string, langs []string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("yt-dlp captions: ensure dir: %w", err)
	}
	if len(langs) == 0 {
		langs = []string{"en"}
	}
	for _, auto := range []bool{false, true} {
		args := append(s.baseArgs(),
			"--no-playlist",
			"--skip-download",
			"--sub-langs", strings.Join(langs, ","),
			"--sub-format", "vtt",
			"-o", filepath.Join(destDir, id+".%(ext)s"),
		)
		if auto {
			args = append(args, "--write-auto-subs")
		} else {
			args = append(args, "--write-subs")
		}
		args = append(args, VideoURL(id))
		if _, err := s.run(ctx, s.binary, args...); err != nil {
			return "", s.wrap(ctx, "download captions", id, err)
		}
		if path := findCaption(destDir, id, langs); path != "" {
			return path, nil
		}
	}
	return "", services.Wrap(services.ErrNotFound, "yt-dlp", "download captions", "no captions for "+id, nil)
}

func findCaption(dir, id string, langs []string) string {
	matches, _ := filepath.Glob(filepath.Join(dir, id+".*.vtt"))
	if len(matches) == 0 {
		return ""
	}
	byTag := make(map[string]string, len(matches))
	tags := make([]string, 0, len(matches))
	for _, path := range matches {
		tag := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), id+"."), ".vtt")
		byTag[tag] = path
		tags = append(tags, tag)
	}
	if tag := language.PickCaption(tags, langs); tag != "" {
		return byTag[tag]
	}
	return matches[0]
}

func (s *Service) wrap(ctx context.Context, op, subject string, err error) error {
	if ctx.Err() != nil {
		return services.Wrap(services.ErrTimeout, "yt-dlp", op, subject, ctx.Err())
	}
	return services.Wrap(services.ErrFetch, "yt-dlp", op, subject, err)
}
