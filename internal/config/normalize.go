package config

import (
	"fmt"
	"os"
	"strings"

	"loopdeck/internal/language"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePlaylist()
	c.normalizeSecrets()
	c.normalizeBackends()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Storage.LocalDir) == "" {
		c.Storage.LocalDir = defaultCatalogDir
	}
	if c.Storage.LocalDir, err = expandPath(c.Storage.LocalDir); err != nil {
		return fmt.Errorf("storage.local_dir: %w", err)
	}
	if c.Playlist.ManifestPath != "" {
		if c.Playlist.ManifestPath, err = expandPath(c.Playlist.ManifestPath); err != nil {
			return fmt.Errorf("playlist.manifest_path: %w", err)
		}
	}
	if c.Tools.CookiesFile != "" {
		if c.Tools.CookiesFile, err = expandPath(c.Tools.CookiesFile); err != nil {
			return fmt.Errorf("tools.cookies_file: %w", err)
		}
	}
	return nil
}

// normalizePlaylist accepts a full playlist URL and keeps only the list id.
func (c *Config) normalizePlaylist() {
	c.Playlist.ID = PlaylistIDFromURL(c.Playlist.ID)
	c.Playlist.Source = strings.ToLower(strings.TrimSpace(c.Playlist.Source))
}

// PlaylistIDFromURL extracts the list= parameter from a playlist URL. Plain ids
// are returned trimmed.
func PlaylistIDFromURL(value string) string {
	value = strings.TrimSpace(value)
	idx := strings.Index(value, "list=")
	if idx < 0 {
		return value
	}
	id := value[idx+len("list="):]
	if amp := strings.IndexByte(id, '&'); amp >= 0 {
		id = id[:amp]
	}
	return id
}

func (c *Config) normalizeSecrets() {
	lookup := func(current *string, keys ...string) {
		if strings.TrimSpace(*current) != "" {
			return
		}
		for _, key := range keys {
			if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
				*current = strings.TrimSpace(value)
				return
			}
		}
	}
	lookup(&c.YouTube.APIKey, "LOOPDECK_YOUTUBE_API_KEY", "YOUTUBE_API_KEY")
	lookup(&c.API.JWTSecret, "LOOPDECK_JWT_SECRET")
	lookup(&c.Storage.S3AccessKey, "LOOPDECK_S3_ACCESS_KEY")
	lookup(&c.Storage.S3SecretKey, "LOOPDECK_S3_SECRET_KEY")
	lookup(&c.Storage.GCSCredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	lookup(&c.Lock.RedisPassword, "LOOPDECK_REDIS_PASSWORD")
	lookup(&c.Notifications.NtfyTopic, "LOOPDECK_NTFY_TOPIC")
}

func (c *Config) normalizeBackends() {
	c.Separation.Backend = strings.ToLower(strings.TrimSpace(c.Separation.Backend))
	c.Alignment.Backend = strings.ToLower(strings.TrimSpace(c.Alignment.Backend))
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	c.Lock.Backend = strings.ToLower(strings.TrimSpace(c.Lock.Backend))
	c.Segmentation.TieBreak = strings.ToLower(strings.TrimSpace(c.Segmentation.TieBreak))
	c.Storage.Prefix = strings.Trim(strings.TrimSpace(c.Storage.Prefix), "/")
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if strings.TrimSpace(c.API.JWTIssuer) == "" {
		c.API.JWTIssuer = defaultJWTIssuer
	}
	if iso := language.ToISO2(c.Alignment.Language); iso != "" {
		c.Alignment.Language = iso
	}
	c.Alignment.Device = strings.ToLower(strings.TrimSpace(c.Alignment.Device))
	if len(c.Alignment.CaptionLanguages) == 0 && c.Alignment.Language != "" {
		c.Alignment.CaptionLanguages = []string{c.Alignment.Language}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
