package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains working directories.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
	// RawCacheMaxGiB bounds the downloaded audio cache under the staging dir.
	RawCacheMaxGiB int `toml:"raw_cache_max_gib"`
}

// Playlist selects the metadata source and the playlist to ingest.
type Playlist struct {
	ID           string `toml:"id"`
	Source       string `toml:"source"`
	ManifestPath string `toml:"manifest_path"`
	PageSize     int    `toml:"page_size"`
	Limit        int    `toml:"limit"`
}

// YouTube contains Data API credentials.
type YouTube struct {
	APIKey          string `toml:"api_key"`
	CredentialsFile string `toml:"credentials_file"`
	RequestTimeout  int    `toml:"request_timeout"`
}

// Tools names the external binaries and their timeouts (seconds).
type Tools struct {
	YtDlpBinary       string `toml:"ytdlp_binary"`
	FFmpegBinary      string `toml:"ffmpeg_binary"`
	DemucsBinary      string `toml:"demucs_binary"`
	WhisperXBinary    string `toml:"whisperx_binary"`
	CookiesFile       string `toml:"cookies_file"`
	DownloadTimeout   int    `toml:"download_timeout"`
	SeparationTimeout int    `toml:"separation_timeout"`
	AlignmentTimeout  int    `toml:"alignment_timeout"`
}

// Eligibility contains the filter gates.
type Eligibility struct {
	MinDurationSeconds float64 `toml:"min_duration_seconds"`
	VocalThreshold     float64 `toml:"vocal_threshold"`
}

// Segmentation contains the loop engine knobs.
type Segmentation struct {
	MinSeconds          float64 `toml:"min_seconds"`
	MaxSeconds          float64 `toml:"max_seconds"`
	TargetSeconds       float64 `toml:"target_seconds"`
	SearchHopSeconds    float64 `toml:"search_hop_seconds"`
	CrossfadeMs         int     `toml:"crossfade_ms"`
	TargetLUFS          float64 `toml:"target_lufs"`
	LUFSTolerance       float64 `toml:"lufs_tolerance"`
	TruePeakCeiling     float64 `toml:"true_peak_ceiling"`
	FirstSectionBias    float64 `toml:"first_section_bias"`
	BiasDecaySeconds    float64 `toml:"bias_decay_seconds"`
	RecurrenceThreshold float64 `toml:"recurrence_threshold"`
	TieBreak            string  `toml:"tie_break"`
	SeamSimulateMinutes float64 `toml:"seam_simulate_minutes"`
	SeamMaxRMSJumpDB    float64 `toml:"seam_max_rms_jump_db"`
	SeamMaxStepRatio    float64 `toml:"seam_max_step_ratio"`
	FrameSize           int     `toml:"frame_size"`
	HopSize             int     `toml:"hop_size"`
}

// Separation contains the stem separation backend and QA cutoffs.
type Separation struct {
	Backend      string  `toml:"backend"`
	Model        string  `toml:"model"`
	Device       string  `toml:"device"`
	SDRThreshold float64 `toml:"sdr_threshold"`
	SIRThreshold float64 `toml:"sir_threshold"`
}

// Alignment contains transcript, alignment backend and runtime warp settings.
type Alignment struct {
	Backend           string   `toml:"backend"`
	WhisperXModel     string   `toml:"whisperx_model"`
	Device            string   `toml:"device"`
	Language          string   `toml:"language"`
	CaptionLanguages  []string `toml:"caption_languages"`
	SyncToleranceMs   float64  `toml:"sync_tolerance_ms"`
	StretchHop        int      `toml:"stretch_hop"`
	PitchLatencyMs    float64  `toml:"pitch_latency_ms"`
	TempoMin          float64  `toml:"tempo_min"`
	TempoMax          float64  `toml:"tempo_max"`
	PitchMin          float64  `toml:"pitch_min"`
	PitchMax          float64  `toml:"pitch_max"`
	LoopTargetMinutes float64  `toml:"loop_target_minutes"`
}

// Rights contains provenance defaults and the clearance recheck cadence.
type Rights struct {
	AcquisitionMethod string `toml:"acquisition_method"`
	RecheckInterval   int    `toml:"recheck_interval"`
}

// Workflow contains daemon timing, retry policy and pool sizes.
type Workflow struct {
	QueuePollInterval int `toml:"queue_poll_interval"`
	HeartbeatInterval int `toml:"heartbeat_interval"`
	HeartbeatTimeout  int `toml:"heartbeat_timeout"`
	ReconcileInterval int `toml:"reconcile_interval"`
	MaxAttempts       int `toml:"max_attempts"`
	RetryBaseSeconds  int `toml:"retry_base_seconds"`
	RetryMaxSeconds   int `toml:"retry_max_seconds"`
	StageBacklog      int `toml:"stage_backlog"`
	IngestBacklog     int `toml:"ingest_backlog"`
	FilterWorkers     int `toml:"filter_workers"`
	SegmentWorkers    int `toml:"segment_workers"`
	SeparateWorkers   int `toml:"separate_workers"`
	AlignWorkers      int `toml:"align_workers"`
	RightsWorkers     int `toml:"rights_workers"`
	PublishWorkers    int `toml:"publish_workers"`
}

// Storage selects where published artifacts land.
type Storage struct {
	Backend            string `toml:"backend"`
	LocalDir           string `toml:"local_dir"`
	Bucket             string `toml:"bucket"`
	Prefix             string `toml:"prefix"`
	GCSCredentialsFile string `toml:"gcs_credentials_file"`
	S3Endpoint         string `toml:"s3_endpoint"`
	S3AccessKey        string `toml:"s3_access_key"`
	S3SecretKey        string `toml:"s3_secret_key"`
	S3Region           string `toml:"s3_region"`
	S3UseSSL           bool   `toml:"s3_use_ssl"`
}

// Lock selects the single-writer-per-key lock implementation.
type Lock struct {
	Backend       string `toml:"backend"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	TTLSeconds    int    `toml:"ttl_seconds"`
}

// API contains the operator HTTP API settings.
type API struct {
	Bind      string `toml:"bind"`
	JWTSecret string `toml:"jwt_secret"`
	JWTIssuer string `toml:"jwt_issuer"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Review         bool   `toml:"review"`
	Compliance     bool   `toml:"compliance"`
	Failures       bool   `toml:"failures"`
	Publish        bool   `toml:"publish"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
	MaxSizeMB     int    `toml:"max_size_mb"`
	MaxBackups    int    `toml:"max_backups"`
}

// Config encapsulates all configuration values for loopdeck.
//
// Configuration sections by subsystem:
//   - Paths: staging, state (databases) and log directories
//   - Playlist, YouTube: metadata source selection and credentials
//   - Tools: yt-dlp, ffmpeg, demucs and whisperx binaries
//   - Eligibility, Segmentation, Separation, Alignment: stage thresholds
//   - Rights: provenance defaults and clearance recheck cadence
//   - Workflow: polling, heartbeats, retry policy and worker pools
//   - Storage: published artifact backend (local, gcs, s3)
//   - Lock: per-source lock backend (local, redis)
//   - API, Notifications, Logging: operator surface
type Config struct {
	Paths         Paths         `toml:"paths"`
	Playlist      Playlist      `toml:"playlist"`
	YouTube       YouTube       `toml:"youtube"`
	Tools         Tools         `toml:"tools"`
	Eligibility   Eligibility   `toml:"eligibility"`
	Segmentation  Segmentation  `toml:"segmentation"`
	Separation    Separation    `toml:"separation"`
	Alignment     Alignment     `toml:"alignment"`
	Rights        Rights        `toml:"rights"`
	Workflow      Workflow      `toml:"workflow"`
	Storage       Storage       `toml:"storage"`
	Lock          Lock          `toml:"lock"`
	API           API           `toml:"api"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/loopdeck/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if err := loadDotEnv(filepath.Dir(resolvedPath)); err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadDotEnv reads KEY=VALUE pairs from a .env file beside the config. Variables
// already present in the environment win.
func loadDotEnv(dir string) error {
	envPath := filepath.Join(dir, ".env")
	if _, err := os.Stat(envPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat .env: %w", err)
	}
	if err := godotenv.Load(envPath); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("loopdeck.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.StagingDir, c.Paths.StateDir, c.Paths.LogDir}
	if c.Storage.Backend == StorageLocal {
		dirs = append(dirs, c.Storage.LocalDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RawCacheDir returns where downloaded source audio is kept.
func (c *Config) RawCacheDir() string {
	return filepath.Join(c.Paths.StagingDir, "raw")
}

// OutputDir returns where stage outputs are staged before publishing, laid
// out by storage key.
func (c *Config) OutputDir() string {
	return filepath.Join(c.Paths.StagingDir, "out")
}

// WorkRoot returns the parent of every per-track scratch directory.
func (c *Config) WorkRoot() string {
	return filepath.Join(c.Paths.StagingDir, "work")
}

// WorkDir returns the per-track scratch directory.
func (c *Config) WorkDir(sourceID string) string {
	return filepath.Join(c.WorkRoot(), sourceID)
}

// QueueDBPath returns the durable work queue database location.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.StateDir, "queue.db")
}

// CatalogDBPath returns the rights and catalog database location.
func (c *Config) CatalogDBPath() string {
	return filepath.Join(c.Paths.StateDir, "catalog.db")
}

// DaemonLockPath returns the flock guarding single-instance execution.
func (c *Config) DaemonLockPath() string {
	return filepath.Join(c.Paths.StateDir, "loopdeckd.lock")
}

// DaemonPIDPath returns the file recording the running daemon's PID.
func (c *Config) DaemonPIDPath() string {
	return filepath.Join(c.Paths.StateDir, "loopdeckd.pid")
}

// DaemonLogPath is the daemon's current log file.
func (c *Config) DaemonLogPath() string {
	return filepath.Join(c.Paths.LogDir, "loopdeck.log")
}

// PollInterval returns the idle wait between queue polls.
func (w Workflow) PollInterval() time.Duration {
	return time.Duration(w.QueuePollInterval) * time.Second
}

// Heartbeat returns the heartbeat cadence and the stale cutoff.
func (w Workflow) Heartbeat() (interval, timeout time.Duration) {
	return time.Duration(w.HeartbeatInterval) * time.Second, time.Duration(w.HeartbeatTimeout) * time.Second
}

// RetryBackoff returns the delay before retry attempt n (1-based): base*2^(n-1), capped.
func (w Workflow) RetryBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := time.Duration(w.RetryBaseSeconds) * time.Second
	limit := time.Duration(w.RetryMaxSeconds) * time.Second
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= limit {
			return limit
		}
	}
	if delay > limit {
		return limit
	}
	return delay
}

// Recheck returns how long a Track awaiting clearance waits before the rights gate runs again.
func (r Rights) Recheck() time.Duration {
	return time.Duration(r.RecheckInterval) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// ErrConfigExists is returned by WriteSample when the target exists and
// overwrite was not requested.
var ErrConfigExists = errors.New("config file already exists")

// WriteSample writes the annotated sample configuration to path.
func WriteSample(path string, overwrite bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%w: %s", ErrConfigExists, path)
	}
	if err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	if _, err := f.WriteString(sampleConfig); err != nil {
		f.Close()
		return fmt.Errorf("write sample config: %w", err)
	}
	return f.Close()
}

const redacted = "<redacted>"

// Redacted returns a copy with credentials masked, for display.
func (c Config) Redacted() Config {
	for _, secret := range []*string{
		&c.YouTube.APIKey,
		&c.API.JWTSecret,
		&c.Storage.S3AccessKey,
		&c.Storage.S3SecretKey,
		&c.Lock.RedisPassword,
		&c.Notifications.NtfyTopic,
	} {
		if *secret != "" {
			*secret = redacted
		}
	}
	c.Alignment.CaptionLanguages = append([]string(nil), c.Alignment.CaptionLanguages...)
	return c
}

// Encode renders the configuration in the config file format.
func (c Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}
