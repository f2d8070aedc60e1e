package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validatePaths,
		c.validatePlaylist,
		c.validateEligibility,
		c.validateSegmentation,
		c.validateSeparation,
		c.validateAlignment,
		c.validateWorkflow,
		c.validateStorage,
		c.validateLock,
		c.validateLogging,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.RawCacheMaxGiB < 0 {
		return errors.New("paths.raw_cache_max_gib must be >= 0 (0 disables pruning)")
	}
	return nil
}

func (c *Config) validatePlaylist() error {
	switch c.Playlist.Source {
	case SourceYouTube, SourceYtDlp:
	case SourceManifest:
		if strings.TrimSpace(c.Playlist.ManifestPath) == "" {
			return errors.New("playlist.manifest_path must be set when playlist.source is manifest")
		}
	default:
		return fmt.Errorf("playlist.source must be one of youtube, ytdlp, manifest (got %q)", c.Playlist.Source)
	}
	if c.Playlist.PageSize <= 0 || c.Playlist.PageSize > 50 {
		return errors.New("playlist.page_size must be between 1 and 50")
	}
	if c.Playlist.Limit < 0 {
		return errors.New("playlist.limit must be >= 0")
	}
	return nil
}

func (c *Config) validateEligibility() error {
	if c.Eligibility.MinDurationSeconds <= 0 {
		return errors.New("eligibility.min_duration_seconds must be positive")
	}
	if c.Eligibility.VocalThreshold < 0 || c.Eligibility.VocalThreshold > 1 {
		return errors.New("eligibility.vocal_threshold must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateSegmentation() error {
	s := c.Segmentation
	if s.MinSeconds < 40 || s.MaxSeconds > 60 || s.MinSeconds > s.MaxSeconds {
		return errors.New("segmentation.min_seconds and max_seconds must satisfy 40 <= min <= max <= 60")
	}
	if s.TargetSeconds < s.MinSeconds || s.TargetSeconds > s.MaxSeconds {
		return errors.New("segmentation.target_seconds must lie within [min_seconds, max_seconds]")
	}
	if s.SearchHopSeconds <= 0 {
		return errors.New("segmentation.search_hop_seconds must be positive")
	}
	if s.CrossfadeMs < 30 || s.CrossfadeMs > 80 {
		return errors.New("segmentation.crossfade_ms must be between 30 and 80")
	}
	if s.LUFSTolerance <= 0 {
		return errors.New("segmentation.lufs_tolerance must be positive")
	}
	if s.TruePeakCeiling > 0 {
		return errors.New("segmentation.true_peak_ceiling must be <= 0 dBTP")
	}
	if s.TieBreak != TieBreakEarliest && s.TieBreak != TieBreakLatest {
		return fmt.Errorf("segmentation.tie_break must be earliest or latest (got %q)", s.TieBreak)
	}
	if s.RecurrenceThreshold <= 0 || s.RecurrenceThreshold > 1 {
		return errors.New("segmentation.recurrence_threshold must be in (0, 1]")
	}
	if s.SeamSimulateMinutes <= 0 {
		return errors.New("segmentation.seam_simulate_minutes must be positive")
	}
	if s.SeamMaxRMSJumpDB <= 0 || s.SeamMaxStepRatio <= 0 {
		return errors.New("segmentation seam tolerances must be positive")
	}
	if s.FrameSize < 256 || s.FrameSize&(s.FrameSize-1) != 0 {
		return errors.New("segmentation.frame_size must be a power of two >= 256")
	}
	if s.HopSize <= 0 || s.HopSize > s.FrameSize {
		return errors.New("segmentation.hop_size must be in (0, frame_size]")
	}
	return nil
}

func (c *Config) validateSeparation() error {
	switch c.Separation.Backend {
	case SeparationDemucs, SeparationCenter:
	default:
		return fmt.Errorf("separation.backend must be demucs or center (got %q)", c.Separation.Backend)
	}
	return nil
}

func (c *Config) validateAlignment() error {
	a := c.Alignment
	switch a.Backend {
	case AlignmentWhisperX, AlignmentTranscript:
	default:
		return fmt.Errorf("alignment.backend must be whisperx or transcript (got %q)", a.Backend)
	}
	if a.SyncToleranceMs <= 0 {
		return errors.New("alignment.sync_tolerance_ms must be positive")
	}
	if a.StretchHop < 0 {
		return errors.New("alignment.stretch_hop must be >= 0")
	}
	if a.TempoMin <= 0 || a.TempoMin > 1 || a.TempoMax < 1 {
		return errors.New("alignment.tempo_min/tempo_max must bracket 1.0")
	}
	if a.PitchMin > 0 || a.PitchMax < 0 {
		return errors.New("alignment.pitch_min/pitch_max must bracket 0")
	}
	if a.LoopTargetMinutes <= 0 {
		return errors.New("alignment.loop_target_minutes must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	w := c.Workflow
	if err := ensurePositiveMap(map[string]int{
		"workflow.queue_poll_interval": w.QueuePollInterval,
		"workflow.heartbeat_interval":  w.HeartbeatInterval,
		"workflow.heartbeat_timeout":   w.HeartbeatTimeout,
		"workflow.reconcile_interval":  w.ReconcileInterval,
		"workflow.max_attempts":        w.MaxAttempts,
		"workflow.retry_base_seconds":  w.RetryBaseSeconds,
		"workflow.retry_max_seconds":   w.RetryMaxSeconds,
		"workflow.stage_backlog":       w.StageBacklog,
		"workflow.ingest_backlog":      w.IngestBacklog,
		"workflow.filter_workers":      w.FilterWorkers,
		"workflow.segment_workers":     w.SegmentWorkers,
		"workflow.separate_workers":    w.SeparateWorkers,
		"workflow.align_workers":       w.AlignWorkers,
		"workflow.rights_workers":      w.RightsWorkers,
		"workflow.publish_workers":     w.PublishWorkers,
		"rights.recheck_interval":      c.Rights.RecheckInterval,
	}); err != nil {
		return err
	}
	if w.HeartbeatTimeout <= w.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	if w.RetryMaxSeconds < w.RetryBaseSeconds {
		return errors.New("workflow.retry_max_seconds must be >= workflow.retry_base_seconds")
	}
	return nil
}

func (c *Config) validateStorage() error {
	s := c.Storage
	switch s.Backend {
	case StorageLocal:
		if strings.TrimSpace(s.LocalDir) == "" {
			return errors.New("storage.local_dir must be set when storage.backend is local")
		}
	case StorageGCS:
		if strings.TrimSpace(s.Bucket) == "" {
			return errors.New("storage.bucket must be set when storage.backend is gcs")
		}
	case StorageS3:
		if strings.TrimSpace(s.Bucket) == "" || strings.TrimSpace(s.S3Endpoint) == "" {
			return errors.New("storage.bucket and storage.s3_endpoint must be set when storage.backend is s3")
		}
		if s.S3AccessKey == "" || s.S3SecretKey == "" {
			return errors.New("storage.s3_access_key and storage.s3_secret_key must be set when storage.backend is s3")
		}
	default:
		return fmt.Errorf("storage.backend must be local, gcs or s3 (got %q)", s.Backend)
	}
	return nil
}

func (c *Config) validateLock() error {
	switch c.Lock.Backend {
	case LockLocal:
	case LockRedis:
		if strings.TrimSpace(c.Lock.RedisAddr) == "" {
			return errors.New("lock.redis_addr must be set when lock.backend is redis")
		}
		if c.Lock.TTLSeconds <= 0 {
			return errors.New("lock.ttl_seconds must be positive")
		}
	default:
		return fmt.Errorf("lock.backend must be local or redis (got %q)", c.Lock.Backend)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error (got %q)", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	var bad []string
	for key, value := range values {
		if value <= 0 {
			bad = append(bad, key)
		}
	}
	if len(bad) == 0 {
		return nil
	}
	sort.Strings(bad)
	return fmt.Errorf("%s must be positive", strings.Join(bad, ", "))
}
