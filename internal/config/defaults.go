package config

// Backend names accepted by the config.
const (
	SourceYouTube  = "youtube"
	SourceYtDlp    = "ytdlp"
	SourceManifest = "manifest"

	StorageLocal = "local"
	StorageGCS   = "gcs"
	StorageS3    = "s3"

	LockLocal = "local"
	LockRedis = "redis"

	SeparationDemucs = "demucs"
	SeparationCenter = "center"

	AlignmentWhisperX   = "whisperx"
	AlignmentTranscript = "transcript"

	TieBreakEarliest = "earliest"
	TieBreakLatest   = "latest"
)

const (
	defaultStagingDir        = "~/.local/share/loopdeck/staging"
	defaultStateDir          = "~/.local/share/loopdeck/state"
	defaultLogDir            = "~/.local/share/loopdeck/logs"
	defaultCatalogDir        = "~/.local/share/loopdeck/catalog"
	defaultPlaylistID        = "PL2vNBvHyEXihiuQ2htu6rLcOjw7lzsKcD"
	defaultPlaylistPageSize  = 50
	defaultRawCacheMaxGiB    = 20
	defaultAPIBind           = "127.0.0.1:7491"
	defaultJWTIssuer         = "loopdeck"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLogRetentionDays  = 30
	defaultLogMaxSizeMB      = 50
	defaultLogMaxBackups     = 5
	defaultAcquisitionMethod = "youtube_playlist"
	defaultWhisperXModel     = "large-v3-turbo"
	defaultDemucsModel       = "htdemucs"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,

			RawCacheMaxGiB: defaultRawCacheMaxGiB,
		},
		Playlist: Playlist{
			ID:       defaultPlaylistID,
			Source:   SourceYouTube,
			PageSize: defaultPlaylistPageSize,
		},
		YouTube: YouTube{
			RequestTimeout: 30,
		},
		Tools: Tools{
			YtDlpBinary:       "yt-dlp",
			FFmpegBinary:      "ffmpeg",
			DemucsBinary:      "demucs",
			WhisperXBinary:    "whisperx",
			DownloadTimeout:   600,
			SeparationTimeout: 1800,
			AlignmentTimeout:  1800,
		},
		Eligibility: Eligibility{
			MinDurationSeconds: 40,
			VocalThreshold:     0.2,
		},
		Segmentation: Segmentation{
			MinSeconds:          40,
			MaxSeconds:          60,
			TargetSeconds:       48,
			SearchHopSeconds:    0.5,
			CrossfadeMs:         50,
			TargetLUFS:          -14,
			LUFSTolerance:       1,
			TruePeakCeiling:     -1.5,
			FirstSectionBias:    0.25,
			BiasDecaySeconds:    8,
			RecurrenceThreshold: 0.75,
			TieBreak:            TieBreakEarliest,
			SeamSimulateMinutes: 5,
			SeamMaxRMSJumpDB:    6,
			SeamMaxStepRatio:    4,
			FrameSize:           2048,
			HopSize:             512,
		},
		Separation: Separation{
			Backend:      SeparationDemucs,
			Model:        defaultDemucsModel,
			SDRThreshold: 10,
			SIRThreshold: 8,
		},
		Alignment: Alignment{
			Backend:           AlignmentWhisperX,
			WhisperXModel:     defaultWhisperXModel,
			Language:          "en",
			CaptionLanguages:  []string{"en"},
			SyncToleranceMs:   100,
			StretchHop:        256,
			PitchLatencyMs:    12,
			TempoMin:          0.9,
			TempoMax:          1.1,
			PitchMin:          -2,
			PitchMax:          2,
			LoopTargetMinutes: 5,
		},
		Rights: Rights{
			AcquisitionMethod: defaultAcquisitionMethod,
			RecheckInterval:   300,
		},
		Workflow: Workflow{
			QueuePollInterval: 2,
			HeartbeatInterval: 15,
			HeartbeatTimeout:  120,
			ReconcileInterval: 60,
			MaxAttempts:       5,
			RetryBaseSeconds:  5,
			RetryMaxSeconds:   300,
			StageBacklog:      8,
			IngestBacklog:     16,
			FilterWorkers:     4,
			SegmentWorkers:    2,
			SeparateWorkers:   1,
			AlignWorkers:      1,
			RightsWorkers:     1,
			PublishWorkers:    2,
		},
		Storage: Storage{
			Backend:  StorageLocal,
			LocalDir: defaultCatalogDir,
		},
		Lock: Lock{
			Backend:    LockLocal,
			TTLSeconds: 30,
		},
		API: API{
			Bind:      defaultAPIBind,
			JWTIssuer: defaultJWTIssuer,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			Review:         true,
			Compliance:     true,
			Failures:       true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
			MaxSizeMB:     defaultLogMaxSizeMB,
			MaxBackups:    defaultLogMaxBackups,
		},
	}
}
