package eligibility

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"loopdeck/internal/audio/pcm"
	"loopdeck/internal/config"
	"loopdeck/internal/logging"
	"loopdeck/internal/queue"
	"loopdeck/internal/rawcache"
	"loopdeck/internal/services"
	"loopdeck/internal/services/ffmpeg"
	"loopdeck/internal/stage"
)

const stageName = "eligibility"

// AudioFetcher returns verified raw audio for a source id.
type AudioFetcher interface {
	Fetch(ctx context.Context, sourceID, expectedChecksum string) (rawcache.Entry, error)
}

// AudioLoader decodes an audio file into samples.
type AudioLoader interface {
	Load(ctx context.Context, source, scratchDir string, sampleRate int) (*pcm.Buffer, error)
}

// Handler is the filter stage.
type Handler struct {
	cfg     *config.Config
	store   *queue.Store
	fetcher AudioFetcher
	loader  AudioLoader
	logger  *slog.Logger
}

// NewHandler wires the filter stage.
func NewHandler(cfg *config.Config, store *queue.Store, fetcher AudioFetcher, loader AudioLoader, logger *slog.Logger) *Handler {
	return &Handler{
		cfg:     cfg,
		store:   store,
		fetcher: fetcher,
		loader:  loader,
		logger:  logging.NewComponentLogger(logger, "eligibility"),
	}
}

// Prepare primes progress fields.
func (h *Handler) Prepare(ctx context.Context, item *queue.Item) error {
	if h == nil || h.cfg == nil || h.store == nil {
		return services.Wrap(services.ErrConfiguration, stageName, "prepare", "filter stage is not configured", nil)
	}
	item.SetProgress("Filtering", "Checking duration", 0)
	return h.store.UpdateProgress(ctx, item)
}

// Execute runs the duration gate, fetches and scores the audio, and rejects
// tracks below the vocal threshold.
func (h *Handler) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, h.logger)

	if err := checkSeconds(item.DurationSeconds, h.cfg.Eligibility.MinDurationSeconds); err != nil {
		logger.Info("track rejected by duration gate",
			logging.Float64("duration_seconds", item.DurationSeconds),
			logging.String(logging.FieldEventType, "track_rejected"),
		)
		return err
	}

	h.progress(ctx, item, "Fetching audio", 10)
	entry, err := h.fetcher.Fetch(ctx, item.SourceID, item.Artifacts.RawChecksum)
	if err != nil {
		return err
	}
	item.Artifacts.RawAudio = entry.Path
	item.Artifacts.RawChecksum = entry.Checksum

	h.progress(ctx, item, "Scoring vocal presence", 50)
	scratch := h.cfg.WorkDir(item.SourceID)
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, stageName, "ensure work dir", scratch, err)
	}
	buf, err := h.loader.Load(ctx, entry.Path, scratch, ffmpeg.AnalysisSampleRate)
	if err != nil {
		return err
	}
	score := ScoreVocalPresence(buf)
	item.VocalScore = &score

	threshold := h.cfg.Eligibility.VocalThreshold
	if score < threshold {
		logger.Info("track rejected by vocal presence gate",
			logging.Float64("vocal_score", score),
			logging.Float64("threshold", threshold),
			logging.String(logging.FieldEventType, "track_rejected"),
		)
		return services.Reject(services.ReasonLowVocalPresence,
			fmt.Sprintf("vocal score %.3f below threshold %.3f", score, threshold))
	}

	logger.Info("track passed eligibility",
		logging.Float64("vocal_score", score),
		logging.Bool("raw_cache_hit", entry.Reused),
		logging.String(logging.FieldEventType, "stage_complete"),
	)
	item.SetProgressComplete("Filtered", fmt.Sprintf("Vocal score %.2f", score))
	return nil
}

// HealthCheck reports readiness.
func (h *Handler) HealthCheck(context.Context) stage.Health {
	switch {
	case h == nil || h.cfg == nil:
		return stage.NotReady(stageName, "stage not configured")
	case h.store == nil:
		return stage.NotReady(stageName, "queue store unavailable")
	case h.fetcher == nil || h.loader == nil:
		return stage.NotReady(stageName, "audio source unavailable")
	}
	return stage.Ready(stageName)
}

func (h *Handler) progress(ctx context.Context, item *queue.Item, message string, percent float64) {
	item.SetProgress("Filtering", message, percent)
	if err := h.store.UpdateProgress(ctx, item); err != nil {
		h.logger.Debug("progress update failed", logging.Error(err))
	}
}
