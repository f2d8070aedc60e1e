package segmentation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"loopdeck/internal/audio/pcm"
	"loopdeck/internal/config"
	"loopdeck/internal/logging"
	"loopdeck/internal/queue"
	"loopdeck/internal/services"
	"loopdeck/internal/services/ffmpeg"
	"loopdeck/internal/stage"
	"loopdeck/internal/staging"
)

const stageName = "segmentation"

// AudioLoader decodes an audio file into samples.
type AudioLoader interface {
	Load(ctx context.Context, source, scratchDir string, sampleRate int) (*pcm.Buffer, error)
}

// Handler is the segmentation stage.
type Handler struct {
	cfg    *config.Config
	store  *queue.Store
	loader AudioLoader
	engine *Engine
	logger *slog.Logger
}

// NewHandler wires the segmentation stage.
func NewHandler(cfg *config.Config, store *queue.Store, loader AudioLoader, logger *slog.Logger) *Handler {
	h := &Handler{
		cfg:    cfg,
		store:  store,
		loader: loader,
		logger: logging.NewComponentLogger(logger, "segmentation"),
	}
	if cfg != nil {
		h.engine = NewEngine(cfg.Segmentation)
	}
	return h
}

// Prepare primes progress fields.
func (h *Handler) Prepare(ctx context.Context, item *queue.Item) error {
	if h == nil || h.cfg == nil || h.store == nil {
		return services.Wrap(services.ErrConfiguration, stageName, "prepare", "segmentation stage is not configured", nil)
	}
	item.SetProgress("Segmenting", "Analyzing audio", 0)
	return h.store.UpdateProgress(ctx, item)
}

// Execute renders the loop, stages segments/{id}.wav and its metadata, and
// flags the track for review when a loop quality check fails.
func (h *Handler) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, h.logger)

	if err := stage.RequireFile(stageName, "raw audio", item.Artifacts.RawAudio); err != nil {
		return err
	}
	scratch := h.cfg.WorkDir(item.SourceID)
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, stageName, "ensure work dir", scratch, err)
	}
	buf, err := h.loader.Load(ctx, item.Artifacts.RawAudio, scratch, ffmpeg.AnalysisSampleRate)
	if err != nil {
		return err
	}

	h.progress(ctx, item, "Ranking loop windows", 20)
	result, err := h.engine.Run(buf, item.Score())
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	seg := result.Segment
	seg.SourceID = item.SourceID

	h.progress(ctx, item, "Writing loop", 80)
	out := h.cfg.OutputDir()
	audioPath := staging.Path(out, staging.SegmentKey(item.SourceID))
	if err := os.MkdirAll(filepath.Dir(audioPath), 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, stageName, "ensure output dir", filepath.Dir(audioPath), err)
	}
	if err := pcm.WriteFile(audioPath, result.Loop, pcm.PCM16); err != nil {
		return services.Wrap(services.ErrValidation, stageName, "write loop", audioPath, err)
	}
	metaKey := staging.SegmentMetaKey(item.SourceID)
	metaPath := staging.Path(out, metaKey)
	raw, err := stage.WriteJSON(metaPath, seg)
	if err != nil {
		return services.Wrap(services.ErrValidation, stageName, "write metadata", metaPath, err)
	}

	item.Artifacts.SegmentAudio = audioPath
	item.Artifacts.Segment = raw
	item.Artifacts.SetMetadata(metaKey, metaPath)

	attrs := []logging.Attr{
		logging.Float64("start", seg.StartSec),
		logging.Float64("end", seg.EndSec),
		logging.Float64("bpm", seg.BPM),
		logging.String("key", seg.Key),
		logging.Float64("loudness_lufs", seg.LoudnessLUFS),
		logging.Float64("true_peak_dbtp", seg.TruePeakDBTP),
		logging.Float64("seam_max_rms_jump_db", seg.Seam.MaxRMSJumpDB),
		logging.Float64("seam_max_step_ratio", seg.Seam.MaxStepRatio),
	}
	if len(seg.Flags) > 0 {
		item.NeedsReview = true
		item.ReviewReason = strings.Join(seg.Flags, ",")
		logging.WarnWithContext(logger, "loop failed quality checks; holding for review", "segment_review",
			append(attrs,
				logging.String("flags", item.ReviewReason),
				logging.Alert("quality_review"),
				logging.String(logging.FieldImpact, "track is held until a reviewer decides"),
				logging.String(logging.FieldErrorHint, "listen to the loop, then approve or reject it with loopdeck review"),
			)...,
		)
	} else {
		logger.Info("loop rendered", logging.Args(append(attrs, logging.EventType("stage_complete"))...)...)
	}
	item.SetProgressComplete("Segmented", fmt.Sprintf("%.1fs loop at %.0f BPM in %s", seg.Duration(), seg.BPM, seg.Key))
	return nil
}

// HealthCheck reports readiness.
func (h *Handler) HealthCheck(context.Context) stage.Health {
	switch {
	case h == nil || h.cfg == nil || h.engine == nil:
		return stage.NotReady(stageName, "stage not configured")
	case h.store == nil:
		return stage.NotReady(stageName, "queue store unavailable")
	case h.loader == nil:
		return stage.NotReady(stageName, "audio loader unavailable")
	}
	return stage.Ready(stageName)
}

func (h *Handler) progress(ctx context.Context, item *queue.Item, message string, percent float64) {
	item.SetProgress("Segmenting", message, percent)
	if err := h.store.UpdateProgress(ctx, item); err != nil {
		h.logger.Debug("progress update failed", logging.Error(err))
	}
}
