package separation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"loopdeck/internal/audio/pcm"
	"loopdeck/internal/config"
	"loopdeck/internal/logging"
	"loopdeck/internal/queue"
	"loopdeck/internal/services"
	"loopdeck/internal/stage"
	"loopdeck/internal/staging"
)

const stageName = "separation"

// Handler is the separation and QA stage.
type Handler struct {
	cfg     *config.Config
	store   *queue.Store
	backend Backend
	logger  *slog.Logger
}

// NewHandler wires the separation stage.
func NewHandler(cfg *config.Config, store *queue.Store, backend Backend, logger *slog.Logger) *Handler {
	return &Handler{
		cfg:     cfg,
		store:   store,
		backend: backend,
		logger:  logging.NewComponentLogger(logger, "separation"),
	}
}

// Prepare primes progress fields.
func (h *Handler) Prepare(ctx context.Context, item *queue.Item) error {
	if h == nil || h.cfg == nil || h.store == nil || h.backend == nil {
		return services.Wrap(services.ErrConfiguration, stageName, "prepare", "separation stage is not configured", nil)
	}
	item.SetProgress("Separating", "Splitting stems with "+h.backend.Name(), 0)
	return h.store.UpdateProgress(ctx, item)
}

// Execute separates the loop, scores the stems and stages them with the QA
// report. Stems under threshold hold the track for review.
func (h *Handler) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, h.logger)
	if err := stage.RequireFile(stageName, "segment audio", item.Artifacts.SegmentAudio); err != nil {
		return err
	}

	work := filepath.Join(h.cfg.WorkDir(item.SourceID), "separation")
	if err := os.MkdirAll(work, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, stageName, "ensure work dir", work, err)
	}
	stems, err := h.backend.Separate(ctx, Input{
		SourceID:  item.SourceID,
		AudioPath: item.Artifacts.SegmentAudio,
		WorkDir:   work,
	})
	if err != nil {
		return err
	}

	h.progress(ctx, item, "Scoring stems", 70)
	mix, err := pcm.ReadFile(item.Artifacts.SegmentAudio)
	if err != nil {
		return services.Wrap(services.ErrValidation, stageName, "read mix", item.Artifacts.SegmentAudio, err)
	}
	vocals, err := pcm.ReadFile(stems.VocalsPath)
	if err != nil {
		return services.Wrap(services.ErrTransientSeparation, stageName, "read vocals", stems.VocalsPath, err)
	}
	bed, err := pcm.ReadFile(stems.BedPath)
	if err != nil {
		return services.Wrap(services.ErrTransientSeparation, stageName, "read bed", stems.BedPath, err)
	}
	metrics := Measure(mix, vocals, bed)

	sep := h.cfg.Separation
	result := Result{
		Backend:      h.backend.Name(),
		VocalRef:     staging.VocalsKey(item.SourceID),
		BedRef:       staging.BedKey(item.SourceID),
		SDR:          round2(metrics.SDR),
		SIR:          round2(metrics.SIR),
		SDRThreshold: sep.SDRThreshold,
		SIRThreshold: sep.SIRThreshold,
		QAPass:       metrics.Pass(sep.SDRThreshold, sep.SIRThreshold),
	}

	out := h.cfg.OutputDir()
	vocalPath := staging.Path(out, result.VocalRef)
	bedPath := staging.Path(out, result.BedRef)
	if err := os.MkdirAll(filepath.Dir(vocalPath), 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, stageName, "ensure output dir", filepath.Dir(vocalPath), err)
	}
	if err := pcm.WriteFile(vocalPath, vocals, pcm.PCM16); err != nil {
		return services.Wrap(services.ErrTransientSeparation, stageName, "stage vocals", vocalPath, err)
	}
	if err := pcm.WriteFile(bedPath, bed, pcm.PCM16); err != nil {
		return services.Wrap(services.ErrTransientSeparation, stageName, "stage bed", bedPath, err)
	}

	qaKey := staging.QAMetaKey(item.SourceID)
	qaPath := staging.Path(out, qaKey)
	if _, err := stage.WriteJSON(qaPath, QAReport{
		SourceID:   item.SourceID,
		Separation: result,
		QA:         TargetsFromConfig(h.cfg.Alignment),
	}); err != nil {
		return services.Wrap(services.ErrValidation, stageName, "write qa report", qaPath, err)
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return services.Wrap(services.ErrValidation, stageName, "encode result", "", err)
	}

	item.Artifacts.VocalStem = vocalPath
	item.Artifacts.BedStem = bedPath
	item.Artifacts.Separation = raw
	item.Artifacts.SetMetadata(qaKey, qaPath)

	attrs := []logging.Attr{
		logging.String("backend", result.Backend),
		logging.Float64("sdr", result.SDR),
		logging.Float64("sir", result.SIR),
		logging.Bool("qa_pass", result.QAPass),
	}
	if !result.QAPass {
		item.NeedsReview = true
		item.ReviewReason = services.FlagSeparationBelowThreshold
		logging.WarnWithContext(logger, "separation below quality threshold; holding for review", "separation_review",
			append(attrs,
				logging.Float64("sdr_threshold", sep.SDRThreshold),
				logging.Float64("sir_threshold", sep.SIRThreshold),
				logging.Alert("quality_review"),
				logging.String(logging.FieldErrorHint, "listen to the stems, then approve or reject with loopdeck review"),
				logging.String(logging.FieldImpact, "track is held until a reviewer decides"),
			)...,
		)
	} else {
		logger.Info("stems separated", logging.Args(append(attrs, logging.EventType("stage_complete"))...)...)
	}
	item.SetProgressComplete("Separated", fmt.Sprintf("SDR %.1f dB, SIR %.1f dB", result.SDR, result.SIR))
	return nil
}

// HealthCheck reports readiness.
func (h *Handler) HealthCheck(context.Context) stage.Health {
	switch {
	case h == nil || h.cfg == nil:
		return stage.NotReady(stageName, "stage not configured")
	case h.store == nil:
		return stage.NotReady(stageName, "queue store unavailable")
	case h.backend == nil:
		return stage.NotReady(stageName, "separation backend unavailable")
	}
	return stage.Ready(stageName)
}

func (h *Handler) progress(ctx context.Context, item *queue.Item, message string, percent float64) {
	item.SetProgress("Separating", message, percent)
	if err := h.store.UpdateProgress(ctx, item); err != nil {
		h.logger.Debug("progress update failed", logging.Error(err))
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
