package alignment

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"loopdeck/internal/audio/pcm"
	"loopdeck/internal/config"
	"loopdeck/internal/logging"
	"loopdeck/internal/queue"
	"loopdeck/internal/segmentation"
	"loopdeck/internal/services"
	"loopdeck/internal/stage"
	"loopdeck/internal/staging"
)

const stageName = "alignment"

// Handler is the lyric alignment stage.
type Handler struct {
	cfg        *config.Config
	store      *queue.Store
	transcript TranscriptSource
	backend    Backend
	beats      BeatTracker
	logger     *slog.Logger
}

// NewHandler wires the alignment stage. A nil transcript source aligns
// without reference text.
func NewHandler(cfg *config.Config, store *queue.Store, transcript TranscriptSource, backend Backend, beats BeatTracker, logger *slog.Logger) *Handler {
	if transcript == nil {
		transcript = NoTranscript{}
	}
	return &Handler{
		cfg:        cfg,
		store:      store,
		transcript: transcript,
		backend:    backend,
		beats:      beats,
		logger:     logging.NewComponentLogger(logger, "alignment"),
	}
}

// Prepare primes progress fields.
func (h *Handler) Prepare(ctx context.Context, item *queue.Item) error {
	if h == nil || h.cfg == nil || h.store == nil || h.backend == nil || h.beats == nil {
		return services.Wrap(services.ErrConfiguration, stageName, "prepare", "alignment stage is not configured", nil)
	}
	item.SetProgress("Aligning", "Fetching transcript", 0)
	return h.store.UpdateProgress(ctx, item)
}

// Execute aligns the transcript to the vocal stem, anchors the words to the
// loop's beats, checks runtime sync across the tempo and pitch range and
// stages metadata/{id}_alignment.json.
func (h *Handler) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, h.logger)
	if err := stage.RequireFile(stageName, "segment audio", item.Artifacts.SegmentAudio); err != nil {
		return err
	}
	if err := stage.RequireFile(stageName, "vocal stem", item.Artifacts.VocalStem); err != nil {
		return err
	}
	var seg segmentation.Segment
	if err := stage.DecodeResult(stageName, "segment", item.Artifacts.Segment, &seg); err != nil {
		return err
	}
	loopSeconds := seg.LoopSeconds
	if loopSeconds <= 0 {
		loopSeconds = seg.Duration()
	}

	work := filepath.Join(h.cfg.WorkDir(item.SourceID), "alignment")
	if err := os.MkdirAll(work, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, stageName, "ensure work dir", work, err)
	}
	full, err := h.transcript.Fetch(ctx, item.SourceID, work)
	if err != nil {
		return err
	}
	transcript := full.Window(seg.StartSec, seg.StartSec+loopSeconds)
	transcriptPath := filepath.Join(work, "transcript.json")
	if _, err := stage.WriteJSON(transcriptPath, transcript); err != nil {
		return services.Wrap(services.ErrValidation, stageName, "write transcript", transcriptPath, err)
	}
	item.Artifacts.Transcript = transcriptPath

	h.progress(ctx, item, "Aligning words with "+h.backend.Name(), 20)
	words, err := h.backend.Align(ctx, Input{
		SourceID:   item.SourceID,
		AudioPath:  item.Artifacts.VocalStem,
		WorkDir:    work,
		Transcript: transcript,
	})
	if err != nil {
		return err
	}

	h.progress(ctx, item, "Tracking beats", 60)
	loop, err := pcm.ReadFile(item.Artifacts.SegmentAudio)
	if err != nil {
		return services.Wrap(services.ErrValidation, stageName, "read loop", item.Artifacts.SegmentAudio, err)
	}
	grid, err := h.beats.TrackBeats(ctx, loop)
	if err != nil {
		return err
	}

	m, err := Build(item.SourceID, loopSeconds, loop.SampleRate, words, grid)
	if err != nil {
		return services.Wrap(services.ErrValidation, stageName, "build map", "", err)
	}
	m.Backend = h.backend.Name()
	m.TranscriptSource = transcript.Source
	m.Language = transcript.Language

	h.progress(ctx, item, "Checking runtime sync", 80)
	params := ParamsFromConfig(h.cfg.Alignment, loop.SampleRate)
	warp := NewWarp(m, params)
	m.Warp = &params
	m.Sync = warp.SweepSync(h.cfg.Alignment.LoopTargetMinutes*60, h.cfg.Alignment.SyncToleranceMs)

	key := staging.AlignmentMetaKey(item.SourceID)
	path := staging.Path(h.cfg.OutputDir(), key)
	raw, err := stage.WriteJSON(path, m)
	if err != nil {
		return services.Wrap(services.ErrValidation, stageName, "write alignment map", path, err)
	}
	item.Artifacts.Alignment = raw
	item.Artifacts.SetMetadata(key, path)

	worst := 0.0
	for _, r := range m.Sync {
		worst = max(worst, r.MaxErrorMs)
	}
	attrs := []logging.Attr{
		logging.String("backend", m.Backend),
		logging.String("transcript", m.TranscriptSource),
		logging.Int("words", len(m.Words)),
		logging.Int("beats", len(m.TempoMap)),
		logging.Float64("max_sync_error_ms", worst),
	}
	switch {
	case worst > h.cfg.Alignment.SyncToleranceMs:
		logging.WarnWithContext(logger, "lyric sync exceeds tolerance at some tempo or pitch", "alignment_sync",
			append(attrs,
				logging.Float64("tolerance_ms", h.cfg.Alignment.SyncToleranceMs),
				logging.String(logging.FieldImpact, "lyrics may drift from the vocal at extreme settings"),
				logging.String(logging.FieldErrorHint, "check alignment.stretch_hop matches the player"),
			)...,
		)
	case len(m.Words) == 0:
		logger.Info("no lyrics in loop", logging.Args(append(attrs, logging.EventType("stage_complete"))...)...)
	default:
		logger.Info("lyrics aligned", logging.Args(append(attrs, logging.EventType("stage_complete"))...)...)
	}
	item.SetProgressComplete("Aligned", fmt.Sprintf("%d words, max sync error %.1f ms", len(m.Words), worst))
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
		return stage.NotReady(stageName, "alignment backend unavailable")
	case h.beats == nil:
		return stage.NotReady(stageName, "beat tracker unavailable")
	}
	return stage.Ready(stageName)
}

func (h *Handler) progress(ctx context.Context, item *queue.Item, message string, percent float64) {
	item.SetProgress("Aligning", message, percent)
	if err := h.store.UpdateProgress(ctx, item); err != nil {
		h.logger.Debug("progress update failed", logging.Error(err))
	}
}
