package catalog

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"loopdeck/internal/config"
	"loopdeck/internal/logging"
	"loopdeck/internal/queue"
	"loopdeck/internal/rights"
	"loopdeck/internal/services"
	"loopdeck/internal/stage"
	"loopdeck/internal/staging"
)

const (
	gateStageName    = "rights"
	publishStageName = "publishing"
)

// Gate is the rights-check stage. It reads the record and never writes a
// license state.
type Gate struct {
	cfg     *config.Config
	store   *queue.Store
	catalog *Catalog
	logger  *slog.Logger
}

// NewGate wires the rights-check stage.
func NewGate(cfg *config.Config, store *queue.Store, catalog *Catalog, logger *slog.Logger) *Gate {
	return &Gate{
		cfg:     cfg,
		store:   store,
		catalog: catalog,
		logger:  logging.NewComponentLogger(logger, "rights"),
	}
}

// Prepare primes progress fields.
func (g *Gate) Prepare(ctx context.Context, item *queue.Item) error {
	if g == nil || g.cfg == nil || g.store == nil || g.catalog == nil {
		return services.Wrap(services.ErrConfiguration, gateStageName, "prepare", "rights stage is not configured", nil)
	}
	item.SetProgress("Checking rights", "Reading license state", 0)
	return g.store.UpdateProgress(ctx, item)
}

// Execute passes cleared Tracks, rejects restricted or rejected ones and
// defers pending ones for the configured recheck interval. A Track with no
// record gets a pending one, so it waits for clearance like any other.
func (g *Gate) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, g.logger)
	rec, err := g.catalog.Store().Rights(ctx, item.SourceID)
	if errors.Is(err, services.ErrNotFound) {
		rec = rights.NewRecord(item.SourceID, item.Uploader, item.License, g.cfg.Rights.AcquisitionMethod, time.Now())
		if _, err := g.catalog.RegisterTrack(ctx, rec); err != nil {
			return services.Wrap(services.ErrTransient, gateStageName, "create missing record", "", err)
		}
		logging.WarnWithContext(logger, "rights record missing; created pending record", "rights_record_created",
			logging.String(logging.FieldImpact, "track waits for manual clearance"))
	} else if err != nil {
		return services.Wrap(services.ErrTransient, gateStageName, "load record", "", err)
	}

	if err := rights.Gate(rec, g.cfg.Rights.Recheck()); err != nil {
		var deferral *services.DeferError
		if errors.As(err, &deferral) {
			item.SetProgress("Checking rights", "Awaiting clearance", 0)
			logger.Debug("rights pending; deferring",
				logging.Duration("recheck", deferral.Delay),
				logging.EventType("rights_pending"))
		} else {
			logger.Info("track excluded by rights",
				logging.String("license_state", string(rec.State)),
				logging.EventType("track_rejected"))
		}
		return err
	}

	path := staging.Path(g.cfg.OutputDir(), staging.RightsMetaKey(item.SourceID))
	if _, err := stage.WriteJSON(path, rec.Document()); err != nil {
		return services.Wrap(services.ErrTransient, gateStageName, "stage rights document", path, err)
	}
	item.Artifacts.SetMetadata(staging.RightsMetaKey(item.SourceID), path)
	logger.Info("rights cleared", logging.String("evidence_uri", rec.EvidenceURI), logging.EventType("stage_complete"))
	item.SetProgressComplete("Rights checked", "License cleared")
	return nil
}

// HealthCheck reports readiness.
func (g *Gate) HealthCheck(context.Context) stage.Health {
	if g == nil || g.catalog == nil {
		return stage.NotReady(gateStageName, "catalog unavailable")
	}
	return stage.Ready(gateStageName)
}

// Publisher is the publish stage.
type Publisher struct {
	cfg     *config.Config
	store   *queue.Store
	catalog *Catalog
	logger  *slog.Logger
}

// NewPublisher wires the publish stage.
func NewPublisher(cfg *config.Config, store *queue.Store, catalog *Catalog, logger *slog.Logger) *Publisher {
	return &Publisher{
		cfg:     cfg,
		store:   store,
		catalog: catalog,
		logger:  logging.NewComponentLogger(logger, "publisher"),
	}
}

// Prepare primes progress fields.
func (p *Publisher) Prepare(ctx context.Context, item *queue.Item) error {
	if p == nil || p.cfg == nil || p.store == nil || p.catalog == nil {
		return services.Wrap(services.ErrConfiguration, publishStageName, "prepare", "publish stage is not configured", nil)
	}
	item.SetProgress("Publishing", "Uploading to "+p.catalog.Blobs().Location(), 0)
	return p.store.UpdateProgress(ctx, item)
}

// Execute verifies the staged files and hands the Track to Catalog.Publish.
func (p *Publisher) Execute(ctx context.Context, item *queue.Item) error {
	for what, path := range map[string]string{
		"raw audio":     item.Artifacts.RawAudio,
		"segment audio": item.Artifacts.SegmentAudio,
		"vocal stem":    item.Artifacts.VocalStem,
		"bed stem":      item.Artifacts.BedStem,
	} {
		if err := stage.RequireFile(publishStageName, what, path); err != nil {
			return err
		}
	}
	entry, err := p.catalog.Publish(ctx, item)
	if err != nil {
		return err
	}
	item.SetProgressComplete("Published", filepath.ToSlash(p.catalog.Blobs().Location()))
	logging.WithContext(ctx, p.logger).Debug("catalog entry written", logging.Int("objects", len(entry.Objects)))
	return nil
}

// HealthCheck reports readiness, including the blob store location.
func (p *Publisher) HealthCheck(context.Context) stage.Health {
	if p == nil || p.catalog == nil || p.catalog.Blobs() == nil {
		return stage.NotReady(publishStageName, "catalog storage unavailable")
	}
	return stage.Ready(publishStageName)
}
