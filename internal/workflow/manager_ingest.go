package workflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"loopdeck/internal/logging"
	"loopdeck/internal/playlist"
	"loopdeck/internal/queue"
	"loopdeck/internal/rights"
	"loopdeck/internal/services"
)

// IngestOptions scopes one ingestion run.
type IngestOptions struct {
	// PlaylistID defaults to playlist.id from config.
	PlaylistID string
	// Limit stops after this many candidates; zero reads the whole playlist.
	Limit int
	// Cursor resumes a previous run.
	Cursor playlist.Cursor
	// Progress, when set, is called after every candidate.
	Progress func(candidate playlist.Candidate, created bool)
}

// IngestReport summarizes an ingestion run. Cursor is where a follow-up run
// resumes.
type IngestReport struct {
	PlaylistID string
	Seen       int
	Created    int
	Existing   int
	Cursor     playlist.Cursor
}

// Ingest walks the playlist and records every candidate as a fetched Track
// with a pending_clearance rights record. While the pools run, ingestion
// blocks as long as workflow.ingest_backlog Tracks wait for the filter pool. Transient
// source errors are retried with the workflow backoff.
func (m *Manager) Ingest(ctx context.Context, opts IngestOptions) (IngestReport, error) {
	playlistID := strings.TrimSpace(opts.PlaylistID)
	if playlistID == "" {
		playlistID = m.cfg.Playlist.ID
	}
	report := IngestReport{PlaylistID: playlistID, Cursor: opts.Cursor}
	if m.fetcher == nil {
		return report, services.Wrap(services.ErrConfiguration, "workflow", "ingest", "playlist fetcher is not configured", nil)
	}
	if playlistID == "" {
		return report, services.Wrap(services.ErrConfiguration, "workflow", "ingest", "playlist.id is required", nil)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = m.cfg.Playlist.Limit
	}

	logger := m.logger.With(logging.String("playlist_id", playlistID))
	it := m.fetcher.Resume(playlistID, opts.Cursor)
	for limit <= 0 || report.Seen < limit {
		if err := m.waitForIngestCapacity(ctx, logger); err != nil {
			return report, err
		}
		candidate, err := m.nextCandidate(ctx, logger, it)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			report.Cursor = it.Cursor()
			return report, err
		}
		created, err := m.ingestCandidate(ctx, playlistID, candidate)
		if err != nil {
			report.Cursor = it.Cursor()
			return report, err
		}
		report.Seen++
		if created {
			report.Created++
			m.poolForStatus(queue.StatusFetched).wake()
		} else {
			report.Existing++
		}
		report.Cursor = it.Cursor()
		if opts.Progress != nil {
			opts.Progress(candidate, created)
		}
	}

	logger.Info("ingest complete",
		logging.Int("seen", report.Seen),
		logging.Int("created", report.Created),
		logging.Int("existing", report.Existing),
		logging.EventType("ingest_completed"),
	)
	if report.Created > 0 {
		m.notifyIngest(ctx, playlistID, report.Created)
	}
	return report, nil
}

func (m *Manager) nextCandidate(ctx context.Context, logger *slog.Logger, it *playlist.Iterator) (playlist.Candidate, error) {
	for attempt := 1; ; attempt++ {
		candidate, err := it.Next(ctx)
		if err == nil || errors.Is(err, io.EOF) || !services.IsTransient(err) || attempt >= m.maxAttempts() {
			return candidate, err
		}
		delay := m.cfg.Workflow.RetryBackoff(attempt)
		logger.Warn("playlist page fetch failed; retrying",
			logging.Error(err),
			logging.Int("attempt", attempt),
			logging.Duration("retry_in", delay),
			logging.EventType("playlist_fetch_retry"),
		)
		select {
		case <-ctx.Done():
			return playlist.Candidate{}, ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (m *Manager) ingestCandidate(ctx context.Context, playlistID string, candidate playlist.Candidate) (bool, error) {
	_, created, err := m.store.Ingest(ctx, queue.NewTrack{
		SourceID:        candidate.SourceID,
		PlaylistID:      playlistID,
		Position:        candidate.Position,
		Title:           candidate.Title,
		Uploader:        candidate.Uploader,
		License:         candidate.License,
		DurationSeconds: candidate.DurationSeconds,
	})
	if err != nil {
		return false, err
	}
	if m.catalog != nil {
		// Registration is idempotent, so a Track whose record was lost to a
		// crash between the two writes gets it on the next run.
		rec := rights.NewRecord(candidate.SourceID, candidate.Uploader, candidate.License, m.cfg.Rights.AcquisitionMethod, m.now())
		if _, err := m.catalog.RegisterTrack(ctx, rec); err != nil {
			return created, err
		}
	}
	return created, nil
}

func (m *Manager) waitForIngestCapacity(ctx context.Context, logger *slog.Logger) error {
	limit := m.cfg.Workflow.IngestBacklog
	if limit <= 0 || !m.isRunning() {
		return nil
	}
	logged := false
	for {
		ready, err := m.store.CountReady(ctx, queue.StatusFetched)
		if err != nil {
			return err
		}
		if ready < limit {
			return nil
		}
		if !logged {
			logger.Debug("ingest backlog full; waiting for the filter pool", logging.Int("backlog", ready))
			logged = true
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.ingestKick:
		case <-time.After(m.pollInterval):
		}
	}
}
