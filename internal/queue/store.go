package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Ingest records a candidate as a fetched Track. Ingesting a source that is
// already queued returns the existing Track with created=false.
func (s *Store) Ingest(ctx context.Context, track NewTrack) (*Item, bool, error) {
	sourceID := strings.TrimSpace(track.SourceID)
	if sourceID == "" {
		return nil, false, errors.New("ingest: source id is required")
	}
	ts := s.timestamp()
	inserted, err := s.exec(ctx,
		`INSERT INTO tracks (source_id, playlist_id, position, title, uploader, license,
            duration_seconds, status, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(source_id) DO NOTHING`,
		sourceID, orNull(track.PlaylistID), track.Position, orNull(track.Title),
		orNull(track.Uploader), orNull(track.License), track.DurationSeconds,
		StatusFetched, ts, ts,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert track %s: %w", sourceID, err)
	}
	item, err := s.GetBySourceID(ctx, sourceID)
	if err != nil {
		return nil, false, err
	}
	return item, inserted > 0, nil
}

// getItem returns the single Track query selects, or nil when there is none.
func (s *Store) getItem(ctx context.Context, query string, args ...any) (*Item, error) {
	var row trackRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.item()
}

func (s *Store) selectItems(ctx context.Context, query string, args ...any) ([]*Item, error) {
	var rows []trackRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return itemsFromRows(rows)
}

// GetByID fetches a Track by row identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Item, error) {
	item, err := s.getItem(ctx, `SELECT `+itemColumns+` FROM tracks WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get track %d: %w", id, err)
	}
	return item, nil
}

// GetBySourceID fetches a Track by its upstream video identifier.
func (s *Store) GetBySourceID(ctx context.Context, sourceID string) (*Item, error) {
	item, err := s.getItem(ctx, `SELECT `+itemColumns+` FROM tracks WHERE source_id = ?`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("get track %s: %w", sourceID, err)
	}
	return item, nil
}

// Update persists every mutable field of item unconditionally.
func (s *Store) Update(ctx context.Context, item *Item) error {
	_, err := s.update(ctx, item, "")
	return err
}

// UpdateIfStatus persists item only while the stored status still equals
// expected. It reports false when another writer moved the Track first.
func (s *Store) UpdateIfStatus(ctx context.Context, item *Item, expected Status) (bool, error) {
	return s.update(ctx, item, expected)
}

// UpdateProgress persists only the progress fields, and only while the Track
// is still in the status the caller holds.
func (s *Store) UpdateProgress(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("update progress: nil track")
	}
	_, err := s.exec(ctx,
		`UPDATE tracks SET progress_stage = ?, progress_percent = ?, progress_message = ?, updated_at = ?
        WHERE id = ? AND status = ?`,
		orNull(item.ProgressStage), item.ProgressPercent, orNull(item.ProgressMessage),
		s.timestamp(), item.ID, item.Status,
	)
	return err
}

func (s *Store) update(ctx context.Context, item *Item, expected Status) (bool, error) {
	if item == nil {
		return false, errors.New("update: nil track")
	}
	query, args, err := updateStatement(item, expected, s.timestamp())
	if err != nil {
		return false, err
	}
	affected, err := s.exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update track %s: %w", item.SourceID, err)
	}
	return affected > 0, nil
}

// updateStatement writes every mutable column of item. A non-empty expected
// turns it into a compare-and-set on status.
func updateStatement(item *Item, expected Status, ts string) (string, []any, error) {
	artifacts, err := marshalArtifacts(item.Artifacts)
	if err != nil {
		return "", nil, err
	}
	query := `UPDATE tracks SET
            title = ?, uploader = ?, license = ?, duration_seconds = ?, vocal_score = ?,
            status = ?, rejection_reason = ?, failed_status = ?, error_message = ?, attempts = ?,
            not_before = ?, needs_review = ?, review_reason = ?, artifacts_json = ?,
            progress_stage = ?, progress_percent = ?, progress_message = ?, last_heartbeat = ?,
            updated_at = ?
        WHERE id = ?`
	args := []any{
		orNull(item.Title), orNull(item.Uploader), orNull(item.License),
		item.DurationSeconds, floatOrNull(item.VocalScore),
		item.Status, orNull(item.RejectionReason), orNull(item.FailedStatus),
		orNull(item.ErrorMessage), item.Attempts,
		timeOrNull(item.NotBefore), flag(item.NeedsReview), orNull(item.ReviewReason), artifacts,
		orNull(item.ProgressStage), item.ProgressPercent, orNull(item.ProgressMessage),
		timeOrNull(item.LastHeartbeat),
		ts, item.ID,
	}
	if expected != "" {
		query += ` AND status = ?`
		args = append(args, expected)
	}
	return query, args, nil
}

// List returns Tracks matching the provided statuses in playlist order. No
// statuses returns everything.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM tracks ORDER BY position, id`
	var args []any
	if len(statuses) > 0 {
		var err error
		query, args, err = s.expandIn(
			`SELECT `+itemColumns+` FROM tracks WHERE status IN (?) ORDER BY position, id`, statuses)
		if err != nil {
			return nil, fmt.Errorf("list tracks: %w", err)
		}
	}
	items, err := s.selectItems(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	return items, nil
}

// ListReview returns Tracks halted for human review.
func (s *Store) ListReview(ctx context.Context) ([]*Item, error) {
	items, err := s.selectItems(ctx,
		`SELECT `+itemColumns+` FROM tracks WHERE needs_review = 1 ORDER BY updated_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list review tracks: %w", err)
	}
	return items, nil
}

// CountReady counts Tracks at status that are eligible to be claimed now.
func (s *Store) CountReady(ctx context.Context, status Status) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(1) FROM tracks
        WHERE status = ? AND needs_review = 0 AND (not_before IS NULL OR not_before <= ?)`,
		status, s.timestamp(),
	)
	if err != nil {
		return 0, fmt.Errorf("count %s tracks: %w", status, err)
	}
	return count, nil
}

// Stats returns a count of Tracks grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	var rows []struct {
		Status Status `db:"status"`
		Count  int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT status, COUNT(1) AS n FROM tracks GROUP BY status`); err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	stats := make(map[Status]int, len(rows))
	for _, row := range rows {
		stats[row.Status] = row.Count
	}
	return stats, nil
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	var health HealthSummary
	for status, count := range stats {
		health.Total += count
		switch {
		case status == StatusPublished:
			health.Published += count
		case status == StatusRejected:
			health.Rejected += count
		case status == StatusFailed:
			health.Failed += count
		case IsProcessingStatus(status):
			health.Processing += count
		default:
			health.Waiting += count
		}
	}
	if err := s.db.GetContext(ctx, &health.Review, `SELECT COUNT(1) FROM tracks WHERE needs_review = 1`); err != nil {
		return HealthSummary{}, fmt.Errorf("count review tracks: %w", err)
	}
	return health, nil
}

// requiredColumns are the columns the claim and transition queries depend on.
var requiredColumns = []string{"id", "source_id", "status", "vocal_score", "rejection_reason", "failed_status", "attempts", "not_before", "needs_review", "review_reason", "artifacts_json", "last_heartbeat", "created_at", "updated_at"}

// CheckHealth returns diagnostic information about the queue database file.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path, SchemaVersion: fmt.Sprint(schemaVersion)}
	if s.path == "" {
		return health, errors.New("queue database path is unknown")
	}
	info, err := os.Stat(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return health, nil
	case err != nil:
		return health, fmt.Errorf("stat queue database: %w", err)
	case info.IsDir():
		return health, fmt.Errorf("queue database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	fail := func(step string, err error) (DatabaseHealth, error) {
		health.Error = err.Error()
		return health, fmt.Errorf("%s: %w", step, err)
	}

	if err := s.db.PingContext(ctx); err != nil {
		return fail("ping queue database", err)
	}
	health.DatabaseReadable = true

	if err := s.db.SelectContext(ctx, &health.ColumnsPresent, `SELECT name FROM pragma_table_info('tracks')`); err != nil {
		return fail("read tracks columns", err)
	}
	health.TableExists = len(health.ColumnsPresent) > 0
	present := make(map[string]bool, len(health.ColumnsPresent))
	for _, name := range health.ColumnsPresent {
		present[name] = true
	}
	for _, col := range requiredColumns {
		if !present[col] {
			health.MissingColumns = append(health.MissingColumns, col)
		}
	}

	if health.TableExists {
		if err := s.db.GetContext(ctx, &health.TotalItems, `SELECT COUNT(1) FROM tracks`); err != nil {
			return fail("count tracks", err)
		}
	}
	var integrity string
	if err := s.db.GetContext(ctx, &integrity, `PRAGMA integrity_check`); err != nil {
		return fail("integrity check", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrity, "ok")
	return health, nil
}
