package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// ClaimNext atomically moves the next ready Track from start to processing and
// returns it. Tracks held for review or scheduled for later are skipped. It
// returns nil when nothing is ready.
func (s *Store) ClaimNext(ctx context.Context, start, processing Status) (*Item, error) {
	if expected, ok := processingStart[processing]; !ok || expected != start {
		return nil, fmt.Errorf("claim: %s is not the processing status for %s", processing, start)
	}
	ts := s.timestamp()
	var item *Item
	err := onBusy(ctx, func() error {
		var claimErr error
		item, claimErr = s.getItem(ctx,
			`UPDATE tracks
            SET status = ?, progress_stage = ?, progress_percent = 0, progress_message = NULL,
                last_heartbeat = ?, updated_at = ?
            WHERE id = (
                SELECT id FROM tracks
                WHERE status = ? AND needs_review = 0 AND (not_before IS NULL OR not_before <= ?)
                ORDER BY position, id
                LIMIT 1
            ) AND status = ?
            RETURNING `+itemColumns,
			processing,
			string(processing),
			ts,
			ts,
			start,
			ts,
			start,
		)
		return claimErr
	})
	if err != nil {
		return nil, fmt.Errorf("claim %s track: %w", start, err)
	}
	return item, nil
}

// Claim moves one specific Track from start to processing. It returns nil when
// the Track is not at start, is held for review or is scheduled for later.
func (s *Store) Claim(ctx context.Context, sourceID string, start, processing Status) (*Item, error) {
	if expected, ok := processingStart[processing]; !ok || expected != start {
		return nil, fmt.Errorf("claim: %s is not the processing status for %s", processing, start)
	}
	ts := s.timestamp()
	var item *Item
	err := onBusy(ctx, func() error {
		var claimErr error
		item, claimErr = s.getItem(ctx,
			`UPDATE tracks
            SET status = ?, progress_stage = ?, progress_percent = 0, progress_message = NULL,
                last_heartbeat = ?, updated_at = ?
            WHERE source_id = ? AND status = ? AND needs_review = 0 AND (not_before IS NULL OR not_before <= ?)
            RETURNING `+itemColumns,
			processing,
			string(processing),
			ts,
			ts,
			sourceID,
			start,
			ts,
		)
		return claimErr
	})
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", sourceID, err)
	}
	return item, nil
}

// CompleteStage persists item and caches its stage result in one transaction,
// provided the Track is still at expected. It reports false when the claim was
// lost (rejected, cancelled or reclaimed) and nothing was written.
func (s *Store) CompleteStage(ctx context.Context, item *Item, expected Status) (bool, error) {
	if item == nil {
		return false, errors.New("complete: nil track")
	}
	ts := s.timestamp()
	query, args, err := updateStatement(item, expected, ts)
	if err != nil {
		return false, err
	}
	payload, err := encodeStageResult(item)
	if err != nil {
		return false, err
	}
	var applied bool
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		applied = false
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO stage_results (source_id, stage, result_json, executions, completed_at)
            VALUES (?, ?, ?, 1, ?)
            ON CONFLICT(source_id, stage) DO UPDATE SET
                result_json = excluded.result_json,
                executions = stage_results.executions + 1,
                completed_at = excluded.completed_at`,
			item.SourceID, item.Status, payload, ts,
		); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("complete %s for %s: %w", item.Status, item.SourceID, err)
	}
	return applied, nil
}

// Reject moves a Track to rejected with reason regardless of its current
// stage. Already rejected Tracks are left untouched. It returns the status the
// Track held before the rejection, or "" when nothing changed.
func (s *Store) Reject(ctx context.Context, sourceID, reason, detail string) (Status, error) {
	return s.reject(ctx, sourceID, reason, detail, nil)
}

// RejectItem rejects item like Reject and keeps the vocal score and artifacts
// the rejecting stage recorded on it, so the evidence stays queryable.
func (s *Store) RejectItem(ctx context.Context, item *Item, reason, detail string) (Status, error) {
	if item == nil {
		return "", errors.New("reject: item is nil")
	}
	return s.reject(ctx, item.SourceID, reason, detail, item)
}

func (s *Store) reject(ctx context.Context, sourceID, reason, detail string, keep *Item) (Status, error) {
	var score, artifacts any
	if keep != nil {
		score = floatOrNull(keep.VocalScore)
		encoded, err := marshalArtifacts(keep.Artifacts)
		if err != nil {
			return "", fmt.Errorf("reject %s: %w", sourceID, err)
		}
		artifacts = encoded
	}

	var previous Status
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		previous = ""
		var current string
		if err := tx.GetContext(ctx, &current, `SELECT status FROM tracks WHERE source_id = ?`, sourceID); err != nil {
			return err
		}
		if Status(current) == StatusRejected {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE tracks
            SET status = ?, rejection_reason = ?, error_message = ?, needs_review = 0, review_reason = NULL,
                not_before = NULL, last_heartbeat = NULL, progress_stage = 'Rejected', progress_message = ?,
                vocal_score = COALESCE(?, vocal_score), artifacts_json = COALESCE(?, artifacts_json),
                updated_at = ?
            WHERE source_id = ? AND status = ?`,
			StatusRejected, reason, orNull(detail), reason, score, artifacts, s.timestamp(), sourceID, current,
		); err != nil {
			return err
		}
		previous = Status(current)
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("reject %s: track not found", sourceID)
	}
	if err != nil {
		return "", fmt.Errorf("reject %s: %w", sourceID, err)
	}
	return previous, nil
}

// FlagReview halts a Track for human review without changing its stage.
func (s *Store) FlagReview(ctx context.Context, sourceID, reason string) error {
	n, err := s.exec(ctx,
		`UPDATE tracks SET needs_review = 1, review_reason = ?, updated_at = ? WHERE source_id = ?`,
		reason, s.timestamp(), sourceID,
	)
	if err != nil {
		return fmt.Errorf("flag review %s: %w", sourceID, err)
	}
	if n == 0 {
		return fmt.Errorf("flag review %s: track not found", sourceID)
	}
	return nil
}

// ClearReview releases a Track held for review so its next stage can claim it.
// It reports false when the Track was not awaiting review.
func (s *Store) ClearReview(ctx context.Context, sourceID string) (bool, error) {
	n, err := s.exec(ctx,
		`UPDATE tracks SET needs_review = 0, review_reason = NULL, not_before = NULL, updated_at = ?
        WHERE source_id = ? AND needs_review = 1`,
		s.timestamp(), sourceID,
	)
	if err != nil {
		return false, fmt.Errorf("clear review %s: %w", sourceID, err)
	}
	return n > 0, nil
}

// Wake clears the NotBefore delay on a waiting Track so it is claimable immediately.
func (s *Store) Wake(ctx context.Context, sourceID string) error {
	_, err := s.exec(ctx,
		`UPDATE tracks SET not_before = NULL, updated_at = ? WHERE source_id = ? AND not_before IS NOT NULL`,
		s.timestamp(), sourceID,
	)
	return err
}

// Reingest resets a Track to fetched and drops its cached stage results. This
// is the only backward transition in the pipeline.
func (s *Store) Reingest(ctx context.Context, sourceID string) (bool, error) {
	var found bool
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE tracks
            SET status = ?, vocal_score = NULL, rejection_reason = NULL, failed_status = NULL,
                error_message = NULL, attempts = 0, not_before = NULL, needs_review = 0,
                review_reason = NULL, artifacts_json = NULL, progress_stage = 'Reingested',
                progress_percent = 0, progress_message = NULL, last_heartbeat = NULL, updated_at = ?
            WHERE source_id = ?`,
			StatusFetched, s.timestamp(), sourceID,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		found = n > 0
		if !found {
			return nil
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM stage_results WHERE source_id = ?`, sourceID)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("reingest %s: %w", sourceID, err)
	}
	return found, nil
}

// ResetStuckProcessing returns every in-flight Track to the start of its current
// stage. The daemon calls it at startup before any worker runs.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	return s.rollbackProcessing(ctx, "Reset from stuck processing", "")
}

// ReclaimStaleProcessing returns in-flight Tracks whose heartbeat expired to the
// start of their current stage.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.rollbackProcessing(ctx, "Reclaimed from stale processing", formatTime(cutoff))
}

func (s *Store) rollbackProcessing(ctx context.Context, note, cutoff string) (int64, error) {
	var (
		cases    strings.Builder
		args     []any
		inFlight []Status
	)
	cases.WriteString("CASE status")
	for _, processing := range allStatuses {
		if start, ok := processingStart[processing]; ok {
			cases.WriteString(" WHEN ? THEN ?")
			args = append(args, processing, start)
			inFlight = append(inFlight, processing)
		}
	}
	cases.WriteString(" ELSE status END")

	query := `UPDATE tracks SET status = ` + cases.String() + `,
            progress_stage = ?, progress_percent = 0, progress_message = NULL,
            last_heartbeat = NULL, updated_at = ?
        WHERE status IN (?)`
	args = append(args, note, s.timestamp(), inFlight)
	if cutoff != "" {
		query += ` AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`
		args = append(args, cutoff)
	}
	query, args, err := s.expandIn(query, args...)
	if err != nil {
		return 0, fmt.Errorf("rollback processing tracks: %w", err)
	}
	n, err := s.exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("rollback processing tracks: %w", err)
	}
	return n, nil
}

// UpdateHeartbeat refreshes the heartbeat of an in-flight Track.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	ts := s.timestamp()
	if _, err := s.exec(ctx, `UPDATE tracks SET last_heartbeat = ?, updated_at = ? WHERE id = ?`, ts, ts, id); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// RetryFailed returns failed Tracks to the stage they failed in with a fresh
// attempt budget. No source ids retries every failed Track.
func (s *Store) RetryFailed(ctx context.Context, sourceIDs ...string) (int64, error) {
	query := `UPDATE tracks
        SET status = COALESCE(failed_status, ?), failed_status = NULL, attempts = 0,
            not_before = NULL, error_message = NULL, progress_stage = 'Retry requested',
            progress_percent = 0, progress_message = NULL, updated_at = ?
        WHERE status = ?`
	args := []any{StatusFetched, s.timestamp(), StatusFailed}
	if len(sourceIDs) > 0 {
		var err error
		if query, args, err = s.expandIn(query+` AND source_id IN (?)`, append(args, sourceIDs)...); err != nil {
			return 0, fmt.Errorf("retry failed tracks: %w", err)
		}
	}
	n, err := s.exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry failed tracks: %w", err)
	}
	return n, nil
}

// Remove deletes a Track and its cached stage results.
func (s *Store) Remove(ctx context.Context, sourceID string) (bool, error) {
	var removed bool
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM tracks WHERE source_id = ?`, sourceID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		removed = n > 0
		_, err = tx.ExecContext(ctx, `DELETE FROM stage_results WHERE source_id = ?`, sourceID)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("remove %s: %w", sourceID, err)
	}
	return removed, nil
}
