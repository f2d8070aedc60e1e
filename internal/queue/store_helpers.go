package queue

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const itemColumns = "id, source_id, playlist_id, position, title, uploader, license, duration_seconds, vocal_score, status, rejection_reason, failed_status, error_message, attempts, not_before, needs_review, review_reason, artifacts_json, progress_stage, progress_percent, progress_message, last_heartbeat, created_at, updated_at"

// timeLayout is fixed width so stored timestamps compare correctly as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// trackRow is one row of the tracks table as sqlx scans it.
type trackRow struct {
	ID              int64           `db:"id"`
	SourceID        string          `db:"source_id"`
	PlaylistID      sql.NullString  `db:"playlist_id"`
	Position        sql.NullInt64   `db:"position"`
	Title           sql.NullString  `db:"title"`
	Uploader        sql.NullString  `db:"uploader"`
	License         sql.NullString  `db:"license"`
	DurationSeconds sql.NullFloat64 `db:"duration_seconds"`
	VocalScore      sql.NullFloat64 `db:"vocal_score"`
	Status          string          `db:"status"`
	RejectionReason sql.NullString  `db:"rejection_reason"`
	FailedStatus    sql.NullString  `db:"failed_status"`
	ErrorMessage    sql.NullString  `db:"error_message"`
	Attempts        sql.NullInt64   `db:"attempts"`
	NotBefore       sql.NullString  `db:"not_before"`
	NeedsReview     sql.NullInt64   `db:"needs_review"`
	ReviewReason    sql.NullString  `db:"review_reason"`
	Artifacts       sql.NullString  `db:"artifacts_json"`
	ProgressStage   sql.NullString  `db:"progress_stage"`
	ProgressPercent sql.NullFloat64 `db:"progress_percent"`
	ProgressMessage sql.NullString  `db:"progress_message"`
	LastHeartbeat   sql.NullString  `db:"last_heartbeat"`
	CreatedAt       sql.NullString  `db:"created_at"`
	UpdatedAt       sql.NullString  `db:"updated_at"`
}

func (r trackRow) item() (*Item, error) {
	item := &Item{
		ID:              r.ID,
		SourceID:        r.SourceID,
		PlaylistID:      r.PlaylistID.String,
		Position:        int(r.Position.Int64),
		Title:           r.Title.String,
		Uploader:        r.Uploader.String,
		License:         r.License.String,
		DurationSeconds: r.DurationSeconds.Float64,
		Status:          Status(r.Status),
		RejectionReason: r.RejectionReason.String,
		FailedStatus:    Status(r.FailedStatus.String),
		ErrorMessage:    r.ErrorMessage.String,
		Attempts:        int(r.Attempts.Int64),
		NeedsReview:     r.NeedsReview.Int64 != 0,
		ReviewReason:    r.ReviewReason.String,
		ProgressStage:   r.ProgressStage.String,
		ProgressPercent: r.ProgressPercent.Float64,
		ProgressMessage: r.ProgressMessage.String,
		NotBefore:       optionalTime(r.NotBefore),
		LastHeartbeat:   optionalTime(r.LastHeartbeat),
	}
	if r.VocalScore.Valid {
		score := r.VocalScore.Float64
		item.VocalScore = &score
	}
	if raw := strings.TrimSpace(r.Artifacts.String); raw != "" {
		if err := json.Unmarshal([]byte(raw), &item.Artifacts); err != nil {
			return nil, fmt.Errorf("decode artifacts for %s: %w", r.SourceID, err)
		}
	}
	if t := optionalTime(r.CreatedAt); t != nil {
		item.CreatedAt = *t
	}
	if t := optionalTime(r.UpdatedAt); t != nil {
		item.UpdatedAt = *t
	}
	return item, nil
}

func itemsFromRows(rows []trackRow) ([]*Item, error) {
	items := make([]*Item, 0, len(rows))
	for _, row := range rows {
		item, err := row.item()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func marshalArtifacts(a Artifacts) (any, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode artifacts: %w", err)
	}
	if string(data) == "{}" {
		return nil, nil
	}
	return string(data), nil
}

// orNull maps a Go zero value to SQL NULL for the nullable columns.
func orNull[T comparable](value T) any {
	var zero T
	if value == zero {
		return nil
	}
	return value
}

func timeOrNull(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func floatOrNull(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

func optionalTime(raw sql.NullString) *time.Time {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	t, err := time.Parse(timeLayout, raw.String)
	if err != nil {
		if t, err = time.Parse(time.RFC3339Nano, raw.String); err != nil {
			return nil
		}
	}
	return &t
}

func flag(value bool) int {
	if value {
		return 1
	}
	return 0
}
