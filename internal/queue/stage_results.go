package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// StageResult is the cached outcome of a completed (source_id, stage) task.
type StageResult struct {
	SourceID     string
	Stage        Status
	VocalScore   *float64
	NeedsReview  bool
	ReviewReason string
	Artifacts    Artifacts
	Executions   int
	CompletedAt  time.Time
}

type stageResultPayload struct {
	VocalScore   *float64  `json:"vocal_score,omitempty"`
	NeedsReview  bool      `json:"needs_review,omitempty"`
	ReviewReason string    `json:"review_reason,omitempty"`
	Artifacts    Artifacts `json:"artifacts"`
}

func encodeStageResult(item *Item) (string, error) {
	data, err := json.Marshal(stageResultPayload{
		VocalScore:   item.VocalScore,
		NeedsReview:  item.NeedsReview,
		ReviewReason: item.ReviewReason,
		Artifacts:    item.Artifacts,
	})
	if err != nil {
		return "", fmt.Errorf("encode stage result: %w", err)
	}
	return string(data), nil
}

// StageResult returns the cached result for (sourceID, stage), or nil when the
// stage has not completed since the last reingest.
func (s *Store) StageResult(ctx context.Context, sourceID string, stage Status) (*StageResult, error) {
	var row struct {
		Payload     string         `db:"result_json"`
		Executions  int            `db:"executions"`
		CompletedAt sql.NullString `db:"completed_at"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT result_json, executions, completed_at FROM stage_results WHERE source_id = ? AND stage = ?`,
		sourceID, stage,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get stage result %s/%s: %w", sourceID, stage, err)
	}
	var payload stageResultPayload
	if err := json.Unmarshal([]byte(row.Payload), &payload); err != nil {
		return nil, fmt.Errorf("decode stage result %s/%s: %w", sourceID, stage, err)
	}
	result := &StageResult{
		SourceID:     sourceID,
		Stage:        stage,
		VocalScore:   payload.VocalScore,
		NeedsReview:  payload.NeedsReview,
		ReviewReason: payload.ReviewReason,
		Artifacts:    payload.Artifacts,
		Executions:   row.Executions,
	}
	if t := optionalTime(row.CompletedAt); t != nil {
		result.CompletedAt = *t
	}
	return result, nil
}

// Apply copies the cached result onto item, leaving its status untouched.
func (r *StageResult) Apply(item *Item) {
	if r == nil || item == nil {
		return
	}
	if r.VocalScore != nil {
		score := *r.VocalScore
		item.VocalScore = &score
	}
	item.NeedsReview = r.NeedsReview
	item.ReviewReason = r.ReviewReason
	item.Artifacts = r.Artifacts
}
