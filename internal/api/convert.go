package api

import (
	"maps"
	"slices"
	"strings"
	"time"

	"loopdeck/internal/catalog"
	"loopdeck/internal/deps"
	"loopdeck/internal/queue"
	"loopdeck/internal/rights"
	"loopdeck/internal/stage"
	"loopdeck/internal/workflow"
)

// FromQueueItem converts a queue record to its API representation.
func FromQueueItem(item *queue.Item) Track {
	if item == nil {
		return Track{}
	}

	dto := Track{
		ID:              item.ID,
		SourceID:        item.SourceID,
		PlaylistID:      item.PlaylistID,
		Position:        item.Position,
		Title:           item.Title,
		Uploader:        item.Uploader,
		License:         item.License,
		DurationSeconds: item.DurationSeconds,
		VocalScore:      item.VocalScore,
		Status:          string(item.Status),
		Stage:           string(item.Stage()),
		RejectionReason: item.RejectionReason,
		FailedStatus:    string(item.FailedStatus),
		ErrorMessage:    item.ErrorMessage,
		Attempts:        item.Attempts,
		NeedsReview:     item.NeedsReview,
		ReviewReason:    item.ReviewReason,
		Progress: TrackProgress{
			Stage:   item.ProgressStage,
			Percent: item.ProgressPercent,
			Message: item.ProgressMessage,
		},
		Segment:    item.Artifacts.Segment,
		Separation: item.Artifacts.Separation,
		Alignment:  item.Artifacts.Alignment,
		CreatedAt:  FormatTime(item.CreatedAt),
		UpdatedAt:  FormatTime(item.UpdatedAt),
	}
	if item.NotBefore != nil {
		dto.NotBefore = FormatTime(*item.NotBefore)
	}
	if dto.Progress.Stage == "" {
		dto.Progress.Stage = statusLabel(item.Status)
	}
	switch item.Status {
	case queue.StatusPublished:
		dto.Progress.Percent = 100
	case queue.StatusRejected:
		dto.Progress.Stage = "Rejected"
	}
	return dto
}

// FromQueueItems converts a slice of queue records into API DTOs.
func FromQueueItems(items []*queue.Item) []Track {
	if len(items) == 0 {
		return nil
	}
	out := make([]Track, 0, len(items))
	for _, item := range items {
		out = append(out, FromQueueItem(item))
	}
	return out
}

// FromStatusSummary converts a workflow status summary to API payload.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	wf := WorkflowStatus{
		Running:     summary.Running,
		QueueStats:  MergeQueueStats(summary.QueueStats),
		StageHealth: StageHealthSlice(summary.StageHealth),
		LastError:   summary.LastError,
	}
	for _, p := range summary.Pools {
		wf.Pools = append(wf.Pools, PoolStatus{
			Name:     p.Name,
			Workers:  p.Workers,
			Busy:     p.Busy,
			Waiting:  p.Waiting,
			Executed: p.Executed,
			Cached:   p.Cached,
			Failed:   p.Failed,
		})
	}
	if summary.LastItem != nil {
		last := FromQueueItem(summary.LastItem)
		wf.LastItem = &last
	}
	return wf
}

// FromDependencies converts dependency checks to API payload.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, len(statuses))
	for i, dep := range statuses {
		out[i] = DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	return out
}

// FromStageResult converts a cached stage result.
func FromStageResult(result *queue.StageResult) StageResult {
	if result == nil {
		return StageResult{}
	}
	return StageResult{
		SourceID:     result.SourceID,
		Stage:        string(result.Stage),
		Executions:   result.Executions,
		VocalScore:   result.VocalScore,
		NeedsReview:  result.NeedsReview,
		ReviewReason: result.ReviewReason,
		CompletedAt:  FormatTime(result.CompletedAt),
	}
}

// FromRights converts a rights record.
func FromRights(rec rights.Record) RightsRecord {
	return RightsRecord{
		SourceID:          rec.SourceID,
		Uploader:          rec.Uploader,
		License:           rec.License,
		AcquisitionMethod: rec.Provenance.AcquisitionMethod,
		AcquiredAt:        FormatTime(rec.Provenance.Timestamp),
		LicenseState:      string(rec.State),
		RejectionReason:   rec.RejectionReason,
		EvidenceURI:       rec.EvidenceURI,
		UpdatedAt:         FormatTime(rec.UpdatedAt),
	}
}

// FromHistory converts audit rows, oldest first.
func FromHistory(entries []rights.HistoryEntry) []RightsHistoryEntry {
	out := make([]RightsHistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, RightsHistoryEntry{
			ID:          e.ID,
			FromState:   string(e.FromState),
			ToState:     string(e.ToState),
			EvidenceURI: e.EvidenceURI,
			Reason:      e.Reason,
			Actor:       e.Actor,
			ChangedAt:   FormatTime(e.ChangedAt),
		})
	}
	return out
}

// FromEntry converts a catalog entry.
func FromEntry(e catalog.Entry) CatalogEntry {
	dto := CatalogEntry{
		SourceID:      e.SourceID,
		Title:         e.Title,
		Live:          e.Live(),
		LicenseState:  string(e.Rights.LicenseState),
		Objects:       slices.Clone(e.Objects),
		Segment:       e.Segment,
		PublishedAt:   FormatTime(e.PublishedAt),
		RetractReason: e.RetractReason,
	}
	if e.RetractedAt != nil {
		dto.RetractedAt = FormatTime(*e.RetractedAt)
	}
	return dto
}

// FromReconcile converts a reconcile report.
func FromReconcile(report catalog.ReconcileReport) ReconcileResponse {
	resp := ReconcileResponse{Checked: report.Checked, Retracted: report.Retracted}
	if resp.Retracted == nil {
		resp.Retracted = []string{}
	}
	if len(report.Failed) > 0 {
		resp.Failed = make(map[string]string, len(report.Failed))
		for id, err := range report.Failed {
			resp.Failed[id] = err.Error()
		}
	}
	return resp
}

// MergeQueueStats produces a string-keyed representation of queue stats.
func MergeQueueStats(stats map[queue.Status]int) map[string]int {
	out := make(map[string]int, len(stats))
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}

// StageHealthSlice converts a stage health map into a deterministic slice.
func StageHealthSlice(health map[string]stage.Health) []StageHealth {
	if len(health) == 0 {
		return nil
	}
	out := make([]StageHealth, 0, len(health))
	for _, name := range slices.Sorted(maps.Keys(health)) {
		h := health[name]
		out = append(out, StageHealth{Name: name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

// FormatTime converts a time to RFC3339 or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// ParseTime parses a timestamp produced by FormatTime.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(dateTimeFormat, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}

func statusLabel(status queue.Status) string {
	words := strings.Fields(strings.ReplaceAll(string(status), "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// FromQueueHealth merges queue counts and database diagnostics.
func FromQueueHealth(summary queue.HealthSummary, db queue.DatabaseHealth) QueueHealth {
	return QueueHealth{
		Total:          summary.Total,
		Waiting:        summary.Waiting,
		Processing:     summary.Processing,
		Review:         summary.Review,
		Failed:         summary.Failed,
		Rejected:       summary.Rejected,
		Published:      summary.Published,
		DBPath:         db.DBPath,
		SchemaVersion:  db.SchemaVersion,
		IntegrityCheck: db.IntegrityCheck,
		Error:          db.Error,
	}
}
