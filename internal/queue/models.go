package queue

import (
	"encoding/json"
	"strings"
	"time"
)

// Status represents the lifecycle of a Track.
type Status string

const (
	StatusFetched        Status = "fetched"
	StatusFiltering      Status = "filtering"
	StatusFiltered       Status = "filtered"
	StatusSegmenting     Status = "segmenting"
	StatusSegmented      Status = "segmented"
	StatusSeparating     Status = "separating"
	StatusSeparated      Status = "separated"
	StatusAligning       Status = "aligning"
	StatusAligned        Status = "aligned"
	StatusRightsChecking Status = "rights_checking"
	StatusRightsChecked  Status = "rights_checked"
	StatusPublishing     Status = "publishing"
	StatusPublished      Status = "published"
	StatusRejected       Status = "rejected"
	StatusFailed         Status = "failed"
)

// DaemonStopReason is the error message set when in-flight work is abandoned at shutdown.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusFetched,
	StatusFiltering,
	StatusFiltered,
	StatusSegmenting,
	StatusSegmented,
	StatusSeparating,
	StatusSeparated,
	StatusAligning,
	StatusAligned,
	StatusRightsChecking,
	StatusRightsChecked,
	StatusPublishing,
	StatusPublished,
	StatusRejected,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// processingStart maps each in-flight status to the status it was claimed from.
var processingStart = map[Status]Status{
	StatusFiltering:      StatusFetched,
	StatusSegmenting:     StatusFiltered,
	StatusSeparating:     StatusSegmented,
	StatusAligning:       StatusSeparated,
	StatusRightsChecking: StatusAligned,
	StatusPublishing:     StatusRightsChecked,
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalItems       int
	Error            string
}

// HealthSummary describes aggregated queue counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Waiting    int
	Processing int
	Review     int
	Failed     int
	Rejected   int
	Published  int
}

// Artifacts collects the staging paths and serialized stage results produced for a Track.
type Artifacts struct {
	RawAudio    string `json:"raw_audio,omitempty"`
	RawChecksum string `json:"raw_checksum,omitempty"`

	SegmentAudio string          `json:"segment_audio,omitempty"`
	Segment      json.RawMessage `json:"segment,omitempty"`

	VocalStem  string          `json:"vocal_stem,omitempty"`
	BedStem    string          `json:"bed_stem,omitempty"`
	Separation json.RawMessage `json:"separation,omitempty"`

	Transcript string          `json:"transcript,omitempty"`
	Alignment  json.RawMessage `json:"alignment,omitempty"`

	// Metadata maps storage keys (metadata/{id}_segment.json, ...) to staged files.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SetMetadata records a staged metadata file under its storage key.
func (a *Artifacts) SetMetadata(key, path string) {
	if a.Metadata == nil {
		a.Metadata = make(map[string]string)
	}
	a.Metadata[key] = path
}

// Item is a Track persisted in SQLite.
type Item struct {
	ID              int64
	SourceID        string
	PlaylistID      string
	Position        int
	Title           string
	Uploader        string
	License         string
	DurationSeconds float64
	VocalScore      *float64
	Status          Status
	RejectionReason string
	FailedStatus    Status
	ErrorMessage    string
	Attempts        int
	NotBefore       *time.Time
	NeedsReview     bool
	ReviewReason    string
	Artifacts       Artifacts
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
	LastHeartbeat   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewTrack carries the candidate fields recorded at ingestion.
type NewTrack struct {
	SourceID        string
	PlaylistID      string
	Position        int
	Title           string
	Uploader        string
	License         string
	DurationSeconds float64
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessingStatus reports whether a status reflects an in-flight operation.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStart[status]
	return ok
}

// StartStatus returns the status an in-flight status was claimed from.
func StartStatus(processing Status) (Status, bool) {
	start, ok := processingStart[processing]
	return start, ok
}

// IsProcessing returns true when the Track is claimed by a worker.
func (i Item) IsProcessing() bool {
	return IsProcessingStatus(i.Status)
}

// IsTerminal reports whether the Track will not advance without operator action.
func (i Item) IsTerminal() bool {
	switch i.Status {
	case StatusPublished, StatusRejected, StatusFailed:
		return true
	default:
		return false
	}
}

// Stage reports the pipeline stage the Track has reached: in-flight statuses
// report the stage they started from and failed Tracks the stage they failed in.
func (i Item) Stage() Status {
	if start, ok := processingStart[i.Status]; ok {
		return start
	}
	if i.Status == StatusFailed && i.FailedStatus != "" {
		if start, ok := processingStart[i.FailedStatus]; ok {
			return start
		}
		return i.FailedStatus
	}
	return i.Status
}

// Score returns the vocal score or zero when the Track has not been scored yet.
func (i Item) Score() float64 {
	if i.VocalScore == nil {
		return 0
	}
	return *i.VocalScore
}

// SetProgress updates all three progress fields atomically.
func (i *Item) SetProgress(stage, message string, percent float64) {
	i.ProgressStage = stage
	i.ProgressMessage = message
	i.ProgressPercent = percent
}

// SetProgressComplete sets progress to 100% with the given stage and message.
func (i *Item) SetProgressComplete(stage, message string) {
	i.SetProgress(stage, message, 100)
}

// StageKey returns the normalized stage identifier used in API/CLI presentation.
func (s Status) StageKey() string {
	if start, ok := processingStart[s]; ok {
		return string(start)
	}
	if _, ok := statusSet[s]; ok {
		return string(s)
	}
	return ""
}
