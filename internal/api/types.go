package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Track describes a queued Track in a transport-friendly format.
type Track struct {
	ID              int64           `json:"id"`
	SourceID        string          `json:"sourceId"`
	PlaylistID      string          `json:"playlistId,omitempty"`
	Position        int             `json:"position"`
	Title           string          `json:"title"`
	Uploader        string          `json:"uploader,omitempty"`
	License         string          `json:"license,omitempty"`
	DurationSeconds float64         `json:"durationSeconds"`
	VocalScore      *float64        `json:"vocalScore,omitempty"`
	Status          string          `json:"status"`
	Stage           string          `json:"stage"`
	RejectionReason string          `json:"rejectionReason,omitempty"`
	FailedStatus    string          `json:"failedStatus,omitempty"`
	ErrorMessage    string          `json:"errorMessage,omitempty"`
	Attempts        int             `json:"attempts"`
	NotBefore       string          `json:"notBefore,omitempty"`
	NeedsReview     bool            `json:"needsReview"`
	ReviewReason    string          `json:"reviewReason,omitempty"`
	Progress        TrackProgress   `json:"progress"`
	Segment         json.RawMessage `json:"segment,omitempty"`
	Separation      json.RawMessage `json:"separation,omitempty"`
	Alignment       json.RawMessage `json:"alignment,omitempty"`
	CreatedAt       string          `json:"createdAt,omitempty"`
	UpdatedAt       string          `json:"updatedAt,omitempty"`
}

// TrackProgress captures stage progress information for a Track.
type TrackProgress struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running     bool           `json:"running"`
	QueueStats  map[string]int `json:"queueStats"`
	LastError   string         `json:"lastError,omitempty"`
	LastItem    *Track         `json:"lastItem,omitempty"`
	StageHealth []StageHealth  `json:"stageHealth"`
	Pools       []PoolStatus   `json:"pools"`
}

// PoolStatus mirrors one stage worker pool.
type PoolStatus struct {
	Name     string `json:"name"`
	Workers  int    `json:"workers"`
	Busy     int    `json:"busy"`
	Waiting  int    `json:"waiting"`
	Executed int64  `json:"executed"`
	Cached   int64  `json:"cached"`
	Failed   int64  `json:"failed"`
}

// StageHealth mirrors readiness reporting for workflow stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running       bool               `json:"running"`
	PID           int                `json:"pid"`
	QueueDBPath   string             `json:"queueDbPath"`
	CatalogDBPath string             `json:"catalogDbPath"`
	LockFilePath  string             `json:"lockFilePath"`
	Storage       string             `json:"storage"`
	Workflow      WorkflowStatus     `json:"workflow"`
	Dependencies  []DependencyStatus `json:"dependencies"`
}

// TrackListResponse wraps a collection of Tracks.
type TrackListResponse struct {
	Items []Track `json:"items"`
}

// TrackResponse wraps a single Track.
type TrackResponse struct {
	Item Track `json:"item"`
}

// StageResult is a cached stage outcome returned by submit.
type StageResult struct {
	SourceID     string   `json:"sourceId"`
	Stage        string   `json:"stage"`
	Executions   int      `json:"executions"`
	VocalScore   *float64 `json:"vocalScore,omitempty"`
	NeedsReview  bool     `json:"needsReview"`
	ReviewReason string   `json:"reviewReason,omitempty"`
	CompletedAt  string   `json:"completedAt,omitempty"`
}

// RightsRecord is the clearance state of one Track.
type RightsRecord struct {
	SourceID          string `json:"sourceId"`
	Uploader          string `json:"uploader"`
	License           string `json:"license"`
	AcquisitionMethod string `json:"acquisitionMethod"`
	AcquiredAt        string `json:"acquiredAt,omitempty"`
	LicenseState      string `json:"licenseState"`
	RejectionReason   string `json:"rejectionReason,omitempty"`
	EvidenceURI       string `json:"evidenceUri,omitempty"`
	UpdatedAt         string `json:"updatedAt,omitempty"`
}

// RightsHistoryEntry is one audit row of license state changes.
type RightsHistoryEntry struct {
	ID          string `json:"id"`
	FromState   string `json:"fromState"`
	ToState     string `json:"toState"`
	EvidenceURI string `json:"evidenceUri,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Actor       string `json:"actor"`
	ChangedAt   string `json:"changedAt"`
}

// RightsResponse carries a record and, when requested, its history.
type RightsResponse struct {
	Record  RightsRecord         `json:"record"`
	History []RightsHistoryEntry `json:"history,omitempty"`
}

// CatalogEntry describes a published (or retracted) Track.
type CatalogEntry struct {
	SourceID      string          `json:"sourceId"`
	Title         string          `json:"title"`
	Live          bool            `json:"live"`
	LicenseState  string          `json:"licenseState"`
	Objects       []string        `json:"objects"`
	Segment       json.RawMessage `json:"segment,omitempty"`
	PublishedAt   string          `json:"publishedAt"`
	RetractedAt   string          `json:"retractedAt,omitempty"`
	RetractReason string          `json:"retractReason,omitempty"`
}

// CatalogListResponse wraps catalog entries.
type CatalogListResponse struct {
	Entries []CatalogEntry `json:"entries"`
}

// ReconcileResponse reports a reconcile pass.
type ReconcileResponse struct {
	Checked   int               `json:"checked"`
	Retracted []string          `json:"retracted"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// IngestRequest starts a playlist ingestion run.
type IngestRequest struct {
	PlaylistID string `json:"playlistId,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// IngestResponse reports an ingestion run.
type IngestResponse struct {
	PlaylistID string `json:"playlistId"`
	Seen       int    `json:"seen"`
	Created    int    `json:"created"`
	Existing   int    `json:"existing"`
}

// RejectRequest rejects a Track with a reason.
type RejectRequest struct {
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// LicenseStateRequest changes a Track's rights state.
type LicenseStateRequest struct {
	State       string `json:"state"`
	EvidenceURI string `json:"evidenceUri,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// UnpublishRequest retracts a live catalog entry.
type UnpublishRequest struct {
	Reason string `json:"reason,omitempty"`
}

// RetryRequest requeues failed Tracks; empty retries all of them.
type RetryRequest struct {
	SourceIDs []string `json:"sourceIds,omitempty"`
}

// CountResponse reports how many Tracks an action touched.
type CountResponse struct {
	Count int64 `json:"count"`
}

// ActionResponse acknowledges an action on one Track.
type ActionResponse struct {
	SourceID string `json:"sourceId"`
	Applied  bool   `json:"applied"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// QueueHealth combines aggregate counts with database diagnostics.
type QueueHealth struct {
	Total          int    `json:"total"`
	Waiting        int    `json:"waiting"`
	Processing     int    `json:"processing"`
	Review         int    `json:"review"`
	Failed         int    `json:"failed"`
	Rejected       int    `json:"rejected"`
	Published      int    `json:"published"`
	DBPath         string `json:"dbPath"`
	SchemaVersion  string `json:"schemaVersion,omitempty"`
	IntegrityCheck bool   `json:"integrityCheck"`
	Error          string `json:"error,omitempty"`
}

// NotificationResponse reports a test notification attempt.
type NotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
