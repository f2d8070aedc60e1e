package rights

import (
	"fmt"
	"time"

	"loopdeck/internal/services"
)

// Provenance records how the source audio was acquired.
type Provenance struct {
	AcquisitionMethod string    `json:"acquisition_method"`
	Timestamp         time.Time `json:"timestamp"`
}

// Record is the clearance state for one Track.
type Record struct {
	SourceID        string
	Uploader        string
	License         string
	Provenance      Provenance
	State           State
	RejectionReason string
	EvidenceURI     string
	UpdatedAt       time.Time
}

// NewRecord returns the initial pending record created at ingestion.
func NewRecord(sourceID, uploader, license, acquisitionMethod string, now time.Time) Record {
	return Record{
		SourceID:   sourceID,
		Uploader:   uploader,
		License:    license,
		Provenance: Provenance{AcquisitionMethod: acquisitionMethod, Timestamp: now.UTC()},
		State:      StatePending,
		UpdatedAt:  now.UTC(),
	}
}

// HistoryEntry is one append-only row of the clearance audit trail.
type HistoryEntry struct {
	ID          string    `json:"id"`
	SourceID    string    `json:"source_id"`
	FromState   State     `json:"from_state"`
	ToState     State     `json:"to_state"`
	EvidenceURI string    `json:"evidence_uri,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Actor       string    `json:"actor"`
	ChangedAt   time.Time `json:"changed_at"`
}

// Document is the published rights JSON (metadata/{id}_rights.json).
type Document struct {
	SourceID          string `json:"source_id"`
	Uploader          string `json:"uploader"`
	License           string `json:"license"`
	AcquisitionMethod string `json:"acquisition_method"`
	LicenseState      State  `json:"license_state"`
	RejectionReason   string `json:"rejection_reason,omitempty"`
}

// Document renders the record in the published schema.
func (r Record) Document() Document {
	return Document{
		SourceID:          r.SourceID,
		Uploader:          r.Uploader,
		License:           r.License,
		AcquisitionMethod: r.Provenance.AcquisitionMethod,
		LicenseState:      r.State,
		RejectionReason:   r.RejectionReason,
	}
}

// Gate maps a record onto the rights-check stage outcome: nil when cleared,
// a rejection for restricted or rejected, and a deferral of recheck while
// clearance is pending.
func Gate(r Record, recheck time.Duration) error {
	switch r.State {
	case StateCleared:
		return nil
	case StateRestricted:
		return services.Reject(services.ReasonRightsRestricted, r.RejectionReason)
	case StateRejected:
		return services.Reject(services.ReasonRightsRejected, r.RejectionReason)
	case StatePending:
		return services.Defer(recheck, "awaiting rights clearance")
	default:
		return services.Wrap(services.ErrValidation, "rights", "gate", fmt.Sprintf("unknown license state %q", r.State), nil)
	}
}
