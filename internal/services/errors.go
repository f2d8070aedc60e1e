package services

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")

	// ErrFetch marks network or auth failures against the metadata or audio source.
	ErrFetch = errors.New("fetch error")
	// ErrTransientSeparation marks a separation backend failure worth retrying (OOM, device busy).
	ErrTransientSeparation = errors.New("transient separation failure")
	// ErrTransientAlignment marks an alignment backend failure worth retrying.
	ErrTransientAlignment = errors.New("transient alignment failure")
	// ErrComplianceViolation marks a publish attempted while rights are not cleared.
	ErrComplianceViolation = errors.New("compliance violation")
)

// Permanent rejection reasons persisted on a Track.
const (
	ReasonDurationTooShort         = "DurationTooShort"
	ReasonLowVocalPresence         = "LowVocalPresence"
	ReasonSeamQualityFailure       = "SeamQualityFailure"
	ReasonSeparationQualityFailure = "SeparationQualityFailure"
	ReasonRightsRejected           = "RightsRejected"
	ReasonRightsRestricted         = "RightsRestricted"
	ReasonUnpublished              = "Unpublished"
)

// Quality-gate flags that halt a Track for human review.
const (
	FlagSeparationBelowThreshold = "SeparationBelowThreshold"
	FlagSeamDiscontinuity        = "SeamDiscontinuity"
	FlagTruePeakExceeded         = "TruePeakExceeded"
	FlagLoudnessOutOfTolerance   = "LoudnessOutOfTolerance"
	FlagComplianceViolation      = "ComplianceViolation"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later status classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// RejectionError is a permanent ineligibility. The Track moves to rejected and
// is never retried automatically.
type RejectionError struct {
	Reason string
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return "rejected: " + e.Reason
	}
	return "rejected: " + e.Reason + ": " + e.Detail
}

// Reject returns a RejectionError for reason.
func Reject(reason, detail string) error {
	return &RejectionError{Reason: reason, Detail: strings.TrimSpace(detail)}
}

// DeferError asks the scheduler to return the Track to its stage queue and try
// again after Delay. It is not counted as a failed attempt.
type DeferError struct {
	Delay  time.Duration
	Reason string
}

func (e *DeferError) Error() string {
	return fmt.Sprintf("deferred for %s: %s", e.Delay, e.Reason)
}

// Defer returns a DeferError.
func Defer(delay time.Duration, reason string) error {
	return &DeferError{Delay: delay, Reason: reason}
}

// Outcome is the scheduler's reading of a stage error.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeRetry
	OutcomeRejected
	OutcomeDeferred
	OutcomeCompliance
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRetry:
		return "retry"
	case OutcomeRejected:
		return "rejected"
	case OutcomeDeferred:
		return "deferred"
	case OutcomeCompliance:
		return "compliance_violation"
	default:
		return "failed"
	}
}

// Classify maps a stage error onto the failure taxonomy.
func Classify(err error) Outcome {
	var rejection *RejectionError
	var deferral *DeferError
	switch {
	case err == nil:
		return OutcomeFailed
	case errors.As(err, &rejection):
		return OutcomeRejected
	case errors.As(err, &deferral):
		return OutcomeDeferred
	case errors.Is(err, ErrComplianceViolation):
		return OutcomeCompliance
	case IsTransient(err):
		return OutcomeRetry
	default:
		return OutcomeFailed
	}
}

// IsTransient reports whether err is worth retrying with backoff.
func IsTransient(err error) bool {
	for _, marker := range []error{ErrTransient, ErrTimeout, ErrFetch, ErrTransientSeparation, ErrTransientAlignment} {
		if errors.Is(err, marker) {
			return true
		}
	}
	return false
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
