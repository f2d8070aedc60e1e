// Package eligibility implements the filter stage: a metadata-only duration
// gate followed by a vocal-presence score computed from the downloaded audio.
//
// Both gates reject permanently. The score threshold is calibrated offline
// against a labeled validation set with FalseRejectRate and
// MaxThresholdForRate so that at most 5% of tracks with vocals are rejected.
package eligibility
