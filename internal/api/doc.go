// Package api defines wire-format types and converters for the operator HTTP
// API. It translates queue, rights and catalog models into transport-friendly
// DTOs that the CLI renders without coupling to internal types.
//
// # Key Types
//
// Track: a queued playlist entry with progress, rejection or review state
// and the stage artifacts recorded so far.
//
// WorkflowStatus: daemon running state, queue stats, stage health and the
// per-stage worker pools.
//
// RightsRecord, RightsHistoryEntry, CatalogEntry: the compliance view.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Internal enums (queue.Status, rights.State)
// are exposed as lowercase strings. Timestamps use RFC3339 with milliseconds.
// Segment, separation and alignment reports are passed through as
// json.RawMessage to avoid double-encoding.
package api
