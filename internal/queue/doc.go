// Package queue persists Tracks in SQLite and exposes helpers for driving
// their lifecycle through the pipeline stages.
//
// The Store manages the database connection, schema initialization, atomic
// claims, heartbeat tracking, stale-claim recovery, and the status transitions
// that mirror the workflow enum. Each Track carries its artifacts, rejection
// reason, retry bookkeeping and review flags so stages can coordinate without
// additional state. Completed stage results are cached per (source_id, stage)
// so resubmitting finished work returns the prior result.
//
// Rejected and failed Tracks are kept for audit. Schema changes bump the
// version in schema.go; operators clear the database to adopt the new schema.
package queue
