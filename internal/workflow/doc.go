// Package workflow advances Tracks through the loop pipeline.
//
// The Manager runs one bounded worker pool per stage (filter, segment,
// separate, align, rights, publish). Workers claim Tracks atomically from the
// durable queue, heartbeat while a stage runs, and persist the result with a
// compare-and-set on status so a Track rejected or reingested mid-stage turns
// the late write into a no-op. Completed stages are cached per (source id,
// stage); Submit serves a cached result without running the stage again.
//
// Stage errors are read through services.Classify: transient failures are
// retried with exponential backoff until workflow.max_attempts, rejections
// end the Track, deferrals park it until its NotBefore time, and compliance
// violations hold it for review. Producers block while the next stage's
// backlog (or the ingest backlog) is full.
//
// Operator actions (review approval, reingest, retry, unpublish, license
// state changes and reconciliation) also live here so running workers see
// their effects immediately.
package workflow
