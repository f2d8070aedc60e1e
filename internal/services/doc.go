// Package services defines shared utilities consumed by the pipeline stage
// handlers and external tool integrations.
//
// Key responsibilities:
//   - Context helpers that stamp source ids, stage and pool names, operator
//     identity and correlation identifiers for logging.
//   - The failure taxonomy: transient markers retried with backoff, permanent
//     rejections with a persisted reason, quality flags that halt a Track for
//     review, deferrals, and compliance violations.
//
// Subpackages wrap the external tools (yt-dlp, YouTube Data API, demucs,
// whisperx) behind small clients with overridable command runners for tests.
package services
