// Package preflight provides readiness checks for the tools, paths and
// backing services loopdeck depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup and logs every failed check before
//     the workflow begins claiming Tracks.
//   - The CLI "loopdeck status" command renders the same results alongside
//     the daemon's own status.
//
// Checks for optional backends are skipped when the backend is not selected.
package preflight
