// Package daemon owns the long-running loopdeck process.
//
// A Daemon ties the queue store, the catalog and the workflow manager to a
// single lifecycle guarded by a flock so only one instance processes a
// state directory. While running it serves the operator HTTP API: chi
// routes under /api, bearer-token authentication, and a mapping from
// service error markers to HTTP status codes.
//
// Stage logic belongs to the stage packages and scheduling to workflow.
// This package only starts, stops and exposes them.
package daemon
