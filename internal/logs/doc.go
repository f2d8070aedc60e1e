// Package logs reads the daemon log file for `loopdeck logs`.
//
// Tail returns the last N lines (negative offset) or everything after a byte
// offset, optionally waiting for new lines, and can keep only the lines that
// mention one Track. Memory stays bounded by the requested line count.
package logs
