// Command loopdeck is the operator CLI for the loopdeck pipeline.
//
// It starts and stops the daemon, inspects the Track queue, resolves
// review holds, drives playlist ingestion, records rights decisions and
// manages the published catalog. Commands talk to the daemon's HTTP API
// with a short-lived operator token; queue inspection and ingestion fall
// back to direct database access when no daemon is running.
package main
