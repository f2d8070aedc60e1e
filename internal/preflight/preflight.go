package preflight

import (
	"context"

	"loopdeck/internal/catalog/blob"
	"loopdeck/internal/config"
)

// minFreeStagingGiB is the free space below which the staging check fails.
const minFreeStagingGiB = 2

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// blobs may be nil when no storage backend has been opened yet.
func RunAll(ctx context.Context, cfg *config.Config, blobs blob.Store) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDiskSpace("Staging free space", cfg.Paths.StagingDir, minFreeStagingGiB),
	}

	if cfg.Playlist.Source == config.SourceYouTube {
		results = append(results, CheckYouTubeFromConfig(cfg))
	}
	if cfg.Lock.Backend == config.LockRedis {
		results = append(results, CheckRedis(ctx, cfg.Lock))
	}
	if blobs != nil {
		results = append(results, CheckStorage(ctx, blobs))
	}
	return results
}

// Failed filters results down to the checks that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
