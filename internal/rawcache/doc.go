// Package rawcache keeps downloaded source audio on local disk keyed by source
// id and verified by SHA-256, so retries and reingests skip the download when
// the cached bytes still match their recorded checksum.
//
// # Size Management
//
// The cache enforces a size budget (paths.raw_cache_max_gib) and a 20%
// free-space floor on the underlying volume. When either limit is exceeded the
// manager prunes the oldest entries first, never the one just written.
package rawcache
