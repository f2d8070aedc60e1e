// Package rights models license clearance for a Track.
//
// A Record starts in pending_clearance at ingestion. Only the manual
// clearance action moves it: pending_clearance may become cleared,
// restricted or rejected, and cleared may later be downgraded to
// restricted or rejected. Restricted and rejected are terminal. The
// pipeline reads records through Gate and never writes a state itself;
// persistence lives in the catalog package.
package rights
