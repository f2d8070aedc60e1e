// Package loudness measures gated integrated loudness (ITU-R BS.1770) and
// oversampled true peak, and normalizes buffers to a loudness target.
package loudness
