// Package dsp implements the short-time analysis shared by the eligibility,
// segmentation and alignment stages: log-band spectra, harmonic/percussive
// separation by median filtering, spectral-flux onsets, chroma, tempo and
// beat tracking, chroma recurrence and key estimation.
//
// All functions are deterministic for identical input and options.
package dsp
