// Package pcm holds decoded audio as float64 samples and reads and writes
// RIFF/WAVE files.
//
// Every stage passes audio around as a Buffer: one slice per channel, samples
// in [-1, 1]. WAV is the only container the pipeline stores, so the codec here
// covers PCM 16/24/32-bit and IEEE float input and writes 16-bit PCM or 32-bit
// float output. Anything else goes through ffmpeg first.
package pcm
