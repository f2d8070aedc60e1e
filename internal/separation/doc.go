// Package separation splits a loop into a vocal stem and a karaoke bed and
// gates the result on objective quality metrics.
//
// Two backends are available: the demucs CLI, and an in-process centre
// channel extractor that needs no model. Whichever runs, the stems are
// scored for mixture consistency (SDR) and for vocal leakage into the bed
// (SIR). Loops under either threshold are held for review rather than
// published.
package separation
