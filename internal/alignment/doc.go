// Package alignment is the lyric alignment stage.
//
// It places transcript words on the loop's timeline, anchors them to the
// loop's beat grid and stores the result as an alignment map. At playback
// time a Warp maps stored timestamps to heard time under a tempo multiplier
// and pitch shift. The warp models the player's frame-quantized time
// stretcher and restarts its clock at every loop boundary, so any error it
// makes is bounded within one loop and never accumulates across loops.
// NaiveMap is the global linear mapping kept for comparison.
package alignment
