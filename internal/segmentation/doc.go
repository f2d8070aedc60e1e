// Package segmentation picks the 40 to 60 second window of a track that
// loops best and renders it as a seamless, loudness-normalized loop.
//
// The window is ranked on vocal density and on how strongly its harmony
// recurs elsewhere in the track, with a bias towards the first recurring
// section. Its edges are snapped to beats, the audio that follows the loop
// end is crossfaded into the head, and the result is played back for several
// simulated minutes to catch audible seams before anything is published.
package segmentation
