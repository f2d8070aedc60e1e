// Package whisperx runs the WhisperX CLI over an isolated vocal stem and
// loads the word-level timings it writes.
//
// WhisperX transcribes with Whisper and then force-aligns the transcript
// with a phoneme model, so each word in the JSON output carries start and
// end times. Words the aligner could not place come back without timings
// and are dropped by LoadWords.
package whisperx
