package alignment

import (
	"context"

	"loopdeck/internal/audio/dsp"
	"loopdeck/internal/audio/pcm"
	"loopdeck/internal/config"
	"loopdeck/internal/services"
)

// BeatGrid is a tempo estimate with beat times in seconds.
type BeatGrid struct {
	BPM   float64   `json:"bpm"`
	Beats []float64 `json:"beats"`
}

// BeatTracker finds the beats of a loop.
type BeatTracker interface {
	TrackBeats(ctx context.Context, buf *pcm.Buffer) (BeatGrid, error)
}

// DSPBeatTracker runs the onset-envelope tempo estimate and dynamic
// programming beat tracker in process.
type DSPBeatTracker struct {
	opts dsp.Options
}

// NewDSPBeatTracker uses the segmentation frame settings so loop beats line
// up with the grid the loop was cut on.
func NewDSPBeatTracker(seg config.Segmentation) *DSPBeatTracker {
	return &DSPBeatTracker{opts: dsp.Options{FrameSize: seg.FrameSize, Hop: seg.HopSize}}
}

// TrackBeats analyses buf and returns its beat grid. A loop without a
// detectable pulse yields an empty grid.
func (t *DSPBeatTracker) TrackBeats(ctx context.Context, buf *pcm.Buffer) (BeatGrid, error) {
	if err := ctx.Err(); err != nil {
		return BeatGrid{}, services.Wrap(services.ErrTimeout, stageName, "track beats", "cancelled", err)
	}
	if err := buf.Validate(); err != nil {
		return BeatGrid{}, services.Wrap(services.ErrValidation, stageName, "track beats", "unusable audio", err)
	}
	feats := dsp.Analyze(buf.Mono(), buf.SampleRate, t.opts)
	bpm := dsp.EstimateTempo(feats.Onset, feats.FrameRate())
	if bpm <= 0 {
		return BeatGrid{}, nil
	}
	frames := dsp.TrackBeats(feats.Onset, feats.FrameRate(), bpm)
	return BeatGrid{BPM: bpm, Beats: feats.BeatTimes(frames)}, nil
}
