package alignment_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loopdeck/internal/alignment"
	"loopdeck/internal/audio/pcm"
	"loopdeck/internal/config"
	"loopdeck/internal/logging"
	"loopdeck/internal/queue"
	"loopdeck/internal/segmentation"
	"loopdeck/internal/services"
	"loopdeck/internal/staging"
	"loopdeck/internal/testsupport"
)

type stubTranscript struct {
	cues []alignment.Cue
	err  error
}

func (s stubTranscript) Fetch(context.Context, string, string) (alignment.Transcript, error) {
	if s.err != nil {
		return alignment.Transcript{}, s.err
	}
	return alignment.Transcript{Source: alignment.TranscriptCaptions, Language: "en", Cues: s.cues}, nil
}

type failingBackend struct{ err error }

func (failingBackend) Name() string { return "failing" }

func (b failingBackend) Align(context.Context, alignment.Input) ([]alignment.Word, error) {
	return nil, b.err
}

func separatedTrack(t *testing.T, store *queue.Store, id string) *queue.Item {
	t.Helper()
	item := testsupport.NewTrack(t, store, id, 90)
	song := testsupport.PopSong()
	loop := song.Slice(song.Frame(8), song.Frame(56))
	dir := t.TempDir()
	item.Artifacts.SegmentAudio = testsupport.WriteWAV(t, dir, "loop.wav", loop)
	item.Artifacts.VocalStem = testsupport.WriteWAV(t, dir, "vocals.wav", loop)
	raw, err := json.Marshal(segmentation.Segment{SourceID: id, StartSec: 8, EndSec: 56, LoopSeconds: 48, BPM: 120})
	require.NoError(t, err)
	item.Artifacts.Segment = raw
	return item
}

func TestHandlerWritesAlignmentMap(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	source := stubTranscript{cues: []alignment.Cue{
		{Start: 10, End: 14, Text: "Hold on to me"},
		{Start: 30, End: 33, Text: "never let go"},
		{Start: 70, End: 72, Text: "outside the loop"},
	}}
	h := alignment.NewHandler(cfg, store, source, alignment.TranscriptBackend{}, alignment.NewDSPBeatTracker(cfg.Segmentation), logging.NewNop())
	item := separatedTrack(t, store, "vid1")

	ctx := context.Background()
	require.NoError(t, h.Prepare(ctx, item))
	require.NoError(t, h.Execute(ctx, item))

	var m alignment.Map
	require.NoError(t, json.Unmarshal(item.Artifacts.Alignment, &m))
	require.Len(t, m.Words, 7)
	assert.Equal(t, "Hold", m.Words[0].Text)
	assert.InDelta(t, 2.0, m.Words[0].Start, 1e-9)
	assert.Equal(t, config.AlignmentTranscript, m.Backend)
	assert.Equal(t, alignment.TranscriptCaptions, m.TranscriptSource)
	assert.InDelta(t, 120, m.BPM, 3)
	assert.NotEmpty(t, m.TempoMap)
	require.NotNil(t, m.Warp)
	require.Len(t, m.Sync, 9)
	for _, r := range m.Sync {
		assert.Truef(t, r.Pass, "sync failed at tempo %.2f pitch %.0f", r.Tempo, r.Pitch)
	}
	require.NoError(t, m.Validate())

	metaPath := item.Artifacts.Metadata[staging.AlignmentMetaKey("vid1")]
	_, err := os.Stat(metaPath)
	require.NoError(t, err)
	_, err = os.Stat(item.Artifacts.Transcript)
	require.NoError(t, err)
}

func TestHandlerRetriesTransientFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	tracker := alignment.NewDSPBeatTracker(cfg.Segmentation)

	oom := services.Wrap(services.ErrTransientAlignment, "whisperx", "align", "CUDA out of memory", errors.New("exit status 1"))
	h := alignment.NewHandler(cfg, store, nil, failingBackend{err: oom}, tracker, logging.NewNop())
	err := h.Execute(context.Background(), separatedTrack(t, store, "oom"))
	assert.Equal(t, services.OutcomeRetry, services.Classify(err))

	offline := services.Wrap(services.ErrFetch, "yt-dlp", "download captions", "vid", errors.New("network unreachable"))
	h = alignment.NewHandler(cfg, store, stubTranscript{err: offline}, alignment.TranscriptBackend{}, tracker, logging.NewNop())
	err = h.Execute(context.Background(), separatedTrack(t, store, "offline"))
	assert.Equal(t, services.OutcomeRetry, services.Classify(err))
}

func TestHandlerRequiresVocalStem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	h := alignment.NewHandler(cfg, store, nil, alignment.TranscriptBackend{}, alignment.NewDSPBeatTracker(cfg.Segmentation), logging.NewNop())
	item := separatedTrack(t, store, "nostem")
	item.Artifacts.VocalStem = ""
	err := h.Execute(context.Background(), item)
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestDSPBeatTrackerFindsClickTempo(t *testing.T) {
	buf := pcm.FromMono(testsupport.SampleRate, testsupport.ClickTrack(20, 120, 0.8))
	grid, err := alignment.NewDSPBeatTracker(config.Default().Segmentation).TrackBeats(context.Background(), buf)
	require.NoError(t, err)
	assert.InDelta(t, 120, grid.BPM, 2)
	require.Greater(t, len(grid.Beats), 30)
	for i := 1; i < len(grid.Beats); i++ {
		assert.InDelta(t, 0.5, grid.Beats[i]-grid.Beats[i-1], 0.05)
	}

	silent, err := alignment.NewDSPBeatTracker(config.Default().Segmentation).TrackBeats(context.Background(), pcm.New(testsupport.SampleRate, 1, testsupport.SampleRate*5))
	require.NoError(t, err)
	assert.Empty(t, silent.Beats)
}

func TestNewBackendSelection(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	b, err := alignment.NewBackend(cfg)
	require.NoError(t, err)
	assert.Equal(t, config.AlignmentTranscript, b.Name())

	cfg.Alignment.Backend = config.AlignmentWhisperX
	cfg.Alignment.WhisperXModel = "small"
	b, err = alignment.NewBackend(cfg)
	require.NoError(t, err)
	assert.Equal(t, "whisperx:small", b.Name())

	cfg.Alignment.Backend = "gentle"
	_, err = alignment.NewBackend(cfg)
	assert.ErrorIs(t, err, services.ErrConfiguration)
}
