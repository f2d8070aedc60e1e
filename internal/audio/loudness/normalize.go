package loudness

import (
	"fmt"
	"math"

	"loopdeck/internal/audio/pcm"
)

// Target describes the normalization goal.
type Target struct {
	LUFS      float64
	Tolerance float64
	// TruePeakCeiling is the maximum allowed true peak in dBTP.
	TruePeakCeiling float64
}

// Result reports a normalization pass.
type Result struct {
	InputLUFS    float64 `json:"input_lufs"`
	OutputLUFS   float64 `json:"output_lufs"`
	GainDB       float64 `json:"gain_db"`
	TruePeakDBTP float64 `json:"true_peak_dbtp"`
}

// WithinTolerance reports whether the output loudness is inside the target window.
func (r Result) WithinTolerance(target Target) bool {
	return math.Abs(r.OutputLUFS-target.LUFS) <= target.Tolerance
}

// PeakExceeded reports whether the output true peak is above the ceiling.
func (r Result) PeakExceeded(target Target) bool {
	return r.TruePeakDBTP > target.TruePeakCeiling
}

// Normalize applies a single linear gain so that buf's integrated loudness
// matches target.LUFS. The input is not modified. Gain is never applied to
// silent buffers. True peak is measured after gain and reported, not limited.
func Normalize(buf *pcm.Buffer, target Target) (*pcm.Buffer, Result, error) {
	if err := buf.Validate(); err != nil {
		return nil, Result{}, fmt.Errorf("normalize: %w", err)
	}
	input := Integrated(buf)
	result := Result{InputLUFS: input}
	out := buf.Clone()
	if math.IsInf(input, -1) {
		result.OutputLUFS = input
		result.TruePeakDBTP = TruePeak(out)
		return out, result, nil
	}

	result.GainDB = target.LUFS - input
	out.Gain(result.GainDB)
	result.OutputLUFS = Integrated(out)
	result.TruePeakDBTP = TruePeak(out)
	return out, result, nil
}
