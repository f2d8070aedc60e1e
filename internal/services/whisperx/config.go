package whisperx

import (
	"strings"

	"loopdeck/internal/language"
)

const (
	DefaultBinary  = "whisperx"
	DefaultModel   = "large-v3"
	CPUDevice      = "cpu"
	CUDADevice     = "cuda"
	CPUComputeType = "float32"

	VADMethodPyannote = "pyannote"
	VADMethodSilero   = "silero"
)

// decodeFlags are fixed for every run. The VAD thresholds are low because
// separated vocal stems are quiet between phrases.
var decodeFlags = []string{
	"--batch_size", "4",
	"--output_format", "json",
	"--chunk_size", "15",
	"--vad_onset", "0.08",
	"--vad_offset", "0.07",
	"--beam_size", "5",
	"--temperature", "0.0",
}

// Config selects the WhisperX binary and model for a Service.
type Config struct {
	Binary string
	Model  string
	// Device is "cpu" or "cuda". Empty means cpu.
	Device string
	// Language accepts names or codes; empty lets WhisperX detect it.
	Language  string
	VADMethod string
	// HFToken is passed only with the pyannote VAD, which needs it.
	HFToken string
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Binary) == "" {
		c.Binary = DefaultBinary
	}
	if strings.TrimSpace(c.Model) == "" {
		c.Model = DefaultModel
	}
	if c.VADMethod == "" {
		c.VADMethod = VADMethodSilero
	}
	return c
}

// args is the whisperx command line for one source file.
func (c Config) args(source, outputDir string) []string {
	args := []string{source, "--model", c.Model, "--output_dir", outputDir}
	args = append(args, decodeFlags...)
	args = append(args, "--vad_method", c.VADMethod)
	if c.VADMethod == VADMethodPyannote && c.HFToken != "" {
		args = append(args, "--hf_token", c.HFToken)
	}
	if lang := language.ToISO2(c.Language); lang != "" {
		args = append(args, "--language", lang)
	}
	if strings.EqualFold(c.Device, CUDADevice) {
		return append(args, "--device", CUDADevice)
	}
	return append(args, "--device", CPUDevice, "--compute_type", CPUComputeType)
}
