package stage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"loopdeck/internal/services"
)

// DecodeResult unmarshals a stage result stored on the item's artifacts.
// A missing result is reported as services.ErrValidation so the Track fails
// instead of retrying forever.
func DecodeResult(stageName, what string, raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return services.Wrap(services.ErrValidation, stageName, "load "+what,
			what+" result missing; reingest the track", nil)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return services.Wrap(services.ErrValidation, stageName, "decode "+what,
			what+" result is corrupt; reingest the track", err)
	}
	return nil
}

// RequireFile verifies a staged artifact still exists on disk.
func RequireFile(stageName, what, path string) error {
	if path == "" {
		return services.Wrap(services.ErrValidation, stageName, "locate "+what, what+" path not recorded", nil)
	}
	if _, err := os.Stat(path); err != nil {
		return services.Wrap(services.ErrNotFound, stageName, "locate "+what, path, err)
	}
	return nil
}

// WriteJSON writes v as indented JSON to path atomically and returns the
// encoded bytes for storage on the item.
func WriteJSON(path string, v any) (json.RawMessage, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("rename %s: %w", path, err)
	}
	compact, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return compact, nil
}
