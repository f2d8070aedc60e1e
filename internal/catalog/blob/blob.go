// Package blob stores published catalog objects under the storage layout
// keys (raw/{id}.wav, segments/{id}.wav, metadata/{id}_rights.json, ...).
// Local directories, Google Cloud Storage and S3-compatible servers share
// one interface.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"loopdeck/internal/config"
)

// ErrNotFound marks a missing object.
var ErrNotFound = errors.New("object not found")

// Store is a flat key/value object store.
type Store interface {
	// Put writes r under key, replacing any existing object.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Get opens the object. Missing objects return ErrNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// Delete removes key. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
	// List returns every key under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
	// Location describes where objects land, for logs and status output.
	Location() string
	Close() error
}

// New builds the configured store.
func New(ctx context.Context, cfg config.Storage) (Store, error) {
	switch cfg.Backend {
	case "", config.StorageLocal:
		return NewLocal(cfg.LocalDir)
	case config.StorageGCS:
		return NewGCS(ctx, cfg.Bucket, cfg.Prefix, cfg.GCSCredentialsFile)
	case config.StorageS3:
		return NewS3(ctx, S3Options{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
			Bucket:    cfg.Bucket,
			Prefix:    cfg.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// PutFile uploads a local file under key.
func PutFile(ctx context.Context, store Store, key, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", filePath, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", filePath, err)
	}
	return store.Put(ctx, key, f, info.Size(), ContentType(key))
}

// ContentType guesses the MIME type from the key extension.
func ContentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".wav":
		return "audio/wav"
	case ".json":
		return "application/json"
	case ".vtt":
		return "text/vtt"
	default:
		return "application/octet-stream"
	}
}

func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(path.Clean("/"+strings.TrimSpace(key)), "/")
	if key == "" || key == "." {
		return "", fmt.Errorf("empty object key")
	}
	return key, nil
}

func joinPrefix(prefix, key string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}
