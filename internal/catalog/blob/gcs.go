package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCS stores objects in a Google Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCS connects with the credentials file, or application default
// credentials when it is empty.
func NewGCS(ctx context.Context, bucket, prefix, credentialsFile string) (*GCS, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("gcs bucket not configured")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCS{client: client, bucket: bucket, prefix: prefix}, nil
}

func (g *GCS) object(key string) (*storage.ObjectHandle, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	return g.client.Bucket(g.bucket).Object(joinPrefix(g.prefix, clean)), nil
}

// Put implements Store.
func (g *GCS) Put(ctx context.Context, key string, r io.Reader, _ int64, contentType string) error {
	obj, err := g.object(key)
	if err != nil {
		return err
	}
	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize %s: %w", key, err)
	}
	return nil
}

// Get implements Store.
func (g *GCS) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := g.object(key)
	if err != nil {
		return nil, err
	}
	r, err := obj.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return r, err
}

// Exists implements Store.
func (g *GCS) Exists(ctx context.Context, key string) (bool, error) {
	obj, err := g.object(key)
	if err != nil {
		return false, err
	}
	_, err = obj.Attrs(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrObjectNotExist):
		return false, nil
	default:
		return false, err
	}
}

// Delete implements Store.
func (g *GCS) Delete(ctx context.Context, key string) error {
	obj, err := g.object(key)
	if err != nil {
		return err
	}
	if err := obj.Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// List implements Store.
func (g *GCS) List(ctx context.Context, prefix string) ([]string, error) {
	full := joinPrefix(g.prefix, prefix)
	strip := ""
	if p := strings.Trim(g.prefix, "/"); p != "" {
		strip = p + "/"
	}
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: full})
	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list gs://%s/%s: %w", g.bucket, full, err)
		}
		if strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		keys = append(keys, strings.TrimPrefix(attrs.Name, strip))
	}
	sort.Strings(keys)
	return keys, nil
}

// Location implements Store.
func (g *GCS) Location() string {
	return "gs://" + joinPrefix(g.bucket, strings.Trim(g.prefix, "/"))
}

// Close implements Store.
func (g *GCS) Close() error { return g.client.Close() }
