package blob_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loopdeck/internal/catalog/blob"
	"loopdeck/internal/config"
)

func TestLocalPutGetDelete(t *testing.T) {
	ctx := context.Background()
	store, err := blob.NewLocal(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "metadata/abc_rights.json", strings.NewReader(`{"license_state":"cleared"}`), -1, "application/json"))

	ok, err := store.Exists(ctx, "metadata/abc_rights.json")
	require.NoError(t, err)
	assert.True(t, ok)

	r, err := store.Get(ctx, "metadata/abc_rights.json")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, r.Close())
	require.NoError(t, err)
	assert.JSONEq(t, `{"license_state":"cleared"}`, string(data))

	require.NoError(t, store.Delete(ctx, "metadata/abc_rights.json"))
	require.NoError(t, store.Delete(ctx, "metadata/abc_rights.json"), "deleting twice is not an error")

	_, err = store.Get(ctx, "metadata/abc_rights.json")
	assert.ErrorIs(t, err, blob.ErrNotFound)
	ok, err = store.Exists(ctx, "metadata/abc_rights.json")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalListAndPutFile(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := blob.NewLocal(root)
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "loop.wav")
	require.NoError(t, os.WriteFile(src, []byte("RIFF"), 0o644))
	for _, key := range []string{"segments/b.wav", "segments/a.wav", "raw/a.wav"} {
		require.NoError(t, blob.PutFile(ctx, store, key, src))
	}

	keys, err := store.List(ctx, "segments/")
	require.NoError(t, err)
	assert.Equal(t, []string{"segments/a.wav", "segments/b.wav"}, keys)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, root, store.Location())
}

func TestLocalKeysStayInsideRoot(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := blob.NewLocal(root)
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "../escape.json", strings.NewReader("{}"), 2, "application/json"))
	_, err = os.Stat(filepath.Join(root, "escape.json"))
	assert.NoError(t, err)

	assert.Error(t, store.Put(ctx, "  ", strings.NewReader("{}"), 2, "application/json"))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "audio/wav", blob.ContentType("separation/x/vocals.wav"))
	assert.Equal(t, "application/json", blob.ContentType("metadata/x_qa.json"))
	assert.Equal(t, "application/octet-stream", blob.ContentType("raw/x.bin"))
}

func TestNewSelectsBackend(t *testing.T) {
	store, err := blob.New(context.Background(), config.Storage{Backend: config.StorageLocal, LocalDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &blob.Local{}, store)

	_, err = blob.New(context.Background(), config.Storage{Backend: "ftp"})
	assert.Error(t, err)

	_, err = blob.New(context.Background(), config.Storage{Backend: config.StorageS3})
	assert.Error(t, err, "s3 without endpoint must fail before dialing")
}
