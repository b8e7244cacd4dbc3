package modelstore_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/your-org/sam2engine/internal/modelstore"
)

func TestDiskBackendPutGetDelete(t *testing.T) {
	backend, err := modelstore.NewDiskBackend(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()

	_, ok, err := backend.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, backend.Put(ctx, "key", []byte("hello")))

	data, ok, err := backend.Get(ctx, "key")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("hello"), data)

	require.NoError(t, backend.Delete(ctx, "key"))
	_, ok, err = backend.Get(ctx, "key")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLoadAllPrefersCacheOverNetwork(t *testing.T) {
	backend, err := modelstore.NewDiskBackend(t.TempDir())
	require.NoError(t, err)
	store := modelstore.New(backend)

	ctx := context.Background()
	require.NoError(t, backend.Put(ctx, modelstore.KeyEncoder, []byte("cached-encoder")))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "downloaded-decoder")
	}))
	defer server.Close()

	sources := []modelstore.Source{
		{Key: modelstore.KeyEncoder, URL: "http://unused.invalid", ExpectedSize: int64(len("cached-encoder"))},
		{Key: modelstore.KeyDecoder, URL: server.URL, ExpectedSize: int64(len("downloaded-decoder"))},
	}

	var progress []modelstore.ProgressEvent
	artifacts, err := store.LoadAll(ctx, sources, func(p modelstore.ProgressEvent) {
		progress = append(progress, p)
	})
	require.NoError(t, err)
	require.Equal(t, []byte("cached-encoder"), artifacts[modelstore.KeyEncoder])
	require.Equal(t, []byte("downloaded-decoder"), artifacts[modelstore.KeyDecoder])
	require.NotEmpty(t, progress)

	cachedAgain, ok, err := store.CachedInfo(ctx, modelstore.KeyDecoder)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(len("downloaded-decoder")), cachedAgain)
}

func TestIsCachedFalseWhenAbsent(t *testing.T) {
	backend, err := modelstore.NewDiskBackend(t.TempDir())
	require.NoError(t, err)
	store := modelstore.New(backend)

	cached, err := store.IsCached(context.Background(), modelstore.KeyEncoder)
	require.NoError(t, err)
	require.False(t, cached)
}

// flakyBackend lets tests inject Get/Put failures without a real disk or
// network dependency.
type flakyBackend struct {
	modelstore.CacheBackend
	failGet bool
	failPut bool
}

func (b *flakyBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if b.failGet {
		return nil, false, errors.New("boom: cache unavailable")
	}
	return b.CacheBackend.Get(ctx, key)
}

func (b *flakyBackend) Put(ctx context.Context, key string, data []byte) error {
	if b.failPut {
		return errors.New("boom: cache unavailable")
	}
	return b.CacheBackend.Put(ctx, key, data)
}

func TestLoadAllFallsBackToNetworkOnCacheReadError(t *testing.T) {
	disk, err := modelstore.NewDiskBackend(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, disk.Put(ctx, modelstore.KeyEncoder, []byte("cached-encoder")))

	backend := &flakyBackend{CacheBackend: disk, failGet: true}
	store := modelstore.New(backend)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "downloaded-encoder")
	}))
	defer server.Close()

	sources := []modelstore.Source{
		{Key: modelstore.KeyEncoder, URL: server.URL, ExpectedSize: int64(len("downloaded-encoder"))},
	}

	artifacts, err := store.LoadAll(ctx, sources, nil)
	require.NoError(t, err)
	require.Equal(t, []byte("downloaded-encoder"), artifacts[modelstore.KeyEncoder])
}

func TestLoadAllSucceedsDespiteCacheWriteError(t *testing.T) {
	disk, err := modelstore.NewDiskBackend(t.TempDir())
	require.NoError(t, err)
	backend := &flakyBackend{CacheBackend: disk, failPut: true}
	store := modelstore.New(backend)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "downloaded-decoder")
	}))
	defer server.Close()

	sources := []modelstore.Source{
		{Key: modelstore.KeyDecoder, URL: server.URL, ExpectedSize: int64(len("downloaded-decoder"))},
	}

	artifacts, err := store.LoadAll(context.Background(), sources, nil)
	require.NoError(t, err)
	require.Equal(t, []byte("downloaded-decoder"), artifacts[modelstore.KeyDecoder])

	// The write failed, so the artifact must not have been persisted.
	cached, err := store.IsCached(context.Background(), modelstore.KeyDecoder)
	require.NoError(t, err)
	require.False(t, cached)
}

func TestClearCacheDeletesKnownKeys(t *testing.T) {
	backend, err := modelstore.NewDiskBackend(t.TempDir())
	require.NoError(t, err)
	store := modelstore.New(backend)

	ctx := context.Background()
	require.NoError(t, backend.Put(ctx, modelstore.KeyEncoder, []byte("x")))
	require.NoError(t, backend.Put(ctx, modelstore.KeyDecoder, []byte("y")))

	require.NoError(t, store.ClearCache(ctx))

	for _, key := range []string{modelstore.KeyEncoder, modelstore.KeyDecoder} {
		cached, err := store.IsCached(ctx, key)
		require.NoError(t, err)
		require.False(t, cached)
	}
}
