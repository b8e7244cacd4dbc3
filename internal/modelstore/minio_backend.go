package modelstore

import (
	"context"

	"github.com/your-org/sam2engine/internal/storage"
)

// MinIOBackend adapts storage.MinIOStore (the teacher's object-store
// wrapper, originally used for face snapshots) to the CacheBackend
// contract for model artifacts.
type MinIOBackend struct {
	store  *storage.MinIOStore
	prefix string
}

func NewMinIOBackend(store *storage.MinIOStore, prefix string) *MinIOBackend {
	return &MinIOBackend{store: store, prefix: prefix}
}

func (b *MinIOBackend) key(k string) string {
	if b.prefix == "" {
		return k
	}
	return b.prefix + "/" + k
}

func (b *MinIOBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return b.store.GetObject(ctx, b.key(key))
}

func (b *MinIOBackend) Put(ctx context.Context, key string, data []byte) error {
	return b.store.PutObject(ctx, b.key(key), data, "application/octet-stream")
}

func (b *MinIOBackend) Delete(ctx context.Context, key string) error {
	return b.store.DeleteObject(ctx, b.key(key))
}
