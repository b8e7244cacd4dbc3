// Package modelstore implements the Model Store component (C2): a
// durable key/value cache for the two SAM2 ONNX artifacts (encoder,
// decoder), fetched over HTTP with cache-first lookup and streamed
// download progress. It is the server-side analogue of the browser's
// IndexedDB-backed model cache — CacheBackend stands in for IndexedDB,
// with disk and MinIO implementations (spec §4.6, §6).
package modelstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/your-org/sam2engine/internal/observability"
)

// Domain error kinds (spec §7).
var (
	ErrNetwork = errors.New("modelstore: network error")
	ErrAborted = errors.New("modelstore: download aborted")
	ErrCache   = errors.New("modelstore: cache error")
)

// Artifact names keying both the cache backend and the download config.
const (
	KeyEncoder = "encoder"
	KeyDecoder = "decoder"
)

// CacheBackend is a durable key/value store for model bytes. Disk and
// MinIO implementations are provided; Get reports ok=false (no error)
// when the key is simply absent, matching IndexedDB's miss semantics.
type CacheBackend interface {
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// Source describes where to fetch an artifact from and how large it is
// expected to be, for progress aggregation (spec §4.6).
type Source struct {
	Key          string
	URL          string
	ExpectedSize int64
}

// ProgressEvent reports cumulative download progress across all sources
// being loaded together (spec §4.6: overall progress aggregation).
type ProgressEvent struct {
	Key            string
	BytesLoaded    int64
	BytesTotal     int64
	OverallLoaded  int64
	OverallTotal   int64
	FromCache      bool
}

// Artifacts holds the loaded encoder and decoder model bytes.
type Artifacts struct {
	Encoder []byte
	Decoder []byte
}

// Store coordinates cache lookups and network downloads for model
// artifacts.
type Store struct {
	backend CacheBackend
	client  *http.Client
}

func New(backend CacheBackend) *Store {
	return &Store{
		backend: backend,
		client:  &http.Client{Timeout: 10 * time.Minute},
	}
}

// TotalExpectedBytes sums the expected sizes of the given sources, used by
// callers to size an overall progress bar before any bytes have moved.
func TotalExpectedBytes(sources []Source) int64 {
	var total int64
	for _, s := range sources {
		total += s.ExpectedSize
	}
	return total
}

// IsCached reports whether an artifact is already present in the cache
// backend.
func (s *Store) IsCached(ctx context.Context, key string) (bool, error) {
	data, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCache, err)
	}
	return ok && len(data) > 0, nil
}

// CachedInfo returns the byte size of a cached artifact, or ok=false if
// absent.
func (s *Store) CachedInfo(ctx context.Context, key string) (size int64, ok bool, err error) {
	data, present, err := s.backend.Get(ctx, key)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrCache, err)
	}
	if !present {
		return 0, false, nil
	}
	return int64(len(data)), true, nil
}

// LoadAll fetches every source, preferring the cache, and reports
// aggregated progress across all of them as bytes arrive (spec §4.6). ctx
// cancellation surfaces as ErrAborted.
func (s *Store) LoadAll(ctx context.Context, sources []Source, onProgress func(ProgressEvent)) (map[string][]byte, error) {
	overallTotal := TotalExpectedBytes(sources)
	var overallLoaded int64

	results := make(map[string][]byte, len(sources))

	for _, src := range sources {
		cached, ok, err := s.backend.Get(ctx, src.Key)
		if err != nil {
			// A cache read failure falls back to network rather than
			// failing the load outright — spec §4.6 treats cache errors
			// as logged-and-bypassed, never fatal.
			slog.Warn("modelstore: cache read failed, falling back to network", "key", src.Key, "error", err)
			ok = false
		}
		if ok {
			results[src.Key] = cached
			overallLoaded += int64(len(cached))
			if onProgress != nil {
				onProgress(ProgressEvent{
					Key: src.Key, BytesLoaded: int64(len(cached)), BytesTotal: int64(len(cached)),
					OverallLoaded: overallLoaded, OverallTotal: overallTotal, FromCache: true,
				})
			}
			observability.ModelDownloadBytes.WithLabelValues("cache").Add(float64(len(cached)))
			continue
		}

		data, err := s.download(ctx, src, func(loaded int64) {
			if onProgress != nil {
				onProgress(ProgressEvent{
					Key: src.Key, BytesLoaded: loaded, BytesTotal: src.ExpectedSize,
					OverallLoaded: overallLoaded + loaded, OverallTotal: overallTotal, FromCache: false,
				})
			}
		})
		if err != nil {
			return nil, err
		}

		overallLoaded += int64(len(data))
		if err := s.backend.Put(ctx, src.Key, data); err != nil {
			// Writing to cache is best-effort: the artifact was already
			// downloaded successfully, so a cache write failure is logged
			// and bypassed rather than failing the load (spec §4.6, §7).
			slog.Warn("modelstore: cache write failed, continuing without caching", "key", src.Key, "error", err)
		}
		results[src.Key] = data
	}

	return results, nil
}

func (s *Store) download(ctx context.Context, src Source, onBytes func(loaded int64)) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrNetwork, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ErrAborted
		}
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %s for %s", ErrNetwork, resp.Status, src.URL)
	}

	buf := make([]byte, 0, src.ExpectedSize)
	chunk := make([]byte, 256*1024)
	var loaded int64
	for {
		n, rerr := resp.Body.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			loaded += int64(n)
			observability.ModelDownloadBytes.WithLabelValues("network").Add(float64(n))
			onBytes(loaded)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil, ErrAborted
			}
			return nil, fmt.Errorf("%w: %v", ErrNetwork, rerr)
		}
	}

	return buf, nil
}

// ClearCache deletes all known artifact keys from the cache backend.
func (s *Store) ClearCache(ctx context.Context) error {
	for _, key := range []string{KeyEncoder, KeyDecoder} {
		if err := s.backend.Delete(ctx, key); err != nil {
			return fmt.Errorf("%w: %v", ErrCache, err)
		}
	}
	return nil
}

// DiskBackend stores artifacts as files under a directory, grounded on
// the cache-then-download-to-disk pattern used for ONNX model assets.
type DiskBackend struct {
	Dir string
}

func NewDiskBackend(dir string) (*DiskBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create cache dir: %v", ErrCache, err)
	}
	return &DiskBackend{Dir: dir}, nil
}

func (b *DiskBackend) path(key string) string {
	return filepath.Join(b.Dir, key)
}

func (b *DiskBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(b.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (b *DiskBackend) Put(ctx context.Context, key string, data []byte) error {
	tmp := b.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, b.path(key))
}

func (b *DiskBackend) Delete(ctx context.Context, key string) error {
	err := os.Remove(b.path(key))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}
