package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/your-org/sam2engine/internal/engine"
	"github.com/your-org/sam2engine/internal/tensorutil"
)

func TestEncodeBeforeInitializeReturnsErrInit(t *testing.T) {
	e := engine.New()
	_, err := e.Encode(context.Background(), "img-1", nil, 0, 0)
	require.ErrorIs(t, err, engine.ErrInit)
}

func TestDecodeBeforeInitializeReturnsErrInit(t *testing.T) {
	e := engine.New()
	_, err := e.Decode(context.Background(), "img-1", nil, nil)
	require.ErrorIs(t, err, engine.ErrInit)
}

func TestDisposeIsIdempotentAndBlocksFurtherCalls(t *testing.T) {
	e := engine.New()
	e.Dispose()
	e.Dispose() // must not panic

	_, err := e.Encode(context.Background(), "img-1", nil, 0, 0)
	require.ErrorIs(t, err, engine.ErrDisposed)

	_, err = e.Decode(context.Background(), "img-1", nil, nil)
	require.ErrorIs(t, err, engine.ErrDisposed)
}

func TestClearImageCacheAndClearAllCachesAreSafeWithoutInitialize(t *testing.T) {
	e := engine.New()
	require.NotPanics(t, func() {
		e.ClearImageCache("img-1")
		e.ClearAllCaches()
	})
}

func TestSegmentPropagatesEncodeErrorWithoutDecoding(t *testing.T) {
	e := engine.New()
	points := []tensorutil.ScaledPoint{{X: 1, Y: 1, Label: tensorutil.LabelForeground}}

	_, dec, err := e.Segment(context.Background(), "img-1", nil, 0, 0, points)
	require.ErrorIs(t, err, engine.ErrInit)
	require.Zero(t, dec.SelectedIndex)
	require.Nil(t, dec.Masks)
}
