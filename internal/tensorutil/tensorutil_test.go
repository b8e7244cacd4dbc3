package tensorutil_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/your-org/sam2engine/internal/tensorutil"
)

func TestScalePoint(t *testing.T) {
	x, y := tensorutil.ScalePoint(512, 256, 1024, 512)
	require.InDelta(t, 512.0, x, 0.001)
	require.InDelta(t, 512.0, y, 0.001)
}

func TestArgmaxIoUBreaksTiesToSmallestIndex(t *testing.T) {
	require.Equal(t, 1, tensorutil.ArgmaxIoU([]float32{0.1, 0.9, 0.2}))
	require.Equal(t, 0, tensorutil.ArgmaxIoU([]float32{0.5, 0.5, 0.5}))
	require.Equal(t, 0, tensorutil.ArgmaxIoU([]float32{0.9}))
}

func TestMakePointCoordsAndLabelsTensors(t *testing.T) {
	points := []tensorutil.ScaledPoint{
		{X: 1, Y: 2, Label: tensorutil.LabelForeground},
		{X: 3, Y: 4, Label: tensorutil.LabelBackground},
	}

	coords := tensorutil.MakePointCoordsTensor(points)
	require.Equal(t, []float32{1, 2, 3, 4}, coords)

	labels := tensorutil.MakePointLabelsTensor(points)
	require.Equal(t, []float32{1, 0}, labels)
}

func TestMakeMaskInputTensorZerosWhenNoPrevious(t *testing.T) {
	out := tensorutil.MakeMaskInputTensor(nil)
	require.Len(t, out, tensorutil.MaskLogitsSize*tensorutil.MaskLogitsSize)
	for _, v := range out {
		require.Zero(t, v)
	}
}

func TestMakeHasMaskTensor(t *testing.T) {
	require.Equal(t, []float32{1.0}, tensorutil.MakeHasMaskTensor(true))
	require.Equal(t, []float32{0.0}, tensorutil.MakeHasMaskTensor(false))
}

func TestProcessMaskLogitsThresholds(t *testing.T) {
	const n = tensorutil.MaskLogitsSize * tensorutil.MaskLogitsSize
	logits := make([]float32, 2*n)
	logits[0] = 1.0  // above threshold
	logits[1] = -1.0 // below threshold

	mask := tensorutil.ProcessMaskLogits(logits, 2, 0, 0.0)
	require.Equal(t, byte(255), mask[0])
	require.Equal(t, byte(0), mask[1])
}

func TestSliceLogitsExtractsRequestedPlane(t *testing.T) {
	const n = tensorutil.MaskLogitsSize * tensorutil.MaskLogitsSize
	logits := make([]float32, 2*n)
	logits[n] = 42.0

	sliced := tensorutil.SliceLogits(logits, 1)
	require.Len(t, sliced, n)
	require.Equal(t, float32(42.0), sliced[0])
}

func TestResizeMaskBinaryRethresholds(t *testing.T) {
	mask := make([]byte, 4*4)
	for i := range mask {
		mask[i] = 255
	}
	resized := tensorutil.ResizeMaskBinary(mask, 4, 4, 8, 8)
	require.Len(t, resized, 64)
	for _, v := range resized {
		require.Equal(t, byte(255), v)
	}
}

func TestResizeMaskSmoothReturnsUnitRange(t *testing.T) {
	mask := make([]byte, 4*4)
	for i := range mask {
		mask[i] = 255
	}
	resized := tensorutil.ResizeMaskSmooth(mask, 4, 4, 8, 8)
	require.Len(t, resized, 64)
	for _, v := range resized {
		require.InDelta(t, 1.0, v, 0.01)
	}
}

func TestBuildSelectionCanvasFromBinaryMask(t *testing.T) {
	mask := make([]byte, 4*4)
	mask[0] = 255

	canvas := tensorutil.BuildSelectionCanvas(mask, nil, 4, 4, 0.5, 4, 4)
	require.Equal(t, uint8(255), canvas.Pix[3]) // alpha of first pixel
	require.Equal(t, uint8(0), canvas.Pix[7])   // alpha of second pixel
}
