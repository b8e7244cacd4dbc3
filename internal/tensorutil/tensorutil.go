// Package tensorutil provides the pure image/tensor helpers shared by the
// inference engine and the provider: RGBA<->tensor conversion, coordinate
// rescaling, mask resizing (binary and smooth), logits thresholding, and
// IoU-based candidate selection. None of it touches ONNX Runtime directly —
// it operates on plain float32/byte slices so it can be unit tested without
// a model loaded.
package tensorutil

import (
	"image"
	"image/color"
	"math"

	"github.com/nfnt/resize"
)

// EncoderInputSize is the SAM2 encoder's square input resolution (spec §4.1, §6).
const EncoderInputSize = 1024

// MaskLogitsSize is the decoder's low-resolution mask plane side length.
const MaskLogitsSize = 256

// PreprocessImage resizes an RGBA buffer to EncoderInputSize×EncoderInputSize
// and packs it into a channel-first [1,3,S,S] float32 tensor scaled to [0,1].
// No further normalization is applied — that is baked into the exported
// encoder weights (spec §4.1).
func PreprocessImage(rgba []byte, w, h int) []float32 {
	img := rgbaBytesToImage(rgba, w, h)
	resized := resize.Resize(EncoderInputSize, EncoderInputSize, img, resize.Bilinear)

	const s = EncoderInputSize
	planeSize := s * s
	out := make([]float32, 3*planeSize)

	rgbaImg, ok := resized.(*image.RGBA)
	if !ok {
		rgbaImg = toRGBA(resized)
	}

	for y := 0; y < s; y++ {
		for x := 0; x < s; x++ {
			off := rgbaImg.PixOffset(x, y)
			pix := rgbaImg.Pix[off : off+3 : off+3]
			idx := y*s + x
			out[idx] = float32(pix[0]) / 255.0
			out[planeSize+idx] = float32(pix[1]) / 255.0
			out[2*planeSize+idx] = float32(pix[2]) / 255.0
		}
	}
	return out
}

func rgbaBytesToImage(rgba []byte, w, h int) *image.RGBA {
	img := &image.RGBA{
		Pix:    rgba,
		Stride: w * 4,
		Rect:   image.Rect(0, 0, w, h),
	}
	return img
}

func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(x, y, img.At(x, y))
		}
	}
	return dst
}

// ScalePoint rescales a pixel coordinate from the original image space
// (W×H) into the encoder's S×S space (spec §4.1, §4.5).
func ScalePoint(x, y float32, w, h int) (float32, float32) {
	return x * float32(EncoderInputSize) / float32(w), y * float32(EncoderInputSize) / float32(h)
}

// PointLabel is the decoder's prompt-point foreground/background label.
type PointLabel float32

const (
	LabelBackground PointLabel = 0.0
	LabelForeground PointLabel = 1.0
)

// ScaledPoint is a prompt point already rescaled to encoder space, with label.
type ScaledPoint struct {
	X, Y  float32
	Label PointLabel
}

// MakePointCoordsTensor packs scaled points into the decoder's
// [1,N,2] point_coords tensor (flattened).
func MakePointCoordsTensor(points []ScaledPoint) []float32 {
	out := make([]float32, len(points)*2)
	for i, p := range points {
		out[i*2] = p.X
		out[i*2+1] = p.Y
	}
	return out
}

// MakePointLabelsTensor packs point labels into the decoder's [1,N] point_labels tensor.
func MakePointLabelsTensor(points []ScaledPoint) []float32 {
	out := make([]float32, len(points))
	for i, p := range points {
		out[i] = float32(p.Label)
	}
	return out
}

// MakeMaskInputTensor packs the previous decode's selected-mask logits (or
// zeros, if none) into the decoder's [1,1,256,256] mask_input tensor.
func MakeMaskInputTensor(prevLogits []float32) []float32 {
	const n = MaskLogitsSize * MaskLogitsSize
	out := make([]float32, n)
	if len(prevLogits) == n {
		copy(out, prevLogits)
	}
	return out
}

// MakeHasMaskTensor packs the decoder's [1,1] has_mask_input flag.
func MakeHasMaskTensor(has bool) []float32 {
	if has {
		return []float32{1.0}
	}
	return []float32{0.0}
}

// ProcessMaskLogits slices the index-th 256x256 plane out of a [1,K,256,256]
// logits tensor and thresholds it into a binary (0/255) mask at 256x256.
func ProcessMaskLogits(logits []float32, k, index int, threshold float32) []byte {
	const n = MaskLogitsSize * MaskLogitsSize
	out := make([]byte, n)
	base := index * n
	for i := 0; i < n; i++ {
		if logits[base+i] > threshold {
			out[i] = 255
		}
	}
	return out
}

// SliceLogits extracts the index-th 256x256 logits plane (unthresholded)
// out of a [1,K,256,256] tensor, for storage as "previous mask logits".
func SliceLogits(logits []float32, index int) []float32 {
	const n = MaskLogitsSize * MaskLogitsSize
	base := index * n
	out := make([]float32, n)
	copy(out, logits[base:base+n])
	return out
}

// ArgmaxIoU returns the index of the highest IoU score, breaking ties by
// the smallest index (spec §4.1 step 5, §8 invariant 2).
func ArgmaxIoU(scores []float32) int {
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	return best
}

// ResizeMaskBinary upscales a binary (0/255) mask to target dimensions using
// bilinear interpolation, then re-thresholds at 127 to keep hard edges —
// intended for the selection path (spec §4.5, §9).
func ResizeMaskBinary(mask []byte, mw, mh, tw, th int) []byte {
	gray := maskToGray(mask, mw, mh)
	resized := resize.Resize(uint(tw), uint(th), gray, resize.Bilinear)
	out := make([]byte, tw*th)
	g := resized.(*image.Gray)
	for y := 0; y < th; y++ {
		for x := 0; x < tw; x++ {
			v := g.GrayAt(x, y).Y
			if v > 127 {
				out[y*tw+x] = 255
			}
		}
	}
	return out
}

// ResizeMaskSmooth upscales a binary (0/255) mask to target dimensions using
// bilinear interpolation without re-thresholding, returning float32 values
// in [0,1] — intended for the preview/visualization path (spec §4.5, §9).
func ResizeMaskSmooth(mask []byte, mw, mh, tw, th int) []float32 {
	gray := maskToGray(mask, mw, mh)
	resized := resize.Resize(uint(tw), uint(th), gray, resize.Bilinear)
	out := make([]float32, tw*th)
	g := resized.(*image.Gray)
	for y := 0; y < th; y++ {
		for x := 0; x < tw; x++ {
			out[y*tw+x] = float32(g.GrayAt(x, y).Y) / 255.0
		}
	}
	return out
}

func maskToGray(mask []byte, w, h int) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	copy(g.Pix, mask)
	return g
}

// SelectionOp mirrors the downstream select.byMask operation kind (spec §6).
type SelectionOp string

const (
	SelectionAdd    SelectionOp = "add"
	SelectionRemove SelectionOp = "remove"
	SelectionSet    SelectionOp = "set"
)

// BuildSelectionCanvas builds a W×H RGBA canvas where selected pixels are
// fully opaque and the rest transparent, scaling to targetW×targetH if those
// differ from the mask's own dimensions (spec §4.5 applyMaskToSelection).
// When logits are supplied, the mask is derived by sigmoid-thresholding the
// logits at `threshold` (spec §9, open question on applyMaskToSelection);
// when logits are nil, the binary mask is used as-is and threshold is ignored.
func BuildSelectionCanvas(mask []byte, logits []float32, mw, mh int, threshold float32, targetW, targetH int) *image.RGBA {
	var binary []byte
	if logits != nil && len(logits) == mw*mh {
		binary = make([]byte, mw*mh)
		for i, v := range logits {
			if sigmoid(v) > threshold {
				binary[i] = 255
			}
		}
	} else {
		binary = mask
	}

	if mw != targetW || mh != targetH {
		binary = ResizeMaskBinary(binary, mw, mh, targetW, targetH)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	for i := 0; i < targetW*targetH; i++ {
		a := uint8(0)
		if binary[i] != 0 {
			a = 255
		}
		canvas.Set(i%targetW, i/targetW, color.RGBA{R: 255, G: 255, B: 255, A: a})
	}
	return canvas
}

func sigmoid(x float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(-float64(x))))
}
