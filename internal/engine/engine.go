// Package engine wraps the two SAM2 ONNX Runtime sessions (image encoder,
// prompt decoder) behind the operations the spec's Inference Engine
// component (C4) names: initialize, encode, decode, segment, cache
// clearing, and dispose. It follows the teacher's AdvancedSession wiring
// for the encoder, whose input/output shapes are fixed, and a
// DynamicAdvancedSession for the decoder, whose point-prompt count varies
// per call.
package engine

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/sam2engine/internal/observability"
	"github.com/your-org/sam2engine/internal/tensorutil"
)

// Provider identifies which execution provider backed a session.
type Provider string

const (
	ProviderGPU Provider = "gpu"
	ProviderCPU Provider = "cpu"
)

// EncodeResult is the outcome of Encode.
type EncodeResult struct {
	EncodeTimeMs float64
}

// DecodeResult is the outcome of Decode/Segment: one mask candidate per
// output channel plus the IoU-selected index (spec §4.1 step 5).
type DecodeResult struct {
	Masks         [][]byte // each is a 256x256 binary mask (threshold applied)
	IoUScores     []float32
	SelectedIndex int
	// SelectedLogits are the unthresholded logits for the selected mask,
	// suitable for feeding back as mask_input on the next decode call.
	SelectedLogits []float32
	DecodeTimeMs   float64
}

// Options configures Initialize.
type Options struct {
	PreferredProvider Provider // "gpu" tries CUDA first, falling back to CPU
	IntraOpThreads    int
	InterOpThreads    int
	Verbose           bool
	// NumCandidates is the decoder's exported mask-candidate count (K),
	// which must match the loaded decoder model's actual output shape
	// (spec §4.1/§6 document K as fixed by export, typically 3-4; §8
	// exercises a degenerate K=1 decoder). Defaults to 4 if unset.
	NumCandidates int
}

// defaultNumCandidates is used when Options.NumCandidates is left zero, so
// existing callers built before this field existed keep working unchanged.
const defaultNumCandidates = 4

type cachedEmbedding struct {
	data []float32
}

// Engine owns the encoder and decoder ONNX Runtime sessions and the
// per-image embedding cache (spec §4.1, §5: single in-flight inference at
// a time per engine instance — callers serialize through the provider).
type Engine struct {
	mu sync.Mutex

	encoderSession *ort.AdvancedSession
	encoderInput   *ort.Tensor[float32]
	encoderOutput  *ort.Tensor[float32]

	decoderSession *ort.DynamicAdvancedSession
	numCandidates  int

	provider Provider
	disposed bool

	embeddings map[string]cachedEmbedding // imageId -> embedding
}

// New returns an uninitialized Engine. Call Initialize before use.
func New() *Engine {
	return &Engine{embeddings: make(map[string]cachedEmbedding)}
}

// embeddingElems is the flattened size of the encoder's [1,256,64,64]
// image embedding output (spec §4.1: low-resolution dense feature map).
const (
	embeddingChannels = 256
	embeddingSide     = 64
	embeddingElems    = embeddingChannels * embeddingSide * embeddingSide
)

// Initialize loads the encoder and decoder ONNX models and creates their
// sessions, trying the preferred execution provider first and falling back
// to CPU non-fatally (spec §4.1, §9: GPU unavailability is not an error).
func (e *Engine) Initialize(ctx context.Context, encoderPath, decoderPath string, opts Options) (Provider, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return "", ErrDisposed
	}
	if e.encoderSession != nil {
		return e.provider, nil // already initialized; idempotent
	}

	numCandidates := opts.NumCandidates
	if numCandidates <= 0 {
		numCandidates = defaultNumCandidates
	}

	sessOpts, err := ort.NewSessionOptions()
	if err != nil {
		return "", fmt.Errorf("%w: create session options: %v", ErrInit, err)
	}
	defer sessOpts.Destroy()

	if opts.IntraOpThreads > 0 {
		if err := sessOpts.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			return "", fmt.Errorf("%w: set intra_op_threads: %v", ErrInit, err)
		}
	}
	if opts.InterOpThreads > 0 {
		if err := sessOpts.SetInterOpNumThreads(opts.InterOpThreads); err != nil {
			return "", fmt.Errorf("%w: set inter_op_threads: %v", ErrInit, err)
		}
	}

	provider := ProviderCPU
	if opts.PreferredProvider == ProviderGPU {
		cudaOpts, cerr := ort.NewCUDAProviderOptions()
		if cerr == nil {
			_ = cudaOpts.Update(map[string]string{"device_id": "0"})
			if aerr := sessOpts.AppendExecutionProviderCUDA(cudaOpts); aerr == nil {
				provider = ProviderGPU
			}
			cudaOpts.Destroy()
		}
		// CUDA unavailable: fall through to CPU, not an error.
	}

	inputShape := ort.NewShape(1, 3, tensorutil.EncoderInputSize, tensorutil.EncoderInputSize)
	encInput, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return "", fmt.Errorf("%w: create encoder input tensor: %v", ErrInit, err)
	}

	outputShape := ort.NewShape(1, embeddingChannels, embeddingSide, embeddingSide)
	encOutput, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		encInput.Destroy()
		return "", fmt.Errorf("%w: create encoder output tensor: %v", ErrInit, err)
	}

	encSession, err := ort.NewAdvancedSession(encoderPath,
		[]string{"image"},
		[]string{"image_embeddings"},
		[]ort.Value{encInput},
		[]ort.Value{encOutput},
		sessOpts,
	)
	if err != nil {
		encInput.Destroy()
		encOutput.Destroy()
		return "", fmt.Errorf("%w: create encoder session: %v", ErrInit, err)
	}

	decSession, err := ort.NewDynamicAdvancedSession(decoderPath,
		[]string{"image_embeddings", "point_coords", "point_labels", "mask_input", "has_mask_input"},
		[]string{"low_res_masks", "iou_predictions"},
		sessOpts,
	)
	if err != nil {
		encSession.Destroy()
		encInput.Destroy()
		encOutput.Destroy()
		return "", fmt.Errorf("%w: create decoder session: %v", ErrInit, err)
	}

	e.encoderSession = encSession
	e.encoderInput = encInput
	e.encoderOutput = encOutput
	e.decoderSession = decSession
	e.numCandidates = numCandidates
	e.provider = provider

	return provider, nil
}

// InitializeFromBytes stages encoder/decoder bytes (as fetched by the
// Model Store) to temp files and delegates to Initialize, since ONNX
// Runtime sessions are loaded by path (spec §4.6: the engine doesn't care
// where the bytes came from, only that they're on disk by the time the
// session is created).
func (e *Engine) InitializeFromBytes(ctx context.Context, encoderBytes, decoderBytes []byte, opts Options) (Provider, error) {
	encoderPath, err := stageTempModel("sam2-encoder-*.onnx", encoderBytes)
	if err != nil {
		return "", fmt.Errorf("%w: stage encoder: %v", ErrModelIO, err)
	}
	defer os.Remove(encoderPath)

	decoderPath, err := stageTempModel("sam2-decoder-*.onnx", decoderBytes)
	if err != nil {
		return "", fmt.Errorf("%w: stage decoder: %v", ErrModelIO, err)
	}
	defer os.Remove(decoderPath)

	return e.Initialize(ctx, encoderPath, decoderPath, opts)
}

func stageTempModel(pattern string, data []byte) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// Encode runs the image encoder over an RGBA image and caches the resulting
// embedding under imageId (spec §4.1 step 1-2, §4.6 per-image cache).
func (e *Engine) Encode(ctx context.Context, imageId string, rgba []byte, w, h int) (EncodeResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return EncodeResult{}, ErrDisposed
	}
	if e.encoderSession == nil {
		return EncodeResult{}, fmt.Errorf("%w: engine not initialized", ErrInit)
	}

	if _, ok := e.embeddings[imageId]; ok {
		observability.EmbeddingCacheHits.WithLabelValues("hit").Inc()
		return EncodeResult{EncodeTimeMs: 0}, nil
	}
	observability.EmbeddingCacheHits.WithLabelValues("miss").Inc()

	start := time.Now()

	pixels := tensorutil.PreprocessImage(rgba, w, h)
	copy(e.encoderInput.GetData(), pixels)

	if err := e.encoderSession.Run(); err != nil {
		return EncodeResult{}, fmt.Errorf("%w: run encoder: %v", ErrModelIO, err)
	}

	data := make([]float32, embeddingElems)
	copy(data, e.encoderOutput.GetData())
	e.embeddings[imageId] = cachedEmbedding{data: data}

	elapsed := time.Since(start)
	observability.InferenceDuration.WithLabelValues("encode").Observe(elapsed.Seconds())

	return EncodeResult{EncodeTimeMs: float64(elapsed.Microseconds()) / 1000.0}, nil
}

// Decode runs the prompt decoder against a previously cached embedding
// (spec §4.1 steps 3-6). previousMaskLogits, when non-nil, is fed as
// mask_input for iterative refinement.
func (e *Engine) Decode(ctx context.Context, imageId string, points []tensorutil.ScaledPoint, previousMaskLogits []float32) (DecodeResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return DecodeResult{}, ErrDisposed
	}
	if e.decoderSession == nil {
		return DecodeResult{}, fmt.Errorf("%w: engine not initialized", ErrInit)
	}

	cached, ok := e.embeddings[imageId]
	if !ok {
		return DecodeResult{}, ErrNotEncoded
	}

	start := time.Now()

	embedTensor, err := ort.NewTensor(ort.NewShape(1, embeddingChannels, embeddingSide, embeddingSide), cached.data)
	if err != nil {
		return DecodeResult{}, fmt.Errorf("%w: embedding tensor: %v", ErrModelIO, err)
	}
	defer embedTensor.Destroy()

	coords := tensorutil.MakePointCoordsTensor(points)
	coordsTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(points)), 2), coords)
	if err != nil {
		return DecodeResult{}, fmt.Errorf("%w: point coords tensor: %v", ErrModelIO, err)
	}
	defer coordsTensor.Destroy()

	labels := tensorutil.MakePointLabelsTensor(points)
	labelsTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(points))), labels)
	if err != nil {
		return DecodeResult{}, fmt.Errorf("%w: point labels tensor: %v", ErrModelIO, err)
	}
	defer labelsTensor.Destroy()

	maskIn := tensorutil.MakeMaskInputTensor(previousMaskLogits)
	maskTensor, err := ort.NewTensor(ort.NewShape(1, 1, tensorutil.MaskLogitsSize, tensorutil.MaskLogitsSize), maskIn)
	if err != nil {
		return DecodeResult{}, fmt.Errorf("%w: mask input tensor: %v", ErrModelIO, err)
	}
	defer maskTensor.Destroy()

	hasMask := tensorutil.MakeHasMaskTensor(len(previousMaskLogits) > 0)
	hasMaskTensor, err := ort.NewTensor(ort.NewShape(1, 1), hasMask)
	if err != nil {
		return DecodeResult{}, fmt.Errorf("%w: has_mask tensor: %v", ErrModelIO, err)
	}
	defer hasMaskTensor.Destroy()

	numCandidates := e.numCandidates
	logitsOut := make([]float32, numCandidates*tensorutil.MaskLogitsSize*tensorutil.MaskLogitsSize)
	logitsTensor, err := ort.NewTensor(ort.NewShape(1, numCandidates, tensorutil.MaskLogitsSize, tensorutil.MaskLogitsSize), logitsOut)
	if err != nil {
		return DecodeResult{}, fmt.Errorf("%w: logits output tensor: %v", ErrModelIO, err)
	}
	defer logitsTensor.Destroy()

	iouOut := make([]float32, numCandidates)
	iouTensor, err := ort.NewTensor(ort.NewShape(1, numCandidates), iouOut)
	if err != nil {
		return DecodeResult{}, fmt.Errorf("%w: iou output tensor: %v", ErrModelIO, err)
	}
	defer iouTensor.Destroy()

	err = e.decoderSession.Run(
		[]ort.ArbitraryTensor{embedTensor, coordsTensor, labelsTensor, maskTensor, hasMaskTensor},
		[]ort.ArbitraryTensor{logitsTensor, iouTensor},
	)
	if err != nil {
		return DecodeResult{}, fmt.Errorf("%w: run decoder: %v", ErrModelIO, err)
	}

	scores := iouTensor.GetData()
	selected := tensorutil.ArgmaxIoU(scores)

	masks := make([][]byte, numCandidates)
	rawLogits := logitsTensor.GetData()
	for i := 0; i < numCandidates; i++ {
		masks[i] = tensorutil.ProcessMaskLogits(rawLogits, numCandidates, i, 0.0)
	}

	elapsed := time.Since(start)
	observability.InferenceDuration.WithLabelValues("decode").Observe(elapsed.Seconds())
	observability.MasksProduced.WithLabelValues(fmt.Sprintf("%d", selected)).Inc()

	return DecodeResult{
		Masks:          masks,
		IoUScores:      append([]float32(nil), scores...),
		SelectedIndex:  selected,
		SelectedLogits: tensorutil.SliceLogits(rawLogits, selected),
		DecodeTimeMs:   float64(elapsed.Microseconds()) / 1000.0,
	}, nil
}

// Segment runs Encode followed by Decode with the given point prompts and
// no previous mask, the convenience path the spec describes for one-shot segmentation (spec
// §4.1, "segment").
func (e *Engine) Segment(ctx context.Context, imageId string, rgba []byte, w, h int, points []tensorutil.ScaledPoint) (EncodeResult, DecodeResult, error) {
	enc, err := e.Encode(ctx, imageId, rgba, w, h)
	if err != nil {
		return EncodeResult{}, DecodeResult{}, err
	}
	dec, err := e.Decode(ctx, imageId, points, nil)
	if err != nil {
		return enc, DecodeResult{}, err
	}
	return enc, dec, nil
}

// ClearImageCache drops the cached embedding for one image.
func (e *Engine) ClearImageCache(imageId string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.embeddings, imageId)
}

// ClearAllCaches drops every cached embedding.
func (e *Engine) ClearAllCaches() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.embeddings = make(map[string]cachedEmbedding)
}

// Dispose releases the ONNX Runtime sessions and tensors. Safe to call
// more than once.
func (e *Engine) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return
	}
	e.disposed = true

	if e.decoderSession != nil {
		e.decoderSession.Destroy()
		e.decoderSession = nil
	}
	if e.encoderSession != nil {
		e.encoderSession.Destroy()
		e.encoderSession = nil
	}
	if e.encoderInput != nil {
		e.encoderInput.Destroy()
		e.encoderInput = nil
	}
	if e.encoderOutput != nil {
		e.encoderOutput.Destroy()
		e.encoderOutput = nil
	}
	e.embeddings = nil
}
