package dto

// Point is one prompt point in original-image pixel coordinates, labeled
// foreground (1) or background (0) (spec §6).
type Point struct {
	X     float32 `json:"x" binding:"required"`
	Y     float32 `json:"y" binding:"required"`
	Label int     `json:"label" binding:"oneof=0 1"`
}

// CaptureRequest starts a new session and pre-encodes an image.
type CaptureRequest struct {
	ImageId string `json:"image_id"`
	Width   int    `json:"width" binding:"required"`
	Height  int    `json:"height" binding:"required"`
	// RGBA is the raw pixel buffer, base64-encoded by gin's JSON binding
	// when the field type is []byte.
	RGBA []byte `json:"rgba" binding:"required"`
}

type CaptureResponse struct {
	ImageId      string  `json:"image_id"`
	EncodeTimeMs float64 `json:"encode_time_ms"`
}

// SegmentRequest runs the decoder against an already-captured image.
type SegmentRequest struct {
	ImageId string  `json:"image_id" binding:"required"`
	Points  []Point `json:"points" binding:"required,min=1"`
	Width   int     `json:"width" binding:"required"`
	Height  int     `json:"height" binding:"required"`
}

type SegmentResponse struct {
	ImageId       string    `json:"image_id"`
	SelectedIndex int       `json:"selected_index"`
	IoUScores     []float32 `json:"iou_scores"`
	DecodeTimeMs  float64   `json:"decode_time_ms"`
}

// ApplyMaskRequest finalizes the pending mask into the host selection.
type ApplyMaskRequest struct {
	Op string `json:"op" binding:"required,oneof=add remove set"`
}

// ProviderStatusResponse reports the C6 lifecycle state.
type ProviderStatusResponse struct {
	State string `json:"state"`
}

// ProviderInitRequest requests model loading and session initialization.
type ProviderInitRequest struct {
	PreferredProvider string `json:"preferred_provider" binding:"omitempty,oneof=gpu cpu"`
}

type ProviderInitResponse struct {
	ProviderUsed string `json:"provider_used"`
}

// ModelCacheStatusResponse reports whether each artifact is cached.
type ModelCacheStatusResponse struct {
	EncoderCached bool `json:"encoder_cached"`
	DecoderCached bool `json:"decoder_cached"`
}

// ModelDownloadInfoResponse reports expected sizes before any download starts.
type ModelDownloadInfoResponse struct {
	EncoderBytes int64 `json:"encoder_bytes"`
	DecoderBytes int64 `json:"decoder_bytes"`
	TotalBytes   int64 `json:"total_bytes"`
}

// CapabilityResponse reports the GPU capability probe's findings, so a
// caller can decide whether to request the GPU provider at all (spec §4.1
// capability detection, §9).
type CapabilityResponse struct {
	GPUAvailable  bool   `json:"gpu_available"`
	IsDiscreteGPU bool   `json:"is_discrete_gpu"`
	VRAMBytes     int64  `json:"vram_bytes"`
	IsLowVRAM     bool   `json:"is_low_vram"`
	Name          string `json:"name"`
}

// WSEvent is a WebSocket envelope mirroring eventbus.Event for delivery
// to connected dashboard/debug clients (spec's event-bus external
// surface, §4.4, §6).
type WSEvent struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// ErrorResponse is the JSON body for any failed request, carrying the
// domain error kind (spec §7) alongside a human message.
type ErrorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
