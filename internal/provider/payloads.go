package provider

import "github.com/your-org/sam2engine/internal/tensorutil"

// Payload types carried by workerproto.Request/Response for each Kind.
// Keeping them here (rather than inline `any` juggling in provider.go)
// mirrors the teacher's convention of one small struct per message
// variant (see internal/models.FrameTask and friends in the task queue).

type InitializePayload struct {
	EncoderBytes []byte
	DecoderBytes []byte
}

type InitializeResult struct {
	ProviderUsed string
}

type EncodePayload struct {
	ImageId string
	RGBA    []byte
	Width   int
	Height  int
}

type DecodePayload struct {
	ImageId            string
	Points              []tensorutil.ScaledPoint
	PreviousMaskLogits  []float32
}

type ClearCachePayload struct {
	ImageId string // empty means clear all
}

type StatusResult struct {
	State string
}
