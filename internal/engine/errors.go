package engine

import "errors"

// Domain error kinds surfaced by the inference engine (spec §7).
var (
	// ErrNotEncoded is returned by Decode/Segment when no embedding has been
	// computed yet for the given image.
	ErrNotEncoded = errors.New("engine: image has not been encoded")

	// ErrInit wraps failures standing up the ONNX Runtime environment or
	// either session (encoder or decoder).
	ErrInit = errors.New("engine: initialization failed")

	// ErrModelIO wraps failures staging model bytes to disk, building
	// input/output tensors, or running either session.
	ErrModelIO = errors.New("engine: model i/o failed")

	// ErrDisposed is returned by any call made after Dispose.
	ErrDisposed = errors.New("engine: engine has been disposed")
)
