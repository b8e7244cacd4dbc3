package workerproto

import "errors"

var (
	// ErrAborted is returned for requests dropped by Abort before dispatch.
	ErrAborted = errors.New("workerproto: request aborted")

	// ErrShimClosed is returned for requests submitted after Close, or
	// still queued when Close drains the queue.
	ErrShimClosed = errors.New("workerproto: shim closed")
)
