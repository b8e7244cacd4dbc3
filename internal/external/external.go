// Package external declares the collaborator interfaces the spec's
// Orchestrator depends on but does not implement: render.offscreen (draw
// a mask preview onto a target surface) and select.byMask (apply a mask
// to the host application's active selection). Both are out of scope for
// this service (spec's Non-goals) — the interfaces exist so the
// Orchestrator can be constructed and tested without a concrete renderer
// or selection host wired in.
package external

import (
	"context"
	"image"

	"github.com/your-org/sam2engine/internal/tensorutil"
)

// Renderer draws a mask preview onto whatever offscreen surface the host
// application maintains (browser analogue: render.offscreen).
type Renderer interface {
	RenderMaskPreview(ctx context.Context, imageId string, mask *image.RGBA) error
}

// SelectionSink applies a finalized mask to the host application's active
// selection (browser analogue: select.byMask).
type SelectionSink interface {
	ApplyMask(ctx context.Context, imageId string, op tensorutil.SelectionOp, canvas *image.RGBA) error
}

// NoopRenderer and NoopSelectionSink satisfy the interfaces for
// deployments where no host collaborator is wired in (e.g. running this
// service purely as a segmentation API with no attached canvas).
type NoopRenderer struct{}

func (NoopRenderer) RenderMaskPreview(ctx context.Context, imageId string, mask *image.RGBA) error {
	return nil
}

type NoopSelectionSink struct{}

func (NoopSelectionSink) ApplyMask(ctx context.Context, imageId string, op tensorutil.SelectionOp, canvas *image.RGBA) error {
	return nil
}
