// Package orchestrator implements the Orchestrator component (C7): the
// glue between a capture/segment/apply user flow and the Provider, event
// bus, and external render/selection collaborators (spec §4.4). It owns
// the "pending mask" state between a segment call and the caller's
// decision to apply or cancel it.
package orchestrator

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/your-org/sam2engine/internal/eventbus"
	"github.com/your-org/sam2engine/internal/external"
	"github.com/your-org/sam2engine/internal/provider"
	"github.com/your-org/sam2engine/internal/storage"
	"github.com/your-org/sam2engine/internal/tensorutil"
)

// Event names fired on the bus (spec §4.4, §6).
const (
	EventCaptured       = "sam2.captured"
	EventSegmentProgress = "sam2.segment.progress"
	EventSegmentComplete = "sam2.segment.complete"
	EventMaskApplied    = "sam2.mask.applied"
	EventMaskCancelled  = "sam2.mask.cancelled"
	EventError          = "sam2.error"
)

// pendingMask holds a decoded-but-not-yet-applied mask candidate.
type pendingMask struct {
	imageId       string
	mask          []byte // selected candidate, 256x256 binary
	logits        []float32
	origW, origH  int
}

// SegmentOutcome is returned to API callers after a successful Segment
// call (spec's decode result shaped for the wire).
type SegmentOutcome struct {
	ImageId       string
	SelectedIndex int
	IoUScores     []float32
	DecodeTimeMs  float64
}

// Orchestrator ties together session capture, segmentation, and mask
// application/cancellation, firing events for every externally observable
// transition.
type Orchestrator struct {
	bus       *eventbus.Bus
	prov      *provider.Provider
	renderer  external.Renderer
	selection external.SelectionSink
	audit     *storage.PostgresStore // optional; nil disables audit logging

	mu      sync.Mutex
	pending *pendingMask
}

func New(bus *eventbus.Bus, prov *provider.Provider, renderer external.Renderer, selection external.SelectionSink) *Orchestrator {
	return &Orchestrator{bus: bus, prov: prov, renderer: renderer, selection: selection}
}

// WithAuditLog attaches a Postgres-backed audit log that records every
// completed Segment call (spec §4.4, §6).
func (o *Orchestrator) WithAuditLog(db *storage.PostgresStore) *Orchestrator {
	o.audit = db
	return o
}

// CapturePreview starts a new session for imageId and runs the encoder,
// so subsequent Segment calls only pay the decoder's latency (spec §4.1,
// §4.6 preEncodeImage).
func (o *Orchestrator) CapturePreview(ctx context.Context, imageId string, rgba []byte, w, h int) (float64, error) {
	if !o.prov.IsAvailable() {
		err := fmt.Errorf("orchestrator: provider not ready")
		o.bus.Fire(EventError, err.Error())
		return 0, err
	}

	actualId := o.prov.StartNewSession(imageId)

	result, err := o.prov.PreEncodeImage(ctx, rgba, w, h)
	if err != nil {
		o.bus.Fire(EventError, err.Error())
		return 0, err
	}

	o.bus.Fire(EventCaptured, map[string]any{
		"imageId":      actualId,
		"encodeTimeMs": result.EncodeTimeMs,
	})
	return result.EncodeTimeMs, nil
}

// Segment decodes a mask from point prompts against the active session's
// cached embedding, renders a preview via the Renderer collaborator, and
// holds the selected candidate as pending until ApplyMask or CancelMask is
// called (spec §4.1, §4.4).
func (o *Orchestrator) Segment(ctx context.Context, imageId string, points []tensorutil.ScaledPoint, origW, origH int) (SegmentOutcome, error) {
	if len(points) == 0 {
		// No prompts means nothing to decode — a true no-op, not an error
		// (spec §8 boundary behaviors).
		return SegmentOutcome{}, nil
	}

	result, err := o.prov.SegmentSingleView(ctx, points)
	if err != nil {
		o.bus.Fire(EventError, err.Error())
		return SegmentOutcome{}, err
	}

	selectedMask := result.Masks[result.SelectedIndex]

	o.mu.Lock()
	o.pending = &pendingMask{
		imageId: imageId,
		mask:    selectedMask,
		logits:  result.SelectedLogits,
		origW:   origW,
		origH:   origH,
	}
	o.mu.Unlock()

	if o.renderer != nil {
		preview := buildPreviewRGBA(selectedMask, origW, origH)
		if rerr := o.renderer.RenderMaskPreview(ctx, imageId, preview); rerr != nil {
			o.bus.Fire(EventError, rerr.Error())
		}
	}

	outcome := SegmentOutcome{
		ImageId:       imageId,
		SelectedIndex: result.SelectedIndex,
		IoUScores:     result.IoUScores,
		DecodeTimeMs:  result.DecodeTimeMs,
	}
	o.bus.Fire(EventSegmentComplete, outcome)
	o.recordAudit(ctx, imageId, points, origW, origH, outcome)
	return outcome, nil
}

// recordAudit writes a best-effort audit row; a logging failure never
// fails the caller's Segment request.
func (o *Orchestrator) recordAudit(ctx context.Context, imageId string, points []tensorutil.ScaledPoint, origW, origH int, outcome SegmentOutcome) {
	if o.audit == nil {
		return
	}
	recorded := make([]storage.PromptPoint, len(points))
	for i, p := range points {
		recorded[i] = storage.PromptPoint{X: p.X, Y: p.Y, Label: int(p.Label)}
	}
	run := &storage.SegmentationRun{
		ImageID:       imageId,
		Points:        recorded,
		Width:         origW,
		Height:        origH,
		SelectedIndex: outcome.SelectedIndex,
		IoUScores:     outcome.IoUScores,
		DecodeTimeMs:  outcome.DecodeTimeMs,
	}
	if err := o.audit.CreateSegmentationRun(ctx, run); err != nil {
		slog.Warn("orchestrator: audit log write failed", "error", err)
	}
}

// ApplyMask finalizes the pending mask into the host selection via the
// SelectionSink collaborator (spec §4.4 applyMask flow) and clears pending
// state.
func (o *Orchestrator) ApplyMask(ctx context.Context, op tensorutil.SelectionOp) error {
	o.mu.Lock()
	pending := o.pending
	o.mu.Unlock()

	if pending == nil {
		err := fmt.Errorf("orchestrator: no pending mask to apply")
		o.bus.Fire(EventError, err.Error())
		return err
	}

	canvas := tensorutil.BuildSelectionCanvas(pending.mask, nil, tensorutil.MaskLogitsSize, tensorutil.MaskLogitsSize, 0.5, pending.origW, pending.origH)

	if o.selection != nil {
		if err := o.selection.ApplyMask(ctx, pending.imageId, op, canvas); err != nil {
			o.bus.Fire(EventError, err.Error())
			return err
		}
	}

	o.mu.Lock()
	o.pending = nil
	o.mu.Unlock()

	o.bus.Fire(EventMaskApplied, map[string]any{"imageId": pending.imageId, "op": string(op)})
	return nil
}

// CancelMask discards the pending mask candidate without applying it.
func (o *Orchestrator) CancelMask() {
	o.mu.Lock()
	pending := o.pending
	o.pending = nil
	o.mu.Unlock()

	if pending != nil {
		o.bus.Fire(EventMaskCancelled, map[string]any{"imageId": pending.imageId})
	}
}

// Abort cancels any in-flight queued work on the provider and drops the
// pending mask.
func (o *Orchestrator) Abort() {
	o.prov.Abort()
	o.CancelMask()
}

func buildPreviewRGBA(mask []byte, targetW, targetH int) *image.RGBA {
	smooth := tensorutil.ResizeMaskSmooth(mask, tensorutil.MaskLogitsSize, tensorutil.MaskLogitsSize, targetW, targetH)
	canvas := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	for i, v := range smooth {
		a := uint8(v * 255)
		canvas.Pix[i*4+0] = 255
		canvas.Pix[i*4+1] = 255
		canvas.Pix[i*4+2] = 255
		canvas.Pix[i*4+3] = a
	}
	return canvas
}
