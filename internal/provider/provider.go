// Package provider implements the Provider component (C6): the lifecycle
// state machine that sits between the Orchestrator and the Worker Shim /
// Inference Engine. It owns idempotent engine initialization from model
// bytes already fetched by the Model Store,
// per-session bookkeeping (current image, previous-mask logits for
// iterative refinement), and abort/dispose semantics (spec §4.6, §5).
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/your-org/sam2engine/internal/engine"
	"github.com/your-org/sam2engine/internal/modelstore"
	"github.com/your-org/sam2engine/internal/tensorutil"
	"github.com/your-org/sam2engine/internal/workerproto"
)

// session tracks per-image state for iterative mask refinement (spec
// §4.1 step 6: previous logits feed back as mask_input).
type session struct {
	imageId            string
	previousMaskLogits []float32
}

// Provider coordinates engine initialization from already-fetched model
// bytes and the worker shim that serializes every encode/decode call onto
// a single goroutine.
type Provider struct {
	engine *engine.Engine
	shim   *workerproto.Shim
	state  *stateMachine

	initMu     sync.Mutex
	initDone   bool
	initResult InitializeResult
	initWaitCh chan struct{}

	sessMu  sync.Mutex
	current *session
}

// New wires a Provider around an already-constructed Engine. The shim is
// started immediately; it stays idle until Initialize succeeds.
func New(eng *engine.Engine) *Provider {
	p := &Provider{
		engine: eng,
		state:  newStateMachine(),
	}
	p.shim = workerproto.New(p)
	return p
}

// Initialize loads model bytes (already fetched by the Model Store) and
// stands up the ONNX Runtime sessions. Concurrent callers share the single
// in-flight attempt rather than racing (spec §4.6: idempotent initialize).
func (p *Provider) Initialize(ctx context.Context, encoderBytes, decoderBytes []byte, opts engine.Options) (InitializeResult, error) {
	p.initMu.Lock()
	if p.initDone {
		result := p.initResult
		p.initMu.Unlock()
		return result, nil
	}
	if p.initWaitCh != nil {
		waitCh := p.initWaitCh
		p.initMu.Unlock()
		<-waitCh
		p.initMu.Lock()
		result, done := p.initResult, p.initDone
		p.initMu.Unlock()
		if done {
			return result, nil
		}
		return InitializeResult{}, fmt.Errorf("provider: shared initialize attempt failed")
	}
	waitCh := make(chan struct{})
	p.initWaitCh = waitCh
	p.initMu.Unlock()

	result, err := p.doInitialize(ctx, encoderBytes, decoderBytes, opts)

	p.initMu.Lock()
	if err == nil {
		p.initDone = true
		p.initResult = result
	}
	p.initWaitCh = nil
	p.initMu.Unlock()
	close(waitCh)

	return result, err
}

func (p *Provider) doInitialize(ctx context.Context, encoderBytes, decoderBytes []byte, opts engine.Options) (InitializeResult, error) {
	if err := p.state.transition(StateLoadingModels); err != nil {
		return InitializeResult{}, err
	}
	if err := p.state.transition(StateInitializing); err != nil {
		p.state.forceError()
		return InitializeResult{}, err
	}

	used, err := p.engine.InitializeFromBytes(ctx, encoderBytes, decoderBytes, opts)
	if err != nil {
		p.state.forceError()
		return InitializeResult{}, err
	}

	if err := p.state.transition(StateReady); err != nil {
		p.state.forceError()
		return InitializeResult{}, err
	}

	return InitializeResult{ProviderUsed: string(used)}, nil
}

// IsAvailable reports whether the provider is ready to accept encode/decode
// requests.
func (p *Provider) IsAvailable() bool {
	return p.state.Current() == StateReady
}

// Status returns the current lifecycle state as a wire-friendly string.
func (p *Provider) Status() StatusResult {
	return StatusResult{State: string(p.state.Current())}
}

// StartNewSession resets per-image bookkeeping for a fresh imageId. If
// imageId is empty one is generated.
func (p *Provider) StartNewSession(imageId string) string {
	if imageId == "" {
		imageId = uuid.NewString()
	}
	p.sessMu.Lock()
	p.current = &session{imageId: imageId}
	p.sessMu.Unlock()
	return imageId
}

// currentSession returns the active session, auto-creating one with a
// logged warning if the caller skipped StartNewSession (spec §9: callers
// are expected to start a session explicitly, but encode/decode must not
// hard-fail if they forgot).
func (p *Provider) currentSession() *session {
	p.sessMu.Lock()
	defer p.sessMu.Unlock()
	if p.current == nil {
		imageId := uuid.NewString()
		slog.Warn("provider: no active session, auto-creating one", "image_id", imageId)
		p.current = &session{imageId: imageId}
	}
	return p.current
}

// PreEncodeImage runs the image encoder for the active (or auto-created)
// session and caches the embedding (spec §4.6 pre-encode path).
func (p *Provider) PreEncodeImage(ctx context.Context, rgba []byte, w, h int) (engine.EncodeResult, error) {
	sess := p.currentSession()

	resp := p.shim.Submit(ctx, workerproto.Request{
		Kind: workerproto.KindEncode,
		Payload: EncodePayload{
			ImageId: sess.imageId,
			RGBA:    rgba,
			Width:   w,
			Height:  h,
		},
	})
	if resp.Err != nil {
		return engine.EncodeResult{}, resp.Err
	}
	return resp.Payload.(engine.EncodeResult), nil
}

// SegmentSingleView runs the prompt decoder for the active session,
// feeding back the previously selected mask's logits for iterative
// refinement, and stores the newly selected logits for the next call
// (spec §4.1 step 6, §9).
func (p *Provider) SegmentSingleView(ctx context.Context, points []tensorutil.ScaledPoint) (engine.DecodeResult, error) {
	sess := p.currentSession()

	p.sessMu.Lock()
	prevLogits := sess.previousMaskLogits
	p.sessMu.Unlock()

	resp := p.shim.Submit(ctx, workerproto.Request{
		Kind: workerproto.KindDecode,
		Payload: DecodePayload{
			ImageId:            sess.imageId,
			Points:             points,
			PreviousMaskLogits: prevLogits,
		},
	})
	if resp.Err != nil {
		return engine.DecodeResult{}, resp.Err
	}

	result := resp.Payload.(engine.DecodeResult)

	p.sessMu.Lock()
	if p.current == sess {
		sess.previousMaskLogits = result.SelectedLogits
	}
	p.sessMu.Unlock()

	return result, nil
}

// Abort drops any queued (not yet dispatched) shim requests. It does not
// cancel a decode/encode already running inside ONNX Runtime, which is a
// synchronous call with no mid-flight cancellation hook.
func (p *Provider) Abort() {
	p.shim.Abort()
}

// Dispose releases the engine's ONNX Runtime resources and stops the
// worker shim. The provider returns to idle and cannot be reused.
func (p *Provider) Dispose() {
	p.shim.Close()
	p.engine.Dispose()
	p.sessMu.Lock()
	p.current = nil
	p.sessMu.Unlock()
	_ = p.state.transition(StateIdle)
}

// Handle implements workerproto.Handler, translating queue-level requests
// into the typed engine calls and wrapping them in the ready<->processing
// state transitions (spec §4.6 state diagram).
func (p *Provider) Handle(ctx context.Context, req workerproto.Request) workerproto.Response {
	switch req.Kind {
	case workerproto.KindEncode:
		return p.handleEncode(ctx, req)
	case workerproto.KindDecode:
		return p.handleDecode(ctx, req)
	case workerproto.KindClearCache:
		return p.handleClearCache(req)
	case workerproto.KindGetStatus:
		return workerproto.Response{Kind: req.Kind, Payload: p.Status()}
	default:
		return workerproto.Response{Kind: req.Kind, Err: fmt.Errorf("provider: unsupported request kind %q", req.Kind)}
	}
}

func (p *Provider) handleEncode(ctx context.Context, req workerproto.Request) workerproto.Response {
	payload := req.Payload.(EncodePayload)

	if err := p.state.transition(StateProcessing); err != nil {
		return workerproto.Response{Kind: req.Kind, Err: err}
	}
	result, err := p.engine.Encode(ctx, payload.ImageId, payload.RGBA, payload.Width, payload.Height)
	if err != nil {
		// A single bad encode (e.g. malformed image) returns the provider
		// to ready rather than parking it in error — spec §4.3's lifecycle
		// diagram only routes init failures to error; processing always
		// resolves back to ready on either outcome.
		if tErr := p.state.transition(StateReady); tErr != nil {
			p.state.forceError()
		}
		return workerproto.Response{Kind: req.Kind, Err: err}
	}
	if tErr := p.state.transition(StateReady); tErr != nil {
		return workerproto.Response{Kind: req.Kind, Err: tErr}
	}
	return workerproto.Response{Kind: req.Kind, Payload: result}
}

func (p *Provider) handleDecode(ctx context.Context, req workerproto.Request) workerproto.Response {
	payload := req.Payload.(DecodePayload)

	if err := p.state.transition(StateProcessing); err != nil {
		return workerproto.Response{Kind: req.Kind, Err: err}
	}
	result, err := p.engine.Decode(ctx, payload.ImageId, payload.Points, payload.PreviousMaskLogits)
	if err != nil {
		// Same recovery as handleEncode: a decode failure (bad prompt,
		// transient shape mismatch) must not strand the provider outside
		// ready, or every subsequent segment call fails with
		// ErrInvalidTransition until a full re-Initialize.
		if tErr := p.state.transition(StateReady); tErr != nil {
			p.state.forceError()
		}
		return workerproto.Response{Kind: req.Kind, Err: err}
	}
	if tErr := p.state.transition(StateReady); tErr != nil {
		return workerproto.Response{Kind: req.Kind, Err: tErr}
	}
	return workerproto.Response{Kind: req.Kind, Payload: result}
}

func (p *Provider) handleClearCache(req workerproto.Request) workerproto.Response {
	payload := req.Payload.(ClearCachePayload)
	if payload.ImageId == "" {
		p.engine.ClearAllCaches()
	} else {
		p.engine.ClearImageCache(payload.ImageId)
	}
	return workerproto.Response{Kind: req.Kind}
}

// SourcesFor builds the Model Store source list for the encoder/decoder
// artifacts from config-provided URLs and expected sizes (spec §4.2, §4.6).
func SourcesFor(encoderURL, decoderURL string, encoderSize, decoderSize int64) []modelstore.Source {
	return []modelstore.Source{
		{Key: modelstore.KeyEncoder, URL: encoderURL, ExpectedSize: encoderSize},
		{Key: modelstore.KeyDecoder, URL: decoderURL, ExpectedSize: decoderSize},
	}
}
