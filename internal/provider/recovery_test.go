package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/your-org/sam2engine/internal/engine"
	"github.com/your-org/sam2engine/internal/workerproto"
)

// TestHandleDecodeFailureReturnsToReady exercises the S6 "worker-isolated
// failure" scenario: a single decode error must not strand the provider in
// StateError — it has to land back in StateReady so the very next decode
// attempt is accepted rather than rejected with ErrInvalidTransition.
func TestHandleDecodeFailureReturnsToReady(t *testing.T) {
	p := New(engine.New())

	// Drive the state machine to ready without a real ONNX Runtime session,
	// since Initialize needs model files this unit test doesn't have.
	require.NoError(t, p.state.transition(StateLoadingModels))
	require.NoError(t, p.state.transition(StateInitializing))
	require.NoError(t, p.state.transition(StateReady))

	// The engine has no decoder session, so Decode fails with ErrInit —
	// standing in for any single bad-input/transient decode error.
	resp := p.Handle(context.Background(), workerproto.Request{
		Kind:    workerproto.KindDecode,
		Payload: DecodePayload{ImageId: "img-1"},
	})
	require.Error(t, resp.Err)
	require.True(t, errors.Is(resp.Err, engine.ErrInit))
	require.Equal(t, StateReady, p.state.Current())

	// A subsequent decode must still be accepted (state allows re-entering
	// processing) instead of failing closed with ErrInvalidTransition.
	resp = p.Handle(context.Background(), workerproto.Request{
		Kind:    workerproto.KindDecode,
		Payload: DecodePayload{ImageId: "img-1"},
	})
	require.Error(t, resp.Err)
	require.False(t, errors.Is(resp.Err, ErrInvalidTransition))
	require.Equal(t, StateReady, p.state.Current())
}

// TestHandleEncodeFailureReturnsToReady mirrors the decode case for encode.
func TestHandleEncodeFailureReturnsToReady(t *testing.T) {
	p := New(engine.New())

	require.NoError(t, p.state.transition(StateLoadingModels))
	require.NoError(t, p.state.transition(StateInitializing))
	require.NoError(t, p.state.transition(StateReady))

	resp := p.Handle(context.Background(), workerproto.Request{
		Kind:    workerproto.KindEncode,
		Payload: EncodePayload{ImageId: "img-1"},
	})
	require.Error(t, resp.Err)
	require.True(t, errors.Is(resp.Err, engine.ErrInit))
	require.Equal(t, StateReady, p.state.Current())

	resp = p.Handle(context.Background(), workerproto.Request{
		Kind:    workerproto.KindEncode,
		Payload: EncodePayload{ImageId: "img-1"},
	})
	require.Error(t, resp.Err)
	require.False(t, errors.Is(resp.Err, ErrInvalidTransition))
}
