package orchestrator_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/your-org/sam2engine/internal/engine"
	"github.com/your-org/sam2engine/internal/eventbus"
	"github.com/your-org/sam2engine/internal/external"
	"github.com/your-org/sam2engine/internal/orchestrator"
	"github.com/your-org/sam2engine/internal/provider"
)

func newTestOrchestrator() (*orchestrator.Orchestrator, *eventbus.Bus) {
	bus := eventbus.New()
	prov := provider.New(engine.New())
	o := orchestrator.New(bus, prov, external.NoopRenderer{}, external.NoopSelectionSink{})
	return o, bus
}

func recordEvents(bus *eventbus.Bus, names ...string) *[]string {
	var mu sync.Mutex
	fired := make([]string, 0)
	for _, name := range names {
		bus.On(name, func(ev eventbus.Event) {
			mu.Lock()
			fired = append(fired, ev.Name)
			mu.Unlock()
		})
	}
	return &fired
}

func TestCapturePreviewFailsWhenProviderNotReady(t *testing.T) {
	o, bus := newTestOrchestrator()
	fired := recordEvents(bus, orchestrator.EventError)

	ms, err := o.CapturePreview(context.Background(), "img-1", nil, 10, 10)
	require.Error(t, err)
	require.Zero(t, ms)
	require.Equal(t, []string{orchestrator.EventError}, *fired)
}

func TestApplyMaskWithoutPendingMaskReturnsError(t *testing.T) {
	o, bus := newTestOrchestrator()
	fired := recordEvents(bus, orchestrator.EventError)

	err := o.ApplyMask(context.Background(), "add")
	require.Error(t, err)
	require.Equal(t, []string{orchestrator.EventError}, *fired)
}

func TestCancelMaskWithoutPendingIsNoop(t *testing.T) {
	o, bus := newTestOrchestrator()
	fired := recordEvents(bus, orchestrator.EventMaskCancelled)

	require.NotPanics(t, func() { o.CancelMask() })
	require.Empty(t, *fired)
}

func TestSegmentWithNoPointsIsNoopAndEmitsNothing(t *testing.T) {
	o, bus := newTestOrchestrator()
	fired := recordEvents(bus, orchestrator.EventError, orchestrator.EventSegmentComplete, orchestrator.EventSegmentProgress)

	outcome, err := o.Segment(context.Background(), "img-1", nil, 100, 100)
	require.NoError(t, err)
	require.Equal(t, orchestrator.SegmentOutcome{}, outcome)
	require.Empty(t, *fired)
}

func TestAbortIsSafeWithoutActiveWork(t *testing.T) {
	o, _ := newTestOrchestrator()
	require.NotPanics(t, func() { o.Abort() })
}

func TestWithAuditLogIsChainable(t *testing.T) {
	o, _ := newTestOrchestrator()
	require.Same(t, o, o.WithAuditLog(nil))
}
