package eventbus_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/your-org/sam2engine/internal/eventbus"
)

func TestFireInvokesRegisteredHandlersInOrder(t *testing.T) {
	bus := eventbus.New()

	var mu sync.Mutex
	var order []string
	bus.On("segmentComplete", func(ev eventbus.Event) {
		mu.Lock()
		order = append(order, "first:"+ev.Name)
		mu.Unlock()
	})
	bus.On("segmentComplete", func(ev eventbus.Event) {
		mu.Lock()
		order = append(order, "second:"+ev.Name)
		mu.Unlock()
	})

	bus.Fire("segmentComplete", map[string]int{"selectedIndex": 2})

	require.Equal(t, []string{"first:segmentComplete", "second:segmentComplete"}, order)
}

func TestOffUnsubscribesHandler(t *testing.T) {
	bus := eventbus.New()

	calls := 0
	off := bus.On("captured", func(eventbus.Event) { calls++ })

	bus.Fire("captured", nil)
	off()
	bus.Fire("captured", nil)

	require.Equal(t, 1, calls)
}

func TestFireOnUnknownNameIsNoop(t *testing.T) {
	bus := eventbus.New()
	require.NotPanics(t, func() { bus.Fire("nothing-registered", nil) })
}

func TestInvokeReturnsFunctionError(t *testing.T) {
	bus := eventbus.New()
	sentinel := errors.New("boom")

	err := bus.Invoke(func() error { return sentinel })
	require.ErrorIs(t, err, sentinel)

	require.NoError(t, bus.Invoke(func() error { return nil }))
}

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	failFor  string
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor != "" && subject == f.failFor {
		return errors.New("publish failed")
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func TestNATSMirrorRepublishesAttachedEvents(t *testing.T) {
	bus := eventbus.New()
	pub := &fakePublisher{}
	mirror := eventbus.NewNATSMirror(pub, "sam2")
	mirror.Attach(bus, "segmentComplete", "maskApplied")

	bus.Fire("segmentComplete", map[string]any{"selectedIndex": 1})
	bus.Fire("maskApplied", map[string]any{"op": "add"})
	bus.Fire("unrelatedEvent", nil)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Equal(t, []string{"sam2.segmentComplete", "sam2.maskApplied"}, pub.subjects)
	require.Len(t, pub.payloads, 2)
}

func TestNATSMirrorSwallowsPublishErrors(t *testing.T) {
	bus := eventbus.New()
	pub := &fakePublisher{failFor: "sam2.segmentComplete"}
	mirror := eventbus.NewNATSMirror(pub, "sam2")
	mirror.Attach(bus, "segmentComplete")

	require.NotPanics(t, func() {
		bus.Fire("segmentComplete", map[string]any{"selectedIndex": 1})
	})
}
