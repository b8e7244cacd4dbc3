// Package eventbus implements the event-bus collaborator the spec's
// Orchestrator fires named events through (fire/on/invoke/function
// contract, spec §4.4, §6). Bus is the in-process pub/sub core; NATSMirror
// additionally republishes every event onto NATS core subjects so
// out-of-process subscribers (dashboards, audit consumers) can observe the
// same stream the in-process WebSocket hub does.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Event is one message fired on the bus: Name identifies the event (e.g.
// "modelLoadProgress", "segmentComplete"), Data is its JSON-able payload.
type Event struct {
	Name string
	Data any
}

// Handler receives events fired for the name it subscribed to.
type Handler func(Event)

// Bus is a simple synchronous in-process publish/subscribe hub. Handlers
// registered for a name are invoked, in registration order, on the
// goroutine that calls Fire — callers needing async fan-out should launch
// their own goroutine from inside the handler.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func New() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// On registers handler for name and returns an unsubscribe function.
func (b *Bus) On(name string, handler Handler) (off func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[name] = append(b.handlers[name], handler)
	idx := len(b.handlers[name]) - 1

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		hs := b.handlers[name]
		if idx < len(hs) {
			hs[idx] = nil
		}
	}
}

// Fire invokes every live handler registered for name.
func (b *Bus) Fire(name string, data any) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[name]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if h != nil {
			h(Event{Name: name, Data: data})
		}
	}
}

// Invoke is the bus's request/response counterpart to Fire: it calls fn
// directly rather than broadcasting, matching the spec's "invoke a
// function exposed through the bus" collaborator shape (e.g. render
// callbacks) without pretending it's a broadcast event.
func (b *Bus) Invoke(fn func() error) error {
	return fn()
}

// NATSPublisher is the subset of *nats.Conn the mirror needs, so tests can
// fake it without a real NATS connection.
type NATSPublisher interface {
	Publish(subject string, data []byte) error
}

// NATSMirror subscribes to a Bus and republishes every event onto
// "<subjectPrefix>.<name>", following the teacher's PublishEvent
// marshal-then-publish pattern.
type NATSMirror struct {
	nc            NATSPublisher
	subjectPrefix string
}

func NewNATSMirror(nc NATSPublisher, subjectPrefix string) *NATSMirror {
	return &NATSMirror{nc: nc, subjectPrefix: subjectPrefix}
}

// Attach wires the mirror to fire on every event the bus emits for the
// given names.
func (m *NATSMirror) Attach(bus *Bus, names ...string) {
	for _, name := range names {
		name := name
		bus.On(name, func(ev Event) {
			payload, err := json.Marshal(ev.Data)
			if err != nil {
				slog.Error("eventbus: marshal event for nats mirror", "event", ev.Name, "error", err)
				return
			}
			subject := fmt.Sprintf("%s.%s", m.subjectPrefix, ev.Name)
			if err := m.nc.Publish(subject, payload); err != nil {
				slog.Error("eventbus: publish to nats", "subject", subject, "error", err)
			}
		})
	}
}

// ModelLoadStreamName is the JetStream stream capturing model-download
// progress events, so a UI that connects mid-download can replay the
// progress so far instead of only seeing events from the moment it
// subscribed (spec §4.6 overall progress aggregation).
const ModelLoadStreamName = "MODELLOAD"

// JetStreamMirror republishes model-load progress events onto a durable
// JetStream stream, following the teacher's queue.Producer
// EnsureStreams/Publish pattern (internal/queue/producer.go) but scoped to
// one short-lived, low-volume subject instead of the teacher's
// high-throughput frame queue.
type JetStreamMirror struct {
	js            jetstream.JetStream
	subjectPrefix string
}

func NewJetStreamMirror(js jetstream.JetStream, subjectPrefix string) *JetStreamMirror {
	return &JetStreamMirror{js: js, subjectPrefix: subjectPrefix}
}

// EnsureStream creates the MODELLOAD stream if it doesn't already exist.
// Progress events are small and short-lived, so a short MaxAge is enough
// to let a client that connects moments after a download starts catch up.
func (m *JetStreamMirror) EnsureStream(ctx context.Context) error {
	_, err := m.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        ModelLoadStreamName,
		Subjects:    []string{m.subjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      10 * time.Minute,
		MaxMsgs:     10000,
		Storage:     jetstream.FileStorage,
		Description: "SAM2 model download/load progress events",
	})
	if err != nil {
		return fmt.Errorf("eventbus: ensure modelload stream: %w", err)
	}
	return nil
}

// Attach wires the mirror to fire on every event the bus emits for the
// given names, publishing each through JetStream so EnsureStream's
// retention keeps recent progress replayable.
func (m *JetStreamMirror) Attach(bus *Bus, names ...string) {
	for _, name := range names {
		name := name
		bus.On(name, func(ev Event) {
			payload, err := json.Marshal(ev.Data)
			if err != nil {
				slog.Error("eventbus: marshal event for jetstream mirror", "event", ev.Name, "error", err)
				return
			}
			subject := fmt.Sprintf("%s.%s", m.subjectPrefix, ev.Name)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := m.js.Publish(ctx, subject, payload); err != nil {
				slog.Error("eventbus: publish to jetstream", "subject", subject, "error", err)
			}
		})
	}
}
