package provider

import (
	"fmt"
	"sync"

	"github.com/your-org/sam2engine/internal/observability"
)

// State is the Provider lifecycle state machine (spec §4.6):
//
//	idle -> loading-models -> initializing -> ready -> processing -> ready
//	                                             \-> error (when loading or initialization fails)
//
// A failed encode/decode goes processing -> ready, not to error.
type State string

const (
	StateIdle          State = "idle"
	StateLoadingModels State = "loading-models"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateProcessing    State = "processing"
	StateError         State = "error"
)

var validTransitions = map[State]map[State]bool{
	StateIdle:          {StateLoadingModels: true},
	StateLoadingModels: {StateInitializing: true, StateError: true},
	StateInitializing:  {StateReady: true, StateError: true},
	StateReady:         {StateProcessing: true, StateIdle: true, StateError: true},
	StateProcessing:    {StateReady: true, StateError: true},
	StateError:         {StateLoadingModels: true, StateIdle: true},
}

// stateMachine is a small goroutine-safe state holder shared by Provider.
type stateMachine struct {
	mu    sync.RWMutex
	state State
}

func newStateMachine() *stateMachine {
	return &stateMachine{state: StateIdle}
}

func (m *stateMachine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// transition moves to next if the edge is legal, recording the move in
// the provider_state_transitions metric regardless of outcome so stuck
// or rejected transitions are observable.
func (m *stateMachine) transition(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.state][next]
	observability.ProviderStateTransitions.WithLabelValues(string(m.state), string(next)).Inc()
	if !allowed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.state, next)
	}
	m.state = next
	return nil
}

// forceError moves to StateError unconditionally, used when a stage fails
// mid-flight and the normal edge table doesn't cover the origin state.
func (m *stateMachine) forceError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	observability.ProviderStateTransitions.WithLabelValues(string(m.state), string(StateError)).Inc()
	m.state = StateError
}
