package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nestiq/chatsync/internal/bus"
)

// State represents the push-channel link state for a session.
type State string

const (
	Disconnected State = "DISCONNECTED"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
	Joined       State = "JOINED"
	Reconnecting State = "RECONNECTING"
	Error        State = "ERROR"
)

// validTransitions defines allowed state transitions.
//
// Joined->Connected is leaving a conversation room while the link stays up;
// Connected->Joined is entering one. Reconnecting always goes back through
// Connecting so a re-join can happen after the dial succeeds.
var validTransitions = map[State][]State{
	Disconnected: {Connecting, Error},
	Connecting:   {Connected, Reconnecting, Error},
	Connected:    {Joined, Reconnecting, Disconnected, Error},
	Joined:       {Connected, Reconnecting, Disconnected, Error},
	Reconnecting: {Connecting, Disconnected, Error},
	Error:        {Disconnected},
}

// Machine tracks and enforces channel link state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Disconnected state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Disconnected,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      "channel.status_changed",
			Timestamp: time.Now(),
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
