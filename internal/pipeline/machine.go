package pipeline

import (
	"fmt"
	"sync"
)

// State is the coordinator's single pipeline state.
type State string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateProcessing State = "processing"
)

// Machine guards the pipeline state. All moves go through Advance, which
// is a compare-and-set: callers name the state they believe they are in,
// so two racing toggles cannot both win the same edge.
type Machine struct {
	mu      sync.Mutex
	state   State
	session uint64
}

// NewMachine creates a machine in the idle state.
func NewMachine() *Machine {
	return &Machine{state: StateIdle}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns the id of the current or most recent session.
func (m *Machine) Session() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Advance moves from one state to another if the machine is in from and
// the edge is allowed. Entering Recording starts a new session.
func (m *Machine) Advance(from, to State) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != from {
		return m.session, fmt.Errorf("not in %s (currently %s)", from, m.state)
	}
	if !validEdge(from, to) {
		return m.session, fmt.Errorf("invalid transition: %s -> %s", from, to)
	}
	if from == StateIdle && to == StateRecording {
		m.session++
	}
	m.state = to
	return m.session, nil
}

// validEdge enforces the three-state machine edges. Recording may fall
// back to Idle directly when capture fails and there is nothing to process.
func validEdge(from, to State) bool {
	switch from {
	case StateIdle:
		return to == StateRecording
	case StateRecording:
		return to == StateProcessing || to == StateIdle
	case StateProcessing:
		return to == StateIdle
	default:
		return false
	}
}
