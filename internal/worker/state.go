package worker

import (
	"errors"
	"sync"
)

// State is the worker loop state.
type State int

const (
	StateIdle State = iota
	StateDispatching
	StateClosed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateDispatching:
		return "Dispatching"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// ErrInvalidTransition is returned for a transition the loop never makes.
var ErrInvalidTransition = errors.New("worker: invalid state transition")

// stateMachine guards the Idle -> Dispatching -> Idle cycle and the terminal
// Closed state. Closed is reachable from Idle (end of stream) and from
// Dispatching (Close request or fatal dispatch error).
type stateMachine struct {
	mu    sync.RWMutex
	state State
}

func (m *stateMachine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *stateMachine) TransitionTo(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateIdle:
		if next != StateDispatching && next != StateClosed {
			return ErrInvalidTransition
		}
	case StateDispatching:
		if next != StateIdle && next != StateClosed {
			return ErrInvalidTransition
		}
	case StateClosed:
		return ErrInvalidTransition
	}

	m.state = next
	return nil
}
