package engine

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrAlreadyRunning is returned by Start on a driver that is running.
	ErrAlreadyRunning = errors.New("driver already running")
	// ErrAlreadyInitializing is returned by Start while a previous Start is
	// still setting up.
	ErrAlreadyInitializing = errors.New("driver already initializing")
	// ErrNotRunning is returned by Stop on a driver that never started or
	// already stopped.
	ErrNotRunning = errors.New("driver not running")
)

// State is the lifecycle phase of a simulation driver.
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// stateMachine serializes the lifecycle transitions of a driver. Transitions
// are idle → initializing → running → stopping → idle; anything else errors.
type stateMachine struct {
	mu    sync.Mutex
	state State
}

// begin moves idle → initializing, rejecting concurrent or repeated starts.
func (m *stateMachine) begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateInitializing:
		return ErrAlreadyInitializing
	case StateRunning, StateStopping:
		return ErrAlreadyRunning
	}
	m.state = StateInitializing
	return nil
}

// run moves initializing → running.
func (m *stateMachine) run() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateRunning
}

// stop moves running → stopping. Only a running driver can be stopped.
func (m *stateMachine) stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateRunning {
		return ErrNotRunning
	}
	m.state = StateStopping
	return nil
}

// reset returns to idle, whatever the current phase. Used when a start
// aborts during initialization and when the run loop exits.
func (m *stateMachine) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateIdle
}

// current reads the phase for reporting.
func (m *stateMachine) current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
