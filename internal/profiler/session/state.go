package session

import (
	"fmt"
)

// State is a step of the session lifecycle.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateSampling
	StateBuilding
	StateSerializing
	StateCompressing
	StateCompleted
	StateFailed
)

var stateNames = [...]string{
	StateIdle:        "idle",
	StateStarting:    "starting",
	StateSampling:    "sampling",
	StateBuilding:    "building",
	StateSerializing: "serializing",
	StateCompressing: "compressing",
	StateCompleted:   "completed",
	StateFailed:      "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// next is the successor of each non-terminal state on the success path.
var next = map[State]State{
	StateIdle:        StateStarting,
	StateStarting:    StateSampling,
	StateSampling:    StateBuilding,
	StateBuilding:    StateSerializing,
	StateSerializing: StateCompressing,
	StateCompressing: StateCompleted,
}

// stageMessages describe a failure in each stage for the caller.
var stageMessages = map[State]string{
	StateStarting:    "failed to start profiling",
	StateSampling:    "profiling interrupted",
	StateBuilding:    "failed to build report",
	StateSerializing: "failed to encode profile",
	StateCompressing: "failed to compress profile",
}

// StageError is the terminal failure of a session, tagged with the stage the
// session was in when it failed.
type StageError struct {
	SessionID string
	Stage     State
	Err       error
}

func (e *StageError) Error() string {
	msg, ok := stageMessages[e.Stage]
	if !ok {
		msg = "profiling failed in " + e.Stage.String()
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
