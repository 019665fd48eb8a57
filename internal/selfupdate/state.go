// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"fmt"
	"slices"
)

// Pipeline states.
const (
	StateIdle State = iota
	StateCheckingVersion
	StateResolvingCandidates
	StateDownloading
	StateVerifying
	StateCoordinating
	StateExtracting
	StateDone
	StateFailed
)

type (
	// State is a position in the update pipeline.
	State int32

	// FailedError is returned by Pipeline.Run for every terminal failure.
	// From is the state the pipeline was in when it failed.
	FailedError struct {
		From State
		Err  error
	}
)

// transitions lists the legal successors of every non-terminal state.
// StateFailed is reachable from all of them and is not listed.
//
//nolint:gochecknoglobals // Static transition table.
var transitions = map[State][]State{
	StateIdle:                {StateCheckingVersion},
	StateCheckingVersion:     {StateResolvingCandidates, StateDone},
	StateResolvingCandidates: {StateDownloading, StateVerifying},
	StateDownloading:         {StateVerifying, StateResolvingCandidates},
	StateVerifying:           {StateCoordinating, StateResolvingCandidates},
	StateCoordinating:        {StateExtracting},
	StateExtracting:          {StateDone},
}

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateCheckingVersion:
		return "CheckingVersion"
	case StateResolvingCandidates:
		return "ResolvingCandidates"
	case StateDownloading:
		return "Downloading"
	case StateVerifying:
		return "Verifying"
	case StateCoordinating:
		return "Coordinating"
	case StateExtracting:
		return "Extracting"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// IsTerminal reports whether s is Done or Failed.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// CanTransition reports whether the pipeline may move from one state to another.
func CanTransition(from, to State) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	return slices.Contains(transitions[from], to)
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("update failed while %s: %v", e.From, e.Err)
}

func (e *FailedError) Unwrap() error { return e.Err }
