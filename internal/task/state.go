package task

import "strings"

// StateKind enumerates the task lifecycle states.
type StateKind string

const (
	StateNew           StateKind = "new"
	StateConfiguring   StateKind = "configuring"
	StateReady         StateKind = "ready"
	StateInProgress    StateKind = "in_progress"
	StateWaitingWakeUp StateKind = "waiting_wake_up"
	StateCompleted     StateKind = "completed"
	StateFailed        StateKind = "failed"
)

// State is the lifecycle state of a task. Failed states carry a
// human-readable reason.
type State struct {
	Kind   StateKind
	Reason string
}

// NewState returns a state without a reason.
func NewState(kind StateKind) State {
	return State{Kind: kind}
}

// FailedState returns a failed state with the given reason.
func FailedState(reason string) State {
	return State{Kind: StateFailed, Reason: reason}
}

// IsTerminal reports whether the state ends the current run.
func (s State) IsTerminal() bool {
	return s.Kind == StateCompleted || s.Kind == StateFailed
}

// String renders the state for persistence and display, e.g.
// "failed: no matching workflow step".
func (s State) String() string {
	if s.Kind == StateFailed && s.Reason != "" {
		return string(StateFailed) + ": " + s.Reason
	}
	return string(s.Kind)
}

// ParseState is the inverse of String. Unknown values parse as New.
func ParseState(raw string) State {
	if reason, ok := strings.CutPrefix(raw, string(StateFailed)+": "); ok {
		return FailedState(reason)
	}
	switch StateKind(raw) {
	case StateNew, StateConfiguring, StateReady, StateInProgress,
		StateWaitingWakeUp, StateCompleted, StateFailed:
		return State{Kind: StateKind(raw)}
	default:
		return State{Kind: StateNew}
	}
}
