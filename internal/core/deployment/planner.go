package deployment

// =============================================================================
// Run State Transition Planning
// =============================================================================

// RunState is the orchestrator's position in a deployment run.
type RunState string

const (
	StateInitializing RunState = "initializing"
	StateRunning      RunState = "running"
	StateCompleted    RunState = "completed"
	StateAborted      RunState = "aborted"

	// StateFailed is terminal for runs that never reached running.
	StateFailed RunState = "failed"
)

// runTransitions lists the legal successors of each state.
var runTransitions = map[RunState][]RunState{
	StateInitializing: {StateRunning, StateFailed},
	StateRunning:      {StateCompleted, StateAborted},
}

// CanTransition reports whether a run may move from one state to another.
//
// Valid paths:
//   - initializing → running → completed
//   - initializing → running → aborted
//   - initializing → failed
//
// Example:
//
//	if !CanTransition(r.state, StateRunning) {
//	    return fmt.Errorf("illegal transition %s → %s", r.state, StateRunning)
//	}
func CanTransition(from, to RunState) bool {
	for _, next := range runTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s RunState) IsTerminal() bool {
	return len(runTransitions[s]) == 0
}

// Succeeded reports whether the run finished with a zero outcome.
func (s RunState) Succeeded() bool {
	return s == StateCompleted
}
