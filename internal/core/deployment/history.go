package deployment

import "time"

// =============================================================================
// Run History Records
// =============================================================================

// RunRecord is the journal entry for one orchestration run.
type RunRecord struct {
	ID         string
	Workspace  string // Path of the workspace document
	Method     Method
	Image      string
	Container  string
	State      RunState
	Dispatched int // Components handed to a strategy
	ExitCode   int
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
	Components []ComponentRecord
}

// ComponentRecord is the journal entry for one dispatched component.
type ComponentRecord struct {
	RunID        string
	Position     int // Zero-based index in the workspace's component list
	Path         string
	ScriptFolder string
	ExitCode     int
	Succeeded    bool
	Error        string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Duration returns how long the component ran.
func (c ComponentRecord) Duration() time.Duration {
	if c.FinishedAt.Before(c.StartedAt) {
		return 0
	}
	return c.FinishedAt.Sub(c.StartedAt)
}

// Finish marks the run finished in state with the given outcome.
func (r *RunRecord) Finish(state RunState, exitCode int, err error, at time.Time) {
	r.State = state
	r.ExitCode = exitCode
	if err != nil {
		r.Error = err.Error()
	}
	r.FinishedAt = &at
}
