package pipeline

import "fmt"

// State is one stage of the pipeline lifecycle.
type State string

// Pipeline state constants. The flow is linear with two branches: executing
// ends in either backlog_complete or shutdown_interrupted, and error is
// reachable from any non-terminal state.
const (
	StateInit                State = "init"
	StateSessionInitialized  State = "session_initialized"
	StateBacklogGenerated    State = "backlog_generated"
	StateExecuting           State = "executing"
	StateBacklogComplete     State = "backlog_complete"
	StateShutdownInterrupted State = "shutdown_interrupted"
	StateQARunning           State = "qa_running"
	StateQAComplete          State = "qa_complete"
	StateShutdownComplete    State = "shutdown_complete"
	StateError               State = "error"
)

// pipelineTransitions is the canonical transition map. Any code or tests
// describing pipeline flow must match this map exactly.
var pipelineTransitions = map[State][]State{
	StateInit:               {StateSessionInitialized, StateError},
	StateSessionInitialized: {StateBacklogGenerated, StateError},
	StateBacklogGenerated:   {StateExecuting, StateError},

	// Executing ends when the backlog drains or a shutdown is requested.
	StateExecuting: {StateBacklogComplete, StateShutdownInterrupted, StateError},

	// A drained backlog enters verification when a verifier is wired,
	// otherwise proceeds straight to completion.
	StateBacklogComplete: {StateQARunning, StateShutdownComplete, StateError},

	// An interrupted run skips verification.
	StateShutdownInterrupted: {StateShutdownComplete, StateError},

	// Verification either passes, accepts remaining minor defects, or sends
	// planned fixes back through the scheduler.
	StateQARunning:  {StateQAComplete, StateExecuting, StateError},
	StateQAComplete: {StateShutdownComplete, StateError},

	// Terminal states.
	StateShutdownComplete: {},
	StateError:            {},
}

// ValidStates returns every pipeline state.
func ValidStates() []State {
	return []State{
		StateInit, StateSessionInitialized, StateBacklogGenerated,
		StateExecuting, StateBacklogComplete, StateShutdownInterrupted,
		StateQARunning, StateQAComplete, StateShutdownComplete, StateError,
	}
}

// ValidateState checks that state is a known pipeline state.
func ValidateState(state State) error {
	for _, valid := range ValidStates() {
		if state == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid pipeline state: %s", state)
}

// ValidNextStates returns the allowed next states for a given state.
func ValidNextStates(from State) []State {
	return pipelineTransitions[from]
}

// IsValidTransition checks if a transition between two states is allowed.
func IsValidTransition(from, to State) bool {
	for _, state := range ValidNextStates(from) {
		if state == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a state ends the run.
func (s State) IsTerminal() bool {
	return s == StateShutdownComplete || s == StateError
}

func (s State) String() string {
	return string(s)
}
