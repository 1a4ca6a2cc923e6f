package tasks

import "fmt"

// State is the phase of the scheduler's dispatch cycle.
type State string

const (
	StateIdle        State = "idle"
	StateSelecting   State = "selecting"
	StateDispatching State = "dispatching"
	StateCollecting  State = "collecting"
)

// ValidateStateTransition checks if a transition is part of the cycle
// Idle -> Selecting -> Dispatching -> Collecting -> Idle. Selecting may
// return straight to Idle when nothing is due.
func ValidateStateTransition(from, to State) error {
	validTransitions := map[State][]State{
		StateIdle:        {StateSelecting},
		StateSelecting:   {StateDispatching, StateIdle},
		StateDispatching: {StateCollecting},
		StateCollecting:  {StateIdle},
	}

	allowedStates, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown scheduler state: %s", from)
	}

	for _, allowed := range allowedStates {
		if allowed == to {
			return nil
		}
	}

	return fmt.Errorf("invalid state transition from %s to %s", from, to)
}
