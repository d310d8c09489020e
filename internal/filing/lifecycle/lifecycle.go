// Package lifecycle defines the filing state machine: the closed set of
// states, the legal transitions between them, and which actor roles may
// perform which actions in which states.
//
// The machine is pure decision logic over values. Persistence of a transition
// belongs to the service layer, which must apply it inside the same
// transaction as the data change that caused it.
package lifecycle

import "fmt"

// State is the lifecycle state of a filing.
// Invariant: a filing has exactly one state at any instant, and every change
// goes through the transition table below.
type State string

const (
	StateDraftInit         State = "DRAFT_INIT"
	StateDraftInProgress   State = "DRAFT_IN_PROGRESS"
	StateComputationDone   State = "COMPUTATION_DONE"
	StateValidationSuccess State = "VALIDATION_SUCCESS"
	StateSubmittedToCA     State = "SUBMITTED_TO_CA"
	StateFiled             State = "FILED"
	StateLocked            State = "LOCKED"
)

// stateOrder ranks the forward progression of a filing. LOCKED sits outside
// the progression and has no rank.
var stateOrder = map[State]int{
	StateDraftInit:         1,
	StateDraftInProgress:   2,
	StateComputationDone:   3,
	StateValidationSuccess: 4,
	StateSubmittedToCA:     5,
	StateFiled:             6,
}

var validStates = map[State]bool{
	StateDraftInit:         true,
	StateDraftInProgress:   true,
	StateComputationDone:   true,
	StateValidationSuccess: true,
	StateSubmittedToCA:     true,
	StateFiled:             true,
	StateLocked:            true,
}

// ParseState constructs a State from external input (store rows, requests).
func ParseState(s string) (State, error) {
	st := State(s)
	if !validStates[st] {
		return "", fmt.Errorf("unknown lifecycle state: %s", s)
	}
	return st, nil
}

func (s State) String() string { return string(s) }

// IsTerminal reports whether the state accepts no further edits. LOCKED is
// terminal with respect to edits only; reads remain legal.
func (s State) IsTerminal() bool {
	return s == StateFiled || s == StateLocked
}

// AtOrPast reports whether s has reached other in the forward progression.
// States outside the progression (LOCKED) never compare true.
func (s State) AtOrPast(other State) bool {
	a, ok := stateOrder[s]
	if !ok {
		return false
	}
	b, ok := stateOrder[other]
	if !ok {
		return false
	}
	return a >= b
}

// transitions is the single source of truth for legal state changes.
// A transition to the current state is always a legal no-op and is not
// listed here.
var transitions = map[State][]State{
	StateDraftInit:         {StateDraftInProgress, StateComputationDone, StateLocked},
	StateDraftInProgress:   {StateComputationDone, StateLocked},
	StateComputationDone:   {StateDraftInProgress, StateValidationSuccess, StateLocked},
	StateValidationSuccess: {StateDraftInProgress, StateSubmittedToCA, StateComputationDone, StateLocked},
	StateSubmittedToCA:     {StateFiled, StateLocked},
	StateFiled:             {},
	StateLocked:            {StateDraftInProgress},
}

// CanTransition reports whether from → to is legal. Transitioning to the
// current state is an idempotent no-op, not an error.
func CanTransition(from, to State) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextOnCompute returns the state a successful computation advances to.
// The second return is false when the current state is already at or past
// COMPUTATION_DONE: a recompute refreshes results but never moves a filing
// that is ahead (only the rollback policy, driven by data edits, may do that).
func NextOnCompute(current State) (State, bool) {
	if current.AtOrPast(StateComputationDone) {
		return current, false
	}
	return StateComputationDone, true
}
