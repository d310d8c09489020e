package lifecycle

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	id "taxfiling/pkg/domain"
	dErrors "taxfiling/pkg/domain-errors"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
		want bool
	}{
		{"init to in progress", StateDraftInit, StateDraftInProgress, true},
		{"init straight to computed", StateDraftInit, StateComputationDone, true},
		{"in progress to computed", StateDraftInProgress, StateComputationDone, true},
		{"computed back to in progress", StateComputationDone, StateDraftInProgress, true},
		{"computed to validated", StateComputationDone, StateValidationSuccess, true},
		{"validated rollback to in progress", StateValidationSuccess, StateDraftInProgress, true},
		{"validated to submitted", StateValidationSuccess, StateSubmittedToCA, true},
		{"submitted to filed", StateSubmittedToCA, StateFiled, true},
		{"unlock to in progress", StateLocked, StateDraftInProgress, true},
		{"same state is a no-op", StateComputationDone, StateComputationDone, true},

		{"no skipping to validated", StateDraftInProgress, StateValidationSuccess, false},
		{"no skipping to submitted", StateComputationDone, StateSubmittedToCA, false},
		{"filed is terminal", StateFiled, StateDraftInProgress, false},
		{"filed cannot be locked", StateFiled, StateLocked, false},
		{"submitted cannot regress", StateSubmittedToCA, StateDraftInProgress, false},
		{"locked only unlocks to in progress", StateLocked, StateComputationDone, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestEveryNonTerminalStateCanLock(t *testing.T) {
	for _, from := range []State{StateDraftInit, StateDraftInProgress, StateComputationDone, StateValidationSuccess, StateSubmittedToCA} {
		assert.True(t, CanTransition(from, StateLocked), "expected %s -> LOCKED", from)
	}
}

func TestAtOrPast(t *testing.T) {
	assert.True(t, StateComputationDone.AtOrPast(StateComputationDone))
	assert.True(t, StateValidationSuccess.AtOrPast(StateComputationDone))
	assert.True(t, StateFiled.AtOrPast(StateDraftInit))
	assert.False(t, StateDraftInProgress.AtOrPast(StateComputationDone))

	// LOCKED sits outside the progression.
	assert.False(t, StateLocked.AtOrPast(StateDraftInit))
	assert.False(t, StateFiled.AtOrPast(StateLocked))
}

func TestNextOnCompute(t *testing.T) {
	got, advance := NextOnCompute(StateDraftInProgress)
	assert.True(t, advance)
	assert.Equal(t, StateComputationDone, got)

	got, advance = NextOnCompute(StateDraftInit)
	assert.True(t, advance)
	assert.Equal(t, StateComputationDone, got)

	// Recompute from a state at or beyond COMPUTATION_DONE never moves it.
	for _, current := range []State{StateComputationDone, StateValidationSuccess} {
		got, advance = NextOnCompute(current)
		assert.False(t, advance, "recompute from %s must not advance", current)
		assert.Equal(t, current, got)
	}
}

func TestParseState(t *testing.T) {
	st, err := ParseState("COMPUTATION_DONE")
	assert.NoError(t, err)
	assert.Equal(t, StateComputationDone, st)

	_, err = ParseState("IN_REVIEW")
	assert.Error(t, err)
}

func TestIsActionAllowed(t *testing.T) {
	owner := Actor{UserID: id.UserID(uuid.New()), Role: RoleOwner}
	professional := Actor{UserID: id.UserID(uuid.New()), Role: RoleProfessional}
	admin := Actor{UserID: id.UserID(uuid.New()), Role: RoleAdmin}

	tests := []struct {
		name    string
		state   State
		action  Action
		actor   Actor
		allowed bool
	}{
		{"owner edits in progress", StateDraftInProgress, ActionEditData, owner, true},
		{"owner edits after computation", StateComputationDone, ActionEditData, owner, true},
		{"owner edits after validation", StateValidationSuccess, ActionEditData, owner, true},
		{"no edits once submitted", StateSubmittedToCA, ActionEditData, owner, false},
		{"no edits once filed", StateFiled, ActionEditData, owner, false},
		{"no edits while locked", StateLocked, ActionEditData, owner, false},
		{"admin does not edit data", StateDraftInProgress, ActionEditData, admin, false},

		{"compute in progress", StateDraftInProgress, ActionComputeTax, owner, true},
		{"recompute after validation", StateValidationSuccess, ActionComputeTax, owner, true},
		{"no compute while locked", StateLocked, ActionComputeTax, owner, false},
		{"no compute once filed", StateFiled, ActionComputeTax, professional, false},

		{"export after computation", StateComputationDone, ActionExport, owner, true},
		{"export once submitted", StateSubmittedToCA, ActionExport, professional, true},
		{"no export while locked", StateLocked, ActionExport, owner, false},

		{"owner submits from validated", StateValidationSuccess, ActionSubmitToCA, owner, true},
		{"no submit before validation", StateComputationDone, ActionSubmitToCA, owner, false},
		{"professional does not submit", StateValidationSuccess, ActionSubmitToCA, professional, false},

		{"professional marks filed", StateSubmittedToCA, ActionMarkFiled, professional, true},
		{"admin marks filed", StateSubmittedToCA, ActionMarkFiled, admin, true},
		{"owner does not mark filed", StateSubmittedToCA, ActionMarkFiled, owner, false},

		{"admin locks", StateDraftInProgress, ActionLock, admin, true},
		{"owner does not lock", StateDraftInProgress, ActionLock, owner, false},
		{"no locking filed", StateFiled, ActionLock, admin, false},
		{"admin unlocks", StateLocked, ActionUnlock, admin, true},
		{"unlock only applies to locked", StateDraftInProgress, ActionUnlock, admin, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := IsActionAllowed(tt.state, tt.action, tt.actor)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole("professional")
	assert.NoError(t, err)
	assert.Equal(t, RoleProfessional, role)

	_, err = ParseRole("auditor")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
