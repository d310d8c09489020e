package lifecycle

import (
	id "taxfiling/pkg/domain"
	dErrors "taxfiling/pkg/domain-errors"
)

// Action names an operation gated by the state machine.
type Action string

const (
	ActionEditData   Action = "edit_data"
	ActionComputeTax Action = "compute_tax"
	ActionExport     Action = "export"
	ActionSubmitToCA Action = "submit_to_ca"
	ActionMarkFiled  Action = "mark_filed"
	ActionLock       Action = "lock"
	ActionUnlock     Action = "unlock"
	ActionView       Action = "view"
)

// Role classifies the actor performing an action.
type Role string

const (
	RoleOwner        Role = "owner"
	RoleProfessional Role = "professional"
	RoleAdmin        Role = "admin"
)

// ParseRole validates a role claim from a token.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleOwner, RoleProfessional, RoleAdmin:
		return Role(s), nil
	}
	return "", dErrors.Newf(dErrors.CodeUnauthorized, "unknown role: %s", s)
}

// Actor is the authenticated identity attempting an action.
type Actor struct {
	UserID id.UserID
	Role   Role
}

// actionRule pairs the states an action is legal in with the roles allowed
// to perform it. A nil blockedIn/allowedIn means "any state".
type actionRule struct {
	blockedIn []State
	allowedIn []State
	roles     []Role
}

// actionRules is the single source of truth for action gating.
var actionRules = map[Action]actionRule{
	// Edits are blocked once the filing has left the owner's hands.
	ActionEditData: {
		blockedIn: []State{StateSubmittedToCA, StateFiled, StateLocked},
		roles:     []Role{RoleOwner, RoleProfessional},
	},
	// Computing in COMPUTATION_DONE or VALIDATION_SUCCESS is a recompute;
	// legal, and never a downgrade (see NextOnCompute).
	ActionComputeTax: {
		blockedIn: []State{StateSubmittedToCA, StateFiled, StateLocked},
		roles:     []Role{RoleOwner, RoleProfessional},
	},
	ActionExport: {
		blockedIn: []State{StateLocked},
		roles:     []Role{RoleOwner, RoleProfessional},
	},
	ActionSubmitToCA: {
		allowedIn: []State{StateValidationSuccess},
		roles:     []Role{RoleOwner},
	},
	ActionMarkFiled: {
		allowedIn: []State{StateSubmittedToCA},
		roles:     []Role{RoleProfessional, RoleAdmin},
	},
	ActionLock: {
		blockedIn: []State{StateFiled, StateLocked},
		roles:     []Role{RoleAdmin},
	},
	ActionUnlock: {
		allowedIn: []State{StateLocked},
		roles:     []Role{RoleAdmin},
	},
	ActionView: {
		roles: []Role{RoleOwner, RoleProfessional, RoleAdmin},
	},
}

// IsActionAllowed decides whether the actor may perform the action while the
// filing is in the given state. The error names the blocking state or role so
// callers can render it; an illegal request is reported, never coerced.
func IsActionAllowed(state State, action Action, actor Actor) error {
	rule, ok := actionRules[action]
	if !ok {
		return dErrors.Newf(dErrors.CodeForbidden, "unknown action: %s", action)
	}

	roleOK := false
	for _, r := range rule.roles {
		if actor.Role == r {
			roleOK = true
			break
		}
	}
	if !roleOK {
		return dErrors.Newf(dErrors.CodeForbidden, "role %s may not perform %s", actor.Role, action)
	}

	for _, blocked := range rule.blockedIn {
		if state == blocked {
			return dErrors.Newf(dErrors.CodeForbidden, "%s is not allowed while filing is %s", action, state)
		}
	}
	if len(rule.allowedIn) > 0 {
		for _, allowed := range rule.allowedIn {
			if state == allowed {
				return nil
			}
		}
		return dErrors.Newf(dErrors.CodeForbidden, "%s is not allowed while filing is %s", action, state)
	}
	return nil
}
