package models

import (
	"time"

	"taxfiling/internal/filing/lifecycle"
	id "taxfiling/pkg/domain"
	dErrors "taxfiling/pkg/domain-errors"
)

// Filing is the aggregate root: one person's one return for one assessment
// period.
//
// Invariants:
//   - State changes only via the lifecycle transition table
//   - At most one Filing per (owner, idempotency key)
//   - Computation is replaced wholesale by the pipeline, except that
//     DownstreamContext.Requests is carried forward across runs
//   - Never physically deleted once it has submitted history
type Filing struct {
	ID             id.FilingID          `json:"id"`
	OwnerID        id.UserID            `json:"owner_id"`
	FormType       id.FormType          `json:"form_type"`
	Period         id.AssessmentPeriod  `json:"period"`
	State          lifecycle.State      `json:"state"`
	IdempotencyKey string               `json:"idempotency_key,omitempty"`
	Computation    *ComputationResult   `json:"computation,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// NewFiling constructs a filing in its initial state.
func NewFiling(filingID id.FilingID, owner id.UserID, formType id.FormType, period id.AssessmentPeriod, key string, now time.Time) (*Filing, error) {
	if owner.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "filing owner is required")
	}
	if period.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "assessment period is required")
	}
	return &Filing{
		ID:             filingID,
		OwnerID:        owner,
		FormType:       formType,
		Period:         period,
		State:          lifecycle.StateDraftInit,
		IdempotencyKey: key,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// HasComputation reports whether a computation result has been persisted.
func (f *Filing) HasComputation() bool {
	return f.Computation != nil
}

// CanTransitionTo checks the transition against the lifecycle table.
// Use with ApplyTransition in Execute callbacks.
func (f *Filing) CanTransitionTo(to lifecycle.State) error {
	if !lifecycle.CanTransition(f.State, to) {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"illegal transition %s -> %s", f.State, to)
	}
	return nil
}

// ApplyTransition moves the filing to the target state. Transitioning to the
// current state is a no-op that still refreshes nothing. Call CanTransitionTo
// first.
func (f *Filing) ApplyTransition(to lifecycle.State, now time.Time) {
	if f.State == to {
		return
	}
	f.State = to
	f.UpdatedAt = now
}
