// Package policy holds the centralized rollback and recompute rules. Keeping
// them pure and in one place makes the invalidation behavior testable apart
// from the services that apply it.
package policy

import (
	"strings"

	"taxfiling/internal/filing/lifecycle"
	"taxfiling/internal/filing/snapshot"
)

// RollbackDecision says whether a data edit must regress the filing's state.
type RollbackDecision struct {
	Required    bool
	TargetState lifecycle.State
	Reason      string
}

// RequiresStateRollback decides whether an edit invalidates results the
// filing has already advanced past. Rollback is required iff the filing is at
// or beyond COMPUTATION_DONE and the snapshots differ materially; the target
// is always DRAFT_IN_PROGRESS. Before COMPUTATION_DONE there is nothing ahead
// to invalidate.
//
// The caller must apply the resulting transition in the same transaction as
// the draft mutation.
func RequiresStateRollback(current lifecycle.State, prev, next snapshot.Snapshot) RollbackDecision {
	if !current.AtOrPast(lifecycle.StateComputationDone) {
		return RollbackDecision{}
	}
	changes := prev.Diff(next)
	if len(changes) == 0 {
		return RollbackDecision{}
	}
	return RollbackDecision{
		Required:    true,
		TargetState: lifecycle.StateDraftInProgress,
		Reason:      "material change to " + strings.Join(snapshot.Categories(changes), ", ") + " after computation",
	}
}

// ShouldRecompute flags stored computation results as stale after an edit.
// Looser than rollback: it holds regardless of the current state, and is
// advisory only. The caller surfaces it; nothing here auto-triggers a
// computation, because compute is a metered operation a save must never
// invoke as a side effect.
func ShouldRecompute(prev, next snapshot.Snapshot) bool {
	return !prev.Equal(next)
}
