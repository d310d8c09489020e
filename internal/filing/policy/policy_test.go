package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"taxfiling/internal/filing/lifecycle"
	"taxfiling/internal/filing/models"
	"taxfiling/internal/filing/snapshot"
)

func snapshots(salaryAfter int64) (snapshot.Snapshot, snapshot.Snapshot) {
	prev := snapshot.Extract(models.DraftPayload{
		Income: models.IncomeDetails{GrossSalary: 1_000_000},
	})
	next := snapshot.Extract(models.DraftPayload{
		Income: models.IncomeDetails{GrossSalary: salaryAfter},
	})
	return prev, next
}

func TestRollbackRequiredAfterComputation(t *testing.T) {
	prev, next := snapshots(1_200_000)

	for _, state := range []lifecycle.State{lifecycle.StateComputationDone, lifecycle.StateValidationSuccess} {
		decision := RequiresStateRollback(state, prev, next)
		assert.True(t, decision.Required, "expected rollback from %s", state)
		assert.Equal(t, lifecycle.StateDraftInProgress, decision.TargetState)
		assert.Equal(t, "material change to income after computation", decision.Reason)
	}
}

func TestNoRollbackBeforeComputation(t *testing.T) {
	prev, next := snapshots(1_200_000)

	for _, state := range []lifecycle.State{lifecycle.StateDraftInit, lifecycle.StateDraftInProgress} {
		decision := RequiresStateRollback(state, prev, next)
		assert.False(t, decision.Required, "no rollback expected from %s", state)
	}
}

func TestNoRollbackWithoutMaterialChange(t *testing.T) {
	prev, next := snapshots(1_000_000)

	decision := RequiresStateRollback(lifecycle.StateValidationSuccess, prev, next)
	assert.False(t, decision.Required)
}

func TestRollbackReasonNamesAllCategories(t *testing.T) {
	prev := snapshot.Extract(models.DraftPayload{
		Income: models.IncomeDetails{GrossSalary: 1_000_000},
	})
	next := snapshot.Extract(models.DraftPayload{
		Income:     models.IncomeDetails{GrossSalary: 900_000},
		Deductions: models.DeductionClaims{Section80C: 100_000},
	})

	decision := RequiresStateRollback(lifecycle.StateComputationDone, prev, next)
	assert.True(t, decision.Required)
	assert.Equal(t, "material change to income, deductions after computation", decision.Reason)
}

func TestShouldRecompute(t *testing.T) {
	prev, same := snapshots(1_000_000)
	_, changed := snapshots(1_200_000)

	assert.False(t, ShouldRecompute(prev, same))
	assert.True(t, ShouldRecompute(prev, changed))
}
