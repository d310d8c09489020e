// Package store persists filings and drafts. Implementations come in pairs:
// an in-memory store for tests/dev and a PostgreSQL store for production.
//
// Error Contract:
// All store methods follow this pattern:
//   - Return sentinel.ErrNotFound (wrapped) when the entity does not exist
//   - Return sentinel.ErrAlreadyUsed (wrapped) on idempotency-key collisions
//   - Return wrapped errors with context for infrastructure failures
//
// Services translate sentinel errors into coded domain errors.
package store

import (
	"context"
	"time"

	"taxfiling/internal/filing/models"
	id "taxfiling/pkg/domain"
)

// FilingStore persists filing aggregates, including their computation
// results.
type FilingStore interface {
	// Create inserts a new filing. The idempotency key, when set, is unique
	// per owner; a collision returns sentinel.ErrAlreadyUsed.
	Create(ctx context.Context, filing *models.Filing) error

	FindByID(ctx context.Context, filingID id.FilingID) (*models.Filing, error)

	// FindByIDForUpdate loads the filing under the per-filing write lock, so
	// the state a caller decides on cannot move before its write lands. Must
	// run inside the caller's transaction boundary.
	FindByIDForUpdate(ctx context.Context, filingID id.FilingID) (*models.Filing, error)

	// FindByOwnerAndKey resolves an idempotency key to its filing.
	FindByOwnerAndKey(ctx context.Context, owner id.UserID, key string) (*models.Filing, error)

	// FindLiveByOwnerAndPeriod returns the owner's non-FILED filing for the
	// period, if one exists.
	FindLiveByOwnerAndPeriod(ctx context.Context, owner id.UserID, period id.AssessmentPeriod) (*models.Filing, error)

	// Execute atomically loads the filing, runs validate, and when it
	// passes, runs mutate and persists the result. The lock (mutex or
	// SELECT ... FOR UPDATE) is held for both steps, so concurrent
	// read-modify-writes of the same filing cannot interleave.
	Execute(ctx context.Context, filingID id.FilingID, validate func(*models.Filing) error, mutate func(*models.Filing)) (*models.Filing, error)
}

// DraftStore persists draft documents.
type DraftStore interface {
	Create(ctx context.Context, draft *models.Draft) error

	FindByID(ctx context.Context, draftID id.DraftID) (*models.Draft, error)

	// FindActiveByFiling returns the filing's current working copy.
	FindActiveByFiling(ctx context.Context, filingID id.FilingID) (*models.Draft, error)

	// UpdatePayload replaces the active draft's payload and step marker.
	UpdatePayload(ctx context.Context, draftID id.DraftID, payload models.DraftPayload, step string, now time.Time) error

	// Archive records a superseded copy of the draft as it stands now,
	// preserving audit history. The draft itself stays active.
	Archive(ctx context.Context, draftID id.DraftID, now time.Time) error
}
