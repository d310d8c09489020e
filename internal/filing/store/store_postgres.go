package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"taxfiling/internal/filing/lifecycle"
	"taxfiling/internal/filing/models"
	id "taxfiling/pkg/domain"
	"taxfiling/pkg/platform/sentinel"
	txctx "taxfiling/pkg/platform/tx"
)

// PostgresFilingStore persists filings in PostgreSQL. The draft payload and
// computation bundle are stored as JSONB; per-filing serialization comes from
// SELECT ... FOR UPDATE inside the transaction carried in context.
type PostgresFilingStore struct {
	db *sql.DB
}

// NewPostgresFilingStore constructs a PostgreSQL-backed filing store.
func NewPostgresFilingStore(db *sql.DB) *PostgresFilingStore {
	return &PostgresFilingStore{db: db}
}

// querier lets store methods run against the ambient transaction when one is
// in context, falling back to the pool.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresFilingStore) q(ctx context.Context) querier {
	if tx, ok := txctx.From(ctx); ok {
		return tx
	}
	return s.db
}

const filingColumns = `id, owner_id, form_type, period, state, idempotency_key, computation, created_at, updated_at`

func (s *PostgresFilingStore) Create(ctx context.Context, filing *models.Filing) error {
	computation, err := marshalComputation(filing.Computation)
	if err != nil {
		return err
	}
	_, err = s.q(ctx).ExecContext(ctx, `
		INSERT INTO filings (`+filingColumns+`)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)`,
		uuid.UUID(filing.ID), uuid.UUID(filing.OwnerID), filing.FormType.String(), filing.Period.String(),
		filing.State.String(), filing.IdempotencyKey, computation, filing.CreatedAt, filing.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("idempotency key already bound: %w", sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("create filing: %w", err)
	}
	return nil
}

func (s *PostgresFilingStore) FindByID(ctx context.Context, filingID id.FilingID) (*models.Filing, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT `+filingColumns+` FROM filings WHERE id = $1`,
		uuid.UUID(filingID),
	)
	return scanFiling(row)
}

// FindByIDForUpdate locks the filing row FOR UPDATE for the remainder of the
// ambient transaction. Requires one; without it the lock would release
// before the caller's write.
func (s *PostgresFilingStore) FindByIDForUpdate(ctx context.Context, filingID id.FilingID) (*models.Filing, error) {
	tx, ok := txctx.From(ctx)
	if !ok {
		return nil, fmt.Errorf("filing find for update requires a transaction in context")
	}
	row := tx.QueryRowContext(ctx, `
		SELECT `+filingColumns+` FROM filings WHERE id = $1 FOR UPDATE`,
		uuid.UUID(filingID),
	)
	return scanFiling(row)
}

func (s *PostgresFilingStore) FindByOwnerAndKey(ctx context.Context, owner id.UserID, key string) (*models.Filing, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT `+filingColumns+` FROM filings WHERE owner_id = $1 AND idempotency_key = $2`,
		uuid.UUID(owner), key,
	)
	return scanFiling(row)
}

func (s *PostgresFilingStore) FindLiveByOwnerAndPeriod(ctx context.Context, owner id.UserID, period id.AssessmentPeriod) (*models.Filing, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT `+filingColumns+` FROM filings
		WHERE owner_id = $1 AND period = $2 AND state <> 'FILED'
		ORDER BY created_at DESC LIMIT 1`,
		uuid.UUID(owner), period.String(),
	)
	return scanFiling(row)
}

// Execute locks the filing row FOR UPDATE, runs validate then mutate, and
// writes the result back. Requires an ambient transaction; without one the
// row lock would release before the write.
func (s *PostgresFilingStore) Execute(ctx context.Context, filingID id.FilingID, validate func(*models.Filing) error, mutate func(*models.Filing)) (*models.Filing, error) {
	tx, ok := txctx.From(ctx)
	if !ok {
		return nil, fmt.Errorf("filing execute requires a transaction in context")
	}
	row := tx.QueryRowContext(ctx, `
		SELECT `+filingColumns+` FROM filings WHERE id = $1 FOR UPDATE`,
		uuid.UUID(filingID),
	)
	filing, err := scanFiling(row)
	if err != nil {
		return nil, err
	}
	if validate != nil {
		if err := validate(filing); err != nil {
			return nil, err
		}
	}
	if mutate != nil {
		mutate(filing)
	}
	computation, err := marshalComputation(filing.Computation)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE filings SET state = $2, computation = $3, updated_at = $4 WHERE id = $1`,
		uuid.UUID(filingID), filing.State.String(), computation, filing.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update filing: %w", err)
	}
	return filing, nil
}

func scanFiling(row *sql.Row) (*models.Filing, error) {
	var (
		filingID, ownerID    uuid.UUID
		formType, period, st string
		idempotencyKey       sql.NullString
		computation          []byte
		createdAt, updatedAt time.Time
	)
	err := row.Scan(&filingID, &ownerID, &formType, &period, &st, &idempotencyKey, &computation, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("filing not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan filing: %w", err)
	}

	parsedForm, err := id.ParseFormType(formType)
	if err != nil {
		return nil, fmt.Errorf("scan filing: %w", err)
	}
	parsedState, err := lifecycle.ParseState(st)
	if err != nil {
		return nil, fmt.Errorf("scan filing: %w", err)
	}

	filing := &models.Filing{
		ID:             id.FilingID(filingID),
		OwnerID:        id.UserID(ownerID),
		FormType:       parsedForm,
		Period:         id.AssessmentPeriod(period),
		State:          parsedState,
		IdempotencyKey: idempotencyKey.String,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}
	if len(computation) > 0 {
		var comp models.ComputationResult
		if err := json.Unmarshal(computation, &comp); err != nil {
			return nil, fmt.Errorf("unmarshal computation: %w", err)
		}
		filing.Computation = &comp
	}
	return filing, nil
}

func marshalComputation(comp *models.ComputationResult) ([]byte, error) {
	if comp == nil {
		return nil, nil
	}
	raw, err := json.Marshal(comp)
	if err != nil {
		return nil, fmt.Errorf("marshal computation: %w", err)
	}
	return raw, nil
}

// PostgresDraftStore persists drafts in PostgreSQL. The active draft is the
// row with superseded_at IS NULL; Archive inserts a frozen copy instead of
// mutating history.
type PostgresDraftStore struct {
	db *sql.DB
}

// NewPostgresDraftStore constructs a PostgreSQL-backed draft store.
func NewPostgresDraftStore(db *sql.DB) *PostgresDraftStore {
	return &PostgresDraftStore{db: db}
}

func (s *PostgresDraftStore) q(ctx context.Context) querier {
	if tx, ok := txctx.From(ctx); ok {
		return tx
	}
	return s.db
}

const draftColumns = `id, filing_id, payload, step, created_at, updated_at, superseded_at`

func (s *PostgresDraftStore) Create(ctx context.Context, draft *models.Draft) error {
	payload, err := json.Marshal(draft.Payload)
	if err != nil {
		return fmt.Errorf("marshal draft payload: %w", err)
	}
	_, err = s.q(ctx).ExecContext(ctx, `
		INSERT INTO drafts (`+draftColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, NULL)`,
		uuid.UUID(draft.ID), uuid.UUID(draft.FilingID), payload, draft.Step, draft.CreatedAt, draft.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create draft: %w", err)
	}
	return nil
}

func (s *PostgresDraftStore) FindByID(ctx context.Context, draftID id.DraftID) (*models.Draft, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT `+draftColumns+` FROM drafts WHERE id = $1 AND superseded_at IS NULL`,
		uuid.UUID(draftID),
	)
	return scanDraft(row)
}

func (s *PostgresDraftStore) FindActiveByFiling(ctx context.Context, filingID id.FilingID) (*models.Draft, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT `+draftColumns+` FROM drafts WHERE filing_id = $1 AND superseded_at IS NULL`,
		uuid.UUID(filingID),
	)
	return scanDraft(row)
}

func (s *PostgresDraftStore) UpdatePayload(ctx context.Context, draftID id.DraftID, payload models.DraftPayload, step string, now time.Time) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal draft payload: %w", err)
	}
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE drafts SET payload = $2, step = COALESCE(NULLIF($3, ''), step), updated_at = $4
		WHERE id = $1 AND superseded_at IS NULL`,
		uuid.UUID(draftID), raw, step, now,
	)
	if err != nil {
		return fmt.Errorf("update draft payload: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update draft payload: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("draft not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresDraftStore) Archive(ctx context.Context, draftID id.DraftID, now time.Time) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO drafts (id, filing_id, payload, step, created_at, updated_at, superseded_at)
		SELECT gen_random_uuid(), filing_id, payload, step, created_at, updated_at, $2
		FROM drafts WHERE id = $1 AND superseded_at IS NULL`,
		uuid.UUID(draftID), now,
	)
	if err != nil {
		return fmt.Errorf("archive draft: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("archive draft: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("draft not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func scanDraft(row *sql.Row) (*models.Draft, error) {
	var (
		draftID, filingID    uuid.UUID
		payload              []byte
		step                 string
		createdAt, updatedAt time.Time
		supersededAt         sql.NullTime
	)
	err := row.Scan(&draftID, &filingID, &payload, &step, &createdAt, &updatedAt, &supersededAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("draft not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan draft: %w", err)
	}

	draft := &models.Draft{
		ID:        id.DraftID(draftID),
		FilingID:  id.FilingID(filingID),
		Step:      step,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	if err := json.Unmarshal(payload, &draft.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal draft payload: %w", err)
	}
	if supersededAt.Valid {
		draft.SupersededAt = &supersededAt.Time
	}
	return draft, nil
}
