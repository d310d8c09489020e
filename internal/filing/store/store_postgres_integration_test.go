//go:build integration

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"taxfiling/internal/filing/lifecycle"
	"taxfiling/internal/filing/models"
	"taxfiling/internal/filing/service"
	id "taxfiling/pkg/domain"
	"taxfiling/pkg/platform/sentinel"
	"taxfiling/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg      *containers.PostgresContainer
	filings *PostgresFilingStore
	drafts  *PostgresDraftStore
	tx      *service.SQLTx
	ctx     context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.pg.ApplySchema(s.T(), "schema.sql")
	s.filings = NewPostgresFilingStore(s.pg.DB)
	s.drafts = NewPostgresDraftStore(s.pg.DB)
	s.tx = service.NewSQLTx(s.pg.DB)
	s.ctx = context.Background()
}

func (s *PostgresStoreSuite) TearDownSuite() {
	s.pg.Terminate(s.T())
}

func (s *PostgresStoreSuite) SetupTest() {
	_, err := s.pg.DB.Exec(`TRUNCATE drafts, filings`)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) newFiling(owner id.UserID, key string) *models.Filing {
	period, err := id.ParseAssessmentPeriod("2026-27")
	s.Require().NoError(err)
	filing, err := models.NewFiling(id.FilingID(uuid.New()), owner, id.FormTypeITR1, period, key, time.Now().UTC())
	s.Require().NoError(err)
	return filing
}

func (s *PostgresStoreSuite) TestCreateAndFind() {
	filing := s.newFiling(id.UserID(uuid.New()), "key-1")
	s.Require().NoError(s.filings.Create(s.ctx, filing))

	found, err := s.filings.FindByID(s.ctx, filing.ID)
	s.Require().NoError(err)
	s.Equal(filing.ID, found.ID)
	s.Equal(lifecycle.StateDraftInit, found.State)
	s.Equal("key-1", found.IdempotencyKey)
}

func (s *PostgresStoreSuite) TestIdempotencyKeyUniquePerOwner() {
	owner := id.UserID(uuid.New())
	s.Require().NoError(s.filings.Create(s.ctx, s.newFiling(owner, "key-1")))

	err := s.filings.Create(s.ctx, s.newFiling(owner, "key-1"))
	s.Require().Error(err)
	s.True(errors.Is(err, sentinel.ErrAlreadyUsed))

	// A different owner may reuse the key.
	s.NoError(s.filings.Create(s.ctx, s.newFiling(id.UserID(uuid.New()), "key-1")))
}

func (s *PostgresStoreSuite) TestFindByOwnerAndKey() {
	owner := id.UserID(uuid.New())
	filing := s.newFiling(owner, "key-2")
	s.Require().NoError(s.filings.Create(s.ctx, filing))

	found, err := s.filings.FindByOwnerAndKey(s.ctx, owner, "key-2")
	s.Require().NoError(err)
	s.Equal(filing.ID, found.ID)

	_, err = s.filings.FindByOwnerAndKey(s.ctx, owner, "missing")
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

func (s *PostgresStoreSuite) TestFindLiveExcludesFiled() {
	owner := id.UserID(uuid.New())
	period, err := id.ParseAssessmentPeriod("2026-27")
	s.Require().NoError(err)

	filed := s.newFiling(owner, "key-filed")
	filed.State = lifecycle.StateFiled
	s.Require().NoError(s.filings.Create(s.ctx, filed))

	_, err = s.filings.FindLiveByOwnerAndPeriod(s.ctx, owner, period)
	s.True(errors.Is(err, sentinel.ErrNotFound))

	live := s.newFiling(owner, "key-live")
	s.Require().NoError(s.filings.Create(s.ctx, live))

	found, err := s.filings.FindLiveByOwnerAndPeriod(s.ctx, owner, period)
	s.Require().NoError(err)
	s.Equal(live.ID, found.ID)
}

func (s *PostgresStoreSuite) TestExecutePersistsMutation() {
	filing := s.newFiling(id.UserID(uuid.New()), "key-exec")
	s.Require().NoError(s.filings.Create(s.ctx, filing))

	err := s.tx.RunInTx(s.ctx, func(txCtx context.Context) error {
		_, err := s.filings.Execute(txCtx, filing.ID, nil, func(f *models.Filing) {
			f.State = lifecycle.StateDraftInProgress
			f.Computation = &models.ComputationResult{
				Version:    1,
				ComputedAt: time.Now().UTC(),
				Liability:  models.TaxLiability{Regime: models.RegimeNew, TotalTax: 41_600},
				Signals:    []models.Signal{},
			}
			f.UpdatedAt = time.Now().UTC()
		})
		return err
	})
	s.Require().NoError(err)

	found, err := s.filings.FindByID(s.ctx, filing.ID)
	s.Require().NoError(err)
	s.Equal(lifecycle.StateDraftInProgress, found.State)
	s.Require().NotNil(found.Computation)
	s.Equal(1, found.Computation.Version)
	s.Equal(int64(41_600), found.Computation.Liability.TotalTax)
}

func (s *PostgresStoreSuite) TestExecuteValidateRejectionRollsBack() {
	filing := s.newFiling(id.UserID(uuid.New()), "key-reject")
	s.Require().NoError(s.filings.Create(s.ctx, filing))

	rejected := errors.New("rejected")
	err := s.tx.RunInTx(s.ctx, func(txCtx context.Context) error {
		_, err := s.filings.Execute(txCtx, filing.ID,
			func(*models.Filing) error { return rejected },
			func(f *models.Filing) { f.State = lifecycle.StateLocked })
		return err
	})
	s.True(errors.Is(err, rejected))

	found, err := s.filings.FindByID(s.ctx, filing.ID)
	s.Require().NoError(err)
	s.Equal(lifecycle.StateDraftInit, found.State)
}

func (s *PostgresStoreSuite) TestFindForUpdateRequiresTransaction() {
	filing := s.newFiling(id.UserID(uuid.New()), "key-lock-notx")
	s.Require().NoError(s.filings.Create(s.ctx, filing))

	_, err := s.filings.FindByIDForUpdate(s.ctx, filing.ID)
	s.Error(err)
}

func (s *PostgresStoreSuite) TestFindForUpdateHoldsRowLock() {
	filing := s.newFiling(id.UserID(uuid.New()), "key-lock")
	s.Require().NoError(s.filings.Create(s.ctx, filing))

	locked := make(chan struct{})
	second := make(chan error, 1)

	go func() {
		second <- s.tx.RunInTx(s.ctx, func(txCtx context.Context) error {
			<-locked
			// Blocks until the first transaction commits.
			_, err := s.filings.FindByIDForUpdate(txCtx, filing.ID)
			return err
		})
	}()

	err := s.tx.RunInTx(s.ctx, func(txCtx context.Context) error {
		if _, err := s.filings.FindByIDForUpdate(txCtx, filing.ID); err != nil {
			return err
		}
		close(locked)
		select {
		case err := <-second:
			s.T().Errorf("second transaction acquired the row lock while the first held it (err=%v)", err)
		case <-time.After(100 * time.Millisecond):
		}
		return nil
	})
	s.Require().NoError(err)
	s.Require().NoError(<-second)
}

func (s *PostgresStoreSuite) TestExecuteRequiresTransaction() {
	filing := s.newFiling(id.UserID(uuid.New()), "key-notx")
	s.Require().NoError(s.filings.Create(s.ctx, filing))

	_, err := s.filings.Execute(s.ctx, filing.ID, nil, nil)
	s.Error(err)
}

func (s *PostgresStoreSuite) TestDraftRoundTrip() {
	filing := s.newFiling(id.UserID(uuid.New()), "key-draft")
	s.Require().NoError(s.filings.Create(s.ctx, filing))

	payload := models.DraftPayload{
		Personal: models.PersonalInfo{FullName: "Asha Rao", PAN: "ABCDE1234F"},
		Income:   models.IncomeDetails{GrossSalary: 900_000},
	}
	draft := models.NewDraft(id.DraftID(uuid.New()), filing.ID, payload, "income", time.Now().UTC())
	s.Require().NoError(s.drafts.Create(s.ctx, draft))

	found, err := s.drafts.FindByID(s.ctx, draft.ID)
	s.Require().NoError(err)
	s.Equal(payload, found.Payload)
	s.Equal("income", found.Step)

	active, err := s.drafts.FindActiveByFiling(s.ctx, filing.ID)
	s.Require().NoError(err)
	s.Equal(draft.ID, active.ID)
}

func (s *PostgresStoreSuite) TestUpdatePayloadKeepsStepWhenEmpty() {
	filing := s.newFiling(id.UserID(uuid.New()), "key-step")
	s.Require().NoError(s.filings.Create(s.ctx, filing))
	draft := models.NewDraft(id.DraftID(uuid.New()), filing.ID, models.DraftPayload{}, "income", time.Now().UTC())
	s.Require().NoError(s.drafts.Create(s.ctx, draft))

	updated := models.DraftPayload{Income: models.IncomeDetails{GrossSalary: 100}}
	s.Require().NoError(s.drafts.UpdatePayload(s.ctx, draft.ID, updated, "", time.Now().UTC()))

	found, err := s.drafts.FindByID(s.ctx, draft.ID)
	s.Require().NoError(err)
	s.Equal(int64(100), found.Payload.Income.GrossSalary)
	s.Equal("income", found.Step)

	s.Require().NoError(s.drafts.UpdatePayload(s.ctx, draft.ID, updated, "deductions", time.Now().UTC()))
	found, err = s.drafts.FindByID(s.ctx, draft.ID)
	s.Require().NoError(err)
	s.Equal("deductions", found.Step)
}

func (s *PostgresStoreSuite) TestArchiveFreezesHistory() {
	filing := s.newFiling(id.UserID(uuid.New()), "key-archive")
	s.Require().NoError(s.filings.Create(s.ctx, filing))
	draft := models.NewDraft(id.DraftID(uuid.New()), filing.ID, models.DraftPayload{
		Income: models.IncomeDetails{GrossSalary: 500_000},
	}, "", time.Now().UTC())
	s.Require().NoError(s.drafts.Create(s.ctx, draft))

	s.Require().NoError(s.drafts.Archive(s.ctx, draft.ID, time.Now().UTC()))

	// The working draft stays active; the archived copy is frozen.
	active, err := s.drafts.FindActiveByFiling(s.ctx, filing.ID)
	s.Require().NoError(err)
	s.Equal(draft.ID, active.ID)
	s.Nil(active.SupersededAt)

	var archived int
	err = s.pg.DB.QueryRow(`
		SELECT COUNT(*) FROM drafts WHERE filing_id = $1 AND superseded_at IS NOT NULL`,
		uuid.UUID(filing.ID)).Scan(&archived)
	s.Require().NoError(err)
	s.Equal(1, archived)
}

func (s *PostgresStoreSuite) TestDraftNotFound() {
	_, err := s.drafts.FindByID(s.ctx, id.DraftID(uuid.New()))
	s.True(errors.Is(err, sentinel.ErrNotFound))

	err = s.drafts.UpdatePayload(s.ctx, id.DraftID(uuid.New()), models.DraftPayload{}, "", time.Now().UTC())
	s.True(errors.Is(err, sentinel.ErrNotFound))
}
