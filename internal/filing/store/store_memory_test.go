package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"taxfiling/internal/filing/lifecycle"
	"taxfiling/internal/filing/models"
	id "taxfiling/pkg/domain"
	"taxfiling/pkg/platform/sentinel"
)

type InMemoryFilingStoreSuite struct {
	suite.Suite
	store *InMemoryFilingStore
	ctx   context.Context
	now   time.Time
}

func (s *InMemoryFilingStoreSuite) SetupTest() {
	s.store = NewInMemoryFilingStore()
	s.ctx = context.Background()
	s.now = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
}

func TestInMemoryFilingStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryFilingStoreSuite))
}

func (s *InMemoryFilingStoreSuite) newFiling(owner id.UserID, key string) *models.Filing {
	period, err := id.ParseAssessmentPeriod("2026-27")
	s.Require().NoError(err)
	filing, err := models.NewFiling(id.FilingID(uuid.New()), owner, id.FormTypeITR1, period, key, s.now)
	s.Require().NoError(err)
	return filing
}

func (s *InMemoryFilingStoreSuite) TestCreateAndFind() {
	owner := id.UserID(uuid.New())
	filing := s.newFiling(owner, "key-1")

	s.Require().NoError(s.store.Create(s.ctx, filing))

	found, err := s.store.FindByID(s.ctx, filing.ID)
	s.Require().NoError(err)
	s.Equal(filing.ID, found.ID)
	s.Equal(lifecycle.StateDraftInit, found.State)

	byKey, err := s.store.FindByOwnerAndKey(s.ctx, owner, "key-1")
	s.Require().NoError(err)
	s.Equal(filing.ID, byKey.ID)
}

func (s *InMemoryFilingStoreSuite) TestIdempotencyKeyCollision() {
	owner := id.UserID(uuid.New())
	s.Require().NoError(s.store.Create(s.ctx, s.newFiling(owner, "key-1")))

	err := s.store.Create(s.ctx, s.newFiling(owner, "key-1"))
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)

	// Same key for a different owner is fine.
	s.NoError(s.store.Create(s.ctx, s.newFiling(id.UserID(uuid.New()), "key-1")))
}

func (s *InMemoryFilingStoreSuite) TestFindLiveByOwnerAndPeriodSkipsFiled() {
	owner := id.UserID(uuid.New())
	filing := s.newFiling(owner, "")
	s.Require().NoError(s.store.Create(s.ctx, filing))

	live, err := s.store.FindLiveByOwnerAndPeriod(s.ctx, owner, filing.Period)
	s.Require().NoError(err)
	s.Equal(filing.ID, live.ID)

	_, err = s.store.Execute(s.ctx, filing.ID, nil, func(f *models.Filing) {
		f.State = lifecycle.StateFiled
	})
	s.Require().NoError(err)

	_, err = s.store.FindLiveByOwnerAndPeriod(s.ctx, owner, filing.Period)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryFilingStoreSuite) TestExecuteValidateRejects() {
	filing := s.newFiling(id.UserID(uuid.New()), "")
	s.Require().NoError(s.store.Create(s.ctx, filing))

	_, err := s.store.Execute(s.ctx, filing.ID,
		func(f *models.Filing) error {
			return f.CanTransitionTo(lifecycle.StateSubmittedToCA)
		},
		func(f *models.Filing) {
			f.ApplyTransition(lifecycle.StateSubmittedToCA, s.now)
		},
	)
	s.Error(err)

	// Rejected mutation must not leak into the store.
	found, err := s.store.FindByID(s.ctx, filing.ID)
	s.Require().NoError(err)
	s.Equal(lifecycle.StateDraftInit, found.State)
}

func (s *InMemoryFilingStoreSuite) TestReturnedCopiesAreIsolated() {
	filing := s.newFiling(id.UserID(uuid.New()), "")
	filing.Computation = &models.ComputationResult{
		Version: 1,
		Context: &models.DownstreamContext{
			Requests: []models.AssistanceRequest{{ID: "req-1", Kind: "call"}},
		},
	}
	s.Require().NoError(s.store.Create(s.ctx, filing))

	found, err := s.store.FindByID(s.ctx, filing.ID)
	s.Require().NoError(err)
	found.Computation.Context.Requests[0].Kind = "tampered"

	again, err := s.store.FindByID(s.ctx, filing.ID)
	s.Require().NoError(err)
	s.Equal("call", again.Computation.Context.Requests[0].Kind)
}

type InMemoryDraftStoreSuite struct {
	suite.Suite
	store *InMemoryDraftStore
	ctx   context.Context
	now   time.Time
}

func (s *InMemoryDraftStoreSuite) SetupTest() {
	s.store = NewInMemoryDraftStore()
	s.ctx = context.Background()
	s.now = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
}

func TestInMemoryDraftStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryDraftStoreSuite))
}

func (s *InMemoryDraftStoreSuite) TestCreateAndFindActive() {
	filingID := id.FilingID(uuid.New())
	draft := models.NewDraft(id.DraftID(uuid.New()), filingID, models.DraftPayload{}, "income", s.now)
	s.Require().NoError(s.store.Create(s.ctx, draft))

	active, err := s.store.FindActiveByFiling(s.ctx, filingID)
	s.Require().NoError(err)
	s.Equal(draft.ID, active.ID)
	s.True(active.IsActive())
}

func (s *InMemoryDraftStoreSuite) TestUpdatePayloadKeepsStepWhenEmpty() {
	draft := models.NewDraft(id.DraftID(uuid.New()), id.FilingID(uuid.New()), models.DraftPayload{}, "income", s.now)
	s.Require().NoError(s.store.Create(s.ctx, draft))

	payload := models.DraftPayload{Income: models.IncomeDetails{GrossSalary: 500_000}}
	s.Require().NoError(s.store.UpdatePayload(s.ctx, draft.ID, payload, "", s.now.Add(time.Hour)))

	found, err := s.store.FindByID(s.ctx, draft.ID)
	s.Require().NoError(err)
	s.Equal(int64(500_000), found.Payload.Income.GrossSalary)
	s.Equal("income", found.Step)
	s.Equal(s.now.Add(time.Hour), found.UpdatedAt)
}

func (s *InMemoryDraftStoreSuite) TestArchiveKeepsDraftActiveAndRecordsHistory() {
	filingID := id.FilingID(uuid.New())
	draft := models.NewDraft(id.DraftID(uuid.New()), filingID, models.DraftPayload{
		Income: models.IncomeDetails{GrossSalary: 700_000},
	}, "", s.now)
	s.Require().NoError(s.store.Create(s.ctx, draft))

	s.Require().NoError(s.store.Archive(s.ctx, draft.ID, s.now.Add(time.Minute)))

	// The working copy stays active.
	active, err := s.store.FindActiveByFiling(s.ctx, filingID)
	s.Require().NoError(err)
	s.Equal(draft.ID, active.ID)

	history := s.store.HistoryByFiling(filingID)
	s.Require().Len(history, 1)
	s.False(history[0].IsActive())
	s.Equal(int64(700_000), history[0].Payload.Income.GrossSalary)
}

func (s *InMemoryDraftStoreSuite) TestNotFound() {
	_, err := s.store.FindByID(s.ctx, id.DraftID(uuid.New()))
	s.ErrorIs(err, sentinel.ErrNotFound)

	err = s.store.UpdatePayload(s.ctx, id.DraftID(uuid.New()), models.DraftPayload{}, "", s.now)
	s.ErrorIs(err, sentinel.ErrNotFound)
}
