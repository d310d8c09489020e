package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"taxfiling/internal/filing/lifecycle"
	"taxfiling/internal/filing/models"
	"taxfiling/internal/filing/ports"
	"taxfiling/internal/filing/store"
	id "taxfiling/pkg/domain"
	dErrors "taxfiling/pkg/domain-errors"
	"taxfiling/pkg/requestcontext"
)

type stubTaxEngine struct {
	liability models.TaxLiability
	err       error
	calls     int
}

func (s *stubTaxEngine) Compute(context.Context, id.FormType, models.DraftPayload, id.AssessmentPeriod) (models.TaxLiability, error) {
	s.calls++
	return s.liability, s.err
}

type stubSignalGenerator struct {
	signals []models.Signal
	err     error
}

func (s *stubSignalGenerator) Run(context.Context, models.DraftPayload, models.TaxLiability, id.FormType) ([]models.Signal, error) {
	return s.signals, s.err
}

type stubConfidenceEngine struct {
	result models.ConfidenceResult
	err    error
}

func (s *stubConfidenceEngine) Evaluate(context.Context, ports.ConfidenceInput) (models.ConfidenceResult, error) {
	return s.result, s.err
}

type stubContextEngine struct {
	result *models.DownstreamContext
	err    error
}

func (s *stubContextEngine) EvaluateContext(context.Context, ports.ContextInput) (*models.DownstreamContext, error) {
	return s.result, s.err
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, id.UserID) (bool, error) { return false, nil }

type OrchestratorSuite struct {
	suite.Suite
	filings    *store.InMemoryFilingStore
	drafts     *store.InMemoryDraftStore
	tax        *stubTaxEngine
	signals    *stubSignalGenerator
	confidence *stubConfidenceEngine
	downstream *stubContextEngine
	ctx        context.Context
	owner      lifecycle.Actor
	now        time.Time
}

func (s *OrchestratorSuite) SetupTest() {
	s.filings = store.NewInMemoryFilingStore()
	s.drafts = store.NewInMemoryDraftStore()
	s.tax = &stubTaxEngine{liability: models.TaxLiability{
		Regime:        models.RegimeNew,
		TaxableIncome: 850_000,
		GrossTax:      40_000,
		Cess:          1_600,
		TotalTax:      41_600,
	}}
	s.signals = &stubSignalGenerator{signals: []models.Signal{
		{Code: "PAN_UNVERIFIED", Severity: models.SeverityWarning, Message: "PAN has not been verified"},
	}}
	s.confidence = &stubConfidenceEngine{result: models.ConfidenceResult{TrustScore: 80, Band: models.BandHigh}}
	s.downstream = &stubContextEngine{result: &models.DownstreamContext{Eligible: true, Urgency: models.UrgencyLow}}
	s.now = time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.owner = lifecycle.Actor{UserID: id.UserID(uuid.New()), Role: lifecycle.RoleOwner}
}

func TestOrchestratorSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorSuite))
}

func (s *OrchestratorSuite) orchestrator(opts ...Option) *Orchestrator {
	return New(s.filings, s.drafts, Engines{
		Tax:        s.tax,
		Signals:    s.signals,
		Confidence: s.confidence,
		Context:    s.downstream,
	}, opts...)
}

func (s *OrchestratorSuite) seedFiling(state lifecycle.State) *models.Filing {
	period, err := id.ParseAssessmentPeriod("2026-27")
	s.Require().NoError(err)
	filing, err := models.NewFiling(id.FilingID(uuid.New()), s.owner.UserID, id.FormTypeITR1, period, "", s.now)
	s.Require().NoError(err)
	filing.State = state
	s.Require().NoError(s.filings.Create(s.ctx, filing))

	draft := models.NewDraft(id.DraftID(uuid.New()), filing.ID, models.DraftPayload{
		Income: models.IncomeDetails{GrossSalary: 900_000},
	}, "", s.now)
	s.Require().NoError(s.drafts.Create(s.ctx, draft))
	return filing
}

func (s *OrchestratorSuite) TestComputeAdvancesState() {
	filing := s.seedFiling(lifecycle.StateDraftInProgress)

	result, err := s.orchestrator().Compute(s.ctx, s.owner, filing.ID)
	s.Require().NoError(err)
	s.Equal(lifecycle.StateComputationDone, result.Filing.State)
	s.Equal(1, result.Computation.Version)
	s.Equal(int64(41_600), result.Computation.Liability.TotalTax)
	s.Empty(result.DegradedStages)

	// The run archived the draft inputs it computed from.
	s.Len(s.drafts.HistoryByFiling(filing.ID), 1)
}

func (s *OrchestratorSuite) TestRecomputeNeverDowngrades() {
	filing := s.seedFiling(lifecycle.StateValidationSuccess)
	_, err := s.filings.Execute(s.ctx, filing.ID, nil, func(f *models.Filing) {
		f.Computation = &models.ComputationResult{Version: 3}
	})
	s.Require().NoError(err)

	result, err := s.orchestrator().Compute(s.ctx, s.owner, filing.ID)
	s.Require().NoError(err)
	s.Equal(lifecycle.StateValidationSuccess, result.Filing.State)
	s.Equal(4, result.Computation.Version)
}

func (s *OrchestratorSuite) TestTaxFailureAbortsRun() {
	filing := s.seedFiling(lifecycle.StateDraftInProgress)
	s.tax.err = errors.New("upstream engine unavailable")

	_, err := s.orchestrator().Compute(s.ctx, s.owner, filing.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	// Nothing persisted: no result, no state change.
	found, err := s.filings.FindByID(s.ctx, filing.ID)
	s.Require().NoError(err)
	s.Equal(lifecycle.StateDraftInProgress, found.State)
	s.Nil(found.Computation)
}

func (s *OrchestratorSuite) TestSignalStageDegradesToEmpty() {
	filing := s.seedFiling(lifecycle.StateDraftInProgress)
	s.signals.err = errors.New("signal model offline")

	result, err := s.orchestrator().Compute(s.ctx, s.owner, filing.ID)
	s.Require().NoError(err)
	s.Equal([]string{StageSignals}, result.DegradedStages)
	s.NotNil(result.Computation.Signals)
	s.Empty(result.Computation.Signals)
	// Liability stays authoritative.
	s.Equal(int64(41_600), result.Computation.Liability.TotalTax)
}

func (s *OrchestratorSuite) TestConfidenceStageDegradesToLow() {
	filing := s.seedFiling(lifecycle.StateDraftInProgress)
	s.confidence.err = errors.New("scoring timeout")

	result, err := s.orchestrator().Compute(s.ctx, s.owner, filing.ID)
	s.Require().NoError(err)
	s.Equal([]string{StageConfidence}, result.DegradedStages)
	s.True(result.Computation.Confidence.Degraded)
	s.Equal(models.BandLow, result.Computation.Confidence.Band)
	s.Zero(result.Computation.Confidence.TrustScore)
}

func (s *OrchestratorSuite) TestContextStageDegradesToNil() {
	filing := s.seedFiling(lifecycle.StateDraftInProgress)
	s.downstream.err = errors.New("router unavailable")

	result, err := s.orchestrator().Compute(s.ctx, s.owner, filing.ID)
	s.Require().NoError(err)
	s.Equal([]string{StageContext}, result.DegradedStages)
	s.Nil(result.Computation.Context)
}

func (s *OrchestratorSuite) TestAssistanceRequestsCarriedForward() {
	filing := s.seedFiling(lifecycle.StateComputationDone)
	requests := []models.AssistanceRequest{
		{ID: "req-1", Kind: "call_me", Note: "prefer evenings", CreatedAt: s.now.Add(-time.Hour)},
	}
	_, err := s.filings.Execute(s.ctx, filing.ID, nil, func(f *models.Filing) {
		f.Computation = &models.ComputationResult{
			Version: 1,
			Context: &models.DownstreamContext{Eligible: true, Requests: requests},
		}
	})
	s.Require().NoError(err)

	result, err := s.orchestrator().Compute(s.ctx, s.owner, filing.ID)
	s.Require().NoError(err)
	s.Equal(2, result.Computation.Version)
	s.Require().NotNil(result.Computation.Context)
	s.Equal(requests, result.Computation.Context.Requests)
}

func (s *OrchestratorSuite) TestAssistanceRequestsSurviveContextDegradation() {
	filing := s.seedFiling(lifecycle.StateComputationDone)
	requests := []models.AssistanceRequest{{ID: "req-1", Kind: "call_me", CreatedAt: s.now.Add(-time.Hour)}}
	_, err := s.filings.Execute(s.ctx, filing.ID, nil, func(f *models.Filing) {
		f.Computation = &models.ComputationResult{
			Version: 1,
			Context: &models.DownstreamContext{Eligible: true, Requests: requests},
		}
	})
	s.Require().NoError(err)
	s.downstream.err = errors.New("router unavailable")

	result, err := s.orchestrator().Compute(s.ctx, s.owner, filing.ID)
	s.Require().NoError(err)
	s.Require().NotNil(result.Computation.Context, "prior requests must survive a degraded context stage")
	s.True(result.Computation.Context.Degraded)
	s.Equal(requests, result.Computation.Context.Requests)
}

func (s *OrchestratorSuite) TestComputeBlockedStates() {
	for _, state := range []lifecycle.State{lifecycle.StateSubmittedToCA, lifecycle.StateFiled, lifecycle.StateLocked} {
		s.Run(string(state), func() {
			filing := s.seedFiling(state)
			_, err := s.orchestrator().Compute(s.ctx, s.owner, filing.ID)
			s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
			s.Zero(s.tax.calls, "tax engine must not run for %s", state)

			_, err = s.filings.Execute(s.ctx, filing.ID, nil, func(f *models.Filing) {
				f.State = lifecycle.StateFiled
			})
			s.Require().NoError(err)
		})
	}
}

func (s *OrchestratorSuite) TestThrottleDenies() {
	filing := s.seedFiling(lifecycle.StateDraftInProgress)

	_, err := s.orchestrator(WithThrottle(denyLimiter{})).Compute(s.ctx, s.owner, filing.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
	s.Zero(s.tax.calls)
}

func (s *OrchestratorSuite) TestOwnershipDoesNotLeakExistence() {
	filing := s.seedFiling(lifecycle.StateDraftInProgress)
	stranger := lifecycle.Actor{UserID: id.UserID(uuid.New()), Role: lifecycle.RoleOwner}

	_, err := s.orchestrator().Compute(s.ctx, stranger, filing.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
