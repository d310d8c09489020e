// Package service orchestrates draft creation and mutation. It owns
// idempotency and ownership checks, applies the rollback policy inside the
// same transaction as the payload write, and keeps the lifecycle state
// machine as the only path to a state change.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"taxfiling/internal/filing/lifecycle"
	filingmetrics "taxfiling/internal/filing/metrics"
	"taxfiling/internal/filing/models"
	"taxfiling/internal/filing/notify"
	"taxfiling/internal/filing/policy"
	"taxfiling/internal/filing/ports"
	"taxfiling/internal/filing/snapshot"
	"taxfiling/internal/filing/store"
	id "taxfiling/pkg/domain"
	dErrors "taxfiling/pkg/domain-errors"
	"taxfiling/pkg/platform/sentinel"
	"taxfiling/pkg/requestcontext"
)

// Service orchestrates the draft side of the filing lifecycle.
type Service struct {
	filings     store.FilingStore
	drafts      store.DraftStore
	tx          StoreTx
	eligibility ports.Eligibility
	shape       ports.ShapeValidator
	outbox      *notify.Outbox
	logger      *slog.Logger
	metrics     *filingmetrics.Metrics
}

// Option configures optional service collaborators.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *filingmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithOutbox(outbox *notify.Outbox) Option {
	return func(s *Service) { s.outbox = outbox }
}

func WithStoreTx(tx StoreTx) Option {
	return func(s *Service) { s.tx = tx }
}

// New constructs a Service. Without WithStoreTx it defaults to the in-memory
// transaction boundary, which pairs with the in-memory stores.
func New(filings store.FilingStore, drafts store.DraftStore, eligibility ports.Eligibility, shape ports.ShapeValidator, opts ...Option) *Service {
	s := &Service{
		filings:     filings,
		drafts:      drafts,
		eligibility: eligibility,
		shape:       shape,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = NewMemoryTx()
	}
	return s
}

// CreateDraftInput carries the request to open a filing.
type CreateDraftInput struct {
	FormType       string
	Period         string
	Payload        models.DraftPayload
	Step           string
	IdempotencyKey string
}

// CreateDraftResult identifies the draft and its parent filing.
type CreateDraftResult struct {
	Filing         *models.Filing
	Draft          *models.Draft
	IdempotencyHit bool
}

// CreateDraft validates the request, resolves the idempotency key, and
// creates the Filing+Draft pair in one transaction. A matching key returns
// the existing pair instead of creating a duplicate.
func (s *Service) CreateDraft(ctx context.Context, owner id.UserID, in CreateDraftInput) (*CreateDraftResult, error) {
	formType, err := id.ParseFormType(in.FormType)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, err.Error())
	}
	period, err := id.ParseAssessmentPeriod(in.Period)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, err.Error())
	}

	report, err := s.shape.ValidateShape(ctx, formType, in.Payload)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "payload shape check failed")
	}
	if !report.Valid {
		return nil, dErrors.WithFields(dErrors.CodeValidation, "draft payload failed shape validation", toFieldErrors(report.Errors))
	}

	if in.IdempotencyKey != "" {
		if result, ok, err := s.resolveIdempotent(ctx, owner, in.IdempotencyKey); err != nil {
			return nil, err
		} else if ok {
			return result, nil
		}
	}

	eligible, err := s.eligibility.IsEligibleToFile(ctx, owner)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "eligibility check failed")
	}
	if !eligible {
		return nil, dErrors.New(dErrors.CodePreconditionFailed, "owner is not eligible to file for this period")
	}

	if existing, err := s.filings.FindLiveByOwnerAndPeriod(ctx, owner, period); err == nil && existing != nil {
		return nil, dErrors.Newf(dErrors.CodeConflict, "a filing for period %s already exists", period)
	} else if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check existing filings")
	}

	now := requestcontext.Now(ctx)
	filing, err := models.NewFiling(id.FilingID(uuid.New()), owner, formType, period, in.IdempotencyKey, now)
	if err != nil {
		return nil, err
	}
	draft := models.NewDraft(id.DraftID(uuid.New()), filing.ID, in.Payload, in.Step, now)

	ctx = WithTxShard(ctx, filing.ID.String())
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.filings.Create(txCtx, filing); err != nil {
			return err
		}
		return s.drafts.Create(txCtx, draft)
	})
	if err != nil {
		// Lost a race on the idempotency key: return the winner.
		if errors.Is(err, sentinel.ErrAlreadyUsed) && in.IdempotencyKey != "" {
			if result, ok, rerr := s.resolveIdempotent(ctx, owner, in.IdempotencyKey); rerr == nil && ok {
				return result, nil
			}
			return nil, dErrors.New(dErrors.CodeConflict, "idempotency key already in use")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create filing")
	}

	s.logAudit(ctx, "filing.draft_created",
		"filing_id", filing.ID.String(),
		"user_id", owner.String(),
		"form_type", formType.String(),
	)
	if s.metrics != nil {
		s.metrics.DraftsCreated.Inc()
	}
	s.enqueue(notify.Event{
		Type:     notify.EventDraftCreated,
		FilingID: filing.ID,
		OwnerID:  owner,
		FormType: formType,
		At:       now,
	})

	return &CreateDraftResult{Filing: filing, Draft: draft}, nil
}

func (s *Service) resolveIdempotent(ctx context.Context, owner id.UserID, key string) (*CreateDraftResult, bool, error) {
	filing, err := s.filings.FindByOwnerAndKey(ctx, owner, key)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "idempotency lookup failed")
	}
	draft, err := s.drafts.FindActiveByFiling(ctx, filing.ID)
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load draft for existing filing")
	}
	if s.metrics != nil {
		s.metrics.IdempotencyHits.Inc()
	}
	return &CreateDraftResult{Filing: filing, Draft: draft, IdempotencyHit: true}, true, nil
}

// UpdateDraftInput carries a draft mutation.
type UpdateDraftInput struct {
	Payload models.DraftPayload
	Step    string
}

// UpdateDraftResult returns the updated draft plus the rollback/recompute
// outcome of the edit.
type UpdateDraftResult struct {
	Draft             *models.Draft
	Filing            *models.Filing
	RollbackApplied   bool
	RollbackReason    string
	RecomputeRequired bool
}

// UpdateDraft persists a new payload. Ownership check, edit permission,
// snapshot comparison, any required rollback transition, and the payload
// write all happen inside one transaction: a reader never sees a payload
// update without its matching state, or vice versa.
func (s *Service) UpdateDraft(ctx context.Context, actor lifecycle.Actor, draftID id.DraftID, in UpdateDraftInput) (*UpdateDraftResult, error) {
	result := &UpdateDraftResult{}

	// Serialization is per filing. Resolve the parent filing first so an edit
	// and a computation of the same filing contend on one lock, then re-load
	// everything under that lock.
	resolved, err := s.drafts.FindByID(ctx, draftID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "draft not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load draft")
	}

	ctx = WithTxShard(ctx, resolved.FilingID.String())
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		draft, filing, err := s.lockOwned(txCtx, actor, draftID)
		if err != nil {
			return err
		}

		if err := lifecycle.IsActionAllowed(filing.State, lifecycle.ActionEditData, actor); err != nil {
			return err
		}

		prev := snapshot.Extract(draft.Payload)
		next := snapshot.Extract(in.Payload)

		decision := policy.RequiresStateRollback(filing.State, prev, next)
		if decision.Required {
			filing, err = s.applyTransition(txCtx, filing.ID, decision.TargetState, actor, decision.Reason)
			if err != nil {
				return err
			}
			result.RollbackApplied = true
			result.RollbackReason = decision.Reason
			if s.metrics != nil {
				s.metrics.RollbacksApplied.Inc()
			}
		}
		result.RecomputeRequired = policy.ShouldRecompute(prev, next)

		now := requestcontext.Now(txCtx)
		if err := s.drafts.UpdatePayload(txCtx, draft.ID, in.Payload, in.Step, now); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist draft payload")
		}

		// First substantive edit moves the filing out of DRAFT_INIT.
		if filing.State == lifecycle.StateDraftInit {
			filing, err = s.applyTransition(txCtx, filing.ID, lifecycle.StateDraftInProgress, actor, "draft edited")
			if err != nil {
				return err
			}
		}

		draft.Payload = in.Payload
		if in.Step != "" {
			draft.Step = in.Step
		}
		draft.UpdatedAt = now
		result.Draft = draft
		result.Filing = filing
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.DraftsUpdated.Inc()
		if result.RecomputeRequired {
			s.metrics.RecomputeFlagged.Inc()
		}
	}
	return result, nil
}

// GetDraft returns the draft and its filing for the handler layer.
func (s *Service) GetDraft(ctx context.Context, actor lifecycle.Actor, draftID id.DraftID) (*models.Draft, *models.Filing, error) {
	draft, filing, err := s.loadOwned(ctx, actor, draftID)
	if err != nil {
		return nil, nil, err
	}
	return draft, filing, nil
}

// GetFiling returns a filing the actor may view.
func (s *Service) GetFiling(ctx context.Context, actor lifecycle.Actor, filingID id.FilingID) (*models.Filing, error) {
	filing, err := s.filings.FindByID(ctx, filingID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "filing not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load filing")
	}
	if err := authorizeView(filing, actor); err != nil {
		return nil, err
	}
	return filing, nil
}

// SubmitToCA hands the filing to a professional for review.
func (s *Service) SubmitToCA(ctx context.Context, actor lifecycle.Actor, filingID id.FilingID) (*models.Filing, error) {
	return s.transition(ctx, actor, filingID, lifecycle.ActionSubmitToCA, lifecycle.StateSubmittedToCA, "submitted for review")
}

// MarkFiled records that the return was filed with the authority.
func (s *Service) MarkFiled(ctx context.Context, actor lifecycle.Actor, filingID id.FilingID) (*models.Filing, error) {
	return s.transition(ctx, actor, filingID, lifecycle.ActionMarkFiled, lifecycle.StateFiled, "return filed")
}

// Lock freezes the filing against edits and computation.
func (s *Service) Lock(ctx context.Context, actor lifecycle.Actor, filingID id.FilingID, reason string) (*models.Filing, error) {
	if reason == "" {
		reason = "locked by administrator"
	}
	return s.transition(ctx, actor, filingID, lifecycle.ActionLock, lifecycle.StateLocked, reason)
}

// Unlock releases a locked filing back to editing.
func (s *Service) Unlock(ctx context.Context, actor lifecycle.Actor, filingID id.FilingID) (*models.Filing, error) {
	return s.transition(ctx, actor, filingID, lifecycle.ActionUnlock, lifecycle.StateDraftInProgress, "unlocked by administrator")
}

func (s *Service) transition(ctx context.Context, actor lifecycle.Actor, filingID id.FilingID, action lifecycle.Action, target lifecycle.State, reason string) (*models.Filing, error) {
	var filing *models.Filing
	ctx = WithTxShard(ctx, filingID.String())
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		loaded, err := s.filings.FindByIDForUpdate(txCtx, filingID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "filing not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load filing")
		}
		if err := authorizeView(loaded, actor); err != nil {
			return err
		}
		if err := lifecycle.IsActionAllowed(loaded.State, action, actor); err != nil {
			return err
		}
		filing, err = s.applyTransition(txCtx, filingID, target, actor, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	return filing, nil
}

// applyTransition validates against the transition table and persists the
// state change atomically via the store's Execute lock.
func (s *Service) applyTransition(ctx context.Context, filingID id.FilingID, target lifecycle.State, actor lifecycle.Actor, reason string) (*models.Filing, error) {
	now := requestcontext.Now(ctx)
	var from lifecycle.State
	filing, err := s.filings.Execute(ctx, filingID,
		func(f *models.Filing) error {
			from = f.State
			return f.CanTransitionTo(target)
		},
		func(f *models.Filing) {
			f.ApplyTransition(target, now)
		},
	)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.Wrap(err, dErrors.CodeForbidden, "lifecycle transition not allowed")
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "filing not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to transition filing")
	}
	s.logAudit(ctx, "filing.state_transition",
		"filing_id", filingID.String(),
		"user_id", actor.UserID.String(),
		"actor_role", string(actor.Role),
		"from", from.String(),
		"to", target.String(),
		"reason", reason,
	)
	if s.metrics != nil && from != target {
		s.metrics.IncTransition(target.String())
	}
	return filing, nil
}

// loadOwned resolves draft → filing and enforces ownership. A mismatch is
// reported as not-found so existence never leaks to non-owners.
func (s *Service) loadOwned(ctx context.Context, actor lifecycle.Actor, draftID id.DraftID) (*models.Draft, *models.Filing, error) {
	return s.resolveOwned(ctx, actor, draftID, s.filings.FindByID)
}

// lockOwned is loadOwned under the filing write lock. Mutating paths call it
// inside their transaction so the state they decide on holds until the write
// lands.
func (s *Service) lockOwned(ctx context.Context, actor lifecycle.Actor, draftID id.DraftID) (*models.Draft, *models.Filing, error) {
	return s.resolveOwned(ctx, actor, draftID, s.filings.FindByIDForUpdate)
}

func (s *Service) resolveOwned(ctx context.Context, actor lifecycle.Actor, draftID id.DraftID, find func(context.Context, id.FilingID) (*models.Filing, error)) (*models.Draft, *models.Filing, error) {
	draft, err := s.drafts.FindByID(ctx, draftID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeNotFound, "draft not found")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load draft")
	}
	filing, err := find(ctx, draft.FilingID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeNotFound, "draft not found")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load filing")
	}
	if err := authorizeView(filing, actor); err != nil {
		return nil, nil, err
	}
	return draft, filing, nil
}

// authorizeView applies the ownership rule: owners see their own filings;
// professionals and admins may act on any. Mismatches read as not-found.
func authorizeView(filing *models.Filing, actor lifecycle.Actor) error {
	if actor.Role == lifecycle.RoleProfessional || actor.Role == lifecycle.RoleAdmin {
		return nil
	}
	if filing.OwnerID != actor.UserID {
		return dErrors.New(dErrors.CodeNotFound, "filing not found")
	}
	return nil
}

func (s *Service) enqueue(event notify.Event) {
	if s.outbox != nil {
		s.outbox.Enqueue(event)
	}
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if s.logger == nil {
		return
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}

func toFieldErrors(issues []models.ValidationIssue) []dErrors.FieldError {
	fields := make([]dErrors.FieldError, 0, len(issues))
	for _, issue := range issues {
		fields = append(fields, dErrors.FieldError{Field: issue.Field, Reason: issue.Message})
	}
	return fields
}
