// Package pipeline runs the computation pipeline: tax calculation, signal
// generation, confidence scoring, and downstream-context evaluation, in that
// order. The tax stage is load-bearing and aborts the run on failure; the
// later stages degrade to safe defaults so a flaky auxiliary engine never
// blocks a computation.
package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"taxfiling/internal/filing/lifecycle"
	filingmetrics "taxfiling/internal/filing/metrics"
	"taxfiling/internal/filing/models"
	"taxfiling/internal/filing/notify"
	"taxfiling/internal/filing/ports"
	"taxfiling/internal/filing/service"
	"taxfiling/internal/filing/store"
	"taxfiling/internal/filing/throttle"
	id "taxfiling/pkg/domain"
	dErrors "taxfiling/pkg/domain-errors"
	"taxfiling/pkg/platform/sentinel"
	"taxfiling/pkg/requestcontext"
)

// Stage names, used in logs and metrics labels.
const (
	StageTax        = "tax"
	StageSignals    = "signals"
	StageConfidence = "confidence"
	StageContext    = "context"
)

// Engines bundles the four pipeline stages.
type Engines struct {
	Tax        ports.TaxEngine
	Signals    ports.SignalGenerator
	Confidence ports.ConfidenceEngine
	Context    ports.ContextEngine
}

// Orchestrator drives pipeline runs against a filing's active draft.
type Orchestrator struct {
	filings store.FilingStore
	drafts  store.DraftStore
	tx      service.StoreTx
	engines Engines
	limiter throttle.Limiter
	outbox  *notify.Outbox
	logger  *slog.Logger
	metrics *filingmetrics.Metrics
}

// Option configures optional orchestrator collaborators.
type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

func WithMetrics(m *filingmetrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithOutbox(outbox *notify.Outbox) Option {
	return func(o *Orchestrator) { o.outbox = outbox }
}

func WithThrottle(limiter throttle.Limiter) Option {
	return func(o *Orchestrator) { o.limiter = limiter }
}

func WithStoreTx(tx service.StoreTx) Option {
	return func(o *Orchestrator) { o.tx = tx }
}

// New constructs an Orchestrator. Defaults: no throttle, in-memory
// transaction boundary.
func New(filings store.FilingStore, drafts store.DraftStore, engines Engines, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		filings: filings,
		drafts:  drafts,
		engines: engines,
		limiter: throttle.Unlimited{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.tx == nil {
		o.tx = service.NewMemoryTx()
	}
	return o
}

// Result is the outcome of one pipeline run.
type Result struct {
	Filing      *models.Filing
	Computation *models.ComputationResult

	// DegradedStages lists auxiliary stages that failed and were substituted
	// with defaults during this run.
	DegradedStages []string
}

// Compute runs the full pipeline for the filing identified by filingID.
// The run loads the active draft, computes, persists the versioned result,
// and advances the lifecycle when the filing is still in a drafting state.
// Recomputation from a later state never moves the state backward.
func (o *Orchestrator) Compute(ctx context.Context, actor lifecycle.Actor, filingID id.FilingID) (*Result, error) {
	allowed, err := o.limiter.Allow(ctx, actor.UserID)
	if err != nil {
		// Fail open: a broken limiter should not block computation.
		o.warn(ctx, "compute throttle check failed, allowing",
			"filing_id", filingID.String(), "error", err.Error())
	} else if !allowed {
		return nil, dErrors.New(dErrors.CodeRateLimited, "too many computation requests, retry later")
	}

	start := requestcontext.Now(ctx)
	result := &Result{}

	ctx = service.WithTxShard(ctx, filingID.String())
	err = o.tx.RunInTx(ctx, func(txCtx context.Context) error {
		filing, err := o.loadOwned(txCtx, actor, filingID)
		if err != nil {
			return err
		}
		if err := lifecycle.IsActionAllowed(filing.State, lifecycle.ActionComputeTax, actor); err != nil {
			return err
		}
		draft, err := o.drafts.FindActiveByFiling(txCtx, filing.ID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodePreconditionFailed, "filing has no active draft")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load draft")
		}

		computation, degraded, err := o.run(txCtx, filing, draft)
		if err != nil {
			return err
		}
		result.DegradedStages = degraded

		// Freeze the inputs of this run before persisting the result.
		now := requestcontext.Now(txCtx)
		if err := o.drafts.Archive(txCtx, draft.ID, now); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to archive draft snapshot")
		}

		target, advance := lifecycle.NextOnCompute(filing.State)
		updated, err := o.filings.Execute(txCtx, filing.ID,
			func(f *models.Filing) error {
				if advance {
					return f.CanTransitionTo(target)
				}
				return nil
			},
			func(f *models.Filing) {
				f.Computation = computation
				if advance {
					f.ApplyTransition(target, now)
				} else {
					f.UpdatedAt = now
				}
			},
		)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist computation")
		}
		if advance && o.metrics != nil {
			o.metrics.IncTransition(target.String())
		}
		result.Filing = updated
		result.Computation = updated.Computation
		return nil
	})

	elapsed := requestcontext.Now(ctx).Sub(start)
	if err != nil {
		o.metrics.ObservePipeline("failed", elapsed)
		return nil, err
	}
	outcome := "succeeded"
	if len(result.DegradedStages) > 0 {
		outcome = "degraded"
	}
	o.metrics.ObservePipeline(outcome, elapsed)

	o.audit(ctx, "filing.computation_done",
		"filing_id", filingID.String(),
		"user_id", actor.UserID.String(),
		"version", result.Computation.Version,
		"outcome", outcome,
	)
	if o.outbox != nil {
		o.outbox.Enqueue(notify.Event{
			Type:     notify.EventComputationDone,
			FilingID: result.Filing.ID,
			OwnerID:  result.Filing.OwnerID,
			FormType: result.Filing.FormType,
			At:       result.Computation.ComputedAt,
		})
	}
	return result, nil
}

// run executes the four stages against the draft payload and assembles the
// next ComputationResult. Only the tax stage returns an error.
func (o *Orchestrator) run(ctx context.Context, filing *models.Filing, draft *models.Draft) (*models.ComputationResult, []string, error) {
	var degraded []string

	liability, err := o.engines.Tax.Compute(ctx, filing.FormType, draft.Payload, filing.Period)
	if err != nil {
		o.warn(ctx, "tax computation failed, aborting run",
			"filing_id", filing.ID.String(), "stage", StageTax, "error", err.Error())
		o.metrics.IncStageDegraded(StageTax)
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "tax computation failed")
	}

	signals, err := o.engines.Signals.Run(ctx, draft.Payload, liability, filing.FormType)
	if err != nil {
		o.degrade(ctx, filing.ID, StageSignals, err)
		degraded = append(degraded, StageSignals)
		signals = []models.Signal{}
	}

	confidence, err := o.engines.Confidence.Evaluate(ctx, ports.ConfidenceInput{
		Signals:      signals,
		Payload:      draft.Payload,
		Liability:    liability,
		Verification: draft.Payload.Verification,
	})
	if err != nil {
		o.degrade(ctx, filing.ID, StageConfidence, err)
		degraded = append(degraded, StageConfidence)
		confidence = models.DegradedConfidence()
	}

	downstream, err := o.engines.Context.EvaluateContext(ctx, ports.ContextInput{
		Confidence: confidence,
		Signals:    signals,
		FormType:   filing.FormType,
		State:      filing.State.String(),
	})
	if err != nil {
		o.degrade(ctx, filing.ID, StageContext, err)
		degraded = append(degraded, StageContext)
		downstream = nil
	}

	version := 1
	var priorRequests []models.AssistanceRequest
	if prior := filing.Computation; prior != nil {
		version = prior.Version + 1
		if prior.Context != nil {
			priorRequests = prior.Context.Requests
		}
	}
	// Assistance requests record decisions made outside the pipeline and
	// survive every recompute verbatim.
	if len(priorRequests) > 0 {
		if downstream == nil {
			downstream = &models.DownstreamContext{Degraded: true}
		}
		downstream.Requests = priorRequests
	}

	return &models.ComputationResult{
		Version:    version,
		ComputedAt: requestcontext.Now(ctx),
		Liability:  liability,
		Signals:    signals,
		Confidence: confidence,
		Context:    downstream,
	}, degraded, nil
}

// loadOwned runs inside the compute transaction and takes the filing write
// lock, so the payload and state the run reads stay current until the result
// is persisted.
func (o *Orchestrator) loadOwned(ctx context.Context, actor lifecycle.Actor, filingID id.FilingID) (*models.Filing, error) {
	filing, err := o.filings.FindByIDForUpdate(ctx, filingID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "filing not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load filing")
	}
	if actor.Role == lifecycle.RoleOwner && filing.OwnerID != actor.UserID {
		return nil, dErrors.New(dErrors.CodeNotFound, "filing not found")
	}
	return filing, nil
}

func (o *Orchestrator) degrade(ctx context.Context, filingID id.FilingID, stage string, err error) {
	o.warn(ctx, "pipeline stage degraded",
		"filing_id", filingID.String(), "stage", stage, "error", err.Error())
	o.metrics.IncStageDegraded(stage)
}

func (o *Orchestrator) warn(ctx context.Context, msg string, attributes ...any) {
	if o.logger != nil {
		o.logger.WarnContext(ctx, msg, attributes...)
	}
}

func (o *Orchestrator) audit(ctx context.Context, event string, attributes ...any) {
	if o.logger == nil {
		return
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	o.logger.InfoContext(ctx, event, args...)
}
