// Package export assembles and validates the final submission document.
// Schema and business-rule validation run concurrently over the built
// document; their reports merge, and any error in either refuses the export.
// A successful export advances COMPUTATION_DONE to VALIDATION_SUCCESS.
package export

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"taxfiling/internal/filing/lifecycle"
	filingmetrics "taxfiling/internal/filing/metrics"
	"taxfiling/internal/filing/models"
	"taxfiling/internal/filing/notify"
	"taxfiling/internal/filing/ports"
	"taxfiling/internal/filing/store"
	id "taxfiling/pkg/domain"
	dErrors "taxfiling/pkg/domain-errors"
	"taxfiling/pkg/platform/sentinel"
	"taxfiling/pkg/requestcontext"
)

// Service builds and validates export artifacts.
type Service struct {
	filings  store.FilingStore
	drafts   store.DraftStore
	builders map[id.FormType]ports.ArtifactBuilder
	schema   ports.SchemaValidator
	rules    ports.RuleValidator
	outbox   *notify.Outbox
	logger   *slog.Logger
	metrics  *filingmetrics.Metrics
}

// Option configures optional export collaborators.
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

// New constructs the export service. builders maps each supported form type
// to its document builder.
func New(filings store.FilingStore, drafts store.DraftStore, builders map[id.FormType]ports.ArtifactBuilder, schema ports.SchemaValidator, rules ports.RuleValidator, opts ...Option) *Service {
	s := &Service{
		filings:  filings,
		drafts:   drafts,
		builders: builders,
		schema:   schema,
		rules:    rules,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Export builds the submission document for the filing, runs both validation
// passes, and returns the artifact. Validation errors refuse the export with
// every finding attached; warnings alone do not block.
func (s *Service) Export(ctx context.Context, actor lifecycle.Actor, filingID id.FilingID) (*models.ExportArtifact, error) {
	filing, err := s.loadOwned(ctx, actor, filingID)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.IsActionAllowed(filing.State, lifecycle.ActionExport, actor); err != nil {
		return nil, err
	}
	if !filing.HasComputation() {
		return nil, dErrors.New(dErrors.CodePreconditionFailed, "filing has no computation result, compute first")
	}
	// A rollback to drafting leaves the last computation attached but the
	// payload has moved past it. The state, not the attachment, decides
	// whether results are current.
	if !filing.State.AtOrPast(lifecycle.StateComputationDone) {
		return nil, dErrors.New(dErrors.CodePreconditionFailed, "computation result is stale after a data edit, compute again")
	}

	draft, err := s.drafts.FindActiveByFiling(ctx, filing.ID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodePreconditionFailed, "filing has no active draft")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load draft")
	}

	builder, ok := s.builders[filing.FormType]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeInternal, "no document builder registered for %s", filing.FormType)
	}
	doc, err := builder.Build(ctx, ports.BuildInput{
		Payload:   draft.Payload,
		Liability: filing.Computation.Liability,
		Period:    filing.Period,
		Owner:     filing.OwnerID,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build submission document")
	}

	report, err := s.validate(ctx, doc)
	if err != nil {
		return nil, err
	}
	if !report.Valid {
		if s.metrics != nil {
			s.metrics.ExportsRefused.Inc()
		}
		s.audit(ctx, "filing.export_refused",
			"filing_id", filing.ID.String(),
			"user_id", actor.UserID.String(),
			"error_count", len(report.Errors),
		)
		return nil, dErrors.WithFields(dErrors.CodeValidation, "submission document failed validation", toFieldErrors(report.Errors))
	}

	// VALIDATION_SUCCESS is only reachable through a clean export.
	now := requestcontext.Now(ctx)
	if filing.State == lifecycle.StateComputationDone {
		if _, err := s.filings.Execute(ctx, filing.ID,
			func(f *models.Filing) error {
				return f.CanTransitionTo(lifecycle.StateValidationSuccess)
			},
			func(f *models.Filing) {
				f.ApplyTransition(lifecycle.StateValidationSuccess, now)
			},
		); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record validation success")
		}
		if s.metrics != nil {
			s.metrics.IncTransition(lifecycle.StateValidationSuccess.String())
		}
	}

	if s.metrics != nil {
		s.metrics.ExportsSucceeded.Inc()
	}
	s.audit(ctx, "filing.exported",
		"filing_id", filing.ID.String(),
		"user_id", actor.UserID.String(),
		"warning_count", len(report.Warnings),
	)
	if s.outbox != nil {
		s.outbox.Enqueue(notify.Event{
			Type:     notify.EventExported,
			FilingID: filing.ID,
			OwnerID:  filing.OwnerID,
			FormType: filing.FormType,
			At:       now,
		})
	}

	return &models.ExportArtifact{
		Document:   doc,
		Warnings:   report.Warnings,
		ExportedAt: now,
	}, nil
}

// validate runs the schema and rule passes concurrently and merges their
// reports. An infrastructure failure in either pass fails the export; it
// never silently passes.
func (s *Service) validate(ctx context.Context, doc models.SubmissionDocument) (models.ValidationReport, error) {
	var schemaReport, ruleReport models.ValidationReport

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		report, err := s.schema.ValidateSchema(gCtx, doc)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "schema validation failed to run")
		}
		schemaReport = report
		return nil
	})
	g.Go(func() error {
		report, err := s.rules.ValidateRules(gCtx, doc)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "rule validation failed to run")
		}
		ruleReport = report
		return nil
	})
	if err := g.Wait(); err != nil {
		return models.ValidationReport{}, err
	}
	return schemaReport.Merge(ruleReport), nil
}

func (s *Service) loadOwned(ctx context.Context, actor lifecycle.Actor, filingID id.FilingID) (*models.Filing, error) {
	filing, err := s.filings.FindByID(ctx, filingID)
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

func (s *Service) audit(ctx context.Context, event string, attributes ...any) {
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
