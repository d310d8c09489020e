// Package ports declares the collaborator interfaces the filing core
// consumes. Implementations live outside the core (internal/engines provides
// deterministic references); services depend only on these contracts.
package ports

import (
	"context"

	"taxfiling/internal/filing/models"
	id "taxfiling/pkg/domain"
)

// Eligibility checks whether an identity may file at all. Consulted once at
// draft creation.
type Eligibility interface {
	IsEligibleToFile(ctx context.Context, owner id.UserID) (bool, error)
}

// TaxEngine runs the core tax computation. Must be deterministic given
// identical input; a failure here aborts the whole pipeline run.
type TaxEngine interface {
	Compute(ctx context.Context, formType id.FormType, payload models.DraftPayload, period id.AssessmentPeriod) (models.TaxLiability, error)
}

// SignalGenerator derives risk/quality signals from a computed result.
type SignalGenerator interface {
	Run(ctx context.Context, payload models.DraftPayload, liability models.TaxLiability, formType id.FormType) ([]models.Signal, error)
}

// ConfidenceInput bundles everything confidence scoring looks at.
type ConfidenceInput struct {
	Signals      []models.Signal
	Payload      models.DraftPayload
	Liability    models.TaxLiability
	Verification models.VerificationFlags
}

// ConfidenceEngine scores how trustworthy a computation's inputs are.
type ConfidenceEngine interface {
	Evaluate(ctx context.Context, in ConfidenceInput) (models.ConfidenceResult, error)
}

// ContextInput bundles the inputs to downstream-context evaluation.
type ContextInput struct {
	Confidence models.ConfidenceResult
	Signals    []models.Signal
	FormType   id.FormType
	State      string
}

// ContextEngine evaluates whether the filing should be routed to a human
// reviewer, and with what urgency.
type ContextEngine interface {
	EvaluateContext(ctx context.Context, in ContextInput) (*models.DownstreamContext, error)
}

// ShapeValidator is the lightweight payload check run at draft creation.
type ShapeValidator interface {
	ValidateShape(ctx context.Context, formType id.FormType, payload models.DraftPayload) (models.ValidationReport, error)
}

// SchemaValidator checks a built submission document against the form
// schema.
type SchemaValidator interface {
	ValidateSchema(ctx context.Context, doc models.SubmissionDocument) (models.ValidationReport, error)
}

// RuleValidator checks a built submission document against business rules.
// Independent of schema validation; export merges both reports.
type RuleValidator interface {
	ValidateRules(ctx context.Context, doc models.SubmissionDocument) (models.ValidationReport, error)
}

// BuildInput is everything a form-type builder needs to assemble the
// canonical submission structure.
type BuildInput struct {
	Payload   models.DraftPayload
	Liability models.TaxLiability
	Period    id.AssessmentPeriod
	Owner     id.UserID
}

// ArtifactBuilder assembles the per-form-type submission document.
// One implementation exists per supported form type.
type ArtifactBuilder interface {
	Build(ctx context.Context, in BuildInput) (models.SubmissionDocument, error)
}
