package models

import (
	"time"

	id "taxfiling/pkg/domain"
)

// ValidationIssue is one field/reason pair from a validation pass.
type ValidationIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationReport is the outcome of one validation pass.
type ValidationReport struct {
	Valid    bool              `json:"valid"`
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

// Merge combines two independent passes: valid only when both are, with
// error and warning lists concatenated so callers see every finding at once.
func (r ValidationReport) Merge(other ValidationReport) ValidationReport {
	return ValidationReport{
		Valid:    r.Valid && other.Valid,
		Errors:   append(append([]ValidationIssue{}, r.Errors...), other.Errors...),
		Warnings: append(append([]ValidationIssue{}, r.Warnings...), other.Warnings...),
	}
}

// SubmissionDocument is the canonical per-form submission structure produced
// by a form-type builder.
type SubmissionDocument struct {
	FormType    id.FormType         `json:"form_type"`
	Period      id.AssessmentPeriod `json:"period"`
	OwnerID     id.UserID           `json:"owner_id"`
	GeneratedAt time.Time           `json:"generated_at"`
	Sections    map[string]any      `json:"sections"`
}

// ExportArtifact is the validated submission document plus validation
// metadata. It exists only when both validation passes reported no errors.
type ExportArtifact struct {
	Document   SubmissionDocument `json:"document"`
	Warnings   []ValidationIssue  `json:"warnings,omitempty"`
	ExportedAt time.Time          `json:"exported_at"`
}
