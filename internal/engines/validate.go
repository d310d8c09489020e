package engines

import (
	"context"
	"fmt"
	"regexp"

	"taxfiling/internal/filing/models"
	id "taxfiling/pkg/domain"
)

var panPattern = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)

// deductionCaps are the statutory per-section limits checked by the rule
// validator, whole rupees.
var deductionCaps = map[string]int64{
	"deductions.section80C": 150_000,
	"deductions.section80D": 100_000,
	"deductions.nps":        50_000,
}

// PayloadShapeValidator is the lightweight check run at draft creation: the
// payload must be storable and internally coherent, not complete.
type PayloadShapeValidator struct{}

// NewPayloadShapeValidator constructs the reference shape validator.
func NewPayloadShapeValidator() *PayloadShapeValidator { return &PayloadShapeValidator{} }

func (v *PayloadShapeValidator) ValidateShape(_ context.Context, formType id.FormType, payload models.DraftPayload) (models.ValidationReport, error) {
	var report models.ValidationReport

	addNegativeChecks(&report, payload)

	if payload.Regime != "" && payload.Regime != models.RegimeOld && payload.Regime != models.RegimeNew {
		report.Errors = append(report.Errors, models.ValidationIssue{
			Field:   "regime",
			Message: fmt.Sprintf("unknown tax regime %q", payload.Regime),
		})
	}
	if !formType.IsBusiness() && (payload.Income.BusinessTurnover != 0 || payload.Income.BusinessExpenses != 0) {
		report.Errors = append(report.Errors, models.ValidationIssue{
			Field:   "income.businessTurnover",
			Message: fmt.Sprintf("business income is not reportable on %s", formType),
		})
	}
	if payload.Personal.PAN != "" && !panPattern.MatchString(payload.Personal.PAN) {
		report.Warnings = append(report.Warnings, models.ValidationIssue{
			Field:   "personal.pan",
			Message: "PAN does not match the expected format",
		})
	}

	report.Valid = len(report.Errors) == 0
	return report, nil
}

// SchemaDocumentValidator checks a built submission document for structural
// completeness: required sections present, identity fields filled.
type SchemaDocumentValidator struct{}

// NewSchemaDocumentValidator constructs the reference schema validator.
func NewSchemaDocumentValidator() *SchemaDocumentValidator { return &SchemaDocumentValidator{} }

func (v *SchemaDocumentValidator) ValidateSchema(_ context.Context, doc models.SubmissionDocument) (models.ValidationReport, error) {
	var report models.ValidationReport

	for _, section := range requiredSections(doc.FormType) {
		if _, ok := doc.Sections[section]; !ok {
			report.Errors = append(report.Errors, models.ValidationIssue{
				Field:   "sections." + section,
				Message: "required section missing",
			})
		}
	}
	if doc.OwnerID.IsNil() {
		report.Errors = append(report.Errors, models.ValidationIssue{
			Field:   "owner_id",
			Message: "document has no owner",
		})
	}
	if doc.Period.IsNil() {
		report.Errors = append(report.Errors, models.ValidationIssue{
			Field:   "period",
			Message: "document has no assessment period",
		})
	}

	report.Valid = len(report.Errors) == 0
	return report, nil
}

// BusinessRuleValidator checks a built submission document against filing
// rules: identity completeness, deduction caps, refund destination.
type BusinessRuleValidator struct{}

// NewBusinessRuleValidator constructs the reference rule validator.
func NewBusinessRuleValidator() *BusinessRuleValidator { return &BusinessRuleValidator{} }

func (v *BusinessRuleValidator) ValidateRules(_ context.Context, doc models.SubmissionDocument) (models.ValidationReport, error) {
	var report models.ValidationReport

	identity, _ := doc.Sections["identity"].(map[string]any)
	if pan, _ := identity["pan"].(string); pan == "" {
		report.Errors = append(report.Errors, models.ValidationIssue{
			Field:   "personal.pan",
			Message: "PAN is required for submission",
		})
	} else if !panPattern.MatchString(pan) {
		report.Errors = append(report.Errors, models.ValidationIssue{
			Field:   "personal.pan",
			Message: "PAN does not match the expected format",
		})
	}
	if name, _ := identity["full_name"].(string); name == "" {
		report.Errors = append(report.Errors, models.ValidationIssue{
			Field:   "personal.fullName",
			Message: "full name is required for submission",
		})
	}

	if deductions, ok := doc.Sections["deductions"].(map[string]any); ok {
		for field, limit := range deductionCaps {
			if claimed, ok := deductions[sectionKey(field)].(int64); ok && claimed > limit {
				report.Errors = append(report.Errors, models.ValidationIssue{
					Field:   field,
					Message: fmt.Sprintf("claim exceeds the statutory limit of %d", limit),
				})
			}
		}
	}

	if bank, ok := doc.Sections["bank"].(map[string]any); ok {
		account, _ := bank["account_number"].(string)
		ifsc, _ := bank["ifsc"].(string)
		if account == "" || ifsc == "" {
			report.Warnings = append(report.Warnings, models.ValidationIssue{
				Field:   "bank",
				Message: "no refund destination on record",
			})
		}
	}

	report.Valid = len(report.Errors) == 0
	return report, nil
}

func addNegativeChecks(report *models.ValidationReport, payload models.DraftPayload) {
	amounts := map[string]int64{
		"income.grossSalary":      payload.Income.GrossSalary,
		"income.interestIncome":   payload.Income.InterestIncome,
		"income.rentalIncome":     payload.Income.RentalIncome,
		"income.businessTurnover": payload.Income.BusinessTurnover,
		"income.businessExpenses": payload.Income.BusinessExpenses,
		"income.otherIncome":      payload.Income.OtherIncome,
		"deductions.section80C":   payload.Deductions.Section80C,
		"deductions.section80D":   payload.Deductions.Section80D,
		"deductions.homeLoan":     payload.Deductions.HomeLoanInterest,
		"deductions.nps":          payload.Deductions.NPS,
		"deductions.other":        payload.Deductions.Other,
	}
	for field, amount := range amounts {
		if amount < 0 {
			report.Errors = append(report.Errors, models.ValidationIssue{
				Field:   field,
				Message: "amount cannot be negative",
			})
		}
	}
	// Capital gains may be negative (carried loss) and is excluded above.
}

func requiredSections(formType id.FormType) []string {
	sections := []string{"identity", "income", "deductions", "tax", "bank"}
	if formType.IsBusiness() {
		sections = append(sections, "business")
	}
	return sections
}

func sectionKey(field string) string {
	switch field {
	case "deductions.section80C":
		return "section_80c"
	case "deductions.section80D":
		return "section_80d"
	case "deductions.nps":
		return "nps"
	}
	return field
}
