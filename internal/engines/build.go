package engines

import (
	"context"

	"taxfiling/internal/filing/models"
	"taxfiling/internal/filing/ports"
	id "taxfiling/pkg/domain"
	"taxfiling/pkg/requestcontext"
)

// FormBuilder assembles the canonical submission document for one form type.
// The business section appears only on the business forms.
type FormBuilder struct {
	formType id.FormType
}

// NewFormBuilder constructs the builder for one form type.
func NewFormBuilder(formType id.FormType) *FormBuilder {
	return &FormBuilder{formType: formType}
}

// Builders returns the full builder registry covering every supported form
// type.
func Builders() map[id.FormType]ports.ArtifactBuilder {
	registry := make(map[id.FormType]ports.ArtifactBuilder)
	for _, formType := range id.SupportedFormTypes() {
		registry[formType] = NewFormBuilder(formType)
	}
	return registry
}

func (b *FormBuilder) Build(ctx context.Context, in ports.BuildInput) (models.SubmissionDocument, error) {
	sections := map[string]any{
		"identity": map[string]any{
			"full_name":       in.Payload.Personal.FullName,
			"pan":             in.Payload.Personal.PAN,
			"date_of_birth":   in.Payload.Personal.DateOfBirth,
			"resident_status": in.Payload.Personal.ResidentStatus,
			"senior_citizen":  in.Payload.Personal.SeniorCitizen,
		},
		"income": map[string]any{
			"gross_salary":    in.Payload.Income.GrossSalary,
			"interest_income": in.Payload.Income.InterestIncome,
			"rental_income":   in.Payload.Income.RentalIncome,
			"capital_gains":   in.Payload.Income.CapitalGains,
			"other_income":    in.Payload.Income.OtherIncome,
			"total":           in.Payload.Income.Total(),
		},
		"deductions": map[string]any{
			"section_80c":        in.Payload.Deductions.Section80C,
			"section_80d":        in.Payload.Deductions.Section80D,
			"home_loan_interest": in.Payload.Deductions.HomeLoanInterest,
			"nps":                in.Payload.Deductions.NPS,
			"other":              in.Payload.Deductions.Other,
			"total":              in.Payload.Deductions.Total(),
		},
		"tax": map[string]any{
			"regime":         string(in.Liability.Regime),
			"taxable_income": in.Liability.TaxableIncome,
			"gross_tax":      in.Liability.GrossTax,
			"cess":           in.Liability.Cess,
			"total_tax":      in.Liability.TotalTax,
		},
		"bank": map[string]any{
			"account_number": in.Payload.Bank.AccountNumber,
			"ifsc":           in.Payload.Bank.IFSC,
			"bank_name":      in.Payload.Bank.BankName,
		},
	}
	if b.formType.IsBusiness() {
		sections["business"] = map[string]any{
			"turnover": in.Payload.Income.BusinessTurnover,
			"expenses": in.Payload.Income.BusinessExpenses,
		}
	}

	return models.SubmissionDocument{
		FormType:    b.formType,
		Period:      in.Period,
		OwnerID:     in.Owner,
		GeneratedAt: requestcontext.Now(ctx),
		Sections:    sections,
	}, nil
}
