package engines

import (
	"context"

	"taxfiling/internal/filing/models"
	id "taxfiling/pkg/domain"
)

// Thresholds that trip signals, whole rupees.
const (
	highDeductionRatioPercent = 60
	largeCapitalGains         = 1_000_000
	thinBusinessMarginPercent = 5
)

// ThresholdSignalGenerator derives risk/quality signals from simple ratio
// and threshold checks over the computed figures.
type ThresholdSignalGenerator struct{}

// NewThresholdSignalGenerator constructs the reference signal generator.
func NewThresholdSignalGenerator() *ThresholdSignalGenerator {
	return &ThresholdSignalGenerator{}
}

func (g *ThresholdSignalGenerator) Run(_ context.Context, payload models.DraftPayload, liability models.TaxLiability, formType id.FormType) ([]models.Signal, error) {
	signals := []models.Signal{}

	gross := payload.Income.Total()
	deductions := payload.Deductions.Total()
	if gross > 0 && deductions*100/gross >= highDeductionRatioPercent {
		signals = append(signals, models.Signal{
			Code:     "HIGH_DEDUCTION_RATIO",
			Severity: models.SeverityHigh,
			Message:  "claimed deductions exceed 60% of gross income",
		})
	}

	if payload.Income.CapitalGains >= largeCapitalGains {
		signals = append(signals, models.Signal{
			Code:     "LARGE_CAPITAL_GAINS",
			Severity: models.SeverityWarning,
			Message:  "capital gains above reporting attention threshold",
		})
	}

	if formType.IsBusiness() && payload.Income.BusinessTurnover > 0 {
		margin := (payload.Income.BusinessTurnover - payload.Income.BusinessExpenses) * 100 / payload.Income.BusinessTurnover
		if margin < thinBusinessMarginPercent {
			signals = append(signals, models.Signal{
				Code:     "THIN_BUSINESS_MARGIN",
				Severity: models.SeverityWarning,
				Message:  "declared business margin below 5% of turnover",
			})
		}
	}

	if liability.TotalTax == 0 && gross > 0 {
		signals = append(signals, models.Signal{
			Code:     "ZERO_TAX_WITH_INCOME",
			Severity: models.SeverityInfo,
			Message:  "no tax due despite reported income; rebate or deductions applied",
		})
	}

	if !payload.Verification.PANVerified {
		signals = append(signals, models.Signal{
			Code:     "PAN_UNVERIFIED",
			Severity: models.SeverityWarning,
			Message:  "PAN has not been verified",
		})
	}

	return signals, nil
}
