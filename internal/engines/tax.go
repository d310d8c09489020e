// Package engines provides deterministic reference implementations of the
// pipeline and validation collaborators. They are real enough to serve the
// whole flow end to end and simple enough to reason about in tests; a
// deployment can swap any of them out behind the port interfaces.
package engines

import (
	"context"
	"fmt"

	"taxfiling/internal/filing/models"
	id "taxfiling/pkg/domain"
)

// Slab boundaries and rates, whole rupees. The old regime keeps the
// deduction-driven structure; the new regime trades deductions for wider
// slabs.
var (
	oldRegimeSlabs = []slab{
		{upTo: 250_000, rate: 0},
		{upTo: 500_000, rate: 5},
		{upTo: 1_000_000, rate: 20},
		{upTo: 0, rate: 30},
	}
	newRegimeSlabs = []slab{
		{upTo: 300_000, rate: 0},
		{upTo: 600_000, rate: 5},
		{upTo: 900_000, rate: 10},
		{upTo: 1_200_000, rate: 15},
		{upTo: 1_500_000, rate: 20},
		{upTo: 0, rate: 30},
	}
)

const (
	standardDeduction = 50_000
	cessRatePercent   = 4

	// Rebate thresholds: taxable income at or below these zeroes the tax.
	oldRegimeRebateLimit = 500_000
	newRegimeRebateLimit = 700_000
)

type slab struct {
	upTo int64 // 0 means unbounded
	rate int64 // percent
}

// SlabTaxEngine computes liability with progressive slab math.
type SlabTaxEngine struct{}

// NewSlabTaxEngine constructs the reference tax engine.
func NewSlabTaxEngine() *SlabTaxEngine { return &SlabTaxEngine{} }

func (e *SlabTaxEngine) Compute(_ context.Context, formType id.FormType, payload models.DraftPayload, _ id.AssessmentPeriod) (models.TaxLiability, error) {
	gross := payload.Income.Total()
	if gross < 0 {
		return models.TaxLiability{}, fmt.Errorf("total income is negative: %d", gross)
	}
	if formType.IsBusiness() && payload.Income.BusinessTurnover == 0 && payload.Income.BusinessExpenses > 0 {
		return models.TaxLiability{}, fmt.Errorf("business expenses claimed without turnover")
	}

	regime := payload.Regime.OrDefault()

	taxable := gross
	if payload.Income.GrossSalary > 0 {
		taxable -= standardDeduction
	}
	if regime == models.RegimeOld {
		taxable -= payload.Deductions.Total()
	}
	if taxable < 0 {
		taxable = 0
	}

	slabs := newRegimeSlabs
	rebateLimit := int64(newRegimeRebateLimit)
	if regime == models.RegimeOld {
		slabs = oldRegimeSlabs
		rebateLimit = oldRegimeRebateLimit
	}

	grossTax := applySlabs(taxable, slabs)
	if taxable <= rebateLimit {
		grossTax = 0
	}
	cess := grossTax * cessRatePercent / 100

	return models.TaxLiability{
		Regime:        regime,
		TaxableIncome: taxable,
		GrossTax:      grossTax,
		Cess:          cess,
		TotalTax:      grossTax + cess,
	}, nil
}

func applySlabs(taxable int64, slabs []slab) int64 {
	var tax, lower int64
	for _, s := range slabs {
		upper := s.upTo
		if upper == 0 || upper > taxable {
			upper = taxable
		}
		if upper > lower {
			tax += (upper - lower) * s.rate / 100
		}
		if s.upTo == 0 || taxable <= s.upTo {
			break
		}
		lower = s.upTo
	}
	return tax
}
