// Package snapshot projects a draft payload down to the fields that
// materially affect tax computation. Snapshots are derived values: computed
// fresh on every read/write pair, compared structurally, never persisted as
// source of truth.
package snapshot

import "taxfiling/internal/filing/models"

// Snapshot is the material subset of a draft payload. It is a flat value
// type so equality is plain struct comparison; formatting-only payload edits
// (address, contact, bank details) are invisible here and therefore never
// trigger rollback or recompute.
type Snapshot struct {
	Regime         models.TaxRegime
	ResidentStatus string
	SeniorCitizen  bool

	GrossSalary    int64
	InterestIncome int64
	RentalIncome   int64
	CapitalGains   int64
	OtherIncome    int64

	BusinessTurnover int64
	BusinessExpenses int64

	Deduction80C     int64
	Deduction80D     int64
	HomeLoanInterest int64
	NPS              int64
	OtherDeductions  int64
}

// Extract is a pure, total projection: absent optional fields map to their
// zero values, never to an error.
func Extract(p models.DraftPayload) Snapshot {
	return Snapshot{
		Regime:         p.Regime.OrDefault(),
		ResidentStatus: p.Personal.ResidentStatus,
		SeniorCitizen:  p.Personal.SeniorCitizen,

		GrossSalary:    p.Income.GrossSalary,
		InterestIncome: p.Income.InterestIncome,
		RentalIncome:   p.Income.RentalIncome,
		CapitalGains:   p.Income.CapitalGains,
		OtherIncome:    p.Income.OtherIncome,

		BusinessTurnover: p.Income.BusinessTurnover,
		BusinessExpenses: p.Income.BusinessExpenses,

		Deduction80C:     p.Deductions.Section80C,
		Deduction80D:     p.Deductions.Section80D,
		HomeLoanInterest: p.Deductions.HomeLoanInterest,
		NPS:              p.Deductions.NPS,
		OtherDeductions:  p.Deductions.Other,
	}
}

// Equal compares two snapshots structurally.
func (s Snapshot) Equal(other Snapshot) bool {
	return s == other
}

// FieldChange names one changed material field and its category.
type FieldChange struct {
	Category string
	Field    string
}

// Diff returns the material fields that differ, grouped into human-readable
// categories for rollback reasons.
func (s Snapshot) Diff(other Snapshot) []FieldChange {
	var changes []FieldChange
	add := func(category, field string, changed bool) {
		if changed {
			changes = append(changes, FieldChange{Category: category, Field: field})
		}
	}

	add("regime", "regime", s.Regime != other.Regime)
	add("filer_profile", "residentStatus", s.ResidentStatus != other.ResidentStatus)
	add("filer_profile", "seniorCitizen", s.SeniorCitizen != other.SeniorCitizen)

	add("income", "grossSalary", s.GrossSalary != other.GrossSalary)
	add("income", "interestIncome", s.InterestIncome != other.InterestIncome)
	add("income", "rentalIncome", s.RentalIncome != other.RentalIncome)
	add("income", "capitalGains", s.CapitalGains != other.CapitalGains)
	add("income", "otherIncome", s.OtherIncome != other.OtherIncome)

	add("business", "businessTurnover", s.BusinessTurnover != other.BusinessTurnover)
	add("business", "businessExpenses", s.BusinessExpenses != other.BusinessExpenses)

	add("deductions", "section80C", s.Deduction80C != other.Deduction80C)
	add("deductions", "section80D", s.Deduction80D != other.Deduction80D)
	add("deductions", "homeLoanInterest", s.HomeLoanInterest != other.HomeLoanInterest)
	add("deductions", "nps", s.NPS != other.NPS)
	add("deductions", "other", s.OtherDeductions != other.OtherDeductions)

	return changes
}

// Categories returns the distinct categories in a change set, in first-seen
// order.
func Categories(changes []FieldChange) []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range changes {
		if !seen[c.Category] {
			seen[c.Category] = true
			out = append(out, c.Category)
		}
	}
	return out
}
