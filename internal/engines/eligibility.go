package engines

import (
	"context"

	id "taxfiling/pkg/domain"
)

// OpenEligibility lets any authenticated identity file. Stands in for a KYC
// or account-standing check.
type OpenEligibility struct{}

// NewOpenEligibility constructs the reference eligibility check.
func NewOpenEligibility() *OpenEligibility { return &OpenEligibility{} }

func (OpenEligibility) IsEligibleToFile(context.Context, id.UserID) (bool, error) {
	return true, nil
}
