package engines

import (
	"context"

	"taxfiling/internal/filing/models"
	"taxfiling/internal/filing/ports"
)

// Score weights. The score starts at 100 and loses points per unverified
// item and per signal by severity; the band falls out of the final score.
const (
	penaltyPANUnverified  = 25
	penaltyBankUnverified = 10
	penaltyNoAadhaar      = 10
	penaltyHighSignal     = 20
	penaltyWarningSignal  = 10

	bandHighFloor   = 75
	bandMediumFloor = 45
)

// WeightedConfidenceEngine scores input trustworthiness from verification
// flags and generated signals.
type WeightedConfidenceEngine struct{}

// NewWeightedConfidenceEngine constructs the reference confidence engine.
func NewWeightedConfidenceEngine() *WeightedConfidenceEngine {
	return &WeightedConfidenceEngine{}
}

func (e *WeightedConfidenceEngine) Evaluate(_ context.Context, in ports.ConfidenceInput) (models.ConfidenceResult, error) {
	score := 100
	var reasons []string

	if !in.Verification.PANVerified {
		score -= penaltyPANUnverified
		reasons = append(reasons, "PAN not verified")
	}
	if !in.Verification.BankVerified {
		score -= penaltyBankUnverified
		reasons = append(reasons, "bank account not verified")
	}
	if !in.Verification.AadhaarLinked {
		score -= penaltyNoAadhaar
		reasons = append(reasons, "Aadhaar not linked")
	}

	for _, signal := range in.Signals {
		switch signal.Severity {
		case models.SeverityHigh:
			score -= penaltyHighSignal
			reasons = append(reasons, signal.Message)
		case models.SeverityWarning:
			score -= penaltyWarningSignal
			reasons = append(reasons, signal.Message)
		}
	}
	if score < 0 {
		score = 0
	}

	band := models.BandLow
	switch {
	case score >= bandHighFloor:
		band = models.BandHigh
	case score >= bandMediumFloor:
		band = models.BandMedium
	}

	return models.ConfidenceResult{
		TrustScore: score,
		Band:       band,
		Reasons:    reasons,
	}, nil
}
