package engines

import (
	"context"

	"taxfiling/internal/filing/models"
	"taxfiling/internal/filing/ports"
)

// BandContextEngine routes filings to professional review by confidence
// band: LOW recommends review with high urgency, MEDIUM recommends with
// medium urgency, HIGH leaves the filer self-serve. Business forms are
// always eligible for review regardless of band.
type BandContextEngine struct{}

// NewBandContextEngine constructs the reference context engine.
func NewBandContextEngine() *BandContextEngine { return &BandContextEngine{} }

func (e *BandContextEngine) EvaluateContext(_ context.Context, in ports.ContextInput) (*models.DownstreamContext, error) {
	dc := &models.DownstreamContext{Eligible: true}

	switch in.Confidence.Band {
	case models.BandLow:
		dc.Recommended = true
		dc.Urgency = models.UrgencyHigh
	case models.BandMedium:
		dc.Recommended = true
		dc.Urgency = models.UrgencyMedium
	default:
		dc.Urgency = models.UrgencyLow
	}

	if !dc.Recommended && in.FormType.IsBusiness() {
		for _, signal := range in.Signals {
			if signal.Severity == models.SeverityHigh || signal.Severity == models.SeverityWarning {
				dc.Recommended = true
				dc.Urgency = models.UrgencyMedium
				break
			}
		}
	}

	return dc, nil
}
