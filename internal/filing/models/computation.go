package models

import "time"

// ComputationResult is the versioned bundle the pipeline persists after a
// run. It is replaced wholesale on every successful run with one exception:
// DownstreamContext.Requests is copied forward verbatim from the prior
// result, because those entries record decisions made outside the pipeline.
//
// The liability figures are always authoritative when present; the
// downstream sections may be degraded defaults when their stage failed.
type ComputationResult struct {
	Version    int              `json:"version"`
	ComputedAt time.Time        `json:"computed_at"`
	Liability  TaxLiability     `json:"liability"`
	Signals    []Signal         `json:"signals"`
	Confidence ConfidenceResult `json:"confidence"`

	// Context is nil when the evaluation stage degraded and no prior
	// requests needed carrying forward.
	Context *DownstreamContext `json:"context,omitempty"`
}

// TaxLiability holds the computed figures for one run.
type TaxLiability struct {
	Regime        TaxRegime `json:"regime"`
	TaxableIncome int64     `json:"taxable_income"`
	GrossTax      int64     `json:"gross_tax"`
	Cess          int64     `json:"cess"`
	TotalTax      int64     `json:"total_tax"`
}

// Signal is one derived risk or quality flag attached to a computation.
type Signal struct {
	Code     string         `json:"code"`
	Severity SignalSeverity `json:"severity"`
	Message  string         `json:"message"`
}

// SignalSeverity grades a signal.
type SignalSeverity string

const (
	SeverityInfo    SignalSeverity = "info"
	SeverityWarning SignalSeverity = "warning"
	SeverityHigh    SignalSeverity = "high"
)

// ConfidenceBand is the coarse trust classification of a computation's
// inputs.
type ConfidenceBand string

const (
	BandLow    ConfidenceBand = "LOW"
	BandMedium ConfidenceBand = "MEDIUM"
	BandHigh   ConfidenceBand = "HIGH"
)

// ConfidenceResult scores how trustworthy the inputs to a computation are.
type ConfidenceResult struct {
	TrustScore int            `json:"trust_score"`
	Band       ConfidenceBand `json:"band"`
	Reasons    []string       `json:"reasons,omitempty"`

	// Degraded marks that the scoring stage failed and this is the
	// substituted low-confidence default.
	Degraded bool `json:"degraded,omitempty"`
}

// DegradedConfidence is the default substituted when confidence scoring
// fails: zero score, LOW band, explicitly marked.
func DegradedConfidence() ConfidenceResult {
	return ConfidenceResult{TrustScore: 0, Band: BandLow, Degraded: true}
}

// Urgency grades how quickly a filing should reach a human reviewer.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// DownstreamContext is the evaluation of whether the filing should be routed
// to a professional reviewer, and with what urgency.
type DownstreamContext struct {
	Eligible    bool    `json:"eligible"`
	Recommended bool    `json:"recommended"`
	Urgency     Urgency `json:"urgency,omitempty"`

	// Requests are manually created assistance requests. Recomputation must
	// preserve this list verbatim from the prior result.
	Requests []AssistanceRequest `json:"requests,omitempty"`

	Degraded bool `json:"degraded,omitempty"`
}

// AssistanceRequest records a user-facing action request created outside the
// pipeline (for example, a help request raised from the review screen).
type AssistanceRequest struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
