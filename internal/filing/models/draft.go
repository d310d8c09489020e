package models

import (
	"time"

	id "taxfiling/pkg/domain"
)

// Draft is the mutable working copy attached to a filing. Exactly one draft
// is active per filing; superseded copies are kept for audit history
// (SupersededAt set) rather than deleted.
type Draft struct {
	ID       id.DraftID   `json:"id"`
	FilingID id.FilingID  `json:"filing_id"`
	Payload  DraftPayload `json:"payload"`

	// Step is a free-form UI resumption marker, not a lifecycle state.
	Step string `json:"step,omitempty"`

	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	SupersededAt *time.Time `json:"superseded_at,omitempty"`
}

// NewDraft constructs the active draft for a filing.
func NewDraft(draftID id.DraftID, filingID id.FilingID, payload DraftPayload, step string, now time.Time) *Draft {
	return &Draft{
		ID:        draftID,
		FilingID:  filingID,
		Payload:   payload,
		Step:      step,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsActive reports whether this draft is the filing's current working copy.
func (d *Draft) IsActive() bool {
	return d.SupersededAt == nil
}
