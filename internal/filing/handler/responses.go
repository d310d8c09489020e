package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"taxfiling/internal/filing/models"
	"taxfiling/internal/filing/pipeline"
	"taxfiling/internal/filing/service"
	dErrors "taxfiling/pkg/domain-errors"
)

type filingResponse struct {
	ID          string                    `json:"id"`
	OwnerID     string                    `json:"owner_id"`
	FormType    string                    `json:"form_type"`
	Period      string                    `json:"period"`
	State       string                    `json:"state"`
	Computation *models.ComputationResult `json:"computation,omitempty"`
	CreatedAt   time.Time                 `json:"created_at"`
	UpdatedAt   time.Time                 `json:"updated_at"`
}

func newFilingResponse(filing *models.Filing) filingResponse {
	return filingResponse{
		ID:          filing.ID.String(),
		OwnerID:     filing.OwnerID.String(),
		FormType:    filing.FormType.String(),
		Period:      filing.Period.String(),
		State:       filing.State.String(),
		Computation: filing.Computation,
		CreatedAt:   filing.CreatedAt,
		UpdatedAt:   filing.UpdatedAt,
	}
}

type draftResponse struct {
	ID        string              `json:"id"`
	FilingID  string              `json:"filing_id"`
	Payload   models.DraftPayload `json:"payload"`
	Step      string              `json:"step,omitempty"`
	UpdatedAt time.Time           `json:"updated_at"`
	Filing    filingResponse      `json:"filing"`
}

func newDraftResponse(draft *models.Draft, filing *models.Filing) draftResponse {
	return draftResponse{
		ID:        draft.ID.String(),
		FilingID:  draft.FilingID.String(),
		Payload:   draft.Payload,
		Step:      draft.Step,
		UpdatedAt: draft.UpdatedAt,
		Filing:    newFilingResponse(filing),
	}
}

type createDraftResponse struct {
	Draft          draftResponse `json:"draft"`
	IdempotencyHit bool          `json:"idempotency_hit,omitempty"`
}

func newCreateDraftResponse(result *service.CreateDraftResult) createDraftResponse {
	return createDraftResponse{
		Draft:          newDraftResponse(result.Draft, result.Filing),
		IdempotencyHit: result.IdempotencyHit,
	}
}

type updateDraftResponse struct {
	Draft             draftResponse `json:"draft"`
	RollbackApplied   bool          `json:"rollback_applied"`
	RollbackReason    string        `json:"rollback_reason,omitempty"`
	RecomputeRequired bool          `json:"recompute_required"`
}

func newUpdateDraftResponse(result *service.UpdateDraftResult) updateDraftResponse {
	return updateDraftResponse{
		Draft:             newDraftResponse(result.Draft, result.Filing),
		RollbackApplied:   result.RollbackApplied,
		RollbackReason:    result.RollbackReason,
		RecomputeRequired: result.RecomputeRequired,
	}
}

type computeResponse struct {
	Filing         filingResponse            `json:"filing"`
	Computation    *models.ComputationResult `json:"computation"`
	DegradedStages []string                  `json:"degraded_stages,omitempty"`
}

func newComputeResponse(result *pipeline.Result) computeResponse {
	return computeResponse{
		Filing:         newFilingResponse(result.Filing),
		Computation:    result.Computation,
		DegradedStages: result.DegradedStages,
	}
}

type exportResponse struct {
	Document   models.SubmissionDocument `json:"document"`
	Warnings   []models.ValidationIssue  `json:"warnings,omitempty"`
	ExportedAt time.Time                 `json:"exported_at"`
}

func newExportResponse(artifact *models.ExportArtifact) exportResponse {
	return exportResponse{
		Document:   artifact.Document,
		Warnings:   artifact.Warnings,
		ExportedAt: artifact.ExportedAt,
	}
}

type errorResponse struct {
	Error   string               `json:"error"`
	Message string               `json:"message"`
	Fields  []dErrors.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError translates coded domain errors into the JSON error envelope.
// Validation errors carry their full field list so callers see every
// failure at once.
func writeError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	writeJSON(w, dErrors.ToHTTPStatus(code), errorResponse{
		Error:   string(code),
		Message: dErrors.MessageOf(err),
		Fields:  dErrors.FieldsOf(err),
	})
}
