package handler

import "taxfiling/internal/filing/models"

type createDraftRequest struct {
	FormType       string              `json:"form_type"`
	Period         string              `json:"period"`
	Payload        models.DraftPayload `json:"payload"`
	Step           string              `json:"step,omitempty"`
	IdempotencyKey string              `json:"idempotency_key,omitempty"`
}

type updateDraftRequest struct {
	Payload models.DraftPayload `json:"payload"`
	Step    string              `json:"step,omitempty"`
}

type lockRequest struct {
	Reason string `json:"reason,omitempty"`
}
