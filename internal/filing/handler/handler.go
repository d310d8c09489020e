// Package handler is the HTTP surface of the filing engine. It translates
// requests into service calls and coded errors into JSON responses; no
// business rules live here.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"taxfiling/internal/filing/lifecycle"
	"taxfiling/internal/filing/models"
	"taxfiling/internal/filing/pipeline"
	"taxfiling/internal/filing/service"
	platformmetrics "taxfiling/internal/platform/metrics"
	"taxfiling/internal/platform/middleware"
	id "taxfiling/pkg/domain"
	dErrors "taxfiling/pkg/domain-errors"
	"taxfiling/pkg/requestcontext"
)

const requestTimeout = 30 * time.Second

// DraftService is the draft-side surface the handler needs.
type DraftService interface {
	CreateDraft(ctx context.Context, owner id.UserID, in service.CreateDraftInput) (*service.CreateDraftResult, error)
	UpdateDraft(ctx context.Context, actor lifecycle.Actor, draftID id.DraftID, in service.UpdateDraftInput) (*service.UpdateDraftResult, error)
	GetDraft(ctx context.Context, actor lifecycle.Actor, draftID id.DraftID) (*models.Draft, *models.Filing, error)
	GetFiling(ctx context.Context, actor lifecycle.Actor, filingID id.FilingID) (*models.Filing, error)
	SubmitToCA(ctx context.Context, actor lifecycle.Actor, filingID id.FilingID) (*models.Filing, error)
	MarkFiled(ctx context.Context, actor lifecycle.Actor, filingID id.FilingID) (*models.Filing, error)
	Lock(ctx context.Context, actor lifecycle.Actor, filingID id.FilingID, reason string) (*models.Filing, error)
	Unlock(ctx context.Context, actor lifecycle.Actor, filingID id.FilingID) (*models.Filing, error)
}

// ComputeService runs the computation pipeline.
type ComputeService interface {
	Compute(ctx context.Context, actor lifecycle.Actor, filingID id.FilingID) (*pipeline.Result, error)
}

// ExportService builds validated export artifacts.
type ExportService interface {
	Export(ctx context.Context, actor lifecycle.Actor, filingID id.FilingID) (*models.ExportArtifact, error)
}

// Handler handles filing endpoints.
type Handler struct {
	logger       *slog.Logger
	drafts       DraftService
	compute      ComputeService
	exports      ExportService
	httpMetrics  *platformmetrics.HTTP
	jwtValidator middleware.JWTValidator
}

// New creates a filing Handler.
func New(
	drafts DraftService,
	compute ComputeService,
	exports ExportService,
	logger *slog.Logger,
	httpMetrics *platformmetrics.HTTP,
	jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		drafts:       drafts,
		compute:      compute,
		exports:      exports,
		httpMetrics:  httpMetrics,
		jwtValidator: jwtValidator,
	}
}

// Register registers the filing routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	filingRouter := chi.NewRouter()
	filingRouter.Use(middleware.Recovery(h.logger))
	filingRouter.Use(middleware.RequestID)
	filingRouter.Use(middleware.Logger(h.logger))
	filingRouter.Use(middleware.Timeout(requestTimeout))
	if h.httpMetrics != nil {
		filingRouter.Use(h.httpMetrics.Latency)
	}
	filingRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

	filingRouter.Post("/filings/drafts", h.handleCreateDraft)
	filingRouter.Put("/filings/drafts/{draftID}", h.handleUpdateDraft)
	filingRouter.Get("/filings/drafts/{draftID}", h.handleGetDraft)
	filingRouter.Get("/filings/{filingID}", h.handleGetFiling)
	filingRouter.Post("/filings/{filingID}/compute", h.handleCompute)
	filingRouter.Post("/filings/{filingID}/export", h.handleExport)
	filingRouter.Post("/filings/{filingID}/submit", h.handleSubmit)
	filingRouter.Post("/filings/{filingID}/file", h.handleMarkFiled)
	filingRouter.Post("/filings/{filingID}/lock", h.handleLock)
	filingRouter.Post("/filings/{filingID}/unlock", h.handleUnlock)

	r.Mount("/", filingRouter)
}

func (h *Handler) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req createDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		req.IdempotencyKey = key
	}

	result, err := h.drafts.CreateDraft(ctx, actor.UserID, service.CreateDraftInput{
		FormType:       req.FormType,
		Period:         req.Period,
		Payload:        req.Payload,
		Step:           req.Step,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusCreated
	if result.IdempotencyHit {
		status = http.StatusOK
	}
	writeJSON(w, status, newCreateDraftResponse(result))
}

func (h *Handler) handleUpdateDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	draftID, err := id.ParseDraftID(chi.URLParam(r, "draftID"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req updateDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	result, err := h.drafts.UpdateDraft(ctx, actor, draftID, service.UpdateDraftInput{
		Payload: req.Payload,
		Step:    req.Step,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newUpdateDraftResponse(result))
}

func (h *Handler) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	draftID, err := id.ParseDraftID(chi.URLParam(r, "draftID"))
	if err != nil {
		writeError(w, err)
		return
	}

	draft, filing, err := h.drafts.GetDraft(ctx, actor, draftID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newDraftResponse(draft, filing))
}

func (h *Handler) handleGetFiling(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	filingID, err := id.ParseFilingID(chi.URLParam(r, "filingID"))
	if err != nil {
		writeError(w, err)
		return
	}

	filing, err := h.drafts.GetFiling(ctx, actor, filingID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newFilingResponse(filing))
}

func (h *Handler) handleCompute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	filingID, err := id.ParseFilingID(chi.URLParam(r, "filingID"))
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.compute.Compute(ctx, actor, filingID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newComputeResponse(result))
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	filingID, err := id.ParseFilingID(chi.URLParam(r, "filingID"))
	if err != nil {
		writeError(w, err)
		return
	}

	artifact, err := h.exports.Export(ctx, actor, filingID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newExportResponse(artifact))
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, h.drafts.SubmitToCA)
}

func (h *Handler) handleMarkFiled(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, h.drafts.MarkFiled)
}

func (h *Handler) handleLock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	filingID, err := id.ParseFilingID(chi.URLParam(r, "filingID"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req lockRequest
	// Body optional; a missing or empty body means no stated reason.
	_ = json.NewDecoder(r.Body).Decode(&req)

	filing, err := h.drafts.Lock(ctx, actor, filingID, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newFilingResponse(filing))
}

func (h *Handler) handleUnlock(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, h.drafts.Unlock)
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request, op func(context.Context, lifecycle.Actor, id.FilingID) (*models.Filing, error)) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	filingID, err := id.ParseFilingID(chi.URLParam(r, "filingID"))
	if err != nil {
		writeError(w, err)
		return
	}

	filing, err := op(ctx, actor, filingID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newFilingResponse(filing))
}

// actor resolves the authenticated actor from the request context. The auth
// middleware guarantees both values; an empty one means a wiring bug.
func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (lifecycle.Actor, bool) {
	ctx := r.Context()
	userID, err := id.ParseUserID(requestcontext.UserID(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "user ID missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(ctx),
		)
		writeError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return lifecycle.Actor{}, false
	}
	role, err := lifecycle.ParseRole(requestcontext.ActorRole(ctx))
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeForbidden, "unknown actor role"))
		return lifecycle.Actor{}, false
	}
	return lifecycle.Actor{UserID: userID, Role: role}, true
}
