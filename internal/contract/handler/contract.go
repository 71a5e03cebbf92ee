package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sealflow/sealflow-backend/internal/contract/domain"
	"github.com/sealflow/sealflow-backend/internal/contract/service"
	"github.com/sealflow/sealflow-backend/pkg/httputil"
	"github.com/sealflow/sealflow-backend/pkg/logger"
)

// ContractHandler handles contract lifecycle endpoints
type ContractHandler struct {
	workflow *service.WorkflowService
	logger   *logger.Logger
}

// NewContractHandler creates a new contract handler
func NewContractHandler(workflow *service.WorkflowService, log *logger.Logger) *ContractHandler {
	return &ContractHandler{
		workflow: workflow,
		logger:   log,
	}
}

// RegisterRoutes registers contract routes on the router
func (h *ContractHandler) RegisterRoutes(r chi.Router) {
	r.Route("/contracts", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Initiate)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Post("/send", h.Send)
			r.Post("/void", h.Void)
			r.Post("/complete", h.Complete)
			r.Post("/verify", h.Verify)
			r.Get("/progress", h.Progress)
			r.Get("/certificate", h.Certificate)
			r.Get("/evidence-package", h.EvidencePackage)
			r.Get("/audit-trail", h.AuditTrail)
			r.Post("/signers/{signerID}/resend", h.Resend)
		})
	})
}

// Initiate creates a contract from a published template
func (h *ContractHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req service.InitiateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.workflow.Initiate(r.Context(), &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, result)
}

// List lists contracts with optional subscriber and status filters
func (h *ContractHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	subscriberID := r.URL.Query().Get("subscriber_id")
	status := domain.ContractStatus(r.URL.Query().Get("status"))

	contracts, total, err := h.workflow.List(r.Context(), page, perPage, subscriberID, status)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	totalPages := int(total) / perPage
	if int(total)%perPage > 0 {
		totalPages++
	}

	httputil.JSONWithMeta(w, http.StatusOK, contracts, &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	})
}

// Get gets a contract by ID
func (h *ContractHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	c, err := h.workflow.Get(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, c)
}

// Progress returns the per-signer completion summary
func (h *ContractHandler) Progress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	c, err := h.workflow.Get(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, c.BuildProgress())
}

// Send dispatches a draft contract for signing
func (h *ContractHandler) Send(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Provider string `json:"provider,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.Error(w, err)
			return
		}
	}

	c, err := h.workflow.Send(r.Context(), id, req.Provider)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, c)
}

// Void cancels a contract
func (h *ContractHandler) Void(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Reason string `json:"reason" validate:"required,min=1,max=500"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	c, err := h.workflow.Void(r.Context(), id, req.Reason)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, c)
}

// Complete archives a fully signed contract
func (h *ContractHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	c, err := h.workflow.Complete(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, c)
}

// Resend refreshes one signer's signing link
func (h *ContractHandler) Resend(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	signerID := chi.URLParam(r, "signerID")

	ref, err := h.workflow.Resend(r.Context(), id, signerID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, ref)
}

// Verify compares a supplied hash against the stored document hashes
func (h *ContractHandler) Verify(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Hash string `json:"hash" validate:"required,len=64,hexadecimal"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.workflow.Verify(r.Context(), id, req.Hash)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Certificate returns the Certificate of Completion
func (h *ContractHandler) Certificate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cert, err := h.workflow.Certificate(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, cert)
}

// EvidencePackage exports the legal evidence bundle
func (h *ContractHandler) EvidencePackage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	pkg, err := h.workflow.EvidencePackage(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, pkg)
}

// AuditTrail returns the chronological contract event trail
func (h *ContractHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	trail, err := h.workflow.AuditTrail(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, trail)
}
