package handler

import (
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sealflow/sealflow-backend/internal/contract/service"
	evidenceservice "github.com/sealflow/sealflow-backend/internal/evidence/service"
	"github.com/sealflow/sealflow-backend/pkg/httputil"
	"github.com/sealflow/sealflow-backend/pkg/logger"
)

// SigningHandler handles the token-scoped signer-facing endpoints. Signers
// authenticate with their signing reference, never with an actor identity.
type SigningHandler struct {
	workflow *service.WorkflowService
	evidence *evidenceservice.Service
	tokens   *service.TokenIssuer
	logger   *logger.Logger
}

// NewSigningHandler creates a new signing handler
func NewSigningHandler(
	workflow *service.WorkflowService,
	evidence *evidenceservice.Service,
	tokens *service.TokenIssuer,
	log *logger.Logger,
) *SigningHandler {
	return &SigningHandler{
		workflow: workflow,
		evidence: evidence,
		tokens:   tokens,
		logger:   log,
	}
}

// RegisterRoutes registers signing routes on the router
func (h *SigningHandler) RegisterRoutes(r chi.Router) {
	r.Route("/signing", func(r chi.Router) {
		r.Post("/session", h.StartSession)
		r.Post("/evidence", h.CollectEvidence)
		r.Post("/signature", h.Sign)
		r.Post("/decline", h.Decline)
	})
}

// StartSession opens or resumes a signing session
func (h *SigningHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req evidenceservice.StartSessionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	req.IPAddress = clientIP(r)
	req.UserAgent = r.UserAgent()

	session, err := h.evidence.StartSession(r.Context(), &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, session)
}

// CollectEvidence merges an evidence batch into the signer's record
func (h *SigningHandler) CollectEvidence(w http.ResponseWriter, r *http.Request) {
	var req evidenceservice.CollectRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	req.IPAddress = clientIP(r)

	ev, err := h.evidence.CollectEvidence(r.Context(), &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, ev)
}

type signRequest struct {
	Reference string `json:"signing_reference" validate:"required"`
	service.SignatureRequest
}

// Sign records the signer's signature
func (h *SigningHandler) Sign(w http.ResponseWriter, r *http.Request) {
	var req signRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	claims, err := h.tokens.Verify(req.Reference)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.workflow.ProcessSignature(r.Context(), claims.ContractID, claims.SignerID, &req.SignatureRequest)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Decline records the signer's refusal
func (h *SigningHandler) Decline(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reference string `json:"signing_reference" validate:"required"`
		Reason    string `json:"reason" validate:"required,min=1,max=500"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	claims, err := h.tokens.Verify(req.Reference)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	c, err := h.workflow.Decline(r.Context(), claims.ContractID, claims.SignerID, req.Reason)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, c.BuildProgress())
}

// clientIP extracts the originating client address, honoring the forwarding
// headers a fronting proxy sets.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
