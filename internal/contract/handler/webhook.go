package handler

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sealflow/sealflow-backend/internal/contract/service"
	"github.com/sealflow/sealflow-backend/internal/provider"
	"github.com/sealflow/sealflow-backend/pkg/config"
	"github.com/sealflow/sealflow-backend/pkg/errors"
	"github.com/sealflow/sealflow-backend/pkg/httputil"
	"github.com/sealflow/sealflow-backend/pkg/logger"
)

// maxWebhookBody bounds inbound webhook payload size.
const maxWebhookBody = 1 << 20

// WebhookHandler receives provider status callbacks. Processing is
// idempotent, so vendors retrying deliveries is harmless.
type WebhookHandler struct {
	workflow  *service.WorkflowService
	providers *provider.Registry
	cfg       config.ProvidersConfig
	logger    *logger.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(
	workflow *service.WorkflowService,
	providers *provider.Registry,
	cfg config.ProvidersConfig,
	log *logger.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		workflow:  workflow,
		providers: providers,
		cfg:       cfg,
		logger:    log,
	}
}

// RegisterRoutes registers webhook routes on the router
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/{provider}", h.Receive)
}

// Receive parses and applies one provider callback
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")

	p, err := h.providers.Get(name)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		httputil.Error(w, errors.BadRequest("failed to read webhook body"))
		return
	}

	if !provider.VerifyWebhookSignature(h.webhookSecret(name), payload, r.Header.Get("X-Webhook-Signature")) {
		h.logger.Warn().Str("provider", name).Msg("webhook signature verification failed")
		httputil.Error(w, errors.BadRequest("invalid webhook signature"))
		return
	}

	snap, err := p.ParseWebhook(payload)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	c, err := h.workflow.ApplyProviderSnapshot(r.Context(), snap)
	if err != nil {
		// An unknown external ID is acknowledged, not retried: the vendor
		// will never learn about contracts this service does not hold.
		if errors.Is(err, errors.ErrNotFound) {
			h.logger.Warn().
				Str("provider", name).
				Str("external_id", snap.ExternalID).
				Msg("webhook for unknown contract")
			httputil.JSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]string{
		"status":      "applied",
		"contract_id": c.ID,
	})
}

func (h *WebhookHandler) webhookSecret(name string) string {
	switch name {
	case provider.NameDocuSign:
		return h.cfg.DocuSign.WebhookSecret
	case provider.NameAdobeSign:
		return h.cfg.AdobeSign.WebhookSecret
	case provider.NameDropboxSign:
		return h.cfg.DropboxSign.WebhookSecret
	}
	return ""
}
