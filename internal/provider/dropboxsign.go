package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sealflow/sealflow-backend/internal/contract/domain"
	"github.com/sealflow/sealflow-backend/pkg/config"
	"github.com/sealflow/sealflow-backend/pkg/errors"
)

var dropboxRequestStatuses = map[string]domain.ContractStatus{
	"signature_request_sent":       domain.ContractStatusSent,
	"signature_request_viewed":     domain.ContractStatusSent,
	"signature_request_signed":     domain.ContractStatusPartiallySigned,
	"signature_request_all_signed": domain.ContractStatusFullySigned,
	"signature_request_declined":   domain.ContractStatusDeclined,
	"signature_request_canceled":   domain.ContractStatusVoided,
	"signature_request_expired":    domain.ContractStatusExpired,
}

var dropboxSignerStatuses = map[string]domain.SignerStatus{
	"awaiting_signature": domain.SignerStatusSent,
	"viewed":             domain.SignerStatusOpened,
	"signed":             domain.SignerStatusSigned,
	"declined":           domain.SignerStatusDeclined,
	"expired":            domain.SignerStatusExpired,
}

// DropboxSign is the adapter for the Dropbox Sign (HelloSign) REST API.
type DropboxSign struct {
	cfg    config.ProviderConfig
	client *http.Client
}

// NewDropboxSign creates the Dropbox Sign adapter.
func NewDropboxSign(cfg config.ProviderConfig) *DropboxSign {
	return &DropboxSign{cfg: cfg, client: newHTTPClient()}
}

func (d *DropboxSign) Name() string {
	return NameDropboxSign
}

func (d *DropboxSign) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + d.cfg.APIKey}
}

func (d *DropboxSign) requestURL(suffix string) string {
	return strings.TrimRight(d.cfg.BaseURL, "/") + "/v3/signature_request" + suffix
}

type dropboxSignature struct {
	SignatureID   string `json:"signature_id"`
	SignerEmail   string `json:"signer_email_address"`
	SignerName    string `json:"signer_name"`
	Order         *int   `json:"order"`
	StatusCode    string `json:"status_code"`
	SignedAt      int64  `json:"signed_at"`
	LastViewedAt  int64  `json:"last_viewed_at"`
	DeclineReason string `json:"decline_reason"`
}

type dropboxSignatureRequest struct {
	SignatureRequestID string             `json:"signature_request_id"`
	Title              string             `json:"title"`
	IsComplete         bool               `json:"is_complete"`
	IsDeclined         bool               `json:"is_declined"`
	Signatures         []dropboxSignature `json:"signatures"`
}

// Send creates a signature request from the rendered contract text.
func (d *DropboxSign) Send(ctx context.Context, c *domain.SignedContract) (*SendResult, error) {
	type sendSigner struct {
		EmailAddress string `json:"email_address"`
		Name         string `json:"name"`
		Order        int    `json:"order"`
	}
	body := struct {
		Title   string       `json:"title"`
		Subject string       `json:"subject"`
		Files   []string     `json:"file_base64"`
		Signers []sendSigner `json:"signers"`
	}{
		Title:   c.Title,
		Subject: c.Title,
		Files:   []string{encodeBase64([]byte(c.Content))},
	}
	for _, s := range c.Signers {
		body.Signers = append(body.Signers, sendSigner{
			EmailAddress: s.Email,
			Name:         s.Name,
			Order:        s.Order,
		})
	}

	var created struct {
		SignatureRequest dropboxSignatureRequest `json:"signature_request"`
	}
	if err := doJSON(ctx, d.client, http.MethodPost, d.requestURL("/send"), d.headers(), body, &created); err != nil {
		return nil, errors.Provider(NameDropboxSign, err)
	}
	if created.SignatureRequest.SignatureRequestID == "" {
		return nil, errors.Provider(NameDropboxSign, fmt.Errorf("signature request created without an id"))
	}

	return &SendResult{
		ExternalID: created.SignatureRequest.SignatureRequestID,
		Status:     domain.ContractStatusSent,
	}, nil
}

// GetStatus polls the signature request.
func (d *DropboxSign) GetStatus(ctx context.Context, externalID string) (*StatusSnapshot, error) {
	var resp struct {
		SignatureRequest dropboxSignatureRequest `json:"signature_request"`
	}
	if err := doJSON(ctx, d.client, http.MethodGet, d.requestURL("/"+externalID), d.headers(), nil, &resp); err != nil {
		return nil, errors.Provider(NameDropboxSign, err)
	}
	resp.SignatureRequest.SignatureRequestID = externalID
	return d.snapshot("", resp.SignatureRequest), nil
}

// ParseWebhook handles Dropbox Sign callback events.
func (d *DropboxSign) ParseWebhook(payload []byte) (*StatusSnapshot, error) {
	var event struct {
		Event struct {
			EventType string `json:"event_type"`
		} `json:"event"`
		SignatureRequest dropboxSignatureRequest `json:"signature_request"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, errors.BadRequest("malformed dropboxsign webhook payload")
	}
	if event.SignatureRequest.SignatureRequestID == "" {
		return nil, errors.BadRequest("dropboxsign webhook is missing the signature request id")
	}
	return d.snapshot(event.Event.EventType, event.SignatureRequest), nil
}

// DownloadFinalDocument fetches the signed files.
func (d *DropboxSign) DownloadFinalDocument(ctx context.Context, externalID string) ([]byte, error) {
	raw, err := download(ctx, d.client, d.requestURL("/files/"+externalID), d.headers())
	if err != nil {
		return nil, errors.Provider(NameDropboxSign, err)
	}
	return raw, nil
}

func (d *DropboxSign) snapshot(eventType string, req dropboxSignatureRequest) *StatusSnapshot {
	snap := &StatusSnapshot{
		Provider:       NameDropboxSign,
		ExternalID:     req.SignatureRequestID,
		RawStatus:      eventType,
		ContractStatus: dropboxRequestStatuses[eventType],
		ObservedAt:     time.Now().UTC(),
	}
	// The request body carries completion flags even when the event type is
	// missing or unmapped.
	if snap.ContractStatus == "" {
		switch {
		case req.IsComplete:
			snap.ContractStatus = domain.ContractStatusFullySigned
		case req.IsDeclined:
			snap.ContractStatus = domain.ContractStatusDeclined
		}
	}
	var latestSigned *time.Time
	for _, sig := range req.Signatures {
		ss := SignerSnapshot{
			Email:    sig.SignerEmail,
			Status:   dropboxSignerStatuses[sig.StatusCode],
			Declined: sig.DeclineReason,
		}
		if at := parseUnixTime(sig.SignedAt); at != nil {
			ss.At = at
			if latestSigned == nil || at.After(*latestSigned) {
				latestSigned = at
			}
		} else if at := parseUnixTime(sig.LastViewedAt); at != nil {
			ss.At = at
		}
		snap.Signers = append(snap.Signers, ss)
	}
	if req.IsComplete {
		snap.CompletedAt = latestSigned
	}
	return snap
}
