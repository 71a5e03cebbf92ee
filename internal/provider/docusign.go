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

// docuSignEnvelopeStatuses maps DocuSign envelope statuses into the
// canonical contract vocabulary. Unknown statuses map to the zero value and
// callers treat that as "no contract-level change".
var docuSignEnvelopeStatuses = map[string]domain.ContractStatus{
	"sent":      domain.ContractStatusSent,
	"delivered": domain.ContractStatusSent,
	"completed": domain.ContractStatusFullySigned,
	"declined":  domain.ContractStatusDeclined,
	"voided":    domain.ContractStatusVoided,
}

var docuSignRecipientStatuses = map[string]domain.SignerStatus{
	"created":   domain.SignerStatusPending,
	"sent":      domain.SignerStatusSent,
	"delivered": domain.SignerStatusOpened,
	"completed": domain.SignerStatusSigned,
	"signed":    domain.SignerStatusSigned,
	"declined":  domain.SignerStatusDeclined,
}

// DocuSign is the adapter for the DocuSign eSignature REST API.
type DocuSign struct {
	cfg    config.ProviderConfig
	client *http.Client
}

// NewDocuSign creates the DocuSign adapter.
func NewDocuSign(cfg config.ProviderConfig) *DocuSign {
	return &DocuSign{cfg: cfg, client: newHTTPClient()}
}

func (d *DocuSign) Name() string {
	return NameDocuSign
}

func (d *DocuSign) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + d.cfg.APIKey}
}

func (d *DocuSign) envelopesURL(suffix string) string {
	return fmt.Sprintf("%s/v2.1/accounts/%s/envelopes%s",
		strings.TrimRight(d.cfg.BaseURL, "/"), d.cfg.AccountID, suffix)
}

type docuSignRecipient struct {
	Email            string `json:"email"`
	Name             string `json:"name"`
	RecipientID      string `json:"recipientId"`
	RoutingOrder     string `json:"routingOrder"`
	Status           string `json:"status,omitempty"`
	DeclinedReason   string `json:"declinedReason,omitempty"`
	SignedDateTime   string `json:"signedDateTime,omitempty"`
	DeclinedDateTime string `json:"declinedDateTime,omitempty"`
}

type docuSignEnvelope struct {
	EnvelopeID   string `json:"envelopeId,omitempty"`
	EmailSubject string `json:"emailSubject,omitempty"`
	Status       string `json:"status"`
	CompletedAt  string `json:"completedDateTime,omitempty"`
	Documents    []struct {
		DocumentBase64 string `json:"documentBase64"`
		Name           string `json:"name"`
		DocumentID     string `json:"documentId"`
	} `json:"documents,omitempty"`
	Recipients struct {
		Signers []docuSignRecipient `json:"signers"`
	} `json:"recipients"`
}

// Send creates and dispatches an envelope carrying the rendered contract.
func (d *DocuSign) Send(ctx context.Context, c *domain.SignedContract) (*SendResult, error) {
	env := docuSignEnvelope{
		EmailSubject: c.Title,
		Status:       "sent",
	}
	env.Documents = append(env.Documents, struct {
		DocumentBase64 string `json:"documentBase64"`
		Name           string `json:"name"`
		DocumentID     string `json:"documentId"`
	}{
		DocumentBase64: encodeBase64([]byte(c.Content)),
		Name:           c.Title,
		DocumentID:     "1",
	})
	for i, s := range c.Signers {
		env.Recipients.Signers = append(env.Recipients.Signers, docuSignRecipient{
			Email:        s.Email,
			Name:         s.Name,
			RecipientID:  fmt.Sprintf("%d", i+1),
			RoutingOrder: fmt.Sprintf("%d", s.Order),
		})
	}

	var created docuSignEnvelope
	if err := doJSON(ctx, d.client, http.MethodPost, d.envelopesURL(""), d.headers(), env, &created); err != nil {
		return nil, errors.Provider(NameDocuSign, err)
	}
	if created.EnvelopeID == "" {
		return nil, errors.Provider(NameDocuSign, fmt.Errorf("envelope created without an id"))
	}

	return &SendResult{ExternalID: created.EnvelopeID, Status: domain.ContractStatusSent}, nil
}

// GetStatus polls the envelope and its recipients.
func (d *DocuSign) GetStatus(ctx context.Context, externalID string) (*StatusSnapshot, error) {
	var env docuSignEnvelope
	url := d.envelopesURL("/" + externalID + "?include=recipients")
	if err := doJSON(ctx, d.client, http.MethodGet, url, d.headers(), nil, &env); err != nil {
		return nil, errors.Provider(NameDocuSign, err)
	}
	env.EnvelopeID = externalID
	return d.snapshot(env), nil
}

// ParseWebhook handles DocuSign Connect JSON events.
func (d *DocuSign) ParseWebhook(payload []byte) (*StatusSnapshot, error) {
	var event struct {
		Event string `json:"event"`
		Data  struct {
			EnvelopeID      string           `json:"envelopeId"`
			EnvelopeSummary docuSignEnvelope `json:"envelopeSummary"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, errors.BadRequest("malformed docusign webhook payload")
	}
	if event.Data.EnvelopeID == "" {
		return nil, errors.BadRequest("docusign webhook is missing the envelope id")
	}
	env := event.Data.EnvelopeSummary
	env.EnvelopeID = event.Data.EnvelopeID
	return d.snapshot(env), nil
}

// DownloadFinalDocument fetches the combined signed PDF.
func (d *DocuSign) DownloadFinalDocument(ctx context.Context, externalID string) ([]byte, error) {
	raw, err := download(ctx, d.client, d.envelopesURL("/"+externalID+"/documents/combined"), d.headers())
	if err != nil {
		return nil, errors.Provider(NameDocuSign, err)
	}
	return raw, nil
}

func (d *DocuSign) snapshot(env docuSignEnvelope) *StatusSnapshot {
	snap := &StatusSnapshot{
		Provider:       NameDocuSign,
		ExternalID:     env.EnvelopeID,
		RawStatus:      env.Status,
		ContractStatus: docuSignEnvelopeStatuses[strings.ToLower(env.Status)],
		CompletedAt:    parseVendorTime(env.CompletedAt),
		ObservedAt:     time.Now().UTC(),
	}
	for _, r := range env.Recipients.Signers {
		ss := SignerSnapshot{
			Email:    r.Email,
			Status:   docuSignRecipientStatuses[strings.ToLower(r.Status)],
			Declined: r.DeclinedReason,
		}
		switch {
		case r.SignedDateTime != "":
			ss.At = parseVendorTime(r.SignedDateTime)
		case r.DeclinedDateTime != "":
			ss.At = parseVendorTime(r.DeclinedDateTime)
		}
		snap.Signers = append(snap.Signers, ss)
	}
	return snap
}
