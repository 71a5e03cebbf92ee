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

var adobeAgreementStatuses = map[string]domain.ContractStatus{
	"OUT_FOR_SIGNATURE": domain.ContractStatusSent,
	"SIGNED":            domain.ContractStatusFullySigned,
	"CANCELLED":         domain.ContractStatusVoided,
	"EXPIRED":           domain.ContractStatusExpired,
}

var adobeParticipantStatuses = map[string]domain.SignerStatus{
	"NOT_YET_VISIBLE":          domain.SignerStatusPending,
	"WAITING_FOR_MY_SIGNATURE": domain.SignerStatusSent,
	"VIEWED":                   domain.SignerStatusOpened,
	"COMPLETED":                domain.SignerStatusSigned,
	"DECLINED":                 domain.SignerStatusDeclined,
	"EXPIRED":                  domain.SignerStatusExpired,
}

// AdobeSign is the adapter for the Adobe Acrobat Sign REST API.
type AdobeSign struct {
	cfg    config.ProviderConfig
	client *http.Client
}

// NewAdobeSign creates the Adobe Sign adapter.
func NewAdobeSign(cfg config.ProviderConfig) *AdobeSign {
	return &AdobeSign{cfg: cfg, client: newHTTPClient()}
}

func (a *AdobeSign) Name() string {
	return NameAdobeSign
}

func (a *AdobeSign) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + a.cfg.APIKey}
}

func (a *AdobeSign) agreementsURL(suffix string) string {
	return strings.TrimRight(a.cfg.BaseURL, "/") + "/api/rest/v6/agreements" + suffix
}

type adobeParticipantSet struct {
	Role    string `json:"role"`
	Order   int    `json:"order"`
	Status  string `json:"status,omitempty"`
	MemberInfos []struct {
		Email string `json:"email"`
		Name  string `json:"name,omitempty"`
	} `json:"memberInfos"`
	CompletedDate string `json:"completedDate,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

type adobeAgreement struct {
	ID              string                `json:"id,omitempty"`
	Name            string                `json:"name,omitempty"`
	Status          string                `json:"status,omitempty"`
	SignatureType   string                `json:"signatureType,omitempty"`
	State           string                `json:"state,omitempty"`
	CompletedDate   string                `json:"completedDate,omitempty"`
	ParticipantSets []adobeParticipantSet `json:"participantSetsInfo,omitempty"`
	FileInfos       []struct {
		TransientDocumentID string `json:"transientDocumentId,omitempty"`
		Label               string `json:"label,omitempty"`
	} `json:"fileInfos,omitempty"`
}

// Send creates an agreement in the IN_PROCESS state, which dispatches it.
func (a *AdobeSign) Send(ctx context.Context, c *domain.SignedContract) (*SendResult, error) {
	agreement := adobeAgreement{
		Name:          c.Title,
		SignatureType: "ESIGN",
		State:         "IN_PROCESS",
	}
	for _, s := range c.Signers {
		set := adobeParticipantSet{Role: "SIGNER", Order: s.Order}
		set.MemberInfos = append(set.MemberInfos, struct {
			Email string `json:"email"`
			Name  string `json:"name,omitempty"`
		}{Email: s.Email, Name: s.Name})
		agreement.ParticipantSets = append(agreement.ParticipantSets, set)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := doJSON(ctx, a.client, http.MethodPost, a.agreementsURL(""), a.headers(), agreement, &created); err != nil {
		return nil, errors.Provider(NameAdobeSign, err)
	}
	if created.ID == "" {
		return nil, errors.Provider(NameAdobeSign, fmt.Errorf("agreement created without an id"))
	}

	return &SendResult{ExternalID: created.ID, Status: domain.ContractStatusSent}, nil
}

// GetStatus polls the agreement and its participant sets.
func (a *AdobeSign) GetStatus(ctx context.Context, externalID string) (*StatusSnapshot, error) {
	var agreement adobeAgreement
	if err := doJSON(ctx, a.client, http.MethodGet, a.agreementsURL("/"+externalID), a.headers(), nil, &agreement); err != nil {
		return nil, errors.Provider(NameAdobeSign, err)
	}

	var members struct {
		ParticipantSets []adobeParticipantSet `json:"participantSets"`
	}
	if err := doJSON(ctx, a.client, http.MethodGet, a.agreementsURL("/"+externalID+"/members"), a.headers(), nil, &members); err != nil {
		return nil, errors.Provider(NameAdobeSign, err)
	}
	agreement.ID = externalID
	agreement.ParticipantSets = members.ParticipantSets
	return a.snapshot(agreement), nil
}

// ParseWebhook handles Acrobat Sign webhook notifications.
func (a *AdobeSign) ParseWebhook(payload []byte) (*StatusSnapshot, error) {
	var event struct {
		Event     string         `json:"event"`
		Agreement adobeAgreement `json:"agreement"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, errors.BadRequest("malformed adobesign webhook payload")
	}
	if event.Agreement.ID == "" {
		return nil, errors.BadRequest("adobesign webhook is missing the agreement id")
	}
	return a.snapshot(event.Agreement), nil
}

// DownloadFinalDocument fetches the combined signed document.
func (a *AdobeSign) DownloadFinalDocument(ctx context.Context, externalID string) ([]byte, error) {
	raw, err := download(ctx, a.client, a.agreementsURL("/"+externalID+"/combinedDocument"), a.headers())
	if err != nil {
		return nil, errors.Provider(NameAdobeSign, err)
	}
	return raw, nil
}

func (a *AdobeSign) snapshot(agreement adobeAgreement) *StatusSnapshot {
	snap := &StatusSnapshot{
		Provider:       NameAdobeSign,
		ExternalID:     agreement.ID,
		RawStatus:      agreement.Status,
		ContractStatus: adobeAgreementStatuses[strings.ToUpper(agreement.Status)],
		CompletedAt:    parseVendorTime(agreement.CompletedDate),
		ObservedAt:     time.Now().UTC(),
	}
	for _, set := range agreement.ParticipantSets {
		for _, m := range set.MemberInfos {
			snap.Signers = append(snap.Signers, SignerSnapshot{
				Email:    m.Email,
				Status:   adobeParticipantStatuses[strings.ToUpper(set.Status)],
				At:       parseVendorTime(set.CompletedDate),
				Declined: set.Reason,
			})
		}
	}
	return snap
}
