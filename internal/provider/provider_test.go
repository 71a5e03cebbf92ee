package provider_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealflow/sealflow-backend/internal/contract/domain"
	"github.com/sealflow/sealflow-backend/internal/provider"
	"github.com/sealflow/sealflow-backend/pkg/config"
)

func TestRegistry(t *testing.T) {
	r := provider.NewRegistry(provider.NewNative(), provider.NewDocuSign(config.ProviderConfig{}))

	p, err := r.Get(provider.NameNative)
	require.NoError(t, err)
	assert.Equal(t, provider.NameNative, p.Name())

	_, err = r.Get("scribblesign")
	assert.Error(t, err)

	assert.ElementsMatch(t, []string{provider.NameNative, provider.NameDocuSign}, r.Names())
}

func TestDocuSign_ParseWebhook(t *testing.T) {
	p := provider.NewDocuSign(config.ProviderConfig{})

	payload := []byte(`{
		"event": "envelope-completed",
		"data": {
			"envelopeId": "env-123",
			"envelopeSummary": {
				"status": "completed",
				"completedDateTime": "2026-03-01T12:00:00Z",
				"recipients": {
					"signers": [
						{"email": "a@example.com", "status": "completed", "signedDateTime": "2026-03-01T11:58:00Z"},
						{"email": "b@example.com", "status": "completed", "signedDateTime": "2026-03-01T12:00:00Z"}
					]
				}
			}
		}
	}`)

	snap, err := p.ParseWebhook(payload)
	require.NoError(t, err)

	assert.Equal(t, provider.NameDocuSign, snap.Provider)
	assert.Equal(t, "env-123", snap.ExternalID)
	assert.Equal(t, domain.ContractStatusFullySigned, snap.ContractStatus)
	require.NotNil(t, snap.CompletedAt)
	require.Len(t, snap.Signers, 2)
	assert.Equal(t, domain.SignerStatusSigned, snap.Signers[0].Status)
	assert.Equal(t, "a@example.com", snap.Signers[0].Email)
	require.NotNil(t, snap.Signers[0].At)
}

func TestDocuSign_ParseWebhook_Declined(t *testing.T) {
	p := provider.NewDocuSign(config.ProviderConfig{})

	payload := []byte(`{
		"event": "recipient-declined",
		"data": {
			"envelopeId": "env-456",
			"envelopeSummary": {
				"status": "declined",
				"recipients": {
					"signers": [
						{"email": "a@example.com", "status": "declined",
						 "declinedReason": "wrong terms", "declinedDateTime": "2026-03-01T12:00:00Z"}
					]
				}
			}
		}
	}`)

	snap, err := p.ParseWebhook(payload)
	require.NoError(t, err)

	assert.Equal(t, domain.ContractStatusDeclined, snap.ContractStatus)
	require.Len(t, snap.Signers, 1)
	assert.Equal(t, domain.SignerStatusDeclined, snap.Signers[0].Status)
	assert.Equal(t, "wrong terms", snap.Signers[0].Declined)
}

func TestDocuSign_ParseWebhook_Malformed(t *testing.T) {
	p := provider.NewDocuSign(config.ProviderConfig{})

	_, err := p.ParseWebhook([]byte(`not json`))
	assert.Error(t, err)

	_, err = p.ParseWebhook([]byte(`{"event": "x", "data": {}}`))
	assert.Error(t, err)
}

func TestAdobeSign_ParseWebhook(t *testing.T) {
	p := provider.NewAdobeSign(config.ProviderConfig{})

	payload := []byte(`{
		"event": "AGREEMENT_WORKFLOW_COMPLETED",
		"agreement": {
			"id": "agr-1",
			"status": "SIGNED",
			"completedDate": "2026-03-01T12:00:00Z",
			"participantSetsInfo": [
				{
					"role": "SIGNER",
					"order": 1,
					"status": "COMPLETED",
					"completedDate": "2026-03-01T12:00:00Z",
					"memberInfos": [{"email": "a@example.com"}]
				}
			]
		}
	}`)

	snap, err := p.ParseWebhook(payload)
	require.NoError(t, err)

	assert.Equal(t, "agr-1", snap.ExternalID)
	assert.Equal(t, domain.ContractStatusFullySigned, snap.ContractStatus)
	require.Len(t, snap.Signers, 1)
	assert.Equal(t, domain.SignerStatusSigned, snap.Signers[0].Status)
}

func TestDropboxSign_ParseWebhook(t *testing.T) {
	p := provider.NewDropboxSign(config.ProviderConfig{})

	payload := []byte(`{
		"event": {"event_type": "signature_request_all_signed"},
		"signature_request": {
			"signature_request_id": "req-1",
			"is_complete": true,
			"signatures": [
				{"signer_email_address": "a@example.com", "status_code": "signed", "signed_at": 1772366400},
				{"signer_email_address": "b@example.com", "status_code": "signed", "signed_at": 1772366500}
			]
		}
	}`)

	snap, err := p.ParseWebhook(payload)
	require.NoError(t, err)

	assert.Equal(t, "req-1", snap.ExternalID)
	assert.Equal(t, domain.ContractStatusFullySigned, snap.ContractStatus)
	require.Len(t, snap.Signers, 2)
	assert.Equal(t, domain.SignerStatusSigned, snap.Signers[0].Status)
	require.NotNil(t, snap.CompletedAt)
	// completion time is the latest signature
	assert.Equal(t, int64(1772366500), snap.CompletedAt.Unix())
}

func TestDropboxSign_ParseWebhook_FlagsFallback(t *testing.T) {
	p := provider.NewDropboxSign(config.ProviderConfig{})

	// unknown event type, request body flags still identify the state
	payload := []byte(`{
		"event": {"event_type": "signature_request_downloadable"},
		"signature_request": {
			"signature_request_id": "req-2",
			"is_declined": true,
			"signatures": [
				{"signer_email_address": "a@example.com", "status_code": "declined", "decline_reason": "no"}
			]
		}
	}`)

	snap, err := p.ParseWebhook(payload)
	require.NoError(t, err)
	assert.Equal(t, domain.ContractStatusDeclined, snap.ContractStatus)
}

func TestNative_ParseWebhookRejected(t *testing.T) {
	p := provider.NewNative()
	_, err := p.ParseWebhook([]byte(`{}`))
	assert.Error(t, err)
}

func TestVerifyWebhookSignature(t *testing.T) {
	secret := "shh"
	payload := []byte(`{"event":"x"}`)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	sig := hex.EncodeToString(mac.Sum(nil))

	assert.True(t, provider.VerifyWebhookSignature(secret, payload, sig))
	assert.False(t, provider.VerifyWebhookSignature(secret, payload, "deadbeef"))
	assert.False(t, provider.VerifyWebhookSignature(secret, []byte(`tampered`), sig))

	// empty secret disables verification
	assert.True(t, provider.VerifyWebhookSignature("", payload, ""))
}
