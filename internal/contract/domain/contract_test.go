package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sealflow/sealflow-backend/internal/contract/domain"
)

func timePtr(t time.Time) *time.Time { return &t }

func sentContract(signerStatuses ...domain.SignerStatus) *domain.SignedContract {
	c := &domain.SignedContract{
		ID:     "c-1",
		Status: domain.ContractStatusSent,
	}
	for i, st := range signerStatuses {
		c.Signers = append(c.Signers, domain.Signer{
			ID:     "signer-" + string(rune('1'+i)),
			Status: st,
		})
	}
	return c
}

func TestAllSigned_OrderIndependent(t *testing.T) {
	// completion is a conjunction: any permutation of who signed first gives
	// the same answer
	assert.True(t, sentContract(
		domain.SignerStatusSigned, domain.SignerStatusSigned, domain.SignerStatusSigned).AllSigned())
	assert.False(t, sentContract(
		domain.SignerStatusSigned, domain.SignerStatusSent, domain.SignerStatusSigned).AllSigned())
	assert.False(t, sentContract(
		domain.SignerStatusOpened, domain.SignerStatusSigned).AllSigned())

	// no signers never counts as fully signed
	assert.False(t, (&domain.SignedContract{}).AllSigned())
}

func TestIsExpired(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	c := sentContract(domain.SignerStatusSent)
	c.Dates.Expires = &past
	assert.True(t, c.IsExpired(now))

	c.Dates.Expires = &future
	assert.False(t, c.IsExpired(now))

	// sealed contracts never expire retroactively
	c.Dates.Expires = &past
	c.Status = domain.ContractStatusFullySigned
	assert.False(t, c.IsExpired(now))
	c.Status = domain.ContractStatusCompleted
	assert.False(t, c.IsExpired(now))
	c.Status = domain.ContractStatusVoided
	assert.False(t, c.IsExpired(now))

	// no expiry date means no expiry
	c.Status = domain.ContractStatusSent
	c.Dates.Expires = nil
	assert.False(t, c.IsExpired(now))
}

func TestSignerStatus_AdvancesFrom(t *testing.T) {
	tests := []struct {
		from     domain.SignerStatus
		to       domain.SignerStatus
		advances bool
	}{
		{domain.SignerStatusPending, domain.SignerStatusSent, true},
		{domain.SignerStatusSent, domain.SignerStatusOpened, true},
		{domain.SignerStatusOpened, domain.SignerStatusSigned, true},
		{domain.SignerStatusSent, domain.SignerStatusSigned, true},
		{domain.SignerStatusOpened, domain.SignerStatusSent, false},
		{domain.SignerStatusSigned, domain.SignerStatusOpened, false},
		{domain.SignerStatusSigned, domain.SignerStatusDeclined, false},
		{domain.SignerStatusDeclined, domain.SignerStatusSigned, false},
		{domain.SignerStatusSent, domain.SignerStatusSent, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.advances, tt.to.AdvancesFrom(tt.from))
		})
	}
}

func TestBuildProgress(t *testing.T) {
	now := time.Now().UTC()
	c := sentContract(domain.SignerStatusSigned, domain.SignerStatusSent)
	c.Status = domain.ContractStatusPartiallySigned
	c.Signers[0].SignedAt = timePtr(now)
	c.Security.FinalHash = ""

	p := c.BuildProgress()
	assert.Equal(t, "c-1", p.ContractID)
	assert.Equal(t, domain.ContractStatusPartiallySigned, p.Status)
	assert.Equal(t, 1, p.SignedCount)
	assert.Equal(t, 2, p.SignerCount)
	assert.False(t, p.FinalHashSet)
	assert.Len(t, p.Signers, 2)
	assert.Equal(t, domain.SignerStatusSigned, p.Signers[0].Status)
}

func TestEvidence_AppendLog(t *testing.T) {
	now := time.Now().UTC()
	ev := &domain.Evidence{SessionID: "s-1"}

	ev.AppendLog(now, domain.AccessActionSessionStarted, "", "203.0.113.7")
	ev.AppendLog(now.Add(time.Minute), domain.AccessActionEvidenceCollected, "", "203.0.113.7")

	assert.Len(t, ev.AccessLog, 2)
	assert.Equal(t, domain.AccessActionSessionStarted, ev.AccessLog[0].Action)
	assert.Equal(t, domain.AccessActionEvidenceCollected, ev.AccessLog[1].Action)
}

func TestSigner_HasConsent(t *testing.T) {
	s := &domain.Signer{
		Consents: []domain.Consent{
			{ConsentID: "terms", Accepted: true},
			{ConsentID: "marketing", Accepted: false},
		},
	}
	assert.True(t, s.HasConsent("terms"))
	assert.False(t, s.HasConsent("marketing"))
	assert.False(t, s.HasConsent("unknown"))
}
