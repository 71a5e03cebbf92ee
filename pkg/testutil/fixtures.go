package testutil

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	contractdomain "github.com/sealflow/sealflow-backend/internal/contract/domain"
	templatedomain "github.com/sealflow/sealflow-backend/internal/template/domain"
)

// TemplateFixture returns a published template with typed variables, one
// required consent and legal metadata. Mutators adjust it per test.
func TemplateFixture(mutators ...func(*templatedomain.ContractTemplate)) *templatedomain.ContractTemplate {
	now := time.Now().UTC()
	approvedBy := "reviewer-1"
	t := &templatedomain.ContractTemplate{
		ID:      uuid.New().String(),
		Name:    "Service Agreement",
		Version: "1.0.0",
		Status:  templatedomain.TemplateStatusActive,
		Body:    "This agreement between {{company_name}} and {{client_email}} is effective {{start_date}}.",
		Variables: templatedomain.VariableList{
			{Name: "company_name", Type: templatedomain.VariableTypeText, Required: true, MinLen: 2, MaxLen: 100},
			{Name: "client_email", Type: templatedomain.VariableTypeEmail, Required: true},
			{Name: "start_date", Type: templatedomain.VariableTypeDate, Required: true},
		},
		Requirements: templatedomain.SigningRequirements{
			RequiredConsents: []templatedomain.ConsentRequirement{
				{ID: "terms", Label: "I agree to the terms of service"},
			},
			AllowedSignatureTypes: []string{"typed", "drawn"},
			ExpirationDays:        14,
			MaxViews:              10,
		},
		Legal: templatedomain.LegalMetadata{
			Jurisdiction: "DE",
			GoverningLaw: "German law",
		},
		CreatedBy:  "author-1",
		ApprovedBy: &approvedBy,
		ApprovedAt: &now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, m := range mutators {
		m(t)
	}
	return t
}

// ContractFixture returns a sent contract with the given number of signers,
// all in sent state. Mutators adjust it per test.
func ContractFixture(signerCount int, mutators ...func(*contractdomain.SignedContract)) *contractdomain.SignedContract {
	now := time.Now().UTC()
	sent := now.Add(-time.Hour)
	expires := now.Add(14 * 24 * time.Hour)

	c := &contractdomain.SignedContract{
		ID:              uuid.New().String(),
		TemplateID:      uuid.New().String(),
		TemplateVersion: "1.0.0",
		SubscriberID:    "subscriber-1",
		Title:           "Service Agreement",
		Content:         "This agreement between Acme GmbH and client@example.com is effective 2026-01-01.",
		Status:          contractdomain.ContractStatusSent,
		Dates: contractdomain.ContractDates{
			Sent:    &sent,
			Expires: &expires,
		},
		Security: contractdomain.SecurityInfo{
			OriginalHash:  "0000000000000000000000000000000000000000000000000000000000000000",
			HashAlgorithm: "sha256",
			MaxViews:      10,
		},
		Version:   1,
		CreatedAt: sent,
		UpdatedAt: sent,
	}

	for i := 0; i < signerCount; i++ {
		c.Signers = append(c.Signers, contractdomain.Signer{
			ID:     fmt.Sprintf("signer-%d", i+1),
			Name:   fmt.Sprintf("Signer %d", i+1),
			Email:  fmt.Sprintf("signer%d@example.com", i+1),
			Order:  i + 1,
			Status: contractdomain.SignerStatusSent,
			SentAt: &sent,
		})
	}

	for _, m := range mutators {
		m(c)
	}
	return c
}

// SignSigner marks one signer of a fixture contract as signed with a typed
// signature.
func SignSigner(c *contractdomain.SignedContract, signerID string, at time.Time) {
	signer := c.FindSigner(signerID)
	if signer == nil {
		return
	}
	signer.Status = contractdomain.SignerStatusSigned
	t := at
	signer.SignedAt = &t
	signer.Signature = &contractdomain.Signature{
		Type:     "typed",
		Payload:  signer.Name,
		SignedAt: at,
	}
}
