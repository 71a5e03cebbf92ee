package domain

import (
	"time"

	"github.com/sealflow/sealflow-backend/internal/audit"
	contractdomain "github.com/sealflow/sealflow-backend/internal/contract/domain"
)

// Certificate is the Certificate of Completion: a self-contained, sealed
// summary proving a contract reached full signature. CertificateHash covers
// the serialized body, so the certificate verifies independently of the
// contract record it was derived from.
type Certificate struct {
	ContractID      string `json:"contract_id"`
	Title           string `json:"title,omitempty"`
	TemplateID      string `json:"template_id"`
	TemplateVersion string `json:"template_version"`
	SubscriberID    string `json:"subscriber_id"`

	Jurisdiction string `json:"jurisdiction,omitempty"`
	GoverningLaw string `json:"governing_law,omitempty"`

	OriginalHash  string `json:"original_hash"`
	FinalHash     string `json:"final_hash"`
	HashAlgorithm string `json:"hash_algorithm"`

	Signers []CertifiedSigner `json:"signers"`

	CreatedAt   time.Time  `json:"created_at"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	GeneratedAt time.Time  `json:"generated_at"`

	CertificateHash string `json:"certificate_hash,omitempty"`
}

// CertifiedSigner is the per-signer evidence summary embedded in the
// certificate.
type CertifiedSigner struct {
	SignerID      string     `json:"signer_id"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Status        string     `json:"status"`
	SignatureType string     `json:"signature_type,omitempty"`
	SignedAt      *time.Time `json:"signed_at,omitempty"`
	IPAddress     string     `json:"ip_address,omitempty"`
	DeviceType    string     `json:"device_type,omitempty"`
	SessionID     string     `json:"session_id,omitempty"`
	GeoCountry    string     `json:"geo_country,omitempty"`
	GeoCity       string     `json:"geo_city,omitempty"`
	AccessCount   int        `json:"access_count"`
	ConsentCount  int        `json:"consent_count"`
}

// VerificationResult is the outcome of an integrity check. Pure data, never
// persisted.
type VerificationResult struct {
	ContractID   string    `json:"contract_id"`
	Valid        bool      `json:"valid"`
	ComparedWith string    `json:"compared_with"`
	Algorithm    string    `json:"algorithm"`
	VerifiedAt   time.Time `json:"verified_at"`
}

// EvidencePackage is the exportable bundle: certificate, full per-signer
// evidence, and the derived audit trail.
type EvidencePackage struct {
	Certificate *Certificate           `json:"certificate"`
	Signers     []SignerEvidenceExport `json:"signers"`
	AuditTrail  []audit.Event          `json:"audit_trail"`
	GeneratedAt time.Time              `json:"generated_at"`
}

// SignerEvidenceExport is one signer's full evidence record in the package.
type SignerEvidenceExport struct {
	SignerID string                   `json:"signer_id"`
	Name     string                   `json:"name"`
	Email    string                   `json:"email"`
	Status   string                   `json:"status"`
	Evidence *contractdomain.Evidence `json:"evidence,omitempty"`
	Consents []contractdomain.Consent `json:"consents,omitempty"`
}
