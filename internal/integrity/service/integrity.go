package service

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/sealflow/sealflow-backend/internal/audit"
	contractdomain "github.com/sealflow/sealflow-backend/internal/contract/domain"
	"github.com/sealflow/sealflow-backend/internal/integrity/domain"
	templatedomain "github.com/sealflow/sealflow-backend/internal/template/domain"
	"github.com/sealflow/sealflow-backend/pkg/errors"
	"github.com/sealflow/sealflow-backend/pkg/logger"
)

// AlgorithmSHA256 is the default and currently only supported hash algorithm.
const AlgorithmSHA256 = "sha256"

// Service computes document hashes and builds certificates and evidence
// packages. It writes only hash fields; everything else it reads.
type Service struct {
	logger *logger.Logger
}

// NewService creates a new integrity service
func NewService(log *logger.Logger) *Service {
	return &Service{logger: log}
}

// contentEnvelope is the canonical shape hashed for document integrity.
// JCS (RFC 8785) canonicalization makes the hash independent of map ordering
// and encoder quirks.
type contentEnvelope struct {
	TemplateID      string              `json:"template_id"`
	TemplateVersion string              `json:"template_version"`
	Content         string              `json:"content"`
	Signatures      []signatureEnvelope `json:"signatures,omitempty"`
}

type signatureEnvelope struct {
	SignerID string    `json:"signer_id"`
	Type     string    `json:"type"`
	Payload  string    `json:"payload"`
	SignedAt time.Time `json:"signed_at"`
}

// HashOriginal computes the hash stored at contract creation, covering the
// rendered content before any signature exists.
func (s *Service) HashOriginal(c *contractdomain.SignedContract) (string, error) {
	return canonicalHash(contentEnvelope{
		TemplateID:      c.TemplateID,
		TemplateVersion: c.TemplateVersion,
		Content:         c.Content,
	})
}

// SealDocument computes the final hash over the fully-signed content. It is
// called exactly once, at the fully-signed transition, and the result is
// never recomputed afterward.
func (s *Service) SealDocument(c *contractdomain.SignedContract) (string, error) {
	if !c.AllSigned() {
		return "", errors.PreconditionFailed("cannot seal a contract that is not fully signed")
	}

	env := contentEnvelope{
		TemplateID:      c.TemplateID,
		TemplateVersion: c.TemplateVersion,
		Content:         c.Content,
	}
	for i := range c.Signers {
		sig := c.Signers[i].Signature
		if sig == nil {
			return "", errors.PreconditionFailed(
				fmt.Sprintf("signer %s is marked signed but carries no signature", c.Signers[i].ID))
		}
		env.Signatures = append(env.Signatures, signatureEnvelope{
			SignerID: c.Signers[i].ID,
			Type:     sig.Type,
			Payload:  sig.Payload,
			SignedAt: sig.SignedAt,
		})
	}

	hash, err := canonicalHash(env)
	if err != nil {
		return "", err
	}

	s.logger.Debug().
		Str("contract_id", c.ID).
		Str("final_hash", hash).
		Msg("document sealed")

	return hash, nil
}

// VerifyIntegrity compares a supplied hash against the stored one. FinalHash
// wins once set; before sealing the original hash is the reference. Never
// mutates state.
func (s *Service) VerifyIntegrity(c *contractdomain.SignedContract, suppliedHash string) *domain.VerificationResult {
	compared := "final"
	reference := c.Security.FinalHash
	if reference == "" {
		compared = "original"
		reference = c.Security.OriginalHash
	}

	return &domain.VerificationResult{
		ContractID:   c.ID,
		Valid:        reference != "" && suppliedHash == reference,
		ComparedWith: compared,
		Algorithm:    c.Security.HashAlgorithm,
		VerifiedAt:   time.Now().UTC(),
	}
}

// GenerateCertificate builds the Certificate of Completion. Only permitted
// once the contract is fully signed or completed. The certificate embeds its
// own integrity hash computed over its serialized body, so it can be
// verified without the original contract record.
func (s *Service) GenerateCertificate(c *contractdomain.SignedContract, legal templatedomain.LegalMetadata) (*domain.Certificate, error) {
	if !c.Status.IsSealed() {
		return nil, errors.PreconditionFailed(
			fmt.Sprintf("certificate requires a fully signed contract, status is %s", c.Status))
	}

	cert := &domain.Certificate{
		ContractID:      c.ID,
		Title:           c.Title,
		TemplateID:      c.TemplateID,
		TemplateVersion: c.TemplateVersion,
		SubscriberID:    c.SubscriberID,
		Jurisdiction:    legal.Jurisdiction,
		GoverningLaw:    legal.GoverningLaw,
		OriginalHash:    c.Security.OriginalHash,
		FinalHash:       c.Security.FinalHash,
		HashAlgorithm:   c.Security.HashAlgorithm,
		CreatedAt:       c.CreatedAt,
		SentAt:          c.Dates.Sent,
		CompletedAt:     c.Dates.Completed,
		GeneratedAt:     time.Now().UTC(),
	}

	for i := range c.Signers {
		cert.Signers = append(cert.Signers, summarizeSigner(&c.Signers[i]))
	}

	hash, err := certificateHash(cert)
	if err != nil {
		return nil, err
	}
	cert.CertificateHash = hash

	return cert, nil
}

// BuildEvidencePackage assembles the exportable evidence bundle: the
// certificate plus full per-signer evidence and access logs. Derived on
// demand, never persisted.
func (s *Service) BuildEvidencePackage(c *contractdomain.SignedContract, legal templatedomain.LegalMetadata, trail []audit.Event) (*domain.EvidencePackage, error) {
	cert, err := s.GenerateCertificate(c, legal)
	if err != nil {
		return nil, err
	}

	pkg := &domain.EvidencePackage{
		Certificate: cert,
		AuditTrail:  trail,
		GeneratedAt: time.Now().UTC(),
	}

	for i := range c.Signers {
		signer := &c.Signers[i]
		entry := domain.SignerEvidenceExport{
			SignerID: signer.ID,
			Name:     signer.Name,
			Email:    signer.Email,
			Status:   string(signer.Status),
			Evidence: signer.Evidence,
			Consents: signer.Consents,
		}
		pkg.Signers = append(pkg.Signers, entry)
	}

	return pkg, nil
}

func summarizeSigner(signer *contractdomain.Signer) domain.CertifiedSigner {
	cs := domain.CertifiedSigner{
		SignerID: signer.ID,
		Name:     signer.Name,
		Email:    signer.Email,
		Status:   string(signer.Status),
		SignedAt: signer.SignedAt,
	}

	if signer.Signature != nil {
		cs.SignatureType = signer.Signature.Type
	}
	if signer.Evidence != nil {
		cs.IPAddress = signer.Evidence.IPAddress
		cs.DeviceType = signer.Evidence.Device.Type
		cs.SessionID = signer.Evidence.SessionID
		if geo := signer.Evidence.Geolocation; geo != nil {
			cs.GeoCountry = geo.Country
			cs.GeoCity = geo.City
		}
		cs.AccessCount = len(signer.Evidence.AccessLog)
	}
	for _, consent := range signer.Consents {
		if consent.Accepted {
			cs.ConsentCount++
		}
	}

	return cs
}

// canonicalHash JCS-canonicalizes the JSON form of v and hashes it.
func canonicalHash(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal for hashing: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize for hashing: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// certificateHash hashes the certificate body with the hash field empty, a
// hash-of-a-hash over the embedded document hashes.
func certificateHash(cert *domain.Certificate) (string, error) {
	body := *cert
	body.CertificateHash = ""
	return canonicalHash(body)
}
