package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sealflow/sealflow-backend/internal/audit"
	"github.com/sealflow/sealflow-backend/internal/contract/domain"
	"github.com/sealflow/sealflow-backend/internal/contract/repository"
	integritydomain "github.com/sealflow/sealflow-backend/internal/integrity/domain"
	integrityservice "github.com/sealflow/sealflow-backend/internal/integrity/service"
	"github.com/sealflow/sealflow-backend/internal/provider"
	templatedomain "github.com/sealflow/sealflow-backend/internal/template/domain"
	templaterepo "github.com/sealflow/sealflow-backend/internal/template/repository"
	"github.com/sealflow/sealflow-backend/pkg/config"
	"github.com/sealflow/sealflow-backend/pkg/errors"
	"github.com/sealflow/sealflow-backend/pkg/logger"
	"github.com/sealflow/sealflow-backend/pkg/messaging"
)

// maxUpdateAttempts bounds the compare-and-swap retry loop. Contention on a
// single contract is rare and short-lived; three attempts is generous.
const maxUpdateAttempts = 3

// WorkflowService drives the contract signing state machine.
type WorkflowService struct {
	contracts *repository.ContractRepository
	templates *templaterepo.TemplateRepository
	integrity *integrityservice.Service
	providers *provider.Registry
	tokens    *TokenIssuer
	publisher *messaging.Publisher
	cfg       config.SigningConfig
	logger    *logger.Logger
}

// NewWorkflowService creates a new workflow service
func NewWorkflowService(
	contracts *repository.ContractRepository,
	templates *templaterepo.TemplateRepository,
	integrity *integrityservice.Service,
	providers *provider.Registry,
	tokens *TokenIssuer,
	publisher *messaging.Publisher,
	cfg config.SigningConfig,
	log *logger.Logger,
) *WorkflowService {
	return &WorkflowService{
		contracts: contracts,
		templates: templates,
		integrity: integrity,
		providers: providers,
		tokens:    tokens,
		publisher: publisher,
		cfg:       cfg,
		logger:    log,
	}
}

// SignerInput describes one signer at contract initiation.
type SignerInput struct {
	Name  string `json:"name" validate:"required,min=1,max=200"`
	Email string `json:"email" validate:"required,email"`
	Order int    `json:"order" validate:"omitempty,min=1"`
	// AccessCode is accepted when the template requires identity
	// verification; when omitted one is generated.
	AccessCode string `json:"access_code,omitempty" validate:"omitempty,min=4,max=64"`
}

// InitiateRequest creates a contract from a published template version.
type InitiateRequest struct {
	TemplateID   string            `json:"template_id" validate:"required,uuid"`
	SubscriberID string            `json:"subscriber_id" validate:"required"`
	Title        string            `json:"title" validate:"omitempty,max=300"`
	Values       map[string]string `json:"values"`
	Signers      []SignerInput     `json:"signers" validate:"required,min=1,dive"`
	// ExpirationDays nil falls back to the template, then the service
	// default. An explicit zero expires the contract immediately.
	ExpirationDays *int           `json:"expiration_days" validate:"omitempty,min=0,max=365"`
	CustomFields   map[string]any `json:"custom_fields,omitempty"`
}

// SignerReference is the per-signer signing link minted at initiation and
// refreshed on resend. AccessCode is only populated when this service
// generated the code; it is never recoverable afterwards.
type SignerReference struct {
	SignerID   string `json:"signer_id"`
	Email      string `json:"email"`
	Reference  string `json:"signing_reference"`
	SigningURL string `json:"signing_url"`
	AccessCode string `json:"access_code,omitempty"`
}

// InitiateResult carries the created contract and its signing references.
type InitiateResult struct {
	Contract   *domain.SignedContract `json:"contract"`
	References []SignerReference      `json:"references"`
}

// Initiate renders a template into a new draft contract. Every placeholder
// violation is reported in one pass; the contract only exists once the full
// value set validates.
func (s *WorkflowService) Initiate(ctx context.Context, req *InitiateRequest) (*InitiateResult, error) {
	tmpl, err := s.templates.GetByID(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}
	if !tmpl.IsPublished() {
		return nil, errors.PreconditionFailed(
			fmt.Sprintf("template %s is %s, only active templates can initiate contracts", tmpl.ID, tmpl.Status))
	}

	values, violations := tmpl.ValidatePlaceholders(req.Values)
	if dup := duplicateEmail(req.Signers); dup != "" {
		violations["signers"] = "duplicate signer email " + dup
	}
	if len(violations) > 0 {
		return nil, errors.Validation(violations)
	}

	now := time.Now().UTC()
	c := &domain.SignedContract{
		TemplateID:      tmpl.ID,
		TemplateVersion: tmpl.Version,
		SubscriberID:    req.SubscriberID,
		Title:           req.Title,
		Content:         tmpl.Render(values),
		Status:          domain.ContractStatusDraft,
		CustomFields:    req.CustomFields,
	}
	if c.Title == "" {
		c.Title = tmpl.Name
	}

	expires := now.AddDate(0, 0, s.expirationDays(req.ExpirationDays, tmpl.Requirements.ExpirationDays))
	c.Dates.Expires = &expires

	c.Security = domain.SecurityInfo{
		HashAlgorithm: integrityservice.AlgorithmSHA256,
		MaxViews:      s.maxViews(tmpl.Requirements.MaxViews),
	}

	generatedCodes := make(map[string]string)
	for i, in := range req.Signers {
		signer := domain.Signer{
			ID:     fmt.Sprintf("signer-%d", i+1),
			Name:   in.Name,
			Email:  strings.ToLower(in.Email),
			Order:  in.Order,
			Status: domain.SignerStatusPending,
		}
		if signer.Order == 0 {
			signer.Order = i + 1
		}
		if tmpl.Requirements.RequireAccessCode {
			code := in.AccessCode
			if code == "" {
				code, err = generateAccessCode()
				if err != nil {
					return nil, err
				}
				generatedCodes[signer.ID] = code
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
			if err != nil {
				return nil, fmt.Errorf("failed to hash access code: %w", err)
			}
			signer.AccessCodeHash = string(hash)
		}
		c.Signers = append(c.Signers, signer)
	}

	hash, err := s.integrity.HashOriginal(c)
	if err != nil {
		return nil, err
	}
	c.Security.OriginalHash = hash

	if err := s.contracts.Create(ctx, c); err != nil {
		return nil, err
	}

	if err := s.templates.RecordUsage(ctx, tmpl.ID, now); err != nil {
		s.logger.Warn().Err(err).Str("template_id", tmpl.ID).Msg("failed to record template usage")
	}

	s.publishContractEvent(ctx, messaging.EventContractCreated, c, "")

	refs, err := s.mintReferences(c, generatedCodes)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("contract_id", c.ID).
		Str("template_id", tmpl.ID).
		Str("template_version", tmpl.Version).
		Int("signers", len(c.Signers)).
		Msg("contract initiated")

	return &InitiateResult{Contract: c, References: refs}, nil
}

// Send dispatches a draft contract for signing, either through the native
// flow or an external provider. A provider failure leaves the contract in
// its pre-send state.
func (s *WorkflowService) Send(ctx context.Context, contractID, providerName string) (*domain.SignedContract, error) {
	if providerName == "" {
		providerName = provider.NameNative
	}
	p, err := s.providers.Get(providerName)
	if err != nil {
		return nil, err
	}

	// The vendor dispatch happens at most once: a version conflict on the
	// persist step retries the write with the first dispatch's result, never
	// a second envelope.
	var (
		sent       *domain.SignedContract
		dispatched *provider.SendResult
	)
	c, err := s.mutate(ctx, contractID, func(c *domain.SignedContract) error {
		if c.Status != domain.ContractStatusDraft {
			if c.Status.IsTerminal() {
				return errors.AlreadyTerminal(fmt.Sprintf("contract is %s", c.Status))
			}
			return errors.PreconditionFailed(fmt.Sprintf("contract is already %s", c.Status))
		}

		if dispatched == nil {
			result, err := p.Send(ctx, c)
			if err != nil {
				return err
			}
			dispatched = result
		}

		now := time.Now().UTC()
		c.Status = dispatched.Status
		if c.Dates.Sent == nil {
			t := now
			c.Dates.Sent = &t
		}
		for i := range c.Signers {
			if c.Signers[i].Status == domain.SignerStatusPending {
				c.Signers[i].Status = domain.SignerStatusSent
				t := now
				c.Signers[i].SentAt = &t
			}
		}
		if p.Name() != provider.NameNative {
			c.Integration = &domain.Integration{
				Provider:       p.Name(),
				ExternalID:     dispatched.ExternalID,
				ExternalStatus: string(dispatched.Status),
				SyncedAt:       &now,
			}
		}
		sent = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishContractEvent(ctx, messaging.EventContractSent, sent, "")
	if p.Name() == provider.NameNative {
		for i := range sent.Signers {
			signer := &sent.Signers[i]
			ref, err := s.tokens.Mint(sent, signer)
			if err != nil {
				s.logger.Warn().Err(err).Str("signer_id", signer.ID).Msg("failed to mint signing reference")
				continue
			}
			s.publishSignerEvent(ctx, messaging.EventContractSent, sent, signer, ref)
		}
	}

	return c, nil
}

// ConsentInput is one consent decision submitted with a signature.
type ConsentInput struct {
	ConsentID string `json:"consent_id" validate:"required"`
	Accepted  bool   `json:"accepted"`
}

// SignatureRequest captures one signer's signature.
type SignatureRequest struct {
	Type     string            `json:"type" validate:"required,oneof=typed drawn uploaded"`
	Payload  string            `json:"payload" validate:"required"`
	Crypto   map[string]string `json:"crypto,omitempty"`
	Consents []ConsentInput    `json:"consents" validate:"dive"`
}

// SignResult is returned after a signature is accepted.
type SignResult struct {
	Signer      *domain.Signer               `json:"signer"`
	Progress    *domain.Progress             `json:"progress"`
	Certificate *integritydomain.Certificate `json:"certificate,omitempty"`
}

// ProcessSignature records one signer's signature and re-evaluates the
// contract. Completion is a pure conjunction over signer states, so signing
// order never matters.
func (s *WorkflowService) ProcessSignature(ctx context.Context, contractID, signerID string, req *SignatureRequest) (*SignResult, error) {
	var (
		result    SignResult
		completed bool
	)
	c, err := s.mutate(ctx, contractID, func(c *domain.SignedContract) error {
		completed = false
		if c.Status.IsTerminal() {
			return errors.AlreadyTerminal(fmt.Sprintf("contract is %s", c.Status))
		}
		if c.Status == domain.ContractStatusDraft {
			return errors.PreconditionFailed("contract has not been sent for signing")
		}

		signer := c.FindSigner(signerID)
		if signer == nil {
			return errors.NotFound("signer")
		}
		if signer.Status.IsTerminal() {
			return errors.AlreadyTerminal(fmt.Sprintf("signer has already %s", signer.Status))
		}

		tmpl, err := s.templates.GetByID(ctx, c.TemplateID)
		if err != nil {
			return err
		}
		if !tmpl.Requirements.AllowsSignatureType(req.Type) {
			return errors.BadRequest(fmt.Sprintf("signature type %q is not permitted by this template", req.Type))
		}

		now := time.Now().UTC()
		applyConsents(signer, req.Consents, tmpl.Requirements.RequiredConsents, now)
		for _, required := range tmpl.Requirements.RequiredConsents {
			if !signer.HasConsent(required.ID) {
				return errors.ConsentRequired(required.ID)
			}
		}

		signer.Signature = &domain.Signature{
			Type:     req.Type,
			Payload:  req.Payload,
			Crypto:   req.Crypto,
			SignedAt: now,
		}
		signer.Status = domain.SignerStatusSigned
		t := now
		signer.SignedAt = &t
		if signer.Evidence != nil {
			signer.Evidence.AppendLog(now, domain.AccessActionSignatureCompleted, "", "")
		}

		if c.AllSigned() {
			finalHash, err := s.integrity.SealDocument(c)
			if err != nil {
				return err
			}
			c.Status = domain.ContractStatusFullySigned
			c.Security.FinalHash = finalHash
			ct := now
			c.Dates.Completed = &ct
			completed = true

			cert, err := s.integrity.GenerateCertificate(c, tmpl.Legal)
			if err != nil {
				return err
			}
			result.Certificate = cert
		} else if c.Status == domain.ContractStatusSent {
			c.Status = domain.ContractStatusPartiallySigned
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	signer := c.FindSigner(signerID)
	result.Signer = signer
	result.Progress = c.BuildProgress()

	s.publishSignerEvent(ctx, messaging.EventSignerSigned, c, signer, "")
	if completed {
		s.publishContractEvent(ctx, messaging.EventContractComplete, c, "")
		s.logger.Info().
			Str("contract_id", c.ID).
			Str("final_hash", c.Security.FinalHash).
			Msg("contract fully signed and sealed")
	}

	return &result, nil
}

// Decline records a signer's refusal and terminates the contract. The
// decline reason is preserved on the signer, and signers who already signed
// keep their records.
func (s *WorkflowService) Decline(ctx context.Context, contractID, signerID, reason string) (*domain.SignedContract, error) {
	c, err := s.mutate(ctx, contractID, func(c *domain.SignedContract) error {
		if c.Status.IsTerminal() {
			return errors.AlreadyTerminal(fmt.Sprintf("contract is %s", c.Status))
		}

		signer := c.FindSigner(signerID)
		if signer == nil {
			return errors.NotFound("signer")
		}
		if signer.Status.IsTerminal() {
			return errors.AlreadyTerminal(fmt.Sprintf("signer has already %s", signer.Status))
		}

		now := time.Now().UTC()
		signer.Status = domain.SignerStatusDeclined
		t := now
		signer.DeclinedAt = &t
		signer.DeclineReason = reason
		if signer.Evidence != nil {
			signer.Evidence.AppendLog(now, domain.AccessActionDeclined, reason, "")
		}

		c.Status = domain.ContractStatusDeclined
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishSignerEvent(ctx, messaging.EventSignerDeclined, c, c.FindSigner(signerID), "")
	s.publishContractEvent(ctx, messaging.EventContractDeclined, c, reason)

	return c, nil
}

// Void cancels a contract administratively. Signers who have not reached a
// terminal state are expired; completed signatures are never erased.
func (s *WorkflowService) Void(ctx context.Context, contractID, reason string) (*domain.SignedContract, error) {
	c, err := s.mutate(ctx, contractID, func(c *domain.SignedContract) error {
		if c.Status.IsTerminal() {
			return errors.AlreadyTerminal(fmt.Sprintf("contract is %s", c.Status))
		}

		now := time.Now().UTC()
		c.Status = domain.ContractStatusVoided
		t := now
		c.Dates.Voided = &t
		expireOpenSigners(c, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishContractEvent(ctx, messaging.EventContractVoided, c, reason)
	s.logger.Info().Str("contract_id", c.ID).Str("reason", reason).Msg("contract voided")

	return c, nil
}

// Resend refreshes a signer's signing link. Signed signers cannot be
// re-engaged; provider-managed contracts re-notify through the vendor.
func (s *WorkflowService) Resend(ctx context.Context, contractID, signerID string) (*SignerReference, error) {
	var signerRef *SignerReference
	c, err := s.mutate(ctx, contractID, func(c *domain.SignedContract) error {
		if c.Status.IsTerminal() {
			return errors.AlreadyTerminal(fmt.Sprintf("contract is %s", c.Status))
		}
		if c.Status == domain.ContractStatusDraft {
			return errors.PreconditionFailed("contract has not been sent for signing")
		}
		if c.Integration != nil && c.Integration.Provider != provider.NameNative {
			return errors.PreconditionFailed(
				fmt.Sprintf("signing links for this contract are managed by %s", c.Integration.Provider))
		}

		signer := c.FindSigner(signerID)
		if signer == nil {
			return errors.NotFound("signer")
		}
		if signer.Status == domain.SignerStatusSigned {
			return errors.PreconditionFailed("signer has already signed")
		}
		if signer.Status.IsTerminal() {
			return errors.AlreadyTerminal(fmt.Sprintf("signer has already %s", signer.Status))
		}

		now := time.Now().UTC()
		t := now
		signer.SentAt = &t
		if signer.Status == domain.SignerStatusPending {
			signer.Status = domain.SignerStatusSent
		}

		ref, err := s.tokens.Mint(c, signer)
		if err != nil {
			return err
		}
		signerRef = &SignerReference{
			SignerID:   signer.ID,
			Email:      signer.Email,
			Reference:  ref,
			SigningURL: s.tokens.SigningURL(ref),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishSignerEvent(ctx, messaging.EventSignerResend, c, c.FindSigner(signerID), signerRef.Reference)

	return signerRef, nil
}

// Complete archives a fully signed contract. This is the only transition out
// of fully_signed and it changes nothing but the status.
func (s *WorkflowService) Complete(ctx context.Context, contractID string) (*domain.SignedContract, error) {
	return s.mutate(ctx, contractID, func(c *domain.SignedContract) error {
		if c.Status == domain.ContractStatusCompleted {
			return errors.AlreadyTerminal("contract is already completed")
		}
		if c.Status != domain.ContractStatusFullySigned {
			return errors.PreconditionFailed(
				fmt.Sprintf("only fully signed contracts can be completed, status is %s", c.Status))
		}
		c.Status = domain.ContractStatusCompleted
		return nil
	})
}

// Get reads a contract, coercing it to expired on the fly when its expiry
// instant has passed.
func (s *WorkflowService) Get(ctx context.Context, contractID string) (*domain.SignedContract, error) {
	c, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	return s.coerceExpiry(ctx, c), nil
}

// List lists contracts for a subscriber with optional status filtering.
func (s *WorkflowService) List(ctx context.Context, page, perPage int, subscriberID string, status domain.ContractStatus) ([]*domain.SignedContract, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return s.contracts.List(ctx, page, perPage, subscriberID, status)
}

// Certificate returns the Certificate of Completion for a sealed contract.
func (s *WorkflowService) Certificate(ctx context.Context, contractID string) (*integritydomain.Certificate, error) {
	c, err := s.Get(ctx, contractID)
	if err != nil {
		return nil, err
	}
	tmpl, err := s.templates.GetByID(ctx, c.TemplateID)
	if err != nil {
		return nil, err
	}
	return s.integrity.GenerateCertificate(c, tmpl.Legal)
}

// EvidencePackage exports the full legal evidence bundle for a sealed
// contract.
func (s *WorkflowService) EvidencePackage(ctx context.Context, contractID string) (*integritydomain.EvidencePackage, error) {
	c, err := s.Get(ctx, contractID)
	if err != nil {
		return nil, err
	}
	tmpl, err := s.templates.GetByID(ctx, c.TemplateID)
	if err != nil {
		return nil, err
	}
	return s.integrity.BuildEvidencePackage(c, tmpl.Legal, audit.BuildTrail(c))
}

// AuditTrail returns the chronological event trail for a contract.
func (s *WorkflowService) AuditTrail(ctx context.Context, contractID string) ([]audit.Event, error) {
	c, err := s.Get(ctx, contractID)
	if err != nil {
		return nil, err
	}
	return audit.BuildTrail(c), nil
}

// Verify compares a supplied hash against the contract's stored hashes.
func (s *WorkflowService) Verify(ctx context.Context, contractID, suppliedHash string) (*integritydomain.VerificationResult, error) {
	c, err := s.Get(ctx, contractID)
	if err != nil {
		return nil, err
	}
	return s.integrity.VerifyIntegrity(c, suppliedHash), nil
}

// expirationDays resolves the contract lifetime. An explicit request wins
// even when it is zero; only an absent one defers to the template and the
// service default.
func (s *WorkflowService) expirationDays(requested *int, templateDays int) int {
	if requested != nil {
		return *requested
	}
	if templateDays > 0 {
		return templateDays
	}
	return s.cfg.DefaultExpirationDays
}

func (s *WorkflowService) maxViews(templateViews int) int {
	if templateViews > 0 {
		return templateViews
	}
	return s.cfg.DefaultMaxViews
}

func (s *WorkflowService) mintReferences(c *domain.SignedContract, generatedCodes map[string]string) ([]SignerReference, error) {
	refs := make([]SignerReference, 0, len(c.Signers))
	for i := range c.Signers {
		signer := &c.Signers[i]
		token, err := s.tokens.Mint(c, signer)
		if err != nil {
			return nil, err
		}
		refs = append(refs, SignerReference{
			SignerID:   signer.ID,
			Email:      signer.Email,
			Reference:  token,
			SigningURL: s.tokens.SigningURL(token),
			AccessCode: generatedCodes[signer.ID],
		})
	}
	return refs, nil
}

func (s *WorkflowService) publishContractEvent(ctx context.Context, eventType string, c *domain.SignedContract, reason string) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, eventType, messaging.ContractEvent{
		ContractID:      c.ID,
		TemplateID:      c.TemplateID,
		TemplateVersion: c.TemplateVersion,
		SubscriberID:    c.SubscriberID,
		Status:          string(c.Status),
		Reason:          reason,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Str("contract_id", c.ID).Msg("failed to publish event")
	}
}

func (s *WorkflowService) publishSignerEvent(ctx context.Context, eventType string, c *domain.SignedContract, signer *domain.Signer, reference string) {
	if s.publisher == nil || signer == nil {
		return
	}
	payload := messaging.SignerEvent{
		ContractID:     c.ID,
		SignerID:       signer.ID,
		SignerEmail:    signer.Email,
		SignerName:     signer.Name,
		SignerStatus:   string(signer.Status),
		ContractStatus: string(c.Status),
	}
	if reference != "" {
		payload.SigningReference = s.tokens.SigningURL(reference)
	}
	if err := s.publisher.Publish(ctx, eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Str("contract_id", c.ID).Msg("failed to publish event")
	}
}

// applyConsents merges submitted consent decisions into the signer record.
// A resubmission replaces the earlier decision for the same consent.
func applyConsents(signer *domain.Signer, inputs []ConsentInput, required []templatedomain.ConsentRequirement, now time.Time) {
	labels := make(map[string]string, len(required))
	for _, r := range required {
		labels[r.ID] = r.Label
	}
	for _, in := range inputs {
		record := domain.Consent{
			ConsentID: in.ConsentID,
			Label:     labels[in.ConsentID],
			Accepted:  in.Accepted,
			Timestamp: now,
		}
		replaced := false
		for i := range signer.Consents {
			if signer.Consents[i].ConsentID == in.ConsentID {
				signer.Consents[i] = record
				replaced = true
				break
			}
		}
		if !replaced {
			signer.Consents = append(signer.Consents, record)
		}
	}
}

func duplicateEmail(signers []SignerInput) string {
	seen := make(map[string]bool, len(signers))
	for _, in := range signers {
		email := strings.ToLower(in.Email)
		if seen[email] {
			return email
		}
		seen[email] = true
	}
	return ""
}

const accessCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func generateAccessCode() (string, error) {
	code := make([]byte, 8)
	max := big.NewInt(int64(len(accessCodeAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate access code: %w", err)
		}
		code[i] = accessCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}
