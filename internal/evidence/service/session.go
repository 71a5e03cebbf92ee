package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/sealflow/sealflow-backend/internal/contract/domain"
	"github.com/sealflow/sealflow-backend/internal/contract/repository"
	contractservice "github.com/sealflow/sealflow-backend/internal/contract/service"
	templatedomain "github.com/sealflow/sealflow-backend/internal/template/domain"
	templaterepo "github.com/sealflow/sealflow-backend/internal/template/repository"
	"github.com/sealflow/sealflow-backend/pkg/errors"
	"github.com/sealflow/sealflow-backend/pkg/logger"
	"github.com/sealflow/sealflow-backend/pkg/messaging"
)

const maxUpdateAttempts = 3

// Service runs signer sessions and accumulates tamper evidence. Evidence is
// best-effort: a collection failure never blocks a signature.
type Service struct {
	contracts *repository.ContractRepository
	templates *templaterepo.TemplateRepository
	tokens    *contractservice.TokenIssuer
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewService creates a new evidence service
func NewService(
	contracts *repository.ContractRepository,
	templates *templaterepo.TemplateRepository,
	tokens *contractservice.TokenIssuer,
	publisher *messaging.Publisher,
	log *logger.Logger,
) *Service {
	return &Service{
		contracts: contracts,
		templates: templates,
		tokens:    tokens,
		publisher: publisher,
		logger:    log,
	}
}

// StartSessionRequest opens or resumes a signer session.
type StartSessionRequest struct {
	Reference  string `json:"signing_reference" validate:"required"`
	AccessCode string `json:"access_code,omitempty"`
	// GeoConsent marks whether the signer consented to geolocation capture.
	GeoConsent bool `json:"geo_consent"`

	// Captured from the request by the handler, not the client body.
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

// Session is the signer's view of an open signing session.
type Session struct {
	SessionID  string              `json:"session_id"`
	ContractID string              `json:"contract_id"`
	SignerID   string              `json:"signer_id"`
	SignerName string              `json:"signer_name"`
	Title      string              `json:"title"`
	Content    string              `json:"content"`
	Status     domain.SignerStatus `json:"status"`
	ExpiresAt  *time.Time          `json:"expires_at,omitempty"`
	ViewsLeft  int                 `json:"views_left"`

	RequiredConsents      []templatedomain.ConsentRequirement `json:"required_consents,omitempty"`
	AllowedSignatureTypes []string                            `json:"allowed_signature_types,omitempty"`
}

// StartSession resolves a signing reference, verifies the signer's access
// code when one is required, consumes a view and opens the session. Opening
// is idempotent: a second start resumes rather than re-transitions.
func (s *Service) StartSession(ctx context.Context, req *StartSessionRequest) (*Session, error) {
	claims, err := s.tokens.Verify(req.Reference)
	if err != nil {
		return nil, err
	}

	// Pre-checks on a plain read, before a view is consumed.
	c, err := s.contracts.GetByID(ctx, claims.ContractID)
	if err != nil {
		return nil, err
	}
	if c.IsExpired(time.Now().UTC()) || c.Status == domain.ContractStatusExpired {
		return nil, errors.Expired("contract")
	}
	if c.Status.IsTerminal() {
		return nil, errors.AlreadyTerminal(fmt.Sprintf("contract is %s", c.Status))
	}

	signer := c.FindSigner(claims.SignerID)
	if signer == nil {
		return nil, errors.NotFound("signer")
	}
	if signer.Status.IsTerminal() {
		return nil, errors.AlreadyTerminal(fmt.Sprintf("signer has already %s", signer.Status))
	}
	if signer.AccessCodeHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(signer.AccessCodeHash), []byte(req.AccessCode)); err != nil {
			return nil, errors.BadRequest("invalid access code")
		}
	}

	views, err := s.contracts.IncrementViews(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	var (
		sessionID string
		firstOpen bool
	)
	c, err = s.mutateContract(ctx, claims.ContractID, func(c *domain.SignedContract) error {
		firstOpen = false
		signer := c.FindSigner(claims.SignerID)
		if signer == nil {
			return errors.NotFound("signer")
		}
		if signer.Status.IsTerminal() {
			return errors.AlreadyTerminal(fmt.Sprintf("signer has already %s", signer.Status))
		}

		now := time.Now().UTC()
		if signer.Evidence == nil {
			sessionID = uuid.New().String()
			signer.Evidence = &domain.Evidence{
				SessionID:   sessionID,
				IPAddress:   req.IPAddress,
				UserAgent:   req.UserAgent,
				Device:      ClassifyDevice(req.UserAgent),
				Geolocation: networkGeolocation(req.IPAddress, req.GeoConsent),
			}
			signer.Evidence.AppendLog(now, domain.AccessActionSessionStarted, "", req.IPAddress)
		} else {
			sessionID = signer.Evidence.SessionID
			signer.Evidence.AppendLog(now, domain.AccessActionSessionResumed, "", req.IPAddress)
		}

		if !signer.Status.IsTerminal() && signer.Status != domain.SignerStatusOpened {
			signer.Status = domain.SignerStatusOpened
		}
		if signer.OpenedAt == nil {
			t := now
			signer.OpenedAt = &t
			firstOpen = true
		}
		if c.Dates.FirstOpened == nil {
			t := now
			c.Dates.FirstOpened = &t
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	signer = c.FindSigner(claims.SignerID)
	if firstOpen {
		s.publishSignerOpened(ctx, c, signer)
	}

	session := &Session{
		SessionID:  sessionID,
		ContractID: c.ID,
		SignerID:   signer.ID,
		SignerName: signer.Name,
		Title:      c.Title,
		Content:    c.Content,
		Status:     signer.Status,
		ExpiresAt:  c.Dates.Expires,
		ViewsLeft:  c.Security.MaxViews - views,
	}
	if tmpl, err := s.templates.GetByID(ctx, c.TemplateID); err == nil {
		session.RequiredConsents = tmpl.Requirements.RequiredConsents
		session.AllowedSignatureTypes = tmpl.Requirements.AllowedSignatureTypes
	} else {
		s.logger.Warn().Err(err).Str("template_id", c.TemplateID).Msg("failed to load template for session")
	}

	return session, nil
}

// GeolocationInput is a browser-reported position, only captured with
// explicit consent.
type GeolocationInput struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// CollectRequest is an incremental evidence submission from the signing UI.
type CollectRequest struct {
	Reference string `json:"signing_reference" validate:"required"`
	SessionID string `json:"session_id" validate:"required"`

	MouseSamples     []domain.MotionSample `json:"mouse_samples,omitempty"`
	KeystrokeSamples []domain.KeySample    `json:"keystroke_samples,omitempty"`
	ScrollDepth      float64               `json:"scroll_depth,omitempty" validate:"omitempty,min=0,max=1"`
	TimeOnPageSec    int                   `json:"time_on_page_sec,omitempty" validate:"omitempty,min=0"`
	Biometric        map[string]any        `json:"biometric,omitempty"`

	GeoConsent  bool              `json:"geo_consent"`
	Geolocation *GeolocationInput `json:"geolocation,omitempty"`

	IPAddress string `json:"-"`
}

// CollectEvidence merges an evidence batch into the signer's record. Sample
// arrays only grow, scroll depth only rises and time on page takes the
// latest report, so replayed batches cannot shrink the record.
func (s *Service) CollectEvidence(ctx context.Context, req *CollectRequest) (*domain.Evidence, error) {
	claims, err := s.tokens.Verify(req.Reference)
	if err != nil {
		return nil, err
	}

	var merged *domain.Evidence
	_, err = s.mutateContract(ctx, claims.ContractID, func(c *domain.SignedContract) error {
		if c.Status.IsTerminal() {
			return errors.AlreadyTerminal(fmt.Sprintf("contract is %s", c.Status))
		}

		signer := c.FindSigner(claims.SignerID)
		if signer == nil {
			return errors.NotFound("signer")
		}
		if signer.Status.IsTerminal() {
			return errors.AlreadyTerminal(fmt.Sprintf("signer has already %s", signer.Status))
		}
		ev := signer.Evidence
		if ev == nil || ev.SessionID != req.SessionID {
			return errors.SessionNotFound()
		}

		now := time.Now().UTC()
		ev.Telemetry.MouseSamples = append(ev.Telemetry.MouseSamples, req.MouseSamples...)
		ev.Telemetry.KeystrokeSamples = append(ev.Telemetry.KeystrokeSamples, req.KeystrokeSamples...)
		if req.ScrollDepth > ev.Telemetry.ScrollDepth {
			ev.Telemetry.ScrollDepth = req.ScrollDepth
		}
		if req.TimeOnPageSec > 0 {
			ev.Telemetry.TimeOnPageSec = req.TimeOnPageSec
		}
		if len(req.Biometric) > 0 {
			if ev.Biometric == nil {
				ev.Biometric = make(map[string]any, len(req.Biometric))
			}
			for k, v := range req.Biometric {
				ev.Biometric[k] = v
			}
		}
		switch {
		case req.Geolocation != nil:
			ev.Geolocation = mergeClientGeolocation(ev.Geolocation, req.Geolocation.Latitude, req.Geolocation.Longitude, req.GeoConsent)
		case req.GeoConsent:
			ev.Geolocation = grantGeolocationConsent(ev.Geolocation)
		}
		ev.AppendLog(now, domain.AccessActionEvidenceCollected, "", req.IPAddress)

		merged = ev
		return nil
	})
	if err != nil {
		return nil, err
	}

	return merged, nil
}

// mutateContract is the compare-and-swap loop for session writes, with the
// same lazy expiry rule the workflow applies.
func (s *Service) mutateContract(ctx context.Context, contractID string, fn func(c *domain.SignedContract) error) (*domain.SignedContract, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		c, err := s.contracts.GetByID(ctx, contractID)
		if err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		if c.IsExpired(now) && !c.Status.IsTerminal() {
			c.Status = domain.ContractStatusExpired
			for i := range c.Signers {
				if !c.Signers[i].Status.IsTerminal() {
					c.Signers[i].Status = domain.SignerStatusExpired
				}
			}
			if err := s.contracts.Update(ctx, c); err != nil {
				if errors.Is(err, repository.ErrVersionConflict) {
					continue
				}
				return nil, err
			}
			return nil, errors.Expired("contract")
		}
		if c.Status == domain.ContractStatusExpired {
			return nil, errors.Expired("contract")
		}

		if err := fn(c); err != nil {
			return nil, err
		}
		c.Touch(now)

		if err := s.contracts.Update(ctx, c); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				continue
			}
			return nil, err
		}
		return c, nil
	}
	return nil, repository.ErrVersionConflict
}

func (s *Service) publishSignerOpened(ctx context.Context, c *domain.SignedContract, signer *domain.Signer) {
	if s.publisher == nil || signer == nil {
		return
	}
	err := s.publisher.Publish(ctx, messaging.EventSignerOpened, messaging.SignerEvent{
		ContractID:     c.ID,
		SignerID:       signer.ID,
		SignerEmail:    signer.Email,
		SignerName:     signer.Name,
		SignerStatus:   string(signer.Status),
		ContractStatus: string(c.Status),
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("contract_id", c.ID).Msg("failed to publish event")
	}
}
