package domain

import (
	"database/sql/driver"
	"time"

	"github.com/sealflow/sealflow-backend/pkg/database"
)

// SignerStatus represents a signer's sub-state. Terminal states are signed,
// declined and expired.
type SignerStatus string

const (
	SignerStatusPending  SignerStatus = "pending"
	SignerStatusSent     SignerStatus = "sent"
	SignerStatusOpened   SignerStatus = "opened"
	SignerStatusSigned   SignerStatus = "signed"
	SignerStatusDeclined SignerStatus = "declined"
	SignerStatusExpired  SignerStatus = "expired"
)

// IsTerminal reports whether the signer can make no further progress.
func (s SignerStatus) IsTerminal() bool {
	switch s {
	case SignerStatusSigned, SignerStatusDeclined, SignerStatusExpired:
		return true
	}
	return false
}

// rank orders signer states for monotonic-forward provider reconciliation.
// A terminal state never regresses to a lower rank.
func (s SignerStatus) rank() int {
	switch s {
	case SignerStatusPending:
		return 0
	case SignerStatusSent:
		return 1
	case SignerStatusOpened:
		return 2
	case SignerStatusSigned, SignerStatusDeclined, SignerStatusExpired:
		return 3
	}
	return 0
}

// AdvancesFrom reports whether moving from prev to s is a forward transition.
func (s SignerStatus) AdvancesFrom(prev SignerStatus) bool {
	if prev.IsTerminal() {
		return false
	}
	return s.rank() > prev.rank()
}

// Signer is one party on a contract. IDs are unique within their contract.
type Signer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Order int    `json:"order"`

	Status SignerStatus `json:"status"`

	// AccessCodeHash is a bcrypt hash of the signer's access code when the
	// template requires identity verification at session start.
	AccessCodeHash string `json:"-"`

	Evidence  *Evidence  `json:"evidence,omitempty"`
	Signature *Signature `json:"signature,omitempty"`
	Consents  []Consent  `json:"consents,omitempty"`

	SentAt        *time.Time `json:"sent_at,omitempty"`
	OpenedAt      *time.Time `json:"opened_at,omitempty"`
	SignedAt      *time.Time `json:"signed_at,omitempty"`
	DeclinedAt    *time.Time `json:"declined_at,omitempty"`
	DeclineReason string     `json:"decline_reason,omitempty"`
}

// HasConsent reports whether the signer accepted the given consent.
func (s *Signer) HasConsent(consentID string) bool {
	for _, c := range s.Consents {
		if c.ConsentID == consentID && c.Accepted {
			return true
		}
	}
	return false
}

// Signature is captured exactly once and immutable after write.
type Signature struct {
	// Type is one of typed, drawn, uploaded
	Type    string `json:"type"`
	Payload string `json:"payload"`
	// Crypto carries optional cryptographic attributes (key ids, cert chains)
	Crypto   map[string]string `json:"crypto,omitempty"`
	SignedAt time.Time         `json:"signed_at"`
}

// Consent records one accepted or refused consent checkbox.
type Consent struct {
	ConsentID string    `json:"consent_id"`
	Label     string    `json:"label"`
	Accepted  bool      `json:"accepted"`
	Timestamp time.Time `json:"timestamp"`
}

// SignerList is the JSONB-persisted signers column.
type SignerList []Signer

func (l SignerList) Value() (driver.Value, error) { return database.JSONBValue(l) }
func (l *SignerList) Scan(src any) error          { return database.ScanJSONB(l, src) }
