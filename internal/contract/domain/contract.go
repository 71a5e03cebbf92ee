package domain

import (
	"database/sql/driver"
	"time"

	"github.com/sealflow/sealflow-backend/pkg/database"
)

// ContractStatus represents the contract-level state machine
type ContractStatus string

const (
	ContractStatusDraft           ContractStatus = "draft"
	ContractStatusSent            ContractStatus = "sent"
	ContractStatusPartiallySigned ContractStatus = "partially_signed"
	ContractStatusFullySigned     ContractStatus = "fully_signed"
	ContractStatusCompleted       ContractStatus = "completed"
	ContractStatusDeclined        ContractStatus = "declined"
	ContractStatusExpired         ContractStatus = "expired"
	ContractStatusVoided          ContractStatus = "voided"
)

// IsTerminal reports whether no further signing activity is possible.
func (s ContractStatus) IsTerminal() bool {
	switch s {
	case ContractStatusCompleted, ContractStatusDeclined, ContractStatusExpired, ContractStatusVoided:
		return true
	}
	return false
}

// IsSealed reports whether the contract has reached full signature. Sealed
// contracts keep their finalHash and are never coerced to expired.
func (s ContractStatus) IsSealed() bool {
	return s == ContractStatusFullySigned || s == ContractStatusCompleted
}

// SignedContract is one signing engagement. It references the exact template
// version it was rendered from; template evolution never touches it.
type SignedContract struct {
	ID              string          `json:"id" db:"id"`
	TemplateID      string          `json:"template_id" db:"template_id"`
	TemplateVersion string          `json:"template_version" db:"template_version"`
	SubscriberID    string          `json:"subscriber_id" db:"subscriber_id"`
	Title           string          `json:"title" db:"title"`
	Content         string          `json:"content" db:"content"`
	Status          ContractStatus  `json:"status" db:"status"`
	Signers         SignerList      `json:"signers" db:"signers"`
	Dates           ContractDates   `json:"dates" db:"dates"`
	Security        SecurityInfo    `json:"security" db:"security"`
	Integration     *Integration    `json:"integration,omitempty" db:"integration"`
	CustomFields    CustomFieldsMap `json:"custom_fields,omitempty" db:"custom_fields"`

	// Version is the optimistic-concurrency counter. Every update is a
	// compare-and-swap against it.
	Version   int64     `json:"-" db:"version"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// FindSigner returns the signer with the given ID, or nil.
func (c *SignedContract) FindSigner(signerID string) *Signer {
	for i := range c.Signers {
		if c.Signers[i].ID == signerID {
			return &c.Signers[i]
		}
	}
	return nil
}

// SignedCount returns the number of signers in terminal signed state.
func (c *SignedContract) SignedCount() int {
	n := 0
	for i := range c.Signers {
		if c.Signers[i].Status == SignerStatusSigned {
			n++
		}
	}
	return n
}

// AllSigned reports whether every signer has signed. The contract is
// fully_signed exactly when this conjunction holds, regardless of order.
func (c *SignedContract) AllSigned() bool {
	return len(c.Signers) > 0 && c.SignedCount() == len(c.Signers)
}

// IsExpired reports whether the contract has passed its expiry instant.
// Sealed and voided contracts never expire retroactively.
func (c *SignedContract) IsExpired(now time.Time) bool {
	if c.Status.IsSealed() || c.Status == ContractStatusVoided {
		return false
	}
	return c.Dates.Expires != nil && now.After(*c.Dates.Expires)
}

// Touch records activity. LastActivity is the only date set more than once.
func (c *SignedContract) Touch(now time.Time) {
	t := now
	c.Dates.LastActivity = &t
}

// ContractDates tracks the lifecycle timestamps. Each is set at most once,
// except LastActivity.
type ContractDates struct {
	Sent         *time.Time `json:"sent,omitempty"`
	FirstOpened  *time.Time `json:"first_opened,omitempty"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
	Completed    *time.Time `json:"completed,omitempty"`
	Expires      *time.Time `json:"expires,omitempty"`
	Voided       *time.Time `json:"voided,omitempty"`
}

// SecurityInfo carries the document-integrity fields. OriginalHash is set at
// creation, FinalHash only at the fully-signed transition; they are distinct,
// independently meaningful values.
type SecurityInfo struct {
	OriginalHash  string `json:"original_hash"`
	FinalHash     string `json:"final_hash,omitempty"`
	HashAlgorithm string `json:"hash_algorithm"`
	CurrentViews  int    `json:"current_views"`
	MaxViews      int    `json:"max_views"`
}

// Integration is the optional external e-signature provider binding.
type Integration struct {
	Provider       string     `json:"provider"`
	ExternalID     string     `json:"external_id"`
	ExternalStatus string     `json:"external_status,omitempty"`
	SyncedAt       *time.Time `json:"synced_at,omitempty"`
}

// CustomFieldsMap holds caller-supplied opaque values persisted with the
// contract. Keys are free-form but bounded to the caller's namespace.
type CustomFieldsMap map[string]any

// Progress is the per-signer completion summary returned by mutating
// workflow operations.
type Progress struct {
	ContractID   string           `json:"contract_id"`
	Status       ContractStatus   `json:"status"`
	SignedCount  int              `json:"signed_count"`
	SignerCount  int              `json:"signer_count"`
	Signers      []SignerProgress `json:"signers"`
	ExpiresAt    *time.Time       `json:"expires_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	FinalHashSet bool             `json:"final_hash_set"`
}

// SignerProgress is one signer's slice of the progress summary.
type SignerProgress struct {
	SignerID string       `json:"signer_id"`
	Name     string       `json:"name"`
	Email    string       `json:"email"`
	Status   SignerStatus `json:"status"`
	SignedAt *time.Time   `json:"signed_at,omitempty"`
}

// BuildProgress derives the progress projection from the current state.
func (c *SignedContract) BuildProgress() *Progress {
	p := &Progress{
		ContractID:   c.ID,
		Status:       c.Status,
		SignedCount:  c.SignedCount(),
		SignerCount:  len(c.Signers),
		ExpiresAt:    c.Dates.Expires,
		CompletedAt:  c.Dates.Completed,
		FinalHashSet: c.Security.FinalHash != "",
	}
	for i := range c.Signers {
		s := &c.Signers[i]
		p.Signers = append(p.Signers, SignerProgress{
			SignerID: s.ID,
			Name:     s.Name,
			Email:    s.Email,
			Status:   s.Status,
			SignedAt: s.SignedAt,
		})
	}
	return p
}

// JSONB plumbing for the nested document columns.

func (d ContractDates) Value() (driver.Value, error) { return database.JSONBValue(d) }
func (d *ContractDates) Scan(src any) error          { return database.ScanJSONB(d, src) }

func (s SecurityInfo) Value() (driver.Value, error) { return database.JSONBValue(s) }
func (s *SecurityInfo) Scan(src any) error          { return database.ScanJSONB(s, src) }

func (i *Integration) Value() (driver.Value, error) {
	if i == nil {
		return nil, nil
	}
	return database.JSONBValue(i)
}
func (i *Integration) Scan(src any) error { return database.ScanJSONB(i, src) }

func (m CustomFieldsMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return database.JSONBValue(m)
}
func (m *CustomFieldsMap) Scan(src any) error { return database.ScanJSONB(m, src) }
