package domain

import (
	"database/sql/driver"
	"time"

	"github.com/sealflow/sealflow-backend/pkg/database"
)

// TemplateStatus represents the template lifecycle state. Transitions are
// monotonic forward, except that draft and review may flip back and forth.
type TemplateStatus string

const (
	TemplateStatusDraft      TemplateStatus = "draft"
	TemplateStatusReview     TemplateStatus = "review"
	TemplateStatusApproved   TemplateStatus = "approved"
	TemplateStatusActive     TemplateStatus = "active"
	TemplateStatusDeprecated TemplateStatus = "deprecated"
	TemplateStatusArchived   TemplateStatus = "archived"
)

var templateStatusOrder = map[TemplateStatus]int{
	TemplateStatusDraft:      0,
	TemplateStatusReview:     1,
	TemplateStatusApproved:   2,
	TemplateStatusActive:     3,
	TemplateStatusDeprecated: 4,
	TemplateStatusArchived:   5,
}

// IsRetired reports whether the version is out of circulation.
func (s TemplateStatus) IsRetired() bool {
	return s == TemplateStatusDeprecated || s == TemplateStatusArchived
}

// CanTransitionTo reports whether a status change is legal.
func (s TemplateStatus) CanTransitionTo(next TemplateStatus) bool {
	// draft and review flip freely
	if (s == TemplateStatusDraft && next == TemplateStatusReview) ||
		(s == TemplateStatusReview && next == TemplateStatusDraft) {
		return true
	}
	return templateStatusOrder[next] > templateStatusOrder[s]
}

// ContractTemplate is one immutable-once-published version of a contract
// template. Edits to a published version always create a new version.
type ContractTemplate struct {
	ID                string         `json:"id" db:"id"`
	Name              string         `json:"name" db:"name"`
	Version           string         `json:"version" db:"version"`
	PreviousVersionID *string        `json:"previous_version_id,omitempty" db:"previous_version_id"`
	Status            TemplateStatus `json:"status" db:"status"`

	// Body holds the contract text with {{name}} placeholders.
	Body           string `json:"body" db:"body"`
	RenderedMarkup string `json:"rendered_markup,omitempty" db:"rendered_markup"`

	Variables    VariableList        `json:"variables" db:"variables"`
	Requirements SigningRequirements `json:"signing_requirements" db:"signing_requirements"`
	Legal        LegalMetadata       `json:"legal_metadata" db:"legal_metadata"`
	Tags         TagList             `json:"tags,omitempty" db:"tags"`
	Stats        UsageStats          `json:"usage_stats" db:"usage_stats"`

	CreatedBy  string     `json:"created_by" db:"created_by"`
	ApprovedBy *string    `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt *time.Time `json:"approved_at,omitempty" db:"approved_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
	ArchivedAt *time.Time `json:"archived_at,omitempty" db:"archived_at"`
}

// IsPublished reports whether the template is live for new contracts.
func (t *ContractTemplate) IsPublished() bool {
	return t.Status == TemplateStatusActive
}

// VariableType enumerates supported placeholder value types.
type VariableType string

const (
	VariableTypeText   VariableType = "text"
	VariableTypeNumber VariableType = "number"
	VariableTypeEmail  VariableType = "email"
	VariableTypeDate   VariableType = "date"
	VariableTypeSelect VariableType = "select"
)

// Variable describes one typed placeholder in the template body.
type Variable struct {
	Name     string       `json:"name"`
	Type     VariableType `json:"type"`
	Required bool         `json:"required"`
	Default  string       `json:"default,omitempty"`
	Options  []string     `json:"options,omitempty"`
	Pattern  string       `json:"pattern,omitempty"`
	MinLen   int          `json:"min_len,omitempty"`
	MaxLen   int          `json:"max_len,omitempty"`
	Min      *float64     `json:"min,omitempty"`
	Max      *float64     `json:"max,omitempty"`
}

// ConsentRequirement names one consent every signer must accept.
type ConsentRequirement struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// SigningRequirements configures how contracts from this template are signed.
type SigningRequirements struct {
	RequiredConsents      []ConsentRequirement `json:"required_consents,omitempty"`
	AllowedSignatureTypes []string             `json:"allowed_signature_types,omitempty"`
	RequireAccessCode     bool                 `json:"require_access_code"`
	ExpirationDays        int                  `json:"expiration_days,omitempty"`
	MaxViews              int                  `json:"max_views,omitempty"`
}

// RequiresConsent reports whether the given consent is mandated.
func (r *SigningRequirements) RequiresConsent(consentID string) bool {
	for _, c := range r.RequiredConsents {
		if c.ID == consentID {
			return true
		}
	}
	return false
}

// AllowsSignatureType reports whether the given signature input type is
// permitted. An empty list permits every type.
func (r *SigningRequirements) AllowsSignatureType(sigType string) bool {
	if len(r.AllowedSignatureTypes) == 0 {
		return true
	}
	for _, t := range r.AllowedSignatureTypes {
		if t == sigType {
			return true
		}
	}
	return false
}

// LegalMetadata carries jurisdiction information embedded in certificates.
type LegalMetadata struct {
	Jurisdiction string `json:"jurisdiction,omitempty"`
	GoverningLaw string `json:"governing_law,omitempty"`
}

// UsageStats tracks template usage. Reset to zero on every new version.
type UsageStats struct {
	ContractCount int        `json:"contract_count"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty"`
}

// VariableList is the JSONB-persisted variables column.
type VariableList []Variable

// TagList is the JSONB-persisted plan/region tags column.
type TagList []string

func (l VariableList) Value() (driver.Value, error) { return database.JSONBValue(l) }
func (l *VariableList) Scan(src any) error          { return database.ScanJSONB(l, src) }

func (l TagList) Value() (driver.Value, error) { return database.JSONBValue(l) }
func (l *TagList) Scan(src any) error          { return database.ScanJSONB(l, src) }

func (r SigningRequirements) Value() (driver.Value, error) { return database.JSONBValue(r) }
func (r *SigningRequirements) Scan(src any) error          { return database.ScanJSONB(r, src) }

func (m LegalMetadata) Value() (driver.Value, error) { return database.JSONBValue(m) }
func (m *LegalMetadata) Scan(src any) error          { return database.ScanJSONB(m, src) }

func (s UsageStats) Value() (driver.Value, error) { return database.JSONBValue(s) }
func (s *UsageStats) Scan(src any) error          { return database.ScanJSONB(s, src) }
