package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/sealflow/sealflow-backend/internal/template/domain"
	"github.com/sealflow/sealflow-backend/internal/template/repository"
	"github.com/sealflow/sealflow-backend/pkg/actor"
	"github.com/sealflow/sealflow-backend/pkg/errors"
	"github.com/sealflow/sealflow-backend/pkg/logger"
)

// InitialVersion is the version assigned to brand-new templates.
const InitialVersion = "1.0.0"

// TemplateService handles template lifecycle business logic
type TemplateService struct {
	repo   *repository.TemplateRepository
	logger *logger.Logger
}

// NewTemplateService creates a new template service
func NewTemplateService(repo *repository.TemplateRepository, log *logger.Logger) *TemplateService {
	return &TemplateService{
		repo:   repo,
		logger: log,
	}
}

// CreateTemplateRequest represents a create template request
type CreateTemplateRequest struct {
	Name           string                     `json:"name" validate:"required,max=200"`
	Body           string                     `json:"body" validate:"required"`
	RenderedMarkup string                     `json:"rendered_markup,omitempty"`
	Variables      []domain.Variable          `json:"variables,omitempty"`
	Requirements   domain.SigningRequirements `json:"signing_requirements,omitempty"`
	Legal          domain.LegalMetadata       `json:"legal_metadata,omitempty"`
	Tags           []string                   `json:"tags,omitempty"`
}

// UpdateTemplateRequest represents a partial template update. Identity,
// version and creation audit fields are deliberately absent: attempts to
// change them are rejected at decode time by the DTO shape.
type UpdateTemplateRequest struct {
	Body           *string                     `json:"body,omitempty"`
	RenderedMarkup *string                     `json:"rendered_markup,omitempty"`
	Variables      *[]domain.Variable          `json:"variables,omitempty"`
	Requirements   *domain.SigningRequirements `json:"signing_requirements,omitempty"`
	Legal          *domain.LegalMetadata       `json:"legal_metadata,omitempty"`
	Tags           *[]string                   `json:"tags,omitempty"`
}

// Create creates a new template at version 1.0.0 in draft status
func (s *TemplateService) Create(ctx context.Context, req *CreateTemplateRequest, authorID string) (*domain.ContractTemplate, error) {
	t := &domain.ContractTemplate{
		Name:           req.Name,
		Version:        InitialVersion,
		Status:         domain.TemplateStatusDraft,
		Body:           req.Body,
		RenderedMarkup: req.RenderedMarkup,
		Variables:      req.Variables,
		Requirements:   req.Requirements,
		Legal:          req.Legal,
		Tags:           req.Tags,
		CreatedBy:      authorID,
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("template_id", t.ID).
		Str("name", t.Name).
		Msg("template created")

	return t, nil
}

// Get returns a template by ID
func (s *TemplateService) Get(ctx context.Context, id string) (*domain.ContractTemplate, error) {
	return s.repo.GetByID(ctx, id)
}

// List lists templates with pagination
func (s *TemplateService) List(ctx context.Context, page, perPage int, status, tag string) ([]*domain.ContractTemplate, int64, error) {
	return s.repo.List(ctx, page, perPage, status, tag)
}

// Update applies a patch to an unreferenced template version. A version
// referenced by any contract is immutable; edits must go through
// CreateNewVersion.
func (s *TemplateService) Update(ctx context.Context, id string, req *UpdateTemplateRequest) (*domain.ContractTemplate, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	refs, err := s.repo.CountContracts(ctx, id)
	if err != nil {
		return nil, err
	}
	if refs > 0 {
		return nil, errors.PreconditionFailed(
			"template version is referenced by contracts and is immutable; create a new version instead")
	}

	applyPatch(t, req)

	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}

	return t, nil
}

// CreateNewVersion deactivates the current version and produces a new one
// with a fresh minor version, reset statistics and reset audit fields.
func (s *TemplateService) CreateNewVersion(ctx context.Context, id string, req *UpdateTemplateRequest, authorID string) (*domain.ContractTemplate, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	nextVersion, err := bumpMinor(current.Version)
	if err != nil {
		return nil, errors.Internal(fmt.Sprintf("template %s carries an unparseable version %q", id, current.Version))
	}

	next := &domain.ContractTemplate{
		Name:              current.Name,
		Version:           nextVersion,
		PreviousVersionID: &current.ID,
		Status:            domain.TemplateStatusDraft,
		Body:              current.Body,
		RenderedMarkup:    current.RenderedMarkup,
		Variables:         current.Variables,
		Requirements:      current.Requirements,
		Legal:             current.Legal,
		Tags:              current.Tags,
		Stats:             domain.UsageStats{},
		CreatedBy:         authorID,
	}
	applyPatch(next, req)

	if err := s.repo.Create(ctx, next); err != nil {
		return nil, err
	}

	// Deprecate the replaced version. Draft/review predecessors are archived
	// outright since nothing ever ran against them.
	if current.Status == domain.TemplateStatusActive {
		current.Status = domain.TemplateStatusDeprecated
	} else if !current.Status.IsRetired() {
		current.Status = domain.TemplateStatusArchived
		now := time.Now().UTC()
		current.ArchivedAt = &now
	}
	if err := s.repo.Update(ctx, current); err != nil {
		s.logger.Warn().Err(err).
			Str("template_id", current.ID).
			Msg("failed to deprecate previous template version")
	}

	s.logger.Info().
		Str("template_id", next.ID).
		Str("previous_version_id", current.ID).
		Str("version", next.Version).
		Msg("template version created")

	return next, nil
}

// Approve stamps the approver and approval time
func (s *TemplateService) Approve(ctx context.Context, id string) (*domain.ContractTemplate, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if t.ApprovedAt != nil {
		return nil, errors.PreconditionFailed("template is already approved")
	}

	now := time.Now().UTC()
	t.ApprovedAt = &now
	if a := actor.FromContext(ctx); a != nil {
		t.ApprovedBy = &a.ID
	}
	if t.Status.CanTransitionTo(domain.TemplateStatusApproved) {
		t.Status = domain.TemplateStatusApproved
	}

	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}

	return t, nil
}

// Publish activates an approved template. Publishing before approval fails.
func (s *TemplateService) Publish(ctx context.Context, id string) (*domain.ContractTemplate, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if t.ApprovedAt == nil {
		return nil, errors.PreconditionFailed("template must be approved before publishing")
	}
	if !t.Status.CanTransitionTo(domain.TemplateStatusActive) {
		return nil, errors.PreconditionFailed(
			fmt.Sprintf("template in status %s cannot be published", t.Status))
	}

	t.Status = domain.TemplateStatusActive
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("template_id", t.ID).
		Str("version", t.Version).
		Msg("template published")

	return t, nil
}

// Clone deep-copies a template under a new name. The clone starts over as an
// unapproved draft at version 1.0.0.
func (s *TemplateService) Clone(ctx context.Context, id, newName string, authorID string) (*domain.ContractTemplate, error) {
	src, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	clone := &domain.ContractTemplate{
		Name:           newName,
		Version:        InitialVersion,
		Status:         domain.TemplateStatusDraft,
		Body:           src.Body,
		RenderedMarkup: src.RenderedMarkup,
		Variables:      append(domain.VariableList{}, src.Variables...),
		Requirements:   src.Requirements,
		Legal:          src.Legal,
		Tags:           append(domain.TagList{}, src.Tags...),
		CreatedBy:      authorID,
	}

	if err := s.repo.Create(ctx, clone); err != nil {
		return nil, err
	}

	return clone, nil
}

// Delete archives the template by default. A hard delete is only permitted
// when no contract references the version.
func (s *TemplateService) Delete(ctx context.Context, id string, hard bool) error {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if hard {
		refs, err := s.repo.CountContracts(ctx, id)
		if err != nil {
			return err
		}
		if refs > 0 {
			return errors.PreconditionFailed(
				fmt.Sprintf("template is in use by %d contract(s) and cannot be hard-deleted", refs))
		}
		return s.repo.Delete(ctx, id)
	}

	if t.Status == domain.TemplateStatusArchived {
		return nil
	}
	t.Status = domain.TemplateStatusArchived
	now := time.Now().UTC()
	t.ArchivedAt = &now

	return s.repo.Update(ctx, t)
}

func applyPatch(t *domain.ContractTemplate, req *UpdateTemplateRequest) {
	if req == nil {
		return
	}
	if req.Body != nil {
		t.Body = *req.Body
	}
	if req.RenderedMarkup != nil {
		t.RenderedMarkup = *req.RenderedMarkup
	}
	if req.Variables != nil {
		t.Variables = *req.Variables
	}
	if req.Requirements != nil {
		t.Requirements = *req.Requirements
	}
	if req.Legal != nil {
		t.Legal = *req.Legal
	}
	if req.Tags != nil {
		t.Tags = *req.Tags
	}
}

func bumpMinor(version string) (string, error) {
	v, err := semver.NewVersion(version)
	if err != nil {
		return "", err
	}
	next := v.IncMinor()
	return next.String(), nil
}
