package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sealflow/sealflow-backend/internal/template/domain"
	"github.com/sealflow/sealflow-backend/pkg/database"
	"github.com/sealflow/sealflow-backend/pkg/errors"
)

// TemplateRepository handles contract template persistence
type TemplateRepository struct {
	db *database.DB
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *database.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

const templateColumns = `
	id, name, version, previous_version_id, status, body, rendered_markup,
	variables, signing_requirements, legal_metadata, tags, usage_stats,
	created_by, approved_by, approved_at, created_at, updated_at, archived_at
`

// Create inserts a new template version
func (r *TemplateRepository) Create(ctx context.Context, t *domain.ContractTemplate) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}

	query := `
		INSERT INTO contract_templates (
			id, name, version, previous_version_id, status, body, rendered_markup,
			variables, signing_requirements, legal_metadata, tags, usage_stats,
			created_by, approved_by, approved_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		t.ID,
		t.Name,
		t.Version,
		t.PreviousVersionID,
		t.Status,
		t.Body,
		t.RenderedMarkup,
		t.Variables,
		t.Requirements,
		t.Legal,
		t.Tags,
		t.Stats,
		t.CreatedBy,
		t.ApprovedBy,
		t.ApprovedAt,
	).Scan(&t.CreatedAt, &t.UpdatedAt)

	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	return nil
}

// GetByID gets a template by ID
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*domain.ContractTemplate, error) {
	var t domain.ContractTemplate
	query := `SELECT ` + templateColumns + ` FROM contract_templates WHERE id = $1`

	if err := r.db.GetContext(ctx, &t, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("template")
		}
		return nil, err
	}

	return &t, nil
}

// Update persists template mutations. Identity and creation audit fields are
// never written here.
func (r *TemplateRepository) Update(ctx context.Context, t *domain.ContractTemplate) error {
	query := `
		UPDATE contract_templates
		SET body = $2, rendered_markup = $3, variables = $4,
		    signing_requirements = $5, legal_metadata = $6, tags = $7,
		    usage_stats = $8, status = $9, approved_by = $10, approved_at = $11,
		    archived_at = $12, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		t.ID,
		t.Body,
		t.RenderedMarkup,
		t.Variables,
		t.Requirements,
		t.Legal,
		t.Tags,
		t.Stats,
		t.Status,
		t.ApprovedBy,
		t.ApprovedAt,
		t.ArchivedAt,
	).Scan(&t.UpdatedAt)

	if err != nil {
		if err == sql.ErrNoRows {
			return errors.NotFound("template")
		}
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	return nil
}

// List lists templates with pagination. Archived versions are excluded unless
// requested by status.
func (r *TemplateRepository) List(ctx context.Context, page, perPage int, status, tag string) ([]*domain.ContractTemplate, int64, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}

	if status != "" {
		args = append(args, status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	} else {
		where += ` AND status != 'archived'`
	}

	if tag != "" {
		args = append(args, tag)
		where += fmt.Sprintf(" AND tags @> to_jsonb(ARRAY[$%d]::text[])", len(args))
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM contract_templates`+where, args...); err != nil {
		return nil, 0, err
	}

	args = append(args, perPage)
	limitPos := len(args)
	args = append(args, (page-1)*perPage)
	offsetPos := len(args)

	query := `SELECT ` + templateColumns + ` FROM contract_templates` + where +
		fmt.Sprintf(" ORDER BY name, created_at DESC LIMIT $%d OFFSET $%d", limitPos, offsetPos)

	var templates []*domain.ContractTemplate
	if err := r.db.SelectContext(ctx, &templates, query, args...); err != nil {
		return nil, 0, err
	}

	return templates, total, nil
}

// CountContracts returns how many contracts reference the template version.
// Hard deletion is only permitted when this is zero.
func (r *TemplateRepository) CountContracts(ctx context.Context, templateID string) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM contracts WHERE template_id = $1`
	if err := r.db.GetContext(ctx, &count, query, templateID); err != nil {
		return 0, err
	}
	return count, nil
}

// RecordUsage bumps the usage stats when a contract is initiated from the
// template.
func (r *TemplateRepository) RecordUsage(ctx context.Context, templateID string, at time.Time) error {
	query := `
		UPDATE contract_templates
		SET usage_stats = jsonb_set(
			jsonb_set(usage_stats, '{contract_count}',
				(COALESCE(usage_stats->>'contract_count','0')::int + 1)::text::jsonb),
			'{last_used_at}', to_jsonb($2::timestamptz)),
		    updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, templateID, at)
	return err
}

// Delete permanently removes a template version
func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM contract_templates WHERE id = $1`, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("template")
	}

	return nil
}
