package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/sealflow/sealflow-backend/internal/contract/domain"
	"github.com/sealflow/sealflow-backend/pkg/database"
	"github.com/sealflow/sealflow-backend/pkg/errors"
)

// ErrVersionConflict is returned when a compare-and-swap update loses the
// race. Callers re-read and retry.
var ErrVersionConflict = errors.Conflict("contract was modified concurrently")

// ContractRepository handles signed contract persistence
type ContractRepository struct {
	db *database.DB
}

// NewContractRepository creates a new contract repository
func NewContractRepository(db *database.DB) *ContractRepository {
	return &ContractRepository{db: db}
}

const contractColumns = `
	id, template_id, template_version, subscriber_id, title, content, status,
	signers, dates, security, integration, custom_fields, version,
	created_at, updated_at
`

// Create inserts a new contract
func (r *ContractRepository) Create(ctx context.Context, c *domain.SignedContract) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.Version = 1

	query := `
		INSERT INTO contracts (
			id, template_id, template_version, subscriber_id, title, content,
			status, signers, dates, security, integration, custom_fields, version
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		c.ID,
		c.TemplateID,
		c.TemplateVersion,
		c.SubscriberID,
		c.Title,
		c.Content,
		c.Status,
		c.Signers,
		c.Dates,
		c.Security,
		c.Integration,
		c.CustomFields,
		c.Version,
	).Scan(&c.CreatedAt, &c.UpdatedAt)

	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	return nil
}

// GetByID gets a contract by ID
func (r *ContractRepository) GetByID(ctx context.Context, id string) (*domain.SignedContract, error) {
	var c domain.SignedContract
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE id = $1`

	if err := r.db.GetContext(ctx, &c, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("contract")
		}
		return nil, err
	}

	return &c, nil
}

// GetByExternalID finds the contract bound to a provider's external ID.
func (r *ContractRepository) GetByExternalID(ctx context.Context, provider, externalID string) (*domain.SignedContract, error) {
	var c domain.SignedContract
	query := `SELECT ` + contractColumns + ` FROM contracts
		WHERE integration->>'provider' = $1 AND integration->>'external_id' = $2`

	if err := r.db.GetContext(ctx, &c, query, provider, externalID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("contract")
		}
		return nil, err
	}

	return &c, nil
}

// Update persists the contract under compare-and-swap on the version counter.
// Two signers submitting concurrently serialize here: the loser gets
// ErrVersionConflict and must re-read a consistent snapshot before retrying.
func (r *ContractRepository) Update(ctx context.Context, c *domain.SignedContract) error {
	query := `
		UPDATE contracts
		SET subscriber_id = $3, title = $4, content = $5, status = $6,
		    signers = $7, dates = $8, security = $9, integration = $10,
		    custom_fields = $11, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		c.ID,
		c.Version,
		c.SubscriberID,
		c.Title,
		c.Content,
		c.Status,
		c.Signers,
		c.Dates,
		c.Security,
		c.Integration,
		c.CustomFields,
	).Scan(&c.Version, &c.UpdatedAt)

	if err != nil {
		if err == sql.ErrNoRows {
			// Either the row is gone or the version moved under us.
			if _, getErr := r.GetByID(ctx, c.ID); getErr != nil {
				return getErr
			}
			return ErrVersionConflict
		}
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	return nil
}

// IncrementViews atomically increments the view counter while enforcing the
// cap, so concurrent session starts by the same signer cannot slip past
// maxViews. Returns the counter after the increment.
func (r *ContractRepository) IncrementViews(ctx context.Context, id string) (int, error) {
	// Bumping the version makes concurrent compare-and-swap writers re-read
	// the incremented counter instead of writing back a stale one.
	query := `
		UPDATE contracts
		SET security = jsonb_set(security, '{current_views}',
			((security->>'current_views')::int + 1)::text::jsonb),
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1
		  AND (security->>'current_views')::int < (security->>'max_views')::int
		RETURNING (security->>'current_views')::int
	`

	var views int
	err := r.db.QueryRowxContext(ctx, query, id).Scan(&views)
	if err != nil {
		if err == sql.ErrNoRows {
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return 0, getErr
			}
			return 0, errors.ViewLimitExceeded()
		}
		return 0, err
	}

	return views, nil
}

// List lists contracts with filtering and pagination
func (r *ContractRepository) List(ctx context.Context, page, perPage int, subscriberID string, status domain.ContractStatus) ([]*domain.SignedContract, int64, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}

	if subscriberID != "" {
		args = append(args, subscriberID)
		where += fmt.Sprintf(" AND subscriber_id = $%d", len(args))
	}
	if status != "" {
		args = append(args, status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM contracts`+where, args...); err != nil {
		return nil, 0, err
	}

	args = append(args, perPage)
	limitPos := len(args)
	args = append(args, (page-1)*perPage)
	offsetPos := len(args)

	query := `SELECT ` + contractColumns + ` FROM contracts` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", limitPos, offsetPos)

	var contracts []*domain.SignedContract
	if err := r.db.SelectContext(ctx, &contracts, query, args...); err != nil {
		return nil, 0, err
	}

	return contracts, total, nil
}
