// Package testutil provides testing utilities for the signing service:
// a PostgreSQL testcontainer, a sqlmock wrapper and domain fixtures.
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance
type PostgresContainer struct {
	*postgres.PostgresContainer
	DSN string
}

// NewPostgresContainer creates a new PostgreSQL test container.
//
// Usage:
//
//	func TestMain(m *testing.M) {
//	    ctx := context.Background()
//	    container, err := testutil.NewPostgresContainer(ctx)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer container.Terminate(ctx)
//
//	    code := m.Run()
//	    os.Exit(code)
//	}
func NewPostgresContainer(ctx context.Context) (*PostgresContainer, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		postgres.WithDatabase("sealflow_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	return &PostgresContainer{
		PostgresContainer: container,
		DSN:               dsn,
	}, nil
}

// Connect returns a sqlx.DB connection to the container
func (c *PostgresContainer) Connect(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", c.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}
	return db, nil
}

// Terminate stops and removes the container
func (c *PostgresContainer) Terminate(ctx context.Context) error {
	return c.PostgresContainer.Terminate(ctx)
}

// CreateSchema creates the signing service tables.
func (c *PostgresContainer) CreateSchema(ctx context.Context, db *sqlx.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS contract_templates (
			id UUID PRIMARY KEY,
			name VARCHAR(200) NOT NULL,
			version VARCHAR(50) NOT NULL,
			previous_version_id UUID,
			status VARCHAR(20) NOT NULL DEFAULT 'draft',
			body TEXT NOT NULL,
			rendered_markup TEXT,
			variables JSONB NOT NULL DEFAULT '[]',
			signing_requirements JSONB NOT NULL DEFAULT '{}',
			legal_metadata JSONB NOT NULL DEFAULT '{}',
			tags JSONB,
			usage_stats JSONB NOT NULL DEFAULT '{"contract_count": 0}',
			created_by VARCHAR(100) NOT NULL,
			approved_by VARCHAR(100),
			approved_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			archived_at TIMESTAMPTZ,
			CONSTRAINT template_name_version UNIQUE (name, version),
			CONSTRAINT template_status_valid CHECK (
				status IN ('draft', 'review', 'approved', 'active', 'deprecated', 'archived'))
		);

		CREATE TABLE IF NOT EXISTS contracts (
			id UUID PRIMARY KEY,
			template_id UUID NOT NULL REFERENCES contract_templates(id),
			template_version VARCHAR(50) NOT NULL,
			subscriber_id VARCHAR(100) NOT NULL,
			title VARCHAR(300) NOT NULL,
			content TEXT NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'draft',
			signers JSONB NOT NULL DEFAULT '[]',
			dates JSONB NOT NULL DEFAULT '{}',
			security JSONB NOT NULL DEFAULT '{}',
			integration JSONB,
			custom_fields JSONB,
			version BIGINT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT contract_status_valid CHECK (
				status IN ('draft', 'sent', 'partially_signed', 'fully_signed',
					'completed', 'declined', 'expired', 'voided')),
			CONSTRAINT views_non_negative CHECK (
				(security->>'current_views')::int >= 0)
		);

		CREATE UNIQUE INDEX IF NOT EXISTS external_id
			ON contracts ((integration->>'provider'), (integration->>'external_id'))
			WHERE integration IS NOT NULL;

		CREATE INDEX IF NOT EXISTS contracts_subscriber_idx ON contracts (subscriber_id);
		CREATE INDEX IF NOT EXISTS contracts_status_idx ON contracts (status);
	`
	_, err := db.ExecContext(ctx, schema)
	return err
}
