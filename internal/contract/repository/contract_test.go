package repository_test

import (
	"context"
	"flag"
	"log"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealflow/sealflow-backend/internal/contract/domain"
	"github.com/sealflow/sealflow-backend/internal/contract/repository"
	templatedomain "github.com/sealflow/sealflow-backend/internal/template/domain"
	templaterepo "github.com/sealflow/sealflow-backend/internal/template/repository"
	"github.com/sealflow/sealflow-backend/pkg/database"
	"github.com/sealflow/sealflow-backend/pkg/errors"
	"github.com/sealflow/sealflow-backend/pkg/logger"
	"github.com/sealflow/sealflow-backend/pkg/testutil"
)

var testDB *database.DB

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	container, err := testutil.NewPostgresContainer(ctx)
	if err != nil {
		log.Fatalf("failed to start postgres container: %v", err)
	}
	defer container.Terminate(ctx)

	db, err := container.Connect(ctx)
	if err != nil {
		log.Fatalf("failed to connect to test database: %v", err)
	}
	defer db.Close()

	if err := container.CreateSchema(ctx, db); err != nil {
		log.Fatalf("failed to create schema: %v", err)
	}

	testDB = database.FromSQLX(db, logger.New("test", "development"))

	os.Exit(m.Run())
}

// createTestContract persists a fixture contract along with the template it
// references.
func createTestContract(t *testing.T, ctx context.Context, mutators ...func(*domain.SignedContract)) *domain.SignedContract {
	t.Helper()

	tmpl := testutil.TemplateFixture(func(tm *templatedomain.ContractTemplate) {
		// the fixture name collides with the name+version unique constraint
		// when reused, every test gets its own template
		tm.Name = "Service Agreement " + uuid.New().String()[:8]
	})
	require.NoError(t, templaterepo.NewTemplateRepository(testDB).Create(ctx, tmpl))

	c := testutil.ContractFixture(2, mutators...)
	c.TemplateID = tmpl.ID
	require.NoError(t, repository.NewContractRepository(testDB).Create(ctx, c))
	return c
}

func TestContractRepository_CreateAndGetByID(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	repo := repository.NewContractRepository(testDB)

	c := createTestContract(t, ctx)
	assert.Equal(t, int64(1), c.Version)
	assert.False(t, c.CreatedAt.IsZero())

	found, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, found.ID)
	assert.Equal(t, c.Title, found.Title)
	assert.Equal(t, domain.ContractStatusSent, found.Status)
	require.Len(t, found.Signers, 2)
	assert.Equal(t, "signer1@example.com", found.Signers[0].Email)
	assert.Equal(t, c.Security.OriginalHash, found.Security.OriginalHash)
	assert.Equal(t, 10, found.Security.MaxViews)
	require.NotNil(t, found.Dates.Expires)
}

func TestContractRepository_GetByID_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	repo := repository.NewContractRepository(testDB)

	_, err := repo.GetByID(ctx, "00000000-0000-0000-0000-000000000000")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestContractRepository_Update_VersionConflict(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	repo := repository.NewContractRepository(testDB)

	c := createTestContract(t, ctx)

	first, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	stale, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)

	first.Title = "Updated Title"
	require.NoError(t, repo.Update(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	stale.Title = "Losing Write"
	err = repo.Update(ctx, stale)
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrVersionConflict))

	// the winning write is what persisted
	found, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Updated Title", found.Title)
	assert.Equal(t, int64(2), found.Version)
}

func TestContractRepository_IncrementViews(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	repo := repository.NewContractRepository(testDB)

	c := createTestContract(t, ctx, func(c *domain.SignedContract) {
		c.Security.MaxViews = 2
	})

	views, err := repo.IncrementViews(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, views)

	views, err = repo.IncrementViews(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, views)

	_, err = repo.IncrementViews(ctx, c.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrViewLimitExceeded))
}

func TestContractRepository_IncrementViews_BumpsVersion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	repo := repository.NewContractRepository(testDB)

	c := createTestContract(t, ctx)

	stale, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)

	_, err = repo.IncrementViews(ctx, c.ID)
	require.NoError(t, err)

	// a write based on the pre-increment read must lose, otherwise it would
	// clobber the view counter
	err = repo.Update(ctx, stale)
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrVersionConflict))
}

func TestContractRepository_GetByExternalID(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	repo := repository.NewContractRepository(testDB)

	synced := time.Now().UTC()
	c := createTestContract(t, ctx, func(c *domain.SignedContract) {
		c.Integration = &domain.Integration{
			Provider:       "docusign",
			ExternalID:     "env-ext-lookup",
			ExternalStatus: "sent",
			SyncedAt:       &synced,
		}
	})

	found, err := repo.GetByExternalID(ctx, "docusign", "env-ext-lookup")
	require.NoError(t, err)
	assert.Equal(t, c.ID, found.ID)
	require.NotNil(t, found.Integration)
	assert.Equal(t, "env-ext-lookup", found.Integration.ExternalID)

	_, err = repo.GetByExternalID(ctx, "docusign", "never-seen")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestContractRepository_List(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	repo := repository.NewContractRepository(testDB)

	subscriber := "list-subscriber-1"
	for i := 0; i < 3; i++ {
		createTestContract(t, ctx, func(c *domain.SignedContract) {
			c.SubscriberID = subscriber
		})
	}
	createTestContract(t, ctx, func(c *domain.SignedContract) {
		c.SubscriberID = subscriber
		c.Status = domain.ContractStatusDeclined
	})

	all, total, err := repo.List(ctx, 1, 10, subscriber, "")
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Len(t, all, 4)

	declined, total, err := repo.List(ctx, 1, 10, subscriber, domain.ContractStatusDeclined)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, declined, 1)
	assert.Equal(t, domain.ContractStatusDeclined, declined[0].Status)

	page, total, err := repo.List(ctx, 2, 3, subscriber, "")
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Len(t, page, 1)
}
