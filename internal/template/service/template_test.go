package service_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealflow/sealflow-backend/internal/template/domain"
	"github.com/sealflow/sealflow-backend/internal/template/repository"
	"github.com/sealflow/sealflow-backend/internal/template/service"
	"github.com/sealflow/sealflow-backend/pkg/actor"
	"github.com/sealflow/sealflow-backend/pkg/errors"
	"github.com/sealflow/sealflow-backend/pkg/logger"
	"github.com/sealflow/sealflow-backend/pkg/testutil"
)

type templateEnv struct {
	db  *testutil.MockDB
	svc *service.TemplateService
}

func newTemplateEnv(t *testing.T) *templateEnv {
	mockDB := testutil.NewMockDB(t)
	t.Cleanup(func() { mockDB.Close() })

	svc := service.NewTemplateService(
		repository.NewTemplateRepository(mockDB.Wrap()),
		logger.New("test", "development"),
	)
	return &templateEnv{db: mockDB, svc: svc}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func expectTemplateRead(env *templateEnv, t *testing.T, tmpl *domain.ContractTemplate) {
	t.Helper()
	var approvedAt any
	if tmpl.ApprovedAt != nil {
		approvedAt = *tmpl.ApprovedAt
	}
	var archivedAt any
	if tmpl.ArchivedAt != nil {
		archivedAt = *tmpl.ArchivedAt
	}
	env.db.ExpectQuery("FROM contract_templates WHERE id =").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "version", "previous_version_id", "status", "body", "rendered_markup",
			"variables", "signing_requirements", "legal_metadata", "tags", "usage_stats",
			"created_by", "approved_by", "approved_at", "created_at", "updated_at", "archived_at",
		}).AddRow(
			tmpl.ID, tmpl.Name, tmpl.Version, tmpl.PreviousVersionID, string(tmpl.Status),
			tmpl.Body, tmpl.RenderedMarkup, mustJSON(t, tmpl.Variables),
			mustJSON(t, tmpl.Requirements), mustJSON(t, tmpl.Legal),
			mustJSON(t, tmpl.Tags), mustJSON(t, tmpl.Stats),
			tmpl.CreatedBy, tmpl.ApprovedBy, approvedAt,
			tmpl.CreatedAt, tmpl.UpdatedAt, archivedAt,
		))
}

func expectTemplateInsert(env *templateEnv) {
	env.db.ExpectQuery("INSERT INTO contract_templates").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).
			AddRow(time.Now().UTC(), time.Now().UTC()))
}

func expectTemplateUpdate(env *templateEnv) {
	env.db.ExpectQuery("UPDATE contract_templates").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now().UTC()))
}

func expectContractCount(env *templateEnv, count int64) {
	env.db.ExpectQuery("SELECT COUNT(*) FROM contracts WHERE template_id").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(count))
}

func errorCode(t *testing.T, err error) string {
	t.Helper()
	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	return appErr.Code
}

func TestTemplateService_Create(t *testing.T) {
	env := newTemplateEnv(t)
	expectTemplateInsert(env)

	tmpl, err := env.svc.Create(context.Background(), &service.CreateTemplateRequest{
		Name: "NDA",
		Body: "Between {{party_a}} and {{party_b}}.",
		Variables: []domain.Variable{
			{Name: "party_a", Type: domain.VariableTypeText, Required: true},
			{Name: "party_b", Type: domain.VariableTypeText, Required: true},
		},
	}, "author-1")
	require.NoError(t, err)

	assert.Equal(t, service.InitialVersion, tmpl.Version)
	assert.Equal(t, domain.TemplateStatusDraft, tmpl.Status)
	assert.Equal(t, "author-1", tmpl.CreatedBy)
	assert.Nil(t, tmpl.ApprovedAt)

	env.db.ExpectationsWereMet(t)
}

func TestTemplateService_Approve(t *testing.T) {
	env := newTemplateEnv(t)
	tmpl := testutil.TemplateFixture(func(tm *domain.ContractTemplate) {
		tm.Status = domain.TemplateStatusReview
		tm.ApprovedBy = nil
		tm.ApprovedAt = nil
	})

	expectTemplateRead(env, t, tmpl)
	expectTemplateUpdate(env)

	ctx := actor.WithActor(context.Background(), &actor.Actor{ID: "reviewer-7", Name: "Reviewer"})
	approved, err := env.svc.Approve(ctx, tmpl.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.TemplateStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedAt)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, "reviewer-7", *approved.ApprovedBy)
}

func TestTemplateService_Approve_AlreadyApproved(t *testing.T) {
	env := newTemplateEnv(t)
	tmpl := testutil.TemplateFixture()

	expectTemplateRead(env, t, tmpl)

	_, err := env.svc.Approve(context.Background(), tmpl.ID)
	require.Error(t, err)
	assert.Equal(t, "PRECONDITION_FAILED", errorCode(t, err))
}

func TestTemplateService_Publish(t *testing.T) {
	env := newTemplateEnv(t)
	tmpl := testutil.TemplateFixture(func(tm *domain.ContractTemplate) {
		tm.Status = domain.TemplateStatusApproved
	})

	expectTemplateRead(env, t, tmpl)
	expectTemplateUpdate(env)

	published, err := env.svc.Publish(context.Background(), tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TemplateStatusActive, published.Status)
}

func TestTemplateService_Publish_RequiresApproval(t *testing.T) {
	env := newTemplateEnv(t)
	tmpl := testutil.TemplateFixture(func(tm *domain.ContractTemplate) {
		tm.Status = domain.TemplateStatusDraft
		tm.ApprovedBy = nil
		tm.ApprovedAt = nil
	})

	expectTemplateRead(env, t, tmpl)

	_, err := env.svc.Publish(context.Background(), tmpl.ID)
	require.Error(t, err)
	assert.Equal(t, "PRECONDITION_FAILED", errorCode(t, err))
}

func TestTemplateService_CreateNewVersion(t *testing.T) {
	env := newTemplateEnv(t)
	tmpl := testutil.TemplateFixture(func(tm *domain.ContractTemplate) {
		tm.Version = "1.2.0"
		tm.Stats = domain.UsageStats{ContractCount: 14}
	})

	expectTemplateRead(env, t, tmpl)
	expectTemplateInsert(env)
	expectTemplateUpdate(env) // predecessor is deprecated

	newBody := "Revised agreement between {{company_name}} and {{client_email}} effective {{start_date}}."
	next, err := env.svc.CreateNewVersion(context.Background(), tmpl.ID, &service.UpdateTemplateRequest{
		Body: &newBody,
	}, "author-2")
	require.NoError(t, err)

	assert.Equal(t, "1.3.0", next.Version)
	require.NotNil(t, next.PreviousVersionID)
	assert.Equal(t, tmpl.ID, *next.PreviousVersionID)
	assert.Equal(t, domain.TemplateStatusDraft, next.Status)
	assert.Equal(t, newBody, next.Body)
	assert.Equal(t, "author-2", next.CreatedBy)
	// statistics and approval start over
	assert.Zero(t, next.Stats.ContractCount)
	assert.Nil(t, next.ApprovedAt)

	env.db.ExpectationsWereMet(t)
}

func TestTemplateService_CreateNewVersion_BadVersion(t *testing.T) {
	env := newTemplateEnv(t)
	tmpl := testutil.TemplateFixture(func(tm *domain.ContractTemplate) {
		tm.Version = "not-semver"
	})

	expectTemplateRead(env, t, tmpl)

	_, err := env.svc.CreateNewVersion(context.Background(), tmpl.ID, nil, "author-1")
	require.Error(t, err)
	assert.Equal(t, "INTERNAL_ERROR", errorCode(t, err))
}

func TestTemplateService_Update(t *testing.T) {
	env := newTemplateEnv(t)
	tmpl := testutil.TemplateFixture(func(tm *domain.ContractTemplate) {
		tm.Status = domain.TemplateStatusDraft
	})

	expectTemplateRead(env, t, tmpl)
	expectContractCount(env, 0)
	expectTemplateUpdate(env)

	newBody := "Patched body with {{company_name}}."
	updated, err := env.svc.Update(context.Background(), tmpl.ID, &service.UpdateTemplateRequest{
		Body: &newBody,
	})
	require.NoError(t, err)
	assert.Equal(t, newBody, updated.Body)
}

func TestTemplateService_Update_ImmutableWhenReferenced(t *testing.T) {
	env := newTemplateEnv(t)
	tmpl := testutil.TemplateFixture()

	expectTemplateRead(env, t, tmpl)
	expectContractCount(env, 3)

	newBody := "never applied"
	_, err := env.svc.Update(context.Background(), tmpl.ID, &service.UpdateTemplateRequest{
		Body: &newBody,
	})
	require.Error(t, err)
	assert.Equal(t, "PRECONDITION_FAILED", errorCode(t, err))

	env.db.ExpectationsWereMet(t)
}

func TestTemplateService_Clone(t *testing.T) {
	env := newTemplateEnv(t)
	tmpl := testutil.TemplateFixture()

	expectTemplateRead(env, t, tmpl)
	expectTemplateInsert(env)

	clone, err := env.svc.Clone(context.Background(), tmpl.ID, "Service Agreement (Copy)", "author-3")
	require.NoError(t, err)

	assert.Equal(t, "Service Agreement (Copy)", clone.Name)
	assert.Equal(t, service.InitialVersion, clone.Version)
	assert.Equal(t, domain.TemplateStatusDraft, clone.Status)
	assert.Equal(t, tmpl.Body, clone.Body)
	assert.Nil(t, clone.ApprovedBy)
	assert.Nil(t, clone.PreviousVersionID)
}

func TestTemplateService_Delete_SoftArchives(t *testing.T) {
	env := newTemplateEnv(t)
	tmpl := testutil.TemplateFixture()

	expectTemplateRead(env, t, tmpl)
	expectTemplateUpdate(env)

	require.NoError(t, env.svc.Delete(context.Background(), tmpl.ID, false))
}

func TestTemplateService_Delete_HardBlockedWhenReferenced(t *testing.T) {
	env := newTemplateEnv(t)
	tmpl := testutil.TemplateFixture()

	expectTemplateRead(env, t, tmpl)
	expectContractCount(env, 2)

	err := env.svc.Delete(context.Background(), tmpl.ID, true)
	require.Error(t, err)
	assert.Equal(t, "PRECONDITION_FAILED", errorCode(t, err))
}
