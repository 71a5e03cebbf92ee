package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealflow/sealflow-backend/internal/contract/domain"
	"github.com/sealflow/sealflow-backend/internal/provider"
	"github.com/sealflow/sealflow-backend/pkg/errors"
	"github.com/sealflow/sealflow-backend/pkg/testutil"
)

func providerContract(signerCount int) *domain.SignedContract {
	synced := time.Now().UTC().Add(-time.Hour)
	return testutil.ContractFixture(signerCount, func(c *domain.SignedContract) {
		c.Integration = &domain.Integration{
			Provider:       provider.NameDocuSign,
			ExternalID:     "env-1",
			ExternalStatus: "sent",
			SyncedAt:       &synced,
		}
	})
}

func expectExternalRead(env *workflowEnv, t *testing.T, c *domain.SignedContract) {
	env.db.ExpectQuery("integration->>'provider'").
		WillReturnRows(contractRows(t, c))
}

func TestApplyProviderSnapshot_CompletesAndSeals(t *testing.T) {
	env := newWorkflowEnv(t)
	c := providerContract(2)

	signedAt := time.Now().UTC().Add(-10 * time.Minute)
	completedAt := time.Now().UTC().Add(-5 * time.Minute)
	snap := &provider.StatusSnapshot{
		Provider:       provider.NameDocuSign,
		ExternalID:     "env-1",
		RawStatus:      "completed",
		ContractStatus: domain.ContractStatusFullySigned,
		Signers: []provider.SignerSnapshot{
			{Email: "signer1@example.com", Status: domain.SignerStatusSigned, At: &signedAt},
			{Email: "SIGNER2@example.com", Status: domain.SignerStatusSigned, At: &completedAt},
		},
		CompletedAt: &completedAt,
		ObservedAt:  time.Now().UTC(),
	}

	expectExternalRead(env, t, c)
	expectContractRead(env, t, c)
	expectContractUpdate(env, 2)

	merged, err := env.svc.ApplyProviderSnapshot(context.Background(), snap)
	require.NoError(t, err)

	assert.Equal(t, domain.ContractStatusFullySigned, merged.Status)
	assert.Len(t, merged.Security.FinalHash, 64)
	require.NotNil(t, merged.Dates.Completed)
	assert.True(t, merged.Dates.Completed.Equal(completedAt))

	// signer matching is case-insensitive on email
	for _, id := range []string{"signer-1", "signer-2"} {
		signer := merged.FindSigner(id)
		assert.Equal(t, domain.SignerStatusSigned, signer.Status)
		require.NotNil(t, signer.Signature)
		assert.Equal(t, "external", signer.Signature.Type)
		require.NotNil(t, signer.SignedAt)
	}

	assert.Equal(t, "completed", merged.Integration.ExternalStatus)
	require.NotNil(t, merged.Integration.SyncedAt)
	assert.True(t, merged.Integration.SyncedAt.Equal(snap.ObservedAt))

	env.db.ExpectationsWereMet(t)
}

func TestApplyProviderSnapshot_ReplayIsIdempotent(t *testing.T) {
	env := newWorkflowEnv(t)
	c := providerContract(1)

	signedAt := time.Now().UTC().Add(-10 * time.Minute)
	snap := &provider.StatusSnapshot{
		Provider:       provider.NameDocuSign,
		ExternalID:     "env-1",
		RawStatus:      "completed",
		ContractStatus: domain.ContractStatusFullySigned,
		Signers: []provider.SignerSnapshot{
			{Email: "signer1@example.com", Status: domain.SignerStatusSigned, At: &signedAt},
		},
		CompletedAt: &signedAt,
		ObservedAt:  time.Now().UTC(),
	}

	expectExternalRead(env, t, c)
	expectContractRead(env, t, c)
	expectContractUpdate(env, 2)

	first, err := env.svc.ApplyProviderSnapshot(context.Background(), snap)
	require.NoError(t, err)
	firstHash := first.Security.FinalHash
	firstSignedAt := *first.FindSigner("signer-1").SignedAt

	// the same webhook delivered again converges on the same state
	expectExternalRead(env, t, first)
	expectContractRead(env, t, first)
	expectContractUpdate(env, 3)

	second, err := env.svc.ApplyProviderSnapshot(context.Background(), snap)
	require.NoError(t, err)

	assert.Equal(t, domain.ContractStatusFullySigned, second.Status)
	assert.Equal(t, firstHash, second.Security.FinalHash)
	assert.True(t, second.FindSigner("signer-1").SignedAt.Equal(firstSignedAt))

	env.db.ExpectationsWereMet(t)
}

func TestApplyProviderSnapshot_NeverRegresses(t *testing.T) {
	env := newWorkflowEnv(t)
	c := providerContract(1)
	testutil.SignSigner(c, "signer-1", time.Now().UTC().Add(-time.Hour))
	c.Status = domain.ContractStatusFullySigned
	c.Security.FinalHash = c.Security.OriginalHash
	completed := time.Now().UTC().Add(-time.Hour)
	c.Dates.Completed = &completed

	// an out-of-order webhook carrying an older state
	snap := &provider.StatusSnapshot{
		Provider:       provider.NameDocuSign,
		ExternalID:     "env-1",
		RawStatus:      "delivered",
		ContractStatus: domain.ContractStatusSent,
		Signers: []provider.SignerSnapshot{
			{Email: "signer1@example.com", Status: domain.SignerStatusOpened},
		},
		ObservedAt: time.Now().UTC(),
	}

	expectExternalRead(env, t, c)
	expectContractRead(env, t, c)
	expectContractUpdate(env, 2)

	merged, err := env.svc.ApplyProviderSnapshot(context.Background(), snap)
	require.NoError(t, err)

	assert.Equal(t, domain.ContractStatusFullySigned, merged.Status)
	assert.Equal(t, domain.SignerStatusSigned, merged.FindSigner("signer-1").Status)

	env.db.ExpectationsWereMet(t)
}

func TestApplyProviderSnapshot_Decline(t *testing.T) {
	env := newWorkflowEnv(t)
	c := providerContract(2)

	declinedAt := time.Now().UTC()
	snap := &provider.StatusSnapshot{
		Provider:       provider.NameDocuSign,
		ExternalID:     "env-1",
		RawStatus:      "declined",
		ContractStatus: domain.ContractStatusDeclined,
		Signers: []provider.SignerSnapshot{
			{Email: "signer2@example.com", Status: domain.SignerStatusDeclined, At: &declinedAt, Declined: "no deal"},
		},
		ObservedAt: time.Now().UTC(),
	}

	expectExternalRead(env, t, c)
	expectContractRead(env, t, c)
	expectContractUpdate(env, 2)

	merged, err := env.svc.ApplyProviderSnapshot(context.Background(), snap)
	require.NoError(t, err)

	assert.Equal(t, domain.ContractStatusDeclined, merged.Status)
	signer := merged.FindSigner("signer-2")
	assert.Equal(t, domain.SignerStatusDeclined, signer.Status)
	assert.Equal(t, "no deal", signer.DeclineReason)
	// no signature is ever synthesized for a declined signer
	assert.Nil(t, signer.Signature)
}

func TestApplyProviderSnapshot_SignerEventsOutpaceEnvelope(t *testing.T) {
	env := newWorkflowEnv(t)
	c := providerContract(2)

	// recipient-level events can land before the vendor's envelope status
	// catches up; the signer conjunction decides, not the envelope
	signedAt := time.Now().UTC().Add(-10 * time.Minute)
	snap := &provider.StatusSnapshot{
		Provider:       provider.NameDocuSign,
		ExternalID:     "env-1",
		RawStatus:      "sent",
		ContractStatus: domain.ContractStatusSent,
		Signers: []provider.SignerSnapshot{
			{Email: "signer1@example.com", Status: domain.SignerStatusSigned, At: &signedAt},
			{Email: "signer2@example.com", Status: domain.SignerStatusSigned, At: &signedAt},
		},
		ObservedAt: time.Now().UTC(),
	}

	expectExternalRead(env, t, c)
	expectContractRead(env, t, c)
	expectContractUpdate(env, 2)

	merged, err := env.svc.ApplyProviderSnapshot(context.Background(), snap)
	require.NoError(t, err)

	assert.Equal(t, 2, merged.SignedCount())
	assert.Equal(t, domain.ContractStatusFullySigned, merged.Status)
	assert.Len(t, merged.Security.FinalHash, 64)
	require.NotNil(t, merged.Dates.Completed)

	env.db.ExpectationsWereMet(t)
}

func TestApplyProviderSnapshot_DerivesPartiallySigned(t *testing.T) {
	env := newWorkflowEnv(t)
	c := providerContract(2)

	signedAt := time.Now().UTC().Add(-10 * time.Minute)
	snap := &provider.StatusSnapshot{
		Provider:       provider.NameDocuSign,
		ExternalID:     "env-1",
		RawStatus:      "sent",
		ContractStatus: domain.ContractStatusSent,
		Signers: []provider.SignerSnapshot{
			{Email: "signer1@example.com", Status: domain.SignerStatusSigned, At: &signedAt},
		},
		ObservedAt: time.Now().UTC(),
	}

	expectExternalRead(env, t, c)
	expectContractRead(env, t, c)
	expectContractUpdate(env, 2)

	merged, err := env.svc.ApplyProviderSnapshot(context.Background(), snap)
	require.NoError(t, err)

	assert.Equal(t, domain.ContractStatusPartiallySigned, merged.Status)
	assert.Empty(t, merged.Security.FinalHash)
	assert.Nil(t, merged.Dates.Completed)

	env.db.ExpectationsWereMet(t)
}

func TestApplyProviderSnapshot_UnknownExternalID(t *testing.T) {
	env := newWorkflowEnv(t)

	env.db.ExpectQuery("integration->>'provider'").
		WillReturnRows(sqlmock.NewRows(contractCols))

	_, err := env.svc.ApplyProviderSnapshot(context.Background(), &provider.StatusSnapshot{
		Provider:   provider.NameDocuSign,
		ExternalID: "never-seen",
		ObservedAt: time.Now().UTC(),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}
