package main

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/credits"
	"github.com/phrazzld/quill-api/internal/mocks"
	"github.com/phrazzld/quill-api/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReconcileFixture(t *testing.T) (*mocks.MemoryCreditStore, service.AccountService) {
	t.Helper()
	creditStore := mocks.NewMemoryCreditStore()
	ledger, err := credits.NewLedger(creditStore, discardLogger())
	require.NoError(t, err)
	accounts, err := service.NewAccountService(mocks.NewMemoryUserStore(creditStore), ledger, 0, discardLogger())
	require.NoError(t, err)
	return creditStore, accounts
}

func TestReconcileBalances_AllConsistent(t *testing.T) {
	creditStore, accounts := newReconcileFixture(t)
	for i := 0; i < 5; i++ {
		creditStore.AddOwner(uuid.New(), 10*i)
	}

	reports, err := reconcileBalances(context.Background(), creditStore, accounts, 2, discardLogger())
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestReconcileBalances_ReportsDrift(t *testing.T) {
	creditStore, accounts := newReconcileFixture(t)

	healthy := uuid.New()
	creditStore.AddOwner(healthy, 4)
	drifted := uuid.New()
	creditStore.AddOwner(drifted, 7)
	creditStore.SetBalanceUnsafe(drifted, 9)

	reports, err := reconcileBalances(context.Background(), creditStore, accounts, 1, discardLogger())
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, drifted, reports[0].OwnerID)
	assert.Equal(t, 9, reports[0].Balance)
	assert.Equal(t, 7, reports[0].LedgerSum)
	assert.False(t, reports[0].Consistent)
}

type failingAuditor struct{ err error }

func (f failingAuditor) Audit(context.Context, uuid.UUID) (credits.AuditReport, error) {
	return credits.AuditReport{}, f.err
}

func TestReconcileBalances_AuditError(t *testing.T) {
	creditStore, _ := newReconcileFixture(t)
	creditStore.AddOwner(uuid.New(), 1)
	boom := errors.New("boom")

	_, err := reconcileBalances(context.Background(), creditStore, failingAuditor{err: boom}, 4, discardLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestReconcileBalances_ZeroConcurrencyStillRuns(t *testing.T) {
	creditStore, accounts := newReconcileFixture(t)
	creditStore.AddOwner(uuid.New(), 3)

	reports, err := reconcileBalances(context.Background(), creditStore, accounts, 0, discardLogger())
	require.NoError(t, err)
	assert.Empty(t, reports)
}
