package repository

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aviator/models"
	"aviator/repository/testutil"
)

func TestTransactionRepository_Create(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	user, err := NewUserRepository(testDB.DB).Create(ctx, "254712000300", "ledger_user", decimal.NewFromInt(1000), decimal.Zero)
	require.NoError(t, err)

	repo := NewTransactionRepository(testDB.DB)

	t.Run("successful creation", func(t *testing.T) {
		txn := testutil.CreateTestTransaction(user.ID, models.TransactionTypeWin, decimal.RequireFromString("200.00"), "TXNaaaabbbbcccc")
		err := repo.Create(ctx, txn)
		require.NoError(t, err)

		assert.NotZero(t, txn.ID)
		assert.False(t, txn.CreatedAt.IsZero())
	})

	t.Run("duplicate reference rejected", func(t *testing.T) {
		txn := testutil.CreateTestTransaction(user.ID, models.TransactionTypeBet, decimal.NewFromInt(50), "TXNaaaabbbbcccc")
		err := repo.Create(ctx, txn)
		require.Error(t, err)
		assert.True(t, models.IsIntegrity(err))
	})

	t.Run("reference lookup", func(t *testing.T) {
		found, err := repo.GetByReference(ctx, "TXNaaaabbbbcccc")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, models.TransactionTypeWin, found.Type)
		assert.True(t, found.Amount.Equal(decimal.RequireFromString("200.00")))

		missing, err := repo.GetByReference(ctx, "TXNdoesnotexist")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})
}

func TestTransactionRepository_CheckoutLifecycle(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	user, err := NewUserRepository(testDB.DB).Create(ctx, "254712000310", "depositor", decimal.Zero, decimal.Zero)
	require.NoError(t, err)

	repo := NewTransactionRepository(testDB.DB)

	deposit := testutil.CreateTestPendingDeposit(user.ID, decimal.RequireFromString("500.00"), "AV1700000000aabbccdd", "ws_CO_11112222333344445555")
	require.NoError(t, repo.Create(ctx, deposit))

	t.Run("lookup by checkout id inside a transaction", func(t *testing.T) {
		tx, err := testDB.DB.Begin(ctx)
		require.NoError(t, err)
		defer tx.Rollback(ctx)

		txRepo := newTransactionRepositoryWithTx(tx)
		found, err := txRepo.GetByCheckoutIDForUpdate(ctx, "ws_CO_11112222333344445555")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, deposit.ID, found.ID)
		assert.Equal(t, models.TransactionStatusPending, found.Status)

		missing, err := txRepo.GetByCheckoutIDForUpdate(ctx, "ws_CO_00000000000000000000")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("complete sets balances and receipt", func(t *testing.T) {
		receipt := "QGH7TY12XK"
		err := repo.Complete(ctx, deposit.ID, &receipt, decimal.Zero, decimal.RequireFromString("500.00"))
		require.NoError(t, err)

		stored, err := repo.GetByReference(ctx, deposit.Reference)
		require.NoError(t, err)
		require.NotNil(t, stored)

		assert.Equal(t, models.TransactionStatusCompleted, stored.Status)
		require.NotNil(t, stored.Receipt)
		assert.Equal(t, receipt, *stored.Receipt)
		assert.True(t, stored.BalanceAfter.Equal(decimal.RequireFromString("500.00")))
		require.NotNil(t, stored.CompletedAt)
	})

	t.Run("replayed completion rejected", func(t *testing.T) {
		receipt := "QGH7TY12XK"
		err := repo.Complete(ctx, deposit.ID, &receipt, decimal.Zero, decimal.RequireFromString("500.00"))
		require.Error(t, err)
		assert.True(t, models.IsStateConflict(err))
	})

	t.Run("failed payment keeps reason", func(t *testing.T) {
		second := testutil.CreateTestPendingDeposit(user.ID, decimal.NewFromInt(100), "AV1700000001ddeeff00", "ws_CO_99998888777766665555")
		require.NoError(t, repo.Create(ctx, second))

		err := repo.MarkFailed(ctx, second.ID, "cancelled by user")
		require.NoError(t, err)

		stored, err := repo.GetByReference(ctx, second.Reference)
		require.NoError(t, err)
		assert.Equal(t, models.TransactionStatusFailed, stored.Status)
		assert.Equal(t, "cancelled by user", stored.Description)
	})
}

func TestTransactionRepository_ListStalePending(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	user, err := NewUserRepository(testDB.DB).Create(ctx, "254712000320", "stale_user", decimal.Zero, decimal.Zero)
	require.NoError(t, err)

	repo := NewTransactionRepository(testDB.DB)

	stale := testutil.CreateTestPendingDeposit(user.ID, decimal.NewFromInt(100), "AV1700000002aa11bb22", "ws_CO_00001111222233334444")
	require.NoError(t, repo.Create(ctx, stale))

	fresh := testutil.CreateTestPendingDeposit(user.ID, decimal.NewFromInt(200), "AV1700000003cc33dd44", "ws_CO_55556666777788889999")
	require.NoError(t, repo.Create(ctx, fresh))

	// Backdate one deposit past the cutoff
	_, err = testDB.DB.Exec(ctx, "UPDATE transactions SET created_at = NOW() - INTERVAL '1 hour' WHERE id = $1", stale.ID)
	require.NoError(t, err)

	cutoff := time.Now().Add(-30 * time.Minute)
	found, err := repo.ListStalePending(ctx, cutoff)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, stale.ID, found[0].ID)

	// Completed payments never show up even when old
	receipt := "QGHAAAA111"
	require.NoError(t, repo.Complete(ctx, stale.ID, &receipt, decimal.Zero, decimal.NewFromInt(100)))

	found, err = repo.ListStalePending(ctx, cutoff)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestTransactionRepository_ListByUser(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	user, err := NewUserRepository(testDB.DB).Create(ctx, "254712000330", "history_user", decimal.NewFromInt(1000), decimal.Zero)
	require.NoError(t, err)

	repo := NewTransactionRepository(testDB.DB)

	references := []string{"TXN000000000001", "TXN000000000002", "TXN000000000003"}
	for _, ref := range references {
		txn := testutil.CreateTestTransaction(user.ID, models.TransactionTypeBet, decimal.NewFromInt(10), ref)
		require.NoError(t, repo.Create(ctx, txn))
	}

	txns, err := repo.ListByUser(ctx, user.ID, 2)
	require.NoError(t, err)
	assert.Len(t, txns, 2)

	all, err := repo.ListByUser(ctx, user.ID, 50)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
