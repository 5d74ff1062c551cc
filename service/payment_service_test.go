package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"aviator/events"
	"aviator/models"
)

func defaultPaymentLimits() PaymentLimits {
	return PaymentLimits{
		MinDeposit:    decimal.NewFromInt(10),
		MaxDeposit:    decimal.NewFromInt(300000),
		MinWithdrawal: decimal.NewFromInt(100),
	}
}

func newPaymentServiceMocks() (*MockUnitOfWork, *MockUnitOfWorkFactory, *MockUserRepository, *MockTransactionRepository, *MockPaymentProvider) {
	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockUserRepo := new(MockUserRepository)
	mockTxnRepo := new(MockTransactionRepository)
	mockProvider := new(MockPaymentProvider)

	mockUoW.SetRepositories(mockUserRepo, nil, nil, mockTxnRepo, nil)
	return mockUoW, mockFactory, mockUserRepo, mockTxnRepo, mockProvider
}

func TestPaymentService_InitiateDeposit(t *testing.T) {
	ctx := context.Background()

	mockUoW, mockFactory, mockUserRepo, mockTxnRepo, mockProvider := newPaymentServiceMocks()
	service := NewPaymentService(mockFactory, mockProvider, defaultPaymentLimits())

	amount := decimal.NewFromInt(200)

	// Mock expectations
	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockUserRepo.On("GetByID", ctx, int64(7)).Return(&models.User{ID: 7}, nil)
	mockProvider.On("RequestDeposit", ctx, "254712345678", mock.AnythingOfType("string"),
		mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(amount) }),
	).Return("ws_CO_0001", nil)

	mockTxnRepo.On("Create", ctx, mock.MatchedBy(func(txn *models.Transaction) bool {
		return txn.UserID == 7 &&
			txn.Type == models.TransactionTypeDeposit &&
			txn.Status == models.TransactionStatusPending &&
			txn.Amount.Equal(amount) &&
			txn.BalanceBefore.IsZero() &&
			txn.BalanceAfter.IsZero() &&
			txn.CheckoutID != nil && *txn.CheckoutID == "ws_CO_0001" &&
			txn.PhoneNumber != nil && *txn.PhoneNumber == "254712345678"
	})).Return(nil)

	txn, err := service.InitiateDeposit(ctx, 7, "254712345678", amount)

	assert.NoError(t, err)
	assert.NotNil(t, txn)
	assert.Equal(t, models.TransactionStatusPending, txn.Status)
	assert.Contains(t, txn.Reference, "AV")

	mockFactory.AssertExpectations(t)
	mockProvider.AssertExpectations(t)
	mockTxnRepo.AssertExpectations(t)
}

func TestPaymentService_InitiateDeposit_Validation(t *testing.T) {
	ctx := context.Background()

	_, mockFactory, _, _, mockProvider := newPaymentServiceMocks()
	service := NewPaymentService(mockFactory, mockProvider, defaultPaymentLimits())

	tests := []struct {
		name   string
		phone  string
		amount decimal.Decimal
	}{
		{"below minimum", "254712345678", decimal.NewFromInt(5)},
		{"above maximum", "254712345678", decimal.NewFromInt(300001)},
		{"fractional cents", "254712345678", decimal.RequireFromString("100.005")},
		{"bad phone", "0712345678", decimal.NewFromInt(100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn, err := service.InitiateDeposit(ctx, 7, tt.phone, tt.amount)

			assert.Nil(t, txn)
			assert.True(t, models.IsValidation(err))
		})
	}

	mockFactory.AssertNotCalled(t, "Create")
	mockProvider.AssertNotCalled(t, "RequestDeposit")
}

func TestPaymentService_InitiateDeposit_ProviderError(t *testing.T) {
	ctx := context.Background()

	mockUoW, mockFactory, mockUserRepo, mockTxnRepo, mockProvider := newPaymentServiceMocks()
	service := NewPaymentService(mockFactory, mockProvider, defaultPaymentLimits())

	// Mock expectations
	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockUserRepo.On("GetByID", ctx, int64(7)).Return(&models.User{ID: 7}, nil)
	mockProvider.On("RequestDeposit", ctx, "254712345678", mock.Anything, mock.Anything).
		Return("", errors.New("provider unreachable"))

	txn, err := service.InitiateDeposit(ctx, 7, "254712345678", decimal.NewFromInt(200))

	assert.Nil(t, txn)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to request deposit")

	// Nothing is recorded for a checkout that never started
	mockTxnRepo.AssertNotCalled(t, "Create")
	mockUoW.AssertNotCalled(t, "Commit")
}

func TestPaymentService_HandleDepositCallback_Success(t *testing.T) {
	ctx := context.Background()

	mockUoW, mockFactory, mockUserRepo, mockTxnRepo, mockProvider := newPaymentServiceMocks()
	service := NewPaymentService(mockFactory, mockProvider, defaultPaymentLimits())

	checkoutID := "ws_CO_0001"
	receipt := "QGH7TY12XK"
	pending := &models.Transaction{
		ID:         55,
		UserID:     7,
		Type:       models.TransactionTypeDeposit,
		Amount:     decimal.NewFromInt(200),
		Reference:  "AV17000000001a2b3c4d",
		Status:     models.TransactionStatusPending,
		CheckoutID: &checkoutID,
	}
	player := &models.User{ID: 7, Balance: decimal.NewFromInt(80)}

	// Mock expectations
	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockTxnRepo.On("GetByCheckoutIDForUpdate", ctx, checkoutID).Return(pending, nil)
	mockUserRepo.On("GetForUpdate", ctx, int64(7)).Return(player, nil)
	mockUserRepo.On("UpdateBalances", ctx, int64(7),
		mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(decimal.NewFromInt(280)) }),
		mock.MatchedBy(func(d decimal.Decimal) bool { return d.IsZero() }),
	).Return(nil)
	mockTxnRepo.On("Complete", ctx, int64(55),
		mock.MatchedBy(func(r *string) bool { return r != nil && *r == receipt }),
		mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(decimal.NewFromInt(80)) }),
		mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(decimal.NewFromInt(280)) }),
	).Return(nil)

	err := service.HandleDepositCallback(ctx, checkoutID, 0, &receipt)

	assert.NoError(t, err)

	published := mockUoW.PublishedEvents()
	assert.Len(t, published, 2)
	assert.Equal(t, events.EventTypeBalanceChanged, published[0].Type())
	completed, ok := published[1].(events.PaymentCompletedEvent)
	assert.True(t, ok)
	assert.Equal(t, models.TransactionStatusCompleted, completed.Status)
	assert.Equal(t, receipt, completed.Receipt)

	mockTxnRepo.AssertExpectations(t)
	mockUserRepo.AssertExpectations(t)
	mockUoW.AssertExpectations(t)
}

func TestPaymentService_HandleDepositCallback_Replay(t *testing.T) {
	ctx := context.Background()

	mockUoW, mockFactory, mockUserRepo, mockTxnRepo, mockProvider := newPaymentServiceMocks()
	service := NewPaymentService(mockFactory, mockProvider, defaultPaymentLimits())

	checkoutID := "ws_CO_0001"
	alreadyDone := &models.Transaction{
		ID:     55,
		UserID: 7,
		Type:   models.TransactionTypeDeposit,
		Amount: decimal.NewFromInt(200),
		Status: models.TransactionStatusCompleted,
	}

	// Mock expectations
	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockTxnRepo.On("GetByCheckoutIDForUpdate", ctx, checkoutID).Return(alreadyDone, nil)

	receipt := "QGH7TY12XK"
	err := service.HandleDepositCallback(ctx, checkoutID, 0, &receipt)

	// Replays are silently absorbed, no double credit
	assert.NoError(t, err)
	mockUserRepo.AssertNotCalled(t, "GetForUpdate")
	mockTxnRepo.AssertNotCalled(t, "Complete")
	assert.Empty(t, mockUoW.PublishedEvents())
}

func TestPaymentService_HandleDepositCallback_UnknownCheckout(t *testing.T) {
	ctx := context.Background()

	mockUoW, mockFactory, _, mockTxnRepo, mockProvider := newPaymentServiceMocks()
	service := NewPaymentService(mockFactory, mockProvider, defaultPaymentLimits())

	// Mock expectations
	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockTxnRepo.On("GetByCheckoutIDForUpdate", ctx, "ws_CO_nope").Return(nil, nil)

	err := service.HandleDepositCallback(ctx, "ws_CO_nope", 0, nil)

	assert.True(t, models.IsValidation(err))
}

func TestPaymentService_HandleDepositCallback_Failure(t *testing.T) {
	ctx := context.Background()

	mockUoW, mockFactory, mockUserRepo, mockTxnRepo, mockProvider := newPaymentServiceMocks()
	service := NewPaymentService(mockFactory, mockProvider, defaultPaymentLimits())

	checkoutID := "ws_CO_0001"
	pending := &models.Transaction{
		ID:     55,
		UserID: 7,
		Type:   models.TransactionTypeDeposit,
		Amount: decimal.NewFromInt(200),
		Status: models.TransactionStatusPending,
	}

	// Mock expectations
	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockTxnRepo.On("GetByCheckoutIDForUpdate", ctx, checkoutID).Return(pending, nil)
	mockTxnRepo.On("MarkFailed", ctx, int64(55), "provider result code 1032").Return(nil)

	err := service.HandleDepositCallback(ctx, checkoutID, 1032, nil)

	assert.NoError(t, err)

	// No money moved, only the failed verdict is announced
	mockUserRepo.AssertNotCalled(t, "GetForUpdate")
	published := mockUoW.PublishedEvents()
	assert.Len(t, published, 1)
	completed, ok := published[0].(events.PaymentCompletedEvent)
	assert.True(t, ok)
	assert.Equal(t, models.TransactionStatusFailed, completed.Status)

	mockTxnRepo.AssertExpectations(t)
}

func TestPaymentService_InitiateWithdrawal(t *testing.T) {
	ctx := context.Background()

	mockUoW, mockFactory, mockUserRepo, mockTxnRepo, mockProvider := newPaymentServiceMocks()
	service := NewPaymentService(mockFactory, mockProvider, defaultPaymentLimits())

	amount := decimal.NewFromInt(200)
	player := &models.User{
		ID:           7,
		Balance:      decimal.NewFromInt(500),
		BonusBalance: decimal.NewFromInt(40),
	}

	// Mock expectations
	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockUserRepo.On("GetForUpdate", ctx, int64(7)).Return(player, nil)
	// Only the primary balance funds the payout; the bonus stays put
	mockUserRepo.On("UpdateBalances", ctx, int64(7),
		mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(decimal.NewFromInt(300)) }),
		mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(decimal.NewFromInt(40)) }),
	).Return(nil)
	mockProvider.On("RequestWithdrawal", ctx, "254712345678", mock.AnythingOfType("string"),
		mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(amount) }),
	).Return("ws_CO_0002", nil)

	mockTxnRepo.On("Create", ctx, mock.MatchedBy(func(txn *models.Transaction) bool {
		return txn.UserID == 7 &&
			txn.Type == models.TransactionTypeWithdrawal &&
			txn.Status == models.TransactionStatusPending &&
			txn.Amount.Equal(amount) &&
			txn.BalanceBefore.Equal(decimal.NewFromInt(540)) &&
			txn.BalanceAfter.Equal(decimal.NewFromInt(340)) &&
			txn.CheckoutID != nil && *txn.CheckoutID == "ws_CO_0002"
	})).Return(nil)

	txn, err := service.InitiateWithdrawal(ctx, 7, "254712345678", amount)

	assert.NoError(t, err)
	assert.NotNil(t, txn)

	// The escrow debit is announced right away
	published := mockUoW.PublishedEvents()
	assert.Len(t, published, 1)
	assert.Equal(t, events.EventTypeBalanceChanged, published[0].Type())

	mockUserRepo.AssertExpectations(t)
	mockProvider.AssertExpectations(t)
	mockTxnRepo.AssertExpectations(t)
}

func TestPaymentService_InitiateWithdrawal_BonusNotWithdrawable(t *testing.T) {
	ctx := context.Background()

	mockUoW, mockFactory, mockUserRepo, mockTxnRepo, mockProvider := newPaymentServiceMocks()
	service := NewPaymentService(mockFactory, mockProvider, defaultPaymentLimits())

	// Plenty of bonus, not enough primary
	player := &models.User{
		ID:           7,
		Balance:      decimal.NewFromInt(50),
		BonusBalance: decimal.NewFromInt(5000),
	}

	// Mock expectations
	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockUserRepo.On("GetForUpdate", ctx, int64(7)).Return(player, nil)

	txn, err := service.InitiateWithdrawal(ctx, 7, "254712345678", decimal.NewFromInt(200))

	assert.Nil(t, txn)
	assert.True(t, models.IsInsufficientFunds(err))

	mockProvider.AssertNotCalled(t, "RequestWithdrawal")
	mockTxnRepo.AssertNotCalled(t, "Create")
	mockUoW.AssertNotCalled(t, "Commit")
}

func TestPaymentService_InitiateWithdrawal_BelowMinimum(t *testing.T) {
	ctx := context.Background()

	_, mockFactory, _, _, mockProvider := newPaymentServiceMocks()
	service := NewPaymentService(mockFactory, mockProvider, defaultPaymentLimits())

	txn, err := service.InitiateWithdrawal(ctx, 7, "254712345678", decimal.NewFromInt(50))

	assert.Nil(t, txn)
	assert.True(t, models.IsValidation(err))
	mockFactory.AssertNotCalled(t, "Create")
}

func TestPaymentService_HandleWithdrawalCallback_Success(t *testing.T) {
	ctx := context.Background()

	mockUoW, mockFactory, mockUserRepo, mockTxnRepo, mockProvider := newPaymentServiceMocks()
	service := NewPaymentService(mockFactory, mockProvider, defaultPaymentLimits())

	checkoutID := "ws_CO_0002"
	receipt := "QGH8AB34CD"
	pending := &models.Transaction{
		ID:            60,
		UserID:        7,
		Type:          models.TransactionTypeWithdrawal,
		Amount:        decimal.NewFromInt(200),
		BalanceBefore: decimal.NewFromInt(540),
		BalanceAfter:  decimal.NewFromInt(340),
		Status:        models.TransactionStatusPending,
	}

	// Mock expectations
	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockTxnRepo.On("GetByCheckoutIDForUpdate", ctx, checkoutID).Return(pending, nil)
	// Balances were settled at initiation; completion just reaffirms them
	mockTxnRepo.On("Complete", ctx, int64(60),
		mock.MatchedBy(func(r *string) bool { return r != nil && *r == receipt }),
		mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(decimal.NewFromInt(540)) }),
		mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(decimal.NewFromInt(340)) }),
	).Return(nil)

	err := service.HandleWithdrawalCallback(ctx, checkoutID, 0, &receipt)

	assert.NoError(t, err)
	mockUserRepo.AssertNotCalled(t, "GetForUpdate")

	published := mockUoW.PublishedEvents()
	assert.Len(t, published, 1)
	completed, ok := published[0].(events.PaymentCompletedEvent)
	assert.True(t, ok)
	assert.Equal(t, models.TransactionStatusCompleted, completed.Status)

	mockTxnRepo.AssertExpectations(t)
}

func TestPaymentService_HandleWithdrawalCallback_FailureRefunds(t *testing.T) {
	ctx := context.Background()

	mockUoW, mockFactory, mockUserRepo, mockTxnRepo, mockProvider := newPaymentServiceMocks()
	service := NewPaymentService(mockFactory, mockProvider, defaultPaymentLimits())

	checkoutID := "ws_CO_0002"
	pending := &models.Transaction{
		ID:        60,
		UserID:    7,
		Type:      models.TransactionTypeWithdrawal,
		Amount:    decimal.NewFromInt(200),
		Reference: "AV17000000009z8y7x6w",
		Status:    models.TransactionStatusPending,
	}
	// Balance as it stands after the escrow debit
	player := &models.User{
		ID:           7,
		Balance:      decimal.NewFromInt(300),
		BonusBalance: decimal.NewFromInt(40),
	}

	// Mock expectations
	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockTxnRepo.On("GetByCheckoutIDForUpdate", ctx, checkoutID).Return(pending, nil)
	mockTxnRepo.On("MarkFailed", ctx, int64(60), "provider result code 1").Return(nil)

	// The escrowed amount goes back to the primary balance
	mockUserRepo.On("GetForUpdate", ctx, int64(7)).Return(player, nil)
	mockUserRepo.On("UpdateBalances", ctx, int64(7),
		mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(decimal.NewFromInt(500)) }),
		mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(decimal.NewFromInt(40)) }),
	).Return(nil)
	mockTxnRepo.On("Create", ctx, mock.MatchedBy(func(txn *models.Transaction) bool {
		return txn.Type == models.TransactionTypeRefund &&
			txn.Amount.Equal(decimal.NewFromInt(200)) &&
			txn.Reference != pending.Reference &&
			txn.Status == models.TransactionStatusCompleted
	})).Return(nil)

	err := service.HandleWithdrawalCallback(ctx, checkoutID, 1, nil)

	assert.NoError(t, err)

	published := mockUoW.PublishedEvents()
	assert.Len(t, published, 2)
	assert.Equal(t, events.EventTypeBalanceChanged, published[0].Type())
	completed, ok := published[1].(events.PaymentCompletedEvent)
	assert.True(t, ok)
	assert.Equal(t, models.TransactionStatusFailed, completed.Status)

	mockTxnRepo.AssertExpectations(t)
	mockUserRepo.AssertExpectations(t)
}

func TestPaymentService_ExpireStalePayments(t *testing.T) {
	ctx := context.Background()

	mockUoW, mockFactory, mockUserRepo, mockTxnRepo, mockProvider := newPaymentServiceMocks()
	service := NewPaymentService(mockFactory, mockProvider, defaultPaymentLimits())

	staleDeposit := &models.Transaction{
		ID:     70,
		UserID: 7,
		Type:   models.TransactionTypeDeposit,
		Amount: decimal.NewFromInt(100),
		Status: models.TransactionStatusPending,
	}
	staleWithdrawal := &models.Transaction{
		ID:        71,
		UserID:    8,
		Type:      models.TransactionTypeWithdrawal,
		Amount:    decimal.NewFromInt(150),
		Reference: "AV17000000002b3c4d5e",
		Status:    models.TransactionStatusPending,
	}
	player := &models.User{ID: 8, Balance: decimal.NewFromInt(10)}

	// Mock expectations
	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockTxnRepo.On("ListStalePending", ctx, mock.AnythingOfType("time.Time")).
		Return([]*models.Transaction{staleDeposit, staleWithdrawal}, nil)

	mockTxnRepo.On("Cancel", ctx, int64(70), "expired without provider confirmation").Return(nil)
	mockTxnRepo.On("Cancel", ctx, int64(71), "expired without provider confirmation").Return(nil)

	// Only the withdrawal held money that needs to come back
	mockUserRepo.On("GetForUpdate", ctx, int64(8)).Return(player, nil)
	mockUserRepo.On("UpdateBalances", ctx, int64(8),
		mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(decimal.NewFromInt(160)) }),
		mock.Anything,
	).Return(nil)
	mockTxnRepo.On("Create", ctx, mock.MatchedBy(func(txn *models.Transaction) bool {
		return txn.Type == models.TransactionTypeRefund && txn.UserID == 8
	})).Return(nil)

	expired, err := service.ExpireStalePayments(ctx, 30*time.Minute)

	assert.NoError(t, err)
	assert.Equal(t, 2, expired)

	mockTxnRepo.AssertExpectations(t)
	mockUserRepo.AssertExpectations(t)
}

func TestPaymentService_ExpireStalePayments_CallbackWinsRace(t *testing.T) {
	ctx := context.Background()

	mockUoW, mockFactory, mockUserRepo, mockTxnRepo, mockProvider := newPaymentServiceMocks()
	service := NewPaymentService(mockFactory, mockProvider, defaultPaymentLimits())

	contested := &models.Transaction{
		ID:     72,
		UserID: 9,
		Type:   models.TransactionTypeWithdrawal,
		Amount: decimal.NewFromInt(100),
		Status: models.TransactionStatusPending,
	}

	// Mock expectations
	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockTxnRepo.On("ListStalePending", ctx, mock.AnythingOfType("time.Time")).
		Return([]*models.Transaction{contested}, nil)
	// The provider callback completed this entry between the scan and the sweep
	mockTxnRepo.On("Cancel", ctx, int64(72), mock.AnythingOfType("string")).
		Return(models.StateConflictError{Reason: "transaction 72 is not pending"})

	expired, err := service.ExpireStalePayments(ctx, 30*time.Minute)

	assert.NoError(t, err)
	assert.Equal(t, 0, expired)

	// No refund for an entry the sweep did not cancel
	mockUserRepo.AssertNotCalled(t, "GetForUpdate")
	mockUoW.AssertNotCalled(t, "Commit")
}
