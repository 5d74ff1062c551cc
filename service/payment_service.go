package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"aviator/events"
	"aviator/models"
)

// PaymentLimits bounds deposit and withdrawal amounts
type PaymentLimits struct {
	MinDeposit    decimal.Decimal
	MaxDeposit    decimal.Decimal
	MinWithdrawal decimal.Decimal
}

// paymentService implements the PaymentService interface
type paymentService struct {
	uowFactory UnitOfWorkFactory
	provider   PaymentProvider
	limits     PaymentLimits
}

// NewPaymentService creates a new payment service
func NewPaymentService(uowFactory UnitOfWorkFactory, provider PaymentProvider, limits PaymentLimits) PaymentService {
	return &paymentService{
		uowFactory: uowFactory,
		provider:   provider,
		limits:     limits,
	}
}

// InitiateDeposit records a pending deposit and asks the provider to
// collect the money. The balance is untouched until the provider
// confirms via callback.
func (s *paymentService) InitiateDeposit(ctx context.Context, userID int64, phoneNumber string, amount decimal.Decimal) (*models.Transaction, error) {
	if err := models.ValidatePhoneNumber(phoneNumber); err != nil {
		return nil, err
	}
	if err := s.validateAmount(amount, s.limits.MinDeposit, s.limits.MaxDeposit); err != nil {
		return nil, err
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback() // No-op if already committed

	user, err := uow.UserRepository().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, models.ValidationError{Field: "user_id", Reason: "user does not exist"}
	}

	reference := NewPaymentReference()
	checkoutID, err := s.provider.RequestDeposit(ctx, phoneNumber, reference, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to request deposit from provider: %w", err)
	}

	txn := &models.Transaction{
		UserID:        userID,
		Type:          models.TransactionTypeDeposit,
		Amount:        amount,
		BalanceBefore: decimal.Zero,
		BalanceAfter:  decimal.Zero,
		Reference:     reference,
		Status:        models.TransactionStatusPending,
		Description:   "deposit via mobile money",
		CheckoutID:    &checkoutID,
		PhoneNumber:   &phoneNumber,
	}
	if err := uow.TransactionRepository().Create(ctx, txn); err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return txn, nil
}

// HandleDepositCallback applies the provider's deposit verdict. Replays
// and post-expiry callbacks find a terminal entry and do nothing.
func (s *paymentService) HandleDepositCallback(ctx context.Context, checkoutID string, resultCode int, receipt *string) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	txn, err := uow.TransactionRepository().GetByCheckoutIDForUpdate(ctx, checkoutID)
	if err != nil {
		return fmt.Errorf("failed to get transaction: %w", err)
	}
	if txn == nil {
		return models.ValidationError{Field: "checkout_id", Reason: "unknown checkout id"}
	}
	if txn.Status != models.TransactionStatusPending {
		return nil
	}

	if resultCode != 0 {
		if err := uow.TransactionRepository().MarkFailed(ctx, txn.ID, fmt.Sprintf("provider result code %d", resultCode)); err != nil {
			return err
		}
		uow.EventBus().Publish(events.PaymentCompletedEvent{
			UserID:    txn.UserID,
			Reference: txn.Reference,
			Kind:      models.TransactionTypeDeposit,
			Status:    models.TransactionStatusFailed,
			Amount:    txn.Amount.StringFixed(2),
		})
		if err := uow.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	}

	user, err := uow.UserRepository().GetForUpdate(ctx, txn.UserID)
	if err != nil {
		return fmt.Errorf("failed to lock user: %w", err)
	}
	if user == nil {
		return models.IntegrityError{Reason: fmt.Sprintf("deposit %s references missing user %d", txn.Reference, txn.UserID)}
	}

	before := user.TotalBalance()
	user.Credit(txn.Amount)
	if err := uow.UserRepository().UpdateBalances(ctx, user.ID, user.Balance, user.BonusBalance); err != nil {
		return fmt.Errorf("failed to update balances: %w", err)
	}
	after := user.TotalBalance()

	if err := uow.TransactionRepository().Complete(ctx, txn.ID, receipt, before, after); err != nil {
		return err
	}

	uow.EventBus().Publish(events.BalanceChangedEvent{
		UserID:          txn.UserID,
		TransactionType: models.TransactionTypeDeposit,
		Reference:       txn.Reference,
		Amount:          txn.Amount.StringFixed(2),
		BalanceBefore:   before.StringFixed(2),
		BalanceAfter:    after.StringFixed(2),
	})
	event := events.PaymentCompletedEvent{
		UserID:    txn.UserID,
		Reference: txn.Reference,
		Kind:      models.TransactionTypeDeposit,
		Status:    models.TransactionStatusCompleted,
		Amount:    txn.Amount.StringFixed(2),
	}
	if receipt != nil {
		event.Receipt = *receipt
	}
	uow.EventBus().Publish(event)

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// InitiateWithdrawal escrows the amount from the primary balance and
// asks the provider to pay it out. A provider error rolls back the
// escrow; a later callback failure refunds it.
func (s *paymentService) InitiateWithdrawal(ctx context.Context, userID int64, phoneNumber string, amount decimal.Decimal) (*models.Transaction, error) {
	if err := models.ValidatePhoneNumber(phoneNumber); err != nil {
		return nil, err
	}
	if err := s.validateAmount(amount, s.limits.MinWithdrawal, decimal.Decimal{}); err != nil {
		return nil, err
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	user, err := uow.UserRepository().GetForUpdate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock user: %w", err)
	}
	if user == nil {
		return nil, models.ValidationError{Field: "user_id", Reason: "user does not exist"}
	}

	// Bonus money is not withdrawable
	before := user.TotalBalance()
	if err := user.DebitPrimary(amount); err != nil {
		return nil, err
	}
	if err := uow.UserRepository().UpdateBalances(ctx, user.ID, user.Balance, user.BonusBalance); err != nil {
		return nil, fmt.Errorf("failed to update balances: %w", err)
	}
	after := user.TotalBalance()

	reference := NewPaymentReference()
	checkoutID, err := s.provider.RequestWithdrawal(ctx, phoneNumber, reference, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to request withdrawal from provider: %w", err)
	}

	txn := &models.Transaction{
		UserID:        userID,
		Type:          models.TransactionTypeWithdrawal,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Reference:     reference,
		Status:        models.TransactionStatusPending,
		Description:   "withdrawal via mobile money",
		CheckoutID:    &checkoutID,
		PhoneNumber:   &phoneNumber,
	}
	if err := uow.TransactionRepository().Create(ctx, txn); err != nil {
		return nil, err
	}

	uow.EventBus().Publish(events.BalanceChangedEvent{
		UserID:          userID,
		TransactionType: models.TransactionTypeWithdrawal,
		Reference:       reference,
		Amount:          amount.StringFixed(2),
		BalanceBefore:   before.StringFixed(2),
		BalanceAfter:    after.StringFixed(2),
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return txn, nil
}

// HandleWithdrawalCallback applies the provider's payout verdict. The
// money left at initiation, so success only finalizes the entry;
// failure puts the escrowed amount back.
func (s *paymentService) HandleWithdrawalCallback(ctx context.Context, checkoutID string, resultCode int, receipt *string) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	txn, err := uow.TransactionRepository().GetByCheckoutIDForUpdate(ctx, checkoutID)
	if err != nil {
		return fmt.Errorf("failed to get transaction: %w", err)
	}
	if txn == nil {
		return models.ValidationError{Field: "checkout_id", Reason: "unknown checkout id"}
	}
	if txn.Status != models.TransactionStatusPending {
		return nil
	}

	if resultCode == 0 {
		// Balances were written at initiation; completing just reaffirms them
		if err := uow.TransactionRepository().Complete(ctx, txn.ID, receipt, txn.BalanceBefore, txn.BalanceAfter); err != nil {
			return err
		}
		event := events.PaymentCompletedEvent{
			UserID:    txn.UserID,
			Reference: txn.Reference,
			Kind:      models.TransactionTypeWithdrawal,
			Status:    models.TransactionStatusCompleted,
			Amount:    txn.Amount.StringFixed(2),
		}
		if receipt != nil {
			event.Receipt = *receipt
		}
		uow.EventBus().Publish(event)
	} else {
		if err := uow.TransactionRepository().MarkFailed(ctx, txn.ID, fmt.Sprintf("provider result code %d", resultCode)); err != nil {
			return err
		}
		if err := s.refundWithdrawal(ctx, uow, txn); err != nil {
			return err
		}
		uow.EventBus().Publish(events.PaymentCompletedEvent{
			UserID:    txn.UserID,
			Reference: txn.Reference,
			Kind:      models.TransactionTypeWithdrawal,
			Status:    models.TransactionStatusFailed,
			Amount:    txn.Amount.StringFixed(2),
		})
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ExpireStalePayments cancels pending payments older than the cutoff.
// Stale withdrawals get their escrowed amount back; stale deposits were
// never credited so cancelling the entry is enough. Each payment expires
// in its own transaction so one bad row cannot wedge the sweep.
func (s *paymentService) ExpireStalePayments(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	stale, err := uow.TransactionRepository().ListStalePending(ctx, cutoff)
	uow.Rollback()
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, txn := range stale {
		if err := s.expireOne(ctx, txn); err != nil {
			// A provider callback beat the sweep to this entry
			if models.IsStateConflict(err) {
				continue
			}
			return expired, err
		}
		expired++
	}
	return expired, nil
}

func (s *paymentService) expireOne(ctx context.Context, txn *models.Transaction) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := uow.TransactionRepository().Cancel(ctx, txn.ID, "expired without provider confirmation"); err != nil {
		return err
	}

	if txn.Type == models.TransactionTypeWithdrawal {
		if err := s.refundWithdrawal(ctx, uow, txn); err != nil {
			return err
		}
	}

	uow.EventBus().Publish(events.PaymentCompletedEvent{
		UserID:    txn.UserID,
		Reference: txn.Reference,
		Kind:      txn.Type,
		Status:    models.TransactionStatusCancelled,
		Amount:    txn.Amount.StringFixed(2),
	})

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// refundWithdrawal puts an escrowed withdrawal amount back on the
// primary balance under a fresh reference
func (s *paymentService) refundWithdrawal(ctx context.Context, uow UnitOfWork, txn *models.Transaction) error {
	_, err := ApplyLedgerEntry(ctx, uow, ApplyParams{
		UserID:      txn.UserID,
		Type:        models.TransactionTypeRefund,
		Amount:      txn.Amount,
		Reference:   NewPaymentReference(),
		Description: fmt.Sprintf("refund of withdrawal %s", txn.Reference),
	})
	if err != nil {
		return fmt.Errorf("failed to refund withdrawal %s: %w", txn.Reference, err)
	}
	return nil
}

// validateAmount checks bounds and scale. A zero max means unbounded.
func (s *paymentService) validateAmount(amount, min, max decimal.Decimal) error {
	if !amount.Equal(amount.Round(2)) {
		return models.ValidationError{Field: "amount", Reason: "more than two decimal places"}
	}
	if amount.LessThan(min) {
		return models.ValidationError{Field: "amount", Reason: fmt.Sprintf("below minimum of %s", min.StringFixed(2))}
	}
	if !max.IsZero() && amount.GreaterThan(max) {
		return models.ValidationError{Field: "amount", Reason: fmt.Sprintf("above maximum of %s", max.StringFixed(2))}
	}
	return nil
}
