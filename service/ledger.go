package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"aviator/events"
	"aviator/models"
)

// ApplyParams describes one balance movement for ApplyLedgerEntry
type ApplyParams struct {
	UserID      int64
	Type        models.TransactionType
	Amount      decimal.Decimal
	Reference   string
	Description string

	// ToBonus directs a credit into the bonus balance instead of the
	// primary one. Only the welcome bonus uses this.
	ToBonus bool

	// PrimaryOnly restricts a debit to the primary balance so bonus money
	// cannot leave the system. Withdrawals use this.
	PrimaryOnly bool
}

// ApplyLedgerEntry mutates a user's balance and records the matching
// completed ledger entry inside the caller's open unit of work. This is
// the single entry point for every game-side balance change; payments
// manage their own pending rows but reuse the same balance rules.
func ApplyLedgerEntry(ctx context.Context, uow UnitOfWork, params ApplyParams) (*models.Transaction, error) {
	if !params.Amount.IsPositive() {
		return nil, models.ValidationError{Field: "amount", Reason: "must be positive"}
	}

	user, err := uow.UserRepository().GetForUpdate(ctx, params.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock user: %w", err)
	}
	if user == nil {
		return nil, models.ValidationError{Field: "user_id", Reason: "user does not exist"}
	}

	before := user.TotalBalance()

	if params.Type.IsCredit() {
		if params.ToBonus {
			user.CreditBonus(params.Amount)
		} else {
			user.Credit(params.Amount)
		}
	} else {
		if params.PrimaryOnly {
			err = user.DebitPrimary(params.Amount)
		} else {
			err = user.DebitBonusFirst(params.Amount)
		}
		if err != nil {
			return nil, err
		}
	}

	if err := uow.UserRepository().UpdateBalances(ctx, user.ID, user.Balance, user.BonusBalance); err != nil {
		return nil, fmt.Errorf("failed to update balances: %w", err)
	}

	after := user.TotalBalance()
	now := time.Now()

	txn := &models.Transaction{
		UserID:        params.UserID,
		Type:          params.Type,
		Amount:        params.Amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Reference:     params.Reference,
		Status:        models.TransactionStatusCompleted,
		Description:   params.Description,
		CompletedAt:   &now,
	}
	if err := uow.TransactionRepository().Create(ctx, txn); err != nil {
		return nil, err
	}

	uow.EventBus().Publish(events.BalanceChangedEvent{
		UserID:          params.UserID,
		TransactionType: params.Type,
		Reference:       params.Reference,
		Amount:          params.Amount.StringFixed(2),
		BalanceBefore:   before.StringFixed(2),
		BalanceAfter:    after.StringFixed(2),
	})

	return txn, nil
}
