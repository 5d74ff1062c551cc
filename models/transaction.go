package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType represents the kind of balance change a ledger entry records
type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
	TransactionTypeBet        TransactionType = "bet"
	TransactionTypeWin        TransactionType = "win"
	TransactionTypeBonus      TransactionType = "bonus"
	TransactionTypeRain       TransactionType = "rain"
	TransactionTypeRefund     TransactionType = "refund"
)

// IsCredit reports whether entries of this type add to the balance.
// Amounts are stored positive; the type carries the direction.
func (t TransactionType) IsCredit() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWin, TransactionTypeBonus,
		TransactionTypeRain, TransactionTypeRefund:
		return true
	default:
		return false
	}
}

// TransactionStatus represents the settlement state of a ledger entry
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// Transaction is an append-only ledger entry. Entries reach a terminal
// status through at most one follow-up transition (pending to completed,
// failed or cancelled) and are never mutated after that. The running sum
// of completed entries reconstructs the user's balance.
type Transaction struct {
	ID            int64             `db:"id"`
	UserID        int64             `db:"user_id"`
	Type          TransactionType   `db:"type"`
	Amount        decimal.Decimal   `db:"amount"`
	BalanceBefore decimal.Decimal   `db:"balance_before"`
	BalanceAfter  decimal.Decimal   `db:"balance_after"`
	Reference     string            `db:"reference"`
	Status        TransactionStatus `db:"status"`
	Description   string            `db:"description"`
	CheckoutID    *string           `db:"checkout_id"`
	Receipt       *string           `db:"receipt"`
	PhoneNumber   *string           `db:"phone_number"`
	CreatedAt     time.Time         `db:"created_at"`
	CompletedAt   *time.Time        `db:"completed_at"`
}
