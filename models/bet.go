package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BetStatus represents the settlement state of a bet
type BetStatus string

const (
	BetStatusPending   BetStatus = "pending"
	BetStatusActive    BetStatus = "active"
	BetStatusWon       BetStatus = "won"
	BetStatusLost      BetStatus = "lost"
	BetStatusCancelled BetStatus = "cancelled"
)

// Bet represents a stake placed on a round. Bets are never deleted; the
// row is the audit trail of the wager and its settlement.
type Bet struct {
	ID                int64            `db:"id"`
	UserID            int64            `db:"user_id"`
	RoundID           int64            `db:"round_id"`
	Amount            decimal.Decimal  `db:"amount"`
	AutoCashout       *decimal.Decimal `db:"auto_cashout"`
	Status            BetStatus        `db:"status"`
	CashoutMultiplier *decimal.Decimal `db:"cashout_multiplier"`
	Payout            decimal.Decimal  `db:"payout"`
	CreatedAt         time.Time        `db:"created_at"`
	SettledAt         *time.Time       `db:"settled_at"`
}

// BetReceipt is returned to the caller when a bet is accepted
type BetReceipt struct {
	BetID       int64  `json:"bet_id"`
	RoundNumber int64  `json:"round_number"`
	Amount      string `json:"amount"`
	NewBalance  string `json:"new_balance"`
}

// CashoutResult is returned to the caller when a cashout settles
type CashoutResult struct {
	BetID      int64  `json:"bet_id"`
	Multiplier string `json:"multiplier"`
	Payout     string `json:"payout"`
	NewBalance string `json:"new_balance"`
}
