package testutil

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"aviator/models"
)

// CreateTestUser creates a test user with default values
func CreateTestUser(phoneNumber, username string) *models.User {
	now := time.Now()
	return &models.User{
		PhoneNumber:  phoneNumber,
		Username:     username,
		Balance:      decimal.NewFromInt(1000),
		BonusBalance: decimal.Zero,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// CreateTestUserWithBalance creates a test user with specific balances
func CreateTestUserWithBalance(phoneNumber, username string, balance, bonusBalance decimal.Decimal) *models.User {
	user := CreateTestUser(phoneNumber, username)
	user.Balance = balance
	user.BonusBalance = bonusBalance
	return user
}

// CreateTestRound creates a waiting round with the given crash point
func CreateTestRound(roundNumber int64, crashPoint decimal.Decimal) *models.Round {
	return &models.Round{
		RoundNumber: roundNumber,
		Status:      models.RoundStatusWaiting,
		Multiplier:  decimal.RequireFromString("1.00"),
		CrashPoint:  crashPoint,
	}
}

// CreateTestBet creates a pending bet for the given user and round
func CreateTestBet(userID, roundID int64, amount decimal.Decimal) *models.Bet {
	return &models.Bet{
		UserID:  userID,
		RoundID: roundID,
		Amount:  amount,
		Status:  models.BetStatusPending,
		Payout:  decimal.Zero,
	}
}

// CreateTestBetWithAutoCashout creates a pending bet with an auto-cashout threshold
func CreateTestBetWithAutoCashout(userID, roundID int64, amount, autoCashout decimal.Decimal) *models.Bet {
	bet := CreateTestBet(userID, roundID, amount)
	bet.AutoCashout = &autoCashout
	return bet
}

// CreateTestTransaction creates a completed ledger entry
func CreateTestTransaction(userID int64, txType models.TransactionType, amount decimal.Decimal, reference string) *models.Transaction {
	now := time.Now()
	return &models.Transaction{
		UserID:        userID,
		Type:          txType,
		Amount:        amount,
		BalanceBefore: decimal.NewFromInt(1000),
		BalanceAfter:  decimal.NewFromInt(1000).Add(amount),
		Reference:     reference,
		Status:        models.TransactionStatusCompleted,
		CompletedAt:   &now,
	}
}

// CreateTestPendingDeposit creates a pending deposit awaiting a provider callback
func CreateTestPendingDeposit(userID int64, amount decimal.Decimal, reference, checkoutID string) *models.Transaction {
	phone := fmt.Sprintf("2547%08d", userID)
	return &models.Transaction{
		UserID:      userID,
		Type:        models.TransactionTypeDeposit,
		Amount:      amount,
		Reference:   reference,
		Status:      models.TransactionStatusPending,
		CheckoutID:  &checkoutID,
		PhoneNumber: &phone,
	}
}
