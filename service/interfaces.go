package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"aviator/events"
	"aviator/models"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	// GetByID retrieves a user by their ID
	GetByID(ctx context.Context, userID int64) (*models.User, error)

	// GetByPhone retrieves a user by their phone number
	GetByPhone(ctx context.Context, phoneNumber string) (*models.User, error)

	// GetForUpdate retrieves a user and row-locks them for the enclosing transaction
	GetForUpdate(ctx context.Context, userID int64) (*models.User, error)

	// Create creates a new user with the given starting balances
	Create(ctx context.Context, phoneNumber, username string, balance, bonusBalance decimal.Decimal) (*models.User, error)

	// UpdateBalances sets both balances of a user atomically
	UpdateBalances(ctx context.Context, userID int64, balance, bonusBalance decimal.Decimal) error
}

// RoundRepository defines the interface for round data access
type RoundRepository interface {
	// Create inserts a new round and fills in its generated fields
	Create(ctx context.Context, round *models.Round) error

	// Update persists the mutable fields of a round
	Update(ctx context.Context, round *models.Round) error

	// NextRoundNumber returns the round number the next round should use
	NextRoundNumber(ctx context.Context) (int64, error)

	// GetByNumber retrieves a round by its round number
	GetByNumber(ctx context.Context, roundNumber int64) (*models.Round, error)

	// ListRecentCrashed returns the most recently finished rounds, newest first
	ListRecentCrashed(ctx context.Context, limit int) ([]*models.Round, error)

	// FindUnresolved returns rounds left in a non-terminal status, oldest first
	FindUnresolved(ctx context.Context) ([]*models.Round, error)
}

// BetRepository defines the interface for bet data access
type BetRepository interface {
	// Create inserts a new bet and fills in its generated fields
	Create(ctx context.Context, bet *models.Bet) error

	// Settle moves an open bet to a terminal status
	Settle(ctx context.Context, betID int64, status models.BetStatus, cashoutMultiplier *decimal.Decimal, payout decimal.Decimal) error

	// ActivateForRound moves all pending bets of a round to active
	ActivateForRound(ctx context.Context, roundID int64) (int64, error)

	// GetByID retrieves a bet by its ID
	GetByID(ctx context.Context, betID int64) (*models.Bet, error)

	// GetOpenByRound returns all non-terminal bets of a round
	GetOpenByRound(ctx context.Context, roundID int64) ([]*models.Bet, error)

	// ListByUser returns a user's bets, newest first
	ListByUser(ctx context.Context, userID int64, limit int) ([]*models.Bet, error)
}

// TransactionRepository defines the interface for ledger data access
type TransactionRepository interface {
	// Create inserts a new ledger entry and fills in its generated fields
	Create(ctx context.Context, txn *models.Transaction) error

	// GetByReference retrieves a transaction by its reference
	GetByReference(ctx context.Context, reference string) (*models.Transaction, error)

	// GetByCheckoutIDForUpdate retrieves a payment by its provider checkout ID with a row lock
	GetByCheckoutIDForUpdate(ctx context.Context, checkoutID string) (*models.Transaction, error)

	// Complete moves a pending transaction to completed with its final balances
	Complete(ctx context.Context, transactionID int64, receipt *string, balanceBefore, balanceAfter decimal.Decimal) error

	// MarkFailed moves a pending transaction to failed
	MarkFailed(ctx context.Context, transactionID int64, reason string) error

	// Cancel moves a pending transaction to cancelled
	Cancel(ctx context.Context, transactionID int64, reason string) error

	// ListByUser returns a user's transactions, newest first
	ListByUser(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error)

	// ListStalePending returns pending payments created before the cutoff
	ListStalePending(ctx context.Context, cutoff time.Time) ([]*models.Transaction, error)
}

// StatsRepository defines the interface for user statistics data access
type StatsRepository interface {
	// GetByUser retrieves a user's statistics row
	GetByUser(ctx context.Context, userID int64) (*models.UserStatistics, error)

	// GetForUpdate retrieves a user's statistics row with a row lock
	GetForUpdate(ctx context.Context, userID int64) (*models.UserStatistics, error)

	// Upsert writes a user's statistics row, inserting it on first use
	Upsert(ctx context.Context, stats *models.UserStatistics) error

	// TopByTotalWon returns the leaderboard ordered by total winnings
	TopByTotalWon(ctx context.Context, limit int) ([]*models.LeaderboardEntry, error)
}

// UserService defines the interface for user operations
type UserService interface {
	// GetOrCreateUser retrieves an existing user or registers a new one with the welcome bonus
	GetOrCreateUser(ctx context.Context, phoneNumber, username string) (*models.User, error)

	// GetUser retrieves a user by ID
	GetUser(ctx context.Context, userID int64) (*models.User, error)

	// GetBalance returns the primary, bonus and total balance of a user
	GetBalance(ctx context.Context, userID int64) (primary, bonus, total decimal.Decimal, err error)
}

// LostBet identifies an active bet that rode into the crash
type LostBet struct {
	BetID  int64
	UserID int64
	Stake  decimal.Decimal
}

// BettingService owns the database side of the bet lifecycle. The game
// engine decides outcomes in memory and calls in here to make them durable.
type BettingService interface {
	// PersistPlacedBet escrows the stake and records the bet in one
	// transaction. Returns the stored bet and the player-facing receipt.
	PersistPlacedBet(ctx context.Context, round *models.Round, userID int64, amount decimal.Decimal, autoCashout *decimal.Decimal) (*models.Bet, *models.BetReceipt, error)

	// SettleBetWon credits stake times multiplier and closes the bet in one transaction
	SettleBetWon(ctx context.Context, roundNumber, betID, userID int64, stake, multiplier decimal.Decimal) (*models.CashoutResult, error)

	// SettleBetsLost closes bets that rode into the crash. Stakes were
	// escrowed at placement so no balance changes here.
	SettleBetsLost(ctx context.Context, roundNumber int64, lost []LostBet) error

	// CancelAndRefundBets voids all open bets of a round and returns the stakes.
	// Used when recovering rounds that never took off.
	CancelAndRefundBets(ctx context.Context, round *models.Round) (int, error)
}

// RoundService persists round lifecycle transitions
type RoundService interface {
	// NextRoundNumber returns the number the next round should use
	NextRoundNumber(ctx context.Context) (int64, error)

	// CreateRound inserts a new waiting round and announces it
	CreateRound(ctx context.Context, round *models.Round) error

	// StartRound moves a round to flying, activates its bets and announces
	// takeoff. Returns the number of activated bets.
	StartRound(ctx context.Context, round *models.Round) (int64, error)

	// CrashRound finalizes a round at its crash point and reveals the proof seeds
	CrashRound(ctx context.Context, round *models.Round) error

	// AbortRound finalizes a round that cannot play out to its crash point,
	// ending it at the given multiplier instead. Used for rounds recovered
	// after a restart and for rounds halted on an integrity failure.
	AbortRound(ctx context.Context, round *models.Round, finalMultiplier decimal.Decimal) error
}

// PaymentService defines the interface for mobile money operations
type PaymentService interface {
	// InitiateDeposit starts a deposit checkout with the provider and records it pending
	InitiateDeposit(ctx context.Context, userID int64, phoneNumber string, amount decimal.Decimal) (*models.Transaction, error)

	// HandleDepositCallback applies the provider's deposit verdict exactly once.
	// Result code 0 means the money arrived.
	HandleDepositCallback(ctx context.Context, checkoutID string, resultCode int, receipt *string) error

	// InitiateWithdrawal escrows the amount from the primary balance and
	// starts a payout checkout with the provider
	InitiateWithdrawal(ctx context.Context, userID int64, phoneNumber string, amount decimal.Decimal) (*models.Transaction, error)

	// HandleWithdrawalCallback applies the provider's payout verdict exactly
	// once. Failures refund the escrowed amount.
	HandleWithdrawalCallback(ctx context.Context, checkoutID string, resultCode int, receipt *string) error

	// ExpireStalePayments fails pending payments older than the cutoff,
	// refunding stale withdrawals. Returns the number of payments expired.
	ExpireStalePayments(ctx context.Context, olderThan time.Duration) (int, error)
}

// StatsService defines the interface for statistics operations
type StatsService interface {
	// GetUserStats returns statistics for a user, zeroed if they never bet
	GetUserStats(ctx context.Context, userID int64) (*models.UserStatistics, error)

	// GetLeaderboard returns the top users by total winnings
	GetLeaderboard(ctx context.Context, limit int) ([]*models.LeaderboardEntry, error)
}

// HistoryService defines the interface for read-side history queries
type HistoryService interface {
	// GetRecentRounds returns recently crashed rounds, newest first
	GetRecentRounds(ctx context.Context, limit int) ([]*models.Round, error)

	// GetUserBets returns a user's bets, newest first
	GetUserBets(ctx context.Context, userID int64, limit int) ([]*models.Bet, error)

	// GetUserTransactions returns a user's ledger entries, newest first
	GetUserTransactions(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error)
}

// PaymentProvider abstracts the mobile money API used for deposits and payouts
type PaymentProvider interface {
	// RequestDeposit asks the provider to collect amount from the phone.
	// Returns the provider's checkout ID; the outcome arrives via callback.
	RequestDeposit(ctx context.Context, phoneNumber, reference string, amount decimal.Decimal) (string, error)

	// RequestWithdrawal asks the provider to send amount to the phone.
	// Returns the provider's checkout ID; the outcome arrives via callback.
	RequestWithdrawal(ctx context.Context, phoneNumber, reference string, amount decimal.Decimal) (string, error)
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event)
}

// UnitOfWork defines the interface for transactional repository operations
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Repository getters
	UserRepository() UserRepository
	RoundRepository() RoundRepository
	BetRepository() BetRepository
	TransactionRepository() TransactionRepository
	StatsRepository() StatsRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	// Create creates a new UnitOfWork instance
	Create() UnitOfWork
}
