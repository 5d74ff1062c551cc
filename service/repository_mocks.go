package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"aviator/events"
	"aviator/models"
)

// MockUserRepository is a mock implementation of UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, userID int64) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByPhone(ctx context.Context, phoneNumber string) (*models.User, error) {
	args := m.Called(ctx, phoneNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetForUpdate(ctx context.Context, userID int64) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) Create(ctx context.Context, phoneNumber, username string, balance, bonusBalance decimal.Decimal) (*models.User, error) {
	args := m.Called(ctx, phoneNumber, username, balance, bonusBalance)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) UpdateBalances(ctx context.Context, userID int64, balance, bonusBalance decimal.Decimal) error {
	args := m.Called(ctx, userID, balance, bonusBalance)
	return args.Error(0)
}

// MockRoundRepository is a mock implementation of RoundRepository
type MockRoundRepository struct {
	mock.Mock
}

func (m *MockRoundRepository) Create(ctx context.Context, round *models.Round) error {
	args := m.Called(ctx, round)
	return args.Error(0)
}

func (m *MockRoundRepository) Update(ctx context.Context, round *models.Round) error {
	args := m.Called(ctx, round)
	return args.Error(0)
}

func (m *MockRoundRepository) NextRoundNumber(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRoundRepository) GetByNumber(ctx context.Context, roundNumber int64) (*models.Round, error) {
	args := m.Called(ctx, roundNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Round), args.Error(1)
}

func (m *MockRoundRepository) ListRecentCrashed(ctx context.Context, limit int) ([]*models.Round, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Round), args.Error(1)
}

func (m *MockRoundRepository) FindUnresolved(ctx context.Context) ([]*models.Round, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Round), args.Error(1)
}

// MockBetRepository is a mock implementation of BetRepository
type MockBetRepository struct {
	mock.Mock
}

func (m *MockBetRepository) Create(ctx context.Context, bet *models.Bet) error {
	args := m.Called(ctx, bet)
	return args.Error(0)
}

func (m *MockBetRepository) Settle(ctx context.Context, betID int64, status models.BetStatus, cashoutMultiplier *decimal.Decimal, payout decimal.Decimal) error {
	args := m.Called(ctx, betID, status, cashoutMultiplier, payout)
	return args.Error(0)
}

func (m *MockBetRepository) ActivateForRound(ctx context.Context, roundID int64) (int64, error) {
	args := m.Called(ctx, roundID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBetRepository) GetByID(ctx context.Context, betID int64) (*models.Bet, error) {
	args := m.Called(ctx, betID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Bet), args.Error(1)
}

func (m *MockBetRepository) GetOpenByRound(ctx context.Context, roundID int64) ([]*models.Bet, error) {
	args := m.Called(ctx, roundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Bet), args.Error(1)
}

func (m *MockBetRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*models.Bet, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Bet), args.Error(1)
}

// MockTransactionRepository is a mock implementation of TransactionRepository
type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) Create(ctx context.Context, txn *models.Transaction) error {
	args := m.Called(ctx, txn)
	return args.Error(0)
}

func (m *MockTransactionRepository) GetByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) GetByCheckoutIDForUpdate(ctx context.Context, checkoutID string) (*models.Transaction, error) {
	args := m.Called(ctx, checkoutID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) Complete(ctx context.Context, transactionID int64, receipt *string, balanceBefore, balanceAfter decimal.Decimal) error {
	args := m.Called(ctx, transactionID, receipt, balanceBefore, balanceAfter)
	return args.Error(0)
}

func (m *MockTransactionRepository) MarkFailed(ctx context.Context, transactionID int64, reason string) error {
	args := m.Called(ctx, transactionID, reason)
	return args.Error(0)
}

func (m *MockTransactionRepository) Cancel(ctx context.Context, transactionID int64, reason string) error {
	args := m.Called(ctx, transactionID, reason)
	return args.Error(0)
}

func (m *MockTransactionRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) ListStalePending(ctx context.Context, cutoff time.Time) ([]*models.Transaction, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Transaction), args.Error(1)
}

// MockStatsRepository is a mock implementation of StatsRepository
type MockStatsRepository struct {
	mock.Mock
}

func (m *MockStatsRepository) GetByUser(ctx context.Context, userID int64) (*models.UserStatistics, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserStatistics), args.Error(1)
}

func (m *MockStatsRepository) GetForUpdate(ctx context.Context, userID int64) (*models.UserStatistics, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserStatistics), args.Error(1)
}

func (m *MockStatsRepository) Upsert(ctx context.Context, stats *models.UserStatistics) error {
	args := m.Called(ctx, stats)
	return args.Error(0)
}

func (m *MockStatsRepository) TopByTotalWon(ctx context.Context, limit int) ([]*models.LeaderboardEntry, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.LeaderboardEntry), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher for testing
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) {
	m.Called(event)
}

// MockPaymentProvider is a mock implementation of PaymentProvider
type MockPaymentProvider struct {
	mock.Mock
}

func (m *MockPaymentProvider) RequestDeposit(ctx context.Context, phoneNumber, reference string, amount decimal.Decimal) (string, error) {
	args := m.Called(ctx, phoneNumber, reference, amount)
	return args.String(0), args.Error(1)
}

func (m *MockPaymentProvider) RequestWithdrawal(ctx context.Context, phoneNumber, reference string, amount decimal.Decimal) (string, error) {
	args := m.Called(ctx, phoneNumber, reference, amount)
	return args.String(0), args.Error(1)
}

// recordingEventBus collects published events so tests can assert on
// them without wiring expectations for every emission
type recordingEventBus struct {
	published []events.Event
}

func (b *recordingEventBus) Publish(event events.Event) {
	b.published = append(b.published, event)
}

// MockUnitOfWork is a mock implementation of UnitOfWork. Repository
// getters return whatever SetRepositories stored; only the lifecycle
// methods go through expectations.
type MockUnitOfWork struct {
	mock.Mock
	userRepo        UserRepository
	roundRepo       RoundRepository
	betRepo         BetRepository
	transactionRepo TransactionRepository
	statsRepo       StatsRepository
	eventBus        *recordingEventBus
}

// SetRepositories configures the repositories returned by the getters
func (m *MockUnitOfWork) SetRepositories(user UserRepository, round RoundRepository, bet BetRepository, txn TransactionRepository, stats StatsRepository) {
	m.userRepo = user
	m.roundRepo = round
	m.betRepo = bet
	m.transactionRepo = txn
	m.statsRepo = stats
	m.eventBus = &recordingEventBus{}
}

// PublishedEvents returns the events published through this unit of work
func (m *MockUnitOfWork) PublishedEvents() []events.Event {
	if m.eventBus == nil {
		return nil
	}
	return m.eventBus.published
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) UserRepository() UserRepository {
	return m.userRepo
}

func (m *MockUnitOfWork) RoundRepository() RoundRepository {
	return m.roundRepo
}

func (m *MockUnitOfWork) BetRepository() BetRepository {
	return m.betRepo
}

func (m *MockUnitOfWork) TransactionRepository() TransactionRepository {
	return m.transactionRepo
}

func (m *MockUnitOfWork) StatsRepository() StatsRepository {
	return m.statsRepo
}

func (m *MockUnitOfWork) EventBus() EventPublisher {
	if m.eventBus == nil {
		m.eventBus = &recordingEventBus{}
	}
	return m.eventBus
}

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) Create() UnitOfWork {
	args := m.Called()
	return args.Get(0).(UnitOfWork)
}
