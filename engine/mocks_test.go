package engine

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"aviator/models"
	"aviator/service"
)

// MockRoundService is a mock implementation of service.RoundService
type MockRoundService struct {
	mock.Mock
}

func (m *MockRoundService) NextRoundNumber(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRoundService) CreateRound(ctx context.Context, round *models.Round) error {
	args := m.Called(ctx, round)
	return args.Error(0)
}

func (m *MockRoundService) StartRound(ctx context.Context, round *models.Round) (int64, error) {
	args := m.Called(ctx, round)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRoundService) CrashRound(ctx context.Context, round *models.Round) error {
	args := m.Called(ctx, round)
	return args.Error(0)
}

func (m *MockRoundService) AbortRound(ctx context.Context, round *models.Round, finalMultiplier decimal.Decimal) error {
	args := m.Called(ctx, round, finalMultiplier)
	return args.Error(0)
}

// MockBettingService is a mock implementation of service.BettingService
type MockBettingService struct {
	mock.Mock
}

func (m *MockBettingService) PersistPlacedBet(ctx context.Context, round *models.Round, userID int64, amount decimal.Decimal, autoCashout *decimal.Decimal) (*models.Bet, *models.BetReceipt, error) {
	args := m.Called(ctx, round, userID, amount, autoCashout)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*models.Bet), args.Get(1).(*models.BetReceipt), args.Error(2)
}

func (m *MockBettingService) SettleBetWon(ctx context.Context, roundNumber, betID, userID int64, stake, multiplier decimal.Decimal) (*models.CashoutResult, error) {
	args := m.Called(ctx, roundNumber, betID, userID, stake, multiplier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CashoutResult), args.Error(1)
}

func (m *MockBettingService) SettleBetsLost(ctx context.Context, roundNumber int64, lost []service.LostBet) error {
	args := m.Called(ctx, roundNumber, lost)
	return args.Error(0)
}

func (m *MockBettingService) CancelAndRefundBets(ctx context.Context, round *models.Round) (int, error) {
	args := m.Called(ctx, round)
	return args.Get(0).(int), args.Error(1)
}

// stubGenerator returns a fixed crash point for every round
type stubGenerator struct {
	point decimal.Decimal
	proof Proof
}

func (g *stubGenerator) Generate() (decimal.Decimal, Proof) {
	return g.point, g.proof
}

// recordingBroadcaster captures every snapshot the engine publishes
type recordingBroadcaster struct {
	mu        sync.Mutex
	snapshots []models.RoundSnapshot
}

func (b *recordingBroadcaster) Broadcast(snapshot models.RoundSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.snapshots = append(b.snapshots, snapshot)
}

// phases returns the status sequence with consecutive repeats collapsed
func (b *recordingBroadcaster) phases() []models.RoundStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	var seen []models.RoundStatus
	for _, s := range b.snapshots {
		if len(seen) == 0 || seen[len(seen)-1] != s.Status {
			seen = append(seen, s.Status)
		}
	}
	return seen
}

func (b *recordingBroadcaster) last() (models.RoundSnapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.snapshots) == 0 {
		return models.RoundSnapshot{}, false
	}
	return b.snapshots[len(b.snapshots)-1], true
}

// callOrder records the sequence of service calls across goroutines
type callOrder struct {
	mu    sync.Mutex
	calls []string
}

func (c *callOrder) record(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, name)
}

func (c *callOrder) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.calls...)
}

// matchDecimal matches a decimal argument by value
func matchDecimal(expected string) interface{} {
	want := decimal.RequireFromString(expected)
	return mock.MatchedBy(func(d decimal.Decimal) bool {
		return d.Equal(want)
	})
}

// matchAutoCashout matches an optional auto-cashout threshold
func matchAutoCashout(expected *string) interface{} {
	return mock.MatchedBy(func(ac *decimal.Decimal) bool {
		if expected == nil {
			return ac == nil
		}
		return ac != nil && ac.Equal(decimal.RequireFromString(*expected))
	})
}
