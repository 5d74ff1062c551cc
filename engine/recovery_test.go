package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"aviator/models"
	"aviator/service"
)

func recoveryMocks() (*service.MockUnitOfWorkFactory, *service.MockRoundRepository, *service.MockBetRepository) {
	mockRoundRepo := new(service.MockRoundRepository)
	mockBetRepo := new(service.MockBetRepository)

	mockUow := new(service.MockUnitOfWork)
	mockUow.SetRepositories(nil, mockRoundRepo, mockBetRepo, nil, nil)
	mockUow.On("Begin", mock.Anything).Return(nil)
	mockUow.On("Rollback").Return(nil)

	mockFactory := new(service.MockUnitOfWorkFactory)
	mockFactory.On("Create").Return(mockUow)

	return mockFactory, mockRoundRepo, mockBetRepo
}

func TestRecovery_Run_NothingToRecover(t *testing.T) {
	mockFactory, mockRoundRepo, _ := recoveryMocks()
	mockRounds := new(MockRoundService)
	mockBetting := new(MockBettingService)

	// Mock expectations
	mockRoundRepo.On("FindUnresolved", mock.Anything).Return([]*models.Round{}, nil)

	recovery := NewRecovery(mockFactory, mockRounds, mockBetting)
	reconciled, err := recovery.Run(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 0, reconciled)
	mockRounds.AssertNotCalled(t, "CrashRound", mock.Anything, mock.Anything)
	mockRounds.AssertNotCalled(t, "AbortRound", mock.Anything, mock.Anything, mock.Anything)
}

func TestRecovery_Run_VoidsRoundThatNeverTookOff(t *testing.T) {
	mockFactory, mockRoundRepo, _ := recoveryMocks()
	mockRounds := new(MockRoundService)
	mockBetting := new(MockBettingService)

	round := &models.Round{
		ID:          31,
		RoundNumber: 311,
		Status:      models.RoundStatusWaiting,
		Multiplier:  decimal.NewFromInt(1),
		CrashPoint:  decimal.RequireFromString("4.50"),
	}

	// Mock expectations
	mockRoundRepo.On("FindUnresolved", mock.Anything).Return([]*models.Round{round}, nil)
	mockBetting.On("CancelAndRefundBets", mock.Anything, round).Return(2, nil)
	mockRounds.On("AbortRound", mock.Anything, round, matchDecimal("1")).Return(nil)

	recovery := NewRecovery(mockFactory, mockRounds, mockBetting)
	reconciled, err := recovery.Run(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, reconciled)
	mockRounds.AssertNotCalled(t, "CrashRound", mock.Anything, mock.Anything)

	mockRounds.AssertExpectations(t)
	mockBetting.AssertExpectations(t)
}

func TestRecovery_Run_ForcesFlyingRoundToCrashPoint(t *testing.T) {
	mockFactory, mockRoundRepo, mockBetRepo := recoveryMocks()
	mockRounds := new(MockRoundService)
	mockBetting := new(MockBettingService)

	round := &models.Round{
		ID:          32,
		RoundNumber: 321,
		Status:      models.RoundStatusFlying,
		Multiplier:  decimal.RequireFromString("1.40"),
		CrashPoint:  decimal.RequireFromString("3.20"),
	}

	below := decimal.RequireFromString("2.00")
	boundary := decimal.RequireFromString("3.20")
	above := decimal.RequireFromString("5.00")
	settledEarlier := decimal.RequireFromString("1.50")

	openBets := []*models.Bet{
		{ID: 1, UserID: 10, RoundID: 32, Amount: decimal.NewFromInt(100), AutoCashout: &below, Status: models.BetStatusActive},
		{ID: 2, UserID: 11, RoundID: 32, Amount: decimal.NewFromInt(50), Status: models.BetStatusActive},
		{ID: 3, UserID: 12, RoundID: 32, Amount: decimal.NewFromInt(80), AutoCashout: &above, Status: models.BetStatusActive},
		{ID: 4, UserID: 13, RoundID: 32, Amount: decimal.NewFromInt(25), AutoCashout: &boundary, Status: models.BetStatusActive},
		{ID: 5, UserID: 14, RoundID: 32, Amount: decimal.NewFromInt(60), AutoCashout: &settledEarlier, Status: models.BetStatusActive},
	}

	// Mock expectations
	mockRoundRepo.On("FindUnresolved", mock.Anything).Return([]*models.Round{round}, nil)
	mockBetRepo.On("GetOpenByRound", mock.Anything, int64(32)).Return(openBets, nil)

	// Thresholds at or below the crash point win at their threshold
	mockBetting.On("SettleBetWon", mock.Anything, int64(321), int64(1), int64(10), matchDecimal("100"), matchDecimal("2.00")).
		Return(&models.CashoutResult{BetID: 1, Multiplier: "2.00", Payout: "200.00", NewBalance: "1100.00"}, nil)
	mockBetting.On("SettleBetWon", mock.Anything, int64(321), int64(4), int64(13), matchDecimal("25"), matchDecimal("3.20")).
		Return(&models.CashoutResult{BetID: 4, Multiplier: "3.20", Payout: "80.00", NewBalance: "1055.00"}, nil)
	// Already settled before the shutdown
	mockBetting.On("SettleBetWon", mock.Anything, int64(321), int64(5), int64(14), matchDecimal("60"), matchDecimal("1.50")).
		Return(nil, models.StateConflictError{Reason: "bet 5 is not open"})

	mockBetting.On("SettleBetsLost", mock.Anything, int64(321), mock.MatchedBy(func(lost []service.LostBet) bool {
		return len(lost) == 2 && lost[0].BetID == 2 && lost[1].BetID == 3
	})).Return(nil)
	mockRounds.On("CrashRound", mock.Anything, round).Return(nil)

	recovery := NewRecovery(mockFactory, mockRounds, mockBetting)
	reconciled, err := recovery.Run(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, reconciled)

	mockRounds.AssertExpectations(t)
	mockBetting.AssertExpectations(t)
}

func TestRecovery_Run_RecoversMultipleRounds(t *testing.T) {
	mockFactory, mockRoundRepo, mockBetRepo := recoveryMocks()
	mockRounds := new(MockRoundService)
	mockBetting := new(MockBettingService)

	waiting := &models.Round{
		ID:          33,
		RoundNumber: 331,
		Status:      models.RoundStatusWaiting,
		CrashPoint:  decimal.RequireFromString("2.10"),
	}
	flying := &models.Round{
		ID:          34,
		RoundNumber: 341,
		Status:      models.RoundStatusFlying,
		CrashPoint:  decimal.RequireFromString("1.80"),
	}

	// Mock expectations
	mockRoundRepo.On("FindUnresolved", mock.Anything).Return([]*models.Round{waiting, flying}, nil)
	mockBetting.On("CancelAndRefundBets", mock.Anything, waiting).Return(0, nil)
	mockRounds.On("AbortRound", mock.Anything, waiting, matchDecimal("1")).Return(nil)
	mockBetRepo.On("GetOpenByRound", mock.Anything, int64(34)).Return([]*models.Bet{}, nil)
	mockRounds.On("CrashRound", mock.Anything, flying).Return(nil)

	recovery := NewRecovery(mockFactory, mockRounds, mockBetting)
	reconciled, err := recovery.Run(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 2, reconciled)
	mockBetting.AssertNotCalled(t, "SettleBetsLost", mock.Anything, mock.Anything, mock.Anything)

	mockRounds.AssertExpectations(t)
	mockBetting.AssertExpectations(t)
}

func TestRecovery_Run_StopsOnSettlementFailure(t *testing.T) {
	mockFactory, mockRoundRepo, mockBetRepo := recoveryMocks()
	mockRounds := new(MockRoundService)
	mockBetting := new(MockBettingService)

	round := &models.Round{
		ID:          35,
		RoundNumber: 351,
		Status:      models.RoundStatusFlying,
		CrashPoint:  decimal.RequireFromString("2.50"),
	}
	threshold := decimal.RequireFromString("1.20")

	// Mock expectations
	mockRoundRepo.On("FindUnresolved", mock.Anything).Return([]*models.Round{round}, nil)
	mockBetRepo.On("GetOpenByRound", mock.Anything, int64(35)).Return([]*models.Bet{
		{ID: 6, UserID: 15, RoundID: 35, Amount: decimal.NewFromInt(30), AutoCashout: &threshold, Status: models.BetStatusActive},
	}, nil)
	mockBetting.On("SettleBetWon", mock.Anything, int64(351), int64(6), int64(15), matchDecimal("30"), matchDecimal("1.20")).
		Return(nil, errors.New("connection refused"))

	recovery := NewRecovery(mockFactory, mockRounds, mockBetting)
	reconciled, err := recovery.Run(context.Background())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to recover round 351")
	assert.Equal(t, 0, reconciled)
	mockRounds.AssertNotCalled(t, "CrashRound", mock.Anything, mock.Anything)
}
