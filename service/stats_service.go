package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"aviator/models"
)

const defaultLeaderboardSize = 10

// statsService implements the StatsService interface
type statsService struct {
	uowFactory UnitOfWorkFactory
}

// NewStatsService creates a new stats service
func NewStatsService(uowFactory UnitOfWorkFactory) StatsService {
	return &statsService{
		uowFactory: uowFactory,
	}
}

// GetUserStats returns a user's lifetime betting statistics. Users who
// never placed a bet get a zeroed row rather than an error.
func (s *statsService) GetUserStats(ctx context.Context, userID int64) (*models.UserStatistics, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback() // No-op if already committed

	stats, err := uow.StatsRepository().GetByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get statistics: %w", err)
	}

	if stats == nil {
		stats = &models.UserStatistics{
			UserID:            userID,
			TotalWagered:      decimal.Zero,
			TotalWon:          decimal.Zero,
			BiggestWin:        decimal.Zero,
			BiggestMultiplier: decimal.Zero,
			WinRate:           decimal.Zero,
		}
	}
	return stats, nil
}

// GetLeaderboard returns the top users ranked by total winnings
func (s *statsService) GetLeaderboard(ctx context.Context, limit int) ([]*models.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = defaultLeaderboardSize
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	entries, err := uow.StatsRepository().TopByTotalWon(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}
	return entries, nil
}
