package service

import (
	"context"
	"fmt"

	"aviator/models"
)

const defaultHistorySize = 20

// historyService implements the HistoryService interface
type historyService struct {
	uowFactory UnitOfWorkFactory
}

// NewHistoryService creates a new history service
func NewHistoryService(uowFactory UnitOfWorkFactory) HistoryService {
	return &historyService{
		uowFactory: uowFactory,
	}
}

// GetRecentRounds returns recently crashed rounds, newest first. Crash
// points and seeds are public once a round has crashed.
func (s *historyService) GetRecentRounds(ctx context.Context, limit int) ([]*models.Round, error) {
	if limit <= 0 {
		limit = defaultHistorySize
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback() // No-op if already committed

	rounds, err := uow.RoundRepository().ListRecentCrashed(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}
	return rounds, nil
}

// GetUserBets returns a user's bets, newest first
func (s *historyService) GetUserBets(ctx context.Context, userID int64, limit int) ([]*models.Bet, error) {
	if limit <= 0 {
		limit = defaultHistorySize
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bets, err := uow.BetRepository().ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list bets: %w", err)
	}
	return bets, nil
}

// GetUserTransactions returns a user's ledger entries, newest first
func (s *historyService) GetUserTransactions(ctx context.Context, userID int64, limit int) ([]*models.Transaction, error) {
	if limit <= 0 {
		limit = defaultHistorySize
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	transactions, err := uow.TransactionRepository().ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return transactions, nil
}
