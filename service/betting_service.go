package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"aviator/events"
	"aviator/models"
)

// BetLimits bounds stakes and auto-cashout thresholds
type BetLimits struct {
	MinStake       decimal.Decimal
	MaxStake       decimal.Decimal
	MinAutoCashout decimal.Decimal
}

// bettingService implements the BettingService interface
type bettingService struct {
	uowFactory UnitOfWorkFactory
	limits     BetLimits
}

// NewBettingService creates a new betting service
func NewBettingService(uowFactory UnitOfWorkFactory, limits BetLimits) BettingService {
	return &bettingService{
		uowFactory: uowFactory,
		limits:     limits,
	}
}

// PersistPlacedBet escrows the stake and records the bet in one
// transaction. Monetary validation happens here, before any row is
// touched, so a rejected stake leaves no trace in the ledger.
func (s *bettingService) PersistPlacedBet(ctx context.Context, round *models.Round, userID int64, amount decimal.Decimal, autoCashout *decimal.Decimal) (*models.Bet, *models.BetReceipt, error) {
	if err := s.validateStake(amount, autoCashout); err != nil {
		return nil, nil, err
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback() // No-op if already committed

	// Escrow the stake first; insufficient funds aborts before the bet exists
	txn, err := ApplyLedgerEntry(ctx, uow, ApplyParams{
		UserID:      userID,
		Type:        models.TransactionTypeBet,
		Amount:      amount,
		Reference:   NewGameReference(),
		Description: fmt.Sprintf("bet on round %d", round.RoundNumber),
	})
	if err != nil {
		return nil, nil, err
	}

	bet := &models.Bet{
		UserID:      userID,
		RoundID:     round.ID,
		Amount:      amount,
		AutoCashout: autoCashout,
		Status:      models.BetStatusPending,
		Payout:      decimal.Zero,
	}
	if err := uow.BetRepository().Create(ctx, bet); err != nil {
		return nil, nil, err
	}

	event := events.BetPlacedEvent{
		BetID:       bet.ID,
		UserID:      userID,
		RoundNumber: round.RoundNumber,
		Amount:      amount.StringFixed(2),
	}
	if autoCashout != nil {
		event.AutoCashout = autoCashout.StringFixed(2)
	}
	uow.EventBus().Publish(event)

	if err := uow.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	receipt := &models.BetReceipt{
		BetID:       bet.ID,
		RoundNumber: round.RoundNumber,
		Amount:      amount.StringFixed(2),
		NewBalance:  txn.BalanceAfter.StringFixed(2),
	}
	return bet, receipt, nil
}

// SettleBetWon credits stake times multiplier and closes the bet
func (s *bettingService) SettleBetWon(ctx context.Context, roundNumber, betID, userID int64, stake, multiplier decimal.Decimal) (*models.CashoutResult, error) {
	payout := stake.Mul(multiplier).Round(2)

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := uow.BetRepository().Settle(ctx, betID, models.BetStatusWon, &multiplier, payout); err != nil {
		return nil, err
	}

	txn, err := ApplyLedgerEntry(ctx, uow, ApplyParams{
		UserID:      userID,
		Type:        models.TransactionTypeWin,
		Amount:      payout,
		Reference:   NewGameReference(),
		Description: fmt.Sprintf("cashout at %sx in round %d", multiplier.StringFixed(2), roundNumber),
	})
	if err != nil {
		return nil, err
	}

	if err := s.recordOutcome(ctx, uow, userID, stake, payout, multiplier, true); err != nil {
		return nil, err
	}

	uow.EventBus().Publish(events.BetSettledEvent{
		BetID:       betID,
		UserID:      userID,
		RoundNumber: roundNumber,
		Status:      models.BetStatusWon,
		Multiplier:  multiplier.StringFixed(2),
		Payout:      payout.StringFixed(2),
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &models.CashoutResult{
		BetID:      betID,
		Multiplier: multiplier.StringFixed(2),
		Payout:     payout.StringFixed(2),
		NewBalance: txn.BalanceAfter.StringFixed(2),
	}, nil
}

// SettleBetsLost closes bets that rode into the crash. Stakes were
// escrowed at placement, so the only writes are bet rows and statistics.
func (s *bettingService) SettleBetsLost(ctx context.Context, roundNumber int64, lost []LostBet) error {
	if len(lost) == 0 {
		return nil
	}

	// Lock statistics rows in a fixed order
	sorted := make([]LostBet, len(lost))
	copy(sorted, lost)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].UserID < sorted[j].UserID })

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	for _, item := range sorted {
		if err := uow.BetRepository().Settle(ctx, item.BetID, models.BetStatusLost, nil, decimal.Zero); err != nil {
			// A racing settlement already closed this bet; the others
			// still need theirs
			if models.IsStateConflict(err) {
				continue
			}
			return err
		}

		if err := s.recordOutcome(ctx, uow, item.UserID, item.Stake, decimal.Zero, decimal.Zero, false); err != nil {
			return err
		}

		uow.EventBus().Publish(events.BetSettledEvent{
			BetID:       item.BetID,
			UserID:      item.UserID,
			RoundNumber: roundNumber,
			Status:      models.BetStatusLost,
			Payout:      decimal.Zero.StringFixed(2),
		})
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CancelAndRefundBets voids all open bets of a round and returns the
// stakes. Refunds credit the primary balance.
func (s *bettingService) CancelAndRefundBets(ctx context.Context, round *models.Round) (int, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bets, err := uow.BetRepository().GetOpenByRound(ctx, round.ID)
	if err != nil {
		return 0, err
	}

	sort.Slice(bets, func(i, j int) bool { return bets[i].UserID < bets[j].UserID })

	for _, bet := range bets {
		if err := uow.BetRepository().Settle(ctx, bet.ID, models.BetStatusCancelled, nil, decimal.Zero); err != nil {
			return 0, err
		}

		_, err := ApplyLedgerEntry(ctx, uow, ApplyParams{
			UserID:      bet.UserID,
			Type:        models.TransactionTypeRefund,
			Amount:      bet.Amount,
			Reference:   NewGameReference(),
			Description: fmt.Sprintf("round %d aborted", round.RoundNumber),
		})
		if err != nil {
			return 0, err
		}

		uow.EventBus().Publish(events.BetSettledEvent{
			BetID:       bet.ID,
			UserID:      bet.UserID,
			RoundNumber: round.RoundNumber,
			Status:      models.BetStatusCancelled,
			Payout:      decimal.Zero.StringFixed(2),
		})
	}

	if err := uow.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return len(bets), nil
}

func (s *bettingService) validateStake(amount decimal.Decimal, autoCashout *decimal.Decimal) error {
	if !amount.Equal(amount.Round(2)) {
		return models.ValidationError{Field: "amount", Reason: "more than two decimal places"}
	}
	if amount.LessThan(s.limits.MinStake) {
		return models.ValidationError{Field: "amount", Reason: fmt.Sprintf("below minimum stake of %s", s.limits.MinStake.StringFixed(2))}
	}
	if amount.GreaterThan(s.limits.MaxStake) {
		return models.ValidationError{Field: "amount", Reason: fmt.Sprintf("above maximum stake of %s", s.limits.MaxStake.StringFixed(2))}
	}
	if autoCashout != nil {
		if !autoCashout.Equal(autoCashout.Round(2)) {
			return models.ValidationError{Field: "auto_cashout", Reason: "more than two decimal places"}
		}
		if autoCashout.LessThan(s.limits.MinAutoCashout) {
			return models.ValidationError{Field: "auto_cashout", Reason: fmt.Sprintf("below minimum of %s", s.limits.MinAutoCashout.StringFixed(2))}
		}
	}
	return nil
}

func (s *bettingService) recordOutcome(ctx context.Context, uow UnitOfWork, userID int64, stake, payout, multiplier decimal.Decimal, won bool) error {
	stats, err := uow.StatsRepository().GetForUpdate(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to lock statistics: %w", err)
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

	stats.RecordOutcome(stake, payout, multiplier, won)

	if err := uow.StatsRepository().Upsert(ctx, stats); err != nil {
		return fmt.Errorf("failed to update statistics: %w", err)
	}
	return nil
}
