package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"aviator/events"
	"aviator/models"
)

// roundService implements the RoundService interface
type roundService struct {
	uowFactory UnitOfWorkFactory
}

// NewRoundService creates a new round service
func NewRoundService(uowFactory UnitOfWorkFactory) RoundService {
	return &roundService{uowFactory: uowFactory}
}

// NextRoundNumber returns the number the next round will carry
func (s *roundService) NextRoundNumber(ctx context.Context) (int64, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback() // No-op if already committed

	number, err := uow.RoundRepository().NextRoundNumber(ctx)
	if err != nil {
		return 0, err
	}
	return number, nil
}

// CreateRound persists a new waiting round. The caller fills in the
// crash point and seeds; this only writes and announces it.
func (s *roundService) CreateRound(ctx context.Context, round *models.Round) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := uow.RoundRepository().Create(ctx, round); err != nil {
		return err
	}

	// The crash point stays out of the announcement until the crash
	uow.EventBus().Publish(events.RoundCreatedEvent{
		RoundNumber: round.RoundNumber,
		CreatedAt:   round.CreatedAt,
	})

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// StartRound flips a waiting round to flying and activates its pending
// bets. Returns how many bets went active.
func (s *roundService) StartRound(ctx context.Context, round *models.Round) (int64, error) {
	now := time.Now()

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	round.Status = models.RoundStatusFlying
	round.StartTime = &now
	if err := uow.RoundRepository().Update(ctx, round); err != nil {
		return 0, err
	}

	activated, err := uow.BetRepository().ActivateForRound(ctx, round.ID)
	if err != nil {
		return 0, err
	}

	uow.EventBus().Publish(events.RoundStartedEvent{
		RoundNumber: round.RoundNumber,
		StartTime:   now,
		ActiveBets:  int(activated),
	})

	if err := uow.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return activated, nil
}

// CrashRound finalizes a flying round at its crash point and reveals
// the seeds that produced it
func (s *roundService) CrashRound(ctx context.Context, round *models.Round) error {
	return s.finalize(ctx, round, round.CrashPoint)
}

// AbortRound finalizes a round that never reached its crash point. The
// stored crash point stays untouched; only the played multiplier is set.
func (s *roundService) AbortRound(ctx context.Context, round *models.Round, finalMultiplier decimal.Decimal) error {
	return s.finalize(ctx, round, finalMultiplier)
}

func (s *roundService) finalize(ctx context.Context, round *models.Round, finalMultiplier decimal.Decimal) error {
	now := time.Now()

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	round.Status = models.RoundStatusCrashed
	round.Multiplier = finalMultiplier
	round.EndTime = &now
	if err := uow.RoundRepository().Update(ctx, round); err != nil {
		return err
	}

	event := events.RoundCrashedEvent{
		RoundNumber: round.RoundNumber,
		CrashPoint:  finalMultiplier.StringFixed(2),
		EndTime:     now,
	}
	if round.ServerSeed != nil {
		event.ServerSeed = *round.ServerSeed
	}
	if round.ClientSeed != nil {
		event.ClientSeed = *round.ClientSeed
	}
	if round.Nonce != nil {
		event.Nonce = *round.Nonce
	}
	uow.EventBus().Publish(event)

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
