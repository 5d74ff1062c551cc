package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"aviator/models"
	"aviator/service"
)

// Recovery reconciles rounds a previous process left unresolved, so no
// bet stays open across restarts. It runs before the engine's first
// round and needs nothing but the database.
type Recovery struct {
	uowFactory service.UnitOfWorkFactory
	rounds     service.RoundService
	betting    service.BettingService
}

// NewRecovery creates a recovery pass over unresolved rounds
func NewRecovery(uowFactory service.UnitOfWorkFactory, rounds service.RoundService, betting service.BettingService) *Recovery {
	return &Recovery{
		uowFactory: uowFactory,
		rounds:     rounds,
		betting:    betting,
	}
}

// Run settles every unresolved round and returns how many it reconciled.
// A round that never took off is voided with refunds; a round caught
// mid-flight is forced to its stored crash point, since the multiplier
// path is fully determined once the crash point is fixed.
func (r *Recovery) Run(ctx context.Context) (int, error) {
	unresolved, err := r.findUnresolved(ctx)
	if err != nil {
		return 0, err
	}
	if len(unresolved) == 0 {
		return 0, nil
	}

	log.WithField("rounds", len(unresolved)).Warn("Recovering unresolved rounds")

	reconciled := 0
	for _, round := range unresolved {
		switch round.Status {
		case models.RoundStatusWaiting:
			err = r.abortWaiting(ctx, round)
		case models.RoundStatusFlying:
			err = r.resolveFlying(ctx, round)
		default:
			continue
		}
		if err != nil {
			return reconciled, fmt.Errorf("failed to recover round %d: %w", round.RoundNumber, err)
		}
		reconciled++
	}

	return reconciled, nil
}

// abortWaiting voids a round that never took off: every open bet is
// cancelled with its stake returned, and the round ends at 1.00.
func (r *Recovery) abortWaiting(ctx context.Context, round *models.Round) error {
	refunded, err := r.betting.CancelAndRefundBets(ctx, round)
	if err != nil {
		return err
	}

	if err := r.rounds.AbortRound(ctx, round, decimal.NewFromInt(1)); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"round":         round.RoundNumber,
		"refunded_bets": refunded,
	}).Info("Voided round that never took off")
	return nil
}

// resolveFlying plays a flying round out to its stored crash point:
// bets whose auto-cashout threshold lies at or below the crash point
// win at their threshold, everything else loses.
func (r *Recovery) resolveFlying(ctx context.Context, round *models.Round) error {
	bets, err := r.openBets(ctx, round.ID)
	if err != nil {
		return err
	}

	won := 0
	var lost []service.LostBet
	for _, bet := range bets {
		if bet.AutoCashout != nil && bet.AutoCashout.LessThanOrEqual(round.CrashPoint) {
			_, err := r.betting.SettleBetWon(ctx, round.RoundNumber, bet.ID, bet.UserID, bet.Amount, *bet.AutoCashout)
			if err != nil {
				if models.IsStateConflict(err) {
					// Settled before the shutdown; nothing left to do
					continue
				}
				return err
			}
			won++
			continue
		}
		lost = append(lost, service.LostBet{
			BetID:  bet.ID,
			UserID: bet.UserID,
			Stake:  bet.Amount,
		})
	}

	if len(lost) > 0 {
		if err := r.betting.SettleBetsLost(ctx, round.RoundNumber, lost); err != nil {
			return err
		}
	}

	if err := r.rounds.CrashRound(ctx, round); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"round":       round.RoundNumber,
		"crash_point": round.CrashPoint.StringFixed(2),
		"won_bets":    won,
		"lost_bets":   len(lost),
	}).Info("Forced interrupted round to its crash point")
	return nil
}

func (r *Recovery) findUnresolved(ctx context.Context) ([]*models.Round, error) {
	uow := r.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return uow.RoundRepository().FindUnresolved(ctx)
}

func (r *Recovery) openBets(ctx context.Context, roundID int64) ([]*models.Bet, error) {
	uow := r.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return uow.BetRepository().GetOpenByRound(ctx, roundID)
}
