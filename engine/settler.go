package engine

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"aviator/models"
	"aviator/service"
)

const (
	settleAttempts = 3
	settleBackoff  = 100 * time.Millisecond
)

// settler runs bet settlements on a bounded pool of goroutines so ledger
// I/O never runs on the tick loop. Win settlements retry transient
// failures with backoff; a win that cannot be settled releases its claim
// so the crash pass still closes the bet.
type settler struct {
	betting service.BettingService
	slots   chan struct{}
	wg      sync.WaitGroup

	// onIntegrity is invoked when a settlement hits an integrity
	// violation. The engine halts the round in response.
	onIntegrity func(error)
}

func newSettler(betting service.BettingService, workers int, onIntegrity func(error)) *settler {
	return &settler{
		betting:     betting,
		slots:       make(chan struct{}, workers),
		onIntegrity: onIntegrity,
	}
}

// submitWin schedules a win settlement for a claimed bet at the given
// multiplier. Never blocks the caller.
func (s *settler) submitWin(ctx context.Context, roundNumber int64, bet *trackedBet, multiplier decimal.Decimal) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case s.slots <- struct{}{}:
		case <-ctx.Done():
			bet.release()
			return
		}
		defer func() { <-s.slots }()

		s.settleWin(ctx, roundNumber, bet, multiplier)
	}()
}

// drain blocks until every submitted settlement has finished
func (s *settler) drain() {
	s.wg.Wait()
}

func (s *settler) settleWin(ctx context.Context, roundNumber int64, bet *trackedBet, multiplier decimal.Decimal) {
	var err error
	for attempt := 1; attempt <= settleAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(time.Duration(attempt-1) * settleBackoff):
			case <-ctx.Done():
				bet.release()
				return
			}
		}

		_, err = s.betting.SettleBetWon(ctx, roundNumber, bet.betID, bet.userID, bet.stake, multiplier)
		if err == nil {
			bet.settle()
			return
		}
		if !retryable(err) {
			break
		}
		log.WithError(err).WithFields(log.Fields{
			"bet_id":  bet.betID,
			"round":   roundNumber,
			"attempt": attempt,
		}).Warn("Win settlement failed, retrying")
	}

	switch {
	case models.IsStateConflict(err):
		// The database already holds a terminal status for this bet
		bet.settle()
	case models.IsIntegrity(err):
		// Leave the claim in place: the bet's ledger state needs an
		// operator, not another settlement attempt.
		log.WithError(err).WithFields(log.Fields{
			"bet_id": bet.betID,
			"round":  roundNumber,
		}).Error("Win settlement hit an integrity violation")
		s.onIntegrity(err)
	default:
		bet.release()
		log.WithError(err).WithFields(log.Fields{
			"bet_id": bet.betID,
			"round":  roundNumber,
		}).Error("Win settlement exhausted retries, crash pass will close the bet")
	}
}

// settleLost closes every claimed bet as lost, retrying transient
// failures. Runs on the engine goroutine after in-flight wins drain.
func (s *settler) settleLost(ctx context.Context, roundNumber int64, claimed []*trackedBet) error {
	if len(claimed) == 0 {
		return nil
	}

	lost := make([]service.LostBet, 0, len(claimed))
	for _, bet := range claimed {
		lost = append(lost, service.LostBet{
			BetID:  bet.betID,
			UserID: bet.userID,
			Stake:  bet.stake,
		})
	}

	var err error
	for attempt := 1; attempt <= settleAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(time.Duration(attempt-1) * settleBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err = s.betting.SettleBetsLost(ctx, roundNumber, lost)
		if err == nil {
			for _, bet := range claimed {
				bet.settle()
			}
			return nil
		}
		if !retryable(err) {
			break
		}
		log.WithError(err).WithFields(log.Fields{
			"round":   roundNumber,
			"bets":    len(lost),
			"attempt": attempt,
		}).Warn("Lost settlement failed, retrying")
	}

	if models.IsIntegrity(err) {
		s.onIntegrity(err)
	}
	return err
}

// retryable reports whether a settlement error is worth another attempt.
// The typed business errors are final verdicts; anything else is assumed
// to be storage trouble.
func retryable(err error) bool {
	return !models.IsValidation(err) &&
		!models.IsStateConflict(err) &&
		!models.IsInsufficientFunds(err) &&
		!models.IsIntegrity(err)
}
