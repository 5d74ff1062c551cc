package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"aviator/models"
	"aviator/service"
)

// Config tunes the engine's timing and settlement pool
type Config struct {
	WaitingDuration   time.Duration
	TickInterval      time.Duration
	CooldownDuration  time.Duration
	Curve             Curve
	SettlementWorkers int
}

// DefaultConfig returns the production timings
func DefaultConfig() Config {
	return Config{
		WaitingDuration:   5 * time.Second,
		TickInterval:      100 * time.Millisecond,
		CooldownDuration:  2 * time.Second,
		Curve:             DefaultCurve(),
		SettlementWorkers: 8,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.WaitingDuration <= 0 {
		c.WaitingDuration = def.WaitingDuration
	}
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	if c.CooldownDuration <= 0 {
		c.CooldownDuration = def.CooldownDuration
	}
	if c.Curve.GrowthRate <= 0 {
		c.Curve.GrowthRate = def.Curve.GrowthRate
	}
	if c.Curve.Exponent <= 0 {
		c.Curve.Exponent = def.Curve.Exponent
	}
	if c.SettlementWorkers <= 0 {
		c.SettlementWorkers = def.SettlementWorkers
	}
	return c
}

// Broadcaster receives round snapshots from the tick loop. Implementations
// must not block; the engine calls Broadcast at tick cadence.
type Broadcaster interface {
	Broadcast(snapshot models.RoundSnapshot)
}

var errEngineStopped = errors.New("engine stopped")

// Engine owns the round lifecycle: a single goroutine advances the game
// at a fixed cadence while request handlers place bets and cash out
// concurrently. The engine is the sole writer of round status and
// multiplier; bet settlements are arbitrated by the registry's claims.
type Engine struct {
	cfg         Config
	rounds      service.RoundService
	betting     service.BettingService
	generator   Generator
	broadcaster Broadcaster

	state    *stateCell
	registry *Registry
	settler  *settler
	scanner  *autoCashoutScanner

	// betGate admits placements while the round waits; cashoutGate
	// admits cashouts while it flies
	betGate     *gate
	cashoutGate *gate

	haltCh chan error
}

// New creates an engine. Start must be called before it accepts play.
func New(cfg Config, rounds service.RoundService, betting service.BettingService, generator Generator, broadcaster Broadcaster) *Engine {
	cfg = cfg.withDefaults()

	e := &Engine{
		cfg:         cfg,
		rounds:      rounds,
		betting:     betting,
		generator:   generator,
		broadcaster: broadcaster,
		state:       newStateCell(),
		registry:    NewRegistry(),
		betGate:     newGate(),
		cashoutGate: newGate(),
		haltCh:      make(chan error, 1),
	}
	e.settler = newSettler(betting, cfg.SettlementWorkers, e.requestHalt)
	e.scanner = &autoCashoutScanner{registry: e.registry, settler: e.settler}
	return e
}

// Start runs the round loop until the returned stop function is called
// or the context is cancelled. Stop blocks until the loop and all
// in-flight settlements have finished.
func (e *Engine) Start(ctx context.Context) func() {
	stopChan := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer e.settler.drain()

		log.Info("Game engine started")

		next, ok := e.seedRoundCounter(ctx, stopChan)
		if !ok {
			log.Info("Game engine shutting down...")
			return
		}

		for {
			err := e.runRound(ctx, stopChan, next)
			switch {
			case errors.Is(err, errEngineStopped):
				log.Info("Game engine shutting down...")
				return
			case err != nil:
				log.WithError(err).WithField("round", next).Error("Round ended abnormally")
				// The database knows whether round N was persisted.
				// Reseeding keeps the numbering gap-free when creation
				// itself failed and round N never existed.
				var ok bool
				next, ok = e.seedRoundCounter(ctx, stopChan)
				if !ok {
					log.Info("Game engine shutting down...")
					return
				}
			default:
				next++
			}

			if e.sleep(ctx, stopChan, e.cfg.CooldownDuration) {
				log.Info("Game engine shutting down...")
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(stopChan) })
		<-done
	}
}

// PlaceBet accepts a stake for the waiting round. Safe for concurrent
// use; the bet gate guarantees every accepted bet is activated at
// takeoff.
func (e *Engine) PlaceBet(ctx context.Context, userID int64, amount decimal.Decimal, autoCashout *decimal.Decimal) (*models.BetReceipt, error) {
	if !e.betGate.enter() {
		return nil, models.StateConflictError{Reason: "round is not accepting bets"}
	}
	defer e.betGate.exit()

	round, ok := e.state.currentRound()
	if !ok {
		return nil, models.StateConflictError{Reason: "round is not accepting bets"}
	}
	if e.registry.hasOpen(userID) {
		return nil, models.StateConflictError{Reason: "user already has a bet in this round"}
	}

	bet, receipt, err := e.betting.PersistPlacedBet(ctx, &round, userID, amount, autoCashout)
	if err != nil {
		return nil, err
	}
	e.registry.track(bet)

	log.WithFields(log.Fields{
		"round":   round.RoundNumber,
		"user_id": userID,
		"bet_id":  bet.ID,
		"amount":  amount.StringFixed(2),
	}).Info("Bet placed")
	return receipt, nil
}

// CashOut settles the caller's active bet at the current multiplier.
// Exactly one of a manual cashout, the auto-cashout scanner and the
// crash pass ever settles a bet.
func (e *Engine) CashOut(ctx context.Context, userID, betID int64) (*models.CashoutResult, error) {
	if !e.cashoutGate.enter() {
		return nil, models.StateConflictError{Reason: "round is not flying"}
	}
	defer e.cashoutGate.exit()

	bet := e.registry.get(betID)
	if bet == nil {
		return nil, models.StateConflictError{Reason: "bet is not part of the current round"}
	}
	if bet.userID != userID {
		return nil, models.StateConflictError{Reason: "bet belongs to another user"}
	}

	round, ok := e.state.currentRound()
	if !ok || round.Status != models.RoundStatusFlying {
		return nil, models.StateConflictError{Reason: "round is not flying"}
	}
	multiplier := round.Multiplier

	if !bet.claim() {
		return nil, models.StateConflictError{Reason: "bet is not active"}
	}

	result, err := e.betting.SettleBetWon(ctx, round.RoundNumber, bet.betID, bet.userID, bet.stake, multiplier)
	if err != nil {
		switch {
		case models.IsStateConflict(err):
			// The database already holds a terminal status
			bet.settle()
		case models.IsIntegrity(err):
			// Leave the claim in place and halt the round
			e.requestHalt(err)
		default:
			bet.release()
		}
		return nil, err
	}
	bet.settle()

	log.WithFields(log.Fields{
		"round":      round.RoundNumber,
		"user_id":    userID,
		"bet_id":     betID,
		"multiplier": multiplier.StringFixed(2),
		"payout":     result.Payout,
	}).Info("Bet cashed out")
	return result, nil
}

// Snapshot returns the engine's view of the current round
func (e *Engine) Snapshot() (models.RoundSnapshot, bool) {
	return e.state.snapshot()
}

// runRound drives one round from creation to its crash
func (e *Engine) runRound(ctx context.Context, stopChan <-chan struct{}, number int64) error {
	// Drop any halt report left over from the previous round
	select {
	case <-e.haltCh:
	default:
	}

	crashPoint, proof := e.generator.Generate()

	round := &models.Round{
		RoundNumber: number,
		Status:      models.RoundStatusWaiting,
		Multiplier:  decimal.NewFromInt(1),
		CrashPoint:  crashPoint,
	}
	if !proof.Empty() {
		round.ServerSeed = &proof.ServerSeed
		round.ClientSeed = &proof.ClientSeed
		round.Nonce = &proof.Nonce
	}

	if err := e.rounds.CreateRound(ctx, round); err != nil {
		return fmt.Errorf("failed to create round %d: %w", number, err)
	}

	e.registry.reset()
	e.state.setWaiting(round)
	e.broadcast()
	e.betGate.open()

	log.WithFields(log.Fields{
		"round":       number,
		"crash_point": crashPoint.StringFixed(2),
	}).Debug("Round open for bets")

	if e.sleep(ctx, stopChan, e.cfg.WaitingDuration) {
		e.betGate.close()
		return errEngineStopped
	}

	// Quiesce placements so takeoff activates every accepted bet
	e.betGate.close()

	activated, err := e.rounds.StartRound(ctx, round)
	if err != nil {
		e.abortNotFlown(ctx, round)
		return fmt.Errorf("failed to start round %d: %w", number, err)
	}
	e.registry.activateAll()
	e.state.setFlying(*round.StartTime)
	e.cashoutGate.open()
	e.broadcast()

	log.WithFields(log.Fields{
		"round":       number,
		"active_bets": activated,
	}).Info("Round flying")

	return e.fly(ctx, stopChan, round)
}

// fly ticks the multiplier from takeoff to the crash point
func (e *Engine) fly(ctx context.Context, stopChan <-chan struct{}, round *models.Round) error {
	start := *round.StartTime
	lastMultiplier := decimal.NewFromInt(1)

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.cashoutGate.close()
			return errEngineStopped
		case <-stopChan:
			e.cashoutGate.close()
			return errEngineStopped
		case err := <-e.haltCh:
			return e.forceCrash(ctx, round, lastMultiplier, err)
		case <-ticker.C:
			// Game time derives from the start time, not tick counts,
			// so a delayed tick cannot slow the curve down
			multiplier := e.cfg.Curve.At(time.Since(start))
			if multiplier.GreaterThanOrEqual(round.CrashPoint) {
				return e.crash(ctx, round)
			}

			lastMultiplier = multiplier
			e.state.tick(multiplier)
			e.broadcast()
			e.scanner.scan(ctx, round.RoundNumber, multiplier)
		}
	}
}

// crash ends the round at its crash point: remaining auto-cashouts whose
// thresholds were reached in flight win, everyone still active loses.
func (e *Engine) crash(ctx context.Context, round *models.Round) error {
	crashPoint := round.CrashPoint

	e.state.setCrashed(crashPoint)
	e.broadcast()

	log.WithFields(log.Fields{
		"round":       round.RoundNumber,
		"crash_point": crashPoint.StringFixed(2),
	}).Info("Round crashed")

	// Thresholds at or below the crash point were reached in flight
	e.scanner.scan(ctx, round.RoundNumber, crashPoint)

	e.cashoutGate.close()
	e.settler.drain()

	riders := e.registry.claimAllActive()
	if err := e.settler.settleLost(ctx, round.RoundNumber, riders); err != nil {
		// Leave the round flying in the database; startup recovery will
		// force-crash it and settle whatever is still open
		return fmt.Errorf("failed to settle lost bets of round %d: %w", round.RoundNumber, err)
	}

	if err := e.rounds.CrashRound(ctx, round); err != nil {
		return fmt.Errorf("failed to finalize round %d: %w", round.RoundNumber, err)
	}
	return nil
}

// forceCrash ends the round at the last valid multiplier after an
// integrity failure. No further wins are granted.
func (e *Engine) forceCrash(ctx context.Context, round *models.Round, lastMultiplier decimal.Decimal, cause error) error {
	log.WithError(cause).WithField("round", round.RoundNumber).Error("Halting round at last valid multiplier")

	e.state.setCrashed(lastMultiplier)
	e.broadcast()

	e.cashoutGate.close()
	e.settler.drain()

	riders := e.registry.claimAllActive()
	if err := e.settler.settleLost(ctx, round.RoundNumber, riders); err != nil {
		log.WithError(err).WithField("round", round.RoundNumber).Error("Failed to settle remaining bets of halted round")
	}

	if err := e.rounds.AbortRound(ctx, round, lastMultiplier); err != nil {
		return fmt.Errorf("failed to abort halted round %d: %w", round.RoundNumber, err)
	}
	return nil
}

// abortNotFlown voids a round that never took off, returning all stakes
func (e *Engine) abortNotFlown(ctx context.Context, round *models.Round) {
	refunded, err := e.betting.CancelAndRefundBets(ctx, round)
	if err != nil {
		log.WithError(err).WithField("round", round.RoundNumber).Error("Failed to refund bets of aborted round")
	} else if refunded > 0 {
		log.WithFields(log.Fields{
			"round":         round.RoundNumber,
			"refunded_bets": refunded,
		}).Warn("Refunded bets of aborted round")
	}

	if err := e.rounds.AbortRound(ctx, round, decimal.NewFromInt(1)); err != nil {
		log.WithError(err).WithField("round", round.RoundNumber).Error("Failed to abort round")
	}
	e.state.setCrashed(decimal.NewFromInt(1))
	e.broadcast()
}

// requestHalt asks the tick loop to end the round at the last valid
// multiplier. Non-blocking; only the first report per round is kept.
func (e *Engine) requestHalt(err error) {
	select {
	case e.haltCh <- err:
	default:
	}
}

// seedRoundCounter loads the next round number, retrying until the
// database answers or the engine is stopped
func (e *Engine) seedRoundCounter(ctx context.Context, stopChan <-chan struct{}) (int64, bool) {
	for {
		next, err := e.rounds.NextRoundNumber(ctx)
		if err == nil {
			return next, true
		}
		log.WithError(err).Error("Failed to seed round counter, retrying")

		if e.sleep(ctx, stopChan, time.Second) {
			return 0, false
		}
	}
}

func (e *Engine) broadcast() {
	if e.broadcaster == nil {
		return
	}
	if snap, ok := e.state.snapshot(); ok {
		e.broadcaster.Broadcast(snap)
	}
}

// sleep waits for the duration. Returns true when the engine should stop.
func (e *Engine) sleep(ctx context.Context, stopChan <-chan struct{}, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return true
	case <-stopChan:
		return true
	case <-time.After(d):
		return false
	}
}
