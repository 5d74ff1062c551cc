package engine

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"aviator/models"
)

// stateCell guards the engine's authoritative view of the running round.
// The engine loop is the only writer; request handlers and broadcasters
// read consistent copies under the lock.
type stateCell struct {
	mu          sync.RWMutex
	hasRound    bool
	roundID     int64
	roundNumber int64
	status      models.RoundStatus
	multiplier  decimal.Decimal
	startTime   time.Time
	started     bool
}

func newStateCell() *stateCell {
	return &stateCell{}
}

// setWaiting installs a freshly created round
func (c *stateCell) setWaiting(round *models.Round) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hasRound = true
	c.roundID = round.ID
	c.roundNumber = round.RoundNumber
	c.status = models.RoundStatusWaiting
	c.multiplier = decimal.NewFromInt(1)
	c.started = false
}

// setFlying marks takeoff
func (c *stateCell) setFlying(startTime time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status = models.RoundStatusFlying
	c.startTime = startTime
	c.started = true
}

// tick advances the multiplier
func (c *stateCell) tick(multiplier decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.multiplier = multiplier
}

// setCrashed finalizes the round at its terminal multiplier
func (c *stateCell) setCrashed(finalMultiplier decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status = models.RoundStatusCrashed
	c.multiplier = finalMultiplier
}

// currentRound returns a copy of the round as the request path may see
// it: identifiers, phase and the multiplier, never the crash point.
func (c *stateCell) currentRound() (models.Round, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.hasRound {
		return models.Round{}, false
	}
	round := models.Round{
		ID:          c.roundID,
		RoundNumber: c.roundNumber,
		Status:      c.status,
		Multiplier:  c.multiplier,
	}
	if c.started {
		start := c.startTime
		round.StartTime = &start
	}
	return round, true
}

// snapshot builds the broadcastable view of the round. The crash point
// appears only once the round has crashed.
func (c *stateCell) snapshot() (models.RoundSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.hasRound {
		return models.RoundSnapshot{}, false
	}
	snap := models.RoundSnapshot{
		RoundNumber: c.roundNumber,
		Status:      c.status,
		Multiplier:  c.multiplier.StringFixed(2),
		Timestamp:   time.Now(),
	}
	if c.status == models.RoundStatusCrashed {
		snap.CrashPoint = c.multiplier.StringFixed(2)
	}
	if c.started {
		start := c.startTime
		snap.StartTime = &start
	}
	return snap, true
}
