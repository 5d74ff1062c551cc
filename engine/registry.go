package engine

import (
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"aviator/models"
)

// Tracked bet statuses. settling is a transient in-memory claim that
// serializes the manual-cashout/scanner/crash race; it never reaches
// the database.
const (
	trackedPending int32 = iota
	trackedActive
	trackedSettling
	trackedSettled
)

// trackedBet is the registry's in-memory view of one open bet
type trackedBet struct {
	betID       int64
	userID      int64
	stake       decimal.Decimal
	autoCashout *decimal.Decimal
	status      atomic.Int32
}

// claim atomically moves the bet from active to settling. Exactly one of
// the manual cashout, the auto-cashout scanner and the crash pass wins.
func (b *trackedBet) claim() bool {
	return b.status.CompareAndSwap(trackedActive, trackedSettling)
}

// release returns a claimed bet to active so another settlement path can
// pick it up. Called when a win settlement fails.
func (b *trackedBet) release() {
	b.status.CompareAndSwap(trackedSettling, trackedActive)
}

// settle marks the bet terminally settled in memory
func (b *trackedBet) settle() {
	b.status.Store(trackedSettled)
}

// Registry tracks the open bets of the running round and arbitrates
// their settlement claims. The engine resets it at every round.
type Registry struct {
	mu     sync.RWMutex
	byID   map[int64]*trackedBet
	byUser map[int64]*trackedBet
}

// NewRegistry creates an empty bet registry
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[int64]*trackedBet),
		byUser: make(map[int64]*trackedBet),
	}
}

// reset drops all tracked bets for a fresh round
func (r *Registry) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID = make(map[int64]*trackedBet)
	r.byUser = make(map[int64]*trackedBet)
}

// track registers a persisted bet as pending
func (r *Registry) track(bet *models.Bet) {
	tracked := &trackedBet{
		betID:       bet.ID,
		userID:      bet.UserID,
		stake:       bet.Amount,
		autoCashout: bet.AutoCashout,
	}
	tracked.status.Store(trackedPending)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[bet.ID] = tracked
	r.byUser[bet.UserID] = tracked
}

// hasOpen reports whether the user already has a bet in this round
func (r *Registry) hasOpen(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byUser[userID]
	return ok
}

// get returns the tracked bet, or nil when it is not part of this round
func (r *Registry) get(betID int64) *trackedBet {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.byID[betID]
}

// activateAll moves every pending bet to active at takeoff. Returns the
// number of bets activated.
func (r *Registry) activateAll() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	activated := 0
	for _, bet := range r.byID {
		if bet.status.CompareAndSwap(trackedPending, trackedActive) {
			activated++
		}
	}
	return activated
}

// dueForAutoCashout claims every active bet whose threshold the
// multiplier has reached. The caller settles the claimed bets.
func (r *Registry) dueForAutoCashout(multiplier decimal.Decimal) []*trackedBet {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var due []*trackedBet
	for _, bet := range r.byID {
		if bet.autoCashout == nil {
			continue
		}
		if bet.autoCashout.GreaterThan(multiplier) {
			continue
		}
		if bet.claim() {
			due = append(due, bet)
		}
	}
	return due
}

// claimAllActive claims every bet still active. Used by the crash pass
// once in-flight settlements have drained.
func (r *Registry) claimAllActive() []*trackedBet {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var claimed []*trackedBet
	for _, bet := range r.byID {
		if bet.claim() {
			claimed = append(claimed, bet)
		}
	}
	return claimed
}
