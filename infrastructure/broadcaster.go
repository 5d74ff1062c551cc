package infrastructure

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"aviator/models"
)

// MultiplierStore persists the live multiplier of the running round
type MultiplierStore interface {
	UpdateLiveMultiplier(ctx context.Context, roundNumber int64, multiplier decimal.Decimal) error
}

// TickPublisher pushes live round snapshots to the message bus
type TickPublisher interface {
	PublishTick(ctx context.Context, snapshot models.RoundSnapshot) error
}

// LiveStore holds the transport-facing view of the running round
type LiveStore interface {
	SetCurrentRound(ctx context.Context, snapshot models.RoundSnapshot) error
	PushRecentCrash(ctx context.Context, crashPoint string) error
}

// LiveBroadcaster fans engine snapshots out to the live store, the tick
// subject and the round row. Broadcast never blocks the tick loop: an
// unconsumed snapshot is replaced by the newer one, so a slow sink only
// costs intermediate ticks. Best effort; Postgres stays authoritative.
type LiveBroadcaster struct {
	live  LiveStore
	ticks TickPublisher
	store MultiplierStore

	snapshots chan models.RoundSnapshot
}

// NewLiveBroadcaster creates a broadcaster over the given sinks. Any
// sink may be nil when its backend is not configured.
func NewLiveBroadcaster(live LiveStore, ticks TickPublisher, store MultiplierStore) *LiveBroadcaster {
	return &LiveBroadcaster{
		live:      live,
		ticks:     ticks,
		store:     store,
		snapshots: make(chan models.RoundSnapshot, 1),
	}
}

// Broadcast hands a snapshot to the publishing worker without blocking
func (b *LiveBroadcaster) Broadcast(snapshot models.RoundSnapshot) {
	for {
		select {
		case b.snapshots <- snapshot:
			return
		default:
		}
		// Full: drop the unconsumed snapshot, then retry with the newer one
		select {
		case <-b.snapshots:
		default:
		}
	}
}

// Start runs the publishing worker until the returned stop function is
// called or the context is cancelled
func (b *LiveBroadcaster) Start(ctx context.Context) func() {
	stopChan := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		log.Info("Live broadcaster started")

		for {
			select {
			case <-ctx.Done():
				log.Info("Live broadcaster shutting down...")
				return
			case <-stopChan:
				log.Info("Live broadcaster shutting down...")
				return
			case snapshot := <-b.snapshots:
				b.publish(ctx, snapshot)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(stopChan) })
		<-done
	}
}

func (b *LiveBroadcaster) publish(ctx context.Context, snapshot models.RoundSnapshot) {
	if b.live != nil {
		if err := b.live.SetCurrentRound(ctx, snapshot); err != nil {
			log.WithError(err).Warn("Failed to store live round snapshot")
		}
		if snapshot.Status == models.RoundStatusCrashed && snapshot.CrashPoint != "" {
			if err := b.live.PushRecentCrash(ctx, snapshot.CrashPoint); err != nil {
				log.WithError(err).Warn("Failed to record recent crash")
			}
		}
	}

	if b.ticks != nil {
		if err := b.ticks.PublishTick(ctx, snapshot); err != nil {
			log.WithError(err).Warn("Failed to publish round tick")
		}
	}

	if b.store != nil && snapshot.Status == models.RoundStatusFlying {
		multiplier, err := decimal.NewFromString(snapshot.Multiplier)
		if err != nil {
			log.WithError(err).WithField("multiplier", snapshot.Multiplier).Error("Malformed multiplier in round snapshot")
			return
		}
		if err := b.store.UpdateLiveMultiplier(ctx, snapshot.RoundNumber, multiplier); err != nil {
			log.WithError(err).Warn("Failed to persist live multiplier")
		}
	}
}
