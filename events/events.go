package events

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"aviator/models"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeRoundCreated     EventType = "round_created"
	EventTypeRoundStarted     EventType = "round_started"
	EventTypeRoundCrashed     EventType = "round_crashed"
	EventTypeBetPlaced        EventType = "bet_placed"
	EventTypeBetSettled       EventType = "bet_settled"
	EventTypeBalanceChanged   EventType = "balance_changed"
	EventTypeUserCreated      EventType = "user_created"
	EventTypePaymentCompleted EventType = "payment_completed"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// RoundCreatedEvent fires when a new round opens for bets. The crash
// point is deliberately absent; it is revealed only on crash.
type RoundCreatedEvent struct {
	RoundNumber int64     `json:"round_number"`
	CreatedAt   time.Time `json:"created_at"`
}

func (e RoundCreatedEvent) Type() EventType {
	return EventTypeRoundCreated
}

// RoundStartedEvent fires at the waiting-to-flying transition
type RoundStartedEvent struct {
	RoundNumber int64     `json:"round_number"`
	StartTime   time.Time `json:"start_time"`
	ActiveBets  int       `json:"active_bets"`
}

func (e RoundStartedEvent) Type() EventType {
	return EventTypeRoundStarted
}

// RoundCrashedEvent fires when the round reaches its crash point.
// CrashPoint is a fixed-point decimal string.
type RoundCrashedEvent struct {
	RoundNumber int64     `json:"round_number"`
	CrashPoint  string    `json:"crash_point"`
	ServerSeed  string    `json:"server_seed,omitempty"`
	ClientSeed  string    `json:"client_seed,omitempty"`
	Nonce       int64     `json:"nonce,omitempty"`
	EndTime     time.Time `json:"end_time"`
}

func (e RoundCrashedEvent) Type() EventType {
	return EventTypeRoundCrashed
}

// BetPlacedEvent fires after a stake is escrowed and the bet recorded
type BetPlacedEvent struct {
	BetID       int64  `json:"bet_id"`
	UserID      int64  `json:"user_id"`
	RoundNumber int64  `json:"round_number"`
	Amount      string `json:"amount"`
	AutoCashout string `json:"auto_cashout,omitempty"`
}

func (e BetPlacedEvent) Type() EventType {
	return EventTypeBetPlaced
}

// BetSettledEvent fires exactly once per bet when it reaches a terminal
// status. Multiplier and Payout are fixed-point decimal strings; Payout
// is "0.00" for lost and cancelled bets.
type BetSettledEvent struct {
	BetID       int64            `json:"bet_id"`
	UserID      int64            `json:"user_id"`
	RoundNumber int64            `json:"round_number"`
	Status      models.BetStatus `json:"status"`
	Multiplier  string           `json:"multiplier,omitempty"`
	Payout      string           `json:"payout"`
}

func (e BetSettledEvent) Type() EventType {
	return EventTypeBetSettled
}

// BalanceChangedEvent fires for every completed ledger entry
type BalanceChangedEvent struct {
	UserID          int64                  `json:"user_id"`
	TransactionType models.TransactionType `json:"transaction_type"`
	Reference       string                 `json:"reference"`
	Amount          string                 `json:"amount"`
	BalanceBefore   string                 `json:"balance_before"`
	BalanceAfter    string                 `json:"balance_after"`
}

func (e BalanceChangedEvent) Type() EventType {
	return EventTypeBalanceChanged
}

// UserCreatedEvent fires when a new user registers
type UserCreatedEvent struct {
	UserID       int64  `json:"user_id"`
	PhoneNumber  string `json:"phone_number"`
	Username     string `json:"username"`
	WelcomeBonus string `json:"welcome_bonus"`
}

func (e UserCreatedEvent) Type() EventType {
	return EventTypeUserCreated
}

// PaymentCompletedEvent fires when a deposit or withdrawal reaches a
// terminal status via provider callback or expiry
type PaymentCompletedEvent struct {
	UserID    int64                    `json:"user_id"`
	Reference string                   `json:"reference"`
	Kind      models.TransactionType   `json:"kind"`
	Status    models.TransactionStatus `json:"status"`
	Amount    string                   `json:"amount"`
	Receipt   string                   `json:"receipt,omitempty"`
}

func (e PaymentCompletedEvent) Type() EventType {
	return EventTypePaymentCompleted
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
}

// Emit publishes an event to all registered handlers. Handlers run
// asynchronously so a slow subscriber cannot stall the emitter; this is
// what lets the engine publish from settlement paths without blocking.
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	for i, handler := range handlers {
		go func(h Handler, handlerIndex int) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// TransactionalBus stashes events published during a unit of work and
// flushes them to the real bus only after the database commit succeeds,
// so subscribers never observe effects of rolled-back transactions.
type TransactionalBus struct {
	real    *Bus
	pending []Event
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) {
	b.pending = append(b.pending, e)
}

// Flush emits all pending events. Called after a successful commit.
func (b *TransactionalBus) Flush(ctx context.Context) error {
	// Events outlive the transaction context that produced them
	eventCtx := context.Background()

	for _, ev := range b.pending {
		b.real.Emit(eventCtx, ev)
	}
	b.pending = nil
	return nil
}

// Discard drops all pending events. Called after rollback.
func (b *TransactionalBus) Discard() {
	b.pending = nil
}
