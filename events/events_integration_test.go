package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"aviator/models"
)

// TestEventDeliveryIntegration tests the complete event flow from TransactionalBus to main Bus
func TestEventDeliveryIntegration(t *testing.T) {
	// Create main event bus
	mainBus := NewBus()

	// Create transactional bus that wraps the main bus
	transactionalBus := NewTransactionalBus(mainBus)

	// Set up a channel to capture received events
	eventReceived := make(chan BalanceChangedEvent, 1)
	var wg sync.WaitGroup
	wg.Add(1)

	// Subscribe to balance change events on the main bus
	mainBus.Subscribe(EventTypeBalanceChanged, func(ctx context.Context, event Event) {
		defer wg.Done()
		if balanceEvent, ok := event.(BalanceChangedEvent); ok {
			select {
			case eventReceived <- balanceEvent:
			case <-time.After(1 * time.Second):
				t.Error("Timeout sending event to channel")
			}
		} else {
			t.Errorf("Expected BalanceChangedEvent, got %T", event)
		}
	})

	// Create a test event
	testEvent := BalanceChangedEvent{
		UserID:          123456,
		TransactionType: models.TransactionTypeWin,
		Reference:       "TXN0011aabbccdd",
		Amount:          "500.00",
		BalanceBefore:   "1000.00",
		BalanceAfter:    "1500.00",
	}

	// Publish event to transactional bus (simulating service layer)
	transactionalBus.Publish(testEvent)

	// Flush events (simulating successful transaction commit)
	ctx := context.Background()
	err := transactionalBus.Flush(ctx)
	assert.NoError(t, err)

	// Wait for event to be processed
	wg.Wait()

	// Verify the event was received
	select {
	case receivedEvent := <-eventReceived:
		assert.Equal(t, testEvent.UserID, receivedEvent.UserID)
		assert.Equal(t, testEvent.TransactionType, receivedEvent.TransactionType)
		assert.Equal(t, testEvent.Reference, receivedEvent.Reference)
		assert.Equal(t, testEvent.Amount, receivedEvent.Amount)
		assert.Equal(t, testEvent.BalanceBefore, receivedEvent.BalanceBefore)
		assert.Equal(t, testEvent.BalanceAfter, receivedEvent.BalanceAfter)
	case <-time.After(2 * time.Second):
		t.Fatal("Event was not received within timeout")
	}
}

// TestMultipleEventsDelivery tests delivering multiple events in sequence
func TestMultipleEventsDelivery(t *testing.T) {
	mainBus := NewBus()
	transactionalBus := NewTransactionalBus(mainBus)

	eventsReceived := make(chan BetSettledEvent, 3)
	var wg sync.WaitGroup
	wg.Add(3)

	mainBus.Subscribe(EventTypeBetSettled, func(ctx context.Context, event Event) {
		defer wg.Done()
		if settledEvent, ok := event.(BetSettledEvent); ok {
			eventsReceived <- settledEvent
		}
	})

	// Create and publish multiple test events
	events := []BetSettledEvent{
		{BetID: 1, UserID: 1, RoundNumber: 100, Status: models.BetStatusWon, Multiplier: "2.00", Payout: "200.00"},
		{BetID: 2, UserID: 2, RoundNumber: 100, Status: models.BetStatusWon, Multiplier: "3.50", Payout: "350.00"},
		{BetID: 3, UserID: 3, RoundNumber: 100, Status: models.BetStatusLost, Payout: "0.00"},
	}

	for _, event := range events {
		transactionalBus.Publish(event)
	}

	// Flush all events
	ctx := context.Background()
	err := transactionalBus.Flush(ctx)
	assert.NoError(t, err)

	// Wait for all events to be processed
	wg.Wait()

	// Verify all events were received
	receivedEvents := make([]BetSettledEvent, 0, 3)
	for i := 0; i < 3; i++ {
		select {
		case event := <-eventsReceived:
			receivedEvents = append(receivedEvents, event)
		case <-time.After(2 * time.Second):
			t.Fatalf("Only received %d out of 3 events", len(receivedEvents))
		}
	}

	assert.Len(t, receivedEvents, 3)

	// Check that all original events were received (order may vary due to goroutines)
	betIDs := make(map[int64]bool)
	for _, received := range receivedEvents {
		betIDs[received.BetID] = true
	}

	assert.True(t, betIDs[1])
	assert.True(t, betIDs[2])
	assert.True(t, betIDs[3])
}

// TestTransactionalBusDiscard tests that discarded events are not delivered
func TestTransactionalBusDiscard(t *testing.T) {
	mainBus := NewBus()
	transactionalBus := NewTransactionalBus(mainBus)

	eventReceived := make(chan bool, 1)

	mainBus.Subscribe(EventTypeBalanceChanged, func(ctx context.Context, event Event) {
		eventReceived <- true
	})

	// Publish event
	testEvent := BalanceChangedEvent{
		UserID:          123456,
		TransactionType: models.TransactionTypeWin,
		Reference:       "TXN00ffee112233",
		Amount:          "500.00",
		BalanceBefore:   "1000.00",
		BalanceAfter:    "1500.00",
	}
	transactionalBus.Publish(testEvent)

	// Discard instead of flush (simulating transaction rollback)
	transactionalBus.Discard()

	// Verify no event was received
	select {
	case <-eventReceived:
		t.Fatal("Event was received despite being discarded")
	case <-time.After(100 * time.Millisecond):
		// Expected - no event should be received
	}
}

// TestHandlerPanicDoesNotAffectOthers tests that a panicking handler does not
// prevent other handlers from receiving the event
func TestHandlerPanicDoesNotAffectOthers(t *testing.T) {
	mainBus := NewBus()

	received := make(chan bool, 1)

	mainBus.Subscribe(EventTypeRoundCrashed, func(ctx context.Context, event Event) {
		panic("handler failure")
	})
	mainBus.Subscribe(EventTypeRoundCrashed, func(ctx context.Context, event Event) {
		received <- true
	})

	mainBus.Emit(context.Background(), RoundCrashedEvent{
		RoundNumber: 42,
		CrashPoint:  "2.37",
		EndTime:     time.Now(),
	})

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("Second handler did not receive event after first panicked")
	}
}
