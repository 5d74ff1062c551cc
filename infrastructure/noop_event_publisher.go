package infrastructure

import (
	"context"

	"aviator/events"
	"aviator/models"
)

// NoopEventPublisher is an event publisher that does nothing.
// Used when NATS is not configured and in tests.
type NoopEventPublisher struct{}

// NewNoopEventPublisher creates a new no-op event publisher
func NewNoopEventPublisher() *NoopEventPublisher {
	return &NoopEventPublisher{}
}

// Publish does nothing with the event
func (n *NoopEventPublisher) Publish(event events.Event) {
	// No-op
}

// PublishTick does nothing with the snapshot
func (n *NoopEventPublisher) PublishTick(ctx context.Context, snapshot models.RoundSnapshot) error {
	return nil
}
