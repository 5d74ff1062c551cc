package infrastructure

import (
	"fmt"

	"aviator/events"
)

// tickSubject carries live multiplier snapshots. Ticks are not bus
// events; the broadcaster publishes them directly.
const tickSubject = "rounds.tick"

// EventSubjectMapper handles mapping between domain events and NATS subjects
type EventSubjectMapper struct{}

// NewEventSubjectMapper creates a new event subject mapper
func NewEventSubjectMapper() *EventSubjectMapper {
	return &EventSubjectMapper{}
}

// MapEventToSubject converts a domain event to its corresponding NATS subject
func (m *EventSubjectMapper) MapEventToSubject(event events.Event) string {
	return m.subjectForType(event.Type())
}

func (m *EventSubjectMapper) subjectForType(eventType events.EventType) string {
	switch eventType {
	case events.EventTypeRoundCreated:
		return "rounds.created"
	case events.EventTypeRoundStarted:
		return "rounds.started"
	case events.EventTypeRoundCrashed:
		return "rounds.crashed"
	case events.EventTypeBetPlaced:
		return "bets.placed"
	case events.EventTypeBetSettled:
		return "bets.settled"
	case events.EventTypeBalanceChanged:
		return "users.balance_changed"
	case events.EventTypeUserCreated:
		return "users.created"
	case events.EventTypePaymentCompleted:
		return "payments.completed"
	default:
		return fmt.Sprintf("unknown.%s", eventType)
	}
}

// PublishedEventTypes returns every event type bridged to NATS
func (m *EventSubjectMapper) PublishedEventTypes() []events.EventType {
	return []events.EventType{
		events.EventTypeRoundCreated,
		events.EventTypeRoundStarted,
		events.EventTypeRoundCrashed,
		events.EventTypeBetPlaced,
		events.EventTypeBetSettled,
		events.EventTypeBalanceChanged,
		events.EventTypeUserCreated,
		events.EventTypePaymentCompleted,
	}
}

// GetAllSubjects returns all subjects this service publishes to,
// including the live tick subject
func (m *EventSubjectMapper) GetAllSubjects() []string {
	types := m.PublishedEventTypes()
	subjects := make([]string, 0, len(types)+1)
	for _, t := range types {
		subjects = append(subjects, m.subjectForType(t))
	}
	return append(subjects, tickSubject)
}
