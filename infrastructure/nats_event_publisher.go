package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"aviator/events"
	"aviator/models"
)

const (
	eventStreamName = "aviator_events"
	sourceService   = "aviator-engine"
	tickEventType   = "round_tick"
)

// eventEnvelope is the wire format of every message published to NATS
type eventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Timestamp     time.Time       `json:"timestamp"`
	SourceService string          `json:"source_service"`
	Payload       json.RawMessage `json:"payload"`
}

func newEnvelope(eventType string, payload []byte) eventEnvelope {
	return eventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Timestamp:     time.Now().UTC(),
		SourceService: sourceService,
		Payload:       payload,
	}
}

// NATSEventPublisher bridges domain events from the in-process bus to
// NATS JetStream subjects, and publishes live tick snapshots
type NATSEventPublisher struct {
	natsClient    *NATSClient
	subjectMapper *EventSubjectMapper
}

// NewNATSEventPublisher creates a new NATS event publisher
func NewNATSEventPublisher(natsClient *NATSClient, subjectMapper *EventSubjectMapper) *NATSEventPublisher {
	return &NATSEventPublisher{
		natsClient:    natsClient,
		subjectMapper: subjectMapper,
	}
}

// BridgeBus subscribes to every published event type on the bus and
// forwards each event to NATS. Bus handlers already run off the caller's
// goroutine, so forwarding never blocks the publisher.
func (p *NATSEventPublisher) BridgeBus(bus *events.Bus) {
	for _, eventType := range p.subjectMapper.PublishedEventTypes() {
		bus.Subscribe(eventType, func(ctx context.Context, event events.Event) {
			if err := p.publishEvent(ctx, event); err != nil {
				log.WithError(err).WithField("eventType", event.Type()).Error("Failed to publish event to NATS")
			}
		})
	}
	log.Info("Domain events bridged to NATS")
}

func (p *NATSEventPublisher) publishEvent(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	envelope := newEnvelope(string(event.Type()), payload)
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	subject := p.subjectMapper.MapEventToSubject(event)
	if err := p.natsClient.Publish(ctx, subject, data); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"eventType": event.Type(),
		"eventId":   envelope.EventID,
		"subject":   subject,
	}).Debug("Published event to NATS")
	return nil
}

// PublishTick publishes a live round snapshot on the tick subject
func (p *NATSEventPublisher) PublishTick(ctx context.Context, snapshot models.RoundSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal round snapshot: %w", err)
	}

	envelope := newEnvelope(tickEventType, payload)
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal tick envelope: %w", err)
	}

	return p.natsClient.Publish(ctx, tickSubject, data)
}

// EnsureEventStream ensures the aviator_events stream exists with every
// subject this service publishes to
func (p *NATSEventPublisher) EnsureEventStream() error {
	return p.natsClient.ensureStream(eventStreamName, p.subjectMapper.GetAllSubjects())
}
