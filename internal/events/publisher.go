package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Sequencer hands out per-partition sequence numbers for enveloped events.
type Sequencer interface {
	NextSequence(ctx context.Context, partitionKey string) (int64, error)
}

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type Publisher struct {
	ch                 channel
	seq                Sequencer
	publishEnveloped   bool
	producerIdentifier string
	now                func() time.Time
}

type PublisherOptions struct {
	PublishEnveloped bool
	Producer         string
}

func NewPublisher(conn *amqp.Connection, seq Sequencer, opts PublisherOptions) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareEventsExchange(ch); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare events exchange: %w", err)
	}

	return newPublisher(ch, seq, opts), nil
}

func newPublisher(ch channel, seq Sequencer, opts PublisherOptions) *Publisher {
	producer := opts.Producer
	if producer == "" {
		producer = defaultProducer
	}
	return &Publisher{
		ch:                 ch,
		seq:                seq,
		publishEnveloped:   opts.PublishEnveloped,
		producerIdentifier: producer,
		now:                func() time.Time { return time.Now().UTC() },
	}
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

func (p *Publisher) PublishFlightDeactivated(ctx context.Context, meta EventMeta, payload FlightDeactivatedPayload) error {
	if payload.Timestamp.IsZero() {
		payload.Timestamp = p.now()
	}

	if !p.publishEnveloped {
		body, err := json.Marshal(LegacyFlightDeactivated{EventType: EventTypeFlightDeactivated, FlightDeactivatedPayload: payload})
		if err != nil {
			return fmt.Errorf("marshal FlightDeactivated: %w", err)
		}
		return p.publishJSON(ctx, FlightDeactivatedRoutingKey, body)
	}

	env, err := p.envelope(ctx, meta, EventTypeFlightDeactivated, flightDeactivatedSchema, payload.Timestamp)
	if err != nil {
		return err
	}
	body, err := json.Marshal(FlightDeactivatedEvent{EventEnvelope: env, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal FlightDeactivated envelope: %w", err)
	}
	return p.publishJSON(ctx, FlightDeactivatedRoutingKey, body)
}

func (p *Publisher) PublishReservationSynced(ctx context.Context, meta EventMeta, payload ReservationSyncedPayload) error {
	if payload.Timestamp.IsZero() {
		payload.Timestamp = p.now()
	}

	if !p.publishEnveloped {
		body, err := json.Marshal(LegacyReservationSynced{EventType: EventTypeReservationSynced, ReservationSyncedPayload: payload})
		if err != nil {
			return fmt.Errorf("marshal ReservationSynced: %w", err)
		}
		return p.publishJSON(ctx, ReservationSyncedRoutingKey, body)
	}

	env, err := p.envelope(ctx, meta, EventTypeReservationSynced, reservationSyncedSchema, payload.Timestamp)
	if err != nil {
		return err
	}
	body, err := json.Marshal(ReservationSyncedEvent{EventEnvelope: env, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal ReservationSynced envelope: %w", err)
	}
	return p.publishJSON(ctx, ReservationSyncedRoutingKey, body)
}

func (p *Publisher) envelope(ctx context.Context, meta EventMeta, name, schema string, occurredAt time.Time) (EventEnvelope, error) {
	seq, err := p.seq.NextSequence(ctx, meta.PartitionKey)
	if err != nil {
		return EventEnvelope{}, fmt.Errorf("reserve sequence: %w", err)
	}
	return newEnvelope(meta, seq, p.producerIdentifier, name, schema, occurredAt), nil
}

func (p *Publisher) publishJSON(ctx context.Context, routingKey string, body []byte) error {
	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(
		pubCtx,
		EventsExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

func newEnvelope(meta EventMeta, seq int64, producer, name, schema string, occurredAt time.Time) EventEnvelope {
	return EventEnvelope{
		EventName:     name,
		EventVersion:  1,
		EventID:       uuid.NewString(),
		CorrelationID: meta.CorrelationID,
		CausationID:   meta.CausationID,
		Producer:      producer,
		PartitionKey:  meta.PartitionKey,
		Sequence:      seq,
		OccurredAt:    occurredAt,
		Schema:        schema,
	}
}

// NopPublisher drops every event. Used when RABBITMQ_URL is not configured.
type NopPublisher struct{}

func (NopPublisher) PublishFlightDeactivated(context.Context, EventMeta, FlightDeactivatedPayload) error {
	return nil
}

func (NopPublisher) PublishReservationSynced(context.Context, EventMeta, ReservationSyncedPayload) error {
	return nil
}

func (NopPublisher) Close() error { return nil }
