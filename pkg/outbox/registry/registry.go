// Package registry routes outbox rows to Pub/Sub topics and decodes their
// typed payloads before publish.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketledger-backend/pkg/config"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox/payloads"
)

// NonRetryableError marks a row that can never be published as stored. The
// relay dead-letters it on first sight.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func rejectf(format string, args ...any) error {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}

// ResolvedEvent is an outbox row that passed validation, with the topic it
// goes to and its decoded payload.
type ResolvedEvent struct {
	Topic    string
	Envelope outbox.PayloadEnvelope
	Payload  any
}

type route struct {
	topic      string
	newPayload func() any
}

// EventRegistry knows the topic and payload type of every event type.
type EventRegistry struct {
	routes map[enums.OutboxEventType]route
}

func payloadOf[T any]() func() any {
	return func() any { return new(T) }
}

var payloadTypes = map[enums.OutboxEventType]func() any{
	enums.EventOrderCreated:          payloadOf[payloads.OrderCreatedEvent](),
	enums.EventOrderPaid:             payloadOf[payloads.OrderStatusChangedEvent](),
	enums.EventOrderStatus:           payloadOf[payloads.OrderStatusChangedEvent](),
	enums.EventOrderDelivered:        payloadOf[payloads.OrderStatusChangedEvent](),
	enums.EventOrderCancelled:        payloadOf[payloads.OrderStatusChangedEvent](),
	enums.EventOrderRefunded:         payloadOf[payloads.OrderRefundedEvent](),
	enums.EventNotificationRequested: payloadOf[payloads.NotificationRequestedEvent](),
	enums.EventPayoutCreated:         payloadOf[payloads.PayoutCreatedEvent](),
	enums.EventPayoutPaid:            payloadOf[payloads.PayoutPaidEvent](),
}

// NewEventRegistry sends order-aggregate events to the orders topic and
// payout-aggregate events to the payouts topic. Every known event type must
// have a payload type.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topics := map[enums.OutboxAggregateType]string{
		enums.AggregateOrder:  cfg.OrdersTopic,
		enums.AggregatePayout: cfg.PayoutsTopic,
	}
	if cfg.OrdersTopic == "" || cfg.PayoutsTopic == "" {
		return nil, errors.New("registry: orders and payouts topics are required")
	}

	reg := &EventRegistry{routes: make(map[enums.OutboxEventType]route, len(payloadTypes))}
	for _, eventType := range enums.OutboxEventTypes() {
		newPayload, ok := payloadTypes[eventType]
		if !ok {
			return nil, fmt.Errorf("registry: no payload type for %s", eventType)
		}
		reg.routes[eventType] = route{topic: topics[eventType.Aggregate()], newPayload: newPayload}
	}
	return reg, nil
}

// Topics lists the distinct destination topics, sorted.
func (r *EventRegistry) Topics() []string {
	topics := make([]string, 0, 2)
	for _, rt := range r.routes {
		if !slices.Contains(topics, rt.topic) {
			topics = append(topics, rt.topic)
		}
	}
	slices.Sort(topics)
	return topics
}

// Resolve checks the row against its event type and decodes the payload.
// Every failure is a NonRetryableError.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	rt, ok := r.routes[event.EventType]
	switch {
	case !ok:
		return nil, rejectf("unsupported event type %q", event.EventType)
	case event.AggregateType != event.EventType.Aggregate():
		return nil, rejectf("%s belongs to %s, row says %s", event.EventType, event.EventType.Aggregate(), event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, rejectf("%s: aggregate_id is required", event.EventType)
	}

	env, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, rejectf("%s: %w", event.EventType, err)
	}
	payload := rt.newPayload()
	if err := json.Unmarshal(env.Data, payload); err != nil {
		return nil, rejectf("%s: decode payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Topic: rt.topic, Envelope: env, Payload: payload}, nil
}
