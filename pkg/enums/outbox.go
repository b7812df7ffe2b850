package enums

import (
	"fmt"
	"slices"
)

// OutboxAggregateType names the aggregate an outbox event describes.
type OutboxAggregateType string

const (
	AggregateOrder  OutboxAggregateType = "order"
	AggregatePayout OutboxAggregateType = "vendor_payout"
)

func (a OutboxAggregateType) IsValid() bool {
	return a == AggregateOrder || a == AggregatePayout
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	a := OutboxAggregateType(value)
	if !a.IsValid() {
		return "", fmt.Errorf("invalid aggregate type %q", value)
	}
	return a, nil
}

// OutboxEventType names a domain event written to the outbox.
type OutboxEventType string

const (
	EventOrderCreated   OutboxEventType = "order_created"
	EventOrderPaid      OutboxEventType = "order_paid"
	EventOrderStatus    OutboxEventType = "order_status_changed"
	EventOrderDelivered OutboxEventType = "order_delivered"
	EventOrderCancelled OutboxEventType = "order_cancelled"
	EventOrderRefunded  OutboxEventType = "order_refunded"
	EventPayoutCreated  OutboxEventType = "payout_created"
	EventPayoutPaid     OutboxEventType = "payout_paid"
	// EventNotificationRequested asks the delivery service to message the
	// customer about an order.
	EventNotificationRequested OutboxEventType = "notification_requested"
)

// eventAggregates pins every event type to the one aggregate it may describe.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventOrderCreated:          AggregateOrder,
	EventOrderPaid:             AggregateOrder,
	EventOrderStatus:           AggregateOrder,
	EventOrderDelivered:        AggregateOrder,
	EventOrderCancelled:        AggregateOrder,
	EventOrderRefunded:         AggregateOrder,
	EventNotificationRequested: AggregateOrder,
	EventPayoutCreated:         AggregatePayout,
	EventPayoutPaid:            AggregatePayout,
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate returns the aggregate type e belongs to, or "" for unknown events.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}

// OutboxEventTypes lists every known event type in sorted order.
func OutboxEventTypes() []OutboxEventType {
	out := make([]OutboxEventType, 0, len(eventAggregates))
	for e := range eventAggregates {
		out = append(out, e)
	}
	slices.Sort(out)
	return out
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	e := OutboxEventType(value)
	if !e.IsValid() {
		return "", fmt.Errorf("invalid event type %q", value)
	}
	return e, nil
}
