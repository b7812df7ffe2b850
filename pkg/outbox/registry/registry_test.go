package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketledger-backend/pkg/config"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox/payloads"
)

func testRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{OrdersTopic: "ml-orders", PayoutsTopic: "ml-payouts"})
	require.NoError(t, err)
	return reg
}

func envelopeFor(t *testing.T, data any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	env, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    outbox.EnvelopeVersion,
		EventID:    uuid.NewString(),
		OccurredAt: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC),
		Data:       raw,
	})
	require.NoError(t, err)
	return env
}

func requireRejected(t *testing.T, err error) {
	t.Helper()
	var nonRetryable NonRetryableError
	require.True(t, errors.As(err, &nonRetryable), "want NonRetryableError, got %v", err)
}

func TestResolveDecodesOrderCreated(t *testing.T) {
	reg := testRegistry(t)
	vendorID := uuid.New()

	resolved, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload: envelopeFor(t, payloads.OrderCreatedEvent{
			OrderID:     uuid.New(),
			OrderNumber: "ORD-20240115-ABCDEF12",
			VendorIDs:   []uuid.UUID{vendorID},
			TotalAmount: decimal.RequireFromString("165.00"),
		}),
	})
	require.NoError(t, err)
	require.Equal(t, "ml-orders", resolved.Topic)
	require.NotEmpty(t, resolved.Envelope.EventID)

	payload, ok := resolved.Payload.(*payloads.OrderCreatedEvent)
	require.True(t, ok, "payload type %T", resolved.Payload)
	require.Equal(t, []uuid.UUID{vendorID}, payload.VendorIDs)
	require.True(t, payload.TotalAmount.Equal(decimal.NewFromInt(165)))
}

func TestResolveRoutesByAggregate(t *testing.T) {
	reg := testRegistry(t)
	require.Equal(t, []string{"ml-orders", "ml-payouts"}, reg.Topics())

	resolved, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventPayoutPaid,
		AggregateType: enums.AggregatePayout,
		AggregateID:   uuid.New(),
		Payload:       envelopeFor(t, payloads.PayoutPaidEvent{PayoutID: uuid.New(), VendorID: uuid.New()}),
	})
	require.NoError(t, err)
	require.Equal(t, "ml-payouts", resolved.Topic)
	require.IsType(t, &payloads.PayoutPaidEvent{}, resolved.Payload)
}

func TestEveryEventTypeIsRoutable(t *testing.T) {
	reg := testRegistry(t)
	for _, eventType := range enums.OutboxEventTypes() {
		require.Contains(t, reg.routes, eventType)
	}
}

func TestResolveRejectsBadRows(t *testing.T) {
	reg := testRegistry(t)
	valid := envelopeFor(t, map[string]any{"order_id": uuid.NewString()})

	cases := map[string]models.OutboxEvent{
		"unknown type":     {EventType: "order_teleported", AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: valid},
		"wrong aggregate":  {EventType: enums.EventOrderCreated, AggregateType: enums.AggregatePayout, AggregateID: uuid.New(), Payload: valid},
		"nil aggregate id": {EventType: enums.EventOrderRefunded, AggregateType: enums.AggregateOrder, Payload: valid},
		"null data":        {EventType: enums.EventOrderStatus, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: envelopeFor(t, nil)},
		"not an envelope":  {EventType: enums.EventOrderStatus, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`[1,2]`)},
		"payload mismatch": {EventType: enums.EventPayoutCreated, AggregateType: enums.AggregatePayout, AggregateID: uuid.New(), Payload: envelopeFor(t, []int{1})},
	}
	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(event)
			requireRejected(t, err)
		})
	}
}

func TestNewEventRegistryRequiresTopics(t *testing.T) {
	_, err := NewEventRegistry(config.PubSubConfig{OrdersTopic: "ml-orders"})
	require.Error(t, err)
}
