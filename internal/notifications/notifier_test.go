package notifications

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketledger-backend/pkg/db"
	"github.com/angelmondragon/marketledger-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox/payloads"
)

func TestOrderPlacedQueuesNotification(t *testing.T) {
	conn := dbtest.Open(t)
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)
	notifier, err := NewOutboxNotifier(db.NewFromGorm(conn), emitter, nil)
	require.NoError(t, err)

	order := &models.Order{
		ID:          uuid.New(),
		OrderNumber: "ORD-20240310-ABCDEF12",
		UserID:      uuid.New(),
		Currency:    "USD",
		TotalAmount: dbtest.Dec("150.00"),
	}
	require.NoError(t, notifier.OrderPlaced(context.Background(), order))

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, enums.EventNotificationRequested, rows[0].EventType)
	require.Equal(t, order.ID, rows[0].AggregateID)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	var event payloads.NotificationRequestedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &event))
	require.Equal(t, KindOrderPlaced, event.Kind)
	require.Equal(t, order.UserID, event.UserID)
	require.Equal(t, "150.00", event.Data["total"])
}

func TestNewOutboxNotifierRequiresDependencies(t *testing.T) {
	_, err := NewOutboxNotifier(nil, nil, nil)
	require.Error(t, err)
}

func TestSendRejectsMissingOrder(t *testing.T) {
	conn := dbtest.Open(t)
	notifier, err := NewOutboxNotifier(db.NewFromGorm(conn), outbox.NewService(outbox.NewRepository(conn), nil), nil)
	require.NoError(t, err)
	require.Error(t, notifier.OrderStatusChanged(context.Background(), &models.Order{}, enums.OrderStatusPaid, enums.OrderStatusConfirmed))
}
