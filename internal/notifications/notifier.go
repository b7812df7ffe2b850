package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox/payloads"
)

const (
	KindOrderPlaced   = "order_placed"
	KindOrderStatus   = "order_status"
	KindOrderRefunded = "order_refunded"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Notifier asks the delivery service to tell a customer about their order.
// Callers treat failures as non-fatal.
type Notifier interface {
	OrderPlaced(ctx context.Context, order *models.Order) error
	OrderStatusChanged(ctx context.Context, order *models.Order, from, to enums.OrderStatus) error
	OrderRefunded(ctx context.Context, order *models.Order, full bool) error
}

// OutboxNotifier queues notification_requested events. Each request commits
// on its own so it never holds up the order transaction.
type OutboxNotifier struct {
	tx      txRunner
	emitter outbox.Emitter
	logg    *logger.Logger
}

func NewOutboxNotifier(tx txRunner, emitter outbox.Emitter, logg *logger.Logger) (*OutboxNotifier, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &OutboxNotifier{tx: tx, emitter: emitter, logg: logg}, nil
}

func (n *OutboxNotifier) OrderPlaced(ctx context.Context, order *models.Order) error {
	return n.send(ctx, order, payloads.NotificationRequestedEvent{
		Kind:    KindOrderPlaced,
		Title:   "Order received",
		Message: fmt.Sprintf("We received order %s for %s %s.", order.OrderNumber, order.TotalAmount.StringFixed(2), order.Currency),
		Data: map[string]string{
			"orderNumber": order.OrderNumber,
			"total":       order.TotalAmount.StringFixed(2),
		},
	})
}

func (n *OutboxNotifier) OrderStatusChanged(ctx context.Context, order *models.Order, from, to enums.OrderStatus) error {
	return n.send(ctx, order, payloads.NotificationRequestedEvent{
		Kind:    KindOrderStatus,
		Title:   "Order update",
		Message: fmt.Sprintf("Order %s is now %s.", order.OrderNumber, to),
		Data: map[string]string{
			"orderNumber": order.OrderNumber,
			"from":        from.String(),
			"to":          to.String(),
		},
	})
}

func (n *OutboxNotifier) OrderRefunded(ctx context.Context, order *models.Order, full bool) error {
	message := fmt.Sprintf("A refund of %s %s was issued for order %s.", order.RefundedAmount.StringFixed(2), order.Currency, order.OrderNumber)
	if full {
		message = fmt.Sprintf("Order %s was fully refunded.", order.OrderNumber)
	}
	return n.send(ctx, order, payloads.NotificationRequestedEvent{
		Kind:    KindOrderRefunded,
		Title:   "Refund issued",
		Message: message,
		Data: map[string]string{
			"orderNumber":    order.OrderNumber,
			"refundedAmount": order.RefundedAmount.StringFixed(2),
		},
	})
}

func (n *OutboxNotifier) send(ctx context.Context, order *models.Order, event payloads.NotificationRequestedEvent) error {
	if order == nil || order.ID == uuid.Nil {
		return fmt.Errorf("order required")
	}
	event.UserID = order.UserID
	event.OrderID = order.ID
	return n.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return n.emitter.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventNotificationRequested,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data:          event,
		})
	})
}

// Nop drops every notification.
type Nop struct{}

func (Nop) OrderPlaced(context.Context, *models.Order) error { return nil }

func (Nop) OrderStatusChanged(context.Context, *models.Order, enums.OrderStatus, enums.OrderStatus) error {
	return nil
}

func (Nop) OrderRefunded(context.Context, *models.Order, bool) error { return nil }
