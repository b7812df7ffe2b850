package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/internal/loyalty"
	"github.com/angelmondragon/marketledger-backend/internal/notifications"
	"github.com/angelmondragon/marketledger-backend/internal/products"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	"github.com/angelmondragon/marketledger-backend/pkg/money"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/marketledger-backend/pkg/pagination"
)

var listBounds = pagination.Bounds{Default: 20, Max: 100}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type pointsLedger interface {
	EarnForOrder(ctx context.Context, tx *gorm.DB, order *models.Order) (int64, error)
	RestoreForOrder(ctx context.Context, tx *gorm.DB, order *models.Order) (*loyalty.RestoreResult, error)
}

type giftCardLedger interface {
	Restore(ctx context.Context, tx *gorm.DB, order *models.Order) (decimal.Decimal, error)
}

// Service drives an order through its lifecycle after checkout.
type Service interface {
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetForUser(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error)
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, next enums.OrderStatus) (*models.Order, error)
	MarkPaid(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	Cancel(ctx context.Context, orderID, actorUserID uuid.UUID) (*models.Order, error)
	Refund(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal) (*RefundResult, error)
}

// RefundResult reports the refund and any instruments it gave back.
type RefundResult struct {
	Order          *models.Order
	Full           bool
	PointsRestored int64
	PointsReversed int64
	GiftCardAmount decimal.Decimal
}

type ServiceParams struct {
	TX        txRunner
	Repo      Repository
	Products  products.Repository
	Loyalty   pointsLedger
	GiftCards giftCardLedger
	Outbox    outbox.Emitter
	Notifier  notifications.Notifier
	Logger    *logger.Logger
	Now       func() time.Time
}

type service struct {
	tx        txRunner
	repo      Repository
	products  products.Repository
	loyalty   pointsLedger
	giftCards giftCardLedger
	outbox    outbox.Emitter
	notifier  notifications.Notifier
	logg      *logger.Logger
	now       func() time.Time
}

// NewService wires the order lifecycle dependencies.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.TX == nil:
		return nil, fmt.Errorf("tx runner required")
	case params.Repo == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Products == nil:
		return nil, fmt.Errorf("products repository required")
	case params.Loyalty == nil:
		return nil, fmt.Errorf("loyalty service required")
	case params.GiftCards == nil:
		return nil, fmt.Errorf("gift card service required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	}
	notifier := params.Notifier
	if notifier == nil {
		notifier = notifications.Nop{}
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		tx:        params.TX,
		repo:      params.Repo,
		products:  params.Products,
		loyalty:   params.Loyalty,
		giftCards: params.GiftCards,
		outbox:    params.Outbox,
		notifier:  notifier,
		logg:      logg,
		now:       now,
	}, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return nil, orderNotFound(orderID)
	}
	return order, nil
}

// GetForUser hides orders owned by someone else behind NotFound.
func (s *service) GetForUser(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, orderNotFound(orderID)
	}
	return order, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Order, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	rows, err := s.repo.ListByUser(ctx, userID, listBounds.Clamp(limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return rows, nil
}

// UpdateStatus moves a paid order one step along the fulfilment path.
// Delivery stamps delivered_at and credits earn points in the same transaction.
func (s *service) UpdateStatus(ctx context.Context, orderID uuid.UUID, next enums.OrderStatus) (*models.Order, error) {
	if !next.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	if next == enums.OrderStatusPaid || next == enums.OrderStatusCancelled || next == enums.OrderStatusRefunded {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "status %s has its own operation", next)
	}

	var (
		order *models.Order
		from  enums.OrderStatus
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		order, err = s.lockOrder(ctx, repo, orderID)
		if err != nil {
			return err
		}
		from = order.Status
		if from == enums.OrderStatusPending {
			return transitionConflict(order, next)
		}
		allowed, ok := from.NextFulfilmentStatus()
		if !ok || allowed != next {
			return transitionConflict(order, next)
		}

		now := s.now().UTC()
		updates := map[string]any{"status": next}
		if next == enums.OrderStatusDelivered {
			updates["delivered_at"] = now
		}
		if err := s.apply(ctx, repo, order, from, updates); err != nil {
			return err
		}
		order.Status = next
		if next == enums.OrderStatusDelivered {
			order.DeliveredAt = &now
			if _, err := s.loyalty.EarnForOrder(ctx, tx, order); err != nil {
				return err
			}
		}
		return s.emitStatus(ctx, tx, order, from, "", now)
	})
	if err != nil {
		return nil, err
	}
	s.notifyStatus(ctx, order, from)
	return order, nil
}

// MarkPaid confirms payment for a pending order. A repeated confirmation of
// an order that is already paid or further along returns it unchanged.
func (s *service) MarkPaid(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var (
		order   *models.Order
		changed bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		order, err = s.lockOrder(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if order.Status.IsPaidOrLater() {
			return nil
		}
		if order.Status != enums.OrderStatusPending {
			return transitionConflict(order, enums.OrderStatusPaid)
		}
		now := s.now().UTC()
		if err := s.apply(ctx, repo, order, enums.OrderStatusPending, map[string]any{
			"status":  enums.OrderStatusPaid,
			"paid_at": now,
		}); err != nil {
			return err
		}
		order.Status = enums.OrderStatusPaid
		order.PaidAt = &now
		changed = true
		return s.emitStatus(ctx, tx, order, enums.OrderStatusPending, "", now)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.notifyStatus(ctx, order, enums.OrderStatusPending)
	}
	return order, nil
}

// Cancel returns stock, redeemed points and gift-card balance in the same
// transaction that flips the order to cancelled. A non-nil actor must own
// the order.
func (s *service) Cancel(ctx context.Context, orderID, actorUserID uuid.UUID) (*models.Order, error) {
	var (
		order *models.Order
		from  enums.OrderStatus
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		order, err = s.lockOrder(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if actorUserID != uuid.Nil && order.UserID != actorUserID {
			return orderNotFound(orderID)
		}
		from = order.Status
		if !from.IsCancellable() {
			return transitionConflict(order, enums.OrderStatusCancelled)
		}

		now := s.now().UTC()
		if err := s.apply(ctx, repo, order, from, map[string]any{
			"status":       enums.OrderStatusCancelled,
			"cancelled_at": now,
		}); err != nil {
			return err
		}
		productRepo := s.products.WithTx(tx)
		for _, item := range order.Items {
			if err := productRepo.RestoreStock(ctx, item.ProductID, item.Quantity); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore stock")
			}
		}
		if _, err := s.loyalty.RestoreForOrder(ctx, tx, order); err != nil {
			return err
		}
		if _, err := s.giftCards.Restore(ctx, tx, order); err != nil {
			return err
		}
		order.Status = enums.OrderStatusCancelled
		order.CancelledAt = &now
		return s.emitStatus(ctx, tx, order, from, "cancelled", now)
	})
	if err != nil {
		return nil, err
	}
	s.notifyStatus(ctx, order, from)
	return order, nil
}

// Refund records a refund against a paid order. Partial refunds only grow
// refunded_amount; the refund that brings it to the order total moves the
// order to refunded and gives back every instrument the order consumed.
func (s *service) Refund(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal) (*RefundResult, error) {
	if amount.IsNegative() || !amount.Equal(money.Round(amount)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be a non-negative amount in cents")
	}

	result := &RefundResult{GiftCardAmount: decimal.Zero}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.lockOrder(ctx, repo, orderID)
		if err != nil {
			return err
		}
		from := order.Status
		if !from.IsPaidOrLater() {
			return transitionConflict(order, enums.OrderStatusRefunded)
		}
		outstanding := order.TotalAmount.Sub(order.RefundedAmount)
		if amount.GreaterThan(outstanding) {
			return pkgerrors.New(pkgerrors.CodeValidation, "refund exceeds refundable amount").
				WithDetails(map[string]any{
					"refundable": outstanding.StringFixed(2),
					"requested":  amount.StringFixed(2),
				})
		}
		if amount.IsZero() && outstanding.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
		}

		now := s.now().UTC()
		refunded := order.RefundedAmount.Add(amount)
		full := refunded.Equal(order.TotalAmount)
		updates := map[string]any{"refunded_amount": refunded}
		if full {
			updates["status"] = enums.OrderStatusRefunded
			updates["refunded_at"] = now
		}
		if err := s.apply(ctx, repo, order, from, updates); err != nil {
			return err
		}
		order.RefundedAmount = refunded

		if full {
			order.Status = enums.OrderStatusRefunded
			order.RefundedAt = &now
			restored, err := s.loyalty.RestoreForOrder(ctx, tx, order)
			if err != nil {
				return err
			}
			result.PointsRestored = restored.Restored
			result.PointsReversed = restored.Reversed
			result.GiftCardAmount, err = s.giftCards.Restore(ctx, tx, order)
			if err != nil {
				return err
			}
		}
		result.Order = order
		result.Full = full

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderRefunded,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			OccurredAt:    now,
			Data: payloads.OrderRefundedEvent{
				OrderID:        order.ID,
				OrderNumber:    order.OrderNumber,
				UserID:         order.UserID,
				Amount:         amount,
				RefundedAmount: refunded,
				Full:           full,
				PointsRestored: result.PointsRestored,
				PointsReversed: result.PointsReversed,
				GiftCardAmount: result.GiftCardAmount,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	if err := s.notifier.OrderRefunded(ctx, result.Order, result.Full); err != nil {
		s.logg.Warn(s.logg.WithOrderID(ctx, orderID.String()), "refund notification failed: "+err.Error())
	}
	return result, nil
}

func (s *service) lockOrder(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.FindByIDForUpdate(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return nil, orderNotFound(orderID)
	}
	return order, nil
}

func (s *service) apply(ctx context.Context, repo Repository, order *models.Order, expected enums.OrderStatus, updates map[string]any) error {
	ok, err := repo.UpdateFields(ctx, order.ID, expected, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently").
			WithDetails(map[string]any{"orderId": order.ID.String()})
	}
	return nil
}

func (s *service) emitStatus(ctx context.Context, tx *gorm.DB, order *models.Order, from enums.OrderStatus, reason string, at time.Time) error {
	eventType := enums.EventOrderStatus
	switch order.Status {
	case enums.OrderStatusPaid:
		eventType = enums.EventOrderPaid
	case enums.OrderStatusDelivered:
		eventType = enums.EventOrderDelivered
	case enums.OrderStatusCancelled:
		eventType = enums.EventOrderCancelled
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		OccurredAt:    at,
		Data: payloads.OrderStatusChangedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			UserID:      order.UserID,
			From:        from,
			To:          order.Status,
			ChangedAt:   at,
			Reason:      reason,
		},
	})
}

func (s *service) notifyStatus(ctx context.Context, order *models.Order, from enums.OrderStatus) {
	if err := s.notifier.OrderStatusChanged(ctx, order, from, order.Status); err != nil {
		s.logg.Warn(s.logg.WithOrderID(ctx, order.ID.String()), "status notification failed: "+err.Error())
	}
}

func orderNotFound(orderID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "order not found").
		WithDetails(map[string]any{"orderId": orderID.String()})
}

func transitionConflict(order *models.Order, next enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "order status transition not allowed").
		WithDetails(map[string]any{
			"orderId": order.ID.String(),
			"from":    order.Status,
			"to":      next,
		})
}
