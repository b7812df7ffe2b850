package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketledger-backend/pkg/enums"
)

// OrderCreatedEvent is emitted once checkout commits.
type OrderCreatedEvent struct {
	OrderID        uuid.UUID           `json:"order_id"`
	OrderNumber    string              `json:"order_number"`
	UserID         uuid.UUID           `json:"user_id"`
	VendorIDs      []uuid.UUID         `json:"vendor_ids"`
	PaymentMethod  enums.PaymentMethod `json:"payment_method"`
	TotalAmount    decimal.Decimal     `json:"total_amount"`
	PointsRedeemed int64               `json:"points_redeemed"`
	GiftCardID     *uuid.UUID          `json:"gift_card_id,omitempty"`
}

// OrderStatusChangedEvent covers every lifecycle transition, including paid,
// delivered and cancelled.
type OrderStatusChangedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	UserID      uuid.UUID         `json:"user_id"`
	From        enums.OrderStatus `json:"from"`
	To          enums.OrderStatus `json:"to"`
	ChangedAt   time.Time         `json:"changed_at"`
	Reason      string            `json:"reason,omitempty"`
}

// OrderRefundedEvent reports a partial or full refund.
type OrderRefundedEvent struct {
	OrderID        uuid.UUID       `json:"order_id"`
	OrderNumber    string          `json:"order_number"`
	UserID         uuid.UUID       `json:"user_id"`
	Amount         decimal.Decimal `json:"amount"`
	RefundedAmount decimal.Decimal `json:"refunded_amount"`
	Full           bool            `json:"full"`
	PointsRestored int64           `json:"points_restored"`
	PointsReversed int64           `json:"points_reversed"`
	GiftCardAmount decimal.Decimal `json:"gift_card_amount"`
}

// PayoutCreatedEvent announces a pending vendor payout.
type PayoutCreatedEvent struct {
	PayoutID        uuid.UUID       `json:"payout_id"`
	VendorID        uuid.UUID       `json:"vendor_id"`
	PeriodStart     time.Time       `json:"period_start"`
	PeriodEnd       time.Time       `json:"period_end"`
	TotalSales      decimal.Decimal `json:"total_sales"`
	TotalCommission decimal.Decimal `json:"total_commission"`
	PayoutAmount    decimal.Decimal `json:"payout_amount"`
	OrderCount      int             `json:"order_count"`
}

// PayoutPaidEvent is emitted when finance marks a payout as paid.
type PayoutPaidEvent struct {
	PayoutID     uuid.UUID       `json:"payout_id"`
	VendorID     uuid.UUID       `json:"vendor_id"`
	PayoutAmount decimal.Decimal `json:"payout_amount"`
	PaidAt       time.Time       `json:"paid_at"`
	EntryCount   int             `json:"entry_count"`
}

// NotificationRequestedEvent asks the delivery service to notify a user.
type NotificationRequestedEvent struct {
	UserID  uuid.UUID         `json:"user_id"`
	OrderID uuid.UUID         `json:"order_id"`
	Kind    string            `json:"kind"`
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Data    map[string]string `json:"data,omitempty"`
}
