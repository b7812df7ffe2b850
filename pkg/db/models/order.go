package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	"github.com/angelmondragon/marketledger-backend/pkg/types"
)

// Order is the financial record produced by checkout. Monetary fields are
// frozen at creation; later changes touch only status, timestamps and refunds.
type Order struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber      string              `gorm:"column:order_number;not null;uniqueIndex"`
	UserID           uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	Status           enums.OrderStatus   `gorm:"column:status;type:order_status;not null;default:'pending'"`
	PaymentMethod    enums.PaymentMethod `gorm:"column:payment_method;type:payment_method;not null"`
	Currency         string              `gorm:"column:currency;not null"`
	Subtotal         decimal.Decimal     `gorm:"column:subtotal;type:numeric(12,2);not null"`
	LoyaltyDiscount  decimal.Decimal     `gorm:"column:loyalty_discount;type:numeric(12,2);not null"`
	GiftCardDiscount decimal.Decimal     `gorm:"column:gift_card_discount;type:numeric(12,2);not null"`
	DiscountAmount   decimal.Decimal     `gorm:"column:discount_amount;type:numeric(12,2);not null"`
	ShippingAmount   decimal.Decimal     `gorm:"column:shipping_amount;type:numeric(12,2);not null"`
	TaxAmount        decimal.Decimal     `gorm:"column:tax_amount;type:numeric(12,2);not null"`
	TotalAmount      decimal.Decimal     `gorm:"column:total_amount;type:numeric(12,2);not null"`
	RefundedAmount   decimal.Decimal     `gorm:"column:refunded_amount;type:numeric(12,2);not null;default:0"`
	PointsRedeemed   int64               `gorm:"column:points_redeemed;not null;default:0"`
	GiftCardID       *uuid.UUID          `gorm:"column:gift_card_id;type:uuid"`
	ShippingAddress  *types.Address      `gorm:"column:shipping_address;type:jsonb"`
	BillingAddress   *types.Address      `gorm:"column:billing_address;type:jsonb"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
	PaidAt           *time.Time          `gorm:"column:paid_at"`
	DeliveredAt      *time.Time          `gorm:"column:delivered_at;index"`
	CancelledAt      *time.Time          `gorm:"column:cancelled_at"`
	RefundedAt       *time.Time          `gorm:"column:refunded_at"`

	Items []OrderItem `gorm:"foreignKey:OrderID"`
}
