package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	"github.com/angelmondragon/marketledger-backend/pkg/types"
)

// Order is the API view of a settled order. Money is rendered with two
// decimal places so clients never see float artefacts.
type Order struct {
	ID               uuid.UUID           `json:"id"`
	OrderNumber      string              `json:"order_number"`
	UserID           uuid.UUID           `json:"user_id"`
	Status           enums.OrderStatus   `json:"status"`
	PaymentMethod    enums.PaymentMethod `json:"payment_method"`
	Currency         string              `json:"currency"`
	Subtotal         string              `json:"subtotal"`
	LoyaltyDiscount  string              `json:"loyalty_discount"`
	GiftCardDiscount string              `json:"gift_card_discount"`
	DiscountAmount   string              `json:"discount_amount"`
	ShippingAmount   string              `json:"shipping_amount"`
	TaxAmount        string              `json:"tax_amount"`
	TotalAmount      string              `json:"total_amount"`
	RefundedAmount   string              `json:"refunded_amount"`
	PointsRedeemed   int64               `json:"points_redeemed"`
	GiftCardID       *uuid.UUID          `json:"gift_card_id,omitempty"`
	ShippingAddress  *types.Address      `json:"shipping_address,omitempty"`
	BillingAddress   *types.Address      `json:"billing_address,omitempty"`
	Items            []OrderItem         `json:"items"`
	CreatedAt        time.Time           `json:"created_at"`
	PaidAt           *time.Time          `json:"paid_at,omitempty"`
	DeliveredAt      *time.Time          `json:"delivered_at,omitempty"`
	CancelledAt      *time.Time          `json:"cancelled_at,omitempty"`
	RefundedAt       *time.Time          `json:"refunded_at,omitempty"`
}

type OrderItem struct {
	ID          uuid.UUID `json:"id"`
	ProductID   uuid.UUID `json:"product_id"`
	VendorID    uuid.UUID `json:"vendor_id"`
	ProductName string    `json:"product_name"`
	SKU         string    `json:"sku"`
	UnitPrice   string    `json:"unit_price"`
	Quantity    int       `json:"quantity"`
	LineTotal   string    `json:"line_total"`
}

// CommissionEntry is one ledger row as shown to operators.
type CommissionEntry struct {
	ID               uuid.UUID              `json:"id"`
	OrderID          uuid.UUID              `json:"order_id"`
	OrderItemID      uuid.UUID              `json:"order_item_id"`
	VendorID         uuid.UUID              `json:"vendor_id"`
	SaleAmount       string                 `json:"sale_amount"`
	CommissionRate   string                 `json:"commission_rate"`
	CommissionAmount string                 `json:"commission_amount"`
	VendorPayout     string                 `json:"vendor_payout"`
	Status           enums.CommissionStatus `json:"status"`
	CreatedAt        time.Time              `json:"created_at"`
}

// Amount renders a monetary value with cent precision.
func Amount(value decimal.Decimal) string {
	return value.StringFixed(2)
}

func NewOrder(order *models.Order) Order {
	if order == nil {
		return Order{}
	}
	items := make([]OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItem{
			ID:          item.ID,
			ProductID:   item.ProductID,
			VendorID:    item.VendorID,
			ProductName: item.ProductName,
			SKU:         item.SKU,
			UnitPrice:   Amount(item.UnitPrice),
			Quantity:    item.Quantity,
			LineTotal:   Amount(item.LineTotal),
		})
	}
	return Order{
		ID:               order.ID,
		OrderNumber:      order.OrderNumber,
		UserID:           order.UserID,
		Status:           order.Status,
		PaymentMethod:    order.PaymentMethod,
		Currency:         order.Currency,
		Subtotal:         Amount(order.Subtotal),
		LoyaltyDiscount:  Amount(order.LoyaltyDiscount),
		GiftCardDiscount: Amount(order.GiftCardDiscount),
		DiscountAmount:   Amount(order.DiscountAmount),
		ShippingAmount:   Amount(order.ShippingAmount),
		TaxAmount:        Amount(order.TaxAmount),
		TotalAmount:      Amount(order.TotalAmount),
		RefundedAmount:   Amount(order.RefundedAmount),
		PointsRedeemed:   order.PointsRedeemed,
		GiftCardID:       order.GiftCardID,
		ShippingAddress:  order.ShippingAddress,
		BillingAddress:   order.BillingAddress,
		Items:            items,
		CreatedAt:        order.CreatedAt,
		PaidAt:           order.PaidAt,
		DeliveredAt:      order.DeliveredAt,
		CancelledAt:      order.CancelledAt,
		RefundedAt:       order.RefundedAt,
	}
}

func NewOrders(orders []models.Order) []Order {
	out := make([]Order, 0, len(orders))
	for i := range orders {
		out = append(out, NewOrder(&orders[i]))
	}
	return out
}

func NewCommissionEntries(entries []models.CommissionLedgerEntry) []CommissionEntry {
	out := make([]CommissionEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, CommissionEntry{
			ID:               entry.ID,
			OrderID:          entry.OrderID,
			OrderItemID:      entry.OrderItemID,
			VendorID:         entry.VendorID,
			SaleAmount:       Amount(entry.SaleAmount),
			CommissionRate:   entry.CommissionRate.StringFixed(4),
			CommissionAmount: Amount(entry.CommissionAmount),
			VendorPayout:     Amount(entry.VendorPayout),
			Status:           entry.Status,
			CreatedAt:        entry.CreatedAt,
		})
	}
	return out
}
