package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketledger-backend/pkg/enums"
)

// CommissionLedgerEntry records the platform/vendor split for one order item.
// The rate is a snapshot; entries are never recomputed, only marked paid.
type CommissionLedgerEntry struct {
	ID               uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	OrderID          uuid.UUID              `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_commission_ledger_order_item"`
	OrderItemID      uuid.UUID              `gorm:"column:order_item_id;type:uuid;not null;uniqueIndex:ux_commission_ledger_order_item"`
	VendorID         uuid.UUID              `gorm:"column:vendor_id;type:uuid;not null;index"`
	SaleAmount       decimal.Decimal        `gorm:"column:sale_amount;type:numeric(12,2);not null"`
	CommissionRate   decimal.Decimal        `gorm:"column:commission_rate;type:numeric(5,4);not null"`
	CommissionAmount decimal.Decimal        `gorm:"column:commission_amount;type:numeric(12,2);not null"`
	VendorPayout     decimal.Decimal        `gorm:"column:vendor_payout;type:numeric(12,2);not null"`
	Status           enums.CommissionStatus `gorm:"column:status;type:commission_status;not null;default:'recorded'"`
	PaidAt           *time.Time             `gorm:"column:paid_at"`
	CreatedAt        time.Time              `gorm:"column:created_at;autoCreateTime"`
}
