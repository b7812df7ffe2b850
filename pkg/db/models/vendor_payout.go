package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketledger-backend/pkg/enums"
)

// VendorPayout aggregates a vendor's delivered sales for [PeriodStart, PeriodEnd).
type VendorPayout struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	VendorID        uuid.UUID          `gorm:"column:vendor_id;type:uuid;not null;uniqueIndex:ux_vendor_payout_period"`
	PeriodStart     time.Time          `gorm:"column:period_start;not null;uniqueIndex:ux_vendor_payout_period"`
	PeriodEnd       time.Time          `gorm:"column:period_end;not null;uniqueIndex:ux_vendor_payout_period"`
	Currency        string             `gorm:"column:currency;not null"`
	TotalSales      decimal.Decimal    `gorm:"column:total_sales;type:numeric(12,2);not null"`
	TotalCommission decimal.Decimal    `gorm:"column:total_commission;type:numeric(12,2);not null"`
	PayoutAmount    decimal.Decimal    `gorm:"column:payout_amount;type:numeric(12,2);not null"`
	OrderCount      int                `gorm:"column:order_count;not null"`
	EntryCount      int                `gorm:"column:entry_count;not null"`
	Status          enums.PayoutStatus `gorm:"column:status;type:payout_status;not null;default:'pending'"`
	PaidAt          *time.Time         `gorm:"column:paid_at"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// VendorPayoutEntry links a payout to each ledger entry it covers. A ledger
// entry belongs to at most one payout.
type VendorPayoutEntry struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	PayoutID      uuid.UUID `gorm:"column:payout_id;type:uuid;not null;index"`
	LedgerEntryID uuid.UUID `gorm:"column:ledger_entry_id;type:uuid;not null;uniqueIndex"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

// VendorStatement is the human-readable summary for a vendor period.
type VendorStatement struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	VendorID        uuid.UUID       `gorm:"column:vendor_id;type:uuid;not null;index"`
	PayoutID        *uuid.UUID      `gorm:"column:payout_id;type:uuid;index"`
	PeriodStart     time.Time       `gorm:"column:period_start;not null"`
	PeriodEnd       time.Time       `gorm:"column:period_end;not null"`
	Currency        string          `gorm:"column:currency;not null"`
	TotalSales      decimal.Decimal `gorm:"column:total_sales;type:numeric(12,2);not null"`
	TotalCommission decimal.Decimal `gorm:"column:total_commission;type:numeric(12,2);not null"`
	PayoutAmount    decimal.Decimal `gorm:"column:payout_amount;type:numeric(12,2);not null"`
	OrderCount      int             `gorm:"column:order_count;not null"`
	Body            string          `gorm:"column:body;type:text;not null"`
	GeneratedAt     time.Time       `gorm:"column:generated_at;not null"`
}
