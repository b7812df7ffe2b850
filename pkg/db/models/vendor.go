package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketledger-backend/pkg/enums"
)

// Vendor is maintained by admin tooling; settlement only reads it.
type Vendor struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Name           string             `gorm:"column:name;not null"`
	Status         enums.VendorStatus `gorm:"column:status;type:vendor_status;not null;default:'pending'"`
	CommissionRate *decimal.Decimal   `gorm:"column:commission_rate;type:numeric(5,4)"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
