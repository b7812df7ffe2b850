package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketledger-backend/pkg/enums"
)

// LoyaltyAccount holds a user's running points balance. Tier follows
// LifetimePoints, not Balance.
type LoyaltyAccount struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UserID           uuid.UUID         `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	PointsBalance    int64             `gorm:"column:points_balance;not null;default:0"`
	LifetimePoints   int64             `gorm:"column:lifetime_points;not null;default:0"`
	Tier             enums.LoyaltyTier `gorm:"column:tier;type:loyalty_tier;not null;default:'bronze'"`
	PointsToNextTier int64             `gorm:"column:points_to_next_tier;not null;default:0"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// LoyaltyTransaction is an append-only signed points movement.
type LoyaltyTransaction struct {
	ID             uuid.UUID                    `gorm:"column:id;type:uuid;primaryKey"`
	AccountID      uuid.UUID                    `gorm:"column:account_id;type:uuid;not null;index"`
	UserID         uuid.UUID                    `gorm:"column:user_id;type:uuid;not null;index"`
	Points         int64                        `gorm:"column:points;not null"`
	Type           enums.LoyaltyTransactionType `gorm:"column:type;type:loyalty_transaction_type;not null"`
	Description    string                       `gorm:"column:description;not null"`
	RelatedOrderID *uuid.UUID                   `gorm:"column:related_order_id;type:uuid;index"`
	ExpiresAt      *time.Time                   `gorm:"column:expires_at"`
	BalanceAfter   int64                        `gorm:"column:balance_after;not null"`
	CreatedAt      time.Time                    `gorm:"column:created_at;autoCreateTime"`
}
