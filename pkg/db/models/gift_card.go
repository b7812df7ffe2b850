package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketledger-backend/pkg/enums"
)

// GiftCard is a prepaid balance redeemable at checkout.
type GiftCard struct {
	ID               uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	Code             string               `gorm:"column:code;not null;uniqueIndex"`
	PurchaserID      uuid.UUID            `gorm:"column:purchaser_id;type:uuid;not null"`
	RecipientUserID  *uuid.UUID           `gorm:"column:recipient_user_id;type:uuid"`
	RecipientEmail   *string              `gorm:"column:recipient_email"`
	Currency         string               `gorm:"column:currency;not null"`
	InitialAmount    decimal.Decimal      `gorm:"column:initial_amount;type:numeric(12,2);not null"`
	RemainingBalance decimal.Decimal      `gorm:"column:remaining_balance;type:numeric(12,2);not null"`
	Status           enums.GiftCardStatus `gorm:"column:status;type:gift_card_status;not null;default:'active'"`
	ExpiresAt        time.Time            `gorm:"column:expires_at;not null"`
	CreatedAt        time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// GiftCardTransaction is an append-only record of a balance change.
type GiftCardTransaction struct {
	ID           uuid.UUID                     `gorm:"column:id;type:uuid;primaryKey"`
	GiftCardID   uuid.UUID                     `gorm:"column:gift_card_id;type:uuid;not null;index"`
	OrderID      *uuid.UUID                    `gorm:"column:order_id;type:uuid;index"`
	Type         enums.GiftCardTransactionType `gorm:"column:type;type:gift_card_transaction_type;not null"`
	Amount       decimal.Decimal               `gorm:"column:amount;type:numeric(12,2);not null"`
	BalanceAfter decimal.Decimal               `gorm:"column:balance_after;type:numeric(12,2);not null"`
	CreatedAt    time.Time                     `gorm:"column:created_at;autoCreateTime"`
}
