package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
)

type LoyaltyAccount struct {
	UserID           uuid.UUID         `json:"user_id"`
	PointsBalance    int64             `json:"points_balance"`
	LifetimePoints   int64             `json:"lifetime_points"`
	Tier             enums.LoyaltyTier `json:"tier"`
	PointsToNextTier int64             `json:"points_to_next_tier"`
}

type LoyaltyTransaction struct {
	ID             uuid.UUID                    `json:"id"`
	Points         int64                        `json:"points"`
	Type           enums.LoyaltyTransactionType `json:"type"`
	Description    string                       `json:"description"`
	RelatedOrderID *uuid.UUID                   `json:"related_order_id,omitempty"`
	BalanceAfter   int64                        `json:"balance_after"`
	ExpiresAt      *time.Time                   `json:"expires_at,omitempty"`
	CreatedAt      time.Time                    `json:"created_at"`
}

func NewLoyaltyAccount(account *models.LoyaltyAccount) LoyaltyAccount {
	if account == nil {
		return LoyaltyAccount{}
	}
	return LoyaltyAccount{
		UserID:           account.UserID,
		PointsBalance:    account.PointsBalance,
		LifetimePoints:   account.LifetimePoints,
		Tier:             account.Tier,
		PointsToNextTier: account.PointsToNextTier,
	}
}

func NewLoyaltyTransactions(txns []models.LoyaltyTransaction) []LoyaltyTransaction {
	out := make([]LoyaltyTransaction, 0, len(txns))
	for _, txn := range txns {
		out = append(out, LoyaltyTransaction{
			ID:             txn.ID,
			Points:         txn.Points,
			Type:           txn.Type,
			Description:    txn.Description,
			RelatedOrderID: txn.RelatedOrderID,
			BalanceAfter:   txn.BalanceAfter,
			ExpiresAt:      txn.ExpiresAt,
			CreatedAt:      txn.CreatedAt,
		})
	}
	return out
}
