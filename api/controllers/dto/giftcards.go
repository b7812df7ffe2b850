package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
)

// GiftCard omits the purchaser and recipient so a code lookup reveals only
// what the bearer of the code may already know.
type GiftCard struct {
	ID               uuid.UUID            `json:"id"`
	Code             string               `json:"code"`
	Currency         string               `json:"currency"`
	InitialAmount    string               `json:"initial_amount"`
	RemainingBalance string               `json:"remaining_balance"`
	Status           enums.GiftCardStatus `json:"status"`
	ExpiresAt        time.Time            `json:"expires_at"`
}

func NewGiftCard(card *models.GiftCard) GiftCard {
	if card == nil {
		return GiftCard{}
	}
	return GiftCard{
		ID:               card.ID,
		Code:             card.Code,
		Currency:         card.Currency,
		InitialAmount:    Amount(card.InitialAmount),
		RemainingBalance: Amount(card.RemainingBalance),
		Status:           card.Status,
		ExpiresAt:        card.ExpiresAt,
	}
}
