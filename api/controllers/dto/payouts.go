package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
)

type Payout struct {
	ID              uuid.UUID          `json:"id"`
	VendorID        uuid.UUID          `json:"vendor_id"`
	PeriodStart     time.Time          `json:"period_start"`
	PeriodEnd       time.Time          `json:"period_end"`
	Currency        string             `json:"currency"`
	TotalSales      string             `json:"total_sales"`
	TotalCommission string             `json:"total_commission"`
	PayoutAmount    string             `json:"payout_amount"`
	OrderCount      int                `json:"order_count"`
	EntryCount      int                `json:"entry_count"`
	Status          enums.PayoutStatus `json:"status"`
	PaidAt          *time.Time         `json:"paid_at,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

type Statement struct {
	ID              uuid.UUID  `json:"id"`
	VendorID        uuid.UUID  `json:"vendor_id"`
	PayoutID        *uuid.UUID `json:"payout_id,omitempty"`
	PeriodStart     time.Time  `json:"period_start"`
	PeriodEnd       time.Time  `json:"period_end"`
	Currency        string     `json:"currency"`
	TotalSales      string     `json:"total_sales"`
	TotalCommission string     `json:"total_commission"`
	PayoutAmount    string     `json:"payout_amount"`
	OrderCount      int        `json:"order_count"`
	Body            string     `json:"body"`
	GeneratedAt     time.Time  `json:"generated_at"`
}

func NewPayout(payout *models.VendorPayout) Payout {
	if payout == nil {
		return Payout{}
	}
	return Payout{
		ID:              payout.ID,
		VendorID:        payout.VendorID,
		PeriodStart:     payout.PeriodStart,
		PeriodEnd:       payout.PeriodEnd,
		Currency:        payout.Currency,
		TotalSales:      Amount(payout.TotalSales),
		TotalCommission: Amount(payout.TotalCommission),
		PayoutAmount:    Amount(payout.PayoutAmount),
		OrderCount:      payout.OrderCount,
		EntryCount:      payout.EntryCount,
		Status:          payout.Status,
		PaidAt:          payout.PaidAt,
		CreatedAt:       payout.CreatedAt,
	}
}

func NewPayouts(payouts []models.VendorPayout) []Payout {
	out := make([]Payout, 0, len(payouts))
	for i := range payouts {
		out = append(out, NewPayout(&payouts[i]))
	}
	return out
}

func NewStatement(statement *models.VendorStatement) Statement {
	if statement == nil {
		return Statement{}
	}
	return Statement{
		ID:              statement.ID,
		VendorID:        statement.VendorID,
		PayoutID:        statement.PayoutID,
		PeriodStart:     statement.PeriodStart,
		PeriodEnd:       statement.PeriodEnd,
		Currency:        statement.Currency,
		TotalSales:      Amount(statement.TotalSales),
		TotalCommission: Amount(statement.TotalCommission),
		PayoutAmount:    Amount(statement.PayoutAmount),
		OrderCount:      statement.OrderCount,
		Body:            statement.Body,
		GeneratedAt:     statement.GeneratedAt,
	}
}
