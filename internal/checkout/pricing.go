package checkout

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketledger-backend/internal/loyalty"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/money"
)

// Pricing holds the flat marketplace rates applied to every order.
type Pricing struct {
	TaxRate      decimal.Decimal
	ShippingFlat decimal.Decimal
	Currency     string
}

// Quote is the priced order before any instrument is charged.
type Quote struct {
	Subtotal         decimal.Decimal
	Tax              decimal.Decimal
	Shipping         decimal.Decimal
	LoyaltyDiscount  decimal.Decimal
	GiftCardDiscount decimal.Decimal
	Total            decimal.Decimal
}

// Discount is the combined loyalty and gift card reduction.
func (q Quote) Discount() decimal.Decimal {
	return q.LoyaltyDiscount.Add(q.GiftCardDiscount)
}

// Payable is what the buyer owes before discounts.
func (q Quote) Payable() decimal.Decimal {
	return q.Subtotal.Add(q.Shipping).Add(q.Tax)
}

// PriceItems computes subtotal, tax and shipping for the snapshot items and
// the loyalty discount for points. Tax is charged on the undiscounted
// subtotal. The gift card is applied separately by ApplyGiftCard once the
// card balance is known.
func PriceItems(items []models.OrderItem, pricing Pricing, points int64) (Quote, error) {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal)
	}
	q := Quote{
		Subtotal: money.Round(subtotal),
		Shipping: money.Round(pricing.ShippingFlat),
	}
	q.Tax = money.Apply(q.Subtotal, pricing.TaxRate)
	q.LoyaltyDiscount = money.Round(loyalty.CalculateRedemptionValue(points))
	q.GiftCardDiscount = decimal.Zero
	if q.LoyaltyDiscount.GreaterThan(q.Payable()) {
		return Quote{}, pkgerrors.New(pkgerrors.CodeValidation, "points discount exceeds order total").
			WithDetails(map[string]any{
				"pointsToRedeem": points,
				"discount":       q.LoyaltyDiscount.StringFixed(money.Scale),
				"payable":        q.Payable().StringFixed(money.Scale),
			})
	}
	q.Total = q.total()
	return q, nil
}

// ApplyGiftCard applies up to requested from a card, never more than what
// remains payable after points. It returns the amount actually applied.
func (q *Quote) ApplyGiftCard(requested decimal.Decimal) decimal.Decimal {
	remaining := money.NonNegative(q.Payable().Sub(q.LoyaltyDiscount))
	applied := money.Round(money.Min(requested, remaining))
	q.GiftCardDiscount = applied
	q.Total = q.total()
	return applied
}

func (q Quote) total() decimal.Decimal {
	return money.NonNegative(q.Subtotal.Sub(q.Discount()).Add(q.Shipping).Add(q.Tax))
}

func lineTotal(price decimal.Decimal, qty int) decimal.Decimal {
	return money.Round(price.Mul(decimal.NewFromInt(int64(qty))))
}
