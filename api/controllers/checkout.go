package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketledger-backend/api/controllers/dto"
	"github.com/angelmondragon/marketledger-backend/api/middleware"
	"github.com/angelmondragon/marketledger-backend/api/responses"
	"github.com/angelmondragon/marketledger-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/marketledger-backend/internal/checkout"
	"github.com/angelmondragon/marketledger-backend/internal/checkout/helpers"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	"github.com/angelmondragon/marketledger-backend/pkg/types"
)

// Checkout turns the buyer's cart into a single paid-for order.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Execute(r.Context(), payload.toInput(userID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, checkoutResponse{
			Order:           dto.NewOrder(result.Order),
			PointsRedeemed:  result.PointsRedeemed,
			GiftCardApplied: dto.Amount(result.GiftCardApplied),
		})
	}
}

type checkoutRequest struct {
	Items           []checkoutLine   `json:"items" validate:"required,min=1,dive"`
	PaymentMethod   string           `json:"payment_method" validate:"required"`
	ShippingAddress *types.Address   `json:"shipping_address,omitempty"`
	BillingAddress  *types.Address   `json:"billing_address,omitempty"`
	PointsToRedeem  int64            `json:"points_to_redeem,omitempty" validate:"min=0"`
	GiftCardCode    string           `json:"gift_card_code,omitempty"`
	GiftCardAmount  *decimal.Decimal `json:"gift_card_amount,omitempty" validate:"omitempty,gte=0"`
	Currency        string           `json:"currency,omitempty"`
}

type checkoutLine struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"min=1"`
}

func (p checkoutRequest) toInput(userID uuid.UUID) checkoutsvc.CheckoutInput {
	lines := make([]helpers.Line, 0, len(p.Items))
	for _, item := range p.Items {
		lines = append(lines, helpers.Line{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	input := checkoutsvc.CheckoutInput{
		UserID:          userID,
		Items:           lines,
		PaymentMethod:   enums.NormalizePaymentMethod(p.PaymentMethod),
		ShippingAddress: p.ShippingAddress,
		BillingAddress:  p.BillingAddress,
		PointsToRedeem:  p.PointsToRedeem,
		GiftCardCode:    validators.Clip(p.GiftCardCode, 64),
		Currency:        p.Currency,
	}
	if p.GiftCardAmount != nil {
		input.GiftCardAmount = *p.GiftCardAmount
	}
	return input
}

type checkoutResponse struct {
	Order           dto.Order `json:"order"`
	PointsRedeemed  int64     `json:"points_redeemed"`
	GiftCardApplied string    `json:"gift_card_applied"`
}
