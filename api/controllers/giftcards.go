package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketledger-backend/api/controllers/dto"
	"github.com/angelmondragon/marketledger-backend/api/middleware"
	"github.com/angelmondragon/marketledger-backend/api/responses"
	"github.com/angelmondragon/marketledger-backend/api/validators"
	"github.com/angelmondragon/marketledger-backend/internal/giftcards"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
)

type giftCardIssuer interface {
	Issue(ctx context.Context, input giftcards.IssueInput) (*models.GiftCard, error)
	GetByCode(ctx context.Context, code string) (*models.GiftCard, error)
}

// IssueGiftCard sells a new card to the caller, optionally addressed to a recipient.
func IssueGiftCard(svc giftCardIssuer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gift card service unavailable"))
			return
		}
		userID, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload issueGiftCardRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := giftcards.IssueInput{
			PurchaserID: userID,
			RecipientID: payload.RecipientUserID,
			Amount:      payload.Amount,
			Currency:    payload.Currency,
		}
		if email := validators.NormalizeEmail(payload.RecipientEmail); email != "" {
			input.RecipientEmail = &email
		}

		card, err := svc.Issue(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto.NewGiftCard(card))
	}
}

// GiftCardBalance looks a card up by code. Knowing the code is the credential,
// so the response carries no owner details.
func GiftCardBalance(svc giftCardIssuer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gift card service unavailable"))
			return
		}
		code := validators.Clip(chi.URLParam(r, "code"), 64)
		if code == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "gift card code is required"))
			return
		}

		card, err := svc.GetByCode(r.Context(), code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewGiftCard(card))
	}
}

type issueGiftCardRequest struct {
	Amount          decimal.Decimal `json:"amount" validate:"required,gt=0"`
	RecipientUserID *uuid.UUID      `json:"recipient_user_id,omitempty"`
	RecipientEmail  string          `json:"recipient_email,omitempty" validate:"omitempty,email"`
	Currency        string          `json:"currency,omitempty"`
}
