package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketledger-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/marketledger-backend/internal/checkout"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
)

type stubCheckoutService struct {
	result *checkoutsvc.CheckoutResult
	err    error
	input  checkoutsvc.CheckoutInput
	calls  int
}

func (s *stubCheckoutService) Execute(_ context.Context, input checkoutsvc.CheckoutInput) (*checkoutsvc.CheckoutResult, error) {
	s.calls++
	s.input = input
	return s.result, s.err
}

func authedRequest(method, target, body string, userID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != uuid.Nil {
		req = req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
	}
	return req
}

func TestCheckoutSuccess(t *testing.T) {
	userID := uuid.New()
	productID := uuid.New()
	order := &models.Order{
		ID:               uuid.New(),
		OrderNumber:      "ORD-20260301-0A1B2C3D",
		UserID:           userID,
		Status:           enums.OrderStatusPending,
		PaymentMethod:    enums.PaymentMethodCard,
		Currency:         "USD",
		Subtotal:         decimal.RequireFromString("1000"),
		LoyaltyDiscount:  decimal.RequireFromString("10"),
		DiscountAmount:   decimal.RequireFromString("10"),
		ShippingAmount:   decimal.RequireFromString("50"),
		TaxAmount:        decimal.RequireFromString("150"),
		TotalAmount:      decimal.RequireFromString("1190"),
		RefundedAmount:   decimal.Zero,
		GiftCardDiscount: decimal.Zero,
		PointsRedeemed:   100,
		CreatedAt:        time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC),
	}
	svc := &stubCheckoutService{result: &checkoutsvc.CheckoutResult{Order: order, PointsRedeemed: 100, GiftCardApplied: decimal.Zero}}

	body := `{"items":[{"product_id":"` + productID.String() + `","quantity":2}],"payment_method":"card","points_to_redeem":100,"gift_card_code":" gc-abcd ","gift_card_amount":"12.50"}`
	resp := httptest.NewRecorder()
	Checkout(svc, nil).ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/checkout", body, userID))

	require.Equal(t, http.StatusCreated, resp.Code)
	require.Equal(t, userID, svc.input.UserID)
	require.Len(t, svc.input.Items, 1)
	require.Equal(t, productID, svc.input.Items[0].ProductID)
	require.Equal(t, 2, svc.input.Items[0].Quantity)
	require.Equal(t, enums.PaymentMethodCard, svc.input.PaymentMethod)
	require.Equal(t, int64(100), svc.input.PointsToRedeem)
	require.Equal(t, "gc-abcd", svc.input.GiftCardCode)
	require.True(t, decimal.RequireFromString("12.5").Equal(svc.input.GiftCardAmount))

	var envelope struct {
		Data checkoutResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.Equal(t, "1190.00", envelope.Data.Order.TotalAmount)
	require.Equal(t, "10.00", envelope.Data.Order.LoyaltyDiscount)
	require.Equal(t, int64(100), envelope.Data.PointsRedeemed)
	require.Equal(t, "0.00", envelope.Data.GiftCardApplied)
}

func TestCheckoutRequiresUser(t *testing.T) {
	svc := &stubCheckoutService{}
	resp := httptest.NewRecorder()
	Checkout(svc, nil).ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/checkout", `{}`, uuid.Nil))
	require.Equal(t, http.StatusUnauthorized, resp.Code)
	require.Zero(t, svc.calls)
}

func TestCheckoutRejectsInvalidPayload(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{name: "empty cart", body: `{"items":[],"payment_method":"card"}`},
		{name: "zero quantity", body: `{"items":[{"product_id":"` + uuid.NewString() + `","quantity":0}],"payment_method":"card"}`},
		{name: "missing payment method", body: `{"items":[{"product_id":"` + uuid.NewString() + `","quantity":1}]}`},
		{name: "negative points", body: `{"items":[{"product_id":"` + uuid.NewString() + `","quantity":1}],"payment_method":"card","points_to_redeem":-5}`},
		{name: "unknown field", body: `{"items":[{"product_id":"` + uuid.NewString() + `","quantity":1}],"payment_method":"card","coupon":"x"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubCheckoutService{}
			resp := httptest.NewRecorder()
			Checkout(svc, nil).ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/checkout", tc.body, uuid.New()))
			require.Equal(t, http.StatusBadRequest, resp.Code)
			require.Zero(t, svc.calls)
		})
	}
}

func TestCheckoutSurfacesStockDetails(t *testing.T) {
	productID := uuid.New()
	svc := &stubCheckoutService{err: pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock for Widget").
		WithDetails(map[string]any{"productId": productID.String(), "available": 2, "requested": 5})}

	body := `{"items":[{"product_id":"` + productID.String() + `","quantity":5}],"payment_method":"card"}`
	resp := httptest.NewRecorder()
	Checkout(svc, nil).ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/checkout", body, uuid.New()))

	require.Equal(t, http.StatusConflict, resp.Code)
	require.Contains(t, resp.Body.String(), string(pkgerrors.CodeInsufficientStock))
	require.Contains(t, resp.Body.String(), `"available":2`)
}
