package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketledger-backend/internal/giftcards"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
)

type stubGiftCards struct {
	card    *models.GiftCard
	err     error
	issued  giftcards.IssueInput
	gotCode string
}

func (s *stubGiftCards) Issue(_ context.Context, input giftcards.IssueInput) (*models.GiftCard, error) {
	s.issued = input
	return s.card, s.err
}

func (s *stubGiftCards) GetByCode(_ context.Context, code string) (*models.GiftCard, error) {
	s.gotCode = code
	return s.card, s.err
}

func sampleCard() *models.GiftCard {
	return &models.GiftCard{
		ID:               uuid.New(),
		Code:             "GC-ABCD-EFGH-JKLM",
		PurchaserID:      uuid.New(),
		Currency:         "USD",
		InitialAmount:    decimal.RequireFromString("100"),
		RemainingBalance: decimal.RequireFromString("36"),
		Status:           enums.GiftCardStatusActive,
		ExpiresAt:        time.Date(2027, time.March, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestIssueGiftCardUsesCallerAsPurchaser(t *testing.T) {
	userID := uuid.New()
	svc := &stubGiftCards{card: sampleCard()}

	resp := httptest.NewRecorder()
	IssueGiftCard(svc, nil).ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/gift-cards", `{"amount":"100","recipient_email":"Friend@Example.com"}`, userID))

	require.Equal(t, http.StatusCreated, resp.Code)
	require.Equal(t, userID, svc.issued.PurchaserID)
	require.True(t, decimal.RequireFromString("100").Equal(svc.issued.Amount))
	require.NotNil(t, svc.issued.RecipientEmail)
	require.Equal(t, "friend@example.com", *svc.issued.RecipientEmail)
	require.Contains(t, resp.Body.String(), `"remaining_balance":"36.00"`)
	require.NotContains(t, resp.Body.String(), "purchaser")
}

func TestIssueGiftCardRejectsBadEmail(t *testing.T) {
	svc := &stubGiftCards{}
	resp := httptest.NewRecorder()
	IssueGiftCard(svc, nil).ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/gift-cards", `{"amount":"100","recipient_email":"not-an-email"}`, uuid.New()))
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Equal(t, uuid.Nil, svc.issued.PurchaserID)
}

func TestGiftCardBalanceLooksUpCode(t *testing.T) {
	svc := &stubGiftCards{card: sampleCard()}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/gift-cards/GC-ABCD-EFGH-JKLM", nil)
	rc := chi.NewRouteContext()
	rc.URLParams.Add("code", "GC-ABCD-EFGH-JKLM")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))

	resp := httptest.NewRecorder()
	GiftCardBalance(svc, nil).ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "GC-ABCD-EFGH-JKLM", svc.gotCode)
}

func TestGiftCardBalanceUnknownCode(t *testing.T) {
	svc := &stubGiftCards{err: pkgerrors.New(pkgerrors.CodeGiftCardInvalid, "gift card not found")}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/gift-cards/NOPE", nil)
	rc := chi.NewRouteContext()
	rc.URLParams.Add("code", "NOPE")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))

	resp := httptest.NewRecorder()
	GiftCardBalance(svc, nil).ServeHTTP(resp, req)
	require.Equal(t, http.StatusNotFound, resp.Code)
}
