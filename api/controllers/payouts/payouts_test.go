package payouts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	internalpayouts "github.com/angelmondragon/marketledger-backend/internal/payouts"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
)

type stubPayouts struct {
	summary    *internalpayouts.RunSummary
	runErr     error
	runAt      time.Time
	monthEnd   *internalpayouts.MonthEndSummary
	gotYear    int
	gotMonth   time.Month
	statement  *models.VendorStatement
	gotStart   time.Time
	gotEnd     time.Time
	payout     *models.VendorPayout
	listVendor *uuid.UUID
}

func (s *stubPayouts) RunMonthly(_ context.Context, now time.Time) (*internalpayouts.RunSummary, error) {
	s.runAt = now
	return s.summary, s.runErr
}

func (s *stubPayouts) CalculateMonthEndCommission(_ context.Context, _ uuid.UUID, year int, month time.Month) (*internalpayouts.MonthEndSummary, error) {
	s.gotYear, s.gotMonth = year, month
	return s.monthEnd, nil
}

func (s *stubPayouts) MarkPaid(context.Context, uuid.UUID) (*models.VendorPayout, error) {
	return s.payout, nil
}

func (s *stubPayouts) GenerateStatement(_ context.Context, _ uuid.UUID, start, end time.Time) (*models.VendorStatement, error) {
	s.gotStart, s.gotEnd = start, end
	return s.statement, nil
}

func (s *stubPayouts) GetPayout(context.Context, uuid.UUID) (*models.VendorPayout, error) {
	return s.payout, nil
}

func (s *stubPayouts) ListPayouts(_ context.Context, vendorID *uuid.UUID, _ int) ([]models.VendorPayout, error) {
	s.listVendor = vendorID
	return nil, nil
}

func (s *stubPayouts) ListStatements(context.Context, uuid.UUID, int) ([]models.VendorStatement, error) {
	return nil, nil
}

func request(method, target string, body io.Reader, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, body)
	rc := chi.NewRouteContext()
	for key, value := range params {
		rc.URLParams.Add(key, value)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestRunUsesAsOfAndReportsPartialFailure(t *testing.T) {
	vendorOK, vendorBad := uuid.New(), uuid.New()
	start := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	svc := &stubPayouts{
		summary: &internalpayouts.RunSummary{
			PeriodStart: start,
			PeriodEnd:   start.AddDate(0, 1, 0),
			Created:     []uuid.UUID{vendorOK},
			Skipped:     []uuid.UUID{},
			Failed:      []uuid.UUID{vendorBad},
			Payouts: []models.VendorPayout{{
				ID:           uuid.New(),
				VendorID:     vendorOK,
				PayoutAmount: decimal.RequireFromString("2500"),
				Status:       enums.PayoutStatusPending,
			}},
		},
		runErr: errors.New("vendor failed"),
	}

	resp := httptest.NewRecorder()
	Run(svc, nil, nil).ServeHTTP(resp, request(http.MethodPost, "/api/admin/v1/payouts/run?as_of=2026-03-01T00:00:00Z", nil, nil))

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), svc.runAt)

	var envelope struct {
		Data runResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.Equal(t, []uuid.UUID{vendorBad}, envelope.Data.Failed)
	require.Len(t, envelope.Data.Payouts, 1)
	require.Equal(t, "2500.00", envelope.Data.Payouts[0].PayoutAmount)
}

func TestRunRejectsBadAsOf(t *testing.T) {
	resp := httptest.NewRecorder()
	Run(&stubPayouts{}, nil, nil).ServeHTTP(resp, request(http.MethodPost, "/?as_of=yesterday", nil, nil))
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestRunDefaultsToClock(t *testing.T) {
	fixed := time.Date(2026, time.April, 3, 10, 0, 0, 0, time.UTC)
	svc := &stubPayouts{summary: &internalpayouts.RunSummary{}}
	resp := httptest.NewRecorder()
	Run(svc, func() time.Time { return fixed }, nil).ServeHTTP(resp, request(http.MethodPost, "/", nil, nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, fixed, svc.runAt)
}

func TestListParsesVendorFilter(t *testing.T) {
	vendorID := uuid.New()
	svc := &stubPayouts{}
	resp := httptest.NewRecorder()
	List(svc, nil).ServeHTTP(resp, request(http.MethodGet, "/?vendor_id="+vendorID.String(), nil, nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.NotNil(t, svc.listVendor)
	require.Equal(t, vendorID, *svc.listVendor)
}

func TestMonthEndCommissionRequiresPeriod(t *testing.T) {
	params := map[string]string{"vendorId": uuid.NewString()}

	resp := httptest.NewRecorder()
	MonthEndCommission(&stubPayouts{}, nil).ServeHTTP(resp, request(http.MethodGet, "/?year=2026", nil, params))
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = httptest.NewRecorder()
	MonthEndCommission(&stubPayouts{}, nil).ServeHTTP(resp, request(http.MethodGet, "/?year=2026&month=13", nil, params))
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestMonthEndCommissionRendersRates(t *testing.T) {
	vendorID := uuid.New()
	svc := &stubPayouts{monthEnd: &internalpayouts.MonthEndSummary{
		VendorID:        vendorID,
		TotalSales:      decimal.RequireFromString("3000"),
		TotalCommission: decimal.RequireFromString("500"),
		PayoutAmount:    decimal.RequireFromString("2500"),
		AverageRate:     decimal.RequireFromString("0.1667"),
		OrderCount:      2,
		EntryCount:      2,
	}}

	resp := httptest.NewRecorder()
	MonthEndCommission(svc, nil).ServeHTTP(resp, request(http.MethodGet, "/?year=2026&month=2", nil, map[string]string{"vendorId": vendorID.String()}))
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, 2026, svc.gotYear)
	require.Equal(t, time.February, svc.gotMonth)

	var envelope struct {
		Data monthEndResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.Equal(t, "0.1667", envelope.Data.AverageRate)
	require.Equal(t, "2500.00", envelope.Data.PayoutAmount)
}

func TestGenerateStatementUsesCalendarMonth(t *testing.T) {
	vendorID := uuid.New()
	svc := &stubPayouts{statement: &models.VendorStatement{ID: uuid.New(), VendorID: vendorID}}

	resp := httptest.NewRecorder()
	GenerateStatement(svc, nil).ServeHTTP(resp, request(http.MethodPost, "/", strings.NewReader(`{"year":2026,"month":2}`), map[string]string{"vendorId": vendorID.String()}))
	require.Equal(t, http.StatusCreated, resp.Code)
	require.Equal(t, time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC), svc.gotStart)
	require.Equal(t, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), svc.gotEnd)
}

func TestGenerateStatementRequiresPeriod(t *testing.T) {
	resp := httptest.NewRecorder()
	GenerateStatement(&stubPayouts{}, nil).ServeHTTP(resp, request(http.MethodPost, "/", strings.NewReader(`{}`), map[string]string{"vendorId": uuid.NewString()}))
	require.Equal(t, http.StatusBadRequest, resp.Code)
}
