package payouts

import (
	"net/http"
	"time"

	"github.com/angelmondragon/marketledger-backend/api/controllers/dto"
	"github.com/angelmondragon/marketledger-backend/api/responses"
	"github.com/angelmondragon/marketledger-backend/api/validators"
	internalpayouts "github.com/angelmondragon/marketledger-backend/internal/payouts"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	"github.com/angelmondragon/marketledger-backend/pkg/pagination"
	"github.com/google/uuid"
)

// Run settles the month before as_of (default now) for every approved vendor.
// Vendors already settled for that month are reported as skipped.
func Run(svc internalpayouts.Service, now func() time.Time, logg *logger.Logger) http.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		asOf, err := validators.ParseQueryTime(r, "as_of", now())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		asOf = asOf.UTC()

		summary, err := svc.RunMonthly(r.Context(), asOf)
		if summary == nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err != nil && logg != nil {
			logg.Warn(r.Context(), "payout run finished with failures: "+err.Error())
		}
		responses.WriteSuccess(w, runResponse{
			PeriodStart: summary.PeriodStart,
			PeriodEnd:   summary.PeriodEnd,
			Created:     summary.Created,
			Skipped:     summary.Skipped,
			Failed:      summary.Failed,
			Payouts:     dto.NewPayouts(summary.Payouts),
		})
	}
}

// List returns recent payouts, optionally for one vendor.
func List(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		vendorID, err := validators.ParseQueryUUID(r, "vendor_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.ListPayouts(r.Context(), vendorID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewPayouts(rows))
	}
}

// MarkPaid records that the transfer for a payout went out.
func MarkPaid(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		payoutID, err := validators.ParseUUIDParam(r, "payoutId", "payout id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payout, err := svc.MarkPaid(r.Context(), payoutID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewPayout(payout))
	}
}

// MonthEndCommission reports a vendor's commission totals for year/month
// without creating a payout.
func MonthEndCommission(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		vendorID, err := validators.ParseUUIDParam(r, "vendorId", "vendor id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		year, err := validators.ParseQueryInt(r, "year", 0, 2000, 9999)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		month, err := validators.ParseQueryInt(r, "month", 0, 1, 12)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if year == 0 || month == 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "year and month are required"))
			return
		}

		summary, err := svc.CalculateMonthEndCommission(r.Context(), vendorID, year, time.Month(month))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, monthEndResponse{
			VendorID:        summary.VendorID,
			PeriodStart:     summary.PeriodStart,
			PeriodEnd:       summary.PeriodEnd,
			TotalSales:      dto.Amount(summary.TotalSales),
			TotalCommission: dto.Amount(summary.TotalCommission),
			PayoutAmount:    dto.Amount(summary.PayoutAmount),
			AverageRate:     summary.AverageRate.StringFixed(4),
			OrderCount:      summary.OrderCount,
			EntryCount:      summary.EntryCount,
		})
	}
}

// GenerateStatement renders and stores a vendor statement for a calendar
// month or an explicit [period_start, period_end) range.
func GenerateStatement(svc internalpayouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		vendorID, err := validators.ParseUUIDParam(r, "vendorId", "vendor id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload statementRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		start, end, err := payload.window()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		statement, err := svc.GenerateStatement(r.Context(), vendorID, start, end)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto.NewStatement(statement))
	}
}

type statementRequest struct {
	Year        int        `json:"year,omitempty" validate:"omitempty,min=2000,max=9999"`
	Month       int        `json:"month,omitempty" validate:"omitempty,min=1,max=12"`
	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`
}

func (p statementRequest) window() (time.Time, time.Time, error) {
	if p.PeriodStart != nil && p.PeriodEnd != nil {
		return p.PeriodStart.UTC(), p.PeriodEnd.UTC(), nil
	}
	if p.Year == 0 || p.Month == 0 {
		return time.Time{}, time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "year and month, or period_start and period_end, are required")
	}
	start, end, err := internalpayouts.MonthWindow(p.Year, time.Month(p.Month))
	if err != nil {
		return time.Time{}, time.Time{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid period")
	}
	return start, end, nil
}

type runResponse struct {
	PeriodStart time.Time    `json:"period_start"`
	PeriodEnd   time.Time    `json:"period_end"`
	Created     []uuid.UUID  `json:"created"`
	Skipped     []uuid.UUID  `json:"skipped"`
	Failed      []uuid.UUID  `json:"failed"`
	Payouts     []dto.Payout `json:"payouts"`
}

type monthEndResponse struct {
	VendorID        uuid.UUID `json:"vendor_id"`
	PeriodStart     time.Time `json:"period_start"`
	PeriodEnd       time.Time `json:"period_end"`
	TotalSales      string    `json:"total_sales"`
	TotalCommission string    `json:"total_commission"`
	PayoutAmount    string    `json:"payout_amount"`
	AverageRate     string    `json:"average_rate"`
	OrderCount      int       `json:"order_count"`
	EntryCount      int       `json:"entry_count"`
}
