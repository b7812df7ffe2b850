package payouts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/internal/vendors"
	"github.com/angelmondragon/marketledger-backend/pkg/db"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	"github.com/angelmondragon/marketledger-backend/pkg/metrics"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/marketledger-backend/pkg/pagination"
)

var listBounds = pagination.Bounds{Default: 50, Max: 500}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service aggregates delivered sales into vendor payouts and statements.
type Service interface {
	RunMonthly(ctx context.Context, now time.Time) (*RunSummary, error)
	CalculateMonthEndCommission(ctx context.Context, vendorID uuid.UUID, year int, month time.Month) (*MonthEndSummary, error)
	MarkPaid(ctx context.Context, payoutID uuid.UUID) (*models.VendorPayout, error)
	GenerateStatement(ctx context.Context, vendorID uuid.UUID, start, end time.Time) (*models.VendorStatement, error)
	GetPayout(ctx context.Context, payoutID uuid.UUID) (*models.VendorPayout, error)
	ListPayouts(ctx context.Context, vendorID *uuid.UUID, limit int) ([]models.VendorPayout, error)
	ListStatements(ctx context.Context, vendorID uuid.UUID, limit int) ([]models.VendorStatement, error)
}

// RunSummary lists the vendors a monthly run touched, by outcome.
type RunSummary struct {
	PeriodStart time.Time             `json:"period_start"`
	PeriodEnd   time.Time             `json:"period_end"`
	Created     []uuid.UUID           `json:"created"`
	Skipped     []uuid.UUID           `json:"skipped"`
	Failed      []uuid.UUID           `json:"failed"`
	Payouts     []models.VendorPayout `json:"payouts"`
}

// MonthEndSummary is the read-only commission view for one vendor month.
type MonthEndSummary struct {
	VendorID        uuid.UUID       `json:"vendor_id"`
	PeriodStart     time.Time       `json:"period_start"`
	PeriodEnd       time.Time       `json:"period_end"`
	TotalSales      decimal.Decimal `json:"total_sales"`
	TotalCommission decimal.Decimal `json:"total_commission"`
	PayoutAmount    decimal.Decimal `json:"payout_amount"`
	AverageRate     decimal.Decimal `json:"average_rate"`
	OrderCount      int             `json:"order_count"`
	EntryCount      int             `json:"entry_count"`
}

type ServiceParams struct {
	TX       txRunner
	Repo     Repository
	Vendors  vendors.Repository
	Outbox   outbox.Emitter
	Currency string
	Metrics  *metrics.SettlementMetrics
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	tx       txRunner
	repo     Repository
	vendors  vendors.Repository
	outbox   outbox.Emitter
	currency string
	metrics  *metrics.SettlementMetrics
	logg     *logger.Logger
	now      func() time.Time
}

var errPeriodTaken = errors.New("payout period already settled")

type vendorOutcome int

const (
	outcomeCreated vendorOutcome = iota
	outcomeSkipped
)

// NewService wires the payout aggregator.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.TX == nil:
		return nil, fmt.Errorf("tx runner required")
	case params.Repo == nil:
		return nil, fmt.Errorf("payouts repository required")
	case params.Vendors == nil:
		return nil, fmt.Errorf("vendors repository required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "USD"
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		tx:       params.TX,
		repo:     params.Repo,
		vendors:  params.Vendors,
		outbox:   params.Outbox,
		currency: currency,
		metrics:  params.Metrics,
		logg:     logg,
		now:      now,
	}, nil
}

// RunMonthly settles the calendar month before now for every approved vendor.
// Each vendor commits on its own; a failing vendor is reported in the summary
// and the combined error but never stops the others.
func (s *service) RunMonthly(ctx context.Context, now time.Time) (*RunSummary, error) {
	start, end := PreviousMonth(now)
	summary := &RunSummary{
		PeriodStart: start,
		PeriodEnd:   end,
		Created:     []uuid.UUID{},
		Skipped:     []uuid.UUID{},
		Failed:      []uuid.UUID{},
		Payouts:     []models.VendorPayout{},
	}

	approved, err := s.vendors.ListApproved(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list approved vendors")
	}

	var errs error
	for i := range approved {
		vendor := approved[i]
		vendorCtx := s.logg.WithVendorID(ctx, vendor.ID.String())
		payout, outcome, err := s.settleVendor(vendorCtx, vendor, start, end)
		if err != nil {
			summary.Failed = append(summary.Failed, vendor.ID)
			errs = multierr.Append(errs, fmt.Errorf("vendor %s: %w", vendor.ID, err))
			s.logg.Error(vendorCtx, "vendor payout failed", err)
			continue
		}
		switch outcome {
		case outcomeCreated:
			summary.Created = append(summary.Created, vendor.ID)
			summary.Payouts = append(summary.Payouts, *payout)
		case outcomeSkipped:
			summary.Skipped = append(summary.Skipped, vendor.ID)
		}
	}

	s.metrics.AddPayouts(len(summary.Created))
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"period_start": start.Format(time.RFC3339),
		"period_end":   end.Format(time.RFC3339),
		"created":      len(summary.Created),
		"skipped":      len(summary.Skipped),
		"failed":       len(summary.Failed),
	})
	s.logg.Info(logCtx, "monthly payout run finished")
	return summary, errs
}

func (s *service) settleVendor(ctx context.Context, vendor models.Vendor, start, end time.Time) (*models.VendorPayout, vendorOutcome, error) {
	var (
		payout  *models.VendorPayout
		outcome = outcomeSkipped
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		overlaps, err := repo.HasOverlappingPayout(ctx, vendor.ID, start, end)
		if err != nil {
			return err
		}
		if overlaps {
			return nil
		}
		entries, err := repo.LedgerEntries(ctx, LedgerFilter{VendorID: vendor.ID, Start: start, End: end, UnlinkedOnly: true})
		if err != nil {
			return err
		}
		totals := Summarize(entries)
		if totals.Sales.IsZero() {
			return nil
		}

		generatedAt := s.now().UTC()
		payout = &models.VendorPayout{
			ID:              uuid.New(),
			VendorID:        vendor.ID,
			PeriodStart:     start,
			PeriodEnd:       end,
			Currency:        s.currency,
			TotalSales:      totals.Sales,
			TotalCommission: totals.Commission,
			PayoutAmount:    totals.Payout,
			OrderCount:      totals.OrderCount,
			EntryCount:      totals.EntryCount,
			Status:          enums.PayoutStatusPending,
		}
		if err := repo.CreatePayout(ctx, payout); err != nil {
			if db.IsUniqueViolation(err, "ux_vendor_payout_period", "vendor_id", "period_start", "period_end") {
				return errPeriodTaken
			}
			return err
		}

		ids := make([]uuid.UUID, 0, len(entries))
		for _, entry := range entries {
			ids = append(ids, entry.ID)
		}
		if err := repo.LinkEntries(ctx, payout.ID, ids); err != nil {
			return err
		}

		payoutID := payout.ID
		statement := &models.VendorStatement{
			ID:              uuid.New(),
			VendorID:        vendor.ID,
			PayoutID:        &payoutID,
			PeriodStart:     start,
			PeriodEnd:       end,
			Currency:        s.currency,
			TotalSales:      totals.Sales,
			TotalCommission: totals.Commission,
			PayoutAmount:    totals.Payout,
			OrderCount:      totals.OrderCount,
			GeneratedAt:     generatedAt,
			Body: RenderStatement(StatementInput{
				Vendor:      vendor,
				PeriodStart: start,
				PeriodEnd:   end,
				Currency:    s.currency,
				Totals:      totals,
				Entries:     entries,
				GeneratedAt: generatedAt,
			}),
		}
		if err := repo.CreateStatement(ctx, statement); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutCreated,
			AggregateType: enums.AggregatePayout,
			AggregateID:   payout.ID,
			OccurredAt:    generatedAt,
			Data: payloads.PayoutCreatedEvent{
				PayoutID:        payout.ID,
				VendorID:        vendor.ID,
				PeriodStart:     start,
				PeriodEnd:       end,
				TotalSales:      totals.Sales,
				TotalCommission: totals.Commission,
				PayoutAmount:    totals.Payout,
				OrderCount:      totals.OrderCount,
			},
		}); err != nil {
			return err
		}
		outcome = outcomeCreated
		return nil
	})
	if errors.Is(err, errPeriodTaken) {
		return nil, outcomeSkipped, nil
	}
	if err != nil {
		return nil, outcomeSkipped, err
	}
	if outcome == outcomeCreated {
		s.logg.Info(s.logg.WithField(ctx, "payout_id", payout.ID.String()), "vendor payout created")
	}
	return payout, outcome, nil
}

func (s *service) CalculateMonthEndCommission(ctx context.Context, vendorID uuid.UUID, year int, month time.Month) (*MonthEndSummary, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	start, end, err := MonthWindow(year, month)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid period")
	}
	entries, err := s.repo.LedgerEntries(ctx, LedgerFilter{VendorID: vendorID, Start: start, End: end})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ledger entries")
	}
	totals := Summarize(entries)
	return &MonthEndSummary{
		VendorID:        vendorID,
		PeriodStart:     start,
		PeriodEnd:       end,
		TotalSales:      totals.Sales,
		TotalCommission: totals.Commission,
		PayoutAmount:    totals.Payout,
		AverageRate:     totals.AverageRate(),
		OrderCount:      totals.OrderCount,
		EntryCount:      totals.EntryCount,
	}, nil
}

// MarkPaid moves a pending payout to paid and stamps every linked ledger
// entry with the same paid_at.
func (s *service) MarkPaid(ctx context.Context, payoutID uuid.UUID) (*models.VendorPayout, error) {
	var payout *models.VendorPayout
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		payout, err = repo.FindPayoutForUpdate(ctx, payoutID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
		}
		if payout == nil {
			return payoutNotFound(payoutID)
		}
		if payout.Status != enums.PayoutStatusPending {
			return alreadyPaid(payout)
		}

		paidAt := s.now().UTC()
		ok, err := repo.MarkPayoutPaid(ctx, payoutID, paidAt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payout paid")
		}
		if !ok {
			return alreadyPaid(payout)
		}
		marked, err := repo.MarkLinkedEntriesPaid(ctx, payoutID, paidAt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark ledger entries paid")
		}
		payout.Status = enums.PayoutStatusPaid
		payout.PaidAt = &paidAt

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutPaid,
			AggregateType: enums.AggregatePayout,
			AggregateID:   payout.ID,
			OccurredAt:    paidAt,
			Data: payloads.PayoutPaidEvent{
				PayoutID:     payout.ID,
				VendorID:     payout.VendorID,
				PayoutAmount: payout.PayoutAmount,
				PaidAt:       paidAt,
				EntryCount:   int(marked),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return payout, nil
}

// GenerateStatement renders and stores a statement straight from the ledger
// for any [start, end) window, independent of payouts.
func (s *service) GenerateStatement(ctx context.Context, vendorID uuid.UUID, start, end time.Time) (*models.VendorStatement, error) {
	start, end = start.UTC(), end.UTC()
	if !start.Before(end) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "period start must be before period end")
	}
	vendor, err := s.vendors.FindByID(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.LedgerEntries(ctx, LedgerFilter{VendorID: vendorID, Start: start, End: end})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ledger entries")
	}
	totals := Summarize(entries)
	generatedAt := s.now().UTC()
	statement := &models.VendorStatement{
		ID:              uuid.New(),
		VendorID:        vendorID,
		PeriodStart:     start,
		PeriodEnd:       end,
		Currency:        s.currency,
		TotalSales:      totals.Sales,
		TotalCommission: totals.Commission,
		PayoutAmount:    totals.Payout,
		OrderCount:      totals.OrderCount,
		GeneratedAt:     generatedAt,
		Body: RenderStatement(StatementInput{
			Vendor:      *vendor,
			PeriodStart: start,
			PeriodEnd:   end,
			Currency:    s.currency,
			Totals:      totals,
			Entries:     entries,
			GeneratedAt: generatedAt,
		}),
	}
	if err := s.repo.CreateStatement(ctx, statement); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store statement")
	}
	return statement, nil
}

func (s *service) GetPayout(ctx context.Context, payoutID uuid.UUID) (*models.VendorPayout, error) {
	payout, err := s.repo.FindPayout(ctx, payoutID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
	}
	if payout == nil {
		return nil, payoutNotFound(payoutID)
	}
	return payout, nil
}

func (s *service) ListPayouts(ctx context.Context, vendorID *uuid.UUID, limit int) ([]models.VendorPayout, error) {
	rows, err := s.repo.ListPayouts(ctx, vendorID, listBounds.Clamp(limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payouts")
	}
	return rows, nil
}

func (s *service) ListStatements(ctx context.Context, vendorID uuid.UUID, limit int) ([]models.VendorStatement, error) {
	rows, err := s.repo.ListStatements(ctx, vendorID, listBounds.Clamp(limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list statements")
	}
	return rows, nil
}

func payoutNotFound(id uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "payout not found").
		WithDetails(map[string]any{"payoutId": id.String()})
}

func alreadyPaid(payout *models.VendorPayout) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "payout is not pending").
		WithDetails(map[string]any{"payoutId": payout.ID.String(), "status": payout.Status})
}
