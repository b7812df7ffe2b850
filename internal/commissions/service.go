package commissions

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/internal/orders"
	"github.com/angelmondragon/marketledger-backend/internal/vendors"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	"github.com/angelmondragon/marketledger-backend/pkg/metrics"
	"github.com/angelmondragon/marketledger-backend/pkg/money"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service derives the platform/vendor split for paid orders.
type Service interface {
	CreateCommissionLedgerEntries(ctx context.Context, orderID uuid.UUID) (int, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.CommissionLedgerEntry, error)
}

type ServiceParams struct {
	TX          txRunner
	Repo        Repository
	Orders      orders.Repository
	Vendors     vendors.Repository
	DefaultRate decimal.Decimal
	Metrics     *metrics.SettlementMetrics
	Logger      *logger.Logger
}

type service struct {
	tx          txRunner
	repo        Repository
	orders      orders.Repository
	vendors     vendors.Repository
	defaultRate decimal.Decimal
	metrics     *metrics.SettlementMetrics
	logg        *logger.Logger
}

// NewService wires the commission generator.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.TX == nil:
		return nil, fmt.Errorf("tx runner required")
	case params.Repo == nil:
		return nil, fmt.Errorf("commission repository required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Vendors == nil:
		return nil, fmt.Errorf("vendors repository required")
	}
	if err := validateRate(params.DefaultRate); err != nil {
		return nil, fmt.Errorf("default commission rate: %w", err)
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		tx:          params.TX,
		repo:        params.Repo,
		orders:      params.Orders,
		vendors:     params.Vendors,
		defaultRate: params.DefaultRate,
		metrics:     params.Metrics,
		logg:        logg,
	}, nil
}

// CreateCommissionLedgerEntries writes one entry per order item that does not
// have one yet and returns how many were written. Running it again for the
// same order writes nothing.
func (s *service) CreateCommissionLedgerEntries(ctx context.Context, orderID uuid.UUID) (int, error) {
	if orderID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	ctx = s.logg.WithOrderID(ctx, orderID.String())

	created := 0
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		created = 0
		order, err := s.orders.WithTx(tx).FindByID(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found").
				WithDetails(map[string]any{"orderId": orderID.String()})
		}
		if !order.Status.IsPaidOrLater() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not paid").
				WithDetails(map[string]any{"orderId": orderID.String(), "status": order.Status})
		}

		vendorIDs := make([]uuid.UUID, 0, len(order.Items))
		for _, item := range order.Items {
			vendorIDs = append(vendorIDs, item.VendorID)
		}
		vendorsByID, err := s.vendors.WithTx(tx).FindByIDs(ctx, vendorIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendors")
		}

		repo := s.repo.WithTx(tx)
		for _, item := range order.Items {
			exists, err := repo.Exists(ctx, order.ID, item.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check ledger entry")
			}
			if exists {
				continue
			}

			var vendor *models.Vendor
			if v, ok := vendorsByID[item.VendorID]; ok {
				vendor = &v
			}
			rate := vendors.CommissionRate(vendor, s.defaultRate)
			if err := validateRate(rate); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "vendor commission rate").
					WithDetails(map[string]any{"vendorId": item.VendorID.String()})
			}
			entry := NewEntry(order.ID, item, rate)
			inserted, err := repo.Insert(ctx, entry)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert ledger entry")
			}
			if inserted {
				created++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.metrics.AddLedgerEntries(created)
	if created > 0 {
		s.logg.Info(s.logg.WithField(ctx, "entries", created), "commission ledger entries recorded")
	}
	return created, nil
}

func (s *service) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.CommissionLedgerEntry, error) {
	rows, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger entries")
	}
	return rows, nil
}

// NewEntry computes the split for one order item. The commission is rounded
// half-even to cents and the payout is the exact remainder, so the two always
// add back up to the sale amount.
func NewEntry(orderID uuid.UUID, item models.OrderItem, rate decimal.Decimal) *models.CommissionLedgerEntry {
	sale := money.Round(item.LineTotal)
	commission := money.Apply(sale, rate)
	return &models.CommissionLedgerEntry{
		ID:               uuid.New(),
		OrderID:          orderID,
		OrderItemID:      item.ID,
		VendorID:         item.VendorID,
		SaleAmount:       sale,
		CommissionRate:   rate,
		CommissionAmount: commission,
		VendorPayout:     sale.Sub(commission),
		Status:           enums.CommissionStatusRecorded,
	}
}

func validateRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("rate %s outside [0, 1]", rate.String())
	}
	if !money.IsRatePrecise(rate) {
		return fmt.Errorf("rate %s has more than %d decimal places", rate.String(), money.RateScale)
	}
	return nil
}
