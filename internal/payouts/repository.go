package payouts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	"github.com/angelmondragon/marketledger-backend/pkg/money"
)

// LedgerFilter selects a vendor's ledger entries for orders delivered in
// [Start, End).
type LedgerFilter struct {
	VendorID     uuid.UUID
	Start        time.Time
	End          time.Time
	UnlinkedOnly bool
}

// Repository reads the commission ledger and persists payouts, their entry
// links and statements.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LedgerEntries(ctx context.Context, filter LedgerFilter) ([]models.CommissionLedgerEntry, error)
	HasOverlappingPayout(ctx context.Context, vendorID uuid.UUID, start, end time.Time) (bool, error)
	CreatePayout(ctx context.Context, payout *models.VendorPayout) error
	LinkEntries(ctx context.Context, payoutID uuid.UUID, ledgerEntryIDs []uuid.UUID) error
	CreateStatement(ctx context.Context, statement *models.VendorStatement) error
	FindPayout(ctx context.Context, id uuid.UUID) (*models.VendorPayout, error)
	FindPayoutForUpdate(ctx context.Context, id uuid.UUID) (*models.VendorPayout, error)
	ListPayouts(ctx context.Context, vendorID *uuid.UUID, limit int) ([]models.VendorPayout, error)
	ListStatements(ctx context.Context, vendorID uuid.UUID, limit int) ([]models.VendorStatement, error)
	MarkPayoutPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (bool, error)
	MarkLinkedEntriesPaid(ctx context.Context, payoutID uuid.UUID, paidAt time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payouts repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) LedgerEntries(ctx context.Context, filter LedgerFilter) ([]models.CommissionLedgerEntry, error) {
	q := r.db.WithContext(ctx).
		Model(&models.CommissionLedgerEntry{}).
		Select("commission_ledger_entries.*").
		Joins("JOIN orders ON orders.id = commission_ledger_entries.order_id").
		Where("commission_ledger_entries.vendor_id = ?", filter.VendorID).
		Where("orders.status = ?", enums.OrderStatusDelivered).
		Where("orders.delivered_at >= ? AND orders.delivered_at < ?", filter.Start.UTC(), filter.End.UTC())
	if filter.UnlinkedOnly {
		q = q.Where("NOT EXISTS (SELECT 1 FROM vendor_payout_entries vpe WHERE vpe.ledger_entry_id = commission_ledger_entries.id)")
	}

	var rows []models.CommissionLedgerEntry
	if err := q.
		Order("commission_ledger_entries.created_at ASC").
		Order("commission_ledger_entries.id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].SaleAmount = money.Round(rows[i].SaleAmount)
		rows[i].CommissionAmount = money.Round(rows[i].CommissionAmount)
		rows[i].VendorPayout = money.Round(rows[i].VendorPayout)
		rows[i].CommissionRate = rows[i].CommissionRate.RoundBank(money.RateScale)
	}
	return rows, nil
}

// HasOverlappingPayout reports whether any payout for the vendor intersects
// [start, end).
func (r *repository) HasOverlappingPayout(ctx context.Context, vendorID uuid.UUID, start, end time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.VendorPayout{}).
		Where("vendor_id = ? AND period_start < ? AND period_end > ?", vendorID, end.UTC(), start.UTC()).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) CreatePayout(ctx context.Context, payout *models.VendorPayout) error {
	if payout.ID == uuid.Nil {
		payout.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(payout).Error
}

func (r *repository) LinkEntries(ctx context.Context, payoutID uuid.UUID, ledgerEntryIDs []uuid.UUID) error {
	if len(ledgerEntryIDs) == 0 {
		return nil
	}
	links := make([]models.VendorPayoutEntry, 0, len(ledgerEntryIDs))
	for _, id := range ledgerEntryIDs {
		links = append(links, models.VendorPayoutEntry{
			ID:            uuid.New(),
			PayoutID:      payoutID,
			LedgerEntryID: id,
		})
	}
	return r.db.WithContext(ctx).Create(&links).Error
}

func (r *repository) CreateStatement(ctx context.Context, statement *models.VendorStatement) error {
	if statement.ID == uuid.Nil {
		statement.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(statement).Error
}

// FindPayout returns nil, nil when the payout does not exist.
func (r *repository) FindPayout(ctx context.Context, id uuid.UUID) (*models.VendorPayout, error) {
	return r.findPayout(ctx, r.db, id)
}

func (r *repository) FindPayoutForUpdate(ctx context.Context, id uuid.UUID) (*models.VendorPayout, error) {
	return r.findPayout(ctx, r.db.Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *repository) findPayout(ctx context.Context, q *gorm.DB, id uuid.UUID) (*models.VendorPayout, error) {
	var payout models.VendorPayout
	if err := q.WithContext(ctx).Where("id = ?", id).First(&payout).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	normalizePayout(&payout)
	return &payout, nil
}

func (r *repository) ListPayouts(ctx context.Context, vendorID *uuid.UUID, limit int) ([]models.VendorPayout, error) {
	q := r.db.WithContext(ctx).Model(&models.VendorPayout{})
	if vendorID != nil {
		q = q.Where("vendor_id = ?", *vendorID)
	}
	var rows []models.VendorPayout
	if err := q.Order("period_start DESC").Order("vendor_id ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		normalizePayout(&rows[i])
	}
	return rows, nil
}

func (r *repository) ListStatements(ctx context.Context, vendorID uuid.UUID, limit int) ([]models.VendorStatement, error) {
	var rows []models.VendorStatement
	if err := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		Order("generated_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].TotalSales = money.Round(rows[i].TotalSales)
		rows[i].TotalCommission = money.Round(rows[i].TotalCommission)
		rows[i].PayoutAmount = money.Round(rows[i].PayoutAmount)
	}
	return rows, nil
}

// MarkPayoutPaid flips a pending payout to paid. false means it was not pending.
func (r *repository) MarkPayoutPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.VendorPayout{}).
		Where("id = ? AND status = ?", id, enums.PayoutStatusPending).
		Updates(map[string]any{
			"status":  enums.PayoutStatusPaid,
			"paid_at": paidAt.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkLinkedEntriesPaid marks exactly the ledger entries linked to the payout.
func (r *repository) MarkLinkedEntriesPaid(ctx context.Context, payoutID uuid.UUID, paidAt time.Time) (int64, error) {
	linked := r.db.Model(&models.VendorPayoutEntry{}).
		Select("ledger_entry_id").
		Where("payout_id = ?", payoutID)
	res := r.db.WithContext(ctx).
		Model(&models.CommissionLedgerEntry{}).
		Where("id IN (?) AND status = ?", linked, enums.CommissionStatusRecorded).
		Updates(map[string]any{
			"status":  enums.CommissionStatusPaid,
			"paid_at": paidAt.UTC(),
		})
	return res.RowsAffected, res.Error
}

func normalizePayout(p *models.VendorPayout) {
	p.TotalSales = money.Round(p.TotalSales)
	p.TotalCommission = money.Round(p.TotalCommission)
	p.PayoutAmount = money.Round(p.PayoutAmount)
}
