package commissions

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/money"
)

// Repository persists commission ledger entries. Entries are append-only;
// only payouts flip them to paid.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Exists(ctx context.Context, orderID, orderItemID uuid.UUID) (bool, error)
	Insert(ctx context.Context, entry *models.CommissionLedgerEntry) (bool, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.CommissionLedgerEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a commission ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Exists(ctx context.Context, orderID, orderItemID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CommissionLedgerEntry{}).
		Where("order_id = ? AND order_item_id = ?", orderID, orderItemID).
		Count(&count).Error
	return count > 0, err
}

// Insert writes the entry unless one already exists for the same order item.
// false means a concurrent writer got there first.
func (r *repository) Insert(ctx context.Context, entry *models.CommissionLedgerEntry) (bool, error) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}, {Name: "order_item_id"}},
			DoNothing: true,
		}).
		Create(entry)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.CommissionLedgerEntry, error) {
	var rows []models.CommissionLedgerEntry
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
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
