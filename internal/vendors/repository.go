package vendors

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
)

// Repository reads vendor records maintained by the admin tooling.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Vendor, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Vendor, error)
	ListApproved(ctx context.Context) ([]models.Vendor, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Vendor, error) {
	var vendor models.Vendor
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&vendor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor not found").
				WithDetails(map[string]any{"vendor_id": id})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor")
	}
	return &vendor, nil
}

func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Vendor, error) {
	out := make(map[uuid.UUID]models.Vendor, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Vendor
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// ListApproved returns approved vendors ordered by id so batch jobs walk them
// deterministically.
func (r *repository) ListApproved(ctx context.Context) ([]models.Vendor, error) {
	var rows []models.Vendor
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.VendorStatusApproved).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// CommissionRate returns the vendor override when present, otherwise the
// platform default.
func CommissionRate(vendor *models.Vendor, platformDefault decimal.Decimal) decimal.Decimal {
	if vendor == nil || vendor.CommissionRate == nil {
		return platformDefault
	}
	return *vendor.CommissionRate
}
