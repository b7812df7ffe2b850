package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	"github.com/angelmondragon/marketledger-backend/pkg/money"
)

// Repository persists orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Order, error)
	UpdateFields(ctx context.Context, id uuid.UUID, expected enums.OrderStatus, updates map[string]any) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order together with its items.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	for i := range order.Items {
		if order.Items[i].ID == uuid.Nil {
			order.Items[i].ID = uuid.New()
		}
		order.Items[i].OrderID = order.ID
	}
	return r.db.WithContext(ctx).Create(order).Error
}

// FindByID returns nil, nil when the order does not exist.
func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.find(ctx, r.db, id)
}

// FindByIDForUpdate row-locks the order for the rest of the transaction.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.find(ctx, r.db.Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *repository) find(ctx context.Context, q *gorm.DB, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := q.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC").Order("id ASC")
		}).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	normalize(&order)
	return &order, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for i := range rows {
		normalize(&rows[i])
	}
	return rows, nil
}

// UpdateFields applies updates only while the order is still in the expected
// status. false means another writer moved it first.
func (r *repository) UpdateFields(ctx context.Context, id uuid.UUID, expected enums.OrderStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// normalize rounds money columns to cents; sqlite hands numerics back as floats.
func normalize(order *models.Order) {
	order.Subtotal = money.Round(order.Subtotal)
	order.LoyaltyDiscount = money.Round(order.LoyaltyDiscount)
	order.GiftCardDiscount = money.Round(order.GiftCardDiscount)
	order.DiscountAmount = money.Round(order.DiscountAmount)
	order.ShippingAmount = money.Round(order.ShippingAmount)
	order.TaxAmount = money.Round(order.TaxAmount)
	order.TotalAmount = money.Round(order.TotalAmount)
	order.RefundedAmount = money.Round(order.RefundedAmount)
	for i := range order.Items {
		order.Items[i].UnitPrice = money.Round(order.Items[i].UnitPrice)
		order.Items[i].LineTotal = money.Round(order.Items[i].LineTotal)
	}
}
