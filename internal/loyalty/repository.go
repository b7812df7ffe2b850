package loyalty

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
)

// Repository persists loyalty accounts and their transaction journal.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindAccountByUser(ctx context.Context, userID uuid.UUID) (*models.LoyaltyAccount, error)
	CreateAccount(ctx context.Context, account *models.LoyaltyAccount) error
	AdjustBalance(ctx context.Context, accountID uuid.UUID, delta, lifetimeDelta int64) (bool, error)
	UpdateTier(ctx context.Context, accountID uuid.UUID, tier enums.LoyaltyTier, toNext int64) error
	InsertTransaction(ctx context.Context, txn *models.LoyaltyTransaction) error
	ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.LoyaltyTransaction, error)
	SumForOrder(ctx context.Context, orderID uuid.UUID, txnType enums.LoyaltyTransactionType) (int64, bool, error)
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

// FindAccountByUser returns nil, nil when the user has no account yet.
func (r *repository) FindAccountByUser(ctx context.Context, userID uuid.UUID) (*models.LoyaltyAccount, error) {
	var account models.LoyaltyAccount
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// CreateAccount inserts the account unless one already exists for the user;
// callers re-read afterwards to pick up whichever row won.
func (r *repository) CreateAccount(ctx context.Context, account *models.LoyaltyAccount) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(account).Error
}

// AdjustBalance applies delta to the balance. Debits are guarded so the
// balance can never go below zero; false means the guard rejected the debit.
func (r *repository) AdjustBalance(ctx context.Context, accountID uuid.UUID, delta, lifetimeDelta int64) (bool, error) {
	q := r.db.WithContext(ctx).Model(&models.LoyaltyAccount{}).Where("id = ?", accountID)
	if delta < 0 {
		q = q.Where("points_balance >= ?", -delta)
	}
	if lifetimeDelta < 0 {
		q = q.Where("lifetime_points >= ?", -lifetimeDelta)
	}
	updates := map[string]any{
		"points_balance": gorm.Expr("points_balance + ?", delta),
	}
	if lifetimeDelta != 0 {
		updates["lifetime_points"] = gorm.Expr("lifetime_points + ?", lifetimeDelta)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpdateTier(ctx context.Context, accountID uuid.UUID, tier enums.LoyaltyTier, toNext int64) error {
	return r.db.WithContext(ctx).
		Model(&models.LoyaltyAccount{}).
		Where("id = ?", accountID).
		Updates(map[string]any{
			"tier":                tier,
			"points_to_next_tier": toNext,
		}).Error
}

func (r *repository) InsertTransaction(ctx context.Context, txn *models.LoyaltyTransaction) error {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.LoyaltyTransaction, error) {
	var rows []models.LoyaltyTransaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// SumForOrder totals the points of one transaction type tied to an order and
// reports whether any such transaction exists.
func (r *repository) SumForOrder(ctx context.Context, orderID uuid.UUID, txnType enums.LoyaltyTransactionType) (int64, bool, error) {
	var result struct {
		Total int64
		Count int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.LoyaltyTransaction{}).
		Select("COALESCE(SUM(points), 0) AS total, COUNT(*) AS count").
		Where("related_order_id = ? AND type = ?", orderID, txnType).
		Scan(&result).Error
	if err != nil {
		return 0, false, err
	}
	return result.Total, result.Count > 0, nil
}
