package giftcards

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	"github.com/angelmondragon/marketledger-backend/pkg/money"
)

// Repository persists gift cards and their balance journal.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByCode(ctx context.Context, code string) (*models.GiftCard, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.GiftCard, error)
	Create(ctx context.Context, card *models.GiftCard) error
	DebitBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal, now time.Time) (bool, error)
	CreditBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal, now time.Time) (bool, error)
	MarkExpired(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	InsertTransaction(ctx context.Context, txn *models.GiftCardTransaction) error
	SumForOrder(ctx context.Context, cardID, orderID uuid.UUID, txnType enums.GiftCardTransactionType) (decimal.Decimal, bool, error)
	ListTransactions(ctx context.Context, cardID uuid.UUID) ([]models.GiftCardTransaction, error)
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

// FindByCode returns nil, nil when no card carries the code.
func (r *repository) FindByCode(ctx context.Context, code string) (*models.GiftCard, error) {
	return r.first(ctx, "code = ?", code)
}

// FindByID returns nil, nil when the card does not exist.
func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.GiftCard, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *repository) first(ctx context.Context, query string, arg any) (*models.GiftCard, error) {
	var card models.GiftCard
	if err := r.db.WithContext(ctx).Where(query, arg).First(&card).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	card.InitialAmount = money.Round(card.InitialAmount)
	card.RemainingBalance = money.Round(card.RemainingBalance)
	return &card, nil
}

func (r *repository) Create(ctx context.Context, card *models.GiftCard) error {
	if card.ID == uuid.Nil {
		card.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(card).Error
}

// DebitBalance subtracts amount from an active, unexpired card holding at
// least that much, flipping it to redeemed when it reaches zero. false means
// the guard rejected the debit.
func (r *repository) DebitBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.GiftCard{}).
		Where("id = ? AND status = ? AND remaining_balance >= ? AND expires_at > ?",
			id, enums.GiftCardStatusActive, amount, now.UTC()).
		Updates(map[string]any{
			"remaining_balance": gorm.Expr("remaining_balance - ?", amount),
			"status": gorm.Expr("CASE WHEN remaining_balance - ? <= 0 THEN ? ELSE status END",
				amount, enums.GiftCardStatusRedeemed),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CreditBalance adds amount back without exceeding the face value. A redeemed
// card becomes active again unless it has expired.
func (r *repository) CreditBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.GiftCard{}).
		Where("id = ? AND remaining_balance + ? <= initial_amount", id, amount).
		Updates(map[string]any{
			"remaining_balance": gorm.Expr("remaining_balance + ?", amount),
			"status": gorm.Expr("CASE WHEN status = ? AND expires_at > ? THEN ? ELSE status END",
				enums.GiftCardStatusRedeemed, now.UTC(), enums.GiftCardStatusActive),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkExpired moves an active card past its expiry to expired.
func (r *repository) MarkExpired(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.GiftCard{}).
		Where("id = ? AND status = ? AND expires_at <= ?", id, enums.GiftCardStatusActive, now.UTC()).
		Update("status", enums.GiftCardStatusExpired)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) InsertTransaction(ctx context.Context, txn *models.GiftCardTransaction) error {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(txn).Error
}

// SumForOrder totals one transaction type for a card and order and reports
// whether any such row exists.
func (r *repository) SumForOrder(ctx context.Context, cardID, orderID uuid.UUID, txnType enums.GiftCardTransactionType) (decimal.Decimal, bool, error) {
	var rows []models.GiftCardTransaction
	err := r.db.WithContext(ctx).
		Where("gift_card_id = ? AND order_id = ? AND type = ?", cardID, orderID, txnType).
		Find(&rows).Error
	if err != nil {
		return decimal.Zero, false, err
	}
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.Amount)
	}
	return money.Round(total), len(rows) > 0, nil
}

func (r *repository) ListTransactions(ctx context.Context, cardID uuid.UUID) ([]models.GiftCardTransaction, error) {
	var rows []models.GiftCardTransaction
	err := r.db.WithContext(ctx).
		Where("gift_card_id = ?", cardID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}
