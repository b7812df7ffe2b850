package giftcards

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/pkg/db"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	"github.com/angelmondragon/marketledger-backend/pkg/money"
)

const (
	cardValidity    = 365 * 24 * time.Hour
	maxCodeAttempts = 5
	defaultCurrency = "USD"
)

var (
	minFaceValue = decimal.NewFromInt(1)
	maxFaceValue = decimal.NewFromInt(10000)
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service issues gift cards and moves their balances. Balance changes always
// append a GiftCardTransaction in the same transaction.
type Service interface {
	Issue(ctx context.Context, input IssueInput) (*models.GiftCard, error)
	Validate(ctx context.Context, code string, userID uuid.UUID, amount decimal.Decimal, now time.Time) (*models.GiftCard, error)
	Redeem(ctx context.Context, tx *gorm.DB, input RedeemInput) (*models.GiftCardTransaction, error)
	Restore(ctx context.Context, tx *gorm.DB, order *models.Order) (decimal.Decimal, error)
	GetByCode(ctx context.Context, code string) (*models.GiftCard, error)
}

type IssueInput struct {
	PurchaserID    uuid.UUID
	RecipientID    *uuid.UUID
	RecipientEmail *string
	Amount         decimal.Decimal
	Currency       string
}

// RedeemInput carries the user and clock so a rejected debit can be
// classified against the same rules Validate applies.
type RedeemInput struct {
	CardID  uuid.UUID
	OrderID uuid.UUID
	UserID  uuid.UUID
	Amount  decimal.Decimal
	Now     time.Time
}

type ServiceParams struct {
	TX       txRunner
	Repo     Repository
	Currency string
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	tx       txRunner
	repo     Repository
	currency string
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.TX == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("gift card repository required")
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = defaultCurrency
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
		currency: currency,
		logg:     logg,
		now:      now,
	}, nil
}

func (s *service) Issue(ctx context.Context, input IssueInput) (*models.GiftCard, error) {
	if input.PurchaserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchaser id required")
	}
	amount := input.Amount
	if !amount.Equal(money.Round(amount)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must have at most two decimal places")
	}
	if amount.LessThan(minFaceValue) || amount.GreaterThan(maxFaceValue) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount out of range").
			WithDetails(map[string]any{"min": minFaceValue.StringFixed(2), "max": maxFaceValue.StringFixed(2)})
	}
	var email *string
	if input.RecipientEmail != nil {
		trimmed := strings.TrimSpace(*input.RecipientEmail)
		if trimmed != "" {
			email = &trimmed
		}
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = s.currency
	}

	issuedAt := s.now().UTC()
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		card := &models.GiftCard{
			ID:               uuid.New(),
			Code:             GenerateCode(),
			PurchaserID:      input.PurchaserID,
			RecipientUserID:  input.RecipientID,
			RecipientEmail:   email,
			Currency:         currency,
			InitialAmount:    amount,
			RemainingBalance: amount,
			Status:           enums.GiftCardStatusActive,
			ExpiresAt:        issuedAt.Add(cardValidity),
		}
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			if err := repo.Create(ctx, card); err != nil {
				return err
			}
			return repo.InsertTransaction(ctx, &models.GiftCardTransaction{
				ID:           uuid.New(),
				GiftCardID:   card.ID,
				Type:         enums.GiftCardTxnPurchase,
				Amount:       amount,
				BalanceAfter: amount,
			})
		})
		if err == nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"gift_card_id": card.ID.String(),
				"purchaser_id": input.PurchaserID.String(),
			})
			s.logg.Info(logCtx, "gift card issued")
			return card, nil
		}
		if !db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "issue gift card")
		}
		s.logg.Warn(s.logg.WithField(ctx, "attempt", attempt), "gift card code collision")
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "could not allocate a unique gift card code")
}

func (s *service) Validate(ctx context.Context, code string, userID uuid.UUID, amount decimal.Decimal, now time.Time) (*models.GiftCard, error) {
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gift card amount must be positive")
	}
	card, err := s.repo.FindByCode(ctx, NormalizeCode(code))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load gift card")
	}
	if err := CheckRedeemable(card, userID, amount, now); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeGiftCardExpired) && card.Status == enums.GiftCardStatusActive {
			s.expire(ctx, card, now)
		}
		return nil, err
	}
	return card, nil
}

// expire records a lapsed card as expired the first time someone tries to
// spend it. The redemption is refused either way, so failures are only logged.
func (s *service) expire(ctx context.Context, card *models.GiftCard, now time.Time) {
	flipped, err := s.repo.MarkExpired(ctx, card.ID, now)
	logCtx := s.logg.WithField(ctx, "gift_card_id", card.ID.String())
	if err != nil {
		s.logg.Warn(logCtx, "gift card expiry not recorded: "+err.Error())
		return
	}
	if flipped {
		s.logg.Info(logCtx, "gift card expired")
	}
}

// CheckRedeemable applies the redemption rules in order: existence, status,
// expiry, recipient binding, then balance. An expired status and a lapsed
// expiry date report the same error.
func CheckRedeemable(card *models.GiftCard, userID uuid.UUID, amount decimal.Decimal, now time.Time) error {
	if card == nil {
		return pkgerrors.New(pkgerrors.CodeGiftCardInvalid, "gift card not found")
	}
	if card.Status == enums.GiftCardStatusExpired {
		return pkgerrors.New(pkgerrors.CodeGiftCardExpired, "gift card has expired").
			WithDetails(map[string]any{"expiresAt": card.ExpiresAt})
	}
	if card.Status != enums.GiftCardStatusActive {
		return pkgerrors.New(pkgerrors.CodeGiftCardInactive, "gift card is not active").
			WithDetails(map[string]any{"status": card.Status})
	}
	if !now.Before(card.ExpiresAt) {
		return pkgerrors.New(pkgerrors.CodeGiftCardExpired, "gift card has expired").
			WithDetails(map[string]any{"expiresAt": card.ExpiresAt})
	}
	if card.RecipientUserID != nil && *card.RecipientUserID != userID {
		return pkgerrors.New(pkgerrors.CodeGiftCardUnauthorized, "gift card belongs to another user")
	}
	if card.RemainingBalance.LessThan(amount) {
		return pkgerrors.New(pkgerrors.CodeInsufficientGiftBalance, "insufficient gift card balance").
			WithDetails(map[string]any{
				"available": card.RemainingBalance.StringFixed(2),
				"requested": amount.StringFixed(2),
			})
	}
	return nil
}

func (s *service) Redeem(ctx context.Context, tx *gorm.DB, input RedeemInput) (*models.GiftCardTransaction, error) {
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gift card amount must be positive")
	}
	repo := s.repo.WithTx(tx)
	ok, err := repo.DebitBalance(ctx, input.CardID, input.Amount, input.Now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "debit gift card")
	}
	card, err := repo.FindByID(ctx, input.CardID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload gift card")
	}
	if !ok {
		if err := CheckRedeemable(card, input.UserID, input.Amount, input.Now); err != nil {
			return nil, err
		}
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "gift card changed during redemption")
	}
	if card == nil {
		return nil, pkgerrors.New(pkgerrors.CodeGiftCardInvalid, "gift card not found")
	}

	orderID := input.OrderID
	txn := &models.GiftCardTransaction{
		ID:           uuid.New(),
		GiftCardID:   card.ID,
		OrderID:      &orderID,
		Type:         enums.GiftCardTxnRedeem,
		Amount:       input.Amount,
		BalanceAfter: card.RemainingBalance,
	}
	if err := repo.InsertTransaction(ctx, txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record gift card redemption")
	}
	return txn, nil
}

// Restore re-credits whatever the order drew from its gift card. It is a
// no-op for orders without a card or when the card was already restored.
func (s *service) Restore(ctx context.Context, tx *gorm.DB, order *models.Order) (decimal.Decimal, error) {
	if order == nil || order.GiftCardID == nil {
		return decimal.Zero, nil
	}
	repo := s.repo.WithTx(tx)
	cardID := *order.GiftCardID

	_, restored, err := repo.SumForOrder(ctx, cardID, order.ID, enums.GiftCardTxnRefund)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check gift card refund")
	}
	if restored {
		return decimal.Zero, nil
	}
	redeemed, _, err := repo.SumForOrder(ctx, cardID, order.ID, enums.GiftCardTxnRedeem)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum gift card redemptions")
	}
	if !redeemed.IsPositive() {
		return decimal.Zero, nil
	}

	ok, err := repo.CreditBalance(ctx, cardID, redeemed, s.now())
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit gift card")
	}
	if !ok {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeStateConflict, "gift card credit would exceed face value").
			WithDetails(map[string]any{"giftCardId": cardID.String()})
	}
	card, err := repo.FindByID(ctx, cardID)
	if err != nil || card == nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload gift card")
	}
	orderID := order.ID
	if err := repo.InsertTransaction(ctx, &models.GiftCardTransaction{
		ID:           uuid.New(),
		GiftCardID:   cardID,
		OrderID:      &orderID,
		Type:         enums.GiftCardTxnRefund,
		Amount:       redeemed,
		BalanceAfter: card.RemainingBalance,
	}); err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record gift card refund")
	}
	return redeemed, nil
}

func (s *service) GetByCode(ctx context.Context, code string) (*models.GiftCard, error) {
	card, err := s.repo.FindByCode(ctx, NormalizeCode(code))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load gift card")
	}
	if card == nil {
		return nil, pkgerrors.New(pkgerrors.CodeGiftCardInvalid, "gift card not found")
	}
	return card, nil
}
