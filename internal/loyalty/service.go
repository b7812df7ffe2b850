package loyalty

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	"github.com/angelmondragon/marketledger-backend/pkg/pagination"
)

var listBounds = pagination.Bounds{Default: 50, Max: 200}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service manages loyalty balances. Every balance change appends exactly one
// LoyaltyTransaction in the same transaction.
type Service interface {
	AwardPoints(ctx context.Context, input AwardInput) (*AwardResult, error)
	Apply(ctx context.Context, tx *gorm.DB, input AwardInput) (*AwardResult, error)
	GetAccount(ctx context.Context, userID uuid.UUID) (*models.LoyaltyAccount, error)
	Balance(ctx context.Context, userID uuid.UUID) (int64, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.LoyaltyTransaction, error)
	EarnForOrder(ctx context.Context, tx *gorm.DB, order *models.Order) (int64, error)
	RestoreForOrder(ctx context.Context, tx *gorm.DB, order *models.Order) (*RestoreResult, error)
}

// AwardInput describes a signed points movement.
type AwardInput struct {
	UserID         uuid.UUID
	Delta          int64
	Type           enums.LoyaltyTransactionType
	Description    string
	RelatedOrderID *uuid.UUID
	ExpiresAt      *time.Time
	// LifetimeAdjustment moves lifetime points explicitly. Only adjustments
	// may set it; when set it replaces the lifetime credit implied by Delta.
	LifetimeAdjustment int64
}

type AwardResult struct {
	Account     *models.LoyaltyAccount
	Transaction *models.LoyaltyTransaction
	Promoted    bool
}

// RestoreResult reports what a refund or cancellation gave back and took back.
type RestoreResult struct {
	Restored int64
	Reversed int64
}

type service struct {
	tx   txRunner
	repo Repository
	logg *logger.Logger
}

func NewService(tx txRunner, repo Repository, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("loyalty repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{tx: tx, repo: repo, logg: logg}, nil
}

func (s *service) AwardPoints(ctx context.Context, input AwardInput) (*AwardResult, error) {
	var result *AwardResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.Apply(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) Apply(ctx context.Context, tx *gorm.DB, input AwardInput) (*AwardResult, error) {
	if err := validateAward(input); err != nil {
		return nil, err
	}
	repo := s.repo.WithTx(tx)

	account, err := s.ensureAccount(ctx, repo, input.UserID)
	if err != nil {
		return nil, err
	}
	previousTier := account.Tier

	var lifetimeDelta int64
	switch {
	case input.LifetimeAdjustment != 0:
		lifetimeDelta = input.LifetimeAdjustment
	case input.Type.CountsTowardLifetime() && input.Delta > 0:
		lifetimeDelta = input.Delta
	}

	ok, err := repo.AdjustBalance(ctx, account.ID, input.Delta, lifetimeDelta)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "adjust loyalty balance")
	}
	if !ok {
		current, _ := repo.FindAccountByUser(ctx, input.UserID)
		if current == nil {
			current = account
		}
		if lifetimeDelta < 0 && current.LifetimePoints < -lifetimeDelta {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "lifetime adjustment exceeds lifetime points").
				WithDetails(map[string]any{
					"lifetimePoints": current.LifetimePoints,
					"adjustment":     lifetimeDelta,
				})
		}
		return nil, insufficientPoints(current.PointsBalance, -input.Delta)
	}

	account, err = repo.FindAccountByUser(ctx, input.UserID)
	if err != nil || account == nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload loyalty account")
	}

	tier := higherTier(account.Tier, ResolveTier(account.LifetimePoints))
	toNext := pointsToTierAbove(tier, account.LifetimePoints)
	if tier != account.Tier || toNext != account.PointsToNextTier {
		if err := repo.UpdateTier(ctx, account.ID, tier, toNext); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update loyalty tier")
		}
		account.Tier = tier
		account.PointsToNextTier = toNext
	}

	description := input.Description
	if description == "" {
		description = defaultDescription(input.Type)
	}
	txn := &models.LoyaltyTransaction{
		ID:             uuid.New(),
		AccountID:      account.ID,
		UserID:         input.UserID,
		Points:         input.Delta,
		Type:           input.Type,
		Description:    description,
		RelatedOrderID: input.RelatedOrderID,
		ExpiresAt:      input.ExpiresAt,
		BalanceAfter:   account.PointsBalance,
	}
	if err := repo.InsertTransaction(ctx, txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record loyalty transaction")
	}

	promoted := account.Tier.Rank() > previousTier.Rank()
	if promoted {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"user_id":   input.UserID.String(),
			"from_tier": previousTier,
			"to_tier":   account.Tier,
		})
		s.logg.Info(logCtx, "loyalty tier promoted")
	}
	return &AwardResult{Account: account, Transaction: txn, Promoted: promoted}, nil
}

func (s *service) GetAccount(ctx context.Context, userID uuid.UUID) (*models.LoyaltyAccount, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	var account *models.LoyaltyAccount
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		account, err = s.ensureAccount(ctx, s.repo.WithTx(tx), userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// Balance reads the current balance without creating an account.
func (s *service) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	account, err := s.repo.FindAccountByUser(ctx, userID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load loyalty account")
	}
	if account == nil {
		return 0, nil
	}
	return account.PointsBalance, nil
}

func (s *service) ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]models.LoyaltyTransaction, error) {
	rows, err := s.repo.ListTransactions(ctx, userID, listBounds.Clamp(limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list loyalty transactions")
	}
	return rows, nil
}

// EarnForOrder credits purchase points for a delivered order at the user's
// current tier. An order earns at most once.
func (s *service) EarnForOrder(ctx context.Context, tx *gorm.DB, order *models.Order) (int64, error) {
	if order == nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	repo := s.repo.WithTx(tx)
	_, exists, err := repo.SumForOrder(ctx, order.ID, enums.LoyaltyTxnEarn)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check earned points")
	}
	if exists {
		return 0, nil
	}
	account, err := s.ensureAccount(ctx, repo, order.UserID)
	if err != nil {
		return 0, err
	}
	points := CalculatePointsFromPurchase(order.Subtotal.Sub(order.DiscountAmount), account.Tier)
	if points <= 0 {
		return 0, nil
	}
	orderID := order.ID
	if _, err := s.Apply(ctx, tx, AwardInput{
		UserID:         order.UserID,
		Delta:          points,
		Type:           enums.LoyaltyTxnEarn,
		Description:    fmt.Sprintf("Earned on order %s", order.OrderNumber),
		RelatedOrderID: &orderID,
	}); err != nil {
		return 0, err
	}
	return points, nil
}

// RestoreForOrder gives back points spent on the order and takes back points
// earned from it. The reversal is clamped to the balance left after the
// restore so the account never goes negative. Calling it twice is a no-op.
func (s *service) RestoreForOrder(ctx context.Context, tx *gorm.DB, order *models.Order) (*RestoreResult, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	repo := s.repo.WithTx(tx)
	orderID := order.ID
	result := &RestoreResult{}

	if order.PointsRedeemed > 0 {
		_, restored, err := repo.SumForOrder(ctx, orderID, enums.LoyaltyTxnRefund)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check restored points")
		}
		if !restored {
			if _, err := s.Apply(ctx, tx, AwardInput{
				UserID:         order.UserID,
				Delta:          order.PointsRedeemed,
				Type:           enums.LoyaltyTxnRefund,
				Description:    fmt.Sprintf("Restored from order %s", order.OrderNumber),
				RelatedOrderID: &orderID,
			}); err != nil {
				return nil, err
			}
			result.Restored = order.PointsRedeemed
		}
	}

	earned, _, err := repo.SumForOrder(ctx, orderID, enums.LoyaltyTxnEarn)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum earned points")
	}
	reversed, _, err := repo.SumForOrder(ctx, orderID, enums.LoyaltyTxnReversal)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum reversed points")
	}
	outstanding := earned + reversed
	if outstanding <= 0 {
		return result, nil
	}
	account, err := repo.FindAccountByUser(ctx, order.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load loyalty account")
	}
	if account == nil {
		return result, nil
	}
	take := outstanding
	if account.PointsBalance < take {
		take = account.PointsBalance
	}
	if take <= 0 {
		return result, nil
	}
	if _, err := s.Apply(ctx, tx, AwardInput{
		UserID:         order.UserID,
		Delta:          -take,
		Type:           enums.LoyaltyTxnReversal,
		Description:    fmt.Sprintf("Reversed for refunded order %s", order.OrderNumber),
		RelatedOrderID: &orderID,
	}); err != nil {
		return nil, err
	}
	result.Reversed = take
	return result, nil
}

func (s *service) ensureAccount(ctx context.Context, repo Repository, userID uuid.UUID) (*models.LoyaltyAccount, error) {
	account, err := repo.FindAccountByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load loyalty account")
	}
	if account != nil {
		return account, nil
	}
	fresh := &models.LoyaltyAccount{
		ID:               uuid.New(),
		UserID:           userID,
		Tier:             enums.LoyaltyTierBronze,
		PointsToNextTier: PointsToNextTier(0),
	}
	if err := repo.CreateAccount(ctx, fresh); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create loyalty account")
	}
	account, err = repo.FindAccountByUser(ctx, userID)
	if err != nil || account == nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload loyalty account")
	}
	return account, nil
}

func validateAward(input AwardInput) error {
	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if !input.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid loyalty transaction type")
	}
	if input.LifetimeAdjustment != 0 && input.Type != enums.LoyaltyTxnAdjustment {
		return pkgerrors.New(pkgerrors.CodeValidation, "lifetime points can only move through an adjustment")
	}
	if input.Delta == 0 && input.LifetimeAdjustment == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "points delta must not be zero")
	}
	switch input.Type {
	case enums.LoyaltyTxnEarn, enums.LoyaltyTxnBonus, enums.LoyaltyTxnRefund:
		if input.Delta < 0 {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "%s points must be positive", input.Type)
		}
	case enums.LoyaltyTxnRedeem, enums.LoyaltyTxnReversal:
		if input.Delta > 0 {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "%s points must be negative", input.Type)
		}
	}
	return nil
}

func insufficientPoints(available, requested int64) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientPoints, "insufficient loyalty points").
		WithDetails(map[string]any{
			"available": available,
			"requested": requested,
		})
}

func defaultDescription(t enums.LoyaltyTransactionType) string {
	switch t {
	case enums.LoyaltyTxnEarn:
		return "Points earned"
	case enums.LoyaltyTxnRedeem:
		return "Points redeemed"
	case enums.LoyaltyTxnBonus:
		return "Bonus points"
	case enums.LoyaltyTxnRefund:
		return "Points restored"
	case enums.LoyaltyTxnReversal:
		return "Points reversed"
	default:
		return "Points adjusted"
	}
}
