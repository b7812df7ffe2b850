package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/internal/checkout/helpers"
	"github.com/angelmondragon/marketledger-backend/internal/giftcards"
	"github.com/angelmondragon/marketledger-backend/internal/loyalty"
	"github.com/angelmondragon/marketledger-backend/internal/notifications"
	"github.com/angelmondragon/marketledger-backend/internal/orders"
	"github.com/angelmondragon/marketledger-backend/internal/products"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	"github.com/angelmondragon/marketledger-backend/pkg/metrics"
	"github.com/angelmondragon/marketledger-backend/pkg/money"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/marketledger-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type pointsLedger interface {
	Balance(ctx context.Context, userID uuid.UUID) (int64, error)
	Apply(ctx context.Context, tx *gorm.DB, input loyalty.AwardInput) (*loyalty.AwardResult, error)
}

type giftCardLedger interface {
	Validate(ctx context.Context, code string, userID uuid.UUID, amount decimal.Decimal, now time.Time) (*models.GiftCard, error)
	Redeem(ctx context.Context, tx *gorm.DB, input giftcards.RedeemInput) (*models.GiftCardTransaction, error)
}

// Service turns a basket into a pending order in one transaction.
type Service interface {
	Execute(ctx context.Context, input CheckoutInput) (*CheckoutResult, error)
}

// CheckoutInput is the buyer's request. GiftCardAmount is the most the buyer
// wants taken from the card; less is applied when the order costs less.
type CheckoutInput struct {
	UserID          uuid.UUID
	Items           []helpers.Line
	PaymentMethod   enums.PaymentMethod
	ShippingAddress *types.Address
	BillingAddress  *types.Address
	PointsToRedeem  int64
	GiftCardCode    string
	GiftCardAmount  decimal.Decimal
	Currency        string
}

// CheckoutResult is the committed order and the instruments charged.
type CheckoutResult struct {
	Order           *models.Order
	PointsRedeemed  int64
	GiftCardApplied decimal.Decimal
}

type ServiceParams struct {
	TX        txRunner
	Products  products.Repository
	Orders    orders.Repository
	Loyalty   pointsLedger
	GiftCards giftCardLedger
	Outbox    outbox.Emitter
	Notifier  notifications.Notifier
	Pricing   Pricing
	Metrics   *metrics.SettlementMetrics
	Logger    *logger.Logger
	Now       func() time.Time
}

type service struct {
	tx        txRunner
	products  products.Repository
	orders    orders.Repository
	loyalty   pointsLedger
	giftCards giftCardLedger
	outbox    outbox.Emitter
	notifier  notifications.Notifier
	pricing   Pricing
	metrics   *metrics.SettlementMetrics
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.TX == nil:
		return nil, fmt.Errorf("tx runner required")
	case params.Products == nil:
		return nil, fmt.Errorf("products repository required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Loyalty == nil:
		return nil, fmt.Errorf("loyalty service required")
	case params.GiftCards == nil:
		return nil, fmt.Errorf("gift card service required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Pricing.TaxRate.IsNegative() || params.Pricing.ShippingFlat.IsNegative():
		return nil, fmt.Errorf("tax rate and shipping must not be negative")
	case strings.TrimSpace(params.Pricing.Currency) == "":
		return nil, fmt.Errorf("currency required")
	}
	notifier := params.Notifier
	if notifier == nil {
		notifier = notifications.Nop{}
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	pricing := params.Pricing
	pricing.Currency = strings.ToUpper(strings.TrimSpace(pricing.Currency))
	return &service{
		tx:        params.TX,
		products:  params.Products,
		orders:    params.Orders,
		loyalty:   params.Loyalty,
		giftCards: params.GiftCards,
		outbox:    params.Outbox,
		notifier:  notifier,
		pricing:   pricing,
		metrics:   params.Metrics,
		logg:      logg,
		now:       now,
	}, nil
}

// Execute validates and prices the request, then decrements stock, writes the
// order and charges points and gift card in a single transaction. Any failure
// leaves stock, balances and orders exactly as they were.
func (s *service) Execute(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	result, err := s.execute(ctx, input)
	s.metrics.IncCheckout(metrics.OutcomeFor(err))
	return result, err
}

func (s *service) execute(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	if err := s.validateInput(&input); err != nil {
		return nil, err
	}
	ctx = s.logg.WithField(ctx, "user_id", input.UserID.String())

	lines := helpers.MergeLines(input.Items)
	catalogue, err := s.loadProducts(ctx, lines)
	if err != nil {
		return nil, err
	}
	if err := helpers.ValidateProducts(lines, catalogue); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	order := &models.Order{
		ID:              uuid.New(),
		OrderNumber:     orders.NewOrderNumber(now),
		UserID:          input.UserID,
		Status:          enums.OrderStatusPending,
		PaymentMethod:   input.PaymentMethod,
		Currency:        input.Currency,
		ShippingAddress: input.ShippingAddress,
		BillingAddress:  input.BillingAddress,
		RefundedAmount:  decimal.Zero,
		Items:           buildItems(lines, catalogue),
	}

	quote, err := PriceItems(order.Items, s.pricing, input.PointsToRedeem)
	if err != nil {
		return nil, err
	}
	if input.PointsToRedeem > 0 {
		balance, err := s.loyalty.Balance(ctx, input.UserID)
		if err != nil {
			return nil, err
		}
		if balance < input.PointsToRedeem {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientPoints, "insufficient loyalty points").
				WithDetails(map[string]any{"available": balance, "requested": input.PointsToRedeem})
		}
	}

	var card *models.GiftCard
	if input.GiftCardCode != "" {
		card, err = s.giftCards.Validate(ctx, input.GiftCardCode, input.UserID, input.GiftCardAmount, now)
		if err != nil {
			return nil, err
		}
		if quote.ApplyGiftCard(input.GiftCardAmount).IsZero() {
			card = nil
		}
	}

	order.Subtotal = quote.Subtotal
	order.TaxAmount = quote.Tax
	order.ShippingAmount = quote.Shipping
	order.LoyaltyDiscount = quote.LoyaltyDiscount
	order.GiftCardDiscount = quote.GiftCardDiscount
	order.DiscountAmount = quote.Discount()
	order.TotalAmount = quote.Total
	order.PointsRedeemed = input.PointsToRedeem
	if card != nil {
		order.GiftCardID = &card.ID
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.commit(ctx, tx, order, lines, catalogue, now)
	})
	if err != nil {
		return nil, asCheckoutError(err)
	}

	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	s.logg.Info(ctx, "checkout completed")
	if err := s.notifier.OrderPlaced(ctx, order); err != nil {
		s.logg.Warn(ctx, "order placed notification failed: "+err.Error())
	}

	return &CheckoutResult{
		Order:           order,
		PointsRedeemed:  order.PointsRedeemed,
		GiftCardApplied: order.GiftCardDiscount,
	}, nil
}

func (s *service) commit(ctx context.Context, tx *gorm.DB, order *models.Order, lines []helpers.Line, catalogue map[uuid.UUID]models.Product, now time.Time) error {
	productRepo := s.products.WithTx(tx)
	for _, line := range lines {
		ok, err := productRepo.DecrementStock(ctx, line.ProductID, line.Quantity)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeTransactionFailed, err, "decrement stock")
		}
		if !ok {
			product := catalogue[line.ProductID]
			return pkgerrors.New(pkgerrors.CodeStockConflict, "stock changed during checkout").
				WithDetails(map[string]any{
					"productId": product.ID.String(),
					"sku":       product.SKU,
					"requested": line.Quantity,
				})
		}
	}

	if err := s.orders.WithTx(tx).Create(ctx, order); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeTransactionFailed, err, "create order")
	}

	if order.PointsRedeemed > 0 {
		orderID := order.ID
		_, err := s.loyalty.Apply(ctx, tx, loyalty.AwardInput{
			UserID:         order.UserID,
			Delta:          -order.PointsRedeemed,
			Type:           enums.LoyaltyTxnRedeem,
			Description:    fmt.Sprintf("Redeemed on order %s", order.OrderNumber),
			RelatedOrderID: &orderID,
		})
		if err != nil {
			return err
		}
	}

	if order.GiftCardID != nil {
		_, err := s.giftCards.Redeem(ctx, tx, giftcards.RedeemInput{
			CardID:  *order.GiftCardID,
			OrderID: order.ID,
			UserID:  order.UserID,
			Amount:  order.GiftCardDiscount,
			Now:     now,
		})
		if err != nil {
			return err
		}
	}

	return s.emitOrderCreated(ctx, tx, order)
}

func (s *service) emitOrderCreated(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	event := outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.OrderCreatedEvent{
			OrderID:        order.ID,
			OrderNumber:    order.OrderNumber,
			UserID:         order.UserID,
			VendorIDs:      helpers.VendorIDs(order.Items),
			PaymentMethod:  order.PaymentMethod,
			TotalAmount:    order.TotalAmount,
			PointsRedeemed: order.PointsRedeemed,
			GiftCardID:     order.GiftCardID,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeTransactionFailed, err, "emit order created event")
	}
	return nil
}

func (s *service) validateInput(input *CheckoutInput) error {
	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if err := helpers.ValidateLines(input.Items); err != nil {
		return err
	}
	if err := helpers.ValidatePaymentMethod(input.PaymentMethod); err != nil {
		return err
	}
	if err := helpers.ValidateAddress("shipping_address", input.ShippingAddress); err != nil {
		return err
	}
	if err := helpers.ValidateAddress("billing_address", input.BillingAddress); err != nil {
		return err
	}
	if input.PointsToRedeem < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "points to redeem must not be negative")
	}
	input.GiftCardCode = giftcards.NormalizeCode(input.GiftCardCode)
	if input.GiftCardCode != "" && !input.GiftCardAmount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "gift card amount must be positive")
	}
	if input.GiftCardCode == "" && !input.GiftCardAmount.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "gift card code required")
	}
	if !input.GiftCardAmount.Equal(money.Round(input.GiftCardAmount)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "gift card amount has too many decimal places")
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = s.pricing.Currency
	}
	if currency != s.pricing.Currency {
		return pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency").
			WithDetails(map[string]any{"currency": currency, "supported": s.pricing.Currency})
	}
	input.Currency = currency
	return nil
}

func (s *service) loadProducts(ctx context.Context, lines []helpers.Line) (map[uuid.UUID]models.Product, error) {
	rows, err := s.products.FindByIDs(ctx, helpers.ProductIDs(lines))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	catalogue := make(map[uuid.UUID]models.Product, len(rows))
	for _, row := range rows {
		row.Price = money.Round(row.Price)
		catalogue[row.ID] = row
	}
	return catalogue, nil
}

func buildItems(lines []helpers.Line, catalogue map[uuid.UUID]models.Product) []models.OrderItem {
	items := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		product := catalogue[line.ProductID]
		items = append(items, models.OrderItem{
			ID:          uuid.New(),
			ProductID:   product.ID,
			VendorID:    product.VendorID,
			ProductName: product.Name,
			SKU:         product.SKU,
			UnitPrice:   product.Price,
			Quantity:    line.Quantity,
			LineTotal:   lineTotal(product.Price, line.Quantity),
		})
	}
	return items
}

// asCheckoutError keeps domain errors raised inside the transaction and folds
// everything else into TRANSACTION_FAILED.
func asCheckoutError(err error) error {
	typed := pkgerrors.As(err)
	if typed != nil && typed.Code() != pkgerrors.CodeDependency && typed.Code() != pkgerrors.CodeInternal {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeTransactionFailed, err, "checkout transaction failed")
}
