package orders

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/internal/giftcards"
	"github.com/angelmondragon/marketledger-backend/internal/loyalty"
	"github.com/angelmondragon/marketledger-backend/internal/products"
	"github.com/angelmondragon/marketledger-backend/pkg/db"
	"github.com/angelmondragon/marketledger-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox"
)

var fixedNow = time.Date(2024, 5, 20, 9, 30, 0, 0, time.UTC)

type failingNotifier struct{ calls int }

func (f *failingNotifier) OrderPlaced(context.Context, *models.Order) error {
	f.calls++
	return errors.New("smtp down")
}

func (f *failingNotifier) OrderStatusChanged(context.Context, *models.Order, enums.OrderStatus, enums.OrderStatus) error {
	f.calls++
	return errors.New("smtp down")
}

func (f *failingNotifier) OrderRefunded(context.Context, *models.Order, bool) error {
	f.calls++
	return errors.New("smtp down")
}

type harness struct {
	conn      *gorm.DB
	svc       Service
	loyalty   loyalty.Service
	giftCards giftcards.Service
	notifier  *failingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	client := db.NewFromGorm(conn)
	now := func() time.Time { return fixedNow }

	loyaltySvc, err := loyalty.NewService(client, loyalty.NewRepository(conn), nil)
	require.NoError(t, err)
	giftSvc, err := giftcards.NewService(giftcards.ServiceParams{TX: client, Repo: giftcards.NewRepository(conn), Now: now})
	require.NoError(t, err)
	notifier := &failingNotifier{}

	svc, err := NewService(ServiceParams{
		TX:        client,
		Repo:      NewRepository(conn),
		Products:  products.NewRepository(conn),
		Loyalty:   loyaltySvc,
		GiftCards: giftSvc,
		Outbox:    outbox.NewService(outbox.NewRepository(conn), nil),
		Notifier:  notifier,
		Now:       now,
	})
	require.NoError(t, err)
	return &harness{conn: conn, svc: svc, loyalty: loyaltySvc, giftCards: giftSvc, notifier: notifier}
}

func (h *harness) order(t *testing.T, status enums.OrderStatus, price string, qty int) (*models.Order, *models.Product) {
	t.Helper()
	vendor := dbtest.MustVendor(t, h.conn, "")
	product := dbtest.MustProduct(t, h.conn, vendor.ID, price, 10)
	order := dbtest.MustOrder(t, h.conn, uuid.New(), status, nil, map[*models.Product]int{product: qty})
	return order, product
}

func (h *harness) events(t *testing.T, orderID uuid.UUID) []enums.OutboxEventType {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, h.conn.Where("aggregate_id = ?", orderID).Order("created_at ASC").Find(&rows).Error)
	out := make([]enums.OutboxEventType, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.EventType)
	}
	return out
}

func TestNewOrderNumberFormat(t *testing.T) {
	number := NewOrderNumber(time.Date(2024, 1, 2, 23, 0, 0, 0, time.FixedZone("x", -5*3600)))
	require.Regexp(t, regexp.MustCompile(`^ORD-20240103-[0-9A-F]{8}$`), number)
}

func TestMarkPaidIsIdempotent(t *testing.T) {
	h := newHarness(t)
	order, _ := h.order(t, enums.OrderStatusPending, "20.00", 1)
	ctx := context.Background()

	paid, err := h.svc.MarkPaid(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	again, err := h.svc.MarkPaid(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPaid, again.Status)
	require.Equal(t, []enums.OutboxEventType{enums.EventOrderPaid}, h.events(t, order.ID))
	require.Equal(t, 1, h.notifier.calls)
}

func TestMarkPaidRejectsCancelledOrder(t *testing.T) {
	h := newHarness(t)
	order, _ := h.order(t, enums.OrderStatusPending, "20.00", 1)
	_, err := h.svc.Cancel(context.Background(), order.ID, uuid.Nil)
	require.NoError(t, err)

	_, err = h.svc.MarkPaid(context.Background(), order.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestUpdateStatusWalksForwardAndEarnsOnDelivery(t *testing.T) {
	h := newHarness(t)
	order, _ := h.order(t, enums.OrderStatusPaid, "250.00", 1)
	ctx := context.Background()

	_, err := h.svc.UpdateStatus(ctx, order.ID, enums.OrderStatusProcessing)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	for _, next := range []enums.OrderStatus{
		enums.OrderStatusConfirmed,
		enums.OrderStatusProcessing,
		enums.OrderStatusFulfilled,
		enums.OrderStatusShipped,
		enums.OrderStatusDelivered,
	} {
		updated, err := h.svc.UpdateStatus(ctx, order.ID, next)
		require.NoError(t, err)
		require.Equal(t, next, updated.Status)
	}

	delivered, err := h.svc.Get(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, delivered.DeliveredAt)
	require.True(t, delivered.DeliveredAt.Equal(fixedNow))

	balance, err := h.loyalty.Balance(ctx, order.UserID)
	require.NoError(t, err)
	require.Equal(t, int64(25), balance)

	_, err = h.svc.UpdateStatus(ctx, order.ID, enums.OrderStatusDelivered)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	require.Contains(t, h.events(t, order.ID), enums.EventOrderDelivered)
}

func TestUpdateStatusRejectsPendingAndSpecialStatuses(t *testing.T) {
	h := newHarness(t)
	order, _ := h.order(t, enums.OrderStatusPending, "10.00", 1)
	ctx := context.Background()

	_, err := h.svc.UpdateStatus(ctx, order.ID, enums.OrderStatusConfirmed)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	_, err = h.svc.UpdateStatus(ctx, order.ID, enums.OrderStatusPaid)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = h.svc.UpdateStatus(ctx, uuid.New(), enums.OrderStatusConfirmed)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

// redeemInstruments makes the order look like checkout spent points and a
// gift card on it.
func (h *harness) redeemInstruments(t *testing.T, order *models.Order, points int64, giftAmount string) *models.GiftCard {
	t.Helper()
	ctx := context.Background()
	orderID := order.ID
	_, err := h.loyalty.AwardPoints(ctx, loyalty.AwardInput{UserID: order.UserID, Delta: points * 2, Type: enums.LoyaltyTxnBonus})
	require.NoError(t, err)
	_, err = h.loyalty.AwardPoints(ctx, loyalty.AwardInput{UserID: order.UserID, Delta: -points, Type: enums.LoyaltyTxnRedeem, RelatedOrderID: &orderID})
	require.NoError(t, err)

	card := dbtest.MustGiftCard(t, h.conn, "40.00", nil, fixedNow.Add(24*time.Hour))
	_, err = h.giftCards.Redeem(ctx, h.conn, giftcards.RedeemInput{CardID: card.ID, OrderID: order.ID, UserID: order.UserID, Amount: dbtest.Dec(giftAmount), Now: fixedNow})
	require.NoError(t, err)

	require.NoError(t, h.conn.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]any{
		"points_redeemed": points,
		"gift_card_id":    card.ID,
	}).Error)
	order.PointsRedeemed = points
	order.GiftCardID = &card.ID
	return card
}

func TestCancelRestoresStockPointsAndGiftCard(t *testing.T) {
	h := newHarness(t)
	order, product := h.order(t, enums.OrderStatusPaid, "30.00", 2)
	require.NoError(t, h.conn.Model(&models.Product{}).Where("id = ?", product.ID).Update("stock_quantity", 8).Error)
	card := h.redeemInstruments(t, order, 100, "12.50")
	ctx := context.Background()

	_, err := h.svc.Cancel(ctx, order.ID, uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	cancelled, err := h.svc.Cancel(ctx, order.ID, order.UserID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	var reloaded models.Product
	require.NoError(t, h.conn.First(&reloaded, "id = ?", product.ID).Error)
	require.Equal(t, 10, reloaded.StockQuantity)

	balance, err := h.loyalty.Balance(ctx, order.UserID)
	require.NoError(t, err)
	require.Equal(t, int64(200), balance)

	restored, err := h.giftCards.GetByCode(ctx, card.Code)
	require.NoError(t, err)
	require.True(t, restored.RemainingBalance.Equal(dbtest.Dec("40")))

	_, err = h.svc.Cancel(ctx, order.ID, order.UserID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	require.Contains(t, h.events(t, order.ID), enums.EventOrderCancelled)
}

func TestCancelRejectedOnceShipped(t *testing.T) {
	h := newHarness(t)
	order, _ := h.order(t, enums.OrderStatusShipped, "30.00", 1)
	_, err := h.svc.Cancel(context.Background(), order.ID, uuid.Nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestPartialRefundKeepsInstrumentsThenFullRefundRestores(t *testing.T) {
	h := newHarness(t)
	order, _ := h.order(t, enums.OrderStatusPaid, "80.00", 1)
	card := h.redeemInstruments(t, order, 50, "10.00")
	ctx := context.Background()

	partial, err := h.svc.Refund(ctx, order.ID, dbtest.Dec("30.00"))
	require.NoError(t, err)
	require.False(t, partial.Full)
	require.Equal(t, enums.OrderStatusPaid, partial.Order.Status)
	require.True(t, partial.Order.RefundedAmount.Equal(dbtest.Dec("30")))

	balance, err := h.loyalty.Balance(ctx, order.UserID)
	require.NoError(t, err)
	require.Equal(t, int64(50), balance)

	_, err = h.svc.Refund(ctx, order.ID, dbtest.Dec("50.01"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	full, err := h.svc.Refund(ctx, order.ID, dbtest.Dec("50.00"))
	require.NoError(t, err)
	require.True(t, full.Full)
	require.Equal(t, enums.OrderStatusRefunded, full.Order.Status)
	require.Equal(t, int64(50), full.PointsRestored)
	require.True(t, full.GiftCardAmount.Equal(dbtest.Dec("10")))

	balance, err = h.loyalty.Balance(ctx, order.UserID)
	require.NoError(t, err)
	require.Equal(t, int64(100), balance)

	restored, err := h.giftCards.GetByCode(ctx, card.Code)
	require.NoError(t, err)
	require.True(t, restored.RemainingBalance.Equal(dbtest.Dec("40")))

	_, err = h.svc.Refund(ctx, order.ID, dbtest.Dec("1.00"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestRefundRequiresPaidOrder(t *testing.T) {
	h := newHarness(t)
	order, _ := h.order(t, enums.OrderStatusPending, "10.00", 1)
	_, err := h.svc.Refund(context.Background(), order.ID, dbtest.Dec("10.00"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = h.svc.Refund(context.Background(), order.ID, dbtest.Dec("-1"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestGetForUserHidesOtherUsersOrders(t *testing.T) {
	h := newHarness(t)
	order, _ := h.order(t, enums.OrderStatusPending, "10.00", 1)

	got, err := h.svc.GetForUser(context.Background(), order.ID, order.UserID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)

	_, err = h.svc.GetForUser(context.Background(), order.ID, uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	rows, err := h.svc.ListForUser(context.Background(), order.UserID, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
