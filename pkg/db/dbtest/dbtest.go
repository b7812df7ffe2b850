// Package dbtest opens isolated in-memory sqlite databases with the settlement
// schema for package tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
)

// Open returns a fresh schema-migrated database private to t. A single
// connection is used so concurrent callers serialise the way sqlite requires.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared&_busy_timeout=5000", name, uuid.NewString()[:8])
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return conn
}

// Dec parses a decimal literal, failing loudly on typos in fixtures.
func Dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

// MustVendor inserts an approved vendor. An empty rate leaves the platform
// default in effect.
func MustVendor(t testing.TB, db *gorm.DB, rate string) *models.Vendor {
	t.Helper()
	vendor := &models.Vendor{
		ID:     uuid.New(),
		Name:   "Vendor " + uuid.NewString()[:6],
		Status: enums.VendorStatusApproved,
	}
	if rate != "" {
		r := Dec(rate)
		vendor.CommissionRate = &r
	}
	if err := db.Create(vendor).Error; err != nil {
		t.Fatalf("create vendor: %v", err)
	}
	return vendor
}

// MustProduct inserts an active product for vendorID.
func MustProduct(t testing.TB, db *gorm.DB, vendorID uuid.UUID, price string, stock int) *models.Product {
	t.Helper()
	product := &models.Product{
		ID:            uuid.New(),
		VendorID:      vendorID,
		SKU:           "SKU-" + strings.ToUpper(uuid.NewString()[:8]),
		Name:          "Product " + uuid.NewString()[:6],
		Price:         Dec(price),
		StockQuantity: stock,
		IsActive:      true,
	}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	return product
}

// MustGiftCard inserts an active gift card with the given balance.
func MustGiftCard(t testing.TB, db *gorm.DB, balance string, recipient *uuid.UUID, expiresAt time.Time) *models.GiftCard {
	t.Helper()
	card := &models.GiftCard{
		ID:               uuid.New(),
		Code:             strings.ToUpper(uuid.NewString()[:19]),
		PurchaserID:      uuid.New(),
		RecipientUserID:  recipient,
		Currency:         "USD",
		InitialAmount:    Dec(balance),
		RemainingBalance: Dec(balance),
		Status:           enums.GiftCardStatusActive,
		ExpiresAt:        expiresAt.UTC(),
	}
	if err := db.Create(card).Error; err != nil {
		t.Fatalf("create gift card: %v", err)
	}
	return card
}

// MustLoyaltyAccount inserts an account with the given balance and lifetime points.
func MustLoyaltyAccount(t testing.TB, db *gorm.DB, userID uuid.UUID, balance, lifetime int64, tier enums.LoyaltyTier) *models.LoyaltyAccount {
	t.Helper()
	account := &models.LoyaltyAccount{
		ID:             uuid.New(),
		UserID:         userID,
		PointsBalance:  balance,
		LifetimePoints: lifetime,
		Tier:           tier,
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("create loyalty account: %v", err)
	}
	return account
}

// MustOrder inserts an order in the given status with one item per product,
// at the product's current price. deliveredAt is only set when non-nil.
func MustOrder(t testing.TB, db *gorm.DB, userID uuid.UUID, status enums.OrderStatus, deliveredAt *time.Time, lines map[*models.Product]int) *models.Order {
	t.Helper()
	orderID := uuid.New()
	subtotal := decimal.Zero
	items := make([]models.OrderItem, 0, len(lines))
	for product, qty := range lines {
		lineTotal := product.Price.Mul(decimal.NewFromInt(int64(qty)))
		subtotal = subtotal.Add(lineTotal)
		items = append(items, models.OrderItem{
			ID:          uuid.New(),
			OrderID:     orderID,
			ProductID:   product.ID,
			VendorID:    product.VendorID,
			ProductName: product.Name,
			SKU:         product.SKU,
			UnitPrice:   product.Price,
			Quantity:    qty,
			LineTotal:   lineTotal,
		})
	}
	order := &models.Order{
		ID:               orderID,
		OrderNumber:      "ORD-TEST-" + strings.ToUpper(uuid.NewString()[:8]),
		UserID:           userID,
		Status:           status,
		PaymentMethod:    enums.PaymentMethodCard,
		Currency:         "USD",
		Subtotal:         subtotal,
		LoyaltyDiscount:  decimal.Zero,
		GiftCardDiscount: decimal.Zero,
		DiscountAmount:   decimal.Zero,
		ShippingAmount:   decimal.Zero,
		TaxAmount:        decimal.Zero,
		TotalAmount:      subtotal,
		DeliveredAt:      deliveredAt,
		Items:            items,
	}
	if status.IsPaidOrLater() {
		paidAt := time.Now().UTC()
		if deliveredAt != nil {
			paidAt = deliveredAt.Add(-24 * time.Hour)
		}
		order.PaidAt = &paidAt
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}
