package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/marketledger-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func assertContains(t *testing.T, content string, checks []string) {
	t.Helper()
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestCatalogMigrationGuardsStock(t *testing.T) {
	content := readMigration(t, "create_catalog_tables")
	assertContains(t, content, []string{
		"CREATE TABLE IF NOT EXISTS vendors",
		"CREATE TABLE IF NOT EXISTS products",
		"CHECK (stock_quantity >= 0)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_products_sku",
		"DROP TABLE IF EXISTS products",
	})
}

func TestOrdersMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "create_orders_tables")
	assertContains(t, content, []string{
		"CREATE TABLE IF NOT EXISTS orders",
		"CREATE TABLE IF NOT EXISTS order_items",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_orders_order_number",
		"CHECK (refunded_amount >= 0 AND refunded_amount <= total_amount)",
		"CHECK (quantity > 0)",
	})
}

func TestLoyaltyAndGiftCardMigrationsGuardBalances(t *testing.T) {
	assertContains(t, readMigration(t, "create_loyalty_tables"), []string{
		"CHECK (points_balance >= 0)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_loyalty_accounts_user_id",
	})
	assertContains(t, readMigration(t, "create_gift_card_tables"), []string{
		"CHECK (remaining_balance >= 0 AND remaining_balance <= initial_amount)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_gift_cards_code",
	})
}

func TestCommissionLedgerMigrationIsIdempotentPerItem(t *testing.T) {
	content := readMigration(t, "create_commission_ledger")
	assertContains(t, content, []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_commission_ledger_order_item ON commission_ledger_entries (order_id, order_item_id)",
		"CHECK (commission_amount + vendor_payout = sale_amount)",
		"CHECK (commission_rate >= 0 AND commission_rate <= 1)",
	})
}

func TestVendorPayoutMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "create_vendor_payouts")
	assertContains(t, content, []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_vendor_payout_period ON vendor_payouts (vendor_id, period_start, period_end)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_vendor_payout_entries_ledger_entry",
		"CHECK (period_start < period_end)",
		"DROP TABLE IF EXISTS vendor_payouts",
	})
}
