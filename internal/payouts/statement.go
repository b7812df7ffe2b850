package payouts

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/money"
)

// Totals is the reconciliation of a set of ledger entries.
type Totals struct {
	Sales      decimal.Decimal
	Commission decimal.Decimal
	Payout     decimal.Decimal
	OrderCount int
	EntryCount int
}

// Summarize adds up entries. OrderCount counts distinct orders.
func Summarize(entries []models.CommissionLedgerEntry) Totals {
	totals := Totals{Sales: decimal.Zero, Commission: decimal.Zero, Payout: decimal.Zero}
	orders := make(map[uuid.UUID]struct{}, len(entries))
	for _, entry := range entries {
		totals.Sales = totals.Sales.Add(entry.SaleAmount)
		totals.Commission = totals.Commission.Add(entry.CommissionAmount)
		totals.Payout = totals.Payout.Add(entry.VendorPayout)
		orders[entry.OrderID] = struct{}{}
	}
	totals.Sales = money.Round(totals.Sales)
	totals.Commission = money.Round(totals.Commission)
	totals.Payout = money.Round(totals.Payout)
	totals.OrderCount = len(orders)
	totals.EntryCount = len(entries)
	return totals
}

// AverageRate is total commission over total sales at four decimals.
func (t Totals) AverageRate() decimal.Decimal {
	return money.WeightedRate(t.Commission, t.Sales)
}

// StatementInput is everything RenderStatement prints.
type StatementInput struct {
	Vendor      models.Vendor
	PeriodStart time.Time
	PeriodEnd   time.Time
	Currency    string
	Totals      Totals
	Entries     []models.CommissionLedgerEntry
	GeneratedAt time.Time
}

// RenderStatement produces the plain-text vendor statement. The period line
// shows the last included day, not the exclusive end.
func RenderStatement(in StatementInput) string {
	var b strings.Builder
	lastDay := in.PeriodEnd.AddDate(0, 0, -1)

	fmt.Fprintf(&b, "Vendor statement\n")
	fmt.Fprintf(&b, "Vendor:    %s (%s)\n", in.Vendor.Name, in.Vendor.ID)
	fmt.Fprintf(&b, "Period:    %s to %s\n", in.PeriodStart.Format("2006-01-02"), lastDay.Format("2006-01-02"))
	fmt.Fprintf(&b, "Currency:  %s\n", in.Currency)
	fmt.Fprintf(&b, "Generated: %s\n\n", in.GeneratedAt.UTC().Format(time.RFC3339))

	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "Order\tItem\tSale\tRate\tCommission\tPayout\t")
	for _, entry := range in.Entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t\n",
			shortID(entry.OrderID),
			shortID(entry.OrderItemID),
			entry.SaleAmount.StringFixed(2),
			entry.CommissionRate.StringFixed(money.RateScale),
			entry.CommissionAmount.StringFixed(2),
			entry.VendorPayout.StringFixed(2),
		)
	}
	_ = w.Flush()

	fmt.Fprintf(&b, "\nTotal sales:       %s\n", in.Totals.Sales.StringFixed(2))
	fmt.Fprintf(&b, "Total commission:  %s\n", in.Totals.Commission.StringFixed(2))
	fmt.Fprintf(&b, "Average rate:      %s\n", in.Totals.AverageRate().StringFixed(money.RateScale))
	fmt.Fprintf(&b, "Payout amount:     %s\n", in.Totals.Payout.StringFixed(2))
	fmt.Fprintf(&b, "Orders:            %d\n", in.Totals.OrderCount)
	fmt.Fprintf(&b, "Line items:        %d\n", in.Totals.EntryCount)
	return b.String()
}

func shortID(id uuid.UUID) string {
	return strings.ToUpper(id.String()[:8])
}
