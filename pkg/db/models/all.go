package models

// All lists every persisted model, in dependency order. Used by sqlite
// bootstrapping and tests; Postgres schemas come from goose migrations.
func All() []any {
	return []any{
		&Vendor{},
		&Product{},
		&Order{},
		&OrderItem{},
		&LoyaltyAccount{},
		&LoyaltyTransaction{},
		&GiftCard{},
		&GiftCardTransaction{},
		&CommissionLedgerEntry{},
		&VendorPayout{},
		&VendorPayoutEntry{},
		&VendorStatement{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
