package enums

import "fmt"

// LoyaltyTier is derived from lifetime points and never decreases.
type LoyaltyTier string

const (
	LoyaltyTierBronze   LoyaltyTier = "bronze"
	LoyaltyTierSilver   LoyaltyTier = "silver"
	LoyaltyTierGold     LoyaltyTier = "gold"
	LoyaltyTierPlatinum LoyaltyTier = "platinum"
)

var validLoyaltyTiers = []LoyaltyTier{
	LoyaltyTierBronze,
	LoyaltyTierSilver,
	LoyaltyTierGold,
	LoyaltyTierPlatinum,
}

func (t LoyaltyTier) String() string {
	return string(t)
}

func (t LoyaltyTier) IsValid() bool {
	return t.Rank() >= 0
}

// Rank orders tiers from bronze (0) to platinum (3); unknown tiers return -1.
func (t LoyaltyTier) Rank() int {
	for i, candidate := range validLoyaltyTiers {
		if candidate == t {
			return i
		}
	}
	return -1
}

func ParseLoyaltyTier(value string) (LoyaltyTier, error) {
	for _, candidate := range validLoyaltyTiers {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid loyalty tier %q", value)
}

// LoyaltyTransactionType classifies a signed points movement.
type LoyaltyTransactionType string

const (
	LoyaltyTxnEarn       LoyaltyTransactionType = "earn"
	LoyaltyTxnRedeem     LoyaltyTransactionType = "redeem"
	LoyaltyTxnBonus      LoyaltyTransactionType = "bonus"
	LoyaltyTxnRefund     LoyaltyTransactionType = "refund"
	LoyaltyTxnReversal   LoyaltyTransactionType = "reversal"
	LoyaltyTxnAdjustment LoyaltyTransactionType = "adjustment"
)

var validLoyaltyTransactionTypes = []LoyaltyTransactionType{
	LoyaltyTxnEarn,
	LoyaltyTxnRedeem,
	LoyaltyTxnBonus,
	LoyaltyTxnRefund,
	LoyaltyTxnReversal,
	LoyaltyTxnAdjustment,
}

func (t LoyaltyTransactionType) String() string {
	return string(t)
}

func (t LoyaltyTransactionType) IsValid() bool {
	for _, candidate := range validLoyaltyTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// CountsTowardLifetime reports whether a positive delta of this type raises
// lifetime points. Lowering lifetime points takes an explicit adjustment.
func (t LoyaltyTransactionType) CountsTowardLifetime() bool {
	return t == LoyaltyTxnEarn || t == LoyaltyTxnBonus || t == LoyaltyTxnAdjustment
}

func ParseLoyaltyTransactionType(value string) (LoyaltyTransactionType, error) {
	for _, candidate := range validLoyaltyTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid loyalty transaction type %q", value)
}
