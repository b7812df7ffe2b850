package loyalty

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	"github.com/angelmondragon/marketledger-backend/pkg/money"
)

// Lifetime-point thresholds at which each tier starts.
const (
	SilverThreshold   int64 = 1000
	GoldThreshold     int64 = 5000
	PlatinumThreshold int64 = 10000
)

// pointValue is the currency value of a single point at redemption.
var pointValue = decimal.RequireFromString("0.1")

// earnUnit is the spend that earns one point at the base rate.
var earnUnit = decimal.NewFromInt(10)

var earnRates = map[enums.LoyaltyTier]decimal.Decimal{
	enums.LoyaltyTierBronze:   decimal.NewFromInt(1),
	enums.LoyaltyTierSilver:   decimal.RequireFromString("1.5"),
	enums.LoyaltyTierGold:     decimal.NewFromInt(2),
	enums.LoyaltyTierPlatinum: decimal.NewFromInt(3),
}

// ResolveTier maps lifetime points to a tier.
func ResolveTier(lifetime int64) enums.LoyaltyTier {
	switch {
	case lifetime >= PlatinumThreshold:
		return enums.LoyaltyTierPlatinum
	case lifetime >= GoldThreshold:
		return enums.LoyaltyTierGold
	case lifetime >= SilverThreshold:
		return enums.LoyaltyTierSilver
	default:
		return enums.LoyaltyTierBronze
	}
}

// PointsToNextTier is the distance to the next threshold; zero at platinum.
func PointsToNextTier(lifetime int64) int64 {
	switch {
	case lifetime >= PlatinumThreshold:
		return 0
	case lifetime >= GoldThreshold:
		return PlatinumThreshold - lifetime
	case lifetime >= SilverThreshold:
		return GoldThreshold - lifetime
	default:
		return SilverThreshold - lifetime
	}
}

// pointsToTierAbove measures the distance from lifetime to the threshold of
// the tier after held. It matches PointsToNextTier unless a lifetime
// adjustment left the account below the tier it keeps.
func pointsToTierAbove(held enums.LoyaltyTier, lifetime int64) int64 {
	var next int64
	switch held {
	case enums.LoyaltyTierBronze:
		next = SilverThreshold
	case enums.LoyaltyTierSilver:
		next = GoldThreshold
	case enums.LoyaltyTierGold:
		next = PlatinumThreshold
	default:
		return 0
	}
	return max(next-lifetime, 0)
}

// CalculatePointsFromPurchase returns floor(amount/10 × tier rate). Negative
// amounts earn nothing.
func CalculatePointsFromPurchase(amount decimal.Decimal, tier enums.LoyaltyTier) int64 {
	if !amount.IsPositive() {
		return 0
	}
	rate, ok := earnRates[tier]
	if !ok {
		rate = earnRates[enums.LoyaltyTierBronze]
	}
	return amount.Div(earnUnit).Mul(rate).Floor().IntPart()
}

// CalculateRedemptionValue converts points into a currency discount. The value
// of a point does not depend on tier.
func CalculateRedemptionValue(points int64) decimal.Decimal {
	if points <= 0 {
		return decimal.Zero
	}
	return money.Round(decimal.NewFromInt(points).Mul(pointValue))
}

// higherTier keeps tiers monotonic: an account is never demoted.
func higherTier(current, candidate enums.LoyaltyTier) enums.LoyaltyTier {
	if candidate.Rank() > current.Rank() {
		return candidate
	}
	return current
}
