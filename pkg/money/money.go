// Package money centralises decimal rounding so that checkout, the commission
// ledger and payout aggregation all agree to the cent.
package money

import "github.com/shopspring/decimal"

// Scale is the number of fractional digits kept for currency amounts.
const Scale int32 = 2

// RateScale is the precision used for reported commission rates.
const RateScale int32 = 4

var Zero = decimal.Zero

// IsRatePrecise reports whether rate is representable at RateScale, which is
// the precision rate snapshots are stored with.
func IsRatePrecise(rate decimal.Decimal) bool {
	return rate.Equal(rate.Truncate(RateScale))
}

// Round applies banker's rounding (half-even) to the smallest currency unit.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(Scale)
}

// Apply multiplies amount by rate and rounds the result to cents.
func Apply(amount, rate decimal.Decimal) decimal.Decimal {
	return Round(amount.Mul(rate))
}

// NonNegative clamps d at zero.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Sum adds values without intermediate rounding.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// WeightedRate returns numerator/denominator at RateScale, or zero when the
// denominator is zero.
func WeightedRate(numerator, denominator decimal.Decimal) decimal.Decimal {
	if denominator.IsZero() {
		return decimal.Zero
	}
	return numerator.DivRound(denominator, RateScale+4).RoundBank(RateScale)
}
