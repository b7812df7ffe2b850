package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRoundIsHalfEven(t *testing.T) {
	cases := map[string]string{
		"1.005":  "1",
		"1.015":  "1.02",
		"1.025":  "1.02",
		"2.675":  "2.68",
		"-1.005": "-1",
		"10":     "10",
	}
	for in, want := range cases {
		assert.True(t, Round(d(in)).Equal(d(want)), "Round(%s) = %s, want %s", in, Round(d(in)), want)
	}
}

func TestApplyAndComplementSumToAmount(t *testing.T) {
	amounts := []string{"500", "300", "19.99", "0.05", "1234.57", "0.01"}
	rates := []string{"0.10", "0.20", "0.125", "0.0725", "0.3333"}
	for _, a := range amounts {
		for _, r := range rates {
			commission := Apply(d(a), d(r))
			payout := d(a).Sub(commission)
			assert.True(t, commission.Add(payout).Equal(d(a)), "amount %s rate %s", a, r)
			assert.LessOrEqual(t, commission.Exponent(), int32(0))
			assert.GreaterOrEqual(t, commission.Exponent(), -Scale)
		}
	}
}

func TestNonNegativeAndMin(t *testing.T) {
	assert.True(t, NonNegative(d("-3.50")).IsZero())
	assert.True(t, NonNegative(d("3.50")).Equal(d("3.5")))
	assert.True(t, Min(d("2"), d("3")).Equal(d("2")))
	assert.True(t, Min(d("5"), d("3")).Equal(d("3")))
}

func TestWeightedRate(t *testing.T) {
	// 50 on 500 and 60 on 300: 110 / 800 = 0.1375
	assert.True(t, WeightedRate(d("110"), d("800")).Equal(d("0.1375")))
	assert.True(t, WeightedRate(d("1"), decimal.Zero).IsZero())
	assert.True(t, Sum(d("1.10"), d("2.20"), d("3.30")).Equal(d("6.6")))
}

func TestIsRatePrecise(t *testing.T) {
	assert.True(t, IsRatePrecise(d("0.1")))
	assert.True(t, IsRatePrecise(d("0.1234")))
	assert.True(t, IsRatePrecise(d("0.12340")))
	assert.False(t, IsRatePrecise(d("0.12345")))
	assert.False(t, IsRatePrecise(d("-0.00001")))
}
