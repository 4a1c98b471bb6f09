package pricing

import (
	"testing"

	"github.com/harshees/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rupeeRules expresses the business defaults in whole rupees so that worked
// examples read the same as on the checkout page.
func rupeeRules() Rules {
	return Rules{
		FreeShippingThresholdMinor: 2000,
		ShippingFeeMinor:           99,
		TaxRate:                    decimal.RequireFromString("0.18"),
		Discount: DiscountRule{
			ThresholdMinor: 3000,
			Rate:           decimal.RequireFromString("0.1"),
		},
	}
}

func newEngine(t *testing.T, rules Rules) *Engine {
	t.Helper()
	e, err := NewEngine(rules)
	require.NoError(t, err)
	return e
}

func items(prices ...int64) []domain.LineItem {
	out := make([]domain.LineItem, 0, len(prices))
	for i, p := range prices {
		out = append(out, domain.LineItem{ProductID: string(rune('a' + i)), UnitPriceMinor: p, Quantity: 1, Size: "M"})
	}
	return out
}

func TestQuote_BelowThresholds(t *testing.T) {
	e := newEngine(t, rupeeRules())

	b, err := e.Quote(items(1499))
	require.NoError(t, err)

	assert.Equal(t, Breakdown{
		SubtotalMinor: 1499,
		ShippingMinor: 99,
		TaxMinor:      270,
		DiscountMinor: 0,
		TotalMinor:    1868,
	}, b)
}

func TestQuote_AboveThresholds(t *testing.T) {
	e := newEngine(t, rupeeRules())

	b, err := e.Quote(items(1200, 2000))
	require.NoError(t, err)

	assert.Equal(t, Breakdown{
		SubtotalMinor: 3200,
		ShippingMinor: 0,
		TaxMinor:      576,
		DiscountMinor: 320,
		TotalMinor:    3456,
	}, b)
}

func TestQuote_DefaultRulesInPaise(t *testing.T) {
	e := newEngine(t, DefaultRules())

	b, err := e.Quote(items(149900))
	require.NoError(t, err)

	assert.Equal(t, int64(9900), b.ShippingMinor)
	assert.Equal(t, int64(26982), b.TaxMinor)
	assert.Equal(t, int64(0), b.DiscountMinor)
	assert.Equal(t, int64(186782), b.TotalMinor)
}

func TestQuote_Quantities(t *testing.T) {
	e := newEngine(t, rupeeRules())

	b, err := e.Quote([]domain.LineItem{{ProductID: "p", UnitPriceMinor: 500, Quantity: 3}})
	require.NoError(t, err)
	assert.Equal(t, int64(1500), b.SubtotalMinor)
}

func TestQuote_EmptyItems(t *testing.T) {
	e := newEngine(t, rupeeRules())

	b, err := e.Quote(nil)
	require.NoError(t, err)
	assert.Equal(t, Breakdown{}, b)
}

func TestShipping_ExactThreshold(t *testing.T) {
	e := newEngine(t, rupeeRules())
	assert.Equal(t, int64(0), e.Shipping(2000))
	assert.Equal(t, int64(99), e.Shipping(1999))
}

func TestDiscount_ExactThreshold(t *testing.T) {
	e := newEngine(t, rupeeRules())
	assert.Equal(t, int64(300), e.Discount(3000))
	assert.Equal(t, int64(0), e.Discount(2999))
}

func TestTax_RoundsHalfUp(t *testing.T) {
	e := newEngine(t, Rules{TaxRate: decimal.RequireFromString("0.5"), Discount: DiscountRule{Rate: decimal.Zero}})
	assert.Equal(t, int64(3), e.Tax(5))
	assert.Equal(t, int64(2), e.Tax(4))

	e = newEngine(t, rupeeRules())
	// 25 * 0.18 = 4.5
	assert.Equal(t, int64(5), e.Tax(25))
}

func TestQuote_Invariants(t *testing.T) {
	e := newEngine(t, rupeeRules())

	for subtotal := int64(1); subtotal <= 5000; subtotal += 37 {
		b, err := e.Quote(items(subtotal))
		require.NoError(t, err)

		assert.Equal(t, b.SubtotalMinor+b.ShippingMinor+b.TaxMinor-b.DiscountMinor, b.TotalMinor)
		assert.Equal(t, b.ShippingMinor == 0, subtotal >= 2000, "subtotal %d", subtotal)
		if subtotal < 3000 {
			assert.Zero(t, b.DiscountMinor, "subtotal %d", subtotal)
		}
		assert.True(t, b.Pricing().Reconciles())
	}
}

func TestQuoteWithDiscount_CouponOverride(t *testing.T) {
	e := newEngine(t, rupeeRules())

	b, err := e.QuoteWithDiscount(items(1000), DiscountRule{ThresholdMinor: 500, Rate: decimal.RequireFromString("0.25")})
	require.NoError(t, err)

	assert.Equal(t, int64(250), b.DiscountMinor)
	assert.Equal(t, int64(1000+99+180-250), b.TotalMinor)
}

func TestNewEngine_RejectsInvalidRules(t *testing.T) {
	rules := rupeeRules()
	rules.TaxRate = decimal.RequireFromString("1.5")
	_, err := NewEngine(rules)
	assert.ErrorIs(t, err, ErrInvalidRules)

	rules = rupeeRules()
	rules.Discount.Rate = decimal.RequireFromString("-0.1")
	_, err = NewEngine(rules)
	assert.ErrorIs(t, err, ErrInvalidRules)

	rules = rupeeRules()
	rules.ShippingFeeMinor = -1
	_, err = NewEngine(rules)
	assert.ErrorIs(t, err, ErrInvalidRules)
}

func TestQuote_NegativeTotalFailsLoudly(t *testing.T) {
	e := &Engine{rules: Rules{TaxRate: decimal.NewFromInt(-2), Discount: DiscountRule{Rate: decimal.Zero}}}

	_, err := e.Quote(items(1000))
	assert.ErrorIs(t, err, ErrNegativeTotal)
}
