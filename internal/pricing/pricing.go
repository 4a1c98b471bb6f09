// Package pricing derives cart and order totals in minor currency units.
//
// Every function here is pure. Rates are decimals so that tax and discount
// rounding is exact half-up on whole minor units.
package pricing

import (
	"errors"
	"fmt"

	"github.com/harshees/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidRules  = errors.New("invalid pricing rules")
	ErrNegativeTotal = errors.New("pricing produced a negative total")
)

// DiscountRule grants Rate off the subtotal once it reaches ThresholdMinor.
type DiscountRule struct {
	ThresholdMinor int64
	Rate           decimal.Decimal
}

type Rules struct {
	FreeShippingThresholdMinor int64
	ShippingFeeMinor           int64
	TaxRate                    decimal.Decimal
	Discount                   DiscountRule
}

// DefaultRules are the storefront's business values: free shipping from ₹2000,
// otherwise ₹99; 18% GST; 10% off from ₹3000.
func DefaultRules() Rules {
	return Rules{
		FreeShippingThresholdMinor: 200000,
		ShippingFeeMinor:           9900,
		TaxRate:                    decimal.RequireFromString("0.18"),
		Discount: DiscountRule{
			ThresholdMinor: 300000,
			Rate:           decimal.RequireFromString("0.10"),
		},
	}
}

func (r Rules) Validate() error {
	if r.FreeShippingThresholdMinor < 0 || r.ShippingFeeMinor < 0 {
		return fmt.Errorf("%w: shipping values must not be negative", ErrInvalidRules)
	}
	if !inUnitRange(r.TaxRate) {
		return fmt.Errorf("%w: tax rate %s outside [0,1]", ErrInvalidRules, r.TaxRate)
	}
	return r.Discount.Validate()
}

func (d DiscountRule) Validate() error {
	if d.ThresholdMinor < 0 {
		return fmt.Errorf("%w: discount threshold must not be negative", ErrInvalidRules)
	}
	if !inUnitRange(d.Rate) {
		return fmt.Errorf("%w: discount rate %s outside [0,1]", ErrInvalidRules, d.Rate)
	}
	return nil
}

func inUnitRange(d decimal.Decimal) bool {
	return !d.IsNegative() && d.LessThanOrEqual(decimal.NewFromInt(1))
}

// Breakdown is derived, never stored on its own.
type Breakdown struct {
	SubtotalMinor int64 `json:"subtotal_minor"`
	ShippingMinor int64 `json:"shipping_minor"`
	TaxMinor      int64 `json:"tax_minor"`
	DiscountMinor int64 `json:"discount_minor"`
	TotalMinor    int64 `json:"total_minor"`
}

func (b Breakdown) Pricing() domain.Pricing {
	return domain.Pricing(b)
}

type Engine struct {
	rules Rules
}

func NewEngine(rules Rules) (*Engine, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return &Engine{rules: rules}, nil
}

func (e *Engine) Rules() Rules {
	return e.rules
}

func Subtotal(items []domain.LineItem) int64 {
	var sum int64
	for _, item := range items {
		sum += item.LineTotalMinor()
	}
	return sum
}

func (e *Engine) Shipping(subtotal int64) int64 {
	if subtotal >= e.rules.FreeShippingThresholdMinor {
		return 0
	}
	return e.rules.ShippingFeeMinor
}

func (e *Engine) Tax(subtotal int64) int64 {
	return roundHalfUp(subtotal, e.rules.TaxRate)
}

func (e *Engine) Discount(subtotal int64) int64 {
	return applyDiscount(subtotal, e.rules.Discount)
}

func applyDiscount(subtotal int64, rule DiscountRule) int64 {
	if subtotal < rule.ThresholdMinor {
		return 0
	}
	return roundHalfUp(subtotal, rule.Rate)
}

// Quote prices items with the configured discount rule. An empty item set
// prices to zero: there is nothing to ship or tax.
func (e *Engine) Quote(items []domain.LineItem) (Breakdown, error) {
	return e.QuoteWithDiscount(items, e.rules.Discount)
}

// QuoteWithDiscount prices items with rule replacing the configured discount,
// as resolved from a coupon.
func (e *Engine) QuoteWithDiscount(items []domain.LineItem, rule DiscountRule) (Breakdown, error) {
	if len(items) == 0 {
		return Breakdown{}, nil
	}
	if err := rule.Validate(); err != nil {
		return Breakdown{}, err
	}

	subtotal := Subtotal(items)
	b := Breakdown{
		SubtotalMinor: subtotal,
		ShippingMinor: e.Shipping(subtotal),
		TaxMinor:      e.Tax(subtotal),
		DiscountMinor: applyDiscount(subtotal, rule),
	}
	b.TotalMinor = b.SubtotalMinor + b.ShippingMinor + b.TaxMinor - b.DiscountMinor
	if b.TotalMinor < 0 {
		return Breakdown{}, fmt.Errorf("%w: subtotal=%d shipping=%d tax=%d discount=%d",
			ErrNegativeTotal, b.SubtotalMinor, b.ShippingMinor, b.TaxMinor, b.DiscountMinor)
	}
	return b, nil
}

func roundHalfUp(amount int64, rate decimal.Decimal) int64 {
	// Round is half away from zero, which is half-up for non-negative amounts.
	return decimal.NewFromInt(amount).Mul(rate).Round(0).IntPart()
}
