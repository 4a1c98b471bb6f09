package service

import (
	"strings"

	"github.com/harshees/storefront/internal/pricing"
)

// CouponResolver turns a coupon code into an override discount rule.
type CouponResolver interface {
	Resolve(code string) (pricing.DiscountRule, bool)
}

// StaticCoupons is a fixed, case-insensitive coupon table.
type StaticCoupons map[string]pricing.DiscountRule

func (c StaticCoupons) Resolve(code string) (pricing.DiscountRule, bool) {
	rule, ok := c[normalizeCoupon(code)]
	return rule, ok
}

func normalizeCoupon(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
