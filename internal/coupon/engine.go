package coupon

import (
	"errors"
	"strings"
	"time"

	"github.com/noah-isme/backend-pos/internal/pricing"
)

var (
	// ErrNotFound is returned when the code does not exist in the catalog.
	ErrNotFound = errors.New("coupon not found")
	// ErrBelowMinimum indicates the cart subtotal did not meet the coupon requirement.
	ErrBelowMinimum = errors.New("coupon minimum purchase not met")
	// ErrTierIneligible indicates the coupon restricts customer tiers and the
	// current tier is not in the allowed set.
	ErrTierIneligible = errors.New("coupon not available for customer tier")
	// ErrExhausted indicates the coupon has reached its usage limit.
	ErrExhausted = errors.New("coupon usage limit reached")
	// ErrInactive is returned when attempting to use a coupon before its window opens.
	ErrInactive = errors.New("coupon not active")
	// ErrExpired is returned when the coupon window has closed.
	ErrExpired = errors.New("coupon expired")
)

// Kind distinguishes percentage coupons from fixed-amount coupons.
type Kind string

const (
	KindPercentage Kind = "percentage"
	KindFixed      Kind = "fixed"
)

// DefaultTier is assumed when no customer record is attached to the sale.
const DefaultTier = "bronze"

// Rule captures the runtime constraints of a coupon.
type Rule struct {
	Code         string
	Kind         Kind
	PercentBps   int32
	Value        pricing.Money
	MaxDiscount  pricing.Money
	MinPurchase  pricing.Money
	AllowedTiers []string
	UsageLimit   int32
	UsedCount    int32
	ValidFrom    *time.Time
	ValidTo      *time.Time
}

// Normalize canonicalises a coupon code for lookup.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate ensures the rule can be applied at the provided instant, subtotal
// and customer tier.
func (r Rule) Validate(now time.Time, subtotal pricing.Money, tier string) error {
	if r.ValidFrom != nil && now.Before(*r.ValidFrom) {
		return ErrInactive
	}
	if r.ValidTo != nil && now.After(*r.ValidTo) {
		return ErrExpired
	}
	if r.UsageLimit > 0 && r.UsedCount >= r.UsageLimit {
		return ErrExhausted
	}
	if subtotal < r.MinPurchase {
		return ErrBelowMinimum
	}
	if len(r.AllowedTiers) > 0 {
		if strings.TrimSpace(tier) == "" {
			tier = DefaultTier
		}
		if !tierAllowed(r.AllowedTiers, tier) {
			return ErrTierIneligible
		}
	}
	return nil
}

func tierAllowed(allowed []string, tier string) bool {
	for _, t := range allowed {
		if strings.EqualFold(strings.TrimSpace(t), tier) {
			return true
		}
	}
	return false
}

// Discount computes the discount amount for the given subtotal. Percentage
// coupons are capped at MaxDiscount, fixed coupons at the subtotal itself.
func (r Rule) Discount(subtotal pricing.Money) pricing.Money {
	if subtotal <= 0 {
		return 0
	}
	var discount pricing.Money
	switch r.Kind {
	case KindPercentage:
		if r.PercentBps <= 0 {
			return 0
		}
		discount = subtotal * pricing.Money(r.PercentBps) / 10_000
		if r.MaxDiscount > 0 && discount > r.MaxDiscount {
			discount = r.MaxDiscount
		}
	default:
		discount = r.Value
	}
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		return 0
	}
	return discount
}
