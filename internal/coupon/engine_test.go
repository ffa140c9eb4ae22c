package coupon

import (
	"errors"
	"testing"
	"time"
)

func TestDiscountPercentageCapped(t *testing.T) {
	rule := Rule{Kind: KindPercentage, PercentBps: 1500, MaxDiscount: 2_500}
	// 15% of 200.00 is 30.00, capped at 25.00.
	if got := rule.Discount(20_000); got != 2_500 {
		t.Fatalf("expected capped discount 2500, got %d", got)
	}
}

func TestDiscountFixedBoundedBySubtotal(t *testing.T) {
	rule := Rule{Kind: KindFixed, Value: 5_000}
	if got := rule.Discount(3_000); got != 3_000 {
		t.Fatalf("fixed discount must not exceed subtotal, got %d", got)
	}
	if got := rule.Discount(10_000); got != 5_000 {
		t.Fatalf("expected fixed discount 5000, got %d", got)
	}
}

func TestValidateMinimumPurchase(t *testing.T) {
	rule := Rule{Kind: KindFixed, Value: 1_000, MinPurchase: 50_000}
	err := rule.Validate(time.Now(), 20_000, DefaultTier)
	if !errors.Is(err, ErrBelowMinimum) {
		t.Fatalf("expected ErrBelowMinimum, got %v", err)
	}
}

func TestValidateTier(t *testing.T) {
	rule := Rule{Kind: KindPercentage, PercentBps: 1000, AllowedTiers: []string{"gold", "platinum"}}
	if err := rule.Validate(time.Now(), 10_000, "gold"); err != nil {
		t.Fatalf("gold should be eligible: %v", err)
	}
	err := rule.Validate(time.Now(), 10_000, "bronze")
	if !errors.Is(err, ErrTierIneligible) {
		t.Fatalf("expected ErrTierIneligible, got %v", err)
	}
	// No customer defaults to bronze.
	err = rule.Validate(time.Now(), 10_000, "")
	if !errors.Is(err, ErrTierIneligible) {
		t.Fatalf("expected default tier to be bronze, got %v", err)
	}
}

func TestValidateUsageLimit(t *testing.T) {
	rule := Rule{Kind: KindFixed, Value: 500, UsageLimit: 10, UsedCount: 10}
	err := rule.Validate(time.Now(), 10_000, DefaultTier)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
}

func TestValidateWindow(t *testing.T) {
	now := time.Now()
	future := now.Add(24 * time.Hour)
	past := now.Add(-24 * time.Hour)

	notYet := Rule{Kind: KindFixed, Value: 500, ValidFrom: &future}
	if err := notYet.Validate(now, 10_000, DefaultTier); !errors.Is(err, ErrInactive) {
		t.Fatalf("expected ErrInactive, got %v", err)
	}
	gone := Rule{Kind: KindFixed, Value: 500, ValidTo: &past}
	if err := gone.Validate(now, 10_000, DefaultTier); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("  save20 "); got != "SAVE20" {
		t.Fatalf("expected SAVE20, got %q", got)
	}
}
