package receipt

import (
	"fmt"
	"strings"

	"github.com/noah-isme/backend-pos/internal/billing"
	"github.com/noah-isme/backend-pos/internal/pricing"
)

const width = 42

// Header lines printed on every receipt.
var header = []string{
	"INVENTA RETAIL POS",
	"Enhanced Retail Billing",
	"Delhi-110053 | GST 07AAACI5482L1ZY",
}

// Render produces the fixed-width text receipt for a bill.
func Render(bill billing.Bill) string {
	var b strings.Builder
	rule := strings.Repeat("-", width)

	for _, line := range header {
		b.WriteString(center(line))
		b.WriteByte('\n')
	}
	b.WriteString(rule)
	b.WriteByte('\n')

	writeKV(&b, "Bill No", bill.BillNumber)
	writeKV(&b, "Date", bill.CreatedAt.Format("02-01-2006 15:04"))
	writeKV(&b, "Payment", strings.ToUpper(bill.PaymentMethod))
	if bill.TerminalID != "" {
		writeKV(&b, "Terminal", bill.TerminalID)
	}
	if bill.CustomerPhone != "" {
		writeKV(&b, "Customer", bill.CustomerPhone)
	}
	b.WriteString(rule)
	b.WriteByte('\n')

	fmt.Fprintf(&b, "%-18s %3s %9s %9s\n", "ITEM", "QTY", "RATE", "AMOUNT")
	b.WriteString(rule)
	b.WriteByte('\n')
	for _, item := range bill.Items {
		name := item.Name
		if len(name) > 18 {
			name = name[:18]
		}
		fmt.Fprintf(&b, "%-18s %3d %9s %9s\n", name, item.Qty, Money(item.UnitPrice), Money(item.LineTotal))
	}
	b.WriteString(rule)
	b.WriteByte('\n')

	writeAmount(&b, "Subtotal", bill.Subtotal)
	if bill.DiscountAmount > 0 {
		label := "Discount"
		if bill.DiscountKind != "" && bill.DiscountKind != "none" {
			label = "Discount (" + bill.DiscountKind + ")"
		}
		if bill.CouponCode != "" {
			label = "Discount (" + bill.CouponCode + ")"
		}
		writeAmount(&b, label, -bill.DiscountAmount)
	}
	if bill.LoyaltyDiscount > 0 {
		writeAmount(&b, fmt.Sprintf("Loyalty (%d pts)", bill.LoyaltyPointsUsed), -bill.LoyaltyDiscount)
	}
	writeAmount(&b, "GST", bill.Tax)
	writeAmount(&b, "NET AMOUNT", bill.NetAmount)
	writeAmount(&b, "Paid", bill.PaidAmount)
	if bill.ChangeAmount > 0 {
		writeAmount(&b, "Change", bill.ChangeAmount)
	}
	if bill.PointsEarned > 0 {
		fmt.Fprintf(&b, "Points earned: %d\n", bill.PointsEarned)
	}
	b.WriteString(rule)
	b.WriteByte('\n')
	b.WriteString(center("THANK YOU FOR YOUR BUSINESS!"))
	b.WriteByte('\n')
	b.WriteString(center("Visit again for exciting offers!"))
	b.WriteByte('\n')
	return b.String()
}

// Money formats minor units as a decimal amount.
func Money(m pricing.Money) string {
	sign := ""
	if m < 0 {
		sign = "-"
		m = -m
	}
	return fmt.Sprintf("%s%d.%02d", sign, m/100, m%100)
}

func center(s string) string {
	if len(s) >= width {
		return s
	}
	pad := (width - len(s)) / 2
	return strings.Repeat(" ", pad) + s
}

func writeKV(b *strings.Builder, key, value string) {
	fmt.Fprintf(b, "%-9s: %s\n", key, value)
}

func writeAmount(b *strings.Builder, label string, amount pricing.Money) {
	fmt.Fprintf(b, "%-*s%s\n", width-10, label, fmt.Sprintf("%10s", Money(amount)))
}
