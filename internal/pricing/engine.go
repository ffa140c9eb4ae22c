package pricing

// Money represents a monetary value stored in minor units.
type Money = int64

// PointValue is the redemption value of one loyalty point in minor units.
// Points redeem 1:1 against whole currency units.
const PointValue Money = 100

// EarnStep is the spend required to earn one loyalty point, in minor units
// (one point per 100 currency units of net payable).
const EarnStep Money = 10_000

// DefaultTaxBps is the flat GST rate applied when none is configured.
const DefaultTaxBps = 1800

// Item describes a cart line used for totals calculation.
type Item struct {
	Qty       int
	UnitPrice Money
}

// DiscountKind tags which discount source won the best-of selection.
type DiscountKind string

const (
	DiscountNone   DiscountKind = "none"
	DiscountManual DiscountKind = "manual"
	DiscountCoupon DiscountKind = "coupon"
)

// DiscountChoice is the single applied discount. Manual and coupon discounts
// never stack; only the larger one applies, ties favouring manual.
type DiscountChoice struct {
	Kind   DiscountKind `json:"kind"`
	Amount Money        `json:"amount"`
}

// Input carries everything Compute needs. CouponDiscount is the amount already
// computed by the coupon engine for the current subtotal (0 when no coupon is
// applied).
type Input struct {
	Items             []Item
	ManualDiscountBps int
	CouponDiscount    Money
	LoyaltyPoints     int
	CustomerPresent   bool
	CustomerBalance   int
	TaxBps            int
}

// Totals aggregates the computed billing components.
type Totals struct {
	Subtotal        Money          `json:"subtotal"`
	Discount        DiscountChoice `json:"discount"`
	LoyaltyUsed     int            `json:"loyaltyPointsUsed"`
	LoyaltyDiscount Money          `json:"loyaltyDiscount"`
	TotalDiscount   Money          `json:"totalDiscount"`
	TaxableAmount   Money          `json:"taxableAmount"`
	Tax             Money          `json:"tax"`
	Net             Money          `json:"netAmount"`
	PointsToEarn    int            `json:"pointsToEarn"`
	MaxUsablePoints int            `json:"maxUsablePoints"`
}

// Compute calculates billing totals for the provided state. It is a pure
// function: identical input always yields identical totals.
func Compute(in Input) Totals {
	var subtotal Money
	for _, it := range in.Items {
		if it.Qty <= 0 {
			continue
		}
		subtotal += Money(it.Qty) * it.UnitPrice
	}
	if subtotal <= 0 {
		return Totals{Discount: DiscountChoice{Kind: DiscountNone}}
	}

	maxPoints := 0
	if in.CustomerPresent {
		// Points never cover more than half the pre-discount subtotal.
		maxPoints = int(subtotal / (2 * PointValue))
		if in.CustomerBalance < maxPoints {
			maxPoints = in.CustomerBalance
		}
		if maxPoints < 0 {
			maxPoints = 0
		}
	}
	pointsUsed := in.LoyaltyPoints
	if pointsUsed > maxPoints {
		pointsUsed = maxPoints
	}
	if pointsUsed < 0 {
		pointsUsed = 0
	}
	loyaltyDiscount := Money(pointsUsed) * PointValue

	manualBps := in.ManualDiscountBps
	if manualBps < 0 {
		manualBps = 0
	}
	if manualBps > 10_000 {
		manualBps = 10_000
	}
	manual := subtotal * Money(manualBps) / 10_000

	coupon := in.CouponDiscount
	if coupon < 0 {
		coupon = 0
	}
	if coupon > subtotal {
		coupon = subtotal
	}

	best := DiscountChoice{Kind: DiscountNone}
	switch {
	case manual == 0 && coupon == 0:
	case manual >= coupon:
		best = DiscountChoice{Kind: DiscountManual, Amount: manual}
	default:
		best = DiscountChoice{Kind: DiscountCoupon, Amount: coupon}
	}

	totalDiscount := best.Amount + loyaltyDiscount
	taxable := subtotal - totalDiscount
	if taxable < 0 {
		taxable = 0
	}
	taxBps := in.TaxBps
	if taxBps <= 0 {
		taxBps = DefaultTaxBps
	}
	tax := taxable * Money(taxBps) / 10_000
	net := taxable + tax

	earned := 0
	if in.CustomerPresent {
		earned = int(net / EarnStep)
	}

	return Totals{
		Subtotal:        subtotal,
		Discount:        best,
		LoyaltyUsed:     pointsUsed,
		LoyaltyDiscount: loyaltyDiscount,
		TotalDiscount:   totalDiscount,
		TaxableAmount:   taxable,
		Tax:             tax,
		Net:             net,
		PointsToEarn:    earned,
		MaxUsablePoints: maxPoints,
	}
}
