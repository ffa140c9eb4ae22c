package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/bills"
	"github.com/noah-isme/backend-pos/internal/catalog"
	"github.com/noah-isme/backend-pos/internal/coupon"
	"github.com/noah-isme/backend-pos/internal/customer"
	"github.com/noah-isme/backend-pos/internal/obs"
	"github.com/noah-isme/backend-pos/internal/pricing"
)

// PaymentMethods accepted at the terminal.
var PaymentMethods = map[string]bool{
	"cash":   true,
	"card":   true,
	"upi":    true,
	"wallet": true,
}

// Bill is the immutable record of a generated bill.
type Bill struct {
	bills.CreateRequest
	BillID     string `json:"billId"`
	BillNumber string `json:"billNumber"`
}

// Journal records generated bills locally.
type Journal interface {
	Record(ctx context.Context, bill Bill) error
}

// ReceiptEnqueuer schedules background receipt rendering for a bill.
type ReceiptEnqueuer interface {
	EnqueueRender(ctx context.Context, bill Bill) error
}

// Service owns billing sessions and implements the calculator operations
// against the upstream catalog, customer and bill services.
type Service struct {
	Store     *Store
	Catalog   catalog.Client
	Customers customer.Client
	Bills     bills.Client
	Journal   Journal
	Receipts  ReceiptEnqueuer
	TaxBps    int
	Now       func() time.Time
	Logger    zerolog.Logger
}

func (svc *Service) now() time.Time {
	if svc.Now != nil {
		return svc.Now()
	}
	return time.Now()
}

func (svc *Service) session(id string) (*Session, error) {
	if svc.Store == nil {
		return nil, errors.New("billing service not configured")
	}
	s, ok := svc.Store.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// LineView is the serializable projection of a cart line.
type LineView struct {
	ProductID string        `json:"productId"`
	Name      string        `json:"name"`
	UnitPrice pricing.Money `json:"unitPrice"`
	Qty       int           `json:"qty"`
	LineTotal pricing.Money `json:"lineTotal"`
}

// Snapshot is the caller-facing view of a session with freshly computed totals.
type Snapshot struct {
	ID                string             `json:"id"`
	TerminalID        string             `json:"terminalId"`
	Items             []LineView         `json:"items"`
	ManualDiscountBps int                `json:"manualDiscountBps"`
	CouponCode        string             `json:"couponCode,omitempty"`
	Customer          *customer.Customer `json:"customer,omitempty"`
	Phone             string             `json:"phone,omitempty"`
	PaymentMethod     string             `json:"paymentMethod,omitempty"`
	Totals            pricing.Totals     `json:"totals"`
	CanGenerateBill   bool               `json:"canGenerateBill"`
}

// CouponOption is one applicable coupon with its potential discount for the
// current cart.
type CouponOption struct {
	Code        string        `json:"code"`
	Kind        coupon.Kind   `json:"kind"`
	MinPurchase pricing.Money `json:"minPurchase"`
	Discount    pricing.Money `json:"discount"`
}

func (s *Session) subtotalLocked() pricing.Money {
	var subtotal pricing.Money
	for _, l := range s.Items {
		subtotal += l.LineTotal()
	}
	return subtotal
}

func (svc *Service) totalsLocked(s *Session) pricing.Totals {
	var couponDiscount pricing.Money
	if s.Coupon != nil {
		couponDiscount = s.Coupon.Discount(s.subtotalLocked())
	}
	in := pricing.Input{
		ManualDiscountBps: s.ManualDiscountBps,
		CouponDiscount:    couponDiscount,
		LoyaltyPoints:     s.LoyaltyPoints,
		TaxBps:            svc.TaxBps,
	}
	for _, l := range s.Items {
		in.Items = append(in.Items, pricing.Item{Qty: l.Qty, UnitPrice: l.UnitPrice})
	}
	if s.Customer != nil {
		in.CustomerPresent = true
		in.CustomerBalance = s.Customer.LoyaltyPoints
	}
	return pricing.Compute(in)
}

func (s *Session) canGenerateLocked() bool {
	if len(s.Items) == 0 {
		return false
	}
	return s.Customer != nil || customer.ValidPhone(s.Phone)
}

func (svc *Service) snapshotLocked(s *Session) Snapshot {
	totals := svc.totalsLocked(s)
	// Totals recomputation is also where a stale loyalty selection gets
	// clamped after cart or customer changes.
	s.LoyaltyPoints = totals.LoyaltyUsed
	snap := Snapshot{
		ID:                s.ID,
		TerminalID:        s.TerminalID,
		Items:             make([]LineView, 0, len(s.Items)),
		ManualDiscountBps: s.ManualDiscountBps,
		Customer:          s.Customer,
		Phone:             s.Phone,
		PaymentMethod:     s.PaymentMethod,
		Totals:            totals,
		CanGenerateBill:   s.canGenerateLocked(),
	}
	if s.Coupon != nil {
		snap.CouponCode = s.Coupon.Code
	}
	for _, l := range s.Items {
		snap.Items = append(snap.Items, LineView{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Qty:       l.Qty,
			LineTotal: l.LineTotal(),
		})
	}
	return snap
}

// NewSession creates an empty session bound to the terminal.
func (svc *Service) NewSession(terminalID string) Snapshot {
	s := svc.Store.Create(terminalID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return svc.snapshotLocked(s)
}

// View returns the current session state with recomputed totals.
func (svc *Service) View(id string) (Snapshot, error) {
	s, err := svc.session(id)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return svc.snapshotLocked(s), nil
}

// AddItem fetches the product and adds it to the cart, incrementing the
// existing line when the product is already present. The cart is left
// unchanged when stock is insufficient.
func (svc *Service) AddItem(ctx context.Context, id, productID string, qty int) (Snapshot, error) {
	if qty <= 0 {
		return Snapshot{}, fmt.Errorf("qty must be positive: %w", ErrInvalidInput)
	}
	s, err := svc.session(id)
	if err != nil {
		return Snapshot{}, err
	}
	product, err := svc.Catalog.Product(ctx, productID)
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Items {
		if s.Items[i].ProductID == product.ID {
			if s.Items[i].Qty+qty > product.CurrentStock {
				return Snapshot{}, fmt.Errorf("%s: %w", product.Name, ErrInsufficientStock)
			}
			s.Items[i].Qty += qty
			s.Items[i].Stock = product.CurrentStock
			s.touchLocked(svc.now())
			return svc.snapshotLocked(s), nil
		}
	}
	if qty > product.CurrentStock {
		return Snapshot{}, fmt.Errorf("%s: %w", product.Name, ErrInsufficientStock)
	}
	s.Items = append(s.Items, Line{
		ProductID: product.ID,
		Name:      product.Name,
		UnitPrice: product.SellingPrice,
		Qty:       qty,
		Stock:     product.CurrentStock,
	})
	s.touchLocked(svc.now())
	return svc.snapshotLocked(s), nil
}

// UpdateQuantity sets the quantity of the line at index. A quantity of zero
// or less removes the line.
func (svc *Service) UpdateQuantity(id string, index, qty int) (Snapshot, error) {
	s, err := svc.session(id)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.Items) {
		return Snapshot{}, ErrIndexOutOfRange
	}
	if qty <= 0 {
		s.Items = append(s.Items[:index], s.Items[index+1:]...)
		s.touchLocked(svc.now())
		return svc.snapshotLocked(s), nil
	}
	if qty > s.Items[index].Stock {
		return Snapshot{}, fmt.Errorf("%s: %w", s.Items[index].Name, ErrInsufficientStock)
	}
	s.Items[index].Qty = qty
	s.touchLocked(svc.now())
	return svc.snapshotLocked(s), nil
}

// RemoveItem deletes the line at index.
func (svc *Service) RemoveItem(id string, index int) (Snapshot, error) {
	s, err := svc.session(id)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.Items) {
		return Snapshot{}, ErrIndexOutOfRange
	}
	s.Items = append(s.Items[:index], s.Items[index+1:]...)
	s.touchLocked(svc.now())
	return svc.snapshotLocked(s), nil
}

// SetManualDiscount sets the manual discount in basis points (0..10000).
func (svc *Service) SetManualDiscount(id string, bps int) (Snapshot, error) {
	if bps < 0 || bps > 10_000 {
		return Snapshot{}, fmt.Errorf("discount must be between 0 and 10000 bps: %w", ErrInvalidInput)
	}
	s, err := svc.session(id)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ManualDiscountBps = bps
	s.touchLocked(svc.now())
	return svc.snapshotLocked(s), nil
}

// AttachCustomer validates the phone number and resolves the customer record.
// An unknown number keeps the phone on the session with no customer, which
// still satisfies the bill generation gate.
func (svc *Service) AttachCustomer(ctx context.Context, id, phone string) (Snapshot, error) {
	if !customer.ValidPhone(phone) {
		return Snapshot{}, ErrInvalidPhone
	}
	s, err := svc.session(id)
	if err != nil {
		return Snapshot{}, err
	}
	cust, err := svc.Customers.ByPhone(ctx, phone)
	var resolved *customer.Customer
	switch {
	case err == nil:
		resolved = &cust
	case errors.Is(err, customer.ErrNotFound):
		resolved = nil
	default:
		return Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Customer = resolved
	s.Phone = phone
	s.LoyaltyPoints = 0
	s.touchLocked(svc.now())
	return svc.snapshotLocked(s), nil
}

// UseLoyaltyPoints selects how many points to redeem; the selection is
// clamped to the computed maximum.
func (svc *Service) UseLoyaltyPoints(id string, points int) (Snapshot, error) {
	if points < 0 {
		return Snapshot{}, fmt.Errorf("points must not be negative: %w", ErrInvalidInput)
	}
	s, err := svc.session(id)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LoyaltyPoints = points
	s.touchLocked(svc.now())
	return svc.snapshotLocked(s), nil
}

// ApplyCoupon validates the code against the catalog and the current cart and
// stores it as the single active coupon, replacing any previous one.
func (svc *Service) ApplyCoupon(ctx context.Context, id, code string) (Snapshot, error) {
	s, err := svc.session(id)
	if err != nil {
		return Snapshot{}, err
	}
	rule, err := svc.Catalog.Coupon(ctx, code)
	if err != nil {
		svc.countCouponValidation(err)
		return Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tier := coupon.DefaultTier
	if s.Customer != nil && s.Customer.Tier != "" {
		tier = s.Customer.Tier
	}
	if err := rule.Validate(svc.now(), s.subtotalLocked(), tier); err != nil {
		svc.countCouponValidation(err)
		return Snapshot{}, err
	}
	svc.countCouponValidation(nil)
	s.Coupon = &rule
	s.touchLocked(svc.now())
	return svc.snapshotLocked(s), nil
}

// RemoveCoupon clears the active coupon.
func (svc *Service) RemoveCoupon(id string) (Snapshot, error) {
	s, err := svc.session(id)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Coupon = nil
	s.touchLocked(svc.now())
	return svc.snapshotLocked(s), nil
}

// ListApplicableCoupons returns every catalog coupon usable with the current
// cart and customer tier, with the discount each would give.
func (svc *Service) ListApplicableCoupons(ctx context.Context, id string) ([]CouponOption, error) {
	s, err := svc.session(id)
	if err != nil {
		return nil, err
	}
	rules, err := svc.Catalog.ListCoupons(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	subtotal := s.subtotalLocked()
	tier := coupon.DefaultTier
	if s.Customer != nil && s.Customer.Tier != "" {
		tier = s.Customer.Tier
	}
	s.mu.Unlock()

	now := svc.now()
	options := make([]CouponOption, 0, len(rules))
	for _, rule := range rules {
		if rule.Validate(now, subtotal, tier) != nil {
			continue
		}
		options = append(options, CouponOption{
			Code:        rule.Code,
			Kind:        rule.Kind,
			MinPurchase: rule.MinPurchase,
			Discount:    rule.Discount(subtotal),
		})
	}
	return options, nil
}

// SetPaymentMethod records the chosen payment method.
func (svc *Service) SetPaymentMethod(id, method string) (Snapshot, error) {
	if !PaymentMethods[method] {
		return Snapshot{}, fmt.Errorf("unknown payment method %q: %w", method, ErrInvalidInput)
	}
	s, err := svc.session(id)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PaymentMethod = method
	s.touchLocked(svc.now())
	return svc.snapshotLocked(s), nil
}

// Totals recomputes and returns the billing totals for the session.
func (svc *Service) Totals(id string) (pricing.Totals, error) {
	s, err := svc.session(id)
	if err != nil {
		return pricing.Totals{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return svc.totalsLocked(s), nil
}

// CanGenerateBill reports whether bill generation preconditions hold.
func (svc *Service) CanGenerateBill(id string) (bool, error) {
	s, err := svc.session(id)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canGenerateLocked(), nil
}

// GenerateBill posts the bill to the persistence service and, on success,
// journals it, schedules receipt rendering and resets the session. A zero
// paidAmount means exact tender. When the upstream call fails the session is
// left untouched so the operator can retry. A response that arrives after the
// session changed again does not reset the newer state.
func (svc *Service) GenerateBill(ctx context.Context, id string, paidAmount pricing.Money) (Bill, error) {
	s, err := svc.session(id)
	if err != nil {
		return Bill{}, err
	}

	s.mu.Lock()
	if len(s.Items) == 0 {
		s.mu.Unlock()
		return Bill{}, ErrEmptyCart
	}
	if !s.canGenerateLocked() {
		s.mu.Unlock()
		return Bill{}, ErrInvalidPhone
	}
	totals := svc.totalsLocked(s)
	if paidAmount == 0 {
		paidAmount = totals.Net
	}
	if paidAmount < totals.Net {
		s.mu.Unlock()
		return Bill{}, fmt.Errorf("%w: paid %d net %d", ErrPaidBelowNet, paidAmount, totals.Net)
	}
	method := s.PaymentMethod
	if method == "" {
		method = "cash"
	}
	payload := bills.CreateRequest{
		TerminalID:        s.TerminalID,
		Items:             make([]bills.LineItem, 0, len(s.Items)),
		Subtotal:          totals.Subtotal,
		DiscountKind:      string(totals.Discount.Kind),
		DiscountAmount:    totals.Discount.Amount,
		LoyaltyPointsUsed: totals.LoyaltyUsed,
		LoyaltyDiscount:   totals.LoyaltyDiscount,
		Tax:               totals.Tax,
		NetAmount:         totals.Net,
		PaidAmount:        paidAmount,
		ChangeAmount:      paidAmount - totals.Net,
		PaymentMethod:     method,
		PointsEarned:      totals.PointsToEarn,
		CreatedAt:         svc.now(),
	}
	payload.CustomerPhone = s.Phone
	if s.Customer != nil {
		payload.CustomerID = s.Customer.ID
	}
	if s.Coupon != nil && totals.Discount.Kind == pricing.DiscountCoupon {
		payload.CouponCode = s.Coupon.Code
	}
	for _, l := range s.Items {
		payload.Items = append(payload.Items, bills.LineItem{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Qty:       l.Qty,
			LineTotal: l.LineTotal(),
		})
	}
	epoch := s.epoch
	s.mu.Unlock()

	res, err := svc.Bills.Create(ctx, payload)
	if err != nil {
		if obs.BillsGenerated != nil {
			obs.BillsGenerated.WithLabelValues("error").Inc()
		}
		return Bill{}, fmt.Errorf("%w: %v", ErrBillGeneration, err)
	}
	bill := Bill{CreateRequest: payload, BillID: res.BillID, BillNumber: res.BillNumber}
	if obs.BillsGenerated != nil {
		obs.BillsGenerated.WithLabelValues("ok").Inc()
	}

	s.mu.Lock()
	if s.epoch == epoch {
		s.resetLocked(svc.now())
	} else {
		svc.Logger.Warn().Str("session_id", s.ID).Str("bill_number", bill.BillNumber).
			Msg("session changed during bill creation, skipping reset")
	}
	s.mu.Unlock()

	if svc.Journal != nil {
		if err := svc.Journal.Record(ctx, bill); err != nil {
			svc.Logger.Error().Err(err).Str("bill_number", bill.BillNumber).Msg("journal bill failed")
		}
	}
	if svc.Receipts != nil {
		if err := svc.Receipts.EnqueueRender(ctx, bill); err != nil {
			svc.Logger.Error().Err(err).Str("bill_number", bill.BillNumber).Msg("enqueue receipt failed")
		}
	}
	return bill, nil
}

// Clear resets the session to its initial empty state.
func (svc *Service) Clear(id string) (Snapshot, error) {
	s, err := svc.session(id)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked(svc.now())
	return svc.snapshotLocked(s), nil
}

func (svc *Service) countCouponValidation(err error) {
	if obs.CouponValidations == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, coupon.ErrNotFound):
		result = "not_found"
	case errors.Is(err, coupon.ErrBelowMinimum):
		result = "below_minimum"
	case errors.Is(err, coupon.ErrTierIneligible):
		result = "tier_ineligible"
	case errors.Is(err, coupon.ErrExhausted):
		result = "exhausted"
	case errors.Is(err, coupon.ErrInactive), errors.Is(err, coupon.ErrExpired):
		result = "expired"
	default:
		result = "error"
	}
	obs.CouponValidations.WithLabelValues(result).Inc()
}
