package billing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/billing"
	"github.com/noah-isme/backend-pos/internal/bills"
	"github.com/noah-isme/backend-pos/internal/catalog"
	"github.com/noah-isme/backend-pos/internal/coupon"
	"github.com/noah-isme/backend-pos/internal/customer"
	"github.com/noah-isme/backend-pos/internal/pricing"
)

type fakeCatalog struct {
	products map[string]catalog.Product
	coupons  map[string]coupon.Rule
}

func (f *fakeCatalog) Product(ctx context.Context, id string) (catalog.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	return p, nil
}

func (f *fakeCatalog) SearchProducts(ctx context.Context, query string) ([]catalog.Product, error) {
	out := make([]catalog.Product, 0, len(f.products))
	for _, p := range f.products {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeCatalog) Coupon(ctx context.Context, code string) (coupon.Rule, error) {
	r, ok := f.coupons[coupon.Normalize(code)]
	if !ok {
		return coupon.Rule{}, coupon.ErrNotFound
	}
	return r, nil
}

func (f *fakeCatalog) ListCoupons(ctx context.Context) ([]coupon.Rule, error) {
	out := make([]coupon.Rule, 0, len(f.coupons))
	for _, r := range f.coupons {
		out = append(out, r)
	}
	return out, nil
}

type fakeCustomers struct {
	byPhone map[string]customer.Customer
}

func (f *fakeCustomers) ByPhone(ctx context.Context, phone string) (customer.Customer, error) {
	c, ok := f.byPhone[phone]
	if !ok {
		return customer.Customer{}, customer.ErrNotFound
	}
	return c, nil
}

type fakeBills struct {
	fail       bool
	lastReq    bills.CreateRequest
	beforeResp func()
}

func (f *fakeBills) Create(ctx context.Context, req bills.CreateRequest) (bills.CreateResult, error) {
	f.lastReq = req
	if f.beforeResp != nil {
		f.beforeResp()
	}
	if f.fail {
		return bills.CreateResult{}, errors.New("upstream down")
	}
	return bills.CreateResult{BillID: "b-1", BillNumber: "BL1756700000"}, nil
}

func newTestService() (*billing.Service, *fakeBills) {
	fb := &fakeBills{}
	svc := &billing.Service{
		Store: billing.NewStore(),
		Catalog: &fakeCatalog{
			products: map[string]catalog.Product{
				"p-1": {ID: "p-1", Name: "Rice 5kg", SellingPrice: 10_000, CurrentStock: 10},
				"p-2": {ID: "p-2", Name: "Sugar 1kg", SellingPrice: 4_500, CurrentStock: 3},
			},
			coupons: map[string]coupon.Rule{
				"SAVE15": {Code: "SAVE15", Kind: coupon.KindPercentage, PercentBps: 1500, MaxDiscount: 2_500},
				"BIG50":  {Code: "BIG50", Kind: coupon.KindFixed, Value: 5_000, MinPurchase: 100_000},
			},
		},
		Customers: &fakeCustomers{byPhone: map[string]customer.Customer{
			"9876543210": {ID: "c-7", Name: "Asha", Phone: "9876543210", Tier: "gold", LoyaltyPoints: 500},
		}},
		Bills:  fb,
		TaxBps: 1800,
	}
	return svc, fb
}

func TestAddItemMergesLines(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	sess := svc.NewSession("t-1")

	snap, err := svc.AddItem(ctx, sess.ID, "p-1", 2)
	require.NoError(t, err)
	require.Len(t, snap.Items, 1)

	snap, err = svc.AddItem(ctx, sess.ID, "p-1", 3)
	require.NoError(t, err)
	require.Len(t, snap.Items, 1, "same product must merge into one line")
	require.Equal(t, 5, snap.Items[0].Qty)
	require.EqualValues(t, 50_000, snap.Totals.Subtotal)
}

func TestAddItemInsufficientStock(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	sess := svc.NewSession("t-1")

	_, err := svc.AddItem(ctx, sess.ID, "p-2", 4)
	require.ErrorIs(t, err, billing.ErrInsufficientStock)

	snap, err := svc.View(sess.ID)
	require.NoError(t, err)
	require.Empty(t, snap.Items, "failed add must leave the cart unchanged")

	_, err = svc.AddItem(ctx, sess.ID, "p-2", 2)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, sess.ID, "p-2", 2)
	require.ErrorIs(t, err, billing.ErrInsufficientStock, "increment past stock must fail")
	snap, _ = svc.View(sess.ID)
	require.Equal(t, 2, snap.Items[0].Qty)
}

func TestUpdateQuantity(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	sess := svc.NewSession("t-1")
	_, err := svc.AddItem(ctx, sess.ID, "p-1", 2)
	require.NoError(t, err)

	_, err = svc.UpdateQuantity(sess.ID, 5, 1)
	require.ErrorIs(t, err, billing.ErrIndexOutOfRange)

	_, err = svc.UpdateQuantity(sess.ID, 0, 99)
	require.ErrorIs(t, err, billing.ErrInsufficientStock)

	snap, err := svc.UpdateQuantity(sess.ID, 0, 4)
	require.NoError(t, err)
	require.Equal(t, 4, snap.Items[0].Qty)

	snap, err = svc.UpdateQuantity(sess.ID, 0, 0)
	require.NoError(t, err)
	require.Empty(t, snap.Items, "qty zero removes the line")
}

func TestRemoveItemOutOfRange(t *testing.T) {
	svc, _ := newTestService()
	sess := svc.NewSession("t-1")
	_, err := svc.RemoveItem(sess.ID, 0)
	require.ErrorIs(t, err, billing.ErrIndexOutOfRange)
}

func TestAttachCustomer(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	sess := svc.NewSession("t-1")

	_, err := svc.AttachCustomer(ctx, sess.ID, "12345")
	require.ErrorIs(t, err, billing.ErrInvalidPhone)

	snap, err := svc.AttachCustomer(ctx, sess.ID, "1111111111")
	require.NoError(t, err)
	require.Nil(t, snap.Customer, "unknown phone keeps no customer record")
	require.Equal(t, "1111111111", snap.Phone)

	snap, err = svc.AttachCustomer(ctx, sess.ID, "9876543210")
	require.NoError(t, err)
	require.NotNil(t, snap.Customer)
	require.Equal(t, "gold", snap.Customer.Tier)
}

func TestLoyaltySelectionClampsAfterCartShrinks(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	sess := svc.NewSession("t-1")
	_, err := svc.AddItem(ctx, sess.ID, "p-1", 4)
	require.NoError(t, err)
	_, err = svc.AttachCustomer(ctx, sess.ID, "9876543210")
	require.NoError(t, err)

	// Subtotal 400.00, cap 200 points.
	snap, err := svc.UseLoyaltyPoints(sess.ID, 300)
	require.NoError(t, err)
	require.Equal(t, 200, snap.Totals.LoyaltyUsed)

	// Shrinking the cart to 100.00 drops the cap to 50 points.
	snap, err = svc.UpdateQuantity(sess.ID, 0, 1)
	require.NoError(t, err)
	require.Equal(t, 50, snap.Totals.MaxUsablePoints)
	require.Equal(t, 50, snap.Totals.LoyaltyUsed)
}

func TestApplyCoupon(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	sess := svc.NewSession("t-1")
	_, err := svc.AddItem(ctx, sess.ID, "p-1", 2)
	require.NoError(t, err)

	_, err = svc.ApplyCoupon(ctx, sess.ID, "NOPE")
	require.ErrorIs(t, err, coupon.ErrNotFound)

	_, err = svc.ApplyCoupon(ctx, sess.ID, "BIG50")
	require.ErrorIs(t, err, coupon.ErrBelowMinimum)

	snap, err := svc.ApplyCoupon(ctx, sess.ID, "save15")
	require.NoError(t, err)
	require.Equal(t, "SAVE15", snap.CouponCode)
	// 15% of 200.00 is 30.00, capped at 25.00, beating no manual discount.
	require.Equal(t, pricing.DiscountCoupon, snap.Totals.Discount.Kind)
	require.EqualValues(t, 2_500, snap.Totals.Discount.Amount)
	require.EqualValues(t, 20_650, snap.Totals.Net)

	snap, err = svc.RemoveCoupon(sess.ID)
	require.NoError(t, err)
	require.Empty(t, snap.CouponCode)
	require.Equal(t, pricing.DiscountNone, snap.Totals.Discount.Kind)
}

func TestListApplicableCoupons(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	sess := svc.NewSession("t-1")
	_, err := svc.AddItem(ctx, sess.ID, "p-1", 2)
	require.NoError(t, err)

	options, err := svc.ListApplicableCoupons(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, options, 1, "BIG50 requires a 1000.00 minimum purchase")
	require.Equal(t, "SAVE15", options[0].Code)
	require.EqualValues(t, 2_500, options[0].Discount)
}

func TestGenerateBillPreconditions(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	sess := svc.NewSession("t-1")

	_, err := svc.GenerateBill(ctx, sess.ID, 0)
	require.ErrorIs(t, err, billing.ErrEmptyCart)

	_, err = svc.AddItem(ctx, sess.ID, "p-1", 2)
	require.NoError(t, err)
	_, err = svc.GenerateBill(ctx, sess.ID, 0)
	require.ErrorIs(t, err, billing.ErrInvalidPhone, "no customer and no valid phone")

	_, err = svc.AttachCustomer(ctx, sess.ID, "1111111111")
	require.NoError(t, err)
	_, err = svc.GenerateBill(ctx, sess.ID, 10_000)
	require.ErrorIs(t, err, billing.ErrPaidBelowNet)
}

func TestGenerateBillSuccessResetsSession(t *testing.T) {
	svc, fb := newTestService()
	ctx := context.Background()
	sess := svc.NewSession("t-1")
	_, err := svc.AddItem(ctx, sess.ID, "p-1", 2)
	require.NoError(t, err)
	_, err = svc.AttachCustomer(ctx, sess.ID, "9876543210")
	require.NoError(t, err)
	_, err = svc.SetPaymentMethod(sess.ID, "upi")
	require.NoError(t, err)

	bill, err := svc.GenerateBill(ctx, sess.ID, 25_000)
	require.NoError(t, err)
	require.Equal(t, "BL1756700000", bill.BillNumber)
	// Net 236.00 paid 250.00, change 14.00.
	require.EqualValues(t, 23_600, bill.NetAmount)
	require.EqualValues(t, 25_000, bill.PaidAmount)
	require.EqualValues(t, 1_400, bill.ChangeAmount)
	require.Equal(t, "upi", bill.PaymentMethod)
	require.Equal(t, 2, bill.PointsEarned)
	require.Equal(t, "c-7", fb.lastReq.CustomerID)

	snap, err := svc.View(sess.ID)
	require.NoError(t, err)
	require.Empty(t, snap.Items, "successful bill clears the cart")
	require.Nil(t, snap.Customer)
	require.Empty(t, snap.Phone)
}

func TestGenerateBillUpstreamFailureKeepsState(t *testing.T) {
	svc, fb := newTestService()
	fb.fail = true
	ctx := context.Background()
	sess := svc.NewSession("t-1")
	_, err := svc.AddItem(ctx, sess.ID, "p-1", 2)
	require.NoError(t, err)
	_, err = svc.AttachCustomer(ctx, sess.ID, "9876543210")
	require.NoError(t, err)

	_, err = svc.GenerateBill(ctx, sess.ID, 0)
	require.ErrorIs(t, err, billing.ErrBillGeneration)

	snap, err := svc.View(sess.ID)
	require.NoError(t, err)
	require.Len(t, snap.Items, 1, "failed bill must leave the session intact")
	require.NotNil(t, snap.Customer)
}

func TestGenerateBillStaleResponseDoesNotClobberNewerState(t *testing.T) {
	svc, fb := newTestService()
	ctx := context.Background()
	sess := svc.NewSession("t-1")
	_, err := svc.AddItem(ctx, sess.ID, "p-1", 2)
	require.NoError(t, err)
	_, err = svc.AttachCustomer(ctx, sess.ID, "9876543210")
	require.NoError(t, err)

	// The session changes while the persistence call is in flight.
	fb.beforeResp = func() {
		_, err := svc.AddItem(ctx, sess.ID, "p-2", 1)
		require.NoError(t, err)
	}

	bill, err := svc.GenerateBill(ctx, sess.ID, 30_000)
	require.NoError(t, err)
	require.Equal(t, "BL1756700000", bill.BillNumber)

	snap, err := svc.View(sess.ID)
	require.NoError(t, err)
	require.NotEmpty(t, snap.Items, "stale response must not reset the newer cart")
}

func TestGenerateBillDefaultsToExactTender(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	sess := svc.NewSession("t-1")
	_, err := svc.AddItem(ctx, sess.ID, "p-1", 2)
	require.NoError(t, err)
	_, err = svc.AttachCustomer(ctx, sess.ID, "1111111111")
	require.NoError(t, err)

	bill, err := svc.GenerateBill(ctx, sess.ID, 0)
	require.NoError(t, err)
	require.Equal(t, bill.NetAmount, bill.PaidAmount)
	require.Zero(t, bill.ChangeAmount)
	require.Zero(t, bill.PointsEarned, "anonymous sales earn no points")
	require.Equal(t, "cash", bill.PaymentMethod)
}

func TestClear(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	sess := svc.NewSession("t-1")
	_, err := svc.AddItem(ctx, sess.ID, "p-1", 2)
	require.NoError(t, err)
	_, err = svc.SetManualDiscount(sess.ID, 1000)
	require.NoError(t, err)

	snap, err := svc.Clear(sess.ID)
	require.NoError(t, err)
	require.Empty(t, snap.Items)
	require.Zero(t, snap.ManualDiscountBps)
	require.EqualValues(t, 0, snap.Totals.Subtotal)
}

func TestSessionNotFound(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.View("nope")
	require.ErrorIs(t, err, billing.ErrSessionNotFound)
}

func TestManualVsCouponBestOf(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	sess := svc.NewSession("t-1")
	_, err := svc.AddItem(ctx, sess.ID, "p-1", 2)
	require.NoError(t, err)
	_, err = svc.SetManualDiscount(sess.ID, 1000)
	require.NoError(t, err)
	snap, err := svc.ApplyCoupon(ctx, sess.ID, "SAVE15")
	require.NoError(t, err)

	// Manual 20.00 vs coupon 25.00: coupon wins, they never stack.
	require.Equal(t, pricing.DiscountCoupon, snap.Totals.Discount.Kind)
	require.EqualValues(t, 2_500, snap.Totals.TotalDiscount)
	require.EqualValues(t, 20_650, snap.Totals.Net)

	snap, err = svc.SetManualDiscount(sess.ID, 2000)
	require.NoError(t, err)
	require.Equal(t, pricing.DiscountManual, snap.Totals.Discount.Kind)
	require.EqualValues(t, 4_000, snap.Totals.Discount.Amount)
}
