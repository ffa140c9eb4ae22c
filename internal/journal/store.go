package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-pos/internal/billing"
	"github.com/noah-isme/backend-pos/internal/bills"
	"github.com/noah-isme/backend-pos/internal/pricing"
)

// ErrNotFound indicates no journal entry exists for the bill number.
var ErrNotFound = errors.New("bill not found in journal")

// Entry is one journaled bill.
type Entry struct {
	BillNumber        string           `json:"billNumber"`
	BillID            string           `json:"billId"`
	TerminalID        string           `json:"terminalId"`
	CustomerID        string           `json:"customerId,omitempty"`
	CustomerPhone     string           `json:"customerPhone,omitempty"`
	Items             []bills.LineItem `json:"items"`
	Subtotal          pricing.Money    `json:"subtotal"`
	DiscountKind      string           `json:"discountKind"`
	DiscountAmount    pricing.Money    `json:"discountAmount"`
	LoyaltyPointsUsed int              `json:"loyaltyPointsUsed"`
	LoyaltyDiscount   pricing.Money    `json:"loyaltyDiscount"`
	Tax               pricing.Money    `json:"tax"`
	NetAmount         pricing.Money    `json:"netAmount"`
	PaidAmount        pricing.Money    `json:"paidAmount"`
	ChangeAmount      pricing.Money    `json:"changeAmount"`
	PaymentMethod     string           `json:"paymentMethod"`
	CouponCode        string           `json:"couponCode,omitempty"`
	PointsEarned      int              `json:"pointsEarned"`
	CreatedAt         time.Time        `json:"createdAt"`
}

// Store persists generated bills in the local sales journal.
type Store struct {
	Pool *pgxpool.Pool
}

// Record inserts the bill. Recording the same bill number twice is a no-op so
// replays after a partial failure stay harmless.
func (s *Store) Record(ctx context.Context, bill billing.Bill) error {
	if s == nil || s.Pool == nil {
		return errors.New("journal store not configured")
	}
	items, err := json.Marshal(bill.Items)
	if err != nil {
		return fmt.Errorf("marshal bill items: %w", err)
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO bills (
			bill_number, bill_id, terminal_id, customer_id, customer_phone,
			items, subtotal, discount_kind, discount_amount,
			loyalty_points_used, loyalty_discount, tax, net_amount,
			paid_amount, change_amount, payment_method, coupon_code,
			points_earned, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		ON CONFLICT (bill_number) DO NOTHING`,
		bill.BillNumber, bill.BillID, bill.TerminalID, bill.CustomerID, bill.CustomerPhone,
		items, bill.Subtotal, bill.DiscountKind, bill.DiscountAmount,
		bill.LoyaltyPointsUsed, bill.LoyaltyDiscount, bill.Tax, bill.NetAmount,
		bill.PaidAmount, bill.ChangeAmount, bill.PaymentMethod, bill.CouponCode,
		bill.PointsEarned, bill.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert bill: %w", err)
	}
	return nil
}

const selectColumns = `
	bill_number, bill_id, terminal_id, customer_id, customer_phone,
	items, subtotal, discount_kind, discount_amount,
	loyalty_points_used, loyalty_discount, tax, net_amount,
	paid_amount, change_amount, payment_method, coupon_code,
	points_earned, created_at`

// Recent returns the latest journaled bills, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if s == nil || s.Pool == nil {
		return nil, errors.New("journal store not configured")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx,
		`SELECT `+selectColumns+` FROM bills ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent bills: %w", err)
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ByNumber returns the journaled bill with the given number.
func (s *Store) ByNumber(ctx context.Context, number string) (Entry, error) {
	if s == nil || s.Pool == nil {
		return Entry{}, errors.New("journal store not configured")
	}
	row := s.Pool.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM bills WHERE bill_number = $1`, number)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	return e, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		e     Entry
		items []byte
	)
	err := row.Scan(
		&e.BillNumber, &e.BillID, &e.TerminalID, &e.CustomerID, &e.CustomerPhone,
		&items, &e.Subtotal, &e.DiscountKind, &e.DiscountAmount,
		&e.LoyaltyPointsUsed, &e.LoyaltyDiscount, &e.Tax, &e.NetAmount,
		&e.PaidAmount, &e.ChangeAmount, &e.PaymentMethod, &e.CouponCode,
		&e.PointsEarned, &e.CreatedAt,
	)
	if err != nil {
		return Entry{}, err
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &e.Items); err != nil {
			return Entry{}, fmt.Errorf("unmarshal bill items: %w", err)
		}
	}
	return e, nil
}
