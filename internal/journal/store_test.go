package journal_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/billing"
	"github.com/noah-isme/backend-pos/internal/bills"
	"github.com/noah-isme/backend-pos/internal/journal"
)

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	require.NoError(t, journal.Migrate(url))
	pool, err := pgxpool.New(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestRecordAndLookup(t *testing.T) {
	pool := testPool(t)
	store := &journal.Store{Pool: pool}
	ctx := context.Background()

	number := "BL" + time.Now().Format("20060102150405.000")
	bill := billing.Bill{
		BillID:     "b-1",
		BillNumber: number,
		CreateRequest: bills.CreateRequest{
			TerminalID:    "t-1",
			Items:         []bills.LineItem{{ProductID: "p-1", Name: "Rice 5kg", UnitPrice: 10_000, Qty: 2, LineTotal: 20_000}},
			Subtotal:      20_000,
			DiscountKind:  "manual",
			Tax:           3_240,
			NetAmount:     21_240,
			PaidAmount:    25_000,
			ChangeAmount:  3_760,
			PaymentMethod: "cash",
			CreatedAt:     time.Now().UTC(),
		},
	}
	require.NoError(t, store.Record(ctx, bill))
	// Replays must be harmless.
	require.NoError(t, store.Record(ctx, bill))

	entry, err := store.ByNumber(ctx, number)
	require.NoError(t, err)
	require.Equal(t, "t-1", entry.TerminalID)
	require.EqualValues(t, 21_240, entry.NetAmount)
	require.Len(t, entry.Items, 1)

	recent, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, recent)

	_, err = store.ByNumber(ctx, "BL-missing")
	require.ErrorIs(t, err, journal.ErrNotFound)
}
