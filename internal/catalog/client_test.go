package catalog_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/catalog"
	"github.com/noah-isme/backend-pos/internal/coupon"
)

func newCatalogServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/products/p-1", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":"p-1","name":"Rice 5kg","sku":"RIC-5","sellingPrice":45000,"currentStock":12,"categoryId":"grocery"}}`))
	})
	mux.HandleFunc("GET /v1/products/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("GET /v1/coupons", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"code":"save20","kind":"percentage","percentBps":2000,"maxDiscount":10000,"minPurchase":50000}]}`))
	})
	mux.HandleFunc("GET /v1/coupons/FLAT50", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"code":"FLAT50","kind":"fixed","value":5000}}`))
	})
	return httptest.NewServer(mux)
}

func TestRESTClientProduct(t *testing.T) {
	var hits int32
	srv := newCatalogServer(t, &hits)
	defer srv.Close()

	cl := catalog.NewRESTClient(srv.URL, time.Second)
	p, err := cl.Product(context.Background(), "p-1")
	require.NoError(t, err)
	require.Equal(t, "Rice 5kg", p.Name)
	require.EqualValues(t, 45000, p.SellingPrice)
	require.Equal(t, 12, p.CurrentStock)

	_, err = cl.Product(context.Background(), "missing")
	require.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestRESTClientCouponCodeNormalized(t *testing.T) {
	var hits int32
	srv := newCatalogServer(t, &hits)
	defer srv.Close()

	cl := catalog.NewRESTClient(srv.URL, time.Second)
	rule, err := cl.Coupon(context.Background(), " flat50 ")
	require.NoError(t, err)
	require.Equal(t, "FLAT50", rule.Code)
	require.Equal(t, coupon.KindFixed, rule.Kind)
	require.EqualValues(t, 5000, rule.Value)
}

func TestCachedProductHitsUpstreamOnce(t *testing.T) {
	var hits int32
	srv := newCatalogServer(t, &hits)
	defer srv.Close()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cached := &catalog.Cached{
		Inner: catalog.NewRESTClient(srv.URL, time.Second),
		R:     rdb,
		TTL:   time.Minute,
	}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		p, err := cached.Product(ctx, "p-1")
		require.NoError(t, err)
		require.Equal(t, "p-1", p.ID)
	}
	require.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestCachedCouponServedFromList(t *testing.T) {
	var hits int32
	srv := newCatalogServer(t, &hits)
	defer srv.Close()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cached := &catalog.Cached{
		Inner: catalog.NewRESTClient(srv.URL, time.Second),
		R:     rdb,
		TTL:   time.Minute,
	}
	ctx := context.Background()
	rules, err := cached.ListCoupons(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.Equal(t, "SAVE20", rules[0].Code)

	rule, err := cached.Coupon(ctx, "save20")
	require.NoError(t, err)
	require.EqualValues(t, 2000, rule.PercentBps)
	require.EqualValues(t, 1, atomic.LoadInt32(&hits), "coupon lookup should reuse cached list")
}
