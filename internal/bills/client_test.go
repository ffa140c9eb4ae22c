package bills_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/bills"
)

func TestCreate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/bills", r.URL.Path)
		var payload bills.CreateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.EqualValues(t, 21240, payload.NetAmount)
		require.Len(t, payload.Items, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"billId":"b-42","billNumber":"BL1756700000"}}`))
	}))
	defer srv.Close()

	cl := bills.NewRESTClient(srv.URL, time.Second)
	res, err := cl.Create(context.Background(), bills.CreateRequest{
		TerminalID: "t-1",
		Items:      []bills.LineItem{{ProductID: "p-1", Name: "Rice 5kg", UnitPrice: 10_000, Qty: 2, LineTotal: 20_000}},
		Subtotal:   20_000,
		Tax:        3_240,
		NetAmount:  21_240,
		PaidAmount: 21_240,
		CreatedAt:  time.Now(),
	})
	require.NoError(t, err)
	require.Equal(t, "BL1756700000", res.BillNumber)
	require.Equal(t, "b-42", res.BillID)
}

func TestCreateUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cl := bills.NewRESTClient(srv.URL, time.Second)
	_, err := cl.Create(context.Background(), bills.CreateRequest{})
	require.Error(t, err)
}

func TestCreateRejectsMissingBillNumber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	cl := bills.NewRESTClient(srv.URL, time.Second)
	_, err := cl.Create(context.Background(), bills.CreateRequest{})
	require.Error(t, err)
}
