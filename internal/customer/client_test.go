package customer_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pos/internal/customer"
)

func TestValidPhone(t *testing.T) {
	require.True(t, customer.ValidPhone("9876543210"))
	require.True(t, customer.ValidPhone(" 9876543210 "))
	require.False(t, customer.ValidPhone("12345"))
	require.False(t, customer.ValidPhone("98765432101"))
	require.False(t, customer.ValidPhone("98765abc10"))
	require.False(t, customer.ValidPhone(""))
}

func TestByPhone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("phone") {
		case "9876543210":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":{"id":"c-7","name":"Asha","phone":"9876543210","tier":"gold","loyaltyPoints":150}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cl := customer.NewRESTClient(srv.URL, time.Second)
	cust, err := cl.ByPhone(context.Background(), "9876543210")
	require.NoError(t, err)
	require.Equal(t, "c-7", cust.ID)
	require.Equal(t, "gold", cust.Tier)
	require.Equal(t, 150, cust.LoyaltyPoints)

	_, err = cl.ByPhone(context.Background(), "1111111111")
	require.ErrorIs(t, err, customer.ErrNotFound)
}
