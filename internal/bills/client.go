package bills

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-pos/internal/pricing"
	"github.com/noah-isme/backend-pos/internal/resilience"
)

// LineItem is one sold line in a bill payload.
type LineItem struct {
	ProductID string        `json:"productId"`
	Name      string        `json:"name"`
	UnitPrice pricing.Money `json:"unitPrice"`
	Qty       int           `json:"qty"`
	LineTotal pricing.Money `json:"lineTotal"`
}

// CreateRequest is the bill-creation payload posted to the persistence
// service. The bill number is assigned upstream and never sent.
type CreateRequest struct {
	TerminalID        string        `json:"terminalId"`
	Items             []LineItem    `json:"items"`
	Subtotal          pricing.Money `json:"subtotal"`
	DiscountKind      string        `json:"discountKind"`
	DiscountAmount    pricing.Money `json:"discountAmount"`
	LoyaltyPointsUsed int           `json:"loyaltyPointsUsed"`
	LoyaltyDiscount   pricing.Money `json:"loyaltyDiscount"`
	Tax               pricing.Money `json:"tax"`
	NetAmount         pricing.Money `json:"netAmount"`
	PaidAmount        pricing.Money `json:"paidAmount"`
	ChangeAmount      pricing.Money `json:"changeAmount"`
	PaymentMethod     string        `json:"paymentMethod"`
	CustomerID        string        `json:"customerId,omitempty"`
	CustomerPhone     string        `json:"customerPhone,omitempty"`
	CouponCode        string        `json:"couponCode,omitempty"`
	PointsEarned      int           `json:"pointsEarned"`
	CreatedAt         time.Time     `json:"createdAt"`
}

// CreateResult carries the identifiers assigned by the persistence service.
type CreateResult struct {
	BillID     string `json:"billId"`
	BillNumber string `json:"billNumber"`
}

// Client persists bills upstream.
type Client interface {
	Create(ctx context.Context, req CreateRequest) (CreateResult, error)
}

// RESTClient talks to the bill persistence service over HTTP.
type RESTClient struct {
	BaseURL string
	HTTP    resilience.HTTPClient
}

// NewRESTClient builds a bills client with tracing transport and a dedicated
// breaker. Bill creation is not idempotent upstream, so it never retries.
func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RESTClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: resilience.HTTPClient{
			Client: &http.Client{
				Timeout:   timeout,
				Transport: otelhttp.NewTransport(http.DefaultTransport),
			},
			Breaker:     resilience.NewBreaker(5, 0.5, 30*time.Second).WithUpstream("bills"),
			MaxAttempts: 1,
		},
	}
}

// Create posts the bill and returns the upstream-assigned identifiers.
func (c *RESTClient) Create(ctx context.Context, payload CreateRequest) (CreateResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return CreateResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/bills", bytes.NewReader(raw))
	if err != nil {
		return CreateResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return CreateResult{}, fmt.Errorf("bill create request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return CreateResult{}, fmt.Errorf("bill service responded %s", resp.Status)
	}
	var env struct {
		Data CreateResult `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return CreateResult{}, fmt.Errorf("decode bill response: %w", err)
	}
	if env.Data.BillNumber == "" {
		return CreateResult{}, errors.New("bill service returned no bill number")
	}
	return env.Data, nil
}
