package customer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-pos/internal/resilience"
)

// ErrNotFound indicates no customer is registered under the phone number.
var ErrNotFound = errors.New("customer not found")

var phonePattern = regexp.MustCompile(`^\d{10}$`)

// ValidPhone reports whether the input is exactly ten digits.
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(strings.TrimSpace(phone))
}

// Customer is the loyalty record resolved from a phone number.
type Customer struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Tier          string `json:"tier"`
	LoyaltyPoints int    `json:"loyaltyPoints"`
}

// Client resolves customers by phone number.
type Client interface {
	ByPhone(ctx context.Context, phone string) (Customer, error)
}

// RESTClient talks to the customer service over HTTP.
type RESTClient struct {
	BaseURL string
	HTTP    resilience.HTTPClient
}

// NewRESTClient builds a customer client with tracing transport and a
// dedicated breaker.
func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RESTClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: resilience.HTTPClient{
			Client: &http.Client{
				Timeout:   timeout,
				Transport: otelhttp.NewTransport(http.DefaultTransport),
			},
			Breaker:     resilience.NewBreaker(5, 0.5, 30*time.Second).WithUpstream("customer"),
			BaseBackoff: 100 * time.Millisecond,
			MaxAttempts: 3,
			Jitter:      0.2,
		},
	}
}

// ByPhone resolves the customer registered under the phone number, returning
// ErrNotFound when the upstream has no record.
func (c *RESTClient) ByPhone(ctx context.Context, phone string) (Customer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.BaseURL+"/v1/customers?phone="+url.QueryEscape(strings.TrimSpace(phone)), nil)
	if err != nil {
		return Customer{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return Customer{}, fmt.Errorf("customer request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Customer{}, ErrNotFound
	case resp.StatusCode >= 400:
		return Customer{}, fmt.Errorf("customer service responded %s", resp.Status)
	}
	var env struct {
		Data Customer `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return Customer{}, fmt.Errorf("decode customer response: %w", err)
	}
	if env.Data.ID == "" {
		return Customer{}, ErrNotFound
	}
	return env.Data, nil
}
